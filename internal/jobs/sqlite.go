package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var sqliteSchema string

// schemaVersion is the current schema version. Bump this when schema.sql changes.
const schemaVersion = 1

// ErrSchemaMismatch indicates the database schema version doesn't match the expected version.
var ErrSchemaMismatch = errors.New("schema version mismatch")

const (
	sqliteBusyCode          = 5
	busyRetryAttempts       = 5
	busyRetryInitialBackoff = 10 * time.Millisecond
	busyRetryMaxBackoff     = 200 * time.Millisecond
)

// SQLiteStore keeps job records in a local SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// OpenSQLite initializes or connects to the jobs database at path.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("ensure database directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.ExecContext(ctx, pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &SQLiteStore{db: db, path: path, now: time.Now}
	if err := store.initSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) initSchema(ctx context.Context) error {
	var tableExists int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	).Scan(&tableExists)
	if err != nil {
		return fmt.Errorf("check schema_version table: %w", err)
	}
	if tableExists == 0 {
		return s.createSchema(ctx)
	}

	var version int
	if err := s.db.QueryRowContext(ctx, "SELECT version FROM schema_version LIMIT 1").Scan(&version); err != nil {
		return fmt.Errorf("read schema version: %w", err)
	}
	if version != schemaVersion {
		return fmt.Errorf("%w: database has version %d, expected %d (delete %s to recreate it)",
			ErrSchemaMismatch, version, schemaVersion, s.path)
	}
	return nil
}

func (s *SQLiteStore) createSchema(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, sqliteSchema); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	if _, err := tx.ExecContext(ctx, "INSERT INTO schema_version (version) VALUES (?)", schemaVersion); err != nil {
		return fmt.Errorf("record schema version: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema: %w", err)
	}
	return nil
}

func isSQLiteBusy(err error) bool {
	if err == nil {
		return false
	}
	var coder interface{ Code() int }
	if errors.As(err, &coder) && coder.Code() == sqliteBusyCode {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") || strings.Contains(msg, "database is locked")
}

func retryOnBusy(ctx context.Context, op func() error) error {
	delay := busyRetryInitialBackoff
	var lastErr error
	for attempt := 0; attempt < busyRetryAttempts; attempt++ {
		lastErr = op()
		if lastErr == nil {
			return nil
		}
		if !isSQLiteBusy(lastErr) || attempt == busyRetryAttempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return ctx.Err()
		}
		if next := delay * 2; next <= busyRetryMaxBackoff {
			delay = next
		}
	}
	return lastErr
}

func (s *SQLiteStore) execWithRetry(ctx context.Context, query string, args ...any) (sql.Result, error) {
	var (
		res     sql.Result
		execErr error
	)
	if err := retryOnBusy(ctx, func() error {
		res, execErr = s.db.ExecContext(ctx, query, args...)
		return execErr
	}); err != nil {
		return nil, err
	}
	return res, nil
}

// CreateJob inserts record unless its sort key is already present.
func (s *SQLiteStore) CreateJob(ctx context.Context, record *Record) error {
	if record == nil || strings.TrimSpace(record.JobID) == "" {
		return fmt.Errorf("create job: job id required")
	}
	record.PK = PartitionJobs
	record.SK = JobKey(record.JobID)
	details, err := encodeDetails(record.OutputGroupDetails)
	if err != nil {
		return err
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO job_records (`+recordColumns+`)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
         ON CONFLICT (pk, sk) DO NOTHING`,
		record.PK,
		record.SK,
		record.JobID,
		string(record.Status),
		record.SrcBucket,
		record.SrcPath,
		record.DestBucket,
		record.Filename,
		record.CreatedAt,
		nullableString(record.UpdatedAt),
		details,
		nullableInt(record.ErrorCode),
		nullableString(record.ErrorMessage),
	)
	if err != nil {
		return fmt.Errorf("insert job %s: %w", record.JobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, record.JobID)
	}
	return nil
}

// UpdateStatus applies a guarded status transition to an existing record.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, jobID string, status Status, extra *Extra) error {
	if extra == nil {
		extra = &Extra{}
	}
	details, err := encodeDetails(extra.OutputGroupDetails)
	if err != nil {
		return err
	}
	priors := AllowedPriors(status)
	args := []any{
		string(status),
		Timestamp(s.now()),
		details,
		nullableInt(extra.ErrorCode),
		nullableString(extra.ErrorMessage),
		PartitionJobs,
		JobKey(jobID),
	}
	for _, prior := range priors {
		args = append(args, string(prior))
	}
	res, err := s.execWithRetry(ctx,
		`UPDATE job_records
         SET status = ?, updated_at = ?,
             output_group_details = COALESCE(?, output_group_details),
             error_code = COALESCE(?, error_code),
             error_message = COALESCE(?, error_message)
         WHERE pk = ? AND sk = ? AND status IN (`+makePlaceholders(len(priors))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected > 0 {
		return nil
	}

	var current string
	err = s.db.QueryRowContext(ctx,
		`SELECT status FROM job_records WHERE pk = ? AND sk = ?`,
		PartitionJobs, JobKey(jobID),
	).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("read job %s: %w", jobID, err)
	}
	return fmt.Errorf("%w: %s is %s, refusing %s", ErrStaleTransition, jobID, current, status)
}

// GetJob fetches a record by job id; it returns nil when absent.
func (s *SQLiteStore) GetJob(ctx context.Context, jobID string) (*Record, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM job_records WHERE pk = ? AND sk = ?`,
		PartitionJobs, JobKey(jobID),
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return record, nil
}

// ListJobs returns every record ordered by sort key.
func (s *SQLiteStore) ListJobs(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM job_records
         WHERE pk = ? AND substr(sk, 1, length(?)) = ?
         ORDER BY sk`,
		PartitionJobs, PrefixJob, PrefixJob,
	)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	records := make([]Record, 0)
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job: %w", err)
		}
		records = append(records, *record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate jobs: %w", err)
	}
	return records, nil
}

// FindByFilename returns the first record ordered by filename whose filename
// starts with prefix, or nil.
func (s *SQLiteStore) FindByFilename(ctx context.Context, prefix string) (*Record, error) {
	key := FilenameKey(prefix)
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM job_records
         WHERE pk = ? AND substr(filename, 1, length(?)) = ?
         ORDER BY filename, sk
         LIMIT 1`,
		PartitionJobs, key, key,
	)
	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find filename %s: %w", prefix, err)
	}
	return record, nil
}
