package jobs

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema_postgres.sql
var postgresSchema string

// PostgresStore persists job records in a Postgres table so several workers
// can share job state.
type PostgresStore struct {
	pool *pgxpool.Pool
	now  func() time.Time
}

// OpenPostgres opens a pool for dsn and ensures the job table exists.
func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	store := &PostgresStore{pool: pool, now: time.Now}
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

// EnsureSchema creates the job table and filename index when missing.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresSchema); err != nil {
		return fmt.Errorf("apply postgres schema: %w", err)
	}
	return nil
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CreateJob(ctx context.Context, record *Record) error {
	if record == nil || strings.TrimSpace(record.JobID) == "" {
		return fmt.Errorf("create job: job id required")
	}
	record.PK = PartitionJobs
	record.SK = JobKey(record.JobID)
	details, err := encodeDetails(record.OutputGroupDetails)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO job_records (`+recordColumns+`)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11::jsonb, $12, $13)
ON CONFLICT (pk, sk) DO NOTHING
`,
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
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrAlreadyExists, record.JobID)
	}
	return nil
}

func (s *PostgresStore) UpdateStatus(ctx context.Context, jobID string, status Status, extra *Extra) error {
	if extra == nil {
		extra = &Extra{}
	}
	details, err := encodeDetails(extra.OutputGroupDetails)
	if err != nil {
		return err
	}
	priors := AllowedPriors(status)
	priorValues := make([]string, 0, len(priors))
	for _, prior := range priors {
		priorValues = append(priorValues, string(prior))
	}
	tag, err := s.pool.Exec(ctx, `
UPDATE job_records
SET status = $1,
    updated_at = $2,
    output_group_details = COALESCE($3::jsonb, output_group_details),
    error_code = COALESCE($4, error_code),
    error_message = COALESCE($5, error_message)
WHERE pk = $6 AND sk = $7 AND status = ANY($8)
`,
		string(status),
		Timestamp(s.now()),
		details,
		nullableInt(extra.ErrorCode),
		nullableString(extra.ErrorMessage),
		PartitionJobs,
		JobKey(jobID),
		priorValues,
	)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var current string
	err = s.pool.QueryRow(ctx,
		`SELECT status FROM job_records WHERE pk = $1 AND sk = $2`,
		PartitionJobs, JobKey(jobID),
	).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	if err != nil {
		return fmt.Errorf("read job %s: %w", jobID, err)
	}
	return fmt.Errorf("%w: %s is %s, refusing %s", ErrStaleTransition, jobID, current, status)
}

func (s *PostgresStore) GetJob(ctx context.Context, jobID string) (*Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM job_records WHERE pk = $1 AND sk = $2`,
		PartitionJobs, JobKey(jobID),
	)
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return record, nil
}

func (s *PostgresStore) ListJobs(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `
SELECT `+recordColumns+`
FROM job_records
WHERE pk = $1 AND left(sk, length($2)) = $2
ORDER BY sk
`, PartitionJobs, PrefixJob)
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

func (s *PostgresStore) FindByFilename(ctx context.Context, prefix string) (*Record, error) {
	row := s.pool.QueryRow(ctx, `
SELECT `+recordColumns+`
FROM job_records
WHERE pk = $1 AND left(filename, length($2)) = $2
ORDER BY filename, sk
LIMIT 1
`, PartitionJobs, FilenameKey(prefix))
	record, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find filename %s: %w", prefix, err)
	}
	return record, nil
}
