package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/tendant/simple-vod/pkg/schema"
)

const recordColumns = `pk, sk, job_id, status, src_bucket, src_path, dest_bucket,
    filename, created_at, updated_at, output_group_details, error_code, error_message`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(scanner rowScanner) (*Record, error) {
	var (
		record       Record
		status       string
		updatedAt    *string
		details      *string
		errorCode    *int64
		errorMessage *string
	)
	if err := scanner.Scan(
		&record.PK,
		&record.SK,
		&record.JobID,
		&status,
		&record.SrcBucket,
		&record.SrcPath,
		&record.DestBucket,
		&record.Filename,
		&record.CreatedAt,
		&updatedAt,
		&details,
		&errorCode,
		&errorMessage,
	); err != nil {
		return nil, err
	}
	record.Status = Status(status)
	if updatedAt != nil {
		record.UpdatedAt = *updatedAt
	}
	if details != nil && *details != "" {
		if err := json.Unmarshal([]byte(*details), &record.OutputGroupDetails); err != nil {
			return nil, fmt.Errorf("decode output group details: %w", err)
		}
	}
	if errorCode != nil {
		record.ErrorCode = int(*errorCode)
	}
	if errorMessage != nil {
		record.ErrorMessage = *errorMessage
	}
	return &record, nil
}

func encodeDetails(details []schema.OutputGroupDetail) (any, error) {
	if len(details) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("encode output group details: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableInt(value int) any {
	if value == 0 {
		return nil
	}
	return int64(value)
}

func makePlaceholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
