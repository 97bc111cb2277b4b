package config

import (
	"errors"
	"fmt"
	"strings"
)

// ValidateStore checks the job record backend settings.
func (c *Config) ValidateStore() error {
	switch c.Store.Backend {
	case "dynamodb":
		if c.Store.Table == "" {
			return errors.New("store.table is required for the dynamodb backend (JOBS_TABLE_NAME)")
		}
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return errors.New("store.sqlite_path is required for the sqlite backend (JOBS_SQLITE_PATH)")
		}
	case "postgres":
		if c.Store.PostgresDSN == "" {
			return errors.New("store.postgres_dsn is required for the postgres backend (DATABASE_URL)")
		}
	default:
		return fmt.Errorf("store.backend must be dynamodb, sqlite or postgres (got %q)", c.Store.Backend)
	}
	return nil
}

// ValidatePipeline checks everything needed to submit jobs and track them.
func (c *Config) ValidatePipeline() error {
	if err := c.ValidateStore(); err != nil {
		return err
	}
	var missing []string
	if c.Storage.OutputBucket == "" {
		missing = append(missing, "storage.output_bucket (OUTPUT_BUCKET_NAME)")
	}
	if c.Transcode.RoleARN == "" {
		missing = append(missing, "transcode.role_arn (MEDIA_CONVERT_ROLE_ARN)")
	}
	if c.CDN.Domain == "" {
		missing = append(missing, "cdn.domain (CLOUDFRONT_DOMAIN)")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %s", strings.Join(missing, ", "))
	}
	return nil
}

// ValidateSigning checks the signed cookie settings.
func (c *Config) ValidateSigning() error {
	if c.CDN.Domain == "" {
		return errors.New("cdn.domain is required (CLOUDFRONT_DOMAIN)")
	}
	if c.CDN.KeyID == "" {
		return errors.New("cdn.key_id is required (CLOUDFRONT_KEY_ID)")
	}
	if !c.SigningConfigured() {
		return errors.New("one of cdn.private_key, cdn.private_key_path or cdn.private_key_secret is required")
	}
	return nil
}

// ValidateBus checks the NATS settings.
func (c *Config) ValidateBus() error {
	if c.NATS.URL == "" {
		return errors.New("nats.url is required (NATS_URL)")
	}
	if c.NATS.Subject == "" {
		return errors.New("nats.subject is required (VOD_EVENTS_SUBJECT)")
	}
	return nil
}
