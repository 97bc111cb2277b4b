package config

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// SampleConfig returns a commented configuration template.
func SampleConfig() string { return sampleConfig }

// AWS contains client settings shared by every AWS service.
type AWS struct {
	Region string `toml:"region"`
	// Endpoint overrides every service endpoint, e.g. for LocalStack.
	Endpoint             string `toml:"endpoint"`
	MediaConvertEndpoint string `toml:"mediaconvert_endpoint"`
}

// Storage names the buckets media flows through.
type Storage struct {
	InputBucket  string `toml:"input_bucket"`
	InputPrefix  string `toml:"input_prefix"`
	OutputBucket string `toml:"output_bucket"`
}

// Transcode contains MediaConvert submission settings.
type Transcode struct {
	JobTemplateARN string `toml:"job_template_arn"`
	RoleARN        string `toml:"role_arn"`
	QueueName      string `toml:"queue_name"`
	SettingsPath   string `toml:"settings_path"`
}

// Store selects the job record backend.
type Store struct {
	Backend     string `toml:"backend"`
	Table       string `toml:"table"`
	SQLitePath  string `toml:"sqlite_path"`
	PostgresDSN string `toml:"postgres_dsn"`
}

// CDN contains CloudFront delivery and signing settings. The private key is
// taken from the first of PrivateKey, PrivateKeyPath and PrivateKeySecret
// that is set.
type CDN struct {
	Domain           string `toml:"domain"`
	KeyID            string `toml:"key_id"`
	PrivateKey       string `toml:"private_key"`
	PrivateKeyPath   string `toml:"private_key_path"`
	PrivateKeySecret string `toml:"private_key_secret"`
}

// NATS contains bus settings for the worker and vodctl.
type NATS struct {
	URL               string `toml:"url"`
	Subject           string `toml:"subject"`
	Queue             string `toml:"queue"`
	JobEventSubject   string `toml:"job_event_subject"`
	DeadLetterSubject string `toml:"dead_letter_subject"`
}

// HTTP contains the worker's API listener settings.
type HTTP struct {
	Bind string `toml:"bind"`
}

// Logging contains log output settings.
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config encapsulates all configuration values.
type Config struct {
	AWS       AWS       `toml:"aws"`
	Storage   Storage   `toml:"storage"`
	Transcode Transcode `toml:"transcode"`
	Store     Store     `toml:"store"`
	CDN       CDN       `toml:"cdn"`
	NATS      NATS      `toml:"nats"`
	HTTP      HTTP      `toml:"http"`
	Logging   Logging   `toml:"logging"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Transcode: Transcode{QueueName: "Default"},
		Store: Store{
			Backend:    "dynamodb",
			SQLitePath: "./data/jobs.db",
		},
		NATS: NATS{
			URL:               "nats://127.0.0.1:4222",
			Subject:           "vod.events",
			Queue:             "vod-workers",
			JobEventSubject:   "vod.jobs.events",
			DeadLetterSubject: "vod.events.deadletter",
		},
		HTTP:    HTTP{Bind: ":8080"},
		Logging: Logging{Level: "info", Format: "text"},
	}
}

// Load builds a configuration from the defaults, the optional TOML file at
// path, and then the environment. Environment values win.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		file, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()
	cfg.normalize()
	return &cfg, nil
}

func (c *Config) applyEnv() {
	override(&c.AWS.Region, "AWS_REGION")
	override(&c.AWS.Endpoint, "AWS_ENDPOINT_URL")
	override(&c.AWS.MediaConvertEndpoint, "MEDIA_CONVERT_ENDPOINT")

	override(&c.Storage.InputBucket, "INPUT_BUCKET_NAME")
	override(&c.Storage.InputPrefix, "INPUT_PREFIX")
	override(&c.Storage.OutputBucket, "OUTPUT_BUCKET_NAME")

	override(&c.Transcode.JobTemplateARN, "JOB_TEMPLATE_ARN")
	override(&c.Transcode.RoleARN, "MEDIA_CONVERT_ROLE_ARN")
	override(&c.Transcode.QueueName, "MEDIA_CONVERT_QUEUE")
	override(&c.Transcode.SettingsPath, "JOB_SETTINGS_PATH")

	override(&c.Store.Backend, "JOBS_STORE")
	override(&c.Store.Table, "JOBS_TABLE_NAME")
	override(&c.Store.SQLitePath, "JOBS_SQLITE_PATH")
	override(&c.Store.PostgresDSN, "DATABASE_URL")

	override(&c.CDN.Domain, "CLOUDFRONT_DOMAIN")
	override(&c.CDN.KeyID, "CLOUDFRONT_KEY_ID")
	override(&c.CDN.PrivateKey, "CLOUDFRONT_PRIVATE_KEY")
	override(&c.CDN.PrivateKeyPath, "CLOUDFRONT_PRIVATE_KEY_PATH")
	override(&c.CDN.PrivateKeySecret, "CLOUDFRONT_PRIVATE_KEY_SECRET")

	override(&c.NATS.URL, "NATS_URL")
	override(&c.NATS.Subject, "VOD_EVENTS_SUBJECT")
	override(&c.NATS.Queue, "VOD_WORKER_QUEUE")
	override(&c.NATS.JobEventSubject, "VOD_JOB_EVENTS_SUBJECT")
	override(&c.NATS.DeadLetterSubject, "VOD_DEADLETTER_SUBJECT")

	override(&c.HTTP.Bind, "HTTP_BIND")

	override(&c.Logging.Level, "LOG_LEVEL")
	override(&c.Logging.Format, "LOG_FORMAT")
}

func (c *Config) normalize() {
	c.Store.Backend = strings.ToLower(strings.TrimSpace(c.Store.Backend))
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	c.CDN.Domain = strings.TrimSuffix(strings.TrimPrefix(strings.TrimSpace(c.CDN.Domain), "https://"), "/")
	c.Storage.InputPrefix = strings.TrimPrefix(c.Storage.InputPrefix, "/")
	if c.Transcode.QueueName == "" {
		c.Transcode.QueueName = "Default"
	}
}

// SigningConfigured reports whether a key id and some key source are set.
func (c *Config) SigningConfigured() bool {
	return c.CDN.KeyID != "" && (c.CDN.PrivateKey != "" || c.CDN.PrivateKeyPath != "" || c.CDN.PrivateKeySecret != "")
}

func override(field *string, key string) {
	if v := getenv(key, ""); v != "" {
		*field = v
	}
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
