// Package app assembles the pipeline components from configuration.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/tendant/simple-vod/internal/api"
	"github.com/tendant/simple-vod/internal/bus"
	"github.com/tendant/simple-vod/internal/config"
	"github.com/tendant/simple-vod/internal/delivery"
	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/metrics"
	"github.com/tendant/simple-vod/internal/router"
	"github.com/tendant/simple-vod/internal/secrets"
	"github.com/tendant/simple-vod/internal/signer"
	"github.com/tendant/simple-vod/internal/transcode"
	"github.com/tendant/simple-vod/internal/upload"
	"github.com/tendant/simple-vod/internal/workflow"
)

// App holds the wired components of one process.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	AWS       aws.Config
	Store     jobs.Store
	Metrics   *metrics.Recorder
	Bus       *bus.Client
	Signer    *signer.Signer
	Submitter *workflow.Submitter
	Status    *workflow.StatusHandler
	API       *api.Service
	Router    *router.Router
}

// Options tunes New.
type Options struct {
	// Bus, when set, receives job events and dead letters.
	Bus *bus.Client
	// Metrics defaults to a fresh recorder.
	Metrics *metrics.Recorder
}

// LoadAWS resolves credentials and region through the default chain. A
// configured endpoint overrides every service endpoint.
func LoadAWS(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if cfg.AWS.Region != "" {
		opts = append(opts, awsconfig.WithRegion(cfg.AWS.Region))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.AWS.Endpoint != "" {
		awsCfg.BaseEndpoint = aws.String(cfg.AWS.Endpoint)
	}
	return awsCfg, nil
}

// OpenStore opens the configured job record backend.
func OpenStore(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (jobs.Store, error) {
	opts := jobs.Options{
		Backend:     cfg.Store.Backend,
		Table:       cfg.Store.Table,
		SQLitePath:  cfg.Store.SQLitePath,
		PostgresDSN: cfg.Store.PostgresDSN,
	}
	if opts.Backend == "" || opts.Backend == jobs.BackendDynamoDB {
		opts.Dynamo = dynamodb.NewFromConfig(awsCfg)
	}
	store, err := jobs.Open(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("open %s store: %w", cfg.Store.Backend, err)
	}
	return store, nil
}

// NewSigner builds the cookie signer. It returns nil without error when no
// key is configured.
func NewSigner(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (*signer.Signer, error) {
	if cfg.CDN.KeyID == "" || !cfg.SigningConfigured() {
		return nil, nil
	}
	var loader *secrets.Loader
	if cfg.CDN.PrivateKeySecret != "" {
		loader = secrets.NewLoader(secretsmanager.NewFromConfig(awsCfg))
	}
	pem, err := secrets.PrivateKeyFrom(ctx, loader, cfg.CDN.PrivateKey, cfg.CDN.PrivateKeyPath, cfg.CDN.PrivateKeySecret)
	if err != nil {
		return nil, err
	}
	return signer.New(cfg.CDN.KeyID, pem)
}

// NewUploader returns an S3 client for vodctl.
func NewUploader(awsCfg aws.Config) *upload.Client {
	return upload.NewClient(s3.NewFromConfig(awsCfg))
}

// New wires the store, transcoder, signer and handlers described by cfg.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	awsCfg, err := LoadAWS(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return NewWithAWS(ctx, cfg, awsCfg, logger, opts)
}

// NewWithAWS is New with a preloaded AWS configuration.
func NewWithAWS(ctx context.Context, cfg *config.Config, awsCfg aws.Config, logger *slog.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	rec := opts.Metrics
	if rec == nil {
		rec = metrics.New()
	}

	template, err := transcode.LoadTemplate(cfg.Transcode.SettingsPath)
	if err != nil {
		return nil, err
	}

	sign, err := NewSigner(ctx, cfg, awsCfg)
	switch {
	case err != nil:
		logger.Error("cloudfront key unusable, /signed-cookies will answer 500", "key_id", cfg.CDN.KeyID, "err", err)
		sign = signer.Failed(cfg.CDN.KeyID, err)
	case sign == nil:
		logger.Warn("cloudfront signing disabled, /signed-cookies will answer 503")
	}

	store, err := OpenStore(ctx, cfg, awsCfg)
	if err != nil {
		return nil, err
	}

	deps := workflow.Deps{Metrics: rec, Logger: logger}
	if opts.Bus != nil {
		sink := bus.NewSink(opts.Bus, cfg.NATS.JobEventSubject, cfg.NATS.DeadLetterSubject)
		deps.Events = sink
		deps.DeadLetters = sink
	}

	transcoder := transcode.NewMediaConvert(awsCfg, cfg.AWS.MediaConvertEndpoint)
	submitter := workflow.NewSubmitter(workflow.SubmitConfig{
		OutputBucket: cfg.Storage.OutputBucket,
		TemplateARN:  cfg.Transcode.JobTemplateARN,
		RoleARN:      cfg.Transcode.RoleARN,
		QueueName:    cfg.Transcode.QueueName,
	}, transcoder, store, template, deps)
	status := workflow.NewStatusHandler(store, &delivery.Rewriter{
		Bucket:    cfg.Storage.OutputBucket,
		CDNDomain: cfg.CDN.Domain,
	}, deps)
	svc := api.NewService(store, sign, cfg.CDN.Domain, rec)

	return &App{
		Config:    cfg,
		Logger:    logger,
		AWS:       awsCfg,
		Store:     store,
		Metrics:   rec,
		Bus:       opts.Bus,
		Signer:    sign,
		Submitter: submitter,
		Status:    status,
		API:       svc,
		Router:    router.New(svc, submitter, status, rec, logger),
	}, nil
}

// Close releases the store. The bus belongs to the caller.
func (a *App) Close() error {
	if a == nil || a.Store == nil {
		return nil
	}
	return a.Store.Close()
}
