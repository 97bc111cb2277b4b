package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"

	"github.com/tendant/simple-vod/internal/app"
	"github.com/tendant/simple-vod/internal/bus"
	"github.com/tendant/simple-vod/internal/config"
	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/logging"
	"github.com/tendant/simple-vod/internal/upload"
)

// publisher sends documents onto the bus.
type publisher interface {
	PublishJSON(subject string, v any) error
	Close()
}

// objectStore is the part of the S3 client the commands use.
type objectStore interface {
	UploadFile(ctx context.Context, bucket, localPath string, opts upload.UploadOptions) (*upload.UploadResult, error)
	ListObjects(ctx context.Context, bucket, prefix string, limit int) ([]upload.Object, error)
}

type commandContext struct {
	configPath string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	awsOnce sync.Once
	aws     aws.Config
	awsErr  error

	now          func() time.Time
	loadAWS      func(ctx context.Context, cfg *config.Config) (aws.Config, error)
	openStore    func(ctx context.Context, cfg *config.Config, awsCfg aws.Config) (jobs.Store, error)
	dialBus      func(cfg *config.Config) (publisher, error)
	objectStores func(awsCfg aws.Config) objectStore
}

func newCommandContext() *commandContext {
	return &commandContext{
		now:       time.Now,
		loadAWS:   app.LoadAWS,
		openStore: app.OpenStore,
		dialBus: func(cfg *config.Config) (publisher, error) {
			if err := cfg.ValidateBus(); err != nil {
				return nil, err
			}
			client, err := bus.Connect(cfg.NATS.URL)
			if err != nil {
				return nil, fmt.Errorf("connect to NATS %s: %w", cfg.NATS.URL, err)
			}
			return client, nil
		},
		objectStores: func(awsCfg aws.Config) objectStore {
			return app.NewUploader(awsCfg)
		},
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		c.config, c.configErr = config.Load(strings.TrimSpace(c.configPath))
	})
	return c.config, c.configErr
}

func (c *commandContext) awsConfig(ctx context.Context) (aws.Config, error) {
	c.awsOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.awsErr = err
			return
		}
		c.aws, c.awsErr = c.loadAWS(ctx, cfg)
	})
	return c.aws, c.awsErr
}

func (c *commandContext) logger() *slog.Logger {
	cfg, err := c.ensureConfig()
	if err != nil {
		return slog.Default()
	}
	return logging.New(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Writer: os.Stderr})
}

func (c *commandContext) withStore(ctx context.Context, fn func(*config.Config, jobs.Store) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	if err := cfg.ValidateStore(); err != nil {
		return err
	}
	var awsCfg aws.Config
	if cfg.Store.Backend == jobs.BackendDynamoDB {
		if awsCfg, err = c.awsConfig(ctx); err != nil {
			return err
		}
	}
	store, err := c.openStore(ctx, cfg, awsCfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(cfg, store)
}

func (c *commandContext) withBus(fn func(*config.Config, publisher) error) error {
	cfg, err := c.ensureConfig()
	if err != nil {
		return err
	}
	pub, err := c.dialBus(cfg)
	if err != nil {
		return err
	}
	defer pub.Close()
	return fn(cfg, pub)
}

func (c *commandContext) objects(ctx context.Context) (objectStore, error) {
	awsCfg, err := c.awsConfig(ctx)
	if err != nil {
		return nil, err
	}
	return c.objectStores(awsCfg), nil
}
