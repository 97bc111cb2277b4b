// cmd/lambda/main.go
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/tendant/simple-vod/internal/app"
	"github.com/tendant/simple-vod/internal/config"
	"github.com/tendant/simple-vod/internal/logging"
)

func main() {
	cfg, err := config.Load(os.Getenv("VOD_CONFIG"))
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}
	format := cfg.Logging.Format
	if os.Getenv("LOG_FORMAT") == "" {
		format = "json"
	}
	logger := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: format})

	if err := cfg.ValidatePipeline(); err != nil {
		fatal(logger, "validate config", err)
	}

	pipeline, err := app.New(context.Background(), cfg, logger, app.Options{})
	if err != nil {
		fatal(logger, "build pipeline", err)
	}
	logger.Info("lambda ready", "store", cfg.Store.Backend, "output_bucket", cfg.Storage.OutputBucket)

	lambda.Start(pipeline.Router.Handle)
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
