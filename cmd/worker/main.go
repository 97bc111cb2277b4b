// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-vod/internal/api"
	"github.com/tendant/simple-vod/internal/app"
	"github.com/tendant/simple-vod/internal/bus"
	"github.com/tendant/simple-vod/internal/config"
	"github.com/tendant/simple-vod/internal/logging"
)

const shutdownTimeout = 15 * time.Second

// eventHandler is the part of the router the subscription needs.
type eventHandler interface {
	Handle(ctx context.Context, payload json.RawMessage) (any, error)
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load(getenv("VOD_CONFIG", ""))
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}
	logger := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if err := cfg.ValidatePipeline(); err != nil {
		fatal(logger, "validate config", err)
	}
	if err := cfg.ValidateBus(); err != nil {
		fatal(logger, "validate config", err)
	}
	logger.Info("worker starting",
		"nats_url", cfg.NATS.URL,
		"subject", cfg.NATS.Subject,
		"queue", cfg.NATS.Queue,
		"store", cfg.Store.Backend,
		"output_bucket", cfg.Storage.OutputBucket,
		"http_bind", cfg.HTTP.Bind,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	nc, err := bus.Connect(cfg.NATS.URL)
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATS.URL)
	}
	logger.Info("connected to NATS", "nats_url", cfg.NATS.URL)

	pipeline, err := app.New(ctx, cfg, logger, app.Options{Bus: nc})
	if err != nil {
		nc.Close()
		fatal(logger, "build pipeline", err)
	}

	_, err = nc.QueueSubscribeJSON(cfg.NATS.Subject, cfg.NATS.Queue, func(msgCtx context.Context, data []byte) {
		handleMessage(msgCtx, pipeline.Router, logger, data)
	})
	if err == nil {
		err = nc.Flush()
	}
	if err != nil {
		nc.Close()
		_ = pipeline.Close()
		fatal(logger, "subscribe worker", err, "subject", cfg.NATS.Subject, "queue", cfg.NATS.Queue)
	}
	logger.Info("listening for events", "subject", cfg.NATS.Subject, "queue", cfg.NATS.Queue)

	srv := newServer(cfg.HTTP.Bind, api.NewHandler(pipeline.API, pipeline.Metrics, logger))
	go func() {
		logger.Info("http listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http shutdown", "err", err)
	}
	shutdown(logger, nc, pipeline)
}

// drainer stops delivering messages and returns once in-flight handlers finish.
type drainer interface {
	Close()
}

// shutdown drains event intake, then closes the store.
func shutdown(logger *slog.Logger, intake drainer, store io.Closer) {
	intake.Close()
	logger.Info("event intake drained")
	if err := store.Close(); err != nil {
		logger.Error("close store", "err", err)
	}
}

// handleMessage feeds one bus message to the router. Errors are logged; the
// message is never redelivered.
func handleMessage(ctx context.Context, h eventHandler, logger *slog.Logger, data []byte) {
	if _, err := h.Handle(ctx, json.RawMessage(data)); err != nil {
		logger.Error("handle event", "err", err, "bytes", len(data))
	}
}

func newServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       2 * time.Minute,
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
