package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/tendant/simple-vod/internal/delivery"
	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/metrics"
	"github.com/tendant/simple-vod/pkg/schema"
)

// TriggerStateChange names transcoder status notifications.
const TriggerStateChange = "job_state_change"

// StatusHandler drives job records through their lifecycle.
type StatusHandler struct {
	store    jobs.Store
	rewriter *delivery.Rewriter
	events   EventSink
	metrics  *metrics.Recorder
	logger   *slog.Logger
	failures failureReporter
	now      func() time.Time
}

func NewStatusHandler(store jobs.Store, rewriter *delivery.Rewriter, deps Deps) *StatusHandler {
	deps = deps.withDefaults()
	logger := deps.Logger.With("component", "status_handler")
	return &StatusHandler{
		store:    store,
		rewriter: rewriter,
		events:   deps.Events,
		metrics:  deps.Metrics,
		logger:   logger,
		failures: deps.reporter(logger),
		now:      deps.Now,
	}
}

// HandlePayload decodes a raw EventBridge delivery and applies it. Payloads
// that do not decode are dropped through the failure reporter.
func (h *StatusHandler) HandlePayload(ctx context.Context, payload json.RawMessage) {
	var event events.CloudWatchEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		h.metrics.Notification("mediaconvert")
		h.failures.report(ctx, TriggerStateChange, "", payload, fmt.Errorf("%w: decode state change: %w", ErrInvalidNotification, err))
		return
	}
	h.HandleEvent(ctx, event)
}

// HandleEvent decodes an EventBridge envelope and applies its detail.
func (h *StatusHandler) HandleEvent(ctx context.Context, event events.CloudWatchEvent) {
	h.metrics.Notification("mediaconvert")
	var change schema.JobStateChange
	if err := json.Unmarshal(event.Detail, &change); err != nil {
		h.failures.report(ctx, TriggerStateChange, "", event, fmt.Errorf("%w: decode detail: %w", ErrInvalidNotification, err))
		return
	}
	h.HandleStateChange(ctx, change)
}

// HandleStateChange applies change and logs any failure instead of returning it.
func (h *StatusHandler) HandleStateChange(ctx context.Context, change schema.JobStateChange) {
	h.logger.Info("job state change", "job_id", change.JobID, "status", change.Status)
	label := statusLabel(change.Status)
	err := h.Apply(ctx, change)
	switch {
	case err == nil:
		h.metrics.Transition(label, metrics.OutcomeOK)
	case errors.Is(err, ErrUnrecognizedStatus):
		h.metrics.Transition(label, metrics.OutcomeSkipped)
		h.logger.Warn("unknown job status", "job_id", change.JobID, "status", change.Status)
	default:
		h.metrics.Transition(label, metrics.OutcomeFailed)
		h.failures.report(ctx, TriggerStateChange, change.JobID, change, err)
	}
}

// Apply performs the store update for change and returns its error.
func (h *StatusHandler) Apply(ctx context.Context, change schema.JobStateChange) error {
	if change.JobID == "" {
		return fmt.Errorf("%w: job id missing", ErrInvalidNotification)
	}
	status, _ := jobs.LookupStatus(change.Status)

	var extra *jobs.Extra
	switch status {
	case jobs.StatusProgressing, jobs.StatusCanceled:
	case jobs.StatusError:
		extra = &jobs.Extra{ErrorCode: change.ErrorCode, ErrorMessage: change.ErrorMessage}
	case jobs.StatusComplete:
		details, err := h.rewriter.Rewrite(change.OutputGroupDetails)
		if err != nil {
			return err
		}
		extra = &jobs.Extra{OutputGroupDetails: details}
	default:
		return fmt.Errorf("%w: %q", ErrUnrecognizedStatus, change.Status)
	}

	if err := h.store.UpdateStatus(ctx, change.JobID, status, extra); err != nil {
		return err
	}

	event := schema.JobEvent{
		ID:         uuid.NewString(),
		JobID:      change.JobID,
		Stage:      schema.StageTransitioned,
		Status:     string(status),
		HappenedAt: h.now().Unix(),
	}
	if extra != nil {
		event.OutputGroupDetails = extra.OutputGroupDetails
	}
	if h.events != nil {
		if err := h.events.PublishJobEvent(ctx, event); err != nil {
			h.logger.Error("publish job event failed", "job_id", change.JobID, "err", err)
		}
	}
	return nil
}

// statusLabel keeps metric labels to the known statuses.
func statusLabel(status string) string {
	if s, ok := jobs.LookupStatus(status); ok {
		return string(s)
	}
	return "unknown"
}
