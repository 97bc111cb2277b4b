package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/aws/smithy-go"
	"github.com/google/uuid"

	"github.com/tendant/simple-vod/internal/delivery"
	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/metrics"
	"github.com/tendant/simple-vod/internal/signer"
	"github.com/tendant/simple-vod/internal/transcode"
	"github.com/tendant/simple-vod/pkg/schema"
)

// ErrInvalidNotification marks a payload that cannot be decoded or lacks
// required fields.
var ErrInvalidNotification = errors.New("invalid notification")

// ErrUnrecognizedStatus is returned for job states the handler does not track.
var ErrUnrecognizedStatus = errors.New("unrecognized job status")

// EventSink receives a JobEvent after every successful write.
type EventSink interface {
	PublishJobEvent(ctx context.Context, event schema.JobEvent) error
}

// DeadLetterSink receives notifications dropped after a retryable failure.
type DeadLetterSink interface {
	PublishDeadLetter(ctx context.Context, letter schema.DeadLetter) error
}

var permanentCodes = map[string]bool{
	"BadRequestException":         true,
	"ValidationException":         true,
	"AccessDeniedException":       true,
	"ForbiddenException":          true,
	"NotFoundException":           true,
	"ResourceNotFoundException":   true,
	"ConflictException":           true,
	"UnrecognizedClientException": true,
}

// Classify decides whether a failure could succeed on redelivery.
func Classify(err error) schema.FailureType {
	if err == nil {
		return ""
	}

	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.Is(err, ErrInvalidNotification),
		errors.As(err, &syntaxErr),
		errors.As(err, &typeErr):
		return schema.FailureTypeValidation
	case errors.Is(err, jobs.ErrAlreadyExists),
		errors.Is(err, jobs.ErrNotFound),
		errors.Is(err, jobs.ErrStaleTransition),
		errors.Is(err, delivery.ErrUnsupportedFormat),
		errors.Is(err, signer.ErrSigning),
		errors.Is(err, ErrUnrecognizedStatus):
		return schema.FailureTypePermanent
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return schema.FailureTypeRetryable
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		if permanentCodes[apiErr.ErrorCode()] {
			return schema.FailureTypePermanent
		}
		return schema.FailureTypeRetryable
	}

	if errors.Is(err, transcode.ErrService) {
		return schema.FailureTypeRetryable
	}

	// Unknown failures are assumed transient.
	return schema.FailureTypeRetryable
}

// failureReporter logs a dropped notification and forwards retryable ones to
// the dead-letter sink.
type failureReporter struct {
	logger      *slog.Logger
	deadLetters DeadLetterSink
	metrics     *metrics.Recorder
	now         func() time.Time
}

func (r failureReporter) report(ctx context.Context, trigger, jobID string, payload any, err error) schema.FailureType {
	failureType := Classify(err)
	logger := r.logger.With("trigger", trigger, "failure_type", failureType, "err", err)
	if jobID != "" {
		logger = logger.With("job_id", jobID)
	}

	if failureType != schema.FailureTypeRetryable {
		logger.Warn("notification dropped")
		return failureType
	}
	logger.Error("notification failed")

	if r.deadLetters == nil {
		return failureType
	}
	letter := schema.DeadLetter{
		ID:          uuid.NewString(),
		Trigger:     trigger,
		JobID:       jobID,
		Error:       err.Error(),
		FailureType: failureType,
		HappenedAt:  r.now().Unix(),
	}
	if payload != nil {
		if raw, marshalErr := json.Marshal(payload); marshalErr == nil {
			letter.Payload = raw
		}
	}
	if pubErr := r.deadLetters.PublishDeadLetter(ctx, letter); pubErr != nil {
		logger.Error("publish dead letter failed", "publish_err", pubErr)
		return failureType
	}
	r.metrics.DeadLetter(string(failureType))
	return failureType
}
