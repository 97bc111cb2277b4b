package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/tendant/simple-vod/internal/jobs"
	"github.com/tendant/simple-vod/internal/metrics"
	"github.com/tendant/simple-vod/internal/transcode"
	"github.com/tendant/simple-vod/pkg/schema"
)

// TriggerObjectCreated names object-created notifications in logs and dead letters.
const TriggerObjectCreated = "object_created"

// SubmitConfig carries the submission settings.
type SubmitConfig struct {
	OutputBucket string
	TemplateARN  string
	RoleARN      string
	QueueName    string
}

// Submitter turns object-created notifications into transcoding jobs.
type Submitter struct {
	cfg        SubmitConfig
	transcoder transcode.Client
	store      jobs.Store
	template   *transcode.Template
	events     EventSink
	metrics    *metrics.Recorder
	logger     *slog.Logger
	failures   failureReporter
	now        func() time.Time
}

// Deps holds the optional collaborators shared by the handlers.
type Deps struct {
	Events      EventSink
	DeadLetters DeadLetterSink
	Metrics     *metrics.Recorder
	Logger      *slog.Logger
	Now         func() time.Time
}

func (d Deps) withDefaults() Deps {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return d
}

func (d Deps) reporter(logger *slog.Logger) failureReporter {
	return failureReporter{logger: logger, deadLetters: d.DeadLetters, metrics: d.Metrics, now: d.Now}
}

// NewSubmitter wires a Submitter. A nil template selects the built-in one.
func NewSubmitter(cfg SubmitConfig, transcoder transcode.Client, store jobs.Store, template *transcode.Template, deps Deps) *Submitter {
	deps = deps.withDefaults()
	if template == nil {
		template = transcode.DefaultTemplate()
	}
	if cfg.QueueName == "" {
		cfg.QueueName = "Default"
	}
	logger := deps.Logger.With("component", "submitter")
	return &Submitter{
		cfg:        cfg,
		transcoder: transcoder,
		store:      store,
		template:   template,
		events:     deps.Events,
		metrics:    deps.Metrics,
		logger:     logger,
		failures:   deps.reporter(logger),
		now:        deps.Now,
	}
}

// HandlePayload decodes a raw SNS delivery and processes it. Payloads that
// do not decode are dropped through the failure reporter.
func (s *Submitter) HandlePayload(ctx context.Context, payload json.RawMessage) {
	var event events.SNSEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		s.failures.report(ctx, TriggerObjectCreated, "", payload, fmt.Errorf("%w: decode sns event: %w", ErrInvalidNotification, err))
		return
	}
	s.HandleNotification(ctx, event)
}

// HandleNotification processes every record of an SNS delivery. Failures are
// logged and never returned.
func (s *Submitter) HandleNotification(ctx context.Context, event events.SNSEvent) {
	for _, record := range event.Records {
		var message events.S3Event
		if err := json.Unmarshal([]byte(record.SNS.Message), &message); err != nil {
			s.failures.report(ctx, TriggerObjectCreated, "", record.SNS, fmt.Errorf("%w: decode s3 message: %w", ErrInvalidNotification, err))
			continue
		}
		s.HandleS3Event(ctx, message)
	}
}

// HandleS3Event submits one job per object-created record.
func (s *Submitter) HandleS3Event(ctx context.Context, message events.S3Event) {
	if len(message.Records) == 0 {
		s.logger.Warn("s3 message without records")
		return
	}
	for _, record := range message.Records {
		if record.EventSource != schema.EventSourceS3 {
			s.logger.Warn("unknown event source", "event_source", record.EventSource)
			continue
		}
		s.metrics.Notification("s3")
		s.HandleObjectCreated(ctx, record.S3.Bucket.Name, record.S3.Object.Key)
	}
}

// HandleObjectCreated submits a job for bucket/rawKey and returns the stored
// record, or nil when the submission was dropped.
func (s *Submitter) HandleObjectCreated(ctx context.Context, bucket, rawKey string) *jobs.Record {
	record, err := s.Submit(ctx, bucket, rawKey)
	if err != nil {
		jobID := ""
		if record != nil {
			jobID = record.JobID
		}
		s.metrics.Submission(metrics.OutcomeFailed)
		s.failures.report(ctx, TriggerObjectCreated, jobID, map[string]string{"bucket": bucket, "key": rawKey}, err)
		return nil
	}
	s.metrics.Submission(metrics.OutcomeOK)
	return record
}

// SourceKey undoes the colon escaping S3 applies to object keys.
func SourceKey(rawKey string) string {
	return strings.ReplaceAll(rawKey, "%3A", ":")
}

// Stem returns the key up to its first dot.
func Stem(key string) string {
	stem, _, _ := strings.Cut(key, ".")
	return stem
}

// Submit runs the submission steps and returns the first error. When the job
// was accepted by the transcoder but could not be persisted, the returned
// record carries the job id alongside the error.
func (s *Submitter) Submit(ctx context.Context, bucket, rawKey string) (*jobs.Record, error) {
	if bucket == "" || rawKey == "" {
		return nil, fmt.Errorf("%w: bucket and key required", ErrInvalidNotification)
	}
	key := SourceKey(rawKey)
	stem := Stem(key)
	logger := s.logger.With("bucket", bucket, "key", key)
	logger.Info("object created")

	queueARN, err := s.transcoder.QueueARN(ctx, s.cfg.QueueName)
	if err != nil {
		logger.Warn("queue lookup failed, submitting without queue", "queue", s.cfg.QueueName, "err", err)
		queueARN = ""
	}

	settings, err := s.template.Settings()
	if err != nil {
		return nil, err
	}
	if err := settings.SetDestination(fmt.Sprintf("s3://%s/%s/", s.cfg.OutputBucket, stem)); err != nil {
		return nil, err
	}
	if err := settings.SetFileInput(fmt.Sprintf("s3://%s/%s", bucket, key)); err != nil {
		return nil, err
	}

	job, err := s.transcoder.CreateJob(ctx, transcode.JobRequest{
		TemplateARN:  s.cfg.TemplateARN,
		QueueARN:     queueARN,
		RoleARN:      s.cfg.RoleARN,
		Settings:     settings,
		UserMetadata: map[string]string{},
	})
	if err != nil {
		return nil, err
	}
	logger = logger.With("job_id", job.ID)
	logger.Info("job submitted", "status", job.Status, "queue", queueARN)

	status, ok := jobs.LookupStatus(job.Status)
	if !ok {
		logger.Warn("transcoder returned unknown status, recording SUBMITTED", "status", job.Status)
		status = jobs.StatusSubmitted
	}
	record := jobs.NewRecord(job.ID, status, bucket, key, s.cfg.OutputBucket, stem, s.now())
	if err := s.store.CreateJob(ctx, record); err != nil {
		return record, err
	}
	logger.Info("job recorded", "filename", record.Filename)

	s.publish(ctx, schema.JobEvent{
		ID:           uuid.NewString(),
		JobID:        record.JobID,
		Stage:        schema.StageSubmitted,
		Status:       string(record.Status),
		Filename:     record.Name(),
		SourceBucket: bucket,
		SourcePath:   key,
		HappenedAt:   s.now().Unix(),
	})
	return record, nil
}

func (s *Submitter) publish(ctx context.Context, event schema.JobEvent) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishJobEvent(ctx, event); err != nil {
		s.logger.Error("publish job event failed", "job_id", event.JobID, "stage", event.Stage, "err", err)
	}
}
