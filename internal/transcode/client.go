// Package transcode submits jobs to AWS Elemental MediaConvert.
package transcode

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/mediaconvert"
)

// ErrService wraps failures returned by the transcoding service.
var ErrService = errors.New("transcoding service error")

// JobRequest describes a job submission.
type JobRequest struct {
	TemplateARN  string
	QueueARN     string
	RoleARN      string
	Settings     Settings
	UserMetadata map[string]string
}

// SubmittedJob is the service's answer to a submission.
type SubmittedJob struct {
	ID     string
	Status string
}

// Client is the transcoding service contract used by the workflow.
type Client interface {
	QueueARN(ctx context.Context, name string) (string, error)
	CreateJob(ctx context.Context, req JobRequest) (*SubmittedJob, error)
}

// MediaConvertAPI is the subset of the MediaConvert client in use.
type MediaConvertAPI interface {
	GetQueue(ctx context.Context, params *mediaconvert.GetQueueInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.GetQueueOutput, error)
	CreateJob(ctx context.Context, params *mediaconvert.CreateJobInput, optFns ...func(*mediaconvert.Options)) (*mediaconvert.CreateJobOutput, error)
}

// MediaConvert implements Client on the AWS SDK.
type MediaConvert struct {
	api MediaConvertAPI
}

// NewMediaConvert builds a client from an AWS config. endpoint overrides the
// regional endpoint when set.
func NewMediaConvert(cfg aws.Config, endpoint string) *MediaConvert {
	api := mediaconvert.NewFromConfig(cfg, func(o *mediaconvert.Options) {
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &MediaConvert{api: api}
}

// NewMediaConvertWithAPI wraps an existing API implementation.
func NewMediaConvertWithAPI(api MediaConvertAPI) *MediaConvert {
	return &MediaConvert{api: api}
}

func (m *MediaConvert) QueueARN(ctx context.Context, name string) (string, error) {
	out, err := m.api.GetQueue(ctx, &mediaconvert.GetQueueInput{Name: aws.String(name)})
	if err != nil {
		return "", fmt.Errorf("%w: get queue %s: %w", ErrService, name, err)
	}
	if out.Queue == nil || out.Queue.Arn == nil {
		return "", fmt.Errorf("%w: queue %s has no arn", ErrService, name)
	}
	return *out.Queue.Arn, nil
}

func (m *MediaConvert) CreateJob(ctx context.Context, req JobRequest) (*SubmittedJob, error) {
	settings, err := req.Settings.JobSettings()
	if err != nil {
		return nil, err
	}
	metadata := req.UserMetadata
	if metadata == nil {
		metadata = map[string]string{}
	}
	input := &mediaconvert.CreateJobInput{
		Role:         aws.String(req.RoleARN),
		Settings:     settings,
		UserMetadata: metadata,
	}
	if req.TemplateARN != "" {
		input.JobTemplate = aws.String(req.TemplateARN)
	}
	if req.QueueARN != "" {
		input.Queue = aws.String(req.QueueARN)
	}
	out, err := m.api.CreateJob(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("%w: create job: %w", ErrService, err)
	}
	if out.Job == nil || out.Job.Id == nil {
		return nil, fmt.Errorf("%w: create job returned no job id", ErrService)
	}
	return &SubmittedJob{ID: *out.Job.Id, Status: string(out.Job.Status)}, nil
}
