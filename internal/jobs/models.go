package jobs

import (
	"context"
	"strings"
	"time"

	"github.com/tendant/simple-vod/pkg/schema"
)

// Status represents the lifecycle state of a transcoding job as reported by
// MediaConvert.
type Status string

const (
	StatusSubmitted   Status = "SUBMITTED"
	StatusProgressing Status = "PROGRESSING"
	StatusComplete    Status = "COMPLETE"
	StatusCanceled    Status = "CANCELED"
	StatusError       Status = "ERROR"
)

var allStatuses = []Status{
	StatusSubmitted,
	StatusProgressing,
	StatusComplete,
	StatusCanceled,
	StatusError,
}

var statusRank = map[Status]int{
	StatusSubmitted:   0,
	StatusProgressing: 1,
	StatusComplete:    2,
	StatusCanceled:    2,
	StatusError:       2,
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// LookupStatus returns value as a Status only when it names one exactly.
func LookupStatus(value string) (Status, bool) {
	_, ok := statusRank[Status(value)]
	return Status(value), ok
}

// ParseStatus is LookupStatus after trimming and upper-casing value, for
// operator input.
func ParseStatus(value string) (Status, bool) {
	return LookupStatus(strings.ToUpper(strings.TrimSpace(value)))
}

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return statusRank[s] == 2
}

// CanTransition reports whether a record stored with status from may be
// moved to status to. Reapplying the stored status is always allowed so
// duplicate notifications stay idempotent; otherwise a terminal status is
// final and a status never moves to a lower rank.
func CanTransition(from, to Status) bool {
	if from == to {
		return true
	}
	fromRank, ok := statusRank[from]
	if !ok {
		return false
	}
	toRank, ok := statusRank[to]
	if !ok {
		return false
	}
	if from.Terminal() {
		return false
	}
	return fromRank <= toRank
}

// AllowedPriors lists the stored statuses from which an update to status may
// be applied.
func AllowedPriors(status Status) []Status {
	priors := make([]Status, 0, len(allStatuses))
	for _, candidate := range allStatuses {
		if CanTransition(candidate, status) {
			priors = append(priors, candidate)
		}
	}
	return priors
}

// Record is a persisted job.
type Record struct {
	PK                 string                     `json:"pk" dynamodbav:"pk"`
	SK                 string                     `json:"sk" dynamodbav:"sk"`
	JobID              string                     `json:"jobId" dynamodbav:"jobId"`
	Status             Status                     `json:"status" dynamodbav:"status"`
	SrcBucket          string                     `json:"srcBucket" dynamodbav:"srcBucket"`
	SrcPath            string                     `json:"srcPath" dynamodbav:"srcPath"`
	DestBucket         string                     `json:"destBucket" dynamodbav:"destBucket"`
	Filename           string                     `json:"filename" dynamodbav:"filename"`
	CreatedAt          string                     `json:"createdAt" dynamodbav:"createdAt"`
	UpdatedAt          string                     `json:"updatedAt,omitempty" dynamodbav:"updatedAt,omitempty"`
	OutputGroupDetails []schema.OutputGroupDetail `json:"outputGroupDetails,omitempty" dynamodbav:"outputGroupDetails,omitempty"`
	ErrorCode          int                        `json:"errorCode,omitempty" dynamodbav:"errorCode,omitempty"`
	ErrorMessage       string                     `json:"errorMessage,omitempty" dynamodbav:"errorMessage,omitempty"`
}

// NewRecord builds the initial record for a freshly submitted job.
func NewRecord(jobID string, status Status, srcBucket, srcPath, destBucket, name string, now time.Time) *Record {
	return &Record{
		PK:         PartitionJobs,
		SK:         JobKey(jobID),
		JobID:      jobID,
		Status:     status,
		SrcBucket:  srcBucket,
		SrcPath:    srcPath,
		DestBucket: destBucket,
		Filename:   FilenameKey(name),
		CreatedAt:  Timestamp(now),
	}
}

// Name returns the job name stem without the index prefix.
func (r Record) Name() string {
	return TrimFilenameKey(r.Filename)
}

// Extra carries the optional attributes merged by UpdateStatus.
type Extra struct {
	OutputGroupDetails []schema.OutputGroupDetail
	ErrorCode          int
	ErrorMessage       string
}

func (e *Extra) empty() bool {
	return e == nil || (len(e.OutputGroupDetails) == 0 && e.ErrorCode == 0 && e.ErrorMessage == "")
}

// Store is the persistence contract shared by every backend.
type Store interface {
	CreateJob(ctx context.Context, record *Record) error
	UpdateStatus(ctx context.Context, jobID string, status Status, extra *Extra) error
	GetJob(ctx context.Context, jobID string) (*Record, error)
	ListJobs(ctx context.Context) ([]Record, error)
	FindByFilename(ctx context.Context, prefix string) (*Record, error)
	Close() error
}

const timestampLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t the way the records store createdAt and updatedAt.
func Timestamp(t time.Time) string {
	return t.UTC().Format(timestampLayout)
}
