package workflow

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-lambda-go/events"
	"github.com/google/uuid"

	"github.com/tendant/simple-vod/pkg/schema"
)

// ObjectCreatedNotification builds the SNS envelope S3 would deliver for an
// upload of bucket/key. Colons in key are escaped the way S3 escapes them.
func ObjectCreatedNotification(bucket, key string, now time.Time) (events.SNSEvent, error) {
	message := events.S3Event{Records: []events.S3EventRecord{{
		EventVersion: "2.1",
		EventSource:  schema.EventSourceS3,
		EventTime:    now.UTC(),
		EventName:    "ObjectCreated:Put",
		S3: events.S3Entity{
			SchemaVersion: "1.0",
			Bucket: events.S3Bucket{
				Name: bucket,
				Arn:  "arn:aws:s3:::" + bucket,
			},
			Object: events.S3Object{Key: strings.ReplaceAll(key, ":", "%3A")},
		},
	}}}
	body, err := json.Marshal(message)
	if err != nil {
		return events.SNSEvent{}, fmt.Errorf("encode s3 message: %w", err)
	}
	return events.SNSEvent{Records: []events.SNSEventRecord{{
		EventVersion: "1.0",
		EventSource:  "aws:sns",
		SNS: events.SNSEntity{
			Type:      "Notification",
			MessageID: uuid.NewString(),
			Subject:   "Amazon S3 Notification",
			Message:   string(body),
			Timestamp: now.UTC(),
		},
	}}}, nil
}

// StateChangeEvent wraps change in the EventBridge envelope MediaConvert uses.
func StateChangeEvent(change schema.JobStateChange, now time.Time) (events.CloudWatchEvent, error) {
	if change.Timestamp == 0 {
		change.Timestamp = now.UnixMilli()
	}
	detail, err := json.Marshal(change)
	if err != nil {
		return events.CloudWatchEvent{}, fmt.Errorf("encode state change: %w", err)
	}
	return events.CloudWatchEvent{
		Version:    "0",
		ID:         uuid.NewString(),
		DetailType: schema.DetailTypeJobStateChange,
		Source:     schema.SourceMediaConvert,
		AccountID:  change.AccountID,
		Time:       now.UTC(),
		Detail:     detail,
	}, nil
}
