// pkg/schema/events.go
package schema

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

const (
	SourceMediaConvert       = "aws.mediaconvert"
	DetailTypeJobStateChange = "MediaConvert Job State Change"
	EventSourceS3            = "aws:s3"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// VideoDetails is reported by MediaConvert for every video output. Fields
// beyond the frame size are kept in Extra.
type VideoDetails struct {
	WidthInPx  int                        `json:"widthInPx"`
	HeightInPx int                        `json:"heightInPx"`
	Extra      map[string]json.RawMessage `json:"-"`
}

type videoDetailsFields VideoDetails

func (v VideoDetails) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(videoDetailsFields(v), v.Extra)
}

func (v *VideoDetails) UnmarshalJSON(data []byte) error {
	var fields videoDetailsFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := unmodelled(data, "widthInPx", "heightInPx")
	if err != nil {
		return err
	}
	fields.Extra = extra
	*v = VideoDetails(fields)
	return nil
}

// OutputDetail describes one rendition of an output group. Fields MediaConvert
// reports beyond the modelled ones are kept in Extra and written back out
// unchanged, both as JSON and as DynamoDB attributes.
type OutputDetail struct {
	OutputFilePaths []string                   `json:"outputFilePaths,omitempty"`
	DurationInMs    int64                      `json:"durationInMs,omitempty"`
	VideoDetails    *VideoDetails              `json:"videoDetails,omitempty"`
	Extra           map[string]json.RawMessage `json:"-"`
}

type outputDetailFields OutputDetail

func (d OutputDetail) MarshalJSON() ([]byte, error) {
	return marshalWithExtra(outputDetailFields(d), d.Extra)
}

func (d *OutputDetail) UnmarshalJSON(data []byte) error {
	var fields outputDetailFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	extra, err := unmodelled(data, "outputFilePaths", "durationInMs", "videoDetails")
	if err != nil {
		return err
	}
	fields.Extra = extra
	*d = OutputDetail(fields)
	return nil
}

// MarshalDynamoDBAttributeValue stores the detail as a map holding both the
// modelled and the extra fields.
func (d OutputDetail) MarshalDynamoDBAttributeValue() (types.AttributeValue, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return attributevalue.Marshal(doc)
}

func (d *OutputDetail) UnmarshalDynamoDBAttributeValue(av types.AttributeValue) error {
	var doc map[string]any
	if err := attributevalue.Unmarshal(av, &doc); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, d)
}

// marshalWithExtra encodes known and merges in extra. Known fields win.
func marshalWithExtra(known any, extra map[string]json.RawMessage) ([]byte, error) {
	data, err := json.Marshal(known)
	if err != nil || len(extra) == 0 {
		return data, err
	}
	merged := make(map[string]json.RawMessage, len(extra))
	for k, v := range extra {
		merged[k] = v
	}
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	return json.Marshal(merged)
}

// unmodelled returns the members of the JSON object data not named by keys.
func unmodelled(data []byte, keys ...string) (map[string]json.RawMessage, error) {
	var all map[string]json.RawMessage
	if err := json.Unmarshal(data, &all); err != nil {
		return nil, err
	}
	for _, k := range keys {
		delete(all, k)
	}
	if len(all) == 0 {
		return nil, nil
	}
	return all, nil
}

// OutputGroupDetail is one entry of the outputGroupDetails array carried by a
// COMPLETE job state change. Playlist paths are only set for streaming groups.
type OutputGroupDetail struct {
	Type              string         `json:"type" dynamodbav:"type"`
	PlaylistFilePaths []string       `json:"playlistFilePaths,omitempty" dynamodbav:"playlistFilePaths,omitempty"`
	OutputDetails     []OutputDetail `json:"outputDetails" dynamodbav:"outputDetails"`
}

// JobStateChange is the detail section of a "MediaConvert Job State Change" event.
type JobStateChange struct {
	Timestamp          int64               `json:"timestamp,omitempty"`
	AccountID          string              `json:"accountId,omitempty"`
	Queue              string              `json:"queue,omitempty"`
	JobID              string              `json:"jobId"`
	Status             string              `json:"status"`
	UserMetadata       map[string]string   `json:"userMetadata,omitempty"`
	OutputGroupDetails []OutputGroupDetail `json:"outputGroupDetails,omitempty"`
	ErrorCode          int                 `json:"errorCode,omitempty"`
	ErrorMessage       string              `json:"errorMessage,omitempty"`
}

type CookieCredentials struct {
	Policy    string `json:"CloudFront-Policy"`
	KeyPairID string `json:"CloudFront-Key-Pair-Id"`
	Signature string `json:"CloudFront-Signature"`
}

// SignedCookies is returned to browsers requesting delivery access.
type SignedCookies struct {
	Credentials CookieCredentials `json:"credentials"`
	Expiration  int64             `json:"expiration"`
}

type JobStage string

const (
	StageSubmitted    JobStage = "submitted"
	StageTransitioned JobStage = "transitioned"
)

// JobEvent is published on the bus whenever a job record is written.
type JobEvent struct {
	ID                 string              `json:"id"`
	JobID              string              `json:"job_id"`
	Stage              JobStage            `json:"stage"`
	Status             string              `json:"status"`
	Filename           string              `json:"filename,omitempty"`
	SourceBucket       string              `json:"source_bucket,omitempty"`
	SourcePath         string              `json:"source_path,omitempty"`
	OutputGroupDetails []OutputGroupDetail `json:"output_group_details,omitempty"`
	HappenedAt         int64               `json:"happened_at"`
}

// DeadLetter records a notification whose effect was dropped after a
// retryable failure so an operator can replay it.
type DeadLetter struct {
	ID          string          `json:"id"`
	Trigger     string          `json:"trigger"`
	JobID       string          `json:"job_id,omitempty"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	Error       string          `json:"error"`
	FailureType FailureType     `json:"failure_type"`
	HappenedAt  int64           `json:"happened_at"`
}
