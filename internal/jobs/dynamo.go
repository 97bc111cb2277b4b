package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

// DynamoAPI is the subset of the DynamoDB client used by DynamoStore.
type DynamoAPI interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps job records in a single DynamoDB table.
type DynamoStore struct {
	client DynamoAPI
	table  string
	now    func() time.Time
}

// NewDynamoStore wraps a DynamoDB client bound to table.
func NewDynamoStore(client DynamoAPI, table string) *DynamoStore {
	return &DynamoStore{client: client, table: table, now: time.Now}
}

func (s *DynamoStore) key(jobID string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		AttrPK: &types.AttributeValueMemberS{Value: PartitionJobs},
		AttrSK: &types.AttributeValueMemberS{Value: JobKey(jobID)},
	}
}

// CreateJob writes record unless a record with the same sort key exists.
func (s *DynamoStore) CreateJob(ctx context.Context, record *Record) error {
	if record == nil || strings.TrimSpace(record.JobID) == "" {
		return fmt.Errorf("create job: job id required")
	}
	record.PK = PartitionJobs
	record.SK = JobKey(record.JobID)
	item, err := attributevalue.MarshalMap(record)
	if err != nil {
		return fmt.Errorf("marshal job %s: %w", record.JobID, err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(sk)"),
	})
	if err != nil {
		var conditionErr *types.ConditionalCheckFailedException
		if errors.As(err, &conditionErr) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, record.JobID)
		}
		return fmt.Errorf("put job %s: %w", record.JobID, err)
	}
	return nil
}

// UpdateStatus sets status and updatedAt and merges extra into an existing
// record. The write is conditional on the record existing and on the stored
// status allowing the transition.
func (s *DynamoStore) UpdateStatus(ctx context.Context, jobID string, status Status, extra *Extra) error {
	names := map[string]string{
		"#status":    AttrStatus,
		"#updatedAt": AttrUpdatedAt,
	}
	values := map[string]types.AttributeValue{
		":status":    &types.AttributeValueMemberS{Value: string(status)},
		":updatedAt": &types.AttributeValueMemberS{Value: Timestamp(s.now())},
	}
	sets := []string{"#status = :status", "#updatedAt = :updatedAt"}

	if !extra.empty() {
		if len(extra.OutputGroupDetails) > 0 {
			details, err := attributevalue.Marshal(extra.OutputGroupDetails)
			if err != nil {
				return fmt.Errorf("marshal output group details: %w", err)
			}
			names["#outputGroupDetails"] = AttrOutputGroupDetails
			values[":outputGroupDetails"] = details
			sets = append(sets, "#outputGroupDetails = :outputGroupDetails")
		}
		if extra.ErrorCode != 0 {
			names["#errorCode"] = AttrErrorCode
			values[":errorCode"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", extra.ErrorCode)}
			sets = append(sets, "#errorCode = :errorCode")
		}
		if extra.ErrorMessage != "" {
			names["#errorMessage"] = AttrErrorMessage
			values[":errorMessage"] = &types.AttributeValueMemberS{Value: extra.ErrorMessage}
			sets = append(sets, "#errorMessage = :errorMessage")
		}
	}

	priors := AllowedPriors(status)
	placeholders := make([]string, 0, len(priors))
	for i, prior := range priors {
		placeholder := fmt.Sprintf(":prior%d", i)
		placeholders = append(placeholders, placeholder)
		values[placeholder] = &types.AttributeValueMemberS{Value: string(prior)}
	}
	condition := "attribute_exists(sk)"
	if len(placeholders) > 0 {
		condition += " AND #status IN (" + strings.Join(placeholders, ", ") + ")"
	}

	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                           aws.String(s.table),
		Key:                                 s.key(jobID),
		UpdateExpression:                    aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:                 aws.String(condition),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err == nil {
		return nil
	}
	var conditionErr *types.ConditionalCheckFailedException
	if !errors.As(err, &conditionErr) {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if len(conditionErr.Item) == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, jobID)
	}
	var current Record
	if err := attributevalue.UnmarshalMap(conditionErr.Item, &current); err != nil {
		return fmt.Errorf("%w: %s", ErrStaleTransition, jobID)
	}
	return fmt.Errorf("%w: %s is %s, refusing %s", ErrStaleTransition, jobID, current.Status, status)
}

// GetJob returns the record for jobID or nil when absent.
func (s *DynamoStore) GetJob(ctx context.Context, jobID string) (*Record, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.table),
		Key:            s.key(jobID),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	if len(out.Item) == 0 {
		return nil, nil
	}
	var record Record
	if err := attributevalue.UnmarshalMap(out.Item, &record); err != nil {
		return nil, fmt.Errorf("unmarshal job %s: %w", jobID, err)
	}
	return &record, nil
}

// ListJobs returns every job record ordered by sort key.
func (s *DynamoStore) ListJobs(ctx context.Context) ([]Record, error) {
	paginator := dynamodb.NewQueryPaginator(s.client, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(sk, :sk)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: PartitionJobs},
			":sk": &types.AttributeValueMemberS{Value: PrefixJob},
		},
		Select: types.SelectAllAttributes,
	})
	records := make([]Record, 0)
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("query jobs: %w", err)
		}
		var batch []Record
		if err := attributevalue.UnmarshalListOfMaps(page.Items, &batch); err != nil {
			return nil, fmt.Errorf("unmarshal jobs: %w", err)
		}
		records = append(records, batch...)
	}
	return records, nil
}

// FindByFilename returns the first record in index order whose filename
// starts with prefix, or nil.
func (s *DynamoStore) FindByFilename(ctx context.Context, prefix string) (*Record, error) {
	out, err := s.client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.table),
		IndexName:              aws.String(FilenameIndex),
		KeyConditionExpression: aws.String("pk = :pk AND begins_with(filename, :filename)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":       &types.AttributeValueMemberS{Value: PartitionJobs},
			":filename": &types.AttributeValueMemberS{Value: FilenameKey(prefix)},
		},
		Select: types.SelectAllAttributes,
		Limit:  aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("query filename %s: %w", prefix, err)
	}
	if len(out.Items) == 0 {
		return nil, nil
	}
	var record Record
	if err := attributevalue.UnmarshalMap(out.Items[0], &record); err != nil {
		return nil, fmt.Errorf("unmarshal job: %w", err)
	}
	return &record, nil
}

// Close is a no-op; the DynamoDB client holds no connections of its own.
func (s *DynamoStore) Close() error { return nil }
