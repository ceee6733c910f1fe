package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

const runTTL = 7 * 24 * time.Hour

// RunStatus is the lifecycle of one pipeline run record.
type RunStatus string

const (
	RunStatusPending   RunStatus = "pending"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

// ErrRunNotFound indicates the requested run id does not exist.
var ErrRunNotFound = errors.New("pipeline: run not found")

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(context.Context, *dynamodb.UpdateItemInput, ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
}

// RunRecord captures the persisted state of one pipeline run. Failed runs
// keep the failed stage and the partial state JSON so the caller can
// inspect what was produced and decide whether to run again.
type RunRecord struct {
	RunID        string    `dynamodbav:"runId" json:"runId"`
	TenantID     string    `dynamodbav:"tenantId" json:"tenantId"`
	AgentID      string    `dynamodbav:"agentId" json:"agentId"`
	Status       RunStatus `dynamodbav:"status" json:"status"`
	Goal         string    `dynamodbav:"goal" json:"goal"`
	ProtocolID   string    `dynamodbav:"protocolId,omitempty" json:"protocolId,omitempty"`
	FailedStage  string    `dynamodbav:"failedStage,omitempty" json:"failedStage,omitempty"`
	PartialState string    `dynamodbav:"partialState,omitempty" json:"partialState,omitempty"`
	ErrorMessage string    `dynamodbav:"errorMessage,omitempty" json:"errorMessage,omitempty"`
	CreatedAt    string    `dynamodbav:"createdAt" json:"createdAt"`
	UpdatedAt    string    `dynamodbav:"updatedAt" json:"updatedAt"`
	ExpiresAt    int64     `dynamodbav:"expiresAt,omitempty" json:"-"`
}

// RunStore persists run records to DynamoDB.
type RunStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewRunStore builds a store backed by the provided DynamoDB client.
func NewRunStore(client dynamoAPI, tableName string, logger *logging.Logger) *RunStore {
	if client == nil {
		panic("pipeline: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("pipeline: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &RunStore{client: client, tableName: tableName, logger: logger}
}

// PutPending inserts a new pending run record.
func (s *RunStore) PutPending(ctx context.Context, run *RunRecord) error {
	if run == nil {
		return errors.New("pipeline: run cannot be nil")
	}
	now := time.Now().UTC()
	run.Status = RunStatusPending
	run.CreatedAt = now.Format(time.RFC3339Nano)
	run.UpdatedAt = run.CreatedAt
	if run.ExpiresAt == 0 {
		run.ExpiresAt = now.Add(runTTL).Unix()
	}

	item, err := attributevalue.MarshalMap(run)
	if err != nil {
		return fmt.Errorf("pipeline: failed to marshal run: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.tableName),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(runId)"),
	})
	if err != nil {
		return fmt.Errorf("pipeline: failed to persist run: %w", err)
	}
	return nil
}

// MarkCompleted records the compiled protocol id against the run.
func (s *RunStore) MarkCompleted(ctx context.Context, runID, protocolID string) error {
	if runID == "" {
		return errors.New("pipeline: runID required")
	}
	return s.updateRun(ctx, runID,
		map[string]types.AttributeValue{
			":status":   &types.AttributeValueMemberS{Value: string(RunStatusCompleted)},
			":protocol": &types.AttributeValueMemberS{Value: protocolID},
			":error":    &types.AttributeValueMemberS{Value: ""},
			":updated":  &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, protocolId = :protocol, #error = :error, #updated = :updated",
	)
}

// MarkFailed records the failed stage and the serialized partial state.
func (s *RunStore) MarkFailed(ctx context.Context, runID string, failure *StageFailure) error {
	if runID == "" {
		return errors.New("pipeline: runID required")
	}
	stage := ""
	partial := ""
	message := ""
	if failure != nil {
		stage = failure.Stage
		message = failure.Err.Error()
		if failure.State != nil {
			if data, err := json.Marshal(failure.State); err == nil {
				partial = string(data)
			}
		}
	}
	return s.updateRun(ctx, runID,
		map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(RunStatusFailed)},
			":stage":   &types.AttributeValueMemberS{Value: stage},
			":partial": &types.AttributeValueMemberS{Value: partial},
			":error":   &types.AttributeValueMemberS{Value: message},
			":updated": &types.AttributeValueMemberS{Value: time.Now().UTC().Format(time.RFC3339Nano)},
		},
		map[string]string{
			"#status":  "status",
			"#error":   "errorMessage",
			"#updated": "updatedAt",
		},
		"SET #status = :status, failedStage = :stage, partialState = :partial, #error = :error, #updated = :updated",
	)
}

// GetRun fetches a run by id, scoped to the tenant.
func (s *RunStore) GetRun(ctx context.Context, tenantID, runID string) (*RunRecord, error) {
	if runID == "" {
		return nil, errors.New("pipeline: runID required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: runID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("pipeline: failed to fetch run: %w", err)
	}
	if out.Item == nil {
		return nil, ErrRunNotFound
	}

	var run RunRecord
	if err := attributevalue.UnmarshalMap(out.Item, &run); err != nil {
		return nil, fmt.Errorf("pipeline: failed to decode run: %w", err)
	}
	if run.TenantID != tenantID {
		return nil, ErrRunNotFound
	}
	return &run, nil
}

func (s *RunStore) updateRun(ctx context.Context, runID string, values map[string]types.AttributeValue, names map[string]string, expression string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"runId": &types.AttributeValueMemberS{Value: runID},
		},
		ExpressionAttributeValues: values,
		ExpressionAttributeNames:  names,
		UpdateExpression:          aws.String(expression),
		ConditionExpression:       aws.String("attribute_exists(runId)"),
	})
	if err != nil {
		return fmt.Errorf("pipeline: failed to update run %s: %w", runID, err)
	}
	return nil
}
