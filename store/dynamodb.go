package store

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/sicko7947/reelflow"
)

// checkpointItem is the DynamoDB item holding one workflow checkpoint. The
// state itself is the checksummed JSON document; the other attributes exist
// for keys and listing.
type checkpointItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"GSI1PK"`
	GSI1SK     string `dynamodbav:"GSI1SK"`
	EntityType string `dynamodbav:"entity_type"`
	WorkflowID string `dynamodbav:"workflow_id"`
	Status     string `dynamodbav:"status"`
	Checksum   string `dynamodbav:"checksum"`
	Data       []byte `dynamodbav:"data"`
	UpdatedAt  string `dynamodbav:"updated_at"`
}

// DynamoDBStore implements reelflow.CheckpointStore using AWS DynamoDB
type DynamoDBStore struct {
	client    DynamoDBClient
	tableName string
}

// NewDynamoDBStore creates a new DynamoDB-backed checkpoint store
func NewDynamoDBStore(client DynamoDBClient, tableName string) *DynamoDBStore {
	return &DynamoDBStore{
		client:    client,
		tableName: tableName,
	}
}

// Save replaces the checkpoint item. A single PutItem is atomic per key.
func (s *DynamoDBStore) Save(ctx context.Context, state *reelflow.WorkflowState) error {
	payload, sum, err := marshalState(state)
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: workflowIDOf(state), Err: err}
	}

	item, err := attributevalue.MarshalMap(checkpointItem{
		PK:         checkpointPK(state.WorkflowID),
		SK:         checkpointSK(),
		GSI1PK:     checkpointGSI1PK(state.Status.String()),
		GSI1SK:     checkpointGSI1SK(state.UpdatedAt, state.WorkflowID),
		EntityType: EntityTypeCheckpoint,
		WorkflowID: state.WorkflowID,
		Status:     state.Status.String(),
		Checksum:   sum,
		Data:       payload,
		UpdatedAt:  state.UpdatedAt.UTC().Format(sortKeyTimeFormat),
	})
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: state.WorkflowID, Err: fmt.Errorf("failed to marshal checkpoint item: %w", err)}
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return &reelflow.StoreError{Op: "save", WorkflowID: state.WorkflowID, Err: fmt.Errorf("failed to put checkpoint: %w", err)}
	}

	return nil
}

func (s *DynamoDBStore) Load(ctx context.Context, workflowID string) (*reelflow.WorkflowState, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			AttrPK: &types.AttributeValueMemberS{Value: checkpointPK(workflowID)},
			AttrSK: &types.AttributeValueMemberS{Value: checkpointSK()},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, &reelflow.StoreError{Op: "load", WorkflowID: workflowID, Err: fmt.Errorf("failed to get checkpoint: %w", err)}
	}

	if result.Item == nil {
		return nil, reelflow.NotFound("load", workflowID)
	}

	return decodeItem("load", workflowID, result.Item)
}

// List queries the status index when a status filter is set and scans the
// table otherwise
func (s *DynamoDBStore) List(ctx context.Context, filter reelflow.ListFilter) ([]reelflow.WorkflowSummary, error) {
	if filter.Status != nil {
		return s.listByStatus(ctx, *filter.Status, filter.Limit)
	}

	var summaries []reelflow.WorkflowSummary
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:                 aws.String(s.tableName),
			FilterExpression:          aws.String("#et = :et"),
			ExpressionAttributeNames:  map[string]string{"#et": AttrEntityType},
			ExpressionAttributeValues: map[string]types.AttributeValue{":et": &types.AttributeValueMemberS{Value: EntityTypeCheckpoint}},
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, &reelflow.StoreError{Op: "list", Err: fmt.Errorf("failed to scan checkpoints: %w", err)}
		}

		for _, item := range out.Items {
			summary, err := summarizeItem(item)
			if err != nil {
				return nil, err
			}
			summaries = append(summaries, summary)
		}

		if len(out.LastEvaluatedKey) == 0 {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return sortAndLimit(summaries, filter.Limit), nil
}

func (s *DynamoDBStore) listByStatus(ctx context.Context, status reelflow.WorkflowStatus, limit int) ([]reelflow.WorkflowSummary, error) {
	var summaries []reelflow.WorkflowSummary
	var startKey map[string]types.AttributeValue
	for {
		input := &dynamodb.QueryInput{
			TableName:              aws.String(s.tableName),
			IndexName:              aws.String(IndexStatusIndex),
			KeyConditionExpression: aws.String("#pk = :pk"),
			ExpressionAttributeNames: map[string]string{
				"#pk": AttrGSI1PK,
			},
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": &types.AttributeValueMemberS{Value: checkpointGSI1PK(status.String())},
			},
			// Newest first
			ScanIndexForward:  aws.Bool(false),
			ExclusiveStartKey: startKey,
		}
		if limit > 0 {
			input.Limit = aws.Int32(int32(limit - len(summaries)))
		}

		out, err := s.client.Query(ctx, input)
		if err != nil {
			return nil, &reelflow.StoreError{Op: "list", Err: fmt.Errorf("failed to query status index: %w", err)}
		}

		for _, item := range out.Items {
			summary, err := summarizeItem(item)
			if err != nil {
				return nil, err
			}
			// The index is eventually consistent; drop entries whose document moved on
			if summary.Status != status {
				continue
			}
			summaries = append(summaries, summary)
		}

		if len(out.LastEvaluatedKey) == 0 || (limit > 0 && len(summaries) >= limit) {
			break
		}
		startKey = out.LastEvaluatedKey
	}

	return summaries, nil
}

func summarizeItem(item map[string]types.AttributeValue) (reelflow.WorkflowSummary, error) {
	var rec checkpointItem
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return reelflow.WorkflowSummary{}, reelflow.Corrupt("list", "", err)
	}
	state, err := unmarshalState("list", rec.WorkflowID, rec.Data, rec.Checksum)
	if err != nil {
		return reelflow.WorkflowSummary{}, err
	}
	return state.Summary(), nil
}

func decodeItem(op, workflowID string, item map[string]types.AttributeValue) (*reelflow.WorkflowState, error) {
	var rec checkpointItem
	if err := attributevalue.UnmarshalMap(item, &rec); err != nil {
		return nil, reelflow.Corrupt(op, workflowID, fmt.Errorf("failed to unmarshal checkpoint item: %w", err))
	}
	if rec.EntityType != EntityTypeCheckpoint {
		return nil, reelflow.Corrupt(op, workflowID, fmt.Errorf("unexpected entity type %q", rec.EntityType))
	}
	return unmarshalState(op, workflowID, rec.Data, rec.Checksum)
}
