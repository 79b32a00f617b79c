//go:build integration

package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sicko7947/reelflow"
)

// createTestTable creates a temporary DynamoDB table for integration testing
func createTestTable(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(tableName),
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String("PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("SK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1PK"), AttributeType: types.ScalarAttributeTypeS},
			{AttributeName: aws.String("GSI1SK"), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String("PK"), KeyType: types.KeyTypeHash},
			{AttributeName: aws.String("SK"), KeyType: types.KeyTypeRange},
		},
		GlobalSecondaryIndexes: []types.GlobalSecondaryIndex{
			{
				IndexName: aws.String("GSI1"),
				KeySchema: []types.KeySchemaElement{
					{AttributeName: aws.String("GSI1PK"), KeyType: types.KeyTypeHash},
					{AttributeName: aws.String("GSI1SK"), KeyType: types.KeyTypeRange},
				},
				Projection: &types.Projection{ProjectionType: types.ProjectionTypeAll},
			},
		},
		BillingMode: types.BillingModePayPerRequest,
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	// Wait for table to be active
	waiter := dynamodb.NewTableExistsWaiter(client)
	return waiter.Wait(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(tableName),
	}, 2*time.Minute)
}

// deleteTestTable deletes the temporary DynamoDB table
func deleteTestTable(ctx context.Context, client *dynamodb.Client, tableName string) error {
	_, err := client.DeleteTable(ctx, &dynamodb.DeleteTableInput{
		TableName: aws.String(tableName),
	})
	return err
}

// setupIntegrationTest creates a test table and returns a store instance
func setupIntegrationTest(t *testing.T) (*DynamoDBStore, *dynamodb.Client, string, func()) {
	ctx := context.Background()

	// Load AWS config
	cfg, err := config.LoadDefaultConfig(ctx)
	require.NoError(t, err, "Failed to load AWS config")

	client := dynamodb.NewFromConfig(cfg)

	// Create unique table name with timestamp
	tableName := fmt.Sprintf("reelflow-integration-test-%d", time.Now().Unix())

	// Create table
	err = createTestTable(ctx, client, tableName)
	require.NoError(t, err, "Failed to create test table")

	t.Logf("Created test table: %s", tableName)

	// Create store
	store := NewDynamoDBStore(client, tableName)

	// Return cleanup function
	cleanup := func() {
		err := deleteTestTable(context.Background(), client, tableName)
		if err != nil {
			t.Logf("Warning: Failed to delete test table %s: %v", tableName, err)
		} else {
			t.Logf("Deleted test table: %s", tableName)
		}
	}

	return store, client, tableName, cleanup
}

func TestIntegration_SaveAndLoad(t *testing.T) {
	store, _, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	state := stateFixture("it-wf-1", reelflow.WorkflowStatusRunning, fixedTime)

	require.NoError(t, store.Save(ctx, state), "Failed to save checkpoint")

	loaded, err := store.Load(ctx, state.WorkflowID)
	require.NoError(t, err, "Failed to load checkpoint")
	assert.Equal(t, state, loaded)
}

func TestIntegration_ListByStatus(t *testing.T) {
	store, _, _, cleanup := setupIntegrationTest(t)
	defer cleanup()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		status := reelflow.WorkflowStatusCompleted
		if i%2 == 0 {
			status = reelflow.WorkflowStatusFailed
		}
		state := stateFixture(fmt.Sprintf("it-wf-%d", i), status, fixedTime.Add(time.Duration(i)*time.Second))
		require.NoError(t, store.Save(ctx, state))
	}

	// The status index is eventually consistent
	require.Eventually(t, func() bool {
		failed, err := store.List(ctx, reelflow.ListFilter{Status: reelflow.ToPtr(reelflow.WorkflowStatusFailed)})
		return err == nil && len(failed) == 3
	}, 10*time.Second, 200*time.Millisecond)

	failed, err := store.List(ctx, reelflow.ListFilter{Status: reelflow.ToPtr(reelflow.WorkflowStatusFailed), Limit: 2})
	require.NoError(t, err)
	require.Len(t, failed, 2)
	assert.Equal(t, "it-wf-4", failed[0].WorkflowID)
}
