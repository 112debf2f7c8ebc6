package storage

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestDynamoDBFlowStore(t *testing.T) {
	suite.Run(t, &FlowStoreSuite{newStore: func(t *testing.T) FlowStore {
		client, err := GetTestDynamoDBClient()
		require.NoError(t, err)

		// unique prefix so runs against a real table set do not collide
		prefix := fmt.Sprintf("test_%d_", time.Now().UnixNano())
		provider := NewDynamoDBProviderWithClient(client, prefix)
		require.NoError(t, provider.Initialize(context.Background()))
		return provider.GetFlowStore()
	}})
}

func TestDynamoDBProviderCreatesTableOnce(t *testing.T) {
	ctx := context.Background()
	client := NewMockDynamoDBAPI()
	provider := NewDynamoDBProviderWithClient(client, "pf_")

	require.NoError(t, provider.Initialize(ctx))
	require.NoError(t, provider.Initialize(ctx))

	out, err := client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{TableName: aws.String("pf_flows")})
	require.NoError(t, err)
	assert.Equal(t, dynamodb.TableStatusActive, aws.StringValue(out.Table.TableStatus))
	assert.Equal(t, "FlowID", client.tables["pf_flows"].HashKey)
}

func TestDynamoDBFlowItemLayout(t *testing.T) {
	ctx := context.Background()
	client := NewMockDynamoDBAPI()
	provider := NewDynamoDBProviderWithClient(client, "")
	require.NoError(t, provider.Initialize(ctx))

	require.NoError(t, provider.GetFlowStore().InsertFlow(ctx, sampleFlow("layout")))

	item := client.tables["flows"].Items["layout"]
	require.NotNil(t, item)
	assert.Equal(t, "Sample layout", aws.StringValue(item["Name"].S))
	require.NotNil(t, item["Steps"])
	assert.Len(t, item["Steps"].L, 2)
	assert.Equal(t, "summarize", aws.StringValue(item["Steps"].L[0].M["StepName"].S))
}

func TestDynamoDBInitializeWithoutTableCreatesIt(t *testing.T) {
	client := NewMockDynamoDBAPI()
	store := NewDynamoDBFlowStore(client, "x_")

	_, err := store.GetFlow(context.Background(), "any")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrFlowNotFound)

	require.NoError(t, store.Initialize(context.Background()))
	_, err = store.GetFlow(context.Background(), "any")
	assert.ErrorIs(t, err, ErrFlowNotFound)
}
