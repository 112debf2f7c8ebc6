package storage

import (
	"flag"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
)

var (
	useRealDynamoDB = flag.Bool("real-dynamodb", false, "Use real DynamoDB for tests instead of mock")
)

// MockDynamoDBAPI implements the parts of dynamodbiface.DynamoDBAPI the flow
// store uses, keeping single-hash-key tables in memory
type MockDynamoDBAPI struct {
	dynamodbiface.DynamoDBAPI
	mu     sync.RWMutex
	tables map[string]*MockTable
}

// MockTable represents a DynamoDB table in memory
type MockTable struct {
	Name    string
	HashKey string
	Items   map[string]map[string]*dynamodb.AttributeValue
}

// NewMockDynamoDBAPI creates a new mock DynamoDB client
func NewMockDynamoDBAPI() *MockDynamoDBAPI {
	return &MockDynamoDBAPI{
		tables: make(map[string]*MockTable),
	}
}

func (m *MockDynamoDBAPI) table(name *string) (*MockTable, error) {
	table, ok := m.tables[aws.StringValue(name)]
	if !ok {
		return nil, awserr.New(dynamodb.ErrCodeResourceNotFoundException, "table not found: "+aws.StringValue(name), nil)
	}
	return table, nil
}

func (t *MockTable) keyOf(item map[string]*dynamodb.AttributeValue) string {
	return aws.StringValue(item[t.HashKey].S)
}

// DescribeTableWithContext reports whether a mock table exists
func (m *MockDynamoDBAPI) DescribeTableWithContext(ctx aws.Context, input *dynamodb.DescribeTableInput, opts ...request.Option) (*dynamodb.DescribeTableOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(input.TableName)
	if err != nil {
		return nil, err
	}

	return &dynamodb.DescribeTableOutput{
		Table: &dynamodb.TableDescription{
			TableName:   aws.String(table.Name),
			TableStatus: aws.String(dynamodb.TableStatusActive),
			ItemCount:   aws.Int64(int64(len(table.Items))),
		},
	}, nil
}

// CreateTableWithContext creates a mock table
func (m *MockDynamoDBAPI) CreateTableWithContext(ctx aws.Context, input *dynamodb.CreateTableInput, opts ...request.Option) (*dynamodb.CreateTableOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name := aws.StringValue(input.TableName)
	if _, exists := m.tables[name]; exists {
		return nil, awserr.New(dynamodb.ErrCodeResourceInUseException, "table already exists: "+name, nil)
	}

	var hashKey string
	for _, key := range input.KeySchema {
		if aws.StringValue(key.KeyType) == dynamodb.KeyTypeHash {
			hashKey = aws.StringValue(key.AttributeName)
		}
	}
	if hashKey == "" {
		return nil, fmt.Errorf("table %s has no hash key", name)
	}

	m.tables[name] = &MockTable{
		Name:    name,
		HashKey: hashKey,
		Items:   make(map[string]map[string]*dynamodb.AttributeValue),
	}

	return &dynamodb.CreateTableOutput{}, nil
}

// WaitUntilTableExistsWithContext returns immediately; mock tables are active on creation
func (m *MockDynamoDBAPI) WaitUntilTableExistsWithContext(ctx aws.Context, input *dynamodb.DescribeTableInput, opts ...request.WaiterOption) error {
	_, err := m.DescribeTableWithContext(ctx, input)
	return err
}

// PutItemWithContext stores an item, honouring attribute_exists and
// attribute_not_exists conditions on the hash key
func (m *MockDynamoDBAPI) PutItemWithContext(ctx aws.Context, input *dynamodb.PutItemInput, opts ...request.Option) (*dynamodb.PutItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(input.TableName)
	if err != nil {
		return nil, err
	}

	key := table.keyOf(input.Item)
	_, exists := table.Items[key]

	condition := aws.StringValue(input.ConditionExpression)
	switch {
	case strings.HasPrefix(condition, "attribute_not_exists") && exists,
		strings.HasPrefix(condition, "attribute_exists") && !exists:
		return nil, awserr.New(dynamodb.ErrCodeConditionalCheckFailedException, "The conditional request failed", nil)
	}

	table.Items[key] = input.Item
	return &dynamodb.PutItemOutput{}, nil
}

// GetItemWithContext retrieves an item by hash key
func (m *MockDynamoDBAPI) GetItemWithContext(ctx aws.Context, input *dynamodb.GetItemInput, opts ...request.Option) (*dynamodb.GetItemOutput, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	table, err := m.table(input.TableName)
	if err != nil {
		return nil, err
	}

	return &dynamodb.GetItemOutput{Item: table.Items[table.keyOf(input.Key)]}, nil
}

// DeleteItemWithContext removes an item, returning the old attributes when asked
func (m *MockDynamoDBAPI) DeleteItemWithContext(ctx aws.Context, input *dynamodb.DeleteItemInput, opts ...request.Option) (*dynamodb.DeleteItemOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	table, err := m.table(input.TableName)
	if err != nil {
		return nil, err
	}

	key := table.keyOf(input.Key)
	old, exists := table.Items[key]
	delete(table.Items, key)

	output := &dynamodb.DeleteItemOutput{}
	if exists && aws.StringValue(input.ReturnValues) == dynamodb.ReturnValueAllOld {
		output.Attributes = old
	}
	return output, nil
}

// ScanPagesWithContext delivers every item as a single page
func (m *MockDynamoDBAPI) ScanPagesWithContext(ctx aws.Context, input *dynamodb.ScanInput, fn func(*dynamodb.ScanOutput, bool) bool, opts ...request.Option) error {
	m.mu.RLock()
	table, err := m.table(input.TableName)
	if err != nil {
		m.mu.RUnlock()
		return err
	}
	items := make([]map[string]*dynamodb.AttributeValue, 0, len(table.Items))
	for _, item := range table.Items {
		items = append(items, item)
	}
	m.mu.RUnlock()

	fn(&dynamodb.ScanOutput{Items: items, Count: aws.Int64(int64(len(items)))}, true)
	return nil
}

// GetTestDynamoDBClient returns the mock unless -real-dynamodb is set, in which
// case a client for the configured endpoint is built from the environment
func GetTestDynamoDBClient() (dynamodbiface.DynamoDBAPI, error) {
	if !*useRealDynamoDB {
		return NewMockDynamoDBAPI(), nil
	}

	provider, err := NewDynamoDBProvider(DynamoDBProviderConfig{
		Region:    "us-east-1",
		AccessKey: os.Getenv("AWS_ACCESS_KEY_ID"),
		SecretKey: os.Getenv("AWS_SECRET_ACCESS_KEY"),
		Endpoint:  os.Getenv("DYNAMODB_ENDPOINT"),
	})
	if err != nil {
		return nil, err
	}
	return provider.client, nil
}
