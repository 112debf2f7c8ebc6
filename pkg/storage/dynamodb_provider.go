package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/dynamodb"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbattribute"
	"github.com/aws/aws-sdk-go/service/dynamodb/dynamodbiface"
	"github.com/aws/aws-sdk-go/service/dynamodb/expression"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// DynamoDBProvider implements the StorageProvider interface using DynamoDB
type DynamoDBProvider struct {
	client      dynamodbiface.DynamoDBAPI
	flowStore   *DynamoDBFlowStore
	tablePrefix string
}

// DynamoDBProviderConfig contains configuration for the DynamoDB provider
type DynamoDBProviderConfig struct {
	Region      string
	AccessKey   string
	SecretKey   string
	TablePrefix string
	Endpoint    string // Optional, for local DynamoDB
}

// NewDynamoDBProvider creates a new DynamoDB storage provider
func NewDynamoDBProvider(config DynamoDBProviderConfig) (*DynamoDBProvider, error) {
	awsConfig := &aws.Config{
		Region: aws.String(config.Region),
	}

	if config.AccessKey != "" && config.SecretKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(
			config.AccessKey,
			config.SecretKey,
			"",
		)
	}

	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return NewDynamoDBProviderWithClient(dynamodb.New(sess), config.TablePrefix), nil
}

// NewDynamoDBProviderWithClient creates a new DynamoDB storage provider with a custom client
// This is primarily used for testing with mock clients
func NewDynamoDBProviderWithClient(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBProvider {
	return &DynamoDBProvider{
		client:      client,
		flowStore:   NewDynamoDBFlowStore(client, tablePrefix),
		tablePrefix: tablePrefix,
	}
}

// Initialize sets up the storage backend
func (p *DynamoDBProvider) Initialize(ctx context.Context) error {
	if err := p.flowStore.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize flow store: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *DynamoDBProvider) Close() error {
	// Nothing to close for DynamoDB client
	return nil
}

// GetFlowStore returns a store for flow definitions
func (p *DynamoDBProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// DynamoDBFlowStore implements the FlowStore interface using DynamoDB
type DynamoDBFlowStore struct {
	client    dynamodbiface.DynamoDBAPI
	tableName string
}

// NewDynamoDBFlowStore creates a new DynamoDB flow store
func NewDynamoDBFlowStore(client dynamodbiface.DynamoDBAPI, tablePrefix string) *DynamoDBFlowStore {
	return &DynamoDBFlowStore{
		client:    client,
		tableName: tablePrefix + "flows",
	}
}

// Initialize creates the flows table if it doesn't exist
func (s *DynamoDBFlowStore) Initialize(ctx context.Context) error {
	_, err := s.client.DescribeTableWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err == nil {
		return nil
	}

	var aerr awserr.Error
	if !errors.As(err, &aerr) || aerr.Code() != dynamodb.ErrCodeResourceNotFoundException {
		return fmt.Errorf("failed to check if table exists: %w", err)
	}

	_, err = s.client.CreateTableWithContext(ctx, &dynamodb.CreateTableInput{
		TableName: aws.String(s.tableName),
		AttributeDefinitions: []*dynamodb.AttributeDefinition{
			{
				AttributeName: aws.String("FlowID"),
				AttributeType: aws.String("S"),
			},
		},
		KeySchema: []*dynamodb.KeySchemaElement{
			{
				AttributeName: aws.String("FlowID"),
				KeyType:       aws.String("HASH"),
			},
		},
		BillingMode: aws.String("PAY_PER_REQUEST"),
	})
	if err != nil {
		return fmt.Errorf("failed to create table: %w", err)
	}

	err = s.client.WaitUntilTableExistsWithContext(ctx, &dynamodb.DescribeTableInput{
		TableName: aws.String(s.tableName),
	})
	if err != nil {
		return fmt.Errorf("failed to wait for table creation: %w", err)
	}

	return nil
}

// dynamoDBFlowItem represents a flow item in DynamoDB
type dynamoDBFlowItem struct {
	FlowID      string             `json:"FlowID"`
	Name        string             `json:"Name"`
	Description string             `json:"Description"`
	Steps       []dynamoDBStepItem `json:"Steps"`
	IsActive    bool               `json:"IsActive"`
	CreatedAt   int64              `json:"CreatedAt"`
	UpdatedAt   int64              `json:"UpdatedAt"`
}

type dynamoDBStepItem struct {
	Name         string  `json:"StepName"`
	Order        int     `json:"StepOrder"`
	SystemPrompt string  `json:"SystemPrompt"`
	MaxTokens    int     `json:"MaxTokens"`
	Temperature  float64 `json:"Temperature"`
}

func toDynamoDBItem(f flow.Flow) dynamoDBFlowItem {
	item := dynamoDBFlowItem{
		FlowID:      f.ID,
		Name:        f.Name,
		Description: f.Description,
		Steps:       make([]dynamoDBStepItem, 0, len(f.Steps)),
		IsActive:    f.IsActive,
		CreatedAt:   f.CreatedAt.Unix(),
		UpdatedAt:   f.UpdatedAt.Unix(),
	}
	for _, step := range f.Steps {
		item.Steps = append(item.Steps, dynamoDBStepItem{
			Name:         step.Name,
			Order:        step.Order,
			SystemPrompt: step.SystemPrompt,
			MaxTokens:    step.MaxTokens,
			Temperature:  step.Temperature,
		})
	}
	return item
}

func (item dynamoDBFlowItem) toFlow() flow.Flow {
	f := flow.Flow{
		ID:          item.FlowID,
		Name:        item.Name,
		Description: item.Description,
		Steps:       make([]flow.Step, 0, len(item.Steps)),
		IsActive:    item.IsActive,
		CreatedAt:   time.Unix(item.CreatedAt, 0).UTC(),
		UpdatedAt:   time.Unix(item.UpdatedAt, 0).UTC(),
	}
	for _, step := range item.Steps {
		f.Steps = append(f.Steps, flow.Step{
			Name:         step.Name,
			Order:        step.Order,
			SystemPrompt: step.SystemPrompt,
			MaxTokens:    step.MaxTokens,
			Temperature:  step.Temperature,
		})
	}
	return f
}

func (s *DynamoDBFlowStore) key(id string) map[string]*dynamodb.AttributeValue {
	return map[string]*dynamodb.AttributeValue{
		"FlowID": {
			S: aws.String(id),
		},
	}
}

// GetFlow retrieves a flow by ID
func (s *DynamoDBFlowStore) GetFlow(ctx context.Context, id string) (flow.Flow, error) {
	result, err := s.client.GetItemWithContext(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		Key:            s.key(id),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return flow.Flow{}, fmt.Errorf("failed to get flow: %w", err)
	}
	if result.Item == nil {
		return flow.Flow{}, ErrFlowNotFound
	}

	var item dynamoDBFlowItem
	if err := dynamodbattribute.UnmarshalMap(result.Item, &item); err != nil {
		return flow.Flow{}, fmt.Errorf("failed to unmarshal flow: %w", err)
	}

	return item.toFlow(), nil
}

// InsertFlow stores a new flow. The put is conditional on the key being absent.
func (s *DynamoDBFlowStore) InsertFlow(ctx context.Context, f flow.Flow) error {
	ts := now()
	f.CreatedAt = ts
	f.UpdatedAt = ts

	err := s.put(ctx, f, expression.AttributeNotExists(expression.Name("FlowID")))
	if isConditionalCheckFailed(err) {
		return ErrFlowExists
	}
	return err
}

// ReplaceFlow overwrites an existing flow, keeping its creation time
func (s *DynamoDBFlowStore) ReplaceFlow(ctx context.Context, f flow.Flow) error {
	existing, err := s.GetFlow(ctx, f.ID)
	if err != nil {
		return err
	}

	f.CreatedAt = existing.CreatedAt
	f.UpdatedAt = now()

	err = s.put(ctx, f, expression.AttributeExists(expression.Name("FlowID")))
	if isConditionalCheckFailed(err) {
		return ErrFlowNotFound
	}
	return err
}

func (s *DynamoDBFlowStore) put(ctx context.Context, f flow.Flow, cond expression.ConditionBuilder) error {
	av, err := dynamodbattribute.MarshalMap(toDynamoDBItem(f))
	if err != nil {
		return fmt.Errorf("failed to marshal flow item: %w", err)
	}

	expr, err := expression.NewBuilder().WithCondition(cond).Build()
	if err != nil {
		return fmt.Errorf("failed to build condition: %w", err)
	}

	_, err = s.client.PutItemWithContext(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(s.tableName),
		Item:                     av,
		ConditionExpression:      expr.Condition(),
		ExpressionAttributeNames: expr.Names(),
	})
	if err != nil {
		if isConditionalCheckFailed(err) {
			return err
		}
		return fmt.Errorf("failed to save flow: %w", err)
	}

	return nil
}

// DeleteFlow removes a flow
func (s *DynamoDBFlowStore) DeleteFlow(ctx context.Context, id string) (int64, error) {
	result, err := s.client.DeleteItemWithContext(ctx, &dynamodb.DeleteItemInput{
		TableName:    aws.String(s.tableName),
		Key:          s.key(id),
		ReturnValues: aws.String(dynamodb.ReturnValueAllOld),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to delete flow: %w", err)
	}

	if len(result.Attributes) == 0 {
		return 0, nil
	}
	return 1, nil
}

// ListFlows returns summaries of all flows ordered by ID
func (s *DynamoDBFlowStore) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	summaries := []FlowSummary{}
	var decodeErr error

	err := s.client.ScanPagesWithContext(ctx, &dynamodb.ScanInput{
		TableName: aws.String(s.tableName),
	}, func(page *dynamodb.ScanOutput, lastPage bool) bool {
		for _, av := range page.Items {
			var item dynamoDBFlowItem
			if decodeErr = dynamodbattribute.UnmarshalMap(av, &item); decodeErr != nil {
				return false
			}
			summaries = append(summaries, Summarize(item.toFlow()))
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan flows: %w", err)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", decodeErr)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].ID < summaries[j].ID
	})

	return summaries, nil
}

func isConditionalCheckFailed(err error) bool {
	var aerr awserr.Error
	return errors.As(err, &aerr) && aerr.Code() == dynamodb.ErrCodeConditionalCheckFailedException
}
