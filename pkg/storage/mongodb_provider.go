package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// Defaults used when the MongoDB configuration leaves them empty
const (
	DefaultMongoURI        = "mongodb://localhost:27017"
	DefaultMongoDatabase   = "plataforma_b3"
	DefaultMongoCollection = "flows"
)

const mongoOpTimeout = 5 * time.Second

// MongoDBProvider implements the StorageProvider interface using MongoDB.
// Each flow is one document keyed by its ID with the steps embedded.
type MongoDBProvider struct {
	client    *mongo.Client
	flowStore *MongoDBFlowStore
}

// MongoDBProviderConfig contains configuration for the MongoDB provider
type MongoDBProviderConfig struct {
	URI        string
	Database   string
	Collection string
}

// NewMongoDBProvider connects to MongoDB and creates a new storage provider
func NewMongoDBProvider(config MongoDBProviderConfig) (*MongoDBProvider, error) {
	uri := config.URI
	if uri == "" {
		uri = DefaultMongoURI
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoDBProvider{
		client:    client,
		flowStore: NewMongoDBFlowStore(client, config.Database, config.Collection),
	}, nil
}

// Initialize sets up the storage backend. The _id index MongoDB maintains is
// the only one needed.
func (p *MongoDBProvider) Initialize(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	if err := p.client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to initialize flow store: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *MongoDBProvider) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), mongoOpTimeout)
	defer cancel()
	return p.client.Disconnect(ctx)
}

// GetFlowStore returns a store for flow definitions
func (p *MongoDBProvider) GetFlowStore() FlowStore {
	return p.flowStore
}

// MongoDBFlowStore implements the FlowStore interface using a MongoDB collection
type MongoDBFlowStore struct {
	coll *mongo.Collection
}

// NewMongoDBFlowStore creates a flow store on the given database and collection.
// Empty names fall back to the defaults.
func NewMongoDBFlowStore(client *mongo.Client, dbName, collName string) *MongoDBFlowStore {
	if dbName == "" {
		dbName = DefaultMongoDatabase
	}
	if collName == "" {
		collName = DefaultMongoCollection
	}

	return &MongoDBFlowStore{
		coll: client.Database(dbName).Collection(collName),
	}
}

type mongoFlowDoc struct {
	ID          string         `bson:"_id"`
	Name        string         `bson:"name"`
	Description string         `bson:"description"`
	Steps       []mongoStepDoc `bson:"steps"`
	IsActive    bool           `bson:"is_active"`
	CreatedAt   time.Time      `bson:"created_at"`
	UpdatedAt   time.Time      `bson:"updated_at"`
}

type mongoStepDoc struct {
	Name         string  `bson:"step_name"`
	Order        int     `bson:"step_order"`
	SystemPrompt string  `bson:"system_prompt"`
	MaxTokens    int     `bson:"max_tokens"`
	Temperature  float64 `bson:"temperature"`
}

func toMongoSteps(steps []flow.Step) []mongoStepDoc {
	docs := make([]mongoStepDoc, 0, len(steps))
	for _, step := range steps {
		docs = append(docs, mongoStepDoc{
			Name:         step.Name,
			Order:        step.Order,
			SystemPrompt: step.SystemPrompt,
			MaxTokens:    step.MaxTokens,
			Temperature:  step.Temperature,
		})
	}
	return docs
}

func (doc mongoFlowDoc) toFlow() flow.Flow {
	f := flow.Flow{
		ID:          doc.ID,
		Name:        doc.Name,
		Description: doc.Description,
		Steps:       make([]flow.Step, 0, len(doc.Steps)),
		IsActive:    doc.IsActive,
		CreatedAt:   doc.CreatedAt.UTC(),
		UpdatedAt:   doc.UpdatedAt.UTC(),
	}
	for _, step := range doc.Steps {
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

// GetFlow retrieves a flow by ID
func (s *MongoDBFlowStore) GetFlow(ctx context.Context, id string) (flow.Flow, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	var doc mongoFlowDoc
	err := s.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return flow.Flow{}, ErrFlowNotFound
		}
		return flow.Flow{}, fmt.Errorf("failed to get flow: %w", err)
	}

	return doc.toFlow(), nil
}

// InsertFlow stores a new flow
func (s *MongoDBFlowStore) InsertFlow(ctx context.Context, f flow.Flow) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	ts := now()
	doc := mongoFlowDoc{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Steps:       toMongoSteps(f.Steps),
		IsActive:    f.IsActive,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrFlowExists
		}
		return fmt.Errorf("failed to insert flow: %w", err)
	}

	return nil
}

// ReplaceFlow overwrites an existing flow; created_at is not part of the update
func (s *MongoDBFlowStore) ReplaceFlow(ctx context.Context, f flow.Flow) error {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	update := bson.M{
		"$set": bson.M{
			"name":        f.Name,
			"description": f.Description,
			"steps":       toMongoSteps(f.Steps),
			"is_active":   f.IsActive,
			"updated_at":  now(),
		},
	}

	res, err := s.coll.UpdateByID(ctx, f.ID, update)
	if err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrFlowNotFound
	}

	return nil
}

// DeleteFlow removes a flow
func (s *MongoDBFlowStore) DeleteFlow(ctx context.Context, id string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	res, err := s.coll.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return 0, fmt.Errorf("failed to delete flow: %w", err)
	}

	return res.DeletedCount, nil
}

// ListFlows returns summaries of all flows ordered by ID
func (s *MongoDBFlowStore) ListFlows(ctx context.Context) ([]FlowSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoOpTimeout)
	defer cancel()

	cursor, err := s.coll.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}
	defer cursor.Close(ctx)

	summaries := []FlowSummary{}
	for cursor.Next(ctx) {
		var doc mongoFlowDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode flow: %w", err)
		}
		summaries = append(summaries, Summarize(doc.toFlow()))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("error iterating flows: %w", err)
	}

	return summaries, nil
}
