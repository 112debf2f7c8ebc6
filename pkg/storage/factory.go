package storage

import (
	"fmt"
)

// ProviderType represents the type of storage provider
type ProviderType string

const (
	// MemoryProviderType is an in-memory storage provider
	MemoryProviderType ProviderType = "memory"

	// DynamoDBProviderType is a DynamoDB storage provider
	DynamoDBProviderType ProviderType = "dynamodb"

	// PostgreSQLProviderType is a PostgreSQL storage provider
	PostgreSQLProviderType ProviderType = "postgresql"

	// SQLiteProviderType is an embedded SQLite storage provider
	SQLiteProviderType ProviderType = "sqlite"

	// MongoDBProviderType is a MongoDB storage provider
	MongoDBProviderType ProviderType = "mongodb"

	// RedisProviderType is a Redis storage provider
	RedisProviderType ProviderType = "redis"
)

// ProviderConfig contains configuration for storage providers
type ProviderConfig struct {
	// Type is the type of storage provider to create
	Type ProviderType

	// DynamoDB contains configuration for the DynamoDB provider
	DynamoDB *DynamoDBProviderConfig

	// PostgreSQL contains configuration for the PostgreSQL provider
	PostgreSQL *PostgreSQLProviderConfig

	// SQLite contains configuration for the SQLite provider
	SQLite *SQLiteProviderConfig

	// MongoDB contains configuration for the MongoDB provider
	MongoDB *MongoDBProviderConfig

	// Redis contains configuration for the Redis provider
	Redis *RedisProviderConfig
}

// NewProvider creates a new storage provider based on the configuration
func NewProvider(config ProviderConfig) (StorageProvider, error) {
	switch config.Type {
	case MemoryProviderType:
		return NewMemoryProvider(), nil

	case DynamoDBProviderType:
		if config.DynamoDB == nil {
			return nil, fmt.Errorf("DynamoDB configuration is required for DynamoDB provider")
		}
		return wrap(NewDynamoDBProvider(*config.DynamoDB))

	case PostgreSQLProviderType, "postgres":
		if config.PostgreSQL == nil {
			return nil, fmt.Errorf("PostgreSQL configuration is required for PostgreSQL provider")
		}
		return wrap(NewPostgreSQLProvider(*config.PostgreSQL))

	case SQLiteProviderType:
		if config.SQLite == nil {
			config.SQLite = &SQLiteProviderConfig{}
		}
		return wrap(NewSQLiteProvider(*config.SQLite))

	case MongoDBProviderType:
		if config.MongoDB == nil {
			config.MongoDB = &MongoDBProviderConfig{}
		}
		return wrap(NewMongoDBProvider(*config.MongoDB))

	case RedisProviderType:
		if config.Redis == nil {
			return nil, fmt.Errorf("Redis configuration is required for Redis provider")
		}
		return NewRedisProvider(*config.Redis), nil

	default:
		return nil, fmt.Errorf("unknown provider type: %s", config.Type)
	}
}

// wrap keeps a failed constructor from returning a typed nil inside the interface
func wrap[P StorageProvider](provider P, err error) (StorageProvider, error) {
	if err != nil {
		return nil, err
	}
	return provider, nil
}
