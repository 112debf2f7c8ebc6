// Package config provides configuration handling for promptflow.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tcmartin/promptflow/pkg/llm"
	"github.com/tcmartin/promptflow/pkg/logging"
	"github.com/tcmartin/promptflow/pkg/storage"
)

// Config represents the application configuration
type Config struct {
	// AppName is reported by the health endpoint and in logs
	AppName string `json:"app_name" yaml:"app_name"`

	// Debug lowers the log level to debug
	Debug bool `json:"debug" yaml:"debug"`

	// Server configuration
	Server ServerConfig `json:"server" yaml:"server"`

	// Storage configuration
	Storage StorageConfig `json:"storage" yaml:"storage"`

	// Model configuration for the completion endpoint
	Model ModelConfig `json:"model" yaml:"model"`

	// Auth configuration
	Auth AuthConfig `json:"auth" yaml:"auth"`

	// Logging configuration
	Logging logging.LogConfig `json:"logging" yaml:"logging"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	// Host to bind to
	Host string `json:"host" yaml:"host"`

	// Port to listen on
	Port int `json:"port" yaml:"port"`

	// TLS configuration
	TLS TLSConfig `json:"tls" yaml:"tls"`
}

// TLSConfig contains TLS settings
type TLSConfig struct {
	Enabled  bool   `json:"enabled" yaml:"enabled"`
	CertFile string `json:"cert_file" yaml:"cert_file"`
	KeyFile  string `json:"key_file" yaml:"key_file"`
}

// StorageConfig contains storage settings
type StorageConfig struct {
	// Type of storage to use: "memory", "postgres", "sqlite", "mongodb", "dynamodb", "redis"
	Type string `json:"type" yaml:"type"`

	DynamoDB DynamoDBConfig `json:"dynamodb" yaml:"dynamodb"`
	Postgres PostgresConfig `json:"postgres" yaml:"postgres"`
	SQLite   SQLiteConfig   `json:"sqlite" yaml:"sqlite"`
	MongoDB  MongoDBConfig  `json:"mongodb" yaml:"mongodb"`
	Redis    RedisConfig    `json:"redis" yaml:"redis"`
}

// DynamoDBConfig contains DynamoDB settings. Credentials come from
// AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY.
type DynamoDBConfig struct {
	Region      string `json:"region" yaml:"region"`
	Endpoint    string `json:"endpoint" yaml:"endpoint"`
	TablePrefix string `json:"table_prefix" yaml:"table_prefix"`
}

// PostgresConfig contains PostgreSQL settings
type PostgresConfig struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	Database string `json:"database" yaml:"database"`
	User     string `json:"user" yaml:"user"`
	Password string `json:"password" yaml:"password"`
	SSLMode  string `json:"ssl_mode" yaml:"ssl_mode"`
}

// SQLiteConfig contains SQLite settings
type SQLiteConfig struct {
	Path string `json:"path" yaml:"path"`
}

// MongoDBConfig contains MongoDB settings
type MongoDBConfig struct {
	URI        string `json:"uri" yaml:"uri"`
	Database   string `json:"database" yaml:"database"`
	Collection string `json:"collection" yaml:"collection"`
}

// RedisConfig contains Redis settings
type RedisConfig struct {
	Addr      string `json:"addr" yaml:"addr"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix"`
}

// ModelConfig contains settings for the chat-completion endpoint
type ModelConfig struct {
	BaseURL    string `json:"base_url" yaml:"base_url"`
	Deployment string `json:"deployment" yaml:"deployment"`
	APIVersion string `json:"api_version" yaml:"api_version"`
	APIKey     string `json:"api_key" yaml:"api_key"`

	// TimeoutSeconds bounds a single completion call
	TimeoutSeconds int `json:"timeout_seconds" yaml:"timeout_seconds"`

	TopP             *float64 `json:"top_p,omitempty" yaml:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty" yaml:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty" yaml:"presence_penalty,omitempty"`
}

// AuthConfig contains authentication settings
type AuthConfig struct {
	// JWTSecret is the secret for signing JWT tokens. Authentication is
	// disabled when it is empty.
	JWTSecret string `json:"jwt_secret" yaml:"jwt_secret"`

	// TokenExpiration is the token expiration time in hours
	TokenExpiration int `json:"token_expiration" yaml:"token_expiration"`
}

// LoadConfig loads the configuration from a JSON or YAML file, chosen by
// extension. Fields missing from the file keep their default values.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, config)
	default:
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		AppName: "promptflow",
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type: string(storage.MemoryProviderType),
			DynamoDB: DynamoDBConfig{
				Region:      "us-west-2",
				TablePrefix: "promptflow_",
			},
			Postgres: PostgresConfig{
				Host:     "localhost",
				Port:     5432,
				Database: "promptflow",
				User:     "promptflow",
				SSLMode:  "disable",
			},
			SQLite: SQLiteConfig{
				Path: "promptflow.db",
			},
			MongoDB: MongoDBConfig{
				URI:        storage.DefaultMongoURI,
				Database:   storage.DefaultMongoDatabase,
				Collection: storage.DefaultMongoCollection,
			},
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "promptflow:",
			},
		},
		Model: ModelConfig{
			TimeoutSeconds: int(llm.DefaultTimeout / time.Second),
		},
		Auth: AuthConfig{
			TokenExpiration: 24,
		},
		Logging: logging.LogConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// SaveConfig saves the configuration to a file, as YAML when the extension
// asks for it and JSON otherwise
func SaveConfig(config *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var (
		data []byte
		err  error
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(config)
	default:
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate rejects configurations the server cannot start with
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port))
	}
	if c.Server.TLS.Enabled && (c.Server.TLS.CertFile == "" || c.Server.TLS.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires cert_file and key_file"))
	}

	switch storage.ProviderType(c.Storage.Type) {
	case storage.MemoryProviderType, storage.PostgreSQLProviderType, "postgres",
		storage.SQLiteProviderType, storage.MongoDBProviderType,
		storage.DynamoDBProviderType, storage.RedisProviderType:
	default:
		errs = append(errs, fmt.Errorf("unknown storage.type %q", c.Storage.Type))
	}

	if c.Model.APIKey == "" {
		errs = append(errs, errors.New("model.api_key is required"))
	}
	if c.Model.Deployment == "" {
		errs = append(errs, errors.New("model.deployment is required"))
	}
	if _, err := llm.Endpoint(c.Model.BaseURL, c.Model.Deployment, c.Model.APIVersion); err != nil {
		errs = append(errs, fmt.Errorf("model.base_url: %w", err))
	}
	if c.Model.TimeoutSeconds < 0 {
		errs = append(errs, errors.New("model.timeout_seconds cannot be negative"))
	}

	if c.Auth.JWTSecret != "" && c.Auth.TokenExpiration < 1 {
		errs = append(errs, errors.New("auth.token_expiration must be at least 1 hour"))
	}

	return errors.Join(errs...)
}

// ProviderConfig converts the storage settings into a storage factory configuration
func (c StorageConfig) ProviderConfig() storage.ProviderConfig {
	return storage.ProviderConfig{
		Type: storage.ProviderType(c.Type),
		DynamoDB: &storage.DynamoDBProviderConfig{
			Region:      c.DynamoDB.Region,
			Endpoint:    c.DynamoDB.Endpoint,
			TablePrefix: c.DynamoDB.TablePrefix,
			AccessKey:   os.Getenv("AWS_ACCESS_KEY_ID"),
			SecretKey:   os.Getenv("AWS_SECRET_ACCESS_KEY"),
		},
		PostgreSQL: &storage.PostgreSQLProviderConfig{
			Host:     c.Postgres.Host,
			Port:     c.Postgres.Port,
			User:     c.Postgres.User,
			Password: c.Postgres.Password,
			Database: c.Postgres.Database,
			SSLMode:  c.Postgres.SSLMode,
		},
		SQLite: &storage.SQLiteProviderConfig{
			Path: c.SQLite.Path,
		},
		MongoDB: &storage.MongoDBProviderConfig{
			URI:        c.MongoDB.URI,
			Database:   c.MongoDB.Database,
			Collection: c.MongoDB.Collection,
		},
		Redis: &storage.RedisProviderConfig{
			Addr:      c.Redis.Addr,
			Password:  c.Redis.Password,
			DB:        c.Redis.DB,
			KeyPrefix: c.Redis.KeyPrefix,
		},
	}
}

// ClientConfig converts the model settings into a completion client configuration
func (m ModelConfig) ClientConfig() llm.Config {
	return llm.Config{
		BaseURL:          m.BaseURL,
		Deployment:       m.Deployment,
		APIVersion:       m.APIVersion,
		APIKey:           m.APIKey,
		Timeout:          time.Duration(m.TimeoutSeconds) * time.Second,
		TopP:             m.TopP,
		FrequencyPenalty: m.FrequencyPenalty,
		PresencePenalty:  m.PresencePenalty,
	}
}
