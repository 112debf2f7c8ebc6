package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
)

// PostgreSQLProvider implements the StorageProvider interface using PostgreSQL
type PostgreSQLProvider struct {
	db        *sql.DB
	flowStore *SQLFlowStore
}

// PostgreSQLProviderConfig contains configuration for the PostgreSQL provider
type PostgreSQLProviderConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

// ConnectionString renders the lib/pq connection string, filling in defaults
func (c PostgreSQLProviderConfig) ConnectionString() string {
	if c.Port == 0 {
		c.Port = 5432
	}
	if c.SSLMode == "" {
		c.SSLMode = "disable"
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

// NewPostgreSQLProvider creates a new PostgreSQL storage provider
func NewPostgreSQLProvider(config PostgreSQLProviderConfig) (*PostgreSQLProvider, error) {
	db, err := sql.Open("postgres", config.ConnectionString())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	return NewPostgreSQLProviderWithDB(db), nil
}

// NewPostgreSQLProviderWithDB wraps an existing handle. Used with sqlmock in tests.
func NewPostgreSQLProviderWithDB(db *sql.DB) *PostgreSQLProvider {
	return &PostgreSQLProvider{
		db:        db,
		flowStore: newSQLFlowStore(db, dialectPostgres),
	}
}

// Initialize sets up the storage backend
func (p *PostgreSQLProvider) Initialize(ctx context.Context) error {
	if err := p.flowStore.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize flow store: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *PostgreSQLProvider) Close() error {
	return p.db.Close()
}

// GetFlowStore returns a store for flow definitions
func (p *PostgreSQLProvider) GetFlowStore() FlowStore {
	return p.flowStore
}
