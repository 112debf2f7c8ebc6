package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite"
)

// SQLiteProvider implements the StorageProvider interface using an embedded
// SQLite database
type SQLiteProvider struct {
	db        *sql.DB
	flowStore *SQLFlowStore
}

// SQLiteProviderConfig contains configuration for the SQLite provider
type SQLiteProviderConfig struct {
	// Path of the database file, or ":memory:"
	Path string
}

// NewSQLiteProvider opens (creating if needed) the SQLite database at config.Path
func NewSQLiteProvider(config SQLiteProviderConfig) (*SQLiteProvider, error) {
	path := config.Path
	if path == "" {
		path = "promptflow.db"
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// ":memory:" databases exist per connection
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	return &SQLiteProvider{
		db:        db,
		flowStore: newSQLFlowStore(db, dialectSQLite),
	}, nil
}

// Initialize sets up the storage backend
func (p *SQLiteProvider) Initialize(ctx context.Context) error {
	if err := p.flowStore.Initialize(ctx); err != nil {
		return fmt.Errorf("failed to initialize flow store: %w", err)
	}
	return nil
}

// Close cleans up resources
func (p *SQLiteProvider) Close() error {
	return p.db.Close()
}

// GetFlowStore returns a store for flow definitions
func (p *SQLiteProvider) GetFlowStore() FlowStore {
	return p.flowStore
}
