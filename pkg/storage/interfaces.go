// Package storage provides interfaces for persistent storage.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/tcmartin/promptflow/pkg/flow"
)

var (
	// ErrFlowNotFound is returned when no flow is stored under the given ID
	ErrFlowNotFound = errors.New("flow not found")

	// ErrFlowExists is returned by InsertFlow when the ID is already taken
	ErrFlowExists = errors.New("flow already exists")
)

// StorageProvider defines the interface for persistence backends
type StorageProvider interface {
	// Initialize sets up the storage backend (tables, collections, indexes)
	Initialize(ctx context.Context) error

	// Close cleans up resources
	Close() error

	// GetFlowStore returns a store for flow definitions
	GetFlowStore() FlowStore
}

// FlowStore manages flow definition persistence. Steps are stored embedded in
// their flow, so deleting a flow removes its steps.
type FlowStore interface {
	// GetFlow retrieves a flow by ID
	GetFlow(ctx context.Context, id string) (flow.Flow, error)

	// InsertFlow stores a new flow, setting CreatedAt and UpdatedAt
	InsertFlow(ctx context.Context, f flow.Flow) error

	// ReplaceFlow overwrites an existing flow, keeping CreatedAt and setting UpdatedAt
	ReplaceFlow(ctx context.Context, f flow.Flow) error

	// DeleteFlow removes a flow and returns how many records were removed (0 or 1)
	DeleteFlow(ctx context.Context, id string) (int64, error)

	// ListFlows returns summaries of all flows ordered by ID
	ListFlows(ctx context.Context) ([]FlowSummary, error)
}

// FlowSummary is the listing view of a stored flow
type FlowSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	StepsCount  int    `json:"steps_count"`
	IsActive    bool   `json:"is_active"`
}

// Summarize builds the listing view of f
func Summarize(f flow.Flow) FlowSummary {
	return FlowSummary{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		StepsCount:  len(f.Steps),
		IsActive:    f.IsActive,
	}
}

// now returns the timestamp recorded on writes. Second precision keeps every
// provider round-tripping the same value.
func now() time.Time {
	return time.Now().UTC().Truncate(time.Second)
}
