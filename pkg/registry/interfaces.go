// Package registry provides functionality for managing flow definitions.
package registry

import (
	"context"

	"github.com/tcmartin/promptflow/pkg/flow"
	"github.com/tcmartin/promptflow/pkg/logging"
	"github.com/tcmartin/promptflow/pkg/storage"
)

// FlowRegistry manages flow definitions
type FlowRegistry interface {
	// Create validates and stores a new flow under f.ID
	Create(ctx context.Context, f flow.Flow) error

	// Get retrieves a flow definition by ID
	Get(ctx context.Context, id string) (flow.Flow, error)

	// List returns summaries of all flows ordered by ID
	List(ctx context.Context) ([]storage.FlowSummary, error)

	// Update validates f and replaces the stored flow with the same ID
	Update(ctx context.Context, f flow.Flow) error

	// Delete removes a flow definition and its steps
	Delete(ctx context.Context, id string) error
}

// FlowRegistryOptions contains options for creating a flow registry
type FlowRegistryOptions struct {
	// Logger receives create, update and delete events. Defaults to a no-op logger.
	Logger logging.Logger
}
