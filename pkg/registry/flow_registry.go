package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/tcmartin/promptflow/pkg/flow"
	"github.com/tcmartin/promptflow/pkg/logging"
	"github.com/tcmartin/promptflow/pkg/storage"
)

// ErrFlowNotFound is returned when the requested flow does not exist
var ErrFlowNotFound = storage.ErrFlowNotFound

// FlowRegistryService implements the FlowRegistry interface
type FlowRegistryService struct {
	flowStore storage.FlowStore
	logger    logging.Logger
}

// NewFlowRegistry creates a new flow registry service
func NewFlowRegistry(flowStore storage.FlowStore, options FlowRegistryOptions) *FlowRegistryService {
	logger := options.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	return &FlowRegistryService{
		flowStore: flowStore,
		logger:    logger,
	}
}

// Create stores a new flow definition. The flow is validated before its
// identifier, and an identifier that is already taken is always reported as
// flow.ErrDuplicateIdentifier.
func (r *FlowRegistryService) Create(ctx context.Context, f flow.Flow) error {
	if err := flow.Validate(f); err != nil {
		return err
	}
	if err := flow.ValidateIdentifier(f.ID); err != nil {
		return err
	}

	if _, err := r.flowStore.GetFlow(ctx, f.ID); err == nil {
		return fmt.Errorf("%w: %s", flow.ErrDuplicateIdentifier, f.ID)
	} else if !errors.Is(err, storage.ErrFlowNotFound) {
		return fmt.Errorf("failed to check flow identifier: %w", err)
	}

	// A concurrent create can still win between the lookup and the insert
	if err := r.flowStore.InsertFlow(ctx, f); err != nil {
		if errors.Is(err, storage.ErrFlowExists) {
			return fmt.Errorf("%w: %s", flow.ErrDuplicateIdentifier, f.ID)
		}
		return fmt.Errorf("failed to save flow: %w", err)
	}

	r.logger.Info("Flow created",
		logging.F("flow_id", f.ID),
		logging.F("flow", f.Name),
		logging.F("steps", len(f.Steps)),
	)
	return nil
}

// Get retrieves a flow definition by ID
func (r *FlowRegistryService) Get(ctx context.Context, id string) (flow.Flow, error) {
	f, err := r.flowStore.GetFlow(ctx, id)
	if err != nil {
		return flow.Flow{}, fmt.Errorf("failed to get flow: %w", err)
	}

	return f, nil
}

// List returns all flows
func (r *FlowRegistryService) List(ctx context.Context) ([]storage.FlowSummary, error) {
	summaries, err := r.flowStore.ListFlows(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list flows: %w", err)
	}

	return summaries, nil
}

// Update modifies an existing flow definition
func (r *FlowRegistryService) Update(ctx context.Context, f flow.Flow) error {
	// Check if the flow exists
	if _, err := r.flowStore.GetFlow(ctx, f.ID); err != nil {
		return fmt.Errorf("failed to get flow: %w", err)
	}

	if err := flow.Validate(f); err != nil {
		return err
	}

	if err := r.flowStore.ReplaceFlow(ctx, f); err != nil {
		return fmt.Errorf("failed to update flow: %w", err)
	}

	r.logger.Info("Flow updated", logging.F("flow_id", f.ID), logging.F("steps", len(f.Steps)))
	return nil
}

// Delete removes a flow definition
func (r *FlowRegistryService) Delete(ctx context.Context, id string) error {
	n, err := r.flowStore.DeleteFlow(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrFlowNotFound, id)
	}

	r.logger.Info("Flow deleted", logging.F("flow_id", id))
	return nil
}
