package runtime

import (
	"context"
	"fmt"

	"github.com/tcmartin/promptflow/pkg/flow"
)

// flowRuntime is the implementation of the FlowRuntime interface
type flowRuntime struct {
	registry FlowRegistry
	executor *Executor
}

// NewFlowRuntime creates a new FlowRuntime
func NewFlowRuntime(registry FlowRegistry, executor *Executor) FlowRuntime {
	return &flowRuntime{
		registry: registry,
		executor: executor,
	}
}

func (r *flowRuntime) ExecuteFlow(ctx context.Context, flowID string, userMessage string, opts ...ExecuteOption) (*Result, error) {
	if userMessage == "" {
		return nil, flow.ErrEmptyInput
	}

	f, err := r.registry.Get(ctx, flowID)
	if err != nil {
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}

	return r.executor.Execute(ctx, f, userMessage, opts...)
}
