// Package runtime executes prompt flows step by step against a completion
// endpoint.
package runtime

import (
	"context"
	"time"

	"github.com/tcmartin/promptflow/pkg/flow"
	"github.com/tcmartin/promptflow/pkg/llm"
)

// Completer performs a single chat completion and returns the assistant text.
// *llm.Client satisfies it.
type Completer interface {
	Complete(ctx context.Context, messages []llm.Message, temperature float64, maxTokens int) (string, error)
}

// FlowRegistry loads flow definitions by ID
type FlowRegistry interface {
	Get(ctx context.Context, id string) (flow.Flow, error)
}

// FlowRuntime executes stored flows
type FlowRuntime interface {
	// ExecuteFlow loads the flow with the given ID and runs it with userMessage
	ExecuteFlow(ctx context.Context, flowID string, userMessage string, opts ...ExecuteOption) (*Result, error)
}

// Observer is notified as each step of an execution progresses. Observers are
// called synchronously from the executing goroutine and cannot change the
// outcome.
type Observer interface {
	StepStarted(event StepEvent)
	StepCompleted(event StepEvent)
	StepFailed(event StepEvent)
}

// StepEvent describes one step of a running execution
type StepEvent struct {
	ExecutionID string        `json:"execution_id"`
	FlowName    string        `json:"flow_name"`
	Step        string        `json:"step_name"`
	Order       int           `json:"step_order"`
	Index       int           `json:"index"`
	Total       int           `json:"total"`
	Output      string        `json:"output,omitempty"`
	Err         error         `json:"-"`
	Duration    time.Duration `json:"duration,omitempty"`
}

// StepResult is what a single step produced
type StepResult struct {
	// AssistantMessage is the text returned by the completion call
	AssistantMessage string `json:"assistant_message"`

	// Messages is the exchange sent for this step
	Messages []llm.Message `json:"messages"`
}

// Result is the outcome of a successful execution. It is never persisted.
type Result struct {
	ExecutionID   string                `json:"execution_id"`
	FlowName      string                `json:"flow_name"`
	Steps         map[string]StepResult `json:"steps"`
	FinalResponse string                `json:"final_response"`
}
