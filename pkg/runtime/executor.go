package runtime

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/tcmartin/promptflow/pkg/flow"
	"github.com/tcmartin/promptflow/pkg/llm"
	"github.com/tcmartin/promptflow/pkg/logging"
)

// Executor runs flows as a linear chain of completion calls. It holds no
// per-execution state and may be shared between goroutines.
type Executor struct {
	completer Completer
	logger    logging.Logger
}

// NewExecutor creates a new Executor
func NewExecutor(completer Completer, logger logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Executor{
		completer: completer,
		logger:    logger,
	}
}

// ExecuteOption customises a single execution
type ExecuteOption func(*executeOptions)

type executeOptions struct {
	executionID string
	observers   []Observer
}

// WithObserver registers an observer for the execution
func WithObserver(o Observer) ExecuteOption {
	return func(opts *executeOptions) {
		opts.observers = append(opts.observers, o)
	}
}

// WithExecutionID overrides the generated execution ID
func WithExecutionID(id string) ExecuteOption {
	return func(opts *executeOptions) {
		opts.executionID = id
	}
}

// Execute runs every step of f in order, feeding each step's output to the
// next as its user message. Either all steps succeed and a Result is returned,
// or the first failure is returned as a *StepError and nothing else.
func (e *Executor) Execute(ctx context.Context, f flow.Flow, userMessage string, opts ...ExecuteOption) (*Result, error) {
	if userMessage == "" {
		return nil, flow.ErrEmptyInput
	}
	if len(f.Steps) == 0 {
		return nil, flow.ErrEmptyFlow
	}
	if !f.IsActive {
		return nil, flow.ErrInactiveFlow
	}

	options := executeOptions{}
	for _, opt := range opts {
		opt(&options)
	}
	if options.executionID == "" {
		options.executionID = uuid.New().String()
	}

	logger := e.logger.WithContext(ctx)
	steps := f.SortedSteps()
	results := make(map[string]StepResult, len(steps))
	carry := userMessage

	logger.LogFlowExecution(f.ID, options.executionID, "started", map[string]interface{}{"steps": len(steps)})
	started := time.Now()

	for i, step := range steps {
		event := StepEvent{
			ExecutionID: options.executionID,
			FlowName:    f.Name,
			Step:        step.Name,
			Order:       step.Order,
			Index:       i,
			Total:       len(steps),
		}

		if err := ctx.Err(); err != nil {
			return nil, e.fail(logger, f, options, event, newCancelledError(step.Name, step.Order, err))
		}

		messages := []llm.Message{
			{Role: llm.RoleSystem, Content: step.SystemPrompt},
			{Role: llm.RoleUser, Content: carry},
		}

		notify(options.observers, func(o Observer) { o.StepStarted(event) })
		logger.LogStepExecution(f.ID, options.executionID, step.Name, "started", map[string]interface{}{"order": step.Order})

		callStarted := time.Now()
		text, err := e.completer.Complete(ctx, messages, step.Temperature, step.MaxTokens)
		event.Duration = time.Since(callStarted)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, e.fail(logger, f, options, event, newCancelledError(step.Name, step.Order, ctxErr))
			}
			return nil, e.fail(logger, f, options, event, newStepError(step.Name, step.Order, err))
		}

		results[step.Name] = StepResult{
			AssistantMessage: text,
			Messages:         messages,
		}
		carry = text

		event.Output = text
		notify(options.observers, func(o Observer) { o.StepCompleted(event) })
		logger.LogStepExecution(f.ID, options.executionID, step.Name, "completed", map[string]interface{}{
			"order":    step.Order,
			"duration": event.Duration.String(),
		})
	}

	logger.LogFlowExecution(f.ID, options.executionID, "completed", map[string]interface{}{
		"duration": time.Since(started).String(),
	})

	return &Result{
		ExecutionID:   options.executionID,
		FlowName:      f.Name,
		Steps:         results,
		FinalResponse: carry,
	}, nil
}

func (e *Executor) fail(logger logging.Logger, f flow.Flow, options executeOptions, event StepEvent, err *StepError) error {
	event.Err = err
	notify(options.observers, func(o Observer) { o.StepFailed(event) })
	logger.Error("Step execution failed",
		logging.F("flow_id", f.ID),
		logging.F("execution_id", options.executionID),
		logging.F("step", event.Step),
		logging.F("order", event.Order),
		logging.Err(err.Err),
	)
	return err
}

func notify(observers []Observer, fn func(Observer)) {
	for _, o := range observers {
		fn(o)
	}
}
