package runtime

import (
	"errors"
	"fmt"
)

var (
	// ErrStepExecutionFailed is matched by a *StepError whose completion call failed
	ErrStepExecutionFailed = errors.New("step execution failed")

	// ErrCancelled is matched by a *StepError raised because the context ended
	ErrCancelled = errors.New("execution cancelled")
)

// StepError reports the step at which an execution stopped. It unwraps to the
// underlying cause.
type StepError struct {
	Step  string
	Order int
	Err   error
}

func (e *StepError) Error() string {
	if errors.Is(e.Err, ErrCancelled) {
		return fmt.Sprintf("step %q (order %d): %v", e.Step, e.Order, e.Err)
	}
	return fmt.Sprintf("%v: step %q (order %d): %v", ErrStepExecutionFailed, e.Step, e.Order, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrStepExecutionFailed. Cancelled steps match
// ErrCancelled through Unwrap instead.
func (e *StepError) Is(target error) bool {
	return target == ErrStepExecutionFailed && !errors.Is(e.Err, ErrCancelled)
}

func newStepError(name string, order int, err error) *StepError {
	return &StepError{Step: name, Order: order, Err: err}
}

func newCancelledError(name string, order int, cause error) *StepError {
	return &StepError{Step: name, Order: order, Err: fmt.Errorf("%w: %w", ErrCancelled, cause)}
}
