package flow

import (
	"fmt"
	"regexp"
	"sort"
)

var (
	namePattern       = regexp.MustCompile(`^[A-Za-z0-9_ -]+$`)
	identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_]+$`)
)

// Validate checks that a flow definition is executable. Checks run in a fixed
// order and stop at the first violation.
func Validate(f Flow) error {
	if len(f.Steps) == 0 {
		return ErrEmptyFlow
	}

	if !namePattern.MatchString(f.Name) {
		return fmt.Errorf("%w: name %q may only contain letters, digits, spaces, underscores and hyphens", ErrInvalidFormat, f.Name)
	}
	for i, step := range f.Steps {
		if !namePattern.MatchString(step.Name) {
			return fmt.Errorf("%w: steps[%d].step_name %q may only contain letters, digits, spaces, underscores and hyphens", ErrInvalidFormat, i, step.Name)
		}
	}

	for i, step := range f.Steps {
		if step.SystemPrompt == "" {
			return fmt.Errorf("%w: steps[%d].system_prompt is required", ErrInvalidFormat, i)
		}
		if !(step.Temperature >= 0 && step.Temperature <= 1) { // also rejects NaN
			return fmt.Errorf("%w: steps[%d].temperature %v must be between 0 and 1", ErrInvalidFormat, i, step.Temperature)
		}
		if step.MaxTokens < 1 {
			return fmt.Errorf("%w: steps[%d].max_tokens %d must be at least 1", ErrInvalidFormat, i, step.MaxTokens)
		}
	}

	return validateStepOrders(f.Steps)
}

// validateStepOrders requires the orders, once sorted, to be exactly 1..N
func validateStepOrders(steps []Step) error {
	orders := make([]int, len(steps))
	for i, step := range steps {
		orders[i] = step.Order
	}
	sort.Ints(orders)

	for i, order := range orders {
		if i > 0 && order == orders[i-1] {
			return fmt.Errorf("%w: step order %d is used more than once", ErrInvalidStepOrdering, order)
		}
		if order != i+1 {
			return fmt.Errorf("%w: step orders must be sequential starting at 1, got %v", ErrInvalidStepOrdering, orders)
		}
	}

	return nil
}

// ValidateIdentifier checks the external key used when creating a flow
func ValidateIdentifier(id string) error {
	if !identifierPattern.MatchString(id) {
		return fmt.Errorf("%w: %q may only contain letters, digits and underscores", ErrInvalidIdentifier, id)
	}
	return nil
}
