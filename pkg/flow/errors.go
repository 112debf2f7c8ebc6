package flow

import "errors"

// Errors returned when validating or executing a flow definition
var (
	ErrInvalidFormat       = errors.New("invalid format")
	ErrInvalidStepOrdering = errors.New("invalid step ordering")
	ErrInvalidIdentifier   = errors.New("invalid flow identifier")
	ErrDuplicateIdentifier = errors.New("flow identifier already exists")
	ErrEmptyInput          = errors.New("user message cannot be empty")
	ErrEmptyFlow           = errors.New("flow must have at least one step")
	ErrInactiveFlow        = errors.New("flow is not active")
)
