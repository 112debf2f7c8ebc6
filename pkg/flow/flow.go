// Package flow defines prompt flows, their steps, and the rules that make a
// flow definition executable.
package flow

import (
	"sort"
	"time"
)

// Default values applied to optional step fields
const (
	DefaultMaxTokens   = 100
	DefaultTemperature = 0.7
)

// Step is one stage of a flow: a system instruction, a token and temperature
// budget, and a position in the execution order
type Step struct {
	// Name identifies the step in execution results
	Name string `json:"step_name" yaml:"step_name"`

	// Order is the 1-based execution position
	Order int `json:"step_order" yaml:"step_order"`

	// SystemPrompt is sent as the system message of the step's exchange
	SystemPrompt string `json:"system_prompt" yaml:"system_prompt"`

	// MaxTokens bounds the completion length
	MaxTokens int `json:"max_tokens" yaml:"max_tokens"`

	// Temperature is the sampling temperature in [0, 1]
	Temperature float64 `json:"temperature" yaml:"temperature"`
}

// Flow is a named, ordered pipeline of prompting steps
type Flow struct {
	// ID is the external key, assigned by the creator
	ID string `json:"id" yaml:"id"`

	// Name of the flow
	Name string `json:"name" yaml:"name"`

	// Description of the flow
	Description string `json:"description" yaml:"description"`

	// Steps owned by the flow, in the order they were defined
	Steps []Step `json:"steps" yaml:"steps"`

	// IsActive indicates whether the flow may be executed
	IsActive bool `json:"is_active" yaml:"is_active"`

	// CreatedAt and UpdatedAt are maintained by the storage provider
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// SortedSteps returns a copy of the flow's steps ordered by Order. The flow
// itself is left untouched.
func (f Flow) SortedSteps() []Step {
	steps := make([]Step, len(f.Steps))
	copy(steps, f.Steps)
	sort.SliceStable(steps, func(i, j int) bool {
		return steps[i].Order < steps[j].Order
	})
	return steps
}
