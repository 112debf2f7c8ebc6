package flow

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// StepDefinition is the inbound shape of a step. Optional fields are pointers
// so that an explicit zero can be told apart from an omitted value.
type StepDefinition struct {
	Name         string   `json:"step_name" yaml:"step_name"`
	Order        int      `json:"step_order" yaml:"step_order"`
	SystemPrompt string   `json:"system_prompt" yaml:"system_prompt"`
	MaxTokens    *int     `json:"max_tokens,omitempty" yaml:"max_tokens,omitempty"`
	Temperature  *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
}

// Definition is the inbound shape of a flow as produced by the API and CLI
type Definition struct {
	ID          string           `json:"id,omitempty" yaml:"id,omitempty"`
	Name        string           `json:"name" yaml:"name"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	Steps       []StepDefinition `json:"steps" yaml:"steps"`
	IsActive    *bool            `json:"is_active,omitempty" yaml:"is_active,omitempty"`
}

// ToFlow converts the definition into a Flow, applying defaults for omitted
// optional fields. The result is not validated.
func (d Definition) ToFlow(id string) Flow {
	f := Flow{
		ID:          id,
		Name:        d.Name,
		Description: d.Description,
		Steps:       make([]Step, 0, len(d.Steps)),
		IsActive:    true,
	}
	if d.IsActive != nil {
		f.IsActive = *d.IsActive
	}

	for _, sd := range d.Steps {
		step := Step{
			Name:         sd.Name,
			Order:        sd.Order,
			SystemPrompt: sd.SystemPrompt,
			MaxTokens:    DefaultMaxTokens,
			Temperature:  DefaultTemperature,
		}
		if sd.MaxTokens != nil {
			step.MaxTokens = *sd.MaxTokens
		}
		if sd.Temperature != nil {
			step.Temperature = *sd.Temperature
		}
		f.Steps = append(f.Steps, step)
	}

	return f
}

// DefinitionFromFlow builds the inbound shape of an existing flow, e.g. for
// editing it and sending it back as an update
func DefinitionFromFlow(f Flow) Definition {
	active := f.IsActive
	d := Definition{
		ID:          f.ID,
		Name:        f.Name,
		Description: f.Description,
		Steps:       make([]StepDefinition, 0, len(f.Steps)),
		IsActive:    &active,
	}
	for _, step := range f.Steps {
		maxTokens := step.MaxTokens
		temperature := step.Temperature
		d.Steps = append(d.Steps, StepDefinition{
			Name:         step.Name,
			Order:        step.Order,
			SystemPrompt: step.SystemPrompt,
			MaxTokens:    &maxTokens,
			Temperature:  &temperature,
		})
	}
	return d
}

// ParseDefinition decodes a flow definition document. YAML and JSON are both
// accepted; unknown fields are rejected.
func ParseDefinition(data []byte) (Definition, error) {
	var def Definition

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&def); err != nil {
		return Definition{}, fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}

	return def, nil
}
