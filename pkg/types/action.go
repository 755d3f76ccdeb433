package types

import (
	"errors"
	"strings"
)

// Action is a saved, named prompt template.
// Temperature is nil when the action leaves it unset.
type Action struct {
	Name        string   `json:"name" yaml:"name"`
	Prompt      string   `json:"prompt" yaml:"prompt"`
	System      string   `json:"system,omitempty" yaml:"system,omitempty"`
	Model       string   `json:"model,omitempty" yaml:"model,omitempty"`
	Temperature *float64 `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Replace     bool     `json:"replace,omitempty" yaml:"replace,omitempty"`
}

// ErrEmptyActionName is returned when an action has no name
var ErrEmptyActionName = errors.New("action name cannot be empty")

// Validate checks the action has a usable name
func (a Action) Validate() error {
	if strings.TrimSpace(a.Name) == "" {
		return ErrEmptyActionName
	}
	return nil
}

// UserContent joins the prompt template and the input text with a blank line.
// Either half may be empty, in which case only the other one is used.
func (a Action) UserContent(text string) string {
	parts := make([]string, 0, 2)
	if a.Prompt != "" {
		parts = append(parts, a.Prompt)
	}
	if text != "" {
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n")
}

// ModelOr returns the action's model override, or fallback when none is set
func (a Action) ModelOr(fallback string) string {
	if a.Model != "" {
		return a.Model
	}
	return fallback
}

// Float64 returns a pointer to v, for building actions with a temperature
func Float64(v float64) *float64 {
	return &v
}
