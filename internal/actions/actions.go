package actions

import (
	"fmt"
	"strings"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// Creativity is a named sampling temperature preset
type Creativity string

const (
	CreativityNone   Creativity = ""
	CreativityLow    Creativity = "low"
	CreativityMedium Creativity = "medium"
	CreativityHigh   Creativity = "high"
)

var creativityTemperature = map[Creativity]float64{
	CreativityLow:    0.2,
	CreativityMedium: 0.5,
	CreativityHigh:   1.0,
}

// ParseCreativity accepts the preset names, case-insensitively. The empty
// string and "none" select no preset.
func ParseCreativity(s string) (Creativity, error) {
	c := Creativity(strings.ToLower(strings.TrimSpace(s)))
	if c == "none" || c == CreativityNone {
		return CreativityNone, nil
	}
	if _, ok := creativityTemperature[c]; !ok {
		return CreativityNone, fmt.Errorf("unknown creativity %q (want low, medium or high)", s)
	}
	return c, nil
}

// Temperature returns the preset's temperature, or nil when no preset is selected
func (c Creativity) Temperature() *float64 {
	t, ok := creativityTemperature[c]
	if !ok {
		return nil
	}
	return types.Float64(t)
}

// Effective returns action with its temperature taken from the creativity
// preset when the action does not set one itself
func Effective(action types.Action, c Creativity) types.Action {
	if action.Temperature == nil {
		action.Temperature = c.Temperature()
	}
	return action
}

const contextSeparator = "\n\n---\n\n"

// Compose prefixes text with the retrieved passages so the model sees them
// as context. Without passages text is returned unchanged.
func Compose(text string, passages []types.Passage) string {
	parts := make([]string, 0, len(passages))
	for _, p := range passages {
		if s := strings.TrimSpace(p.Text); s != "" {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return text
	}
	return "Context:\n" + strings.Join(parts, "\n\n") + contextSeparator + text
}
