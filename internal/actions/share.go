package actions

import (
	"errors"
	"strconv"
	"strings"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

// Separator divides the fields of a shared action
const Separator = "✂️"

const (
	prefixName    = "Name: "
	prefixSystem  = "System: "
	prefixPrompt  = "Prompt: "
	prefixReplace = "Replace: "
	prefixModel   = "Model: "
)

// ErrMissingName is returned by Parse when the shared text has no Name field
var ErrMissingName = errors.New("shared action has no name")

// Format renders action in the copy-and-paste share format:
//
//	Name: Summarize ✂️
//	Prompt: Summarize the text ✂️
//	Model: llama3
//
// Empty fields are omitted. Temperature is not shared.
func Format(action types.Action) string {
	var parts []string
	add := func(prefix, value string) {
		if value != "" {
			parts = append(parts, prefix+value)
		}
	}
	add(prefixName, action.Name)
	add(prefixSystem, action.System)
	add(prefixPrompt, action.Prompt)
	if action.Replace {
		add(prefixReplace, "true")
	}
	add(prefixModel, action.Model)
	return strings.Join(parts, " "+Separator+"\n")
}

// Parse reads an action in the share format. Unrecognised parts are ignored;
// a later field of the same kind wins.
func Parse(s string) (types.Action, error) {
	var a types.Action
	for _, part := range strings.Split(s, Separator) {
		part = strings.TrimSpace(part)
		switch {
		case strings.HasPrefix(part, prefixName):
			a.Name = strings.TrimPrefix(part, prefixName)
		case strings.HasPrefix(part, prefixSystem):
			a.System = strings.TrimPrefix(part, prefixSystem)
		case strings.HasPrefix(part, prefixPrompt):
			a.Prompt = strings.TrimPrefix(part, prefixPrompt)
		case strings.HasPrefix(part, prefixReplace):
			a.Replace, _ = strconv.ParseBool(strings.TrimSpace(strings.TrimPrefix(part, prefixReplace)))
		case strings.HasPrefix(part, prefixModel):
			a.Model = strings.TrimPrefix(part, prefixModel)
		}
	}
	if a.Name == "" {
		return types.Action{}, ErrMissingName
	}
	return a, nil
}
