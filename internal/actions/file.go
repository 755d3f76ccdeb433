package actions

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/baykov477/obsidian-local-gpt/pkg/types"
)

type actionsFile struct {
	Actions []types.Action `yaml:"actions"`
}

// LoadFile reads a list of actions from a YAML file:
//
//	actions:
//	  - name: Summarize
//	    prompt: Summarize the text in one paragraph.
//	    temperature: 0.2
//
// Names must be present and unique.
func LoadFile(path string) ([]types.Action, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read actions file: %w", err)
	}

	var f actionsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse actions file %s: %w", path, err)
	}

	seen := make(map[string]bool, len(f.Actions))
	for i, a := range f.Actions {
		if err := a.Validate(); err != nil {
			return nil, fmt.Errorf("action %d in %s: %w", i+1, path, err)
		}
		if seen[a.Name] {
			return nil, fmt.Errorf("duplicate action %q in %s", a.Name, path)
		}
		seen[a.Name] = true
	}
	return f.Actions, nil
}

// WriteFile saves actions in the format LoadFile reads
func WriteFile(path string, list []types.Action) error {
	data, err := yaml.Marshal(&actionsFile{Actions: list})
	if err != nil {
		return fmt.Errorf("failed to encode actions: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

const assistantSystem = "You are an AI assistant that follows instruction extremely well. Help as much as you can."

// Defaults returns the built-in actions a fresh install starts with
func Defaults() []types.Action {
	return []types.Action{
		{
			Name:   "🪄 General help",
			System: "You are an assistant helping a user with their notes. Answer in the language of the text.",
		},
		{
			Name:   "✍️ Continue writing",
			Prompt: "Act as a professional editor with many years of experience as a writer. Carefully finalize the following text, add details, use facts and make sure that the meaning and original style are preserved. Purposely write in detail, with examples, so that your reader is comfortable, even if they don't understand the specifics. Don't use clericalisms, evaluations without proof with facts, passive voice. Use Markdown markup language for formatting. Answer only content and nothing else, no introductory words, only substance.",
			System: assistantSystem,
		},
		{
			Name:   "🍭 Summarize",
			Prompt: "Make a concise summary of the key points of the following text.",
			System: assistantSystem,
		},
		{
			Name:    "📖 Fix spelling and grammar",
			Prompt:  "Proofread the below for spelling and grammar.",
			System:  assistantSystem,
			Replace: true,
		},
		{
			Name:   "✅ Find action items",
			Prompt: "Act as an assistant helping find action items inside a document. An action item is an extracted task or to-do found inside of an unstructured document. Use Markdown checkbox format: each line starts with \"- [ ] \"",
			System: assistantSystem,
		},
		{
			Name:   "🧠 New System Prompt",
			System: "You are a highly skilled AI prompt engineer with expertise in creating tailored prompts for a wide range of professional roles. You have a deep knowledge of how to craft prompts that effectively guide the language model to produce high-quality, contextually appropriate responses.\n\nYour task is to create a system prompt for the role the user describes. Answer only with the prompt.",
		},
	}
}
