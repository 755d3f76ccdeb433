package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

// runActionTool returns the tool definition for run_action
func runActionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "run_action",
		Description: "Run a saved action over a piece of text with a local model and return the generated text",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"description": "Name of the saved action (see list_actions)",
				},
				"text": map[string]interface{}{
					"type":        "string",
					"description": "Input text, usually the selection in the note",
				},
				"document": map[string]interface{}{
					"type":        "string",
					"description": "Full note the text comes from; its most relevant passages are added as context",
				},
				"enhanced": map[string]interface{}{
					"type":        "boolean",
					"description": "Add retrieved context from document (default: true when document is given)",
				},
				"creativity": map[string]interface{}{
					"type":        "string",
					"description": "Temperature preset for actions that do not set one",
					"enum":        []string{"", "low", "medium", "high"},
				},
			},
			Required: []string{"action"},
		},
	}
}

// listActionsTool returns the tool definition for list_actions
func listActionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_actions",
		Description: "List saved actions in display order, each with its share string",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// saveActionTool returns the tool definition for save_action
func saveActionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "save_action",
		Description: "Add an action from its share string. An action with the same name is overwritten.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"share": map[string]interface{}{
					"type":        "string",
					"description": "Shared action, e.g. \"Name: Summarize ✂️ Prompt: Summarize the text ✂️ Replace: false\"",
				},
			},
			Required: []string{"share"},
		},
	}
}

// deleteActionTool returns the tool definition for delete_action
func deleteActionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "delete_action",
		Description: "Delete a saved action",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"description": "Name of the action to delete",
				},
			},
			Required: []string{"action"},
		},
	}
}

// moveActionTool returns the tool definition for move_action
func moveActionTool() mcp.Tool {
	return mcp.Tool{
		Name:        "move_action",
		Description: "Move a saved action up (negative) or down (positive) in the list",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"action": map[string]interface{}{
					"type":        "string",
					"description": "Name of the action to move",
				},
				"delta": map[string]interface{}{
					"type":        "integer",
					"description": "Number of places to move; clamped to the ends of the list",
				},
			},
			Required: []string{"action", "delta"},
		},
	}
}

// resetActionsTool returns the tool definition for reset_actions
func resetActionsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "reset_actions",
		Description: "Replace every saved action with the defaults. Custom actions are deleted.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"confirm": map[string]interface{}{
					"type":        "boolean",
					"description": "Must be true",
				},
			},
			Required: []string{"confirm"},
		},
	}
}

// listModelsTool returns the tool definition for list_models
func listModelsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_models",
		Description: "List the models a configured provider offers",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"provider": map[string]interface{}{
					"type":        "string",
					"description": "Provider kind (default: the primary provider)",
					"enum":        []string{"ollama", "openai_compatible", "ollama_fallback", "openai_compatible_fallback"},
				},
			},
		},
	}
}

// clearEmbeddingsCacheTool returns the tool definition for clear_embeddings_cache
func clearEmbeddingsCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "clear_embeddings_cache",
		Description: "Drop every cached embedding, in memory and on disk",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// warmCacheTool returns the tool definition for warm_cache
func warmCacheTool() mcp.Tool {
	return mcp.Tool{
		Name:        "warm_cache",
		Description: "Pre-compute embeddings for every note in a vault so enhanced actions start faster",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"path": map[string]interface{}{
					"type":        "string",
					"description": "Absolute path to the vault or notes directory",
				},
				"workers": map[string]interface{}{
					"type":        "integer",
					"description": "Number of notes embedded concurrently",
					"minimum":     1,
				},
			},
			Required: []string{"path"},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report providers, embedding cache and database statistics",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
