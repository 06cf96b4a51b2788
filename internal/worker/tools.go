package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/nextlevelbuilder/seaturtle/internal/providers"
)

// toolDefinitions returns the schemas for the agent's enabled tools.
func (w *Worker) toolDefinitions() []providers.ToolDefinition {
	var defs []providers.ToolDefinition

	if w.agent.ToolEnabled("shell") {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        "execute_shell",
				Description: "Execute a shell command in the agent workspace and return its output.",
				Parameters: map[string]interface{}{
					"type": "object",
					"properties": map[string]interface{}{
						"command": map[string]interface{}{
							"type":        "string",
							"description": "The shell command to execute.",
						},
					},
					"required": []string{"command"},
				},
			},
		})
	}

	if w.agent.ToolEnabled("memory") {
		defs = append(defs,
			providers.ToolDefinition{
				Type: "function",
				Function: providers.ToolFunctionSchema{
					Name:        "read_memory",
					Description: "Read the agent's long-term memory. Pass a keyword to search matching lines only.",
					Parameters: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"keyword": map[string]interface{}{
								"type":        "string",
								"description": "Optional case-insensitive search keyword.",
							},
						},
					},
				},
			},
			providers.ToolDefinition{
				Type: "function",
				Function: providers.ToolFunctionSchema{
					Name:        "write_memory",
					Description: "Save something to long-term memory. Appends by default; mode \"replace\" overwrites everything.",
					Parameters: map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"content": map[string]interface{}{
								"type":        "string",
								"description": "The text to remember.",
							},
							"mode": map[string]interface{}{
								"type":        "string",
								"enum":        []string{"append", "replace"},
								"description": "append (default) or replace.",
							},
						},
						"required": []string{"content"},
					},
				},
			},
		)
	}

	if w.agent.ToolEnabled("task") {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        "read_tasks",
				Description: "Read the agent's task list (task.md).",
				Parameters: map[string]interface{}{
					"type":       "object",
					"properties": map[string]interface{}{},
				},
			},
		})
	}

	return defs
}

// handleToolCall executes one tool call and returns the result text that
// goes back to the LLM.
func (w *Worker) handleToolCall(ctx context.Context, tc providers.ToolCall) string {
	switch tc.Name {
	case "execute_shell":
		command, _ := tc.Arguments["command"].(string)
		if command == "" {
			return "Error: execute_shell requires a \"command\" argument."
		}
		res := w.exec.Execute(ctx, command)
		if res.NeedsConfirmation {
			return fmt.Sprintf("⚠️ This command requires user confirmation: `%s`. "+
				"Explain to the user what it does and ask them to run it themselves.", command)
		}
		return fmt.Sprintf("stdout:\n%s\nstderr:\n%s\nexit_code: %d", res.Stdout, res.Stderr, res.ExitCode)

	case "read_memory":
		keyword, _ := tc.Arguments["keyword"].(string)
		if keyword != "" {
			hits := w.ws.SearchMemory(keyword)
			if len(hits) == 0 {
				return "No memory entries match \"" + keyword + "\"."
			}
			return strings.Join(hits, "\n")
		}
		memory := w.ws.Memory()
		if strings.TrimSpace(memory) == "" {
			return "(memory is empty)"
		}
		return memory

	case "write_memory":
		content, _ := tc.Arguments["content"].(string)
		if content == "" {
			return "Error: write_memory requires a \"content\" argument."
		}
		mode, _ := tc.Arguments["mode"].(string)
		var ok bool
		if mode == "replace" {
			ok = w.ws.WriteMemory(content)
		} else {
			ok = w.ws.AppendMemory(content)
		}
		if !ok {
			return "Failed to write memory."
		}
		return "Memory updated."

	case "read_tasks":
		task := w.ws.Task()
		if strings.TrimSpace(task) == "" {
			return "(no task file)"
		}
		return task

	default:
		return "Unknown tool: " + tc.Name
	}
}
