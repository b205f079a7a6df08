// Package tools holds the tool abstraction the agent loop executes:
// remote tools discovered from MCP sources, delegation tools that call
// other agents, and per-request dynamic tools.
package tools

import (
	"context"

	"github.com/paddockai/paddock/pkg/llms"
)

// Tool is a named, typed, callable affordance exposed to the model
// during a turn. Execute returns the tool result as text.
type Tool interface {
	Name() string
	Description() string
	Definition() llms.ToolDefinition
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// FuncTool adapts a plain function into a Tool.
type FuncTool struct {
	name        string
	description string
	parameters  map[string]any
	fn          func(ctx context.Context, args map[string]any) (string, error)
}

func NewFuncTool(name, description string, parameters map[string]any, fn func(ctx context.Context, args map[string]any) (string, error)) *FuncTool {
	return &FuncTool{
		name:        name,
		description: description,
		parameters:  parameters,
		fn:          fn,
	}
}

func (t *FuncTool) Name() string        { return t.name }
func (t *FuncTool) Description() string { return t.description }

func (t *FuncTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Name:        t.name,
		Description: t.description,
		Parameters:  t.parameters,
	}
}

func (t *FuncTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	return t.fn(ctx, args)
}
