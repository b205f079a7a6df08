package tools

import (
	"context"
	"fmt"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/llms"
	"github.com/paddockai/paddock/pkg/protocol"
)

// Delegate is the slice of an agent a delegation tool needs: a
// non-streaming execute.
type Delegate interface {
	Execute(ctx context.Context, input protocol.ChatInput) (*protocol.ChatOutput, error)
}

// DelegateLookup resolves an agent path at invocation time. Lookup is
// deferred so agents can delegate to agents loaded after them.
type DelegateLookup func(path string) (Delegate, error)

// DelegationTool forwards a message to another agent and returns its
// reply as the tool result. Failures are returned as a result string
// rather than an error so the calling model can recover.
type DelegationTool struct {
	target config.DelegationTarget
	lookup DelegateLookup
}

func NewDelegationTool(target config.DelegationTarget, lookup DelegateLookup) *DelegationTool {
	return &DelegationTool{target: target, lookup: lookup}
}

func (t *DelegationTool) Name() string {
	return t.target.ToolName
}

func (t *DelegationTool) Description() string {
	if t.target.Description != "" {
		return t.target.Description
	}
	return fmt.Sprintf("Delegate a question to the %s agent", t.target.AgentPath)
}

func (t *DelegationTool) Definition() llms.ToolDefinition {
	return llms.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters: map[string]any{
			"type": "object",
			"properties": map[string]any{
				"message": map[string]any{
					"type":        "string",
					"description": "The message to send to the agent",
				},
			},
			"required": []any{"message"},
		},
	}
}

func (t *DelegationTool) Execute(ctx context.Context, args map[string]any) (string, error) {
	message, _ := args["message"].(string)
	if message == "" {
		return t.failure("message argument is required"), nil
	}

	agent, err := t.lookup(t.target.AgentPath)
	if err != nil {
		return t.failure(err.Error()), nil
	}

	output, err := agent.Execute(ctx, protocol.ChatInput{Message: message})
	if err != nil {
		return t.failure(err.Error()), nil
	}
	return output.Text, nil
}

func (t *DelegationTool) failure(reason string) string {
	return fmt.Sprintf("Error: Failed to get response from %s agent. %s", t.target.AgentPath, reason)
}
