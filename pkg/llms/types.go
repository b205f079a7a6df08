// Package llms contains the model-provider abstraction and its two
// implementations: the native provider and an OpenAI-compatible one.
package llms

import "context"

// Message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Normalized finish reasons.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool_calls"
)

// Message is one conversation entry in provider-neutral form.
type Message struct {
	Role      string
	Content   string
	ToolCalls []ToolCall // assistant messages only
	// ToolCallID and Name identify the call a tool message answers.
	ToolCallID string
	Name       string
}

// ToolCall is a model-requested tool invocation.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDefinition describes a callable tool in JSON-Schema terms.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  map[string]any
}

type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a non-streaming generation.
type Response struct {
	Text         string
	ToolCalls    []ToolCall
	FinishReason string
	Usage        Usage
}

// Stream chunk types.
const (
	ChunkTypeText     = "text"
	ChunkTypeToolCall = "tool_call"
	ChunkTypeDone     = "done"
	ChunkTypeError    = "error"
)

// StreamChunk is one event of a streaming generation. The done chunk
// carries the finish reason and final usage.
type StreamChunk struct {
	Type         string
	Text         string
	ToolCall     *ToolCall
	FinishReason string
	Usage        Usage
	Err          error
}

// sendChunk delivers a chunk unless the request context is already
// done. A false return tells the producer to stop; without the select
// an abandoned consumer would leave the producer blocked on the
// channel forever.
func sendChunk(ctx context.Context, chunks chan<- StreamChunk, chunk StreamChunk) bool {
	select {
	case chunks <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}

// Provider generates model responses. Implementations are safe for
// concurrent use.
type Provider interface {
	Generate(ctx context.Context, messages []Message, tools []ToolDefinition) (*Response, error)
	GenerateStreaming(ctx context.Context, messages []Message, tools []ToolDefinition) (<-chan StreamChunk, error)
	ModelName() string
	Close() error
}
