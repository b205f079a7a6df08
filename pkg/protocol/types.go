// Package protocol defines the wire types shared by the HTTP surface,
// the agent runtime, and the A2A executor.
package protocol

// MetadataPageContext is the ChatInput metadata key that triggers
// injection of the per-request page content tool.
const MetadataPageContext = "pageContext"

// ChatInput is a single user turn. Metadata is an opaque key-value bag;
// recognized keys may alter the per-request tool set.
type ChatInput struct {
	Message        string         `json:"message"`
	ConversationID string         `json:"conversationId,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// PageContext returns the pageContext metadata value when it is a
// non-empty string.
func (in *ChatInput) PageContext() (string, bool) {
	if in == nil || in.Metadata == nil {
		return "", false
	}
	s, ok := in.Metadata[MetadataPageContext].(string)
	if !ok || s == "" {
		return "", false
	}
	return s, true
}

// ToolCall records one tool invocation made during a turn.
type ToolCall struct {
	ID       string         `json:"id"`
	ToolName string         `json:"toolName"`
	Args     map[string]any `json:"args"`
	Result   string         `json:"result,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"promptTokens"`
	CompletionTokens int `json:"completionTokens"`
	TotalTokens      int `json:"totalTokens"`
}

// Finish reasons reported on ChatOutput and finish chunks.
const (
	FinishStop      = "stop"
	FinishLength    = "length"
	FinishToolCalls = "tool-calls"
	FinishSteps     = "steps"
)

// ChatOutput is the result of a non-streaming turn.
type ChatOutput struct {
	Text         string     `json:"text"`
	ToolCalls    []ToolCall `json:"toolCalls"`
	Usage        *Usage     `json:"usage,omitempty"`
	FinishReason string     `json:"finishReason"`
}

type ChunkType string

const (
	ChunkText       ChunkType = "text"
	ChunkToolCall   ChunkType = "tool-call"
	ChunkToolResult ChunkType = "tool-result"
	ChunkError      ChunkType = "error"
	ChunkFinish     ChunkType = "finish"
)

// ChatChunk is one streamed event of a turn. Exactly one of the
// type-specific field groups is populated, keyed by Type.
//
// Stream invariants: at most one finish chunk per turn, never emitted
// with a tool-calls finish reason; an error chunk terminates the stream.
type ChatChunk struct {
	Type         ChunkType      `json:"type"`
	Text         string         `json:"text,omitempty"`
	ID           string         `json:"id,omitempty"`
	Name         string         `json:"name,omitempty"`
	Args         map[string]any `json:"args,omitempty"`
	Result       string         `json:"result,omitempty"`
	FinishReason string         `json:"finishReason,omitempty"`
	Usage        *Usage         `json:"usage,omitempty"`
}

func TextChunk(text string) ChatChunk {
	return ChatChunk{Type: ChunkText, Text: text}
}

func ToolCallChunk(id, name string, args map[string]any) ChatChunk {
	return ChatChunk{Type: ChunkToolCall, ID: id, Name: name, Args: args}
}

func ToolResultChunk(id, result string) ChatChunk {
	return ChatChunk{Type: ChunkToolResult, ID: id, Result: result}
}

func ErrorChunk(message string) ChatChunk {
	return ChatChunk{Type: ChunkError, Text: message}
}

func FinishChunk(reason string, usage *Usage) ChatChunk {
	return ChatChunk{Type: ChunkFinish, FinishReason: reason, Usage: usage}
}
