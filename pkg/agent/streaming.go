package agent

import (
	"context"

	"github.com/paddockai/paddock/pkg/llms"
	"github.com/paddockai/paddock/pkg/protocol"
	"github.com/paddockai/paddock/pkg/tools"
)

// ExecuteStreaming runs one turn, emitting chunks as they are
// produced. The channel is closed when the turn ends; an error chunk
// is always the last chunk of a failed turn and is never followed by
// a finish chunk.
func (a *Agent) ExecuteStreaming(ctx context.Context, input protocol.ChatInput) (<-chan protocol.ChatChunk, error) {
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}

	out := make(chan protocol.ChatChunk, 10)
	go func() {
		defer close(out)
		a.streamLoop(ctx, input, out)
	}()
	return out, nil
}

func (a *Agent) streamLoop(ctx context.Context, input protocol.ChatInput, out chan<- protocol.ChatChunk) {
	emit := func(chunk protocol.ChatChunk) bool {
		select {
		case out <- chunk:
			return true
		case <-ctx.Done():
			return false
		}
	}

	effective := a.effectiveTools(input)
	_, hasPageTool := effective[tools.PageContentToolName]
	systemPrompt := a.buildSystemPrompt(ctx, input, hasPageTool)

	messages := []llms.Message{
		{Role: llms.RoleSystem, Content: systemPrompt},
		{Role: llms.RoleUser, Content: input.Message},
	}
	defs := toolDefinitions(effective)

	var usage protocol.Usage

	for step := 0; step < a.deps.MaxSteps; step++ {
		chunks, err := a.provider.GenerateStreaming(ctx, messages, defs)
		if err != nil {
			emit(protocol.ErrorChunk(a.executionError(err).Error()))
			return
		}

		var stepText string
		var stepCalls []llms.ToolCall
		finishReason := llms.FinishStop

		for chunk := range chunks {
			switch chunk.Type {
			case llms.ChunkTypeText:
				stepText += chunk.Text
				if !emit(protocol.TextChunk(chunk.Text)) {
					return
				}
			case llms.ChunkTypeToolCall:
				if chunk.ToolCall != nil {
					stepCalls = append(stepCalls, *chunk.ToolCall)
				}
			case llms.ChunkTypeDone:
				finishReason = chunk.FinishReason
				usage.PromptTokens += chunk.Usage.PromptTokens
				usage.CompletionTokens += chunk.Usage.CompletionTokens
				usage.TotalTokens += chunk.Usage.TotalTokens
			case llms.ChunkTypeError:
				emit(protocol.ErrorChunk(a.executionError(chunk.Err).Error()))
				return
			}
		}

		if ctx.Err() != nil {
			return
		}

		if len(stepCalls) == 0 {
			emit(protocol.FinishChunk(mapFinishReason(finishReason), &usage))
			return
		}

		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   stepText,
			ToolCalls: stepCalls,
		})

		for _, call := range stepCalls {
			if !emit(protocol.ToolCallChunk(call.ID, call.Name, call.Arguments)) {
				return
			}
			result := a.executeTool(ctx, effective, call)
			if !emit(protocol.ToolResultChunk(call.ID, result)) {
				return
			}
			messages = append(messages, llms.Message{
				Role:       llms.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	emit(protocol.FinishChunk(protocol.FinishSteps, &usage))
}
