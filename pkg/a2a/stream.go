package a2a

import (
	"context"
	"fmt"

	"github.com/paddockai/paddock/pkg/protocol"
)

type StreamEventType string

const (
	EventStatus   StreamEventType = "status"
	EventText     StreamEventType = "text"
	EventArtifact StreamEventType = "artifact"
	EventError    StreamEventType = "error"
	EventComplete StreamEventType = "complete"
)

// StreamEvent is one SSE frame of a task stream.
type StreamEvent struct {
	Type   StreamEventType `json:"type"`
	TaskID string          `json:"taskId"`
	Data   any             `json:"data,omitempty"`
}

// StreamTask runs a streaming execution of the task's turn and emits
// events as chunks arrive. The first event is always
// status(in_progress); the last is complete or error. The stream
// drives its own execution and does not share state with a background
// execution already running for the same task.
func (e *Executor) StreamTask(ctx context.Context, id string) (<-chan StreamEvent, error) {
	e.mu.RLock()
	rec, ok := e.tasks[id]
	e.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	runner, err := e.lookup(rec.task.AgentPath)
	if err != nil {
		return nil, err
	}

	out := make(chan StreamEvent, 10)
	go e.streamTask(ctx, rec, runner, out)
	return out, nil
}

func (e *Executor) streamTask(ctx context.Context, rec *record, runner Runner, out chan<- StreamEvent) {
	defer close(out)

	taskID := rec.task.TaskID
	emit := func(event StreamEvent) bool {
		event.TaskID = taskID
		select {
		case out <- event:
			return true
		case <-ctx.Done():
			return false
		}
	}

	if !emit(StreamEvent{Type: EventStatus, Data: string(StateInProgress)}) {
		return
	}

	// Cancelling the task aborts the stream too.
	streamCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-rec.runCtx.Done():
			cancel()
		case <-streamCtx.Done():
		}
	}()

	chunks, err := runner.ExecuteStreaming(streamCtx, protocol.ChatInput{
		Message:        rec.task.Message,
		ConversationID: rec.task.ContextID,
		Metadata:       rec.task.Metadata,
	})
	if err != nil {
		emit(StreamEvent{Type: EventError, Data: err.Error()})
		return
	}

	finished := false
	for chunk := range chunks {
		switch chunk.Type {
		case protocol.ChunkText:
			if !emit(StreamEvent{Type: EventText, Data: chunk.Text}) {
				return
			}
		case protocol.ChunkToolCall, protocol.ChunkToolResult:
			if !emit(StreamEvent{Type: EventArtifact, Data: chunk}) {
				return
			}
		case protocol.ChunkError:
			emit(StreamEvent{Type: EventError, Data: chunk.Text})
			return
		case protocol.ChunkFinish:
			finished = true
			emit(StreamEvent{Type: EventComplete, Data: map[string]any{
				"finishReason": chunk.FinishReason,
				"usage":        chunk.Usage,
			}})
		}
	}

	if !finished {
		// The producer stopped without a finish chunk: the turn was
		// cancelled or the client went away.
		emit(StreamEvent{Type: EventError, Data: "task stream interrupted"})
	}
}
