// Package a2a implements the agent-to-agent surface: the in-memory
// task executor with its state machine and retention GC, the task
// event streams, and the .well-known discovery cards.
package a2a

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// TaskState is the lifecycle state of an A2A task.
type TaskState string

const (
	StatePending       TaskState = "pending"
	StateInProgress    TaskState = "in_progress"
	StateCompleted     TaskState = "completed"
	StateFailed        TaskState = "failed"
	StateCancelled     TaskState = "cancelled"
	StateInputRequired TaskState = "input_required"
)

// IsTerminal reports whether no further transitions are allowed.
func (s TaskState) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled:
		return true
	}
	return false
}

// canTransition encodes the legal state machine:
// pending → in_progress → {completed|failed|cancelled};
// cancelled is reachable from pending or in_progress only.
func canTransition(from, to TaskState) bool {
	switch from {
	case StatePending:
		return to == StateInProgress || to == StateCancelled
	case StateInProgress:
		return to == StateCompleted || to == StateFailed ||
			to == StateCancelled || to == StateInputRequired
	case StateInputRequired:
		return to == StateInProgress || to == StateCancelled
	}
	return false
}

// TaskResult is the stored outcome of a completed task.
type TaskResult struct {
	Text      string `json:"text"`
	ToolCalls int    `json:"toolCalls,omitempty"`
}

// Task is one client-observable background execution. CreatedAt is
// immutable; UpdatedAt advances on every status change.
type Task struct {
	TaskID    string         `json:"taskId"`
	ContextID string         `json:"contextId,omitempty"`
	AgentPath string         `json:"agentPath"`
	Message   string         `json:"message"`
	Status    TaskState      `json:"status"`
	Result    *TaskResult    `json:"result,omitempty"`
	Error     string         `json:"error,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// taskRecord couples a task with its cancellation hook. The mutex
// guards the task snapshot; transitions are compare-and-set so an
// illegal move (completed → cancelled) is rejected, not clobbered.
type taskRecord struct {
	mu     sync.Mutex
	task   Task
	cancel context.CancelFunc
}

func newTaskRecord(agentPath, message, contextID string, metadata map[string]any) *taskRecord {
	now := time.Now().UTC()
	return &taskRecord{
		task: Task{
			TaskID:    uuid.New().String(),
			ContextID: contextID,
			AgentPath: agentPath,
			Message:   message,
			Status:    StatePending,
			Metadata:  metadata,
			CreatedAt: now,
			UpdatedAt: now,
		},
	}
}

// snapshot returns a copy safe to hand to callers.
func (r *taskRecord) snapshot() Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.task
}

// transition moves the task from expected states to next, returning
// whether the move was applied.
func (r *taskRecord) transition(to TaskState, update func(t *Task)) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !canTransition(r.task.Status, to) {
		return false
	}
	r.task.Status = to
	r.task.UpdatedAt = time.Now().UTC()
	if update != nil {
		update(&r.task)
	}
	return true
}
