package a2a

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/paddockai/paddock/pkg/observability"
	"github.com/paddockai/paddock/pkg/protocol"
)

// DefaultRetention is the GC age horizon for terminal tasks.
const DefaultRetention = time.Hour

// ErrTaskNotFound marks lookups of unknown task ids. Callers that need
// a coded error wrap it.
var ErrTaskNotFound = protocol.NewError(protocol.ErrA2ATask, "task not found")

// Runner executes agent turns on behalf of a task.
type Runner interface {
	Execute(ctx context.Context, input protocol.ChatInput) (*protocol.ChatOutput, error)
	ExecuteStreaming(ctx context.Context, input protocol.ChatInput) (<-chan protocol.ChatChunk, error)
}

// AgentLookup resolves an agent path to its runner. A missing path
// must fail with an AGENT_NOT_FOUND coded error.
type AgentLookup func(path string) (Runner, error)

// Executor owns every task record. Tasks are in-memory only; restart
// loses them.
type Executor struct {
	lookup AgentLookup

	mu    sync.RWMutex
	tasks map[string]*record
}

// record couples a task with its background execution context. The
// embedded taskRecord serializes transitions.
type record struct {
	taskRecord
	runCtx    context.Context
	cancelRun context.CancelFunc
}

func NewExecutor(lookup AgentLookup) *Executor {
	return &Executor{
		lookup: lookup,
		tasks:  make(map[string]*record),
	}
}

// CreateTaskRequest is the POST /a2a/tasks body.
type CreateTaskRequest struct {
	AgentPath string         `json:"agentPath"`
	Message   string         `json:"message"`
	ContextID string         `json:"contextId,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// CreateTask validates the agent path, records a pending task, and
// schedules background execution. The pending descriptor is returned
// immediately.
func (e *Executor) CreateTask(ctx context.Context, req CreateTaskRequest) (Task, error) {
	if req.AgentPath == "" {
		return Task{}, protocol.NewError(protocol.ErrValidation, "agentPath is required")
	}
	if req.Message == "" {
		return Task{}, protocol.NewError(protocol.ErrValidation, "message is required")
	}

	runner, err := e.lookup(req.AgentPath)
	if err != nil {
		return Task{}, err
	}

	rec := &record{taskRecord: *newTaskRecord(req.AgentPath, req.Message, req.ContextID, req.Metadata)}
	// Background execution outlives the create request; only CancelTask
	// or process shutdown stops it.
	rec.runCtx, rec.cancelRun = context.WithCancel(context.Background())

	e.mu.Lock()
	e.tasks[rec.task.TaskID] = rec
	e.mu.Unlock()

	go e.run(rec, runner)
	return rec.snapshot(), nil
}

func (e *Executor) run(rec *record, runner Runner) {
	defer rec.cancelRun()

	// A cancel that lands before the goroutine starts wins.
	if !e.transition(rec, StateInProgress, nil) {
		return
	}

	output, err := runner.Execute(rec.runCtx, protocol.ChatInput{
		Message:        rec.task.Message,
		ConversationID: rec.task.ContextID,
		Metadata:       rec.task.Metadata,
	})

	if rec.runCtx.Err() != nil {
		// Cancelled mid-flight; the result, if any, is discarded.
		return
	}

	if err != nil {
		e.transition(rec, StateFailed, func(t *Task) { t.Error = err.Error() })
		slog.Warn("Task failed", "task", rec.task.TaskID, "agent", rec.task.AgentPath, "error", err)
		return
	}

	e.transition(rec, StateCompleted, func(t *Task) {
		t.Result = &TaskResult{Text: output.Text, ToolCalls: len(output.ToolCalls)}
	})
}

// transition applies a state change and records the metric when it
// takes effect.
func (e *Executor) transition(rec *record, to TaskState, update func(*Task)) bool {
	if !rec.transition(to, update) {
		return false
	}
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordTaskTransition(context.Background(), string(to))
	}
	return true
}

// GetTask returns a snapshot of the task.
func (e *Executor) GetTask(id string) (Task, error) {
	e.mu.RLock()
	rec, ok := e.tasks[id]
	e.mu.RUnlock()
	if !ok {
		return Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}
	return rec.snapshot(), nil
}

// ListTasks returns all tasks, optionally filtered by agent path.
// Order is unspecified.
func (e *Executor) ListTasks(agentPath string) []Task {
	e.mu.RLock()
	defer e.mu.RUnlock()

	tasks := make([]Task, 0, len(e.tasks))
	for _, rec := range e.tasks {
		snap := rec.snapshot()
		if agentPath != "" && snap.AgentPath != agentPath {
			continue
		}
		tasks = append(tasks, snap)
	}
	return tasks
}

// CancelTask cancels a pending or in-progress task, returning whether
// the cancellation took effect. Terminal tasks are left untouched.
// Cancellation is cooperative: the execution context is cancelled and
// in-flight calls abort at their next I/O boundary.
func (e *Executor) CancelTask(id string) (bool, error) {
	e.mu.RLock()
	rec, ok := e.tasks[id]
	e.mu.RUnlock()
	if !ok {
		return false, fmt.Errorf("%w: %s", ErrTaskNotFound, id)
	}

	if !e.transition(rec, StateCancelled, nil) {
		return false, nil
	}
	rec.cancelRun()
	return true, nil
}

// CleanupOldTasks deletes completed and failed tasks whose last update
// is older than maxAge, returning the count deleted. Cancelled tasks
// are retained regardless of age.
func (e *Executor) CleanupOldTasks(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	e.mu.Lock()
	defer e.mu.Unlock()

	deleted := 0
	for id, rec := range e.tasks {
		snap := rec.snapshot()
		if snap.Status != StateCompleted && snap.Status != StateFailed {
			continue
		}
		if snap.UpdatedAt.Before(cutoff) {
			delete(e.tasks, id)
			deleted++
		}
	}
	return deleted
}

// RunGC runs CleanupOldTasks on a ticker until ctx is done.
func (e *Executor) RunGC(ctx context.Context, interval, maxAge time.Duration) {
	if interval <= 0 {
		interval = DefaultRetention
	}
	if maxAge <= 0 {
		maxAge = DefaultRetention
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if deleted := e.CleanupOldTasks(maxAge); deleted > 0 {
				slog.Info("Task GC removed terminal tasks", "count", deleted)
			}
		}
	}
}
