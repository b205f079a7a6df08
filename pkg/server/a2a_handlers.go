package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paddockai/paddock/pkg/a2a"
	"github.com/paddockai/paddock/pkg/protocol"
)

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	var req a2a.CreateTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeValidationError(w, r, "invalid request body", map[string]any{"cause": err.Error()})
		return
	}

	task, err := s.executor.CreateTask(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	tasks := s.executor.ListTasks(r.URL.Query().Get("agentPath"))
	writeJSON(w, http.StatusOK, map[string]any{"tasks": tasks})
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	task, err := s.executor.GetTask(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	cancelled, err := s.executor.CancelTask(id)
	if err != nil {
		writeError(w, r, err)
		return
	}

	task, err := s.executor.GetTask(id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"cancelled": cancelled,
		"status":    task.Status,
	})
}

func (s *Server) handleStreamTask(w http.ResponseWriter, r *http.Request) {
	events, err := s.executor.StreamTask(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, r, protocol.WrapError(protocol.ErrInternal, "streaming unsupported", err))
		return
	}

	for event := range events {
		if err := sse.send(event); err != nil {
			return
		}
	}
}
