package server

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/paddockai/paddock/pkg/protocol"
)

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": s.registry.List()})
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.registry.GetConfig(chi.URLParam(r, "path"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"path":        cfg.Path,
		"id":          cfg.ID,
		"name":        cfg.Name,
		"description": cfg.Description,
	})
}

// decodeChatInput parses and validates the chat request body.
func decodeChatInput(r *http.Request) (protocol.ChatInput, *protocol.Error) {
	var input protocol.ChatInput
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		return input, protocol.NewError(protocol.ErrValidation, "invalid request body").
			WithDetails(map[string]any{"cause": err.Error()})
	}
	if input.Message == "" {
		return input, protocol.NewError(protocol.ErrValidation, "message is required").
			WithDetails(map[string]any{"field": "message"})
	}
	return input, nil
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	a, err := s.registry.Get(chi.URLParam(r, "path"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	input, verr := decodeChatInput(r)
	if verr != nil {
		writeError(w, r, verr)
		return
	}

	output, err := a.Execute(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeSuccess(w, r, http.StatusOK, output)
}

// SSE frame types wrapping the chunk stream.
const (
	frameStart = "start"
	frameDone  = "done"
	frameError = "error"
)

type streamFrame struct {
	Type    string `json:"type"`
	TraceID string `json:"traceId,omitempty"`
	Content string `json:"content,omitempty"`
}

func (s *Server) handleChatStream(w http.ResponseWriter, r *http.Request) {
	a, err := s.registry.Get(chi.URLParam(r, "path"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	input, verr := decodeChatInput(r)
	if verr != nil {
		writeError(w, r, verr)
		return
	}

	chunks, err := a.ExecuteStreaming(r.Context(), input)
	if err != nil {
		writeError(w, r, err)
		return
	}

	sse, err := newSSEWriter(w)
	if err != nil {
		writeError(w, r, protocol.WrapError(protocol.ErrInternal, "streaming unsupported", err))
		return
	}

	if err := sse.send(streamFrame{Type: frameStart, TraceID: TraceID(r.Context())}); err != nil {
		return
	}

	for chunk := range chunks {
		if chunk.Type == protocol.ChunkError {
			_ = sse.send(streamFrame{Type: frameError, Content: chunk.Text})
			return
		}
		if err := sse.send(chunk); err != nil {
			// Consumer stalled or went away; the turn aborts at the
			// next suspension point via r.Context().
			return
		}
	}
	_ = sse.send(streamFrame{Type: frameDone})
}

func (s *Server) handleServiceCard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cards.ServiceCard())
}

func (s *Server) handleAgentCard(w http.ResponseWriter, r *http.Request) {
	card := s.cards.AgentCard(chi.URLParam(r, "path"))
	if card == nil {
		writeError(w, r, protocol.NewError(protocol.ErrAgentNotFound, "no discovery card for this path"))
		return
	}
	writeJSON(w, http.StatusOK, card)
}
