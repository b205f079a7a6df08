package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// sseWriteTimeout bounds each frame write so a stalled consumer
// cancels the stream instead of buffering unboundedly.
const sseWriteTimeout = 30 * time.Second

type sseWriter struct {
	w          http.ResponseWriter
	flusher    http.Flusher
	controller *http.ResponseController
}

// newSSEWriter prepares the response for server-sent events. It fails
// when the underlying writer cannot flush.
func newSSEWriter(w http.ResponseWriter) (*sseWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("response writer does not support streaming")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	return &sseWriter{
		w:          w,
		flusher:    flusher,
		controller: http.NewResponseController(w),
	}, nil
}

// send writes one JSON data frame. A write that cannot complete within
// the timeout fails the stream.
func (s *sseWriter) send(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal SSE frame: %w", err)
	}

	_ = s.controller.SetWriteDeadline(time.Now().Add(sseWriteTimeout))
	if _, err := fmt.Fprintf(s.w, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
