package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Write deadlines must survive the middleware wrapper, otherwise SSE
// responses lose their backpressure bound.
func TestStatusWriter_WriteDeadlinePassesThrough(t *testing.T) {
	deadlineErr := make(chan error, 1)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w}
		rc := http.NewResponseController(sw)
		deadlineErr <- rc.SetWriteDeadline(time.Now().Add(time.Minute))
		sw.WriteHeader(http.StatusOK)
	}))
	defer ts.Close()

	resp, err := http.Get(ts.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.NoError(t, <-deadlineErr)
}

func TestStatusWriter_CapturesStatusAndBytes(t *testing.T) {
	rec := httptest.NewRecorder()
	sw := &statusWriter{ResponseWriter: rec}

	sw.WriteHeader(http.StatusAccepted)
	n, err := sw.Write([]byte("ok"))
	require.NoError(t, err)

	assert.Equal(t, 2, n)
	assert.Equal(t, http.StatusAccepted, sw.status)
	assert.Equal(t, 2, sw.bytes)
}
