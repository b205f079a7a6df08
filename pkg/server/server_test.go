package server

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockai/paddock/pkg/a2a"
	"github.com/paddockai/paddock/pkg/agent"
	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/llms"
	"github.com/paddockai/paddock/pkg/protocol"
)

// stubProvider answers every generation with a fixed reply.
type stubProvider struct {
	text string
	err  error
}

func (p *stubProvider) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (*llms.Response, error) {
	if p.err != nil {
		return nil, p.err
	}
	return &llms.Response{Text: p.text, FinishReason: llms.FinishStop, Usage: llms.Usage{TotalTokens: 3}}, nil
}

func (p *stubProvider) GenerateStreaming(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	out := make(chan llms.StreamChunk, 4)
	if p.err != nil {
		out <- llms.StreamChunk{Type: llms.ChunkTypeError, Err: p.err}
	} else {
		for _, piece := range []string{p.text[:len(p.text)/2], p.text[len(p.text)/2:]} {
			out <- llms.StreamChunk{Type: llms.ChunkTypeText, Text: piece}
		}
		out <- llms.StreamChunk{Type: llms.ChunkTypeDone, FinishReason: llms.FinishStop}
	}
	close(out)
	return out, nil
}

func (p *stubProvider) ModelName() string { return "stub" }
func (p *stubProvider) Close() error      { return nil }

func newTestServer(t *testing.T, provider llms.Provider) (*Server, *httptest.Server) {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"sales.json": `{"id": "sales-1", "path": "sales", "name": "Sales",
			"description": "Pricing questions", "systemPrompt": "You sell.",
			"discovery": {"capabilities": [{"id": "quote", "name": "Quoting"}]}}`,
		"hidden.json": `{"id": "hidden-1", "path": "hidden", "systemPrompt": "H",
			"discovery": {"discoverable": false}}`,
	}
	for name, content := range files {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
	}

	deps := agent.Dependencies{
		ProviderFactory: func(cfg *config.AgentConfig, defaults config.DefaultsConfig, key string) (llms.Provider, error) {
			return provider, nil
		},
	}
	reg := agent.NewRegistry(deps)
	require.NoError(t, reg.LoadAll(dir))

	executor := a2a.NewExecutor(func(path string) (a2a.Runner, error) {
		return reg.Get(path)
	})

	cfg := &config.Config{}
	cfg.Server.BaseURL = "https://agents.example.com/"
	cfg.SetDefaults()

	srv := New(Options{Config: cfg, Registry: reg, Executor: executor, Version: "1.0.0"})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, v any) *http.Response {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func postJSON(t *testing.T, url string, body any, v any) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp
}

func TestListAgents(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	var body struct {
		Agents []agent.Summary `json:"agents"`
	}
	resp := getJSON(t, ts.URL+"/agents", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, body.Agents, 2)
	assert.Equal(t, "hidden", body.Agents[0].Path)
	assert.Equal(t, "sales", body.Agents[1].Path)
	assert.NotEmpty(t, resp.Header.Get("X-Trace-Id"))
}

func TestGetAgent(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	var body map[string]string
	resp := getJSON(t, ts.URL+"/agents/sales", &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "sales-1", body["id"])
	assert.Equal(t, "Pricing questions", body["description"])

	var envelope protocol.ErrorEnvelope
	resp = getJSON(t, ts.URL+"/agents/ghost", &envelope)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, protocol.ErrAgentNotFound, envelope.Error.Code)
	assert.NotEmpty(t, envelope.Error.TraceID)
	assert.NotEmpty(t, envelope.Error.Timestamp)
}

func TestChat(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "Hello there!"})

	var body struct {
		Success bool                `json:"success"`
		Data    protocol.ChatOutput `json:"data"`
		TraceID string              `json:"traceId"`
	}
	resp := postJSON(t, ts.URL+"/agents/sales/chat", map[string]string{"message": "hi"}, &body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, body.Success)
	assert.Equal(t, "Hello there!", body.Data.Text)
	assert.Empty(t, body.Data.ToolCalls)
	assert.NotEmpty(t, body.TraceID)
}

func TestChat_Validation(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	var envelope protocol.ErrorEnvelope
	resp := postJSON(t, ts.URL+"/agents/sales/chat", map[string]string{}, &envelope)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, protocol.ErrValidation, envelope.Error.Code)
	assert.Equal(t, "message", envelope.Error.Details["field"])
}

func TestChat_UnknownAgent(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	var envelope protocol.ErrorEnvelope
	resp := postJSON(t, ts.URL+"/agents/nope/chat", map[string]string{"message": "hi"}, &envelope)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, protocol.ErrAgentNotFound, envelope.Error.Code)
}

// readSSEFrames collects every data frame from an SSE response body.
func readSSEFrames(t *testing.T, resp *http.Response) []map[string]any {
	t.Helper()
	var frames []map[string]any
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "data: ") {
			continue
		}
		var frame map[string]any
		require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &frame))
		frames = append(frames, frame)
	}
	return frames
}

func TestChatStream(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "Hello!"})

	resp, err := http.Post(ts.URL+"/agents/sales/stream", "application/json",
		strings.NewReader(`{"message": "hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	frames := readSSEFrames(t, resp)
	require.GreaterOrEqual(t, len(frames), 4)
	assert.Equal(t, "start", frames[0]["type"])
	assert.NotEmpty(t, frames[0]["traceId"])
	assert.Equal(t, "text", frames[1]["type"])
	assert.Equal(t, "done", frames[len(frames)-1]["type"])

	var text string
	for _, frame := range frames {
		if frame["type"] == "text" {
			text += frame["text"].(string)
		}
	}
	assert.Equal(t, "Hello!", text)
}

func TestChatStream_Error(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "x", err: fmt.Errorf("model down")})

	resp, err := http.Post(ts.URL+"/agents/sales/stream", "application/json",
		strings.NewReader(`{"message": "hi"}`))
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readSSEFrames(t, resp)
	require.NotEmpty(t, frames)
	last := frames[len(frames)-1]
	assert.Equal(t, "error", last["type"])
	assert.Contains(t, last["content"], "model down")
}

func TestDiscoveryCards(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	var service a2a.Card
	resp := getJSON(t, ts.URL+"/.well-known/agent.json", &service)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1.0", service.Protocol)
	assert.Equal(t, "https://agents.example.com", service.URL)

	ids := make([]string, len(service.Skills))
	for i, skill := range service.Skills {
		ids[i] = skill.ID
	}
	assert.Contains(t, ids, "sales-1")
	assert.Contains(t, ids, "sales-1:quote")
	assert.NotContains(t, ids, "hidden-1")

	var card a2a.Card
	resp = getJSON(t, ts.URL+"/.well-known/agents/sales/agent.json", &card)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	require.Len(t, card.Skills, 1)
	assert.Equal(t, "quote", card.Skills[0].ID)

	resp = getJSON(t, ts.URL+"/.well-known/agents/hidden/agent.json", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestA2ALifecycle(t *testing.T) {
	srv, ts := newTestServer(t, &stubProvider{text: "done and dusted"})

	var task a2a.Task
	resp := postJSON(t, ts.URL+"/a2a/tasks",
		map[string]string{"agentPath": "sales", "message": "m"}, &task)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, a2a.StatePending, task.Status)
	require.NotEmpty(t, task.TaskID)

	deadline := time.After(2 * time.Second)
	for task.Status != a2a.StateCompleted {
		select {
		case <-deadline:
			t.Fatalf("task stuck in %s", task.Status)
		case <-time.After(10 * time.Millisecond):
		}
		getJSON(t, ts.URL+"/a2a/tasks/"+task.TaskID, &task)
	}
	require.NotNil(t, task.Result)
	assert.Equal(t, "done and dusted", task.Result.Text)

	assert.Equal(t, 1, srv.executor.CleanupOldTasks(0))
	resp = getJSON(t, ts.URL+"/a2a/tasks/"+task.TaskID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestA2ACreate_UnknownAgent(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	var envelope protocol.ErrorEnvelope
	resp := postJSON(t, ts.URL+"/a2a/tasks",
		map[string]string{"agentPath": "ghost", "message": "m"}, &envelope)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, protocol.ErrAgentNotFound, envelope.Error.Code)
}

func TestA2AListAndCancel(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	var task a2a.Task
	postJSON(t, ts.URL+"/a2a/tasks", map[string]string{"agentPath": "sales", "message": "m"}, &task)

	var list struct {
		Tasks []a2a.Task `json:"tasks"`
	}
	getJSON(t, ts.URL+"/a2a/tasks?agentPath=sales", &list)
	assert.Len(t, list.Tasks, 1)
	getJSON(t, ts.URL+"/a2a/tasks?agentPath=ghost", &list)
	assert.Empty(t, list.Tasks)

	// By the time cancel lands the task may already be terminal; either
	// way the endpoint answers with the outcome.
	var result map[string]any
	resp := postJSON(t, ts.URL+"/a2a/tasks/"+task.TaskID+"/cancel", nil, &result)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, result, "cancelled")

	var envelope protocol.ErrorEnvelope
	resp = postJSON(t, ts.URL+"/a2a/tasks/nope/cancel", nil, &envelope)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, protocol.ErrA2ATask, envelope.Error.Code)
}

func TestA2ATaskStream(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "streamed"})

	var task a2a.Task
	postJSON(t, ts.URL+"/a2a/tasks", map[string]string{"agentPath": "sales", "message": "m"}, &task)

	resp, err := http.Get(ts.URL + "/a2a/tasks/" + task.TaskID + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()

	frames := readSSEFrames(t, resp)
	require.NotEmpty(t, frames)
	assert.Equal(t, "status", frames[0]["type"])
	assert.Equal(t, "in_progress", frames[0]["data"])
	assert.Equal(t, "complete", frames[len(frames)-1]["type"])
	for _, frame := range frames {
		assert.Equal(t, task.TaskID, frame["taskId"])
	}
}

func TestHealth(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	for _, path := range []string{"/health", "/health/live"} {
		var body map[string]string
		resp := getJSON(t, ts.URL+path, &body)
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "ok", body["status"])
	}

	var ready map[string]any
	resp := getJSON(t, ts.URL+"/health/ready", &ready)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), ready["agents"])
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t, &stubProvider{text: "hi"})

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}
