package tools

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/httpclient"
	"github.com/paddockai/paddock/pkg/protocol"
)

// httpSource speaks MCP JSON-RPC over HTTP. It covers both the sse and
// streamable-http transports; the server decides per response whether
// to answer with plain JSON or an event stream.
type httpSource struct {
	cfg        config.ToolSourceConfig
	httpClient *httpclient.Client
	connected  bool

	sessionMu sync.RWMutex
	sessionID string
}

func newHTTPSource(cfg config.ToolSourceConfig) *httpSource {
	return &httpSource{
		cfg: cfg,
		httpClient: httpclient.New(
			httpclient.WithTimeout(30*time.Second),
			httpclient.WithMaxRetries(3),
			httpclient.WithBaseDelay(2*time.Second),
		),
	}
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      int       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *rpcError `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (s *httpSource) ID() string {
	return s.cfg.ID
}

func (s *httpSource) Connect(ctx context.Context) error {
	resp, err := s.rpc(ctx, "initialize", map[string]any{
		"protocolVersion": mcpProtocolVersion,
		"clientInfo": map[string]any{
			"name":    clientName,
			"version": clientVersion,
		},
		"capabilities": map[string]any{},
	})
	if err != nil {
		return protocol.WrapError(protocol.ErrMCPConnection,
			fmt.Sprintf("failed to initialize tool source '%s'", s.cfg.ID), err)
	}
	if resp.Error != nil {
		return protocol.NewError(protocol.ErrMCPConnection,
			fmt.Sprintf("tool source '%s' rejected initialize: %s", s.cfg.ID, resp.Error.Message))
	}

	s.connected = true
	return nil
}

func (s *httpSource) ListTools(ctx context.Context) ([]Descriptor, error) {
	if !s.connected {
		return nil, fmt.Errorf("tool source '%s' is not connected", s.cfg.ID)
	}

	resp, err := s.rpc(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools from '%s': %w", s.cfg.ID, err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("tools/list failed on '%s': %s", s.cfg.ID, resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("unexpected tools/list result from '%s'", s.cfg.ID)
	}
	toolsList, ok := resultMap["tools"].([]any)
	if !ok {
		return nil, fmt.Errorf("missing tools in tools/list response from '%s'", s.cfg.ID)
	}

	var descriptors []Descriptor
	for _, raw := range toolsList {
		toolMap, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		name, _ := toolMap["name"].(string)
		if name == "" {
			continue
		}
		desc, _ := toolMap["description"].(string)
		schema, _ := toolMap["inputSchema"].(map[string]any)

		descriptors = append(descriptors, Descriptor{
			Name:        name,
			Description: desc,
			InputSchema: schema,
		})
	}
	return descriptors, nil
}

func (s *httpSource) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if !s.connected {
		return "", fmt.Errorf("tool source '%s' is not connected", s.cfg.ID)
	}

	resp, err := s.rpc(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return "", fmt.Errorf("tool '%s' call failed: %w", name, err)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("tool '%s' returned an error: %s", name, resp.Error.Message)
	}

	resultMap, ok := resp.Result.(map[string]any)
	if !ok {
		return fmt.Sprintf("%v", resp.Result), nil
	}

	text := extractRPCTextContent(resultMap)
	if isError, _ := resultMap["isError"].(bool); isError {
		if text == "" {
			text = "unknown error"
		}
		return "", fmt.Errorf("tool '%s' returned an error: %s", name, text)
	}
	return text, nil
}

func (s *httpSource) Close() error {
	s.connected = false
	return nil
}

func (s *httpSource) rpc(ctx context.Context, method string, params any) (*rpcResponse, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  method,
		Params:  params,
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json, text/event-stream")
	for k, v := range s.cfg.Headers {
		httpReq.Header.Set(k, v)
	}
	httpReq.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(body)), nil
	}

	s.sessionMu.RLock()
	sessionID := s.sessionID
	s.sessionMu.RUnlock()
	if sessionID != "" {
		httpReq.Header.Set("mcp-session-id", sessionID)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if newSessionID := httpResp.Header.Get("mcp-session-id"); newSessionID != "" {
		s.sessionMu.Lock()
		s.sessionID = newSessionID
		s.sessionMu.Unlock()
	}

	if httpResp.StatusCode != http.StatusOK {
		responseBody, _ := io.ReadAll(httpResp.Body)
		return nil, fmt.Errorf("HTTP error %d: %s", httpResp.StatusCode, string(responseBody))
	}

	if strings.Contains(httpResp.Header.Get("Content-Type"), "text/event-stream") {
		return readSSEResponse(httpResp.Body)
	}

	responseBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	var resp rpcResponse
	if err := json.Unmarshal(responseBody, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}
	return &resp, nil
}

// readSSEResponse reads the first complete JSON-RPC message from an
// event stream. Servers on the streamable-http transport answer RPCs
// this way.
func readSSEResponse(body io.Reader) (*rpcResponse, error) {
	reader := bufio.NewReader(body)
	var data strings.Builder

	flush := func() (*rpcResponse, bool) {
		if data.Len() == 0 {
			return nil, false
		}
		var resp rpcResponse
		if err := json.Unmarshal([]byte(data.String()), &resp); err == nil {
			return &resp, true
		}
		data.Reset()
		return nil, false
	}

	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("failed to read event stream: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			if resp, ok := flush(); ok {
				return resp, nil
			}
			continue
		}
		if strings.HasPrefix(line, "data:") {
			data.WriteString(strings.TrimSpace(strings.TrimPrefix(line, "data:")))
		}
	}

	if resp, ok := flush(); ok {
		return resp, nil
	}
	return nil, fmt.Errorf("event stream ended without a complete message")
}

func extractRPCTextContent(result map[string]any) string {
	content, ok := result["content"].([]any)
	if !ok {
		return ""
	}

	var texts []string
	for _, item := range content {
		itemMap, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if typ, _ := itemMap["type"].(string); typ != "" && typ != "text" {
			continue
		}
		if text, ok := itemMap["text"].(string); ok {
			texts = append(texts, text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}
