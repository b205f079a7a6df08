package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/protocol"
)

const (
	mcpProtocolVersion = "2024-11-05"
	clientName         = "paddock"
	clientVersion      = "1.0.0"
)

// Source is a long-lived connection to one MCP tool provider.
type Source interface {
	ID() string
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]Descriptor, error)
	CallTool(ctx context.Context, name string, args map[string]any) (string, error)
	Close() error
}

// NewSource builds the transport-appropriate source for a tool-source
// config. The connection itself is opened by Connect.
func NewSource(cfg config.ToolSourceConfig) (Source, error) {
	switch cfg.Type {
	case config.TransportStdio:
		return newStdioSource(cfg), nil
	case config.TransportSSE, config.TransportHTTP:
		return newHTTPSource(cfg), nil
	default:
		return nil, fmt.Errorf("tool source '%s': unsupported transport '%s'", cfg.ID, cfg.Type)
	}
}

// stdioSource spawns the tool server as a child process and speaks
// MCP over its pipes.
type stdioSource struct {
	cfg    config.ToolSourceConfig
	client *client.Client
}

func newStdioSource(cfg config.ToolSourceConfig) *stdioSource {
	return &stdioSource{cfg: cfg}
}

func (s *stdioSource) ID() string {
	return s.cfg.ID
}

func (s *stdioSource) Connect(ctx context.Context) error {
	mcpClient, err := client.NewStdioMCPClient(s.cfg.Command, convertEnv(s.cfg.Env), s.cfg.Args...)
	if err != nil {
		return protocol.WrapError(protocol.ErrMCPConnection,
			fmt.Sprintf("failed to spawn tool source '%s'", s.cfg.ID), err)
	}

	if err := mcpClient.Start(ctx); err != nil {
		_ = mcpClient.Close()
		return protocol.WrapError(protocol.ErrMCPConnection,
			fmt.Sprintf("failed to start tool source '%s'", s.cfg.ID), err)
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcpProtocolVersion
	initReq.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: clientVersion,
	}
	if _, err := mcpClient.Initialize(ctx, initReq); err != nil {
		_ = mcpClient.Close()
		return protocol.WrapError(protocol.ErrMCPConnection,
			fmt.Sprintf("failed to initialize tool source '%s'", s.cfg.ID), err)
	}

	s.client = mcpClient
	return nil
}

func (s *stdioSource) ListTools(ctx context.Context) ([]Descriptor, error) {
	if s.client == nil {
		return nil, fmt.Errorf("tool source '%s' is not connected", s.cfg.ID)
	}

	resp, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("failed to list tools from '%s': %w", s.cfg.ID, err)
	}

	descriptors := make([]Descriptor, 0, len(resp.Tools))
	for _, tool := range resp.Tools {
		descriptors = append(descriptors, Descriptor{
			Name:        tool.Name,
			Description: tool.Description,
			InputSchema: schemaToMap(tool.InputSchema),
		})
	}
	return descriptors, nil
}

func (s *stdioSource) CallTool(ctx context.Context, name string, args map[string]any) (string, error) {
	if s.client == nil {
		return "", fmt.Errorf("tool source '%s' is not connected", s.cfg.ID)
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	resp, err := s.client.CallTool(ctx, req)
	if err != nil {
		return "", fmt.Errorf("tool '%s' call failed: %w", name, err)
	}

	text := collectTextContent(resp.Content)
	if resp.IsError {
		if text == "" {
			text = "unknown error"
		}
		return "", fmt.Errorf("tool '%s' returned an error: %s", name, text)
	}
	return text, nil
}

func (s *stdioSource) Close() error {
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}

// convertEnv flattens the configured env map into the KEY=VALUE slice
// the child process expects. Keys are sorted so the command line is
// deterministic.
func convertEnv(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	result := make([]string, 0, len(keys))
	for _, k := range keys {
		result = append(result, k+"="+env[k])
	}
	return result
}

func collectTextContent(content []mcp.Content) string {
	var texts []string
	for _, item := range content {
		if textContent, ok := item.(mcp.TextContent); ok {
			texts = append(texts, textContent.Text)
		}
	}
	return strings.TrimSpace(strings.Join(texts, "\n"))
}

// schemaToMap round-trips the typed schema through JSON to get the
// plain map the translator consumes.
func schemaToMap(schema mcp.ToolInputSchema) map[string]any {
	data, err := json.Marshal(schema)
	if err != nil {
		return nil
	}
	var result map[string]any
	if err := json.Unmarshal(data, &result); err != nil {
		return nil
	}
	return result
}
