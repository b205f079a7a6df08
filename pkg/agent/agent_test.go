package agent

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/llms"
	"github.com/paddockai/paddock/pkg/protocol"
	"github.com/paddockai/paddock/pkg/retrieval"
)

// fakeProvider replays canned responses and records what it was
// called with.
type fakeProvider struct {
	mu        sync.Mutex
	responses []*llms.Response
	streams   [][]llms.StreamChunk
	err       error

	messages [][]llms.Message
	defs     [][]llms.ToolDefinition
}

func (f *fakeProvider) Generate(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (*llms.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages = append(f.messages, messages)
	f.defs = append(f.defs, tools)
	if f.err != nil {
		return nil, f.err
	}
	if len(f.responses) == 0 {
		return &llms.Response{Text: "done", FinishReason: llms.FinishStop}, nil
	}
	resp := f.responses[0]
	f.responses = f.responses[1:]
	return resp, nil
}

func (f *fakeProvider) GenerateStreaming(ctx context.Context, messages []llms.Message, tools []llms.ToolDefinition) (<-chan llms.StreamChunk, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.messages = append(f.messages, messages)
	f.defs = append(f.defs, tools)
	if f.err != nil {
		return nil, f.err
	}

	var chunks []llms.StreamChunk
	if len(f.streams) > 0 {
		chunks = f.streams[0]
		f.streams = f.streams[1:]
	}

	out := make(chan llms.StreamChunk, len(chunks))
	for _, chunk := range chunks {
		out <- chunk
	}
	close(out)
	return out, nil
}

func (f *fakeProvider) ModelName() string { return "fake-model" }
func (f *fakeProvider) Close() error      { return nil }

func (f *fakeProvider) systemPrompt(t *testing.T, call int) string {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	require.Greater(t, len(f.messages), call)
	require.NotEmpty(t, f.messages[call])
	require.Equal(t, llms.RoleSystem, f.messages[call][0].Role)
	return f.messages[call][0].Content
}

type fakeSearcher struct {
	docs []retrieval.Document
	err  error
}

func (f *fakeSearcher) Search(ctx context.Context, query string, topK int) ([]retrieval.Document, error) {
	return f.docs, f.err
}

func (f *fakeSearcher) Close() error { return nil }

func testDeps(provider llms.Provider) Dependencies {
	return Dependencies{
		Defaults: config.DefaultsConfig{Model: "fake-model", Temperature: 0.7, MaxTokens: 1024},
		ProviderFactory: func(cfg *config.AgentConfig, defaults config.DefaultsConfig, key string) (llms.Provider, error) {
			return provider, nil
		},
	}
}

func testConfig(t *testing.T, mutate func(*config.AgentConfig)) *config.AgentConfig {
	t.Helper()
	cfg := &config.AgentConfig{
		ID:           "assistant-1",
		Path:         "assistant",
		Name:         "Assistant",
		SystemPrompt: "You are helpful.",
	}
	if mutate != nil {
		mutate(cfg)
	}
	cfg.SetDefaults()
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestAgent_SimpleTurn(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llms.Response{
			{Text: "Hello!", FinishReason: llms.FinishStop, Usage: llms.Usage{PromptTokens: 10, CompletionTokens: 2, TotalTokens: 12}},
		},
	}
	a := New(testConfig(t, nil), testDeps(provider))

	output, err := a.Execute(context.Background(), protocol.ChatInput{Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, "Hello!", output.Text)
	assert.Equal(t, protocol.FinishStop, output.FinishReason)
	assert.Empty(t, output.ToolCalls)
	require.NotNil(t, output.Usage)
	assert.Equal(t, 12, output.Usage.TotalTokens)

	assert.Equal(t, "You are helpful.", provider.systemPrompt(t, 0))
}

func TestAgent_InitializeIsIdempotent(t *testing.T) {
	provider := &fakeProvider{}
	a := New(testConfig(t, nil), testDeps(provider))

	require.NoError(t, a.Initialize(context.Background()))
	require.NoError(t, a.Initialize(context.Background()))
}

func TestAgent_ProviderConfigError(t *testing.T) {
	deps := Dependencies{
		ProviderFactory: func(cfg *config.AgentConfig, defaults config.DefaultsConfig, key string) (llms.Provider, error) {
			return nil, errors.New("no API key")
		},
	}
	a := New(testConfig(t, nil), deps)

	err := a.Initialize(context.Background())
	assert.Equal(t, protocol.ErrAgentConfig, protocol.CodeOf(err))
}

func TestAgent_ExecutionErrorWrapped(t *testing.T) {
	provider := &fakeProvider{err: errors.New("provider exploded")}
	a := New(testConfig(t, nil), testDeps(provider))

	_, err := a.Execute(context.Background(), protocol.ChatInput{Message: "hi"})
	require.Error(t, err)
	assert.Equal(t, protocol.ErrAgentExecution, protocol.CodeOf(err))
	assert.ErrorContains(t, err, "provider exploded")
}

func TestAgent_ToolCallsReasonWithoutCallsFinishesStop(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llms.Response{
			{Text: "Done", FinishReason: llms.FinishToolCalls},
		},
	}
	a := New(testConfig(t, nil), testDeps(provider))

	output, err := a.Execute(context.Background(), protocol.ChatInput{Message: "hi"})
	require.NoError(t, err)
	assert.Empty(t, output.ToolCalls)
	assert.Equal(t, protocol.FinishStop, output.FinishReason)
}

func TestAgent_StepCap(t *testing.T) {
	// Every step requests another tool call; the loop must stop at the
	// cap and report it.
	var responses []*llms.Response
	for i := 0; i < 10; i++ {
		responses = append(responses, &llms.Response{
			ToolCalls:    []llms.ToolCall{{ID: "c", Name: "missing_tool", Arguments: map[string]any{}}},
			FinishReason: llms.FinishToolCalls,
		})
	}
	provider := &fakeProvider{responses: responses}
	a := New(testConfig(t, nil), testDeps(provider))

	output, err := a.Execute(context.Background(), protocol.ChatInput{Message: "loop"})
	require.NoError(t, err)
	assert.Equal(t, protocol.FinishSteps, output.FinishReason)
	assert.Len(t, provider.messages, DefaultMaxSteps)
	assert.Len(t, output.ToolCalls, DefaultMaxSteps)
}

func TestAgent_PageContextInjection(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llms.Response{
			{
				ToolCalls:    []llms.ToolCall{{ID: "c1", Name: "getPageContent", Arguments: map[string]any{"section": "headings"}}},
				FinishReason: llms.FinishToolCalls,
			},
			{Text: "The page has one heading.", FinishReason: llms.FinishStop},
		},
	}
	a := New(testConfig(t, nil), testDeps(provider))

	output, err := a.Execute(context.Background(), protocol.ChatInput{
		Message:  "What is on my screen?",
		Metadata: map[string]any{protocol.MetadataPageContext: "# Invoice\nText"},
	})
	require.NoError(t, err)

	require.Len(t, output.ToolCalls, 1)
	assert.Equal(t, "getPageContent", output.ToolCalls[0].ToolName)
	assert.Equal(t, "# Invoice", output.ToolCalls[0].Result)

	require.Len(t, provider.defs[0], 1)
	assert.Equal(t, "getPageContent", provider.defs[0][0].Name)
	assert.Contains(t, provider.systemPrompt(t, 0), "getPageContent")
}

func TestAgent_NoPageContextNoTool(t *testing.T) {
	provider := &fakeProvider{}
	a := New(testConfig(t, nil), testDeps(provider))

	_, err := a.Execute(context.Background(), protocol.ChatInput{Message: "hello"})
	require.NoError(t, err)
	assert.Empty(t, provider.defs[0])
	assert.Equal(t, "You are helpful.", provider.systemPrompt(t, 0))
}

func TestAgent_ToolsDisabled(t *testing.T) {
	provider := &fakeProvider{}
	disabled := false
	cfg := testConfig(t, func(c *config.AgentConfig) {
		c.EnableTools = &disabled
	})
	a := New(cfg, testDeps(provider))

	_, err := a.Execute(context.Background(), protocol.ChatInput{
		Message:  "hello",
		Metadata: map[string]any{protocol.MetadataPageContext: "# Page"},
	})
	require.NoError(t, err)
	assert.Empty(t, provider.defs[0])
}

func retrievalDeps(provider llms.Provider, searcher retrieval.Searcher) Dependencies {
	deps := testDeps(provider)
	deps.SearcherFactory = func(cfg *config.RetrievalConfig, creds config.CredentialsConfig, embedding config.EmbeddingConfig) (retrieval.Searcher, error) {
		return searcher, nil
	}
	return deps
}

func retrievalConfig(t *testing.T, template string) *config.AgentConfig {
	return testConfig(t, func(c *config.AgentConfig) {
		c.Retrieval = &config.RetrievalConfig{
			Enabled:  true,
			Provider: config.RetrievalChroma,
			Index:    "docs",
			Template: template,
		}
	})
}

func TestAgent_RetrievalContextAppended(t *testing.T) {
	provider := &fakeProvider{}
	searcher := &fakeSearcher{docs: []retrieval.Document{
		{ID: "d1", Content: "Widgets cost $5.", Score: 0.9},
		{ID: "d2", Content: "Shipping is free.", Score: 0.7},
	}}
	a := New(retrievalConfig(t, ""), retrievalDeps(provider, searcher))

	_, err := a.Execute(context.Background(), protocol.ChatInput{Message: "prices?"})
	require.NoError(t, err)

	prompt := provider.systemPrompt(t, 0)
	assert.Equal(t,
		"You are helpful.\n\n## Relevant Context:\n\nWidgets cost $5.\n\n---\n\nShipping is free.",
		prompt)
}

func TestAgent_RetrievalNoResultsBasePrompt(t *testing.T) {
	provider := &fakeProvider{}
	a := New(retrievalConfig(t, ""), retrievalDeps(provider, &fakeSearcher{}))

	_, err := a.Execute(context.Background(), protocol.ChatInput{Message: "prices?"})
	require.NoError(t, err)
	assert.Equal(t, "You are helpful.", provider.systemPrompt(t, 0))
}

func TestAgent_RetrievalFailureFallsBack(t *testing.T) {
	provider := &fakeProvider{}
	searcher := &fakeSearcher{err: errors.New("vector store down")}
	a := New(retrievalConfig(t, ""), retrievalDeps(provider, searcher))

	_, err := a.Execute(context.Background(), protocol.ChatInput{Message: "prices?"})
	require.NoError(t, err)
	assert.Equal(t, "You are helpful.", provider.systemPrompt(t, 0))
}

func TestAgent_RetrievalCustomTemplate(t *testing.T) {
	provider := &fakeProvider{}
	searcher := &fakeSearcher{docs: []retrieval.Document{{ID: "d1", Content: "doc", Score: 1}}}
	a := New(retrievalConfig(t, "Context: {{context}}"), retrievalDeps(provider, searcher))

	_, err := a.Execute(context.Background(), protocol.ChatInput{Message: "q"})
	require.NoError(t, err)
	assert.Equal(t, "You are helpful.\n\nContext: doc", provider.systemPrompt(t, 0))
}

func TestAgent_ToolErrorFedBackToModel(t *testing.T) {
	provider := &fakeProvider{
		responses: []*llms.Response{
			{
				ToolCalls:    []llms.ToolCall{{ID: "c1", Name: "nope", Arguments: map[string]any{}}},
				FinishReason: llms.FinishToolCalls,
			},
			{Text: "recovered", FinishReason: llms.FinishStop},
		},
	}
	a := New(testConfig(t, nil), testDeps(provider))

	output, err := a.Execute(context.Background(), protocol.ChatInput{Message: "go"})
	require.NoError(t, err)
	assert.Equal(t, "recovered", output.Text)
	require.Len(t, output.ToolCalls, 1)
	assert.Contains(t, output.ToolCalls[0].Result, "unknown tool")

	// Second model call must see the tool result message.
	secondCall := provider.messages[1]
	last := secondCall[len(secondCall)-1]
	assert.Equal(t, llms.RoleTool, last.Role)
	assert.Contains(t, last.Content, "unknown tool")
}
