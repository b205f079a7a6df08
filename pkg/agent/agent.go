// Package agent binds an agent config to its live collaborators (LLM
// provider, tool sources, retrieval client, delegation targets) and
// drives the bounded tool-calling loop for a turn.
package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/paddockai/paddock/pkg/config"
	"github.com/paddockai/paddock/pkg/llms"
	"github.com/paddockai/paddock/pkg/observability"
	"github.com/paddockai/paddock/pkg/protocol"
	"github.com/paddockai/paddock/pkg/retrieval"
	"github.com/paddockai/paddock/pkg/tools"
)

// DefaultMaxSteps caps model invocations per turn. The cap is a cost
// and latency bound, not a correctness one.
const DefaultMaxSteps = 5

const pageToolInstruction = "\n\nYou have access to a getPageContent tool that returns the content " +
	"of the page the user is currently viewing. Prefer calling it when the user refers to " +
	"on-screen content."

// DynamicToolRule derives per-request tools from the chat input.
// Rules run on every turn; returning no tools is the common case.
type DynamicToolRule func(input protocol.ChatInput) []tools.Tool

// PageContextRule injects getPageContent when the request metadata
// carries a page snapshot.
func PageContextRule(input protocol.ChatInput) []tools.Tool {
	if pageContext, ok := input.PageContext(); ok && pageContext != "" {
		return []tools.Tool{tools.NewPageContentTool(pageContext)}
	}
	return nil
}

// Dependencies are the service-level collaborators an agent needs
// beyond its own config.
type Dependencies struct {
	Defaults    config.DefaultsConfig
	Credentials config.CredentialsConfig
	Embedding   config.EmbeddingConfig
	Lookup      tools.DelegateLookup
	MaxSteps    int
	Rules       []DynamicToolRule

	// ProviderFactory overrides how the LLM provider is built. The
	// default is llms.NewProvider.
	ProviderFactory func(cfg *config.AgentConfig, defaults config.DefaultsConfig, nativeAPIKey string) (llms.Provider, error)

	// SearcherFactory overrides how the retrieval client is built. The
	// default is retrieval.NewSearcher.
	SearcherFactory func(cfg *config.RetrievalConfig, creds config.CredentialsConfig, embedding config.EmbeddingConfig) (retrieval.Searcher, error)
}

// Agent is a runnable conversational agent. Construction is cheap;
// connections are opened lazily on first use.
type Agent struct {
	cfg  *config.AgentConfig
	deps Dependencies

	mu          sync.Mutex
	initialized bool
	provider    llms.Provider
	sources     []tools.Source
	staticTools map[string]tools.Tool
	searcher    retrieval.Searcher
}

func New(cfg *config.AgentConfig, deps Dependencies) *Agent {
	if deps.MaxSteps <= 0 {
		deps.MaxSteps = DefaultMaxSteps
	}
	if deps.Rules == nil {
		deps.Rules = []DynamicToolRule{PageContextRule}
	}
	return &Agent{
		cfg:         cfg,
		deps:        deps,
		staticTools: make(map[string]tools.Tool),
	}
}

func (a *Agent) Config() *config.AgentConfig {
	return a.cfg
}

// Initialize opens the agent's collaborators. It is idempotent.
// Tool-source and retrieval failures are logged and skipped so the
// agent stays usable without them; only provider construction is
// fatal.
func (a *Agent) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}

	providerFactory := a.deps.ProviderFactory
	if providerFactory == nil {
		providerFactory = llms.NewProvider
	}
	provider, err := providerFactory(a.cfg, a.deps.Defaults, a.deps.Credentials.NativeAPIKey)
	if err != nil {
		return protocol.WrapError(protocol.ErrAgentConfig,
			fmt.Sprintf("failed to build provider for agent '%s'", a.cfg.ID), err)
	}
	a.provider = provider

	if a.cfg.ToolsEnabled() {
		a.connectToolSources(ctx)
		a.buildDelegationTools()
	}

	if a.cfg.Retrieval != nil && a.cfg.Retrieval.Enabled {
		searcherFactory := a.deps.SearcherFactory
		if searcherFactory == nil {
			searcherFactory = retrieval.NewSearcher
		}
		searcher, err := searcherFactory(a.cfg.Retrieval, a.deps.Credentials, a.deps.Embedding)
		if err != nil {
			slog.Warn("Failed to build retrieval client, continuing without retrieval",
				"agent", a.cfg.ID,
				"provider", a.cfg.Retrieval.Provider,
				"error", err)
		} else {
			a.searcher = searcher
		}
	}

	a.initialized = true
	return nil
}

func (a *Agent) connectToolSources(ctx context.Context) {
	for _, sourceCfg := range a.cfg.ToolSources {
		source, err := tools.NewSource(sourceCfg)
		if err != nil {
			slog.Warn("Skipping tool source", "agent", a.cfg.ID, "source", sourceCfg.ID, "error", err)
			continue
		}
		if err := source.Connect(ctx); err != nil {
			slog.Warn("Failed to connect tool source, agent continues without it",
				"agent", a.cfg.ID, "source", sourceCfg.ID, "error", err)
			continue
		}

		descriptors, err := source.ListTools(ctx)
		if err != nil {
			slog.Warn("Failed to list tools from source",
				"agent", a.cfg.ID, "source", sourceCfg.ID, "error", err)
			_ = source.Close()
			continue
		}

		for _, desc := range descriptors {
			tool := tools.Translate(source.ID(), desc, source.CallTool)
			a.staticTools[tool.Name()] = tool
		}
		a.sources = append(a.sources, source)

		slog.Info("Connected tool source",
			"agent", a.cfg.ID, "source", sourceCfg.ID, "tools", len(descriptors))
	}
}

func (a *Agent) buildDelegationTools() {
	if a.cfg.Delegation == nil || !a.cfg.Delegation.Enabled || a.deps.Lookup == nil {
		return
	}
	for _, target := range a.cfg.Delegation.Targets {
		tool := tools.NewDelegationTool(target, a.deps.Lookup)
		a.staticTools[tool.Name()] = tool
	}
}

// effectiveTools is the per-request tool set: the static tools plus
// whatever the dynamic rules derive from the input.
func (a *Agent) effectiveTools(input protocol.ChatInput) map[string]tools.Tool {
	if !a.cfg.ToolsEnabled() {
		return nil
	}

	effective := make(map[string]tools.Tool, len(a.staticTools))
	for name, tool := range a.staticTools {
		effective[name] = tool
	}
	for _, rule := range a.deps.Rules {
		for _, tool := range rule(input) {
			effective[tool.Name()] = tool
		}
	}
	return effective
}

// buildSystemPrompt assembles the prompt: base, then the retrieval
// context section when at least one document passes minScore, then the
// page-tool instruction when that tool was injected. Retrieval faults
// never fail the turn.
func (a *Agent) buildSystemPrompt(ctx context.Context, input protocol.ChatInput, hasPageTool bool) string {
	prompt := a.cfg.SystemPrompt

	if a.searcher != nil {
		docs, err := a.searcher.Search(ctx, input.Message, a.cfg.Retrieval.TopK)
		if err != nil {
			slog.Warn("Retrieval failed, falling back to base prompt",
				"agent", a.cfg.ID, "error", err)
		} else if len(docs) > 0 {
			prompt += "\n\n" + retrieval.FormatContext(docs, a.cfg.Retrieval.Template)
		}
	}

	if hasPageTool {
		prompt += pageToolInstruction
	}
	return prompt
}

func toolDefinitions(effective map[string]tools.Tool) []llms.ToolDefinition {
	if len(effective) == 0 {
		return nil
	}
	defs := make([]llms.ToolDefinition, 0, len(effective))
	for _, tool := range effective {
		defs = append(defs, tool.Definition())
	}
	return defs
}

// Execute runs one non-streaming turn.
func (a *Agent) Execute(ctx context.Context, input protocol.ChatInput) (*protocol.ChatOutput, error) {
	if err := a.Initialize(ctx); err != nil {
		return nil, err
	}

	startTime := time.Now()
	tracer := observability.GetTracer("paddock.agent")
	ctx, span := tracer.Start(ctx, observability.SpanAgentExecute,
		trace.WithAttributes(attribute.String(observability.AttrAgentPath, a.cfg.Path)),
	)
	defer span.End()

	output, err := a.runLoop(ctx, input)
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordAgentCall(ctx, a.cfg.Path, time.Since(startTime), err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetStatus(codes.Ok, "success")
	return output, nil
}

func (a *Agent) runLoop(ctx context.Context, input protocol.ChatInput) (*protocol.ChatOutput, error) {
	effective := a.effectiveTools(input)
	_, hasPageTool := effective[tools.PageContentToolName]
	systemPrompt := a.buildSystemPrompt(ctx, input, hasPageTool)

	messages := []llms.Message{
		{Role: llms.RoleSystem, Content: systemPrompt},
		{Role: llms.RoleUser, Content: input.Message},
	}
	defs := toolDefinitions(effective)

	output := &protocol.ChatOutput{}
	var usage llms.Usage

	for step := 0; step < a.deps.MaxSteps; step++ {
		resp, err := a.provider.Generate(ctx, messages, defs)
		if err != nil {
			return nil, a.executionError(err)
		}

		usage.PromptTokens += resp.Usage.PromptTokens
		usage.CompletionTokens += resp.Usage.CompletionTokens
		usage.TotalTokens += resp.Usage.TotalTokens
		output.Text = resp.Text

		if len(resp.ToolCalls) == 0 {
			output.FinishReason = mapFinishReason(resp.FinishReason)
			output.Usage = &protocol.Usage{
				PromptTokens:     usage.PromptTokens,
				CompletionTokens: usage.CompletionTokens,
				TotalTokens:      usage.TotalTokens,
			}
			return output, nil
		}

		messages = append(messages, llms.Message{
			Role:      llms.RoleAssistant,
			Content:   resp.Text,
			ToolCalls: resp.ToolCalls,
		})

		for _, call := range resp.ToolCalls {
			result := a.executeTool(ctx, effective, call)
			output.ToolCalls = append(output.ToolCalls, protocol.ToolCall{
				ID:       call.ID,
				ToolName: call.Name,
				Args:     call.Arguments,
				Result:   result,
			})
			messages = append(messages, llms.Message{
				Role:       llms.RoleTool,
				Content:    result,
				ToolCallID: call.ID,
				Name:       call.Name,
			})
		}
	}

	output.FinishReason = protocol.FinishSteps
	output.Usage = &protocol.Usage{
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
	}
	return output, nil
}

// executeTool runs one tool call. Failures come back as an error
// string fed to the model so the turn can recover.
func (a *Agent) executeTool(ctx context.Context, effective map[string]tools.Tool, call llms.ToolCall) string {
	startTime := time.Now()

	tool, ok := effective[call.Name]
	if !ok {
		return fmt.Sprintf("Error: unknown tool '%s'", call.Name)
	}

	result, err := tool.Execute(ctx, call.Arguments)
	if metrics := observability.GetGlobalMetrics(); metrics != nil {
		metrics.RecordToolExecution(ctx, call.Name, time.Since(startTime), err)
	}
	if err != nil {
		slog.Warn("Tool execution failed", "agent", a.cfg.ID, "tool", call.Name, "error", err)
		return "Error: " + err.Error()
	}
	return result
}

func (a *Agent) executionError(err error) error {
	return protocol.WrapError(protocol.ErrAgentExecution,
		fmt.Sprintf("agent '%s' execution failed", a.cfg.ID), err)
}

// mapFinishReason translates a provider finish reason for a terminal
// response. By the time a turn ends no tool calls are pending, so a
// stray tool_calls reason becomes a plain stop; a finish is never
// reported as tool-calls.
func mapFinishReason(reason string) string {
	switch reason {
	case llms.FinishLength:
		return protocol.FinishLength
	default:
		return protocol.FinishStop
	}
}

// Shutdown closes all collaborators and marks the agent
// uninitialized. A later call can initialize it again.
func (a *Agent) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}

	var firstErr error
	for _, source := range a.sources {
		if err := source.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close tool source '%s': %w", source.ID(), err)
		}
	}
	a.sources = nil

	if a.searcher != nil {
		if err := a.searcher.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.searcher = nil
	}

	if a.provider != nil {
		if err := a.provider.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		a.provider = nil
	}

	a.staticTools = make(map[string]tools.Tool)
	a.initialized = false
	return firstErr
}
