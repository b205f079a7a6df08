package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validAgent() *AgentConfig {
	cfg := &AgentConfig{
		ID:           "sales-1",
		Path:         "sales",
		Name:         "Sales Agent",
		SystemPrompt: "You are a sales assistant.",
	}
	cfg.SetDefaults()
	return cfg
}

func TestAgentConfig_SetDefaults(t *testing.T) {
	cfg := &AgentConfig{
		ID:           "a",
		Path:         "a",
		SystemPrompt: "p",
	}
	cfg.SetDefaults()

	assert.Equal(t, ProviderNative, cfg.Provider)
	require.NotNil(t, cfg.Temperature)
	assert.Equal(t, 0.7, *cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.True(t, cfg.ToolsEnabled())
	assert.True(t, cfg.Discoverable())
}

func TestAgentConfig_SetDefaults_PreservesExplicitValues(t *testing.T) {
	zero := 0.0
	off := false
	cfg := &AgentConfig{
		ID:           "a",
		Path:         "a",
		SystemPrompt: "p",
		Temperature:  &zero,
		MaxTokens:    128,
		EnableTools:  &off,
		Retrieval:    &RetrievalConfig{Enabled: true, Provider: RetrievalChroma, Index: "docs"},
	}
	cfg.SetDefaults()

	assert.Equal(t, 0.0, *cfg.Temperature)
	assert.Equal(t, 128, cfg.MaxTokens)
	assert.False(t, cfg.ToolsEnabled())
	assert.Equal(t, 5, cfg.Retrieval.TopK)
}

func TestAgentConfig_Validate(t *testing.T) {
	temp3 := 3.0

	tests := []struct {
		name    string
		mutate  func(*AgentConfig)
		wantErr string
	}{
		{
			name:   "valid config",
			mutate: func(c *AgentConfig) {},
		},
		{
			name:    "missing id",
			mutate:  func(c *AgentConfig) { c.ID = "" },
			wantErr: "id is required",
		},
		{
			name:    "missing path",
			mutate:  func(c *AgentConfig) { c.Path = "" },
			wantErr: "path is required",
		},
		{
			name:    "uppercase path",
			mutate:  func(c *AgentConfig) { c.Path = "Sales" },
			wantErr: "lowercase",
		},
		{
			name:    "path with slash",
			mutate:  func(c *AgentConfig) { c.Path = "sales/emea" },
			wantErr: "lowercase",
		},
		{
			name:   "path with digits and hyphens",
			mutate: func(c *AgentConfig) { c.Path = "sales-emea-2" },
		},
		{
			name:    "unknown provider",
			mutate:  func(c *AgentConfig) { c.Provider = "bedrock" },
			wantErr: "provider must be",
		},
		{
			name:    "openai-compatible without providerConfig",
			mutate:  func(c *AgentConfig) { c.Provider = ProviderOpenAICompatible },
			wantErr: "providerConfig is required",
		},
		{
			name: "openai-compatible without baseURL",
			mutate: func(c *AgentConfig) {
				c.Provider = ProviderOpenAICompatible
				c.ProviderCfg = &ProviderConfig{}
			},
			wantErr: "baseURL is required",
		},
		{
			name: "openai-compatible complete",
			mutate: func(c *AgentConfig) {
				c.Provider = ProviderOpenAICompatible
				c.ProviderCfg = &ProviderConfig{BaseURL: "https://llm.example.com/v1"}
			},
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *AgentConfig) { c.Temperature = &temp3 },
			wantErr: "temperature",
		},
		{
			name:    "zero maxTokens",
			mutate:  func(c *AgentConfig) { c.MaxTokens = 0 },
			wantErr: "maxTokens",
		},
		{
			name:    "empty systemPrompt",
			mutate:  func(c *AgentConfig) { c.SystemPrompt = "" },
			wantErr: "systemPrompt is required",
		},
		{
			name: "stdio source without command",
			mutate: func(c *AgentConfig) {
				c.ToolSources = []ToolSourceConfig{{ID: "fs", Type: TransportStdio}}
			},
			wantErr: "stdio transport requires a command",
		},
		{
			name: "sse source without url",
			mutate: func(c *AgentConfig) {
				c.ToolSources = []ToolSourceConfig{{ID: "crm", Type: TransportSSE}}
			},
			wantErr: "sse transport requires a url",
		},
		{
			name: "http source without url",
			mutate: func(c *AgentConfig) {
				c.ToolSources = []ToolSourceConfig{{ID: "crm", Type: TransportHTTP}}
			},
			wantErr: "http transport requires a url",
		},
		{
			name: "unknown transport",
			mutate: func(c *AgentConfig) {
				c.ToolSources = []ToolSourceConfig{{ID: "x", Type: "grpc"}}
			},
			wantErr: "unknown transport",
		},
		{
			name: "valid stdio source",
			mutate: func(c *AgentConfig) {
				c.ToolSources = []ToolSourceConfig{{ID: "fs", Type: TransportStdio, Command: "mcp-fs"}}
			},
		},
		{
			name: "retrieval unknown provider",
			mutate: func(c *AgentConfig) {
				c.Retrieval = &RetrievalConfig{Enabled: true, Provider: "weaviate", Index: "docs", TopK: 5}
			},
			wantErr: "unknown provider",
		},
		{
			name: "retrieval missing index",
			mutate: func(c *AgentConfig) {
				c.Retrieval = &RetrievalConfig{Enabled: true, Provider: RetrievalPinecone, TopK: 5}
			},
			wantErr: "index is required",
		},
		{
			name: "retrieval bad minScore",
			mutate: func(c *AgentConfig) {
				c.Retrieval = &RetrievalConfig{Enabled: true, Provider: RetrievalPinecone, Index: "docs", TopK: 5, MinScore: 1.5}
			},
			wantErr: "minScore",
		},
		{
			name: "retrieval template without placeholder",
			mutate: func(c *AgentConfig) {
				c.Retrieval = &RetrievalConfig{Enabled: true, Provider: RetrievalChroma, Index: "docs", TopK: 5, Template: "Context:"}
			},
			wantErr: "{{context}}",
		},
		{
			name: "retrieval disabled skips checks",
			mutate: func(c *AgentConfig) {
				c.Retrieval = &RetrievalConfig{Enabled: false, Provider: "weaviate"}
			},
		},
		{
			name: "delegation duplicate toolName",
			mutate: func(c *AgentConfig) {
				c.Delegation = &DelegationConfig{Enabled: true, Targets: []DelegationTarget{
					{AgentPath: "sales", ToolName: "ask"},
					{AgentPath: "support", ToolName: "ask"},
				}}
			},
			wantErr: "duplicate toolName",
		},
		{
			name: "delegation target missing path",
			mutate: func(c *AgentConfig) {
				c.Delegation = &DelegationConfig{Enabled: true, Targets: []DelegationTarget{{ToolName: "ask"}}}
			},
			wantErr: "agentPath is required",
		},
		{
			name: "valid delegation",
			mutate: func(c *AgentConfig) {
				c.Delegation = &DelegationConfig{Enabled: true, Targets: []DelegationTarget{
					{AgentPath: "sales", ToolName: "askSales", Description: "Ask the sales agent"},
					{AgentPath: "support", ToolName: "askSupport"},
				}}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validAgent()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}
