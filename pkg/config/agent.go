package config

import (
	"fmt"
	"regexp"
	"strings"
)

// Provider names accepted in agent configs.
const (
	ProviderNative           = "native"
	ProviderOpenAICompatible = "openai-compatible"
)

// Tool source transports.
const (
	TransportStdio = "stdio"
	TransportSSE   = "sse"
	TransportHTTP  = "http"
)

// Retrieval backend names.
const (
	RetrievalPinecone = "pinecone"
	RetrievalChroma   = "chroma"
	RetrievalPgvector = "pgvector"
)

var pathPattern = regexp.MustCompile(`^[a-z0-9-]+$`)

// AgentConfig is one agent definition, loaded from a JSON file in the
// agents directory. Unknown fields are ignored.
type AgentConfig struct {
	ID           string             `json:"id" jsonschema:"required"`
	Path         string             `json:"path" jsonschema:"required,pattern=^[a-z0-9-]+$"`
	Name         string             `json:"name"`
	Description  string             `json:"description"`
	Provider     string             `json:"provider,omitempty" jsonschema:"enum=native,enum=openai-compatible"`
	Model        string             `json:"model,omitempty"`
	ProviderCfg  *ProviderConfig    `json:"providerConfig,omitempty"`
	Temperature  *float64           `json:"temperature,omitempty" jsonschema:"minimum=0,maximum=2"`
	MaxTokens    int                `json:"maxTokens,omitempty" jsonschema:"minimum=1"`
	SystemPrompt string             `json:"systemPrompt" jsonschema:"required"`
	EnableTools  *bool              `json:"enableTools,omitempty"`
	ToolSources  []ToolSourceConfig `json:"toolSources,omitempty"`
	Discovery    *DiscoveryConfig   `json:"discovery,omitempty"`
	Retrieval    *RetrievalConfig   `json:"retrieval,omitempty"`
	Delegation   *DelegationConfig  `json:"delegation,omitempty"`
}

// ProviderConfig is required iff provider is openai-compatible.
type ProviderConfig struct {
	BaseURL string            `json:"baseURL" jsonschema:"required"`
	APIKey  string            `json:"apiKey,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

// ToolSourceConfig describes one external tool server.
type ToolSourceConfig struct {
	ID      string            `json:"id" jsonschema:"required"`
	Type    string            `json:"type" jsonschema:"required,enum=stdio,enum=sse,enum=http"`
	Command string            `json:"command,omitempty"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
	URL     string            `json:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty"`
}

type DiscoveryConfig struct {
	Discoverable *bool        `json:"discoverable,omitempty"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}

type Capability struct {
	ID          string `json:"id" jsonschema:"required"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type RetrievalConfig struct {
	Enabled   bool    `json:"enabled"`
	Provider  string  `json:"provider" jsonschema:"enum=pinecone,enum=chroma,enum=pgvector"`
	Index     string  `json:"index"`
	Namespace string  `json:"namespace,omitempty"`
	TopK      int     `json:"topK,omitempty" jsonschema:"minimum=1"`
	MinScore  float64 `json:"minScore,omitempty" jsonschema:"minimum=0,maximum=1"`
	// Filter restricts matches by metadata, backend-permitting.
	Filter map[string]any `json:"filter,omitempty"`
	// Template wraps retrieved context; must contain {{context}}.
	Template string `json:"template,omitempty"`
}

type DelegationConfig struct {
	Enabled bool               `json:"enabled"`
	Targets []DelegationTarget `json:"targets,omitempty"`
}

type DelegationTarget struct {
	AgentPath   string `json:"agentPath" jsonschema:"required"`
	ToolName    string `json:"toolName" jsonschema:"required"`
	Description string `json:"description"`
}

// Discoverable reports whether the agent participates in discovery.
// Default is true.
func (c *AgentConfig) Discoverable() bool {
	if c.Discovery == nil || c.Discovery.Discoverable == nil {
		return true
	}
	return *c.Discovery.Discoverable
}

// ToolsEnabled reports whether tool use is on. Default is true.
func (c *AgentConfig) ToolsEnabled() bool {
	if c.EnableTools == nil {
		return true
	}
	return *c.EnableTools
}

func (c *AgentConfig) SetDefaults() {
	if c.Provider == "" {
		c.Provider = ProviderNative
	}
	if c.Temperature == nil {
		t := 0.7
		c.Temperature = &t
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = 4096
	}
	if c.Retrieval != nil {
		if c.Retrieval.TopK == 0 {
			c.Retrieval.TopK = 5
		}
	}
}

func (c *AgentConfig) Validate() error {
	if c.ID == "" {
		return fmt.Errorf("id is required")
	}
	if c.Path == "" {
		return fmt.Errorf("path is required")
	}
	if !pathPattern.MatchString(c.Path) {
		return fmt.Errorf("path %q must contain only lowercase letters, digits, and hyphens", c.Path)
	}
	switch c.Provider {
	case ProviderNative:
		// providerConfig is ignored for the native provider
	case ProviderOpenAICompatible:
		if c.ProviderCfg == nil {
			return fmt.Errorf("providerConfig is required for provider %q", c.Provider)
		}
		if c.ProviderCfg.BaseURL == "" {
			return fmt.Errorf("providerConfig.baseURL is required for provider %q", c.Provider)
		}
	default:
		return fmt.Errorf("provider must be %q or %q, got %q", ProviderNative, ProviderOpenAICompatible, c.Provider)
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		return fmt.Errorf("temperature must be between 0 and 2, got %g", *c.Temperature)
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("maxTokens must be positive, got %d", c.MaxTokens)
	}
	if c.SystemPrompt == "" {
		return fmt.Errorf("systemPrompt is required")
	}
	for i := range c.ToolSources {
		if err := c.ToolSources[i].Validate(); err != nil {
			return fmt.Errorf("toolSources[%d]: %w", i, err)
		}
	}
	if c.Retrieval != nil {
		if err := c.Retrieval.Validate(); err != nil {
			return fmt.Errorf("retrieval: %w", err)
		}
	}
	if c.Delegation != nil {
		if err := c.Delegation.Validate(); err != nil {
			return fmt.Errorf("delegation: %w", err)
		}
	}
	return nil
}

func (s *ToolSourceConfig) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("id is required")
	}
	switch s.Type {
	case TransportStdio:
		if s.Command == "" {
			return fmt.Errorf("source %q: stdio transport requires a command", s.ID)
		}
	case TransportSSE, TransportHTTP:
		if s.URL == "" {
			return fmt.Errorf("source %q: %s transport requires a url", s.ID, s.Type)
		}
	default:
		return fmt.Errorf("source %q: unknown transport %q", s.ID, s.Type)
	}
	return nil
}

func (r *RetrievalConfig) Validate() error {
	if !r.Enabled {
		return nil
	}
	switch r.Provider {
	case RetrievalPinecone, RetrievalChroma, RetrievalPgvector:
	default:
		return fmt.Errorf("unknown provider %q", r.Provider)
	}
	if r.Index == "" {
		return fmt.Errorf("index is required")
	}
	if r.TopK < 1 {
		return fmt.Errorf("topK must be at least 1, got %d", r.TopK)
	}
	if r.MinScore < 0 || r.MinScore > 1 {
		return fmt.Errorf("minScore must be between 0 and 1, got %g", r.MinScore)
	}
	if r.Template != "" && !strings.Contains(r.Template, ContextToken) {
		return fmt.Errorf("template must contain the {{context}} placeholder")
	}
	return nil
}

func (d *DelegationConfig) Validate() error {
	if !d.Enabled {
		return nil
	}
	seen := make(map[string]bool, len(d.Targets))
	for i, target := range d.Targets {
		if target.AgentPath == "" {
			return fmt.Errorf("targets[%d]: agentPath is required", i)
		}
		if target.ToolName == "" {
			return fmt.Errorf("targets[%d]: toolName is required", i)
		}
		if seen[target.ToolName] {
			return fmt.Errorf("duplicate toolName %q", target.ToolName)
		}
		seen[target.ToolName] = true
	}
	return nil
}

// ContextToken is the placeholder substituted with retrieved context.
const ContextToken = "{{context}}"
