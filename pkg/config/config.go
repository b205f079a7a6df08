// Package config defines the service configuration and the per-agent
// configuration files, with loading, environment expansion, defaulting,
// and validation.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level service configuration, loaded from YAML.
type Config struct {
	Server        ServerConfig        `yaml:"server" json:"server"`
	AgentsDir     string              `yaml:"agentsDir" json:"agentsDir"`
	Defaults      DefaultsConfig      `yaml:"defaults" json:"defaults"`
	Credentials   CredentialsConfig   `yaml:"credentials" json:"credentials"`
	Embedding     EmbeddingConfig     `yaml:"embedding" json:"embedding"`
	A2A           A2AConfig           `yaml:"a2a" json:"a2a"`
	Observability ObservabilityConfig `yaml:"observability" json:"observability"`
	Logging       LoggingConfig       `yaml:"logging" json:"logging"`
}

type ServerConfig struct {
	Host    string `yaml:"host" json:"host"`
	Port    int    `yaml:"port" json:"port"`
	BaseURL string `yaml:"baseURL" json:"baseURL"`
}

// DefaultsConfig supplies fallbacks for agent configs that omit model
// settings.
type DefaultsConfig struct {
	Model       string  `yaml:"model" json:"model"`
	Temperature float64 `yaml:"temperature" json:"temperature"`
	MaxTokens   int     `yaml:"maxTokens" json:"maxTokens"`
}

// OutboundTLS holds TLS options for self-hosted retrieval backends.
type OutboundTLS struct {
	InsecureSkipVerify bool   `yaml:"insecureSkipVerify" json:"insecureSkipVerify"`
	CACertificate      string `yaml:"caCertificate" json:"caCertificate"`
}

type CredentialsConfig struct {
	// NativeAPIKey authenticates native-provider generation and
	// embedding calls.
	NativeAPIKey string         `yaml:"nativeApiKey" json:"nativeApiKey"`
	Pinecone     PineconeConfig `yaml:"pinecone" json:"pinecone"`
	Chroma       ChromaConfig   `yaml:"chroma" json:"chroma"`
	Pgvector     PgvectorConfig `yaml:"pgvector" json:"pgvector"`
}

type PineconeConfig struct {
	APIKey string `yaml:"apiKey" json:"apiKey"`
}

type ChromaConfig struct {
	BaseURL string       `yaml:"baseURL" json:"baseURL"`
	TLS     *OutboundTLS `yaml:"tls" json:"tls,omitempty"`
}

type PgvectorConfig struct {
	// SidecarURL points at the REST sidecar fronting the database.
	// Empty means the backend is unavailable and queries return empty.
	SidecarURL string       `yaml:"sidecarURL" json:"sidecarURL"`
	TLS        *OutboundTLS `yaml:"tls" json:"tls,omitempty"`
}

type EmbeddingConfig struct {
	BaseURL string `yaml:"baseURL" json:"baseURL"`
	Model   string `yaml:"model" json:"model"`
}

type A2AConfig struct {
	CleanupInterval time.Duration `yaml:"cleanupInterval" json:"cleanupInterval"`
	MaxTaskAge      time.Duration `yaml:"maxTaskAge" json:"maxTaskAge"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool   `yaml:"metricsEnabled" json:"metricsEnabled"`
	TracingEnabled bool   `yaml:"tracingEnabled" json:"tracingEnabled"`
	OTLPEndpoint   string `yaml:"otlpEndpoint" json:"otlpEndpoint"`
	ServiceName    string `yaml:"serviceName" json:"serviceName"`
}

type LoggingConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

func (c *Config) SetDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BaseURL == "" {
		c.Server.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.Port)
	}
	if c.AgentsDir == "" {
		c.AgentsDir = "./agents"
	}
	if c.Defaults.Model == "" {
		c.Defaults.Model = "gemini-2.0-flash"
	}
	if c.Defaults.Temperature == 0 {
		c.Defaults.Temperature = 0.7
	}
	if c.Defaults.MaxTokens == 0 {
		c.Defaults.MaxTokens = 4096
	}
	if c.Embedding.BaseURL == "" {
		c.Embedding.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if c.Embedding.Model == "" {
		c.Embedding.Model = "text-embedding-004"
	}
	if c.A2A.CleanupInterval == 0 {
		c.A2A.CleanupInterval = time.Hour
	}
	if c.A2A.MaxTaskAge == 0 {
		c.A2A.MaxTaskAge = time.Hour
	}
	if c.Observability.ServiceName == "" {
		c.Observability.ServiceName = "paddock"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Defaults.Temperature < 0 || c.Defaults.Temperature > 2 {
		return fmt.Errorf("defaults.temperature must be between 0 and 2, got %g", c.Defaults.Temperature)
	}
	if c.Defaults.MaxTokens < 1 {
		return fmt.Errorf("defaults.maxTokens must be positive, got %d", c.Defaults.MaxTokens)
	}
	if c.A2A.CleanupInterval < 0 {
		return fmt.Errorf("a2a.cleanupInterval must not be negative")
	}
	if c.A2A.MaxTaskAge < 0 {
		return fmt.Errorf("a2a.maxTaskAge must not be negative")
	}
	return nil
}
