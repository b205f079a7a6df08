package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

func TestLoadAgentFile(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "sales.json", `{
		"id": "sales-1",
		"path": "sales",
		"name": "Sales",
		"systemPrompt": "You sell things.",
		"temperature": 0.2,
		"unknownField": {"ignored": true}
	}`)

	cfg, err := LoadAgentFile(path)
	require.NoError(t, err)
	assert.Equal(t, "sales-1", cfg.ID)
	assert.Equal(t, "sales", cfg.Path)
	assert.Equal(t, 0.2, *cfg.Temperature)
	assert.Equal(t, 4096, cfg.MaxTokens)
	assert.Equal(t, ProviderNative, cfg.Provider)
}

func TestLoadAgentFile_EnvExpansion(t *testing.T) {
	t.Setenv("TEST_LLM_KEY", "sk-test-123")
	t.Setenv("TEST_LLM_HOST", "")

	dir := t.TempDir()
	path := writeFile(t, dir, "agent.json", `{
		"id": "a",
		"path": "a",
		"systemPrompt": "p",
		"provider": "openai-compatible",
		"providerConfig": {
			"baseURL": "${TEST_LLM_HOST:-https://api.example.com/v1}",
			"apiKey": "${TEST_LLM_KEY}"
		}
	}`)

	cfg, err := LoadAgentFile(path)
	require.NoError(t, err)
	assert.Equal(t, "https://api.example.com/v1", cfg.ProviderCfg.BaseURL)
	assert.Equal(t, "sk-test-123", cfg.ProviderCfg.APIKey)
}

func TestLoadAgentFile_Invalid(t *testing.T) {
	dir := t.TempDir()

	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{
			name:    "malformed json",
			content: `{"id": `,
			wantErr: "invalid JSON",
		},
		{
			name:    "validation failure names file",
			content: `{"id": "a", "path": "Bad Path", "systemPrompt": "p"}`,
			wantErr: "lowercase",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, dir, tt.name+".json", tt.content)
			_, err := LoadAgentFile(path)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
			assert.Contains(t, err.Error(), filepath.Base(path))
		})
	}
}

func TestLoadAgentDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "b.json", `{"id": "b", "path": "bravo", "systemPrompt": "p"}`)
	writeFile(t, dir, "a.json", `{"id": "a", "path": "alpha", "systemPrompt": "p"}`)
	writeFile(t, dir, "notes.txt", "not a config")

	configs, err := LoadAgentDir(dir)
	require.NoError(t, err)
	require.Len(t, configs, 2)
	assert.Equal(t, "alpha", configs[0].Path)
	assert.Equal(t, "bravo", configs[1].Path)
}

func TestLoadAgentDir_Missing(t *testing.T) {
	configs, err := LoadAgentDir(filepath.Join(t.TempDir(), "does-not-exist"))
	require.NoError(t, err)
	assert.Empty(t, configs)
}

func TestLoadAgentDir_BadFileFailsWhole(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "good.json", `{"id": "a", "path": "alpha", "systemPrompt": "p"}`)
	writeFile(t, dir, "bad.json", `{"id": "b", "path": "bravo"}`)

	_, err := LoadAgentDir(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad.json")
	assert.Contains(t, err.Error(), "systemPrompt")
}

func TestLoadServiceConfig(t *testing.T) {
	t.Setenv("TEST_PINECONE_KEY", "pc-key")

	dir := t.TempDir()
	path := writeFile(t, dir, "paddock.yaml", `
server:
  port: 9090
agentsDir: /etc/paddock/agents
credentials:
  pinecone:
    apiKey: ${TEST_PINECONE_KEY}
a2a:
  cleanupInterval: 30m
logging:
  level: debug
`)

	cfg, err := LoadServiceConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "http://localhost:9090", cfg.Server.BaseURL)
	assert.Equal(t, "/etc/paddock/agents", cfg.AgentsDir)
	assert.Equal(t, "pc-key", cfg.Credentials.Pinecone.APIKey)
	assert.Equal(t, 30*time.Minute, cfg.A2A.CleanupInterval)
	assert.Equal(t, time.Hour, cfg.A2A.MaxTaskAge)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "gemini-2.0-flash", cfg.Defaults.Model)
}

func TestLoadServiceConfig_InvalidPort(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "bad.yaml", "server:\n  port: 99999\n")

	_, err := LoadServiceConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port")
}

func TestDefaultServiceConfig(t *testing.T) {
	cfg := DefaultServiceConfig()
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "./agents", cfg.AgentsDir)
	assert.NoError(t, cfg.Validate())
}
