package llms

import (
	"fmt"

	"github.com/paddockai/paddock/pkg/config"
)

// NewProvider builds the LLM provider for an agent, filling unset
// model settings from the service defaults.
func NewProvider(cfg *config.AgentConfig, defaults config.DefaultsConfig, nativeAPIKey string) (Provider, error) {
	model := cfg.Model
	if model == "" {
		model = defaults.Model
	}

	temperature := defaults.Temperature
	if cfg.Temperature != nil {
		temperature = *cfg.Temperature
	}

	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaults.MaxTokens
	}

	switch cfg.Provider {
	case config.ProviderNative:
		return NewNativeProvider(NativeProviderOptions{
			APIKey:      nativeAPIKey,
			Model:       model,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})

	case config.ProviderOpenAICompatible:
		if cfg.ProviderCfg == nil {
			return nil, fmt.Errorf("agent '%s': providerConfig is required for openai-compatible provider", cfg.Path)
		}
		return NewOpenAIProvider(OpenAIProviderOptions{
			BaseURL:     cfg.ProviderCfg.BaseURL,
			APIKey:      cfg.ProviderCfg.APIKey,
			Headers:     cfg.ProviderCfg.Headers,
			Model:       model,
			Temperature: temperature,
			MaxTokens:   maxTokens,
		})

	default:
		return nil, fmt.Errorf("agent '%s': unsupported provider '%s'", cfg.Path, cfg.Provider)
	}
}
