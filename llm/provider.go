package llm

import (
	"context"
	"fmt"
	"strings"
)

// Provider is implemented by every chat backend.
type Provider interface {
	// Name returns the provider identifier used in logs and run headers.
	Name() string

	// Complete sends one request and returns the raw completion. It makes a
	// single attempt; the Client owns retries.
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// Config is the transport slice of a settings snapshot.
type Config struct {
	ProviderName string
	BaseURL      string
	Model        string
	APIKey       string
	Temperature  float64
	MaxTokens    int
	ExtraHeaders map[string]string
}

// gollmProviders are backends reachable without a base URL.
var gollmProviders = map[string]bool{
	"openai":    true,
	"anthropic": true,
	"groq":      true,
	"mistral":   true,
	"ollama":    true,
	"cohere":    true,
	"deepseek":  true,
}

// NewProvider picks the backend for cfg: the OpenAI-compatible HTTP
// endpoint whenever a base URL is set, otherwise a gollm-backed provider
// named by ProviderName.
func NewProvider(cfg Config) (Provider, error) {
	if strings.TrimSpace(cfg.BaseURL) != "" {
		return NewOpenAIProvider(cfg), nil
	}
	name := strings.ToLower(strings.TrimSpace(cfg.ProviderName))
	if gollmProviders[name] {
		return NewGollmProvider(name, cfg)
	}
	return nil, &ConfigurationError{SDKError: SDKError{
		Message: fmt.Sprintf("no base_url configured and provider %q is not supported without one", cfg.ProviderName),
	}}
}
