// Package llm talks to the language models used for query understanding.
// Every call is a single attempt; callers fall back on failure.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ErrUnavailable means no usable model is configured.
var ErrUnavailable = errors.New("language model unavailable")

type Client interface {
	Name() string
	Complete(ctx context.Context, system, user string) (string, error)
}

type Config struct {
	Provider   string
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
}

var defaultModels = map[string]string{
	"openrouter": "mistralai/mistral-small-24b-instruct-2501:free",
	"openai":     "gpt-4o-mini",
	"anthropic":  "claude-3-5-haiku-latest",
	"copilot":    "gpt-4.1",
}

var defaultBaseURLs = map[string]string{
	"openrouter": "https://openrouter.ai/api/v1",
	"openai":     "https://api.openai.com/v1",
	"anthropic":  "https://api.anthropic.com/v1",
}

// Providers lists the accepted values of llm.provider.
func Providers() []string {
	return []string{"openrouter", "openai", "anthropic", "copilot", "custom"}
}

// New builds the client for cfg.Provider. An empty provider, or a remote
// provider without a key, yields ErrUnavailable.
func New(cfg Config) (Client, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if provider == "" {
		return nil, fmt.Errorf("%w: llm.provider is not set", ErrUnavailable)
	}
	model := cfg.Model
	if model == "" {
		model = defaultModels[provider]
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURLs[provider]
	}

	switch provider {
	case "copilot":
		return NewCopilot(model, timeout), nil
	case "openrouter", "openai", "custom", "anthropic":
	default:
		return nil, fmt.Errorf("unknown llm provider %q (expected one of %s)", cfg.Provider, strings.Join(Providers(), ", "))
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: %s api key missing", ErrUnavailable, provider)
	}
	if baseURL == "" {
		return nil, fmt.Errorf("%w: custom provider needs llm.base_url", ErrUnavailable)
	}
	if model == "" {
		return nil, fmt.Errorf("%w: custom provider needs llm.model", ErrUnavailable)
	}
	if provider == "anthropic" {
		return &Anthropic{BaseURL: baseURL, APIKey: cfg.APIKey, Model: model, Client: httpClient}, nil
	}
	return &OpenAICompatible{Provider: provider, BaseURL: baseURL, APIKey: cfg.APIKey, Model: model, Client: httpClient}, nil
}
