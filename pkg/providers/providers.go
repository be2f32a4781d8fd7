package providers

import (
	"context"
	"fmt"
	"os"
)

// Provider names accepted by New
const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Client is satisfied by every provider; it matches agent.LLMClient
type Client interface {
	Complete(ctx context.Context, model string, prompt string) (string, error)
}

type ProviderParams struct {
	BaseURL string
	APIKey  string
}

type ProviderOption func(*ProviderParams)

func WithBaseURL(baseURL string) ProviderOption {
	return func(p *ProviderParams) {
		p.BaseURL = baseURL
	}
}

func WithAPIKey(apiKey string) ProviderOption {
	return func(p *ProviderParams) {
		p.APIKey = apiKey
	}
}

// New returns the named provider's client
func New(ctx context.Context, name string, opts ...ProviderOption) (Client, error) {
	switch name {
	case "", ProviderOpenAI:
		return OpenAi(ctx, opts...), nil
	case ProviderGemini:
		params := ProviderParams{}
		for _, opt := range opts {
			opt(&params)
		}
		c, err := Gemini(ctx, params)
		if err != nil {
			return nil, err
		}
		return c, nil
	default:
		return nil, fmt.Errorf("unknown provider %q", name)
	}
}

// DefaultModel is the model used when the config leaves it empty
func DefaultModel(name string) string {
	if name == ProviderGemini {
		if m := os.Getenv("GEMINI_MODEL"); m != "" {
			return m
		}
		return "gemini-2.0-flash-exp"
	}
	return "gpt-4o-mini"
}
