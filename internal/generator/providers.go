package generator

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/anthropic"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderMock      = "mock"
)

// ProviderConfig selects and configures the model backing the pipeline.
type ProviderConfig struct {
	Provider string
	Model    string
	APIKey   string
	// APIURL points openai at any OpenAI-compatible endpoint, or ollama at its server.
	APIURL string
}

// NewModel creates an LLM instance based on the provider configuration.
func NewModel(p ProviderConfig) (llms.Model, error) {
	switch strings.ToLower(strings.TrimSpace(p.Provider)) {
	case ProviderOpenAI, "":
		return newOpenAIModel(p)
	case ProviderAnthropic:
		return newAnthropicModel(p)
	case ProviderOllama:
		return newOllamaModel(p)
	case ProviderMock:
		return NewMockModel(), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", p.Provider)
	}
}

func newOpenAIModel(p ProviderConfig) (llms.Model, error) {
	opts := []openai.Option{}
	if p.Model != "" {
		opts = append(opts, openai.WithModel(p.Model))
	}
	if p.APIKey != "" {
		opts = append(opts, openai.WithToken(p.APIKey))
	}
	if p.APIURL != "" {
		opts = append(opts, openai.WithBaseURL(p.APIURL))
	}
	return openai.New(opts...)
}

func newAnthropicModel(p ProviderConfig) (llms.Model, error) {
	opts := []anthropic.Option{}
	if p.Model != "" {
		opts = append(opts, anthropic.WithModel(p.Model))
	}
	if p.APIKey != "" {
		opts = append(opts, anthropic.WithToken(p.APIKey))
	}
	if p.APIURL != "" {
		return nil, fmt.Errorf("anthropic does not support a custom API URL")
	}
	return anthropic.New(opts...)
}

func newOllamaModel(p ProviderConfig) (llms.Model, error) {
	opts := []ollama.Option{}
	if p.Model != "" {
		opts = append(opts, ollama.WithModel(p.Model))
	}
	if p.APIURL != "" {
		opts = append(opts, ollama.WithServerURL(p.APIURL))
	}
	return ollama.New(opts...)
}
