// Package adapter provides the injected external capabilities: text
// embedding and text generation. The memory core never talks to a model
// directly; it sees only these interfaces.
package adapter

import (
	"context"
	"fmt"
)

// Provider name constants.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderOllama    = "ollama"
	ProviderHash      = "hash"
)

// Embedder converts texts to vectors. Implementations must be deterministic
// for a fixed input text within one process lifetime; retrieval ranking
// depends on it.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// GenerateRequest holds the parameters for a generation call.
type GenerateRequest struct {
	SystemPrompt string
	Prompt       string
	Model        string
	MaxTokens    int
	Temperature  float64
}

// Generator produces text from a prompt. The core itself never calls this;
// only the session orchestrator and the compression hook do.
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (string, error)
}

// NewEmbedder constructs the Embedder for the named provider.
//
//   - "openai": text-embedding-3-small via the OpenAI API
//   - "ollama": a local Ollama server (model configurable)
//   - "hash": deterministic offline embedder, no network
func NewEmbedder(provider, model, apiKey, host string) (Embedder, error) {
	switch provider {
	case ProviderOpenAI:
		return NewOpenAI(apiKey), nil
	case ProviderOllama:
		if host == "" {
			host = "http://localhost:11434"
		}
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllama(host, model), nil
	case ProviderHash, "":
		return NewHashEmbedder(0), nil
	default:
		return nil, fmt.Errorf("adapter: unknown embedder provider %q (valid: openai, ollama, hash)", provider)
	}
}

// NewGenerator constructs the Generator for the named provider.
func NewGenerator(provider, apiKey, host string) (Generator, error) {
	switch provider {
	case ProviderAnthropic, "":
		return NewAnthropic(apiKey), nil
	case ProviderOpenAI:
		return NewOpenAI(apiKey), nil
	case ProviderOllama:
		if host == "" {
			host = "http://localhost:11434"
		}
		return NewOllama(host, ""), nil
	default:
		return nil, fmt.Errorf("adapter: unknown generator provider %q (valid: anthropic, openai, ollama)", provider)
	}
}
