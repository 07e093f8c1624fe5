package embedding

import (
	"fmt"

	"github.com/raphaelgruber/kbase-go/internal/config"
	"github.com/tmc/langchaingo/embeddings"
	"github.com/tmc/langchaingo/llms/ollama"
	"github.com/tmc/langchaingo/llms/openai"
)

// Provider names as stored in knowledge base metadata.
const (
	ProviderOllama = "Ollama"
	ProviderOpenAI = "OpenAI"
)

// NewOllamaBuilder returns a builder for an Ollama-backed embedder.
func NewOllamaBuilder(host, model string) Builder {
	return func() (embeddings.Embedder, error) {
		llm, err := ollama.New(
			ollama.WithModel(model),
			ollama.WithServerURL(host),
		)
		if err != nil {
			return nil, fmt.Errorf("create ollama client: %w", err)
		}
		embedder, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create ollama embedder: %w", err)
		}
		return embedder, nil
	}
}

// NewOpenAIBuilder returns a builder for an OpenAI-backed embedder.
func NewOpenAIBuilder(apiKey, model string) Builder {
	return func() (embeddings.Embedder, error) {
		if apiKey == "" {
			return nil, fmt.Errorf("OpenAI API key required")
		}
		llm, err := openai.New(
			openai.WithToken(apiKey),
			openai.WithEmbeddingModel(model),
		)
		if err != nil {
			return nil, fmt.Errorf("create openai client: %w", err)
		}
		embedder, err := embeddings.NewEmbedder(llm)
		if err != nil {
			return nil, fmt.Errorf("create openai embedder: %w", err)
		}
		return embedder, nil
	}
}

// ResolverFromConfig builds the default global catalog: Ollama always,
// OpenAI only when an API key is configured.
func ResolverFromConfig(cfg config.Config) *Resolver {
	r := NewResolver(Option{
		Provider: ProviderOllama,
		Model:    cfg.OllamaEmbedModel,
		Build:    NewOllamaBuilder(cfg.OllamaHost, cfg.OllamaEmbedModel),
	})
	if cfg.OpenAIAPIKey != "" {
		r.Register(Option{
			Provider: ProviderOpenAI,
			Model:    cfg.OpenAIEmbedModel,
			Build:    NewOpenAIBuilder(cfg.OpenAIAPIKey, cfg.OpenAIEmbedModel),
		})
	}
	return r
}
