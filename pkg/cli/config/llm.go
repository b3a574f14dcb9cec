package config

import (
	"context"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gollem"
	"github.com/m-mizutani/gollem/llm/claude"
	"github.com/m-mizutani/gollem/llm/gemini"
	"github.com/m-mizutani/gollem/llm/openai"
	"github.com/urfave/cli/v3"

	"github.com/anishgillella/Voice-Receptionist/pkg/service/embedding"
)

const (
	ProviderGemini = "gemini"
	ProviderOpenAI = "openai"
	ProviderClaude = "claude"

	DefaultEmbeddingDimension = 768
)

// LLM holds configuration for the completion and embedding clients. Both
// default to the same provider; Claude has no embedding API and can only be
// the completion provider.
type LLM struct {
	provider          string
	embeddingProvider string
	geminiProject     string
	geminiLocation    string
	openaiAPIKey      string
	claudeAPIKey      string

	dimension    int
	batchSize    int
	concurrency  int
	cacheEntries int
}

// Flags returns CLI flags for LLM and embedding configuration
func (x *LLM) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "llm-provider",
			Usage:       "Completion provider (gemini, openai, claude)",
			Category:    "LLM",
			Value:       ProviderGemini,
			Sources:     cli.EnvVars("RECEPTIONIST_LLM_PROVIDER"),
			Destination: &x.provider,
		},
		&cli.StringFlag{
			Name:        "embedding-provider",
			Usage:       "Embedding provider (gemini, openai); defaults to --llm-provider",
			Category:    "LLM",
			Sources:     cli.EnvVars("RECEPTIONIST_EMBEDDING_PROVIDER"),
			Destination: &x.embeddingProvider,
		},
		&cli.StringFlag{
			Name:        "gemini-project",
			Usage:       "Google Cloud project ID for Gemini API",
			Category:    "LLM",
			Sources:     cli.EnvVars("RECEPTIONIST_GEMINI_PROJECT"),
			Destination: &x.geminiProject,
		},
		&cli.StringFlag{
			Name:        "gemini-location",
			Usage:       "Google Cloud location for Gemini API",
			Category:    "LLM",
			Value:       "us-central1",
			Sources:     cli.EnvVars("RECEPTIONIST_GEMINI_LOCATION"),
			Destination: &x.geminiLocation,
		},
		&cli.StringFlag{
			Name:        "openai-api-key",
			Usage:       "OpenAI API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("RECEPTIONIST_OPENAI_API_KEY"),
			Destination: &x.openaiAPIKey,
		},
		&cli.StringFlag{
			Name:        "claude-api-key",
			Usage:       "Anthropic API key",
			Category:    "LLM",
			Sources:     cli.EnvVars("RECEPTIONIST_CLAUDE_API_KEY"),
			Destination: &x.claudeAPIKey,
		},
		&cli.IntFlag{
			Name:        "embedding-dimension",
			Usage:       "Vector length produced by the embedding model and enforced by the vector store",
			Category:    "LLM",
			Value:       DefaultEmbeddingDimension,
			Sources:     cli.EnvVars("RECEPTIONIST_EMBEDDING_DIMENSION"),
			Destination: &x.dimension,
		},
		&cli.IntFlag{
			Name:        "embedding-batch-size",
			Usage:       "Texts per embedding request",
			Category:    "LLM",
			Value:       embedding.DefaultBatchSize,
			Sources:     cli.EnvVars("RECEPTIONIST_EMBEDDING_BATCH_SIZE"),
			Destination: &x.batchSize,
		},
		&cli.IntFlag{
			Name:        "embedding-concurrency",
			Usage:       "Embedding requests in flight",
			Category:    "LLM",
			Value:       embedding.DefaultConcurrency,
			Sources:     cli.EnvVars("RECEPTIONIST_EMBEDDING_CONCURRENCY"),
			Destination: &x.concurrency,
		},
		&cli.IntFlag{
			Name:        "embedding-cache-entries",
			Usage:       "Vectors kept in the text-level embedding cache (0 disables it)",
			Category:    "LLM",
			Value:       10_000,
			Sources:     cli.EnvVars("RECEPTIONIST_EMBEDDING_CACHE_ENTRIES"),
			Destination: &x.cacheEntries,
		},
	}
}

func (x LLM) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("provider", x.provider),
		slog.String("embedding_provider", x.embeddingProviderName()),
		slog.String("gemini_project", x.geminiProject),
		slog.String("gemini_location", x.geminiLocation),
		slog.Int("openai_api_key.len", len(x.openaiAPIKey)),
		slog.Int("claude_api_key.len", len(x.claudeAPIKey)),
		slog.Int("dimension", x.dimension),
	)
}

// Dimension is the configured embedding vector length
func (x *LLM) Dimension() int {
	return x.dimension
}

func (x *LLM) embeddingProviderName() string {
	if x.embeddingProvider != "" {
		return x.embeddingProvider
	}
	return x.provider
}

// Configure creates the completion client. It returns nil when the provider
// has no credentials; analysis is then unavailable.
func (x *LLM) Configure(ctx context.Context) (gollem.LLMClient, error) {
	return x.client(ctx, x.provider)
}

// ConfigureEmbedding creates the embedding generator, or nil when the
// provider has no credentials
func (x *LLM) ConfigureEmbedding(ctx context.Context) (*embedding.Generator, error) {
	provider := x.embeddingProviderName()
	if provider == ProviderClaude {
		return nil, goerr.Wrap(ErrInvalidConfig, "claude does not provide embeddings, set --embedding-provider")
	}

	client, err := x.client(ctx, provider)
	if err != nil || client == nil {
		return nil, err
	}

	opts := []embedding.Option{
		embedding.WithBatchSize(x.batchSize),
		embedding.WithConcurrency(x.concurrency),
	}
	if x.cacheEntries > 0 {
		cache, err := embedding.NewCache(int64(x.cacheEntries))
		if err != nil {
			return nil, err
		}
		opts = append(opts, embedding.WithCache(cache, embedding.DefaultCacheTTL))
	}

	gen, err := embedding.New(client, x.dimension, opts...)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to create embedding generator")
	}
	return gen, nil
}

func (x *LLM) client(ctx context.Context, provider string) (gollem.LLMClient, error) {
	switch provider {
	case ProviderGemini:
		if x.geminiProject == "" {
			return nil, nil
		}
		client, err := gemini.New(ctx, x.geminiProject, x.geminiLocation)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Gemini client")
		}
		return client, nil

	case ProviderOpenAI:
		if x.openaiAPIKey == "" {
			return nil, nil
		}
		client, err := openai.New(ctx, x.openaiAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create OpenAI client")
		}
		return client, nil

	case ProviderClaude:
		if x.claudeAPIKey == "" {
			return nil, nil
		}
		client, err := claude.New(ctx, x.claudeAPIKey)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to create Claude client")
		}
		return client, nil

	default:
		return nil, goerr.Wrap(ErrInvalidConfig, "invalid LLM provider", goerr.V("provider", provider))
	}
}
