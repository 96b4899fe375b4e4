package llm

import (
	"context"
	"fmt"
	"time"

	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// EmbedderConfig represents the configuration for the embedding client.
type EmbedderConfig struct {
	Model       string
	BaseURL     string  // Ollama server URL
	MaxAttempts int     // bounded retries per provider call
	RateLimit   float64 // provider calls per second
}

// Embedder produces embedding vectors through an external provider.
// Transient provider failures are retried with exponential backoff up to
// MaxAttempts; calls are rate limited to respect provider quotas.
type Embedder struct {
	config  EmbedderConfig
	llm     *ollama.LLM
	limiter *rate.Limiter
}

func NewEmbedderWithConfig(config EmbedderConfig) (*Embedder, error) {
	if config.Model == "" {
		config.Model = "nomic-embed-text:latest"
	}
	if config.BaseURL == "" {
		config.BaseURL = "http://localhost:11434"
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = 4
	}
	if config.RateLimit <= 0 {
		config.RateLimit = 8.0
	}

	emb, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize embedding client: %w", err)
	}

	return &Embedder{
		config:  config,
		llm:     emb,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// ModelVersion identifies the vector space the embeddings live in.
func (e *Embedder) ModelVersion() string {
	return e.config.Model
}

// EmbedTexts embeds texts in one provider call, retrying transient
// failures. Exhausted retries surface as ErrProvider.
func (e *Embedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, types.ErrInvalidInput
	}

	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 1; attempt <= e.config.MaxAttempts; attempt++ {
		if err := e.limiter.Wait(ctx); err != nil {
			return nil, err
		}

		embeddings, err := e.llm.CreateEmbedding(ctx, texts)
		if err == nil {
			return embeddings, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if attempt == e.config.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		backoff *= 2
	}

	return nil, fmt.Errorf("%w: embedding failed after %d attempts: %v",
		types.ErrProvider, e.config.MaxAttempts, lastErr)
}
