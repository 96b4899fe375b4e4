package config

import (
	"fmt"
	"net/url"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (c *Config) Validate() []ValidationError {
	var errors []ValidationError

	if c.LLM.BaseURL == "" {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "provider base URL is required",
		})
	} else if _, err := url.Parse(c.LLM.BaseURL); err != nil {
		errors = append(errors, ValidationError{
			Field:   "llm.base_url",
			Message: "invalid provider base URL",
		})
	}

	if c.LLM.MaxTokens < 1 || c.LLM.MaxTokens > 4096 {
		errors = append(errors, ValidationError{
			Field:   "llm.max_tokens",
			Message: "max_tokens must be between 1 and 4096",
		})
	}

	if c.LLM.Temperature <= 0 || c.LLM.Temperature > 1 {
		errors = append(errors, ValidationError{
			Field:   "llm.temperature",
			Message: "temperature must be greater than 0 and at most 1",
		})
	}

	if c.Database.URL != "" {
		if _, err := url.Parse(c.Database.URL); err != nil {
			errors = append(errors, ValidationError{
				Field:   "database.url",
				Message: "invalid database URL",
			})
		}
	}

	if c.Database.VectorDim < 1 {
		errors = append(errors, ValidationError{
			Field:   "database.vector_dim",
			Message: "vector_dim must be positive",
		})
	}

	if c.Database.Metric != "cosine" && c.Database.Metric != "euclidean" {
		errors = append(errors, ValidationError{
			Field:   "database.metric",
			Message: fmt.Sprintf("unknown metric: %s", c.Database.Metric),
		})
	}

	if c.Chunker.ChunkSize < 1 {
		errors = append(errors, ValidationError{
			Field:   "chunker.chunk_size",
			Message: "chunk_size must be positive",
		})
	}

	if c.Chunker.Overlap < 0 || c.Chunker.Overlap >= c.Chunker.ChunkSize {
		errors = append(errors, ValidationError{
			Field:   "chunker.overlap",
			Message: "overlap must be non-negative and less than chunk_size",
		})
	}

	if c.Embedder.MaxAttempts < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.max_attempts",
			Message: "max_attempts must be positive",
		})
	}

	if c.Embedder.Concurrency < 1 {
		errors = append(errors, ValidationError{
			Field:   "embedder.concurrency",
			Message: "concurrency must be positive",
		})
	}

	if c.Embedder.RateLimit <= 0 {
		errors = append(errors, ValidationError{
			Field:   "embedder.rate_limit",
			Message: "rate_limit must be positive",
		})
	}

	if c.Query.TopK < 1 {
		errors = append(errors, ValidationError{
			Field:   "query.top_k",
			Message: "top_k must be positive",
		})
	}

	for _, src := range c.Brief.Sources {
		if _, err := url.ParseRequestURI(src); err != nil {
			errors = append(errors, ValidationError{
				Field:   "brief.sources",
				Message: fmt.Sprintf("invalid source URL: %s", src),
			})
		}
	}

	return errors
}
