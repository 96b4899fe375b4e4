package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/ollama"
	"golang.org/x/time/rate"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// ChatConfig represents the configuration for a chat engine.
type ChatConfig struct {
	Model          string
	Temperature    float64
	MaxTokens      int
	SystemTemplate string
	BaseURL        string  // Ollama server URL
	MaxAttempts    int     // bounded retries per provider call
	RateLimit      float64 // provider calls per second
}

// ChatEngine is an engine that uses an LLM to generate answers, drafts
// and briefs. It implements types.Generator.
type ChatEngine struct {
	config  ChatConfig
	llm     llms.Model
	limiter *rate.Limiter
}

// NewWithConfig creates a new ChatEngine with the given configuration.
func NewWithConfig(config ChatConfig) (*ChatEngine, error) {
	if config.Model == "" {
		config.Model = "mistral"
	}
	if config.Temperature <= 0 || config.Temperature > 1 {
		return nil, fmt.Errorf("temperature must be between 0 and 1")
	}
	if config.MaxTokens < 0 {
		return nil, fmt.Errorf("max tokens cannot be negative")
	} else if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.SystemTemplate == "" {
		config.SystemTemplate = "You are Orchestrate, a helpful assistant. Answer using only the provided knowledge-base context when one is given."
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

	llm, err := ollama.New(ollama.WithModel(config.Model),
		ollama.WithServerURL(config.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize LLM: %w", err)
	}

	return &ChatEngine{
		config:  config,
		llm:     llm,
		limiter: rate.NewLimiter(rate.Limit(config.RateLimit), 1),
	}, nil
}

// Generate produces a completion for prompt under the given system
// template, retrying transient provider failures with backoff.
func (ce *ChatEngine) Generate(ctx context.Context, system, prompt string) (string, error) {
	if system == "" {
		system = ce.config.SystemTemplate
	}

	content := []llms.MessageContent{
		llms.TextParts(llms.ChatMessageTypeSystem, system),
		llms.TextParts(llms.ChatMessageTypeHuman, prompt),
	}

	var lastErr error
	backoff := 500 * time.Millisecond

	for attempt := 1; attempt <= ce.config.MaxAttempts; attempt++ {
		if err := ce.limiter.Wait(ctx); err != nil {
			return "", err
		}

		response, err := ce.llm.GenerateContent(ctx, content)
		if err == nil {
			if len(response.Choices) == 0 {
				return "", fmt.Errorf("%w: empty response from model", types.ErrProvider)
			}
			return response.Choices[0].Content, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		if attempt == ce.config.MaxAttempts {
			break
		}

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return "", ctx.Err()
		}
		backoff *= 2
	}

	return "", fmt.Errorf("%w: generation failed after %d attempts: %v",
		types.ErrProvider, ce.config.MaxAttempts, lastErr)
}

// GenerateStream generates a response and delivers it over a channel so
// websocket clients can render incrementally.
func (ce *ChatEngine) GenerateStream(ctx context.Context, system, prompt string) (<-chan string, error) {
	resultChan := make(chan string)

	go func() {
		defer close(resultChan)

		response, err := ce.Generate(ctx, system, prompt)
		if err != nil {
			select {
			case resultChan <- fmt.Sprintf("Error: %v", err):
			case <-ctx.Done():
			}
			return
		}

		select {
		case resultChan <- response:
		case <-ctx.Done():
		}
	}()

	return resultChan, nil
}

// DraftTypes lists the supported drafting modes.
var DraftTypes = map[string]string{
	"email": "a professional email",
	"memo":  "an internal memo",
	"plan":  "a structured project plan",
}

// Draft produces a document of the requested type in the requested tone.
// Constraints are free-form key/value hints passed through to the model.
func (ce *ChatEngine) Draft(ctx context.Context, draftType, tone string, constraints map[string]any) (string, error) {
	desc, ok := DraftTypes[draftType]
	if !ok {
		return "", fmt.Errorf("%w: unknown draft type %q", types.ErrInvalidInput, draftType)
	}
	if tone == "" {
		tone = "neutral"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Write %s in a %s tone.\n", desc, tone)
	for k, v := range constraints {
		fmt.Fprintf(&sb, "Constraint %s: %v\n", k, v)
	}

	return ce.Generate(ctx, "You are a writing assistant for busy professionals.", sb.String())
}
