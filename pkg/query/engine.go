package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
)

type EngineConfig struct {
	TopK int
	Tone string // default persona when the caller passes none
}

// Engine answers free-text questions against the knowledge base: it
// embeds the query, retrieves the nearest chunks and asks the generative
// model for an answer grounded in them. The whole path is read-only, so
// cancelling the caller's context never leaves partial writes.
type Engine struct {
	config    EngineConfig
	embedder  types.Embedder
	vectors   types.VectorStore
	generator types.Generator
}

func NewEngine(config EngineConfig, embedder types.Embedder, vectors types.VectorStore, generator types.Generator) *Engine {
	if config.TopK <= 0 {
		config.TopK = 5
	}
	if config.Tone == "" {
		config.Tone = "concise and helpful"
	}
	return &Engine{
		config:    config,
		embedder:  embedder,
		vectors:   vectors,
		generator: generator,
	}
}

// StreamingGenerator is implemented by generators that can deliver a
// completion incrementally.
type StreamingGenerator interface {
	GenerateStream(ctx context.Context, system, prompt string) (<-chan string, error)
}

// prepare validates the question, retrieves context and builds the
// system and user prompts. Citations are nil when retrieval found
// nothing, in which case the prompt asks for a general-knowledge answer.
func (e *Engine) prepare(ctx context.Context, question, tone string) (system, prompt string, citations []models.Citation, err error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return "", "", nil, fmt.Errorf("%w: empty query", types.ErrInvalidInput)
	}
	if tone == "" {
		tone = e.config.Tone
	}

	vectors, err := e.embedder.EmbedTexts(ctx, []string{question})
	if err != nil {
		return "", "", nil, err
	}

	retrieved, err := e.vectors.Search(ctx, vectors[0], e.embedder.ModelVersion(), e.config.TopK, nil)
	if err != nil {
		return "", "", nil, err
	}

	if len(retrieved) == 0 {
		system = fmt.Sprintf("You are Orchestrate, a %s assistant. The knowledge base has no relevant material; answer from general knowledge.", tone)
		return system, question, nil, nil
	}

	system = fmt.Sprintf("You are Orchestrate, a %s assistant. Answer using only the context below. Cite nothing outside it.", tone)
	citations = make([]models.Citation, 0, len(retrieved))
	for _, rc := range retrieved {
		citations = append(citations, models.Citation{
			DocumentID: rc.Chunk.DocumentID,
			ChunkIndex: rc.Chunk.Index,
		})
	}
	return system, buildPrompt(question, retrieved), citations, nil
}

// Query answers the question. When retrieval finds nothing the answer is
// generated without context and flagged ungrounded so the caller can
// render a disclaimer.
func (e *Engine) Query(ctx context.Context, question, tone string) (models.Answer, error) {
	system, prompt, citations, err := e.prepare(ctx, question, tone)
	if err != nil {
		return models.Answer{}, err
	}

	text, err := e.generator.Generate(ctx, system, prompt)
	if err != nil {
		return models.Answer{}, err
	}

	return models.Answer{Text: text, Citations: citations, Grounded: len(citations) > 0}, nil
}

// QueryStream answers the question with the response delivered in parts
// over a channel. Citations are returned up front since retrieval
// completes before generation starts. Generators that cannot stream fall
// back to one complete part.
func (e *Engine) QueryStream(ctx context.Context, question, tone string) (<-chan string, []models.Citation, error) {
	system, prompt, citations, err := e.prepare(ctx, question, tone)
	if err != nil {
		return nil, nil, err
	}

	if sg, ok := e.generator.(StreamingGenerator); ok {
		parts, err := sg.GenerateStream(ctx, system, prompt)
		if err != nil {
			return nil, nil, err
		}
		return parts, citations, nil
	}

	text, err := e.generator.Generate(ctx, system, prompt)
	if err != nil {
		return nil, nil, err
	}
	parts := make(chan string, 1)
	parts <- text
	close(parts)
	return parts, citations, nil
}

// buildPrompt lays out the retrieved chunks in descending relevance
// before the question.
func buildPrompt(question string, retrieved []models.RetrievedChunk) string {
	var sb strings.Builder
	sb.WriteString("Context:\n")
	for i, rc := range retrieved {
		fmt.Fprintf(&sb, "[%d] %s\n\n", i+1, rc.Chunk.Text)
	}
	fmt.Fprintf(&sb, "Question: %s", question)
	return sb.String()
}
