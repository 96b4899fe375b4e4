package query_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
	"github.com/orchestrate-hq/orchestrate/pkg/query"
	"github.com/orchestrate-hq/orchestrate/pkg/store"
)

const testModel = "fake-embed-v1"

type countingEmbedder struct {
	mu    sync.Mutex
	calls int
}

func (e *countingEmbedder) EmbedTexts(_ context.Context, texts []string) ([][]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls++
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0, 0}
	}
	return out, nil
}

func (e *countingEmbedder) ModelVersion() string { return testModel }

type scriptedGenerator struct {
	mu     sync.Mutex
	calls  int
	reply  string
	system string
	prompt string
}

func (g *scriptedGenerator) Generate(_ context.Context, system, prompt string) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls++
	g.system = system
	g.prompt = prompt
	return g.reply, nil
}

func seededVectors(t *testing.T) *store.Memory {
	t.Helper()
	ctx := context.Background()
	docs := store.NewMemoryDocuments()
	vectors := store.NewMemory(docs, "cosine")

	require.NoError(t, docs.Create(ctx, &models.Document{
		ID: "doc1", Filename: "notes.txt", Status: models.StatusEmbedded,
	}))
	require.NoError(t, vectors.Upsert(ctx, []models.Chunk{
		{DocumentID: "doc1", Index: 0, Text: "The launch is planned for Thursday.",
			Embedding: []float32{1, 0, 0}, ModelVersion: testModel},
		{DocumentID: "doc1", Index: 1, Text: "Budget review follows the launch.",
			Embedding: []float32{0.9, 0.1, 0}, ModelVersion: testModel},
	}))
	return vectors
}

func TestEngine_EmptyQuery(t *testing.T) {
	emb := &countingEmbedder{}
	gen := &scriptedGenerator{reply: "unused"}
	engine := query.NewEngine(query.EngineConfig{}, emb, seededVectors(t), gen)

	_, err := engine.Query(context.Background(), "   \n\t ", "")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Equal(t, 0, emb.calls, "validation must precede provider calls")
	assert.Equal(t, 0, gen.calls)
}

func TestEngine_GroundedAnswer(t *testing.T) {
	emb := &countingEmbedder{}
	gen := &scriptedGenerator{reply: "The launch is on Thursday."}
	engine := query.NewEngine(query.EngineConfig{TopK: 2}, emb, seededVectors(t), gen)

	answer, err := engine.Query(context.Background(), "When is the launch?", "")
	require.NoError(t, err)

	assert.True(t, answer.Grounded)
	assert.Equal(t, "The launch is on Thursday.", answer.Text)
	require.Len(t, answer.Citations, 2)
	assert.Equal(t, models.Citation{DocumentID: "doc1", ChunkIndex: 0}, answer.Citations[0])
	assert.Equal(t, models.Citation{DocumentID: "doc1", ChunkIndex: 1}, answer.Citations[1])

	assert.Contains(t, gen.prompt, "The launch is planned for Thursday.")
	assert.Contains(t, gen.prompt, "Question: When is the launch?")
	assert.True(t, strings.Contains(gen.system, "only the context"),
		"grounded answers must be pinned to the retrieved context")
}

func TestEngine_EmptyStoreIsUngrounded(t *testing.T) {
	docs := store.NewMemoryDocuments()
	vectors := store.NewMemory(docs, "cosine")
	emb := &countingEmbedder{}
	gen := &scriptedGenerator{reply: "From general knowledge: sometime soon."}
	engine := query.NewEngine(query.EngineConfig{}, emb, vectors, gen)

	answer, err := engine.Query(context.Background(), "When is the launch?", "")
	require.NoError(t, err)

	assert.False(t, answer.Grounded)
	assert.NotEmpty(t, answer.Text)
	assert.Empty(t, answer.Citations)
	assert.Equal(t, 1, gen.calls, "ungrounded answers still go through the model")
}

// streamingGenerator scripts a part-by-part reply alongside the plain
// Generate path.
type streamingGenerator struct {
	scriptedGenerator
	parts []string
}

func (g *streamingGenerator) GenerateStream(_ context.Context, system, prompt string) (<-chan string, error) {
	g.mu.Lock()
	g.system = system
	g.prompt = prompt
	g.mu.Unlock()

	ch := make(chan string, len(g.parts))
	for _, p := range g.parts {
		ch <- p
	}
	close(ch)
	return ch, nil
}

func collect(ch <-chan string) []string {
	var out []string
	for p := range ch {
		out = append(out, p)
	}
	return out
}

func TestEngine_QueryStream(t *testing.T) {
	emb := &countingEmbedder{}
	gen := &streamingGenerator{parts: []string{"The launch ", "is Thursday."}}
	engine := query.NewEngine(query.EngineConfig{TopK: 2}, emb, seededVectors(t), gen)

	parts, citations, err := engine.QueryStream(context.Background(), "When is the launch?", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"The launch ", "is Thursday."}, collect(parts))
	require.Len(t, citations, 2)
	assert.Equal(t, models.Citation{DocumentID: "doc1", ChunkIndex: 0}, citations[0])
	assert.Contains(t, gen.prompt, "Question: When is the launch?")
	assert.Equal(t, 0, gen.calls, "the streaming path must not call Generate")
}

func TestEngine_QueryStream_FallsBackToGenerate(t *testing.T) {
	emb := &countingEmbedder{}
	gen := &scriptedGenerator{reply: "The launch is on Thursday."}
	engine := query.NewEngine(query.EngineConfig{TopK: 2}, emb, seededVectors(t), gen)

	parts, citations, err := engine.QueryStream(context.Background(), "When is the launch?", "")
	require.NoError(t, err)

	assert.Equal(t, []string{"The launch is on Thursday."}, collect(parts))
	assert.Len(t, citations, 2)
	assert.Equal(t, 1, gen.calls)
}

func TestEngine_QueryStream_EmptyQuery(t *testing.T) {
	emb := &countingEmbedder{}
	gen := &streamingGenerator{parts: []string{"unused"}}
	engine := query.NewEngine(query.EngineConfig{}, emb, seededVectors(t), gen)

	_, _, err := engine.QueryStream(context.Background(), "  ", "")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
	assert.Equal(t, 0, emb.calls)
}

func TestEngine_ToneOverride(t *testing.T) {
	emb := &countingEmbedder{}
	gen := &scriptedGenerator{reply: "Aye, Thursday it is."}
	engine := query.NewEngine(query.EngineConfig{Tone: "concise and helpful"}, emb, seededVectors(t), gen)

	_, err := engine.Query(context.Background(), "When is the launch?", "cheerfully informal")
	require.NoError(t, err)
	assert.Contains(t, gen.system, "cheerfully informal")

	_, err = engine.Query(context.Background(), "When is the launch?", "")
	require.NoError(t, err)
	assert.Contains(t, gen.system, "concise and helpful")
}
