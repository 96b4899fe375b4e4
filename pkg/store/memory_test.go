package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
	"github.com/orchestrate-hq/orchestrate/pkg/store"
)

const testModel = "nomic-embed-text:latest"

func seedStore(t *testing.T) (*store.Memory, *store.MemoryDocuments) {
	t.Helper()
	ctx := context.Background()
	docs := store.NewMemoryDocuments()
	vectors := store.NewMemory(docs, "cosine")

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"doc1", "doc2"} {
		err := docs.Create(ctx, &models.Document{
			ID:         id,
			Filename:   id + ".txt",
			MIMEType:   "text/plain",
			Status:     models.StatusChunked,
			UploadedAt: base.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	chunks := []models.Chunk{
		{DocumentID: "doc1", Index: 0, Text: "alpha", Embedding: []float32{1, 0, 0}, ModelVersion: testModel},
		{DocumentID: "doc1", Index: 1, Text: "beta", Embedding: []float32{0.9, 0.1, 0}, ModelVersion: testModel},
		{DocumentID: "doc2", Index: 0, Text: "gamma", Embedding: []float32{0, 1, 0}, ModelVersion: testModel},
		{DocumentID: "doc2", Index: 1, Text: "delta", Embedding: []float32{0, 0.9, 0.1}, ModelVersion: testModel},
	}
	require.NoError(t, vectors.Upsert(ctx, chunks))

	return vectors, docs
}

func TestMemory_SearchOrderingAndLimit(t *testing.T) {
	vectors, _ := seedStore(t)

	results, err := vectors.Search(context.Background(), []float32{1, 0, 0}, testModel, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3, "search must return at most k results")

	for i := 1; i < len(results); i++ {
		assert.LessOrEqual(t, results[i-1].Distance, results[i].Distance,
			"results ordered by non-decreasing distance")
	}
	assert.Equal(t, "alpha", results[0].Chunk.Text)
}

func TestMemory_SearchTieBreak(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryDocuments()
	vectors := store.NewMemory(docs, "cosine")

	earlier := time.Date(2026, 8, 1, 8, 0, 0, 0, time.UTC)
	later := earlier.Add(time.Hour)
	require.NoError(t, docs.Create(ctx, &models.Document{ID: "old", Status: models.StatusChunked, UploadedAt: earlier}))
	require.NoError(t, docs.Create(ctx, &models.Document{ID: "new", Status: models.StatusChunked, UploadedAt: later}))

	// identical vectors: distance ties across both documents
	vec := []float32{1, 0}
	require.NoError(t, vectors.Upsert(ctx, []models.Chunk{
		{DocumentID: "new", Index: 0, Text: "n0", Embedding: vec, ModelVersion: testModel},
		{DocumentID: "old", Index: 1, Text: "o1", Embedding: vec, ModelVersion: testModel},
		{DocumentID: "old", Index: 0, Text: "o0", Embedding: vec, ModelVersion: testModel},
	}))

	results, err := vectors.Search(ctx, vec, testModel, 3, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)

	// lowest chunk index first, then earliest upload time
	assert.Equal(t, "o0", results[0].Chunk.Text)
	assert.Equal(t, "n0", results[1].Chunk.Text)
	assert.Equal(t, "o1", results[2].Chunk.Text)
}

func TestMemory_UpsertIdempotent(t *testing.T) {
	vectors, _ := seedStore(t)
	ctx := context.Background()

	// re-upserting the same (document, index) replaces rather than duplicates
	require.NoError(t, vectors.Upsert(ctx, []models.Chunk{
		{DocumentID: "doc1", Index: 0, Text: "alpha revised", Embedding: []float32{1, 0, 0}, ModelVersion: testModel},
	}))

	results, err := vectors.Search(ctx, []float32{1, 0, 0}, testModel, 10, &types.SearchFilter{DocumentIDs: []string{"doc1"}})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "alpha revised", results[0].Chunk.Text)
}

func TestMemory_DeleteDocument(t *testing.T) {
	vectors, _ := seedStore(t)
	ctx := context.Background()

	require.NoError(t, vectors.DeleteDocument(ctx, "doc1"))

	results, err := vectors.Search(ctx, []float32{1, 0, 0}, testModel, 10, &types.SearchFilter{DocumentIDs: []string{"doc1"}})
	require.NoError(t, err)
	assert.Empty(t, results, "search must never return chunks from a deleted document")

	all, err := vectors.Search(ctx, []float32{1, 0, 0}, testModel, 10, nil)
	require.NoError(t, err)
	for _, rc := range all {
		assert.NotEqual(t, "doc1", rc.Chunk.DocumentID)
	}
}

func TestMemory_ModelVersionMismatch(t *testing.T) {
	vectors, _ := seedStore(t)
	ctx := context.Background()

	// only mismatched vectors in scope: hard failure
	_, err := vectors.Search(ctx, []float32{1, 0, 0}, "some-other-model", 5, nil)
	assert.ErrorIs(t, err, types.ErrModelVersionMismatch)
}

func TestMemory_ModelVersionFiltered(t *testing.T) {
	vectors, docs := seedStore(t)
	ctx := context.Background()

	require.NoError(t, docs.Create(ctx, &models.Document{
		ID: "doc3", Status: models.StatusChunked,
		UploadedAt: time.Date(2026, 8, 2, 9, 0, 0, 0, time.UTC),
	}))
	require.NoError(t, vectors.Upsert(ctx, []models.Chunk{
		{DocumentID: "doc3", Index: 0, Text: "stale", Embedding: []float32{1, 0, 0}, ModelVersion: "old-model"},
	}))

	// mixed store: mismatched vectors are filtered out transparently
	results, err := vectors.Search(ctx, []float32{1, 0, 0}, testModel, 10, nil)
	require.NoError(t, err)
	for _, rc := range results {
		assert.Equal(t, testModel, rc.Chunk.ModelVersion)
	}
}

func TestMemory_EmptyStore(t *testing.T) {
	vectors := store.NewMemory(store.NewMemoryDocuments(), "cosine")

	results, err := vectors.Search(context.Background(), []float32{1, 0, 0}, testModel, 5, nil)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestMemoryDocuments_AdvanceCAS(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryDocuments()
	require.NoError(t, docs.Create(ctx, &models.Document{
		ID: "doc1", Status: models.StatusPending, UploadedAt: time.Now().UTC(),
	}))

	ok, err := docs.Advance(ctx, "doc1", models.StatusPending, models.StatusExtracted)
	require.NoError(t, err)
	assert.True(t, ok)

	// second writer observing the stale status loses and no-ops
	ok, err = docs.Advance(ctx, "doc1", models.StatusPending, models.StatusExtracted)
	require.NoError(t, err)
	assert.False(t, ok)

	doc, err := docs.Get(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusExtracted, doc.Status)
}

func TestMemoryDocuments_AdvanceBackwardsRejected(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryDocuments()
	require.NoError(t, docs.Create(ctx, &models.Document{
		ID: "doc1", Status: models.StatusChunked, UploadedAt: time.Now().UTC(),
	}))

	_, err := docs.Advance(ctx, "doc1", models.StatusChunked, models.StatusPending)
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestMemoryDocuments_Recent(t *testing.T) {
	ctx := context.Background()
	docs := store.NewMemoryDocuments()

	base := time.Date(2026, 8, 1, 9, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, docs.Create(ctx, &models.Document{
			ID: id, Status: models.StatusPending,
			UploadedAt: base.Add(time.Duration(i) * time.Minute),
		}))
	}

	recent, err := docs.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
}
