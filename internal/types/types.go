package types

import (
	"context"

	"github.com/orchestrate-hq/orchestrate/internal/models"
)

// BlobStore is the durable byte store behind the ingestion gateway,
// addressed by bucket + key. The gateway is its only writer.
type BlobStore interface {
	Put(ctx context.Context, bucket, key string, data []byte) error
	Get(ctx context.Context, bucket, key string) ([]byte, error)
	Delete(ctx context.Context, bucket, key string) error
}

// Extractor converts raw document bytes into plain text.
type Extractor interface {
	SupportedMIMETypes() []string
	Extract(ctx context.Context, data []byte) (string, error)
}

// Embedder turns texts into fixed-dimension vectors. ModelVersion
// identifies the vector space; vectors from different versions must never
// be compared.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
}

// Generator produces free text from a system template and a prompt.
type Generator interface {
	Generate(ctx context.Context, system, prompt string) (string, error)
}

// SearchFilter narrows a vector search to particular documents.
type SearchFilter struct {
	DocumentIDs []string
}

// VectorStore persists chunks and supports nearest-neighbour search.
//
// Upsert is idempotent by (DocumentID, Index). Search returns at most k
// chunks of the given model version ordered by non-decreasing distance,
// ties broken by lowest chunk index then earliest document upload time.
// DeleteDocument removes a document's chunks atomically.
type VectorStore interface {
	Upsert(ctx context.Context, chunks []models.Chunk) error
	Search(ctx context.Context, vector []float32, modelVersion string, k int, filter *SearchFilter) ([]models.RetrievedChunk, error)
	DeleteDocument(ctx context.Context, documentID string) error
}

// DocumentStore persists document records. Advance is a compare-and-set
// on the status column: it succeeds only for the writer that observes the
// expected prior status, so concurrent stage runners cannot double-advance
// the same document.
type DocumentStore interface {
	Create(ctx context.Context, doc *models.Document) error
	Get(ctx context.Context, id string) (*models.Document, error)
	Advance(ctx context.Context, id string, from, to models.Status) (bool, error)
	SetTextLength(ctx context.Context, id string, n int) error
	Recent(ctx context.Context, limit int) ([]models.Document, error)
	Delete(ctx context.Context, id string) error
}
