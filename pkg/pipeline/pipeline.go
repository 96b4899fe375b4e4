package pipeline

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
	"github.com/orchestrate-hq/orchestrate/pkg/chunker"
	"github.com/orchestrate-hq/orchestrate/pkg/extract"
)

type PipelineConfig struct {
	Bucket           string
	ChunkSize        int
	Overlap          int
	EmbedConcurrency int // concurrent provider calls per document
}

// Pipeline drives a document from upload through extraction, chunking
// and embedding. Stages of one document run strictly in order, gated by
// compare-and-set status transitions; different documents may be
// processed concurrently.
type Pipeline struct {
	config     PipelineConfig
	blobs      types.BlobStore
	docs       types.DocumentStore
	extractors *extract.Registry
	chunker    chunker.Chunker
	embedder   types.Embedder
	vectors    types.VectorStore
}

func New(config PipelineConfig, blobs types.BlobStore, docs types.DocumentStore,
	extractors *extract.Registry, embedder types.Embedder, vectors types.VectorStore) *Pipeline {

	if config.Bucket == "" {
		config.Bucket = "knowledge-base"
	}
	if config.EmbedConcurrency <= 0 {
		config.EmbedConcurrency = 4
	}

	return &Pipeline{
		config:     config,
		blobs:      blobs,
		docs:       docs,
		extractors: extractors,
		chunker: chunker.NewWithConfig(chunker.ChunkerConfig{
			ChunkSize: config.ChunkSize,
			Overlap:   config.Overlap,
		}),
		embedder: embedder,
		vectors:  vectors,
	}
}

// Ingest validates an upload, writes the raw bytes to the blob store and
// creates the pending document record. The blob write happens first: if
// it fails no document record exists, and if the record insert fails the
// blob is removed again.
func (p *Pipeline) Ingest(ctx context.Context, filename, mimeType string, data []byte) (*models.Document, error) {
	if filename == "" || len(data) == 0 {
		return nil, fmt.Errorf("%w: empty upload", types.ErrInvalidInput)
	}
	if !p.extractors.Supports(mimeType) {
		return nil, fmt.Errorf("%w: %s", types.ErrUnsupportedFormat, mimeType)
	}

	now := time.Now().UTC()
	key := fmt.Sprintf("%d_%s", now.UnixMilli(), filename)

	if err := p.blobs.Put(ctx, p.config.Bucket, key, data); err != nil {
		return nil, err
	}

	doc := &models.Document{
		ID:         uuid.New().String(),
		Filename:   filename,
		MIMEType:   mimeType,
		Bucket:     p.config.Bucket,
		StorageKey: key,
		Status:     models.StatusPending,
		UploadedAt: now,
	}

	if err := p.docs.Create(ctx, doc); err != nil {
		if delErr := p.blobs.Delete(ctx, p.config.Bucket, key); delErr != nil {
			log.Printf("[pipeline] orphaned blob %s/%s: %v", p.config.Bucket, key, delErr)
		}
		return nil, err
	}

	return doc, nil
}

// Process runs the remaining stages for a document. It is safe to call
// again after a failure: extraction and chunking are deterministic, so a
// retry regenerates identical chunks, and upserts are idempotent. Each
// stage transition is a compare-and-set; of two concurrent callers only
// the winner proceeds and the loser returns nil without doing the later
// stages.
func (p *Pipeline) Process(ctx context.Context, documentID string) error {
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}

	var text string
	var chunks []models.Chunk

	if doc.Status == models.StatusPending {
		text, err = p.extractText(ctx, doc)
		if err != nil {
			// status stays pending so the stage can be retried
			return err
		}
		if err := p.docs.SetTextLength(ctx, doc.ID, len([]rune(text))); err != nil {
			return err
		}
		ok, err := p.docs.Advance(ctx, doc.ID, models.StatusPending, models.StatusExtracted)
		if err != nil {
			return err
		}
		if !ok {
			// another writer advanced the document; it owns the rest
			return nil
		}
		doc.Status = models.StatusExtracted
	}

	if doc.Status == models.StatusExtracted {
		if text == "" {
			if text, err = p.extractText(ctx, doc); err != nil {
				return err
			}
		}
		chunks, err = p.chunker.Split(doc.ID, text)
		if err != nil {
			return err
		}
		ok, err := p.docs.Advance(ctx, doc.ID, models.StatusExtracted, models.StatusChunked)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		doc.Status = models.StatusChunked
	}

	if doc.Status == models.StatusChunked {
		if chunks == nil {
			if text, err = p.extractText(ctx, doc); err != nil {
				return err
			}
			if chunks, err = p.chunker.Split(doc.ID, text); err != nil {
				return err
			}
		}
		if err := p.embedChunks(ctx, chunks); err != nil {
			// document remains chunked; embedding can be retried
			return err
		}
		ok, err := p.docs.Advance(ctx, doc.ID, models.StatusChunked, models.StatusEmbedded)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}

	return nil
}

func (p *Pipeline) extractText(ctx context.Context, doc *models.Document) (string, error) {
	data, err := p.blobs.Get(ctx, doc.Bucket, doc.StorageKey)
	if err != nil {
		return "", err
	}
	return p.extractors.Extract(ctx, doc.MIMEType, data)
}

// embedChunks embeds each chunk through the provider, at most
// EmbedConcurrency calls in flight; further chunks wait on the semaphore
// rather than failing. A chunk whose retries are exhausted does not stop
// its siblings; successfully embedded chunks are still persisted. A
// retry re-embeds every chunk and relies on the upsert being idempotent.
func (p *Pipeline) embedChunks(ctx context.Context, chunks []models.Chunk) error {
	sem := make(chan struct{}, p.config.EmbedConcurrency)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var embedded []models.Chunk
	var failed []int

	for i := range chunks {
		wg.Add(1)
		sem <- struct{}{}
		go func(chunk models.Chunk) {
			defer wg.Done()
			defer func() { <-sem }()

			vectors, err := p.embedder.EmbedTexts(ctx, []string{chunk.Text})
			mu.Lock()
			defer mu.Unlock()
			if err != nil || len(vectors) == 0 {
				failed = append(failed, chunk.Index)
				return
			}
			chunk.Embedding = vectors[0]
			chunk.ModelVersion = p.embedder.ModelVersion()
			embedded = append(embedded, chunk)
		}(chunks[i])
	}
	wg.Wait()

	if len(embedded) > 0 {
		if err := p.vectors.Upsert(ctx, embedded); err != nil {
			return err
		}
	}

	if len(failed) > 0 {
		return fmt.Errorf("%w: %d of %d chunks failed to embed", types.ErrProvider, len(failed), len(chunks))
	}
	return nil
}

// Delete removes a document everywhere: vector store (chunks plus
// record), then the stored blob.
func (p *Pipeline) Delete(ctx context.Context, documentID string) error {
	doc, err := p.docs.Get(ctx, documentID)
	if err != nil {
		return err
	}
	if err := p.vectors.DeleteDocument(ctx, documentID); err != nil {
		return err
	}
	if err := p.blobs.Delete(ctx, doc.Bucket, doc.StorageKey); err != nil {
		return err
	}
	return nil
}
