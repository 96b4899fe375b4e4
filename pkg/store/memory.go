package store

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
)

// MemoryDocuments is an in-memory document repository with the same
// compare-and-set semantics as the Postgres one. Used by tests and by
// the CLI's local mode.
type MemoryDocuments struct {
	mu   sync.RWMutex
	docs map[string]*models.Document
}

func NewMemoryDocuments() *MemoryDocuments {
	return &MemoryDocuments{docs: make(map[string]*models.Document)}
}

func (m *MemoryDocuments) Create(_ context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return fmt.Errorf("%w: document %s already exists", types.ErrInvalidInput, doc.ID)
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	return nil
}

func (m *MemoryDocuments) Get(_ context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, fmt.Errorf("%w: document %s not found", types.ErrInvalidInput, id)
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryDocuments) Advance(_ context.Context, id string, from, to models.Status) (bool, error) {
	if !from.CanAdvance(to) {
		return false, fmt.Errorf("%w: cannot advance %s to %s", types.ErrInvalidInput, from, to)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return false, fmt.Errorf("%w: document %s not found", types.ErrInvalidInput, id)
	}
	if doc.Status != from {
		return false, nil
	}
	doc.Status = to
	return true, nil
}

func (m *MemoryDocuments) SetTextLength(_ context.Context, id string, n int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.docs[id]
	if !ok {
		return fmt.Errorf("%w: document %s not found", types.ErrInvalidInput, id)
	}
	doc.TextLength = n
	return nil
}

func (m *MemoryDocuments) Recent(_ context.Context, limit int) ([]models.Document, error) {
	if limit <= 0 {
		limit = 10
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs := make([]models.Document, 0, len(m.docs))
	for _, doc := range m.docs {
		docs = append(docs, *doc)
	}
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadedAt.After(docs[j].UploadedAt)
	})
	if len(docs) > limit {
		docs = docs[:limit]
	}
	return docs, nil
}

func (m *MemoryDocuments) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.docs, id)
	return nil
}

func (m *MemoryDocuments) uploadedAt(id string) time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if doc, ok := m.docs[id]; ok {
		return doc.UploadedAt
	}
	return time.Time{}
}

// Memory is an in-memory vector store using brute-force distance
// computation. It mirrors the pgvector store's semantics, including the
// model-version guard and tie-break ordering.
type Memory struct {
	mu     sync.RWMutex
	metric string
	docs   *MemoryDocuments
	chunks map[string]map[int]models.Chunk
}

func NewMemory(docs *MemoryDocuments, metric string) *Memory {
	if metric == "" {
		metric = "cosine"
	}
	return &Memory{
		metric: metric,
		docs:   docs,
		chunks: make(map[string]map[int]models.Chunk),
	}
}

func (m *Memory) Upsert(_ context.Context, chunks []models.Chunk) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, chunk := range chunks {
		byIndex, ok := m.chunks[chunk.DocumentID]
		if !ok {
			byIndex = make(map[int]models.Chunk)
			m.chunks[chunk.DocumentID] = byIndex
		}
		byIndex[chunk.Index] = chunk
	}
	return nil
}

func (m *Memory) Search(_ context.Context, vector []float32, modelVersion string, k int, filter *types.SearchFilter) ([]models.RetrievedChunk, error) {
	if k <= 0 {
		k = 5
	}

	var allowed map[string]bool
	if filter != nil && len(filter.DocumentIDs) > 0 {
		allowed = make(map[string]bool, len(filter.DocumentIDs))
		for _, id := range filter.DocumentIDs {
			allowed[id] = true
		}
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var results []models.RetrievedChunk
	candidates := 0
	for docID, byIndex := range m.chunks {
		if allowed != nil && !allowed[docID] {
			continue
		}
		for _, chunk := range byIndex {
			candidates++
			if chunk.ModelVersion != modelVersion {
				continue
			}
			rc := models.RetrievedChunk{
				Chunk:    chunk,
				Distance: distance(m.metric, vector, chunk.Embedding),
			}
			if m.docs != nil {
				rc.UploadedAt = m.docs.uploadedAt(docID)
			}
			results = append(results, rc)
		}
	}

	if len(results) == 0 {
		if candidates > 0 {
			return nil, fmt.Errorf("%w: store holds vectors for a different model version", types.ErrModelVersionMismatch)
		}
		return nil, nil
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Distance != results[j].Distance {
			return results[i].Distance < results[j].Distance
		}
		if results[i].Chunk.Index != results[j].Chunk.Index {
			return results[i].Chunk.Index < results[j].Chunk.Index
		}
		return results[i].UploadedAt.Before(results[j].UploadedAt)
	})

	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

// DeleteDocument removes every chunk of the document in one step; the
// map entry disappears atomically under the write lock.
func (m *Memory) DeleteDocument(_ context.Context, documentID string) error {
	m.mu.Lock()
	delete(m.chunks, documentID)
	m.mu.Unlock()
	if m.docs != nil {
		return m.docs.Delete(context.Background(), documentID)
	}
	return nil
}

func distance(metric string, a, b []float32) float64 {
	if metric == "euclidean" {
		var sum float64
		n := len(a)
		if len(b) < n {
			n = len(b)
		}
		for i := 0; i < n; i++ {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return math.Sqrt(sum)
	}

	// cosine distance
	var dot, na, nb float64
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 1
	}
	return 1 - dot/(math.Sqrt(na)*math.Sqrt(nb))
}
