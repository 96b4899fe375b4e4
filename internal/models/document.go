package models

import "time"

// Status tracks how far a document has moved through the ingestion
// pipeline. Transitions are monotonic; a document never moves backwards.
type Status string

const (
	StatusPending   Status = "pending"
	StatusExtracted Status = "extracted"
	StatusChunked   Status = "chunked"
	StatusEmbedded  Status = "embedded"
	StatusFailed    Status = "failed"
)

var statusRank = map[Status]int{
	StatusPending:   0,
	StatusExtracted: 1,
	StatusChunked:   2,
	StatusEmbedded:  3,
	StatusFailed:    4,
}

// CanAdvance reports whether moving from s to next is a forward
// transition. Failed is terminal.
func (s Status) CanAdvance(next Status) bool {
	from, ok := statusRank[s]
	if !ok {
		return false
	}
	to, ok := statusRank[next]
	if !ok {
		return false
	}
	if s == StatusFailed {
		return false
	}
	return to > from
}

type Document struct {
	ID         string
	Filename   string
	MIMEType   string
	Bucket     string
	StorageKey string
	Status     Status
	TextLength int
	UploadedAt time.Time
}

// Chunk is one bounded segment of a document's extracted text. Start and
// End are rune offsets into the extracted text. Chunks are immutable once
// written; re-processing a document replaces them wholesale.
type Chunk struct {
	DocumentID   string
	Index        int
	Start        int
	End          int
	Text         string
	Embedding    []float32
	ModelVersion string
}

// RetrievedChunk pairs a chunk with its distance to the query vector.
// UploadedAt carries the owning document's upload time for tie-breaking.
type RetrievedChunk struct {
	Chunk      Chunk
	Distance   float64
	UploadedAt time.Time
}

type Citation struct {
	DocumentID string `json:"documentId"`
	ChunkIndex int    `json:"chunkIndex"`
}

// Answer is the ephemeral result of one query. Not persisted.
type Answer struct {
	Text      string
	Citations []Citation
	Grounded  bool
}
