package chunker

import (
	"strings"

	"github.com/orchestrate-hq/orchestrate/internal/models"
	"github.com/orchestrate-hq/orchestrate/internal/types"
)

type ChunkerConfig struct {
	ChunkSize int // max runes per chunk
	Overlap   int // runes shared between consecutive chunks
}

// Chunker splits extracted text into fixed-size overlapping segments.
// Splitting is purely positional, so identical input and configuration
// always produce identical chunk boundaries.
type Chunker struct {
	config ChunkerConfig
}

func NewWithConfig(config ChunkerConfig) Chunker {
	if config.ChunkSize == 0 {
		config.ChunkSize = 500
	}
	if config.Overlap < 0 {
		config.Overlap = 0
	}
	if config.Overlap >= config.ChunkSize {
		config.Overlap = config.ChunkSize - 1
	}

	return Chunker{config: config}
}

// Split cuts text into chunks for documentID. Consecutive chunks share
// exactly Overlap runes; the final chunk may be shorter than ChunkSize.
// Indices are contiguous from 0 and offsets are rune positions into text.
func (c *Chunker) Split(documentID, text string) ([]models.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, types.ErrInvalidInput
	}

	runes := []rune(text)
	step := c.config.ChunkSize - c.config.Overlap

	var chunks []models.Chunk
	for start := 0; start < len(runes); start += step {
		end := start + c.config.ChunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, models.Chunk{
			DocumentID: documentID,
			Index:      len(chunks),
			Start:      start,
			End:        end,
			Text:       string(runes[start:end]),
		})
		if end == len(runes) {
			break
		}
	}

	return chunks, nil
}
