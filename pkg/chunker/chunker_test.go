package chunker_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrate-hq/orchestrate/internal/types"
	"github.com/orchestrate-hq/orchestrate/pkg/chunker"
)

func TestSplit_OverlapProperty(t *testing.T) {
	tests := []struct {
		name      string
		chunkSize int
		overlap   int
		textLen   int
	}{
		{"default sizes", 500, 50, 814},
		{"small chunks", 20, 5, 173},
		{"no overlap", 10, 0, 95},
		{"exact multiple", 100, 10, 280},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := chunker.NewWithConfig(chunker.ChunkerConfig{
				ChunkSize: tt.chunkSize,
				Overlap:   tt.overlap,
			})

			text := strings.Repeat("abcdefghij", tt.textLen/10+1)[:tt.textLen]
			chunks, err := c.Split("doc1", text)
			require.NoError(t, err)
			require.NotEmpty(t, chunks)

			for i := range chunks {
				assert.Equal(t, i, chunks[i].Index, "indices contiguous from 0")
				assert.NotEmpty(t, chunks[i].Text)
				assert.LessOrEqual(t, chunks[i].End, tt.textLen, "offsets within text length")

				if i == 0 {
					continue
				}
				prev := []rune(chunks[i-1].Text)
				cur := []rune(chunks[i].Text)
				tail := string(prev[len(prev)-tt.overlap:])
				head := string(cur[:tt.overlap])
				assert.Equal(t, tail, head,
					"chunks %d and %d must share exactly %d characters", i-1, i, tt.overlap)
			}
		})
	}
}

func TestSplit_Deterministic(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 120, Overlap: 30})
	text := strings.Repeat("The quick brown fox jumps over the lazy dog. ", 20)

	first, err := c.Split("doc1", text)
	require.NoError(t, err)
	second, err := c.Split("doc1", text)
	require.NoError(t, err)

	assert.Equal(t, first, second, "identical input and config must yield identical chunks")
}

func TestSplit_TwoChunkDocument(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 500, Overlap: 50})

	para := strings.Repeat("Orchestrate keeps your knowledge base close. ", 6)
	text := para + "\n\n" + para + "\n\n" + para
	require.Equal(t, 814, len([]rune(text)))

	chunks, err := c.Split("doc1", text)
	require.NoError(t, err)
	require.Len(t, chunks, 2)

	assert.Equal(t, 0, chunks[0].Start)
	assert.Equal(t, 500, chunks[0].End)
	assert.Equal(t, 450, chunks[1].Start)
	assert.Equal(t, 814, chunks[1].End)
}

func TestSplit_ShortText(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 500, Overlap: 50})

	chunks, err := c.Split("doc1", "just one small chunk")
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "just one small chunk", chunks[0].Text)
	assert.Equal(t, 0, chunks[0].Start)
}

func TestSplit_EmptyText(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 500, Overlap: 50})

	_, err := c.Split("doc1", "   \n\t ")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestSplit_RuneOffsets(t *testing.T) {
	c := chunker.NewWithConfig(chunker.ChunkerConfig{ChunkSize: 10, Overlap: 2})

	// multi-byte runes must be counted as single characters
	text := strings.Repeat("héllo wörld ", 3)
	chunks, err := c.Split("doc1", text)
	require.NoError(t, err)

	runes := []rune(text)
	for _, ch := range chunks {
		assert.Equal(t, string(runes[ch.Start:ch.End]), ch.Text)
	}
}
