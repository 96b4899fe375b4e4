package blob

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchestrate-hq/orchestrate/internal/types"
)

func TestMemoryStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Put(ctx, "kb", "a.txt", []byte("hello")))

	data, err := s.Get(ctx, "kb", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data)
	assert.Equal(t, 1, s.Len())
}

func TestMemoryStore_CopiesData(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	original := []byte("hello")
	require.NoError(t, s.Put(ctx, "kb", "a.txt", original))
	original[0] = 'X'

	data, err := s.Get(ctx, "kb", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), data, "stored bytes must not alias the caller's slice")
}

func TestMemoryStore_BucketsAreDistinct(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Put(ctx, "kb", "a.txt", []byte("one")))
	require.NoError(t, s.Put(ctx, "archive", "a.txt", []byte("two")))

	data, err := s.Get(ctx, "kb", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, []byte("one"), data)
}

func TestMemoryStore_MissingBlob(t *testing.T) {
	s := NewMemory()
	_, err := s.Get(context.Background(), "kb", "nope.txt")
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestMemoryStore_Delete(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	require.NoError(t, s.Put(ctx, "kb", "a.txt", []byte("hello")))
	require.NoError(t, s.Delete(ctx, "kb", "a.txt"))

	_, err := s.Get(ctx, "kb", "a.txt")
	assert.Error(t, err)
	assert.Equal(t, 0, s.Len())

	// deleting again is a no-op
	assert.NoError(t, s.Delete(ctx, "kb", "a.txt"))
}

func TestMemoryStore_FailureInjection(t *testing.T) {
	s := NewMemory()
	s.FailWith = fmt.Errorf("%w: bucket offline", types.ErrStorageUnavailable)

	err := s.Put(context.Background(), "kb", "a.txt", []byte("hello"))
	assert.ErrorIs(t, err, types.ErrStorageUnavailable)
	assert.Equal(t, 0, s.Len())
}
