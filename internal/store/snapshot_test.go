package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	agerrors "github.com/OxCom/llvm-source-agent/internal/errors"
	"github.com/OxCom/llvm-source-agent/internal/source"
)

func testChunks() []source.Chunk {
	return []source.Chunk{
		{ID: source.ChunkID("a.py", 1, 2), Path: "a.py", StartLine: 1, EndLine: 2, Text: "def add(a, b):\n    return a + b"},
		{ID: source.ChunkID("b.py", 1, 2), Path: "b.py", StartLine: 1, EndLine: 2, Text: "def sub(a, b):\n    return a - b"},
		{ID: source.ChunkID("c.md", 1, 1), Path: "c.md", StartLine: 1, EndLine: 1, Text: "# project readme"},
	}
}

func testVectors() [][]float32 {
	return [][]float32{
		{1, 0, 0, 0},
		{0.9, 0.1, 0, 0},
		{0, 0, 1, 0},
	}
}

func TestBuild(t *testing.T) {
	t.Run("builds snapshot from chunks and vectors", func(t *testing.T) {
		snap, err := Build(testChunks(), testVectors(), "all-minilm:l6-v2")

		require.NoError(t, err)
		assert.Equal(t, 3, snap.Count())
		assert.Equal(t, 4, snap.Dimensions())
		assert.Equal(t, "all-minilm:l6-v2", snap.Model())
		assert.False(t, snap.BuiltAt().IsZero())
	})

	t.Run("rejects length mismatch", func(t *testing.T) {
		_, err := Build(testChunks(), testVectors()[:2], "m")
		assert.Error(t, err)
	})

	t.Run("empty input builds an empty snapshot", func(t *testing.T) {
		snap, err := Build(nil, nil, "m")
		require.NoError(t, err)
		assert.Equal(t, 0, snap.Count())

		results, err := snap.Search([]float32{1, 0, 0, 0}, 5)
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("rejects ragged dimensions", func(t *testing.T) {
		vectors := testVectors()
		vectors[2] = []float32{1, 2}

		_, err := Build(testChunks(), vectors, "m")
		require.Error(t, err)
		assert.Equal(t, agerrors.ErrCodeDimensionMismatch, agerrors.GetCode(err))
	})
}

func TestSnapshot_Search(t *testing.T) {
	snap, err := Build(testChunks(), testVectors(), "m")
	require.NoError(t, err)

	t.Run("nearest neighbor first", func(t *testing.T) {
		// Given a query closest to a.py's vector
		results, err := snap.Search([]float32{1, 0, 0, 0}, 2)

		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, "a.py", results[0].Chunk.Path)
		assert.Equal(t, "b.py", results[1].Chunk.Path)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("k larger than index", func(t *testing.T) {
		results, err := snap.Search([]float32{0, 0, 1, 0}, 50)
		require.NoError(t, err)
		assert.Len(t, results, 3)
		assert.Equal(t, "c.md", results[0].Chunk.Path)
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		_, err := snap.Search([]float32{1, 0}, 2)
		require.Error(t, err)
		assert.Equal(t, agerrors.ErrCodeDimensionMismatch, agerrors.GetCode(err))
	})

	t.Run("scores within range", func(t *testing.T) {
		results, err := snap.Search([]float32{0.5, 0.5, 0.5, 0.5}, 3)
		require.NoError(t, err)
		for _, r := range results {
			assert.GreaterOrEqual(t, r.Score, float32(0))
			assert.LessOrEqual(t, r.Score, float32(1))
		}
	})
}

func TestSnapshot_ConcurrentSearch(t *testing.T) {
	snap, err := Build(testChunks(), testVectors(), "m")
	require.NoError(t, err)

	done := make(chan struct{})
	for i := 0; i < 8; i++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for j := 0; j < 50; j++ {
				_, _ = snap.Search([]float32{1, 0, 0, 0}, 2)
			}
		}()
	}
	for i := 0; i < 8; i++ {
		<-done
	}
	close(done)
}

func TestDistanceToScore(t *testing.T) {
	assert.Equal(t, float32(1.0), distanceToScore(0))
	assert.Equal(t, float32(0.5), distanceToScore(1))
	assert.Equal(t, float32(0.0), distanceToScore(2))
}
