package embed

import (
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeOllama serves /api/tags and /api/embed with canned responses.
func fakeOllama(t *testing.T, dims int, failures *int32) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/tags":
			_ = json.NewEncoder(w).Encode(OllamaModelListResponse{
				Models: []OllamaModelInfo{{Name: "all-minilm:l6-v2"}},
			})
		case "/api/embed":
			if failures != nil && atomic.AddInt32(failures, -1) >= 0 {
				http.Error(w, "model loading", http.StatusServiceUnavailable)
				return
			}
			var req OllamaEmbedRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

			count := 1
			if arr, ok := req.Input.([]any); ok {
				count = len(arr)
			}
			embeddings := make([][]float64, count)
			for i := range embeddings {
				vec := make([]float64, dims)
				vec[i%dims] = 1.0
				vec[(i+1)%dims] = 2.0
				embeddings[i] = vec
			}
			_ = json.NewEncoder(w).Encode(OllamaEmbedResponse{
				Model:      req.Model,
				Embeddings: embeddings,
			})
		default:
			http.NotFound(w, r)
		}
	}))
}

func newTestEmbedder(t *testing.T, host string) *OllamaEmbedder {
	t.Helper()
	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       host,
		Model:      "all-minilm:l6-v2",
		BatchSize:  2,
		Timeout:    5 * time.Second,
		MaxRetries: 3,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestOllamaEmbedder_Embed(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL)

	// When embedding a single text
	vec, err := e.Embed(context.Background(), "hello world")

	// Then the vector is returned normalized
	require.NoError(t, err)
	require.Len(t, vec, 4)

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	assert.InDelta(t, 1.0, math.Sqrt(norm), 1e-5)
}

func TestOllamaEmbedder_DetectsDimensions(t *testing.T) {
	srv := fakeOllama(t, 8, nil)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL)

	assert.Equal(t, 8, e.Dimensions())
}

func TestOllamaEmbedder_EmptyTextZeroVector(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL)

	vec, err := e.Embed(context.Background(), "   \n  ")
	require.NoError(t, err)
	require.Len(t, vec, 4)
	for _, v := range vec {
		assert.Zero(t, v)
	}
}

func TestOllamaEmbedder_EmbedBatch(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL)

	// Given a batch larger than the configured batch size
	texts := []string{"one", "two", "three", "", "five"}

	vecs, err := e.EmbedBatch(context.Background(), texts)

	require.NoError(t, err)
	require.Len(t, vecs, 5)
	for _, v := range vecs {
		assert.Len(t, v, 4)
	}
	// Empty input maps to zero vector
	for _, v := range vecs[3] {
		assert.Zero(t, v)
	}
}

func TestOllamaEmbedder_RetriesTransientFailures(t *testing.T) {
	// Given a backend that fails twice before succeeding
	failures := int32(2)
	srv := fakeOllama(t, 4, &failures)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "all-minilm:l6-v2",
		Timeout:         5 * time.Second,
		MaxRetries:      3,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer e.Close()

	vec, err := e.Embed(context.Background(), "retry me")
	require.NoError(t, err)
	assert.Len(t, vec, 4)
}

func TestOllamaEmbedder_ExhaustsRetries(t *testing.T) {
	failures := int32(100)
	srv := fakeOllama(t, 4, &failures)
	defer srv.Close()

	e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:            srv.URL,
		Model:           "all-minilm:l6-v2",
		Timeout:         time.Second,
		MaxRetries:      2,
		SkipHealthCheck: true,
		Dimensions:      4,
	})
	require.NoError(t, err)
	defer e.Close()

	_, err = e.Embed(context.Background(), "doomed")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "attempts")
}

func TestOllamaEmbedder_UnreachableHostFailsConstruction(t *testing.T) {
	_, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
		Host:       "http://127.0.0.1:1",
		Model:      "all-minilm:l6-v2",
		Timeout:    time.Second,
		MaxRetries: 1,
	})
	assert.Error(t, err)
}

func TestOllamaEmbedder_Available(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	t.Run("installed model", func(t *testing.T) {
		e := newTestEmbedder(t, srv.URL)
		assert.True(t, e.Available(context.Background()))
	})

	t.Run("missing model", func(t *testing.T) {
		e, err := NewOllamaEmbedder(context.Background(), OllamaConfig{
			Host:            srv.URL,
			Model:           "not-installed:1b",
			SkipHealthCheck: true,
			Dimensions:      4,
		})
		require.NoError(t, err)
		defer e.Close()
		assert.False(t, e.Available(context.Background()))
	})

	t.Run("closed embedder", func(t *testing.T) {
		e := newTestEmbedder(t, srv.URL)
		require.NoError(t, e.Close())
		assert.False(t, e.Available(context.Background()))
	})
}

func TestOllamaEmbedder_ClosedRejectsEmbed(t *testing.T) {
	srv := fakeOllama(t, 4, nil)
	defer srv.Close()

	e := newTestEmbedder(t, srv.URL)
	require.NoError(t, e.Close())

	_, err := e.Embed(context.Background(), "after close")
	assert.Error(t, err)
}

func TestNormalizeVector(t *testing.T) {
	t.Run("unit length", func(t *testing.T) {
		v := normalizeVector([]float32{3, 4})
		assert.InDelta(t, 0.6, float64(v[0]), 1e-6)
		assert.InDelta(t, 0.8, float64(v[1]), 1e-6)
	})

	t.Run("zero vector unchanged", func(t *testing.T) {
		v := normalizeVector([]float32{0, 0, 0})
		assert.Equal(t, []float32{0, 0, 0}, v)
	})
}
