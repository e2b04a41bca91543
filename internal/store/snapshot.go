// Package store holds the built vector index: an immutable in-memory
// snapshot backed by an HNSW graph, and its on-disk persistence.
package store

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/coder/hnsw"

	"github.com/OxCom/llvm-source-agent/internal/errors"
	"github.com/OxCom/llvm-source-agent/internal/source"
)

// HNSW graph parameters.
const (
	defaultM        = 16
	defaultEfSearch = 20
)

// SearchResult is a chunk matched by a vector search.
type SearchResult struct {
	Chunk    source.Chunk
	Score    float32
	Distance float32
}

// Snapshot is an immutable built index. Chunk position doubles as the
// graph key, so chunk order is fixed at build time. A snapshot is never
// mutated after Build or Load; readers share it freely.
type Snapshot struct {
	mu     sync.RWMutex
	graph  *hnsw.Graph[uint64]
	chunks []source.Chunk
	dims   int
	model  string
	built  time.Time
}

// newGraph creates an HNSW graph with cosine distance.
func newGraph() *hnsw.Graph[uint64] {
	graph := hnsw.NewGraph[uint64]()
	graph.Distance = hnsw.CosineDistance
	graph.M = defaultM
	graph.EfSearch = defaultEfSearch
	graph.Ml = 0.25
	return graph
}

// Build creates a snapshot from chunks and their embeddings.
// chunks[i] corresponds to vectors[i] and the vectors must share one
// dimension. Zero chunks build an empty snapshot; searches against it return
// no results.
func Build(chunks []source.Chunk, vectors [][]float32, model string) (*Snapshot, error) {
	if len(chunks) != len(vectors) {
		return nil, fmt.Errorf("chunks and vectors length mismatch: %d vs %d", len(chunks), len(vectors))
	}

	dims := 0
	if len(vectors) > 0 {
		dims = len(vectors[0])
	}
	graph := newGraph()

	for i, vec := range vectors {
		if len(vec) != dims {
			return nil, errors.New(errors.ErrCodeDimensionMismatch,
				fmt.Sprintf("vector %d has %d dimensions, want %d", i, len(vec), dims), nil)
		}

		// Normalize for cosine similarity
		v := make([]float32, len(vec))
		copy(v, vec)
		normalizeVectorInPlace(v)

		graph.Add(hnsw.MakeNode(uint64(i), v))
	}

	return &Snapshot{
		graph:  graph,
		chunks: chunks,
		dims:   dims,
		model:  model,
		built:  time.Now(),
	}, nil
}

// Search finds the k nearest chunks to the query vector.
func (s *Snapshot) Search(query []float32, k int) ([]SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.chunks) == 0 {
		return []SearchResult{}, nil
	}

	if len(query) != s.dims {
		return nil, errors.New(errors.ErrCodeDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, index has %d", len(query), s.dims), nil)
	}

	if s.graph.Len() == 0 {
		return []SearchResult{}, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeVectorInPlace(normalized)

	nodes := s.graph.Search(normalized, k)

	results := make([]SearchResult, 0, len(nodes))
	for _, node := range nodes {
		if node.Key >= uint64(len(s.chunks)) {
			continue
		}

		distance := s.graph.Distance(normalized, node.Value)
		results = append(results, SearchResult{
			Chunk:    s.chunks[node.Key],
			Distance: distance,
			Score:    distanceToScore(distance),
		})
	}

	return results, nil
}

// Count returns the number of indexed chunks.
func (s *Snapshot) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.chunks)
}

// Dimensions returns the embedding dimension.
func (s *Snapshot) Dimensions() int {
	return s.dims
}

// Model returns the embedding model the snapshot was built with.
func (s *Snapshot) Model() string {
	return s.model
}

// BuiltAt returns the build timestamp.
func (s *Snapshot) BuiltAt() time.Time {
	return s.built
}

// normalizeVectorInPlace normalizes a vector to unit length in place.
func normalizeVectorInPlace(v []float32) {
	var sumSquares float64
	for _, val := range v {
		sumSquares += float64(val) * float64(val)
	}
	if sumSquares == 0 {
		return
	}
	invMagnitude := float32(1.0 / math.Sqrt(sumSquares))
	for i := range v {
		v[i] *= invMagnitude
	}
}

// distanceToScore converts a cosine distance (0-2) to a similarity score (0-1).
func distanceToScore(distance float32) float32 {
	return 1.0 - distance/2.0
}
