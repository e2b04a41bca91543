package index

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/OxCom/llvm-source-agent/internal/embed"
	agerrors "github.com/OxCom/llvm-source-agent/internal/errors"
	"github.com/OxCom/llvm-source-agent/internal/llm"
	"github.com/OxCom/llvm-source-agent/internal/store"
)

const (
	// DefaultTopK is the number of chunks retrieved per query.
	DefaultTopK = 10
	// DefaultMaxSources is the maximum number of source paths attached to an
	// answer.
	DefaultMaxSources = 5
)

// ManagerConfig contains configuration for the query manager.
type ManagerConfig struct {
	// StorageDir is where index artifacts are persisted.
	StorageDir string
	// Embedder embeds query text with the same model used at build time.
	Embedder embed.Embedder
	// Generator produces answers from retrieved context.
	Generator llm.Generator
	// TopK is the number of chunks to retrieve. Defaults to DefaultTopK.
	TopK int
	// MaxSources caps source attribution. Defaults to DefaultMaxSources.
	MaxSources int
	// Logger receives query events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Manager serves queries against the most recently persisted index. Before
// each query it compares the storage directory's staleness timestamp with the
// timestamp of the loaded snapshot and reloads when storage is newer. A
// failed reload keeps the previous snapshot serving.
type Manager struct {
	cfg    ManagerConfig
	logger *slog.Logger

	mu         sync.RWMutex
	current    *store.Snapshot
	lastLoaded time.Time
}

// NewManager creates a query manager. No index is loaded until the first
// query or an explicit Refresh.
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.TopK <= 0 {
		cfg.TopK = DefaultTopK
	}
	if cfg.MaxSources <= 0 {
		cfg.MaxSources = DefaultMaxSources
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{cfg: cfg, logger: logger}
}

// Refresh reloads the snapshot when the artifacts on disk are newer than the
// loaded one. Returns the snapshot to serve queries from, which is nil when
// nothing has ever been persisted. A reload failure leaves the previous
// snapshot in place.
func (m *Manager) Refresh() *store.Snapshot {
	stamp := store.StalenessTimestamp(m.cfg.StorageDir)

	m.mu.RLock()
	current := m.current
	loaded := m.lastLoaded
	m.mu.RUnlock()

	if stamp.IsZero() {
		return current
	}
	if current != nil && !stamp.After(loaded) {
		return current
	}

	snap, err := store.Load(m.cfg.StorageDir)
	if err != nil {
		m.logger.Warn("reload_failed",
			slog.String("storage", m.cfg.StorageDir),
			slog.String("error", err.Error()))
		return current
	}

	m.mu.Lock()
	m.current = snap
	m.lastLoaded = stamp
	m.mu.Unlock()

	m.logger.Info("index_reloaded",
		slog.Int("chunks", snap.Count()),
		slog.String("model", snap.Model()))
	return snap
}

// Query answers a question from the indexed sources. Snapshots are immutable,
// so the search runs lock-free on the snapshot captured by Refresh.
func (m *Manager) Query(ctx context.Context, question string) Result {
	start := time.Now()

	question = strings.TrimSpace(question)
	if question == "" {
		err := agerrors.New(agerrors.ErrCodeQueryEmpty, "query text is empty", nil)
		return Result{Status: StatusError, Answer: err.Message, Elapsed: time.Since(start), Err: err}
	}

	snap := m.Refresh()
	if snap == nil {
		return Result{Status: StatusUnavailable, Answer: UnavailableMessage, Elapsed: time.Since(start)}
	}

	vec, err := m.cfg.Embedder.Embed(ctx, question)
	if err != nil {
		return m.errorResult(start, err)
	}

	hits, err := snap.Search(vec, m.cfg.TopK)
	if err != nil {
		return m.errorResult(start, err)
	}
	if len(hits) == 0 {
		return Result{Status: StatusOK, Answer: llm.NoAnswerSentinel, Elapsed: time.Since(start)}
	}

	chunks := make([]llm.ContextChunk, len(hits))
	for i, hit := range hits {
		chunks[i] = llm.ContextChunk{
			Path:  hit.Chunk.Path,
			Text:  hit.Chunk.Text,
			Score: hit.Score,
		}
	}

	answer, err := m.cfg.Generator.Generate(ctx, question, chunks)
	if err != nil {
		return m.errorResult(start, err)
	}

	result := Result{
		Status:  StatusOK,
		Answer:  answer,
		Sources: sourcePaths(hits, m.cfg.MaxSources),
		Elapsed: time.Since(start),
	}

	m.logger.Info("query_answered",
		slog.Int("retrieved", len(hits)),
		slog.Int("sources", len(result.Sources)),
		slog.Duration("elapsed", result.Elapsed))
	return result
}

// Stats returns chunk count, embedding model, and build time of the loaded
// snapshot after refreshing. ok is false when no index is loaded.
func (m *Manager) Stats() (count int, model string, builtAt time.Time, ok bool) {
	snap := m.Refresh()
	if snap == nil {
		return 0, "", time.Time{}, false
	}
	return snap.Count(), snap.Model(), snap.BuiltAt(), true
}

func (m *Manager) errorResult(start time.Time, err error) Result {
	m.logger.Warn("query_failed", slog.String("error", err.Error()))
	return Result{
		Status:  StatusError,
		Answer:  "Error querying index: " + err.Error(),
		Elapsed: time.Since(start),
		Err:     err,
	}
}

// sourcePaths collects unique source paths from hits in rank order, capped at
// max.
func sourcePaths(hits []store.SearchResult, max int) []string {
	seen := make(map[string]struct{}, max)
	var paths []string
	for _, hit := range hits {
		if _, dup := seen[hit.Chunk.Path]; dup {
			continue
		}
		seen[hit.Chunk.Path] = struct{}{}
		paths = append(paths, hit.Chunk.Path)
		if len(paths) == max {
			break
		}
	}
	return paths
}
