package index

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"

	"github.com/OxCom/llvm-source-agent/internal/embed"
	agerrors "github.com/OxCom/llvm-source-agent/internal/errors"
	"github.com/OxCom/llvm-source-agent/internal/source"
	"github.com/OxCom/llvm-source-agent/internal/store"
)

// lockFile is the advisory lock inside the storage directory that enforces
// the single-writer contract.
const lockFile = ".write.lock"

// PipelineConfig contains configuration for the rebuild pipeline.
type PipelineConfig struct {
	// SourceDir is the root of the source tree to index.
	SourceDir string
	// StorageDir is where index artifacts are persisted.
	StorageDir string
	// Includes are doublestar patterns selecting files to index.
	Includes []string
	// Excludes are doublestar patterns for files to skip.
	Excludes []string
	// ChunkSize is the target chunk size in estimated tokens.
	ChunkSize int
	// ChunkOverlap is the overlap between consecutive chunks in tokens.
	ChunkOverlap int
	// Embedder produces vectors for chunks.
	Embedder embed.Embedder
	// Logger receives pipeline events. Defaults to slog.Default().
	Logger *slog.Logger
}

// Pipeline rebuilds the whole index from the source tree. Every rebuild is a
// full pass: load, chunk, embed, build, persist. Partial results are never
// written; persistence goes through temp files renamed into place.
type Pipeline struct {
	cfg     PipelineConfig
	loader  *source.Loader
	chunker *source.LineChunker
	logger  *slog.Logger
	lock    *flock.Flock
}

// NewPipeline creates a rebuild pipeline.
func NewPipeline(cfg PipelineConfig) *Pipeline {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chunkSize := cfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = source.DefaultMaxChunkTokens
	}
	overlap := cfg.ChunkOverlap
	if overlap < 0 {
		overlap = source.DefaultOverlapTokens
	}
	return &Pipeline{
		cfg:     cfg,
		loader:  source.NewLoader(cfg.Includes, cfg.Excludes, logger),
		chunker: source.NewLineChunker(chunkSize, overlap),
		logger:  logger,
	}
}

// AcquireLock takes the storage write lock. It must be held by the watch
// process for its lifetime so two writers never race on the same storage
// directory. Returns ErrCodeStorageLocked when another process holds it.
func (p *Pipeline) AcquireLock() error {
	if err := os.MkdirAll(p.cfg.StorageDir, 0o755); err != nil {
		return agerrors.New(agerrors.ErrCodeStorageLocked, "create storage directory", err)
	}
	p.lock = flock.New(filepath.Join(p.cfg.StorageDir, lockFile))
	locked, err := p.lock.TryLock()
	if err != nil {
		return agerrors.New(agerrors.ErrCodeStorageLocked, "acquire storage write lock", err)
	}
	if !locked {
		return agerrors.New(agerrors.ErrCodeStorageLocked,
			"storage directory is locked by another process", nil).
			WithDetail("path", p.lock.Path()).
			WithSuggestion("stop the other watch process or use a different storage directory")
	}
	return nil
}

// ReleaseLock releases the storage write lock.
func (p *Pipeline) ReleaseLock() error {
	if p.lock == nil {
		return nil
	}
	return p.lock.Unlock()
}

// Rebuild performs a full index rebuild and persists the result. On any
// failure the previously persisted artifacts remain untouched.
func (p *Pipeline) Rebuild(ctx context.Context) (*store.Snapshot, error) {
	start := time.Now()

	docs, err := p.loader.Load(ctx, p.cfg.SourceDir)
	if err != nil {
		return nil, agerrors.Wrap(agerrors.ErrCodeRebuildFailed, err)
	}

	// An empty tree still builds and persists a valid, empty index.
	chunks := p.chunker.ChunkAll(docs)

	var vectors [][]float32
	if len(chunks) > 0 {
		texts := make([]string, len(chunks))
		for i, ch := range chunks {
			texts[i] = ch.Text
		}
		vectors, err = p.cfg.Embedder.EmbedBatch(ctx, texts)
		if err != nil {
			return nil, agerrors.Wrap(agerrors.ErrCodeRebuildFailed, err)
		}
	}

	snap, err := store.Build(chunks, vectors, p.cfg.Embedder.ModelName())
	if err != nil {
		return nil, err
	}

	if err := store.Save(snap, p.cfg.StorageDir); err != nil {
		return nil, agerrors.Wrap(agerrors.ErrCodeRebuildFailed, err)
	}

	p.logger.Info("index_rebuilt",
		slog.Int("files", len(docs)),
		slog.Int("chunks", len(chunks)),
		slog.String("model", p.cfg.Embedder.ModelName()),
		slog.Duration("elapsed", time.Since(start)))

	return snap, nil
}

// InitialBuild rebuilds the index only when the storage directory is missing
// or empty. Returns the built snapshot, or nil when artifacts already exist.
func (p *Pipeline) InitialBuild(ctx context.Context) (*store.Snapshot, error) {
	if store.Exists(p.cfg.StorageDir) {
		p.logger.Info("index_present", slog.String("storage", p.cfg.StorageDir))
		return nil, nil
	}
	p.logger.Info("initial_build_started", slog.String("source", p.cfg.SourceDir))
	return p.Rebuild(ctx)
}
