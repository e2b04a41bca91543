package source

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	agerrors "github.com/OxCom/llvm-source-agent/internal/errors"
)

const (
	// maxFileSize caps individual file reads. Larger files are skipped.
	maxFileSize = 2 * 1024 * 1024

	// loadConcurrency bounds parallel file reads.
	loadConcurrency = 8
)

// Loader reads the source tree into documents ready for chunking.
type Loader struct {
	walker *Walker
	logger *slog.Logger
}

// NewLoader creates a loader over the given include/exclude patterns.
func NewLoader(includes, excludes []string, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		walker: NewWalker(includes, excludes),
		logger: logger,
	}
}

// Load walks root and reads every matching file.
// Unreadable and binary files are skipped with a warning, never failing
// the load. The returned documents are sorted by path for deterministic
// downstream chunk ordering.
func (l *Loader) Load(ctx context.Context, root string) ([]Document, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, agerrors.New(agerrors.ErrCodeSourceMissing,
			fmt.Sprintf("source directory does not exist: %s", root), err)
	}
	if !info.IsDir() {
		return nil, agerrors.New(agerrors.ErrCodeSourceMissing,
			fmt.Sprintf("source path is not a directory: %s", root), nil)
	}

	files, err := l.walker.Walk(root)
	if err != nil {
		return nil, agerrors.Wrap(agerrors.ErrCodeFileUnreadable, err)
	}

	var (
		mu   sync.Mutex
		docs []Document
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(loadConcurrency)

	for _, f := range files {
		f := f
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}

			if f.Size > maxFileSize {
				l.logger.Debug("skipping oversized file",
					slog.String("path", f.RelPath),
					slog.Int64("size", f.Size))
				return nil
			}

			data, err := os.ReadFile(f.Path)
			if err != nil {
				// Unreadable files are logged and skipped
				l.logger.Warn("skipping unreadable file",
					slog.String("path", f.RelPath),
					slog.String("error", err.Error()))
				return nil
			}

			if isBinary(data) {
				l.logger.Debug("skipping binary file", slog.String("path", f.RelPath))
				return nil
			}

			mu.Lock()
			docs = append(docs, Document{
				Path:    f.RelPath,
				Content: string(data),
				ModTime: f.ModTime,
				Size:    f.Size,
			})
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	sort.Slice(docs, func(i, j int) bool {
		return docs[i].Path < docs[j].Path
	})

	l.logger.Info("source_loaded",
		slog.String("root", root),
		slog.Int("files_walked", len(files)),
		slog.Int("documents", len(docs)))

	return docs, nil
}

// isBinary reports whether data looks like binary content.
// Null bytes or invalid UTF-8 in the first 8KB mark a file binary.
func isBinary(data []byte) bool {
	sample := data
	if len(sample) > 8192 {
		sample = sample[:8192]
		// Drop a rune possibly split by the sample boundary
		for i := 0; i < utf8.UTFMax && len(sample) > 0 && !utf8.Valid(sample); i++ {
			sample = sample[:len(sample)-1]
		}
	}
	if bytes.IndexByte(sample, 0) >= 0 {
		return true
	}
	return !utf8.Valid(sample)
}
