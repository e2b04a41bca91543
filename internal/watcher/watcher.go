// Package watcher provides file system watching with fsnotify as the primary
// mechanism and mtime polling as a fallback. Events feed a rebuild trigger
// that collapses bursts of changes into single whole-tree rebuilds.
package watcher

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
)

// Operation represents the type of file system operation.
type Operation int

const (
	// OpCreate indicates a file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates a file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed.
	OpRename
)

// String returns the string representation of the operation.
func (o Operation) String() string {
	switch o {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system change event.
type FileEvent struct {
	// Path is the path relative to the watched root.
	Path string
	// OldPath is the previous path for rename operations.
	OldPath string
	// Operation is the type of change.
	Operation Operation
	// IsDir indicates whether the path is a directory.
	IsDir bool
	// Timestamp is when the event was observed.
	Timestamp time.Time
}

// Watcher defines the interface for file system watchers.
type Watcher interface {
	// Start begins watching the given directory. Blocks until the context is
	// cancelled or Stop is called.
	Start(ctx context.Context, path string) error

	// Stop stops watching and releases resources.
	Stop() error

	// Events returns the channel of file events.
	Events() <-chan FileEvent

	// Errors returns the channel of errors.
	Errors() <-chan error
}

// Options configures watcher behavior.
type Options struct {
	// DebounceWindow is the minimum interval between rebuild starts.
	DebounceWindow time.Duration
	// PollInterval is the scan interval for the polling fallback.
	PollInterval time.Duration
	// EventBufferSize is the capacity of the event channel.
	EventBufferSize int
	// IgnorePatterns are doublestar patterns matched against relative paths.
	IgnorePatterns []string
	// ForcePolling skips fsnotify and uses the polling watcher directly.
	ForcePolling bool
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  2 * time.Second,
		PollInterval:    2 * time.Second,
		EventBufferSize: 1000,
	}
}

// ignoreMatcher decides which relative paths a watcher skips. Both watcher
// implementations share it so fsnotify and polling prune the same subtrees.
type ignoreMatcher struct {
	patterns []string
}

func newIgnoreMatcher(patterns []string) *ignoreMatcher {
	return &ignoreMatcher{patterns: patterns}
}

// Ignore returns true if relPath should be skipped. Directories are matched
// both bare and with a trailing slash, mirroring the source walker.
func (m *ignoreMatcher) Ignore(relPath string, isDir bool) bool {
	if relPath == "." || relPath == "" {
		return true
	}

	relPath = filepath.ToSlash(relPath)

	// Always ignore .git
	if relPath == ".git" || strings.HasPrefix(relPath, ".git/") {
		return true
	}

	candidate := relPath
	if isDir {
		candidate += "/"
	}
	for _, pattern := range m.patterns {
		if ok, _ := doublestar.Match(pattern, candidate); ok {
			return true
		}
		if ok, _ := doublestar.Match(pattern, relPath); ok {
			return true
		}
	}
	return false
}

// WithDefaults fills in zero values with defaults.
func (o Options) WithDefaults() Options {
	def := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = def.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = def.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = def.EventBufferSize
	}
	return o
}
