package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHybridWatcher_DetectsFileWrite(t *testing.T) {
	// Given: a watcher on a temp directory
	dir := t.TempDir()
	h, err := NewHybridWatcher(Options{DebounceWindow: 10 * time.Millisecond})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Start(ctx, dir) }()
	time.Sleep(100 * time.Millisecond)

	// When: a file is written
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0o644))

	// Then: an event for that file arrives
	select {
	case event := <-h.Events():
		assert.Equal(t, "a.py", event.Path)
		assert.False(t, event.IsDir)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for file event")
	}
}

func TestHybridWatcher_ForcePolling_DetectsChange(t *testing.T) {
	// Given: a polling-only watcher with a short interval
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\n"), 0o644))

	h, err := NewHybridWatcher(Options{
		PollInterval: 20 * time.Millisecond,
		ForcePolling: true,
	})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()
	assert.Equal(t, "polling", h.WatcherType())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = h.Start(ctx, dir) }()
	time.Sleep(100 * time.Millisecond)

	// When: the file is modified
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.py"), []byte("x = 1\ny = 2\n"), 0o644))

	// Then: a modify event arrives within a few poll intervals
	select {
	case event := <-h.Events():
		assert.Equal(t, "a.py", event.Path)
		assert.Equal(t, OpModify, event.Operation)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for polling event")
	}
}

func TestHybridWatcher_ShouldIgnore(t *testing.T) {
	h, err := NewHybridWatcher(Options{
		IgnorePatterns: []string{"**/node_modules/**", "*.log"},
		ForcePolling:   true,
	})
	require.NoError(t, err)
	defer func() { _ = h.Stop() }()

	tests := []struct {
		name    string
		relPath string
		isDir   bool
		want    bool
	}{
		{"git directory", ".git", true, true},
		{"file inside git", ".git/HEAD", false, true},
		{"node_modules file", "web/node_modules/x/index.js", false, true},
		{"log file", "debug.log", false, true},
		{"normal source file", "src/main.py", false, false},
		{"empty path", "", false, true},
		{"root", ".", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, h.shouldIgnore(tt.relPath, tt.isDir))
		})
	}
}

func TestHybridWatcher_StopIsIdempotent(t *testing.T) {
	h, err := NewHybridWatcher(Options{})
	require.NoError(t, err)
	require.NoError(t, h.Stop())
	require.NoError(t, h.Stop())
}

func TestOptions_WithDefaults(t *testing.T) {
	opts := Options{}.WithDefaults()
	assert.Equal(t, 2*time.Second, opts.DebounceWindow)
	assert.Equal(t, 2*time.Second, opts.PollInterval)
	assert.Equal(t, 1000, opts.EventBufferSize)

	custom := Options{DebounceWindow: time.Second}.WithDefaults()
	assert.Equal(t, time.Second, custom.DebounceWindow)
}

func TestOperation_String(t *testing.T) {
	assert.Equal(t, "CREATE", OpCreate.String())
	assert.Equal(t, "MODIFY", OpModify.String())
	assert.Equal(t, "DELETE", OpDelete.String())
	assert.Equal(t, "RENAME", OpRename.String())
	assert.Equal(t, "UNKNOWN", Operation(99).String())
}
