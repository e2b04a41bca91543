package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewConfig_ReturnsDefaults(t *testing.T) {
	// Given: no configuration file exists
	cfg := NewConfig()

	// Then: all defaults should be applied
	require.NotNil(t, cfg)

	// Paths defaults
	assert.Equal(t, "/app/source", cfg.Paths.Source)
	assert.Equal(t, "/app/index", cfg.Paths.Storage)
	assert.Contains(t, cfg.Paths.Exclude, "**/node_modules/**")
	assert.Contains(t, cfg.Paths.Exclude, "**/.git/**")

	// Models defaults
	assert.Equal(t, "codellama:7b", cfg.Models.Generation)
	assert.Equal(t, "all-minilm:l6-v2", cfg.Models.Embedding)
	assert.Equal(t, "http://localhost:11434", cfg.Models.OllamaBaseURL)
	assert.Equal(t, 300*time.Second, cfg.Models.RequestTimeout)
	assert.Equal(t, 0.1, cfg.Models.Temperature)
	assert.Equal(t, 4096, cfg.Models.ContextWindow)

	// Index defaults
	assert.Equal(t, 512, cfg.Index.ChunkSize)
	assert.Equal(t, 50, cfg.Index.ChunkOverlap)
	assert.Equal(t, 10, cfg.Index.TopK)
	assert.Equal(t, 32, cfg.Index.BatchSize)
	assert.Equal(t, 5, cfg.Index.MaxSources)

	// Watch defaults
	assert.Equal(t, 2*time.Second, cfg.Watch.Debounce)
	assert.False(t, cfg.Watch.ForcePolling)
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Given: an empty directory with no config file
	tmpDir := t.TempDir()

	// When: loading configuration
	cfg, err := Load(tmpDir)

	// Then: defaults are used
	require.NoError(t, err)
	assert.Equal(t, "codellama:7b", cfg.Models.Generation)
	assert.Equal(t, 10, cfg.Index.TopK)
}

func TestLoad_ProjectYAML(t *testing.T) {
	// Given: a project config overriding some values
	tmpDir := t.TempDir()
	content := `
version: 1
paths:
  source: /data/repo
  storage: /data/index
models:
  generation: llama3:8b
index:
  top_k: 4
watch:
  debounce: 5s
`
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".source-agent.yaml"), []byte(content), 0o644))

	// When: loading configuration
	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	// Then: overridden values apply and the rest keep defaults
	assert.Equal(t, "/data/repo", cfg.Paths.Source)
	assert.Equal(t, "/data/index", cfg.Paths.Storage)
	assert.Equal(t, "llama3:8b", cfg.Models.Generation)
	assert.Equal(t, "all-minilm:l6-v2", cfg.Models.Embedding)
	assert.Equal(t, 4, cfg.Index.TopK)
	assert.Equal(t, 5*time.Second, cfg.Watch.Debounce)
}

func TestLoad_YmlFallback(t *testing.T) {
	tmpDir := t.TempDir()
	content := "models:\n  generation: mistral:7b\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".source-agent.yml"), []byte(content), 0o644))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "mistral:7b", cfg.Models.Generation)
}

func TestLoad_InvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".source-agent.yaml"), []byte("paths: [not a map"), 0o644))

	_, err := Load(tmpDir)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	// Given: environment variables set
	tmpDir := t.TempDir()
	t.Setenv("SOURCE_PATH", "/srv/code")
	t.Setenv("INDEX_STORAGE", "/srv/index")
	t.Setenv("MODEL_NAME", "codellama:13b")
	t.Setenv("INDEX_MODEL_NAME", "nomic-embed-text")
	t.Setenv("OLLAMA_BASE_URL", "http://ollama:11434")
	t.Setenv("SOURCE_AGENT_TOP_K", "3")

	// When: loading configuration
	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	// Then: env vars take precedence over defaults
	assert.Equal(t, "/srv/code", cfg.Paths.Source)
	assert.Equal(t, "/srv/index", cfg.Paths.Storage)
	assert.Equal(t, "codellama:13b", cfg.Models.Generation)
	assert.Equal(t, "nomic-embed-text", cfg.Models.Embedding)
	assert.Equal(t, "http://ollama:11434", cfg.Models.OllamaBaseURL)
	assert.Equal(t, 3, cfg.Index.TopK)
}

func TestLoad_EnvOverridesBeatProjectConfig(t *testing.T) {
	// Given: both a project config and an env var for the same key
	tmpDir := t.TempDir()
	content := "models:\n  generation: from-yaml:7b\n"
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".source-agent.yaml"), []byte(content), 0o644))
	t.Setenv("MODEL_NAME", "from-env:7b")

	cfg, err := Load(tmpDir)
	require.NoError(t, err)

	// Then: the env var wins
	assert.Equal(t, "from-env:7b", cfg.Models.Generation)
}

func TestLoad_DotEnvFile(t *testing.T) {
	// Given: a .env file in the project directory
	tmpDir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(tmpDir, ".env"), []byte("MODEL_NAME=from-dotenv:7b\n"), 0o644))

	// Process env must not already have the key
	t.Setenv("MODEL_NAME", "")
	require.NoError(t, os.Unsetenv("MODEL_NAME"))

	cfg, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "from-dotenv:7b", cfg.Models.Generation)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "valid defaults",
			mutate: func(c *Config) {},
		},
		{
			name:    "empty source path",
			mutate:  func(c *Config) { c.Paths.Source = "" },
			wantErr: "paths.source",
		},
		{
			name:    "empty storage path",
			mutate:  func(c *Config) { c.Paths.Storage = "" },
			wantErr: "paths.storage",
		},
		{
			name:    "bad ollama url",
			mutate:  func(c *Config) { c.Models.OllamaBaseURL = "localhost:11434" },
			wantErr: "ollama_base_url",
		},
		{
			name:    "zero debounce",
			mutate:  func(c *Config) { c.Watch.Debounce = 0 },
			wantErr: "watch.debounce",
		},
		{
			name:    "negative top_k",
			mutate:  func(c *Config) { c.Index.TopK = -1 },
			wantErr: "index.top_k",
		},
		{
			name:    "overlap not below chunk size",
			mutate:  func(c *Config) { c.Index.ChunkOverlap = c.Index.ChunkSize },
			wantErr: "chunk_overlap",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "log_level",
		},
		{
			name:    "temperature out of range",
			mutate:  func(c *Config) { c.Models.Temperature = 3.0 },
			wantErr: "temperature",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewConfig()
			tc.mutate(cfg)

			err := cfg.Validate()
			if tc.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tc.wantErr)
			}
		})
	}
}

func TestWriteYAML_RoundTrip(t *testing.T) {
	tmpDir := t.TempDir()
	path := filepath.Join(tmpDir, ".source-agent.yaml")

	cfg := NewConfig()
	cfg.Models.Generation = "written:7b"
	require.NoError(t, cfg.WriteYAML(path))

	loaded, err := Load(tmpDir)
	require.NoError(t, err)
	assert.Equal(t, "written:7b", loaded.Models.Generation)
}
