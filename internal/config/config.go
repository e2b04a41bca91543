package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config represents the complete source agent configuration.
type Config struct {
	Version  int          `yaml:"version" json:"version"`
	Paths    PathsConfig  `yaml:"paths" json:"paths"`
	Models   ModelsConfig `yaml:"models" json:"models"`
	Index    IndexConfig  `yaml:"index" json:"index"`
	Watch    WatchConfig  `yaml:"watch" json:"watch"`
	LogLevel string       `yaml:"log_level" json:"log_level"`
}

// PathsConfig configures the source tree and index storage locations.
type PathsConfig struct {
	// Source is the directory whose files are indexed and answered over.
	Source string `yaml:"source" json:"source"`
	// Storage is the directory holding the persisted index artifacts.
	Storage string `yaml:"storage" json:"storage"`
	// Include restricts indexing to matching glob patterns (empty = all).
	Include []string `yaml:"include" json:"include"`
	// Exclude removes matching glob patterns from indexing.
	Exclude []string `yaml:"exclude" json:"exclude"`
}

// ModelsConfig configures the Ollama backend.
type ModelsConfig struct {
	// Generation is the model used to answer questions.
	Generation string `yaml:"generation" json:"generation"`
	// Embedding is the model used to embed chunks and queries.
	Embedding string `yaml:"embedding" json:"embedding"`
	// OllamaBaseURL is the Ollama API endpoint.
	OllamaBaseURL string `yaml:"ollama_base_url" json:"ollama_base_url"`
	// RequestTimeout bounds a single backend request.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
	// Temperature is the generation sampling temperature.
	Temperature float64 `yaml:"temperature" json:"temperature"`
	// ContextWindow is the generation context size in tokens.
	ContextWindow int `yaml:"context_window" json:"context_window"`
}

// IndexConfig configures chunking and retrieval.
type IndexConfig struct {
	// ChunkSize is the approximate chunk budget in tokens.
	ChunkSize int `yaml:"chunk_size" json:"chunk_size"`
	// ChunkOverlap is the overlap between adjacent chunks in tokens.
	ChunkOverlap int `yaml:"chunk_overlap" json:"chunk_overlap"`
	// TopK is the number of chunks retrieved per query.
	TopK int `yaml:"top_k" json:"top_k"`
	// BatchSize is the number of chunks embedded per backend request.
	BatchSize int `yaml:"batch_size" json:"batch_size"`
	// CacheSize is the embedding LRU cache capacity.
	CacheSize int `yaml:"cache_size" json:"cache_size"`
	// MaxSources is the number of source paths attributed per answer.
	MaxSources int `yaml:"max_sources" json:"max_sources"`
}

// WatchConfig configures the directory watcher.
type WatchConfig struct {
	// Debounce is the window after a rebuild starts during which
	// further change events are dropped.
	Debounce time.Duration `yaml:"debounce" json:"debounce"`
	// PollInterval is the scan interval for the polling fallback.
	PollInterval time.Duration `yaml:"poll_interval" json:"poll_interval"`
	// ForcePolling disables fsnotify and always uses polling.
	ForcePolling bool `yaml:"force_polling" json:"force_polling"`
}

// defaultExcludePatterns are always excluded from indexing.
var defaultExcludePatterns = []string{
	"**/node_modules/**",
	"**/.git/**",
	"**/vendor/**",
	"**/__pycache__/**",
	"**/dist/**",
	"**/build/**",
	"**/*.min.js",
	"**/*.min.css",
	"**/package-lock.json",
	"**/yarn.lock",
	"**/go.sum",
}

// NewConfig creates a new Config with sensible defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Paths: PathsConfig{
			Source:  "/app/source",
			Storage: "/app/index",
			Include: []string{},
			Exclude: defaultExcludePatterns,
		},
		Models: ModelsConfig{
			Generation:     "codellama:7b",
			Embedding:      "all-minilm:l6-v2",
			OllamaBaseURL:  "http://localhost:11434",
			RequestTimeout: 300 * time.Second,
			// Low temperature keeps answers grounded in retrieved context
			Temperature:   0.1,
			ContextWindow: 4096,
		},
		Index: IndexConfig{
			ChunkSize:    512,
			ChunkOverlap: 50,
			TopK:         10,
			BatchSize:    32,
			CacheSize:    1000,
			MaxSources:   5,
		},
		Watch: WatchConfig{
			Debounce:     2 * time.Second,
			PollInterval: 2 * time.Second,
			ForcePolling: false,
		},
		LogLevel: "info",
	}
}

// GetUserConfigPath returns the path to the user/global configuration file.
// It follows XDG Base Directory specification:
//   - $XDG_CONFIG_HOME/source-agent/config.yaml (if XDG_CONFIG_HOME is set)
//   - ~/.config/source-agent/config.yaml (default)
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "source-agent", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "source-agent", "config.yaml")
	}
	return filepath.Join(home, ".config", "source-agent", "config.yaml")
}

// loadUserConfig loads the user/global configuration file if it exists.
// Returns nil config and nil error if the file doesn't exist.
func loadUserConfig() (*Config, error) {
	configPath := GetUserConfigPath()

	if !fileExists(configPath) {
		return nil, nil
	}

	cfg := NewConfig()
	if err := cfg.loadYAML(configPath); err != nil {
		return nil, fmt.Errorf("failed to load user config from %s: %w", configPath, err)
	}

	return cfg, nil
}

// Load loads configuration from the specified directory.
// It applies configuration in order of increasing precedence:
//  1. Hardcoded defaults
//  2. User/global config (~/.config/source-agent/config.yaml)
//  3. Project config (.source-agent.yaml in dir)
//  4. .env file in dir (loaded into the process environment)
//  5. Environment variables
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if userCfg, err := loadUserConfig(); err != nil {
		return nil, fmt.Errorf("failed to load user config: %w", err)
	} else if userCfg != nil {
		cfg.mergeWith(userCfg)
	}

	if err := cfg.loadFromFile(dir); err != nil {
		return nil, err
	}

	// .env values do not override already-set process env vars
	_ = godotenv.Load(filepath.Join(dir, ".env"))

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromFile attempts to load configuration from .source-agent.yaml or .source-agent.yml.
func (c *Config) loadFromFile(dir string) error {
	yamlPath := filepath.Join(dir, ".source-agent.yaml")
	if _, err := os.Stat(yamlPath); err == nil {
		return c.loadYAML(yamlPath)
	}

	ymlPath := filepath.Join(dir, ".source-agent.yml")
	if _, err := os.Stat(ymlPath); err == nil {
		return c.loadYAML(ymlPath)
	}

	// No config file is fine - use defaults
	return nil
}

// loadYAML loads and merges configuration from a YAML file.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var parsed Config
	if err := yaml.Unmarshal(data, &parsed); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	c.mergeWith(&parsed)
	return nil
}

// mergeWith merges non-zero values from other into c.
func (c *Config) mergeWith(other *Config) {
	if other.Version != 0 {
		c.Version = other.Version
	}

	// Paths
	if other.Paths.Source != "" {
		c.Paths.Source = other.Paths.Source
	}
	if other.Paths.Storage != "" {
		c.Paths.Storage = other.Paths.Storage
	}
	if len(other.Paths.Include) > 0 {
		c.Paths.Include = other.Paths.Include
	}
	if len(other.Paths.Exclude) > 0 {
		// Merge with defaults rather than replace
		c.Paths.Exclude = append(c.Paths.Exclude, other.Paths.Exclude...)
	}

	// Models
	if other.Models.Generation != "" {
		c.Models.Generation = other.Models.Generation
	}
	if other.Models.Embedding != "" {
		c.Models.Embedding = other.Models.Embedding
	}
	if other.Models.OllamaBaseURL != "" {
		c.Models.OllamaBaseURL = other.Models.OllamaBaseURL
	}
	if other.Models.RequestTimeout != 0 {
		c.Models.RequestTimeout = other.Models.RequestTimeout
	}
	if other.Models.Temperature != 0 {
		c.Models.Temperature = other.Models.Temperature
	}
	if other.Models.ContextWindow != 0 {
		c.Models.ContextWindow = other.Models.ContextWindow
	}

	// Index
	if other.Index.ChunkSize != 0 {
		c.Index.ChunkSize = other.Index.ChunkSize
	}
	if other.Index.ChunkOverlap != 0 {
		c.Index.ChunkOverlap = other.Index.ChunkOverlap
	}
	if other.Index.TopK != 0 {
		c.Index.TopK = other.Index.TopK
	}
	if other.Index.BatchSize != 0 {
		c.Index.BatchSize = other.Index.BatchSize
	}
	if other.Index.CacheSize != 0 {
		c.Index.CacheSize = other.Index.CacheSize
	}
	if other.Index.MaxSources != 0 {
		c.Index.MaxSources = other.Index.MaxSources
	}

	// Watch
	if other.Watch.Debounce != 0 {
		c.Watch.Debounce = other.Watch.Debounce
	}
	if other.Watch.PollInterval != 0 {
		c.Watch.PollInterval = other.Watch.PollInterval
	}
	if other.Watch.ForcePolling {
		c.Watch.ForcePolling = true
	}

	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
}

// applyEnvOverrides applies environment variable overrides.
// The container-style names (SOURCE_PATH, INDEX_STORAGE, MODEL_NAME,
// INDEX_MODEL_NAME, OLLAMA_BASE_URL) take highest precedence.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("SOURCE_PATH"); v != "" {
		c.Paths.Source = v
	}
	if v := os.Getenv("INDEX_STORAGE"); v != "" {
		c.Paths.Storage = v
	}
	if v := os.Getenv("MODEL_NAME"); v != "" {
		c.Models.Generation = v
	}
	if v := os.Getenv("INDEX_MODEL_NAME"); v != "" {
		c.Models.Embedding = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		c.Models.OllamaBaseURL = v
	}

	if v := os.Getenv("SOURCE_AGENT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("SOURCE_AGENT_DEBOUNCE"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Watch.Debounce = d
		}
	}
	if v := os.Getenv("SOURCE_AGENT_TOP_K"); v != "" {
		if k, err := strconv.Atoi(v); err == nil && k > 0 {
			c.Index.TopK = k
		}
	}
	if v := os.Getenv("SOURCE_AGENT_REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			c.Models.RequestTimeout = d
		}
	}
	if v := os.Getenv("SOURCE_AGENT_FORCE_POLLING"); v != "" {
		c.Watch.ForcePolling = strings.ToLower(v) == "true" || v == "1"
	}
}

// Validate validates the configuration and returns an error if invalid.
func (c *Config) Validate() error {
	if c.Paths.Source == "" {
		return fmt.Errorf("paths.source must not be empty")
	}
	if c.Paths.Storage == "" {
		return fmt.Errorf("paths.storage must not be empty")
	}

	if c.Models.Generation == "" {
		return fmt.Errorf("models.generation must not be empty")
	}
	if c.Models.Embedding == "" {
		return fmt.Errorf("models.embedding must not be empty")
	}
	if !strings.HasPrefix(c.Models.OllamaBaseURL, "http://") &&
		!strings.HasPrefix(c.Models.OllamaBaseURL, "https://") {
		return fmt.Errorf("models.ollama_base_url must be an http(s) URL, got %s", c.Models.OllamaBaseURL)
	}
	if c.Models.RequestTimeout <= 0 {
		return fmt.Errorf("models.request_timeout must be positive, got %s", c.Models.RequestTimeout)
	}
	if c.Models.Temperature < 0 || c.Models.Temperature > 2 {
		return fmt.Errorf("models.temperature must be between 0 and 2, got %f", c.Models.Temperature)
	}

	if c.Index.ChunkSize <= 0 {
		return fmt.Errorf("index.chunk_size must be positive, got %d", c.Index.ChunkSize)
	}
	if c.Index.ChunkOverlap < 0 || c.Index.ChunkOverlap >= c.Index.ChunkSize {
		return fmt.Errorf("index.chunk_overlap must be in [0, chunk_size), got %d", c.Index.ChunkOverlap)
	}
	if c.Index.TopK <= 0 {
		return fmt.Errorf("index.top_k must be positive, got %d", c.Index.TopK)
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batch_size must be positive, got %d", c.Index.BatchSize)
	}
	if c.Index.MaxSources <= 0 {
		return fmt.Errorf("index.max_sources must be positive, got %d", c.Index.MaxSources)
	}

	if c.Watch.Debounce <= 0 {
		return fmt.Errorf("watch.debounce must be positive, got %s", c.Watch.Debounce)
	}
	if c.Watch.PollInterval <= 0 {
		return fmt.Errorf("watch.poll_interval must be positive, got %s", c.Watch.PollInterval)
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.LogLevel)
	}

	return nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// fileExists checks if a file exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir()
}
