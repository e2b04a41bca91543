package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	agerrors "github.com/OxCom/llvm-source-agent/internal/errors"
)

// Default generation configuration.
const (
	DefaultHost          = "http://localhost:11434"
	DefaultTimeout       = 300 * time.Second
	DefaultTemperature   = 0.1
	DefaultContextWindow = 4096
	DefaultMaxRetries    = 2
)

// Config configures the Ollama generator.
type Config struct {
	// Host is the Ollama API endpoint.
	Host string
	// Model is the generation model name.
	Model string
	// Timeout bounds a single request.
	Timeout time.Duration
	// Temperature is the sampling temperature.
	Temperature float64
	// ContextWindow is the context size in tokens.
	ContextWindow int
	// MaxRetries is the number of attempts per request.
	MaxRetries int
}

// generateRequest is the Ollama /api/generate request body.
type generateRequest struct {
	Model   string          `json:"model"`
	System  string          `json:"system,omitempty"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	NumCtx      int     `json:"num_ctx"`
}

// generateResponse is the Ollama /api/generate response body.
type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// OllamaGenerator answers questions via Ollama's generate API.
type OllamaGenerator struct {
	client *http.Client
	config Config
}

// Verify interface implementation at compile time
var _ Generator = (*OllamaGenerator)(nil)

// NewOllamaGenerator creates a generator with the given config.
func NewOllamaGenerator(cfg Config) *OllamaGenerator {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Temperature == 0 {
		cfg.Temperature = DefaultTemperature
	}
	if cfg.ContextWindow <= 0 {
		cfg.ContextWindow = DefaultContextWindow
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}

	// Per-request context timeouts instead of http.Client.Timeout
	return &OllamaGenerator{
		client: &http.Client{},
		config: cfg,
	}
}

// Generate answers the question using only the given context chunks.
func (g *OllamaGenerator) Generate(ctx context.Context, question string, chunks []ContextChunk) (string, error) {
	prompt := BuildPrompt(question, chunks)

	var lastErr error
	for attempt := 0; attempt < g.config.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		if attempt > 0 {
			backoff := time.Duration(100<<attempt) * time.Millisecond
			select {
			case <-ctx.Done():
				return "", ctx.Err()
			case <-time.After(backoff):
			}
		}

		timeoutCtx, cancel := context.WithTimeout(ctx, g.config.Timeout)
		answer, err := g.doGenerate(timeoutCtx, prompt)
		cancel()

		if err == nil {
			return strings.TrimSpace(answer), nil
		}
		lastErr = err

		slog.Debug("generation_attempt_failed",
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))

		if ctx.Err() != nil {
			return "", ctx.Err()
		}
	}

	return "", agerrors.New(agerrors.ErrCodeGenerationFailed,
		fmt.Sprintf("generation failed after %d attempts: %v", g.config.MaxRetries, lastErr), lastErr)
}

// doGenerate makes a single request to Ollama.
func (g *OllamaGenerator) doGenerate(ctx context.Context, prompt string) (string, error) {
	reqBody := generateRequest{
		Model:  g.config.Model,
		System: systemPrompt,
		Prompt: prompt,
		Stream: false,
		Options: generateOptions{
			Temperature: g.config.Temperature,
			NumCtx:      g.config.ContextWindow,
		},
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	url := g.config.Host + "/api/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
	}

	var genResp generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}

	return genResp.Response, nil
}

// Available checks if Ollama is reachable.
func (g *OllamaGenerator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	url := g.config.Host + "/api/tags"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// ModelName returns the model being used.
func (g *OllamaGenerator) ModelName() string {
	return g.config.Model
}

// Close is a no-op for the Ollama generator.
func (g *OllamaGenerator) Close() error {
	return nil
}
