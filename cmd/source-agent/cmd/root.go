// Package cmd provides the CLI commands for source-agent.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/OxCom/llvm-source-agent/internal/config"
	"github.com/OxCom/llvm-source-agent/internal/embed"
	"github.com/OxCom/llvm-source-agent/internal/index"
	"github.com/OxCom/llvm-source-agent/internal/llm"
	"github.com/OxCom/llvm-source-agent/internal/logging"
	"github.com/OxCom/llvm-source-agent/pkg/version"
)

var (
	flagSource   string
	flagStorage  string
	flagLogLevel string

	loggingCleanup func()
)

// NewRootCmd creates the root command for the source-agent CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "source-agent",
		Short: "Answer questions about a source tree using a local vector index",
		Long: `source-agent indexes a source tree into a local vector index and answers
questions about it through a local Ollama backend. Answers come strictly
from the indexed sources.

Run 'source-agent watch' to keep the index in sync with the tree, and
'source-agent ask' to query it.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("source-agent version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&flagSource, "source", "", "Source directory to index (overrides config)")
	cmd.PersistentFlags().StringVar(&flagStorage, "storage", "", "Index storage directory (overrides config)")
	cmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRun = func(_ *cobra.Command, _ []string) {
		if loggingCleanup != nil {
			loggingCleanup()
			loggingCleanup = nil
		}
	}

	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newRebuildCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}

// loadConfig loads configuration from the working directory and applies flag
// overrides.
func loadConfig() (*config.Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(wd)
	if err != nil {
		return nil, err
	}
	if flagSource != "" {
		cfg.Paths.Source = flagSource
	}
	if flagStorage != "" {
		cfg.Paths.Storage = flagStorage
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}
	return cfg, nil
}

// setupLogging configures the process-wide logger. Level comes from the flag
// when set, otherwise from config once the command loads it.
func setupLogging(_ *cobra.Command, _ []string) error {
	logCfg := logging.DefaultConfig()
	if flagLogLevel != "" {
		logCfg.Level = flagLogLevel
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

// newEmbedder builds the cached Ollama embedder from config.
func newEmbedder(ctx context.Context, cfg *config.Config, progress func(done, total int)) (embed.Embedder, error) {
	inner, err := embed.NewOllamaEmbedder(ctx, embed.OllamaConfig{
		Host:         cfg.Models.OllamaBaseURL,
		Model:        cfg.Models.Embedding,
		BatchSize:    cfg.Index.BatchSize,
		Timeout:      cfg.Models.RequestTimeout,
		ProgressFunc: progress,
	})
	if err != nil {
		return nil, err
	}
	return embed.NewCachedEmbedder(inner, cfg.Index.CacheSize), nil
}

// newGenerator builds the Ollama generator from config.
func newGenerator(cfg *config.Config) llm.Generator {
	return llm.NewOllamaGenerator(llm.Config{
		Host:          cfg.Models.OllamaBaseURL,
		Model:         cfg.Models.Generation,
		Timeout:       cfg.Models.RequestTimeout,
		Temperature:   cfg.Models.Temperature,
		ContextWindow: cfg.Models.ContextWindow,
	})
}

// newManager builds the query manager from config.
func newManager(cfg *config.Config, embedder embed.Embedder, generator llm.Generator) *index.Manager {
	return index.NewManager(index.ManagerConfig{
		StorageDir: cfg.Paths.Storage,
		Embedder:   embedder,
		Generator:  generator,
		TopK:       cfg.Index.TopK,
		MaxSources: cfg.Index.MaxSources,
	})
}

// newPipeline builds the rebuild pipeline from config.
func newPipeline(cfg *config.Config, embedder embed.Embedder) *index.Pipeline {
	return index.NewPipeline(index.PipelineConfig{
		SourceDir:    cfg.Paths.Source,
		StorageDir:   cfg.Paths.Storage,
		Includes:     cfg.Paths.Include,
		Excludes:     cfg.Paths.Exclude,
		ChunkSize:    cfg.Index.ChunkSize,
		ChunkOverlap: cfg.Index.ChunkOverlap,
		Embedder:     embedder,
	})
}
