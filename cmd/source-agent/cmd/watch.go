package cmd

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/OxCom/llvm-source-agent/internal/config"
	"github.com/OxCom/llvm-source-agent/internal/watcher"
)

// newWatchCmd creates the watch command.
func newWatchCmd() *cobra.Command {
	var forcePolling bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the source tree and keep the index up to date",
		Long: `Watch builds the index when storage is missing or empty, then watches the
source tree and rebuilds the whole index on changes. Change bursts are
debounced: events within the debounce window of the last rebuild start are
dropped, and the rebuild covers them anyway.

Only one watch process may write to a storage directory at a time.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if forcePolling {
				cfg.Watch.ForcePolling = true
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return runWatch(ctx, cfg)
		},
	}

	cmd.Flags().BoolVar(&forcePolling, "force-polling", false, "Use the polling watcher instead of fsnotify")

	return cmd
}

func runWatch(ctx context.Context, cfg *config.Config) error {
	embedder, err := newEmbedder(ctx, cfg, nil)
	if err != nil {
		return err
	}
	defer func() { _ = embedder.Close() }()

	pipeline := newPipeline(cfg, embedder)

	if err := pipeline.AcquireLock(); err != nil {
		return err
	}
	defer func() { _ = pipeline.ReleaseLock() }()

	// Initial build happens before the watcher starts so queries have an
	// index as soon as possible.
	if _, err := pipeline.InitialBuild(ctx); err != nil {
		slog.Error("initial_build_failed", slog.String("error", err.Error()))
		return err
	}

	w, err := watcher.NewHybridWatcher(watcher.Options{
		DebounceWindow: cfg.Watch.Debounce,
		PollInterval:   cfg.Watch.PollInterval,
		IgnorePatterns: cfg.Paths.Exclude,
		ForcePolling:   cfg.Watch.ForcePolling,
	})
	if err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	trigger := watcher.NewRebuildTrigger(cfg.Watch.Debounce,
		func(ctx context.Context, _ watcher.FileEvent) error {
			_, err := pipeline.Rebuild(ctx)
			return err
		}, slog.Default())

	watchDone := make(chan error, 1)
	go func() {
		watchDone <- w.Start(ctx, cfg.Paths.Source)
	}()

	go func() {
		for err := range w.Errors() {
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}()

	slog.Info("watching_source",
		slog.String("source", cfg.Paths.Source),
		slog.String("storage", cfg.Paths.Storage),
		slog.String("watcher", w.WatcherType()),
		slog.Duration("debounce", cfg.Watch.Debounce))

	trigger.Run(ctx, w.Events())

	select {
	case err := <-watchDone:
		if err != nil && ctx.Err() == nil {
			return err
		}
	default:
	}

	slog.Info("watch_stopped")
	return nil
}
