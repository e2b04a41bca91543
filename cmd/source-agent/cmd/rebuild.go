package cmd

import (
	"fmt"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

// newRebuildCmd creates the rebuild command.
func newRebuildCmd() *cobra.Command {
	var quiet bool

	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the whole index from the source tree",
		Long: `Rebuild loads the source tree, chunks and embeds every file, and replaces
the persisted index atomically. Queries keep serving the previous index
until the new artifacts are in place.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			var bar *progressbar.ProgressBar
			progress := func(done, total int) {
				if quiet {
					return
				}
				if bar == nil {
					bar = progressbar.Default(int64(total), "embedding")
				}
				_ = bar.Set(done)
			}

			embedder, err := newEmbedder(cmd.Context(), cfg, progress)
			if err != nil {
				return err
			}
			defer func() { _ = embedder.Close() }()

			pipeline := newPipeline(cfg, embedder)
			if err := pipeline.AcquireLock(); err != nil {
				return err
			}
			defer func() { _ = pipeline.ReleaseLock() }()

			snap, err := pipeline.Rebuild(cmd.Context())
			if err != nil {
				return err
			}
			if bar != nil {
				_ = bar.Finish()
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d chunks with %s into %s\n",
				snap.Count(), snap.Model(), cfg.Paths.Storage)
			return nil
		},
	}

	cmd.Flags().BoolVar(&quiet, "quiet", false, "Suppress the progress bar")

	return cmd
}
