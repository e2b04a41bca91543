package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/OxCom/llvm-source-agent/internal/store"
)

// newStatusCmd creates the status command.
func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show index and backend status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			fmt.Fprintf(out, "Source:    %s\n", cfg.Paths.Source)
			fmt.Fprintf(out, "Storage:   %s\n", cfg.Paths.Storage)
			fmt.Fprintf(out, "Ollama:    %s\n", cfg.Models.OllamaBaseURL)

			generator := newGenerator(cfg)
			defer func() { _ = generator.Close() }()
			if generator.Available(cmd.Context()) {
				fmt.Fprintf(out, "Backend:   available (%s)\n", cfg.Models.Generation)
			} else {
				fmt.Fprintf(out, "Backend:   unavailable (%s)\n", cfg.Models.Generation)
			}

			if !store.Exists(cfg.Paths.Storage) {
				fmt.Fprintln(out, "Index:     not built")
				return nil
			}

			snap, err := store.Load(cfg.Paths.Storage)
			if err != nil {
				fmt.Fprintf(out, "Index:     unreadable (%v)\n", err)
				return nil
			}
			fmt.Fprintf(out, "Index:     %d chunks, %d dims, model %s\n",
				snap.Count(), snap.Dimensions(), snap.Model())
			fmt.Fprintf(out, "Built at:  %s\n", snap.BuiltAt().Format("2006-01-02 15:04:05"))
			return nil
		},
	}
}
