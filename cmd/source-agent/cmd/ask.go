package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/OxCom/llvm-source-agent/internal/ui"
)

// newAskCmd creates the ask command.
func newAskCmd() *cobra.Command {
	var plain bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask a question about the indexed sources",
		Long: `Ask answers a question from the indexed sources. With a question argument
it prints the answer and exits; without one it starts an interactive
session.

The index is reloaded automatically when a watch process has rebuilt it.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			embedder, err := newEmbedder(cmd.Context(), cfg, nil)
			if err != nil {
				return err
			}
			defer func() { _ = embedder.Close() }()

			generator := newGenerator(cfg)
			defer func() { _ = generator.Close() }()

			manager := newManager(cfg, embedder, generator)

			if len(args) == 0 {
				if !ui.IsTerminal(os.Stdin) {
					return fmt.Errorf("no question given and stdin is not a terminal")
				}
				return ui.Run(manager)
			}

			question := strings.Join(args, " ")
			result := manager.Query(cmd.Context(), question)

			color := !plain && ui.IsTerminal(os.Stdout)
			fmt.Fprintln(cmd.OutOrStdout(), ui.RenderResult(result, color))
			return result.Err
		},
	}

	cmd.Flags().BoolVar(&plain, "plain", false, "Disable colored output")

	return cmd
}
