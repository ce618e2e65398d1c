package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dshills/diffcontext/internal/diff"
	"github.com/dshills/diffcontext/internal/selector"
)

var (
	flagContextRoot   string
	flagContextPRText string
)

var contextCmd = &cobra.Command{
	Use:   "context",
	Short: "Select review context for a diff read from stdin",
	Long: `Context reads a unified diff on stdin and writes a JSON bundle of
ranked code snippets to stdout. Without an embedding endpoint the
semantic tier is skipped.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		hunks, err := diff.Parse(cmd.InOrStdin())
		if err != nil {
			return err
		}
		if len(hunks) == 0 {
			return fmt.Errorf("no hunks found in input")
		}

		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		sel := selector.New(flagRepo, a.store, a.vectors, a.embed,
			selector.DirSource{Root: flagContextRoot}, selector.Config{
				Tier1Window:   cfg.Tier1Window,
				TierK:         cfg.TierK,
				TokenBudget:   cfg.TokenBudget,
				Probes:        cfg.Probes,
				SearchTimeout: cfg.SearchTimeout,
			})

		bundle, err := sel.Select(cmd.Context(), hunks, flagContextPRText)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(bundle)
	},
}

func init() {
	contextCmd.Flags().StringVar(&flagContextRoot, "root", ".", "Repository root for reading file content")
	contextCmd.Flags().StringVar(&flagContextPRText, "pr-text", "", "Pull request title and body to fold into the semantic query")
}
