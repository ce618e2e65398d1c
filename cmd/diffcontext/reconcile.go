package main

import (
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dshills/diffcontext/internal/chunker"
	"github.com/dshills/diffcontext/internal/indexer"
	"github.com/dshills/diffcontext/internal/parser"
)

var reconcileCmd = &cobra.Command{
	Use:   "reconcile <dir>",
	Short: "Index a repository snapshot incrementally",
	Long: `Reconcile walks the given directory, chunks every text file, and
brings the stores in line with it. Chunks whose content hash is already
indexed are reused without re-embedding.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, true)
		if err != nil {
			return err
		}
		defer a.close()

		snap, err := indexer.LoadSnapshot(flagRepo, args[0])
		if err != nil {
			return err
		}

		ch := chunker.New(parser.New(), chunker.WithWindow(cfg.WindowLines, cfg.WindowOverlap))
		engine := indexer.New(a.store, a.vectors, ch, a.embed, &indexer.Config{
			Workers:   cfg.Workers,
			Retention: cfg.Retention(),
		})

		report, err := engine.Reconcile(cmd.Context(), snap)
		if err != nil {
			return err
		}

		for _, f := range report.Failures {
			log.Warn().Str("file", f.FilePath).Int("start", f.StartLine).
				Str("reason", f.Reason).Msg("not indexed")
		}
		fmt.Printf("run %s: %d files, %d inserted, %d reused, %d deleted, %d failed chunks in %s\n",
			report.RunID, report.FilesSeen, report.Inserted, report.Reused,
			report.Deleted, report.ChunksFailed, report.Duration.Round(time.Millisecond))
		return nil
	},
}
