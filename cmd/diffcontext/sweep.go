package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dshills/diffcontext/internal/expiry"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Remove chunks past their retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		collector := expiry.NewCollector(flagRepo, a.store, a.vectors)
		removed, err := collector.Sweep(cmd.Context(), time.Now())
		if err != nil {
			return err
		}
		fmt.Printf("removed %d expired chunks\n", removed)
		return nil
	},
}

var compactCmd = &cobra.Command{
	Use:   "compact",
	Short: "Rebuild the vector index without tombstones",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cfg, false)
		if err != nil {
			return err
		}
		defer a.close()

		reclaimed := a.vectors.Compact()
		fmt.Printf("reclaimed %d tombstoned vectors\n", reclaimed)
		return nil
	},
}
