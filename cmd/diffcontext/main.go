package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dshills/diffcontext/internal/config"
	"github.com/dshills/diffcontext/internal/storage"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var (
	flagConfig string
	flagRepo   string
	flagData   string

	cfg config.Config
)

var rootCmd = &cobra.Command{
	Use:   "diffcontext",
	Short: "Diff-driven code context engine",
	Long: `diffcontext indexes a repository into content-addressed chunks with
embeddings and serves token-budgeted context bundles for diffs.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return err
		}
		if flagData != "" {
			cfg.DataDir = flagData
		}
		setupLogging(cfg.LogLevel)
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("diffcontext %s\n", version)
		fmt.Printf("Build Time: %s\n", buildTime)
		fmt.Printf("Build Mode: %s\n", storage.BuildMode)
		fmt.Printf("SQLite Driver: %s\n", storage.DriverName)
	},
}

func setupLogging(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	// stdout carries command output; logs go to stderr.
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(lvl).With().Timestamp().Logger()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&flagRepo, "repo", "default", "Repository identifier")
	rootCmd.PersistentFlags().StringVar(&flagData, "data-dir", "", "Override the data directory")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(contextCmd)
	rootCmd.AddCommand(sweepCmd)
	rootCmd.AddCommand(compactCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
