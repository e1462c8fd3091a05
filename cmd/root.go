package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mergerwatch/casecrawl/internal/config"
)

var cfg *config.Config

var rootCmd = &cobra.Command{
	Use:   "casecrawl",
	Short: "Concentration-review notice crawler",
	Long:  "Crawls SAMR and provincial regulator sites for merger-review notices, reconciles them into a local case table, downloads attachments, and maintains an xlsx workbook.",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		_ = zap.L().Sync()
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
