package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/mergerwatch/casecrawl/internal/export"
)

var crawlMaxPages int

var crawlCmd = &cobra.Command{
	Use:   "crawl [source...]",
	Short: "Crawl sources and reconcile cases into the store",
	Long:  "Crawls the named sources (samr, beijing, chongqing, shanghai, guangdong, shaanxi), or all of them when none are named, then rewrites the workbook.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if crawlMaxPages > 0 {
			cfg.Crawl.MaxPages = crawlMaxPages
		}

		rules, err := loadRules(args)
		if err != nil {
			return err
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		o := newOrchestrator(st, export.New(cfg.Paths.Workbook))
		reports, runErr := o.RunAll(ctx, rules)

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(reports); err != nil {
			return err
		}
		return runErr
	},
}

func init() {
	crawlCmd.Flags().IntVar(&crawlMaxPages, "max-pages", 0, "override the per-source page bound")
	rootCmd.AddCommand(crawlCmd)
}
