package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var dedupeCmd = &cobra.Command{
	Use:   "dedupe",
	Short: "Delete older duplicate rows sharing a source URL",
	Long:  "Early crawler versions inserted a fresh row per sighting. This keeps the newest row per source URL and deletes the rest.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.DedupeBySourceURL(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("dedupe finished", zap.Int("deleted", n))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dedupeCmd)
}
