package main

import (
	"github.com/spf13/cobra"

	"github.com/mergerwatch/casecrawl/internal/export"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Rewrite the xlsx workbook from the store",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		path := cfg.Paths.Workbook
		if exportOut != "" {
			path = exportOut
		}

		cases, err := st.All(ctx)
		if err != nil {
			return err
		}
		return export.New(path).Write(cases)
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "workbook path (defaults to paths.workbook)")
	rootCmd.AddCommand(exportCmd)
}
