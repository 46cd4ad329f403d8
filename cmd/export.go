package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/field-indices-cli/internal/delivery"
	"github.com/forest-guardian/field-indices-cli/output"
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the records of a stored run",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyRunFlags(cmd, cfg)

		format, err := output.ParseFormat(cfg.Export.Format)
		if err != nil {
			return err
		}
		runID, _ := cmd.Flags().GetString("run")

		st, err := delivery.OpenStore(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		path, err := delivery.ExportRun(ctx, st, runID, format, cfg.Export.Dir, cfg.Export.Description)
		if err != nil {
			return err
		}
		fmt.Println("Exported to", path)
		return nil
	},
}

func init() {
	exportCmd.Flags().String("run", "", "run id (default: latest complete run)")
	exportCmd.Flags().String("format", "csv", "export format: csv, xlsx or geojson")
	exportCmd.Flags().String("output", "", "export directory (default: data/result)")
	exportCmd.Flags().String("description", "", "export file name without extension (default: Indices_GEE_Talhoes_<start>_<end>)")
	rootCmd.AddCommand(exportCmd)
}
