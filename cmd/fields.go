package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/forest-guardian/field-indices-cli/internal/delivery"
)

var fieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List the configured fields with area and centroid",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Flags().Changed("fields") {
			cfg.Fields.Source, _ = cmd.Flags().GetString("fields")
		}
		fields, source, err := delivery.LoadFields(cfg.Fields)
		if err != nil {
			return err
		}
		infos, err := delivery.ListFields(fields)
		if err != nil {
			return err
		}

		fmt.Printf("Fields from %s:\n", source)
		formatFields(os.Stdout, infos)
		return nil
	},
}

func formatFields(w io.Writer, infos []delivery.FieldInfo) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tAREA (ha)\tLATITUDE\tLONGITUDE")
	for _, f := range infos {
		fmt.Fprintf(tw, "%s\t%.2f\t%.6f\t%.6f\n", f.ID, f.AreaHa, f.Latitude, f.Longitude)
	}
	_ = tw.Flush()
}

func init() {
	fieldsCmd.Flags().String("fields", "", "GeoJSON or shapefile with the fields (default: built-in T001/T002)")
	rootCmd.AddCommand(fieldsCmd)
}
