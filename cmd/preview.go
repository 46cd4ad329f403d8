package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/delivery"
	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Render an index or true colour composite as PNG and GeoTIFF",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		rgb, _ := cmd.Flags().GetBool("rgb")
		month, _ := cmd.Flags().GetString("month")
		year, _ := cmd.Flags().GetInt("year")
		idxFlag, _ := cmd.Flags().GetString("index")
		statFlag, _ := cmd.Flags().GetString("stat")
		fieldID, _ := cmd.Flags().GetString("field")
		dir, _ := cmd.Flags().GetString("output")
		if cmd.Flags().Changed("fields") {
			cfg.Fields.Source, _ = cmd.Flags().GetString("fields")
		}

		idx, err := indices.ParseIndex(idxFlag)
		if err != nil {
			return err
		}
		stat, err := indices.ParseStat(statFlag)
		if err != nil {
			return err
		}

		fields, _, err := delivery.LoadFields(cfg.Fields)
		if err != nil {
			return err
		}
		if fieldID != "" {
			f, err := field.Find(fields, fieldID)
			if err != nil {
				return err
			}
			fields = []field.Field{f}
		}

		src, err := delivery.NewImageSource(ctx, cfg.Sentinel)
		if err != nil {
			return err
		}

		if rgb {
			from, to, err := trueColorWindow(year, month)
			if err != nil {
				return err
			}
			for _, f := range fields {
				p, err := delivery.RenderTrueColor(ctx, src, f, from, to, dir)
				if err != nil {
					return err
				}
				fmt.Printf("%s %s..%s: %d scenes\n  %s\n  %s\n",
					f.ID, from.Format(time.DateOnly), to.Format(time.DateOnly), p.Scenes, p.PNG, p.GeoTIFF)
			}
			return nil
		}

		for _, f := range fields {
			p, err := delivery.RenderPreview(ctx, src, f, year, idx, stat, dir)
			if err != nil {
				return err
			}
			fmt.Printf("%s %d: %d scenes, %d pixels\n  %s\n  %s\n",
				f.ID, year, p.Record.Scenes, p.Record.Pixels, p.PNG, p.GeoTIFF)
		}
		return nil
	},
}

// trueColorWindow is the month given as YYYY-MM, or the whole year when
// month is empty.
func trueColorWindow(year int, month string) (time.Time, time.Time, error) {
	if month == "" {
		from, to := dataset.YearWindow(year)
		return from, to, nil
	}
	t, err := time.Parse("2006-01", month)
	if err != nil {
		return time.Time{}, time.Time{}, eris.Wrapf(err, "preview: invalid month %q, want YYYY-MM", month)
	}
	from, to := dataset.MonthWindow(t.Year(), t.Month())
	return from, to, nil
}

func init() {
	previewCmd.Flags().Int("year", 2025, "year to composite")
	previewCmd.Flags().String("index", "ndvi", "index: ndvi, evi or ndwi")
	previewCmd.Flags().String("stat", "mean", "statistic: mean, max, min or amp")
	previewCmd.Flags().Bool("rgb", false, "render the median true colour composite instead of an index")
	previewCmd.Flags().String("month", "", "with --rgb, composite only this month (YYYY-MM), e.g. 2024-05")
	previewCmd.Flags().String("field", "", "only this field id (default: every field)")
	previewCmd.Flags().String("fields", "", "GeoJSON or shapefile with the fields (default: built-in T001/T002)")
	previewCmd.Flags().String("output", "", "output directory (default: data/result/previews/<field>)")
	rootCmd.AddCommand(previewCmd)
}
