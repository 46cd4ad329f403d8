package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/delivery"
	"github.com/forest-guardian/field-indices-cli/internal/notification"
	"github.com/forest-guardian/field-indices-cli/output"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Compute annual indices for every field and export the table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		applyRunFlags(cmd, cfg)

		quiet, _ := cmd.Flags().GetBool("quiet")
		if !quiet {
			printBanner()
		}

		format, err := output.ParseFormat(cfg.Export.Format)
		if err != nil {
			return err
		}
		fields, source, err := delivery.LoadFields(cfg.Fields)
		if err != nil {
			return eris.Wrap(err, "run: load fields")
		}

		src, err := delivery.NewImageSource(ctx, cfg.Sentinel)
		if err != nil {
			return err
		}
		st, err := delivery.OpenStore(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		res, err := delivery.RunAnnualIndices(ctx, delivery.Deps{
			Source:   src,
			Store:    st,
			Notifier: notification.NewNotifier(cfg.Notification),
		}, delivery.RunOptions{
			Fields:        fields,
			FieldsSource:  source,
			StartYear:     cfg.Years.Start,
			EndYear:       cfg.Years.End,
			Format:        format,
			OutputDir:     cfg.Export.Dir,
			Description:   cfg.Export.Description,
			MaxConcurrent: cfg.Sentinel.MaxConcurrent,
			Quiet:         quiet,
		})
		if err != nil {
			return err
		}

		fmt.Printf("\nRun %s: %d records written to %s\n", res.Run.ID, len(res.Records), res.Path)
		return nil
	},
}

// applyRunFlags overrides configuration with flags set on the command line.
func applyRunFlags(cmd *cobra.Command, c *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("start") {
		c.Years.Start, _ = flags.GetInt("start")
	}
	if flags.Changed("end") {
		c.Years.End, _ = flags.GetInt("end")
	}
	if flags.Changed("fields") {
		c.Fields.Source, _ = flags.GetString("fields")
	}
	if flags.Changed("format") {
		c.Export.Format, _ = flags.GetString("format")
	}
	if flags.Changed("output") {
		c.Export.Dir, _ = flags.GetString("output")
	}
	if flags.Changed("description") {
		c.Export.Description, _ = flags.GetString("description")
	}
}

func init() {
	runCmd.Flags().Int("start", 2019, "first year to analyse")
	runCmd.Flags().Int("end", 2025, "last year to analyse (inclusive)")
	runCmd.Flags().String("fields", "", "GeoJSON or shapefile with the fields (default: built-in T001/T002)")
	runCmd.Flags().String("format", "csv", "export format: csv, xlsx or geojson")
	runCmd.Flags().String("output", "", "export directory (default: data/result)")
	runCmd.Flags().String("description", "", "export file name without extension (default: Indices_GEE_Talhoes_<start>_<end>)")
	runCmd.Flags().Bool("quiet", false, "hide banner and progress bar")
	rootCmd.AddCommand(runCmd)
}
