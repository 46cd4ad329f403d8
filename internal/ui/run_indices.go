package ui

import (
	"context"
	"fmt"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/delivery"
	"github.com/forest-guardian/field-indices-cli/internal/notification"
	"github.com/forest-guardian/field-indices-cli/output"
)

// RunIndices handles the UI for computing the annual table of every field.
func RunIndices(ctx context.Context, cfg *config.Config) {
	PrintWarning("Scenes are downloaded from Sentinel Hub and cached under data/images.\nThe table is written to " + cfg.Export.Dir + ".")

	start, end, err := ReadYearRange(cfg.Years.Start, cfg.Years.End)
	if err != nil {
		PrintError(err.Error())
		return
	}
	format, err := output.ParseFormat(cfg.Export.Format)
	if err != nil {
		PrintError(err.Error())
		return
	}
	fields, source, err := delivery.LoadFields(cfg.Fields)
	if err != nil {
		PrintError(err.Error())
		return
	}

	src, err := delivery.NewImageSource(ctx, cfg.Sentinel)
	if err != nil {
		PrintError(err.Error())
		return
	}
	st, err := delivery.OpenStore(ctx, cfg.Store.Path)
	if err != nil {
		PrintError(err.Error())
		return
	}
	defer st.Close() //nolint:errcheck

	res, err := delivery.RunAnnualIndices(ctx, delivery.Deps{
		Source:   src,
		Store:    st,
		Notifier: notification.NewNotifier(cfg.Notification),
	}, delivery.RunOptions{
		Fields:        fields,
		FieldsSource:  source,
		StartYear:     start,
		EndYear:       end,
		Format:        format,
		OutputDir:     cfg.Export.Dir,
		Description:   cfg.Export.Description,
		MaxConcurrent: cfg.Sentinel.MaxConcurrent,
	})
	if err != nil {
		PrintError(fmt.Sprintf("Error computing indices: %s", err.Error()))
		return
	}

	PrintSuccess(fmt.Sprintf("Run %s complete!\n%d records located at: %s", res.Run.ID, len(res.Records), res.Path))
}

// ExportRun handles the UI for re-exporting a stored run.
func ExportRun(ctx context.Context, cfg *config.Config) {
	runID := ReadString("Enter the run id (empty for the latest run): ")
	format, err := output.ParseFormat(ReadString("Enter the format (csv, xlsx, geojson): "))
	if err != nil {
		PrintError(err.Error())
		return
	}

	st, err := delivery.OpenStore(ctx, cfg.Store.Path)
	if err != nil {
		PrintError(err.Error())
		return
	}
	defer st.Close() //nolint:errcheck

	path, err := delivery.ExportRun(ctx, st, runID, format, cfg.Export.Dir, cfg.Export.Description)
	if err != nil {
		PrintError(err.Error())
		return
	}
	PrintSuccess("Exported to " + path)
}
