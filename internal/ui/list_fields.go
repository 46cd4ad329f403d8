package ui

import (
	"context"
	"fmt"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/delivery"
)

// ListFields handles the UI for viewing the configured fields
func ListFields(_ context.Context, cfg *config.Config) {
	PrintWarning("To analyse other fields, set fields.source to a '.geojson' or '.shp' file whose features carry the '" +
		cfg.Fields.IDProperty + "' property.")

	fields, source, err := delivery.LoadFields(cfg.Fields)
	if err != nil {
		PrintError(err.Error())
		return
	}
	infos, err := delivery.ListFields(fields)
	if err != nil {
		PrintError(err.Error())
		return
	}

	fmt.Fprintf(output, "\n%sFields from %s:%s\n", ColorGreen, source, ColorReset)
	for _, f := range infos {
		fmt.Fprintf(output, "%s- %s: %.2f ha, centroid %.6f, %.6f%s\n", ColorGreen, f.ID, f.AreaHa, f.Latitude, f.Longitude, ColorReset)
	}
}

// ListRuns handles the UI for viewing the stored runs
func ListRuns(ctx context.Context, cfg *config.Config) {
	st, err := delivery.OpenStore(ctx, cfg.Store.Path)
	if err != nil {
		PrintError(err.Error())
		return
	}
	defer st.Close() //nolint:errcheck

	runs, err := st.ListRuns(ctx, 20)
	if err != nil {
		PrintError(err.Error())
		return
	}
	if len(runs) == 0 {
		PrintWarning("No runs found.")
		return
	}

	fmt.Fprintf(output, "\n%sStored runs:%s\n", ColorGreen, ColorReset)
	for _, r := range runs {
		fmt.Fprintf(output, "%s- %s %s %d-%d (%d records)%s\n",
			ColorGreen, r.ID, r.Status, r.StartYear, r.EndYear, r.Records, ColorReset)
	}
}
