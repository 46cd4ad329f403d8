package delivery

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/config"
	"github.com/forest-guardian/field-indices-cli/internal/store"
	"github.com/forest-guardian/field-indices-cli/output"
)

// ExportRun writes the records of a stored run. An empty runID selects the
// latest complete run. An empty description derives the file name from the
// years of the run.
func ExportRun(ctx context.Context, st *store.SQLiteStore, runID string, format output.Format, dir, description string) (string, error) {
	var (
		run *store.Run
		err error
	)
	if runID == "" {
		run, err = st.LatestRun(ctx)
	} else {
		run, err = st.GetRun(ctx, runID)
	}
	if err != nil {
		return "", err
	}
	if run.Status != store.RunStatusComplete {
		return "", eris.Errorf("delivery: run %s is %s", run.ID, run.Status)
	}

	records, err := st.Records(ctx, run.ID)
	if err != nil {
		return "", err
	}
	fields, err := st.Fields(ctx, run.ID)
	if err != nil {
		return "", err
	}

	if description == "" {
		description = config.DefaultDescription(run.StartYear, run.EndYear)
	}
	return output.Export(format, dir, description, records, fields)
}
