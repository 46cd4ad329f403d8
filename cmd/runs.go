package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/forest-guardian/field-indices-cli/internal/delivery"
	"github.com/forest-guardian/field-indices-cli/internal/store"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List stored runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := delivery.OpenStore(ctx, cfg.Store.Path)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		limit, _ := cmd.Flags().GetInt("limit")
		runs, err := st.ListRuns(ctx, limit)
		if err != nil {
			return eris.Wrap(err, "runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		formatRuns(os.Stdout, runs)
		return nil
	},
}

func formatRuns(w io.Writer, runs []store.Run) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tYEARS\tFIELDS\tRECORDS\tCREATED\tERROR")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d-%d\t%s\t%d\t%s\t%s\n",
			r.ID, r.Status, r.StartYear, r.EndYear, r.FieldsSource, r.Records,
			r.CreatedAt.Local().Format(time.DateTime), truncateText(r.Error, 60))
	}
	_ = tw.Flush()
}

func truncateText(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func init() {
	runsCmd.Flags().Int("limit", 20, "maximum number of runs to show")
	rootCmd.AddCommand(runsCmd)
}
