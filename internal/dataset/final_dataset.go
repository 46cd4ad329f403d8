package dataset

import (
	"context"
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
)

var ErrInvalidYears = eris.New("dataset: start year is after end year")

// Record is the reduction of one field over one year.
type Record struct {
	FieldID string
	Year    int
	Scenes  int
	// Pixels inside the field observed at least once.
	Pixels  int
	Indices map[indices.Index]indices.Summary
}

// Summary returns the statistics of idx, NaN when the year had no data.
func (r Record) Summary(idx indices.Index) indices.Summary {
	if s, ok := r.Indices[idx]; ok {
		return s
	}
	return indices.EmptySummary()
}

func (yc YearComposite) Record() Record {
	r := Record{FieldID: yc.FieldID, Year: yc.Year, Scenes: yc.Scenes}
	if yc.Empty() {
		r.Indices = make(map[indices.Index]indices.Summary, len(indices.All))
		for _, idx := range indices.All {
			r.Indices[idx] = indices.EmptySummary()
		}
		return r
	}

	r.Indices = yc.Composite.Summarize(yc.Inside)
	r.Pixels = r.Indices[indices.NDVI].Pixels
	return r
}

type Options struct {
	// MaxConcurrent bounds scene downloads per field and year.
	MaxConcurrent int
	// Quiet hides the progress bar.
	Quiet bool
	// OnRecord is called once per finished record, possibly concurrently.
	OnRecord func(Record)
}

func (o Options) withDefaults() Options {
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = 4
	}
	return o
}

func (o Options) progressBar(total int) *progressbar.ProgressBar {
	var w io.Writer = os.Stdout
	if o.Quiet {
		w = io.Discard
	}
	return progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("Building annual dataset"),
		progressbar.OptionShowCount(),
	)
}

// BuildYearRecord reduces one field over one year.
func BuildYearRecord(ctx context.Context, src ImageSource, f field.Field, year int) (Record, error) {
	yc, err := BuildYearComposite(ctx, src, f, year, Options{})
	if err != nil {
		return Record{}, err
	}
	return yc.Record(), nil
}

// BuildAnnualDataset computes one record per field per year in [start, end].
// Years are processed in order and the fields of a year concurrently. The
// result is ordered by year, then by the order of fields.
func BuildAnnualDataset(ctx context.Context, src ImageSource, fields []field.Field, start, end int, opts Options) ([]Record, error) {
	if start > end {
		return nil, eris.Wrapf(ErrInvalidYears, "dataset: %d > %d", start, end)
	}
	if len(fields) == 0 {
		return nil, eris.New("dataset: no fields")
	}
	opts = opts.withDefaults()

	bar := opts.progressBar((end - start + 1) * len(fields))
	records := make([]Record, 0, (end-start+1)*len(fields))

	for year := start; year <= end; year++ {
		yearRecords := make([]Record, len(fields))

		g, gctx := errgroup.WithContext(ctx)
		for i, f := range fields {
			g.Go(func() error {
				yc, err := BuildYearComposite(gctx, src, f, year, opts)
				if err != nil {
					return err
				}

				record := yc.Record()
				yearRecords[i] = record
				_ = bar.Add(1)

				zap.L().Info("dataset: year reduced",
					zap.String("field", f.ID),
					zap.Int("year", year),
					zap.Int("scenes", record.Scenes),
					zap.Int("skipped", yc.Skipped),
					zap.Int("pixels", record.Pixels),
				)
				if opts.OnRecord != nil {
					opts.OnRecord(record)
				}
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			_ = bar.Exit()
			return nil, err
		}

		records = append(records, yearRecords...)
	}

	_ = bar.Finish()
	return records, nil
}
