package dataset

import (
	"context"
	"math"
	"slices"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
	"github.com/forest-guardian/field-indices-cli/internal/utils"
)

// TrueColor is the per-pixel median of the red, green and blue reflectances
// of every scene in [From, To). Pixels without data in any scene are NaN.
// Clouds are not masked.
type TrueColor struct {
	FieldID  string
	From, To time.Time
	Scenes   int
	Grid     indices.Bands
	Red      []float64
	Green    []float64
	Blue     []float64
}

// MonthWindow is [first day of month, first day of the next month) in UTC.
func MonthWindow(year int, month time.Month) (time.Time, time.Time) {
	from := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(0, 1, 0)
}

// BuildTrueColor composites the visible bands of f over [from, to).
func BuildTrueColor(ctx context.Context, src ImageSource, f field.Field, from, to time.Time, opts Options) (TrueColor, error) {
	opts = opts.withDefaults()
	tc := TrueColor{FieldID: f.ID, From: from, To: to}

	days, err := src.Days(ctx, f, from, to)
	if err != nil {
		return TrueColor{}, eris.Wrapf(err, "dataset: list scenes of %s", f.ID)
	}
	days = inWindow(utils.UniqueDays(days), from, to)

	var red, green, blue [][]float64
	err = eachScene(ctx, src, f, days, opts.MaxConcurrent, func(day time.Time, b indices.Bands, err error) error {
		if err != nil {
			return nil
		}
		if red == nil {
			tc.Grid = gridOf(b)
			red = make([][]float64, b.Len())
			green = make([][]float64, b.Len())
			blue = make([][]float64, b.Len())
		}
		if !sameGrid(tc.Grid, b) {
			return gridMismatch(f, day, tc.Grid, b)
		}
		if err := b.Check(); err != nil {
			return eris.Wrapf(err, "dataset: scene %s of %s", day.Format(time.DateOnly), f.ID)
		}
		for i := range b.Len() {
			if b.DataMask[i] == 0 {
				continue
			}
			red[i] = append(red[i], b.Red[i])
			green[i] = append(green[i], b.Green[i])
			blue[i] = append(blue[i], b.Blue[i])
		}
		tc.Scenes++
		return nil
	})
	if err != nil {
		return TrueColor{}, err
	}
	if tc.Scenes == 0 {
		return TrueColor{}, eris.Wrapf(ErrNoData, "dataset: %s has no scene between %s and %s",
			f.ID, from.Format(time.DateOnly), to.Format(time.DateOnly))
	}

	tc.Red = medians(red)
	tc.Green = medians(green)
	tc.Blue = medians(blue)
	zap.L().Info("dataset: true colour composite built",
		zap.String("field", f.ID),
		zap.Time("from", from),
		zap.Time("to", to),
		zap.Int("scenes", tc.Scenes),
	)
	return tc, nil
}

func medians(samples [][]float64) []float64 {
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = median(s)
	}
	return out
}

// median of an empty slice is NaN. Even counts average the two middle values.
func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return math.NaN()
	}
	slices.Sort(values)
	if n%2 == 1 {
		return values[n/2]
	}
	return (values[n/2-1] + values[n/2]) / 2
}
