package dataset

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
	"github.com/forest-guardian/field-indices-cli/internal/utils"
)

// ErrNoData marks a scene that exists but cannot contribute: not delivered
// by the imagery service or without any valid pixel.
var ErrNoData = eris.New("dataset: scene has no usable data")

// ErrGridMismatch marks a scene whose pixel grid differs from the grid of
// the first composited scene.
var ErrGridMismatch = eris.New("dataset: scene grid differs from the composite grid")

// ImageSource lists acquisitions and returns decoded bands for a field.
type ImageSource interface {
	Days(ctx context.Context, f field.Field, from, to time.Time) ([]time.Time, error)
	Bands(ctx context.Context, f field.Field, day time.Time) (indices.Bands, error)
}

// YearWindow is [Jan 1, Jan 1 of the next year) in UTC, so the whole of
// Dec 31 is part of the year.
func YearWindow(year int) (time.Time, time.Time) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	return from, from.AddDate(1, 0, 0)
}

// InsideMask flags pixels whose centre lies in the field and that carry data.
// A nil DataMask only tests geometry.
func InsideMask(b indices.Bands, f field.Field) []bool {
	mask := make([]bool, b.Len())
	bound := f.Bound()
	for y := range b.Height {
		for x := range b.Width {
			i := y*b.Width + x
			if b.DataMask != nil && b.DataMask[i] == 0 {
				continue
			}
			lon, lat := b.PixelCenter(x, y)
			if !bound.Contains(orb.Point{lon, lat}) {
				continue
			}
			mask[i] = f.Contains(lon, lat)
		}
	}
	return mask
}

// YearComposite is the per-pixel temporal reduction of one field over one
// year.
type YearComposite struct {
	FieldID string
	Year    int
	// Scenes composited and scenes skipped for lack of data.
	Scenes  int
	Skipped int
	// Grid carries the raster geometry only, bands are nil.
	Grid      indices.Bands
	Inside    []bool
	Composite indices.Composite
}

func (yc YearComposite) Empty() bool {
	return yc.Scenes == 0
}

type sceneResult struct {
	pos   int
	day   time.Time
	bands indices.Bands
	err   error
}

// eachScene downloads the scenes of days concurrently and hands them to
// consume in the order of days. The first error returned by consume or by
// the source, other than ErrNoData, cancels the remaining downloads and is
// returned.
func eachScene(ctx context.Context, src ImageSource, f field.Field, days []time.Time, maxConcurrent int,
	consume func(day time.Time, b indices.Bands, err error) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make(chan sceneResult, len(days))
	pool := workerpool.New(maxConcurrent)
	for pos, day := range days {
		pool.Submit(func() {
			res := sceneResult{pos: pos, day: day}
			if res.err = ctx.Err(); res.err == nil {
				res.bands, res.err = src.Bands(ctx, f, day)
			}
			results <- res
		})
	}

	var (
		firstErr error
		pending  = make(map[int]sceneResult)
		next     int
	)
	for range days {
		res := <-results
		pending[res.pos] = res
		for {
			ready, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			next++
			if firstErr != nil {
				continue
			}
			if ready.err != nil && !errors.Is(ready.err, ErrNoData) {
				firstErr = eris.Wrapf(ready.err, "dataset: scene %s of %s", ready.day.Format(time.DateOnly), f.ID)
			} else {
				firstErr = consume(ready.day, ready.bands, ready.err)
			}
			if firstErr != nil {
				cancel()
			}
		}
	}
	pool.StopWait()
	return firstErr
}

// BuildYearComposite downloads every scene of the year for f and reduces it.
// Downloads run concurrently but scenes are accumulated in acquisition
// order, so the result does not depend on scheduling.
func BuildYearComposite(ctx context.Context, src ImageSource, f field.Field, year int, opts Options) (YearComposite, error) {
	opts = opts.withDefaults()
	from, to := YearWindow(year)

	days, err := src.Days(ctx, f, from, to)
	if err != nil {
		return YearComposite{}, eris.Wrapf(err, "dataset: list scenes of %s in %d", f.ID, year)
	}
	days = inWindow(utils.UniqueDays(days), from, to)

	yc := YearComposite{FieldID: f.ID, Year: year}
	if len(days) == 0 {
		zap.L().Warn("dataset: no scenes for year", zap.String("field", f.ID), zap.Int("year", year))
		return yc, nil
	}

	var acc *indices.Accumulator
	err = eachScene(ctx, src, f, days, opts.MaxConcurrent, func(day time.Time, b indices.Bands, err error) error {
		if err != nil {
			yc.Skipped++
			zap.L().Debug("dataset: scene skipped",
				zap.String("field", f.ID),
				zap.Time("day", day),
				zap.Error(err),
			)
			return nil
		}

		if acc == nil {
			acc = indices.NewAccumulator(b.Width, b.Height)
			yc.Grid = gridOf(b)
			yc.Inside = InsideMask(yc.Grid, f)
		}
		if !sameGrid(yc.Grid, b) {
			return gridMismatch(f, day, yc.Grid, b)
		}
		img, err := indices.Compute(b)
		if err != nil {
			return eris.Wrapf(err, "dataset: scene %s of %s", day.Format(time.DateOnly), f.ID)
		}
		if err := acc.Add(img); err != nil {
			return eris.Wrapf(err, "dataset: scene %s of %s", day.Format(time.DateOnly), f.ID)
		}
		yc.Scenes++
		return nil
	})
	if err != nil {
		return YearComposite{}, err
	}
	if acc == nil {
		zap.L().Warn("dataset: no usable scene for year",
			zap.String("field", f.ID),
			zap.Int("year", year),
			zap.Int("skipped", yc.Skipped),
		)
		return yc, nil
	}

	yc.Composite, err = acc.Composite()
	if err != nil {
		return YearComposite{}, err
	}
	return yc, nil
}

func gridOf(b indices.Bands) indices.Bands {
	return indices.Bands{Width: b.Width, Height: b.Height, GeoTransform: b.GeoTransform}
}

func gridMismatch(f field.Field, day time.Time, want, got indices.Bands) error {
	return eris.Wrapf(ErrGridMismatch, "dataset: scene %s of %s is %dx%d, grid is %dx%d",
		day.Format(time.DateOnly), f.ID, got.Width, got.Height, want.Width, want.Height)
}

func sameGrid(a, b indices.Bands) bool {
	if a.Width != b.Width || a.Height != b.Height {
		return false
	}
	for i := range a.GeoTransform {
		if math.Abs(a.GeoTransform[i]-b.GeoTransform[i]) > 1e-9 {
			return false
		}
	}
	return true
}

func inWindow(days []time.Time, from, to time.Time) []time.Time {
	out := days[:0]
	for _, d := range days {
		if !d.Before(from) && d.Before(to) {
			out = append(out, d)
		}
	}
	return out
}
