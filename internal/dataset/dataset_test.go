package dataset

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
)

// plot covers the first two columns of every test grid.
func plot(id string) field.Field {
	return field.Field{ID: id, Polygon: orb.Polygon{{
		{0, 0}, {0.001, 0}, {0.001, 0.001}, {0, 0.001}, {0, 0},
	}}}
}

// grid is 3x2 pixels of 0.0005 degrees; the third column lies outside plot.
func grid(nir, red float64) indices.Bands {
	const w, h = 3, 2
	fill := func(v float64) []float64 {
		out := make([]float64, w*h)
		for i := range out {
			out[i] = v
		}
		return out
	}
	return indices.Bands{
		Width:        w,
		Height:       h,
		GeoTransform: [6]float64{0, 0.0005, 0, 0.001, 0, -0.0005},
		Blue:         fill(0.05),
		Green:        fill(0.08),
		Red:          fill(red),
		NIR:          fill(nir),
		SCL:          fill(4),
		DataMask:     fill(1),
	}
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 13, 46, 0, 0, time.UTC)
}

type fakeSource struct {
	mu      sync.Mutex
	scenes  map[string][]time.Time
	bands   map[string]map[time.Time]indices.Bands
	noData  map[time.Time]bool
	failOn  time.Time
	fetched int
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		scenes: map[string][]time.Time{},
		bands:  map[string]map[time.Time]indices.Bands{},
		noData: map[time.Time]bool{},
	}
}

func (s *fakeSource) add(fieldID string, t time.Time, b indices.Bands) {
	s.scenes[fieldID] = append(s.scenes[fieldID], t)
	if s.bands[fieldID] == nil {
		s.bands[fieldID] = map[time.Time]indices.Bands{}
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	s.bands[fieldID][d] = b
}

func (s *fakeSource) Days(_ context.Context, f field.Field, from, to time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, t := range s.scenes[f.ID] {
		// a day past the window checks the pipeline filters it out
		if !t.Before(from) && t.Before(to.AddDate(0, 0, 2)) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeSource) Bands(_ context.Context, f field.Field, d time.Time) (indices.Bands, error) {
	s.mu.Lock()
	s.fetched++
	s.mu.Unlock()

	if d.Equal(s.failOn) {
		return indices.Bands{}, errors.New("boom")
	}
	if s.noData[d] {
		return indices.Bands{}, eris.Wrap(ErrNoData, "cloudy")
	}
	b, ok := s.bands[f.ID][d]
	if !ok {
		return indices.Bands{}, eris.Wrap(ErrNoData, "missing")
	}
	return b, nil
}

func TestYearWindow(t *testing.T) {
	from, to := YearWindow(2021)
	assert.Equal(t, time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC), to)

	dec31 := time.Date(2021, 12, 31, 23, 59, 0, 0, time.UTC)
	assert.True(t, !dec31.Before(from) && dec31.Before(to))
}

func TestInsideMask(t *testing.T) {
	b := grid(0.4, 0.1)
	b.DataMask[0] = 0

	mask := InsideMask(b, plot("A"))
	assert.Equal(t, []bool{false, true, false, true, true, false}, mask)

	b.DataMask = nil
	mask = InsideMask(b, plot("A"))
	assert.Equal(t, []bool{true, true, false, true, true, false}, mask)
}

func TestBuildYearRecord(t *testing.T) {
	src := newFakeSource()
	src.add("A", day(2021, 3, 1), grid(0.4, 0.1))  // ndvi 0.6
	src.add("A", day(2021, 12, 31), grid(0.5, 0.5)) // ndvi 0
	src.add("A", day(2021, 6, 1), grid(0.9, 0.1))
	src.noData[time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC)] = true
	src.add("A", day(2022, 1, 1), grid(0.1, 0.9))

	record, err := BuildYearRecord(context.Background(), src, plot("A"), 2021)
	require.NoError(t, err)

	assert.Equal(t, "A", record.FieldID)
	assert.Equal(t, 2021, record.Year)
	assert.Equal(t, 2, record.Scenes)
	assert.Equal(t, 4, record.Pixels)

	ndvi := record.Summary(indices.NDVI)
	assert.InDelta(t, 0.3, ndvi.Mean, 1e-9)
	assert.InDelta(t, 0.6, ndvi.Max, 1e-9)
	assert.InDelta(t, 0.0, ndvi.Min, 1e-9)
	assert.InDelta(t, 0.6, ndvi.Amplitude, 1e-9)

	evi := record.Summary(indices.EVI)
	want := (indices.EVIValue(0.4, 0.1, 0.05) + indices.EVIValue(0.5, 0.5, 0.05)) / 2
	assert.InDelta(t, want, evi.Mean, 1e-9)

	ndwi := record.Summary(indices.NDWI)
	assert.GreaterOrEqual(t, ndwi.Amplitude, 0.0)
}

func TestBuildYearRecordWithoutScenes(t *testing.T) {
	record, err := BuildYearRecord(context.Background(), newFakeSource(), plot("A"), 2019)
	require.NoError(t, err)

	assert.Zero(t, record.Scenes)
	assert.Zero(t, record.Pixels)
	for _, idx := range indices.All {
		for _, st := range indices.Stats {
			assert.True(t, math.IsNaN(record.Summary(idx).Get(st)), "%s %s", idx, st)
		}
	}
}

func TestBuildYearRecordOnlyCloudyScenes(t *testing.T) {
	src := newFakeSource()
	cloudy := grid(0.4, 0.1)
	for i := range cloudy.SCL {
		cloudy.SCL[i] = 9
	}
	src.add("A", day(2020, 5, 5), cloudy)

	record, err := BuildYearRecord(context.Background(), src, plot("A"), 2020)
	require.NoError(t, err)
	assert.Equal(t, 1, record.Scenes)
	assert.Zero(t, record.Pixels)
	assert.True(t, math.IsNaN(record.Summary(indices.NDVI).Mean))
}

func TestBuildYearRecordPropagatesErrors(t *testing.T) {
	src := newFakeSource()
	for d := 1; d <= 10; d++ {
		src.add("A", day(2020, 1, d), grid(0.4, 0.1))
	}
	src.failOn = time.Date(2020, 1, 3, 0, 0, 0, 0, time.UTC)

	_, err := BuildYearRecord(context.Background(), src, plot("A"), 2020)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "boom")
}

func TestBuildYearRecordRejectsMixedGrids(t *testing.T) {
	transposed := grid(0.4, 0.1)
	transposed.Width, transposed.Height = 2, 3

	src := newFakeSource()
	src.add("A", day(2021, 3, 1), transposed)
	src.add("A", day(2021, 4, 1), grid(0.4, 0.1))

	_, err := BuildYearRecord(context.Background(), src, plot("A"), 2021)
	require.ErrorIs(t, err, ErrGridMismatch)
	assert.ErrorContains(t, err, "2021-04-01")

	shifted := grid(0.4, 0.1)
	shifted.GeoTransform[0] = 0.0005

	src = newFakeSource()
	src.add("A", day(2021, 3, 1), grid(0.4, 0.1))
	src.add("A", day(2021, 4, 1), shifted)

	_, err = BuildYearRecord(context.Background(), src, plot("A"), 2021)
	assert.ErrorIs(t, err, ErrGridMismatch)
}

func TestBuildAnnualDatasetOrderAndYears(t *testing.T) {
	src := newFakeSource()
	for _, id := range []string{"B", "A"} {
		src.add(id, day(2020, 4, 1), grid(0.3, 0.2))
		src.add(id, day(2021, 4, 1), grid(0.9, 0.1))
	}

	fields := []field.Field{plot("B"), plot("A")}
	var mu sync.Mutex
	var seen int
	records, err := BuildAnnualDataset(context.Background(), src, fields, 2020, 2021, Options{
		MaxConcurrent: 3,
		Quiet:         true,
		OnRecord: func(Record) {
			mu.Lock()
			seen++
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, 4, seen)

	want := []struct {
		id   string
		year int
		ndvi float64
	}{
		{"B", 2020, 0.2},
		{"A", 2020, 0.2},
		{"B", 2021, 0.8},
		{"A", 2021, 0.8},
	}
	for i, w := range want {
		assert.Equal(t, w.id, records[i].FieldID)
		assert.Equal(t, w.year, records[i].Year)
		assert.InDelta(t, w.ndvi, records[i].Summary(indices.NDVI).Mean, 1e-9)
		assert.InDelta(t, 0, records[i].Summary(indices.NDVI).Amplitude, 1e-9)
	}
}

func TestBuildAnnualDatasetIsDeterministic(t *testing.T) {
	src := newFakeSource()
	for d := 1; d <= 20; d++ {
		src.add("A", day(2023, 2, d), grid(0.3+float64(d)/100, 0.1))
	}

	run := func() []Record {
		records, err := BuildAnnualDataset(context.Background(), src, []field.Field{plot("A")}, 2023, 2023, Options{MaxConcurrent: 8, Quiet: true})
		require.NoError(t, err)
		return records
	}
	assert.Equal(t, run(), run())
}

func TestBuildAnnualDatasetRejectsInvalidRange(t *testing.T) {
	_, err := BuildAnnualDataset(context.Background(), newFakeSource(), []field.Field{plot("A")}, 2025, 2019, Options{Quiet: true})
	assert.ErrorIs(t, err, ErrInvalidYears)

	_, err = BuildAnnualDataset(context.Background(), newFakeSource(), nil, 2019, 2025, Options{Quiet: true})
	assert.Error(t, err)
}

func TestMonthWindow(t *testing.T) {
	from, to := MonthWindow(2024, time.December)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), from)
	assert.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), to)
}

func TestBuildTrueColorTakesMedian(t *testing.T) {
	src := newFakeSource()
	for i, red := range []float64{0.1, 0.3, 0.2, 0.25} {
		b := grid(0.4, red)
		b.DataMask[0] = 0
		if i == 3 {
			// cloudy pixels still count, only missing data is dropped
			for j := range b.SCL {
				b.SCL[j] = 9
			}
			b.DataMask[1] = 0
		}
		src.add("A", day(2024, 5, 1+7*i), b)
	}
	src.add("A", day(2024, 6, 1), grid(0.4, 0.9))

	from, to := MonthWindow(2024, time.May)
	tc, err := BuildTrueColor(context.Background(), src, plot("A"), from, to, Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, tc.Scenes)
	assert.Equal(t, 3, tc.Grid.Width)
	assert.True(t, math.IsNaN(tc.Red[0]))
	assert.InDelta(t, 0.2, tc.Red[1], 1e-9)
	assert.InDelta(t, 0.225, tc.Red[2], 1e-9)
	assert.InDelta(t, 0.08, tc.Green[2], 1e-9)
	assert.InDelta(t, 0.05, tc.Blue[2], 1e-9)
}

func TestBuildTrueColorWithoutScenes(t *testing.T) {
	from, to := MonthWindow(2024, time.May)
	_, err := BuildTrueColor(context.Background(), newFakeSource(), plot("A"), from, to, Options{})
	assert.ErrorIs(t, err, ErrNoData)
}
