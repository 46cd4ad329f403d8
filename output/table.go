// Package output writes annual index records as tables and previews.
package output

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
)

// Value is a statistic cell. NaN is written as an empty cell.
type Value float64

func (v Value) MarshalCSV() (string, error) {
	if v.Missing() {
		return "", nil
	}
	return strconv.FormatFloat(float64(v), 'f', -1, 64), nil
}

func (v *Value) UnmarshalCSV(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		*v = Value(math.NaN())
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return eris.Wrapf(err, "output: parse %q", s)
	}
	*v = Value(f)
	return nil
}

func (v Value) Missing() bool {
	return math.IsNaN(float64(v)) || math.IsInf(float64(v), 0)
}

// JSON returns nil for missing values so documents stay valid JSON.
func (v Value) JSON() any {
	if v.Missing() {
		return nil
	}
	return float64(v)
}

// Row is one line of the exported table, keyed by field id and year.
type Row struct {
	FieldID  string `csv:"id_talhao"`
	Year     int    `csv:"ano"`
	Scenes   int    `csv:"scenes"`
	Pixels   int    `csv:"pixels"`
	NDVIMean Value  `csv:"NDVI_mean"`
	NDVIMax  Value  `csv:"NDVI_max"`
	NDVIMin  Value  `csv:"NDVI_min"`
	NDVIAmp  Value  `csv:"NDVI_amp"`
	EVIMean  Value  `csv:"EVI_mean"`
	EVIMax   Value  `csv:"EVI_max"`
	EVIMin   Value  `csv:"EVI_min"`
	EVIAmp   Value  `csv:"EVI_amp"`
	NDWIMean Value  `csv:"NDWI_mean"`
	NDWIMax  Value  `csv:"NDWI_max"`
	NDWIMin  Value  `csv:"NDWI_min"`
	NDWIAmp  Value  `csv:"NDWI_amp"`
}

// StatColumn is the column name of a statistic, e.g. NDVI_amp.
func StatColumn(idx indices.Index, stat indices.Stat) string {
	return strings.ToUpper(string(idx)) + "_" + string(stat)
}

// Columns lists the table header in order.
func Columns() []string {
	cols := []string{"id_talhao", "ano", "scenes", "pixels"}
	for _, idx := range indices.All {
		for _, st := range indices.Stats {
			cols = append(cols, StatColumn(idx, st))
		}
	}
	return cols
}

func NewRow(r dataset.Record) Row {
	ndvi, evi, ndwi := r.Summary(indices.NDVI), r.Summary(indices.EVI), r.Summary(indices.NDWI)
	return Row{
		FieldID:  r.FieldID,
		Year:     r.Year,
		Scenes:   r.Scenes,
		Pixels:   r.Pixels,
		NDVIMean: Value(ndvi.Mean),
		NDVIMax:  Value(ndvi.Max),
		NDVIMin:  Value(ndvi.Min),
		NDVIAmp:  Value(ndvi.Amplitude),
		EVIMean:  Value(evi.Mean),
		EVIMax:   Value(evi.Max),
		EVIMin:   Value(evi.Min),
		EVIAmp:   Value(evi.Amplitude),
		NDWIMean: Value(ndwi.Mean),
		NDWIMax:  Value(ndwi.Max),
		NDWIMin:  Value(ndwi.Min),
		NDWIAmp:  Value(ndwi.Amplitude),
	}
}

func NewRows(records []dataset.Record) []Row {
	rows := make([]Row, len(records))
	for i, r := range records {
		rows[i] = NewRow(r)
	}
	return rows
}

// Stats returns the statistic cells in Columns order.
func (r Row) Stats() []Value {
	return []Value{
		r.NDVIMean, r.NDVIMax, r.NDVIMin, r.NDVIAmp,
		r.EVIMean, r.EVIMax, r.EVIMin, r.EVIAmp,
		r.NDWIMean, r.NDWIMax, r.NDWIMin, r.NDWIAmp,
	}
}

// Properties maps every column to its value, missing statistics to nil.
func (r Row) Properties() map[string]any {
	cols := Columns()
	props := map[string]any{
		cols[0]: r.FieldID,
		cols[1]: r.Year,
		cols[2]: r.Scenes,
		cols[3]: r.Pixels,
	}
	for i, v := range r.Stats() {
		props[cols[4+i]] = v.JSON()
	}
	return props
}
