package output

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/gocarina/gocsv"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"

	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/field"
)

type Format string

const (
	FormatCSV     Format = "csv"
	FormatXLSX    Format = "xlsx"
	FormatGeoJSON Format = "geojson"
)

func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case FormatCSV, FormatXLSX, FormatGeoJSON:
		return f, nil
	}
	return "", eris.Errorf("output: unsupported format %q", s)
}

// Export writes records to <dir>/<description>.<format> and returns the path.
// Fields are only needed for GeoJSON.
func Export(format Format, dir, description string, records []dataset.Record, fields []field.Field) (string, error) {
	if description == "" {
		return "", eris.New("output: empty description")
	}
	if err := os.MkdirAll(dir, os.ModePerm); err != nil {
		return "", eris.Wrapf(err, "output: create %s", dir)
	}

	path := filepath.Join(dir, description+"."+string(format))
	var err error
	switch format {
	case FormatCSV:
		err = WriteCSV(path, records)
	case FormatXLSX:
		err = WriteXLSX(path, records)
	case FormatGeoJSON:
		err = WriteGeoJSON(path, records, fields)
	default:
		err = eris.Errorf("output: unsupported format %q", format)
	}
	if err != nil {
		return "", err
	}

	zap.L().Info("output: table exported", zap.String("path", path), zap.Int("rows", len(records)))
	return path, nil
}

func WriteCSV(path string, records []dataset.Record) error {
	file, err := os.Create(path)
	if err != nil {
		return eris.Wrapf(err, "output: create %s", path)
	}
	defer func() { _ = file.Close() }()

	rows := NewRows(records)
	if err := gocsv.MarshalFile(&rows, file); err != nil {
		return eris.Wrapf(err, "output: write %s", path)
	}
	return eris.Wrapf(file.Close(), "output: close %s", path)
}

// ReadCSV loads rows written by WriteCSV.
func ReadCSV(path string) ([]Row, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "output: open %s", path)
	}
	defer func() { _ = file.Close() }()

	var rows []Row
	if err := gocsv.UnmarshalFile(file, &rows); err != nil {
		return nil, eris.Wrapf(err, "output: read %s", path)
	}
	return rows, nil
}

func WriteXLSX(path string, records []dataset.Record) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("indices")
	if err != nil {
		return eris.Wrap(err, "output: add sheet")
	}

	header := sheet.AddRow()
	for _, col := range Columns() {
		header.AddCell().SetString(col)
	}

	for _, r := range NewRows(records) {
		row := sheet.AddRow()
		row.AddCell().SetString(r.FieldID)
		row.AddCell().SetInt(r.Year)
		row.AddCell().SetInt(r.Scenes)
		row.AddCell().SetInt(r.Pixels)
		for _, v := range r.Stats() {
			cell := row.AddCell()
			if !v.Missing() {
				cell.SetFloat(float64(v))
			}
		}
	}

	return eris.Wrapf(f.Save(path), "output: save %s", path)
}

// WriteGeoJSON writes one feature per record carrying its field polygon.
func WriteGeoJSON(path string, records []dataset.Record, fields []field.Field) error {
	fc := geojson.NewFeatureCollection()
	for _, r := range NewRows(records) {
		f, err := field.Find(fields, r.FieldID)
		if err != nil {
			return eris.Wrap(err, "output: geojson")
		}
		feature := geojson.NewFeature(f.Polygon)
		feature.Properties = r.Properties()
		fc.Append(feature)
	}

	data, err := json.MarshalIndent(fc, "", "  ")
	if err != nil {
		return eris.Wrap(err, "output: marshal geojson")
	}
	return eris.Wrapf(os.WriteFile(path, data, 0644), "output: write %s", path)
}
