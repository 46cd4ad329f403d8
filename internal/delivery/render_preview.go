package delivery

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
	"github.com/forest-guardian/field-indices-cli/internal/raster"
	"github.com/forest-guardian/field-indices-cli/output"
)

type Preview struct {
	Record dataset.Record
	// PNG is the rendered statistic, GeoTIFF holds mean/max/min/amp of the
	// index as four bands.
	PNG     string
	GeoTIFF string
}

// RenderPreview composites one field over one year and renders one
// statistic of an index. An empty dir writes under the results folder.
func RenderPreview(ctx context.Context, src dataset.ImageSource, f field.Field, year int, idx indices.Index, stat indices.Stat, dir string) (*Preview, error) {
	yc, err := dataset.BuildYearComposite(ctx, src, f, year, dataset.Options{})
	if err != nil {
		return nil, err
	}

	png := output.PreviewPath(f.ID, year, idx, stat)
	if dir != "" {
		png = filepath.Join(dir, filepath.Base(png))
	}
	if err := output.CreateIndexPreview(png, yc, f, idx, stat); err != nil {
		return nil, err
	}

	layer := yc.Composite.Layers[idx]
	tif := filepath.Join(filepath.Dir(png), f.ID+"_"+strconv.Itoa(year)+"_"+string(idx)+".tif")
	if err := raster.WriteGeoTIFF(tif, yc.Composite.Width, yc.Composite.Height, yc.Grid.GeoTransform,
		layer.Mean, layer.Max, layer.Min, layer.Amplitude); err != nil {
		return nil, err
	}

	return &Preview{Record: yc.Record(), PNG: png, GeoTIFF: tif}, nil
}

type TrueColorPreview struct {
	Scenes int
	// PNG is the stretched composite, GeoTIFF holds the median red, green
	// and blue reflectances as three bands.
	PNG     string
	GeoTIFF string
}

// RenderTrueColor composites the visible bands of one field over
// [from, to) by their per-pixel median. An empty dir writes under the
// results folder.
func RenderTrueColor(ctx context.Context, src dataset.ImageSource, f field.Field, from, to time.Time, dir string) (*TrueColorPreview, error) {
	tc, err := dataset.BuildTrueColor(ctx, src, f, from, to, dataset.Options{})
	if err != nil {
		return nil, err
	}

	png := output.TrueColorPath(f.ID, from)
	if dir != "" {
		png = filepath.Join(dir, filepath.Base(png))
	}
	if err := output.CreateTrueColorPreview(png, tc, f); err != nil {
		return nil, err
	}

	tif := strings.TrimSuffix(png, ".png") + ".tif"
	if err := raster.WriteGeoTIFF(tif, tc.Grid.Width, tc.Grid.Height, tc.Grid.GeoTransform, tc.Red, tc.Green, tc.Blue); err != nil {
		return nil, err
	}
	return &TrueColorPreview{Scenes: tc.Scenes, PNG: png, GeoTIFF: tif}, nil
}
