// Package raster reads and writes GeoTIFFs with GDAL and serves decoded
// Sentinel-2 scenes to the annual pipeline.
package raster

import (
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/airbusgeo/godal"
	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/indices"
	"github.com/forest-guardian/field-indices-cli/internal/utils"
)

var registerOnce sync.Once

func register() {
	registerOnce.Do(godal.RegisterInternalDrivers)
}

// warningsOnly lets GDAL warnings through and fails on everything else.
func warningsOnly() godal.ErrorHandler {
	return func(ec godal.ErrorCategory, code int, msg string) error {
		if ec <= godal.CE_Warning {
			return nil
		}
		return eris.Errorf("gdal: %s", msg)
	}
}

// Decode reads a six band GeoTIFF laid out as sentinel.BandOrder.
func Decode(path string) (indices.Bands, error) {
	register()

	var (
		bands indices.Bands
		err   error
	)
	utils.WithGDAL(func() {
		bands, err = decode(path)
	})
	return bands, err
}

func decode(path string) (indices.Bands, error) {
	ds, err := godal.Open(path, godal.ErrLogger(warningsOnly()))
	if err != nil {
		return indices.Bands{}, eris.Wrapf(err, "raster: open %s", path)
	}
	defer func() { _ = ds.Close() }()

	structure := ds.Structure()
	if structure.NBands < 6 {
		return indices.Bands{}, eris.Errorf("raster: %s has %d bands, want 6", path, structure.NBands)
	}

	gt, err := ds.GeoTransform()
	if err != nil {
		return indices.Bands{}, eris.Wrapf(err, "raster: geotransform of %s", path)
	}

	width, height := structure.SizeX, structure.SizeY
	data := make([][]float64, 6)
	for i, band := range ds.Bands()[:6] {
		data[i] = make([]float64, width*height)
		if err := band.Read(0, 0, data[i], width, height); err != nil {
			return indices.Bands{}, eris.Wrapf(err, "raster: read band %d of %s", i+1, path)
		}
	}

	return indices.Bands{
		Width:        width,
		Height:       height,
		GeoTransform: gt,
		Blue:         data[0],
		Green:        data[1],
		Red:          data[2],
		NIR:          data[3],
		SCL:          data[4],
		DataMask:     data[5],
	}, nil
}

// WriteGeoTIFF writes float32 layers sharing one grid to path in EPSG:4326.
// NaN is the nodata value.
func WriteGeoTIFF(path string, width, height int, gt [6]float64, layers ...[]float64) error {
	if len(layers) == 0 {
		return eris.New("raster: no layers to write")
	}
	for i, layer := range layers {
		if len(layer) != width*height {
			return eris.Errorf("raster: layer %d has %d values, want %d", i, len(layer), width*height)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return eris.Wrapf(err, "raster: create %s", filepath.Dir(path))
	}
	register()

	var err error
	utils.WithGDAL(func() {
		err = writeGeoTIFF(path, width, height, gt, layers)
	})
	return err
}

func writeGeoTIFF(path string, width, height int, gt [6]float64, layers [][]float64) error {
	ds, err := godal.Create(godal.GTiff, path, len(layers), godal.Float32, width, height)
	if err != nil {
		return eris.Wrapf(err, "raster: create %s", path)
	}

	if err := ds.SetGeoTransform(gt); err != nil {
		_ = ds.Close()
		return eris.Wrap(err, "raster: set geotransform")
	}

	sr, err := godal.NewSpatialRefFromEPSG(4326)
	if err != nil {
		_ = ds.Close()
		return eris.Wrap(err, "raster: spatial ref")
	}
	defer sr.Close()
	if err := ds.SetSpatialRef(sr); err != nil {
		_ = ds.Close()
		return eris.Wrap(err, "raster: set spatial ref")
	}

	for i, band := range ds.Bands() {
		if err := band.SetNoData(math.NaN()); err != nil {
			_ = ds.Close()
			return eris.Wrapf(err, "raster: nodata of band %d", i+1)
		}
		if err := band.Write(0, 0, layers[i], width, height); err != nil {
			_ = ds.Close()
			return eris.Wrapf(err, "raster: write band %d", i+1)
		}
	}

	return eris.Wrapf(ds.Close(), "raster: close %s", path)
}
