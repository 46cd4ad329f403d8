package raster

import (
	"context"
	"errors"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forest-guardian/field-indices-cli/internal/cache"
	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
	"github.com/forest-guardian/field-indices-cli/internal/sentinel"
)

// Imagery is the part of the Sentinel Hub client the source needs.
type Imagery interface {
	SearchScenes(ctx context.Context, bbox orb.Bound, from, to time.Time) ([]sentinel.Scene, error)
	RequestImage(ctx context.Context, polygon orb.Polygon, day time.Time) ([]byte, error)
}

// Source serves scenes from disk, downloading what is missing.
type Source struct {
	api        Imagery
	images     *ImageStore
	scenes     cache.CacheService[[]sentinel.Scene]
	maxCloud   float64
	resolution float64
	now        func() time.Time
}

// NewSource serves scenes requested at resolution metres per pixel.
func NewSource(api Imagery, images *ImageStore, scenes cache.CacheService[[]sentinel.Scene], maxCloud, resolution float64) *Source {
	return &Source{api: api, images: images, scenes: scenes, maxCloud: maxCloud, resolution: resolution, now: time.Now}
}

var _ dataset.ImageSource = (*Source)(nil)

// Days lists acquisition days over the field. Catalog answers for windows
// that are fully in the past are cached.
func (s *Source) Days(ctx context.Context, f field.Field, from, to time.Time) ([]time.Time, error) {
	bbox := f.Bound()
	key := s.scenes.GenerateKey(f.ID, bbox.Min, bbox.Max, from.Unix(), to.Unix(), s.maxCloud)
	closed := to.Before(s.now())

	scenes, ok := s.scenes.Get(key)
	if !ok || !closed {
		var err error
		scenes, err = s.api.SearchScenes(ctx, bbox, from, to)
		if err != nil {
			return nil, err
		}
		if closed {
			if err := s.scenes.Set(key, scenes); err != nil {
				zap.L().Warn("raster: cache scenes", zap.String("field", f.ID), zap.Error(err))
			}
		}
	}

	days := make([]time.Time, 0, len(scenes))
	for _, scene := range scenes {
		days = append(days, scene.Day())
	}
	return days, nil
}

// Bands returns the scene of day over f. Scenes that are not delivered or
// carry no valid pixel are recorded in invalid_images.json and reported as
// dataset.ErrNoData. A cached image whose size differs from the grid of the
// current polygon and resolution is downloaded again.
func (s *Source) Bands(ctx context.Context, f field.Field, day time.Time) (indices.Bands, error) {
	bound := f.Bound()
	grid := GridKey(bound, s.resolution)
	width, height := sentinel.ImageSize(bound, s.resolution)
	name := s.images.Name(f.ID, grid, day)

	invalid, err := s.images.IsInvalid(name)
	if err != nil {
		return indices.Bands{}, err
	}
	if invalid {
		return indices.Bands{}, eris.Wrapf(dataset.ErrNoData, "raster: %s is listed as invalid", name)
	}

	if s.images.Exists(f.ID, grid, day) {
		bands, err := Decode(s.images.Path(f.ID, grid, day))
		if err == nil {
			err = checkSize(bands, width, height)
		}
		if err == nil {
			return bands, nil
		}
		zap.L().Warn("raster: cached image unusable, downloading again", zap.String("image", name), zap.Error(err))
		if err := s.images.Remove(f.ID, grid, day); err != nil {
			return indices.Bands{}, err
		}
	}

	data, err := s.api.RequestImage(ctx, f.Polygon, day)
	if err != nil {
		if errors.Is(err, sentinel.ErrImageNotFound) {
			return indices.Bands{}, s.invalidate(name, err)
		}
		return indices.Bands{}, err
	}

	path, err := s.images.Save(f.ID, grid, day, data)
	if err != nil {
		return indices.Bands{}, err
	}

	bands, err := Decode(path)
	if err == nil {
		err = checkSize(bands, width, height)
	}
	if err != nil {
		if rmErr := s.images.Remove(f.ID, grid, day); rmErr != nil {
			zap.L().Warn("raster: remove downloaded image", zap.String("image", name), zap.Error(rmErr))
		}
		return indices.Bands{}, err
	}
	if bands.ValidCount() == 0 {
		if err := s.images.Remove(f.ID, grid, day); err != nil {
			zap.L().Warn("raster: remove empty image", zap.String("image", name), zap.Error(err))
		}
		return indices.Bands{}, s.invalidate(name, eris.New("raster: no valid pixel"))
	}
	return bands, nil
}

func checkSize(b indices.Bands, width, height int) error {
	if b.Width != width || b.Height != height {
		return eris.Errorf("raster: image is %dx%d, want %dx%d", b.Width, b.Height, width, height)
	}
	return nil
}

func (s *Source) invalidate(name string, cause error) error {
	if err := s.images.MarkInvalid(name); err != nil {
		return err
	}
	return eris.Wrapf(dataset.ErrNoData, "raster: %s: %v", name, cause)
}
