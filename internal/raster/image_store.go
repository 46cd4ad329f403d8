package raster

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/cache"
)

const invalidImagesFile = "invalid_images.json"

// ImageStore keeps downloaded scenes under
// <dir>/<field>/<grid>/<field>_<grid>_<date>.tif and remembers scenes that
// turned out to be unusable so they are not requested again. The grid key
// separates downloads of different polygons or resolutions of one field.
type ImageStore struct {
	dir string

	mu      sync.Mutex
	invalid map[string]struct{}
}

func NewImageStore(dir string) *ImageStore {
	return &ImageStore{dir: dir}
}

// GridKey names the pixel grid delivered for bound at resolution.
func GridKey(bound orb.Bound, resolution float64) string {
	return cache.Key(bound.Min, bound.Max, resolution)[:12]
}

func (s *ImageStore) Name(fieldID, grid string, day time.Time) string {
	return fmt.Sprintf("%s_%s_%s.tif", fieldID, grid, day.UTC().Format(time.DateOnly))
}

func (s *ImageStore) Path(fieldID, grid string, day time.Time) string {
	return filepath.Join(s.dir, fieldID, grid, s.Name(fieldID, grid, day))
}

func (s *ImageStore) Exists(fieldID, grid string, day time.Time) bool {
	_, err := os.Stat(s.Path(fieldID, grid, day))
	return err == nil
}

// Save writes the image atomically and returns its path.
func (s *ImageStore) Save(fieldID, grid string, day time.Time, data []byte) (string, error) {
	path := s.Path(fieldID, grid, day)
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return "", eris.Wrapf(err, "raster: create %s", filepath.Dir(path))
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return "", eris.Wrapf(err, "raster: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return "", eris.Wrapf(err, "raster: rename %s", tmp)
	}
	return path, nil
}

func (s *ImageStore) Remove(fieldID, grid string, day time.Time) error {
	err := os.Remove(s.Path(fieldID, grid, day))
	if err != nil && !os.IsNotExist(err) {
		return eris.Wrap(err, "raster: remove image")
	}
	return nil
}

func (s *ImageStore) IsInvalid(name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return false, err
	}
	_, ok := s.invalid[name]
	return ok, nil
}

// MarkInvalid adds name to invalid_images.json.
func (s *ImageStore) MarkInvalid(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.load(); err != nil {
		return err
	}
	if _, ok := s.invalid[name]; ok {
		return nil
	}
	s.invalid[name] = struct{}{}

	names := make([]string, 0, len(s.invalid))
	for n := range s.invalid {
		names = append(names, n)
	}
	slices.Sort(names)

	data, err := json.MarshalIndent(names, "", "  ")
	if err != nil {
		return eris.Wrap(err, "raster: marshal invalid images")
	}
	if err := os.MkdirAll(s.dir, os.ModePerm); err != nil {
		return eris.Wrapf(err, "raster: create %s", s.dir)
	}
	if err := os.WriteFile(filepath.Join(s.dir, invalidImagesFile), data, 0644); err != nil {
		return eris.Wrap(err, "raster: write invalid images")
	}
	return nil
}

func (s *ImageStore) load() error {
	if s.invalid != nil {
		return nil
	}

	invalid := make(map[string]struct{})
	data, err := os.ReadFile(filepath.Join(s.dir, invalidImagesFile))
	switch {
	case os.IsNotExist(err):
	case err != nil:
		return eris.Wrap(err, "raster: read invalid images")
	default:
		var names []string
		if err := json.Unmarshal(data, &names); err != nil {
			return eris.Wrapf(err, "raster: invalid JSON in %s", invalidImagesFile)
		}
		for _, n := range names {
			invalid[n] = struct{}{}
		}
	}

	s.invalid = invalid
	return nil
}
