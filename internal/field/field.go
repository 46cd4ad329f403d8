// Package field holds the polygons indices are reduced over.
package field

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/planar"
	"github.com/rotisserie/eris"
)

// ErrFieldNotFound is returned when a field id is not part of a collection.
var ErrFieldNotFound = eris.New("field not found")

// Field is a named analysis polygon in WGS84 (lon, lat).
type Field struct {
	ID      string
	Polygon orb.Polygon
}

// DefaultFields returns the two plots the analysis was set up for.
func DefaultFields() []Field {
	return []Field{
		{
			ID: "T001",
			Polygon: closed(orb.Ring{
				{-54.374231748796944, -21.580033618587567},
				{-54.39706271193171, -21.59184566243295},
				{-54.385733061052804, -21.621211971853427},
				{-54.36032717726374, -21.609721517265893},
			}),
		},
		{
			ID: "T002",
			Polygon: closed(orb.Ring{
				{-54.35603242376561, -21.585124412929495},
				{-54.33131318548436, -21.604916326017733},
				{-54.30316071966405, -21.554473533596518},
				{-54.32307343939061, -21.54553247315377},
			}),
		},
	}
}

func closed(ring orb.Ring) orb.Polygon {
	if len(ring) > 0 && !ring.Closed() {
		ring = append(ring, ring[0])
	}
	return orb.Polygon{ring}
}

func (f Field) Bound() orb.Bound {
	return f.Polygon.Bound()
}

// Centroid returns latitude and longitude of the planar centroid.
func (f Field) Centroid() (float64, float64, error) {
	centroid, area := planar.CentroidArea(f.Polygon)
	if area <= 0 {
		return 0, 0, eris.Errorf("field %s: degenerate polygon", f.ID)
	}
	return centroid.Lat(), centroid.Lon(), nil
}

// AreaHectares is the geodesic area of the polygon.
func (f Field) AreaHectares() float64 {
	return math.Abs(geo.Area(f.Polygon)) / 10_000
}

// Contains reports whether the point lies inside the polygon (holes excluded).
func (f Field) Contains(lon, lat float64) bool {
	return planar.PolygonContains(f.Polygon, orb.Point{lon, lat})
}

// Bound returns the bounding box of all fields.
func Bound(fields []Field) orb.Bound {
	if len(fields) == 0 {
		return orb.Bound{}
	}
	b := fields[0].Bound()
	for _, f := range fields[1:] {
		b = b.Union(f.Bound())
	}
	return b
}

// Find returns the field with the given id.
func Find(fields []Field, id string) (Field, error) {
	for _, f := range fields {
		if f.ID == id {
			return f, nil
		}
	}
	return Field{}, eris.Wrapf(ErrFieldNotFound, "field %q", id)
}

// Validate rejects empty or duplicated ids and malformed rings.
func Validate(fields []Field) error {
	if len(fields) == 0 {
		return eris.New("field: no fields to analyse")
	}
	seen := make(map[string]struct{}, len(fields))
	for i, f := range fields {
		if f.ID == "" {
			return eris.Errorf("field: feature %d has no id", i)
		}
		if _, ok := seen[f.ID]; ok {
			return eris.Errorf("field: duplicated id %q", f.ID)
		}
		seen[f.ID] = struct{}{}

		if len(f.Polygon) == 0 {
			return eris.Errorf("field %s: empty polygon", f.ID)
		}
		for _, ring := range f.Polygon {
			if len(ring) < 4 {
				return eris.Errorf("field %s: ring needs at least 4 points, got %d", f.ID, len(ring))
			}
			if !ring.Closed() {
				return eris.Errorf("field %s: ring is not closed", f.ID)
			}
		}
	}
	return nil
}
