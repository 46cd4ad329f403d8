package field

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/jonas-p/go-shp"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// Load reads fields from a GeoJSON or Shapefile, using idProperty as the
// field identifier. An empty path yields the default fields.
func Load(path, idProperty string) ([]Field, error) {
	var (
		fields []Field
		err    error
	)

	switch strings.ToLower(filepath.Ext(path)) {
	case "":
		if path != "" {
			return nil, eris.Errorf("field: cannot infer format of %q", path)
		}
		fields = DefaultFields()
	case ".geojson", ".json":
		fields, err = LoadGeoJSON(path, idProperty)
	case ".shp":
		fields, err = LoadShapefile(path, idProperty)
	default:
		return nil, eris.Errorf("field: unsupported file %q", path)
	}
	if err != nil {
		return nil, err
	}

	if err := Validate(fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// LoadGeoJSON reads a FeatureCollection of Polygon or MultiPolygon features.
// Only the first polygon of a MultiPolygon is kept.
func LoadGeoJSON(path, idProperty string) ([]Field, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "field: read %s", path)
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, eris.Wrapf(err, "field: decode %s", path)
	}

	var fields []Field
	for i, feature := range fc.Features {
		id := propertyString(feature.Properties, idProperty)

		var polygon orb.Polygon
		switch g := feature.Geometry.(type) {
		case orb.Polygon:
			polygon = g
		case orb.MultiPolygon:
			if len(g) == 0 {
				continue
			}
			if len(g) > 1 {
				zap.L().Warn("field: multipolygon reduced to its first part", zap.String("field", id))
			}
			polygon = g[0]
		case nil:
			zap.L().Warn("field: skipping feature without geometry", zap.Int("feature", i))
			continue
		default:
			zap.L().Warn("field: skipping non polygon feature",
				zap.Int("feature", i),
				zap.String("type", feature.Geometry.GeoJSONType()),
			)
			continue
		}

		fields = append(fields, Field{ID: id, Polygon: closePolygon(polygon)})
	}

	return fields, nil
}

// LoadShapefile reads polygon records from a .shp/.dbf pair.
func LoadShapefile(path, idProperty string) ([]Field, error) {
	reader, err := shp.Open(path)
	if err != nil {
		return nil, eris.Wrapf(err, "field: open shapefile %s", path)
	}
	defer func() { _ = reader.Close() }()

	idIdx := -1
	for i, f := range reader.Fields() {
		name := strings.TrimRight(f.String(), "\x00")
		if strings.EqualFold(name, idProperty) {
			idIdx = i
			break
		}
	}
	if idIdx < 0 {
		return nil, eris.Errorf("field: shapefile %s has no %q attribute", path, idProperty)
	}

	var fields []Field
	for reader.Next() {
		n, shape := reader.Shape()
		poly, ok := shape.(*shp.Polygon)
		if !ok || poly == nil {
			zap.L().Warn("field: skipping non polygon record", zap.Int("record", n))
			continue
		}

		id := strings.TrimSpace(strings.TrimRight(reader.Attribute(idIdx), "\x00"))
		fields = append(fields, Field{ID: id, Polygon: closePolygon(shapeToPolygon(poly))})
	}

	return fields, nil
}

func shapeToPolygon(p *shp.Polygon) orb.Polygon {
	var polygon orb.Polygon
	for i := int32(0); i < p.NumParts; i++ {
		start := p.Parts[i]
		end := int32(len(p.Points))
		if i+1 < p.NumParts {
			end = p.Parts[i+1]
		}

		ring := make(orb.Ring, 0, end-start)
		for _, pt := range p.Points[start:end] {
			ring = append(ring, orb.Point{pt.X, pt.Y})
		}
		polygon = append(polygon, ring)
	}
	return polygon
}

func closePolygon(p orb.Polygon) orb.Polygon {
	out := make(orb.Polygon, 0, len(p))
	for _, ring := range p {
		if len(ring) > 0 && !ring.Closed() {
			ring = append(ring, ring[0])
		}
		out = append(out, ring)
	}
	return out
}

func propertyString(props geojson.Properties, key string) string {
	v, ok := props[key]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}
