package field

import (
	"github.com/paulmach/orb"
	"github.com/rotisserie/eris"
	"github.com/twpayne/go-geom"
	"github.com/twpayne/go-geom/encoding/ewkb"
)

// EncodeWKB converts the field polygon to little-endian EWKB with SRID 4326.
func EncodeWKB(f Field) ([]byte, error) {
	poly := geom.NewPolygon(geom.XY).SetSRID(4326)
	for _, ring := range f.Polygon {
		lr := geom.NewLinearRingFlat(geom.XY, flatCoords(ring))
		if err := poly.Push(lr); err != nil {
			return nil, eris.Wrapf(err, "field %s: build ring", f.ID)
		}
	}

	data, err := ewkb.Marshal(poly, ewkb.NDR)
	if err != nil {
		return nil, eris.Wrapf(err, "field %s: encode WKB", f.ID)
	}
	return data, nil
}

// DecodeWKB is the inverse of EncodeWKB.
func DecodeWKB(id string, data []byte) (Field, error) {
	g, err := ewkb.Unmarshal(data)
	if err != nil {
		return Field{}, eris.Wrapf(err, "field %s: decode WKB", id)
	}
	poly, ok := g.(*geom.Polygon)
	if !ok {
		return Field{}, eris.Errorf("field %s: WKB holds %T, want polygon", id, g)
	}

	var polygon orb.Polygon
	for i := 0; i < poly.NumLinearRings(); i++ {
		lr := poly.LinearRing(i)
		ring := make(orb.Ring, 0, lr.NumCoords())
		for _, c := range lr.Coords() {
			ring = append(ring, orb.Point{c.X(), c.Y()})
		}
		polygon = append(polygon, ring)
	}
	return Field{ID: id, Polygon: polygon}, nil
}

func flatCoords(ring orb.Ring) []float64 {
	flat := make([]float64, 0, len(ring)*2)
	for _, p := range ring {
		flat = append(flat, p[0], p[1])
	}
	return flat
}
