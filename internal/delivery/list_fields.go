package delivery

import (
	"github.com/forest-guardian/field-indices-cli/internal/field"
)

type FieldInfo struct {
	ID        string
	AreaHa    float64
	Latitude  float64
	Longitude float64
}

// ListFields describes each field by area and centroid.
func ListFields(fields []field.Field) ([]FieldInfo, error) {
	infos := make([]FieldInfo, 0, len(fields))
	for _, f := range fields {
		lat, lon, err := f.Centroid()
		if err != nil {
			return nil, err
		}
		infos = append(infos, FieldInfo{
			ID:        f.ID,
			AreaHa:    f.AreaHectares(),
			Latitude:  lat,
			Longitude: lon,
		})
	}
	return infos, nil
}
