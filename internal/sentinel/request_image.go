package sentinel

import (
	"context"
	"errors"
	"math"
	"net/http"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rotisserie/eris"

	"github.com/forest-guardian/field-indices-cli/internal/retry"
)

const (
	processPath     = "/api/v1/process"
	maxPixels       = 2500
	metersPerDegree = 111_000.0
)

// BandOrder is the band order of the GeoTIFFs returned by RequestImage.
var BandOrder = []string{"B02", "B03", "B04", "B08", "SCL", "dataMask"}

const evalscript = `//VERSION=3
function setup() {
  return {
    input: [{
      bands: ["B02", "B03", "B04", "B08", "SCL", "dataMask"],
      units: ["REFLECTANCE", "REFLECTANCE", "REFLECTANCE", "REFLECTANCE", "DN", "DN"]
    }],
    output: {
      id: "default",
      bands: 6,
      sampleType: SampleType.FLOAT32
    }
  };
}

function evaluatePixel(sample) {
  return [sample.B02, sample.B03, sample.B04, sample.B08, sample.SCL, sample.dataMask];
}
`

// calculatePixels converts a span in degrees into a pixel count at the given
// resolution in metres, clamped to what the Process API accepts.
func calculatePixels(distance, resolution float64) int {
	pixels := int(math.Round(distance * (metersPerDegree / resolution)))
	if pixels < 1 {
		return 1
	}
	if pixels > maxPixels {
		return maxPixels
	}
	return pixels
}

// ImageSize returns width and height in pixels for a bounding box. Longitude
// spans shrink with the cosine of the latitude.
func ImageSize(bbox orb.Bound, resolution float64) (int, int) {
	lat := (bbox.Min.Lat() + bbox.Max.Lat()) / 2
	width := calculatePixels((bbox.Max.Lon()-bbox.Min.Lon())*math.Cos(lat*math.Pi/180), resolution)
	height := calculatePixels(bbox.Max.Lat()-bbox.Min.Lat(), resolution)
	return width, height
}

// RequestImage downloads a FLOAT32 GeoTIFF with BandOrder bands covering
// polygon for the 24 hours starting at day.
func (c *Client) RequestImage(ctx context.Context, polygon orb.Polygon, day time.Time) ([]byte, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	to := from.Add(24*time.Hour - time.Second)
	width, height := ImageSize(polygon.Bound(), c.resolution)

	dataFilter := map[string]any{
		"timeRange": map[string]string{
			"from": from.Format(time.RFC3339),
			"to":   to.Format(time.RFC3339),
		},
		"mosaickingOrder": "mostRecent",
	}
	if c.maxCloud > 0 && c.maxCloud < 100 {
		dataFilter["maxCloudCoverage"] = c.maxCloud
	}

	payload := map[string]any{
		"input": map[string]any{
			"bounds": map[string]any{
				"geometry": geojson.NewGeometry(polygon),
				"properties": map[string]string{
					"crs": "http://www.opengis.net/def/crs/OGC/1.3/CRS84",
				},
			},
			"data": []map[string]any{
				{
					"type":       c.collection,
					"dataFilter": dataFilter,
				},
			},
		},
		"output": map[string]any{
			"width":  width,
			"height": height,
			"responses": []map[string]any{
				{
					"identifier": "default",
					"format":     map[string]string{"type": "image/tiff"},
				},
			},
		},
		"evalscript": evalscript,
	}

	data, err := c.post(ctx, "process image", processPath, payload, "image/tiff")
	if err != nil {
		var httpErr *retry.HTTPError
		if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
			return nil, eris.Wrapf(ErrImageNotFound, "sentinel: %s", from.Format(time.DateOnly))
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, eris.Wrapf(ErrImageNotFound, "sentinel: empty image for %s", from.Format(time.DateOnly))
	}
	return data, nil
}
