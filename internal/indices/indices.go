// Package indices computes spectral indices from Sentinel-2 L2A bands.
package indices

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

type Index string

const (
	NDVI Index = "ndvi"
	EVI  Index = "evi"
	NDWI Index = "ndwi"
)

// All lists the indices in export order.
var All = []Index{NDVI, EVI, NDWI}

func ParseIndex(s string) (Index, error) {
	idx := Index(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range All {
		if idx == known {
			return idx, nil
		}
	}
	return "", eris.Errorf("indices: unknown index %q", s)
}

// Scene classification values excluded from every index:
// cloud shadow, cloud medium and high probability, thin cirrus, snow/ice.
var cloudClasses = map[int]struct{}{3: {}, 8: {}, 9: {}, 10: {}, 11: {}}

// CloudMasked reports whether an SCL value removes the pixel.
func CloudMasked(scl float64) bool {
	if math.IsNaN(scl) {
		return true
	}
	_, ok := cloudClasses[int(math.Round(scl))]
	return ok
}

// Bands holds one scene clipped to a field's bounding box. Slices are row
// major with Width*Height entries. Reflectances are in 0..1.
type Bands struct {
	Width, Height int
	// GDAL geotransform in EPSG:4326.
	GeoTransform [6]float64

	Blue     []float64 // B02
	Green    []float64 // B03
	Red      []float64 // B04
	NIR      []float64 // B08
	SCL      []float64
	DataMask []float64
}

func (b Bands) Len() int {
	return b.Width * b.Height
}

func (b Bands) Check() error {
	if b.Width <= 0 || b.Height <= 0 {
		return eris.Errorf("indices: invalid grid %dx%d", b.Width, b.Height)
	}
	n := b.Len()
	for name, band := range map[string][]float64{
		"B02": b.Blue, "B03": b.Green, "B04": b.Red, "B08": b.NIR, "SCL": b.SCL, "dataMask": b.DataMask,
	} {
		if len(band) != n {
			return eris.Errorf("indices: band %s has %d values, want %d", name, len(band), n)
		}
	}
	return nil
}

// PixelCenter returns lon/lat of the centre of pixel (x, y).
func (b Bands) PixelCenter(x, y int) (float64, float64) {
	gt := b.GeoTransform
	fx, fy := float64(x)+0.5, float64(y)+0.5
	lon := gt[0] + gt[1]*fx + gt[2]*fy
	lat := gt[3] + gt[4]*fx + gt[5]*fy
	return lon, lat
}

// Valid reports whether pixel i has data and is not cloud masked.
func (b Bands) Valid(i int) bool {
	return b.DataMask[i] != 0 && !CloudMasked(b.SCL[i])
}

// ValidCount is the number of valid pixels in the scene.
func (b Bands) ValidCount() int {
	count := 0
	for i := range b.Len() {
		if b.Valid(i) {
			count++
		}
	}
	return count
}

func safeDivide(a, b float64) float64 {
	if b == 0 || math.IsNaN(a) || math.IsNaN(b) {
		return math.NaN()
	}
	return a / b
}

func normalizedDifference(a, b float64) float64 {
	return safeDivide(a-b, a+b)
}

func NDVIValue(nir, red float64) float64 {
	return normalizedDifference(nir, red)
}

func EVIValue(nir, red, blue float64) float64 {
	return 2.5 * safeDivide(nir-red, nir+6*red-7.5*blue+1)
}

// NDWIValue is the McFeeters water index, green against near infrared.
func NDWIValue(green, nir float64) float64 {
	return normalizedDifference(green, nir)
}

// Image holds per-pixel index values of one scene. Masked pixels are NaN.
type Image struct {
	Width, Height int
	Values        map[Index][]float64
}

// Compute derives every index for every valid pixel.
func Compute(b Bands) (Image, error) {
	if err := b.Check(); err != nil {
		return Image{}, err
	}

	n := b.Len()
	img := Image{Width: b.Width, Height: b.Height, Values: make(map[Index][]float64, len(All))}
	for _, idx := range All {
		img.Values[idx] = make([]float64, n)
	}

	for i := range n {
		if !b.Valid(i) {
			for _, idx := range All {
				img.Values[idx][i] = math.NaN()
			}
			continue
		}
		img.Values[NDVI][i] = NDVIValue(b.NIR[i], b.Red[i])
		img.Values[EVI][i] = EVIValue(b.NIR[i], b.Red[i], b.Blue[i])
		img.Values[NDWI][i] = NDWIValue(b.Green[i], b.NIR[i])
	}
	return img, nil
}
