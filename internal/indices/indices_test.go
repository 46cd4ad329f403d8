package indices

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func uniform(n int, v float64) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func scene(w, h int, blue, green, red, nir float64) Bands {
	n := w * h
	return Bands{
		Width:        w,
		Height:       h,
		GeoTransform: [6]float64{-54.4, 0.0001, 0, -21.5, 0, -0.0001},
		Blue:         uniform(n, blue),
		Green:        uniform(n, green),
		Red:          uniform(n, red),
		NIR:          uniform(n, nir),
		SCL:          uniform(n, 4),
		DataMask:     uniform(n, 1),
	}
}

func TestCloudMasked(t *testing.T) {
	for _, scl := range []float64{3, 8, 9, 10, 11} {
		assert.True(t, CloudMasked(scl), "scl %v", scl)
	}
	for _, scl := range []float64{0, 1, 2, 4, 5, 6, 7} {
		assert.False(t, CloudMasked(scl), "scl %v", scl)
	}
	assert.True(t, CloudMasked(math.NaN()))
}

func TestNormalizedDifferenceIndices(t *testing.T) {
	assert.InDelta(t, 0.6, NDVIValue(0.4, 0.1), 1e-12)
	assert.InDelta(t, -0.6, NDWIValue(0.1, 0.4), 1e-12)
	assert.True(t, math.IsNaN(NDVIValue(0, 0)))
	assert.True(t, math.IsNaN(NDWIValue(math.NaN(), 0.2)))

	for _, pair := range [][2]float64{{0, 1}, {1, 0}, {0.3, 0.3}, {0.05, 0.9}} {
		v := NDVIValue(pair[0], pair[1])
		assert.GreaterOrEqual(t, v, -1.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestEVI(t *testing.T) {
	// 2.5 * (0.4-0.1) / (0.4 + 0.6 - 0.375 + 1)
	assert.InDelta(t, 2.5*0.3/1.625, EVIValue(0.4, 0.1, 0.05), 1e-12)

	// nir + 6 red - 7.5 blue + 1 = 0
	assert.True(t, math.IsNaN(EVIValue(0, 0, 1.0/7.5)))
}

func TestComputeMasksInvalidPixels(t *testing.T) {
	b := scene(2, 2, 0.05, 0.08, 0.1, 0.4)
	b.SCL[1] = 9
	b.DataMask[2] = 0

	img, err := Compute(b)
	require.NoError(t, err)

	ndvi := img.Values[NDVI]
	assert.InDelta(t, 0.6, ndvi[0], 1e-12)
	assert.True(t, math.IsNaN(ndvi[1]))
	assert.True(t, math.IsNaN(ndvi[2]))
	assert.InDelta(t, 0.6, ndvi[3], 1e-12)
	assert.True(t, math.IsNaN(img.Values[EVI][1]))
	assert.True(t, math.IsNaN(img.Values[NDWI][2]))
	assert.Equal(t, 2, b.ValidCount())
}

func TestComputeRejectsShortBand(t *testing.T) {
	b := scene(2, 2, 0.05, 0.08, 0.1, 0.4)
	b.NIR = b.NIR[:3]
	_, err := Compute(b)
	assert.Error(t, err)
}

func TestPixelCenter(t *testing.T) {
	b := scene(2, 2, 0, 0, 0, 0)
	lon, lat := b.PixelCenter(1, 0)
	assert.InDelta(t, -54.4+0.00015, lon, 1e-12)
	assert.InDelta(t, -21.5-0.00005, lat, 1e-12)
}

func TestParse(t *testing.T) {
	idx, err := ParseIndex(" EVI ")
	require.NoError(t, err)
	assert.Equal(t, EVI, idx)
	_, err = ParseIndex("savi")
	assert.Error(t, err)

	st, err := ParseStat("amplitude")
	require.NoError(t, err)
	assert.Equal(t, Amplitude, st)
	_, err = ParseStat("median")
	assert.Error(t, err)
}
