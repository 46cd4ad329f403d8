package indices

import (
	"math"
	"strings"

	"github.com/rotisserie/eris"
)

var ErrNoImages = eris.New("indices: no images to composite")

// Stat names a per-pixel temporal statistic.
type Stat string

const (
	Mean      Stat = "mean"
	Max       Stat = "max"
	Min       Stat = "min"
	Amplitude Stat = "amp"
)

var Stats = []Stat{Mean, Max, Min, Amplitude}

func ParseStat(s string) (Stat, error) {
	st := Stat(strings.ToLower(strings.TrimSpace(s)))
	if st == "amplitude" {
		return Amplitude, nil
	}
	for _, known := range Stats {
		if st == known {
			return st, nil
		}
	}
	return "", eris.Errorf("indices: unknown statistic %q", s)
}

// Layer is the temporal reduction of one index over a stack of images.
type Layer struct {
	Mean, Max, Min, Amplitude []float64
	// Observations counts non masked values per pixel.
	Observations []int
}

func (l Layer) Get(stat Stat) []float64 {
	switch stat {
	case Mean:
		return l.Mean
	case Max:
		return l.Max
	case Min:
		return l.Min
	case Amplitude:
		return l.Amplitude
	}
	return nil
}

// Composite holds per-pixel mean/max/min/amplitude of every index.
type Composite struct {
	Width, Height int
	Images        int
	Layers        map[Index]Layer
}

// NewComposite reduces a stack of images sharing the same grid. Pixels
// never observed for an index stay NaN in that index's layer.
func NewComposite(images []Image) (Composite, error) {
	if len(images) == 0 {
		return Composite{}, ErrNoImages
	}

	acc := NewAccumulator(images[0].Width, images[0].Height)
	for i, img := range images {
		if err := acc.Add(img); err != nil {
			return Composite{}, eris.Wrapf(err, "indices: image %d", i)
		}
	}
	return acc.Composite()
}

type running struct {
	sum, max, min []float64
	count         []int
}

// Accumulator builds a Composite one image at a time. Adding the same
// images in the same order always gives the same result.
type Accumulator struct {
	width, height int
	images        int
	stats         map[Index]*running
}

func NewAccumulator(width, height int) *Accumulator {
	n := width * height
	acc := &Accumulator{width: width, height: height, stats: make(map[Index]*running, len(All))}
	for _, idx := range All {
		r := &running{
			sum:   make([]float64, n),
			max:   make([]float64, n),
			min:   make([]float64, n),
			count: make([]int, n),
		}
		for i := range n {
			r.max[i] = math.Inf(-1)
			r.min[i] = math.Inf(1)
		}
		acc.stats[idx] = r
	}
	return acc
}

func (a *Accumulator) Images() int {
	return a.images
}

func (a *Accumulator) Add(img Image) error {
	if img.Width != a.width || img.Height != a.height {
		return eris.Errorf("indices: image is %dx%d, want %dx%d", img.Width, img.Height, a.width, a.height)
	}

	for _, idx := range All {
		values := img.Values[idx]
		if len(values) != a.width*a.height {
			return eris.Errorf("indices: %s has %d values, want %d", idx, len(values), a.width*a.height)
		}
		r := a.stats[idx]
		for i, v := range values {
			if math.IsNaN(v) {
				continue
			}
			r.sum[i] += v
			r.count[i]++
			r.max[i] = math.Max(r.max[i], v)
			r.min[i] = math.Min(r.min[i], v)
		}
	}
	a.images++
	return nil
}

func (a *Accumulator) Composite() (Composite, error) {
	if a.images == 0 {
		return Composite{}, ErrNoImages
	}

	n := a.width * a.height
	c := Composite{Width: a.width, Height: a.height, Images: a.images, Layers: make(map[Index]Layer, len(All))}
	for _, idx := range All {
		r := a.stats[idx]
		layer := Layer{
			Mean:         make([]float64, n),
			Max:          make([]float64, n),
			Min:          make([]float64, n),
			Amplitude:    make([]float64, n),
			Observations: append([]int(nil), r.count...),
		}
		for i := range n {
			if r.count[i] == 0 {
				layer.Mean[i], layer.Max[i], layer.Min[i], layer.Amplitude[i] = math.NaN(), math.NaN(), math.NaN(), math.NaN()
				continue
			}
			layer.Mean[i] = r.sum[i] / float64(r.count[i])
			layer.Max[i] = r.max[i]
			layer.Min[i] = r.min[i]
			layer.Amplitude[i] = r.max[i] - r.min[i]
		}
		c.Layers[idx] = layer
	}
	return c, nil
}

// RegionMean averages the non NaN values flagged inside. The mean is NaN
// when nothing qualifies.
func RegionMean(values []float64, inside []bool) (float64, int) {
	sum, n := 0.0, 0
	for i, v := range values {
		if i >= len(inside) || !inside[i] || math.IsNaN(v) {
			continue
		}
		sum += v
		n++
	}
	if n == 0 {
		return math.NaN(), 0
	}
	return sum / float64(n), n
}

// Summary is the region mean of each temporal statistic of one index.
type Summary struct {
	Mean      float64
	Max       float64
	Min       float64
	Amplitude float64
	Pixels    int
}

// EmptySummary is used for years without any valid observation.
func EmptySummary() Summary {
	nan := math.NaN()
	return Summary{Mean: nan, Max: nan, Min: nan, Amplitude: nan}
}

func (s Summary) Get(stat Stat) float64 {
	switch stat {
	case Mean:
		return s.Mean
	case Max:
		return s.Max
	case Min:
		return s.Min
	case Amplitude:
		return s.Amplitude
	}
	return math.NaN()
}

// Summarize reduces every layer of the composite over the pixels flagged
// inside the region.
func (c Composite) Summarize(inside []bool) map[Index]Summary {
	out := make(map[Index]Summary, len(c.Layers))
	for _, idx := range All {
		layer, ok := c.Layers[idx]
		if !ok {
			out[idx] = EmptySummary()
			continue
		}
		var s Summary
		s.Mean, s.Pixels = RegionMean(layer.Mean, inside)
		s.Max, _ = RegionMean(layer.Max, inside)
		s.Min, _ = RegionMean(layer.Min, inside)
		s.Amplitude, _ = RegionMean(layer.Amplitude, inside)
		out[idx] = s
	}
	return out
}
