package output

import (
	"image/color"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fogleman/gg"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
	"github.com/forest-guardian/field-indices-cli/internal/properties"
)

// Pixels of the composite are drawn as cellSize x cellSize squares.
const cellSize = 4

func normalize(value, min, max float64) float64 {
	if max == min {
		return 0
	}
	norm := (value - min) / (max - min)
	if norm < 0 {
		return 0
	}
	if norm > 1 {
		return 1
	}
	return norm
}

func valueToColor(norm float64) color.RGBA {
	var r, g, b uint8
	if norm <= 0.5 {
		// blue to green
		ratio := norm / 0.5
		r = 0
		g = uint8(255 * ratio)
		b = uint8(255 * (1 - ratio))
	} else {
		// green to red
		ratio := (norm - 0.5) / 0.5
		r = uint8(255 * ratio)
		g = uint8(255 * (1 - ratio))
		b = 0
	}
	return color.RGBA{R: r, G: g, B: b, A: 255}
}

// valueRange is the span mapped onto the colour ramp.
func valueRange(idx indices.Index, stat indices.Stat) (float64, float64) {
	switch {
	case stat == indices.Amplitude:
		return 0, 1
	case idx == indices.NDWI:
		return -1, 1
	default:
		return 0, 1
	}
}

func toRGBA(c properties.Color) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: 255}
}

// CreateIndexPreview renders one statistic of a year composite as a PNG
// with the field outline on top.
func CreateIndexPreview(path string, yc dataset.YearComposite, f field.Field, idx indices.Index, stat indices.Stat) error {
	if yc.Empty() {
		return eris.Errorf("output: %s has no scene in %d", yc.FieldID, yc.Year)
	}
	layer, ok := yc.Composite.Layers[idx]
	if !ok {
		return eris.Errorf("output: composite has no %s layer", idx)
	}
	values := layer.Get(stat)
	if values == nil {
		return eris.Errorf("output: unknown statistic %q", stat)
	}

	width, height := yc.Composite.Width, yc.Composite.Height
	dc := gg.NewContext(width*cellSize, height*cellSize)

	lo, hi := valueRange(idx, stat)
	for y := range height {
		for x := range width {
			v := values[y*width+x]
			if math.IsNaN(v) {
				dc.SetColor(toRGBA(properties.NoData))
			} else {
				dc.SetColor(valueToColor(normalize(v, lo, hi)))
			}
			dc.DrawRectangle(float64(x*cellSize), float64(y*cellSize), cellSize, cellSize)
			dc.Fill()
		}
	}

	if err := drawOutline(dc, f, yc.Grid.GeoTransform); err != nil {
		return err
	}
	if err := savePNG(dc, path); err != nil {
		return err
	}

	zap.L().Info("output: preview created",
		zap.String("path", path),
		zap.String("field", yc.FieldID),
		zap.Int("year", yc.Year),
		zap.String("index", string(idx)),
		zap.String("stat", string(stat)),
	)
	return nil
}

// Reflectance mapped to full brightness in true colour previews, the 0..3000
// digital number stretch of L2A products.
const trueColorMax = 0.3

// CreateTrueColorPreview renders the median red, green and blue bands as a
// PNG with the field outline on top.
func CreateTrueColorPreview(path string, tc dataset.TrueColor, f field.Field) error {
	width, height := tc.Grid.Width, tc.Grid.Height
	if width*height == 0 || len(tc.Red) != width*height || len(tc.Green) != width*height || len(tc.Blue) != width*height {
		return eris.Errorf("output: true colour composite of %s is incomplete", tc.FieldID)
	}

	dc := gg.NewContext(width*cellSize, height*cellSize)
	channel := func(v float64) uint8 {
		return uint8(math.Round(255 * normalize(v, 0, trueColorMax)))
	}
	for y := range height {
		for x := range width {
			i := y*width + x
			if math.IsNaN(tc.Red[i]) {
				dc.SetColor(toRGBA(properties.NoData))
			} else {
				dc.SetColor(color.RGBA{R: channel(tc.Red[i]), G: channel(tc.Green[i]), B: channel(tc.Blue[i]), A: 255})
			}
			dc.DrawRectangle(float64(x*cellSize), float64(y*cellSize), cellSize, cellSize)
			dc.Fill()
		}
	}

	if err := drawOutline(dc, f, tc.Grid.GeoTransform); err != nil {
		return err
	}
	if err := savePNG(dc, path); err != nil {
		return err
	}

	zap.L().Info("output: true colour preview created",
		zap.String("path", path),
		zap.String("field", tc.FieldID),
		zap.Int("scenes", tc.Scenes),
	)
	return nil
}

func drawOutline(dc *gg.Context, f field.Field, gt [6]float64) error {
	if gt[1] == 0 || gt[5] == 0 {
		return eris.New("output: composite has no geotransform")
	}
	dc.SetColor(toRGBA(properties.FieldOutline))
	dc.SetLineWidth(2)
	for _, ring := range f.Polygon {
		dc.NewSubPath()
		for i, p := range ring {
			px := (p.Lon() - gt[0]) / gt[1] * cellSize
			py := (p.Lat() - gt[3]) / gt[5] * cellSize
			if i == 0 {
				dc.MoveTo(px, py)
			} else {
				dc.LineTo(px, py)
			}
		}
		dc.ClosePath()
	}
	dc.Stroke()
	return nil
}

func savePNG(dc *gg.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), os.ModePerm); err != nil {
		return eris.Wrapf(err, "output: create %s", filepath.Dir(path))
	}
	if err := dc.SavePNG(path); err != nil {
		return eris.Wrapf(err, "output: save %s", path)
	}
	return nil
}

// TrueColorPath is where true colour previews are written by default.
func TrueColorPath(fieldID string, from time.Time) string {
	return properties.ResultPath("previews", fieldID, fieldID+"_"+from.Format("2006-01")+"_rgb.png")
}

// PreviewPath is where previews are written by default.
func PreviewPath(fieldID string, year int, idx indices.Index, stat indices.Stat) string {
	return properties.ResultPath("previews", fieldID,
		fieldID+"_"+strconv.Itoa(year)+"_"+string(idx)+"_"+string(stat)+".png")
}
