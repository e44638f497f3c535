package sim

import (
	"fmt"
	"image/color"
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"gonum.org/v1/plot/vg/draw"
)

// Series is a named series of points; points with NaN coordinates are skipped
type Series struct {
	// Name is legend name
	Name string
	// X are point abscissae
	X []float64
	// Y are point ordinates
	Y []float64
}

var styles = []struct {
	color color.Color
	shape draw.GlyphDrawer
}{
	{color.RGBA{G: 255, A: 128}, draw.CircleGlyph{}},
	{color.RGBA{R: 169, G: 169, B: 169, A: 255}, draw.CrossGlyph{}},
	{color.RGBA{R: 255, B: 128, A: 255}, draw.PyramidGlyph{}},
	{color.RGBA{B: 255, A: 255}, draw.SquareGlyph{}},
}

// NewPlot creates new scatter plot of the supplied series and returns it.
// It returns error if the plot fails to be created. This can be due to either of the following conditions:
// * no series is supplied
// * X and Y of any series differ in length or the series has no valid point
// * gonum plot fails to be created
func NewPlot(title string, series ...Series) (*plot.Plot, error) {
	if len(series) == 0 {
		return nil, fmt.Errorf("invalid data supplied")
	}

	p := plot.New()

	p.Title.Text = title
	p.X.Label.Text = "time"
	p.Y.Label.Text = "value"

	legend := plot.NewLegend()
	legend.Top = true
	p.Legend = legend

	for i, s := range series {
		pts, err := makePoints(s)
		if err != nil {
			return nil, err
		}

		scatter, err := plotter.NewScatter(pts)
		if err != nil {
			return nil, fmt.Errorf("failed to create scatter: %v", err)
		}

		style := styles[i%len(styles)]
		scatter.GlyphStyle.Color = style.color
		scatter.GlyphStyle.Shape = style.shape
		scatter.GlyphStyle.Radius = vg.Points(3)

		p.Add(scatter)
		p.Legend.Add(s.Name, scatter)
	}

	return p, nil
}

func makePoints(s Series) (plotter.XYs, error) {
	if len(s.X) != len(s.Y) {
		return nil, fmt.Errorf("invalid dimensions of series %s: %d != %d", s.Name, len(s.X), len(s.Y))
	}

	pts := make(plotter.XYs, 0, len(s.X))
	for i := range s.X {
		if math.IsNaN(s.X[i]) || math.IsNaN(s.Y[i]) {
			continue
		}
		pts = append(pts, plotter.XY{X: s.X[i], Y: s.Y[i]})
	}

	if len(pts) == 0 {
		return nil, fmt.Errorf("series %s has no valid points", s.Name)
	}

	return pts, nil
}
