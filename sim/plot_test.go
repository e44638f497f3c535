package sim

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewPlot(t *testing.T) {
	assert := assert.New(t)

	x := []float64{1, 2, 3}
	obs := Series{Name: "observed", X: x, Y: []float64{1, math.NaN(), 3}}
	filt := Series{Name: "filtered", X: x, Y: []float64{1.1, 2.1, 2.9}}

	plt, err := NewPlot("cases", obs, filt)
	assert.NotNil(plt)
	assert.NoError(err)
	assert.Equal("cases", plt.Title.Text)

	plt, err = NewPlot("empty")
	assert.Nil(plt)
	assert.Error(err)

	plt, err = NewPlot("bad", Series{Name: "bad", X: x, Y: x[:2]})
	assert.Nil(plt)
	assert.Error(err)

	plt, err = NewPlot("nan", Series{Name: "nan", X: x, Y: []float64{math.NaN(), math.NaN(), math.NaN()}})
	assert.Nil(plt)
	assert.Error(err)
}

func TestMakePoints(t *testing.T) {
	assert := assert.New(t)

	pts, err := makePoints(Series{X: []float64{1, 2, 3}, Y: []float64{4, math.NaN(), 6}})
	assert.NoError(err)
	assert.Equal(2, pts.Len())
	x, y := pts.XY(1)
	assert.Equal(3.0, x)
	assert.Equal(6.0, y)
}
