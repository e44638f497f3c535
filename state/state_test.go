package state

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNew(t *testing.T) {
	assert := assert.New(t)

	x, err := New(3)
	assert.NotNil(x)
	assert.NoError(err)
	assert.Equal(3, x.Dim())
	assert.Len(x.Raw(), 12)

	x, err = New(0)
	assert.Nil(x)
	assert.Error(err)
}

func TestViewsShareBuffer(t *testing.T) {
	assert := assert.New(t)

	x, err := New(2)
	assert.NoError(err)

	x.Mean().SetVec(1, 4.0)
	x.Cov().Set(0, 1, 0.5)
	x.Cov().Set(1, 0, 0.5)

	raw := x.Raw()
	assert.Equal(4.0, raw[1])
	assert.Equal(4.0, x.At(1))
	// covariance is row-major after the mean
	assert.Equal(0.5, raw[2+1])
	assert.Equal(0.5, raw[2+2])

	x.Set(0, -1.0)
	assert.Equal(-1.0, x.Mean().AtVec(0))
}

func TestResetCov(t *testing.T) {
	assert := assert.New(t)

	x, err := New(2)
	assert.NoError(err)
	for i := range x.Raw() {
		x.Raw()[i] = float64(i + 1)
	}

	x.ResetCov()
	assert.Equal(1.0, x.At(0))
	assert.Equal(2.0, x.At(1))
	for _, v := range x.Raw()[2:] {
		assert.Equal(0.0, v)
	}
}

func TestResetInc(t *testing.T) {
	assert := assert.New(t)

	x, err := New(3)
	assert.NoError(err)
	for i := range x.Raw() {
		x.Raw()[i] = 1.0
	}

	x.ResetInc([]int{2})
	assert.Equal(1.0, x.At(0))
	assert.Equal(0.0, x.At(2))
	for i := 0; i < 3; i++ {
		assert.Equal(0.0, x.Cov().At(2, i))
		assert.Equal(0.0, x.Cov().At(i, 2))
	}
	assert.Equal(1.0, x.Cov().At(0, 1))
}

func TestCopyClone(t *testing.T) {
	assert := assert.New(t)

	x, _ := New(2)
	x.Set(0, 3.0)
	x.Cov().Set(1, 1, 2.0)

	c := x.Clone()
	assert.Equal(x.Raw(), c.Raw())
	c.Set(0, 1.0)
	assert.Equal(3.0, x.At(0))

	y, _ := New(2)
	assert.NoError(y.CopyFrom(x))
	assert.Equal(x.Raw(), y.Raw())

	z, _ := New(3)
	assert.Error(z.CopyFrom(x))
}

func TestWorkspaceViews(t *testing.T) {
	assert := assert.New(t)

	w, err := NewWorkspace(3, 4)
	assert.NotNil(w)
	assert.NoError(err)

	m, k := w.Dims()
	assert.Equal(3, m)
	assert.Equal(4, k)

	for _, kk := range []int{1, 2, 4} {
		r, c := w.St(kk).Dims()
		assert.Equal([]int{kk, kk}, []int{r, c})
		r, c = w.Ht(kk).Dims()
		assert.Equal([]int{3, kk}, []int{r, c})
		r, c = w.Kt(kk).Dims()
		assert.Equal([]int{3, kk}, []int{r, c})
		r, c = w.TmpKM(kk).Dims()
		assert.Equal([]int{kk, 3}, []int{r, c})
		assert.Equal(kk, w.PredError(kk).Len())

		eye := w.Eye(kk)
		for i := 0; i < kk; i++ {
			assert.Equal(1.0, eye.At(i, i))
		}
	}

	// views share the preallocated buffers
	w.St(2).Set(1, 1, 7.0)
	assert.Equal(7.0, w.St(4).At(1, 1))

	w, err = NewWorkspace(0, 1)
	assert.Nil(w)
	assert.Error(err)

	w, err = NewWorkspace(1, 0)
	assert.Nil(w)
	assert.Error(err)
}
