package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

func TestWithCovN(t *testing.T) {
	assert := assert.New(t)

	cov := mat.NewSymDense(2, []float64{1.0, 0.0, 0.0, 1.0})
	covR := cov.SymmetricDim()

	// n must be positive
	res, err := WithCovN(cov, -3, 1)
	assert.Error(err)
	assert.Nil(res)

	res, err = WithCovN(cov, 2, 1)
	assert.NoError(err)
	r, c := res.Dims()
	assert.Equal(covR, r)
	assert.Equal(2, c)

	// same seed draws the same samples
	again, err := WithCovN(cov, 2, 1)
	assert.NoError(err)
	assert.True(mat.Equal(res, again))

	other, err := WithCovN(cov, 2, 2)
	assert.NoError(err)
	assert.False(mat.Equal(res, other))
}

func TestWithCovNMoments(t *testing.T) {
	assert := assert.New(t)
	n := 20000

	cov := mat.NewSymDense(2, []float64{4.0, 1.2, 1.2, 1.0})
	res, err := WithCovN(cov, n, 42)
	assert.NoError(err)

	emp := mat.NewSymDense(2, nil)
	stat.CovarianceMatrix(emp, res.T(), nil)
	for i := 0; i < 2; i++ {
		for j := 0; j < 2; j++ {
			assert.InDelta(cov.At(i, j), emp.At(i, j), 0.1)
		}
	}

	// singular covariance keeps the samples on its range
	sing := mat.NewSymDense(2, []float64{1.0, 1.0, 1.0, 1.0})
	res, err = WithCovN(sing, 10, 3)
	assert.NoError(err)
	for i := 0; i < 10; i++ {
		assert.InDelta(res.At(0, i), res.At(1, i), 1e-9)
	}

	// zero covariance draws zeros
	res, err = WithCovN(mat.NewSymDense(2, nil), 3, 3)
	assert.NoError(err)
	assert.True(mat.Equal(mat.NewDense(2, 3, nil), res))
}
