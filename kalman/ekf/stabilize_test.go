package ekf

import (
	"math"
	"testing"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/matrix"
	"github.com/milosgajdos/go-ssm/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
)

// rotation returns 3D rotation matrix around z and then x axis
func rotation(a, b float64) *mat.Dense {
	rz := mat.NewDense(3, 3, []float64{
		math.Cos(a), -math.Sin(a), 0,
		math.Sin(a), math.Cos(a), 0,
		0, 0, 1,
	})
	rx := mat.NewDense(3, 3, []float64{
		1, 0, 0,
		0, math.Cos(b), -math.Sin(b),
		0, math.Sin(b), math.Cos(b),
	})
	r := &mat.Dense{}
	r.Mul(rx, rz)

	return r
}

func fromEigen(v *mat.Dense, vals []float64) *mat.Dense {
	d := mat.NewDiagDense(len(vals), vals)
	vd := &mat.Dense{}
	vd.Mul(v, d)
	c := &mat.Dense{}
	c.Mul(vd, v.T())
	matrix.Symmetrize(c)

	return c
}

func TestStabilizePSDNoop(t *testing.T) {
	assert := assert.New(t)

	ws, err := state.NewWorkspace(3, 1)
	require.NoError(t, err)

	c := fromEigen(rotation(0.3, 1.1), []float64{0.5, 2.0, 4.0})
	orig := mat.DenseCopyOf(c)

	status := Stabilize(c, ws, zap.NewNop())
	assert.False(status.Failed())
	assert.True(mat.Equal(orig, c))

	// zero covariance stays zero
	z := mat.NewDense(3, 3, nil)
	status = Stabilize(z, ws, zap.NewNop())
	assert.False(status.Failed())
	assert.True(mat.Equal(mat.NewDense(3, 3, nil), z))
}

func TestStabilizeRandom(t *testing.T) {
	assert := assert.New(t)
	tol := 1e-10

	ws, err := state.NewWorkspace(4, 1)
	require.NoError(t, err)

	rnd := rand.New(rand.NewSource(42))
	for n := 0; n < 50; n++ {
		data := make([]float64, 16)
		for i := range data {
			data[i] = rnd.NormFloat64()
		}
		c := mat.NewDense(4, 4, data)

		status := Stabilize(c, ws, zap.NewNop())
		assert.False(status.Failed())
		assert.True(matrix.IsSymmetric(c))

		vals, err := matrix.EigenValues(c)
		assert.NoError(err)
		for _, v := range vals {
			assert.GreaterOrEqual(v, -tol)
		}
	}
}

func TestStabilizeOneNegativeEigenvalue(t *testing.T) {
	assert := assert.New(t)
	tol := 1e-12

	ws, err := state.NewWorkspace(3, 1)
	require.NoError(t, err)

	v := rotation(0.7, -0.4)
	c := fromEigen(v, []float64{3.0, -0.5, 1.0})

	status := Stabilize(c, ws, zap.NewNop())
	assert.False(status.Failed())
	assert.True(matrix.IsSymmetric(c))

	vals, err := matrix.EigenValues(c)
	assert.NoError(err)
	assert.InDeltaSlice([]float64{0.0, 1.0, 3.0}, vals, tol)

	// eigenvectors are preserved: c * v_i = lambda_i * v_i
	want := []float64{3.0, 0.0, 1.0}
	for i := 0; i < 3; i++ {
		vi := v.ColView(i)
		cv := &mat.VecDense{}
		cv.MulVec(c, vi)
		for j := 0; j < 3; j++ {
			assert.InDelta(want[i]*vi.AtVec(j), cv.AtVec(j), tol)
		}
	}
}

func TestStabilizeSymmetrizes(t *testing.T) {
	assert := assert.New(t)

	ws, err := state.NewWorkspace(2, 1)
	require.NoError(t, err)

	c := mat.NewDense(2, 2, []float64{2.0, 0.4, 0.2, 1.0})
	status := Stabilize(c, ws, zap.NewNop())
	assert.False(status.Failed())
	assert.Equal(0.3, c.At(0, 1))
	assert.Equal(0.3, c.At(1, 0))
	assert.Equal(2.0, c.At(0, 0))
}

func TestStabilizeDimensionMismatch(t *testing.T) {
	assert := assert.New(t)

	ws, err := state.NewWorkspace(2, 1)
	require.NoError(t, err)

	status := Stabilize(mat.NewDense(3, 3, nil), ws, zap.NewNop())
	assert.True(status.Has(ssm.ErrKalman))

	f := newFilter(t, model2, 1, nil)
	x, _ := state.New(3)
	assert.True(f.Stabilize(x).Has(ssm.ErrKalman))
}
