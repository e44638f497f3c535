package state

import (
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// X is the augmented filter state: a single buffer holding the state mean
// of dimension m followed by the m x m covariance matrix in row-major order.
type X struct {
	// m is the state dimension
	m int
	// buf holds mean and covariance
	buf []float64
	// mean is a view of the mean part of buf
	mean *mat.VecDense
	// cov is a view of the covariance part of buf
	cov *mat.Dense
}

// New creates new augmented state of dimension m with zero mean and covariance.
// It returns error if m is not positive.
func New(m int) (*X, error) {
	if m <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", m)
	}

	buf := make([]float64, m+m*m)

	return &X{
		m:    m,
		buf:  buf,
		mean: mat.NewVecDense(m, buf[:m]),
		cov:  mat.NewDense(m, m, buf[m:]),
	}, nil
}

// Dim returns the state dimension
func (x *X) Dim() int {
	return x.m
}

// Mean returns the state mean. The returned vector shares the state buffer.
func (x *X) Mean() *mat.VecDense {
	return x.mean
}

// Cov returns the state covariance. The returned matrix shares the state buffer.
func (x *X) Cov() *mat.Dense {
	return x.cov
}

// Raw returns the underlying buffer: mean followed by covariance
func (x *X) Raw() []float64 {
	return x.buf
}

// At returns i-th component of the state mean
func (x *X) At(i int) float64 {
	return x.buf[i]
}

// Set sets i-th component of the state mean to v
func (x *X) Set(i int, v float64) {
	x.buf[i] = v
}

// ResetCov sets the covariance to zero
func (x *X) ResetCov() {
	cov := x.buf[x.m:]
	for i := range cov {
		cov[i] = 0
	}
}

// ResetInc restarts the incidence accumulators in idx: their mean, and the
// corresponding covariance rows and columns, are set to zero.
func (x *X) ResetInc(idx []int) {
	for _, i := range idx {
		x.buf[i] = 0
		for j := 0; j < x.m; j++ {
			x.cov.Set(i, j, 0)
			x.cov.Set(j, i, 0)
		}
	}
}

// CopyFrom copies src into x.
// It returns error if the dimensions of the states differ.
func (x *X) CopyFrom(src *X) error {
	if src.m != x.m {
		return fmt.Errorf("invalid state dimension: %d != %d", src.m, x.m)
	}
	copy(x.buf, src.buf)

	return nil
}

// Clone returns a deep copy of x
func (x *X) Clone() *X {
	c, _ := New(x.m)
	copy(c.buf, x.buf)

	return c
}

// String implements the Stringer interface.
func (x *X) String() string {
	return fmt.Sprintf("X{\nMean=%v\nCov=%v\n}", mat.Formatted(x.mean.T(), mat.Squeeze()), mat.Formatted(x.cov, mat.Prefix("    "), mat.Squeeze()))
}
