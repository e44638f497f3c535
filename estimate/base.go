package estimate

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/milosgajdos/go-ssm/matrix"
	"github.com/milosgajdos/go-ssm/state"
	"gonum.org/v1/gonum/mat"
)

// Base is filter state estimate at a given time
type Base struct {
	// t is estimate time
	t float64
	// val is estimated value
	val *mat.VecDense
	// cov is estimated covariance
	cov *mat.SymDense
}

// NewBase returns base estimate at time t given val with zero covariance
func NewBase(t float64, val mat.Vector) (*Base, error) {
	if val == nil || val.Len() == 0 {
		return nil, fmt.Errorf("invalid estimate value: %v", val)
	}

	v := &mat.VecDense{}
	v.CloneFromVec(val)

	return &Base{
		t:   t,
		val: v,
		cov: mat.NewSymDense(v.Len(), nil),
	}, nil
}

// FromState returns estimate at time t given by the mean and covariance of x.
// The covariance of x is expected to be symmetric: its upper triangle is used.
func FromState(t float64, x *state.X) *Base {
	v := &mat.VecDense{}
	v.CloneFromVec(x.Mean())

	return &Base{
		t:   t,
		val: v,
		cov: matrix.SymCopy(x.Cov()),
	}
}

// Time returns estimate time
func (b *Base) Time() float64 {
	return b.t
}

// Val returns estimated value
func (b *Base) Val() mat.Vector {
	v := &mat.VecDense{}
	v.CloneFromVec(b.val)

	return v
}

// Cov returns covariance estimate
func (b *Base) Cov() mat.Symmetric {
	cov := mat.NewSymDense(b.cov.SymmetricDim(), nil)
	cov.CopySym(b.cov)

	return cov
}

// SD returns standard deviations of the estimate components
func (b *Base) SD() []float64 {
	n := b.cov.SymmetricDim()
	sd := make([]float64, n)
	for i := range sd {
		sd[i] = math.Sqrt(math.Max(b.cov.At(i, i), 0))
	}

	return sd
}

type baseJSON struct {
	Time float64   `json:"t"`
	Val  []float64 `json:"val"`
	SD   []float64 `json:"sd"`
}

// MarshalJSON implements json.Marshaler
func (b *Base) MarshalJSON() ([]byte, error) {
	return json.Marshal(baseJSON{
		Time: b.t,
		Val:  mat.Col(nil, 0, b.val),
		SD:   b.SD(),
	})
}

// String implements the Stringer interface.
func (b *Base) String() string {
	return fmt.Sprintf("Base{\nT=%v\nVal=%v\nCov=%v\n}", b.t, mat.Formatted(b.val.T(), mat.Squeeze()), mat.Formatted(b.cov, mat.Prefix("    "), mat.Squeeze()))
}
