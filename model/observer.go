package model

import (
	"fmt"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/state"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/mat"
)

// Differentiable is an observation channel with analytic gradient of its mean
type Differentiable interface {
	ssm.Channel
	// Gradient writes the derivatives of the channel mean with respect to the state into g
	Gradient(g []float64, x *state.X, p []float64, t float64)
}

// FDObserver builds observation Jacobians column by column from the row channels.
// Differentiable channels provide their gradients analytically, the gradients
// of the remaining channels are approximated by central finite differences.
type FDObserver struct {
	// m is state dimension
	m int
	// x is scratch state the channel means are evaluated at
	x *state.X
	// grad is channel gradient
	grad []float64
	// point is finite difference evaluation point
	point []float64
	// settings are finite difference settings
	settings *fd.Settings
}

// NewFDObserver creates new FDObserver for m dimensional state and returns it.
// It returns error if m is not positive.
func NewFDObserver(m int) (*FDObserver, error) {
	x, err := state.New(m)
	if err != nil {
		return nil, err
	}

	return &FDObserver{
		m:     m,
		x:     x,
		grad:  make([]float64, m),
		point: make([]float64, m),
		settings: &fd.Settings{
			Formula:    fd.Central,
			Concurrent: false,
		},
	}, nil
}

// Jacobian fills m x k matrix h with the gradients of the row channel means at x.
// It returns ErrKalman if the dimensions do not match or any derivative is not finite.
func (o *FDObserver) Jacobian(h *mat.Dense, x *state.X, row *ssm.Row, t float64, p []float64) ssm.Status {
	r, c := h.Dims()
	if x.Dim() != o.m || r != o.m || c != len(row.Observed) {
		return ssm.ErrKalman
	}

	fdReady := false
	for j, ch := range row.Observed {
		if d, ok := ch.(Differentiable); ok {
			for i := range o.grad {
				o.grad[i] = 0
			}
			d.Gradient(o.grad, x, p, t)
		} else {
			if !fdReady {
				if err := o.x.CopyFrom(x); err != nil {
					return ssm.ErrKalman
				}
				copy(o.point, x.Raw()[:o.m])
				fdReady = true
			}
			fd.Gradient(o.grad, func(v []float64) float64 {
				copy(o.x.Raw()[:o.m], v)
				return ch.Mean(o.x, p, t)
			}, o.point, o.settings)
		}

		for i, v := range o.grad {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return ssm.ErrKalman
			}
			h.Set(i, j, v)
		}
	}

	return ssm.Success
}

// String implements the Stringer interface.
func (o *FDObserver) String() string {
	return fmt.Sprintf("FDObserver{m=%d}", o.m)
}
