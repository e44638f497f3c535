package model

import (
	"fmt"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/predict"
	"github.com/milosgajdos/go-ssm/state"
	"gonum.org/v1/gonum/mat"
)

// Linear is a linear continuous-time stochastic system observed through
// linear channels with constant observation noise:
//
//	dx = A*x dt + dW, cov(dW) = Q dt
//	y_j = C_j*x + v_j, var(v_j) = R_j
//
// The parameters of Linear are the initial state mean.
type Linear struct {
	// A is internal state matrix
	A *mat.Dense
	// Q is diffusion matrix
	Q *mat.Dense
	// C is output state matrix: one row per channel
	C *mat.Dense
	// R holds channel observation variances
	R []float64
	// ode propagates the state
	ode *predict.ODE
	// obs linearizes the channels
	obs *FDObserver
	// channels are observation channels
	channels []ssm.Channel
}

// NewLinear creates new linear model and returns it.
// If c is nil, the default predictor configuration is used.
// It returns error if the supplied matrices have mismatched dimensions.
func NewLinear(A, Q, C *mat.Dense, R []float64, c *predict.Config) (*Linear, error) {
	if A == nil || Q == nil || C == nil {
		return nil, fmt.Errorf("system, diffusion and output matrices must be defined")
	}

	ra, ca := A.Dims()
	if ra != ca {
		return nil, fmt.Errorf("invalid system matrix dimensions: %d x %d", ra, ca)
	}

	if rq, cq := Q.Dims(); rq != ra || cq != ra {
		return nil, fmt.Errorf("invalid diffusion matrix dimensions: %d x %d", rq, cq)
	}

	rc, cc := C.Dims()
	if cc != ra {
		return nil, fmt.Errorf("invalid output matrix dimensions: %d x %d", rc, cc)
	}

	if len(R) != rc {
		return nil, fmt.Errorf("invalid number of observation variances: %d, expected %d", len(R), rc)
	}

	l := &Linear{
		A: mat.DenseCopyOf(A),
		Q: mat.DenseCopyOf(Q),
		C: mat.DenseCopyOf(C),
		R: append([]float64(nil), R...),
	}

	ode, err := predict.NewODE(l, ra, c)
	if err != nil {
		return nil, err
	}
	l.ode = ode

	obs, err := NewFDObserver(ra)
	if err != nil {
		return nil, err
	}
	l.obs = obs

	l.channels = make([]ssm.Channel, rc)
	for j := 0; j < rc; j++ {
		l.channels[j] = &linearChannel{c: mat.Row(nil, j, l.C), r: l.R[j]}
	}

	return l, nil
}

// Dims returns model state partition
func (l *Linear) Dims() ssm.Dims {
	n, _ := l.A.Dims()
	return ssm.Dims{SV: n}
}

// Channels returns observation channels in the order of the rows of C
func (l *Linear) Channels() []ssm.Channel {
	return l.channels
}

// Names returns channel names: j-th channel is named yj
func (l *Linear) Names() []string {
	names := make([]string, len(l.channels))
	for j := range names {
		names[j] = fmt.Sprintf("y%d", j)
	}

	return names
}

// Channel returns observation channel with the given name.
// It returns error if no such channel exists.
func (l *Linear) Channel(name string) (ssm.Channel, error) {
	for j, n := range l.Names() {
		if n == name {
			return l.channels[j], nil
		}
	}

	return nil, fmt.Errorf("unknown channel: %s", name)
}

// ResetIndices returns nil: Linear has no incidence accumulators
func (l *Linear) ResetIndices() []int {
	return nil
}

// Drift implements predict.Dynamics
func (l *Linear) Drift(dx, x, p []float64, t float64) {
	mat.NewVecDense(len(dx), dx).MulVec(l.A, mat.NewVecDense(len(x), x))
}

// Diffusion implements predict.Dynamics
func (l *Linear) Diffusion(q *mat.Dense, x, p []float64, t float64) {
	q.Copy(l.Q)
}

// DriftJacobian implements predict.Jacobian
func (l *Linear) DriftJacobian(f *mat.Dense, x, p []float64, t float64) {
	f.Copy(l.A)
}

// Predict propagates x from t0 to t1
func (l *Linear) Predict(x *state.X, t0, t1 float64, p []float64) ssm.Status {
	return l.ode.Predict(x, t0, t1, p)
}

// Jacobian computes observation Jacobian of the row channels
func (l *Linear) Jacobian(h *mat.Dense, x *state.X, row *ssm.Row, t float64, p []float64) ssm.Status {
	return l.obs.Jacobian(h, x, row, t, p)
}

// Constrain is a no-op: linear states are unconstrained
func (l *Linear) Constrain(x *state.X, p []float64, t float64) ssm.Status {
	return ssm.Success
}

// Validate checks p holds a finite initial state
func (l *Linear) Validate(p []float64) ssm.Status {
	n, _ := l.A.Dims()
	if len(p) != n {
		return ssm.ErrIC
	}

	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ssm.ErrIC
		}
	}

	return ssm.Success
}

// Init sets the state mean to p
func (l *Linear) Init(x *state.X, p []float64) {
	copy(x.Raw()[:x.Dim()], p)
}

// linearChannel observes c'x with constant variance r
type linearChannel struct {
	c []float64
	r float64
}

func (l *linearChannel) Mean(x *state.X, p []float64, t float64) float64 {
	return mat.Dot(mat.NewVecDense(len(l.c), l.c), x.Mean())
}

func (l *linearChannel) Var(x *state.X, p []float64, t float64) float64 {
	return l.r
}
