package model

import (
	"fmt"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/predict"
	"github.com/milosgajdos/go-ssm/state"
	"gonum.org/v1/gonum/mat"
)

// SIR state indices
const (
	// S is the susceptible population
	S = iota
	// I is the infectious population
	I
	// Inc is the incidence of new infections since the last observation
	Inc
)

// SIR parameter indices
const (
	Beta = iota
	Gamma
	N
	S0
	I0
	Rep
	Phi
)

// SIRParams are SIR parameter names in parameter vector order
var SIRParams = []string{"beta", "gamma", "N", "S0", "I0", "rep", "phi"}

// SIR is a stochastic SIR epidemic model with an incidence accumulator,
// propagated with the linear noise approximation. Two channels can be observed:
// "cases" reports a fraction rep of the incidence and "prevalence" measures
// the infectious population, both with overdispersion phi.
type SIR struct {
	ode      *predict.ODE
	obs      *FDObserver
	channels map[string]ssm.Channel
}

// NewSIR creates new SIR model and returns it.
// If c is nil, the default predictor configuration is used.
func NewSIR(c *predict.Config) (*SIR, error) {
	s := &SIR{}

	ode, err := predict.NewODE(s, 3, c)
	if err != nil {
		return nil, err
	}
	s.ode = ode

	obs, err := NewFDObserver(3)
	if err != nil {
		return nil, err
	}
	s.obs = obs

	s.channels = map[string]ssm.Channel{
		"cases":      casesChannel{},
		"prevalence": prevalenceChannel{},
	}

	return s, nil
}

// Dims returns SIR state partition
func (s *SIR) Dims() ssm.Dims {
	return ssm.Dims{SV: 2, Inc: 1}
}

// Params returns parameter names
func (s *SIR) Params() []string {
	return SIRParams
}

// Channel returns observation channel with the given name.
// It returns error if no such channel exists.
func (s *SIR) Channel(name string) (ssm.Channel, error) {
	ch, ok := s.channels[name]
	if !ok {
		return nil, fmt.Errorf("unknown channel: %s", name)
	}

	return ch, nil
}

// Names returns channel names
func (s *SIR) Names() []string {
	return []string{"cases", "prevalence"}
}

// ResetIndices returns state indices of the incidence accumulators
func (s *SIR) ResetIndices() []int {
	return []int{Inc}
}

func rates(x, p []float64) (inf, rec float64) {
	return p[Beta] * x[S] * x[I] / p[N], p[Gamma] * x[I]
}

// Drift implements predict.Dynamics
func (s *SIR) Drift(dx, x, p []float64, t float64) {
	inf, rec := rates(x, p)

	dx[S] = -inf
	dx[I] = inf - rec
	dx[Inc] = inf
}

// DriftJacobian implements predict.Jacobian
func (s *SIR) DriftJacobian(f *mat.Dense, x, p []float64, t float64) {
	b, n := p[Beta], p[N]

	f.Zero()
	f.Set(S, S, -b*x[I]/n)
	f.Set(S, I, -b*x[S]/n)
	f.Set(I, S, b*x[I]/n)
	f.Set(I, I, b*x[S]/n-p[Gamma])
	f.Set(Inc, S, b*x[I]/n)
	f.Set(Inc, I, b*x[S]/n)
}

// Diffusion implements predict.Dynamics: it sums the rate of every
// reaction times the outer product of its stoichiometry.
func (s *SIR) Diffusion(q *mat.Dense, x, p []float64, t float64) {
	inf, rec := rates(x, p)

	q.Set(S, S, inf)
	q.Set(S, I, -inf)
	q.Set(S, Inc, -inf)
	q.Set(I, I, inf+rec)
	q.Set(I, Inc, inf)
	q.Set(Inc, Inc, inf)

	q.Set(I, S, -inf)
	q.Set(Inc, S, -inf)
	q.Set(Inc, I, inf)
}

// Predict propagates x from t0 to t1
func (s *SIR) Predict(x *state.X, t0, t1 float64, p []float64) ssm.Status {
	return s.ode.Predict(x, t0, t1, p)
}

// Jacobian computes observation Jacobian of the row channels
func (s *SIR) Jacobian(h *mat.Dense, x *state.X, row *ssm.Row, t float64, p []float64) ssm.Status {
	return s.obs.Jacobian(h, x, row, t, p)
}

// Constrain floors the populations and the incidence at zero and keeps the
// remainder N - S - I non-negative by lowering S.
func (s *SIR) Constrain(x *state.X, p []float64, t float64) ssm.Status {
	for _, i := range []int{S, I, Inc} {
		if x.At(i) < 0 {
			x.Set(i, 0)
		}
	}

	n := p[N]
	if x.At(I) > n {
		x.Set(I, n)
	}

	if x.At(S)+x.At(I) > n {
		x.Set(S, n-x.At(I))
	}

	return ssm.Success
}

// Validate checks feasibility of the parameters and initial conditions
func (s *SIR) Validate(p []float64) ssm.Status {
	if len(p) != len(SIRParams) {
		return ssm.ErrIC
	}

	for _, v := range p {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return ssm.ErrIC
		}
	}

	switch {
	case p[Beta] < 0, p[Gamma] < 0, p[Phi] < 0:
		return ssm.ErrIC
	case p[N] <= 0:
		return ssm.ErrIC
	case p[S0] < 0, p[I0] < 0, p[S0]+p[I0] > p[N]:
		return ssm.ErrIC
	case p[Rep] < 0, p[Rep] > 1:
		return ssm.ErrIC
	}

	return ssm.Success
}

// Init sets the initial populations, the incidence starts at zero
func (s *SIR) Init(x *state.X, p []float64) {
	x.Set(S, p[S0])
	x.Set(I, p[I0])
	x.Set(Inc, 0)
}

// casesChannel observes reported incidence
type casesChannel struct{}

func (c casesChannel) Mean(x *state.X, p []float64, t float64) float64 {
	return p[Rep] * x.At(Inc)
}

func (c casesChannel) Var(x *state.X, p []float64, t float64) float64 {
	rep, inc := p[Rep], x.At(Inc)
	return rep*(1-rep)*inc + math.Pow(rep*p[Phi]*inc, 2)
}

func (c casesChannel) Gradient(g []float64, x *state.X, p []float64, t float64) {
	g[Inc] = p[Rep]
}

// prevalenceChannel observes the infectious population
type prevalenceChannel struct{}

func (c prevalenceChannel) Mean(x *state.X, p []float64, t float64) float64 {
	return x.At(I)
}

func (c prevalenceChannel) Var(x *state.X, p []float64, t float64) float64 {
	return math.Pow(p[Phi]*x.At(I), 2)
}

func (c prevalenceChannel) Gradient(g []float64, x *state.X, p []float64, t float64) {
	g[I] = 1
}
