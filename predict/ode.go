package predict

import (
	"fmt"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/diff/fd"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

const (
	// DefaultDt is the default integration step
	DefaultDt = 0.25
)

// Dynamics is continuous-time stochastic dynamics of the filter state
type Dynamics interface {
	// Drift writes dx/dt evaluated at x into dx
	Drift(dx, x, p []float64, t float64)
	// Diffusion writes the diffusion covariance rate evaluated at x into q
	Diffusion(q *mat.Dense, x, p []float64, t float64)
}

// Jacobian is implemented by Dynamics which provide analytic drift Jacobian
type Jacobian interface {
	// DriftJacobian writes the Jacobian of Drift evaluated at x into f
	DriftJacobian(f *mat.Dense, x, p []float64, t float64)
}

// Config contains ODE predictor configuration
type Config struct {
	// Dt is the maximum integration step
	Dt float64
	// Formula is the finite difference formula used when the dynamics
	// do not provide analytic Jacobian
	Formula fd.Formula
	// Logger receives diagnostics
	Logger *zap.Logger
}

// ODE propagates the augmented state by integrating the mean drift and
// the linear noise approximation of the covariance with classical
// fourth order Runge-Kutta:
//
//	dx/dt = f(x)
//	dC/dt = F*C + C*F' + Q
//
// ODE owns its scratch space and must not be used concurrently.
type ODE struct {
	dyn     Dynamics
	jac     Jacobian
	m       int
	dt      float64
	formula fd.Formula
	log     *zap.Logger
	// k holds the four Runge-Kutta stages
	k [4][]float64
	// y is the intermediate stage state
	y []float64
	// f is drift Jacobian
	f *mat.Dense
	// q is diffusion matrix
	q *mat.Dense
	// fc stores F*C
	fc *mat.Dense
}

// NewODE creates new ODE predictor of m dimensional state driven by d and returns it.
// If c is nil the default configuration is used.
// It returns error if m is not positive or the integration step is negative.
func NewODE(d Dynamics, m int, c *Config) (*ODE, error) {
	if d == nil {
		return nil, fmt.Errorf("invalid dynamics: %v", d)
	}

	if m <= 0 {
		return nil, fmt.Errorf("invalid state dimension: %d", m)
	}

	dt, formula, log := DefaultDt, fd.Central, zap.NewNop()
	if c != nil {
		if c.Dt < 0 || math.IsNaN(c.Dt) {
			return nil, fmt.Errorf("invalid integration step: %v", c.Dt)
		}
		if c.Dt > 0 {
			dt = c.Dt
		}
		if c.Formula.Derivative != 0 {
			formula = c.Formula
		}
		if c.Logger != nil {
			log = c.Logger
		}
	}

	if formula.Derivative != 1 {
		return nil, fmt.Errorf("invalid finite difference derivative order: %d", formula.Derivative)
	}

	n := m + m*m
	o := &ODE{
		dyn:     d,
		m:       m,
		dt:      dt,
		formula: formula,
		log:     log,
		y:       make([]float64, n),
		f:       mat.NewDense(m, m, nil),
		q:       mat.NewDense(m, m, nil),
		fc:      mat.NewDense(m, m, nil),
	}

	for i := range o.k {
		o.k[i] = make([]float64, n)
	}

	if jac, ok := d.(Jacobian); ok {
		o.jac = jac
	}

	return o, nil
}

// Dt returns the maximum integration step
func (o *ODE) Dt() float64 {
	return o.dt
}

// Predict advances x from t0 to t1 given parameters p.
// The interval is split into equal steps no longer than the configured step.
// It returns ErrPred if t1 precedes t0, the state dimension is invalid, or the
// integration produced non-finite values. x is left unchanged when t0 == t1.
func (o *ODE) Predict(x *state.X, t0, t1 float64, p []float64) ssm.Status {
	if x.Dim() != o.m {
		o.log.Warn("invalid state dimension", zap.Int("dim", x.Dim()), zap.Int("want", o.m))
		return ssm.ErrPred
	}

	if !(t1 >= t0) || math.IsInf(t1-t0, 0) {
		o.log.Warn("invalid propagation interval", zap.Float64("t0", t0), zap.Float64("t1", t1))
		return ssm.ErrPred
	}

	if t1 == t0 {
		return ssm.Success
	}

	steps := int(math.Ceil((t1 - t0) / o.dt))
	h := (t1 - t0) / float64(steps)

	status := o.guard(func() {
		t := t0
		for i := 0; i < steps; i++ {
			o.step(x.Raw(), t, h, p)
			t += h
		}
	})
	if status.Failed() {
		return status
	}

	if raw := x.Raw(); floats.HasNaN(raw) || hasInf(raw) {
		o.log.Warn("non-finite state after propagation", zap.Float64("t0", t0), zap.Float64("t1", t1))
		return ssm.ErrPred
	}

	return ssm.Success
}

// step performs one Runge-Kutta step of length h in place
func (o *ODE) step(y []float64, t, h float64, p []float64) {
	k1, k2, k3, k4 := o.k[0], o.k[1], o.k[2], o.k[3]

	o.deriv(k1, y, t, p)

	floats.AddScaledTo(o.y, y, h/2, k1)
	o.deriv(k2, o.y, t+h/2, p)

	floats.AddScaledTo(o.y, y, h/2, k2)
	o.deriv(k3, o.y, t+h/2, p)

	floats.AddScaledTo(o.y, y, h, k3)
	o.deriv(k4, o.y, t+h, p)

	for i := range y {
		y[i] += h / 6 * (k1[i] + 2*k2[i] + 2*k3[i] + k4[i])
	}
}

// deriv evaluates the time derivative of augmented state y into dy
func (o *ODE) deriv(dy, y []float64, t float64, p []float64) {
	m := o.m
	x := y[:m]

	o.dyn.Drift(dy[:m], x, p, t)

	if o.jac != nil {
		o.jac.DriftJacobian(o.f, x, p, t)
	} else {
		fd.Jacobian(o.f, func(dst, xx []float64) {
			o.dyn.Drift(dst, xx, p, t)
		}, x, &fd.JacobianSettings{
			Formula:    o.formula,
			Concurrent: false,
		})
	}

	o.q.Zero()
	o.dyn.Diffusion(o.q, x, p, t)

	c := mat.NewDense(m, m, y[m:])
	dc := mat.NewDense(m, m, dy[m:])

	// dC = F*C + (F*C)' + Q, C is symmetric
	o.fc.Mul(o.f, c)
	dc.Add(o.fc, o.fc.T())
	dc.Add(dc, o.q)
}

// guard runs fn converting matrix panics into ErrPred
func (o *ODE) guard(fn func()) (status ssm.Status) {
	defer func() {
		if r := recover(); r != nil {
			if err, ok := r.(mat.Error); ok {
				o.log.Warn("propagation failed", zap.String("err", err.Error()))
				status = ssm.ErrPred
				return
			}
			panic(r)
		}
	}()

	fn()

	return ssm.Success
}

func hasInf(s []float64) bool {
	for _, v := range s {
		if math.IsInf(v, 0) {
			return true
		}
	}

	return false
}
