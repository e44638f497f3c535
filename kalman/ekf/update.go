package ekf

import (
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Update corrects state x using the channels observed in row at time t given
// parameters p and adds the log-likelihood of the row innovation to f.
// The covariance is re-stabilized after the correction and the model
// validity constraints are enforced on the corrected state.
// On failure x may be partially updated; the returned status tells the
// caller not to trust it.
func (k *EKF) Update(f *ssm.Fitness, x *state.X, row *ssm.Row, t float64, p []float64) ssm.Status {
	g, status := k.Gain(x, row, t, p)
	if g == nil {
		return status
	}

	n := row.Len()
	mean := x.Mean()
	c := x.Cov()
	corr := k.ws.VecM()
	tmp := k.ws.TmpKM(n)
	dc := k.ws.TmpMM()

	status = status.Combine(guard(func() {
		// x = x + K * e
		corr.MulVec(g.K, g.E)
		mean.AddVec(mean, corr)

		// C = C - K * H' * C
		tmp.Mul(g.H.T(), c)
		dc.Mul(g.K, tmp)
		c.Sub(c, dc)
	}))

	// positivity and symmetry could have been lost when updating the covariance
	status = status.Combine(k.Stabilize(x))

	// positivity of state variables and remainders could have been lost when updating the mean
	status = status.Combine(k.m.Constrain(x, p, t))

	f.LogLike += k.sanitize(LogNormal(g.E, g.SInv, g.LogDet, g.Sign), t)

	return status
}

func (k *EKF) sanitize(ll, t float64) float64 {
	v, ok := Sanitize(ll, k.llMin)
	if !ok {
		k.log.Warn("non-finite log-likelihood: fixed to minimum", zap.Float64("t", t), zap.Float64("min", k.llMin))
	}

	return v
}

// Sanitize returns ll if it is finite and min otherwise. The returned bool
// reports whether ll was finite.
func Sanitize(ll, min float64) (float64, bool) {
	if math.IsNaN(ll) || math.IsInf(ll, 0) {
		return min, false
	}

	return ll, true
}

// LogNormal returns the log density of the zero mean multivariate normal with
// covariance S evaluated at e, given the inverse of S and the log determinant
// and determinant sign of S. It returns NaN if S is not positive definite.
func LogNormal(e mat.Vector, sInv mat.Matrix, logDet, sign float64) float64 {
	if sign <= 0 {
		return math.NaN()
	}

	n := e.Len()

	return -0.5 * (float64(n)*math.Log(2*math.Pi) + logDet + mat.Inner(e, sInv, e))
}

// LogDensity returns the log density of the zero mean multivariate normal with covariance s evaluated at e.
// It returns NaN if s is singular or not positive definite.
func LogDensity(e mat.Vector, s mat.Matrix) float64 {
	var lu mat.LU
	lu.Factorize(s)
	logDet, sign := lu.LogDet()

	n := e.Len()
	inv := &mat.Dense{}
	eye := mat.NewDiagDense(n, nil)
	for i := 0; i < n; i++ {
		eye.SetDiag(i, 1.0)
	}
	if err := lu.SolveTo(inv, false, eye); err != nil {
		cond, ok := err.(mat.Condition)
		if !ok || math.IsInf(float64(cond), 1) {
			return math.NaN()
		}
	}

	return LogNormal(e, inv, logDet, sign)
}
