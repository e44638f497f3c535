package ekf

import (
	"errors"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Gain is the result of EKF gain computation for one observation row.
// All matrices are views into the EKF workspace sized by the number of
// observed channels k and are only valid until the next row is processed.
type Gain struct {
	// K is m x k Kalman gain
	K *mat.Dense
	// H is m x k observation Jacobian
	H *mat.Dense
	// S is k x k innovation covariance
	S *mat.Dense
	// SInv is inverse of S
	SInv *mat.Dense
	// E is innovation vector
	E *mat.VecDense
	// LogDet is log of the absolute value of det(S)
	LogDet float64
	// Sign is the sign of det(S)
	Sign float64
}

// Gain computes Kalman gain of the channels observed in row given state x at time t
// and parameters p. The covariance of x is stabilized as part of the computation.
// Errors are accumulated over all sub-steps: the returned status is the union
// of every failure encountered. It returns nil Gain and ErrKalman if the row
// has no observed channels or more channels than the workspace capacity, and
// ErrKalman if S is singular.
func (k *EKF) Gain(x *state.X, row *ssm.Row, t float64, p []float64) (*Gain, ssm.Status) {
	n := row.Len()
	if n == 0 || n > k.kcap || len(row.Observed) != n || x.Dim() != k.dim {
		k.log.Warn("invalid observation row",
			zap.Float64("t", t),
			zap.Int("channels", n),
			zap.Int("capacity", k.kcap),
			zap.Int("dim", x.Dim()))
		return nil, ssm.ErrKalman
	}

	g := &k.gain
	ws := k.ws

	// observation Jacobian
	g.H = ws.Ht(n)
	g.H.Zero()
	status := k.m.Jacobian(g.H, x, row, t, p)

	// observation noise
	rt := ws.Rt(n)
	rt.Zero()
	for i, ch := range row.Observed {
		v := ch.Var(x, p, t)
		if !(v >= k.floor) {
			k.log.Warn("observation variance too low: fixed to floor",
				zap.Float64("t", t),
				zap.Int("channel", i),
				zap.Float64("var", v),
				zap.Float64("floor", k.floor))
			v = k.floor
		}
		rt.Set(i, i, v)
	}

	// innovation
	g.E = ws.PredError(n)
	for i, ch := range row.Observed {
		g.E.SetVec(i, row.Values[i]-ch.Mean(x, p, t))
	}

	// positivity and symmetry could have been lost when propagating the covariance
	status = status.Combine(k.Stabilize(x))

	c := x.Cov()
	tmp := ws.TmpMK(n)
	g.S = ws.St(n)
	g.SInv = ws.Stm1(n)
	g.K = ws.Kt(n)

	// S = H' * C * H + R
	status = status.Combine(guard(func() {
		tmp.Mul(c, g.H)
		g.S.Mul(g.H.T(), tmp)
		g.S.Add(g.S, rt)
	}))

	for i := 0; i < n; i++ {
		if !(g.S.At(i, i) >= k.floor) {
			k.log.Debug("innovation variance too low: fixed to floor",
				zap.Float64("t", t),
				zap.Int("channel", i),
				zap.Float64("var", g.S.At(i, i)))
			g.S.Set(i, i, k.floor)
		}
	}

	// K = C * H * S^-1
	var invStatus ssm.Status
	status = status.Combine(guard(func() {
		lu := ws.LU()
		lu.Factorize(g.S)
		g.LogDet, g.Sign = lu.LogDet()

		if err := lu.SolveTo(g.SInv, false, ws.Eye(n)); err != nil {
			var cond mat.Condition
			if errors.As(err, &cond) && !math.IsInf(float64(cond), 1) {
				k.log.Warn("innovation covariance is ill-conditioned",
					zap.Float64("t", t),
					zap.Float64("cond", float64(cond)))
			} else {
				k.log.Warn("innovation covariance inversion failed", zap.Float64("t", t), zap.Error(err))
				invStatus = ssm.ErrKalman
			}
		}

		tmp.Mul(g.H, g.SInv)
		g.K.Mul(c, tmp)
	}))

	return g, status.Combine(invStatus)
}
