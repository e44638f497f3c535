package ekf

import (
	"fmt"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/state"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// Config contains EKF configuration parameters
type Config struct {
	// VarFloor is the floor of observation and innovation variances
	VarFloor float64
	// LogLikeMin replaces non-finite log-likelihood contributions
	LogLikeMin float64
	// Logger receives filter diagnostics
	Logger *zap.Logger
}

// EKF is Extended Kalman Filter update machinery: covariance stabilization,
// gain computation under missing observations and the state update.
// An EKF owns its workspace and must not be used concurrently.
type EKF struct {
	// m is the compiled model
	m ssm.Model
	// dim is the state dimension
	dim int
	// kcap is the workspace channel capacity
	kcap int
	// ws is scratch workspace
	ws *state.Workspace
	// floor is the variance floor
	floor float64
	// llMin is the sanitized log-likelihood
	llMin float64
	// log is diagnostics logger
	log *zap.Logger
	// gain stores the last computed gain
	gain Gain
}

// New creates new EKF for model m using workspace ws and returns it.
// If c is nil the default configuration is used.
// It returns error if either of the following conditions is met:
// - the model state dimension is not positive
// - the workspace state dimension differs from the model state dimension
func New(m ssm.Model, ws *state.Workspace, c *Config) (*EKF, error) {
	dim := m.Dims().Total()
	if dim <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: %+v", m.Dims())
	}

	wsDim, kcap := ws.Dims()
	if wsDim != dim {
		return nil, fmt.Errorf("workspace dimension %d does not match model dimension %d", wsDim, dim)
	}

	floor, llMin, log := ssm.ZeroLog, ssm.LogLikeMin, zap.NewNop()
	if c != nil {
		if c.VarFloor > 0 {
			floor = c.VarFloor
		}
		if c.LogLikeMin != 0 {
			llMin = c.LogLikeMin
		}
		if c.Logger != nil {
			log = c.Logger
		}
	}

	return &EKF{
		m:     m,
		dim:   dim,
		kcap:  kcap,
		ws:    ws,
		floor: floor,
		llMin: llMin,
		log:   log,
	}, nil
}

// Stabilize restores symmetry and positive semi-definiteness of the covariance of x
func (k *EKF) Stabilize(x *state.X) ssm.Status {
	if x.Dim() != k.dim {
		k.log.Warn("invalid state dimension", zap.Int("dim", x.Dim()), zap.Int("want", k.dim))
		return ssm.ErrKalman
	}

	return Stabilize(x.Cov(), k.ws, k.log)
}

// Workspace returns EKF workspace
func (k *EKF) Workspace() *state.Workspace {
	return k.ws
}

// guard runs fn converting matrix panics into ErrKalman
func guard(fn func()) (status ssm.Status) {
	defer func() {
		if r := recover(); r != nil {
			if _, ok := r.(mat.Error); ok {
				status = ssm.ErrKalman
				return
			}
			panic(r)
		}
	}()

	fn()

	return ssm.Success
}
