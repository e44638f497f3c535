package ssm

import (
	"github.com/milosgajdos/go-ssm/state"
	"gonum.org/v1/gonum/mat"
)

const (
	// ZeroLog is the numerical floor applied to observation and innovation variances
	ZeroLog = 1e-17
	// LogLikeMin is the log-likelihood substituted for non-finite row contributions
	LogLikeMin = -1e100
)

// Dims partitions the filter state into its groups: state variables,
// incidence accumulators and diffusion states. They are laid out in this
// order in the mean part of the augmented state.
type Dims struct {
	// SV is the number of state variables
	SV int
	// Inc is the number of incidence accumulators
	Inc int
	// Diff is the number of diffusion states
	Diff int
}

// Total returns the dimension of the filter state
func (d Dims) Total() int {
	return d.SV + d.Inc + d.Diff
}

// Predictor propagates the augmented state between observation times
type Predictor interface {
	// Predict advances x from t0 to t1 given parameters p
	Predict(x *state.X, t0, t1 float64, p []float64) Status
}

// Channel is the observation model of one observed time series
type Channel interface {
	// Mean returns the expected observation given state x
	Mean(x *state.X, p []float64, t float64) float64
	// Var returns the observation variance given state x
	Var(x *state.X, p []float64, t float64) float64
}

// Observer linearizes the observation model
type Observer interface {
	// Jacobian fills h with the derivatives of the row channel means with
	// respect to the state: h is m x k where k is the number of channels
	// observed in row.
	Jacobian(h *mat.Dense, x *state.X, row *Row, t float64, p []float64) Status
}

// Constrainer enforces the physical validity of the state
type Constrainer interface {
	// Constrain brings components of x that must not be negative back to their floor
	Constrain(x *state.X, p []float64, t float64) Status
}

// Initializer creates the initial filter state from parameters
type Initializer interface {
	// Validate checks p against the model domain constraints
	Validate(p []float64) Status
	// Init writes the initial state mean into x
	Init(x *state.X, p []float64)
}

// Prior is log prior density of the parameters in optimizer space
type Prior interface {
	// LogPrior returns the log prior density evaluated at theta
	LogPrior(theta []float64) (float64, Status)
}

// Model is a compiled model: the full capability set consumed by the filter.
// Model implementations may own integration scratch space and are not safe
// for concurrent use.
type Model interface {
	// Dims returns the state partition
	Dims() Dims
	// Predictor propagates the state
	Predictor
	// Observer linearizes observations
	Observer
	// Constrainer enforces state validity
	Constrainer
	// Initializer initializes the state
	Initializer
}

// Row is one observation time point. Values and Observed only hold the
// non-missing channels, in the same order.
type Row struct {
	// Time is the observation time
	Time float64
	// Values holds the observed values
	Values []float64
	// Observed holds the channel capabilities of Values
	Observed []Channel
	// Reset lists state indices of incidences reset before propagation
	Reset []int
}

// Len returns the number of non-missing channels in the row
func (r *Row) Len() int {
	return len(r.Values)
}

// Fitness accumulates the log-likelihood of one filter run
type Fitness struct {
	// LogLike is the running log-likelihood total
	LogLike float64
	// Status is the cumulative status
	Status Status
}

// Reset resets the accumulator
func (f *Fitness) Reset() {
	f.LogLike = 0
	f.Status = Success
}
