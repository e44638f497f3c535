// Package fit turns the EKF recursion into the objective function minimized
// by maximum likelihood parameter search.
package fit

import (
	"fmt"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/estimate"
	"github.com/milosgajdos/go-ssm/kalman/ekf"
	"github.com/milosgajdos/go-ssm/state"
	"go.uber.org/zap"
)

const (
	// Worst is the objective value of failed evaluations
	Worst = math.MaxFloat64
)

// Space maps optimizer space onto model parameters
type Space interface {
	// Dim returns the dimension of the optimizer space
	Dim() int
	// Params maps theta onto model parameters stored in dst
	Params(theta, dst []float64) []float64
	// Prior evaluates the log prior of theta
	ssm.Prior
}

// Config contains objective configuration
type Config struct {
	// Prior adds the log prior density to the log-likelihood
	Prior bool
	// VarFloor is the floor of observation and innovation variances
	VarFloor float64
	// LogLikeMin replaces non-finite log-likelihood contributions
	LogLikeMin float64
	// Logger receives diagnostics
	Logger *zap.Logger
}

// Result is the outcome of one objective evaluation
type Result struct {
	// LogLike is the total log-likelihood, including the log prior if enabled
	LogLike float64 `json:"log_like"`
	// Objective is the value to minimize
	Objective float64 `json:"objective"`
	// Status is the cumulative error status
	Status ssm.Status `json:"status"`
	// Phase is the final phase of the filter loop
	Phase Phase `json:"phase"`
	// Row is the index of the row the evaluation failed at or the number of rows
	Row int `json:"row"`
}

// Point is filter trace record of one row
type Point struct {
	// Time is row time
	Time float64 `json:"t"`
	// Observed holds the observed values
	Observed []float64 `json:"observed"`
	// Predicted holds the one step ahead predicted observation means
	Predicted []float64 `json:"predicted"`
	// Innovation holds the differences between observed and predicted values
	Innovation []float64 `json:"innovation"`
	// Estimate is the posterior state estimate
	Estimate *estimate.Base `json:"estimate"`
}

// Objective evaluates the filter over a fixed sequence of observation rows.
// Every Objective owns its state, workspace and fitness accumulator: it must
// not be used concurrently, use one Objective per goroutine instead.
// Rows are read only and may be shared between Objectives.
type Objective struct {
	m      ssm.Model
	rows   []*ssm.Row
	space  Space
	prior  bool
	filter *ekf.EKF
	x      *state.X
	fit    ssm.Fitness
	par    []float64
	nobs   int
	evals  int
	log    *zap.Logger
}

// New creates new Objective of model m over rows with parameters mapped by space.
// If c is nil the default configuration is used.
// It returns error if the rows are inconsistent with the model.
func New(m ssm.Model, rows []*ssm.Row, space Space, c *Config) (*Objective, error) {
	if m == nil || space == nil {
		return nil, fmt.Errorf("model and parameter space must be defined")
	}

	if len(rows) == 0 {
		return nil, fmt.Errorf("no observation rows")
	}

	dim := m.Dims().Total()
	if dim <= 0 {
		return nil, fmt.Errorf("invalid model dimensions: %+v", m.Dims())
	}

	kmax, nobs := 1, 0
	for n, row := range rows {
		if row == nil {
			return nil, fmt.Errorf("row %d: missing row", n)
		}
		if len(row.Values) != len(row.Observed) {
			return nil, fmt.Errorf("row %d: %d values for %d channels", n, len(row.Values), len(row.Observed))
		}
		for _, i := range row.Reset {
			if i < 0 || i >= dim {
				return nil, fmt.Errorf("row %d: invalid reset index %d", n, i)
			}
		}
		if row.Len() > kmax {
			kmax = row.Len()
		}
		nobs += row.Len()
	}

	cfg := &Config{}
	if c != nil {
		*cfg = *c
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	// the workspace and the state buffer are both sized by m.Dims().Total()
	ws, err := state.NewWorkspace(dim, kmax)
	if err != nil {
		return nil, err
	}

	filter, err := ekf.New(m, ws, &ekf.Config{
		VarFloor:   cfg.VarFloor,
		LogLikeMin: cfg.LogLikeMin,
		Logger:     cfg.Logger,
	})
	if err != nil {
		return nil, err
	}

	x, err := state.New(dim)
	if err != nil {
		return nil, err
	}

	return &Objective{
		m:      m,
		rows:   rows,
		space:  space,
		prior:  cfg.Prior,
		filter: filter,
		x:      x,
		nobs:   nobs,
		log:    cfg.Logger,
	}, nil
}

// Observations returns the number of non-missing observations
func (o *Objective) Observations() int {
	return o.nobs
}

// Evals returns the number of evaluations performed
func (o *Objective) Evals() int {
	return o.evals
}

// State returns the filter state after the last evaluation
func (o *Objective) State() *state.X {
	return o.x
}

// Eval returns the objective value at theta: the negated log-likelihood or
// Worst if the evaluation failed.
func (o *Objective) Eval(theta []float64) float64 {
	return o.Evaluate(theta).Objective
}

// Evaluate runs the filter with parameters mapped from theta and returns the result.
// If enabled, the log prior of theta is added to the log-likelihood.
func (o *Objective) Evaluate(theta []float64) Result {
	if len(theta) != o.space.Dim() {
		o.log.Warn("invalid parameter vector", zap.Int("len", len(theta)), zap.Int("want", o.space.Dim()))
		return failed(ssm.ErrIC, -1)
	}

	o.par = o.space.Params(theta, o.par)
	res := o.run(o.par, nil)
	if res.Phase != Done || !o.prior {
		return res
	}

	lp, status := o.space.LogPrior(theta)
	if status.Failed() {
		o.log.Warn("log prior evaluation failed: assigning worst fitness", zap.Float64s("theta", theta))
		return failed(status.Combine(ssm.ErrPrior), res.Row)
	}

	res.LogLike += lp
	res.Objective = -res.LogLike

	return res
}

// Run runs the filter with natural parameters p and returns the result.
// The log prior is not included.
func (o *Objective) Run(p []float64) Result {
	return o.run(p, nil)
}

// Trace runs the filter with natural parameters p and records every row
func (o *Objective) Trace(p []float64) ([]Point, Result) {
	points := make([]Point, 0, len(o.rows))
	res := o.run(p, &points)

	return points, res
}

func failed(status ssm.Status, row int) Result {
	return Result{
		LogLike:   -Worst,
		Objective: Worst,
		Status:    status,
		Phase:     Failed,
		Row:       row,
	}
}

func (o *Objective) run(p []float64, trace *[]Point) Result {
	o.evals++

	// Init
	raw := o.x.Raw()
	for i := range raw {
		raw[i] = 0
	}
	o.fit.Reset()

	if status := o.m.Validate(p); status.Failed() {
		o.log.Warn("constraints on initial conditions have not been respected: assigning worst fitness", zap.Float64s("params", p))
		return failed(status.Combine(ssm.ErrIC), -1)
	}
	o.m.Init(o.x, p)

	t0 := 0.0
	for n, row := range o.rows {
		// Predicting
		o.x.ResetInc(row.Reset)
		o.fit.Status = o.fit.Status.Combine(o.m.Predict(o.x, t0, row.Time, p))

		var pt *Point
		if trace != nil {
			pt = o.predicted(row, p)
		}

		// Updating
		if row.Len() > 0 && !o.fit.Status.Failed() {
			o.fit.Status = o.fit.Status.Combine(o.filter.Update(&o.fit, o.x, row, row.Time, p))
		}

		if o.fit.Status.Failed() {
			o.log.Warn("filter evaluation aborted: assigning worst fitness",
				zap.Stringer("status", o.fit.Status),
				zap.Int("row", n),
				zap.Float64("t", row.Time))
			return failed(o.fit.Status, n)
		}

		if pt != nil {
			pt.Estimate = estimate.FromState(row.Time, o.x)
			*trace = append(*trace, *pt)
		}

		t0 = row.Time
	}

	// Done
	return Result{
		LogLike:   o.fit.LogLike,
		Objective: -o.fit.LogLike,
		Status:    o.fit.Status,
		Phase:     Done,
		Row:       len(o.rows),
	}
}

// predicted records the one step ahead prediction of row
func (o *Objective) predicted(row *ssm.Row, p []float64) *Point {
	k := row.Len()
	pt := &Point{
		Time:       row.Time,
		Observed:   append([]float64(nil), row.Values...),
		Predicted:  make([]float64, k),
		Innovation: make([]float64, k),
	}

	for i, ch := range row.Observed {
		pt.Predicted[i] = ch.Mean(o.x, p, row.Time)
		pt.Innovation[i] = row.Values[i] - pt.Predicted[i]
	}

	return pt
}
