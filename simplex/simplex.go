// Package simplex maximizes the filter likelihood with Nelder-Mead simplex searches.
package simplex

import (
	"context"
	"fmt"
	"runtime"

	"github.com/milosgajdos/go-ssm/fit"
	"github.com/milosgajdos/go-ssm/rand"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/optimize"
)

const (
	// DefaultIterations is the default maximum number of simplex iterations
	DefaultIterations = 1000
	// DefaultTolerance is the default absolute function convergence tolerance
	DefaultTolerance = 1e-6
	// DefaultStall is the default number of iterations without improvement
	// after which the search is considered converged
	DefaultStall = 50
)

// Space is parameter space explored by the simplex
type Space interface {
	fit.Space
	// Theta returns the initial point
	Theta() []float64
	// Steps returns the initial simplex steps
	Steps() []float64
}

// Factory creates new objective. Every concurrent search owns its objective.
type Factory func() (*fit.Objective, error)

// Config contains simplex search configuration
type Config struct {
	// Iterations is the maximum number of simplex iterations per search
	Iterations int
	// Evaluations is the maximum number of objective evaluations per search
	Evaluations int
	// Tolerance is the absolute function convergence tolerance
	Tolerance float64
	// Stall is the number of iterations over which Tolerance is measured
	Stall int
	// Restarts is the number of times the search is restarted from the best point
	Restarts int
	// Starts is the number of searches from jittered starting points
	Starts int
	// Concurrency is the maximum number of searches running at once
	Concurrency int
	// Seed seeds the starting point jitter
	Seed uint64
	// Logger receives diagnostics
	Logger *zap.Logger
}

// Result is the outcome of the simplex search
type Result struct {
	// Theta is the best point in optimizer space
	Theta []float64 `json:"theta"`
	// Params are the model parameters at Theta
	Params []float64 `json:"params"`
	// Fit is the objective evaluation at Theta
	Fit fit.Result `json:"fit"`
	// Start is the index of the search which found Theta
	Start int `json:"start"`
	// Iterations is the total number of simplex iterations
	Iterations int `json:"iterations"`
	// Evaluations is the total number of objective evaluations
	Evaluations int `json:"evaluations"`
	// Status is the termination status of the winning search
	Status string `json:"status"`
}

func (c *Config) withDefaults() *Config {
	cfg := &Config{}
	if c != nil {
		*cfg = *c
	}

	if cfg.Iterations <= 0 {
		cfg.Iterations = DefaultIterations
	}
	if cfg.Tolerance <= 0 {
		cfg.Tolerance = DefaultTolerance
	}
	if cfg.Stall <= 0 {
		cfg.Stall = DefaultStall
	}
	if cfg.Restarts < 0 {
		cfg.Restarts = 0
	}
	if cfg.Starts <= 0 {
		cfg.Starts = 1
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.GOMAXPROCS(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return cfg
}

// Minimize searches for the minimum of the objective created by newObjective
// over space starting from space.Theta(). Searches from jittered starting points
// run concurrently, each with its own objective; the best result wins.
// It returns error if an objective can not be created or ctx is cancelled;
// in the latter case the best result found so far is returned too.
func Minimize(ctx context.Context, newObjective Factory, space Space, c *Config) (*Result, error) {
	cfg := c.withDefaults()

	dim := space.Dim()
	if dim == 0 {
		return nil, fmt.Errorf("no estimated parameters")
	}

	theta0, steps := space.Theta(), space.Steps()
	if len(theta0) != dim || len(steps) != dim {
		return nil, fmt.Errorf("invalid initial point dimensions: %d, %d, expected %d", len(theta0), len(steps), dim)
	}

	starts, err := jitter(theta0, steps, cfg.Starts, cfg.Seed)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, cfg.Starts)

	g := &errgroup.Group{}
	g.SetLimit(cfg.Concurrency)
	for i := range starts {
		i := i
		g.Go(func() error {
			obj, err := newObjective()
			if err != nil {
				return fmt.Errorf("start %d: %w", i, err)
			}

			s := &search{
				ctx:   ctx,
				obj:   obj,
				space: space,
				cfg:   cfg,
				log:   cfg.Logger.With(zap.Int("start", i)),
			}
			res, err := s.run(starts[i], steps)
			if res != nil {
				res.Start = i
				results[i] = res
			}

			return err
		})
	}
	err = g.Wait()

	var best *Result
	for _, res := range results {
		if res == nil {
			continue
		}
		if best == nil || res.Fit.Objective < best.Fit.Objective {
			best = res
		}
	}

	if best == nil && err == nil {
		err = fmt.Errorf("no search finished")
	}

	return best, err
}

// jitter returns n starting points: theta and n-1 draws from the normal
// distribution centred at theta with standard deviations steps.
func jitter(theta, steps []float64, n int, seed uint64) ([][]float64, error) {
	starts := make([][]float64, n)
	starts[0] = append([]float64(nil), theta...)
	if n == 1 {
		return starts, nil
	}

	cov := mat.NewSymDense(len(theta), nil)
	for j, st := range steps {
		cov.SetSym(j, j, st*st)
	}

	draws, err := rand.WithCovN(cov, n-1, seed)
	if err != nil {
		return nil, fmt.Errorf("failed to draw starting points: %w", err)
	}

	for i := 1; i < n; i++ {
		starts[i] = make([]float64, len(theta))
		for j := range theta {
			starts[i][j] = theta[j] + draws.At(j, i-1)
		}
	}

	return starts, nil
}

// search is one sequence of restarted simplex searches
type search struct {
	ctx   context.Context
	obj   *fit.Objective
	space Space
	cfg   *Config
	log   *zap.Logger
}

func (s *search) run(theta, steps []float64) (*Result, error) {
	total := &Result{}
	best := append([]float64(nil), theta...)
	bestF := s.obj.Eval(best)

	for r := 0; r <= s.cfg.Restarts; r++ {
		if err := s.ctx.Err(); err != nil {
			return s.result(total, best), err
		}

		res, err := s.once(best, bestF, steps)
		if res == nil {
			return s.result(total, best), err
		}

		total.Iterations += res.Stats.MajorIterations
		total.Evaluations += res.Stats.FuncEvaluations
		total.Status = res.Status.String()

		if res.F <= bestF {
			copy(best, res.X)
			bestF = res.F
		}

		s.log.Debug("simplex search finished",
			zap.Int("restart", r),
			zap.Float64("objective", bestF),
			zap.Stringer("status", res.Status))

		if err := s.ctx.Err(); err != nil {
			return s.result(total, best), err
		}
	}

	return s.result(total, best), nil
}

// once runs a single Nelder-Mead search from the simplex theta + step_i * e_i
func (s *search) once(theta []float64, f float64, steps []float64) (*optimize.Result, error) {
	dim := len(theta)

	vertices := make([][]float64, dim+1)
	values := make([]float64, dim+1)
	vertices[0] = append([]float64(nil), theta...)
	values[0] = f
	for i := 0; i < dim; i++ {
		v := append([]float64(nil), theta...)
		v[i] += steps[i]
		vertices[i+1] = v
		values[i+1] = s.obj.Eval(v)
	}

	problem := optimize.Problem{
		Func: s.obj.Eval,
	}

	settings := &optimize.Settings{
		MajorIterations: s.cfg.Iterations,
		FuncEvaluations: s.cfg.Evaluations,
		Converger: &converger{
			ctx: s.ctx,
			fc: &optimize.FunctionConverge{
				Absolute:   s.cfg.Tolerance,
				Iterations: s.cfg.Stall,
			},
		},
	}

	method := &optimize.NelderMead{
		InitialVertices: vertices,
		InitialValues:   values,
	}

	res, err := optimize.Minimize(problem, theta, settings, method)
	if err != nil && res == nil {
		return nil, fmt.Errorf("simplex search failed: %w", err)
	}

	return res, nil
}

func (s *search) result(total *Result, theta []float64) *Result {
	total.Theta = append([]float64(nil), theta...)
	total.Params = s.space.Params(theta, nil)
	total.Fit = s.obj.Evaluate(theta)

	return total
}

var _ optimize.Converger = (*converger)(nil)

// converger stops the search when its context is done
type converger struct {
	ctx context.Context
	fc  *optimize.FunctionConverge
}

func (c *converger) Init(dim int) {
	c.fc.Init(dim)
}

func (c *converger) Converged(loc *optimize.Location) optimize.Status {
	if c.ctx.Err() != nil {
		return optimize.RuntimeLimit
	}

	return c.fc.Converged(loc)
}
