package fit

import (
	"math"
	"os"
	"testing"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/kalman/ekf"
	"github.com/milosgajdos/go-ssm/model"
	"github.com/milosgajdos/go-ssm/prior"
	"github.com/milosgajdos/go-ssm/state"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"gonum.org/v1/gonum/mat"
)

// identity is optimizer space equal to the parameter space
type identity struct {
	dim    int
	lp     float64
	status ssm.Status
}

func (s *identity) Dim() int { return s.dim }

func (s *identity) Params(theta, dst []float64) []float64 {
	return append(dst[:0], theta...)
}

func (s *identity) LogPrior(theta []float64) (float64, ssm.Status) {
	return s.lp, s.status
}

// counting wraps a model counting the capability invocations
type counting struct {
	ssm.Model
	predicts  int
	jacobians int
	predErrAt int
	jacErrAt  int
	incAtPred []float64
}

func (c *counting) Predict(x *state.X, t0, t1 float64, p []float64) ssm.Status {
	c.predicts++
	c.incAtPred = append(c.incAtPred, x.At(x.Dim()-1))
	if c.predErrAt > 0 && c.predicts == c.predErrAt {
		return ssm.ErrPred
	}

	return c.Model.Predict(x, t0, t1, p)
}

func (c *counting) Jacobian(h *mat.Dense, x *state.X, row *ssm.Row, t float64, p []float64) ssm.Status {
	c.jacobians++
	status := c.Model.Jacobian(h, x, row, t, p)
	if c.jacErrAt > 0 && c.jacobians == c.jacErrAt {
		return status.Combine(ssm.ErrKalman)
	}

	return status
}

var (
	lin  *model.Linear
	rows []*ssm.Row
)

func setup() {
	var err error
	lin, err = model.NewLinear(
		mat.NewDense(2, 2, []float64{-0.1, 0.0, 0.2, -0.3}),
		mat.NewDense(2, 2, []float64{0.2, 0.0, 0.0, 0.1}),
		mat.NewDense(2, 2, []float64{1.0, 0.0, 0.0, 1.0}),
		[]float64{0.5, 0.25},
		nil,
	)
	if err != nil {
		panic(err)
	}

	a, b := lin.Channels()[0], lin.Channels()[1]
	rows = []*ssm.Row{
		{Time: 1, Values: []float64{1.1, 0.4}, Observed: []ssm.Channel{a, b}},
		{Time: 2, Values: []float64{0.9}, Observed: []ssm.Channel{a}},
		{Time: 3},
		{Time: 4, Values: []float64{0.6}, Observed: []ssm.Channel{b}},
		{Time: 5, Values: []float64{0.7, 0.5}, Observed: []ssm.Channel{a, b}},
	}
}

func TestMain(m *testing.M) {
	// set up tests
	setup()
	// run the tests
	retCode := m.Run()
	// call with result of m.Run()
	os.Exit(retCode)
}

func TestNew(t *testing.T) {
	assert := assert.New(t)

	o, err := New(lin, rows, &identity{dim: 2}, nil)
	assert.NotNil(o)
	assert.NoError(err)
	assert.Equal(6, o.Observations())

	o, err = New(nil, rows, &identity{dim: 2}, nil)
	assert.Nil(o)
	assert.Error(err)

	o, err = New(lin, nil, &identity{dim: 2}, nil)
	assert.Nil(o)
	assert.Error(err)

	bad := []*ssm.Row{{Time: 1, Values: []float64{1.0}}}
	o, err = New(lin, bad, &identity{dim: 2}, nil)
	assert.Nil(o)
	assert.Error(err)

	bad = []*ssm.Row{{Time: 1, Reset: []int{2}}}
	o, err = New(lin, bad, &identity{dim: 2}, nil)
	assert.Nil(o)
	assert.Error(err)
}

// resized reports dims which differ from those of the wrapped model
type resized struct {
	ssm.Model
	dims ssm.Dims
}

func (r *resized) Dims() ssm.Dims { return r.dims }

func TestNewDims(t *testing.T) {
	assert := assert.New(t)

	o, err := New(&resized{Model: lin}, rows, &identity{dim: 2}, nil)
	assert.Nil(o)
	assert.Error(err)

	// buffers follow the reported dims: the model predictor rejects them
	o, err = New(&resized{Model: lin, dims: ssm.Dims{SV: 3}}, rows, &identity{dim: 2}, nil)
	require.NoError(t, err)
	assert.Equal(3, o.State().Dim())

	res := o.Evaluate([]float64{1.0, 0.5})
	assert.Equal(Failed, res.Phase)
	assert.True(res.Status.Has(ssm.ErrPred))
	assert.Equal(0, res.Row)
}

func TestObjectiveScalar(t *testing.T) {
	assert := assert.New(t)

	q, r, mu := 0.4, 0.5, 3.0
	m, err := model.NewLinear(
		mat.NewDense(1, 1, []float64{0}),
		mat.NewDense(1, 1, []float64{q}),
		mat.NewDense(1, 1, []float64{1}),
		[]float64{r},
		nil,
	)
	require.NoError(t, err)

	data := []*ssm.Row{{Time: 1, Values: []float64{mu}, Observed: m.Channels()}}
	o, err := New(m, data, &identity{dim: 1}, nil)
	require.NoError(t, err)

	res := o.Evaluate([]float64{mu})
	assert.Equal(Done, res.Phase)
	assert.Equal(ssm.Success, res.Status)
	assert.Equal(1, res.Row)

	want := ekf.LogDensity(mat.NewVecDense(1, []float64{0}), mat.NewDense(1, 1, []float64{q + r}))
	assert.InDelta(want, res.LogLike, 1e-9)
	assert.Equal(-res.LogLike, res.Objective)
	assert.Equal(res.Objective, o.Eval([]float64{mu}))

	// posterior mean unchanged, variance reduced by r/(q+r)
	assert.InDelta(mu, o.State().At(0), 1e-12)
	assert.InDelta(q*r/(q+r), o.State().Cov().At(0, 0), 1e-9)
}

func TestObjectiveIdempotent(t *testing.T) {
	assert := assert.New(t)

	o, err := New(lin, rows, &identity{dim: 2}, nil)
	require.NoError(t, err)

	theta := []float64{1.0, 0.5}
	first := o.Evaluate(theta)
	assert.Equal(Done, first.Phase)
	assert.False(math.IsNaN(first.LogLike))

	// an evaluation at another point must not leak into the next one
	o.Eval([]float64{-2.0, 4.0})

	second := o.Evaluate(theta)
	assert.Equal(first, second)
	assert.Equal(3, o.Evals())
}

func TestObjectiveSkipsEmptyRows(t *testing.T) {
	assert := assert.New(t)

	m := &counting{Model: lin}
	o, err := New(m, rows, &identity{dim: 2}, nil)
	require.NoError(t, err)

	res := o.Evaluate([]float64{1.0, 0.5})
	assert.Equal(Done, res.Phase)
	assert.Equal(len(rows), m.predicts)
	assert.Equal(len(rows)-1, m.jacobians)

	// dropping the empty row and predicting straight over it gives the same log-likelihood
	var full []*ssm.Row
	for _, row := range rows {
		if row.Len() > 0 {
			full = append(full, row)
		}
	}
	o2, err := New(lin, full, &identity{dim: 2}, nil)
	require.NoError(t, err)
	assert.InDelta(res.LogLike, o2.Evaluate([]float64{1.0, 0.5}).LogLike, 1e-9)
}

func TestObjectiveInfeasible(t *testing.T) {
	assert := assert.New(t)

	core, logs := observer.New(zapcore.WarnLevel)
	m := &counting{Model: lin}
	o, err := New(m, rows, &identity{dim: 2}, &Config{Logger: zap.New(core)})
	require.NoError(t, err)

	res := o.Evaluate([]float64{math.NaN(), 0.5})
	assert.Equal(Failed, res.Phase)
	assert.Equal(Worst, res.Objective)
	assert.True(res.Status.Has(ssm.ErrIC))
	assert.Equal(-1, res.Row)
	assert.Equal(0, m.predicts)
	assert.Equal(0, m.jacobians)
	assert.Equal(1, logs.Len())

	// invalid theta length
	res = o.Evaluate([]float64{1.0})
	assert.Equal(Failed, res.Phase)
	assert.Equal(Worst, res.Objective)
}

func TestObjectivePredictFailure(t *testing.T) {
	assert := assert.New(t)

	m := &counting{Model: lin, predErrAt: 2}
	o, err := New(m, rows, &identity{dim: 2}, nil)
	require.NoError(t, err)

	res := o.Evaluate([]float64{1.0, 0.5})
	assert.Equal(Failed, res.Phase)
	assert.Equal(Worst, res.Objective)
	assert.True(res.Status.Has(ssm.ErrPred))
	assert.Equal(1, res.Row)
	// the failed row is not updated and no further rows are processed
	assert.Equal(2, m.predicts)
	assert.Equal(1, m.jacobians)
}

func TestObjectiveUpdateFailure(t *testing.T) {
	assert := assert.New(t)

	// the second row with observations fails to linearize
	m := &counting{Model: lin, jacErrAt: 2}
	o, err := New(m, rows, &identity{dim: 2}, nil)
	require.NoError(t, err)

	res := o.Evaluate([]float64{1.0, 0.5})
	assert.Equal(Failed, res.Phase)
	assert.Equal(Worst, res.Objective)
	assert.Equal(-Worst, res.LogLike)
	assert.True(res.Status.Has(ssm.ErrKalman))
	assert.Equal(1, res.Row)
	// no further rows are processed
	assert.Equal(2, m.predicts)
	assert.Equal(2, m.jacobians)
}

func TestObjectiveSingularInnovation(t *testing.T) {
	assert := assert.New(t)

	sm, err := model.NewLinear(
		mat.NewDense(1, 1, []float64{0}),
		mat.NewDense(1, 1, []float64{1}),
		mat.NewDense(1, 1, []float64{1}),
		[]float64{0},
		nil,
	)
	require.NoError(t, err)

	// a noiseless channel observed twice makes S singular
	ch := sm.Channels()[0]
	data := []*ssm.Row{
		{Time: 1, Values: []float64{0.2, 0.2}, Observed: []ssm.Channel{ch, ch}},
		{Time: 2, Values: []float64{0.3}, Observed: []ssm.Channel{ch}},
	}

	m := &counting{Model: sm}
	o, err := New(m, data, &identity{dim: 1}, nil)
	require.NoError(t, err)

	res := o.Evaluate([]float64{0.0})
	assert.Equal(Failed, res.Phase)
	assert.Equal(Worst, res.Objective)
	assert.True(res.Status.Has(ssm.ErrKalman))
	assert.Equal(0, res.Row)
	assert.Equal(1, m.predicts)
}

func TestObjectivePrior(t *testing.T) {
	assert := assert.New(t)

	space := &identity{dim: 2, lp: -1.5}
	plain, err := New(lin, rows, space, nil)
	require.NoError(t, err)
	withPrior, err := New(lin, rows, space, &Config{Prior: true})
	require.NoError(t, err)

	theta := []float64{1.0, 0.5}
	ll := plain.Evaluate(theta).LogLike
	res := withPrior.Evaluate(theta)
	assert.Equal(Done, res.Phase)
	assert.InDelta(ll-1.5, res.LogLike, 1e-12)
	assert.InDelta(1.5-ll, res.Objective, 1e-12)

	space.status = ssm.ErrPrior
	res = withPrior.Evaluate(theta)
	assert.Equal(Failed, res.Phase)
	assert.Equal(Worst, res.Objective)
	assert.True(res.Status.Has(ssm.ErrPrior))

	// the prior is ignored when disabled
	assert.Equal(Done, plain.Evaluate(theta).Phase)
}

func TestObjectiveResetsIncidence(t *testing.T) {
	assert := assert.New(t)

	sir, err := model.NewSIR(nil)
	require.NoError(t, err)
	cases, err := sir.Channel("cases")
	require.NoError(t, err)

	var data []*ssm.Row
	for i, v := range []float64{6, 9, 14, 20} {
		data = append(data, &ssm.Row{
			Time:     float64(i + 1),
			Values:   []float64{v},
			Observed: []ssm.Channel{cases},
			Reset:    sir.ResetIndices(),
		})
	}

	m := &counting{Model: sir}
	set, err := prior.NewSet([]prior.Spec{
		{Name: "beta", Value: 0.5, Lower: fp(0)},
		{Name: "gamma", Value: 0.25, Lower: fp(0)},
		{Name: "N", Value: 1000, Distribution: "fixed"},
		{Name: "S0", Value: 990, Distribution: "fixed"},
		{Name: "I0", Value: 10, Distribution: "fixed"},
		{Name: "rep", Value: 0.6, Distribution: "uniform", Lower: fp(0), Upper: fp(1)},
		{Name: "phi", Value: 0.1, Distribution: "fixed"},
	})
	require.NoError(t, err)

	o, err := New(m, data, set, &Config{Prior: true})
	require.NoError(t, err)

	res := o.Evaluate(set.Theta())
	assert.Equal(Done, res.Phase)
	assert.False(math.IsNaN(res.LogLike))
	assert.NotEqual(Worst, res.Objective)

	// incidence is zero at the start of every propagation
	assert.Equal([]float64{0, 0, 0, 0}, m.incAtPred)
}

func TestObjectiveTrace(t *testing.T) {
	assert := assert.New(t)

	o, err := New(lin, rows, &identity{dim: 2}, nil)
	require.NoError(t, err)

	p := []float64{1.0, 0.5}
	points, res := o.Trace(p)
	assert.Equal(Done, res.Phase)
	assert.Len(points, len(rows))
	assert.Equal(res, o.Run(p))

	for i, pt := range points {
		row := rows[i]
		assert.Equal(row.Time, pt.Time)
		assert.Len(pt.Predicted, row.Len())
		for j := range pt.Predicted {
			assert.InDelta(row.Values[j]-pt.Predicted[j], pt.Innovation[j], 1e-12)
		}
		assert.NotNil(pt.Estimate)
		assert.Equal(row.Time, pt.Estimate.Time())
	}
}

func TestSummarize(t *testing.T) {
	assert := assert.New(t)

	s := Summarize(-10.0, 20, 3)
	assert.Equal(26.0, s.AIC)
	assert.InDelta(26.0+24.0/16.0, s.AICc, 1e-12)
	assert.Equal(20, s.N)
	assert.Equal(3, s.K)

	s = Summarize(-10.0, 4, 3)
	assert.Equal(s.AIC, s.AICc)
}

func TestPhaseString(t *testing.T) {
	assert := assert.New(t)

	assert.Equal("done", Done.String())
	assert.Equal("failed", Failed.String())
	b, err := Predicting.MarshalText()
	assert.NoError(err)
	assert.Equal("predicting", string(b))
}

func fp(v float64) *float64 { return &v }
