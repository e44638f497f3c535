// Package sim simulates observations of compiled models and plots filter output.
package sim

import (
	"fmt"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/data"
	"github.com/milosgajdos/go-ssm/estimate"
	"github.com/milosgajdos/go-ssm/noise"
	"github.com/milosgajdos/go-ssm/state"
)

// Model is a model which can be simulated
type Model interface {
	ssm.Model
	data.Channels
	// ResetIndices returns state indices of the incidence accumulators
	ResetIndices() []int
}

// Simulation is a simulated data set
type Simulation struct {
	// Obs holds the simulated observations
	Obs *data.Table
	// States holds the simulated state at every observation time;
	// the trajectory is deterministic so each has zero covariance
	States []*estimate.Base
}

// Simulate propagates the mean of m with parameters p through times and
// draws observations of the named channels with gaussian noise of the channel
// variance. Incidences are reset between consecutive observation times.
// It returns error if the parameters are infeasible, the propagation fails
// or a channel is unknown.
func Simulate(m Model, p []float64, times []float64, names []string, g *noise.Gaussian) (*Simulation, error) {
	if status := m.Validate(p); status.Failed() {
		return nil, fmt.Errorf("invalid parameters: %w", status.Err())
	}

	channels := make([]ssm.Channel, len(names))
	for i, name := range names {
		ch, err := m.Channel(name)
		if err != nil {
			return nil, err
		}
		channels[i] = ch
	}

	x, err := state.New(m.Dims().Total())
	if err != nil {
		return nil, err
	}
	m.Init(x, p)

	sim := &Simulation{
		Obs: &data.Table{Names: append([]string(nil), names...)},
	}

	t0 := 0.0
	for _, t := range times {
		x.ResetInc(m.ResetIndices())
		if status := m.Predict(x, t0, t, p); status.Failed() {
			return nil, fmt.Errorf("propagation to %v failed: %w", t, status.Err())
		}
		// the simulated trajectory is deterministic
		x.ResetCov()

		vals := make([]float64, len(channels))
		for i, ch := range channels {
			v, err := g.Sample(ch.Mean(x, p, t), ch.Var(x, p, t))
			if err != nil {
				return nil, fmt.Errorf("channel %s at %v: %w", names[i], t, err)
			}
			vals[i] = v
		}

		sim.Obs.Times = append(sim.Obs.Times, t)
		sim.Obs.Values = append(sim.Obs.Values, vals)
		est, err := estimate.NewBase(t, x.Mean())
		if err != nil {
			return nil, err
		}
		sim.States = append(sim.States, est)

		t0 = t
	}

	return sim, nil
}
