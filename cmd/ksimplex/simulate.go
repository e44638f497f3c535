package main

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/milosgajdos/go-ssm/data"
	"github.com/milosgajdos/go-ssm/noise"
	"github.com/milosgajdos/go-ssm/sim"
	"github.com/spf13/cobra"
)

// sampleTimes returns observation times step, 2*step, ... up to horizon
func sampleTimes(horizon, step float64) ([]float64, error) {
	if !(step > 0) || !(horizon >= step) || math.IsInf(horizon, 0) {
		return nil, fmt.Errorf("invalid time grid: horizon %v, step %v", horizon, step)
	}

	n := int(math.Floor(horizon/step + 1e-9))
	times := make([]float64, n)
	for i := range times {
		times[i] = float64(i+1) * step
	}

	return times, nil
}

func doSimulate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd.Flags())
	if err != nil {
		return err
	}

	log, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	m, err := newModel(cfg, log)
	if err != nil {
		return err
	}

	set, err := loadParams(cfg.Params, m.Params())
	if err != nil {
		return err
	}

	times, err := sampleTimes(cfg.Horizon, cfg.Step)
	if err != nil {
		return err
	}

	channels := cfg.Channels
	if len(channels) == 0 {
		channels = m.Names()
	}

	s, err := sim.Simulate(m, set.Values(), times, channels, noise.NewGaussian(cfg.Seed))
	if err != nil {
		return err
	}

	var w io.Writer = cmd.OutOrStdout()
	if cfg.Out != "" {
		f, err := os.Create(cfg.Out)
		if err != nil {
			return err
		}
		defer f.Close()
		w = f
	}

	return data.Write(w, s.Obs)
}
