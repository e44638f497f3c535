package main

import (
	"fmt"
	"math"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/data"
	"github.com/milosgajdos/go-ssm/fit"
	"github.com/milosgajdos/go-ssm/sim"
	"github.com/spf13/cobra"
	"gonum.org/v1/plot/vg"
)

// predictions returns the one step ahead prediction of channel ch at every
// trace point; NaN where ch was not observed.
func predictions(points []fit.Point, rows []*ssm.Row, ch ssm.Channel) []float64 {
	y := make([]float64, len(points))
	for n := range points {
		y[n] = math.NaN()
		for i, c := range rows[n].Observed {
			if c == ch {
				y[n] = points[n].Predicted[i]
				break
			}
		}
	}

	return y
}

func doPlot(cmd *cobra.Command, args []string) error {
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

	table, err := loadTable(cfg.Data)
	if err != nil {
		return err
	}

	rows, err := table.Rows(m, m.ResetIndices())
	if err != nil {
		return err
	}

	obj, err := fit.New(m, rows, set, &fit.Config{VarFloor: cfg.VarFloor, Logger: log})
	if err != nil {
		return err
	}

	points, res := obj.Trace(set.Values())
	if res.Phase != fit.Done {
		return fmt.Errorf("filter failed at row %d: %w", res.Row, res.Status.Err())
	}

	series := make([]sim.Series, 0, 2*len(table.Names))
	times := make([]float64, len(points))
	for n := range points {
		times[n] = points[n].Time
	}
	for i, name := range table.Names {
		ch, err := m.Channel(name)
		if err != nil {
			return err
		}
		series = append(series,
			sim.Series{Name: name, X: table.Times, Y: column(table, i)},
			sim.Series{Name: name + " predicted", X: times, Y: predictions(points, rows, ch)},
		)
	}

	title := cfg.Title
	if title == "" {
		title = fmt.Sprintf("%s: log-likelihood %.4g", cfg.Model, res.LogLike)
	}

	p, err := sim.NewPlot(title, series...)
	if err != nil {
		return err
	}

	if err := p.Save(8*vg.Inch, 5*vg.Inch, cfg.Out); err != nil {
		return err
	}

	cmd.Printf("plot written to %s\n", cfg.Out)

	return nil
}

func column(t *data.Table, i int) []float64 {
	col := make([]float64, len(t.Times))
	for n := range t.Values {
		col[n] = t.Values[n][i]
	}

	return col
}
