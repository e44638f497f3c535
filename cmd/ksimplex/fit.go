package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/milosgajdos/go-ssm/fit"
	"github.com/milosgajdos/go-ssm/prior"
	"github.com/milosgajdos/go-ssm/sim"
	"github.com/milosgajdos/go-ssm/simplex"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
	"gopkg.in/yaml.v3"
)

// fitReport is the fit command output
type fitReport struct {
	Model string `json:"model"`
	// Names are the names of all parameters
	Names []string `json:"names"`
	// Estimated are the names of the estimated parameters
	Estimated []string `json:"estimated"`
	*simplex.Result
	// Summary is computed from the log-likelihood without the log prior
	Summary fit.Summary `json:"summary"`
	// LogPosterior is the log-likelihood plus the log prior when the prior is enabled
	LogPosterior *float64 `json:"log_posterior,omitempty"`
	// Innovations is the empirical innovation covariance at the fitted parameters
	Innovations *innovationReport `json:"innovations,omitempty"`
}

// innovationReport is empirical covariance of the innovations of complete rows
type innovationReport struct {
	Channels []string    `json:"channels"`
	Cov      [][]float64 `json:"cov"`
}

func newInnovationReport(names []string, cov mat.Symmetric) *innovationReport {
	n := cov.SymmetricDim()
	r := &innovationReport{
		Channels: names,
		Cov:      make([][]float64, n),
	}
	for i := range r.Cov {
		r.Cov[i] = make([]float64, n)
		for j := range r.Cov[i] {
			r.Cov[i][j] = cov.At(i, j)
		}
	}

	return r
}

func doFit(cmd *cobra.Command, args []string) error {
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

	fc := &fit.Config{
		Prior:    cfg.Prior,
		VarFloor: cfg.VarFloor,
		Logger:   log,
	}

	// every search owns its model since the integrator keeps scratch space
	factory := func() (*fit.Objective, error) {
		m, err := newModel(cfg, log)
		if err != nil {
			return nil, err
		}
		return fit.New(m, rows, set, fc)
	}

	sc := &simplex.Config{
		Iterations:  cfg.Iterations,
		Evaluations: cfg.Evaluations,
		Tolerance:   cfg.Tolerance,
		Stall:       cfg.Stall,
		Restarts:    cfg.Restarts,
		Starts:      cfg.Starts,
		Concurrency: cfg.Concurrency,
		Seed:        cfg.Seed,
		Logger:      log,
	}

	res, err := simplex.Minimize(cmd.Context(), factory, set, sc)
	if res == nil {
		return err
	}
	if err != nil {
		log.Warn("search interrupted: reporting the best point found", zap.Error(err))
	}

	// the information criteria use the likelihood alone
	obj, objErr := factory()
	if objErr != nil {
		return objErr
	}
	points, lik := obj.Trace(res.Params)

	report := &fitReport{
		Model:     cfg.Model,
		Names:     set.Names(),
		Estimated: set.Estimated(),
		Result:    res,
		Summary:   fit.Summarize(lik.LogLike, obj.Observations(), set.Dim()),
	}
	if cfg.Prior {
		lp := res.Fit.LogLike
		report.LogPosterior = &lp
	}

	if cov, covErr := sim.InnovationCov(points, len(table.Names)); covErr != nil {
		log.Warn("innovation covariance not available", zap.Error(covErr))
	} else {
		report.Innovations = newInnovationReport(table.Names, cov)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	if encErr := enc.Encode(report); encErr != nil {
		return encErr
	}

	if cfg.Out != "" {
		if outErr := writeParams(cfg.Out, set, res.Params); outErr != nil {
			return outErr
		}
	}

	return err
}

// writeParams writes the parameter document of set with values p to path
func writeParams(path string, set *prior.Set, p []float64) error {
	doc, err := set.Document(p)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := yaml.NewEncoder(f)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to write parameters: %w", err)
	}

	return enc.Close()
}
