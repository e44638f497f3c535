package main

import (
	"fmt"
	"os"
	"strings"

	ssm "github.com/milosgajdos/go-ssm"
	"github.com/milosgajdos/go-ssm/data"
	"github.com/milosgajdos/go-ssm/model"
	"github.com/milosgajdos/go-ssm/predict"
	"github.com/milosgajdos/go-ssm/prior"
	"github.com/milosgajdos/go-ssm/simplex"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const (
	envPrefix         = "KSIMPLEX"
	defaultModel      = "sir"
	defaultDt         = predict.DefaultDt
	defaultVarFloor   = ssm.ZeroLog
	defaultIterations = simplex.DefaultIterations
	defaultTolerance  = simplex.DefaultTolerance
	defaultStall      = simplex.DefaultStall
	defaultHorizon    = 52.0
)

// Config is ksimplex configuration
type Config struct {
	Model       string
	Params      string
	Data        string
	Out         string
	Title       string
	Dt          float64
	VarFloor    float64
	Prior       bool
	Verbose     bool
	Iterations  int
	Evaluations int
	Tolerance   float64
	Stall       int
	Restarts    int
	Starts      int
	Concurrency int
	Seed        uint64
	Channels    []string
	Horizon     float64
	Step        float64
}

// loadConfig loads configuration with precedence: flags > env > file > defaults.
// flagSet may be nil.
func loadConfig(flagSet *flag.FlagSet) (*Config, error) {
	v := viper.New()

	v.SetDefault("model", defaultModel)
	v.SetDefault("dt", defaultDt)
	v.SetDefault("var-floor", defaultVarFloor)
	v.SetDefault("iterations", defaultIterations)
	v.SetDefault("tolerance", defaultTolerance)
	v.SetDefault("stall", defaultStall)
	v.SetDefault("starts", 1)
	v.SetDefault("horizon", defaultHorizon)
	v.SetDefault("step", 1.0)

	if flagSet != nil {
		if err := v.BindPFlags(flagSet); err != nil {
			return nil, fmt.Errorf("failed to bind flags: %w", err)
		}
	}

	if file := v.GetString("config"); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", file, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		Model:       v.GetString("model"),
		Params:      v.GetString("params"),
		Data:        v.GetString("data"),
		Out:         v.GetString("out"),
		Title:       v.GetString("title"),
		Dt:          v.GetFloat64("dt"),
		VarFloor:    v.GetFloat64("var-floor"),
		Prior:       v.GetBool("prior"),
		Verbose:     v.GetBool("verbose"),
		Iterations:  v.GetInt("iterations"),
		Evaluations: v.GetInt("evaluations"),
		Tolerance:   v.GetFloat64("tolerance"),
		Stall:       v.GetInt("stall"),
		Restarts:    v.GetInt("restarts"),
		Starts:      v.GetInt("starts"),
		Concurrency: v.GetInt("concurrency"),
		Seed:        v.GetUint64("seed"),
		Channels:    v.GetStringSlice("channels"),
		Horizon:     v.GetFloat64("horizon"),
		Step:        v.GetFloat64("step"),
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Params == "" {
		return fmt.Errorf("missing parameter document")
	}
	if !(cfg.Dt > 0) {
		return fmt.Errorf("invalid integration step: %v", cfg.Dt)
	}
	if !(cfg.VarFloor > 0) {
		return fmt.Errorf("invalid variance floor: %v", cfg.VarFloor)
	}
	if cfg.Starts < 1 {
		return fmt.Errorf("invalid number of starts: %d", cfg.Starts)
	}
	if cfg.Restarts < 0 {
		return fmt.Errorf("invalid number of restarts: %d", cfg.Restarts)
	}

	return nil
}

func newLogger(cfg *Config) (*zap.Logger, error) {
	if cfg.Verbose {
		return zap.NewDevelopment()
	}

	return zap.NewProduction()
}

// newModel creates new model named in cfg
func newModel(cfg *Config, log *zap.Logger) (*model.SIR, error) {
	switch cfg.Model {
	case "sir":
		return model.NewSIR(&predict.Config{Dt: cfg.Dt, Logger: log})
	default:
		return nil, fmt.Errorf("unknown model: %s", cfg.Model)
	}
}

// loadParams reads the parameter document and orders it by the model parameters
func loadParams(path string, names []string) (*prior.Set, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	set, err := prior.Load(f)
	if err != nil {
		return nil, fmt.Errorf("parameter document %s: %w", path, err)
	}

	return set.Order(names)
}

// loadTable reads the CSV observations
func loadTable(path string) (*data.Table, error) {
	if path == "" {
		return nil, fmt.Errorf("missing data file")
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	t, err := data.Read(f)
	if err != nil {
		return nil, fmt.Errorf("data %s: %w", path, err)
	}

	return t, nil
}
