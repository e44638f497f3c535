// Command ksimplex fits compiled state space models to time series with an
// extended Kalman filter and the Nelder-Mead simplex.
package main

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	cobra.CheckErr(NewCmd().ExecuteContext(ctx))
}

// NewCmd returns the ksimplex root command
func NewCmd() *cobra.Command {
	cobra.EnableCommandSorting = false

	rootCmd := &cobra.Command{
		Use:           "ksimplex [command] [flags]",
		Short:         "ksimplex fits state space models by maximum likelihood",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Print(cmd.UsageString())
		},
	}
	pf := rootCmd.PersistentFlags()
	pf.StringP("config", "c", "", "`<File>` YAML configuration")
	pf.StringP("params", "p", "", "`<File>` YAML parameter document")
	pf.StringP("model", "m", defaultModel, "`<Name>` of the model")
	pf.Float64("dt", defaultDt, "`<Step>` of the ODE integrator")
	pf.BoolP("verbose", "v", false, "development logging")

	fitCmd := &cobra.Command{
		Use:   "fit [flags]",
		Short: "Fit model parameters to data",
		Args:  cobra.NoArgs,
		RunE:  doFit,
	}
	ff := fitCmd.Flags()
	ff.StringP("data", "d", "", "`<File>` CSV observations")
	ff.Bool("prior", false, "add the log prior to the log-likelihood")
	ff.Float64("var-floor", defaultVarFloor, "`<Floor>` of the observation and innovation variance")
	ff.Int("iterations", defaultIterations, "`<N>` simplex iterations per search")
	ff.Int("evaluations", 0, "`<N>` objective evaluations per search, 0 means no limit")
	ff.Float64("tolerance", defaultTolerance, "`<Tol>` of the function convergence")
	ff.Int("stall", defaultStall, "`<N>` iterations without improvement before convergence")
	ff.Int("restarts", 0, "`<N>` restarts from the best point")
	ff.Int("starts", 1, "`<N>` jittered starting points")
	ff.Int("concurrency", 0, "`<N>` concurrent searches, 0 means GOMAXPROCS")
	ff.Uint64("seed", 0, "`<Seed>` of the starting point jitter")
	ff.StringP("out", "o", "", "`<File>` to write the fitted parameter document to")

	simulateCmd := &cobra.Command{
		Use:   "simulate [flags]",
		Short: "Simulate observations as CSV",
		Args:  cobra.NoArgs,
		RunE:  doSimulate,
	}
	sf := simulateCmd.Flags()
	sf.StringSlice("channels", nil, "`<Names>` of the simulated channels, all by default")
	sf.Float64("horizon", defaultHorizon, "`<Time>` of the last observation")
	sf.Float64("step", 1.0, "`<Time>` between observations")
	sf.Uint64("seed", 0, "`<Seed>` of the observation noise")
	sf.StringP("out", "o", "", "`<File>` to write CSV to, stdout by default")

	plotCmd := &cobra.Command{
		Use:   "plot [flags]",
		Short: "Plot observations against one step ahead predictions",
		Args:  cobra.NoArgs,
		RunE:  doPlot,
	}
	lf := plotCmd.Flags()
	lf.StringP("data", "d", "", "`<File>` CSV observations")
	lf.Float64("var-floor", defaultVarFloor, "`<Floor>` of the observation and innovation variance")
	lf.StringP("out", "o", "ksimplex.png", "`<File>` PNG output")
	lf.String("title", "", "`<Title>` of the plot")

	rootCmd.AddCommand(fitCmd, simulateCmd, plotCmd)

	return rootCmd
}
