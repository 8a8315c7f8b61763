package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"codeberg.org/mutker/cpubench/internal/config"
	"codeberg.org/mutker/cpubench/internal/errors"
	"codeberg.org/mutker/cpubench/internal/logger"
	"codeberg.org/mutker/cpubench/internal/metrics"
	"codeberg.org/mutker/cpubench/internal/pid"
	"codeberg.org/mutker/cpubench/internal/sensor"
	"codeberg.org/mutker/cpubench/internal/session"
	"codeberg.org/mutker/cpubench/internal/telemetry"
	"codeberg.org/mutker/cpubench/internal/workload"
	"github.com/spf13/cobra"
)

var cfg *config.Config

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Msg("cpubench failed")
		} else {
			logger.Error().Err(err).Msg("cpubench failed")
		}
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "cpubench",
		Short:         "Multi-core CPU benchmark with live telemetry",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cfg, err = config.Load(cmd.Flags())
			if err != nil {
				return err
			}
			logger.Init(cfg.LogLevel, logger.IsService())
			logger.Debug().Int("workers", cfg.EffectiveWorkers()).Msg("Config loaded")
			return nil
		},
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(
		newRunCmd(),
		newSuiteCmd(),
		newInfoCmd(),
		newMetricsCmd(),
		newWatchCmd(),
	)
	return root
}

// app wires the sensor, sampler, recorder and coordinator from cfg.
type app struct {
	provider *sensor.Linux
	sampler  *telemetry.Sampler
	coord    *session.Coordinator
}

func newApp() (*app, error) {
	provider := sensor.NewLinux(logger.With("sensor"))

	collector, err := metrics.NewService(metrics.Config{
		DBPath:       cfg.Metrics.DBPath,
		Enabled:      cfg.Metrics.Enabled,
		BatchSize:    cfg.Metrics.BatchSize,
		BatchTimeout: cfg.Metrics.BatchTimeout,
	}, logger.With("metrics"))
	if err != nil {
		return nil, err
	}

	sampler, err := telemetry.NewSampler(provider, telemetry.Config{
		Interval:    cfg.SampleInterval,
		HistorySize: cfg.HistorySize,
	},
		telemetry.WithLogger(logger.With("telemetry")),
		telemetry.WithRecorder(collector),
	)
	if err != nil {
		closeLogged(collector, "metrics collector")
		return nil, err
	}

	coord, err := session.New(sampler, session.Config{
		Workers:      cfg.EffectiveWorkers(),
		TestInterval: cfg.TestSampleInterval,
		IdleInterval: cfg.SampleInterval,
		ResultsLimit: cfg.ResultsLimit,
		Defaults:     defaultsFromConfig(cfg),
	},
		session.WithLogger(logger.With("session")),
		session.WithCollector(collector),
		session.WithCloser(provider),
	)
	if err != nil {
		closeLogged(collector, "metrics collector")
		return nil, err
	}

	return &app{provider: provider, sampler: sampler, coord: coord}, nil
}

func (a *app) Close() error {
	return a.coord.Close()
}

// closeLogged closes c and logs a failure, for deferred cleanup where the
// error has nowhere else to go.
func closeLogged(c io.Closer, what string) {
	if err := c.Close(); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.ErrorWithCode(appErr).Str("resource", what).Msg("Failed to release resources")
			return
		}
		logger.Error().Err(err).Str("resource", what).Msg("Failed to release resources")
	}
}

func defaultsFromConfig(c *config.Config) workload.Defaults {
	return workload.Defaults{
		Prime:     workload.PrimeParams{MaxNumber: c.Prime.MaxNumber},
		Matrix:    workload.MatrixParams{Size: c.Matrix.Size},
		Fibonacci: workload.FibonacciParams{MaxN: c.Fibonacci.MaxN},
		Sorting: workload.SortingParams{
			ArraySize:         c.Sorting.ArraySize,
			ParallelDepth:     c.Sorting.ParallelDepth,
			ParallelThreshold: c.Sorting.ParallelThreshold,
		},
		MonteCarlo: workload.MonteCarloParams{Iterations: c.MonteCarlo.Iterations},
	}
}

// guard holds the PID file for the lifetime of a benchmarking command.
func guard() (func(), error) {
	if err := pid.Write(""); err != nil {
		return nil, err
	}
	return func() {
		if err := pid.Remove(""); err != nil {
			logger.Warn().Err(err).Msg("Failed to remove PID file")
		}
	}, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
