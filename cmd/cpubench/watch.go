package main

import (
	"time"

	"codeberg.org/mutker/cpubench/internal/logger"
	"github.com/spf13/cobra"
)

func newWatchCmd() *cobra.Command {
	var (
		duration  time.Duration
		window    time.Duration
		exportDir string
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Sample telemetry at the general interval and print the windowed average",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp()
			if err != nil {
				return err
			}
			defer closeLogged(a, "benchmark session")

			ctx := cmd.Context()
			a.sampler.Start()
			defer a.sampler.Stop()

			ticker := time.NewTicker(a.sampler.Interval())
			defer ticker.Stop()

			var deadline <-chan time.Time
			if duration > 0 {
				timer := time.NewTimer(duration)
				defer timer.Stop()
				deadline = timer.C
			}

		loop:
			for {
				select {
				case <-ctx.Done():
					break loop
				case <-deadline:
					break loop
				case <-ticker.C:
					latest := a.sampler.Latest(1)
					if len(latest) == 0 {
						continue
					}
					s := latest[0]
					ev := logger.Info().
						Float64("cpu_percent", s.CPUPercent).
						Float64("cpu_freq_mhz", s.CPUFreqMHz).
						Float64("memory_percent", s.MemPercent)
					if s.TemperatureC != nil {
						ev = ev.Float64("temperature", *s.TemperatureC)
					}
					ev.Msg("")
				}
			}
			a.sampler.Stop()

			if exportDir != "" {
				path, err := a.sampler.ExportFile(exportDir)
				if err != nil {
					return err
				}
				logger.Info().Str("path", path).Msg("Exported telemetry history")
			}

			avg := a.sampler.Average(window)
			if avg == nil {
				logger.Warn().Msg("No samples captured")
				return nil
			}
			return printJSON(cmd.OutOrStdout(), avg)
		},
	}

	cmd.Flags().DurationVar(&duration, "duration", 0, "Stop after this long (0 = until interrupted)")
	cmd.Flags().DurationVar(&window, "window", time.Minute, "Trailing window for the printed average")
	cmd.Flags().StringVar(&exportDir, "export", "", "Directory to write the captured telemetry history to")
	return cmd
}
