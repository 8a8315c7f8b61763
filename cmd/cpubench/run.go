package main

import (
	"context"

	"codeberg.org/mutker/cpubench/internal/logger"
	"codeberg.org/mutker/cpubench/internal/session"
	"codeberg.org/mutker/cpubench/internal/workload"
	"github.com/spf13/cobra"
)

func newRunCmd() *cobra.Command {
	var (
		params    map[string]string
		exportDir string
	)

	cmd := &cobra.Command{
		Use:       "run <kind>",
		Short:     "Run one workload and print its result with monitoring data",
		Args:      cobra.ExactArgs(1),
		ValidArgs: kindNames(),
		RunE: func(cmd *cobra.Command, args []string) error {
			release, err := guard()
			if err != nil {
				return err
			}
			defer release()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer closeLogged(a, "benchmark session")

			sess, err := runOne(cmd.Context(), a.coord, args[0], toAny(params))
			if err != nil {
				return err
			}

			if exportDir != "" {
				path, err := a.coord.ExportHistoryFile(exportDir)
				if err != nil {
					return err
				}
				logger.Info().Str("path", path).Msg("Exported telemetry history")
			}

			return printJSON(cmd.OutOrStdout(), sess)
		},
	}

	cmd.Flags().StringToStringVarP(&params, "param", "p", nil, "Workload parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&exportDir, "export", "", "Directory to write the captured telemetry history to")
	return cmd
}

func newSuiteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "suite",
		Short: "Run every workload in turn with configured defaults and print the archive",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			release, err := guard()
			if err != nil {
				return err
			}
			defer release()

			a, err := newApp()
			if err != nil {
				return err
			}
			defer closeLogged(a, "benchmark session")

			for _, k := range workload.Kinds {
				if _, err := runOne(cmd.Context(), a.coord, string(k), nil); err != nil {
					return err
				}
			}
			return printJSON(cmd.OutOrStdout(), a.coord.Results())
		},
	}
}

// runOne starts a test and blocks until it is archived.
func runOne(ctx context.Context, coord *session.Coordinator, kind string, params map[string]any) (*session.Session, error) {
	id, err := coord.StartTest(kind, params)
	if err != nil {
		return nil, err
	}

	if err := coord.Wait(ctx); err != nil {
		logger.Warn().Str("test_id", id).Msg("Interrupted; a running workload cannot be cancelled")
		return nil, err
	}

	sess, err := coord.Result(id)
	if err != nil {
		return nil, err
	}
	logger.Info().
		Str("test_id", id).
		Str("status", string(sess.Status)).
		Msg("Test finished")
	return sess, nil
}

func toAny(in map[string]string) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func kindNames() []string {
	names := make([]string, len(workload.Kinds))
	for i, k := range workload.Kinds {
		names[i] = string(k)
	}
	return names
}
