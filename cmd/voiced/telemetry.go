package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/voiced-ai/voiced/internal/telemetry"
)

func newTelemetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "telemetry",
		Short: "Inspect locally recorded session/run timing (requires --enable-telemetry)",
	}
	cmd.AddCommand(newTelemetrySessionsCmd())
	cmd.AddCommand(newTelemetryRunsCmd())
	return cmd
}

func openTelemetry() (*telemetry.Store, error) {
	if !sdkCfg.EnableTelemetry {
		return nil, fmt.Errorf("telemetry is disabled; pass --enable-telemetry and --telemetry-dsn")
	}
	return telemetry.Open(sdkCfg.TelemetryDSN)
}

func newTelemetrySessionsCmd() *cobra.Command {
	var limit, offset int
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "List recorded conversation sessions",
		RunE: func(_ *cobra.Command, _ []string) error {
			store, err := openTelemetry()
			if err != nil {
				return err
			}
			defer store.Close()

			sessions, total, lerr := store.ListSessions(limit, offset)
			if lerr != nil {
				return lerr
			}
			for _, s := range sessions {
				fmt.Printf("%s\t%s\truns=%d\n", s.ID, s.StartedAt.Format("2006-01-02T15:04:05"), s.RunCount)
			}
			fmt.Printf("(%d of %d)\n", len(sessions), total)
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum sessions to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Pagination offset")
	return cmd
}

func newTelemetryRunsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "runs <session-id>",
		Short: "List turns recorded for one session",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			store, err := openTelemetry()
			if err != nil {
				return err
			}
			defer store.Close()

			session, runs, gerr := store.GetSession(args[0])
			if gerr != nil {
				return gerr
			}
			fmt.Printf("session %s started %s\n", session.ID, session.StartedAt.Format("2006-01-02T15:04:05"))
			for _, r := range runs {
				fmt.Printf("%s\t%s\t%.1fms\t%q -> %q\n", r.ID, r.Status, r.DurationMs, r.Transcript, r.Response)
			}
			return nil
		},
	}
	return cmd
}
