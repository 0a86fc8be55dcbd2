package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewStatusCommand prints queue depth and last sync outcome.
func NewStatusCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show queue statistics and connectivity",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			stats, err := a.queue.Stats(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "remote configured: %v\n", a.cfg.Configured())
			fmt.Fprintf(out, "connected: %v\n", a.monitor.CheckNow())
			for _, status := range []string{"PENDING", "SYNCING", "SYNCED", "FAILED"} {
				fmt.Fprintf(out, "%-8s %d\n", status, stats[status])
			}
			return nil
		},
	}
}
