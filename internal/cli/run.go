package cli

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/niyaskv/offsync/internal/logging"
)

// NewRunCommand starts the background engine: connectivity monitor plus the
// periodic sync loop, until SIGINT/SIGTERM.
func NewRunCommand(opts *RootOptions) *cobra.Command {
	var initial bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the sync engine until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.requireSession(); err != nil {
				return err
			}

			a.monitor.Start()
			a.orchestrator.Start()
			defer a.orchestrator.Stop()
			defer a.monitor.Stop()

			if initial {
				if err := a.orchestrator.InitialSync(cmd.Context()); err != nil {
					logging.Warn("initial sync failed", map[string]interface{}{"error": err.Error()})
				}
			}
			a.orchestrator.Sync()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			sig := <-sigCh
			logging.Info("shutting down", map[string]interface{}{"signal": sig.String()})
			return nil
		},
	}

	cmd.Flags().BoolVar(&initial, "initial", false, "enqueue every local record before the first pass")
	return cmd
}
