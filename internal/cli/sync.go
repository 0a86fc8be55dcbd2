package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewSyncCommand runs one synchronous bidirectional pass and exits.
func NewSyncCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run a single sync pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			if _, err := a.requireSession(); err != nil {
				return err
			}
			if err := a.orchestrator.RunPass(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "sync complete")
			return nil
		},
	}
}
