package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewRetryCommand resets FAILED operations so the next drain picks them up.
func NewRetryCommand(opts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "retry",
		Short: "Reset failed operations for another sync attempt",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(opts)
			if err != nil {
				return err
			}
			defer a.close()

			reset, err := a.queue.ResetFailed(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "reset %d failed operations\n", reset)
			return nil
		},
	}
}
