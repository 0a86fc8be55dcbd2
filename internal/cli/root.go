// Package cli wires the sync engine behind a cobra command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by all commands.
type RootOptions struct {
	Verbose      bool
	Token        string
	Tables       string
	StatusTables string
	Schemas      string
}

// NewRootCommand creates the root command for the offsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:           "offsync",
		Short:         "Offline-first sync engine",
		Long:          "Syncs a local SQLite store against a remote PostgREST-style endpoint: queued local mutations are pushed, remote deltas are pulled, conflicts resolve last-write-wins.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Token, "token", "", "bearer token carrying the tenant claim (or ACCESS_TOKEN)")
	cmd.PersistentFlags().StringVar(&opts.Tables, "tables", "", "comma-separated syncable tables")
	cmd.PersistentFlags().StringVar(&opts.StatusTables, "status-tables", "", "tables where an equal-timestamp status change wins")
	cmd.PersistentFlags().StringVar(&opts.Schemas, "schemas", "", "per-table wire schemas, e.g. patients:name,phone_no=phone;visits:notes (or SCHEMAS)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewStatusCommand(opts))
	cmd.AddCommand(NewRetryCommand(opts))

	return cmd
}
