package cli

import (
	"github.com/spf13/cobra"
)

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "sync",
		Short:         "Force immediate ingestion of every known foreign device log",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			s, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.TearDownNow(cmd.Context())

			if err := s.SyncNow(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "sync", err)
			}
			return out.Success("synced")
		},
	}
	return cmd
}
