package cli

import (
	"github.com/spf13/cobra"
)

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "history <key>",
		Short:         "Print every recorded change for a key, oldest first",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			s, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.TearDownNow(cmd.Context())

			entries, err := s.History(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "fetch history", err)
			}

			rendered := make([]map[string]interface{}, len(entries))
			for i, e := range entries {
				rendered[i] = map[string]interface{}{
					"device":    e.Device,
					"timestamp": e.Change.Timestamp,
					"value":     fromPropTree(e.Change.Value),
				}
			}
			return out.Success(rendered)
		},
	}
	return cmd
}
