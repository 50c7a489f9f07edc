package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:           "get [key]",
		Short:         "Read the current value for a key, or every key",
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			s, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.TearDownNow(cmd.Context())

			if all || len(args) == 0 {
				entries, timestamps, err := s.AllEntries(cmd.Context())
				if err != nil {
					return WrapExitError(ExitFailure, "read all entries", err)
				}
				rendered := make(map[string]interface{}, len(entries))
				for k, v := range entries {
					rendered[k] = map[string]interface{}{
						"value":     fromPropTree(v),
						"timestamp": timestamps[k],
					}
				}
				return out.Success(rendered)
			}

			key := args[0]
			value, ok, err := s.PropertyListValueForKey(cmd.Context(), key)
			if err != nil {
				return WrapExitError(ExitFailure, "read key", err)
			}
			if !ok {
				return WrapExitError(ExitFailure, "read key", fmt.Errorf("no such key: %s", key))
			}
			return out.Success(fromPropTree(value))
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "print every key")
	return cmd
}
