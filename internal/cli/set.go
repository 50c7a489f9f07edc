package cli

import (
	"github.com/spf13/cobra"
)

// NewSetCommand creates the set command.
func NewSetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "set <key> <json-value>",
		Short:         "Write a value for a key, stamped with the current time",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			value, err := parseValue(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "parse value", err)
			}

			s, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.TearDownNow(cmd.Context())

			if err := s.SetPropertyListValue(cmd.Context(), value, args[0]); err != nil {
				return WrapExitError(ExitFailure, "set key", err)
			}
			if err := s.SaveNow(cmd.Context()); err != nil {
				return WrapExitError(ExitFailure, "save", err)
			}
			out.VerboseLog("set %s", args[0])
			return out.Success("ok")
		},
	}
	return cmd
}
