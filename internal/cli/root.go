// Package cli wires cobra subcommands onto internal/store, the way the
// teacher's internal/cli wires subcommands onto its engine.
package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RootOptions holds global flags shared by every subcommand.
type RootOptions struct {
	Verbose bool
	Format  string // "text" | "json"
	Root    string // store directory
	Device  string // device identifier override, "" picks a random one
}

// ValidFormats lists the allowed --format values.
var ValidFormats = []string{"text", "json"}

// NewRootCommand builds the parstore root command.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "parstore",
		Short: "parstore - embeddable, synchronized, persistent key-value store",
		Long: `parstore is a command-line front end over a store of the same
name: an embeddable key-value store that keeps its full mutation
history per device and synchronizes by watching a shared directory.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return WrapExitError(ExitCommandError, "invalid flags",
					fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			if opts.Root == "" {
				return WrapExitError(ExitCommandError, "invalid flags", fmt.Errorf("--store is required"))
			}
			return nil
		},
	}
	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Root, "store", "", "path to the store's root directory")
	cmd.PersistentFlags().StringVar(&opts.Device, "device", "", "device identifier override (random if unset)")

	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewSetCommand(opts))
	cmd.AddCommand(NewHistoryCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewBlobCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}
