package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// NewBlobCommand creates the blob command group (write/read/rm/ls).
func NewBlobCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "blob",
		Short: "Manage large binary attachments stored alongside the log",
	}
	cmd.AddCommand(newBlobWriteCommand(rootOpts))
	cmd.AddCommand(newBlobReadCommand(rootOpts))
	cmd.AddCommand(newBlobDeleteCommand(rootOpts))
	cmd.AddCommand(newBlobListCommand(rootOpts))
	cmd.AddCommand(newBlobPathCommand(rootOpts))
	return cmd
}

func newBlobWriteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "write <source-file> <blob-path>",
		Short:         "Copy a local file into the store as a blob",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout(), Verbose: rootOpts.Verbose}
			s, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.TearDownNow(cmd.Context())

			if err := s.WriteBlobFromPath(cmd.Context(), args[0], args[1]); err != nil {
				return WrapExitError(ExitFailure, "write blob", err)
			}
			return out.Success("ok")
		},
	}
}

func newBlobReadCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "read <blob-path>",
		Short:         "Print a blob's contents to stdout",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openStore(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer s.TearDownNow(cmd.Context())

			data, ok, err := s.BlobDataAtPath(cmd.Context(), args[0])
			if err != nil {
				return WrapExitError(ExitFailure, "read blob", err)
			}
			if !ok {
				return WrapExitError(ExitFailure, "read blob", fmt.Errorf("no such blob: %s", args[0]))
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
}

func newBlobDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "rm <blob-path>",
		Short:         "Delete a blob",
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

			if err := s.DeleteBlobAtPath(cmd.Context(), args[0]); err != nil {
				return WrapExitError(ExitFailure, "delete blob", err)
			}
			return out.Success("ok")
		},
	}
}

func newBlobListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "ls",
		Short:         "List every blob's relative path",
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

			paths, err := s.EnumerateBlobs(cmd.Context())
			if err != nil {
				return WrapExitError(ExitFailure, "list blobs", err)
			}
			return out.Success(paths)
		},
	}
}

func newBlobPathCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "path <blob-path>",
		Short:         "Print the absolute filesystem path a blob path resolves to",
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

			abs, err := s.AbsolutePathForBlobPath(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "resolve blob path", err)
			}
			return out.Success(abs)
		},
	}
}
