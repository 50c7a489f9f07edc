package cli

import (
	"context"

	"github.com/parstore/parstore/internal/store"
)

// openStore opens and synchronously loads the store named by opts.Root,
// the shape every subcommand needs before it can do anything else.
func openStore(ctx context.Context, opts *RootOptions) (*store.Store, error) {
	var storeOpts []store.Option
	if opts.Device != "" {
		storeOpts = append(storeOpts, store.WithDeviceIdentifier(opts.Device))
	}
	s, err := store.Open(opts.Root, storeOpts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "open store", err)
	}
	if err := s.LoadNow(ctx); err != nil {
		return nil, WrapExitError(ExitFailure, "load store", err)
	}
	return s, nil
}
