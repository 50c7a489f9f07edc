package store

import (
	"errors"

	"github.com/parstore/parstore/internal/devicelog"
)

// Error kinds from spec §7. These are sentinel values, not a type
// hierarchy: callers compare with errors.Is, and wrapped errors (IOFailure,
// Corruption) carry the underlying cause via %w.
var (
	// ErrNotLoaded is returned when an operation requires a loaded store
	// and the store is Unloaded or still Loading.
	ErrNotLoaded = errors.New("store: not loaded")
	// ErrDeleted is returned once the backing directory has disappeared.
	ErrDeleted = errors.New("store: deleted")
	// ErrInTransaction is returned when a synchronous call or history
	// query is invoked from inside an active transaction block.
	ErrInTransaction = errors.New("store: invoked from inside a transaction")
	// ErrAppendOrderViolation is returned when an append-only batch
	// includes a timestamp not strictly greater than the log's current max.
	// It is the same sentinel devicelog.AppendBatch returns, so it survives
	// the %w-wrapping that MergeStore and the save path apply.
	ErrAppendOrderViolation = devicelog.ErrAppendOrderViolation
	// ErrDuplicateTimestamp is returned by a non-append-only insert whose
	// timestamp collides with a different existing change's value. It is
	// the same sentinel devicelog.AppendBatch returns, so it survives the
	// %w-wrapping that MergeStore and IngestForeignLog apply on the way up.
	ErrDuplicateTimestamp = devicelog.ErrDuplicateTimestamp
	// ErrBlobPathEscape is returned when a blob-relative path resolves
	// outside the local device's subdirectory.
	ErrBlobPathEscape = errors.New("store: blob path escapes device subdirectory")
	// ErrCoordinatorFailure is returned when the file coordinator
	// refuses access (e.g. the watcher cannot be established).
	ErrCoordinatorFailure = errors.New("store: file coordinator failure")
	// ErrCorruption is the error kind for a log record that fails to
	// decode. No operation of the store returns it at present: decode
	// failures from devicelog are passed up wrapped as they are and do not
	// match ErrCorruption under errors.Is.
	ErrCorruption = errors.New("store: corrupt log record")
	// ErrTornDown is returned by any operation invoked after tearDown.
	ErrTornDown = errors.New("store: torn down")
)

// IOFailure wraps an underlying filesystem error (spec §7 IOFailure).
type IOFailure struct {
	Op   string
	Path string
	Err  error
}

func (e *IOFailure) Error() string {
	return "store: io failure during " + e.Op + " at " + e.Path + ": " + e.Err.Error()
}

func (e *IOFailure) Unwrap() error { return e.Err }
