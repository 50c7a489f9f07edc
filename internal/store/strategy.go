package store

import "github.com/parstore/parstore/internal/proptree"

// SyncStrategy generalizes PARStore's subclassing hook
// (applySyncChangeWithValues:timestamps:) into an injected value (spec
// §9, SPEC_FULL §C.3). ApplySyncChange is called once per ingestion pass
// that actually moved keys, with the store's projection already
// updated; implementations may inspect, then further mutate the store
// to resolve conflicts, then return.
type SyncStrategy interface {
	// ApplySyncChange is invoked after the projection has absorbed an
	// ingested or merged batch. values/timestamps are keyed the same way
	// as a Synced event's payload.
	ApplySyncChange(values map[string]proptree.Value, timestamps map[string]int64)
	// RelevantKeys optionally restricts which keys a sync pass may
	// touch; a nil or empty result means "no restriction".
	RelevantKeys() []string
}

// defaultSyncStrategy is the zero-behavior default: the projection
// update alone is the effect of a sync, nothing further happens.
type defaultSyncStrategy struct{}

func (defaultSyncStrategy) ApplySyncChange(map[string]proptree.Value, map[string]int64) {}
func (defaultSyncStrategy) RelevantKeys() []string                                      { return nil }
