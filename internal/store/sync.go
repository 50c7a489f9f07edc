package store

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/clock"
	"github.com/parstore/parstore/internal/devicelog"
	"github.com/parstore/parstore/internal/proptree"
)

// IngestForeignLog runs the four-step ingestion algorithm (spec §4.6)
// for device's log: resolve the high-water mark already absorbed into
// the projection, scan for changes past it, apply them under a database
// barrier, and publish a Synced event plus the sync strategy hook if
// anything actually moved. It implements coordinator.Handler. A failure
// is reported as an Error event in addition to being returned, since the
// coordinator's own debounced caller discards the return value.
func (s *Store) IngestForeignLog(ctx context.Context, device string) (err error) {
	defer func() {
		if err != nil {
			s.publishError(fmt.Errorf("ingest %s: %w", device, err))
		}
	}()

	if err := s.requireLoaded(); err != nil {
		return err
	}
	if device == s.device {
		return nil // never ingest our own log as "foreign"
	}

	if _, err := s.foreignLog(device); err != nil {
		return err
	}

	since := s.projection.MaxTimestampForDevice(device)
	var sincePtr *int64
	if since != clock.DistantPast {
		sincePtr = &since
	}

	entries, err := s.history.FetchChangesSinceTimestamp(ctx, sincePtr, device)
	if err != nil {
		return fmt.Errorf("scan %s: %w", device, err)
	}
	if len(entries) == 0 {
		return nil
	}

	changes := make([]change.Change, 0, len(entries))
	for _, e := range entries {
		changes = append(changes, e.Change)
	}
	changes = filterRelevantKeys(changes, s.options.syncStrategy.RelevantKeys())
	if len(changes) == 0 {
		return nil
	}

	var moved []string
	s.dbQueue.BarrierSync(ctx, func(ctx context.Context) {
		moved = s.projection.Apply(device, changes)
	})

	if len(moved) == 0 {
		return nil
	}

	values, timestamps := s.snapshotKeys(moved)
	s.notificationQueue.Async(ctx, func(ctx context.Context) {
		s.events.Publish(Event{Kind: EventSynced, Values: values, Timestamps: timestamps})
	})
	s.options.logger.Info("ingested foreign log", "device", device, "keys_changed", len(moved))
	s.options.syncStrategy.ApplySyncChange(values, timestamps)
	return nil
}

// filterRelevantKeys restricts changes to those whose key is in
// relevant, leaving changes untouched when relevant is empty (spec
// SPEC_FULL §C.3: "a nil or empty result means no restriction").
func filterRelevantKeys(changes []change.Change, relevant []string) []change.Change {
	if len(relevant) == 0 {
		return changes
	}
	allowed := make(map[string]struct{}, len(relevant))
	for _, k := range relevant {
		allowed[k] = struct{}{}
	}
	out := changes[:0:0]
	for _, c := range changes {
		if _, ok := allowed[c.Key]; ok {
			out = append(out, c)
		}
	}
	return out
}

// HandleRootDeleted marks the store deleted once the coordinator
// detects the root directory itself has been removed or renamed away
// (spec §4.7).
func (s *Store) HandleRootDeleted() {
	s.mu.Lock()
	s.deleted = true
	s.mu.Unlock()
	s.options.logger.Warn("store root deleted", "device", s.device)
	s.notificationQueue.Async(context.Background(), func(ctx context.Context) {
		s.events.Publish(Event{Kind: EventDeleted})
	})
}

// Sync asynchronously forces immediate ingestion of every known foreign
// device log (spec §4.6 "manual sync").
func (s *Store) Sync(ctx context.Context) {
	s.dbQueue.Async(ctx, func(ctx context.Context) {
		_ = s.SyncNow(ctx)
	})
}

// SyncNow is the synchronous form of Sync.
func (s *Store) SyncNow(ctx context.Context) error {
	if err := s.requireLoaded(); err != nil {
		return err
	}
	if s.coord == nil {
		return nil // in-memory store: nothing to sync
	}
	return s.coord.Sync(ctx)
}

// foreignLog returns the Log for device, opening it read-only on first
// use if the coordinator observed a brand-new peer directory after Load.
func (s *Store) foreignLog(device string) (*devicelog.Log, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if log, ok := s.logs[device]; ok {
		return log, nil
	}
	path := filepath.Join(s.root, device, localLogFileName)
	log, err := devicelog.Open(path, true)
	if err != nil {
		return nil, &IOFailure{Op: "open foreign log", Path: path, Err: err}
	}
	s.logs[device] = log
	if err := recordDevice(s.root, device); err != nil {
		s.options.logger.Warn("failed to record device in manifest", "device", device, "err", err)
	}
	return log, nil
}

// snapshotKeys reads the current projected value and timestamp for each
// of keys, for use as a Synced/Changed event payload.
func (s *Store) snapshotKeys(keys []string) (map[string]proptree.Value, map[string]int64) {
	values := make(map[string]proptree.Value, len(keys))
	timestamps := make(map[string]int64, len(keys))
	for _, k := range keys {
		if v, ok := s.projection.Value(k); ok {
			values[k] = v
		}
		if ts, ok := s.projection.Timestamp(k); ok {
			timestamps[k] = ts
		}
	}
	return values, timestamps
}
