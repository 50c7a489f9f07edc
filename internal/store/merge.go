package store

import (
	"context"
	"fmt"
	"path/filepath"
	"slices"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/devicelog"
)

// MergeStore absorbs every change recorded in other's logs into this
// store's own file package, one append batch per foreign device log
// (spec §4.7 mergeStore:unsafeDeviceIdentifiers:completion:).
// unsafeDeviceIdentifiers lists device identifiers allowed to violate
// append-order (used when importing a log whose tail may already be
// known); every other device's changes must still append in strictly
// increasing timestamp order or that device's whole batch is rejected.
//
// Unlike ordinary sync ingestion, merging writes into logs this store
// does not own, so it opens a dedicated writable handle per target
// device rather than reusing the read-only handles cached for sync.
func (s *Store) MergeStore(ctx context.Context, other *Store, unsafeDeviceIdentifiers []string) error {
	if err := s.requireLoaded(); err != nil {
		return err
	}
	if err := other.requireLoaded(); err != nil {
		return fmt.Errorf("source store not loaded: %w", err)
	}
	if s.inMemory {
		return fmt.Errorf("merge into in-memory store not supported")
	}

	if err := other.flushPending(ctx); err != nil {
		return fmt.Errorf("flush source store before merge: %w", err)
	}

	var mergeErr error
	s.dbQueue.Sync(ctx, func(ctx context.Context) {
		for device, sourceLog := range other.snapshotLogs() {
			changes, err := sourceLog.Scan(ctx, nil, devicelog.Range{})
			if err != nil {
				mergeErr = fmt.Errorf("scan %s: %w", device, err)
				return
			}
			if len(changes) == 0 {
				continue
			}

			appendOnly := !slices.Contains(unsafeDeviceIdentifiers, device)
			if err := s.appendToDeviceLog(ctx, device, changes, appendOnly); err != nil {
				mergeErr = fmt.Errorf("append %s changes: %w", device, err)
				return
			}
		}
	})
	if mergeErr != nil {
		return mergeErr
	}

	if err := s.projection.Load(ctx, s.snapshotLogs()); err != nil {
		return fmt.Errorf("rebuild projection after merge: %w", err)
	}
	s.options.logger.Info("merged store", "from_device", other.device, "into_device", s.device)
	return nil
}

// appendToDeviceLog appends changes into device's log under this
// store's root, whether or not device is the local device. For the
// local device it reuses the already-open writable handle; for every
// other device it opens (or creates) a dedicated writable handle for
// the duration of the append, then replaces the store's cached handle
// for that device with a fresh read-only one so later reads (and the
// projection rebuild this call's caller performs next) see the result.
func (s *Store) appendToDeviceLog(ctx context.Context, device string, changes []change.Change, appendOnly bool) error {
	if device == s.device {
		s.mu.RLock()
		log := s.logs[s.device]
		s.mu.RUnlock()
		return log.AppendBatch(ctx, changes, appendOnly)
	}

	path := filepath.Join(s.root, device, localLogFileName)
	writable, err := devicelog.Open(path, false)
	if err != nil {
		return &IOFailure{Op: "open device log for merge", Path: path, Err: err}
	}
	appendErr := writable.AppendBatch(ctx, changes, appendOnly)
	writable.Close()
	if appendErr != nil {
		return appendErr
	}

	s.mu.Lock()
	if old, ok := s.logs[device]; ok {
		old.Close()
	}
	readonly, err := devicelog.Open(path, true)
	if err != nil {
		s.mu.Unlock()
		return &IOFailure{Op: "reopen device log after merge", Path: path, Err: err}
	}
	s.logs[device] = readonly
	s.mu.Unlock()
	if err := recordDevice(s.root, device); err != nil {
		s.options.logger.Warn("failed to record device in manifest", "device", device, "err", err)
	}
	return nil
}
