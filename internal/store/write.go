package store

import (
	"context"
	"fmt"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/proptree"
)

// SetPropertyListValue stamps a fresh timestamp for key and updates the
// local projection. An in-memory store appends the change to the local
// log before returning; a store with a coordinator buffers it and
// schedules a coalesced save (spec §4.7 setPropertyListValue:forKey:). A nil value
// records a deletion tombstone, not a row removal (spec §3).
func (s *Store) SetPropertyListValue(ctx context.Context, value proptree.Value, key string) error {
	return s.SetEntriesFromDictionary(ctx, map[string]proptree.Value{key: value})
}

// SetEntriesFromDictionary applies every key/value pair as one batch
// sharing a single timestamp, each keyed to its own parent (the key's
// previous timestamp, if any) — spec §4.7
// setEntriesFromDictionary:timestamp:.
func (s *Store) SetEntriesFromDictionary(ctx context.Context, values map[string]proptree.Value) error {
	return s.setEntriesFromDictionary(ctx, values, nil)
}

// SetEntriesFromDictionaryWithTimestamp is the variant that lets a
// caller pin the timestamp explicitly, per spec §4.7.
func (s *Store) SetEntriesFromDictionaryWithTimestamp(ctx context.Context, values map[string]proptree.Value, timestamp int64) error {
	ts := timestamp
	return s.setEntriesFromDictionary(ctx, values, &ts)
}

// setEntriesFromDictionary does its stamping and projection update on
// the memory queue, then either flushes the resulting batch to the
// database queue right away (in-memory stores, which have nothing else
// to coalesce around) or leaves it buffered in s.pending for save_tick
// to pick up (spec §4.7/§5: the memory queue folds a write into the
// in-memory projection and hands the durable append off to the database
// queue, rather than doing both inline on one queue).
func (s *Store) setEntriesFromDictionary(ctx context.Context, values map[string]proptree.Value, timestamp *int64) error {
	if err := s.requireLoaded(); err != nil {
		return err
	}
	if len(values) == 0 {
		return nil
	}

	var applyErr error
	var moved []string
	s.memoryQueue.Sync(ctx, func(ctx context.Context) {
		s.mu.RLock()
		haveLocalLog := s.logs[s.device] != nil
		s.mu.RUnlock()
		if !haveLocalLog {
			applyErr = ErrNotLoaded
			return
		}

		ts := s.clock.Now()
		if timestamp != nil {
			ts = *timestamp
		}

		changes := make([]change.Change, 0, len(values))
		for key, value := range values {
			var parent *int64
			if prevTS, ok := s.projection.Timestamp(key); ok {
				p := prevTS
				parent = &p
			}
			changes = append(changes, change.New(ts, parent, key, value))
		}

		moved = s.projection.Apply(s.device, changes)
		s.bufferPendingAppend(changes)
	})
	if applyErr != nil {
		return applyErr
	}

	if s.inMemory || s.coord == nil {
		var flushErr error
		s.dbQueue.Sync(ctx, func(ctx context.Context) {
			flushErr = s.saveNowLocked(ctx)
		})
		if flushErr != nil {
			return flushErr
		}
	} else {
		s.scheduleSave(ctx)
	}

	if len(moved) > 0 {
		values, timestamps := s.snapshotKeys(moved)
		s.notificationQueue.Async(ctx, func(ctx context.Context) {
			s.events.Publish(Event{Kind: EventChanged, Values: values, Timestamps: timestamps})
		})
	}
	return nil
}

// bufferPendingAppend adds changes to the batch the database queue will
// append on the next flush. Called from the memory queue's worker;
// guarded by its own lock since saveNowLocked drains it from the
// database queue's worker.
func (s *Store) bufferPendingAppend(changes []change.Change) {
	s.pendingMu.Lock()
	s.pending = append(s.pending, changes...)
	s.pendingMu.Unlock()
}

// scheduleSave arms the coalesced save timer so a burst of writes
// flushes once, saveCoalesceInterval after the first write of the burst;
// later writes in the burst do not push the flush back (spec §4.6
// save_tick, SPEC_FULL §A.2 saveCoalesceInterval). Any failure to flush
// is reported as an Error event, since nothing is waiting synchronously
// on this path to return it to.
func (s *Store) scheduleSave(ctx context.Context) {
	if s.inMemory || s.coord == nil {
		return
	}
	s.coord.ScheduleSave(s.options.saveCoalesceInterval, func() {
		var err error
		s.dbQueue.Sync(context.Background(), func(ctx context.Context) {
			err = s.saveNowLocked(ctx)
		})
		if err != nil {
			s.publishError(fmt.Errorf("background save: %w", err))
		}
	})
}

// RunTransaction serializes block's body on the database queue and
// marks the history engine in-transaction for the duration, so history
// queries issued from inside block fail with ErrInTransaction instead of
// observing a partially-applied batch (spec §4.7 runTransactionWithBlock:).
// Re-entrant calls from within block fail without running the inner
// block. requireLoaded is rechecked both before and after block runs, so
// a deletion the coordinator detects mid-transaction (HandleRootDeleted
// sets s.deleted independently of the database queue) still aborts the
// transaction's result instead of returning block's own error or a
// stale success.
func (s *Store) RunTransaction(ctx context.Context, block func(ctx context.Context) error) error {
	if err := s.requireLoaded(); err != nil {
		return err
	}
	if !s.inTransaction.CompareAndSwap(false, true) {
		return ErrInTransaction
	}
	defer s.inTransaction.Store(false)

	var blockErr error
	s.dbQueue.Sync(ctx, func(ctx context.Context) {
		if err := s.requireLoaded(); err != nil {
			blockErr = err
			return
		}
		s.history.SetInTransaction(true)
		defer s.history.SetInTransaction(false)
		blockErr = block(ctx)
		if blockErr == nil {
			if err := s.requireLoaded(); err != nil {
				blockErr = err
			}
		}
	})
	return blockErr
}
