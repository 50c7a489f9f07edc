package store

import (
	"context"
	"fmt"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/devicelog"
)

// SaveNow flushes any pending coalesced save immediately (spec §4.6
// save_tick, forced rather than waiting out saveCoalesceInterval).
func (s *Store) SaveNow(ctx context.Context) error {
	if err := s.requireLoaded(); err != nil {
		return err
	}
	var err error
	s.dbQueue.Sync(ctx, func(ctx context.Context) {
		err = s.saveNowLocked(ctx)
	})
	return err
}

// saveNowLocked drains whatever the memory queue has buffered in
// s.pending and appends it to the local log. Must run on the database
// queue (every caller already dispatches through it); a failed flush
// puts the batch back at the front of s.pending so the next tick (or
// the next explicit SaveNow) retries it instead of losing it outright.
func (s *Store) saveNowLocked(ctx context.Context) error {
	s.pendingMu.Lock()
	changes := s.pending
	s.pending = nil
	s.pendingMu.Unlock()
	if len(changes) == 0 {
		return nil
	}

	s.mu.RLock()
	localLog := s.logs[s.device]
	s.mu.RUnlock()
	if localLog == nil {
		s.requeuePending(changes)
		return ErrNotLoaded
	}

	if err := localLog.AppendBatch(ctx, changes, true); err != nil {
		s.requeuePending(changes)
		return fmt.Errorf("flush pending writes: %w", err)
	}

	s.options.logger.Debug("save tick", "device", s.device, "changes", len(changes))
	return nil
}

func (s *Store) requeuePending(changes []change.Change) {
	s.pendingMu.Lock()
	s.pending = append(changes, s.pending...)
	s.pendingMu.Unlock()
}

// flushPending forces this store's buffered writes onto its local log.
// MergeStore calls this on the source store before scanning its logs
// directly, since a deferred write would otherwise be invisible to a
// raw log Scan until its own save_tick fired.
func (s *Store) flushPending(ctx context.Context) error {
	var err error
	s.dbQueue.Sync(ctx, func(ctx context.Context) {
		err = s.saveNowLocked(ctx)
	})
	return err
}

// CloseDatabase quiesces the local log connection and releases foreign
// log handles while keeping the in-memory projection intact, so reads
// continue to work but local writes fail with ErrNotLoaded until Load is
// called again; ingestion triggered by the coordinator reopens, read-only,
// the foreign log it needs (spec §4.7 closeDatabase).
func (s *Store) CloseDatabase(ctx context.Context) {
	s.dbQueue.Async(ctx, func(ctx context.Context) {
		s.closeDatabaseLocked(ctx)
	})
}

// CloseDatabaseNow is the synchronous form of CloseDatabase.
func (s *Store) CloseDatabaseNow(ctx context.Context) {
	s.dbQueue.Sync(ctx, func(ctx context.Context) {
		s.closeDatabaseLocked(ctx)
	})
}

func (s *Store) closeDatabaseLocked(ctx context.Context) {
	s.mu.Lock()
	if s.state != stateLoaded {
		s.mu.Unlock()
		return
	}
	s.state = stateClosingDatabase
	s.mu.Unlock()

	if err := s.saveNowLocked(ctx); err != nil {
		s.publishError(fmt.Errorf("flush before close database: %w", err))
	}

	s.mu.Lock()
	logs := s.logs
	s.logs = make(map[string]*devicelog.Log)
	s.mu.Unlock()

	for device, log := range logs {
		if err := log.Close(); err != nil {
			s.options.logger.Warn("error closing log", "device", device, "err", err)
		}
	}

	s.mu.Lock()
	s.state = stateLoaded
	s.mu.Unlock()
}

// TearDown releases every resource the store holds: closes logs, stops
// the coordinator, cancels all pending dispatch timers, and marks the
// store TornDown (spec §4.7 tearDown). A torn-down store cannot be
// reloaded; construct a new one.
func (s *Store) TearDown(ctx context.Context) {
	s.dbQueue.Async(ctx, func(ctx context.Context) {
		s.tearDownLocked(ctx)
	})
}

// TearDownNow is the synchronous form of TearDown.
func (s *Store) TearDownNow(ctx context.Context) {
	s.dbQueue.Sync(ctx, func(ctx context.Context) {
		s.tearDownLocked(ctx)
	})
}

func (s *Store) tearDownLocked(ctx context.Context) {
	s.mu.Lock()
	if s.state == stateTornDown {
		s.mu.Unlock()
		return
	}
	s.state = stateTearingDown
	s.mu.Unlock()

	if err := s.saveNowLocked(ctx); err != nil {
		s.publishError(fmt.Errorf("flush before teardown: %w", err))
	}

	s.mu.Lock()
	logs := s.logs
	s.logs = nil
	coord := s.coord
	s.coord = nil
	s.mu.Unlock()

	for device, log := range logs {
		if err := log.Close(); err != nil {
			s.options.logger.Warn("error closing log during teardown", "device", device, "err", err)
		}
	}
	if coord != nil {
		if err := coord.Close(); err != nil {
			s.options.logger.Warn("error closing coordinator", "err", err)
		}
	}

	s.mu.Lock()
	s.state = stateTornDown
	s.mu.Unlock()

	s.notificationQueue.Async(ctx, func(ctx context.Context) {
		s.events.Publish(Event{Kind: EventTornDown})
	})
	s.options.logger.Info("store torn down", "device", s.device)
}

// WaitUntilFinished blocks until every queued memory, database, and
// notification operation at the time of the call has drained, by
// issuing a barrier to each queue in turn — memory first, since its
// output feeds the database queue's appends, then database, then
// notification (spec §5 cancellation/draining semantics).
func (s *Store) WaitUntilFinished(ctx context.Context) {
	s.memoryQueue.BarrierSync(ctx, func(context.Context) {})
	s.dbQueue.BarrierSync(ctx, func(context.Context) {})
	s.notificationQueue.BarrierSync(ctx, func(context.Context) {})
}
