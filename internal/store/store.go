package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/clock"
	"github.com/parstore/parstore/internal/coordinator"
	"github.com/parstore/parstore/internal/devicelog"
	"github.com/parstore/parstore/internal/dispatch"
	"github.com/parstore/parstore/internal/history"
	"github.com/parstore/parstore/internal/projection"
)

const localLogFileName = "log"

// Store is the public façade (spec §4.7): load/read/write/transaction/
// sync/save/close/tear-down/merge/history/blob operations over a
// file package of per-device logs, or over nothing at all when
// in-memory.
type Store struct {
	options  Options
	root     string // "" when inMemory
	inMemory bool
	device   string
	clock    clock.Source
	events   *eventBus

	dbQueue           *dispatch.Queue
	memoryQueue       *dispatch.Queue
	notificationQueue *dispatch.Queue

	mu      sync.RWMutex // protects state, deleted, logs
	state   lifecycleState
	deleted bool
	logs    map[string]*devicelog.Log

	// pending holds changes the memory queue has stamped and folded into
	// the projection but the database queue has not yet appended to the
	// local log (spec §4.7/§5 memory-queue/database-queue split). Touched
	// from two different queues' worker goroutines, so it needs its own
	// lock rather than riding along with mu.
	pendingMu sync.Mutex
	pending   []change.Change

	inTransaction atomic.Bool

	projection *projection.Projection
	history    *history.Engine
	coord      *coordinator.Coordinator
}

// Open creates a façade rooted at root with a persistent file package
// (spec §3 "Store State"). The directory and local device subdirectory
// are created lazily by Load, not by Open.
func Open(root string, opts ...Option) (*Store, error) {
	return newStore(root, false, opts...)
}

// OpenInMemory creates a façade with no backing directory: every
// operation after Load operates purely on an in-memory local log and
// projection (spec SPEC_FULL §C.1). No coordinator, no foreign logs,
// no blobs.
func OpenInMemory(opts ...Option) (*Store, error) {
	return newStore("", true, opts...)
}

func newStore(root string, inMemory bool, opts ...Option) (*Store, error) {
	options := defaultOptions()
	for _, opt := range opts {
		opt(&options)
	}

	s := &Store{
		options:           options,
		root:              root,
		inMemory:          inMemory,
		device:            options.deviceIdentifier,
		clock:             options.clock,
		events:            newEventBus(),
		dbQueue:           dispatch.New("store.database", dispatch.Serial),
		memoryQueue:       dispatch.New("store.memory", dispatch.Serial),
		notificationQueue: dispatch.New("store.notification", dispatch.Serial),
		state:             stateUnloaded,
		logs:              make(map[string]*devicelog.Log),
		projection:        projection.New(),
	}
	s.history = history.New(s.snapshotLogs)
	return s, nil
}

// snapshotLogs returns a copy of the current device->Log map, safe to
// hand to history.Engine (which may be queried concurrently with a log
// being added by ingestion).
func (s *Store) snapshotLogs() map[string]*devicelog.Log {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]*devicelog.Log, len(s.logs))
	for k, v := range s.logs {
		out[k] = v
	}
	return out
}

// DeviceIdentifier returns the local device identifier.
func (s *Store) DeviceIdentifier() string { return s.device }

// InMemory reports whether this store skips all file interaction.
func (s *Store) InMemory() bool { return s.inMemory }

// Loaded reports whether the store has finished Load.
func (s *Store) Loaded() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state == stateLoaded
}

// Deleted reports whether the backing directory has disappeared.
func (s *Store) Deleted() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.deleted
}

// Subscribe registers an observer for Loaded/TornDown/Deleted/Changed/
// Synced/Error events (spec §6) and returns its channel plus an
// unsubscribe function.
func (s *Store) Subscribe() (<-chan Event, func()) {
	return s.events.Subscribe()
}

// Load asynchronously loads the store: enumerates device directories,
// opens logs, builds the projection, starts the file coordinator. Load
// is idempotent and fails immediately if the store is Deleted.
func (s *Store) Load(ctx context.Context) {
	s.dbQueue.Async(ctx, func(ctx context.Context) {
		_ = s.loadLocked(ctx)
	})
}

// LoadNow is the synchronous form of Load.
func (s *Store) LoadNow(ctx context.Context) error {
	var err error
	s.dbQueue.Sync(ctx, func(ctx context.Context) {
		err = s.loadLocked(ctx)
	})
	return err
}

func (s *Store) loadLocked(ctx context.Context) error {
	s.mu.Lock()
	if s.deleted {
		s.mu.Unlock()
		return ErrDeleted
	}
	if s.state == stateTornDown {
		s.mu.Unlock()
		return ErrTornDown
	}
	if s.state == stateLoaded && s.logs[s.device] != nil {
		s.mu.Unlock()
		return nil // idempotent
	}
	s.state = stateLoading
	s.mu.Unlock()

	if s.inMemory {
		log, err := devicelog.Open(":memory:", false)
		if err != nil {
			return s.failLoad(err)
		}
		s.mu.Lock()
		s.logs[s.device] = log
		s.mu.Unlock()
	} else {
		if err := os.MkdirAll(filepath.Join(s.root, s.device), 0o755); err != nil {
			return s.failLoad(&IOFailure{Op: "create device directory", Path: s.root, Err: err})
		}
		localPath := filepath.Join(s.root, s.device, localLogFileName)
		localLog, err := devicelog.Open(localPath, false)
		if err != nil {
			return s.failLoad(&IOFailure{Op: "open local log", Path: localPath, Err: err})
		}
		s.mu.Lock()
		s.logs[s.device] = localLog
		s.mu.Unlock()

		entries, err := os.ReadDir(s.root)
		if err != nil {
			return s.failLoad(&IOFailure{Op: "read store root", Path: s.root, Err: err})
		}
		for _, entry := range entries {
			if !entry.IsDir() || entry.Name() == s.device {
				continue
			}
			foreignPath := filepath.Join(s.root, entry.Name(), localLogFileName)
			if _, err := os.Stat(foreignPath); err != nil {
				continue // not a device directory (or log not written yet)
			}
			foreignLog, err := devicelog.Open(foreignPath, true)
			if err != nil {
				continue
			}
			s.mu.Lock()
			s.logs[entry.Name()] = foreignLog
			s.mu.Unlock()
		}
	}

	if err := s.projection.Load(ctx, s.snapshotLogs()); err != nil {
		return s.failLoad(err)
	}

	if !s.inMemory && s.coord == nil {
		coord, err := coordinator.New(s.root, s.device, s.dbQueue, s)
		if err != nil {
			return s.failLoad(fmt.Errorf("%w: %v", ErrCoordinatorFailure, err))
		}
		if err := coord.Start(ctx); err != nil {
			return s.failLoad(fmt.Errorf("%w: %v", ErrCoordinatorFailure, err))
		}
		s.coord = coord
	}

	s.mu.Lock()
	s.state = stateLoaded
	s.mu.Unlock()

	s.notificationQueue.Async(ctx, func(ctx context.Context) {
		s.events.Publish(Event{Kind: EventLoaded})
	})
	s.options.logger.Info("store loaded", "device", s.device, "in_memory", s.inMemory)
	return nil
}

func (s *Store) failLoad(err error) error {
	s.mu.Lock()
	s.state = stateUnloaded
	s.mu.Unlock()
	s.options.logger.Error("store load failed", "device", s.device, "err", err)
	return err
}

// requireLoaded returns ErrDeleted or ErrNotLoaded if the store is not
// ready for an operation that needs a materialized projection (spec §9
// Open Question (c)).
func (s *Store) requireLoaded() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.deleted {
		return ErrDeleted
	}
	if s.state == stateTornDown {
		return ErrTornDown
	}
	if s.state != stateLoaded {
		return ErrNotLoaded
	}
	return nil
}
