package coordinator

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/parstore/parstore/internal/dispatch"
)

// debounceDelay batches rapid successive writes to one device's log
// file into a single ingestion, the way sjoeboo-hangar's StorageWatcher
// debounces rapid writes to sessions.json before reloading.
const debounceDelay = 100 * time.Millisecond

// Handler receives the events the coordinator detects. The store façade
// implements this to run the ingestion algorithm (spec §4.6) and to
// react to the root directory disappearing.
type Handler interface {
	// IngestForeignLog runs the four-step ingestion algorithm for the
	// named device's log: scan new changes, apply to the projection
	// under a barrier, publish a Synced event if anything moved.
	IngestForeignLog(ctx context.Context, device string) error
	// HandleRootDeleted marks the store deleted and stops further ingestion.
	HandleRootDeleted()
}

// Coordinator watches a store's root directory for peer device
// subdirectories appearing or changing (spec §4.6).
type Coordinator struct {
	root    string
	local   string // local device identifier, never watched for foreign ingestion
	watcher *fsnotify.Watcher
	dbQueue *dispatch.Queue
	handler Handler
	logger  *slog.Logger

	mu      sync.Mutex
	known   map[string]bool // device identifiers currently watched
	closeCh chan struct{}
	closeWg sync.WaitGroup
}

// Option configures a Coordinator at construction time.
type Option func(*Coordinator)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Coordinator) { c.logger = l }
}

// New creates a Coordinator rooted at root. It does not start watching
// until Start is called.
func New(root, localDevice string, dbQueue *dispatch.Queue, handler Handler, opts ...Option) (*Coordinator, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	c := &Coordinator{
		root:    root,
		local:   localDevice,
		watcher: watcher,
		dbQueue: dbQueue,
		handler: handler,
		logger:  slog.Default(),
		known:   make(map[string]bool),
		closeCh: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Start enumerates existing peer subdirectories, registers watches on
// the root and each of them, and begins the background event loop
// (spec §4.6 "On load, enumerate subdirectories of the root").
func (c *Coordinator) Start(ctx context.Context) error {
	if err := c.watcher.Add(c.root); err != nil {
		return err
	}

	entries, err := os.ReadDir(c.root)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		if !entry.IsDir() || entry.Name() == c.local {
			continue
		}
		c.addDevice(entry.Name())
	}

	c.closeWg.Add(1)
	go c.watchLoop(ctx)
	return nil
}

func (c *Coordinator) addDevice(device string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.known[device] {
		return
	}
	dir := filepath.Join(c.root, device)
	if err := c.watcher.Add(dir); err != nil {
		c.logger.Warn("coordinator: failed to watch device directory", "device", device, "err", err)
		return
	}
	c.known[device] = true
}

func (c *Coordinator) watchLoop(ctx context.Context) {
	defer c.closeWg.Done()
	for {
		select {
		case <-c.closeCh:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			c.handleEvent(ctx, event)
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("coordinator: watcher error", "err", err)
		}
	}
}

func (c *Coordinator) handleEvent(ctx context.Context, event fsnotify.Event) {
	// The root directory itself disappearing means the whole file
	// package was removed out from under this process (spec §4.6
	// "parent directory deleted").
	if filepath.Clean(event.Name) == filepath.Clean(c.root) && event.Op&(fsnotify.Remove|fsnotify.Rename) != 0 {
		c.handler.HandleRootDeleted()
		return
	}

	rel, err := filepath.Rel(c.root, event.Name)
	if err != nil {
		return
	}
	parts := filepathSplit(rel)
	if len(parts) == 0 {
		return
	}
	device := parts[0]
	if device == c.local {
		return // never ingest our own log
	}

	switch {
	case len(parts) == 1 && event.Op&(fsnotify.Create) != 0:
		// "item appeared": a new peer subdirectory showed up.
		c.addDevice(device)
		c.scheduleIngest(ctx, device)
	case len(parts) >= 2:
		// "item changed" / "item moved/renamed" inside a device directory.
		if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
			c.mu.Lock()
			known := c.known[device]
			c.mu.Unlock()
			if !known {
				c.addDevice(device)
			}
			c.scheduleIngest(ctx, device)
		}
	}
}

func (c *Coordinator) scheduleIngest(ctx context.Context, device string) {
	c.dbQueue.ScheduleCoalesce("coordinator.ingest."+device, debounceDelay, func() {
		if err := c.handler.IngestForeignLog(ctx, device); err != nil {
			c.logger.Error("coordinator: ingestion failed", "device", device, "err", err)
		}
	})
}

// ScheduleSave arranges for fn to run after the save-coalescing window
// elapses (spec §4.6 "schedule a Coalesce timer save_tick with delay ≈
// 1s"), replacing any already-scheduled save within the window with the
// earlier fire time, per Coalesce semantics.
func (c *Coordinator) ScheduleSave(delay time.Duration, fn func()) {
	c.dbQueue.ScheduleCoalesce("save_tick", delay, fn)
}

// Sync forces immediate ingestion of every known peer device's log,
// bypassing the debounce window (spec §4.7 sync()/syncNow()).
func (c *Coordinator) Sync(ctx context.Context) error {
	c.mu.Lock()
	devices := make([]string, 0, len(c.known))
	for d := range c.known {
		devices = append(devices, d)
	}
	c.mu.Unlock()

	var firstErr error
	for _, device := range devices {
		if err := c.handler.IngestForeignLog(ctx, device); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Close stops watching and cancels any pending ingestion timers.
func (c *Coordinator) Close() error {
	c.dbQueue.CancelTimer("save_tick")
	c.mu.Lock()
	for device := range c.known {
		c.dbQueue.CancelTimer("coordinator.ingest." + device)
	}
	c.mu.Unlock()

	close(c.closeCh)
	err := c.watcher.Close()
	c.closeWg.Wait()
	return err
}

// filepathSplit breaks a cleaned relative path into its segments, e.g.
// "device-b/log" -> ["device-b", "log"].
func filepathSplit(rel string) []string {
	rel = filepath.Clean(rel)
	if rel == "." || rel == "" {
		return nil
	}
	return strings.Split(rel, string(filepath.Separator))
}
