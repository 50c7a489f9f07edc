package history

import (
	"context"
	"fmt"
	"sort"
	"sync/atomic"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/clock"
	"github.com/parstore/parstore/internal/devicelog"
)

// Entry pairs a Change with the device whose log it came from. Change
// itself carries no device field (spec §4.3); queries that merge across
// devices need somewhere to recover which log a result came from, and
// this is that somewhere.
type Entry struct {
	Device string
	Change change.Change
}

// Engine answers history queries over a set of per-device logs. The
// caller (the store façade) owns the logs map and must keep it current
// as devices are discovered; Engine only reads it.
type Engine struct {
	logs          func() map[string]*devicelog.Log
	inTransaction atomic.Bool
}

// New returns an Engine that queries whatever logs the supplied function
// returns at call time. Taking a function rather than a snapshot map
// means the façade can add foreign logs after Engine is constructed
// without re-wiring it.
func New(logs func() map[string]*devicelog.Log) *Engine {
	return &Engine{logs: logs}
}

// SetInTransaction marks whether a transaction is currently running on
// the database queue; the façade calls this around runTransaction's
// block. While true, every query method fails fast with ErrInTransaction.
func (e *Engine) SetInTransaction(v bool) {
	e.inTransaction.Store(v)
}

func (e *Engine) guard() error {
	if e.inTransaction.Load() {
		return ErrInTransaction
	}
	return nil
}

// FetchAllKeys returns the union of keys across every device log.
func (e *Engine) FetchAllKeys(ctx context.Context) ([]string, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for device, log := range e.logs() {
		keys, err := log.AllKeys(ctx)
		if err != nil {
			return nil, fmt.Errorf("history: fetch all keys: device %q: %w", device, err)
		}
		for _, k := range keys {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out, nil
}

// FetchChangesSinceTimestamp returns every change with timestamp > ts
// (or every change, if ts is nil), restricted to device if non-empty,
// in ascending (timestamp, device) order (spec §4.8).
func (e *Engine) FetchChangesSinceTimestamp(ctx context.Context, ts *int64, device string) ([]Entry, error) {
	from := ts
	if from == nil {
		dp := clock.DistantPast
		from = &dp
	} else {
		exclusive := *ts + 1
		from = &exclusive
	}
	return e.fetchRange(ctx, devicelog.Range{From: from}, device)
}

// FetchChangesFromTimestamp returns every change in the closed interval
// [first, last] (nil bounds are open), restricted to device if
// non-empty, in ascending (timestamp, device) order (spec §4.8).
func (e *Engine) FetchChangesFromTimestamp(ctx context.Context, first, last *int64, device string) ([]Entry, error) {
	return e.fetchRange(ctx, devicelog.Range{From: first, To: last}, device)
}

func (e *Engine) fetchRange(ctx context.Context, r devicelog.Range, device string) ([]Entry, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	logs := e.logs()
	var devices []string
	if device != "" {
		if _, ok := logs[device]; !ok {
			return nil, nil
		}
		devices = []string{device}
	} else {
		for d := range logs {
			devices = append(devices, d)
		}
	}

	var entries []Entry
	for _, d := range devices {
		changes, err := logs[d].Scan(ctx, nil, r)
		if err != nil {
			return nil, fmt.Errorf("history: fetch range: device %q: %w", d, err)
		}
		for _, c := range changes {
			entries = append(entries, Entry{Device: d, Change: c})
		}
	}

	sortEntries(entries)
	return entries, nil
}

func sortEntries(entries []Entry) {
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Change.Timestamp != entries[j].Change.Timestamp {
			return entries[i].Change.Timestamp < entries[j].Change.Timestamp
		}
		return entries[i].Device < entries[j].Device
	})
}

// FetchMostRecentPredecessorsOfChanges returns, for each input change c,
// the change with the greatest timestamp strictly less than
// c.Timestamp for the same key, constrained to device if non-empty. A
// key with no predecessor is simply absent from the result (spec §4.8).
func (e *Engine) FetchMostRecentPredecessorsOfChanges(ctx context.Context, changes []change.Change, device string) (map[string]change.Change, error) {
	return e.fetchAdjacent(ctx, changes, device, func(log *devicelog.Log, key string, ts int64) (*change.Change, error) {
		return log.Predecessor(ctx, key, ts)
	}, func(a, b Entry) bool {
		// Prefer the greatest timestamp; tie-break lexicographically by device.
		if a.Change.Timestamp != b.Change.Timestamp {
			return a.Change.Timestamp > b.Change.Timestamp
		}
		return a.Device > b.Device
	})
}

// FetchMostRecentSuccessorsOfChanges is the symmetric counterpart of
// FetchMostRecentPredecessorsOfChanges: strictly greater timestamp, and
// the nearest (least) one wins instead of the furthest.
func (e *Engine) FetchMostRecentSuccessorsOfChanges(ctx context.Context, changes []change.Change, device string) (map[string]change.Change, error) {
	return e.fetchAdjacent(ctx, changes, device, func(log *devicelog.Log, key string, ts int64) (*change.Change, error) {
		return log.Successor(ctx, key, ts)
	}, func(a, b Entry) bool {
		if a.Change.Timestamp != b.Change.Timestamp {
			return a.Change.Timestamp < b.Change.Timestamp
		}
		return a.Device > b.Device
	})
}

func (e *Engine) fetchAdjacent(
	ctx context.Context,
	changes []change.Change,
	device string,
	lookup func(log *devicelog.Log, key string, ts int64) (*change.Change, error),
	better func(a, b Entry) bool,
) (map[string]change.Change, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	logs := e.logs()
	var devices []string
	if device != "" {
		if _, ok := logs[device]; ok {
			devices = []string{device}
		}
	} else {
		for d := range logs {
			devices = append(devices, d)
		}
	}

	out := make(map[string]change.Change)
	for _, c := range changes {
		var best *Entry
		for _, d := range devices {
			candidate, err := lookup(logs[d], c.Key, c.Timestamp)
			if err != nil {
				return nil, fmt.Errorf("history: adjacency lookup: device %q key %q: %w", d, c.Key, err)
			}
			if candidate == nil {
				continue
			}
			entry := Entry{Device: d, Change: *candidate}
			if best == nil || better(entry, *best) {
				best = &entry
			}
		}
		if best != nil {
			out[c.Key] = best.Change
		}
	}
	return out, nil
}

// FetchMostRecentChangesMatchingKeyPrefix returns, for every key that
// starts with prefix and has at least one change, that key's latest
// change, constrained to device if non-empty (spec §4.8).
func (e *Engine) FetchMostRecentChangesMatchingKeyPrefix(ctx context.Context, prefix string, device string) (map[string]change.Change, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}

	logs := e.logs()
	var devices []string
	if device != "" {
		if _, ok := logs[device]; ok {
			devices = []string{device}
		}
	} else {
		for d := range logs {
			devices = append(devices, d)
		}
	}

	best := make(map[string]Entry)
	for _, d := range devices {
		latest, err := logs[d].LatestPerKey(ctx)
		if err != nil {
			return nil, fmt.Errorf("history: prefix scan: device %q: %w", d, err)
		}
		for _, c := range latest {
			if len(c.Key) < len(prefix) || c.Key[:len(prefix)] != prefix {
				continue
			}
			entry := Entry{Device: d, Change: c}
			cur, ok := best[c.Key]
			if !ok || entry.Change.Timestamp > cur.Change.Timestamp ||
				(entry.Change.Timestamp == cur.Change.Timestamp && entry.Device > cur.Device) {
				best[c.Key] = entry
			}
		}
	}

	out := make(map[string]change.Change, len(best))
	for k, e := range best {
		out[k] = e.Change
	}
	return out, nil
}

// InsertChanges bulk-inserts externally supplied changes for device
// (spec §4.8 insertChanges()): when appendOnly, rejects the whole batch
// if any timestamp is not strictly greater than the log's current max;
// otherwise inserts, silently skipping exact timestamp duplicates (same
// timestamp, same value) and rejecting the whole batch with
// devicelog.ErrDuplicateTimestamp if a timestamp collides with a
// differing value.
func (e *Engine) InsertChanges(ctx context.Context, log *devicelog.Log, changes []change.Change, appendOnly bool) error {
	if err := e.guard(); err != nil {
		return err
	}
	return log.AppendBatch(ctx, changes, appendOnly)
}
