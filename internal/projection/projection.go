package projection

import (
	"context"
	"fmt"
	"sync"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/clock"
	"github.com/parstore/parstore/internal/devicelog"
	"github.com/parstore/parstore/internal/proptree"
)

// Projection is the merged key→latest-entry view folded from every
// device's log (spec §4.5). Safe for concurrent use; mutation always
// goes through Apply, which the store façade calls only from the
// database queue (spec §5), but the lock here is a second, cheap line
// of defense against a caller that forgets that discipline.
type Projection struct {
	mu          sync.RWMutex
	entries     map[string]Entry
	maxByDevice map[string]int64
}

// New returns an empty Projection.
func New() *Projection {
	return &Projection{
		entries:     make(map[string]Entry),
		maxByDevice: make(map[string]int64),
	}
}

// Load resets the projection and rebuilds it from scratch by reading the
// latest-per-key view of every supplied device log (spec §4.5 load()).
// Within a single device's log, timestamps are strictly increasing, so
// that log's own latest-per-key entries already are that device's
// contribution to the merge; only the cross-device tie-break remains.
func (p *Projection) Load(ctx context.Context, logs map[string]*devicelog.Log) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.entries = make(map[string]Entry)
	p.maxByDevice = make(map[string]int64)

	for device, log := range logs {
		latest, err := log.LatestPerKey(ctx)
		if err != nil {
			return fmt.Errorf("projection: load device %q: %w", device, err)
		}
		for _, c := range latest {
			p.applyOneLocked(device, c)
		}
		max, err := log.MaxTimestamp(ctx)
		if err != nil {
			return fmt.Errorf("projection: load device %q: max timestamp: %w", device, err)
		}
		if max != nil {
			p.maxByDevice[device] = *max
		}
	}
	return nil
}

// Apply merges a batch of changes attributed to device into the
// projection (spec §4.5 apply()). It is idempotent: re-applying a
// change whose timestamp is already reflected for its key produces no
// change to the projection (spec §8 "Idempotent ingestion").
// Returns the set of keys whose projection entry actually moved.
func (p *Projection) Apply(device string, changes []change.Change) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var moved []string
	for _, c := range changes {
		before, hadBefore := p.entries[c.Key]
		p.applyOneLocked(device, c)
		after := p.entries[c.Key]
		if !hadBefore || before.Timestamp != after.Timestamp || before.Device != after.Device {
			moved = append(moved, c.Key)
		}
	}
	return moved
}

// applyOneLocked must be called with mu held.
func (p *Projection) applyOneLocked(device string, c change.Change) {
	cur, ok := p.entries[c.Key]
	if wins(cur, ok, c.Timestamp, device) {
		p.entries[c.Key] = Entry{Value: c.Value, Timestamp: c.Timestamp, Device: device}
	}
	if c.Timestamp > p.maxByDevice[device] {
		p.maxByDevice[device] = c.Timestamp
	}
}

// Value returns the current value for key, and whether key has ever
// been written.
func (p *Projection) Value(key string) (proptree.Value, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	if !ok {
		return nil, false
	}
	return e.Value, true
}

// Timestamp returns the timestamp of the current entry for key, and
// distant_past with ok=false if key has never been written.
func (p *Projection) Timestamp(key string) (int64, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	if !ok {
		return clock.DistantPast, false
	}
	return e.Timestamp, true
}

// Entry returns the full current entry for key.
func (p *Projection) Entry(key string) (Entry, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	e, ok := p.entries[key]
	return e, ok
}

// LatestByKey returns a snapshot copy of the full key→Entry map.
func (p *Projection) LatestByKey() map[string]Entry {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]Entry, len(p.entries))
	for k, v := range p.entries {
		out[k] = v
	}
	return out
}

// LatestByDevice returns a snapshot copy of the device→max-timestamp map.
func (p *Projection) LatestByDevice() map[string]int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make(map[string]int64, len(p.maxByDevice))
	for k, v := range p.maxByDevice {
		out[k] = v
	}
	return out
}

// MaxTimestampForDevice returns the highest timestamp ingested from
// device so far, or distant_past if none has been ingested.
func (p *Projection) MaxTimestampForDevice(device string) int64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if ts, ok := p.maxByDevice[device]; ok {
		return ts
	}
	return clock.DistantPast
}

// Keys returns every key with a current entry.
func (p *Projection) Keys() []string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	keys := make([]string, 0, len(p.entries))
	for k := range p.entries {
		keys = append(keys, k)
	}
	return keys
}
