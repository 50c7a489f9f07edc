package store

import (
	"context"
	"slices"
	"strings"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/devicelog"
	"github.com/parstore/parstore/internal/proptree"
)

// PropertyListValueForKey returns the current merged value for key (spec
// §4.7 propertyListValueForKey). With the in-memory cache disabled, it
// forwards to FetchPropertyListValueForKey instead of consulting the
// cached projection (spec §9 Open Question (c)).
func (s *Store) PropertyListValueForKey(ctx context.Context, key string) (proptree.Value, bool, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, false, err
	}
	if !s.options.inMemoryCacheEnabled {
		return s.FetchPropertyListValueForKey(ctx, key, nil)
	}
	v, ok := s.projection.Value(key)
	return v, ok, nil
}

// AllKeys returns every key with a live entry in the merged projection.
func (s *Store) AllKeys(ctx context.Context) ([]string, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	return s.projection.Keys(), nil
}

// AllEntries returns a snapshot of every key's current value and
// timestamp, taken under a database-queue barrier so it reflects one
// consistent instant even while writes are in flight.
func (s *Store) AllEntries(ctx context.Context) (map[string]proptree.Value, map[string]int64, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, nil, err
	}
	var entries map[string]proptree.Value
	var timestamps map[string]int64
	s.dbQueue.BarrierSync(ctx, func(ctx context.Context) {
		latest := s.projection.LatestByKey()
		entries = make(map[string]proptree.Value, len(latest))
		timestamps = make(map[string]int64, len(latest))
		for k, e := range latest {
			entries[k] = e.Value
			timestamps[k] = e.Timestamp
		}
	})
	return entries, timestamps, nil
}

// FetchPropertyListValueForKey bypasses the live projection and
// re-derives the value for key directly from the per-device logs,
// optionally as of a historical timestamp (spec §4.8
// fetchPropertyListValueForKey:timestamp:). A nil timestamp means "as of
// now", equivalent to scanning every log's latest entry for key.
func (s *Store) FetchPropertyListValueForKey(ctx context.Context, key string, asOf *int64) (proptree.Value, bool, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, false, err
	}

	var r devicelog.Range
	if asOf != nil {
		r = devicelog.Range{To: asOf}
	}

	var best *change.Change
	var bestDevice string
	for device, log := range s.snapshotLogs() {
		changes, err := log.Scan(ctx, &key, r)
		if err != nil {
			return nil, false, err
		}
		if len(changes) == 0 {
			continue
		}
		c := changes[len(changes)-1] // Scan orders ascending by timestamp
		if best == nil || c.Timestamp > best.Timestamp ||
			(c.Timestamp == best.Timestamp && device > bestDevice) {
			cc := c
			best = &cc
			bestDevice = device
		}
	}
	if best == nil {
		return nil, false, nil
	}
	return best.Value, true, nil
}

// HistoryEntry pairs a Change with the device whose log recorded it.
type HistoryEntry struct {
	Device string
	Change change.Change
}

// History returns every change ever recorded for key, across every
// known device log, in ascending timestamp order (spec §4.8, the
// append-only log's reason for being: nothing here is ever overwritten).
func (s *Store) History(ctx context.Context, key string) ([]HistoryEntry, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}

	var out []HistoryEntry
	for device, log := range s.snapshotLogs() {
		changes, err := log.Scan(ctx, &key, devicelog.Range{})
		if err != nil {
			return nil, err
		}
		for _, c := range changes {
			out = append(out, HistoryEntry{Device: device, Change: c})
		}
	}
	slices.SortFunc(out, func(a, b HistoryEntry) int {
		if a.Change.Timestamp != b.Change.Timestamp {
			if a.Change.Timestamp < b.Change.Timestamp {
				return -1
			}
			return 1
		}
		return strings.Compare(a.Device, b.Device)
	})
	return out, nil
}

// MostRecentTimestampsByKey returns the projection's current per-key
// timestamps (spec §4.8 mostRecentTimestampsByKey()).
func (s *Store) MostRecentTimestampsByKey(ctx context.Context) (map[string]int64, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	latest := s.projection.LatestByKey()
	out := make(map[string]int64, len(latest))
	for k, e := range latest {
		out[k] = e.Timestamp
	}
	return out, nil
}

// MostRecentTimestampForKey returns the projection's current timestamp
// for a single key, or DistantPast if the key has no entry.
func (s *Store) MostRecentTimestampForKey(ctx context.Context, key string) (int64, error) {
	if err := s.requireLoaded(); err != nil {
		return 0, err
	}
	ts, _ := s.projection.Timestamp(key)
	return ts, nil
}

// MostRecentTimestampsByDeviceIdentifier returns, per device, the
// highest timestamp absorbed into the projection so far (spec §4.8
// mostRecentTimestampsByDeviceIdentifier()).
func (s *Store) MostRecentTimestampsByDeviceIdentifier(ctx context.Context) (map[string]int64, error) {
	if err := s.requireLoaded(); err != nil {
		return nil, err
	}
	return s.projection.LatestByDevice(), nil
}

// MostRecentTimestampForDeviceIdentifier returns the highest absorbed
// timestamp for a single device, or DistantPast if never observed.
func (s *Store) MostRecentTimestampForDeviceIdentifier(ctx context.Context, device string) (int64, error) {
	if err := s.requireLoaded(); err != nil {
		return 0, err
	}
	return s.projection.MaxTimestampForDevice(device), nil
}
