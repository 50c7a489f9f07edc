package projection

import "github.com/parstore/parstore/internal/proptree"

// Entry is the merged state of one key: whichever change currently has
// the greatest timestamp, plus the device that wrote it.
type Entry struct {
	Value     proptree.Value
	Timestamp int64
	Device    string
}

// wins reports whether a candidate (ts, device) should replace the
// current entry, applying the spec §3/§9 tie-break: strictly greater
// timestamp always wins; on an exact tie, the lexicographically greater
// device identifier wins. Ties are possible when two devices stamp the
// same wall-clock tick, or during insertChanges() replay.
func wins(cur Entry, hasCur bool, ts int64, device string) bool {
	if !hasCur {
		return true
	}
	if ts != cur.Timestamp {
		return ts > cur.Timestamp
	}
	return device > cur.Device
}
