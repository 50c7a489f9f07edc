// Package projection implements the merged in-memory view (spec §4.5):
// one entry per key, holding the value, timestamp, and owning device of
// whichever change currently has the greatest timestamp for that key,
// tie-broken lexicographically by device identifier (spec §9, Open
// Question (a)).
//
// Grounded on internal/store/replay.go's GetFlowState in the teacher: a
// fold over every record, keeping a running "latest wins" map, generalized
// here from a single flow-state fold to a per-key fold across many
// per-device logs.
package projection
