// Package history implements the history query engine (spec §4.8):
// range scans, predecessor/successor lookup, and prefix scan across the
// merged set of per-device logs. Every operation refuses to run while a
// transaction is in progress (spec §5, §7 InTransaction), since these
// queries must see a consistent snapshot and a transaction holds
// exclusive access to the database queue.
//
// Grounded on internal/store/read.go's deterministic ORDER BY pattern
// and internal/store/replay.go's merge-across-streams shape in the
// teacher (ReplayFlow folds invocations/completions/sync firings into
// one ordered timeline; here the same fold merges per-device Change
// streams by timestamp instead).
package history
