// Package devicelog implements the per-device log store (spec §4.4): a
// durable, append-only sequence of changes for one device identifier,
// backed by SQLite in WAL mode, with indexed lookup by key, by
// timestamp range, and by (key, timestamp) for predecessor/successor
// queries.
//
// Grounded on internal/store/store.go and internal/store/write.go in
// the teacher: same connection setup (single writer, WAL, busy_timeout,
// foreign_keys), same ON CONFLICT DO NOTHING idempotency idiom for
// duplicate-insert safety, same embed-schema-at-build-time approach.
// The schema itself has no teacher analogue — spec §6 names the record
// shape and required indexes, not a table layout — so schema.sql is
// authored from the spec directly, in the teacher's SQL style.
package devicelog
