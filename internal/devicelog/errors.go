package devicelog

import "errors"

// ErrAppendOrderViolation is returned by Append and by AppendBatch(...,
// appendOnly=true) when a change's timestamp is not strictly greater
// than the log's current max timestamp (spec §4.4, §7 AppendOrderViolation).
var ErrAppendOrderViolation = errors.New("devicelog: timestamp is not greater than the log's current max timestamp")

// ErrReadOnly is returned by any mutating call on a log opened readonly.
var ErrReadOnly = errors.New("devicelog: log was opened read-only")

// ErrDuplicateTimestamp is returned by AppendBatch(..., appendOnly=false)
// when an incoming change's timestamp collides with an existing row
// whose value differs (spec §7 DuplicateTimestamp). A collision with an
// identical value is not an error: it is silently skipped.
var ErrDuplicateTimestamp = errors.New("devicelog: duplicate timestamp with differing value")
