package devicelog

import (
	"bytes"
	"context"
	"database/sql"
	"fmt"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/proptree"
)

// MaxTimestamp returns the greatest timestamp stored in this log, or nil
// if the log is empty (spec §4.4 max_timestamp()).
func (l *Log) MaxTimestamp(ctx context.Context) (*int64, error) {
	var max sql.NullInt64
	err := l.db.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM changes`).Scan(&max)
	if err != nil {
		return nil, fmt.Errorf("devicelog: max timestamp: %w", err)
	}
	if !max.Valid {
		return nil, nil
	}
	v := max.Int64
	return &v, nil
}

// Append inserts a single change. Fails with ErrAppendOrderViolation if
// change.Timestamp is not strictly greater than the log's current max
// timestamp (spec §4.4 append()).
func (l *Log) Append(ctx context.Context, c change.Change) error {
	if l.readonly {
		return ErrReadOnly
	}

	max, err := l.MaxTimestamp(ctx)
	if err != nil {
		return err
	}
	if max != nil && c.Timestamp <= *max {
		return ErrAppendOrderViolation
	}

	return l.insert(ctx, l.db, c)
}

// AppendBatch bulk-inserts changes. When appendOnly is true, the whole
// batch is rejected with ErrAppendOrderViolation if any timestamp is not
// strictly greater than the log's current max (spec §4.4
// append_batch()); otherwise changes may be inserted in any relation to
// the current max. A timestamp that exactly matches an existing row
// with the same value is silently skipped (ON CONFLICT DO NOTHING, per
// the teacher's write.go idiom); one that matches an existing row with
// a different value rejects the whole batch with ErrDuplicateTimestamp
// (spec §7 DuplicateTimestamp).
func (l *Log) AppendBatch(ctx context.Context, changes []change.Change, appendOnly bool) error {
	if l.readonly {
		return ErrReadOnly
	}
	if len(changes) == 0 {
		return nil
	}

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("devicelog: append batch: begin: %w", err)
	}
	defer tx.Rollback()

	if appendOnly {
		var max sql.NullInt64
		if err := tx.QueryRowContext(ctx, `SELECT MAX(timestamp) FROM changes`).Scan(&max); err != nil {
			return fmt.Errorf("devicelog: append batch: max timestamp: %w", err)
		}
		if max.Valid {
			for _, c := range changes {
				if c.Timestamp <= max.Int64 {
					return ErrAppendOrderViolation
				}
			}
		}
	} else {
		for _, c := range changes {
			if err := checkDuplicateTimestamp(ctx, tx, c); err != nil {
				return err
			}
		}
	}

	for _, c := range changes {
		if err := l.insert(ctx, tx, c); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("devicelog: append batch: commit: %w", err)
	}
	return nil
}

// checkDuplicateTimestamp rejects c with ErrDuplicateTimestamp if a row
// already exists at c.Timestamp whose encoded value differs from c's.
// An exact match (or no existing row) is fine and insert's own
// ON CONFLICT DO NOTHING takes care of the rest.
func checkDuplicateTimestamp(ctx context.Context, tx *sql.Tx, c change.Change) error {
	var existing []byte
	err := tx.QueryRowContext(ctx, `SELECT value FROM changes WHERE timestamp = ?`, c.Timestamp).Scan(&existing)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("devicelog: duplicate timestamp check: %w", err)
	}
	if !bytes.Equal(existing, proptree.Encode(c.Value)) {
		return ErrDuplicateTimestamp
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (l *Log) insert(ctx context.Context, e execer, c change.Change) error {
	if c.Key == "" {
		return fmt.Errorf("devicelog: change key must not be empty")
	}
	encoded := proptree.Encode(c.Value)
	_, err := e.ExecContext(ctx, `
		INSERT INTO changes (timestamp, parent_timestamp, key, value)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(timestamp) DO NOTHING
	`, c.Timestamp, nullableInt64(c.ParentTimestamp), c.Key, encoded)
	if err != nil {
		return fmt.Errorf("devicelog: insert: %w", err)
	}
	return nil
}

func nullableInt64(p *int64) any {
	if p == nil {
		return nil
	}
	return *p
}
