package devicelog

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/parstore/parstore/internal/change"
	"github.com/parstore/parstore/internal/proptree"
)

// Range is a closed timestamp interval; a nil bound is open on that side.
type Range struct {
	From *int64
	To   *int64
}

// Scan returns every change in this log within r, in ascending timestamp
// order, optionally restricted to a single key (spec §4.4 scan()). This
// log is already scoped to one device, so there is no device filter here
// — fanning a scan out across devices is the history package's job
// (internal/history), which knows which device's Log to open.
func (l *Log) Scan(ctx context.Context, key *string, r Range) ([]change.Change, error) {
	query := `SELECT timestamp, parent_timestamp, key, value FROM changes WHERE 1=1`
	var args []any
	if key != nil {
		query += ` AND key = ?`
		args = append(args, *key)
	}
	if r.From != nil {
		query += ` AND timestamp >= ?`
		args = append(args, *r.From)
	}
	if r.To != nil {
		query += ` AND timestamp <= ?`
		args = append(args, *r.To)
	}
	query += ` ORDER BY timestamp ASC`

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("devicelog: scan: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// LatestPerKey returns the most recent change for each key present in
// this log (spec §4.4 latest_per_key()).
func (l *Log) LatestPerKey(ctx context.Context) ([]change.Change, error) {
	rows, err := l.db.QueryContext(ctx, `
		SELECT c.timestamp, c.parent_timestamp, c.key, c.value
		FROM changes c
		JOIN (
			SELECT key, MAX(timestamp) AS max_ts FROM changes GROUP BY key
		) latest ON latest.key = c.key AND latest.max_ts = c.timestamp
		ORDER BY c.timestamp ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("devicelog: latest per key: %w", err)
	}
	defer rows.Close()

	return scanRows(rows)
}

// Predecessor returns the change with the greatest timestamp strictly
// less than ts for key, or nil if none exists.
func (l *Log) Predecessor(ctx context.Context, key string, ts int64) (*change.Change, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT timestamp, parent_timestamp, key, value FROM changes
		WHERE key = ? AND timestamp < ?
		ORDER BY timestamp DESC LIMIT 1
	`, key, ts)
	return scanOptionalRow(row)
}

// Successor returns the change with the least timestamp strictly greater
// than ts for key, or nil if none exists.
func (l *Log) Successor(ctx context.Context, key string, ts int64) (*change.Change, error) {
	row := l.db.QueryRowContext(ctx, `
		SELECT timestamp, parent_timestamp, key, value FROM changes
		WHERE key = ? AND timestamp > ?
		ORDER BY timestamp ASC LIMIT 1
	`, key, ts)
	return scanOptionalRow(row)
}

// AllKeys returns the set of distinct keys ever written to this log.
func (l *Log) AllKeys(ctx context.Context) ([]string, error) {
	rows, err := l.db.QueryContext(ctx, `SELECT DISTINCT key FROM changes`)
	if err != nil {
		return nil, fmt.Errorf("devicelog: all keys: %w", err)
	}
	defer rows.Close()

	var keys []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, fmt.Errorf("devicelog: all keys: scan: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChange(s rowScanner) (change.Change, error) {
	var (
		ts        int64
		parentRaw sql.NullInt64
		key       string
		value     []byte
	)
	if err := s.Scan(&ts, &parentRaw, &key, &value); err != nil {
		return change.Change{}, err
	}
	v, err := proptree.Decode(value)
	if err != nil {
		return change.Change{}, fmt.Errorf("devicelog: corrupt record at timestamp %d: %w", ts, err)
	}
	var parent *int64
	if parentRaw.Valid {
		p := parentRaw.Int64
		parent = &p
	}
	return change.New(ts, parent, key, v), nil
}

func scanRows(rows *sql.Rows) ([]change.Change, error) {
	var out []change.Change
	for rows.Next() {
		c, err := scanChange(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("devicelog: iterate rows: %w", err)
	}
	return out, nil
}

func scanOptionalRow(row *sql.Row) (*change.Change, error) {
	c, err := scanChange(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}
