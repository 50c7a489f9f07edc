package devicelog

import (
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Log is one device's append-only change log. The zero value is not
// usable; use Open.
type Log struct {
	db       *sql.DB
	path     string
	readonly bool
}

// Open opens (or, if writable and missing, creates) the log container at
// path. Idempotent: calling Open twice on the same writable path is safe.
//
// Grounded on internal/store/store.go's Open in the teacher: single
// writer connection, WAL journal mode, busy_timeout, foreign_keys on.
func Open(path string, readonly bool) (*Log, error) {
	if !readonly {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("devicelog: create parent directory: %w", err)
		}
	}

	dsn := path
	if readonly {
		dsn = fmt.Sprintf("file:%s?mode=ro&_journal_mode=WAL", path)
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("devicelog: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("devicelog: connect %s: %w", path, err)
	}

	// SQLite allows exactly one writer; a read-only handle is typically a
	// foreign device's log watched concurrently from other processes, so
	// it gets its own idle connection too rather than sharing the
	// writer's pool.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db, readonly); err != nil {
		db.Close()
		return nil, err
	}

	if !readonly {
		if _, err := db.Exec(schemaSQL); err != nil {
			db.Close()
			return nil, fmt.Errorf("devicelog: apply schema: %w", err)
		}
	}

	return &Log{db: db, path: path, readonly: readonly}, nil
}

func applyPragmas(db *sql.DB, readonly bool) error {
	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	if !readonly {
		pragmas = append([]string{
			"PRAGMA journal_mode = WAL",
			"PRAGMA synchronous = NORMAL",
		}, pragmas...)
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return fmt.Errorf("devicelog: pragma %q: %w", p, err)
		}
	}
	return nil
}

// Close releases the underlying database handle. Safe to call once.
func (l *Log) Close() error {
	if l.db == nil {
		return nil
	}
	return l.db.Close()
}

// Path returns the filesystem path this log was opened from.
func (l *Log) Path() string { return l.path }

// ReadOnly reports whether this handle rejects mutation.
func (l *Log) ReadOnly() bool { return l.readonly }
