// Package querylog records submitted programs in a SQLite database. The
// log is best effort: a failure to record is reported to the logger and
// never reaches the caller.
package querylog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

const schema = `CREATE TABLE IF NOT EXISTS query_log (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	request_id  TEXT,
	timestamp   TEXT,
	ip          TEXT,
	browser     TEXT,
	input_script TEXT,
	had_error   INTEGER
)`

// Entry is one submission.
type Entry struct {
	RequestID string
	Time      time.Time
	RemoteIP  string
	UserAgent string
	Script    string
	HadError  bool
}

// Log is an open query log. A nil *Log records nothing.
type Log struct {
	db  *sql.DB
	log zerolog.Logger
}

// Open opens or creates the query log at path.
func Open(ctx context.Context, path string, log zerolog.Logger) (*Log, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("opening query log: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating query log table: %w", err)
	}
	return &Log{db: db, log: log}, nil
}

// Record stores e. Errors are logged and dropped.
func (l *Log) Record(ctx context.Context, e Entry) {
	if l == nil {
		return
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO query_log (request_id, timestamp, ip, browser, input_script, had_error) VALUES (?, ?, ?, ?, ?, ?)`,
		e.RequestID, e.Time.UTC().Format(time.RFC3339), e.RemoteIP, e.UserAgent, e.Script, e.HadError)
	if err != nil {
		l.log.Warn().Err(err).Str("request_id", e.RequestID).Msg("query log write failed")
	}
}

// Count returns the number of recorded submissions.
func (l *Log) Count(ctx context.Context) (int, error) {
	if l == nil {
		return 0, nil
	}
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM query_log`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting query log: %w", err)
	}
	return n, nil
}

// Recent returns up to limit entries, newest first.
func (l *Log) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if l == nil {
		return nil, nil
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT request_id, timestamp, ip, browser, input_script, had_error FROM query_log ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("reading query log: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Entry
	for rows.Next() {
		var (
			e  Entry
			ts string
		)
		if err := rows.Scan(&e.RequestID, &ts, &e.RemoteIP, &e.UserAgent, &e.Script, &e.HadError); err != nil {
			return nil, fmt.Errorf("reading query log: %w", err)
		}
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			e.Time = t
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close closes the database.
func (l *Log) Close() error {
	if l == nil {
		return nil
	}
	return l.db.Close()
}
