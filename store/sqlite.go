package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNoRoute is returned when no routing rule matches the call.
var ErrNoRoute = errors.New("store: no routing rule matches")

const schema = `
CREATE TABLE IF NOT EXISTS cdrs (
	session_id   TEXT PRIMARY KEY,
	direction    TEXT NOT NULL,
	caller       TEXT NOT NULL,
	called       TEXT NOT NULL,
	queue_name   TEXT NOT NULL DEFAULT '',
	agent_id     TEXT NOT NULL DEFAULT '',
	campaign_id  TEXT NOT NULL DEFAULT '',
	start_time   INTEGER NOT NULL,
	queue_enter  INTEGER NOT NULL DEFAULT 0,
	ring_at      INTEGER NOT NULL DEFAULT 0,
	answer_at    INTEGER NOT NULL DEFAULT 0,
	end_at       INTEGER NOT NULL,
	talk_seconds REAL NOT NULL DEFAULT 0,
	end_reason   TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_cdrs_queue ON cdrs(queue_name, start_time);

CREATE TABLE IF NOT EXISTS queue_events (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id  TEXT NOT NULL,
	queue_name  TEXT NOT NULL,
	kind        TEXT NOT NULL,
	at          INTEGER NOT NULL,
	waited_sec  REAL NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_queue_events_queue ON queue_events(queue_name, at);

CREATE TABLE IF NOT EXISTS route_rules (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	caller_prefix  TEXT NOT NULL DEFAULT '',
	called_prefix  TEXT NOT NULL DEFAULT '',
	value          TEXT NOT NULL
);
`

// SQLite implements Repository on a local SQLite database.
type SQLite struct {
	db *sql.DB
}

// OpenSQLite opens (and if needed initializes) the database at path.
func OpenSQLite(path string) (*SQLite, error) {
	dsn := fmt.Sprintf("file:%s?_journal=WAL&_sync=NORMAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLite) Close() error { return s.db.Close() }

// RouteValue picks the rule with the longest combined prefix match so
// that identical inputs always resolve to the same value.
func (s *SQLite) RouteValue(ctx context.Context, caller, called string) (string, error) {
	const q = `
		SELECT value FROM route_rules
		WHERE (caller_prefix = '' OR ? LIKE caller_prefix || '%')
		  AND (called_prefix = '' OR ? LIKE called_prefix || '%')
		ORDER BY length(caller_prefix) + length(called_prefix) DESC, id ASC
		LIMIT 1`

	var value string
	err := s.db.QueryRowContext(ctx, q, caller, called).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNoRoute
	}
	if err != nil {
		return "", fmt.Errorf("route lookup: %w", err)
	}
	return value, nil
}

// AddRouteRule inserts a lookup rule. Empty prefixes match anything.
func (s *SQLite) AddRouteRule(ctx context.Context, callerPrefix, calledPrefix, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO route_rules (caller_prefix, called_prefix, value) VALUES (?, ?, ?)`,
		callerPrefix, calledPrefix, value)
	if err != nil {
		return fmt.Errorf("insert route rule: %w", err)
	}
	return nil
}

func (s *SQLite) WriteCDR(ctx context.Context, cdr *CDR) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO cdrs (
			session_id, direction, caller, called, queue_name, agent_id,
			campaign_id, start_time, queue_enter, ring_at, answer_at,
			end_at, talk_seconds, end_reason
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		cdr.SessionID, cdr.Direction, cdr.Caller, cdr.Called, cdr.QueueName,
		cdr.AgentID, cdr.CampaignID,
		unixOrZero(cdr.StartTime), unixOrZero(cdr.QueueEnter),
		unixOrZero(cdr.RingAt), unixOrZero(cdr.AnswerAt), unixOrZero(cdr.EndAt),
		cdr.TalkSeconds, cdr.EndReason)
	if err != nil {
		return fmt.Errorf("insert cdr: %w", err)
	}
	return nil
}

func (s *SQLite) WriteQueueEvent(ctx context.Context, ev *QueueEvent) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO queue_events (session_id, queue_name, kind, at, waited_sec) VALUES (?, ?, ?, ?, ?)`,
		ev.SessionID, ev.QueueName, ev.Kind, unixOrZero(ev.At), ev.WaitedSec)
	if err != nil {
		return fmt.Errorf("insert queue event: %w", err)
	}
	return nil
}

func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}
