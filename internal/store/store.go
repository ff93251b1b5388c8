package store

import (
	"database/sql"
	_ "embed"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/cursor-telemetry/backend/internal/session"
)

//go:embed schema.sql
var schemaSQL string

// Store persists completed sessions in SQLite. Saves are idempotent on
// the deterministic session ID, so re-processing a replayed event stream
// after a restart does not duplicate rows.
type Store struct {
	db *sql.DB
}

// Open creates or opens the database at path, applying pragmas and the
// schema. WAL mode allows API reads while the pipeline handler writes;
// the pool is capped at one connection because SQLite has a single
// writer.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", p, err)
		}
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// SaveSession writes the session and its member events in one
// transaction. A session whose ID is already present is left untouched.
func (s *Store) SaveSession(sess session.Session) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.Exec(
		`INSERT OR IGNORE INTO sessions (id, fingerprint, start_time, end_time, duration, event_count)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Fingerprint, sess.StartTime, sess.EndTime, sess.Duration, len(sess.Events),
	)
	if err != nil {
		return fmt.Errorf("insert session %s: %w", sess.ID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Already stored by a previous run; nothing to do.
		return nil
	}

	stmt, err := tx.Prepare(
		`INSERT INTO session_events (session_id, position, type, timestamp, content, file_path, pid, working_dir, application)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare events: %w", err)
	}
	defer stmt.Close()

	for i, ev := range sess.Events {
		_, err := stmt.Exec(sess.ID, i, ev.Type.String(), ev.Timestamp,
			ev.Content, ev.FilePath, ev.ProcessID, ev.WorkingDirectory, ev.Application)
		if err != nil {
			return fmt.Errorf("insert event %d of %s: %w", i, sess.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", sess.ID, err)
	}
	return nil
}

// RecentSessions returns up to limit sessions ordered by start time
// descending, events included.
func (s *Store) RecentSessions(limit int) ([]*session.Session, error) {
	rows, err := s.db.Query(
		`SELECT id, fingerprint, start_time, end_time, duration
		 FROM sessions ORDER BY start_time DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}

	var sessions []*session.Session
	for rows.Next() {
		var sess session.Session
		if err := rows.Scan(&sess.ID, &sess.Fingerprint, &sess.StartTime, &sess.EndTime, &sess.Duration); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, &sess)
	}
	// Release the connection before the per-session event queries; the
	// pool is capped at one connection.
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, sess := range sessions {
		events, err := s.sessionEvents(sess.ID)
		if err != nil {
			return nil, err
		}
		sess.Events = events
	}
	return sessions, nil
}

// GetSession loads one session with its events. The second return value
// is false when the ID is unknown.
func (s *Store) GetSession(id string) (*session.Session, bool, error) {
	var sess session.Session
	err := s.db.QueryRow(
		`SELECT id, fingerprint, start_time, end_time, duration FROM sessions WHERE id = ?`, id,
	).Scan(&sess.ID, &sess.Fingerprint, &sess.StartTime, &sess.EndTime, &sess.Duration)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query session %s: %w", id, err)
	}

	events, err := s.sessionEvents(id)
	if err != nil {
		return nil, false, err
	}
	sess.Events = events
	return &sess, true, nil
}

// Count returns the number of stored sessions.
func (s *Store) Count() (int, error) {
	var n int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM sessions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

func (s *Store) sessionEvents(sessionID string) ([]session.Event, error) {
	rows, err := s.db.Query(
		`SELECT type, timestamp, content, file_path, pid, working_dir, application
		 FROM session_events WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("query events of %s: %w", sessionID, err)
	}
	defer rows.Close()

	var events []session.Event
	for rows.Next() {
		var ev session.Event
		var typ string
		if err := rows.Scan(&typ, &ev.Timestamp, &ev.Content, &ev.FilePath, &ev.ProcessID, &ev.WorkingDirectory, &ev.Application); err != nil {
			return nil, fmt.Errorf("scan event of %s: %w", sessionID, err)
		}
		ev.Type = session.ParseEventType(typ)
		events = append(events, ev)
	}
	return events, rows.Err()
}
