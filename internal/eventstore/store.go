// Package eventstore keeps an auditable timeline of dialog sessions: state
// transitions, candidates, commits. Retention is configurable so kiosk
// installs can run without persisting student speech history at all.
package eventstore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/voxexam-labs/voxexam-core/internal/config"
	"github.com/voxexam-labs/voxexam-core/internal/protocol"
)

// Store wraps a SQLite-backed dialog event timeline.
type Store struct {
	db    *sql.DB
	cfg   config.EventStoreConfig
	log   *slog.Logger
	clock func() time.Time
}

// Open initializes the event store according to config. In ephemeral mode no
// database is opened and every write is a no-op.
func Open(ctx context.Context, cfg config.EventStoreConfig, log *slog.Logger) (*Store, error) {
	if cfg.RetentionMode == "ephemeral" {
		return &Store{cfg: cfg, log: log, clock: time.Now}, nil
	}

	dir := filepath.Dir(cfg.Path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create data dir: %w", err)
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=foreign_keys(ON)", cfg.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	s := &Store{db: db, cfg: cfg, log: log, clock: time.Now}

	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}

	if cfg.VacuumOnStart {
		if err := s.vacuum(ctx); err != nil {
			log.Warn("event store vacuum failed", slog.String("error", err.Error()))
		}
	}

	if err := s.Prune(ctx); err != nil {
		log.Warn("event store prune on start failed", slog.String("error", err.Error()))
	}

	return s, nil
}

func (s *Store) initSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	ddl := `
CREATE TABLE IF NOT EXISTS dialog_sessions (
    session_id TEXT PRIMARY KEY,
    attempt_id TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS dialog_events (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    attempt_id TEXT NOT NULL,
    event_type TEXT NOT NULL,
    detail TEXT,
    created_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_dialog_events_session_created ON dialog_events(session_id, created_at);
CREATE INDEX IF NOT EXISTS idx_dialog_events_attempt ON dialog_events(attempt_id);
`
	_, err := s.db.ExecContext(ctx, ddl)
	return err
}

func (s *Store) vacuum(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// Close releases underlying resources.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// AppendEvent writes one timeline entry, creating the session row on first
// sight of its session id.
func (s *Store) AppendEvent(ctx context.Context, evt protocol.DialogEvent) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	if evt.Timestamp.IsZero() {
		evt.Timestamp = s.clock().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO dialog_sessions(session_id, attempt_id, created_at)
		 VALUES(?, ?, ?)
		 ON CONFLICT(session_id) DO NOTHING`,
		evt.SessionID, evt.AttemptID, evt.Timestamp)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO dialog_events(session_id, attempt_id, event_type, detail, created_at)
		 VALUES(?, ?, ?, ?, ?)`,
		evt.SessionID, evt.AttemptID, evt.Type, evt.Detail, evt.Timestamp)
	return err
}

// ListSessionEvents retrieves up to limit events for a session in time order.
func (s *Store) ListSessionEvents(ctx context.Context, sessionID string, limit int) ([]protocol.DialogEvent, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, attempt_id, event_type, detail, created_at
		 FROM dialog_events WHERE session_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, sessionID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

// ListAttemptEvents retrieves the timeline across every question of an attempt.
func (s *Store) ListAttemptEvents(ctx context.Context, attemptID string, limit int) ([]protocol.DialogEvent, error) {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil, nil
	}
	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, attempt_id, event_type, detail, created_at
		 FROM dialog_events WHERE attempt_id = ? ORDER BY created_at ASC, id ASC LIMIT ?`, attemptID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanEvents(rows)
}

func scanEvents(rows *sql.Rows) ([]protocol.DialogEvent, error) {
	var events []protocol.DialogEvent
	for rows.Next() {
		var e protocol.DialogEvent
		var detail sql.NullString
		var created string
		if err := rows.Scan(&e.SessionID, &e.AttemptID, &e.Type, &detail, &created); err != nil {
			return nil, err
		}
		e.Detail = detail.String
		if ts, err := time.Parse(time.RFC3339Nano, created); err == nil {
			e.Timestamp = ts
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// Prune applies configured retention (called on startup, can be scheduled).
func (s *Store) Prune(ctx context.Context) error {
	if s.cfg.RetentionMode == "ephemeral" || s.db == nil {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if s.cfg.RetentionDays > 0 {
		cutoff := s.clock().Add(-time.Duration(s.cfg.RetentionDays) * 24 * time.Hour)
		if _, err = tx.ExecContext(ctx, `DELETE FROM dialog_events WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM dialog_sessions WHERE created_at < ?`, cutoff.UTC()); err != nil {
			return err
		}
	}
	if s.cfg.MaxSessions > 0 {
		if _, err = tx.ExecContext(ctx, `DELETE FROM dialog_sessions WHERE session_id IN (
			SELECT session_id FROM dialog_sessions ORDER BY created_at DESC LIMIT -1 OFFSET ?
		)`, s.cfg.MaxSessions); err != nil {
			return err
		}
		if _, err = tx.ExecContext(ctx, `DELETE FROM dialog_events WHERE session_id NOT IN (
			SELECT session_id FROM dialog_sessions
		)`); err != nil {
			return err
		}
	}
	err = tx.Commit()
	return err
}
