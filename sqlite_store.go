package gatekeeper

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore implements Store on SQLite using pure SQL.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and if needed initializes) a SQLite-backed store.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Enable foreign keys and WAL mode for consistency under concurrent use
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return nil, fmt.Errorf("failed to set WAL mode: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

// NewInMemorySQLiteStore creates an in-memory SQLite store for testing.
func NewInMemorySQLiteStore() (*SQLiteStore, error) {
	return NewSQLiteStore(":memory:")
}

func (s *SQLiteStore) migrate() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS auth_state (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_log (
			id TEXT PRIMARY KEY,
			event_type TEXT NOT NULL,
			severity INTEGER NOT NULL,
			detail TEXT NOT NULL DEFAULT '',
			source TEXT NOT NULL DEFAULT '',
			blocked INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_notifications (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			read INTEGER NOT NULL DEFAULT 0,
			urgent INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_log_created_at ON security_log(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_security_notifications_created_at ON security_notifications(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (s *SQLiteStore) Set(key, value string) error {
	_, err := s.db.Exec(
		`INSERT INTO auth_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM auth_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (s *SQLiteStore) Delete(key string) error {
	if _, err := s.db.Exec(`DELETE FROM auth_state WHERE key = ?`, key); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (s *SQLiteStore) AppendSecurityEvent(ev *SecurityEvent) error {
	_, err := s.db.Exec(
		`INSERT INTO security_log (id, event_type, severity, detail, source, blocked, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		ev.ID, string(ev.Type), int(ev.Severity), ev.Detail, ev.Source, boolToInt(ev.Blocked), ev.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append security event: %w", err)
	}
	// Keep the durable log capped to the newest entries.
	_, err = s.db.Exec(
		`DELETE FROM security_log WHERE id NOT IN (
			SELECT id FROM security_log ORDER BY created_at DESC, id LIMIT ?
		)`, maxPersistedEvents)
	if err != nil {
		return fmt.Errorf("failed to trim security log: %w", err)
	}
	return nil
}

func (s *SQLiteStore) SecurityEvents(limit int) ([]*SecurityEvent, error) {
	if limit <= 0 || limit > maxPersistedEvents {
		limit = maxPersistedEvents
	}
	rows, err := s.db.Query(
		`SELECT id, event_type, severity, detail, source, blocked, created_at
		 FROM security_log ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query security log: %w", err)
	}
	defer rows.Close()

	var events []*SecurityEvent
	for rows.Next() {
		var (
			ev        SecurityEvent
			eventType string
			severity  int
			blocked   int
			createdAt time.Time
		)
		if err := rows.Scan(&ev.ID, &eventType, &severity, &ev.Detail, &ev.Source, &blocked, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		ev.Type = EventType(eventType)
		ev.Severity = Severity(severity)
		ev.Blocked = blocked != 0
		ev.Timestamp = createdAt
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *SQLiteStore) AppendNotification(n *Notification) error {
	_, err := s.db.Exec(
		`INSERT INTO security_notifications (id, title, message, read, urgent, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		n.ID, n.Title, n.Message, boolToInt(n.Read), boolToInt(n.Urgent), n.Timestamp)
	if err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	_, err = s.db.Exec(
		`DELETE FROM security_notifications WHERE id NOT IN (
			SELECT id FROM security_notifications ORDER BY created_at DESC, id LIMIT ?
		)`, maxPersistedNotifications)
	if err != nil {
		return fmt.Errorf("failed to trim notifications: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Notifications(limit int) ([]*Notification, error) {
	if limit <= 0 || limit > maxPersistedNotifications {
		limit = maxPersistedNotifications
	}
	rows, err := s.db.Query(
		`SELECT id, title, message, read, urgent, created_at
		 FROM security_notifications ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var (
			n         Notification
			read      int
			urgent    int
			createdAt time.Time
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &read, &urgent, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Read = read != 0
		n.Urgent = urgent != 0
		n.Timestamp = createdAt
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (s *SQLiteStore) Ping() error { return s.db.Ping() }

func (s *SQLiteStore) Close() error { return s.db.Close() }

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
