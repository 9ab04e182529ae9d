package gatekeeper

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// PostgresStore implements Store for PostgreSQL databases using pure SQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore connects to PostgreSQL, verifies the connection and
// creates the backing tables if they do not exist yet.
func NewPostgresStore(dsn string) (*PostgresStore, error) {
	pgxConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		slog.Error("Failed to parse DSN", "error", err)
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}

	db := stdlib.OpenDB(*pgxConfig)

	if err := db.Ping(); err != nil {
		slog.Error("Failed to ping database", "error", err)
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (p *PostgresStore) migrate() error {
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
			blocked BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS security_notifications (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			message TEXT NOT NULL DEFAULT '',
			read BOOLEAN NOT NULL DEFAULT FALSE,
			urgent BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_log_created_at ON security_log(created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_security_notifications_created_at ON security_notifications(created_at)`,
	}
	for _, stmt := range statements {
		if _, err := p.db.Exec(stmt); err != nil {
			slog.Error("Failed to create table", "error", err)
			return fmt.Errorf("failed to create table: %w", err)
		}
	}
	return nil
}

func (p *PostgresStore) Set(key, value string) error {
	query := `INSERT INTO auth_state (key, value) VALUES ($1, $2)
			  ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value`

	if _, err := p.db.Exec(query, key, value); err != nil {
		slog.Error("Failed to set auth state", "error", err, "key", key)
		return fmt.Errorf("failed to set %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) Get(key string) (string, bool, error) {
	query := `SELECT value FROM auth_state WHERE key = $1`

	var value string
	err := p.db.QueryRow(query, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		slog.Error("Failed to get auth state", "error", err, "key", key)
		return "", false, fmt.Errorf("failed to get %s: %w", key, err)
	}
	return value, true, nil
}

func (p *PostgresStore) Delete(key string) error {
	query := `DELETE FROM auth_state WHERE key = $1`

	if _, err := p.db.Exec(query, key); err != nil {
		slog.Error("Failed to delete auth state", "error", err, "key", key)
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

func (p *PostgresStore) AppendSecurityEvent(ev *SecurityEvent) error {
	query := `INSERT INTO security_log (id, event_type, severity, detail, source, blocked, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := p.db.Exec(query, ev.ID, string(ev.Type), int(ev.Severity), ev.Detail, ev.Source, ev.Blocked, ev.Timestamp)
	if err != nil {
		slog.Error("Failed to append security event", "error", err, "event_id", ev.ID)
		return fmt.Errorf("failed to append security event: %w", err)
	}

	trim := `DELETE FROM security_log WHERE id NOT IN (
				SELECT id FROM security_log ORDER BY created_at DESC, id LIMIT $1
			 )`
	if _, err := p.db.Exec(trim, maxPersistedEvents); err != nil {
		slog.Error("Failed to trim security log", "error", err)
		return fmt.Errorf("failed to trim security log: %w", err)
	}
	return nil
}

func (p *PostgresStore) SecurityEvents(limit int) ([]*SecurityEvent, error) {
	if limit <= 0 || limit > maxPersistedEvents {
		limit = maxPersistedEvents
	}
	query := `SELECT id, event_type, severity, detail, source, blocked, created_at
			  FROM security_log ORDER BY created_at DESC, id LIMIT $1`

	rows, err := p.db.Query(query, limit)
	if err != nil {
		slog.Error("Failed to query security log", "error", err)
		return nil, fmt.Errorf("failed to query security log: %w", err)
	}
	defer rows.Close()

	var events []*SecurityEvent
	for rows.Next() {
		var (
			ev        SecurityEvent
			eventType string
			severity  int
			createdAt time.Time
		)
		if err := rows.Scan(&ev.ID, &eventType, &severity, &ev.Detail, &ev.Source, &ev.Blocked, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan security event: %w", err)
		}
		ev.Type = EventType(eventType)
		ev.Severity = Severity(severity)
		ev.Timestamp = createdAt
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (p *PostgresStore) AppendNotification(n *Notification) error {
	query := `INSERT INTO security_notifications (id, title, message, read, urgent, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.db.Exec(query, n.ID, n.Title, n.Message, n.Read, n.Urgent, n.Timestamp)
	if err != nil {
		slog.Error("Failed to append notification", "error", err, "notification_id", n.ID)
		return fmt.Errorf("failed to append notification: %w", err)
	}

	trim := `DELETE FROM security_notifications WHERE id NOT IN (
				SELECT id FROM security_notifications ORDER BY created_at DESC, id LIMIT $1
			 )`
	if _, err := p.db.Exec(trim, maxPersistedNotifications); err != nil {
		slog.Error("Failed to trim notifications", "error", err)
		return fmt.Errorf("failed to trim notifications: %w", err)
	}
	return nil
}

func (p *PostgresStore) Notifications(limit int) ([]*Notification, error) {
	if limit <= 0 || limit > maxPersistedNotifications {
		limit = maxPersistedNotifications
	}
	query := `SELECT id, title, message, read, urgent, created_at
			  FROM security_notifications ORDER BY created_at DESC, id LIMIT $1`

	rows, err := p.db.Query(query, limit)
	if err != nil {
		slog.Error("Failed to query notifications", "error", err)
		return nil, fmt.Errorf("failed to query notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		var (
			n         Notification
			createdAt time.Time
		)
		if err := rows.Scan(&n.ID, &n.Title, &n.Message, &n.Read, &n.Urgent, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.Timestamp = createdAt
		notifications = append(notifications, &n)
	}
	return notifications, rows.Err()
}

func (p *PostgresStore) Ping() error { return p.db.Ping() }

func (p *PostgresStore) Close() error { return p.db.Close() }
