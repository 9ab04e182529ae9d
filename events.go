package gatekeeper

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType classifies a security event.
type EventType string

const (
	EventFailedLogin        EventType = "failed_login"
	EventSuspiciousActivity EventType = "suspicious_activity"
	EventUnauthorizedAccess EventType = "unauthorized_access"
	EventDataBreachAttempt  EventType = "data_breach_attempt"
	EventSessionHijack      EventType = "session_hijack"
)

// Severity orders security events by urgency.
type Severity int

const (
	SeverityLow Severity = iota
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityLow:
		return "low"
	case SeverityMedium:
		return "medium"
	case SeverityHigh:
		return "high"
	case SeverityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// SecurityEvent is one logged occurrence of a security-relevant condition.
type SecurityEvent struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	Detail    string    `json:"detail"`
	Source    string    `json:"source"`
	Blocked   bool      `json:"blocked"`
}

// Notification is the admin-facing record derived from a critical event.
type Notification struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Read      bool      `json:"read"`
	Urgent    bool      `json:"urgent"`
}

// NotificationSink receives notifications derived from critical events. It
// is implemented by an external collaborator; delivery failures are logged,
// never propagated.
type NotificationSink interface {
	Notify(n Notification)
}

// maxMemoryEvents is the in-memory ring size.
const maxMemoryEvents = 100

// EventLog is the append-only record of security events. It keeps the most
// recent events in a ring, persists High and Critical events to the store,
// and escalates Critical events to the notification sink.
type EventLog struct {
	mu     sync.Mutex
	ring   []*SecurityEvent
	store  Store
	sink   NotificationSink
	clock  Clock
	logger *slog.Logger
}

// NewEventLog creates an event log. sink may be nil when no collaborator
// consumes notifications.
func NewEventLog(store Store, sink NotificationSink, clock Clock, logger *slog.Logger) *EventLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventLog{
		store:  store,
		sink:   sink,
		clock:  clock,
		logger: logger,
	}
}

// Append records an event, assigning its ID and timestamp, and returns it.
func (l *EventLog) Append(eventType EventType, severity Severity, detail, source string, blocked bool) *SecurityEvent {
	ev := &SecurityEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  severity,
		Timestamp: l.clock.Now(),
		Detail:    detail,
		Source:    source,
		Blocked:   blocked,
	}

	l.mu.Lock()
	l.ring = append(l.ring, ev)
	if len(l.ring) > maxMemoryEvents {
		l.ring = l.ring[len(l.ring)-maxMemoryEvents:]
	}
	l.mu.Unlock()

	l.logger.Warn("security event",
		"type", string(ev.Type),
		"severity", ev.Severity.String(),
		"source", ev.Source,
		"detail", ev.Detail)

	if severity >= SeverityHigh {
		if err := l.store.AppendSecurityEvent(ev); err != nil {
			l.logger.Error("failed to persist security event", "id", ev.ID, "error", err)
		}
	}
	if severity == SeverityCritical {
		l.escalate(ev)
	}
	return ev
}

// Recent returns up to limit of the most recent in-memory events, newest
// first.
func (l *EventLog) Recent(limit int) []*SecurityEvent {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := len(l.ring)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]*SecurityEvent, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, l.ring[i])
	}
	return out
}

func (l *EventLog) escalate(ev *SecurityEvent) {
	n := Notification{
		ID:        uuid.NewString(),
		Title:     "Security alert: " + string(ev.Type),
		Message:   ev.Detail,
		Timestamp: ev.Timestamp,
		Urgent:    true,
	}
	if err := l.store.AppendNotification(&n); err != nil {
		l.logger.Error("failed to persist notification", "id", n.ID, "error", err)
	}
	if l.sink != nil {
		l.sink.Notify(n)
	}
}
