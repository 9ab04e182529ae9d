package gatekeeper

import (
	"sync"
)

// MemoryStore is an in-process Store. It backs the default configuration and
// the test suite; durable deployments use SQLiteStore or PostgresStore.
type MemoryStore struct {
	mu            sync.RWMutex
	values        map[string]string
	events        []*SecurityEvent
	notifications []*Notification
}

// NewMemoryStore returns an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string)}
}

func (m *MemoryStore) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.values[key] = value
	return nil
}

func (m *MemoryStore) Get(key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.values[key]
	return v, ok, nil
}

func (m *MemoryStore) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.values, key)
	return nil
}

func (m *MemoryStore) AppendSecurityEvent(ev *SecurityEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	evCopy := *ev
	// Newest first, capped.
	m.events = append([]*SecurityEvent{&evCopy}, m.events...)
	if len(m.events) > maxPersistedEvents {
		m.events = m.events[:maxPersistedEvents]
	}
	return nil
}

func (m *MemoryStore) SecurityEvents(limit int) ([]*SecurityEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.events) {
		limit = len(m.events)
	}
	out := make([]*SecurityEvent, limit)
	for i := 0; i < limit; i++ {
		evCopy := *m.events[i]
		out[i] = &evCopy
	}
	return out, nil
}

func (m *MemoryStore) AppendNotification(n *Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	nCopy := *n
	m.notifications = append([]*Notification{&nCopy}, m.notifications...)
	if len(m.notifications) > maxPersistedNotifications {
		m.notifications = m.notifications[:maxPersistedNotifications]
	}
	return nil
}

func (m *MemoryStore) Notifications(limit int) ([]*Notification, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if limit <= 0 || limit > len(m.notifications) {
		limit = len(m.notifications)
	}
	out := make([]*Notification, limit)
	for i := 0; i < limit; i++ {
		nCopy := *m.notifications[i]
		out[i] = &nCopy
	}
	return out, nil
}

func (m *MemoryStore) Ping() error { return nil }

func (m *MemoryStore) Close() error { return nil }
