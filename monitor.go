package gatekeeper

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// BlockEntry is a temporary rate-limit record suppressing verification
// attempts from a source.
type BlockEntry struct {
	Source       string
	FailureCount int
	FirstFailure time.Time
	LastFailure  time.Time
	BlockedUntil time.Time
}

// InjectedContent describes executable content found outside the
// application's own render pass.
type InjectedContent struct {
	Kind   string // e.g. "script", "iframe"
	Detail string
}

// UntrustedContentWatcher detects and removes injected executable content.
// The contract is platform-specific (a browser build watches the DOM); the
// default NopContentWatcher never reports anything.
type UntrustedContentWatcher interface {
	// Scan removes any injected content and returns what was removed.
	Scan() []InjectedContent
}

// NopContentWatcher is the UntrustedContentWatcher for targets without an
// external render surface.
type NopContentWatcher struct{}

func (NopContentWatcher) Scan() []InjectedContent { return nil }

// SecurityMonitor runs the intrusion-detection loop: brute-force counting,
// integrity scans of the persisted auth state, injected-content detection
// and privileged-shortcut gating. One Scan pass also runs on a fixed
// interval in the background until Stop is called.
type SecurityMonitor struct {
	mu       sync.Mutex
	blocks   map[string]*BlockEntry
	store    Store
	events   *EventLog
	sessions *SessionManager
	watcher  UntrustedContentWatcher
	clock    Clock
	cfg      SecurityConfig
	logger   *slog.Logger

	ticker Ticker
	done   chan struct{}
}

// NewSecurityMonitor creates a monitor. watcher may be nil, in which case
// injected-content detection is a no-op.
func NewSecurityMonitor(store Store, events *EventLog, sessions *SessionManager, watcher UntrustedContentWatcher, clock Clock, cfg SecurityConfig, logger *slog.Logger) *SecurityMonitor {
	if watcher == nil {
		watcher = NopContentWatcher{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SecurityMonitor{
		blocks:   make(map[string]*BlockEntry),
		store:    store,
		events:   events,
		sessions: sessions,
		watcher:  watcher,
		clock:    clock,
		cfg:      cfg,
		logger:   logger,
	}
}

// Start launches the periodic scan loop. It is an error to start a monitor
// twice without stopping it.
func (m *SecurityMonitor) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		return errors.New("security monitor already running")
	}
	m.ticker = m.clock.NewTicker(m.cfg.MonitorInterval)
	m.done = make(chan struct{})

	go m.run(m.ticker, m.done)
	return nil
}

// Stop halts the periodic loop and releases its timer. Safe to call when the
// monitor was never started.
func (m *SecurityMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker == nil {
		return
	}
	m.ticker.Stop()
	close(m.done)
	m.ticker = nil
	m.done = nil
}

func (m *SecurityMonitor) run(ticker Ticker, done chan struct{}) {
	for {
		select {
		case <-done:
			return
		case <-ticker.C():
			m.Scan()
		}
	}
}

// Scan performs one monitoring pass: expire stale block entries, validate
// the live session, verify the persisted auth state, and sweep for injected
// content. Tests drive Scan directly with a manual clock.
func (m *SecurityMonitor) Scan() {
	m.expireBlocks()

	if err := m.sessions.ValidateCurrent(); err != nil {
		m.logger.Info("session removed by monitor pass", "reason", err)
	}

	m.integrityScan()

	for _, injected := range m.watcher.Scan() {
		m.events.Append(EventUnauthorizedAccess, SeverityCritical,
			fmt.Sprintf("injected %s removed: %s", injected.Kind, injected.Detail),
			"content-watcher", true)
	}
}

// RecordFailedLogin counts a failed attempt for the source. Reaching the
// limit creates a BlockEntry for the cool-down and logs a Critical event.
// Collaborators that detect failures themselves may call this directly.
func (m *SecurityMonitor) RecordFailedLogin(source string) {
	m.mu.Lock()
	now := m.clock.Now()

	entry, ok := m.blocks[source]
	if !ok || now.Sub(entry.LastFailure) > m.cfg.BlockCooldown {
		entry = &BlockEntry{Source: source, FirstFailure: now}
		m.blocks[source] = entry
	}
	entry.FailureCount++
	entry.LastFailure = now

	blocked := entry.FailureCount >= m.cfg.MaxFailedLogins
	if blocked {
		entry.BlockedUntil = now.Add(m.cfg.BlockCooldown)
	}
	count := entry.FailureCount
	m.mu.Unlock()

	if blocked {
		m.events.Append(EventFailedLogin, SeverityCritical,
			fmt.Sprintf("source blocked after %d failed login attempts", count),
			source, true)
		return
	}
	m.events.Append(EventFailedLogin, SeverityLow,
		fmt.Sprintf("failed login attempt %d of %d", count, m.cfg.MaxFailedLogins),
		source, false)
}

// IsBlocked reports whether the source is inside a block cool-down. While
// blocked, the credential verifier must not be invoked for that source.
func (m *SecurityMonitor) IsBlocked(source string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.blocks[source]
	if !ok {
		return false
	}
	if entry.BlockedUntil.IsZero() {
		return false
	}
	if m.clock.Now().After(entry.BlockedUntil) {
		delete(m.blocks, source)
		return false
	}
	return true
}

// expireBlocks drops block entries whose cool-down has passed. Cool-downs
// are evaluated against the injected clock, so there are no per-entry timers
// to leak across restarts.
func (m *SecurityMonitor) expireBlocks() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()
	for source, entry := range m.blocks {
		if !entry.BlockedUntil.IsZero() && now.After(entry.BlockedUntil) {
			delete(m.blocks, source)
			continue
		}
		if entry.BlockedUntil.IsZero() && now.Sub(entry.LastFailure) > m.cfg.BlockCooldown {
			delete(m.blocks, source)
		}
	}
}

// integrityScan re-reads the persisted auth flags and records. Any flag not
// holding the canonical marker, or a record that fails to parse, is treated
// as tampering: a Critical event is logged and the live session is forced
// out.
func (m *SecurityMonitor) integrityScan() {
	tampered := false

	for tier, key := range tierFlagKeys {
		value, ok, err := m.store.Get(key)
		if err != nil {
			m.logger.Error("integrity scan read failed", "key", key, "error", err)
			continue
		}
		if ok && value != flagMarker {
			m.events.Append(EventDataBreachAttempt, SeverityCritical,
				fmt.Sprintf("auth flag %s holds unexpected value", tier.String()),
				"integrity-scan", true)
			tampered = true
		}
	}

	if _, err := readCurrentUser(m.store); errors.Is(err, ErrDataCorruption) {
		m.events.Append(EventDataBreachAttempt, SeverityCritical,
			"current user record failed to parse", "integrity-scan", true)
		tampered = true
	}
	if _, err := readSessionRecord(m.store); errors.Is(err, ErrDataCorruption) {
		m.events.Append(EventDataBreachAttempt, SeverityCritical,
			"session record failed to parse", "integrity-scan", true)
		tampered = true
	}

	if tampered {
		m.sessions.ForceLogout()
	}
}

// GateInspectionTool intercepts attempts to open low-level inspection
// tooling. Non-admin sessions get a Low informational event; this is not a
// hard security boundary.
func (m *SecurityMonitor) GateInspectionTool(session *Session, tool string) bool {
	if session != nil && session.RoleTier >= TierAdmin {
		return true
	}
	source := "anonymous"
	if session != nil {
		source = session.OwnerEmail
	}
	m.events.Append(EventUnauthorizedAccess, SeverityLow,
		fmt.Sprintf("blocked %s shortcut for non-admin session", tool),
		source, true)
	return false
}

// Sanitize is the collaborator-facing hook for Sanitize.
func (m *SecurityMonitor) Sanitize(text string) string {
	return Sanitize(text)
}
