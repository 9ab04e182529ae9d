package gatekeeper

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

var (
	// ErrSessionConflict is returned when an elevated-tier login would
	// displace a live session bound to a different fingerprint.
	ErrSessionConflict = errors.New("session already active elsewhere")
	// ErrSessionExpired is returned by Validate for a session past its
	// inactivity timeout or absolute cap.
	ErrSessionExpired = errors.New("session expired")
	// ErrSessionFingerprintMismatch is returned by Validate when the session
	// fingerprint no longer matches the persisted record.
	ErrSessionFingerprintMismatch = errors.New("session fingerprint mismatch")
	// ErrNoSession is returned when an operation needs a live session and
	// none exists.
	ErrNoSession = errors.New("no active session")
)

// Session is the live, time-bounded result of a successful authentication,
// bound to a fingerprint. It is owned by the SessionManager; collaborators
// reach it only through Touch and Invalidate.
type Session struct {
	Token          string
	OwnerEmail     string
	DisplayName    string
	RoleTier       RoleTier
	Fingerprint    string
	CreatedAt      time.Time
	LastActivityAt time.Time
	ExpiresAt      time.Time
}

// SessionManager creates, validates and expires sessions, and enforces the
// elevated-tier exclusivity invariant against the persisted session record.
type SessionManager struct {
	mu      sync.Mutex
	current *Session
	store   Store
	events  *EventLog
	clock   Clock
	cfg     SecurityConfig
	logger  *slog.Logger
}

// NewSessionManager returns a session manager writing through the given
// store.
func NewSessionManager(store Store, events *EventLog, clock Clock, cfg SecurityConfig, logger *slog.Logger) *SessionManager {
	if logger == nil {
		logger = slog.Default()
	}
	return &SessionManager{
		store:  store,
		events: events,
		clock:  clock,
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSession establishes a session for a verified identity. For elevated
// tiers it first checks the exclusivity invariant: a live persisted session
// with a different fingerprint within the timeout window causes
// ErrSessionConflict, never a silent replacement.
func (m *SessionManager) CreateSession(identity *Identity, fingerprint string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.clock.Now()

	if identity.RoleTier.Elevated() {
		rec, err := readSessionRecord(m.store)
		if errors.Is(err, ErrDataCorruption) {
			// A tampered record never blocks a fresh login; report it and
			// start clean.
			m.events.Append(EventDataBreachAttempt, SeverityCritical,
				"session record failed to parse during login", identity.Email, true)
			_ = m.store.Delete(keySessionRecord)
			rec = nil
		} else if err != nil {
			return nil, fmt.Errorf("read session record: %w", err)
		}
		if rec != nil && rec.Fingerprint != fingerprint && now.Sub(rec.CreatedAt) < m.cfg.SessionTimeout {
			return nil, ErrSessionConflict
		}
	}

	token, err := generateSessionToken()
	if err != nil {
		return nil, fmt.Errorf("generate session token: %w", err)
	}

	session := &Session{
		Token:          token,
		OwnerEmail:     identity.Email,
		DisplayName:    identity.DisplayName,
		RoleTier:       identity.RoleTier,
		Fingerprint:    fingerprint,
		CreatedAt:      now,
		LastActivityAt: now,
		ExpiresAt:      now.Add(m.cfg.SessionTimeout),
	}

	if err := setTierFlag(m.store, session.RoleTier); err != nil {
		return nil, fmt.Errorf("write tier flag: %w", err)
	}
	if err := writeCurrentUser(m.store, CurrentUserRecord{
		Email: session.OwnerEmail,
		Name:  session.DisplayName,
		Role:  session.RoleTier.String(),
	}); err != nil {
		return nil, fmt.Errorf("write current user: %w", err)
	}
	if session.RoleTier.Elevated() {
		if err := writeSessionRecord(m.store, SessionRecord{
			Token:       session.Token,
			CreatedAt:   session.CreatedAt,
			Fingerprint: session.Fingerprint,
			Tier:        session.RoleTier.String(),
		}); err != nil {
			return nil, fmt.Errorf("write session record: %w", err)
		}
	} else {
		_ = m.store.Delete(keySessionRecord)
	}

	m.current = session
	m.logger.Info("session established",
		"email", session.OwnerEmail,
		"tier", session.RoleTier.String())
	return session, nil
}

// Validate checks a session immediately before a privileged action. Expiry
// removes the session quietly; a fingerprint mismatch or a corrupted
// persisted record raises a SessionHijack event before invalidating.
func (m *SessionManager) Validate(session *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.validateLocked(session)
}

func (m *SessionManager) validateLocked(session *Session) error {
	if session == nil || m.current == nil || m.current.Token != session.Token {
		return ErrNoSession
	}

	now := m.clock.Now()
	if now.After(session.ExpiresAt) || now.Sub(session.CreatedAt) >= m.cfg.SessionAbsoluteCap {
		m.invalidateLocked()
		return ErrSessionExpired
	}

	if session.RoleTier.Elevated() {
		rec, err := readSessionRecord(m.store)
		if errors.Is(err, ErrDataCorruption) {
			m.events.Append(EventSessionHijack, SeverityCritical,
				"session record corrupted while session live", session.OwnerEmail, true)
			m.invalidateLocked()
			return ErrDataCorruption
		}
		if err != nil {
			return fmt.Errorf("read session record: %w", err)
		}
		if rec == nil || rec.Token != session.Token || rec.Fingerprint != session.Fingerprint {
			m.events.Append(EventSessionHijack, SeverityHigh,
				"session fingerprint mismatch", session.OwnerEmail, true)
			m.invalidateLocked()
			return ErrSessionFingerprintMismatch
		}
	}

	return nil
}

// Touch refreshes the inactivity deadline. The deadline never moves past the
// absolute cap, so flooding Touch cannot resurrect a session indefinitely.
func (m *SessionManager) Touch(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session == nil || m.current == nil || m.current.Token != session.Token {
		return
	}

	now := m.clock.Now()
	m.current.LastActivityAt = now

	deadline := now.Add(m.cfg.SessionTimeout)
	hardStop := m.current.CreatedAt.Add(m.cfg.SessionAbsoluteCap)
	if deadline.After(hardStop) {
		deadline = hardStop
	}
	m.current.ExpiresAt = deadline
}

// Invalidate removes the session and clears every persisted role flag tied
// to it.
func (m *SessionManager) Invalidate(session *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if session != nil && m.current != nil && m.current.Token != session.Token {
		return
	}
	m.invalidateLocked()
}

func (m *SessionManager) invalidateLocked() {
	if m.current != nil {
		m.logger.Info("session invalidated", "email", m.current.OwnerEmail)
	}
	m.current = nil
	if err := clearAuthState(m.store); err != nil {
		m.logger.Error("failed to clear persisted auth state", "error", err)
	}
}

// ForceLogout invalidates whatever session is live. Used by the security
// monitor when an integrity scan fails.
func (m *SessionManager) ForceLogout() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invalidateLocked()
}

// Current returns the live session, or nil. Callers must re-validate before
// acting on it; holding the pointer is not proof of validity.
func (m *SessionManager) Current() *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// ValidateCurrent runs Validate against the live session, if any. The
// monitor calls this on every tick so expiry is detected without user
// traffic.
func (m *SessionManager) ValidateCurrent() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return nil
	}
	err := m.validateLocked(m.current)
	if errors.Is(err, ErrNoSession) {
		return nil
	}
	return err
}
