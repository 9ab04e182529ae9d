// Package gatekeeper implements the identity, session, and
// security-monitoring core that gates administrative capabilities: multi-tier
// role resolution, a two-step admin challenge flow, session-integrity checks,
// and a lightweight intrusion-detection loop.
//
// External collaborators (content editors, dashboards, CLIs) interact only
// with the Service facade: Login, LoginAdmin, Logout, IsAuthorized,
// CurrentSessionInfo, plus the two monitor hooks RecordFailedLogin and
// Sanitize. Everything else — credential verification, session lifecycle,
// the block list, integrity scanning — happens behind it.
//
// ## Quick Start:
//
//	svc, err := gatekeeper.New(gatekeeper.Config{
//		Identities: []gatekeeper.Identity{{
//			Email:        "admin@example.com",
//			PasswordHash: gatekeeper.MustHashSecret("hunter2!"),
//			AnswerHash:   gatekeeper.MustHashAnswer("blue"),
//			DisplayName:  "Admin",
//			RoleTier:     gatekeeper.TierAdmin,
//			Active:       true,
//		}},
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer svc.Close()
//
//	client := gatekeeper.ClientContext{Source: ip, Fingerprint: gatekeeper.DeriveFingerprint(userAgent)}
//	status := svc.LoginAdmin(client, email, password, answer, "")
package gatekeeper

import (
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrRateLimited marks a source inside a brute-force cool-down.
var ErrRateLimited = errors.New("source temporarily blocked")

// SecurityConfig holds the security policy knobs.
type SecurityConfig struct {
	// MaxFailedLogins is the number of failures before a source is blocked.
	MaxFailedLogins int
	// BlockCooldown is how long a blocked source stays blocked, and the
	// window in which failures accumulate.
	BlockCooldown time.Duration
	// SessionTimeout is the inactivity window of a session.
	SessionTimeout time.Duration
	// SessionAbsoluteCap bounds total session lifetime regardless of
	// activity, so flooding Touch cannot keep a session alive forever.
	SessionAbsoluteCap time.Duration
	// MonitorInterval is the period of the background scan loop.
	MonitorInterval time.Duration
}

// DefaultSecurityConfig returns the default policy.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxFailedLogins:    3,
		BlockCooldown:      5 * time.Minute,
		SessionTimeout:     30 * time.Minute,
		SessionAbsoluteCap: 12 * time.Hour,
		MonitorInterval:    5 * time.Second,
	}
}

// ClientContext carries the client-side context of a facade call. Source
// keys brute-force counting (typically an IP); Fingerprint is the coarse
// marker a session is bound to.
type ClientContext struct {
	Source      string
	Fingerprint string
}

func (c ClientContext) source() string {
	if c.Source == "" {
		return "local"
	}
	return c.Source
}

// AdminLoginStatus is the outcome of LoginAdmin.
type AdminLoginStatus int

const (
	// AdminLoginRejected covers every credential failure, uniformly.
	AdminLoginRejected AdminLoginStatus = iota
	// AdminLoginAccepted means a session was established.
	AdminLoginAccepted
	// AdminLoginNeedsSecondChallenge asks the caller to re-invoke with the
	// second factor. No session exists yet.
	AdminLoginNeedsSecondChallenge
	// AdminLoginConflict reports the exclusivity invariant: a session for
	// this tier is already active on a different client.
	AdminLoginConflict
	// AdminLoginRateLimited means the source is blocked and the verifier was
	// not consulted.
	AdminLoginRateLimited
)

func (s AdminLoginStatus) String() string {
	switch s {
	case AdminLoginRejected:
		return "rejected"
	case AdminLoginAccepted:
		return "accepted"
	case AdminLoginNeedsSecondChallenge:
		return "needs_second_challenge"
	case AdminLoginConflict:
		return "conflict"
	case AdminLoginRateLimited:
		return "rate_limited"
	default:
		return "unknown"
	}
}

// SessionInfo is the collaborator-visible view of the live session.
type SessionInfo struct {
	Email    string
	Name     string
	RoleTier RoleTier
}

// Config assembles a Service.
type Config struct {
	// Identities seeds the identity store with built-ins. Secrets must be
	// hashed; see HashSecret and HashAnswer.
	Identities []Identity
	// Store is the injected persistence layer. Defaults to NewMemoryStore.
	Store Store
	// Sink receives notifications derived from critical events. Optional.
	Sink NotificationSink
	// Watcher detects injected executable content. Defaults to a no-op.
	Watcher UntrustedContentWatcher
	// Clock defaults to the wall clock; tests supply a ManualClock.
	Clock Clock
	// Security defaults to DefaultSecurityConfig when zero.
	Security SecurityConfig
	// Logger defaults to slog.Default.
	Logger *slog.Logger
}

// Service is the auth facade: the only entry point external collaborators
// call.
type Service struct {
	cfg        SecurityConfig
	identities *IdentityStore
	verifier   *CredentialVerifier
	resolver   *RoleResolver
	sessions   *SessionManager
	monitor    *SecurityMonitor
	events     *EventLog
	store      Store
	logger     *slog.Logger
}

// New assembles a Service from the configuration and starts the security
// monitor. Call Close on teardown to stop the monitor and release the store.
func New(cfg Config) (*Service, error) {
	store := cfg.Store
	if store == nil {
		store = NewMemoryStore()
	}
	if err := store.Ping(); err != nil {
		return nil, fmt.Errorf("failed to connect to store: %w", err)
	}

	clock := cfg.Clock
	if clock == nil {
		clock = NewClock()
	}

	security := cfg.Security
	if security.SessionTimeout == 0 {
		security = DefaultSecurityConfig()
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	identities, err := NewIdentityStore(cfg.Identities)
	if err != nil {
		return nil, err
	}

	events := NewEventLog(store, cfg.Sink, clock, logger)
	sessions := NewSessionManager(store, events, clock, security, logger)
	monitor := NewSecurityMonitor(store, events, sessions, cfg.Watcher, clock, security, logger)

	svc := &Service{
		cfg:        security,
		identities: identities,
		verifier:   NewCredentialVerifier(identities),
		resolver:   NewRoleResolver(),
		sessions:   sessions,
		monitor:    monitor,
		events:     events,
		store:      store,
		logger:     logger,
	}

	if err := monitor.Start(); err != nil {
		return nil, err
	}
	return svc, nil
}

// Login runs the single-factor flow for general identities. It returns true
// only when the complete tuple matched and a session was established. All
// failures look identical to the caller.
func (s *Service) Login(client ClientContext, email, phone, password, securityAnswer string) bool {
	source := client.source()
	if s.monitor.IsBlocked(source) {
		return false
	}

	result := s.verifier.Verify(Candidate{
		Email:    Sanitize(email),
		Phone:    phone,
		Password: password,
		Answer:   securityAnswer,
	}, true)
	if result.Status != VerifyAccepted {
		s.monitor.RecordFailedLogin(source)
		return false
	}

	if _, err := s.sessions.CreateSession(result.Identity, client.Fingerprint); err != nil {
		s.logger.Warn("login session refused", "error", err)
		return false
	}
	return true
}

// LoginAdmin runs the elevated two-step challenge flow. Pass an empty
// secondSecurityAnswer on the first call; AdminLoginNeedsSecondChallenge
// asks for a re-invocation carrying the second factor.
func (s *Service) LoginAdmin(client ClientContext, email, password, securityAnswer, secondSecurityAnswer string) AdminLoginStatus {
	source := client.source()
	if s.monitor.IsBlocked(source) {
		return AdminLoginRateLimited
	}

	result := s.verifier.Verify(Candidate{
		Email:        Sanitize(email),
		Password:     password,
		Answer:       securityAnswer,
		SecondAnswer: secondSecurityAnswer,
	}, false)

	switch result.Status {
	case VerifyNeedsSecondChallenge:
		return AdminLoginNeedsSecondChallenge
	case VerifyRejected:
		s.monitor.RecordFailedLogin(source)
		return AdminLoginRejected
	}

	_, err := s.sessions.CreateSession(result.Identity, client.Fingerprint)
	switch {
	case errors.Is(err, ErrSessionConflict):
		return AdminLoginConflict
	case err != nil:
		s.logger.Error("admin login session failed", "error", err)
		return AdminLoginRejected
	}
	return AdminLoginAccepted
}

// Logout invalidates the current session and clears the persisted role
// flags. Safe to call with no session active.
func (s *Service) Logout() {
	s.sessions.Invalidate(s.sessions.Current())
}

// IsAuthorized reports whether the current session's tier holds the
// capability. It re-validates the session first and returns false, never an
// error, when no valid session exists.
func (s *Service) IsAuthorized(cap Capability) bool {
	session := s.sessions.Current()
	if session == nil {
		return false
	}
	if err := s.sessions.Validate(session); err != nil {
		return false
	}
	if !s.resolver.HasCapability(session.RoleTier, cap) {
		return false
	}
	s.sessions.Touch(session)
	return true
}

// CurrentSessionInfo returns the live session's collaborator-visible view,
// or nil when no valid session exists.
func (s *Service) CurrentSessionInfo() *SessionInfo {
	session := s.sessions.Current()
	if session == nil {
		return nil
	}
	if err := s.sessions.Validate(session); err != nil {
		return nil
	}
	return &SessionInfo{
		Email:    session.OwnerEmail,
		Name:     session.DisplayName,
		RoleTier: session.RoleTier,
	}
}

// Register appends a dynamically created identity, for the admin
// self-registration flow. Text fields pass through the sanitizer before
// being stored.
func (s *Service) Register(identity Identity) error {
	identity.Email = Sanitize(identity.Email)
	identity.DisplayName = Sanitize(identity.DisplayName)
	return s.identities.Register(identity)
}

// RecordFailedLogin is the monitor hook for collaborators that detect
// authentication failures themselves.
func (s *Service) RecordFailedLogin(source string) {
	s.monitor.RecordFailedLogin(source)
}

// Sanitize is the monitor hook exposing the input sanitizer.
func (s *Service) Sanitize(text string) string {
	return Sanitize(text)
}

// GateInspectionTool reports whether the current session may open low-level
// inspection tooling, logging an informational event when it may not.
func (s *Service) GateInspectionTool(tool string) bool {
	return s.monitor.GateInspectionTool(s.sessions.Current(), tool)
}

// RecentEvents returns up to limit of the most recent in-memory security
// events, newest first.
func (s *Service) RecentEvents(limit int) []*SecurityEvent {
	return s.events.Recent(limit)
}

// Monitor exposes the security monitor for collaborators that drive scans
// explicitly (tests, embedded schedulers).
func (s *Service) Monitor() *SecurityMonitor {
	return s.monitor
}

// Close stops the security monitor and releases the store.
func (s *Service) Close() error {
	s.monitor.Stop()
	return s.store.Close()
}
