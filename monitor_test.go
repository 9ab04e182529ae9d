package gatekeeper

import (
	"testing"
	"time"
)

type monitorHarness struct {
	monitor  *SecurityMonitor
	sessions *SessionManager
	events   *EventLog
	store    *MemoryStore
	clock    *ManualClock
	sink     *recordingSink
	watcher  *scriptedWatcher
}

func newMonitorHarness(t *testing.T) *monitorHarness {
	t.Helper()

	h := &monitorHarness{
		store:   NewMemoryStore(),
		clock:   NewManualClock(testStart),
		sink:    &recordingSink{},
		watcher: &scriptedWatcher{},
	}
	cfg := testSecurityConfig()
	h.events = NewEventLog(h.store, h.sink, h.clock, nil)
	h.sessions = NewSessionManager(h.store, h.events, h.clock, cfg, nil)
	h.monitor = NewSecurityMonitor(h.store, h.events, h.sessions, h.watcher, h.clock, cfg, nil)
	return h
}

func TestRecordFailedLoginThreshold(t *testing.T) {
	h := newMonitorHarness(t)

	h.monitor.RecordFailedLogin("10.0.0.1")
	h.monitor.RecordFailedLogin("10.0.0.1")
	if h.monitor.IsBlocked("10.0.0.1") {
		t.Fatal("two failures must not block")
	}

	h.monitor.RecordFailedLogin("10.0.0.1")
	if !h.monitor.IsBlocked("10.0.0.1") {
		t.Fatal("three failures must block")
	}

	// Another source is unaffected.
	if h.monitor.IsBlocked("10.0.0.2") {
		t.Error("blocks are per source")
	}

	events := h.events.Recent(0)
	if events[0].Type != EventFailedLogin || events[0].Severity != SeverityCritical || !events[0].Blocked {
		t.Errorf("expected the blocking event to be critical, got %+v", events[0])
	}
}

func TestFailureWindowResets(t *testing.T) {
	h := newMonitorHarness(t)

	h.monitor.RecordFailedLogin("10.0.0.1")
	h.monitor.RecordFailedLogin("10.0.0.1")

	// A quiet period longer than the cool-down starts a fresh window.
	h.clock.Advance(6 * time.Minute)
	h.monitor.RecordFailedLogin("10.0.0.1")
	if h.monitor.IsBlocked("10.0.0.1") {
		t.Fatal("stale failures must not count toward the threshold")
	}
}

func TestBlockExpiresLazily(t *testing.T) {
	h := newMonitorHarness(t)

	for i := 0; i < 3; i++ {
		h.monitor.RecordFailedLogin("10.0.0.1")
	}
	if !h.monitor.IsBlocked("10.0.0.1") {
		t.Fatal("expected block")
	}

	h.clock.Advance(5*time.Minute + time.Second)
	if h.monitor.IsBlocked("10.0.0.1") {
		t.Fatal("block must lapse with the clock, no timer involved")
	}
}

func TestScanExpiresBlockEntries(t *testing.T) {
	h := newMonitorHarness(t)

	for i := 0; i < 3; i++ {
		h.monitor.RecordFailedLogin("10.0.0.1")
	}
	h.monitor.RecordFailedLogin("10.0.0.2")

	h.clock.Advance(6 * time.Minute)
	h.monitor.Scan()

	h.monitor.mu.Lock()
	remaining := len(h.monitor.blocks)
	h.monitor.mu.Unlock()
	if remaining != 0 {
		t.Errorf("expected scan to drop stale entries, %d left", remaining)
	}
}

func TestScanValidatesLiveSession(t *testing.T) {
	h := newMonitorHarness(t)

	if _, err := h.sessions.CreateSession(superIdentity(), "fp"); err != nil {
		t.Fatalf("create: %v", err)
	}

	// The scan notices expiry even with no user traffic.
	h.clock.Advance(31 * time.Minute)
	h.monitor.Scan()

	if h.sessions.Current() != nil {
		t.Error("expected the scan to remove the expired session")
	}
}

func TestIntegrityScanTamperedFlag(t *testing.T) {
	h := newMonitorHarness(t)

	if _, err := h.sessions.CreateSession(superIdentity(), "fp"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := h.store.Set(flagKeySuperAdmin, "1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	h.monitor.Scan()

	if h.sessions.Current() != nil {
		t.Error("tampered flag must force the session out")
	}
	if countEvents(h.events.Recent(0), EventDataBreachAttempt) == 0 {
		t.Error("expected a data breach event")
	}
}

func TestIntegrityScanCorruptCurrentUser(t *testing.T) {
	h := newMonitorHarness(t)

	if err := h.store.Set(keyCurrentUser, "not json at all"); err != nil {
		t.Fatalf("set: %v", err)
	}
	h.monitor.Scan()

	if countEvents(h.events.Recent(0), EventDataBreachAttempt) != 1 {
		t.Error("expected a data breach event for the unparsable record")
	}
}

func TestIntegrityScanCleanState(t *testing.T) {
	h := newMonitorHarness(t)

	if _, err := h.sessions.CreateSession(superIdentity(), "fp"); err != nil {
		t.Fatalf("create: %v", err)
	}
	h.monitor.Scan()

	if h.sessions.Current() == nil {
		t.Error("a clean scan must not disturb the session")
	}
	if len(h.events.Recent(0)) != 0 {
		t.Errorf("a clean scan must not log events, got %+v", h.events.Recent(0))
	}
}

func TestStartStop(t *testing.T) {
	h := newMonitorHarness(t)

	if err := h.monitor.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := h.monitor.Start(); err == nil {
		t.Error("double start must fail")
	}

	h.monitor.Stop()
	h.monitor.Stop() // idempotent

	if err := h.monitor.Start(); err != nil {
		t.Fatalf("restart after stop: %v", err)
	}
	h.monitor.Stop()
}

func TestGateInspectionToolTiers(t *testing.T) {
	h := newMonitorHarness(t)

	cases := []struct {
		name    string
		session *Session
		want    bool
	}{
		{"no session", nil, false},
		{"user tier", &Session{OwnerEmail: "user@example.com", RoleTier: TierUser}, false},
		{"admin tier", &Session{OwnerEmail: "admin@example.com", RoleTier: TierAdmin}, true},
		{"mind admin tier", &Session{OwnerEmail: "mind@example.com", RoleTier: TierMindAdmin}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := h.monitor.GateInspectionTool(tc.session, "devtools"); got != tc.want {
				t.Errorf("GateInspectionTool = %v, want %v", got, tc.want)
			}
		})
	}

	// Two refusals above, each logged once at low severity.
	events := h.events.Recent(0)
	if countEvents(events, EventUnauthorizedAccess) != 2 {
		t.Errorf("expected 2 gate events, got %d", countEvents(events, EventUnauthorizedAccess))
	}
}
