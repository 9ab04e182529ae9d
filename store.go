package gatekeeper

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrDataCorruption is returned when a persisted auth record is malformed.
	ErrDataCorruption = errors.New("persisted auth record corrupted")
)

// Persisted key layout. These keys are exclusively owned by this package;
// external collaborators share the store only for unrelated keys and must
// never write these.
const (
	flagKeyAdmin      = "auth.flags.admin"
	flagKeySuperAdmin = "auth.flags.superAdmin"
	flagKeyMindAdmin  = "auth.flags.mindAdmin"
	keyCurrentUser    = "auth.currentUser"
	keySessionRecord  = "auth.session"
)

// flagMarker is the only value an auth flag may hold. Anything else in a
// flag key is treated as corruption.
const flagMarker = "true"

// maxPersistedEvents caps the durable security log.
const maxPersistedEvents = 50

// maxPersistedNotifications caps the durable notification list.
const maxPersistedNotifications = 50

// tierFlagKeys maps the elevated-or-admin tiers to their persisted flag key.
var tierFlagKeys = map[RoleTier]string{
	TierAdmin:      flagKeyAdmin,
	TierSuperAdmin: flagKeySuperAdmin,
	TierMindAdmin:  flagKeyMindAdmin,
}

// Store is the injected persistence layer for the core's own keys: auth
// flags, serialized auth records, the durable security log, and derived
// notifications. Implementations are synchronous and safe for concurrent
// use. Values are read and written whole, never field by field.
type Store interface {
	// Key/value access for auth flags and serialized auth records. Get
	// reports presence through its second return.
	Set(key, value string) error
	Get(key string) (string, bool, error)
	Delete(key string) error

	// Durable security log, High/Critical only, capped, newest first.
	AppendSecurityEvent(ev *SecurityEvent) error
	SecurityEvents(limit int) ([]*SecurityEvent, error)

	// Derived notification records, capped, newest first.
	AppendNotification(n *Notification) error
	Notifications(limit int) ([]*Notification, error)

	Ping() error
	Close() error
}

// CurrentUserRecord is the persisted auth.currentUser record, present iff a
// session is active.
type CurrentUserRecord struct {
	Email string `json:"email"`
	Name  string `json:"name"`
	Role  string `json:"role"`
}

// SessionRecord is the persisted auth.session record used for the
// elevated-tier exclusivity check.
type SessionRecord struct {
	Token       string    `json:"token"`
	CreatedAt   time.Time `json:"createdAt"`
	Fingerprint string    `json:"fingerprint"`
	Tier        string    `json:"tier"`
}

// writeCurrentUser serializes and stores the current-user record.
func writeCurrentUser(store Store, rec CurrentUserRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode current user: %w", err)
	}
	return store.Set(keyCurrentUser, string(raw))
}

// readCurrentUser loads the current-user record. Returns nil when absent and
// ErrDataCorruption when present but unparsable.
func readCurrentUser(store Store) (*CurrentUserRecord, error) {
	raw, ok, err := store.Get(keyCurrentUser)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rec CurrentUserRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDataCorruption, keyCurrentUser)
	}
	if rec.Email == "" {
		return nil, fmt.Errorf("%w: %s", ErrDataCorruption, keyCurrentUser)
	}
	return &rec, nil
}

// writeSessionRecord serializes and stores the exclusivity record.
func writeSessionRecord(store Store, rec SessionRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode session record: %w", err)
	}
	return store.Set(keySessionRecord, string(raw))
}

// readSessionRecord loads the exclusivity record. Returns nil when absent
// and ErrDataCorruption when present but unparsable.
func readSessionRecord(store Store) (*SessionRecord, error) {
	raw, ok, err := store.Get(keySessionRecord)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	var rec SessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrDataCorruption, keySessionRecord)
	}
	if rec.Token == "" {
		return nil, fmt.Errorf("%w: %s", ErrDataCorruption, keySessionRecord)
	}
	return &rec, nil
}

// setTierFlag writes the flag for the session's tier and clears the others.
func setTierFlag(store Store, tier RoleTier) error {
	for t, key := range tierFlagKeys {
		if t == tier {
			if err := store.Set(key, flagMarker); err != nil {
				return err
			}
			continue
		}
		if err := store.Delete(key); err != nil {
			return err
		}
	}
	return nil
}

// clearAuthState removes every persisted flag and record owned by the core.
func clearAuthState(store Store) error {
	for _, key := range tierFlagKeys {
		if err := store.Delete(key); err != nil {
			return err
		}
	}
	if err := store.Delete(keyCurrentUser); err != nil {
		return err
	}
	return store.Delete(keySessionRecord)
}
