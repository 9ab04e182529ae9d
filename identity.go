package gatekeeper

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrDuplicateIdentity is returned when registering an email that already
	// belongs to an active identity.
	ErrDuplicateIdentity = errors.New("identity already exists")
	// ErrInvalidIdentity is returned when a registration fails validation.
	ErrInvalidIdentity = errors.New("invalid identity")
)

// Identity is a registered principal capable of authenticating. Secrets are
// bcrypt hashes; the store never holds plaintext. An Identity is immutable
// once handed to a login attempt.
type Identity struct {
	Email            string   `validate:"required,email"`
	Phone            string   `validate:"omitempty,min=4"`
	PasswordHash     string   `validate:"required"`
	AnswerHash       string   `validate:"required"`
	SecondAnswerHash string   // optional second security answer
	TOTPSecret       string   // optional TOTP second factor for elevated tiers
	DisplayName      string   `validate:"required"`
	RoleTier         RoleTier `validate:"min=0,max=3"`
	Active           bool
}

// RequiresSecondFactor reports whether a login for this identity must pass a
// second challenge.
func (i *Identity) RequiresSecondFactor() bool {
	return i.SecondAnswerHash != "" || i.TOTPSecret != ""
}

// IdentityStore holds the known identities: built-ins loaded from
// configuration plus identities registered at runtime. Lookup is
// case-insensitive on email and built-ins win on collision. The store never
// mutates auth or session state.
type IdentityStore struct {
	mu       sync.RWMutex
	builtin  map[string]*Identity
	dynamic  map[string]*Identity
	validate *validator.Validate
}

// NewIdentityStore creates a store seeded with the built-in identities.
// Seeds that fail validation are rejected.
func NewIdentityStore(builtins []Identity) (*IdentityStore, error) {
	s := &IdentityStore{
		builtin:  make(map[string]*Identity),
		dynamic:  make(map[string]*Identity),
		validate: validator.New(),
	}
	for i := range builtins {
		ident := builtins[i]
		if err := s.validate.Struct(&ident); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrInvalidIdentity, ident.Email, err)
		}
		key := identityKey(ident.Email)
		if _, exists := s.builtin[key]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateIdentity, ident.Email)
		}
		s.builtin[key] = &ident
	}
	return s, nil
}

// Lookup returns the identity for the email, or nil when unknown. Built-in
// identities take precedence over dynamically registered ones.
func (s *IdentityStore) Lookup(email string) *Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()

	key := identityKey(email)
	if ident, ok := s.builtin[key]; ok {
		return ident
	}
	if ident, ok := s.dynamic[key]; ok {
		return ident
	}
	return nil
}

// Register appends a dynamically created identity. It rejects the
// registration when an active identity with the same email already exists.
func (s *IdentityStore) Register(identity Identity) error {
	if err := s.validate.Struct(&identity); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidIdentity, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := identityKey(identity.Email)
	if existing, ok := s.builtin[key]; ok && existing.Active {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, identity.Email)
	}
	if existing, ok := s.dynamic[key]; ok && existing.Active {
		return fmt.Errorf("%w: %s", ErrDuplicateIdentity, identity.Email)
	}

	s.dynamic[key] = &identity
	return nil
}

func identityKey(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
