package gatekeeper

import (
	"strings"
)

// VerifyStatus is the outcome class of a credential check.
type VerifyStatus int

const (
	// VerifyRejected covers every failure. Callers are deliberately not told
	// which field mismatched, or whether the email exists at all.
	VerifyRejected VerifyStatus = iota
	// VerifyAccepted means the full credential tuple matched.
	VerifyAccepted
	// VerifyNeedsSecondChallenge means the primary factors matched but the
	// identity requires a second factor that was not supplied.
	VerifyNeedsSecondChallenge
)

// VerifyResult carries the outcome of Verify. Identity is set only on
// VerifyAccepted.
type VerifyResult struct {
	Status   VerifyStatus
	Identity *Identity
}

// Candidate is a presented credential tuple. Phone and SecondAnswer are
// optional depending on the calling flow.
type Candidate struct {
	Email        string
	Phone        string
	Password     string
	Answer       string
	SecondAnswer string
}

// CredentialVerifier checks a candidate tuple against the identity store.
// It is stateless; rate limiting lives in the SecurityMonitor, which must be
// consulted before Verify is invoked.
type CredentialVerifier struct {
	identities *IdentityStore
}

// NewCredentialVerifier returns a verifier backed by the given store.
func NewCredentialVerifier(identities *IdentityStore) *CredentialVerifier {
	return &CredentialVerifier{identities: identities}
}

// Verify checks the candidate and returns the outcome. requirePhone controls
// whether the phone field participates in matching (the single-factor login
// flow requires it; the admin flow does not).
func (v *CredentialVerifier) Verify(candidate Candidate, requirePhone bool) VerifyResult {
	rejected := VerifyResult{Status: VerifyRejected}

	identity := v.identities.Lookup(candidate.Email)
	if identity == nil || !identity.Active {
		return rejected
	}

	if requirePhone && !phonesEqual(candidate.Phone, identity.Phone) {
		return rejected
	}
	if !checkSecretHash(candidate.Password, identity.PasswordHash) {
		return rejected
	}
	if !checkSecretHash(normalizeAnswer(candidate.Answer), identity.AnswerHash) {
		return rejected
	}

	if identity.RequiresSecondFactor() {
		if candidate.SecondAnswer == "" {
			return VerifyResult{Status: VerifyNeedsSecondChallenge}
		}
		if !verifySecondFactor(identity, candidate.SecondAnswer) {
			return rejected
		}
	}

	return VerifyResult{Status: VerifyAccepted, Identity: identity}
}

// phonesEqual compares two phone numbers after normalization. When only one
// side carries a country code the shorter number must match the tail of the
// longer one, so "+45 70 12 34 56" equals "70123456".
func phonesEqual(a, b string) bool {
	na, nb := normalizePhone(a), normalizePhone(b)
	if na == nb {
		return true
	}
	if na == "" || nb == "" {
		return false
	}
	longer, shorter := na, nb
	if len(shorter) > len(longer) {
		longer, shorter = shorter, longer
	}
	// Country codes are 1-3 digits.
	if len(longer)-len(shorter) > 3 {
		return false
	}
	return strings.HasSuffix(longer, shorter)
}

// normalizePhone strips whitespace, parentheses, dashes and dots, and drops
// a leading "+" or "00" international prefix.
func normalizePhone(phone string) string {
	var b strings.Builder
	for _, r := range phone {
		switch r {
		case ' ', '\t', '(', ')', '-', '.':
			continue
		}
		b.WriteRune(r)
	}
	p := b.String()
	switch {
	case strings.HasPrefix(p, "+"):
		p = p[1:]
	case strings.HasPrefix(p, "00"):
		p = p[2:]
	}
	return p
}
