package gatekeeper

import (
	"github.com/pquerna/otp/totp"
)

// verifySecondFactor checks the second challenge answer for an identity.
// Identities carrying a TOTP secret validate a code; everything else falls
// back to the hashed second security answer.
func verifySecondFactor(identity *Identity, supplied string) bool {
	if identity.TOTPSecret != "" {
		return totp.Validate(supplied, identity.TOTPSecret)
	}
	if identity.SecondAnswerHash == "" {
		return false
	}
	return checkSecretHash(normalizeAnswer(supplied), identity.SecondAnswerHash)
}
