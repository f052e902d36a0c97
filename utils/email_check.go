package utils

import (
	"strings"

	"github.com/badoux/checkmail"
)

// Verdicts cached on the account after just-in-time revalidation.
const (
	ValidationValid   = "valid"
	ValidationInvalid = "invalid"
	ValidationUnknown = "unknown"
)

// CheckEmailAddress performs the dispatcher's just-in-time revalidation:
// syntax first, then an MX lookup on the domain. Network trouble during the
// lookup yields "unknown" rather than blocking the send, since a transient
// DNS failure is not evidence the address is bad.
func CheckEmailAddress(email string) string {
	email = strings.TrimSpace(email)
	if err := checkmail.ValidateFormat(email); err != nil {
		return ValidationInvalid
	}
	ok, err := ValidateMXRecords(email)
	if err != nil {
		return ValidationUnknown
	}
	if !ok {
		return ValidationInvalid
	}
	return ValidationValid
}
