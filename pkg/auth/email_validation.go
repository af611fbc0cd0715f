package auth

import (
	"fmt"
	"net/mail"
	"strings"

	"github.com/tendant/qc-inspect/pkg/domain"
)

const maxEmailLength = 254

// ValidateEmail checks that email is a single bare address.
func ValidateEmail(email string) error {
	email = NormalizeEmail(email)
	if email == "" || len(email) > maxEmailLength {
		return domain.ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email || addr.Name != "" {
		return domain.ErrInvalidEmail
	}
	at := strings.LastIndexByte(email, '@')
	if at < 1 || !strings.Contains(email[at+1:], ".") {
		return fmt.Errorf("%w: domain must be fully qualified", domain.ErrInvalidEmail)
	}
	return nil
}

// NormalizeEmail normalizes an email address by lowercasing and trimming.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
