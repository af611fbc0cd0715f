package auth

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/tendant/qc-inspect/pkg/domain"
)

// PasswordPolicy defines password complexity requirements.
type PasswordPolicy struct {
	MinLength        int
	MaxLength        int
	RequireUppercase bool
	RequireLowercase bool
	RequireNumber    bool
	RequireSpecial   bool
}

// DefaultPasswordPolicy requires eight characters and nothing else.
func DefaultPasswordPolicy() *PasswordPolicy {
	return &PasswordPolicy{MinLength: 8, MaxLength: 128}
}

type charCheck struct {
	enabled bool
	match   func(rune) bool
	what    string
}

// ValidatePassword returns an error wrapping domain.ErrWeakPassword that
// names the first unmet requirement.
func (p *PasswordPolicy) ValidatePassword(password string) error {
	n := len([]rune(password))
	if p.MinLength > 0 && n < p.MinLength {
		return wrapPolicy(fmt.Sprintf("must be at least %d characters long", p.MinLength))
	}
	if p.MaxLength > 0 && n > p.MaxLength {
		return wrapPolicy(fmt.Sprintf("must be at most %d characters long", p.MaxLength))
	}

	for _, c := range p.checks() {
		if c.enabled && !strings.ContainsFunc(password, c.match) {
			return wrapPolicy("must contain at least one " + c.what)
		}
	}
	return nil
}

// Requirements describes the policy for display next to password fields.
func (p *PasswordPolicy) Requirements() string {
	var parts []string
	if p.MinLength > 0 {
		parts = append(parts, fmt.Sprintf("at least %d characters", p.MinLength))
	}
	for _, c := range p.checks() {
		if c.enabled {
			parts = append(parts, "one "+c.what)
		}
	}
	if len(parts) == 0 {
		return ""
	}
	return "Password must contain " + strings.Join(parts, ", ")
}

func (p *PasswordPolicy) checks() []charCheck {
	return []charCheck{
		{p.RequireUppercase, unicode.IsUpper, "uppercase letter"},
		{p.RequireLowercase, unicode.IsLower, "lowercase letter"},
		{p.RequireNumber, unicode.IsDigit, "number"},
		{p.RequireSpecial, isSpecial, "special character"},
	}
}

func isSpecial(r rune) bool {
	return !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r)
}

func wrapPolicy(msg string) error {
	return fmt.Errorf("%w: password %s", domain.ErrWeakPassword, msg)
}
