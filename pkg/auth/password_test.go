package auth

import (
	"errors"
	"strings"
	"testing"

	"github.com/tendant/qc-inspect/pkg/domain"
)

func TestHashAndVerifyPassword(t *testing.T) {
	hash, err := HashPassword("correct horse battery")
	if err != nil {
		t.Fatalf("HashPassword() error = %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$v=19$m=65536,t=1,p=4$") {
		t.Errorf("unexpected hash format %q", hash)
	}
	if !VerifyPassword("correct horse battery", hash) {
		t.Error("VerifyPassword() rejected the right password")
	}
	if VerifyPassword("correct horse batterY", hash) {
		t.Error("VerifyPassword() accepted the wrong password")
	}

	other, _ := HashPassword("correct horse battery")
	if other == hash {
		t.Error("hashes of the same password should differ by salt")
	}
}

func TestVerifyPassword_MalformedHash(t *testing.T) {
	for _, h := range []string{"", "plaintext", "$argon2i$v=19$m=1,t=1,p=1$c2FsdA$aGFzaA", "$argon2id$v=19$m=x$a$b"} {
		if VerifyPassword("pw", h) {
			t.Errorf("VerifyPassword(%q) = true", h)
		}
	}
}

func TestPasswordPolicy_ValidatePassword(t *testing.T) {
	strict := &PasswordPolicy{MinLength: 10, RequireUppercase: true, RequireLowercase: true, RequireNumber: true, RequireSpecial: true}

	tests := []struct {
		name     string
		policy   *PasswordPolicy
		password string
		wantErr  string
	}{
		{name: "default ok", policy: DefaultPasswordPolicy(), password: "inspections"},
		{name: "default too short", policy: DefaultPasswordPolicy(), password: "short", wantErr: "at least 8"},
		{name: "too long", policy: DefaultPasswordPolicy(), password: strings.Repeat("a", 129), wantErr: "at most 128"},
		{name: "strict ok", policy: strict, password: "Checklist#2026"},
		{name: "missing upper", policy: strict, password: "checklist#2026", wantErr: "uppercase"},
		{name: "missing lower", policy: strict, password: "CHECKLIST#2026", wantErr: "lowercase"},
		{name: "missing number", policy: strict, password: "Checklist#abcd", wantErr: "number"},
		{name: "missing special", policy: strict, password: "Checklist2026", wantErr: "special"},
		{name: "runes not bytes", policy: &PasswordPolicy{MinLength: 4}, password: "äöü", wantErr: "at least 4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.ValidatePassword(tt.password)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("ValidatePassword() error = %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("ValidatePassword() error = %v, want containing %q", err, tt.wantErr)
			}
			if !errors.Is(err, domain.ErrWeakPassword) {
				t.Errorf("error %v does not wrap ErrWeakPassword", err)
			}
		})
	}
}

func TestPasswordPolicy_Requirements(t *testing.T) {
	if got := (&PasswordPolicy{}).Requirements(); got != "" {
		t.Errorf("Requirements() = %q, want empty", got)
	}
	got := (&PasswordPolicy{MinLength: 12, RequireNumber: true}).Requirements()
	if got != "Password must contain at least 12 characters, one number" {
		t.Errorf("Requirements() = %q", got)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		email string
		valid bool
	}{
		{"inspector@example.com", true},
		{"  Inspector@Example.COM ", true},
		{"first.last+qc@sub.example.co", true},
		{"", false},
		{"no-at-sign", false},
		{"user@localhost", false},
		{"Name <user@example.com>", false},
		{"a@b@example.com", false},
		{strings.Repeat("a", 250) + "@example.com", false},
	}
	for _, tt := range tests {
		err := ValidateEmail(tt.email)
		if (err == nil) != tt.valid {
			t.Errorf("ValidateEmail(%q) error = %v, want valid %v", tt.email, err, tt.valid)
		}
		if err != nil && !errors.Is(err, domain.ErrInvalidEmail) {
			t.Errorf("ValidateEmail(%q) error %v does not wrap ErrInvalidEmail", tt.email, err)
		}
	}
}

func TestSanitizeName(t *testing.T) {
	tests := []struct{ in, want string }{
		{"  Dana   Reyes ", "Dana Reyes"},
		{"Line\x00Lead\x07", "Line Lead"},
		{"Tab\tSeparated", "Tab Separated"},
		{"", ""},
		{strings.Repeat("x", 200), strings.Repeat("x", 120)},
	}
	for _, tt := range tests {
		if got := SanitizeName(tt.in); got != tt.want {
			t.Errorf("SanitizeName(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestGenerateAndHashToken(t *testing.T) {
	a, err := GenerateToken(32)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := GenerateToken(32)
	if a == b {
		t.Error("tokens should be random")
	}
	if len(a) != 43 {
		t.Errorf("len(token) = %d, want 43", len(a))
	}
	if HashToken(a) != HashToken(a) || HashToken(a) == HashToken(b) {
		t.Error("HashToken should be deterministic and distinct")
	}
	if len(HashToken(a)) != 64 {
		t.Errorf("len(HashToken) = %d, want 64", len(HashToken(a)))
	}
}
