package auth

import (
	"strings"
	"unicode"
)

const maxNameLength = 120

// SanitizeName trims a display name, drops control characters and collapses
// runs of whitespace. Escaping is left to the renderer.
func SanitizeName(name string) string {
	name = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, name)
	name = strings.Join(strings.Fields(name), " ")

	if r := []rune(name); len(r) > maxNameLength {
		name = strings.TrimSpace(string(r[:maxNameLength]))
	}
	return name
}
