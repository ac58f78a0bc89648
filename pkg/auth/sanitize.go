package auth

import (
	"strings"
	"unicode"
)

// maxDisplayNameRunes bounds names taken from identity providers.
const maxDisplayNameRunes = 100

// SanitizeName trims a display name, drops control characters and bounds
// its length. It does not escape; names are rendered by the client.
func SanitizeName(name string) string {
	name = strings.TrimSpace(removeControlChars(name))
	runes := []rune(name)
	if len(runes) > maxDisplayNameRunes {
		name = strings.TrimSpace(string(runes[:maxDisplayNameRunes]))
	}
	return name
}

// removeControlChars removes every control character.
func removeControlChars(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, s)
}
