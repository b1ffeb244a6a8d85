package files

import (
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

const (
	// MaxTokenLength bounds the length of a filesystem storage token.
	MaxTokenLength = 255

	maxNameLength = 200
	uuidLength    = 36
)

// SanitizeName replaces characters that are invalid in Windows or POSIX
// file names with underscores and drops leading spaces and trailing spaces
// or dots. The result is at most 200 bytes and sanitizing it again returns
// it unchanged. Reserved device names such as CON are kept since the name
// is only ever used behind a token prefix.
func SanitizeName(name string) string {
	parts := strings.FieldsFunc(name, isInvalidNameRune)
	clean := truncate(strings.Join(parts, "_"), maxNameLength)
	clean = strings.TrimLeft(clean, " ")
	clean = strings.TrimRight(clean, " .")
	if clean == "" {
		clean = "file"
	}
	return clean
}

func isInvalidNameRune(r rune) bool {
	if r < 0x20 || r == 0x7f || r == utf8.RuneError {
		return true
	}
	return strings.ContainsRune(`<>:"/\|?*`, r)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}

// NewToken builds a unique storage token of the form "{uuid}_{sanitized name}".
func NewToken(name string) string {
	return uuid.NewString() + "_" + SanitizeName(name)
}

// ParseToken validates a token built by NewToken and returns the sanitized
// name it embeds.
func ParseToken(token string) (string, error) {
	if len(token) > MaxTokenLength || len(token) < uuidLength+2 {
		return "", ErrInvalidToken
	}
	if !utf8.ValidString(token) || token[uuidLength] != '_' {
		return "", ErrInvalidToken
	}
	if _, err := uuid.Parse(token[:uuidLength]); err != nil {
		return "", ErrInvalidToken
	}
	name := token[uuidLength+1:]
	if SanitizeName(name) != name {
		return "", ErrInvalidToken
	}
	return name, nil
}
