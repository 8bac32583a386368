// Package nameguard validates table and column names before they are spliced
// into SQL text.
//
// Identifiers cannot be bound as parameters, so every table or column name a
// caller supplies is checked against a denylist of SQL-significant punctuation
// before interpolation. Values are never passed through this check; they are
// always bound as parameters (or rendered by the literal writer, which does
// its own escaping).
package nameguard

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// badRunes are characters that have syntactic meaning in SQL and are never
// legitimate in a table or column name.
const badRunes = `();'"` + "`" + `[]{}=<>|&+*/%?!,\`

// Validate reports whether name is safe to interpolate into a statement.
//
// A name is rejected when it is empty, contains any denylisted punctuation
// or a control character, contains a comment marker, or its upper-cased
// form contains the substring "DROP". The name is NFC-normalized first so
// that decomposed Unicode forms cannot smuggle denylisted characters past
// a byte-wise check.
func Validate(name string) bool {
	n := Normalize(name)
	if strings.TrimSpace(n) == "" {
		return false
	}
	if strings.ContainsAny(n, badRunes) {
		return false
	}
	for _, r := range n {
		if r < 0x20 || r == 0x7f {
			return false
		}
	}
	if strings.Contains(n, "--") {
		return false
	}
	if strings.Contains(strings.ToUpper(n), "DROP") {
		return false
	}
	return true
}

// ValidateAll validates every name, returning the first offender.
func ValidateAll(names ...string) (string, bool) {
	for _, n := range names {
		if !Validate(n) {
			return n, false
		}
	}
	return "", true
}

// Normalize returns the NFC form of name.
func Normalize(name string) string {
	return norm.NFC.String(name)
}

// CleanColumn rewrites a raw column name into one that most backends accept
// without quoting gymnastics: spaces and slashes become underscores. It does
// not make an invalid name valid; callers still run Validate afterwards.
func CleanColumn(name string) string {
	n := Normalize(strings.TrimSpace(name))
	n = strings.ReplaceAll(n, " ", "_")
	n = strings.ReplaceAll(n, "/", "_")
	return n
}
