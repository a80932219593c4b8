package normalize

import (
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

var quoteReplacer = strings.NewReplacer(
	"\u2019", "'",
	"\u2018", "'",
	"\u02bc", "'",
	"\u201b", "'",
	"\u201c", `"`,
	"\u201d", `"`,
	"\u201e", `"`,
)

// amountReplacer strips digit-group separators, including the no-break
// spaces used in French-formatted amounts.
var amountReplacer = strings.NewReplacer(" ", "", "\u00a0", "", "\u202f", "")

// Text sanitizes free text for storage: carriage returns are dropped, other
// control characters become spaces, typographic quotes become ASCII quotes and
// the result is NFKC-normalized and trimmed. Empty results yield nil.
//
// This is data cleanup only; values are always bound as query parameters.
func Text(raw string) *string {
	if raw == "" {
		return nil
	}
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		switch {
		case r == '\r':
			continue
		case unicode.IsControl(r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	s := norm.NFKC.String(quoteReplacer.Replace(b.String()))
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

// TextOrEmpty is Text with nil mapped to "".
func TextOrEmpty(raw string) string {
	if s := Text(raw); s != nil {
		return *s
	}
	return ""
}

// StringPtr returns nil for blank input and a pointer to the trimmed value
// otherwise. Identifiers go through this rather than Text.
func StringPtr(raw string) *string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	return &raw
}

// Deref returns the pointed-to string or "".
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Float parses a decimal amount. Both "1234.5" and "1234,5" are accepted.
func Float(raw string) *float64 {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	raw = amountReplacer.Replace(raw)
	if !strings.Contains(raw, ".") {
		raw = strings.Replace(raw, ",", ".", 1)
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil
	}
	return &v
}

// Int parses a whole number, nil when blank or malformed.
func Int(raw string) *int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil
	}
	return &v
}

// Bool parses 1/0, true/false and oui/non flags.
func Bool(raw string) *bool {
	var v bool
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "oui", "o", "y", "yes":
		v = true
	case "0", "false", "non", "n", "no":
		v = false
	default:
		return nil
	}
	return &v
}
