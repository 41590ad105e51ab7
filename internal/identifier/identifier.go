// Package identifier canonicalizes phone numbers and email addresses into the single
// comparable form used as the key for OTP state and accounts.
package identifier

import (
	"strings"
	"unicode"
)

const (
	// DefaultCountryCode is prepended to domestic numbers that carry no international prefix.
	DefaultCountryCode = "91"
	// DefaultLocalDigits is the length of a domestic subscriber number.
	DefaultLocalDigits = 10
)

// Identifier is a normalized phone number (E.164-style, leading '+') or a lower-cased email.
type Identifier string

// Kind distinguishes phone identifiers from email identifiers.
type Kind int

const (
	KindUnknown Kind = iota
	KindPhone
	KindEmail
)

func (k Kind) String() string {
	switch k {
	case KindPhone:
		return "phone"
	case KindEmail:
		return "email"
	default:
		return "unknown"
	}
}

// Kind reports whether id is an email or a phone identifier.
func (id Identifier) Kind() Kind {
	s := string(id)
	switch {
	case strings.Contains(s, "@"):
		return KindEmail
	case strings.HasPrefix(s, "+"):
		return KindPhone
	default:
		return KindUnknown
	}
}

func (id Identifier) String() string { return string(id) }

// Digits returns the identifier's digits without the leading '+'. Used by SMS gateways
// that expect country code + number.
func (id Identifier) Digits() string {
	return stripNonDigits(string(id))
}

// Normalizer holds the domestic numbering rules used for phone input without an international prefix.
type Normalizer struct {
	CountryCode string
	LocalDigits int
}

var defaultNormalizer = Normalizer{CountryCode: DefaultCountryCode, LocalDigits: DefaultLocalDigits}

// Normalize canonicalizes raw with the default domestic rules. See Normalizer.Normalize.
func Normalize(raw string) Identifier {
	return defaultNormalizer.Normalize(raw)
}

// Normalize canonicalizes raw. It never fails: malformed input is normalized best-effort.
//
// Emails are trimmed and lower-cased. Input already starting with '+' keeps its country code
// as written and only loses separators. Otherwise non-digits are stripped; a number of LocalDigits digits (or LocalDigits+1 with a
// leading trunk '0') gets the country prefix, anything else gets a bare '+'.
// Normalize is idempotent.
func (n Normalizer) Normalize(raw string) Identifier {
	s := strings.TrimSpace(raw)
	if strings.Contains(s, "@") {
		return Identifier(strings.ToLower(s))
	}
	if strings.HasPrefix(s, "+") {
		if digits := stripNonDigits(s[1:]); digits != "" {
			return Identifier("+" + digits)
		}
		return Identifier(s)
	}
	digits := stripNonDigits(s)
	if digits == "" {
		return Identifier(strings.ToLower(s))
	}
	local := n.LocalDigits
	if local <= 0 {
		local = DefaultLocalDigits
	}
	cc := n.CountryCode
	if cc == "" {
		cc = DefaultCountryCode
	}
	if len(digits) == local+1 && digits[0] == '0' {
		digits = digits[1:]
	}
	if len(digits) == local {
		return Identifier("+" + cc + digits)
	}
	return Identifier("+" + digits)
}

// Mask hides most of the identifier for logs and audit metadata.
func Mask(id Identifier) string {
	s := string(id)
	if at := strings.Index(s, "@"); at > 0 {
		if at <= 2 {
			return s[:1] + "***" + s[at:]
		}
		return s[:2] + "***" + s[at:]
	}
	if len(s) <= 4 {
		return "***"
	}
	return s[:3] + strings.Repeat("*", len(s)-5) + s[len(s)-2:]
}

func stripNonDigits(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsDigit(r) && r < unicode.MaxASCII {
			b.WriteRune(r)
		}
	}
	return b.String()
}
