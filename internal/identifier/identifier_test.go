package identifier

import (
	"errors"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want Identifier
	}{
		{"international passes through", "+919876543210", "+919876543210"},
		{"international trimmed", "  +14155550100 ", "+14155550100"},
		{"international with spaces", "+91 98765 43210", "+919876543210"},
		{"international with separators", "+1 (415) 555-0100", "+14155550100"},
		{"domestic ten digits", "9876543210", "+919876543210"},
		{"domestic with separators", "98765-43210", "+919876543210"},
		{"domestic with trunk zero", "09876543210", "+919876543210"},
		{"country code without plus", "919876543210", "+919876543210"},
		{"short number gets generic prefix", "12345", "+12345"},
		{"email lower-cased and trimmed", "  Farmer@Demo.COM ", "farmer@demo.com"},
		{"garbage kept best effort", " Hello ", "hello"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.raw); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.raw, got, tc.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"+919876543210",
		"9876543210",
		"098765 43210",
		"(987) 654-3210",
		"919876543210",
		"12345",
		"farmer@demo.com",
		"  FARMER@demo.com",
		"+91 98765 43210",
		"",
		"abc",
	}
	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(string(once))
		if once != twice {
			t.Errorf("Normalize not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_SameContactSameIdentifier(t *testing.T) {
	a := Normalize("98765 43210")
	b := Normalize("+919876543210")
	c := Normalize("0-9876543210")
	d := Normalize("+91 98765-43210")
	if a != b || b != c || c != d {
		t.Errorf("expected identical identifiers, got %q, %q, %q, %q", a, b, c, d)
	}
	if err := Validate(d); err != nil {
		t.Errorf("Validate(%q): %v", d, err)
	}
}

func TestNormalizer_CustomCountry(t *testing.T) {
	n := Normalizer{CountryCode: "1", LocalDigits: 10}
	if got := n.Normalize("415 555 0100"); got != "+14155550100" {
		t.Errorf("Normalize = %q, want +14155550100", got)
	}
}

func TestKind(t *testing.T) {
	if k := Normalize("farmer@demo.com").Kind(); k != KindEmail {
		t.Errorf("Kind = %v, want email", k)
	}
	if k := Normalize("9876543210").Kind(); k != KindPhone {
		t.Errorf("Kind = %v, want phone", k)
	}
	if k := Identifier("abc").Kind(); k != KindUnknown {
		t.Errorf("Kind = %v, want unknown", k)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(Normalize("9876543210")); err != nil {
		t.Errorf("Validate phone: %v", err)
	}
	if err := Validate(Normalize("farmer@demo.com")); err != nil {
		t.Errorf("Validate email: %v", err)
	}
	if err := Validate(""); !errors.Is(err, ErrEmpty) {
		t.Errorf("Validate empty = %v, want ErrEmpty", err)
	}
	if err := Validate(Normalize("not-an-email@")); !errors.Is(err, ErrMalformed) {
		t.Errorf("Validate bad email = %v, want ErrMalformed", err)
	}
	if err := Validate(Normalize("abc")); !errors.Is(err, ErrMalformed) {
		t.Errorf("Validate garbage = %v, want ErrMalformed", err)
	}
}

func TestMask(t *testing.T) {
	if got := Mask("+919876543210"); got != "+91********10" {
		t.Errorf("Mask phone = %q", got)
	}
	if got := Mask("farmer@demo.com"); got != "fa***@demo.com" {
		t.Errorf("Mask email = %q", got)
	}
	if got := Mask("+12"); got != "***" {
		t.Errorf("Mask short = %q", got)
	}
}

func TestDigits(t *testing.T) {
	if got := Identifier("+919876543210").Digits(); got != "919876543210" {
		t.Errorf("Digits = %q", got)
	}
}
