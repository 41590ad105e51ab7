package otp

import "testing"

func TestGenerateCode_SixDigitsInRange(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		if !ValidCodeFormat(code) {
			t.Fatalf("code %q is not %d digits", code, CodeLength)
		}
		if code[0] == '0' {
			t.Fatalf("code %q has a leading zero", code)
		}
	}
}

func TestGenerateCode_Varies(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 50; i++ {
		code, err := GenerateCode()
		if err != nil {
			t.Fatalf("GenerateCode: %v", err)
		}
		seen[code] = true
	}
	if len(seen) < 40 {
		t.Errorf("only %d distinct codes in 50 draws", len(seen))
	}
}

func TestCodesEqual(t *testing.T) {
	tests := []struct {
		provided, stored string
		want             bool
	}{
		{"123456", "123456", true},
		{"123456", "654321", false},
		{"12345", "123456", false},
		{"", "", false},
		{"", "123456", false},
		{"123456", "", false},
	}
	for _, tt := range tests {
		if got := CodesEqual(tt.provided, tt.stored); got != tt.want {
			t.Errorf("CodesEqual(%q, %q) = %v, want %v", tt.provided, tt.stored, got, tt.want)
		}
	}
}

func TestValidCodeFormat(t *testing.T) {
	tests := map[string]bool{
		"123456":  true,
		"000000":  true,
		"12345":   false,
		"1234567": false,
		"12a456":  false,
		"":        false,
	}
	for code, want := range tests {
		if got := ValidCodeFormat(code); got != want {
			t.Errorf("ValidCodeFormat(%q) = %v, want %v", code, got, want)
		}
	}
}
