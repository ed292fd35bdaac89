package cli

import (
	"strings"
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		width    int
		expected string
	}{
		{"fits", "h1 s1 h2", 10, "h1 s1 h2"},
		{"exact", "h1 s1 h2", 8, "h1 s1 h2"},
		{"cut", "h1 s1 s2 s3 h2", 10, "h1 s1 s..."},
		{"tiny width", "h1 s1 h2", 2, "h1"},
		{"zero width", "h1 s1 h2", 0, "h1 s1 h2"},
		{"empty", "", 5, ""},
		{"multibyte", "héllo wörld", 8, "héllo..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Truncate(tt.input, tt.width)
			if got != tt.expected {
				t.Errorf("Truncate(%q, %d) = %q, want %q", tt.input, tt.width, got, tt.expected)
			}
		})
	}
}

func TestStatus(t *testing.T) {
	if got := Status(true); !strings.Contains(got, "ok") {
		t.Errorf("Status(true) = %q, want it to contain ok", got)
	}
	if got := Status(false); !strings.Contains(got, "failed") {
		t.Errorf("Status(false) = %q, want it to contain failed", got)
	}
}

func TestColorFunctions(t *testing.T) {
	tests := []struct {
		name   string
		fn     func(string) string
		prefix string
	}{
		{"Green", Green, "\033[32m"},
		{"Yellow", Yellow, "\033[33m"},
		{"Red", Red, "\033[31m"},
		{"Bold", Bold, "\033[1m"},
		{"Dim", Dim, "\033[2m"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !colorEnabled {
				t.Skip("NO_COLOR is set")
			}
			got := tt.fn("hello")
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("%s should start with %q", tt.name, tt.prefix)
			}
			if !strings.Contains(got, "hello") {
				t.Errorf("%s should contain the input string", tt.name)
			}
			if !strings.HasSuffix(got, "\033[0m") {
				t.Errorf("%s should end with reset code", tt.name)
			}
		})
	}
}
