package util

import "testing"

func TestSafeTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"longer than max", "very-long-code-abc123", 8, "very-lon"},
		{"shorter than max", "short", 10, "short"},
		{"equal to max", "exact", 5, "exact"},
		{"empty string", "", 5, ""},
		{"zero max", "something", 0, ""},
		{"negative max", "test", -1, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SafeTruncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("SafeTruncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
