package utils

import (
	"testing"
)

func TestTruncate(t *testing.T) {
	tests := []struct {
		s    string
		n    int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "hello..."},
		{"x", 0, "x"},
		{"héllo wörld", 4, "héll..."},
		{"日本語テキスト", 3, "日本語..."},
	}
	for _, tt := range tests {
		if got := Truncate(tt.s, tt.n); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.s, tt.n, got, tt.want)
		}
	}
}

func TestRound(t *testing.T) {
	if got := Round(0.87654, 3); got != 0.877 {
		t.Errorf("Round(0.87654, 3) = %v", got)
	}
	if got := Round(-0.12345, 2); got != -0.12 {
		t.Errorf("Round(-0.12345, 2) = %v", got)
	}
}
