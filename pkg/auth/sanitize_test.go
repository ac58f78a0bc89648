package auth

import (
	"strings"
	"testing"
)

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "plain name",
			input: "Alice",
			want:  "Alice",
		},
		{
			name:  "apostrophe kept",
			input: "Seán O'Brien",
			want:  "Seán O'Brien",
		},
		{
			name:  "surrounding whitespace",
			input: "  Bob  ",
			want:  "Bob",
		},
		{
			name:  "control characters",
			input: "Ev\x00e\nlyn\t",
			want:  "Evelyn",
		},
		{
			name:  "empty",
			input: "   ",
			want:  "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeName(tt.input)
			if got != tt.want {
				t.Errorf("SanitizeName() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSanitizeName_Truncates(t *testing.T) {
	long := strings.Repeat("é", maxDisplayNameRunes+20)
	got := SanitizeName(long)
	if n := len([]rune(got)); n != maxDisplayNameRunes {
		t.Errorf("SanitizeName() kept %d runes, want %d", n, maxDisplayNameRunes)
	}
}
