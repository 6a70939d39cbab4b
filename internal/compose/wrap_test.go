package compose

import (
	"strings"
	"testing"
	"unicode/utf8"
)

func TestWrap(t *testing.T) {
	tests := []struct {
		name  string
		text  string
		width int
		want  string
	}{
		{"short", "Hello there", 32, "Hello there"},
		{
			"breaks at words",
			"Alright, time to test your knowledge on Photosynthesis!",
			32,
			"Alright, time to test your\nknowledge on Photosynthesis!",
		},
		{"long word alone", "a supercalifragilistic b", 10, "a\nsupercalifragilistic\nb"},
		{"keeps existing breaks", "A) one two\nB) three", 8, "A) one\ntwo\nB) three"},
		{"collapses spaces", "  lots   of   space  ", 32, "lots of space"},
		{"zero width untouched", "no wrap here", 0, "no wrap here"},
		{"exact width", "abcd efgh", 9, "abcd efgh"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Wrap(tt.text, tt.width); got != tt.want {
				t.Errorf("Wrap(%q, %d) = %q, want %q", tt.text, tt.width, got, tt.want)
			}
		})
	}
}

func TestWrap_NeverSplitsWords(t *testing.T) {
	text := "The mitochondria is the powerhouse of the cell and everyone knows it"
	got := Wrap(text, 12)

	if strings.Join(strings.Fields(got), " ") != text {
		t.Errorf("words changed: %q", got)
	}
	for _, line := range strings.Split(got, "\n") {
		if utf8.RuneCountInString(line) > 12 && strings.Contains(line, " ") {
			t.Errorf("line %q exceeds width with a break available", line)
		}
	}
}
