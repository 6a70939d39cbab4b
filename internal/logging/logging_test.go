package logging

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"WARN", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		if got := ParseLevel(tt.in); got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSanitizeToken(t *testing.T) {
	if got := SanitizeToken("short"); got != "****" {
		t.Errorf("SanitizeToken(short) = %q", got)
	}
	if got := SanitizeToken("abcdefghijkl"); got != "abcd...ijkl" {
		t.Errorf("SanitizeToken = %q, want abcd...ijkl", got)
	}
}

func TestSanitizePath(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil || home == "" {
		t.Skip("no home directory")
	}
	got := SanitizePath(filepath.Join(home, "videos", "out.mp4"))
	want := "~" + string(filepath.Separator) + filepath.Join("videos", "out.mp4")
	if got != want {
		t.Errorf("SanitizePath = %q, want %q", got, want)
	}

	if got := SanitizePath("/elsewhere/file"); got != "/elsewhere/file" && home != "/" {
		t.Errorf("expected path outside home unchanged, got %q", got)
	}
	if sibling := home + "-other" + string(filepath.Separator) + "x"; SanitizePath(sibling) != sibling {
		t.Errorf("sibling of home must be unchanged, got %q", SanitizePath(sibling))
	}
	if got := SanitizePath(home); got != "~" {
		t.Errorf("SanitizePath(home) = %q", got)
	}
}

func TestNewTextLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewTextLogger(&buf, "warn")
	logger.Info("hidden")
	WithRunID(logger, "r1").Warn("dropping clip from timeline", "index", 2)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("info must be filtered at warn level")
	}
	for _, want := range []string{"level=WARN", "run_id=r1", "index=2"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %s", want, out)
		}
	}
}

func TestOrDiscard(t *testing.T) {
	if OrDiscard(nil) == nil {
		t.Fatal("expected non-nil logger")
	}
	l := slog.Default()
	if OrDiscard(l) != l {
		t.Error("expected the same logger back")
	}
}
