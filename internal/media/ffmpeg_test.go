package media

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

func TestRunResult_IsSuccess(t *testing.T) {
	tests := []struct {
		exitCode int
		want     bool
	}{
		{0, true},
		{1, false},
		{-1, false},
		{234, false},
	}
	for _, tt := range tests {
		r := RunResult{ExitCode: tt.exitCode}
		if got := r.IsSuccess(); got != tt.want {
			t.Errorf("RunResult{ExitCode: %d}.IsSuccess() = %v, want %v", tt.exitCode, got, tt.want)
		}
	}
}

func TestLimitedWriter_KeepsOnlyTail(t *testing.T) {
	var buf bytes.Buffer
	lw := &limitedWriter{w: &buf, limit: 10}

	lw.Write([]byte("hello"))
	if buf.String() != "hello" {
		t.Errorf("after short write got %q, want %q", buf.String(), "hello")
	}

	lw.Write([]byte(" world of test data"))
	if got, want := buf.String(), " test data"; got != want {
		t.Errorf("after overflow got %q, want %q", got, want)
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		input  string
		maxLen int
		want   string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello world", 5, "...world"},
	}
	for _, tt := range tests {
		if got := truncate(tt.input, tt.maxLen); got != tt.want {
			t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
		}
	}
}

func TestParseSeconds(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"1.000000", time.Second, false},
		{"3.050000", 3050 * time.Millisecond, false},
		{"9.3", 9300 * time.Millisecond, false},
		{"0", 0, false},
		{"N/A", 0, true},
		{"-1", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSeconds(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseSeconds(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSeconds(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestSeconds(t *testing.T) {
	if got := Seconds(2 * time.Second); got != "2" {
		t.Errorf("Seconds(2s) = %q", got)
	}
	if got := Seconds(1250 * time.Millisecond); got != "1.25" {
		t.Errorf("Seconds(1.25s) = %q", got)
	}
}

func TestToolError(t *testing.T) {
	var err error = &ToolError{Tool: "ffmpeg", Op: "concat", ExitCode: 1, StderrTail: "list.txt: No such file"}

	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatal("expected errors.As to match ToolError")
	}
	if !strings.Contains(err.Error(), "No such file") || !strings.Contains(err.Error(), "exited 1") {
		t.Errorf("unexpected message: %s", err)
	}
}

func TestParseVersion(t *testing.T) {
	out := "ffmpeg version 6.1.1-3ubuntu5 Copyright (c) 2000-2023 the FFmpeg developers\nbuilt with gcc\n"
	if got := parseVersion(out); got != "6.1.1-3ubuntu5" {
		t.Errorf("parseVersion = %q", got)
	}
	if got := parseVersion("garbage"); got != "" {
		t.Errorf("parseVersion(garbage) = %q, want empty", got)
	}
}

func TestListedNames(t *testing.T) {
	out := `Filters:
  T.. = Timeline support
 ... anullsrc          |->A       Null audio source, return empty audio frames.
 TSC drawtext          V->V       Draw text on top of video frames using libfreetype library.
`
	names := listedNames(out)
	if !names["anullsrc"] || !names["drawtext"] {
		t.Errorf("expected anullsrc and drawtext, got %v", names)
	}
	if names["overlay"] {
		t.Error("overlay should not be listed")
	}
}

func TestQuoteConcatPath(t *testing.T) {
	if got := quoteConcatPath("/tmp/a b.mp3"); got != "'/tmp/a b.mp3'" {
		t.Errorf("got %s", got)
	}
	if got := quoteConcatPath("/tmp/it's.mp3"); got != `'/tmp/it'\''s.mp3'` {
		t.Errorf("got %s", got)
	}
}

func TestWriteConcatList(t *testing.T) {
	dir := t.TempDir()
	list := filepath.Join(dir, "list.txt")
	a := filepath.Join(dir, "segment_000_peter.mp3")
	b := filepath.Join(dir, "pause.mp3")

	if err := WriteConcatList(list, []string{a, b, a}); err != nil {
		t.Fatalf("WriteConcatList: %v", err)
	}

	data, err := os.ReadFile(list)
	if err != nil {
		t.Fatal(err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 3 {
		t.Fatalf("expected 3 lines, got %d: %q", len(lines), data)
	}
	if lines[0] != "file '"+a+"'" || lines[1] != "file '"+b+"'" || lines[2] != lines[0] {
		t.Errorf("unexpected list: %q", data)
	}
}

func TestWriteConcatList_Empty(t *testing.T) {
	if err := WriteConcatList(filepath.Join(t.TempDir(), "l.txt"), nil); err == nil {
		t.Error("expected error for empty list")
	}
}

func TestResolveBinary_NotFound(t *testing.T) {
	if _, err := resolveBinary("/nonexistent/ffmpeg999", "ffmpeg"); err == nil {
		t.Fatal("expected error for nonexistent binary")
	}
}

// fakeBinary writes an executable shell script and returns its path.
func fakeBinary(t *testing.T, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported")
	}
	p := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestProbeDuration_FakeBinary(t *testing.T) {
	probe := fakeBinary(t, "ffprobe", `echo "1.250000"`)
	ff := fakeBinary(t, "ffmpeg", `exit 0`)

	f, err := NewFFmpeg(Config{FFmpegPath: ff, FFprobePath: probe})
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}

	d, err := f.ProbeDuration(context.Background(), "/any/file.mp3")
	if err != nil {
		t.Fatalf("ProbeDuration: %v", err)
	}
	if d != 1250*time.Millisecond {
		t.Errorf("duration = %v, want 1.25s", d)
	}
}

func TestProbeDuration_EmptyOutput(t *testing.T) {
	probe := fakeBinary(t, "ffprobe", `echo "N/A"`)
	ff := fakeBinary(t, "ffmpeg", `exit 0`)

	f, err := NewFFmpeg(Config{FFmpegPath: ff, FFprobePath: probe})
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}
	if _, err := f.ProbeDuration(context.Background(), "x.mp3"); !errors.Is(err, ErrProbeEmpty) {
		t.Errorf("expected ErrProbeEmpty, got %v", err)
	}
}

func TestConcat_FailureCarriesStderr(t *testing.T) {
	probe := fakeBinary(t, "ffprobe", `exit 0`)
	ff := fakeBinary(t, "ffmpeg", `echo "list.txt: Invalid data found" >&2; exit 1`)

	f, err := NewFFmpeg(Config{FFmpegPath: ff, FFprobePath: probe})
	if err != nil {
		t.Fatalf("NewFFmpeg: %v", err)
	}

	err = f.Concat(context.Background(), "list.txt", filepath.Join(t.TempDir(), "out.mp3"))
	var te *ToolError
	if !errors.As(err, &te) {
		t.Fatalf("expected ToolError, got %v", err)
	}
	if te.ExitCode != 1 || !strings.Contains(te.StderrTail, "Invalid data found") {
		t.Errorf("unexpected tool error: %+v", te)
	}
}

func TestGenerateSilence_RejectsNonPositive(t *testing.T) {
	f := &FFmpeg{cfg: withTimeouts(Config{})}
	if err := f.GenerateSilence(context.Background(), "out.mp3", 0, DefaultAudioFormat); err == nil {
		t.Error("expected error for zero duration")
	}
}

func TestRender_NoArgs(t *testing.T) {
	f := &FFmpeg{cfg: withTimeouts(Config{})}
	if _, err := f.Render(context.Background(), nil); err == nil {
		t.Error("expected error for empty args")
	}
}
