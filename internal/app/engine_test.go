package app

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/heimdex/heimdex-shorts/internal/config"
	"github.com/heimdex/heimdex-shorts/internal/logging"
)

func fakeBinary(t *testing.T, dir, name string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell stubs need a POSIX shell")
	}
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte("#!/bin/sh\nexit 0\n"), 0755); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestNewEngine(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)
	t.Setenv(config.EnvFFmpegBin, fakeBinary(t, dir, "ffmpeg"))
	t.Setenv(config.EnvFFprobeBin, fakeBinary(t, dir, "ffprobe"))
	t.Setenv(config.EnvAssetRoot, filepath.Join(dir, "faces"))
	t.Setenv(config.EnvVoicePrefix+"PETER", "voice-peter")
	t.Setenv(config.EnvVoicePrefix+"lois", "voice-lois")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	eng, err := NewEngine(cfg, nil)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	if eng.Pipeline == nil || eng.Doctor == nil || eng.Tool == nil {
		t.Fatal("engine is missing components")
	}
	if eng.Cast.AssetRoot != filepath.Join(dir, "faces") {
		t.Errorf("asset root = %s", eng.Cast.AssetRoot)
	}
	if v, err := eng.Cast.VoiceFor("PETER"); err != nil || v != "voice-peter" {
		t.Errorf("PETER voice = %q, %v", v, err)
	}
	if v, err := eng.Cast.VoiceFor("LOIS"); err != nil || v != "voice-lois" {
		t.Errorf("LOIS voice = %q, %v", v, err)
	}
	if got := RunsDir(cfg); got != filepath.Join(dir, "work", "runs") {
		t.Errorf("RunsDir = %s", got)
	}
}

func TestNewEngine_WarnsAboutMissingVoices(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)
	t.Setenv(config.EnvCastFile, "")
	t.Setenv(config.EnvFFmpegBin, fakeBinary(t, dir, "ffmpeg"))
	t.Setenv(config.EnvFFprobeBin, fakeBinary(t, dir, "ffprobe"))
	t.Setenv(config.EnvVoicePrefix+"PETER", "voice-peter")

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	var buf bytes.Buffer
	if _, err := NewEngine(cfg, logging.NewTextLogger(&buf, "info")); err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	var warning string
	for _, line := range strings.Split(buf.String(), "\n") {
		if strings.Contains(line, "no voice id") {
			warning = line
		}
	}
	if warning == "" {
		t.Fatalf("expected a missing voice warning, got:\n%s", buf.String())
	}
	if !strings.Contains(warning, "STEWIE") || strings.Contains(warning, "PETER") {
		t.Errorf("warning should name only STEWIE: %s", warning)
	}
}

func TestNewEngine_MissingBinary(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)
	t.Setenv(config.EnvFFmpegBin, filepath.Join(dir, "no-such-ffmpeg"))

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewEngine(cfg, nil); err == nil {
		t.Error("expected an error for a missing ffmpeg")
	}
}

func TestLoadCast_MissingFileUsesDefault(t *testing.T) {
	dir := t.TempDir()
	t.Setenv(config.EnvDataDir, dir)

	cfg, err := config.FromEnv()
	if err != nil {
		t.Fatal(err)
	}
	c, err := LoadCast(cfg)
	if err != nil {
		t.Fatalf("LoadCast: %v", err)
	}
	if _, ok := c.Speakers["PETER"]; !ok {
		t.Error("default cast should include PETER")
	}
}
