package media

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	maxStdoutBytes = 64 * 1024
)

// Config holds the tool's configuration.
type Config struct {
	FFmpegPath    string // empty = "ffmpeg" on PATH
	FFprobePath   string // empty = "ffprobe" on PATH
	ProbeTimeout  time.Duration
	ConcatTimeout time.Duration
	RenderTimeout time.Duration
	DoctorTimeout time.Duration
	Logger        *slog.Logger
	DebugPaths    bool // if true, log full file paths; otherwise sanitise
}

// DefaultConfig returns production-ready defaults.
func DefaultConfig(logger *slog.Logger) Config {
	return Config{
		FFmpegPath:    "ffmpeg",
		FFprobePath:   "ffprobe",
		ProbeTimeout:  30 * time.Second,
		ConcatTimeout: 5 * time.Minute,
		RenderTimeout: 30 * time.Minute,
		DoctorTimeout: 10 * time.Second,
		Logger:        logger,
	}
}

// FFmpeg is the subprocess implementation of the media operations.
type FFmpeg struct {
	cfg     Config
	ffmpeg  string
	ffprobe string
	logger  *slog.Logger
}

// NewFFmpeg resolves both binaries on PATH.
func NewFFmpeg(cfg Config) (*FFmpeg, error) {
	ffmpeg, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, err
	}
	ffprobe, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, err
	}

	logger := logging.WithComponent(logging.OrDiscard(cfg.Logger), "media")
	logger.Info("media tool initialised", "ffmpeg", ffmpeg, "ffprobe", ffprobe)

	return &FFmpeg{cfg: withTimeouts(cfg), ffmpeg: ffmpeg, ffprobe: ffprobe, logger: logger}, nil
}

func withTimeouts(cfg Config) Config {
	d := DefaultConfig(nil)
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = d.ProbeTimeout
	}
	if cfg.ConcatTimeout <= 0 {
		cfg.ConcatTimeout = d.ConcatTimeout
	}
	if cfg.RenderTimeout <= 0 {
		cfg.RenderTimeout = d.RenderTimeout
	}
	if cfg.DoctorTimeout <= 0 {
		cfg.DoctorTimeout = d.DoctorTimeout
	}
	return cfg
}

// ProbeDuration measures a media file's container duration.
func (f *FFmpeg) ProbeDuration(ctx context.Context, path string) (time.Duration, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	var stdout bytes.Buffer
	result := f.exec(ctx, f.ffprobe, &stdout, "",
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	)
	if !result.IsSuccess() {
		return 0, toolError("ffprobe", "probe", result)
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" || out == "N/A" {
		return 0, fmt.Errorf("%s: %w", f.safePath(path), ErrProbeEmpty)
	}
	return ParseSeconds(out)
}

// GenerateSilence writes a silent clip of exactly d.
func (f *FFmpeg) GenerateSilence(ctx context.Context, outPath string, d time.Duration, format AudioFormat) error {
	if d <= 0 {
		return fmt.Errorf("silence duration must be positive, got %v", d)
	}
	format = format.withDefaults()

	ctx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	result := f.exec(ctx, f.ffmpeg, nil, outPath,
		"-hide_banner", "-y",
		"-f", "lavfi",
		"-i", fmt.Sprintf("anullsrc=r=%d:cl=%s", format.SampleRate, format.ChannelLayout),
		"-t", Seconds(d),
		"-c:a", format.Codec,
		"-b:a", fmt.Sprintf("%dk", format.BitrateKbps),
		outPath,
	)
	if !result.IsSuccess() {
		return toolError("ffmpeg", "silence", result)
	}
	return nil
}

// Concat joins the files named in a concat-demuxer list without re-encoding.
func (f *FFmpeg) Concat(ctx context.Context, listPath, outPath string) error {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.ConcatTimeout)
	defer cancel()

	result := f.exec(ctx, f.ffmpeg, nil, outPath,
		"-hide_banner", "-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listPath,
		"-c", "copy",
		outPath,
	)
	if !result.IsSuccess() {
		return toolError("ffmpeg", "concat", result)
	}
	return nil
}

// Render runs ffmpeg with a fully built argument list. The last argument is
// taken as the output path.
func (f *FFmpeg) Render(ctx context.Context, args []string) (RunResult, error) {
	if len(args) == 0 {
		return RunResult{}, errors.New("render: no arguments")
	}
	ctx, cancel := context.WithTimeout(ctx, f.cfg.RenderTimeout)
	defer cancel()

	outPath := args[len(args)-1]
	full := append([]string{"-hide_banner", "-y"}, args...)
	result := f.exec(ctx, f.ffmpeg, nil, outPath, full...)
	if !result.IsSuccess() {
		return result, toolError("ffmpeg", "render", result)
	}
	return result, nil
}

// exec is the core subprocess execution helper.
func (f *FFmpeg) exec(ctx context.Context, bin string, stdout *bytes.Buffer, outPath string, args ...string) RunResult {
	start := time.Now()

	// Ensure output directory exists
	if outPath != "" {
		if err := os.MkdirAll(filepath.Dir(outPath), 0755); err != nil {
			f.logger.Error("cannot create output dir", "error", err)
			return RunResult{ExitCode: -1, StderrTail: err.Error(), Duration: time.Since(start)}
		}
	}

	cmd := exec.CommandContext(ctx, bin, args...)

	// Capture stderr with bounded buffer
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}
	if stdout != nil {
		cmd.Stdout = &limitedWriter{w: stdout, limit: maxStdoutBytes}
	} else {
		cmd.Stdout = io.Discard
	}

	f.logger.Debug("executing media command",
		"bin", filepath.Base(bin),
		"args", len(args),
	)

	err := cmd.Run()
	elapsed := time.Since(start)

	exitCode := 0
	stderrTail := stderrBuf.String()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
			if stderrTail == "" {
				stderrTail = err.Error()
			}
		}
		if ctx.Err() != nil && stderrTail == "" {
			stderrTail = ctx.Err().Error()
		}
	}

	if exitCode != 0 {
		f.logger.Warn("media command failed",
			"bin", filepath.Base(bin),
			"exit_code", exitCode,
			"duration_ms", elapsed.Milliseconds(),
			"stderr_tail", truncate(stderrTail, 512),
		)
	} else {
		f.logger.Debug("media command succeeded",
			"bin", filepath.Base(bin),
			"duration_ms", elapsed.Milliseconds(),
			"output", f.safePath(outPath),
		)
	}

	return RunResult{
		ExitCode:   exitCode,
		OutputPath: outPath,
		StderrTail: stderrTail,
		Duration:   elapsed,
	}
}

func (f *FFmpeg) safePath(path string) string {
	if f.cfg.DebugPaths || path == "" {
		return path
	}
	sanitized := logging.SanitizePath(path)
	if sanitized != path {
		return sanitized
	}
	return filepath.Base(path)
}

func resolveBinary(preferred, fallback string) (string, error) {
	name := preferred
	if name == "" {
		name = fallback
	}
	p, err := exec.LookPath(name)
	if err != nil {
		return "", fmt.Errorf("cannot locate %s: %w", name, err)
	}
	return p, nil
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return "..." + s[len(s)-maxLen:]
}

// limitedWriter is an io.Writer that keeps only the last `limit` bytes.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		// Keep only the tail
		b := lw.w.Bytes()
		tail := append([]byte(nil), b[len(b)-lw.limit:]...)
		lw.w.Reset()
		lw.w.Write(tail)
	}
	return n, nil
}
