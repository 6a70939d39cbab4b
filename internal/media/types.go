// Package media runs the ffmpeg and ffprobe binaries as subprocesses:
// duration probes, silence generation, stream-copy concatenation and the
// final composite render.
package media

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

var (
	ErrProbeEmpty = errors.New("probe returned no duration")
)

// Capabilities reports what the installed ffmpeg toolchain can do.
type Capabilities struct {
	FFmpeg   DepInfo         `json:"ffmpeg"`
	FFprobe  DepInfo         `json:"ffprobe"`
	Filters  map[string]bool `json:"filters"`
	Encoders map[string]bool `json:"encoders"`

	CanRender bool      `json:"can_render"`
	ProbedAt  time.Time `json:"probed_at"`
}

// DepInfo represents the availability status of a single binary.
type DepInfo struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Path      string `json:"path,omitempty"`
	Error     string `json:"error,omitempty"`
}

// RequiredFilters and RequiredEncoders must all be present to render.
var (
	RequiredFilters  = []string{"anullsrc", "concat", "drawtext", "overlay", "scale", "pad"}
	RequiredEncoders = []string{"libx264", "aac", "libmp3lame"}
)

// RunResult is the structured outcome of executing a media subprocess.
type RunResult struct {
	ExitCode   int           `json:"exit_code"`
	OutputPath string        `json:"output_path,omitempty"`
	StderrTail string        `json:"stderr_tail,omitempty"` // last N bytes of stderr
	Duration   time.Duration `json:"duration"`
}

// IsSuccess returns true when the subprocess exited cleanly.
func (r RunResult) IsSuccess() bool { return r.ExitCode == 0 }

// ToolError is a non-zero exit from ffmpeg or ffprobe. StderrTail carries
// the tool's own diagnostic output.
type ToolError struct {
	Tool       string
	Op         string
	ExitCode   int
	StderrTail string
}

func (e *ToolError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("%s %s exited %d", e.Tool, e.Op, e.ExitCode)
	}
	return fmt.Sprintf("%s %s exited %d: %s", e.Tool, e.Op, e.ExitCode, e.StderrTail)
}

func toolError(tool, op string, r RunResult) error {
	return &ToolError{Tool: tool, Op: op, ExitCode: r.ExitCode, StderrTail: r.StderrTail}
}

// AudioFormat describes encoded silence parameters.
type AudioFormat struct {
	SampleRate    int
	ChannelLayout string
	Codec         string
	BitrateKbps   int
}

// DefaultAudioFormat matches the speech clips returned by the synthesis
// service (44.1 kHz stereo MP3 at 128 kbps) so the concat demuxer can
// stream-copy them together.
var DefaultAudioFormat = AudioFormat{
	SampleRate:    44100,
	ChannelLayout: "stereo",
	Codec:         "libmp3lame",
	BitrateKbps:   128,
}

func (f AudioFormat) withDefaults() AudioFormat {
	if f.SampleRate <= 0 {
		f.SampleRate = DefaultAudioFormat.SampleRate
	}
	if f.ChannelLayout == "" {
		f.ChannelLayout = DefaultAudioFormat.ChannelLayout
	}
	if f.Codec == "" {
		f.Codec = DefaultAudioFormat.Codec
	}
	if f.BitrateKbps <= 0 {
		f.BitrateKbps = DefaultAudioFormat.BitrateKbps
	}
	return f
}

// Seconds formats a duration the way ffmpeg option values expect it.
func Seconds(d time.Duration) string {
	return strconv.FormatFloat(d.Seconds(), 'f', -1, 64)
}

// ParseSeconds converts ffprobe's decimal seconds to a Duration rounded to
// the nearest microsecond.
func ParseSeconds(s string) (time.Duration, error) {
	secs, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", s, err)
	}
	if secs < 0 {
		return 0, fmt.Errorf("negative duration %q", s)
	}
	d := time.Duration(secs * float64(time.Second))
	return d.Round(time.Microsecond), nil
}
