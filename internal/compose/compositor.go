// Package compose renders the final video: a looping background scaled to
// the canvas, character portraits gated by their speakers' intervals, and
// wrapped captions on top, muxed with the narration audio.
package compose

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/cast"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

const (
	DefaultWidth  = 1080
	DefaultHeight = 1920

	overlayMargin = 10
	outputLabel   = "v"
)

// Renderer is the subset of the media tool the compositor drives.
type Renderer interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	Render(ctx context.Context, args []string) (media.RunResult, error)
}

// RenderError is a failed render. Err usually wraps a *media.ToolError.
type RenderError struct {
	Err error
}

func (e *RenderError) Error() string { return "render video: " + e.Err.Error() }
func (e *RenderError) Unwrap() error { return e.Err }

type Encoding struct {
	VideoCodec   string
	Preset       string
	CRF          int
	AudioCodec   string
	AudioBitrate string
	PixelFormat  string
}

var DefaultEncoding = Encoding{
	VideoCodec:   "libx264",
	Preset:       "medium",
	CRF:          23,
	AudioCodec:   "aac",
	AudioBitrate: "192k",
	PixelFormat:  "yuv420p",
}

type Options struct {
	Width    int
	Height   int
	Encoding Encoding
	Rand     *rand.Rand
	Logger   *slog.Logger
}

type Compositor struct {
	tool   Renderer
	cast   cast.Cast
	opts   Options
	logger *slog.Logger
}

func New(tool Renderer, c cast.Cast, opts Options) *Compositor {
	if opts.Width <= 0 {
		opts.Width = DefaultWidth
	}
	if opts.Height <= 0 {
		opts.Height = DefaultHeight
	}
	if opts.Encoding == (Encoding{}) {
		opts.Encoding = DefaultEncoding
	}
	return &Compositor{
		tool:   tool,
		cast:   c,
		opts:   opts,
		logger: logging.WithComponent(logging.OrDiscard(opts.Logger), "compose"),
	}
}

// Request is one composition. Background is a file or a directory of .mp4
// candidates. Caption text files are written under ScratchDir.
type Request struct {
	Background string
	AudioPath  string
	Timeline   *timeline.Timeline
	OutPath    string
	ScratchDir string
}

type Result struct {
	VideoPath  string
	Background string
	Duration   time.Duration
	Overlays   int
	Captions   int
	Elapsed    time.Duration
}

// Plan is everything needed to invoke the renderer.
type Plan struct {
	Background string
	Duration   time.Duration
	Overlays   []OverlaySpec
	Captions   []CaptionSpec
	Graph      Graph
	Args       []string
}

// Render composes and encodes the video. A failed render removes any
// partial output file.
func (c *Compositor) Render(ctx context.Context, req Request) (*Result, error) {
	if req.Timeline == nil || len(req.Timeline.Intervals) == 0 {
		return nil, timeline.ErrNoUsableClips
	}
	if req.AudioPath == "" {
		req.AudioPath = req.Timeline.AudioPath
	}

	bg, err := SelectBackground(req.Background, c.opts.Rand)
	if err != nil {
		return nil, err
	}

	dur, err := c.tool.ProbeDuration(ctx, req.AudioPath)
	if err != nil || dur <= 0 {
		c.logger.Warn("cannot probe narration audio, trimming to timeline total",
			"error", err,
			"total_ms", req.Timeline.Total.Milliseconds(),
		)
		dur = req.Timeline.Total
	}

	captions := PlanCaptions(req.Timeline.Intervals, c.cast)
	textFiles, err := writeCaptionFiles(req.ScratchDir, captions)
	if err != nil {
		return nil, err
	}
	defer func() {
		for _, p := range textFiles {
			os.Remove(p)
		}
	}()

	plan := c.BuildPlan(bg, req.AudioPath, req.OutPath, dur,
		PlanOverlays(req.Timeline.Intervals, c.cast, c.logger), captions, textFiles)

	c.logger.Info("rendering video",
		"background", logging.SanitizePath(bg),
		"overlays", len(plan.Overlays),
		"captions", len(plan.Captions),
		"duration_ms", dur.Milliseconds(),
	)

	run, err := c.tool.Render(ctx, plan.Args)
	if err != nil {
		os.Remove(req.OutPath)
		return nil, &RenderError{Err: err}
	}

	return &Result{
		VideoPath:  req.OutPath,
		Background: bg,
		Duration:   dur,
		Overlays:   len(plan.Overlays),
		Captions:   len(plan.Captions),
		Elapsed:    run.Duration,
	}, nil
}

func writeCaptionFiles(dir string, captions []CaptionSpec) ([]string, error) {
	if len(captions) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}
	paths := make([]string, 0, len(captions))
	for _, cp := range captions {
		p := filepath.Join(dir, fmt.Sprintf("caption_%03d.txt", cp.Index))
		if err := os.WriteFile(p, []byte(cp.Text), 0644); err != nil {
			for _, written := range paths {
				os.Remove(written)
			}
			return nil, fmt.Errorf("write caption %d: %w", cp.Index, err)
		}
		paths = append(paths, p)
	}
	return paths, nil
}

// BuildPlan lays out inputs, the filter graph and encoder arguments.
// Input 0 is the looping background, 1 the narration, 2.. the portraits.
// textFiles holds one caption text file per caption, in order.
func (c *Compositor) BuildPlan(background, audio, out string, dur time.Duration, overlays []OverlaySpec, captions []CaptionSpec, textFiles []string) Plan {
	w, h := strconv.Itoa(c.opts.Width), strconv.Itoa(c.opts.Height)

	var g Graph
	g.Add(Chain{
		Inputs: []string{"0:v"},
		Filters: []Filter{
			NewFilter("scale", KV("w", w), KV("h", h), KV("force_original_aspect_ratio", "decrease")),
			NewFilter("pad", KV("w", w), KV("h", h), KV("x", "(ow-iw)/2"), KV("y", "(oh-ih)/2")),
			NewFilter("setsar", Pos("1")),
		},
		Outputs: []string{"bg"},
	})

	args := []string{
		"-stream_loop", "-1", "-i", background,
		"-i", audio,
	}

	current := "bg"
	overlayHeight := strconv.Itoa(c.cast.OverlayHeight)
	for i, o := range overlays {
		args = append(args, "-loop", "1", "-i", o.Image)

		scaled := fmt.Sprintf("ov%d", i)
		g.Add(Chain{
			Inputs:  []string{fmt.Sprintf("%d:v", i+2)},
			Filters: []Filter{NewFilter("scale", KV("w", "-1"), KV("h", overlayHeight))},
			Outputs: []string{scaled},
		})

		x, y := cornerPosition(o.Corner)
		next := fmt.Sprintf("v%d", i)
		g.Add(Chain{
			Inputs: []string{current, scaled},
			Filters: []Filter{NewFilter("overlay",
				KV("x", x), KV("y", y),
				KV("enable", o.Enable()),
			)},
			Outputs: []string{next},
		})
		current = next
	}

	if len(captions) > 0 {
		filters := make([]Filter, len(captions))
		for i, cp := range captions {
			filters[i] = drawtext(cp, textFiles[i])
		}
		g.Add(Chain{Inputs: []string{current}, Filters: filters, Outputs: []string{outputLabel}})
	}

	g.Relabel(outputLabel)

	enc := c.opts.Encoding
	args = append(args,
		"-filter_complex", g.String(),
		"-map", "["+outputLabel+"]",
		"-map", "1:a",
		"-t", media.Seconds(dur),
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", strconv.Itoa(enc.CRF),
		"-c:a", enc.AudioCodec,
		"-b:a", enc.AudioBitrate,
		"-pix_fmt", enc.PixelFormat,
		"-movflags", "+faststart",
		out,
	)

	return Plan{
		Background: background,
		Duration:   dur,
		Overlays:   overlays,
		Captions:   captions,
		Graph:      g,
		Args:       args,
	}
}

func drawtext(cp CaptionSpec, textFile string) Filter {
	st := cp.Style
	y := st.Y
	if y == "" {
		y = "(h-text_h)/2"
	}

	args := []Arg{KV("textfile", textFile), KV("expansion", "none")}
	if st.FontFile != "" {
		args = append(args, KV("fontfile", st.FontFile))
	}
	args = append(args,
		KV("fontsize", strconv.Itoa(st.FontSize)),
		KV("fontcolor", st.FontColor),
		KV("box", "1"),
		KV("boxcolor", st.BoxColor),
		KV("boxborderw", strconv.Itoa(st.BoxBorder)),
		KV("line_spacing", strconv.Itoa(st.LineSpacing)),
		KV("x", "(w-text_w)/2"),
		KV("y", y),
		KV("enable", cp.Enable()),
	)
	return NewFilter("drawtext", args...)
}

// cornerPosition returns overlay x and y expressions for a corner.
func cornerPosition(c cast.Corner) (string, string) {
	m := strconv.Itoa(overlayMargin)
	switch c {
	case cast.CornerBottomLeft:
		return m, "H-h-" + m
	case cast.CornerTopRight:
		return "W-w-" + m, m
	case cast.CornerTopLeft:
		return m, m
	default:
		return "W-w-" + m, "H-h-" + m
	}
}
