package timeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/script"
)

// Tool is the subset of the media tool the builder drives.
type Tool interface {
	ProbeDuration(ctx context.Context, path string) (time.Duration, error)
	GenerateSilence(ctx context.Context, outPath string, d time.Duration, format media.AudioFormat) error
	Concat(ctx context.Context, listPath, outPath string) error
}

// ConcatError is a failed concatenation. Err is usually a *media.ToolError
// carrying ffmpeg's diagnostic output.
type ConcatError struct {
	Err error
}

func (e *ConcatError) Error() string { return "concatenate audio: " + e.Err.Error() }
func (e *ConcatError) Unwrap() error { return e.Err }

type Options struct {
	PauseDuration   time.Duration
	OptionsDuration time.Duration
	Padding         time.Duration
	DriftTolerance  time.Duration
	Format          media.AudioFormat
	Logger          *slog.Logger
}

func DefaultOptions() Options {
	return Options{
		PauseDuration:   2 * time.Second,
		OptionsDuration: 5 * time.Second,
		Padding:         DefaultPadding,
		DriftTolerance:  DefaultDriftTolerance,
		Format:          media.DefaultAudioFormat,
	}
}

// Builder concatenates clips and reconciles their intervals. A Builder holds
// no per-run state; concurrent builds only need distinct scratch dirs.
type Builder struct {
	tool   Tool
	opts   Options
	logger *slog.Logger
}

func NewBuilder(tool Tool, opts Options) *Builder {
	d := DefaultOptions()
	if opts.PauseDuration <= 0 {
		opts.PauseDuration = d.PauseDuration
	}
	if opts.OptionsDuration <= 0 {
		opts.OptionsDuration = d.OptionsDuration
	}
	if opts.Padding < 0 {
		opts.Padding = 0
	}
	if opts.DriftTolerance <= 0 {
		opts.DriftTolerance = d.DriftTolerance
	}
	if opts.Format == (media.AudioFormat{}) {
		opts.Format = d.Format
	}
	return &Builder{
		tool:   tool,
		opts:   opts,
		logger: logging.WithComponent(logging.OrDiscard(opts.Logger), "timeline"),
	}
}

// placeholderDuration is the configured length of a silence kind.
func (b *Builder) placeholderDuration(kind script.Placeholder) time.Duration {
	if kind == script.PlaceholderOptions {
		return b.opts.OptionsDuration
	}
	return b.opts.PauseDuration
}

// Assembly is the concatenated audio with its accumulated, not yet
// reconciled, intervals.
type Assembly struct {
	Intervals []Interval
	AudioPath string
	Computed  time.Duration
	Dropped   int
}

// Build concatenates clips in order into outPath and returns the reconciled
// timeline.
func (b *Builder) Build(ctx context.Context, clips []Clip, scratchDir, outPath string) (*Timeline, error) {
	a, err := b.Concatenate(ctx, clips, scratchDir, outPath)
	if err != nil {
		return nil, err
	}
	return b.Reconcile(ctx, a), nil
}

// Concatenate joins clips in order into outPath and accumulates their
// intervals. Spoken clips that are missing or fail to probe are dropped
// from both the audio and the intervals. Scratch files (silence assets and
// the concat list) are created under scratchDir and removed before
// returning.
func (b *Builder) Concatenate(ctx context.Context, clips []Clip, scratchDir, outPath string) (*Assembly, error) {
	if err := os.MkdirAll(scratchDir, 0755); err != nil {
		return nil, fmt.Errorf("create scratch dir: %w", err)
	}

	var (
		files     []string
		intervals []Interval
		durations []time.Duration
		spoken    int
		kept      int
	)
	silence := make(map[script.Placeholder]string)
	defer func() {
		for _, p := range silence {
			os.Remove(p)
		}
	}()

	for _, c := range clips {
		var (
			source string
			d      time.Duration
		)

		if c.IsPlaceholder() {
			kind := c.Line.Placeholder
			p, ok := silence[kind]
			if !ok {
				p = filepath.Join(scratchDir, fmt.Sprintf("silence_%s.mp3", kind))
				if err := b.tool.GenerateSilence(ctx, p, b.placeholderDuration(kind), b.opts.Format); err != nil {
					return nil, fmt.Errorf("generate %s silence: %w", kind, err)
				}
				silence[kind] = p
			}
			source = p
			d = b.placeholderDuration(kind)
		} else {
			spoken++
			probed, err := b.probeClip(ctx, c)
			if err != nil {
				b.logger.Warn("dropping clip from timeline",
					"index", c.Line.Index,
					"source", logging.SanitizePath(c.Source),
					"error", err,
				)
				continue
			}
			kept++
			source = c.Source
			d = probed + b.opts.Padding
		}

		files = append(files, source)
		durations = append(durations, d)
		intervals = append(intervals, Interval{
			Index:       c.Line.Index,
			Text:        c.Line.Text,
			Speaker:     c.Line.Speaker,
			Emotion:     c.Line.Emotion,
			Placeholder: c.Line.Placeholder,
		})
	}

	if len(intervals) == 0 || (spoken > 0 && kept == 0) {
		return nil, ErrNoUsableClips
	}

	listPath := filepath.Join(scratchDir, "concat_list.txt")
	if err := media.WriteConcatList(listPath, files); err != nil {
		return nil, err
	}
	defer os.Remove(listPath)

	if err := b.tool.Concat(ctx, listPath, outPath); err != nil {
		os.Remove(outPath)
		return nil, &ConcatError{Err: err}
	}

	return &Assembly{
		Intervals: intervals,
		AudioPath: outPath,
		Computed:  Accumulate(intervals, durations),
		Dropped:   len(clips) - len(intervals),
	}, nil
}

// Reconcile measures the concatenated file and corrects drift beyond the
// tolerance. When the measurement fails the computed timeline is kept.
func (b *Builder) Reconcile(ctx context.Context, a *Assembly) *Timeline {
	intervals := append([]Interval(nil), a.Intervals...)
	tl := &Timeline{
		Intervals: intervals,
		AudioPath: a.AudioPath,
		Computed:  a.Computed,
	}

	measured, err := b.tool.ProbeDuration(ctx, a.AudioPath)
	if err != nil {
		b.logger.Warn("cannot measure concatenated audio, keeping computed timeline",
			"error", err,
		)
	} else {
		tl.Measured = measured
		if Reconcile(intervals, measured, b.opts.DriftTolerance) {
			tl.Scaled = true
			b.logger.Warn("timeline drift corrected",
				"computed_ms", a.Computed.Milliseconds(),
				"measured_ms", measured.Milliseconds(),
				"ratio", float64(measured)/float64(a.Computed),
			)
		}
	}
	tl.Total = intervals[len(intervals)-1].End

	b.logger.Info("timeline built",
		"intervals", len(intervals),
		"dropped", a.Dropped,
		"total_ms", tl.Total.Milliseconds(),
	)
	return tl
}

func (b *Builder) probeClip(ctx context.Context, c Clip) (time.Duration, error) {
	if c.Source == "" {
		return 0, errors.New("clip has no audio source")
	}
	info, err := os.Stat(c.Source)
	if err != nil {
		return 0, err
	}
	if info.IsDir() {
		return 0, fmt.Errorf("%s is a directory", c.Source)
	}
	d, err := b.tool.ProbeDuration(ctx, c.Source)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return 0, media.ErrProbeEmpty
	}
	return d, nil
}
