// Package synth turns script lines into per-line audio clips by calling a
// speech service. Placeholder lines produce no audio and no service call.
package synth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"golang.org/x/sync/errgroup"

	"github.com/heimdex/heimdex-shorts/internal/cast"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// Speech synthesizes text with a voice and returns encoded audio bytes.
type Speech interface {
	Synthesize(ctx context.Context, text, voiceID string) ([]byte, error)
}

// LineError names the line whose synthesis failed.
type LineError struct {
	Index   int
	Speaker script.Speaker
	Err     error
}

func (e *LineError) Error() string {
	return fmt.Sprintf("synthesize line %d (%s): %v", e.Index, e.Speaker, e.Err)
}

func (e *LineError) Unwrap() error { return e.Err }

type Options struct {
	// Concurrency bounds in-flight speech calls. Values below 1 mean 1.
	Concurrency int
	Logger      *slog.Logger
}

type Synthesizer struct {
	speech      Speech
	cast        cast.Cast
	concurrency int
	logger      *slog.Logger
}

func New(speech Speech, c cast.Cast, opts Options) *Synthesizer {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Synthesizer{
		speech:      speech,
		cast:        c,
		concurrency: opts.Concurrency,
		logger:      logging.WithComponent(logging.OrDiscard(opts.Logger), "synth"),
	}
}

// SegmentName is the file name of a line's clip.
func SegmentName(index int, speaker script.Speaker) string {
	slug := speaker.Slug()
	if slug == "" {
		slug = "unknown"
	}
	return fmt.Sprintf("segment_%03d_%s.mp3", index, slug)
}

// Synthesize returns one clip per line in input order. Spoken lines are
// written to outDir; the first failure cancels the remaining calls and
// fails the whole run.
func (s *Synthesizer) Synthesize(ctx context.Context, lines []script.Line, outDir string) ([]timeline.Clip, error) {
	if len(lines) == 0 {
		return nil, script.ErrEmptyScript
	}
	if err := os.MkdirAll(outDir, 0755); err != nil {
		return nil, fmt.Errorf("create segment dir: %w", err)
	}

	// Resolve every voice up front so a cast mistake fails before any call.
	voices := make([]string, len(lines))
	for i, l := range lines {
		if l.IsPlaceholder() {
			continue
		}
		v, err := s.cast.VoiceFor(l.Speaker)
		if err != nil {
			return nil, &LineError{Index: l.Index, Speaker: l.Speaker, Err: err}
		}
		voices[i] = v
	}

	clips := make([]timeline.Clip, len(lines))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)

	for i, l := range lines {
		clips[i] = timeline.Clip{Line: l}
		if l.IsPlaceholder() {
			continue
		}

		path := filepath.Join(outDir, SegmentName(l.Index, l.Speaker))
		voice := voices[i]
		g.Go(func() error {
			audio, err := s.speech.Synthesize(gctx, l.Text, voice)
			if err == nil && len(audio) == 0 {
				err = errors.New("speech service returned no audio")
			}
			if err != nil {
				return &LineError{Index: l.Index, Speaker: l.Speaker, Err: err}
			}
			if err := os.WriteFile(path, audio, 0644); err != nil {
				return &LineError{Index: l.Index, Speaker: l.Speaker, Err: fmt.Errorf("write segment: %w", err)}
			}
			// Each goroutine owns exactly one slot.
			clips[i].Source = path
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	s.logger.Info("synthesis complete", "lines", len(lines), "dir", logging.SanitizePath(outDir))
	return clips, nil
}
