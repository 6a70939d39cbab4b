// Package pipeline runs one render end to end: synthesize segments,
// concatenate and reconcile the narration, then composite the video.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-shorts/internal/compose"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

type Synthesizer interface {
	Synthesize(ctx context.Context, lines []script.Line, outDir string) ([]timeline.Clip, error)
}

type TimelineBuilder interface {
	Concatenate(ctx context.Context, clips []timeline.Clip, scratchDir, outPath string) (*timeline.Assembly, error)
	Reconcile(ctx context.Context, a *timeline.Assembly) *timeline.Timeline
}

type Compositor interface {
	Render(ctx context.Context, req compose.Request) (*compose.Result, error)
}

// Event is emitted on every state change of a run.
type Event struct {
	RunID    string
	State    State
	Progress int
	Err      error
}

// Observer receives run events synchronously; it must not block.
type Observer func(Event)

type Config struct {
	// WorkDir holds per-run scratch under runs/<run-id>.
	WorkDir string
	// OutputDir receives <run-id>.mp3 and <run-id>.mp4 when the request
	// leaves the paths empty.
	OutputDir    string
	KeepSegments bool
	Logger       *slog.Logger
	Observer     Observer
}

type Request struct {
	RunID      string
	Lines      []script.Line
	Background string
	AudioPath  string
	VideoPath  string
	// TimelineOnly stops after reconciliation.
	TimelineOnly bool
	// Observer receives this run's events after the configured observer.
	Observer Observer
}

type Result struct {
	RunID      string
	AudioPath  string
	VideoPath  string
	Background string
	Timeline   *timeline.Timeline
	Duration   time.Duration
	History    []Transition
}

// StageError names the state a run failed in.
type StageError struct {
	State State
	Err   error
}

func (e *StageError) Error() string { return fmt.Sprintf("%s: %v", e.State, e.Err) }
func (e *StageError) Unwrap() error { return e.Err }

type Pipeline struct {
	synth      Synthesizer
	builder    TimelineBuilder
	compositor Compositor
	cfg        Config
	logger     *slog.Logger
}

func New(s Synthesizer, b TimelineBuilder, c Compositor, cfg Config) *Pipeline {
	return &Pipeline{
		synth:      s,
		builder:    b,
		compositor: c,
		cfg:        cfg,
		logger:     logging.WithComponent(logging.OrDiscard(cfg.Logger), "pipeline"),
	}
}

// RunDir is the scratch directory of a run.
func (p *Pipeline) RunDir(runID string) string {
	return filepath.Join(p.cfg.WorkDir, "runs", runID)
}

// Run executes the stages in order. The run's scratch directory is removed
// when Run returns, except for segments when KeepSegments is set.
func (p *Pipeline) Run(ctx context.Context, req Request) (*Result, error) {
	if err := script.Validate(req.Lines); err != nil {
		return nil, err
	}
	if req.RunID == "" {
		req.RunID = uuid.New().String()
	}
	if req.AudioPath == "" {
		req.AudioPath = filepath.Join(p.cfg.OutputDir, req.RunID+".mp3")
	}
	if req.VideoPath == "" && !req.TimelineOnly {
		req.VideoPath = filepath.Join(p.cfg.OutputDir, req.RunID+".mp4")
	}

	logger := logging.WithRunID(p.logger, req.RunID)
	tracker := NewTracker()
	runDir := p.RunDir(req.RunID)
	segDir := filepath.Join(runDir, "segments")
	defer p.cleanup(runDir, logger)

	for _, out := range []string{req.AudioPath, req.VideoPath} {
		if out == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(out), 0755); err != nil {
			return nil, fmt.Errorf("create output dir: %w", err)
		}
	}

	res := &Result{RunID: req.RunID}
	fail := func(err error) (*Result, error) {
		state := tracker.State()
		tracker.Fail(err)
		p.emit(req, Event{RunID: req.RunID, State: StateFailed, Progress: state.Progress(), Err: err})
		logger.Error("render run failed", "state", state, "error", err)
		os.Remove(req.AudioPath)
		if req.VideoPath != "" {
			os.Remove(req.VideoPath)
		}
		return nil, &StageError{State: state, Err: err}
	}

	if err := p.advance(tracker, req, StateSynthesizing); err != nil {
		return fail(err)
	}
	clips, err := p.synth.Synthesize(ctx, req.Lines, segDir)
	if err != nil {
		return fail(err)
	}

	if err := p.advance(tracker, req, StateConcatenating); err != nil {
		return fail(err)
	}
	assembly, err := p.builder.Concatenate(ctx, clips, runDir, req.AudioPath)
	if err != nil {
		return fail(err)
	}

	if err := p.advance(tracker, req, StateReconciling); err != nil {
		return fail(err)
	}
	tl := p.builder.Reconcile(ctx, assembly)
	if err := tl.Validate(); err != nil {
		return fail(err)
	}
	res.AudioPath = tl.AudioPath
	res.Timeline = tl
	res.Duration = tl.Total

	if !req.TimelineOnly {
		if err := p.advance(tracker, req, StateCompositing); err != nil {
			return fail(err)
		}
		out, err := p.compositor.Render(ctx, compose.Request{
			Background: req.Background,
			AudioPath:  tl.AudioPath,
			Timeline:   tl,
			OutPath:    req.VideoPath,
			ScratchDir: filepath.Join(runDir, "captions"),
		})
		if err != nil {
			return fail(err)
		}
		res.VideoPath = out.VideoPath
		res.Background = out.Background
		res.Duration = out.Duration
	}

	if err := p.advance(tracker, req, StateDone); err != nil {
		return fail(err)
	}
	res.History = tracker.History()

	logger.Info("render run complete",
		"intervals", len(tl.Intervals),
		"duration_ms", res.Duration.Milliseconds(),
		"scaled", tl.Scaled,
		"video", logging.SanitizePath(res.VideoPath),
	)
	return res, nil
}

func (p *Pipeline) advance(t *Tracker, req Request, next State) error {
	if err := t.Advance(next); err != nil {
		return err
	}
	p.emit(req, Event{RunID: req.RunID, State: next, Progress: next.Progress()})
	return nil
}

func (p *Pipeline) emit(req Request, e Event) {
	if p.cfg.Observer != nil {
		p.cfg.Observer(e)
	}
	if req.Observer != nil {
		req.Observer(e)
	}
}

func (p *Pipeline) cleanup(runDir string, logger *slog.Logger) {
	if !p.cfg.KeepSegments {
		if err := os.RemoveAll(runDir); err != nil {
			logger.Warn("failed to remove run scratch", "error", err)
		}
		return
	}

	entries, err := os.ReadDir(runDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logger.Warn("failed to read run scratch", "error", err)
		}
		return
	}
	for _, e := range entries {
		if e.Name() == "segments" {
			continue
		}
		os.RemoveAll(filepath.Join(runDir, e.Name()))
	}
	logger.Debug("kept run segments", "dir", logging.SanitizePath(runDir))
}
