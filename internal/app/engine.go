// Package app assembles the render engine from configuration. Both the
// agent and the CLI build their pipeline here.
package app

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/heimdex/heimdex-shorts/internal/cast"
	"github.com/heimdex/heimdex-shorts/internal/compose"
	"github.com/heimdex/heimdex-shorts/internal/config"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/pipeline"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/synth"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

type Engine struct {
	Tool     *media.FFmpeg
	Doctor   *media.CachedDoctor
	Cast     cast.Cast
	Pipeline *pipeline.Pipeline
}

// LoadCast reads the configured cast file and applies asset root and voice
// overrides from the environment.
func LoadCast(cfg config.Config) (cast.Cast, error) {
	c, err := cast.Load(cfg.CastFile())
	if err != nil {
		return cast.Cast{}, err
	}
	if root := cfg.AssetRoot(); root != "" {
		c.AssetRoot = root
	}
	for speaker, voice := range cfg.Voices() {
		c.SetVoice(script.Speaker(speaker), voice)
	}
	return c, nil
}

// NewTool resolves ffmpeg and ffprobe with the configured timeouts.
func NewTool(cfg config.Config, logger *slog.Logger) (*media.FFmpeg, error) {
	mc := media.DefaultConfig(logger)
	mc.FFmpegPath = cfg.FFmpegBin()
	mc.FFprobePath = cfg.FFprobeBin()
	mc.ProbeTimeout = cfg.TimeoutProbe()
	mc.ConcatTimeout = cfg.TimeoutConcat()
	mc.RenderTimeout = cfg.TimeoutRender()
	mc.DoctorTimeout = cfg.TimeoutDoctor()
	mc.DebugPaths = cfg.LogLevel() == "debug"
	return media.NewFFmpeg(mc)
}

// NewEngine wires synthesis, timeline building and compositing into one
// pipeline.
func NewEngine(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	logger = logging.OrDiscard(logger)

	tool, err := NewTool(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("media tool: %w", err)
	}
	c, err := LoadCast(cfg)
	if err != nil {
		return nil, fmt.Errorf("cast: %w", err)
	}
	if cfg.ElevenLabsAPIKey() == "" {
		logger.Warn("no speech API key configured, synthesis requests will be rejected",
			"env", config.EnvElevenLabsKey)
	}
	if missing := c.MissingVoices(); len(missing) > 0 {
		logger.Warn("speakers have no voice id, their spoken lines will fail",
			"speakers", missing,
			"env_prefix", config.EnvVoicePrefix)
	}

	speech := synth.NewElevenLabs(cfg.ElevenLabsURL(), cfg.ElevenLabsAPIKey(), cfg.ElevenLabsModel(), logger)
	synthesizer := synth.New(speech, c, synth.Options{
		Concurrency: cfg.SynthConcurrency(),
		Logger:      logger,
	})

	topts := timeline.DefaultOptions()
	topts.PauseDuration = cfg.PauseDuration()
	topts.OptionsDuration = cfg.OptionsDuration()
	topts.Logger = logger
	builder := timeline.NewBuilder(tool, topts)

	compositor := compose.New(tool, c, compose.Options{Logger: logger})

	p := pipeline.New(synthesizer, builder, compositor, pipeline.Config{
		WorkDir:      cfg.WorkDir(),
		OutputDir:    cfg.OutputDir(),
		KeepSegments: cfg.KeepSegments(),
		Logger:       logger,
	})

	return &Engine{
		Tool:     tool,
		Doctor:   media.NewCachedDoctor(tool, logger),
		Cast:     c,
		Pipeline: p,
	}, nil
}

// RunsDir is where per-run scratch directories live.
func RunsDir(cfg config.Config) string {
	return filepath.Join(cfg.WorkDir(), "runs")
}
