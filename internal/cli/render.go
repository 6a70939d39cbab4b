package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-shorts/internal/app"
	"github.com/heimdex/heimdex-shorts/internal/export"
	"github.com/heimdex/heimdex-shorts/internal/pipeline"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

type renderFlags struct {
	script     string
	background string
	audio      string
	video      string
	format     string
}

func newRenderCmd(env *environment) *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "render",
		Short: "Render a script into a captioned short video",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := runScript(cmd, env, f, false)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "video: %s\naudio: %s\nduration: %.2fs\n",
				res.VideoPath, res.AudioPath, res.Duration.Seconds())
			return nil
		},
	}
	cmd.Flags().StringVar(&f.script, "script", "", "script document (JSON)")
	cmd.Flags().StringVar(&f.background, "background", "", "background video file or directory")
	cmd.Flags().StringVar(&f.audio, "audio", "", "output audio path")
	cmd.Flags().StringVar(&f.video, "out", "", "output video path")
	cmd.MarkFlagRequired("script")
	return cmd
}

func newTimelineCmd(env *environment) *cobra.Command {
	var f renderFlags
	cmd := &cobra.Command{
		Use:   "timeline",
		Short: "Synthesize and concatenate a script, then print its timeline",
		Long: `Timeline stops after reconciliation: the concatenated audio is written and
the timeline is printed as JSON, or as srt, vtt or edl with --format.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if f.format != "json" && export.Extension(f.format) == "" {
				return fmt.Errorf("unknown format %q", f.format)
			}
			res, err := runScript(cmd, env, f, true)
			if err != nil {
				return err
			}
			title := strings.TrimSuffix(filepath.Base(f.script), filepath.Ext(f.script))
			return printTimeline(cmd.OutOrStdout(), res.Timeline, f.format, title)
		},
	}
	cmd.Flags().StringVar(&f.script, "script", "", "script document (JSON)")
	cmd.Flags().StringVar(&f.audio, "out", "", "output audio path")
	cmd.Flags().StringVar(&f.format, "format", "json", "output format (json, srt, vtt, edl)")
	cmd.MarkFlagRequired("script")
	return cmd
}

func newCaptionsCmd(env *environment) *cobra.Command {
	var format, title string
	cmd := &cobra.Command{
		Use:   "captions <timeline.json>",
		Short: "Convert a saved timeline to srt, vtt or edl",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var tl timeline.Timeline
			if err := json.Unmarshal(data, &tl); err != nil {
				return fmt.Errorf("decode timeline: %w", err)
			}
			if len(tl.Intervals) == 0 {
				return fmt.Errorf("%s has no intervals", args[0])
			}
			if title == "" {
				title = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
			}
			return printTimeline(cmd.OutOrStdout(), &tl, format, title)
		},
	}
	cmd.Flags().StringVar(&format, "format", export.FormatSRT, "output format (srt, vtt, edl)")
	cmd.Flags().StringVar(&title, "title", "", "EDL title")
	return cmd
}

func printTimeline(w io.Writer, tl *timeline.Timeline, format, title string) error {
	if format == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(tl)
	}
	doc, _, err := export.Generate(tl, format, title, tl.AudioPath, 0)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, doc)
	return err
}

func runScript(cmd *cobra.Command, env *environment, f renderFlags, timelineOnly bool) (*pipeline.Result, error) {
	data, err := os.ReadFile(f.script)
	if err != nil {
		return nil, err
	}
	lines, err := script.ParseDocument(data)
	if err != nil {
		return nil, err
	}

	cfg, logger, err := env.load()
	if err != nil {
		return nil, err
	}
	engine, err := app.NewEngine(cfg, logger)
	if err != nil {
		return nil, err
	}

	background := f.background
	if background == "" {
		background = cfg.Background()
	}

	ctx, stop := signal.NotifyContext(contextOrBackground(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stderr := cmd.ErrOrStderr()
	return engine.Pipeline.Run(ctx, pipeline.Request{
		RunID:        uuid.New().String(),
		Lines:        lines,
		Background:   background,
		AudioPath:    f.audio,
		VideoPath:    f.video,
		TimelineOnly: timelineOnly,
		Observer: func(e pipeline.Event) {
			if e.Err != nil {
				fmt.Fprintf(stderr, "%-14s %v\n", e.State, e.Err)
				return
			}
			fmt.Fprintf(stderr, "%-14s %3d%%\n", e.State, e.Progress)
		},
	})
}

// contextOrBackground guards commands executed without a context.
func contextOrBackground(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
