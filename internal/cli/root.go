// Package cli is the shorts command line: one-off renders, timelines and
// captions without the agent.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/heimdex/heimdex-shorts/internal/config"
	"github.com/heimdex/heimdex-shorts/internal/logging"
)

// NewRootCmd builds the command tree. Each call returns a fresh tree so
// flags do not leak between invocations.
func NewRootCmd() *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "shorts",
		Short: "Render narrated short videos from dialogue scripts",
		Long: `Shorts synthesizes a dialogue script line by line, reconciles the clip timeline
against the concatenated audio and composites captions and speaker portraits
over a background video.`,
		Version:       config.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	env := &environment{logLevel: &logLevel, stderr: root.ErrOrStderr}
	root.AddCommand(
		newRenderCmd(env),
		newTimelineCmd(env),
		newCaptionsCmd(env),
		newDoctorCmd(env),
		newCastCmd(env),
		newGenerateCmd(env),
	)
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// environment resolves configuration and logging once flags are parsed.
type environment struct {
	logLevel *string
	stderr   func() io.Writer
}

func (e *environment) load() (config.Config, *slog.Logger, error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	level := cfg.LogLevel()
	if *e.logLevel != "" {
		level = *e.logLevel
	}
	return cfg, logging.NewTextLogger(e.stderr(), level), nil
}
