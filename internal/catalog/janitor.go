package catalog

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/heimdex/heimdex-shorts/internal/logging"
)

// DefaultSweepSchedule runs the janitor hourly.
const DefaultSweepSchedule = "@every 1h"

// Janitor removes run scratch directories older than the retention window.
// Runs clean up after themselves; this catches crashes and kept segments.
type Janitor struct {
	runsDir   string
	retention time.Duration
	cron      *cron.Cron
	logger    *slog.Logger
}

func NewJanitor(runsDir string, retention time.Duration, logger *slog.Logger) *Janitor {
	return &Janitor{
		runsDir:   runsDir,
		retention: retention,
		cron:      cron.New(),
		logger:    logging.WithComponent(logging.OrDiscard(logger), "janitor"),
	}
}

// Start schedules sweeps; an empty schedule uses DefaultSweepSchedule.
func (j *Janitor) Start(schedule string) error {
	if schedule == "" {
		schedule = DefaultSweepSchedule
	}
	if _, err := j.cron.AddFunc(schedule, func() {
		j.Sweep(time.Now())
	}); err != nil {
		return err
	}
	j.cron.Start()
	j.logger.Info("janitor started", "schedule", schedule, "retention", j.retention.String())
	return nil
}

// Stop waits for a running sweep to finish.
func (j *Janitor) Stop() context.Context {
	return j.cron.Stop()
}

// Sweep deletes run directories last modified before now minus retention
// and returns how many were removed.
func (j *Janitor) Sweep(now time.Time) int {
	if j.retention <= 0 {
		return 0
	}
	entries, err := os.ReadDir(j.runsDir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			j.logger.Warn("cannot read runs dir", "error", err)
		}
		return 0
	}

	cutoff := now.Add(-j.retention)
	removed := 0
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		p := filepath.Join(j.runsDir, e.Name())
		if err := os.RemoveAll(p); err != nil {
			j.logger.Warn("failed to remove run dir", "run_id", e.Name(), "error", err)
			continue
		}
		removed++
	}
	if removed > 0 {
		j.logger.Info("removed expired run dirs", "count", removed)
	}
	return removed
}
