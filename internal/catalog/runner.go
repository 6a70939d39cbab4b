package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/cloud"
	"github.com/heimdex/heimdex-shorts/internal/events"
	"github.com/heimdex/heimdex-shorts/internal/logging"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/pipeline"
)

type RenderPipeline interface {
	Run(ctx context.Context, req pipeline.Request) (*pipeline.Result, error)
}

// Doctor reports whether the media toolchain can render; *media.CachedDoctor
// implements it.
type Doctor interface {
	Get(ctx context.Context) (*media.Capabilities, error)
}

type RunnerOptions struct {
	Uploader     cloud.Uploader
	Doctor       Doctor
	Events       Publisher
	Background   string
	PollInterval time.Duration
	Logger       *slog.Logger
}

type Runner struct {
	service      *Service
	repo         Repository
	pipe         RenderPipeline
	uploader     cloud.Uploader
	doctor       Doctor
	events       Publisher
	background   string
	logger       *slog.Logger
	pollInterval time.Duration
	running      atomic.Bool
	paused       atomic.Bool
}

func NewRunner(service *Service, repo Repository, pipe RenderPipeline, opts RunnerOptions) *Runner {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 2 * time.Second
	}
	return &Runner{
		service:      service,
		repo:         repo,
		pipe:         pipe,
		uploader:     opts.Uploader,
		doctor:       opts.Doctor,
		events:       opts.Events,
		background:   opts.Background,
		logger:       logging.WithComponent(logging.OrDiscard(opts.Logger), "runner"),
		pollInterval: opts.PollInterval,
	}
}

func (r *Runner) Start(ctx context.Context) {
	if r.running.Swap(true) {
		return
	}

	r.logger.Info("job runner started")

	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("job runner stopping")
			r.running.Store(false)
			return
		case <-ticker.C:
			if !r.paused.Load() {
				r.processNextJob(ctx)
			}
		}
	}
}

func (r *Runner) Pause() {
	r.paused.Store(true)
	r.logger.Info("job runner paused")
}

func (r *Runner) Resume() {
	r.paused.Store(false)
	r.logger.Info("job runner resumed")
}

func (r *Runner) IsPaused() bool {
	return r.paused.Load()
}

func (r *Runner) IsRunning() bool {
	return r.running.Load()
}

func (r *Runner) publish(e events.Event) {
	if r.events != nil {
		r.events.Publish(e)
	}
}

// processNextJob runs the oldest pending job, if any. It reports whether a
// job was taken.
func (r *Runner) processNextJob(ctx context.Context) bool {
	jobs, err := r.repo.ListPendingJobs(ctx)
	if err != nil {
		r.logger.Error("failed to list pending jobs", "error", err)
		return false
	}
	if len(jobs) == 0 {
		return false
	}

	job := jobs[0]
	logger := logging.WithJobID(r.logger, job.ID)
	logger.Info("processing job", "type", job.Type, "render_id", job.RenderID)

	switch job.Type {
	case JobTypeRender:
		r.processRender(ctx, job, logger)
	case JobTypeUpload:
		r.processUpload(ctx, job, logger)
	default:
		logger.Warn("unknown job type", "type", job.Type)
		r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, "unknown job type")
	}
	return true
}

func (r *Runner) failJob(ctx context.Context, job *Job, renderFailed bool, msg string) {
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusFailed, msg)
	if renderFailed && job.RenderID != "" {
		r.repo.UpdateRenderStatus(ctx, job.RenderID, RenderStatusFailed, msg)
	}
	r.publish(events.Event{Type: events.TypeJobFailed, JobID: job.ID, RenderID: job.RenderID, Stage: job.Stage, Error: msg})
}

func (r *Runner) processRender(ctx context.Context, job *Job, logger *slog.Logger) {
	render, err := r.repo.GetRender(ctx, job.RenderID)
	if err != nil || render == nil {
		r.failJob(ctx, job, false, "render not found")
		return
	}

	if r.doctor != nil {
		caps, err := r.doctor.Get(ctx)
		if err != nil {
			r.failJob(ctx, job, true, fmt.Sprintf("doctor probe failed: %v", err))
			return
		}
		if !caps.CanRender {
			r.failJob(ctx, job, true, "ffmpeg is missing required filters or encoders")
			return
		}
	}

	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")
	r.repo.UpdateRenderStatus(ctx, render.ID, RenderStatusRunning, "")

	background := render.Background
	if background == "" {
		background = r.background
	}

	res, err := r.pipe.Run(ctx, pipeline.Request{
		RunID:      render.ID,
		Lines:      render.Script,
		Background: background,
		Observer: func(e pipeline.Event) {
			if e.State == pipeline.StateFailed || e.State == pipeline.StateDone {
				return
			}
			job.Stage = string(e.State)
			r.repo.UpdateJobStage(ctx, job.ID, job.Stage, e.Progress)
			r.publish(events.Event{Type: events.TypeJobStage, JobID: job.ID, RenderID: render.ID, Stage: job.Stage, Progress: e.Progress})
		},
	})
	if err != nil {
		logger.Error("render failed", "error", err)
		r.failJob(ctx, job, true, err.Error())
		return
	}

	render.AudioPath = res.AudioPath
	render.VideoPath = res.VideoPath
	render.Background = res.Background
	render.Timeline = res.Timeline
	render.TotalDurationMs = res.Duration.Milliseconds()
	if err := r.repo.SaveRenderResult(ctx, render); err != nil {
		r.failJob(ctx, job, true, fmt.Sprintf("save render result: %v", err))
		return
	}

	r.repo.UpdateJobStage(ctx, job.ID, string(pipeline.StateDone), 100)
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
	r.publish(events.Event{Type: events.TypeJobDone, JobID: job.ID, RenderID: render.ID, Stage: string(pipeline.StateDone), Progress: 100})
	logger.Info("render completed", "render_id", render.ID, "duration_ms", render.TotalDurationMs)

	if r.uploader != nil && r.uploader.Enabled() {
		if _, err := r.service.EnqueueUpload(ctx, render.ID); err != nil {
			logger.Warn("failed to enqueue upload", "error", err)
		}
	}
}

func (r *Runner) processUpload(ctx context.Context, job *Job, logger *slog.Logger) {
	if r.uploader == nil {
		r.failJob(ctx, job, false, "uploader not configured")
		return
	}
	render, err := r.repo.GetRender(ctx, job.RenderID)
	if err != nil || render == nil {
		r.failJob(ctx, job, false, "render not found")
		return
	}
	if render.VideoPath == "" {
		r.failJob(ctx, job, false, "render has no video")
		return
	}

	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusRunning, "")

	res, err := r.uploader.Upload(ctx, cloud.UploadRequest{
		RenderID: render.ID,
		Path:     render.VideoPath,
		Title:    render.Title,
	})
	if err != nil {
		var ue *cloud.UploadError
		if errors.As(err, &ue) && ue.IsRetryable() && job.Attempts+1 < MaxUploadAttempts {
			logger.Warn("upload failed, will retry", "attempt", job.Attempts+1, "error", err)
			r.repo.RetryJob(ctx, job.ID, err.Error())
			return
		}
		logger.Error("upload failed", "error", err)
		r.failJob(ctx, job, false, err.Error())
		return
	}

	if err := r.repo.SetRenderRemoteKey(ctx, render.ID, res.Key); err != nil {
		r.failJob(ctx, job, false, fmt.Sprintf("save remote key: %v", err))
		return
	}
	r.repo.UpdateJobStatus(ctx, job.ID, JobStatusCompleted, "")
	r.publish(events.Event{Type: events.TypeJobDone, JobID: job.ID, RenderID: render.ID, Progress: 100})
	logger.Info("upload completed", "render_id", render.ID, "key", res.Key)
}
