package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/heimdex/heimdex-shorts/internal/catalog"
	"github.com/heimdex/heimdex-shorts/internal/logging"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	cfg.Logger = logging.OrDiscard(cfg.Logger)
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(CORSAllowlist())
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Config, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/runner/pause", runnerHandler(cfg, true))
		r.Post("/runner/resume", runnerHandler(cfg, false))

		r.Post("/scripts/generate", generateScriptHandler(cfg))

		r.Post("/renders", createRenderHandler(cfg))
		r.Get("/renders", listRendersHandler(cfg))
		r.Get("/renders/{id}", getRenderHandler(cfg))
		r.Get("/renders/{id}/timeline", timelineHandler(cfg))
		r.Get("/renders/{id}/captions.{format}", captionsHandler(cfg))
		r.Post("/renders/{id}/export", exportHandler(cfg))

		r.Get("/jobs", listJobsHandler(cfg))
		r.Get("/jobs/{id}", getJobHandler(cfg))

		r.Get("/events", eventsHandler(cfg))
	})

	// Playback is for local players only and is token-checked like the rest.
	r.Group(func(r chi.Router) {
		r.Use(LoopbackGuard())
		r.Use(AuthMiddleware(cfg.Config, cfg.Logger))

		r.Get("/renders/{id}/video", mediaHandler(cfg, mediaVideo))
		r.Head("/renders/{id}/video", mediaHandler(cfg, mediaVideo))
		r.Get("/renders/{id}/audio", mediaHandler(cfg, mediaAudio))
		r.Head("/renders/{id}/audio", mediaHandler(cfg, mediaAudio))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		version := cfg.Version
		if version == "" {
			version = "dev"
		}
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  version,
			UptimeS:  int64(time.Since(cfg.StartTime).Seconds()),
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, _ := cfg.Service.ListJobs(r.Context(), 10)

		state := "idle"
		runner := "running"
		var activeJob *JobResponse
		jobsRunning := 0
		lastError := ""

		if cfg.Runner != nil && cfg.Runner.IsPaused() {
			state = "paused"
			runner = "paused"
		}

		for _, j := range jobs {
			if j.Status == catalog.JobStatusRunning {
				state = "rendering"
				if activeJob == nil {
					resp := JobToResponse(j)
					activeJob = &resp
				}
				jobsRunning++
			}
			if j.Status == catalog.JobStatusFailed && lastError == "" {
				lastError = j.Error
			}
		}

		if lastError != "" && state == "idle" {
			state = "error"
		}

		resp := StatusResponse{
			State:       state,
			LastError:   lastError,
			RunnerState: runner,
			JobsRunning: jobsRunning,
			ActiveJob:   activeJob,
		}
		// Peek never spawns a probe; the runner refreshes the cache.
		if cfg.Doctor != nil {
			resp.Media = MediaToResponse(cfg.Doctor.Peek())
		}
		if cfg.Events != nil {
			resp.Subscribers = cfg.Events.Subscribers()
		}

		WriteJSON(w, http.StatusOK, resp)
	}
}

func runnerHandler(cfg ServerConfig, pause bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if cfg.Runner == nil {
			WriteError(w, http.StatusServiceUnavailable, "runner not available", "UNAVAILABLE")
			return
		}
		if pause {
			cfg.Runner.Pause()
		} else {
			cfg.Runner.Resume()
		}
		WriteJSON(w, http.StatusOK, RunnerResponse{Paused: cfg.Runner.IsPaused()})
	}
}

func listJobsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		jobs, err := cfg.Service.ListJobs(r.Context(), 50)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, "failed to list jobs", "INTERNAL_ERROR")
			return
		}

		resp := JobsResponse{Jobs: make([]JobResponse, len(jobs))}
		for i, j := range jobs {
			resp.Jobs[i] = JobToResponse(j)
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

func getJobHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		job, err := cfg.Service.GetJob(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			writeServiceError(w, err, "job")
			return
		}
		WriteJSON(w, http.StatusOK, JobToResponse(job))
	}
}

// writeServiceError maps catalog sentinels onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error, what string) {
	switch {
	case errors.Is(err, catalog.ErrNotFound):
		WriteError(w, http.StatusNotFound, what+" not found", "NOT_FOUND")
	case errors.Is(err, catalog.ErrNotReady):
		WriteError(w, http.StatusConflict, "render has not finished", "NOT_READY")
	case errors.Is(err, catalog.ErrInvalidScript):
		WriteError(w, http.StatusBadRequest, err.Error(), "INVALID_SCRIPT")
	default:
		WriteError(w, http.StatusInternalServerError, err.Error(), "INTERNAL_ERROR")
	}
}
