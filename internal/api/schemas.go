package api

import (
	"time"

	"github.com/heimdex/heimdex-shorts/internal/catalog"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/script"
)

type HealthResponse struct {
	Status   string `json:"status"`
	Version  string `json:"version"`
	UptimeS  int64  `json:"uptime_s"`
	DeviceID string `json:"device_id"`
}

type StatusResponse struct {
	State       string               `json:"state"`
	LastError   string               `json:"last_error,omitempty"`
	RunnerState string               `json:"runner"`
	JobsRunning int                  `json:"jobs_running"`
	ActiveJob   *JobResponse         `json:"active_job,omitempty"`
	Media       *MediaStatusResponse `json:"media,omitempty"`
	Subscribers int                  `json:"event_subscribers"`
}

type MediaStatusResponse struct {
	CanRender     bool     `json:"can_render"`
	FFmpeg        string   `json:"ffmpeg,omitempty"`
	FFprobe       string   `json:"ffprobe,omitempty"`
	MissingFilter []string `json:"missing_filters,omitempty"`
	LastProbeAt   string   `json:"last_probe_at,omitempty"`
}

type CreateRenderResponse struct {
	RenderID string `json:"render_id"`
	JobID    string `json:"job_id"`
}

type GenerateScriptRequest struct {
	SourceText string `json:"source_text"`
	Render     bool   `json:"render,omitempty"`
	Title      string `json:"title,omitempty"`
}

type GenerateScriptResponse struct {
	Lines    []script.Line `json:"lines"`
	RenderID string        `json:"render_id,omitempty"`
	JobID    string        `json:"job_id,omitempty"`
}

type RenderResponse struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	Status     string  `json:"status"`
	Background string  `json:"background,omitempty"`
	Lines      int     `json:"lines"`
	DurationS  float64 `json:"duration_s"`
	HasVideo   bool    `json:"has_video"`
	RemoteKey  string  `json:"remote_key,omitempty"`
	Error      string  `json:"error,omitempty"`
	CreatedAt  string  `json:"created_at"`
	UpdatedAt  string  `json:"updated_at"`
}

type RendersResponse struct {
	Renders []RenderResponse `json:"renders"`
}

type JobResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Status    string `json:"status"`
	RenderID  string `json:"render_id,omitempty"`
	Stage     string `json:"stage,omitempty"`
	Progress  int    `json:"progress"`
	Attempts  int    `json:"attempts,omitempty"`
	Error     string `json:"error,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

type JobsResponse struct {
	Jobs []JobResponse `json:"jobs"`
}

type RunnerResponse struct {
	Paused bool `json:"paused"`
}

type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func RenderToResponse(r *catalog.Render) RenderResponse {
	return RenderResponse{
		ID:         r.ID,
		Title:      r.Title,
		Status:     r.Status,
		Background: r.Background,
		Lines:      len(r.Script),
		DurationS:  float64(r.TotalDurationMs) / 1000,
		HasVideo:   r.VideoPath != "",
		RemoteKey:  r.RemoteKey,
		Error:      r.Error,
		CreatedAt:  r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:  r.UpdatedAt.Format(time.RFC3339),
	}
}

func JobToResponse(j *catalog.Job) JobResponse {
	return JobResponse{
		ID:        j.ID,
		Type:      j.Type,
		Status:    j.Status,
		RenderID:  j.RenderID,
		Stage:     j.Stage,
		Progress:  j.Progress,
		Attempts:  j.Attempts,
		Error:     j.Error,
		CreatedAt: j.CreatedAt.Format(time.RFC3339),
		UpdatedAt: j.UpdatedAt.Format(time.RFC3339),
	}
}

func MediaToResponse(c *media.Capabilities) *MediaStatusResponse {
	if c == nil || c.ProbedAt.IsZero() {
		return nil
	}
	resp := &MediaStatusResponse{
		CanRender:   c.CanRender,
		FFmpeg:      c.FFmpeg.Version,
		FFprobe:     c.FFprobe.Version,
		LastProbeAt: c.ProbedAt.Format(time.RFC3339),
	}
	for _, f := range media.RequiredFilters {
		if !c.Filters[f] {
			resp.MissingFilter = append(resp.MissingFilter, f)
		}
	}
	return resp
}
