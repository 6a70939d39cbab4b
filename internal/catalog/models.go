package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

var (
	ErrNotFound = errors.New("not found")
	ErrNotReady = errors.New("render not finished")

	// ErrInvalidScript wraps script validation and parse failures.
	ErrInvalidScript = errors.New("invalid script")
)

const (
	RenderStatusPending   = "pending"
	RenderStatusRunning   = "running"
	RenderStatusCompleted = "completed"
	RenderStatusFailed    = "failed"
)

type Render struct {
	ID              string             `json:"id"`
	Title           string             `json:"title"`
	Status          string             `json:"status"`
	Background      string             `json:"background,omitempty"`
	Script          []script.Line      `json:"script"`
	AudioPath       string             `json:"audio_path,omitempty"`
	VideoPath       string             `json:"video_path,omitempty"`
	Timeline        *timeline.Timeline `json:"timeline,omitempty"`
	TotalDurationMs int64              `json:"total_duration_ms"`
	RemoteKey       string             `json:"remote_key,omitempty"`
	Error           string             `json:"error,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
}

func (r *Render) IsFinished() bool {
	return r.Status == RenderStatusCompleted
}

const (
	JobTypeRender = "render"
	JobTypeUpload = "upload"

	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
)

// MaxUploadAttempts bounds retries of a retryable upload failure.
const MaxUploadAttempts = 3

type Job struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	RenderID  string    `json:"render_id,omitempty"`
	Stage     string    `json:"stage,omitempty"`
	Progress  int       `json:"progress"`
	Attempts  int       `json:"attempts"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ConfigEntry struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

func NewID() string {
	return uuid.New().String()
}
