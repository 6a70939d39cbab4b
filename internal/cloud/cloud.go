// Package cloud hands finished videos to the remote video store.
package cloud

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/heimdex/heimdex-shorts/internal/logging"
)

// Uploader stores a rendered video remotely and returns its storage key.
type Uploader interface {
	Upload(ctx context.Context, req UploadRequest) (*UploadResult, error)
	Enabled() bool
}

type UploadRequest struct {
	RenderID    string
	Path        string
	Title       string
	Description string
}

type UploadResult struct {
	Key string `json:"key"`
	URL string `json:"url,omitempty"`
}

// UploadError represents a non-2xx answer from the video endpoint.
type UploadError struct {
	StatusCode int
	Body       string
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("video upload failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and throttling.
// Other client errors (4xx) are considered permanent.
func (e *UploadError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == 429
}

// StubUploader is used when cloud upload is disabled.
type StubUploader struct {
	logger *slog.Logger
}

func NewStubUploader(logger *slog.Logger) *StubUploader {
	return &StubUploader{logger: logging.WithComponent(logging.OrDiscard(logger), "cloud")}
}

func (s *StubUploader) Enabled() bool { return false }

func (s *StubUploader) Upload(ctx context.Context, req UploadRequest) (*UploadResult, error) {
	s.logger.Info("cloud stub: upload requested", "render_id", req.RenderID, "path", logging.SanitizePath(req.Path))
	return &UploadResult{}, nil
}

// NewUploader returns the HTTP client when enabled and the stub otherwise.
func NewUploader(enabled bool, baseURL, token string, logger *slog.Logger) Uploader {
	if !enabled {
		return NewStubUploader(logger)
	}
	return NewHTTPClient(baseURL, token, logger)
}
