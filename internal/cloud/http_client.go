package cloud

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/heimdex/heimdex-shorts/internal/logging"
)

// HTTPClient uploads videos to the Heimdex video API as multipart forms.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 10 * time.Minute,
		},
		logger: logging.WithComponent(logging.OrDiscard(logger), "cloud"),
	}
}

func (c *HTTPClient) Enabled() bool { return true }

// Upload streams the file without buffering it in memory.
func (c *HTTPClient) Upload(ctx context.Context, up UploadRequest) (*UploadResult, error) {
	f, err := os.Open(up.Path)
	if err != nil {
		return nil, fmt.Errorf("open video: %w", err)
	}
	defer f.Close()

	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		pw.CloseWithError(writeForm(mw, f, up))
	}()

	url := c.baseURL + "/api/videos"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		pr.Close()
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-Heimdex-Request-Id", uuid.New().String())
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	c.logger.Info("uploading video to cloud",
		"url", url,
		"render_id", up.RenderID,
		"path", logging.SanitizePath(up.Path),
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &UploadError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var result UploadResult
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("decode upload response: %w", err)
	}
	if result.Key == "" {
		return nil, fmt.Errorf("upload response has no key")
	}

	c.logger.Info("video upload succeeded", "render_id", up.RenderID, "key", result.Key)
	return &result, nil
}

func writeForm(mw *multipart.Writer, f io.Reader, up UploadRequest) error {
	fields := [][2]string{
		{"render_id", up.RenderID},
		{"title", up.Title},
		{"description", up.Description},
	}
	for _, kv := range fields {
		if kv[1] == "" {
			continue
		}
		if err := mw.WriteField(kv[0], kv[1]); err != nil {
			return err
		}
	}
	part, err := mw.CreateFormFile("file", filepath.Base(up.Path))
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, f); err != nil {
		return err
	}
	return mw.Close()
}
