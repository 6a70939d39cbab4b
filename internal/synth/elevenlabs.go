package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/logging"
)

const (
	DefaultBaseURL      = "https://api.elevenlabs.io"
	DefaultModel        = "eleven_multilingual_v2"
	DefaultOutputFormat = "mp3_44100_128"

	maxAudioBytes = 32 * 1024 * 1024
)

// SpeechError is a non-2xx response from the speech service.
type SpeechError struct {
	StatusCode int
	Body       string
}

func (e *SpeechError) Error() string {
	return fmt.Sprintf("speech synthesis failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx) and rate limiting.
func (e *SpeechError) IsRetryable() bool {
	return e.StatusCode >= 500 || e.StatusCode == http.StatusTooManyRequests
}

// ElevenLabs calls the ElevenLabs text-to-speech endpoint.
type ElevenLabs struct {
	baseURL      string
	apiKey       string
	model        string
	outputFormat string
	httpClient   *http.Client
	logger       *slog.Logger
}

func NewElevenLabs(baseURL, apiKey, model string, logger *slog.Logger) *ElevenLabs {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if model == "" {
		model = DefaultModel
	}
	return &ElevenLabs{
		baseURL:      strings.TrimRight(baseURL, "/"),
		apiKey:       apiKey,
		model:        model,
		outputFormat: DefaultOutputFormat,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
		logger: logging.WithComponent(logging.OrDiscard(logger), "elevenlabs"),
	}
}

type ttsRequest struct {
	Text    string `json:"text"`
	ModelID string `json:"model_id"`
}

// Synthesize returns MP3 bytes for text spoken by voiceID.
func (c *ElevenLabs) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	if voiceID == "" {
		return nil, fmt.Errorf("voice id is required")
	}

	body, err := json.Marshal(ttsRequest{Text: text, ModelID: c.model})
	if err != nil {
		return nil, fmt.Errorf("marshal tts request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/v1/text-to-speech/%s?output_format=%s",
		c.baseURL, url.PathEscape(voiceID), url.QueryEscape(c.outputFormat))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "audio/mpeg")
	req.Header.Set("xi-api-key", c.apiKey)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &SpeechError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxAudioBytes))
	if err != nil {
		return nil, fmt.Errorf("read audio: %w", err)
	}

	c.logger.Debug("speech synthesized",
		"voice", voiceID,
		"chars", len(text),
		"bytes", len(audio),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return audio, nil
}
