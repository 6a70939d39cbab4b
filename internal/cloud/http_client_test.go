package cloud

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func writeVideo(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "render-1.mp4")
	if err := os.WriteFile(p, []byte("fake mp4 bytes"), 0644); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestHTTPClient_Upload_Success(t *testing.T) {
	var (
		gotAuth  string
		gotTitle string
		gotFile  string
		gotName  string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/videos" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		if r.Header.Get("X-Heimdex-Request-Id") == "" {
			t.Error("missing request id")
		}
		gotAuth = r.Header.Get("Authorization")

		if err := r.ParseMultipartForm(1 << 20); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotTitle = r.FormValue("title")
		f, hdr, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("form file: %v", err)
		}
		data, _ := io.ReadAll(f)
		gotFile = string(data)
		gotName = hdr.Filename

		json.NewEncoder(w).Encode(UploadResult{Key: "videos/render-1.mp4", URL: "https://cdn/render-1.mp4"})
	}))
	defer server.Close()

	client := NewHTTPClient(server.URL+"/", "test-token", testLogger())
	res, err := client.Upload(context.Background(), UploadRequest{
		RenderID: "render-1",
		Path:     writeVideo(t),
		Title:    "Photosynthesis",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if res.Key != "videos/render-1.mp4" {
		t.Errorf("key = %s", res.Key)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("auth = %q", gotAuth)
	}
	if gotTitle != "Photosynthesis" {
		t.Errorf("title = %q", gotTitle)
	}
	if gotFile != "fake mp4 bytes" || gotName != "render-1.mp4" {
		t.Errorf("file %q name %q", gotFile, gotName)
	}
}

func TestHTTPClient_Upload_Errors(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"server error", http.StatusBadGateway, true},
		{"throttled", http.StatusTooManyRequests, true},
		{"bad request", http.StatusBadRequest, false},
		{"unauthorized", http.StatusUnauthorized, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				io.Copy(io.Discard, r.Body)
				w.WriteHeader(tt.status)
				w.Write([]byte(`{"error":"nope"}`))
			}))
			defer server.Close()

			client := NewHTTPClient(server.URL, "tok", testLogger())
			_, err := client.Upload(context.Background(), UploadRequest{Path: writeVideo(t)})

			var ue *UploadError
			if !errors.As(err, &ue) {
				t.Fatalf("expected UploadError, got %v", err)
			}
			if ue.StatusCode != tt.status || ue.IsRetryable() != tt.retryable {
				t.Errorf("status=%d retryable=%v", ue.StatusCode, ue.IsRetryable())
			}
		})
	}
}

func TestHTTPClient_Upload_MissingKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.Copy(io.Discard, r.Body)
		w.Write([]byte(`{}`))
	}))
	defer server.Close()

	_, err := NewHTTPClient(server.URL, "", testLogger()).Upload(context.Background(), UploadRequest{Path: writeVideo(t)})
	if err == nil {
		t.Error("expected error for response without key")
	}
}

func TestHTTPClient_Upload_MissingFile(t *testing.T) {
	client := NewHTTPClient("http://127.0.0.1:1", "", testLogger())
	if _, err := client.Upload(context.Background(), UploadRequest{Path: "/does/not/exist.mp4"}); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNewUploader(t *testing.T) {
	if NewUploader(false, "", "", nil).Enabled() {
		t.Error("disabled config should give the stub")
	}
	if !NewUploader(true, "http://x", "t", nil).Enabled() {
		t.Error("enabled config should give the HTTP client")
	}

	res, err := NewStubUploader(nil).Upload(context.Background(), UploadRequest{RenderID: "r"})
	if err != nil || res.Key != "" {
		t.Errorf("stub upload: %+v %v", res, err)
	}
}
