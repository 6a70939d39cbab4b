package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/catalog"
	"github.com/heimdex/heimdex-shorts/internal/media"
	"github.com/heimdex/heimdex-shorts/internal/playback"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

const testToken = "test-token"

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func decodeJSONBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()

	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

type fakeService struct {
	mu      sync.Mutex
	renders map[string]*catalog.Render
	jobs    []*catalog.Job
	created []catalog.RenderRequest
}

func newFakeService() *fakeService {
	return &fakeService{renders: make(map[string]*catalog.Render)}
}

func (f *fakeService) CreateRender(ctx context.Context, req catalog.RenderRequest) (*catalog.Render, *catalog.Job, error) {
	if err := script.Validate(req.Lines); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", catalog.ErrInvalidScript, err)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, req)
	r := &catalog.Render{ID: fmt.Sprintf("r%d", len(f.created)), Title: req.Title, Status: catalog.RenderStatusPending, Script: req.Lines}
	f.renders[r.ID] = r
	j := &catalog.Job{ID: "j-" + r.ID, Type: catalog.JobTypeRender, Status: catalog.JobStatusPending, RenderID: r.ID}
	f.jobs = append(f.jobs, j)
	return r, j, nil
}

func (f *fakeService) GetRender(ctx context.Context, id string) (*catalog.Render, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if r, ok := f.renders[id]; ok {
		return r, nil
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeService) ListRenders(ctx context.Context, limit int) ([]*catalog.Render, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*catalog.Render
	for _, r := range f.renders {
		out = append(out, r)
	}
	return out, nil
}

func (f *fakeService) GetTimeline(ctx context.Context, id string) (*timeline.Timeline, error) {
	r, err := f.GetRender(ctx, id)
	if err != nil {
		return nil, err
	}
	if r.Timeline == nil {
		return nil, catalog.ErrNotReady
	}
	return r.Timeline, nil
}

func (f *fakeService) GetJob(ctx context.Context, id string) (*catalog.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, j := range f.jobs {
		if j.ID == id {
			return j, nil
		}
	}
	return nil, catalog.ErrNotFound
}

func (f *fakeService) ListJobs(ctx context.Context, limit int) ([]*catalog.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*catalog.Job(nil), f.jobs...), nil
}

type fakeRunner struct{ paused bool }

func (f *fakeRunner) IsPaused() bool { return f.paused }
func (f *fakeRunner) Pause()         { f.paused = true }
func (f *fakeRunner) Resume()        { f.paused = false }

type fakeDoctor struct{ caps *media.Capabilities }

func (f fakeDoctor) Peek() *media.Capabilities { return f.caps }

type fakeGenerator struct {
	lines []script.Line
	err   error
}

func (f fakeGenerator) Dialogue(ctx context.Context, sourceText string) ([]script.Line, error) {
	return f.lines, f.err
}

func ms(n int) time.Duration { return time.Duration(n) * time.Millisecond }

func sampleLines() []script.Line {
	return []script.Line{
		{Index: 0, Text: "Hey Stewie", Speaker: "PETER", Emotion: script.EmotionNeutral, Placeholder: script.PlaceholderNone},
		{Index: 1, Text: "[pause]", Speaker: "PETER", Emotion: script.EmotionNeutral, Placeholder: script.PlaceholderPause},
		{Index: 2, Text: "What now", Speaker: "STEWIE", Emotion: script.EmotionAngry, Placeholder: script.PlaceholderNone},
	}
}

// completedRender adds a finished render whose files live in dir.
func completedRender(t *testing.T, svc *fakeService, dir string) *catalog.Render {
	t.Helper()
	iv := []timeline.Interval{
		{Index: 0, Text: "Hey Stewie", Speaker: "PETER", Emotion: script.EmotionNeutral, Placeholder: script.PlaceholderNone},
		{Index: 1, Text: "[pause]", Speaker: "PETER", Emotion: script.EmotionNeutral, Placeholder: script.PlaceholderPause},
		{Index: 2, Text: "What now", Speaker: "STEWIE", Emotion: script.EmotionAngry, Placeholder: script.PlaceholderNone},
	}
	timeline.Accumulate(iv, []time.Duration{ms(1500), ms(2000), ms(1250)})

	video := filepath.Join(dir, "done.mp4")
	audio := filepath.Join(dir, "done.mp3")
	if err := os.WriteFile(video, []byte("0123456789"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(audio, []byte("abc"), 0644); err != nil {
		t.Fatal(err)
	}

	r := &catalog.Render{
		ID:              "done",
		Title:           "Family Quiz",
		Status:          catalog.RenderStatusCompleted,
		Script:          sampleLines(),
		AudioPath:       audio,
		VideoPath:       video,
		Timeline:        &timeline.Timeline{Intervals: iv, AudioPath: audio, Total: ms(4750)},
		TotalDurationMs: 4750,
	}
	svc.mu.Lock()
	svc.renders[r.ID] = r
	svc.mu.Unlock()
	return r
}

func testConfig(svc *fakeService) ServerConfig {
	return ServerConfig{
		Service:   svc,
		Config:    fakeConfig{token: testToken},
		Runner:    &fakeRunner{},
		Logger:    discardLogger(),
		StartTime: time.Now().Add(-10 * time.Second),
		DeviceID:  "test-device",
	}
}

func do(t *testing.T, cfg ServerConfig, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		rdr = strings.NewReader(b)
	default:
		data, err := json.Marshal(b)
		if err != nil {
			t.Fatal(err)
		}
		rdr = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, target, rdr)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "127.0.0.1:40000"
	rr := httptest.NewRecorder()
	NewRouter(cfg).ServeHTTP(rr, req)
	return rr
}

func TestHealthRoute_NoAuth(t *testing.T) {
	cfg := testConfig(newFakeService())
	cfg.Version = "1.2.3"

	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	body := decodeJSONBody(t, rr)
	if body["version"] != "1.2.3" || body["device_id"] != "test-device" {
		t.Errorf("unexpected health body: %v", body)
	}
	if body["uptime_s"].(float64) < 10 {
		t.Errorf("uptime_s = %v", body["uptime_s"])
	}
	if rr.Header().Get("Access-Control-Allow-Origin") != "http://localhost:3000" {
		t.Error("CORS headers missing on health")
	}
}

func TestProtectedRoutes_RequireToken(t *testing.T) {
	router := NewRouter(testConfig(newFakeService()))
	for _, path := range []string{"/status", "/renders", "/jobs", "/renders/x/timeline"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != http.StatusUnauthorized {
			t.Errorf("%s: status = %d, want 401", path, rr.Code)
		}
	}
}

func TestStatusHandler(t *testing.T) {
	svc := newFakeService()
	svc.jobs = []*catalog.Job{
		{ID: "j1", Type: catalog.JobTypeRender, Status: catalog.JobStatusRunning, RenderID: "r1", Stage: "COMPOSITING", Progress: 70},
		{ID: "j0", Type: catalog.JobTypeRender, Status: catalog.JobStatusFailed, Error: "ffmpeg exited 1"},
	}
	cfg := testConfig(svc)
	cfg.Doctor = fakeDoctor{caps: &media.Capabilities{
		FFmpeg:    media.DepInfo{Available: true, Version: "6.1"},
		Filters:   map[string]bool{"anullsrc": true, "concat": true, "overlay": true, "scale": true, "pad": true},
		CanRender: false,
		ProbedAt:  time.Now(),
	}}

	rr := do(t, cfg, http.MethodGet, "/status", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status code = %d", rr.Code)
	}

	var resp StatusResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.State != "rendering" || resp.JobsRunning != 1 {
		t.Errorf("state = %s running = %d", resp.State, resp.JobsRunning)
	}
	if resp.ActiveJob == nil || resp.ActiveJob.Stage != "COMPOSITING" || resp.ActiveJob.Progress != 70 {
		t.Errorf("active job = %+v", resp.ActiveJob)
	}
	if resp.LastError != "ffmpeg exited 1" {
		t.Errorf("last error = %q", resp.LastError)
	}
	if resp.Media == nil || resp.Media.FFmpeg != "6.1" {
		t.Fatalf("media = %+v", resp.Media)
	}
	if len(resp.Media.MissingFilter) != 1 || resp.Media.MissingFilter[0] != "drawtext" {
		t.Errorf("missing filters = %v", resp.Media.MissingFilter)
	}
}

func TestStatusHandler_PausedAndUnprobed(t *testing.T) {
	cfg := testConfig(newFakeService())
	cfg.Runner = &fakeRunner{paused: true}
	cfg.Doctor = fakeDoctor{}

	body := decodeJSONBody(t, do(t, cfg, http.MethodGet, "/status", nil))
	if body["state"] != "paused" || body["runner"] != "paused" {
		t.Errorf("state = %v runner = %v", body["state"], body["runner"])
	}
	if _, ok := body["media"]; ok {
		t.Error("media should be omitted before the first probe")
	}
}

func TestRunnerPauseResume(t *testing.T) {
	cfg := testConfig(newFakeService())
	runner := cfg.Runner.(*fakeRunner)

	if body := decodeJSONBody(t, do(t, cfg, http.MethodPost, "/runner/pause", nil)); body["paused"] != true || !runner.paused {
		t.Errorf("pause: %v", body)
	}
	if body := decodeJSONBody(t, do(t, cfg, http.MethodPost, "/runner/resume", nil)); body["paused"] != false || runner.paused {
		t.Errorf("resume: %v", body)
	}
}

func TestCreateRender(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig(svc)

	rr := do(t, cfg, http.MethodPost, "/renders", catalog.RenderRequest{Title: "Quiz", Lines: sampleLines()})
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["render_id"] != "r1" || body["job_id"] != "j-r1" {
		t.Errorf("body = %v", body)
	}
	if len(svc.created) != 1 || len(svc.created[0].Lines) != 3 {
		t.Errorf("service saw %+v", svc.created)
	}
}

func TestCreateRender_BadInput(t *testing.T) {
	cfg := testConfig(newFakeService())

	rr := do(t, cfg, http.MethodPost, "/renders", "{not json")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d", rr.Code)
	}

	rr = do(t, cfg, http.MethodPost, "/renders", catalog.RenderRequest{Title: "empty"})
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("empty script: status = %d", rr.Code)
	}
	if code := decodeJSONBody(t, rr)["code"]; code != "INVALID_SCRIPT" {
		t.Errorf("code = %v", code)
	}
}

func TestGetRenderAndJobs(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig(svc)
	completedRender(t, svc, t.TempDir())
	svc.CreateRender(context.Background(), catalog.RenderRequest{Lines: sampleLines()})

	body := decodeJSONBody(t, do(t, cfg, http.MethodGet, "/renders/done", nil))
	if body["title"] != "Family Quiz" || body["duration_s"] != 4.75 || body["has_video"] != true || body["lines"] != float64(3) {
		t.Errorf("render body = %v", body)
	}

	if rr := do(t, cfg, http.MethodGet, "/renders/missing", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing render: status = %d", rr.Code)
	}

	var list RendersResponse
	json.Unmarshal(do(t, cfg, http.MethodGet, "/renders?limit=10", nil).Body.Bytes(), &list)
	if len(list.Renders) != 2 {
		t.Errorf("listed %d renders, want 2", len(list.Renders))
	}
	if rr := do(t, cfg, http.MethodGet, "/renders?limit=0", nil); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit: status = %d", rr.Code)
	}

	var jobs JobsResponse
	json.Unmarshal(do(t, cfg, http.MethodGet, "/jobs", nil).Body.Bytes(), &jobs)
	if len(jobs.Jobs) != 1 || jobs.Jobs[0].RenderID != "r1" {
		t.Errorf("jobs = %+v", jobs.Jobs)
	}
	if rr := do(t, cfg, http.MethodGet, "/jobs/j-r1", nil); rr.Code != http.StatusOK {
		t.Errorf("get job: status = %d", rr.Code)
	}
	if rr := do(t, cfg, http.MethodGet, "/jobs/nope", nil); rr.Code != http.StatusNotFound {
		t.Errorf("missing job: status = %d", rr.Code)
	}
}

func TestTimelineHandler(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig(svc)
	completedRender(t, svc, t.TempDir())
	svc.CreateRender(context.Background(), catalog.RenderRequest{Lines: sampleLines()})

	rr := do(t, cfg, http.MethodGet, "/renders/done/timeline", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var tl timeline.Timeline
	if err := json.Unmarshal(rr.Body.Bytes(), &tl); err != nil {
		t.Fatalf("decode timeline: %v", err)
	}
	if len(tl.Intervals) != 3 || tl.Intervals[2].Start != ms(3500) || tl.Total != ms(4750) {
		t.Errorf("timeline = %+v", tl)
	}

	rr = do(t, cfg, http.MethodGet, "/renders/r1/timeline", nil)
	if rr.Code != http.StatusConflict {
		t.Errorf("pending render: status = %d, want 409", rr.Code)
	}
}

func TestCaptionsHandler(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig(svc)
	completedRender(t, svc, t.TempDir())

	rr := do(t, cfg, http.MethodGet, "/renders/done/captions.srt", nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("srt status = %d", rr.Code)
	}
	srt := rr.Body.String()
	if !strings.HasPrefix(srt, "1\n00:00:00,000 --> 00:00:01,500\nHey Stewie\n") {
		t.Errorf("srt = %q", srt)
	}
	if strings.Contains(srt, "[pause]") {
		t.Error("pause must not appear in captions")
	}

	rr = do(t, cfg, http.MethodGet, "/renders/done/captions.vtt", nil)
	if !strings.HasPrefix(rr.Body.String(), "WEBVTT") || !strings.HasPrefix(rr.Header().Get("Content-Type"), "text/vtt") {
		t.Errorf("vtt = %q (%s)", rr.Body.String(), rr.Header().Get("Content-Type"))
	}

	if rr := do(t, cfg, http.MethodGet, "/renders/done/captions.txt", nil); rr.Code != http.StatusNotFound {
		t.Errorf("unknown caption format: status = %d", rr.Code)
	}
}

func TestExportHandler(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig(svc)
	completedRender(t, svc, t.TempDir())
	outDir := t.TempDir()

	rr := do(t, cfg, http.MethodPost, "/renders/done/export", map[string]any{"output_dir": outDir})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	body := decodeJSONBody(t, rr)
	if body["format"] != "edl" || body["event_count"] != float64(3) {
		t.Errorf("body = %v", body)
	}
	data, err := os.ReadFile(filepath.Join(outDir, "Family Quiz.edl"))
	if err != nil {
		t.Fatalf("edl not written: %v", err)
	}
	if !strings.HasPrefix(string(data), "TITLE: Family Quiz") {
		t.Errorf("edl = %q", string(data))
	}

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"bad format", map[string]any{"output_dir": outDir, "format": "xml"}, http.StatusBadRequest},
		{"missing dir", map[string]any{"output_dir": filepath.Join(outDir, "nope")}, http.StatusBadRequest},
		{"relative dir", map[string]any{"output_dir": "../x"}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if rr := do(t, cfg, http.MethodPost, "/renders/done/export", tt.body); rr.Code != tt.want {
				t.Errorf("status = %d, want %d", rr.Code, tt.want)
			}
		})
	}

	if rr := do(t, cfg, http.MethodPost, "/renders/missing/export", map[string]any{"output_dir": outDir}); rr.Code != http.StatusNotFound {
		t.Errorf("missing render: status = %d", rr.Code)
	}
}

func TestMediaRoutes(t *testing.T) {
	svc := newFakeService()
	dir := t.TempDir()
	completedRender(t, svc, dir)
	svc.CreateRender(context.Background(), catalog.RenderRequest{Lines: sampleLines()})

	cfg := testConfig(svc)
	cfg.Playback = playback.NewServer(dir, discardLogger())
	server := httptest.NewServer(NewRouter(cfg))
	defer server.Close()

	get := func(method, path, rng string) *http.Response {
		t.Helper()
		req, _ := http.NewRequest(method, server.URL+path, nil)
		req.Header.Set("Authorization", "Bearer "+testToken)
		if rng != "" {
			req.Header.Set("Range", rng)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatalf("request error: %v", err)
		}
		return resp
	}

	resp := get(http.MethodGet, "/renders/done/video", "bytes=2-4")
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusPartialContent || string(body) != "234" {
		t.Errorf("range GET: status = %d body = %q", resp.StatusCode, body)
	}

	resp = get(http.MethodHead, "/renders/done/audio", "")
	body, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || len(body) != 0 || resp.Header.Get("Content-Type") != "audio/mpeg" {
		t.Errorf("HEAD audio: status = %d len = %d type = %s", resp.StatusCode, len(body), resp.Header.Get("Content-Type"))
	}

	resp = get(http.MethodGet, "/renders/r1/video", "")
	resp.Body.Close()
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("unfinished render: status = %d, want 409", resp.StatusCode)
	}
}

func TestMediaRoutes_RejectRemote(t *testing.T) {
	svc := newFakeService()
	completedRender(t, svc, t.TempDir())
	cfg := testConfig(svc)
	cfg.Playback = playback.NewServer("", nil)

	req := httptest.NewRequest(http.MethodGet, "/renders/done/video", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.RemoteAddr = "203.0.113.9:5555"
	rr := httptest.NewRecorder()
	NewRouter(cfg).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rr.Code)
	}
}

func TestGenerateScript(t *testing.T) {
	svc := newFakeService()
	cfg := testConfig(svc)

	if rr := do(t, cfg, http.MethodPost, "/scripts/generate", map[string]any{"source_text": "x"}); rr.Code != http.StatusServiceUnavailable {
		t.Errorf("no generator: status = %d", rr.Code)
	}

	cfg.Generator = fakeGenerator{lines: sampleLines()}
	if rr := do(t, cfg, http.MethodPost, "/scripts/generate", map[string]any{"source_text": "  "}); rr.Code != http.StatusBadRequest {
		t.Errorf("blank source: status = %d", rr.Code)
	}

	rr := do(t, cfg, http.MethodPost, "/scripts/generate", GenerateScriptRequest{SourceText: "Photosynthesis", Render: true, Title: "Plants"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rr.Code, rr.Body.String())
	}
	var resp GenerateScriptResponse
	json.Unmarshal(rr.Body.Bytes(), &resp)
	if len(resp.Lines) != 3 || resp.RenderID != "r1" || resp.JobID != "j-r1" {
		t.Errorf("resp = %+v", resp)
	}
	if svc.created[0].Title != "Plants" {
		t.Errorf("render title = %q", svc.created[0].Title)
	}

	cfg.Generator = fakeGenerator{err: errors.New("upstream 500")}
	if rr := do(t, cfg, http.MethodPost, "/scripts/generate", map[string]any{"source_text": "x"}); rr.Code != http.StatusBadGateway {
		t.Errorf("generator failure: status = %d", rr.Code)
	}
}
