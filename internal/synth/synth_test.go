package synth

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/cast"
	"github.com/heimdex/heimdex-shorts/internal/script"
)

type fakeSpeech struct {
	mu       sync.Mutex
	calls    []string
	inFlight atomic.Int32
	peak     atomic.Int32
	failOn   string
	delay    time.Duration
}

func (f *fakeSpeech) Synthesize(ctx context.Context, text, voiceID string) ([]byte, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, text)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if text == f.failOn {
		return nil, errors.New("quota exceeded")
	}
	return []byte("audio:" + voiceID + ":" + text), nil
}

func testCast() cast.Cast {
	c := cast.Default()
	c.SetVoice("PETER", "voice-peter")
	c.SetVoice("STEWIE", "voice-stewie")
	return c
}

func testLines() []script.Line {
	return []script.Line{
		{Index: 0, Text: "Hello", Speaker: "PETER", Placeholder: script.PlaceholderNone},
		{Index: 1, Text: "[pause]", Speaker: "PETER", Placeholder: script.PlaceholderPause},
		{Index: 2, Text: "Hi", Speaker: "STEWIE", Placeholder: script.PlaceholderNone},
		{Index: 3, Text: "A) x\nB) y", Speaker: "PETER", Placeholder: script.PlaceholderOptions},
	}
}

func TestSynthesize_OrderAndPlaceholders(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "segments")
	speech := &fakeSpeech{}
	s := New(speech, testCast(), Options{Concurrency: 4})

	clips, err := s.Synthesize(context.Background(), testLines(), dir)
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if len(clips) != 4 {
		t.Fatalf("expected 4 clips, got %d", len(clips))
	}

	for i, c := range clips {
		if c.Line.Index != i {
			t.Errorf("clip %d has index %d", i, c.Line.Index)
		}
	}
	if clips[1].Source != "" || clips[3].Source != "" {
		t.Error("placeholders must have no audio source")
	}
	if !clips[1].IsPlaceholder() || !clips[3].IsPlaceholder() {
		t.Error("expected placeholder flags")
	}

	want0 := filepath.Join(dir, "segment_000_peter.mp3")
	want2 := filepath.Join(dir, "segment_002_stewie.mp3")
	if clips[0].Source != want0 || clips[2].Source != want2 {
		t.Errorf("unexpected sources: %s, %s", clips[0].Source, clips[2].Source)
	}

	data, err := os.ReadFile(want2)
	if err != nil {
		t.Fatalf("read segment: %v", err)
	}
	if string(data) != "audio:voice-stewie:Hi" {
		t.Errorf("segment content = %q", data)
	}

	if len(speech.calls) != 2 {
		t.Errorf("expected 2 speech calls, got %d (%v)", len(speech.calls), speech.calls)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 2 {
		t.Errorf("expected 2 files written, got %d", len(entries))
	}
}

func TestSynthesize_FailureFailsRun(t *testing.T) {
	speech := &fakeSpeech{failOn: "Hi"}
	s := New(speech, testCast(), Options{Concurrency: 1})

	_, err := s.Synthesize(context.Background(), testLines(), t.TempDir())
	var le *LineError
	if !errors.As(err, &le) {
		t.Fatalf("expected LineError, got %v", err)
	}
	if le.Index != 2 || le.Speaker != "STEWIE" {
		t.Errorf("unexpected line error: %+v", le)
	}
}

func TestSynthesize_UnknownVoiceFailsBeforeCalls(t *testing.T) {
	speech := &fakeSpeech{}
	s := New(speech, cast.Default(), Options{})

	_, err := s.Synthesize(context.Background(), testLines(), t.TempDir())
	if !errors.Is(err, cast.ErrNoVoice) {
		t.Fatalf("expected ErrNoVoice, got %v", err)
	}
	if len(speech.calls) != 0 {
		t.Errorf("expected no speech calls, got %d", len(speech.calls))
	}
}

func TestSynthesize_BoundedConcurrency(t *testing.T) {
	var lines []script.Line
	for i := 0; i < 12; i++ {
		lines = append(lines, script.Line{Index: i, Text: "line", Speaker: "PETER", Placeholder: script.PlaceholderNone})
	}
	speech := &fakeSpeech{delay: 10 * time.Millisecond}
	s := New(speech, testCast(), Options{Concurrency: 3})

	if _, err := s.Synthesize(context.Background(), lines, t.TempDir()); err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}
	if peak := speech.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency %d exceeds limit 3", peak)
	}
}

func TestSynthesize_Empty(t *testing.T) {
	s := New(&fakeSpeech{}, testCast(), Options{})
	if _, err := s.Synthesize(context.Background(), nil, t.TempDir()); !errors.Is(err, script.ErrEmptyScript) {
		t.Errorf("expected ErrEmptyScript, got %v", err)
	}
}

func TestSegmentName(t *testing.T) {
	if got := SegmentName(7, "STEWIE"); got != "segment_007_stewie.mp3" {
		t.Errorf("SegmentName = %s", got)
	}
	if got := SegmentName(12, ""); got != "segment_012_unknown.mp3" {
		t.Errorf("SegmentName = %s", got)
	}
}

func TestElevenLabs_Synthesize(t *testing.T) {
	var gotPath, gotKey, gotFormat string
	var gotBody ttsRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("xi-api-key")
		gotFormat = r.URL.Query().Get("output_format")
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &gotBody)
		w.Header().Set("Content-Type", "audio/mpeg")
		w.Write([]byte("ID3fake"))
	}))
	defer srv.Close()

	c := NewElevenLabs(srv.URL, "secret-key", "", nil)
	audio, err := c.Synthesize(context.Background(), "Hello", "voice-1")
	if err != nil {
		t.Fatalf("Synthesize failed: %v", err)
	}

	if string(audio) != "ID3fake" {
		t.Errorf("audio = %q", audio)
	}
	if gotPath != "/v1/text-to-speech/voice-1" {
		t.Errorf("path = %s", gotPath)
	}
	if gotKey != "secret-key" {
		t.Errorf("api key header = %q", gotKey)
	}
	if gotFormat != DefaultOutputFormat {
		t.Errorf("output_format = %q", gotFormat)
	}
	if gotBody.Text != "Hello" || gotBody.ModelID != DefaultModel {
		t.Errorf("unexpected body: %+v", gotBody)
	}
}

func TestElevenLabs_ErrorStatus(t *testing.T) {
	tests := []struct {
		status    int
		retryable bool
	}{
		{http.StatusUnauthorized, false},
		{http.StatusTooManyRequests, true},
		{http.StatusBadGateway, true},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
			w.Write([]byte(`{"detail":"nope"}`))
		}))

		_, err := NewElevenLabs(srv.URL, "k", "m", nil).Synthesize(context.Background(), "x", "v")
		srv.Close()

		var se *SpeechError
		if !errors.As(err, &se) {
			t.Fatalf("status %d: expected SpeechError, got %v", tt.status, err)
		}
		if se.StatusCode != tt.status || se.IsRetryable() != tt.retryable {
			t.Errorf("status %d: got %+v retryable=%v", tt.status, se, se.IsRetryable())
		}
	}
}

func TestElevenLabs_RequiresVoice(t *testing.T) {
	if _, err := NewElevenLabs("http://unused", "k", "", nil).Synthesize(context.Background(), "x", ""); err == nil {
		t.Error("expected error for empty voice id")
	}
}
