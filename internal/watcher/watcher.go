// Package watcher turns script documents dropped into an inbox directory
// into queued renders.
package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/catalog"
	"github.com/heimdex/heimdex-shorts/internal/logging"
)

const (
	DefaultPollInterval = 5 * time.Second
	ProcessedDir        = "processed"
	FailedDir           = "failed"
)

// Enqueuer creates a render from a raw script document.
type Enqueuer interface {
	CreateRenderFromDocument(ctx context.Context, title, background string, data []byte) (*catalog.Render, *catalog.Job, error)
}

type Options struct {
	Background   string
	PollInterval time.Duration
	// Settle is how long a file must go unmodified before it is read, so
	// half-written documents are skipped.
	Settle time.Duration
	Logger *slog.Logger
}

// Inbox polls a directory for *.json documents.
type Inbox struct {
	dir    string
	svc    Enqueuer
	opts   Options
	logger *slog.Logger

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func New(dir string, svc Enqueuer, opts Options) *Inbox {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	return &Inbox{
		dir:    dir,
		svc:    svc,
		opts:   opts,
		logger: logging.WithComponent(logging.OrDiscard(opts.Logger), "watcher"),
	}
}

func (w *Inbox) Dir() string { return w.dir }

// Start creates the inbox layout and polls until ctx is done or Stop is
// called.
func (w *Inbox) Start(ctx context.Context) error {
	for _, d := range []string{w.dir, filepath.Join(w.dir, ProcessedDir), filepath.Join(w.dir, FailedDir)} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return fmt.Errorf("create inbox dir: %w", err)
		}
	}

	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return nil
	}
	ctx, w.cancel = context.WithCancel(ctx)
	w.done = make(chan struct{})
	w.running = true
	w.mu.Unlock()

	w.logger.Info("inbox watcher started", "dir", logging.SanitizePath(w.dir), "interval", w.opts.PollInterval)

	go func() {
		defer close(w.done)
		ticker := time.NewTicker(w.opts.PollInterval)
		defer ticker.Stop()

		w.Scan(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.Scan(ctx)
			}
		}
	}()
	return nil
}

// Stop cancels polling and waits for an in-flight scan.
func (w *Inbox) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	cancel, done := w.cancel, w.done
	w.mu.Unlock()

	cancel()
	<-done
	w.logger.Info("inbox watcher stopped")
}

// Scan processes every settled document currently in the inbox and returns
// how many renders were queued.
func (w *Inbox) Scan(ctx context.Context) int {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		w.logger.Error("failed to read inbox", "error", err)
		return 0
	}

	var names []string
	for _, e := range entries {
		if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".json") || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if w.opts.Settle > 0 {
			info, err := e.Info()
			if err != nil || time.Since(info.ModTime()) < w.opts.Settle {
				continue
			}
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	queued := 0
	for _, name := range names {
		if ctx.Err() != nil {
			break
		}
		if w.process(ctx, name) {
			queued++
		}
	}
	return queued
}

func (w *Inbox) process(ctx context.Context, name string) bool {
	path := filepath.Join(w.dir, name)
	title := strings.TrimSuffix(name, filepath.Ext(name))

	data, err := os.ReadFile(path)
	if err != nil {
		w.logger.Warn("failed to read inbox document", "file", name, "error", err)
		return false
	}

	render, job, err := w.svc.CreateRenderFromDocument(ctx, title, w.opts.Background, data)
	if err != nil {
		w.logger.Warn("rejected inbox document", "file", name, "error", err)
		w.move(path, FailedDir)
		return false
	}

	w.logger.Info("queued render from inbox", "file", name, "render_id", render.ID, "job_id", job.ID)
	w.move(path, ProcessedDir)
	return true
}

// move files a document away, prefixing a timestamp if the name is taken.
func (w *Inbox) move(path, sub string) {
	dest := filepath.Join(w.dir, sub, filepath.Base(path))
	if _, err := os.Stat(dest); err == nil {
		dest = filepath.Join(w.dir, sub, time.Now().UTC().Format("20060102T150405.000")+"_"+filepath.Base(path))
	}
	if err := os.Rename(path, dest); err != nil {
		w.logger.Error("failed to move inbox document", "file", filepath.Base(path), "error", err)
	}
}
