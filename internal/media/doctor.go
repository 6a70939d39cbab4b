package media

import (
	"bufio"
	"bytes"
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/logging"
)

const defaultCacheTTL = 5 * time.Minute

// Prober reports toolchain capabilities.
type Prober interface {
	RunDoctor(ctx context.Context) (*Capabilities, error)
}

// RunDoctor checks both binaries and the filters and encoders a render needs.
// A missing capability is reported in the result, not as an error.
func (f *FFmpeg) RunDoctor(ctx context.Context) (*Capabilities, error) {
	ctx, cancel := context.WithTimeout(ctx, f.cfg.DoctorTimeout)
	defer cancel()

	caps := &Capabilities{
		FFmpeg:   f.versionOf(ctx, f.ffmpeg),
		FFprobe:  f.versionOf(ctx, f.ffprobe),
		Filters:  make(map[string]bool),
		Encoders: make(map[string]bool),
	}

	if caps.FFmpeg.Available {
		var out bytes.Buffer
		if r := f.exec(ctx, f.ffmpeg, &out, "", "-hide_banner", "-filters"); r.IsSuccess() {
			present := listedNames(out.String())
			for _, name := range RequiredFilters {
				caps.Filters[name] = present[name]
			}
		}
		out.Reset()
		if r := f.exec(ctx, f.ffmpeg, &out, "", "-hide_banner", "-encoders"); r.IsSuccess() {
			present := listedNames(out.String())
			for _, name := range RequiredEncoders {
				caps.Encoders[name] = present[name]
			}
		}
	}

	caps.CanRender = caps.FFmpeg.Available && caps.FFprobe.Available &&
		allTrue(caps.Filters, RequiredFilters) && allTrue(caps.Encoders, RequiredEncoders)
	caps.ProbedAt = time.Now()

	f.logger.Info("doctor probe complete",
		"ffmpeg", caps.FFmpeg.Version,
		"ffprobe", caps.FFprobe.Version,
		"can_render", caps.CanRender,
	)
	return caps, nil
}

func (f *FFmpeg) versionOf(ctx context.Context, bin string) DepInfo {
	var out bytes.Buffer
	r := f.exec(ctx, bin, &out, "", "-version")
	if !r.IsSuccess() {
		return DepInfo{Path: bin, Error: truncate(r.StderrTail, 256)}
	}
	return DepInfo{Available: true, Path: bin, Version: parseVersion(out.String())}
}

// parseVersion extracts "6.1.1" from "ffmpeg version 6.1.1 Copyright ...".
func parseVersion(out string) string {
	line, _, _ := strings.Cut(out, "\n")
	fields := strings.Fields(line)
	for i, f := range fields {
		if f == "version" && i+1 < len(fields) {
			return fields[i+1]
		}
	}
	return ""
}

// listedNames collects the name column of `ffmpeg -filters` / `-encoders`
// output: a flags column followed by the name.
func listedNames(out string) map[string]bool {
	names := make(map[string]bool)
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		names[fields[1]] = true
	}
	return names
}

func allTrue(m map[string]bool, keys []string) bool {
	for _, k := range keys {
		if !m[k] {
			return false
		}
	}
	return true
}

// CachedDoctor caches doctor probe results with a configurable TTL so status
// requests do not spawn subprocesses every time.
type CachedDoctor struct {
	prober Prober
	ttl    time.Duration
	logger *slog.Logger

	mu     sync.RWMutex
	cached *Capabilities
}

// NewCachedDoctor creates a caching wrapper around doctor probes.
func NewCachedDoctor(prober Prober, logger *slog.Logger) *CachedDoctor {
	return &CachedDoctor{
		prober: prober,
		ttl:    defaultCacheTTL,
		logger: logging.OrDiscard(logger),
	}
}

// Get returns cached capabilities if fresh, otherwise re-probes.
func (d *CachedDoctor) Get(ctx context.Context) (*Capabilities, error) {
	d.mu.RLock()
	if d.cached != nil && time.Since(d.cached.ProbedAt) < d.ttl {
		caps := d.cached
		d.mu.RUnlock()
		return caps, nil
	}
	d.mu.RUnlock()

	return d.Refresh(ctx)
}

func (d *CachedDoctor) Peek() *Capabilities {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cached
}

// Refresh forces a new doctor probe regardless of cache freshness.
func (d *CachedDoctor) Refresh(ctx context.Context) (*Capabilities, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	caps, err := d.prober.RunDoctor(ctx)
	if err != nil {
		d.logger.Warn("doctor probe failed", "error", err)
		// Return stale cache if available
		if d.cached != nil {
			d.logger.Info("returning stale capabilities cache")
			return d.cached, nil
		}
		return nil, err
	}

	d.cached = caps
	return caps, nil
}

// Invalidate clears the cached capabilities.
func (d *CachedDoctor) Invalidate() {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
}
