package compose

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// Window is a half-open [Start, End) span of output time.
type Window struct {
	Start time.Duration
	End   time.Duration
}

func windowOf(iv timeline.Interval) Window {
	return Window{Start: iv.Start, End: iv.End}
}

// mergeWindows sorts windows and coalesces touching or overlapping ones.
func mergeWindows(ws []Window) []Window {
	if len(ws) == 0 {
		return nil
	}
	sorted := append([]Window(nil), ws...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	out := []Window{sorted[0]}
	for _, w := range sorted[1:] {
		last := &out[len(out)-1]
		if w.Start <= last.End {
			if w.End > last.End {
				last.End = w.End
			}
			continue
		}
		out = append(out, w)
	}
	return out
}

// EnableExpr renders the union of windows as an ffmpeg expression that is
// non-zero exactly inside one of them. No windows renders as "0".
func EnableExpr(ws []Window) string {
	merged := mergeWindows(ws)
	if len(merged) == 0 {
		return "0"
	}
	terms := make([]string, len(merged))
	for i, w := range merged {
		terms[i] = "gte(t," + formatSeconds(w.Start) + ")*lt(t," + formatSeconds(w.End) + ")"
	}
	return strings.Join(terms, "+")
}

// formatSeconds prints at most microsecond precision without trailing zeros.
func formatSeconds(d time.Duration) string {
	s := strconv.FormatFloat(d.Seconds(), 'f', 6, 64)
	s = strings.TrimRight(s, "0")
	return strings.TrimSuffix(s, ".")
}
