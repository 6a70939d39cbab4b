package export

import (
	"fmt"
	"strings"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// Cue is one subtitle entry. Pause intervals carry no caption and produce
// no cue; options intervals do.
type Cue struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

func Cues(tl *timeline.Timeline) []Cue {
	var cues []Cue
	for _, iv := range tl.Intervals {
		if iv.IsPause() {
			continue
		}
		text := strings.TrimSpace(iv.Text)
		if text == "" {
			continue
		}
		cues = append(cues, Cue{Start: iv.Start, End: iv.End, Text: text})
	}
	return cues
}

func GenerateSRT(tl *timeline.Timeline) string {
	var b strings.Builder
	for i, c := range Cues(tl) {
		fmt.Fprintf(&b, "%d\n%s --> %s\n%s\n\n", i+1, stamp(c.Start, ','), stamp(c.End, ','), c.Text)
	}
	return b.String()
}

func GenerateVTT(tl *timeline.Timeline) string {
	var b strings.Builder
	b.WriteString("WEBVTT\n\n")
	for _, c := range Cues(tl) {
		fmt.Fprintf(&b, "%s --> %s\n%s\n\n", stamp(c.Start, '.'), stamp(c.End, '.'), c.Text)
	}
	return b.String()
}

// stamp formats hh:mm:ss<sep>mmm, rounding to the millisecond.
func stamp(d time.Duration, sep byte) string {
	ms := d.Round(time.Millisecond).Milliseconds()
	h := ms / 3_600_000
	m := ms / 60_000 % 60
	s := ms / 1000 % 60
	return fmt.Sprintf("%02d:%02d:%02d%c%03d", h, m, s, sep, ms%1000)
}
