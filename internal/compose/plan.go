package compose

import (
	"log/slog"

	"github.com/heimdex/heimdex-shorts/internal/cast"
	"github.com/heimdex/heimdex-shorts/internal/script"
	"github.com/heimdex/heimdex-shorts/internal/timeline"
)

// OverlaySpec is one character image gated by the windows of its
// (speaker, emotion) identity key.
type OverlaySpec struct {
	Speaker script.Speaker
	Emotion script.Emotion
	Image   string
	Corner  cast.Corner
	Windows []Window
}

func (o OverlaySpec) Enable() string { return EnableExpr(o.Windows) }

// CaptionSpec is one wrapped caption shown during a single interval.
type CaptionSpec struct {
	Index   int
	Text    string
	Speaker script.Speaker
	Style   cast.CaptionStyle
	Window  Window
}

func (c CaptionSpec) Enable() string { return EnableExpr([]Window{c.Window}) }

type identityKey struct {
	speaker script.Speaker
	emotion script.Emotion
}

// PlanOverlays groups spoken intervals by identity key in order of first
// appearance. Groups whose speaker has no image at all are omitted and take
// no corner. Corners are assigned per speaker, so an emotion change keeps the
// position.
func PlanOverlays(intervals []timeline.Interval, c cast.Cast, logger *slog.Logger) []OverlaySpec {
	var (
		order  []identityKey
		groups = make(map[identityKey]*OverlaySpec)
	)

	for _, iv := range intervals {
		if iv.IsPlaceholder() {
			continue
		}
		key := identityKey{speaker: iv.Speaker.Normalize(), emotion: iv.Emotion}
		if key.emotion == "" {
			key.emotion = script.EmotionNeutral
		}
		g, ok := groups[key]
		if !ok {
			g = &OverlaySpec{Speaker: key.speaker, Emotion: key.emotion}
			groups[key] = g
			order = append(order, key)
		}
		g.Windows = append(g.Windows, windowOf(iv))
	}

	specs := make([]OverlaySpec, 0, len(order))
	var speakers []script.Speaker
	for _, key := range order {
		g := groups[key]
		img, ok := c.ResolveImage(g.Speaker, g.Emotion)
		if !ok {
			if logger != nil {
				logger.Warn("no portrait for speaker, omitting overlay",
					"speaker", g.Speaker,
					"emotion", g.Emotion,
				)
			}
			continue
		}
		g.Image = img
		specs = append(specs, *g)
		speakers = append(speakers, g.Speaker)
	}

	// Only speakers that are drawn take a corner.
	corners := AssignCorners(speakers, c)
	for i := range specs {
		specs[i].Corner = corners[specs[i].Speaker]
	}
	return specs
}

// AssignCorners gives every distinct speaker a screen corner. Pinned
// corners from the cast win; the rest take the free corners round-robin in
// order of first appearance, reusing corners once all four are taken.
func AssignCorners(speakers []script.Speaker, c cast.Cast) map[script.Speaker]cast.Corner {
	assigned := make(map[script.Speaker]cast.Corner)
	taken := make(map[cast.Corner]bool)

	var distinct []script.Speaker
	for _, s := range speakers {
		s = s.Normalize()
		if _, seen := assigned[s]; seen {
			continue
		}
		assigned[s] = ""
		distinct = append(distinct, s)
		if pinned, ok := c.PinnedCorner(s); ok {
			assigned[s] = pinned
			taken[pinned] = true
		}
	}

	var free []cast.Corner
	for _, corner := range cast.Corners {
		if !taken[corner] {
			free = append(free, corner)
		}
	}
	if len(free) == 0 {
		free = cast.Corners
	}

	next := 0
	for _, s := range distinct {
		if assigned[s] != "" {
			continue
		}
		assigned[s] = free[next%len(free)]
		next++
	}
	return assigned
}

// PlanCaptions emits one caption per interval except pauses. Options
// intervals use the options style.
func PlanCaptions(intervals []timeline.Interval, c cast.Cast) []CaptionSpec {
	var specs []CaptionSpec
	for _, iv := range intervals {
		if iv.IsPause() {
			continue
		}
		style := c.StyleFor(iv.Speaker)
		if iv.IsOptions() {
			style = c.OptionsStyle()
		}
		specs = append(specs, CaptionSpec{
			Index:   iv.Index,
			Text:    Wrap(iv.Text, c.WrapWidth),
			Speaker: iv.Speaker,
			Style:   style,
			Window:  windowOf(iv),
		})
	}
	return specs
}
