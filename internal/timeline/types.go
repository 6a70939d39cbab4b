// Package timeline turns synthesized clips into one audio track and the
// reconciled [start,end) interval of every line on it.
package timeline

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/heimdex/heimdex-shorts/internal/script"
)

var (
	ErrNoUsableClips = errors.New("no usable clips")
)

// Clip is the synthesized counterpart of a script line. Source is empty
// for placeholders, which are backed by a shared silence asset.
type Clip struct {
	Line   script.Line
	Source string
}

func (c Clip) IsPlaceholder() bool { return c.Line.IsPlaceholder() }

// Interval is one reconciled timing record.
type Interval struct {
	Index       int
	Start       time.Duration
	End         time.Duration
	Text        string
	Speaker     script.Speaker
	Emotion     script.Emotion
	Placeholder script.Placeholder
}

func (iv Interval) Duration() time.Duration { return iv.End - iv.Start }
func (iv Interval) IsPause() bool           { return iv.Placeholder == script.PlaceholderPause }
func (iv Interval) IsOptions() bool         { return iv.Placeholder == script.PlaceholderOptions }

// IsPlaceholder reports whether the interval is backed by silence.
func (iv Interval) IsPlaceholder() bool { return iv.IsPause() || iv.IsOptions() }

type intervalJSON struct {
	Index       int                `json:"index"`
	Start       float64            `json:"start"`
	End         float64            `json:"end"`
	Duration    float64            `json:"duration"`
	Text        string             `json:"text"`
	Speaker     script.Speaker     `json:"speaker"`
	Emotion     script.Emotion     `json:"emotion"`
	Placeholder script.Placeholder `json:"placeholder"`
	IsPause     bool               `json:"is_pause"`
	IsOptions   bool               `json:"is_options"`
}

func (iv Interval) MarshalJSON() ([]byte, error) {
	return json.Marshal(intervalJSON{
		Index:       iv.Index,
		Start:       Seconds(iv.Start),
		End:         Seconds(iv.End),
		Duration:    Seconds(iv.Duration()),
		Text:        iv.Text,
		Speaker:     iv.Speaker,
		Emotion:     iv.Emotion,
		Placeholder: iv.Placeholder,
		IsPause:     iv.IsPause(),
		IsOptions:   iv.IsOptions(),
	})
}

func (iv *Interval) UnmarshalJSON(data []byte) error {
	var raw intervalJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	placeholder := raw.Placeholder
	if placeholder == "" {
		switch {
		case raw.IsPause:
			placeholder = script.PlaceholderPause
		case raw.IsOptions:
			placeholder = script.PlaceholderOptions
		default:
			placeholder = script.PlaceholderNone
		}
	}
	*iv = Interval{
		Index:       raw.Index,
		Start:       FromSeconds(raw.Start),
		End:         FromSeconds(raw.End),
		Text:        raw.Text,
		Speaker:     raw.Speaker,
		Emotion:     raw.Emotion,
		Placeholder: placeholder,
	}
	return nil
}

// Timeline is the full reconciled result of one run.
type Timeline struct {
	Intervals []Interval
	AudioPath string
	// Total is the end of the last interval.
	Total time.Duration
	// Computed is the accumulated total before reconciliation and Measured
	// the probed duration of the concatenated file (zero if unknown).
	Computed time.Duration
	Measured time.Duration
	Scaled   bool
}

type timelineJSON struct {
	Intervals []Interval `json:"intervals"`
	AudioPath string     `json:"audio_path"`
	Total     float64    `json:"total_duration"`
	Computed  float64    `json:"computed_duration"`
	Measured  float64    `json:"measured_duration"`
	Scaled    bool       `json:"scaled"`
}

func (t Timeline) MarshalJSON() ([]byte, error) {
	intervals := t.Intervals
	if intervals == nil {
		intervals = []Interval{}
	}
	return json.Marshal(timelineJSON{
		Intervals: intervals,
		AudioPath: t.AudioPath,
		Total:     Seconds(t.Total),
		Computed:  Seconds(t.Computed),
		Measured:  Seconds(t.Measured),
		Scaled:    t.Scaled,
	})
}

func (t *Timeline) UnmarshalJSON(data []byte) error {
	var raw timelineJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*t = Timeline{
		Intervals: raw.Intervals,
		AudioPath: raw.AudioPath,
		Total:     FromSeconds(raw.Total),
		Computed:  FromSeconds(raw.Computed),
		Measured:  FromSeconds(raw.Measured),
		Scaled:    raw.Scaled,
	}
	return nil
}

// Validate checks contiguity from zero and that Total is the last end.
func (t Timeline) Validate() error {
	if len(t.Intervals) == 0 {
		return ErrNoUsableClips
	}
	var cursor time.Duration
	for i, iv := range t.Intervals {
		if iv.Start != cursor {
			return fmt.Errorf("interval %d starts at %v, want %v", i, iv.Start, cursor)
		}
		if iv.End <= iv.Start {
			return fmt.Errorf("interval %d has non-positive duration", i)
		}
		cursor = iv.End
	}
	if t.Total != cursor {
		return fmt.Errorf("total %v does not match last end %v", t.Total, cursor)
	}
	return nil
}

// Seconds converts to float seconds for JSON and filter expressions.
func Seconds(d time.Duration) float64 { return d.Seconds() }

// FromSeconds converts float seconds back, rounded to the microsecond.
func FromSeconds(s float64) time.Duration {
	return time.Duration(math.Round(s * 1e6)) * time.Microsecond
}
