// Package script defines the narration records handed to the render pipeline
// and the loaders that turn collaborator JSON documents into them.
package script

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyScript = errors.New("script has no lines")
)

// Speaker identifies a cast member. Values are upper-case by convention
// ("PETER", "STEWIE").
type Speaker string

// Normalize returns the canonical upper-case form of the speaker.
func (s Speaker) Normalize() Speaker {
	return Speaker(strings.ToUpper(strings.TrimSpace(string(s))))
}

// Slug is the lower-case form used in file names and asset lookups.
func (s Speaker) Slug() string {
	return strings.ToLower(strings.TrimSpace(string(s)))
}

type Emotion string

const (
	EmotionNeutral  Emotion = "neutral"
	EmotionAngry    Emotion = "angry"
	EmotionExcited  Emotion = "excited"
	EmotionConfused Emotion = "confused"
	EmotionTeaching Emotion = "teaching"
)

var knownEmotions = map[Emotion]bool{
	EmotionNeutral:  true,
	EmotionAngry:    true,
	EmotionExcited:  true,
	EmotionConfused: true,
	EmotionTeaching: true,
}

// ParseEmotion maps a free-form tag onto the closed emotion set.
// Empty and unknown tags become neutral.
func ParseEmotion(s string) Emotion {
	e := Emotion(strings.ToLower(strings.TrimSpace(s)))
	if knownEmotions[e] {
		return e
	}
	return EmotionNeutral
}

// Placeholder marks lines that carry no spoken audio.
type Placeholder string

const (
	PlaceholderNone    Placeholder = "none"
	PlaceholderPause   Placeholder = "pause"
	PlaceholderOptions Placeholder = "options"
)

func ParsePlaceholder(s string) (Placeholder, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return PlaceholderNone, nil
	case "pause":
		return PlaceholderPause, nil
	case "options":
		return PlaceholderOptions, nil
	default:
		return "", fmt.Errorf("unknown placeholder kind %q", s)
	}
}

// Line is one unit of narration.
type Line struct {
	Index       int         `json:"index"`
	Text        string      `json:"text"`
	Speaker     Speaker     `json:"speaker"`
	Emotion     Emotion     `json:"emotion"`
	Placeholder Placeholder `json:"placeholder"`
}

// IsPlaceholder reports whether the line is rendered from silence.
func (l Line) IsPlaceholder() bool {
	return l.Placeholder == PlaceholderPause || l.Placeholder == PlaceholderOptions
}

// Valid reports whether e is in the closed emotion set.
func (e Emotion) Valid() bool { return knownEmotions[e] }

func (p Placeholder) Valid() bool {
	switch p {
	case PlaceholderNone, PlaceholderPause, PlaceholderOptions:
		return true
	}
	return false
}

// Normalize returns a copy of lines in canonical form: upper-case speakers,
// lower-case emotion and placeholder tags, and the neutral and none defaults
// for empty tags. Unknown tags are kept so Validate can reject them.
func Normalize(lines []Line) []Line {
	if lines == nil {
		return nil
	}
	out := make([]Line, len(lines))
	for i, l := range lines {
		l.Speaker = l.Speaker.Normalize()
		l.Emotion = Emotion(strings.ToLower(strings.TrimSpace(string(l.Emotion))))
		if l.Emotion == "" {
			l.Emotion = EmotionNeutral
		}
		l.Placeholder = Placeholder(strings.ToLower(strings.TrimSpace(string(l.Placeholder))))
		if l.Placeholder == "" {
			l.Placeholder = PlaceholderNone
		}
		out[i] = l
	}
	return out
}

// Validate checks the invariants the pipeline relies on. Every line needs a
// unique index and a speaker. Spoken lines need text. Emotion and
// placeholder tags must be empty or in their closed sets.
func Validate(lines []Line) error {
	if len(lines) == 0 {
		return ErrEmptyScript
	}
	seen := make(map[int]bool, len(lines))
	for i, l := range lines {
		if seen[l.Index] {
			return fmt.Errorf("line %d: duplicate index %d", i, l.Index)
		}
		seen[l.Index] = true

		if l.Speaker.Normalize() == "" {
			return fmt.Errorf("line %d: speaker is required", l.Index)
		}
		if l.Emotion != "" && !l.Emotion.Valid() {
			return fmt.Errorf("line %d: unknown emotion %q", l.Index, l.Emotion)
		}
		switch l.Placeholder {
		case "", PlaceholderNone:
			if strings.TrimSpace(l.Text) == "" {
				return fmt.Errorf("line %d: text is required for spoken lines", l.Index)
			}
		case PlaceholderPause, PlaceholderOptions:
		default:
			return fmt.Errorf("line %d: unknown placeholder kind %q", l.Index, l.Placeholder)
		}
	}
	return nil
}
