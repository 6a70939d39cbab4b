// Package cast holds the voice cast of a render: which voice speaks for each
// speaker, how their captions look, and where their portrait images live.
// A Cast is a plain value handed to the synthesizer and the compositor, so
// concurrent renders can run with different casts.
package cast

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/heimdex/heimdex-shorts/internal/script"
)

var (
	ErrUnknownSpeaker = errors.New("speaker is not in the cast")
	ErrNoVoice        = errors.New("speaker has no voice id")
)

// Corner is a fixed screen position for a speaker's portrait.
type Corner string

const (
	CornerBottomRight Corner = "bottom-right"
	CornerBottomLeft  Corner = "bottom-left"
	CornerTopRight    Corner = "top-right"
	CornerTopLeft     Corner = "top-left"
)

// Corners is the order speakers are assigned to when they do not pin one.
var Corners = []Corner{CornerBottomRight, CornerBottomLeft, CornerTopRight, CornerTopLeft}

func (c Corner) Valid() bool {
	switch c {
	case CornerBottomRight, CornerBottomLeft, CornerTopRight, CornerTopLeft:
		return true
	}
	return false
}

// CaptionStyle captures drawtext styling for one speaker.
type CaptionStyle struct {
	FontFile    string `yaml:"font_file" json:"font_file,omitempty"`
	FontSize    int    `yaml:"font_size" json:"font_size"`
	FontColor   string `yaml:"font_color" json:"font_color"`
	BoxColor    string `yaml:"box_color" json:"box_color"`
	BoxBorder   int    `yaml:"box_border" json:"box_border"`
	LineSpacing int    `yaml:"line_spacing" json:"line_spacing"`
	// Y is a drawtext y expression; empty centers the text vertically.
	Y string `yaml:"y" json:"y,omitempty"`
}

// merge fills zero fields of s from base.
func (s CaptionStyle) merge(base CaptionStyle) CaptionStyle {
	if s.FontFile == "" {
		s.FontFile = base.FontFile
	}
	if s.FontSize == 0 {
		s.FontSize = base.FontSize
	}
	if s.FontColor == "" {
		s.FontColor = base.FontColor
	}
	if s.BoxColor == "" {
		s.BoxColor = base.BoxColor
	}
	if s.BoxBorder == 0 {
		s.BoxBorder = base.BoxBorder
	}
	if s.LineSpacing == 0 {
		s.LineSpacing = base.LineSpacing
	}
	if s.Y == "" {
		s.Y = base.Y
	}
	return s
}

// Member is one speaker in the cast.
type Member struct {
	VoiceID string       `yaml:"voice_id" json:"voice_id"`
	Caption CaptionStyle `yaml:"caption" json:"caption"`
	Corner  Corner       `yaml:"corner,omitempty" json:"corner,omitempty"`
}

type Cast struct {
	// AssetRoot holds portrait images named {speaker}.png or
	// {speaker}_{emotion}.png.
	AssetRoot     string                    `yaml:"asset_root" json:"asset_root"`
	WrapWidth     int                       `yaml:"wrap_width" json:"wrap_width"`
	OverlayHeight int                       `yaml:"overlay_height" json:"overlay_height"`
	Default       CaptionStyle              `yaml:"default_caption" json:"default_caption"`
	Options       CaptionStyle              `yaml:"options_caption" json:"options_caption"`
	Speakers      map[script.Speaker]Member `yaml:"speakers" json:"speakers"`
}

const (
	DefaultWrapWidth     = 32
	DefaultOverlayHeight = 480
)

// Default returns the built-in two-speaker cast.
func Default() Cast {
	return Cast{
		AssetRoot:     filepath.Join("assets", "characters"),
		WrapWidth:     DefaultWrapWidth,
		OverlayHeight: DefaultOverlayHeight,
		Default: CaptionStyle{
			FontSize:    54,
			FontColor:   "white",
			BoxColor:    "0x00000080",
			BoxBorder:   10,
			LineSpacing: 18,
		},
		Options: CaptionStyle{
			FontSize:    48,
			FontColor:   "white",
			BoxColor:    "0x0000AA80",
			BoxBorder:   10,
			LineSpacing: 18,
		},
		Speakers: map[script.Speaker]Member{
			"PETER": {
				Caption: CaptionStyle{FontColor: "white", BoxColor: "0x00000080"},
			},
			"STEWIE": {
				Caption: CaptionStyle{FontColor: "yellow", BoxColor: "0x0000FF80"},
			},
		},
	}
}

// Load reads a cast file. A missing file yields the default cast.
func Load(path string) (Cast, error) {
	if path == "" {
		return Default(), nil
	}
	contents, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return Default(), nil
		}
		return Cast{}, fmt.Errorf("read cast: %w", err)
	}

	var c Cast
	if err := yaml.Unmarshal(contents, &c); err != nil {
		return Cast{}, fmt.Errorf("unmarshal cast: %w", err)
	}
	c.ApplyDefaults()

	if !filepath.IsAbs(c.AssetRoot) {
		c.AssetRoot = filepath.Join(filepath.Dir(path), c.AssetRoot)
	}
	if err := c.Validate(); err != nil {
		return Cast{}, err
	}
	return c, nil
}

// ApplyDefaults fills fields the YAML omitted.
func (c *Cast) ApplyDefaults() {
	defaults := Default()

	if strings.TrimSpace(c.AssetRoot) == "" {
		c.AssetRoot = defaults.AssetRoot
	}
	if c.WrapWidth <= 0 {
		c.WrapWidth = defaults.WrapWidth
	}
	if c.OverlayHeight <= 0 {
		c.OverlayHeight = defaults.OverlayHeight
	}
	c.Default = c.Default.merge(defaults.Default)
	c.Options = c.Options.merge(defaults.Options)

	if len(c.Speakers) == 0 {
		c.Speakers = defaults.Speakers
		return
	}
	normalized := make(map[script.Speaker]Member, len(c.Speakers))
	for name, m := range c.Speakers {
		normalized[name.Normalize()] = m
	}
	c.Speakers = normalized
}

func (c Cast) Validate() error {
	for name, m := range c.Speakers {
		if name == "" {
			return errors.New("cast: empty speaker name")
		}
		if m.Corner != "" && !m.Corner.Valid() {
			return fmt.Errorf("cast: speaker %s: unknown corner %q", name, m.Corner)
		}
	}
	return nil
}

// SetVoice assigns a voice id, adding the speaker if absent.
func (c *Cast) SetVoice(speaker script.Speaker, voiceID string) {
	if c.Speakers == nil {
		c.Speakers = make(map[script.Speaker]Member)
	}
	key := speaker.Normalize()
	m := c.Speakers[key]
	m.VoiceID = voiceID
	c.Speakers[key] = m
}

// VoiceFor returns the voice id for a speaker.
func (c Cast) VoiceFor(speaker script.Speaker) (string, error) {
	m, ok := c.Speakers[speaker.Normalize()]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownSpeaker, speaker)
	}
	if m.VoiceID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoVoice, speaker)
	}
	return m.VoiceID, nil
}

// StyleFor returns the caption style of a speaker merged over the default
// style. Unknown speakers get the default style.
func (c Cast) StyleFor(speaker script.Speaker) CaptionStyle {
	m, ok := c.Speakers[speaker.Normalize()]
	if !ok {
		return c.Default
	}
	return m.Caption.merge(c.Default)
}

// OptionsStyle is the style used for options-display captions.
func (c Cast) OptionsStyle() CaptionStyle {
	return c.Options.merge(c.Default)
}

// PinnedCorner returns the corner a speaker is pinned to, if any.
func (c Cast) PinnedCorner(speaker script.Speaker) (Corner, bool) {
	m, ok := c.Speakers[speaker.Normalize()]
	if !ok || m.Corner == "" {
		return "", false
	}
	return m.Corner, true
}

// ResolveImage finds the portrait for a speaker and emotion. When the exact
// emotion is missing or outside the known set it falls back to the speaker's
// neutral image; it reports false when neither exists.
func (c Cast) ResolveImage(speaker script.Speaker, emotion script.Emotion) (string, bool) {
	slug := speaker.Slug()
	if slug == "" {
		return "", false
	}

	var candidates []string
	if emotion.Valid() && emotion != script.EmotionNeutral {
		candidates = append(candidates, fmt.Sprintf("%s_%s.png", slug, emotion))
	}
	candidates = append(candidates, slug+".png", slug+"_neutral.png")

	for _, name := range candidates {
		p := filepath.Join(c.AssetRoot, name)
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p, true
		}
	}
	return "", false
}

// MissingVoices returns the sorted speakers that have no voice id.
func (c Cast) MissingVoices() []script.Speaker {
	var missing []script.Speaker
	for _, name := range c.Names() {
		if c.Speakers[name].VoiceID == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

// Names returns the speaker names in sorted order.
func (c Cast) Names() []script.Speaker {
	names := make([]script.Speaker, 0, len(c.Speakers))
	for name := range c.Speakers {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}
