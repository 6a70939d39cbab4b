package script

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Record is the dialogue record shape produced by the script-generation
// collaborator.
type Record struct {
	Caption     string `json:"caption"`
	Speaker     string `json:"speaker"`
	Emotion     string `json:"emotion,omitempty"`
	IsOptions   bool   `json:"is_options,omitempty"`
	Placeholder string `json:"placeholder,omitempty"`
}

// Subtopic groups dialogue under a title.
type Subtopic struct {
	Title    string   `json:"subtopic_title"`
	Dialogue []Record `json:"dialogue"`
}

// Document is any of the accepted top-level shapes. Exactly one of the
// fields is expected to be populated.
type Document struct {
	Lines     []Line       `json:"lines,omitempty"`
	Records   []Record     `json:"transcripts,omitempty"`
	Subtopics []Subtopic   `json:"subtopic_transcripts,omitempty"`
	Quiz      []QuizModule `json:"quiz_modules,omitempty"`
}

const defaultSpeaker Speaker = "PETER"

// ParseDocument decodes a script document and returns its lines in order.
// Record-based documents are indexed from zero; subtopic documents are
// flattened in order.
func ParseDocument(data []byte) ([]Line, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode script document: %w", err)
	}

	var lines []Line
	switch {
	case len(doc.Lines) > 0:
		lines = Normalize(doc.Lines)
	case len(doc.Records) > 0:
		recs, err := FromRecords(doc.Records)
		if err != nil {
			return nil, err
		}
		lines = recs
	case len(doc.Subtopics) > 0:
		var all []Record
		for _, st := range doc.Subtopics {
			all = append(all, st.Dialogue...)
		}
		recs, err := FromRecords(all)
		if err != nil {
			return nil, err
		}
		lines = recs
	case len(doc.Quiz) > 0:
		lines = FromQuiz(doc.Quiz)
	default:
		return nil, ErrEmptyScript
	}

	if err := Validate(lines); err != nil {
		return nil, err
	}
	return lines, nil
}

// FromRecords converts collaborator records into lines. A caption wrapped
// in square brackets is a pause cue; is_options marks an options display.
func FromRecords(records []Record) ([]Line, error) {
	lines := make([]Line, 0, len(records))
	for i, r := range records {
		kind, err := ParsePlaceholder(r.Placeholder)
		if err != nil {
			return nil, fmt.Errorf("record %d: %w", i, err)
		}
		if kind == PlaceholderNone {
			switch {
			case r.IsOptions:
				kind = PlaceholderOptions
			case isPauseCue(r.Caption):
				kind = PlaceholderPause
			}
		}

		speaker := Speaker(r.Speaker).Normalize()
		if speaker == "" {
			speaker = defaultSpeaker
		}

		lines = append(lines, Line{
			Index:       i,
			Text:        r.Caption,
			Speaker:     speaker,
			Emotion:     ParseEmotion(r.Emotion),
			Placeholder: kind,
		})
	}
	return lines, nil
}

func isPauseCue(caption string) bool {
	c := strings.TrimSpace(caption)
	return len(c) >= 2 && strings.HasPrefix(c, "[") && strings.HasSuffix(c, "]")
}
