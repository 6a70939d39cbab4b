package script

import (
	"fmt"
	"strings"
)

const (
	QuestionMultipleChoice = "multiple_choice"

	quizPauseCue = "[Pause to think...]"
	quizClosing  = "Great job! You're getting smarter every day!"
)

type QuizModule struct {
	SubtopicTitle string         `json:"subtopic_title"`
	Questions     []QuizQuestion `json:"questions"`
}

type QuizQuestion struct {
	Number  int        `json:"question_number"`
	Type    string     `json:"type"`
	Options []string   `json:"options,omitempty"`
	Script  QuizScript `json:"script"`
}

type QuizScript struct {
	Ask    string `json:"ask"`
	Reveal string `json:"reveal"`
}

// FromQuiz flattens quiz modules into the host's narration: an intro per
// module, then ask, options display (or a pause for open questions) and
// reveal per question, and a single closing line. The host speaks every line.
func FromQuiz(modules []QuizModule) []Line {
	var lines []Line
	add := func(text string, emotion Emotion, kind Placeholder) {
		lines = append(lines, Line{
			Index:       len(lines),
			Text:        text,
			Speaker:     defaultSpeaker,
			Emotion:     emotion,
			Placeholder: kind,
		})
	}

	for _, m := range modules {
		add(fmt.Sprintf("Alright, time to test your knowledge on %s!", m.SubtopicTitle), EmotionExcited, PlaceholderNone)

		for _, q := range m.Questions {
			add(q.Script.Ask, EmotionTeaching, PlaceholderNone)

			if q.Type == QuestionMultipleChoice && len(q.Options) > 0 {
				add(FormatOptions(q.Options), EmotionTeaching, PlaceholderOptions)
			} else {
				add(quizPauseCue, EmotionTeaching, PlaceholderPause)
			}

			add(q.Script.Reveal, EmotionExcited, PlaceholderNone)
		}
	}

	if len(lines) > 0 {
		add(quizClosing, EmotionExcited, PlaceholderNone)
	}
	return lines
}

// FormatOptions lays options out one per line as "A) ...", "B) ...".
func FormatOptions(options []string) string {
	rows := make([]string, len(options))
	for i, opt := range options {
		rows[i] = fmt.Sprintf("%c) %s", rune('A'+i), opt)
	}
	return strings.Join(rows, "\n")
}
