package compose

import (
	"strings"
	"unicode/utf8"
)

// Wrap breaks text into lines of at most width characters at word
// boundaries. Existing line breaks are kept and each line is wrapped on its
// own. A word longer than width gets a line to itself; words are never
// split.
func Wrap(text string, width int) string {
	if width <= 0 {
		return text
	}

	var out []string
	for _, para := range strings.Split(text, "\n") {
		words := strings.Fields(para)
		if len(words) == 0 {
			out = append(out, "")
			continue
		}

		line := words[0]
		for _, w := range words[1:] {
			if utf8.RuneCountInString(line)+1+utf8.RuneCountInString(w) <= width {
				line += " " + w
				continue
			}
			out = append(out, line)
			line = w
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}
