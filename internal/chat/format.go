package chat

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	markerRe    = regexp.MustCompile(`[*#]+`)
	paragraphRe = regexp.MustCompile(`\n{2,}`)
)

// Format cleans a raw chat message for display. Markdown emphasis and
// heading markers are removed, runs of blank lines collapse into a single
// paragraph break, and soft-wrapped lines are rejoined into flowing text.
// A line that starts with a dash, a bullet or a digit keeps its own line.
func Format(raw string) string {
	if raw == "" {
		return ""
	}
	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = markerRe.ReplaceAllString(text, "")

	paragraphs := paragraphRe.Split(text, -1)
	for i, p := range paragraphs {
		paragraphs[i] = rejoin(p)
	}
	return strings.TrimSpace(strings.Join(paragraphs, "\n\n"))
}

// rejoin merges soft-wrapped lines of one paragraph.
func rejoin(paragraph string) string {
	lines := strings.Split(paragraph, "\n")
	var b strings.Builder
	for i, line := range lines {
		if i > 0 {
			if continues(line) && lines[i-1] != "" {
				b.WriteByte(' ')
			} else {
				b.WriteByte('\n')
			}
		}
		b.WriteString(line)
	}
	return b.String()
}

// continues reports whether line flows on from the previous one. List
// items (dash, bullet or numbered) start a new line.
func continues(line string) bool {
	r, _ := utf8.DecodeRuneInString(line)
	switch {
	case line == "", r == '-', r == '•':
		return false
	case r >= '0' && r <= '9':
		return false
	}
	return true
}
