package report

import (
	"strings"
	"unicode/utf8"
)

// Split cuts text into chunks of at most limit characters, breaking on line
// boundaries. A single line longer than limit is cut by characters.
func Split(text string, limit int) []string {
	if limit <= 0 || utf8.RuneCountInString(text) <= limit {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
		curLen int
	)
	flush := func() {
		if curLen > 0 {
			chunks = append(chunks, strings.TrimRight(cur.String(), "\n"))
			cur.Reset()
			curLen = 0
		}
	}

	for _, ln := range strings.SplitAfter(text, "\n") {
		n := utf8.RuneCountInString(strings.TrimRight(ln, "\n"))
		if curLen > 0 && curLen+n > limit {
			flush()
		}
		if n <= limit {
			cur.WriteString(ln)
			curLen += utf8.RuneCountInString(ln)
			continue
		}

		runes := []rune(strings.TrimRight(ln, "\n"))
		for len(runes) > limit {
			chunks = append(chunks, string(runes[:limit]))
			runes = runes[limit:]
		}
		cur.WriteString(string(runes))
		cur.WriteByte('\n')
		curLen = len(runes) + 1
	}
	flush()

	out := chunks[:0]
	for _, c := range chunks {
		if strings.TrimSpace(c) != "" {
			out = append(out, c)
		}
	}
	return out
}
