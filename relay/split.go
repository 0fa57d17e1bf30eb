package relay

import (
	"strings"
	"unicode/utf8"
)

// SplitText cuts text into chunks of at most limit UTF-16 code units, the
// unit messengers count message length in. Cuts fall on line breaks where
// possible; a single line longer than limit is cut between runes.
func SplitText(text string, limit int) []string {
	if limit <= 0 || textLength(text) <= limit {
		return []string{text}
	}

	var (
		chunks  []string
		current strings.Builder
		size    int
	)
	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			size = 0
		}
	}

	for _, line := range strings.SplitAfter(text, "\n") {
		n := textLength(line)
		if size+n <= limit {
			current.WriteString(line)
			size += n
			continue
		}
		flush()
		for n > limit {
			head, tail := cutAt(line, limit)
			chunks = append(chunks, head)
			line, n = tail, textLength(tail)
		}
		current.WriteString(line)
		size = n
	}
	flush()

	out := chunks[:0]
	for _, chunk := range chunks {
		if chunk = strings.TrimRight(chunk, "\n"); chunk != "" {
			out = append(out, chunk)
		}
	}
	return out
}

func textLength(s string) int {
	n := 0
	for _, r := range s {
		n += runeUnits(r)
	}
	return n
}

func runeUnits(r rune) int {
	if r >= 0x10000 {
		return 2
	}
	return 1
}

// cutAt splits s after the longest prefix that fits in limit units.
func cutAt(s string, limit int) (string, string) {
	size := 0
	for i := 0; i < len(s); {
		r, width := utf8.DecodeRuneInString(s[i:])
		if size+runeUnits(r) > limit && i > 0 {
			return s[:i], s[i:]
		}
		size += runeUnits(r)
		i += width
	}
	return s, ""
}
