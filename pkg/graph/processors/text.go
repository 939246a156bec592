package processors

import (
	"regexp"
	"strings"
	"unicode"
)

// span is a half-open byte range of a text.
type span struct {
	start, end int
}

func (s span) overlaps(o span) bool {
	return s.start < o.end && o.start < s.end
}

// sentenceEnd matches a terminator followed by whitespace. Whether it really
// ends a sentence is decided by what comes next.
var sentenceEnd = regexp.MustCompile(`[.!?]["')\]]?\s+|\n\s*\n`)

// splitSentences returns sentence spans. A terminator only splits when the
// next sentence starts with an upper-case letter, a digit, a quote or '$',
// which keeps "Apple Inc. reported" together.
func splitSentences(text string) []span {
	var spans []span
	start := 0
	for _, m := range sentenceEnd.FindAllStringIndex(text, -1) {
		if m[1] < len(text) && !startsSentence(text[m[1]:]) && !strings.Contains(text[m[0]:m[1]], "\n\n") {
			continue
		}
		if s := trimSpan(text, span{start, m[1]}); s.end > s.start {
			spans = append(spans, s)
		}
		start = m[1]
	}
	if s := trimSpan(text, span{start, len(text)}); s.end > s.start {
		spans = append(spans, s)
	}
	return spans
}

func startsSentence(rest string) bool {
	for _, r := range rest {
		return unicode.IsUpper(r) || unicode.IsDigit(r) || r == '$' || r == '"' || r == '\''
	}
	return false
}

func trimSpan(text string, s span) span {
	for s.start < s.end && unicode.IsSpace(rune(text[s.start])) {
		s.start++
	}
	for s.end > s.start && unicode.IsSpace(rune(text[s.end-1])) {
		s.end--
	}
	return s
}

// contextAt returns the sentence holding byte offset pos.
func contextAt(text string, sentences []span, pos int) string {
	for _, s := range sentences {
		if pos >= s.start && pos < s.end {
			return text[s.start:s.end]
		}
	}
	return strings.TrimSpace(text)
}

// normalizeNumber strips thousands separators and a "$" from an amount.
func normalizeNumber(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	return strings.ReplaceAll(strings.TrimSpace(s), ",", "")
}
