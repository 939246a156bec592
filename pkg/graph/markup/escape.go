package markup

import "strings"

var escaper = strings.NewReplacer(
	`\`, `\\`,
	`|`, `\|`,
	`[`, `\[`,
	`]`, `\]`,
	"\n", `\n`,
	"\r", `\r`,
)

// Escape makes s safe to embed in a tag. Backslash is escaped first, then the
// tag delimiters; line breaks become \n and \r so a tag stays on one line.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Unescape reverses Escape. Unescape(Escape(s)) == s for every s.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}

	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '\\' || i == len(s)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch s[i] {
		case 'n':
			b.WriteByte('\n')
		case 'r':
			b.WriteByte('\r')
		default:
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

// splitUnescaped splits s on sep where sep is not preceded by an escaping
// backslash. Parts are returned still escaped.
func splitUnescaped(s string, sep byte) []string {
	var parts []string
	start := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case sep:
			parts = append(parts, s[start:i])
			start = i + 1
		}
	}
	return append(parts, s[start:])
}

// indexUnescaped returns the first index of c in s that is not escaped, or -1.
func indexUnescaped(s string, c byte) int {
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++
		case c:
			return i
		}
	}
	return -1
}
