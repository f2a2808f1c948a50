package thinking

import "strings"

const boxedPrefix = `\boxed{`

// ExtractBoxed returns the content of the last \boxed{...} group in text,
// honoring nested braces. It returns "" when there is none or the group is
// unterminated.
func ExtractBoxed(text string) string {
	start := strings.LastIndex(text, boxedPrefix)
	if start < 0 {
		return ""
	}
	body := text[start+len(boxedPrefix):]
	depth := 1
	for i, r := range body {
		switch r {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return strings.TrimSpace(body[:i])
			}
		}
	}
	return ""
}
