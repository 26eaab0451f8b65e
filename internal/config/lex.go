package config

import "strings"

// tokenize splits the directive grammar into tokens: "{", "}", ";" are
// always standalone tokens, runs of whitespace separate everything else,
// and "#" begins a comment that runs to end of line. Ported from
// original_source/Config.cpp's tokenize().
func tokenize(content string) []string {
	var tokens []string
	var cur strings.Builder

	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	inComment := false
	for i := 0; i < len(content); i++ {
		c := content[i]
		if inComment {
			if c == '\n' {
				inComment = false
			}
			continue
		}
		switch {
		case c == '#':
			flush()
			inComment = true
		case c == '{' || c == '}' || c == ';':
			flush()
			tokens = append(tokens, string(c))
		case c == ' ' || c == '\t' || c == '\r' || c == '\n':
			flush()
		default:
			cur.WriteByte(c)
		}
	}
	flush()

	return tokens
}
