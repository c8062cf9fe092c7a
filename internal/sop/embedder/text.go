package embedder

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// basicTokens applies BERT's basic tokenization: drop control characters,
// lowercase, strip accents, split on whitespace, and emit each punctuation
// mark and CJK ideograph as its own token.
func basicTokens(text string) []string {
	var (
		tokens []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			tokens = append(tokens, cur.String())
			cur.Reset()
		}
	}

	for _, r := range norm.NFD.String(strings.ToLower(text)) {
		switch {
		case r == 0 || r == unicode.ReplacementChar || isControl(r):
		case unicode.Is(unicode.Mn, r):
		case isWhitespace(r):
			flush()
		case isPunctuation(r) || isCJK(r):
			flush()
			tokens = append(tokens, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()
	return tokens
}

func isWhitespace(r rune) bool {
	switch r {
	case ' ', '\t', '\n', '\r':
		return true
	}
	return unicode.Is(unicode.Zs, r)
}

func isControl(r rune) bool {
	switch r {
	case '\t', '\n', '\r':
		return false
	}
	return unicode.IsControl(r)
}

// isPunctuation counts every non-alphanumeric ASCII symbol as punctuation,
// like BERT does.
func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) ||
		(r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func isCJK(r rune) bool {
	return unicode.Is(unicode.Han, r)
}
