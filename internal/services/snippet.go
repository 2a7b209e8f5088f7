package services

import (
	"strings"
	"unicode/utf8"
)

const defaultExcerptWindow = 80

// Excerpt returns a short window of text around the first occurrence of
// term, used for provenance excerpts and match evidence. Falls back to the
// head of the text when the term is absent.
func Excerpt(text, term string, window int) string {
	if window <= 0 {
		window = defaultExcerptWindow
	}

	text = strings.Join(strings.Fields(text), " ")
	if text == "" {
		return ""
	}

	idx := -1
	if term != "" {
		idx = strings.Index(strings.ToLower(text), strings.ToLower(term))
	}
	if idx < 0 {
		return headRunes(text, window)
	}

	runes := []rune(text)
	// Byte offset to rune offset
	runeIdx := utf8.RuneCountInString(text[:idx])
	termLen := utf8.RuneCountInString(term)

	start := runeIdx - window/2
	if start < 0 {
		start = 0
	}
	end := runeIdx + termLen + window/2
	if end > len(runes) {
		end = len(runes)
	}

	out := string(runes[start:end])
	if start > 0 {
		out = "…" + out
	}
	if end < len(runes) {
		out = out + "…"
	}
	return out
}

func headRunes(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n]) + "…"
}
