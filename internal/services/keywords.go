package services

import (
	"strings"
	"unicode"
)

// Stop words filtered out of the naive keyword fallback. When structured JD
// extraction times out, matching degrades to these keywords over the
// lexical path instead of returning nothing.
var keywordStopWords = map[string]bool{
	"and": true, "the": true, "for": true, "with": true, "you": true,
	"are": true, "have": true, "will": true, "this": true, "that": true,
	"from": true, "our": true, "your": true, "their": true, "they": true,
	"work": true, "team": true, "role": true, "job": true, "join": true,
	"about": true, "which": true, "what": true, "who": true, "how": true,
	"can": true, "not": true, "but": true, "all": true, "also": true,
	"more": true, "than": true, "into": true, "has": true, "its": true,
	"was": true, "were": true, "been": true, "each": true, "new": true,
	"use": true, "using": true, "used": true, "well": true, "such": true,
	"years": true, "year": true, "experience": true, "required": true,
	"preferred": true, "plus": true, "must": true, "should": true,
	"strong": true, "ability": true, "skills": true, "knowledge": true,
}

// ExtractKeywords tokenizes text into lowercase keywords of at least three
// runes, skipping stop words. Tech tokens like "c++", "c#" and "node.js"
// survive because + # . count as word characters.
func ExtractKeywords(text string) []string {
	seen := make(map[string]bool)
	var keywords []string
	var word strings.Builder

	flush := func() {
		w := word.String()
		word.Reset()
		w = strings.TrimRight(w, ".")
		if len([]rune(w)) >= 3 && !keywordStopWords[w] && !seen[w] {
			seen[w] = true
			keywords = append(keywords, w)
		}
	}

	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '+' || r == '#' || r == '.' {
			word.WriteRune(r)
		} else {
			flush()
		}
	}
	flush()

	return keywords
}

// containsTerm reports whether term occurs in text, case-insensitively.
func containsTerm(text, term string) bool {
	if term == "" {
		return false
	}
	return strings.Contains(strings.ToLower(text), strings.ToLower(term))
}

// containsSkill reports whether the skill list contains the term,
// case-insensitively.
func containsSkill(skills []string, term string) bool {
	for _, s := range skills {
		if strings.EqualFold(s, term) {
			return true
		}
	}
	return false
}
