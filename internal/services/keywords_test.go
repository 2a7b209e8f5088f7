package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractKeywords(t *testing.T) {
	keywords := ExtractKeywords("Senior Go engineer with Kubernetes and C++ experience, node.js a plus")

	assert.Contains(t, keywords, "senior")
	assert.Contains(t, keywords, "engineer")
	assert.Contains(t, keywords, "kubernetes")
	assert.Contains(t, keywords, "c++")
	assert.Contains(t, keywords, "node.js")
	// Stop words and short tokens are dropped.
	assert.NotContains(t, keywords, "and")
	assert.NotContains(t, keywords, "with")
	assert.NotContains(t, keywords, "go")
	assert.NotContains(t, keywords, "plus")
}

func TestExtractKeywordsDeduplicates(t *testing.T) {
	keywords := ExtractKeywords("python Python PYTHON")
	assert.Equal(t, []string{"python"}, keywords)
}

func TestContainsSkillIsCaseInsensitive(t *testing.T) {
	skills := []string{"Go", "PostgreSQL"}
	assert.True(t, containsSkill(skills, "go"))
	assert.True(t, containsSkill(skills, "postgresql"))
	assert.False(t, containsSkill(skills, "postgres"))
}

func TestExcerptWindowsAroundTerm(t *testing.T) {
	text := "Alice spent six years writing Go services before moving to platform work on Kubernetes and Terraform at a large fintech."

	excerpt := Excerpt(text, "kubernetes", 30)
	assert.Contains(t, excerpt, "Kubernetes")
	assert.Less(t, len([]rune(excerpt)), len([]rune(text)))
	assert.Contains(t, excerpt, "…")
}

func TestExcerptFallsBackToHead(t *testing.T) {
	excerpt := Excerpt("short résumé text", "missing", 80)
	assert.Equal(t, "short résumé text", excerpt)
}
