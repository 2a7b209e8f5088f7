package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractResumeParsesValidatedFacts(t *testing.T) {
	gemini := &mockGemini{
		Response: "```json\n" + `{
			"name": "Jane Doe",
			"email": "jane@example.com",
			"phone": "+1 555 123 4567",
			"location": "Berlin",
			"years_experience": 6,
			"current_title": "Senior Engineer",
			"current_company": "Acme",
			"skills": ["Go", "go", "Postgres", ""]
		}` + "\n```",
	}
	extractor := NewExtractor(gemini, 3, nil)

	result, err := extractor.Extract(context.Background(), "Jane Doe résumé text", KindResume)
	require.NoError(t, err)
	require.NotNil(t, result.Resume)

	assert.Equal(t, "Jane Doe", result.Resume.Name)
	// Duplicate and blank skills are dropped, first spelling wins.
	assert.Equal(t, []string{"Go", "Postgres"}, result.Resume.Skills)
	require.NotNil(t, result.Resume.YearsExperience)
	assert.Equal(t, 6.0, *result.Resume.YearsExperience)
	assert.Len(t, result.Embedding, EmbeddingDim)
}

func TestExtractRepromptsOnceOnMalformedResponse(t *testing.T) {
	gemini := &mockGemini{
		ResponseQueue: []string{
			"Sure! Here are the facts you asked for.",
			`{"name": "Jane Doe", "skills": ["Go"]}`,
		},
	}
	extractor := NewExtractor(gemini, 3, nil)

	result, err := extractor.Extract(context.Background(), "Jane Doe résumé text", KindResume)
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", result.Resume.Name)
	assert.Equal(t, 2, gemini.Calls)
}

func TestExtractFailsAfterSecondMalformedResponse(t *testing.T) {
	gemini := &mockGemini{Response: "I cannot help with that."}
	extractor := NewExtractor(gemini, 3, nil)

	_, err := extractor.Extract(context.Background(), "some résumé", KindResume)
	assert.ErrorIs(t, err, ErrMalformedResponse)
	assert.Equal(t, 2, gemini.Calls)
}

func TestExtractRejectsOutOfRangeYears(t *testing.T) {
	gemini := &mockGemini{
		Response: `{"name": "Jane", "skills": ["Go"], "years_experience": 250}`,
	}
	extractor := NewExtractor(gemini, 3, nil)

	_, err := extractor.Extract(context.Background(), "résumé", KindResume)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestExtractJDRequiresSkills(t *testing.T) {
	gemini := &mockGemini{
		Response: `{"required_skills": [], "nice_to_have_skills": []}`,
	}
	extractor := NewExtractor(gemini, 3, nil)

	_, err := extractor.Extract(context.Background(), "vague job description", KindJD)
	assert.ErrorIs(t, err, ErrMalformedResponse)
}

func TestExtractJDParsesConstraints(t *testing.T) {
	gemini := &mockGemini{
		Response: `{
			"required_skills": ["Python", "Django"],
			"nice_to_have_skills": ["Redis", "python"],
			"years_min": 5,
			"location": "Remote"
		}`,
	}
	extractor := NewExtractor(gemini, 3, nil)

	result, err := extractor.Extract(context.Background(), "backend JD text here", KindJD)
	require.NoError(t, err)
	require.NotNil(t, result.JD)
	assert.Equal(t, []string{"Python", "Django"}, result.JD.RequiredSkills)
	require.NotNil(t, result.JD.YearsMin)
	assert.Equal(t, 5.0, *result.JD.YearsMin)
	// AllSkills deduplicates across the two lists.
	assert.Equal(t, []string{"Python", "Django", "Redis"}, result.JD.AllSkills())
}

func TestExtractRejectsEmptyInput(t *testing.T) {
	extractor := NewExtractor(&mockGemini{}, 3, nil)
	_, err := extractor.Extract(context.Background(), "   ", KindResume)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestExtractJSONStripsMarkdownFences(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, extractJSON(`prefix {"a":1} suffix`))
	assert.Equal(t, `{"a":1}`, extractJSON(`{"a":1}`))
}
