package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

type ExtractionKind string

const (
	KindJD     ExtractionKind = "jd"
	KindResume ExtractionKind = "resume"
)

// ResumeFacts is the validated structured view of one résumé.
type ResumeFacts struct {
	Name            string   `json:"name"`
	Email           string   `json:"email"`
	Phone           string   `json:"phone"`
	Location        string   `json:"location"`
	YearsExperience *float64 `json:"years_experience"`
	CurrentTitle    string   `json:"current_title"`
	CurrentCompany  string   `json:"current_company"`
	Skills          []string `json:"skills"`
}

// JDFacts is the validated structured view of one job description. It is
// ephemeral: built per matching request and never persisted.
type JDFacts struct {
	RequiredSkills   []string `json:"required_skills"`
	NiceToHaveSkills []string `json:"nice_to_have_skills"`
	YearsMin         *float64 `json:"years_min"`
	Location         string   `json:"location"`
}

// AllSkills returns required then nice-to-have terms, deduplicated.
func (j *JDFacts) AllSkills() []string {
	out := make([]string, 0, len(j.RequiredSkills)+len(j.NiceToHaveSkills))
	out = append(out, j.RequiredSkills...)
	for _, s := range j.NiceToHaveSkills {
		if !containsSkill(out, s) {
			out = append(out, s)
		}
	}
	return out
}

// Extraction is the output of one adapter call: validated facts for the
// requested kind plus the embedding of the input text.
type Extraction struct {
	Kind      ExtractionKind
	Resume    *ResumeFacts
	JD        *JDFacts
	Embedding []float32
}

// Extractor turns free text into validated structured facts. Downstream
// components only ever see output that passed schema validation here; the
// LLM's non-determinism stops at this boundary. Implementations are
// stateless and safe for concurrent use.
type Extractor interface {
	Extract(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error)
}

type extractor struct {
	gemini        GeminiService
	promptBuilder *PromptBuilder
	maxRetries    int
	logger        *zap.Logger
}

func NewExtractor(gemini GeminiService, maxRetries int, logger *zap.Logger) Extractor {
	if maxRetries < 1 {
		maxRetries = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &extractor{
		gemini:        gemini,
		promptBuilder: NewPromptBuilder(),
		maxRetries:    maxRetries,
		logger:        logger,
	}
}

// Extract implements Extractor.
func (e *extractor) Extract(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input text", ErrValidation)
	}

	var prompt string
	switch kind {
	case KindResume:
		prompt = e.promptBuilder.BuildResumeExtractionPrompt(text)
	case KindJD:
		prompt = e.promptBuilder.BuildJDExtractionPrompt(text)
	default:
		return nil, fmt.Errorf("%w: unknown extraction kind %q", ErrValidation, kind)
	}

	response, err := e.gemini.GenerateTextWithRetry(ctx, prompt, 0.1, e.maxRetries)
	if err != nil {
		return nil, err
	}

	result, validationErr := e.parseAndValidate(response, kind)
	if validationErr != nil {
		// One stricter reprompt, then the response is surfaced as malformed.
		e.logger.Warn("extraction failed schema validation, reprompting",
			zap.String("kind", string(kind)),
			zap.Error(validationErr))

		reprompt := e.promptBuilder.BuildStrictReprompt(prompt, validationErr.Error())
		response, err = e.gemini.GenerateText(ctx, reprompt, 0)
		if err != nil {
			return nil, err
		}
		result, validationErr = e.parseAndValidate(response, kind)
		if validationErr != nil {
			return nil, fmt.Errorf("%w: %s", ErrMalformedResponse, validationErr)
		}
	}

	embedding, err := e.gemini.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	result.Embedding = embedding

	return result, nil
}

func (e *extractor) parseAndValidate(response string, kind ExtractionKind) (*Extraction, error) {
	jsonStr := extractJSON(response)

	var raw map[string]json.RawMessage
	if err := json.Unmarshal([]byte(jsonStr), &raw); err != nil {
		return nil, fmt.Errorf("response is not a JSON object: %s", err)
	}

	switch kind {
	case KindResume:
		for _, key := range []string{"name", "skills"} {
			if _, ok := raw[key]; !ok {
				return nil, fmt.Errorf("missing required key %q", key)
			}
		}
		var facts ResumeFacts
		if err := json.Unmarshal([]byte(jsonStr), &facts); err != nil {
			return nil, fmt.Errorf("schema mismatch: %s", err)
		}
		facts.Skills = dedupeSkills(facts.Skills)
		if facts.YearsExperience != nil && (*facts.YearsExperience < 0 || *facts.YearsExperience > 80) {
			return nil, fmt.Errorf("years_experience out of range: %v", *facts.YearsExperience)
		}
		return &Extraction{Kind: kind, Resume: &facts}, nil

	case KindJD:
		if _, ok := raw["required_skills"]; !ok {
			return nil, fmt.Errorf("missing required key %q", "required_skills")
		}
		var facts JDFacts
		if err := json.Unmarshal([]byte(jsonStr), &facts); err != nil {
			return nil, fmt.Errorf("schema mismatch: %s", err)
		}
		facts.RequiredSkills = dedupeSkills(facts.RequiredSkills)
		facts.NiceToHaveSkills = dedupeSkills(facts.NiceToHaveSkills)
		if len(facts.RequiredSkills) == 0 && len(facts.NiceToHaveSkills) == 0 {
			return nil, fmt.Errorf("no skills extracted")
		}
		if facts.YearsMin != nil && (*facts.YearsMin < 0 || *facts.YearsMin > 80) {
			return nil, fmt.Errorf("years_min out of range: %v", *facts.YearsMin)
		}
		return &Extraction{Kind: kind, JD: &facts}, nil
	}

	return nil, fmt.Errorf("unknown kind %q", kind)
}

// dedupeSkills removes case-insensitive duplicates and blank entries while
// keeping the first spelling seen.
func dedupeSkills(skills []string) []string {
	seen := make(map[string]bool, len(skills))
	out := make([]string, 0, len(skills))
	for _, s := range skills {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		key := strings.ToLower(s)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// extractJSON tries to extract JSON from text that might contain markdown or other formatting
func extractJSON(text string) string {
	// Remove markdown code blocks
	text = strings.ReplaceAll(text, "```json", "")
	text = strings.ReplaceAll(text, "```", "")

	// Find JSON object boundaries
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start != -1 && end != -1 && end > start {
		return text[start : end+1]
	}

	return text
}
