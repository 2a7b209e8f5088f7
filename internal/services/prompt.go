package services

import "fmt"

type PromptBuilder struct{}

func NewPromptBuilder() *PromptBuilder {
	return &PromptBuilder{}
}

// BuildResumeExtractionPrompt creates the prompt that turns raw résumé text
// into structured candidate facts.
func (pb *PromptBuilder) BuildResumeExtractionPrompt(resumeText string) string {
	return fmt.Sprintf(`You are an expert technical recruiter parsing a candidate résumé.

RESUME TEXT:
%s

Extract the candidate's structured profile from the text above.

Return your response in the following JSON format:
{
  "name": "<full name, or empty string if absent>",
  "email": "<email address, or empty string>",
  "phone": "<phone number, or empty string>",
  "location": "<current city/region, or empty string>",
  "years_experience": <total years of professional experience as a number, or null if not stated>,
  "current_title": "<most recent job title, or empty string>",
  "current_company": "<most recent employer, or empty string>",
  "skills": ["<skill 1>", "<skill 2>", ...]
}

Rules:
- Only extract facts stated in the résumé. Never invent values.
- Skills are short technology/competency names ("Python", "PostgreSQL"), not sentences.
- years_experience must be a plain number (e.g. 5 or 5.5), never a string or range.

Return ONLY the JSON object, no other text.`, resumeText)
}

// BuildJDExtractionPrompt creates the prompt that turns a job description
// into structured requirements.
func (pb *PromptBuilder) BuildJDExtractionPrompt(jdText string) string {
	return fmt.Sprintf(`You are an expert technical recruiter parsing a job description.

JOB DESCRIPTION:
%s

Extract the structured requirements from the job description above.

Return your response in the following JSON format:
{
  "required_skills": ["<skill 1>", "<skill 2>", ...],
  "nice_to_have_skills": ["<skill 1>", ...],
  "years_min": <minimum years of experience as a number, or null if not stated>,
  "location": "<required location, or empty string if remote/unstated>"
}

Rules:
- required_skills are hard requirements; nice_to_have_skills are preferences.
- Skills are short technology/competency names, not sentences.
- years_min must be a plain number (e.g. 3), never a string or range.

Return ONLY the JSON object, no other text.`, jdText)
}

// BuildStrictReprompt wraps a prompt after a schema-validation failure. One
// reprompt is attempted before the response is surfaced as malformed.
func (pb *PromptBuilder) BuildStrictReprompt(original, validationErr string) string {
	return fmt.Sprintf(`%s

IMPORTANT: Your previous answer was rejected because it did not match the required schema:
%s

Respond again with ONLY a single valid JSON object exactly matching the schema. No markdown fences, no commentary, no trailing text.`, original, validationErr)
}
