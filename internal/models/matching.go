package models

import "time"

// Reason codes attached to match evidence. Every returned result carries at
// least the configured minimum number of evidence entries, each with one of
// these codes.
const (
	ReasonRequiredSkill      = "required_skill"
	ReasonNiceToHaveSkill    = "nice_to_have_skill"
	ReasonSemanticSimilarity = "semantic_similarity"
	ReasonYearsThreshold     = "years_threshold"
	ReasonLocationMatch      = "location_match"
	ReasonKeywordMatch       = "keyword_match"
)

type MatchFilters struct {
	Location string   `json:"location,omitempty"`
	YearsMin *float64 `json:"years_min,omitempty"`
}

type MatchRequest struct {
	JD      string        `json:"jd" validate:"required,min=10"`
	TopK    int           `json:"top_k" validate:"omitempty,min=1,max=100"`
	Filters *MatchFilters `json:"filters,omitempty"`
	Explain bool          `json:"explain"`
}

// Evidence is one human-inspectable justification for a ranking decision.
type Evidence struct {
	ReasonCode string `json:"reason_code"`
	Text       string `json:"text"`
	Excerpt    string `json:"excerpt,omitempty"`
}

type MatchResult struct {
	CandidateID   string     `json:"candidate_id"`
	Name          string     `json:"name"`
	CurrentTitle  string     `json:"current_title,omitempty"`
	Location      string     `json:"location,omitempty"`
	FusedScore    float64    `json:"fused_score"`
	LexicalScore  float64    `json:"lexical_score"`
	SemanticScore float64    `json:"semantic_score"`
	Evidence      []Evidence `json:"evidence"`
	UpdatedAt     time.Time  `json:"updated_at"`
}

type MatchResponse struct {
	Results []MatchResult `json:"results"`
	Total   int           `json:"total"`
	// Degraded is set when structured JD extraction timed out and matching
	// fell back to keyword extraction over the lexical path only.
	Degraded     bool `json:"degraded"`
	SemanticUsed bool `json:"semantic_used"`
}

type IngestRequest struct {
	Text   string `json:"text" validate:"required,min=20"`
	Source string `json:"source" validate:"omitempty,max=64"`
}

type IngestAcceptedResponse struct {
	JobID  string `json:"job_id"`
	Status string `json:"status"`
}

type IngestJobResponse struct {
	JobID        string  `json:"job_id"`
	Status       string  `json:"status"`
	RecordID     *string `json:"record_id,omitempty"`
	MergedInto   *string `json:"merged_into,omitempty"`
	ErrorMessage *string `json:"error_message,omitempty"`
	FreshnessMS  int64   `json:"freshness_ms,omitempty"`
}

type SearchResponse struct {
	Results []MatchResult `json:"results"`
	Total   int           `json:"total"`
	Query   string        `json:"query"`
}

type CandidateDetail struct {
	Candidate  Candidate          `json:"candidate"`
	Resumes    []ResumeDocument   `json:"resumes"`
	Provenance []Provenance       `json:"provenance"`
	Lineage    []MergeLineageEdge `json:"lineage"`
}

type StatsResponse struct {
	TotalCandidates  int64 `json:"total_candidates"`
	ActiveCandidates int64 `json:"active_candidates"`
	MergedCandidates int64 `json:"merged_candidates"`
	TotalResumes     int64 `json:"total_resumes"`
}
