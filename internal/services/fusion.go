package services

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	"alfredoptarigan/talent-match/internal/models"
)

// FusionOptions is the immutable per-request configuration of the ranker.
type FusionOptions struct {
	LexicalWeight  float64
	SemanticWeight float64
	MinEvidence    int
	TopK           int
}

// FusionRanker combines the two recall paths into one ordered, evidenced
// list. Pure computation: no store access, no blocking, deterministic for
// the same hit sets.
type FusionRanker struct{}

func NewFusionRanker() *FusionRanker {
	return &FusionRanker{}
}

type fusedCandidate struct {
	candidate    models.Candidate
	lexicalNorm  float64
	semanticNorm float64
	inLexical    bool
	inSemantic   bool
	evidence     []models.Evidence
	requiredHits int
	fused        float64
}

// Fuse normalizes each path's scores into [0,1], combines them with the
// configured weights, and attaches evidence. Raw scores are never compared
// across paths; the scales are incommensurate.
func (f *FusionRanker) Fuse(recall *RecallOutput, jd *JDFacts, opts FusionOptions) []models.MatchResult {
	if recall == nil {
		return nil
	}
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.MinEvidence <= 0 {
		opts.MinEvidence = 2
	}

	lexWeight, semWeight := pathWeights(opts, recall.LexicalOK && len(recall.Lexical) > 0,
		recall.SemanticOK && len(recall.Semantic) > 0)

	byID := make(map[uuid.UUID]*fusedCandidate)
	collect := func(hits []RecallHit, norm map[uuid.UUID]float64, semantic bool) {
		for _, hit := range hits {
			fc, ok := byID[hit.Candidate.ID]
			if !ok {
				fc = &fusedCandidate{candidate: hit.Candidate}
				byID[hit.Candidate.ID] = fc
			}
			if semantic {
				fc.inSemantic = true
				fc.semanticNorm = norm[hit.Candidate.ID]
			} else {
				fc.inLexical = true
				fc.lexicalNorm = norm[hit.Candidate.ID]
			}
			fc.evidence = mergeEvidence(fc.evidence, hit.Reasons)
		}
	}
	collect(recall.Lexical, normalizeScores(recall.Lexical), false)
	collect(recall.Semantic, normalizeScores(recall.Semantic), true)

	results := make([]*fusedCandidate, 0, len(byID))
	for _, fc := range byID {
		fc.fused = lexWeight*fc.lexicalNorm + semWeight*fc.semanticNorm
		fc.evidence = mergeEvidence(fc.evidence, factEvidence(jd, &fc.candidate))
		fc.requiredHits = countRequiredHits(jd, &fc.candidate)
		// A candidate below the evidence floor never surfaces, regardless
		// of score: every returned result must be explainable.
		if len(fc.evidence) < opts.MinEvidence {
			continue
		}
		results = append(results, fc)
	}

	sort.SliceStable(results, func(i, j int) bool {
		a, b := results[i], results[j]
		if a.fused != b.fused {
			return a.fused > b.fused
		}
		if a.requiredHits != b.requiredHits {
			return a.requiredHits > b.requiredHits
		}
		if !a.candidate.UpdatedAt.Equal(b.candidate.UpdatedAt) {
			return a.candidate.UpdatedAt.After(b.candidate.UpdatedAt)
		}
		return a.candidate.ID.String() < b.candidate.ID.String()
	})

	if len(results) > opts.TopK {
		results = results[:opts.TopK]
	}

	out := make([]models.MatchResult, 0, len(results))
	for _, fc := range results {
		out = append(out, models.MatchResult{
			CandidateID:   fc.candidate.ID.String(),
			Name:          fc.candidate.Name,
			CurrentTitle:  fc.candidate.CurrentTitle,
			Location:      fc.candidate.Location,
			FusedScore:    round3(fc.fused),
			LexicalScore:  round3(fc.lexicalNorm),
			SemanticScore: round3(fc.semanticNorm),
			Evidence:      fc.evidence,
			UpdatedAt:     fc.candidate.UpdatedAt,
		})
	}
	return out
}

// pathWeights renormalizes the configured weights over the paths that
// actually produced hits; a lone surviving path gets full weight.
func pathWeights(opts FusionOptions, lexAlive, semAlive bool) (float64, float64) {
	lex, sem := opts.LexicalWeight, opts.SemanticWeight
	if lex <= 0 && sem <= 0 {
		lex, sem = 0.5, 0.5
	}
	if !lexAlive {
		lex = 0
	}
	if !semAlive {
		sem = 0
	}
	total := lex + sem
	if total == 0 {
		return 0, 0
	}
	return lex / total, sem / total
}

// normalizeScores min-max normalizes one path's raw scores into [0,1]. A
// single hit, or a path where every score ties, maps to 1.
func normalizeScores(hits []RecallHit) map[uuid.UUID]float64 {
	norm := make(map[uuid.UUID]float64, len(hits))
	if len(hits) == 0 {
		return norm
	}

	min, max := hits[0].RawScore, hits[0].RawScore
	for _, h := range hits[1:] {
		if h.RawScore < min {
			min = h.RawScore
		}
		if h.RawScore > max {
			max = h.RawScore
		}
	}

	for _, h := range hits {
		if max == min {
			norm[h.Candidate.ID] = 1
			continue
		}
		norm[h.Candidate.ID] = (h.RawScore - min) / (max - min)
	}
	return norm
}

// factEvidence derives evidence from the candidate's structured fields
// against the JD's constraints.
func factEvidence(jd *JDFacts, candidate *models.Candidate) []models.Evidence {
	if jd == nil {
		return nil
	}
	var evidence []models.Evidence

	if jd.YearsMin != nil && candidate.YearsExperience != nil && *candidate.YearsExperience >= *jd.YearsMin {
		evidence = append(evidence, models.Evidence{
			ReasonCode: models.ReasonYearsThreshold,
			Text: fmt.Sprintf("%g years of experience meets the %g-year minimum",
				*candidate.YearsExperience, *jd.YearsMin),
		})
	}
	if jd.Location != "" && strings.EqualFold(jd.Location, candidate.Location) {
		evidence = append(evidence, models.Evidence{
			ReasonCode: models.ReasonLocationMatch,
			Text:       fmt.Sprintf("located in %s", candidate.Location),
		})
	}
	return evidence
}

func countRequiredHits(jd *JDFacts, candidate *models.Candidate) int {
	if jd == nil {
		return 0
	}
	count := 0
	for _, term := range jd.RequiredSkills {
		if containsSkill(candidate.Skills, term) {
			count++
		}
	}
	return count
}

// mergeEvidence appends entries that are not already present, keyed by
// reason code plus text.
func mergeEvidence(existing, added []models.Evidence) []models.Evidence {
	seen := make(map[string]bool, len(existing))
	for _, e := range existing {
		seen[e.ReasonCode+"|"+e.Text] = true
	}
	for _, e := range added {
		key := e.ReasonCode + "|" + e.Text
		if seen[key] {
			continue
		}
		seen[key] = true
		existing = append(existing, e)
	}
	return existing
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
