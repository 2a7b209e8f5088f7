package services

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/repositories"
)

// RecallHit is one candidate surfaced by a single recall path, with the
// path's raw score and the concrete reasons it matched. Scores from
// different paths are incommensurate; only the fusion ranker compares them,
// after normalization.
type RecallHit struct {
	Candidate models.Candidate
	RawScore  float64
	Reasons   []models.Evidence
}

// RecallOutput carries both paths' hits plus which paths actually ran. A
// dead path is reduced evidence quality, never an error.
type RecallOutput struct {
	Lexical    []RecallHit
	Semantic   []RecallHit
	LexicalOK  bool
	SemanticOK bool
}

// RecallEngine runs lexical and semantic recall concurrently over the
// candidate pool. Read-only: recall never mutates records.
type RecallEngine interface {
	Recall(ctx context.Context, jd *JDFacts, jdEmbedding []float32, filters models.MatchFilters, limit int, semanticEnabled bool) (*RecallOutput, error)
}

type recallEngine struct {
	repo        repositories.CandidateRepository
	vectorIndex VectorIndex
	logger      *zap.Logger
}

func NewRecallEngine(repo repositories.CandidateRepository, vectorIndex VectorIndex, logger *zap.Logger) RecallEngine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &recallEngine{
		repo:        repo,
		vectorIndex: vectorIndex,
		logger:      logger,
	}
}

// Recall implements RecallEngine. The two paths fan out as goroutines and
// join before returning; neither waits on the other's result.
func (r *recallEngine) Recall(
	ctx context.Context,
	jd *JDFacts,
	jdEmbedding []float32,
	filters models.MatchFilters,
	limit int,
	semanticEnabled bool,
) (*RecallOutput, error) {
	if jd == nil {
		return nil, fmt.Errorf("%w: missing JD facts", ErrValidation)
	}
	if limit <= 0 {
		limit = 50
	}

	out := &RecallOutput{}
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		hits, err := r.lexicalRecall(jd, filters, limit)
		if err != nil {
			r.logger.Warn("lexical recall unavailable", zap.Error(err))
			return
		}
		out.Lexical = hits
		out.LexicalOK = true
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if !semanticEnabled || len(jdEmbedding) == 0 || r.vectorIndex == nil {
			return
		}
		hits, err := r.semanticRecall(ctx, jdEmbedding, filters, limit)
		if err != nil {
			r.logger.Warn("semantic recall unavailable", zap.Error(err))
			return
		}
		out.Semantic = hits
		out.SemanticOK = true
	}()

	wg.Wait()

	if !out.LexicalOK && !out.SemanticOK {
		return nil, ErrRecallUnavailable
	}
	return out, nil
}

// lexicalRecall queries Postgres full-text search with the JD's required and
// nice-to-have terms and records which terms matched where.
func (r *recallEngine) lexicalRecall(jd *JDFacts, filters models.MatchFilters, limit int) ([]RecallHit, error) {
	terms := jd.AllSkills()
	if len(terms) == 0 {
		return nil, nil
	}

	query := strings.Join(terms, " ")
	searchFilters := repositories.SearchFilters{
		Location: filters.Location,
		YearsMin: filters.YearsMin,
	}

	rows, err := r.repo.SearchFullText(query, searchFilters, limit)
	if err != nil {
		return nil, err
	}

	hits := make([]RecallHit, 0, len(rows))
	for _, row := range rows {
		reasons := matchReasons(jd, &row.Candidate)
		if len(reasons) == 0 {
			// Postgres matched on stemmed text but no term survives the
			// exact check; keep the hit with a generic keyword reason.
			reasons = append(reasons, models.Evidence{
				ReasonCode: models.ReasonKeywordMatch,
				Text:       "full-text match on résumé body",
				Excerpt:    Excerpt(row.Candidate.RawText, terms[0], defaultExcerptWindow),
			})
		}
		hits = append(hits, RecallHit{
			Candidate: row.Candidate,
			RawScore:  row.Rank,
			Reasons:   reasons,
		})
	}
	return hits, nil
}

// semanticRecall asks the vector index for nearest neighbors of the JD
// embedding, then hydrates the candidates from the store. Post-filters are
// applied here because the index only knows status.
func (r *recallEngine) semanticRecall(ctx context.Context, jdEmbedding []float32, filters models.MatchFilters, limit int) ([]RecallHit, error) {
	vectorHits, err := r.vectorIndex.SearchSimilar(ctx, jdEmbedding, limit)
	if err != nil {
		return nil, err
	}
	if len(vectorHits) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(vectorHits))
	scores := make(map[uuid.UUID]float64, len(vectorHits))
	for i, hit := range vectorHits {
		ids[i] = hit.CandidateID
		scores[hit.CandidateID] = float64(hit.Score)
	}

	candidates, err := r.repo.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	hits := make([]RecallHit, 0, len(vectorHits))
	for _, vh := range vectorHits {
		candidate, ok := byID[vh.CandidateID]
		if !ok || candidate.Status != models.CandidateActive {
			continue
		}
		if filters.Location != "" && !strings.EqualFold(candidate.Location, filters.Location) {
			continue
		}
		if filters.YearsMin != nil &&
			(candidate.YearsExperience == nil || *candidate.YearsExperience < *filters.YearsMin) {
			continue
		}

		hits = append(hits, RecallHit{
			Candidate: candidate,
			RawScore:  scores[vh.CandidateID],
			Reasons: []models.Evidence{{
				ReasonCode: models.ReasonSemanticSimilarity,
				Text:       fmt.Sprintf("profile is semantically close to the job description (cosine %.2f)", scores[vh.CandidateID]),
			}},
		})
	}
	return hits, nil
}

// matchReasons lists the JD terms the candidate actually carries, with
// excerpts from the résumé text.
func matchReasons(jd *JDFacts, candidate *models.Candidate) []models.Evidence {
	var reasons []models.Evidence

	appendTerm := func(term, code, label string) {
		inSkills := containsSkill(candidate.Skills, term)
		inText := containsTerm(candidate.RawText, term)
		if !inSkills && !inText {
			return
		}
		reasons = append(reasons, models.Evidence{
			ReasonCode: code,
			Text:       fmt.Sprintf("%s %q matched", label, term),
			Excerpt:    Excerpt(candidate.RawText, term, defaultExcerptWindow),
		})
	}

	for _, term := range jd.RequiredSkills {
		appendTerm(term, models.ReasonRequiredSkill, "required skill")
	}
	for _, term := range jd.NiceToHaveSkills {
		appendTerm(term, models.ReasonNiceToHaveSkill, "nice-to-have skill")
	}
	return reasons
}
