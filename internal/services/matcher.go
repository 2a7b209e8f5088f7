package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/config"
	"alfredoptarigan/talent-match/internal/models"
)

// recallMultiplier widens each recall path beyond TopK so fusion has enough
// overlap to rank against.
const recallMultiplier = 5

// MatchOptions is the per-request snapshot of the matching configuration.
// Config changes never affect a request already in flight.
type MatchOptions struct {
	LexicalWeight   float64
	SemanticWeight  float64
	TopK            int
	MinEvidence     int
	SemanticEnabled bool
}

type MatcherService interface {
	// Match ranks candidates against a free-text job description.
	Match(ctx context.Context, req *models.MatchRequest) (*models.MatchResponse, error)
	// Search runs keyword-only retrieval for an ad-hoc query string.
	Search(ctx context.Context, query string, limit int) (*models.SearchResponse, error)
}

type matcherService struct {
	extractor Extractor
	recall    RecallEngine
	ranker    *FusionRanker
	cfg       config.MatchingConfig
	logger    *zap.Logger
}

func NewMatcherService(
	extractor Extractor,
	recall RecallEngine,
	ranker *FusionRanker,
	cfg config.MatchingConfig,
	logger *zap.Logger,
) MatcherService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &matcherService{
		extractor: extractor,
		recall:    recall,
		ranker:    ranker,
		cfg:       cfg,
		logger:    logger,
	}
}

// Match implements MatcherService. The structured extraction runs under its
// own deadline; when it misses or the provider misbehaves, the request falls
// back to keyword matching over the lexical path instead of failing.
func (m *matcherService) Match(ctx context.Context, req *models.MatchRequest) (*models.MatchResponse, error) {
	if req == nil || strings.TrimSpace(req.JD) == "" {
		return nil, fmt.Errorf("%w: missing job description", ErrValidation)
	}

	// The whole request runs under one latency budget; it can only fire
	// at collaborator calls, never during fusion or scoring.
	if m.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.cfg.RequestTimeout)
		defer cancel()
	}

	opts := m.snapshotOptions(req.TopK)

	jd, embedding, degraded := m.extractJD(ctx, req.JD)
	if degraded {
		opts.SemanticEnabled = false
	}

	filters := models.MatchFilters{}
	if req.Filters != nil {
		filters = *req.Filters
	}

	recallOut, err := m.recall.Recall(ctx, jd, embedding, filters, opts.TopK*recallMultiplier, opts.SemanticEnabled)
	if err != nil {
		return nil, err
	}

	results := m.ranker.Fuse(recallOut, jd, FusionOptions{
		LexicalWeight:  opts.LexicalWeight,
		SemanticWeight: opts.SemanticWeight,
		MinEvidence:    opts.MinEvidence,
		TopK:           opts.TopK,
	})
	if !req.Explain {
		for i := range results {
			results[i].Evidence = nil
		}
	}

	return &models.MatchResponse{
		Results:      results,
		Total:        len(results),
		Degraded:     degraded,
		SemanticUsed: recallOut.SemanticOK,
	}, nil
}

// Search implements MatcherService. It reuses the degraded matching path:
// keywords from the query feed lexical recall, no extraction involved.
func (m *matcherService) Search(ctx context.Context, query string, limit int) (*models.SearchResponse, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", ErrValidation)
	}
	if limit <= 0 {
		limit = m.cfg.DefaultTopK
	}

	jd := keywordFacts(query)
	recallOut, err := m.recall.Recall(ctx, jd, nil, models.MatchFilters{}, limit*recallMultiplier, false)
	if err != nil {
		return nil, err
	}

	results := m.ranker.Fuse(recallOut, jd, FusionOptions{
		LexicalWeight:  1,
		SemanticWeight: 0,
		MinEvidence:    1,
		TopK:           limit,
	})

	return &models.SearchResponse{
		Results: results,
		Total:   len(results),
		Query:   query,
	}, nil
}

func (m *matcherService) snapshotOptions(topK int) MatchOptions {
	if topK <= 0 {
		topK = m.cfg.DefaultTopK
	}
	return MatchOptions{
		LexicalWeight:   m.cfg.LexicalWeight,
		SemanticWeight:  m.cfg.SemanticWeight,
		TopK:            topK,
		MinEvidence:     m.cfg.MinEvidence,
		SemanticEnabled: m.cfg.SemanticEnabled,
	}
}

// extractJD runs structured extraction under the configured deadline. On
// timeout, provider outage, or an unparseable response it degrades to
// keyword facts rather than erroring; a slow extractor must not take
// matching down with it.
func (m *matcherService) extractJD(ctx context.Context, jdText string) (*JDFacts, []float32, bool) {
	extractCtx, cancel := context.WithTimeout(ctx, m.cfg.ExtractionTimeout)
	defer cancel()

	extraction, err := m.extractor.Extract(extractCtx, jdText, KindJD)
	if err != nil {
		if errors.Is(err, ErrValidation) {
			m.logger.Warn("jd extraction rejected input, using keyword fallback", zap.Error(err))
		} else {
			m.logger.Warn("jd extraction degraded to keyword matching", zap.Error(err))
		}
		return keywordFacts(jdText), nil, true
	}
	return extraction.JD, extraction.Embedding, false
}

// keywordFacts builds minimal JD facts from raw keywords. Every term is
// nice-to-have: without structured extraction nothing is known to be
// required, and evidence stays honest about that.
func keywordFacts(text string) *JDFacts {
	return &JDFacts{NiceToHaveSkills: ExtractKeywords(text)}
}
