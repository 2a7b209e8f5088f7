package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"alfredoptarigan/talent-match/internal/models"
)

func newTestIngestion(t *testing.T, extractor Extractor) (IngestionService, *fakeIngestionRepo, *fakeCandidateRepo, *mockVectorIndex) {
	t.Helper()
	ingestRepo := newFakeIngestionRepo()
	repo := newFakeCandidateRepo()
	vectorIndex := &mockVectorIndex{}
	gemini := &mockGemini{}
	dedup := NewDedupEngine(repo, &fakeAuditRepo{}, vectorIndex, testDedupOptions(), nil)

	svc := NewIngestionService(ingestRepo, repo, extractor, gemini, dedup, vectorIndex, nil, nil, nil)
	return svc, ingestRepo, repo, vectorIndex
}

func resumeExtractor(facts *ResumeFacts) Extractor {
	return &mockExtractor{
		ExtractFunc: func(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error) {
			return &Extraction{
				Kind:      KindResume,
				Resume:    facts,
				Embedding: make([]float32, EmbeddingDim),
			}, nil
		},
	}
}

func TestProcessJobDrivesNewResumeToSearchable(t *testing.T) {
	svc, ingestRepo, repo, vectorIndex := newTestIngestion(t, resumeExtractor(&ResumeFacts{
		Name:   "Jane Doe",
		Email:  "jane@example.com",
		Skills: []string{"Go", "Postgres"},
	}))

	job, err := svc.SubmitText(&models.IngestRequest{
		Text:   "Jane Doe. Go and Postgres backend engineer.",
		Source: "careers-page",
	})
	require.NoError(t, err)
	assert.Equal(t, models.IngestionReceived, job.Status)

	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))

	stored, err := ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionSearchable, stored.Status)

	// Every transition is timestamped, in order.
	require.NotNil(t, stored.ExtractedAt)
	require.NotNil(t, stored.DedupResolvedAt)
	require.NotNil(t, stored.IndexedAt)
	require.NotNil(t, stored.SearchableAt)
	assert.False(t, stored.DedupResolvedAt.Before(*stored.ExtractedAt))
	assert.False(t, stored.IndexedAt.Before(*stored.DedupResolvedAt))
	assert.False(t, stored.SearchableAt.Before(*stored.IndexedAt))
	assert.Greater(t, stored.FreshnessLag().Nanoseconds(), int64(0))

	// The candidate exists, is active, and its vector was upserted.
	require.NotNil(t, stored.CandidateID)
	candidate, err := repo.FindByID(*stored.CandidateID)
	require.NoError(t, err)
	assert.Equal(t, models.CandidateActive, candidate.Status)
	assert.Contains(t, vectorIndex.Upserts, candidate.ID)
}

func TestProcessJobMergesDuplicateAndReportsSurvivor(t *testing.T) {
	svc, ingestRepo, repo, _ := newTestIngestion(t, resumeExtractor(&ResumeFacts{
		Name:            "Jane Doe",
		Email:           "jane@example.com",
		YearsExperience: floatPtr(6),
		Skills:          []string{"Go", "Kubernetes"},
	}))

	existing := seedCandidate(t, repo, "Jane Doe", "jane@example.com", floatPtr(5), []string{"Go"})

	job, err := svc.SubmitText(&models.IngestRequest{
		Text: "Jane Doe. Six years of Go, now on Kubernetes.",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))

	stored, err := ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionSearchable, stored.Status)
	require.NotNil(t, stored.MergedInto)
	assert.Equal(t, existing.ID, *stored.MergedInto)
}

func TestProcessJobFailsTerminallyOnMalformedExtraction(t *testing.T) {
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error) {
			return nil, ErrMalformedResponse
		},
	}
	svc, ingestRepo, _, _ := newTestIngestion(t, extractor)

	job, err := svc.SubmitText(&models.IngestRequest{Text: "unintelligible scan output"})
	require.NoError(t, err)

	// A terminal failure is not a processing error.
	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))

	stored, err := ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionFailed, stored.Status)
	require.NotNil(t, stored.ErrorMessage)
	assert.True(t, stored.Terminal())
}

func TestProcessJobLeavesJobRetryableOnProviderOutage(t *testing.T) {
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error) {
			return nil, ErrProviderUnavailable
		},
	}
	svc, ingestRepo, _, _ := newTestIngestion(t, extractor)

	job, err := svc.SubmitText(&models.IngestRequest{Text: "Jane Doe résumé body text"})
	require.NoError(t, err)

	err = svc.ProcessJob(context.Background(), job.ID)
	assert.ErrorIs(t, err, ErrProviderUnavailable)

	stored, err := ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionReceived, stored.Status)
	assert.False(t, stored.Terminal())
	assert.Equal(t, 1, stored.Attempts)
}

func TestProcessJobResumesFromExtractedState(t *testing.T) {
	calls := 0
	extractor := &mockExtractor{
		ExtractFunc: func(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error) {
			calls++
			return &Extraction{
				Kind:      KindResume,
				Resume:    &ResumeFacts{Name: "Jane Doe", Email: "jane@example.com", Skills: []string{"Go"}},
				Embedding: make([]float32, EmbeddingDim),
			}, nil
		},
	}
	ingestRepo := newFakeIngestionRepo()
	repo := newFakeCandidateRepo()
	vectorIndex := &mockVectorIndex{}
	dedup := NewDedupEngine(repo, &fakeAuditRepo{}, vectorIndex, testDedupOptions(), nil)
	// First run dies after extraction because the vector store is down.
	vectorIndex.UpsertErr = assert.AnError
	svc := NewIngestionService(ingestRepo, repo, extractor, &mockGemini{}, dedup, vectorIndex, nil, nil, nil)

	job, err := svc.SubmitText(&models.IngestRequest{Text: "Jane Doe. Go engineer."})
	require.NoError(t, err)
	require.Error(t, svc.ProcessJob(context.Background(), job.ID))

	stored, err := ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionDedupResolved, stored.Status)

	// Retry picks up at indexing without re-extracting or re-resolving.
	vectorIndex.UpsertErr = nil
	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))

	stored, err = ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.IngestionSearchable, stored.Status)
	assert.Equal(t, 1, calls)

	candidates, err := repo.List(0, 10, models.CandidateActive)
	require.NoError(t, err)
	assert.Len(t, candidates, 1)
	assert.Equal(t, 2, stored.Attempts)
}

func TestProcessJobIsNoOpForTerminalJobs(t *testing.T) {
	svc, ingestRepo, _, _ := newTestIngestion(t, resumeExtractor(&ResumeFacts{
		Name: "Jane Doe", Email: "jane@example.com", Skills: []string{"Go"},
	}))

	job, err := svc.SubmitText(&models.IngestRequest{Text: "Jane Doe. Go engineer at Acme."})
	require.NoError(t, err)
	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))

	before, err := ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)

	require.NoError(t, svc.ProcessJob(context.Background(), job.ID))
	after, err := ingestRepo.FindJobByID(job.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Attempts, after.Attempts)
	assert.Equal(t, before.SearchableAt, after.SearchableAt)
}

func TestSubmitTextNormalizesAndHashes(t *testing.T) {
	svc, _, _, _ := newTestIngestion(t, nil)

	a, err := svc.SubmitText(&models.IngestRequest{Text: "  Jane Doe\n\n\nGo engineer.  "})
	require.NoError(t, err)
	b, err := svc.SubmitText(&models.IngestRequest{Text: "Jane Doe\nGo engineer."})
	require.NoError(t, err)

	// Whitespace artifacts must not defeat content-hash idempotency.
	assert.Equal(t, a.ContentHash, b.ContentHash)
}
