package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/repositories"
)

// searchVerifyLimit bounds the full-text probe that confirms a freshly
// indexed candidate is actually retrievable.
const searchVerifyLimit = 100

// IngestionService accepts résumés, tracks them through the pipeline state
// machine, and drives each job to searchable or failed. Submission and
// processing are decoupled: Submit* returns as soon as the job row exists,
// the worker pool calls ProcessJob.
type IngestionService interface {
	SubmitText(req *models.IngestRequest) (*models.IngestionJob, error)
	SubmitFile(file *multipart.FileHeader, source string) (*models.IngestionJob, error)
	GetJob(id uuid.UUID) (*models.IngestionJob, error)
	ProcessJob(ctx context.Context, jobID uuid.UUID) error
}

type ingestionService struct {
	ingestRepo  repositories.IngestionRepository
	repo        repositories.CandidateRepository
	extractor   Extractor
	gemini      GeminiService
	dedup       DedupEngine
	vectorIndex VectorIndex
	storage     StorageService
	pdfParser   PDFParserService
	logger      *zap.Logger
}

func NewIngestionService(
	ingestRepo repositories.IngestionRepository,
	repo repositories.CandidateRepository,
	extractor Extractor,
	gemini GeminiService,
	dedup DedupEngine,
	vectorIndex VectorIndex,
	storage StorageService,
	pdfParser PDFParserService,
	logger *zap.Logger,
) IngestionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ingestionService{
		ingestRepo:  ingestRepo,
		repo:        repo,
		extractor:   extractor,
		gemini:      gemini,
		dedup:       dedup,
		vectorIndex: vectorIndex,
		storage:     storage,
		pdfParser:   pdfParser,
		logger:      logger,
	}
}

// SubmitText implements IngestionService.
func (s *ingestionService) SubmitText(req *models.IngestRequest) (*models.IngestionJob, error) {
	text := CleanText(req.Text)
	if text == "" {
		return nil, fmt.Errorf("%w: empty résumé text", ErrValidation)
	}

	job := &models.IngestionJob{
		ID:          uuid.New(),
		Status:      models.IngestionReceived,
		RawText:     text,
		ContentHash: ContentHash(text),
		Source:      req.Source,
		ReceivedAt:  time.Now(),
	}
	if err := s.ingestRepo.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to create ingestion job: %w", err)
	}
	return job, nil
}

// SubmitFile implements IngestionService. The upload is persisted first so
// extraction failures can be retried from the stored copy.
func (s *ingestionService) SubmitFile(file *multipart.FileHeader, source string) (*models.IngestionJob, error) {
	filename, filePath, err := s.storage.SaveResume(file)
	if err != nil {
		return nil, err
	}

	text, err := s.pdfParser.ExtractText(filePath)
	if err != nil {
		if delErr := s.storage.DeleteFile(filename); delErr != nil {
			s.logger.Warn("failed to remove unparseable upload", zap.String("file", filename), zap.Error(delErr))
		}
		return nil, err
	}

	job := &models.IngestionJob{
		ID:          uuid.New(),
		Status:      models.IngestionReceived,
		RawText:     text,
		ContentHash: ContentHash(text),
		Source:      source,
		FileURI:     filePath,
		FileType:    "pdf",
		ReceivedAt:  time.Now(),
	}
	if err := s.ingestRepo.CreateJob(job); err != nil {
		return nil, fmt.Errorf("failed to create ingestion job: %w", err)
	}
	return job, nil
}

// GetJob implements IngestionService.
func (s *ingestionService) GetJob(id uuid.UUID) (*models.IngestionJob, error) {
	return s.ingestRepo.FindJobByID(id)
}

// ProcessJob implements IngestionService. Each state transition is persisted
// before the next step runs, so a crashed or retried job resumes from its
// last completed step instead of starting over. Validation failures are
// terminal; infrastructure errors leave the job non-terminal for the stale
// job poller to pick up again.
func (s *ingestionService) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := s.ingestRepo.FindJobByID(jobID)
	if err != nil {
		return err
	}
	if job.Terminal() {
		return nil
	}

	if err := s.ingestRepo.UpdateJob(job.ID, map[string]interface{}{"attempts": job.Attempts + 1}); err != nil {
		return err
	}

	var embedding []float32

	if job.Status == models.IngestionReceived {
		embedding, err = s.stepExtract(ctx, job)
		if err != nil {
			return s.settle(job, err)
		}
	}

	if job.Status == models.IngestionExtracted {
		if err := s.stepDedup(ctx, job, embedding); err != nil {
			return s.settle(job, err)
		}
	}

	if job.Status == models.IngestionDedupResolved {
		if err := s.stepIndex(ctx, job); err != nil {
			return s.settle(job, err)
		}
	}

	if job.Status == models.IngestionIndexed {
		if err := s.stepVerifySearchable(job); err != nil {
			return s.settle(job, err)
		}
	}

	s.logger.Info("résumé searchable",
		zap.String("job_id", job.ID.String()),
		zap.Duration("freshness_lag", job.FreshnessLag()))
	return nil
}

// settle decides whether a step error is terminal. Bad input gets a failed
// job; a flaky dependency gets another attempt later.
func (s *ingestionService) settle(job *models.IngestionJob, err error) error {
	if errors.Is(err, ErrMalformedResponse) || errors.Is(err, ErrValidation) {
		s.logger.Error("ingestion job failed",
			zap.String("job_id", job.ID.String()),
			zap.String("status", string(job.Status)),
			zap.Error(err))
		if markErr := s.ingestRepo.MarkFailed(job.ID, err.Error()); markErr != nil {
			return markErr
		}
		return nil
	}
	s.logger.Warn("ingestion step failed, job left for retry",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(job.Status)),
		zap.Error(err))
	return err
}

func (s *ingestionService) stepExtract(ctx context.Context, job *models.IngestionJob) ([]float32, error) {
	extraction, err := s.extractor.Extract(ctx, job.RawText, KindResume)
	if err != nil {
		return nil, err
	}

	factsJSON, err := json.Marshal(extraction.Resume)
	if err != nil {
		return nil, fmt.Errorf("failed to encode extracted facts: %w", err)
	}
	if err := s.ingestRepo.UpdateJob(job.ID, map[string]interface{}{"facts_json": string(factsJSON)}); err != nil {
		return nil, err
	}

	now := time.Now()
	if err := s.ingestRepo.MarkTransition(job.ID, models.IngestionExtracted, now); err != nil {
		return nil, err
	}
	job.Status = models.IngestionExtracted
	job.FactsJSON = string(factsJSON)
	job.ExtractedAt = &now
	return extraction.Embedding, nil
}

func (s *ingestionService) stepDedup(ctx context.Context, job *models.IngestionJob, embedding []float32) error {
	var facts ResumeFacts
	if err := json.Unmarshal([]byte(job.FactsJSON), &facts); err != nil {
		return fmt.Errorf("%w: stored facts unreadable: %v", ErrMalformedResponse, err)
	}

	// A resumed job lost its in-memory embedding; re-embedding the same
	// text is idempotent.
	if len(embedding) == 0 {
		var err error
		embedding, err = s.gemini.GenerateEmbedding(ctx, job.RawText)
		if err != nil {
			return err
		}
	}

	decision, err := s.dedup.Resolve(ctx, &IncomingResume{
		Facts:       &facts,
		Embedding:   embedding,
		RawText:     job.RawText,
		ContentHash: job.ContentHash,
		Source:      job.Source,
		FileURI:     job.FileURI,
		FileType:    job.FileType,
	})
	if err != nil {
		return err
	}

	updates := map[string]interface{}{"candidate_id": decision.CandidateID}
	if decision.Merged {
		updates["merged_into"] = decision.SurvivorID
	}
	if err := s.ingestRepo.UpdateJob(job.ID, updates); err != nil {
		return err
	}

	now := time.Now()
	if err := s.ingestRepo.MarkTransition(job.ID, models.IngestionDedupResolved, now); err != nil {
		return err
	}
	job.Status = models.IngestionDedupResolved
	job.CandidateID = &decision.CandidateID
	if decision.Merged {
		job.MergedInto = &decision.SurvivorID
	}
	job.DedupResolvedAt = &now
	return nil
}

// stepIndex upserts the surviving record's embedding so semantic recall sees
// the post-merge state, not the state at submission.
func (s *ingestionService) stepIndex(ctx context.Context, job *models.IngestionJob) error {
	if job.CandidateID == nil {
		return fmt.Errorf("%w: job has no resolved candidate", ErrValidation)
	}

	survivor, err := s.dedup.ResolveSurvivor(*job.CandidateID)
	if err != nil {
		return err
	}

	embedding, err := s.gemini.GenerateEmbedding(ctx, survivor.RawText)
	if err != nil {
		return err
	}
	if err := s.vectorIndex.UpsertCandidate(ctx, survivor.ID, string(survivor.Status), embedding); err != nil {
		return err
	}

	now := time.Now()
	if err := s.ingestRepo.MarkTransition(job.ID, models.IngestionIndexed, now); err != nil {
		return err
	}
	job.Status = models.IngestionIndexed
	job.IndexedAt = &now
	return nil
}

// stepVerifySearchable probes full-text search for the surviving record
// before declaring the job searchable. searchable_at feeds the freshness
// metric, so it must mean what it says.
func (s *ingestionService) stepVerifySearchable(job *models.IngestionJob) error {
	if job.CandidateID == nil {
		return fmt.Errorf("%w: job has no resolved candidate", ErrValidation)
	}
	survivor, err := s.dedup.ResolveSurvivor(*job.CandidateID)
	if err != nil {
		return err
	}

	if len(survivor.Skills) > 0 {
		query := strings.Join(survivor.Skills[:min(3, len(survivor.Skills))], " ")
		hits, err := s.repo.SearchFullText(query, repositories.SearchFilters{}, searchVerifyLimit)
		if err != nil {
			return err
		}
		found := false
		for _, hit := range hits {
			if hit.Candidate.ID == survivor.ID {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("candidate %s not yet retrievable by full-text search", survivor.ID)
		}
	}

	now := time.Now()
	if err := s.ingestRepo.MarkTransition(job.ID, models.IngestionSearchable, now); err != nil {
		return err
	}
	job.Status = models.IngestionSearchable
	job.SearchableAt = &now
	return nil
}
