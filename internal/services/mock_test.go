package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/repositories"
)

// fakeCandidateRepo is an in-memory CandidateRepository. Full-text search is
// approximated by term counting over skills and raw text, which is enough to
// exercise recall and verification logic.
type fakeCandidateRepo struct {
	mu         sync.Mutex
	candidates map[uuid.UUID]*models.Candidate
	provenance []*models.Provenance
	lineage    []*models.MergeLineageEdge
	resumes    []*models.ResumeDocument

	searchErr error
	// beforeVersionedUpdate runs inside UpdateWithVersion before the
	// version check, letting tests inject a concurrent writer.
	beforeVersionedUpdate func()
}

func newFakeCandidateRepo() *fakeCandidateRepo {
	return &fakeCandidateRepo{candidates: make(map[uuid.UUID]*models.Candidate)}
}

func (f *fakeCandidateRepo) Create(candidate *models.Candidate) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if candidate.Version == 0 {
		candidate.Version = 1
	}
	if candidate.CreatedAt.IsZero() {
		candidate.CreatedAt = time.Now()
	}
	if candidate.UpdatedAt.IsZero() {
		candidate.UpdatedAt = candidate.CreatedAt
	}
	clone := *candidate
	f.candidates[candidate.ID] = &clone
	return nil
}

func (f *fakeCandidateRepo) FindByID(id uuid.UUID) (*models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candidates[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	clone := *c
	return &clone, nil
}

func (f *fakeCandidateRepo) FindByIDs(ids []uuid.UUID) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Candidate
	for _, id := range ids {
		if c, ok := f.candidates[id]; ok {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCandidateRepo) FindByContentHash(hash string) (*models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var best *models.Candidate
	for _, c := range f.candidates {
		if c.ContentHash != hash {
			continue
		}
		if best == nil || c.CreatedAt.Before(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, repositories.ErrNotFound
	}
	clone := *best
	return &clone, nil
}

func (f *fakeCandidateRepo) FindByIdentityKeys(email, phone, nameKey string) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if email == "" && phone == "" && nameKey == "" {
		return nil, nil
	}
	var out []models.Candidate
	for _, c := range f.candidates {
		if c.Status != models.CandidateActive {
			continue
		}
		if (email != "" && c.NormalizedEmail == email) ||
			(phone != "" && c.NormalizedPhone == phone) ||
			(nameKey != "" && c.NameKey == nameKey) {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCandidateRepo) SearchFullText(query string, filters repositories.SearchFilters, limit int) ([]repositories.TextSearchHit, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}

	terms := strings.Fields(strings.ToLower(query))
	var hits []repositories.TextSearchHit
	for _, c := range f.candidates {
		if c.Status != models.CandidateActive {
			continue
		}
		if filters.Location != "" && !strings.EqualFold(c.Location, filters.Location) {
			continue
		}
		if filters.YearsMin != nil && (c.YearsExperience == nil || *c.YearsExperience < *filters.YearsMin) {
			continue
		}

		haystack := strings.ToLower(strings.Join(c.Skills, " ") + " " + c.RawText)
		matched := 0
		for _, term := range terms {
			if strings.Contains(haystack, term) {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		hits = append(hits, repositories.TextSearchHit{Candidate: *c, Rank: float64(matched)})
	}

	for i := 0; i < len(hits); i++ {
		for j := i + 1; j < len(hits); j++ {
			if hits[j].Rank > hits[i].Rank {
				hits[i], hits[j] = hits[j], hits[i]
			}
		}
	}
	if limit > 0 && len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func (f *fakeCandidateRepo) UpdateWithVersion(id uuid.UUID, version int, updates map[string]interface{}) error {
	if f.beforeVersionedUpdate != nil {
		f.beforeVersionedUpdate()
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candidates[id]
	if !ok {
		return repositories.ErrNotFound
	}
	if c.Version != version {
		return repositories.ErrVersionConflict
	}

	for field, value := range updates {
		switch field {
		case "name":
			c.Name = value.(string)
		case "name_key":
			c.NameKey = value.(string)
		case "email":
			c.Email = value.(string)
		case "normalized_email":
			c.NormalizedEmail = value.(string)
		case "phone":
			c.Phone = value.(string)
		case "normalized_phone":
			c.NormalizedPhone = value.(string)
		case "location":
			c.Location = value.(string)
		case "years_experience":
			years := value.(float64)
			c.YearsExperience = &years
		case "current_title":
			c.CurrentTitle = value.(string)
		case "current_company":
			c.CurrentCompany = value.(string)
		case "skills":
			c.Skills = value.([]string)
		case "raw_text":
			c.RawText = value.(string)
		}
	}
	c.Version++
	c.UpdatedAt = time.Now()
	return nil
}

func (f *fakeCandidateRepo) UpdateStatus(id uuid.UUID, status models.CandidateStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.candidates[id]
	if !ok {
		return repositories.ErrNotFound
	}
	c.Status = status
	c.UpdatedAt = time.Now()
	return nil
}

func (f *fakeCandidateRepo) List(offset, limit int, status models.CandidateStatus) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Candidate
	for _, c := range f.candidates {
		if status == "" || c.Status == status {
			out = append(out, *c)
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeCandidateRepo) ListActive(ids []uuid.UUID, updatedSince *time.Time) ([]models.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Candidate
	for _, c := range f.candidates {
		if c.Status == models.CandidateActive {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (f *fakeCandidateRepo) CountStats() (*models.StatsResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &models.StatsResponse{TotalResumes: int64(len(f.resumes))}
	for _, c := range f.candidates {
		stats.TotalCandidates++
		switch c.Status {
		case models.CandidateActive:
			stats.ActiveCandidates++
		case models.CandidateMerged:
			stats.MergedCandidates++
		}
	}
	return stats, nil
}

func (f *fakeCandidateRepo) SetFieldProvenance(entry *models.Provenance) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.provenance {
		if p.CandidateID == entry.CandidateID && p.Field == entry.Field {
			p.Current = false
		}
	}
	clone := *entry
	if clone.IngestedAt.IsZero() {
		clone.IngestedAt = time.Now()
	}
	f.provenance = append(f.provenance, &clone)
	return nil
}

func (f *fakeCandidateRepo) ListProvenance(candidateID uuid.UUID) ([]models.Provenance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.Provenance
	for _, p := range f.provenance {
		if p.CandidateID == candidateID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (f *fakeCandidateRepo) AppendLineageEdge(edge *models.MergeLineageEdge) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.lineage {
		if e.FromID == edge.FromID && e.ToID == edge.ToID {
			return false, nil
		}
	}
	clone := *edge
	f.lineage = append(f.lineage, &clone)
	return true, nil
}

func (f *fakeCandidateRepo) ListLineage(candidateID uuid.UUID) ([]models.MergeLineageEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.MergeLineageEdge
	for _, e := range f.lineage {
		if e.FromID == candidateID || e.ToID == candidateID {
			out = append(out, *e)
		}
	}
	return out, nil
}

func (f *fakeCandidateRepo) NextLineageHop(fromID uuid.UUID) (*models.MergeLineageEdge, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *models.MergeLineageEdge
	for _, e := range f.lineage {
		if e.FromID != fromID {
			continue
		}
		if latest == nil || e.MergedAt.After(latest.MergedAt) {
			latest = e
		}
	}
	if latest == nil {
		return nil, repositories.ErrNotFound
	}
	clone := *latest
	return &clone, nil
}

func (f *fakeCandidateRepo) CreateResumeDocument(doc *models.ResumeDocument) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *doc
	if clone.CreatedAt.IsZero() {
		clone.CreatedAt = time.Now()
	}
	f.resumes = append(f.resumes, &clone)
	return nil
}

func (f *fakeCandidateRepo) ListResumeDocuments(candidateID uuid.UUID) ([]models.ResumeDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []models.ResumeDocument
	for _, d := range f.resumes {
		if d.CandidateID == candidateID {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (f *fakeCandidateRepo) FindResumeByTextHash(hash string) (*models.ResumeDocument, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range f.resumes {
		if d.TextHash == hash {
			clone := *d
			return &clone, nil
		}
	}
	return nil, repositories.ErrNotFound
}

// fakeIngestionRepo is an in-memory IngestionRepository.
type fakeIngestionRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*models.IngestionJob
}

func newFakeIngestionRepo() *fakeIngestionRepo {
	return &fakeIngestionRepo{jobs: make(map[uuid.UUID]*models.IngestionJob)}
}

func (f *fakeIngestionRepo) CreateJob(job *models.IngestionJob) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	clone := *job
	f.jobs[job.ID] = &clone
	return nil
}

func (f *fakeIngestionRepo) FindJobByID(id uuid.UUID) (*models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return nil, repositories.ErrNotFound
	}
	clone := *job
	return &clone, nil
}

func (f *fakeIngestionRepo) UpdateJob(id uuid.UUID, updates map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return repositories.ErrNotFound
	}
	for field, value := range updates {
		switch field {
		case "attempts":
			job.Attempts = value.(int)
		case "facts_json":
			job.FactsJSON = value.(string)
		case "candidate_id":
			id := value.(uuid.UUID)
			job.CandidateID = &id
		case "merged_into":
			id := value.(uuid.UUID)
			job.MergedInto = &id
		case "error_message":
			msg := value.(string)
			job.ErrorMessage = &msg
		case "status":
			job.Status = value.(models.IngestionStatus)
		}
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (f *fakeIngestionRepo) MarkTransition(id uuid.UUID, status models.IngestionStatus, at time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	job, ok := f.jobs[id]
	if !ok {
		return repositories.ErrNotFound
	}
	job.Status = status
	switch status {
	case models.IngestionExtracted:
		job.ExtractedAt = &at
	case models.IngestionDedupResolved:
		job.DedupResolvedAt = &at
	case models.IngestionIndexed:
		job.IndexedAt = &at
	case models.IngestionSearchable:
		job.SearchableAt = &at
	}
	job.UpdatedAt = time.Now()
	return nil
}

func (f *fakeIngestionRepo) MarkFailed(id uuid.UUID, errorMsg string) error {
	return f.UpdateJob(id, map[string]interface{}{
		"status":        models.IngestionFailed,
		"error_message": errorMsg,
	})
}

func (f *fakeIngestionRepo) FindRetryableJobs(staleAfter time.Duration, limit int) ([]models.IngestionJob, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	cutoff := time.Now().Add(-staleAfter)
	var out []models.IngestionJob
	for _, job := range f.jobs {
		if job.Terminal() || job.UpdatedAt.After(cutoff) {
			continue
		}
		out = append(out, *job)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out, nil
}

// fakeAuditRepo records audit entries in order.
type fakeAuditRepo struct {
	mu      sync.Mutex
	entries []models.AuditLog
}

func (f *fakeAuditRepo) Append(entityType string, entityID uuid.UUID, action, changes, performedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries = append(f.entries, models.AuditLog{
		ID:          uuid.New(),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Changes:     changes,
		PerformedBy: performedBy,
		PerformedAt: time.Now(),
	})
	return nil
}

func (f *fakeAuditRepo) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.entries))
	for i, e := range f.entries {
		out[i] = e.Action
	}
	return out
}

// mockGemini serves canned responses without touching the network.
type mockGemini struct {
	Embedding     []float32
	EmbeddingErr  error
	Response      string
	ResponseQueue []string
	TextErr       error
	Calls         int
}

func (m *mockGemini) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	if m.EmbeddingErr != nil {
		return nil, m.EmbeddingErr
	}
	if m.Embedding != nil {
		return m.Embedding, nil
	}
	return make([]float32, EmbeddingDim), nil
}

func (m *mockGemini) GenerateText(ctx context.Context, prompt string, temperature float32) (string, error) {
	m.Calls++
	if m.TextErr != nil {
		return "", m.TextErr
	}
	if len(m.ResponseQueue) > 0 {
		resp := m.ResponseQueue[0]
		m.ResponseQueue = m.ResponseQueue[1:]
		return resp, nil
	}
	return m.Response, nil
}

func (m *mockGemini) GenerateTextWithRetry(ctx context.Context, prompt string, temperature float32, maxRetries int) (string, error) {
	return m.GenerateText(ctx, prompt, temperature)
}

// mockVectorIndex is an in-memory VectorIndex with canned search results.
type mockVectorIndex struct {
	mu        sync.Mutex
	Hits      []VectorHit
	SearchErr error
	UpsertErr error
	Upserts   []uuid.UUID
	Deletes   []uuid.UUID
}

func (m *mockVectorIndex) InitCollection() error { return nil }

func (m *mockVectorIndex) UpsertCandidate(ctx context.Context, candidateID uuid.UUID, status string, embedding []float32) error {
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Upserts = append(m.Upserts, candidateID)
	return nil
}

func (m *mockVectorIndex) SearchSimilar(ctx context.Context, queryEmbedding []float32, limit int) ([]VectorHit, error) {
	if m.SearchErr != nil {
		return nil, m.SearchErr
	}
	if limit > 0 && len(m.Hits) > limit {
		return m.Hits[:limit], nil
	}
	return m.Hits, nil
}

func (m *mockVectorIndex) DeleteCandidate(ctx context.Context, candidateID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Deletes = append(m.Deletes, candidateID)
	return nil
}

// mockExtractor returns a fixed extraction or error per kind.
type mockExtractor struct {
	ExtractFunc func(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error)
}

func (m *mockExtractor) Extract(ctx context.Context, text string, kind ExtractionKind) (*Extraction, error) {
	return m.ExtractFunc(ctx, text, kind)
}
