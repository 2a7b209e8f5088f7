package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/talent-match/internal/models"
)

var (
	// ErrNotFound is returned when a lookup matches no record.
	ErrNotFound = errors.New("record not found")
	// ErrVersionConflict is returned when an optimistic update loses the
	// race: the row's version moved between read and write.
	ErrVersionConflict = errors.New("version conflict")
)

// SearchFilters narrows full-text search to a subset of the active pool.
type SearchFilters struct {
	Location string
	YearsMin *float64
}

// TextSearchHit is one lexical recall hit with its Postgres ts_rank score.
type TextSearchHit struct {
	Candidate models.Candidate
	Rank      float64
}

type CandidateRepository interface {
	Create(candidate *models.Candidate) error
	FindByID(id uuid.UUID) (*models.Candidate, error)
	FindByIDs(ids []uuid.UUID) ([]models.Candidate, error)
	FindByContentHash(hash string) (*models.Candidate, error)
	FindByIdentityKeys(email, phone, nameKey string) ([]models.Candidate, error)
	SearchFullText(query string, filters SearchFilters, limit int) ([]TextSearchHit, error)
	UpdateWithVersion(id uuid.UUID, version int, updates map[string]interface{}) error
	UpdateStatus(id uuid.UUID, status models.CandidateStatus) error
	List(offset, limit int, status models.CandidateStatus) ([]models.Candidate, error)
	ListActive(ids []uuid.UUID, updatedSince *time.Time) ([]models.Candidate, error)
	CountStats() (*models.StatsResponse, error)

	SetFieldProvenance(entry *models.Provenance) error
	ListProvenance(candidateID uuid.UUID) ([]models.Provenance, error)

	AppendLineageEdge(edge *models.MergeLineageEdge) (bool, error)
	ListLineage(candidateID uuid.UUID) ([]models.MergeLineageEdge, error)
	NextLineageHop(fromID uuid.UUID) (*models.MergeLineageEdge, error)

	CreateResumeDocument(doc *models.ResumeDocument) error
	ListResumeDocuments(candidateID uuid.UUID) ([]models.ResumeDocument, error)
	FindResumeByTextHash(hash string) (*models.ResumeDocument, error)
}

type candidateRepository struct {
	db *gorm.DB
}

func NewCandidateRepository(db *gorm.DB) CandidateRepository {
	return &candidateRepository{db: db}
}

// Create implements CandidateRepository.
func (r *candidateRepository) Create(candidate *models.Candidate) error {
	if err := r.db.Create(candidate).Error; err != nil {
		return fmt.Errorf("failed to create candidate: %w", err)
	}
	return nil
}

// FindByID implements CandidateRepository.
func (r *candidateRepository) FindByID(id uuid.UUID) (*models.Candidate, error) {
	var candidate models.Candidate
	if err := r.db.Where("id = ?", id).First(&candidate).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find candidate: %w", err)
	}
	return &candidate, nil
}

// FindByIDs implements CandidateRepository.
func (r *candidateRepository) FindByIDs(ids []uuid.UUID) ([]models.Candidate, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var candidates []models.Candidate
	if err := r.db.Where("id IN ?", ids).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to find candidates: %w", err)
	}
	return candidates, nil
}

// FindByContentHash implements CandidateRepository. It returns the candidate
// record created from a résumé with the given content hash, regardless of
// status, so re-ingesting identical bytes can short-circuit.
func (r *candidateRepository) FindByContentHash(hash string) (*models.Candidate, error) {
	var candidate models.Candidate
	err := r.db.Where("content_hash = ?", hash).
		Order("created_at ASC").
		First(&candidate).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find candidate by content hash: %w", err)
	}
	return &candidate, nil
}

// FindByIdentityKeys implements CandidateRepository. Any non-empty key is
// matched exactly; only active records qualify as merge targets.
func (r *candidateRepository) FindByIdentityKeys(email, phone, nameKey string) ([]models.Candidate, error) {
	if email == "" && phone == "" && nameKey == "" {
		return nil, nil
	}

	tx := r.db.Where("status = ?", models.CandidateActive)

	keys := r.db.Where("1 = 0")
	if email != "" {
		keys = keys.Or("normalized_email = ?", email)
	}
	if phone != "" {
		keys = keys.Or("normalized_phone = ?", phone)
	}
	if nameKey != "" {
		keys = keys.Or("name_key = ?", nameKey)
	}

	var candidates []models.Candidate
	if err := tx.Where(keys).Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to find candidates by identity keys: %w", err)
	}
	return candidates, nil
}

const candidateTSVector = "to_tsvector('simple', coalesce(skills::text, '') || ' ' || coalesce(raw_text, ''))"

// SearchFullText implements CandidateRepository using Postgres full-text
// search over skills and raw résumé text, ranked with ts_rank.
func (r *candidateRepository) SearchFullText(query string, filters SearchFilters, limit int) ([]TextSearchHit, error) {
	if query == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	type rankedRow struct {
		ID   uuid.UUID
		Rank float64
	}

	sql := fmt.Sprintf(`
		SELECT id, ts_rank(%s, plainto_tsquery('simple', ?)) AS rank
		FROM candidates
		WHERE status = 'active'
		AND %s @@ plainto_tsquery('simple', ?)`, candidateTSVector, candidateTSVector)

	args := []interface{}{query, query}
	if filters.Location != "" {
		sql += " AND lower(location) = lower(?)"
		args = append(args, filters.Location)
	}
	if filters.YearsMin != nil {
		sql += " AND years_experience >= ?"
		args = append(args, *filters.YearsMin)
	}
	sql += " ORDER BY rank DESC, updated_at DESC LIMIT ?"
	args = append(args, limit)

	var rows []rankedRow
	if err := r.db.Raw(sql, args...).Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}
	candidates, err := r.FindByIDs(ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Candidate, len(candidates))
	for _, c := range candidates {
		byID[c.ID] = c
	}

	hits := make([]TextSearchHit, 0, len(rows))
	for _, row := range rows {
		candidate, ok := byID[row.ID]
		if !ok {
			continue
		}
		hits = append(hits, TextSearchHit{Candidate: candidate, Rank: row.Rank})
	}
	return hits, nil
}

// UpdateWithVersion implements CandidateRepository. The update only lands if
// the stored version still matches; the version counter advances with it.
func (r *candidateRepository) UpdateWithVersion(id uuid.UUID, version int, updates map[string]interface{}) error {
	updates["version"] = version + 1
	updates["updated_at"] = time.Now()

	result := r.db.Model(&models.Candidate{}).
		Where("id = ? AND version = ?", id, version).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update candidate: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrVersionConflict
	}
	return nil
}

// UpdateStatus implements CandidateRepository.
func (r *candidateRepository) UpdateStatus(id uuid.UUID, status models.CandidateStatus) error {
	result := r.db.Model(&models.Candidate{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":     status,
			"updated_at": time.Now(),
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// List implements CandidateRepository.
func (r *candidateRepository) List(offset, limit int, status models.CandidateStatus) ([]models.Candidate, error) {
	if limit <= 0 {
		limit = 20
	}
	tx := r.db.Order("created_at DESC").Offset(offset).Limit(limit)
	if status != "" {
		tx = tx.Where("status = ?", status)
	}

	var candidates []models.Candidate
	if err := tx.Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	return candidates, nil
}

// ListActive implements CandidateRepository. Used by the reindex tool.
func (r *candidateRepository) ListActive(ids []uuid.UUID, updatedSince *time.Time) ([]models.Candidate, error) {
	tx := r.db.Where("status = ?", models.CandidateActive)
	if len(ids) > 0 {
		tx = tx.Where("id IN ?", ids)
	}
	if updatedSince != nil {
		tx = tx.Where("updated_at >= ?", *updatedSince)
	}

	var candidates []models.Candidate
	if err := tx.Order("updated_at ASC").Find(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to list active candidates: %w", err)
	}
	return candidates, nil
}

// CountStats implements CandidateRepository.
func (r *candidateRepository) CountStats() (*models.StatsResponse, error) {
	var stats models.StatsResponse

	if err := r.db.Model(&models.Candidate{}).Count(&stats.TotalCandidates).Error; err != nil {
		return nil, fmt.Errorf("failed to count candidates: %w", err)
	}
	if err := r.db.Model(&models.Candidate{}).
		Where("status = ?", models.CandidateActive).
		Count(&stats.ActiveCandidates).Error; err != nil {
		return nil, fmt.Errorf("failed to count active candidates: %w", err)
	}
	if err := r.db.Model(&models.Candidate{}).
		Where("status = ?", models.CandidateMerged).
		Count(&stats.MergedCandidates).Error; err != nil {
		return nil, fmt.Errorf("failed to count merged candidates: %w", err)
	}
	if err := r.db.Model(&models.ResumeDocument{}).Count(&stats.TotalResumes).Error; err != nil {
		return nil, fmt.Errorf("failed to count resumes: %w", err)
	}
	return &stats, nil
}

// SetFieldProvenance implements CandidateRepository. Existing current rows
// for the same field are demoted, never deleted, so both sides of a merge
// conflict remain inspectable.
func (r *candidateRepository) SetFieldProvenance(entry *models.Provenance) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		err := tx.Model(&models.Provenance{}).
			Where("candidate_id = ? AND field = ? AND current = true", entry.CandidateID, entry.Field).
			Update("current", false).Error
		if err != nil {
			return fmt.Errorf("failed to demote provenance: %w", err)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("failed to append provenance: %w", err)
		}
		return nil
	})
}

// ListProvenance implements CandidateRepository.
func (r *candidateRepository) ListProvenance(candidateID uuid.UUID) ([]models.Provenance, error) {
	var entries []models.Provenance
	err := r.db.Where("candidate_id = ?", candidateID).
		Order("ingested_at ASC").
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list provenance: %w", err)
	}
	return entries, nil
}

// AppendLineageEdge implements CandidateRepository. An edge that already
// exists for the same (from, to) pair is a no-op, which keeps merge retries
// from duplicating lineage. Returns whether a new edge was written.
func (r *candidateRepository) AppendLineageEdge(edge *models.MergeLineageEdge) (bool, error) {
	var existing models.MergeLineageEdge
	err := r.db.Where("from_id = ? AND to_id = ?", edge.FromID, edge.ToID).First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("failed to check lineage edge: %w", err)
	}
	if err := r.db.Create(edge).Error; err != nil {
		return false, fmt.Errorf("failed to append lineage edge: %w", err)
	}
	return true, nil
}

// ListLineage implements CandidateRepository, returning edges touching the
// candidate in either direction.
func (r *candidateRepository) ListLineage(candidateID uuid.UUID) ([]models.MergeLineageEdge, error) {
	var edges []models.MergeLineageEdge
	err := r.db.Where("from_id = ? OR to_id = ?", candidateID, candidateID).
		Order("merged_at ASC").
		Find(&edges).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list lineage: %w", err)
	}
	return edges, nil
}

// NextLineageHop implements CandidateRepository. Survivor resolution walks
// these hops until it lands on an active record; at most one outgoing edge
// is current per record.
func (r *candidateRepository) NextLineageHop(fromID uuid.UUID) (*models.MergeLineageEdge, error) {
	var edge models.MergeLineageEdge
	err := r.db.Where("from_id = ?", fromID).
		Order("merged_at DESC").
		First(&edge).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find lineage hop: %w", err)
	}
	return &edge, nil
}

// CreateResumeDocument implements CandidateRepository.
func (r *candidateRepository) CreateResumeDocument(doc *models.ResumeDocument) error {
	if err := r.db.Create(doc).Error; err != nil {
		return fmt.Errorf("failed to create resume document: %w", err)
	}
	return nil
}

// ListResumeDocuments implements CandidateRepository.
func (r *candidateRepository) ListResumeDocuments(candidateID uuid.UUID) ([]models.ResumeDocument, error) {
	var docs []models.ResumeDocument
	err := r.db.Where("candidate_id = ?", candidateID).
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list resume documents: %w", err)
	}
	return docs, nil
}

// FindResumeByTextHash implements CandidateRepository.
func (r *candidateRepository) FindResumeByTextHash(hash string) (*models.ResumeDocument, error) {
	var doc models.ResumeDocument
	if err := r.db.Where("text_hash = ?", hash).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find resume document: %w", err)
	}
	return &doc, nil
}
