package repositories

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/talent-match/internal/models"
)

type IngestionRepository interface {
	CreateJob(job *models.IngestionJob) error
	FindJobByID(id uuid.UUID) (*models.IngestionJob, error)
	UpdateJob(id uuid.UUID, updates map[string]interface{}) error
	MarkTransition(id uuid.UUID, status models.IngestionStatus, at time.Time) error
	MarkFailed(id uuid.UUID, errorMsg string) error
	FindRetryableJobs(staleAfter time.Duration, limit int) ([]models.IngestionJob, error)
}

type ingestionRepository struct {
	db *gorm.DB
}

func NewIngestionRepository(db *gorm.DB) IngestionRepository {
	return &ingestionRepository{db: db}
}

func (r *ingestionRepository) CreateJob(job *models.IngestionJob) error {
	if err := r.db.Create(job).Error; err != nil {
		return fmt.Errorf("failed to create ingestion job: %w", err)
	}
	return nil
}

func (r *ingestionRepository) FindJobByID(id uuid.UUID) (*models.IngestionJob, error) {
	var job models.IngestionJob
	if err := r.db.Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find ingestion job: %w", err)
	}
	return &job, nil
}

func (r *ingestionRepository) UpdateJob(id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()
	result := r.db.Model(&models.IngestionJob{}).
		Where("id = ?", id).
		Updates(updates)
	if result.Error != nil {
		return fmt.Errorf("failed to update ingestion job: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkTransition advances the job's status and stamps the matching
// transition timestamp. Freshness is measured from these stamps.
func (r *ingestionRepository) MarkTransition(id uuid.UUID, status models.IngestionStatus, at time.Time) error {
	updates := map[string]interface{}{"status": status}
	switch status {
	case models.IngestionExtracted:
		updates["extracted_at"] = at
	case models.IngestionDedupResolved:
		updates["dedup_resolved_at"] = at
	case models.IngestionIndexed:
		updates["indexed_at"] = at
	case models.IngestionSearchable:
		updates["searchable_at"] = at
	}
	return r.UpdateJob(id, updates)
}

func (r *ingestionRepository) MarkFailed(id uuid.UUID, errorMsg string) error {
	return r.UpdateJob(id, map[string]interface{}{
		"status":        models.IngestionFailed,
		"error_message": errorMsg,
	})
}

// FindRetryableJobs returns non-terminal jobs that have not been touched for
// staleAfter. The dedup and index steps are idempotent by content hash, so
// re-running a stuck job is safe.
func (r *ingestionRepository) FindRetryableJobs(staleAfter time.Duration, limit int) ([]models.IngestionJob, error) {
	if limit <= 0 {
		limit = 10
	}
	cutoff := time.Now().Add(-staleAfter)

	var jobs []models.IngestionJob
	err := r.db.
		Where("status IN ?", []models.IngestionStatus{
			models.IngestionReceived,
			models.IngestionExtracted,
			models.IngestionDedupResolved,
			models.IngestionIndexed,
		}).
		Where("updated_at < ?", cutoff).
		Order("received_at ASC").
		Limit(limit).
		Find(&jobs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find retryable jobs: %w", err)
	}
	return jobs, nil
}
