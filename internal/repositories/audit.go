package repositories

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/talent-match/internal/models"
)

type AuditRepository interface {
	Append(entityType string, entityID uuid.UUID, action, changes, performedBy string) error
}

type auditRepository struct {
	db *gorm.DB
}

func NewAuditRepository(db *gorm.DB) AuditRepository {
	return &auditRepository{db: db}
}

func (r *auditRepository) Append(entityType string, entityID uuid.UUID, action, changes, performedBy string) error {
	entry := &models.AuditLog{
		ID:          uuid.New(),
		EntityType:  entityType,
		EntityID:    entityID,
		Action:      action,
		Changes:     changes,
		PerformedBy: performedBy,
		PerformedAt: time.Now(),
	}
	if err := r.db.Create(entry).Error; err != nil {
		return fmt.Errorf("failed to append audit log: %w", err)
	}
	return nil
}
