package handlers

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/repositories"
	"alfredoptarigan/talent-match/internal/services"
)

type CandidateHandler struct {
	repo        repositories.CandidateRepository
	auditRepo   repositories.AuditRepository
	vectorIndex services.VectorIndex
	logger      *zap.Logger
}

func NewCandidateHandler(
	repo repositories.CandidateRepository,
	auditRepo repositories.AuditRepository,
	vectorIndex services.VectorIndex,
	logger *zap.Logger,
) *CandidateHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CandidateHandler{
		repo:        repo,
		auditRepo:   auditRepo,
		vectorIndex: vectorIndex,
		logger:      logger,
	}
}

// HandleList handles GET /candidates?offset=&limit=&status=
func (h *CandidateHandler) HandleList(c *fiber.Ctx) error {
	offset, err := strconv.Atoi(c.Query("offset", "0"))
	if err != nil || offset < 0 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "offset must be a non-negative integer",
		})
	}
	limit, err := strconv.Atoi(c.Query("limit", "20"))
	if err != nil || limit < 1 || limit > 100 {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "limit must be an integer between 1 and 100",
		})
	}

	status := models.CandidateStatus(c.Query("status", string(models.CandidateActive)))
	switch status {
	case models.CandidateActive, models.CandidateMerged, models.CandidateDeleted:
	default:
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "status must be one of: active, merged, deleted",
		})
	}

	candidates, err := h.repo.List(offset, limit, status)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to list candidates",
		})
	}

	return c.JSON(fiber.Map{
		"candidates": candidates,
		"offset":     offset,
		"limit":      limit,
	})
}

// HandleGet handles GET /candidates/:id. Merged records are returned with
// their lineage rather than redirected; the survivor ID is in merged_into.
func (h *CandidateHandler) HandleGet(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid candidate ID format",
		})
	}

	candidate, err := h.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Candidate not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch candidate",
		})
	}

	resumes, err := h.repo.ListResumeDocuments(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch résumé documents",
		})
	}
	provenance, err := h.repo.ListProvenance(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch provenance",
		})
	}
	lineage, err := h.repo.ListLineage(id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch merge lineage",
		})
	}

	return c.JSON(models.CandidateDetail{
		Candidate:  *candidate,
		Resumes:    resumes,
		Provenance: provenance,
		Lineage:    lineage,
	})
}

// HandleDelete handles DELETE /candidates/:id. The record is tombstoned and
// dropped from the vector index; provenance and lineage stay readable.
func (h *CandidateHandler) HandleDelete(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid candidate ID format",
		})
	}

	candidate, err := h.repo.FindByID(id)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Candidate not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch candidate",
		})
	}
	if candidate.Status == models.CandidateDeleted {
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Candidate already deleted",
		})
	}

	if err := h.repo.UpdateStatus(id, models.CandidateDeleted); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to delete candidate",
		})
	}

	if err := h.vectorIndex.DeleteCandidate(c.UserContext(), id); err != nil {
		// The tombstone already excludes the record from recall; losing
		// the vector delete only leaves a stale point behind.
		h.logger.Warn("failed to drop candidate from vector index",
			zap.String("candidate_id", id.String()), zap.Error(err))
	}

	if err := h.auditRepo.Append("candidate", id, "delete",
		`{"status":"deleted"}`, c.Get("X-Actor", "api")); err != nil {
		h.logger.Warn("failed to record delete audit entry",
			zap.String("candidate_id", id.String()), zap.Error(err))
	}

	return c.JSON(fiber.Map{
		"id":     id.String(),
		"status": string(models.CandidateDeleted),
	})
}

// HandleStats handles GET /stats
func (h *CandidateHandler) HandleStats(c *fiber.Ctx) error {
	stats, err := h.repo.CountStats()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to compute stats",
		})
	}
	return c.JSON(stats)
}
