package handlers

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/repositories"
	"alfredoptarigan/talent-match/internal/services"
)

type IngestHandler struct {
	ingestion   services.IngestionService
	worker      services.Worker
	validate    *validator.Validate
	maxFileSize int64
}

func NewIngestHandler(
	ingestion services.IngestionService,
	worker services.Worker,
	validate *validator.Validate,
	maxFileSize int64,
) *IngestHandler {
	return &IngestHandler{
		ingestion:   ingestion,
		worker:      worker,
		validate:    validate,
		maxFileSize: maxFileSize,
	}
}

// HandleIngest handles POST /ingest
func (h *IngestHandler) HandleIngest(c *fiber.Ctx) error {
	var req models.IngestRequest

	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}

	if err := h.validate.Struct(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	job, err := h.ingestion.SubmitText(&req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to accept résumé",
		})
	}

	h.worker.EnqueueJob(job.ID)

	return c.Status(fiber.StatusAccepted).JSON(models.IngestAcceptedResponse{
		JobID:  job.ID.String(),
		Status: string(job.Status),
	})
}

// HandleUpload handles POST /ingest/upload
func (h *IngestHandler) HandleUpload(c *fiber.Ctx) error {
	file, err := c.FormFile("resume")
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "resume file is required",
		})
	}

	if file.Size > h.maxFileSize {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": fmt.Sprintf("file too large. Max size: %d bytes", h.maxFileSize),
		})
	}

	job, err := h.ingestion.SubmitFile(file, c.FormValue("source"))
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to accept résumé upload",
		})
	}

	h.worker.EnqueueJob(job.ID)

	return c.Status(fiber.StatusAccepted).JSON(models.IngestAcceptedResponse{
		JobID:  job.ID.String(),
		Status: string(job.Status),
	})
}

// HandleGetJob handles GET /ingest/:id
func (h *IngestHandler) HandleGetJob(c *fiber.Ctx) error {
	jobID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid job ID format",
		})
	}

	job, err := h.ingestion.GetJob(jobID)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Ingestion job not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch ingestion job",
		})
	}

	resp := models.IngestJobResponse{
		JobID:        job.ID.String(),
		Status:       string(job.Status),
		ErrorMessage: job.ErrorMessage,
	}
	if job.CandidateID != nil {
		id := job.CandidateID.String()
		resp.RecordID = &id
	}
	if job.MergedInto != nil {
		id := job.MergedInto.String()
		resp.MergedInto = &id
	}
	if lag := job.FreshnessLag(); lag > 0 {
		resp.FreshnessMS = lag.Milliseconds()
	}

	return c.JSON(resp)
}
