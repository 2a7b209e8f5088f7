package handlers

import (
	"errors"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"alfredoptarigan/talent-match/internal/models"
	"alfredoptarigan/talent-match/internal/services"
)

type MatchHandler struct {
	matcher  services.MatcherService
	validate *validator.Validate
}

func NewMatchHandler(matcher services.MatcherService, validate *validator.Validate) *MatchHandler {
	return &MatchHandler{
		matcher:  matcher,
		validate: validate,
	}
}

// HandleMatch handles POST /match
func (h *MatchHandler) HandleMatch(c *fiber.Ctx) error {
	var req models.MatchRequest

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

	resp, err := h.matcher.Match(c.UserContext(), &req)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		if errors.Is(err, services.ErrRecallUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "matching temporarily unavailable",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to match candidates",
		})
	}

	return c.JSON(resp)
}

// HandleSearch handles GET /search?q=...&limit=...
func (h *MatchHandler) HandleSearch(c *fiber.Ctx) error {
	query := c.Query("q")
	if query == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "q query parameter is required",
		})
	}

	limit := 0
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 || parsed > 100 {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "limit must be an integer between 1 and 100",
			})
		}
		limit = parsed
	}

	resp, err := h.matcher.Search(c.UserContext(), query, limit)
	if err != nil {
		if errors.Is(err, services.ErrValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": err.Error(),
			})
		}
		if errors.Is(err, services.ErrRecallUnavailable) {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "search temporarily unavailable",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to search candidates",
		})
	}

	return c.JSON(resp)
}
