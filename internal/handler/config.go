package handler

import (
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"

	"github.com/artworkup/api/internal/model"
	"github.com/artworkup/api/internal/service"
	"github.com/artworkup/api/pkg/response"
)

type ConfigHandler struct {
	settings  *service.SettingsService
	validator *validator.Validate
}

func NewConfigHandler(settings *service.SettingsService, v *validator.Validate) *ConfigHandler {
	return &ConfigHandler{
		settings:  settings,
		validator: v,
	}
}

// Get handles GET /api/config
func (h *ConfigHandler) Get(c *fiber.Ctx) error {
	return response.OK(c, h.settings.Status())
}

// Update handles POST /api/config
func (h *ConfigHandler) Update(c *fiber.Ctx) error {
	var req model.CredentialsUpdate
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	status, err := h.settings.Update(&req)
	if err != nil {
		return response.ServiceError(c, "Failed to save settings")
	}

	return response.OK(c, fiber.Map{
		"status":     "success",
		"configured": status,
	})
}
