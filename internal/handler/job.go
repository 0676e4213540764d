package handler

import (
	"errors"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/artworkup/api/internal/model"
	"github.com/artworkup/api/internal/registry"
	"github.com/artworkup/api/internal/service"
	"github.com/artworkup/api/pkg/response"
)

type JobHandler struct {
	service   *service.JobService
	validator *validator.Validate
	logger    *zap.Logger
}

func NewJobHandler(svc *service.JobService, v *validator.Validate, logger *zap.Logger) *JobHandler {
	return &JobHandler{
		service:   svc,
		validator: v,
		logger:    logger.Named("handler.jobs"),
	}
}

// Start handles POST /api/start-job
func (h *JobHandler) Start(c *fiber.Ctx) error {
	var req model.JobRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ValidationError(c, "Invalid request body", nil)
	}

	if err := h.validator.Struct(&req); err != nil {
		return response.ValidationError(c, "Validation failed", formatValidationErrors(err))
	}

	result, err := h.service.StartJob(c.UserContext(), &req)
	if err != nil {
		h.logger.Error("Failed to start job", zap.Error(err))
		return response.JobFailed(c, "Failed to start job")
	}

	return response.OK(c, result)
}

// Status handles GET /api/job-status/:jobId
func (h *JobHandler) Status(c *fiber.Ctx) error {
	job, err := h.service.GetStatus(c.UserContext(), c.Params("jobId"))
	if err != nil {
		if errors.Is(err, registry.ErrJobNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status": "not_found"})
		}
		return response.ServiceError(c, "Failed to get job status")
	}

	return response.OK(c, job)
}

// List handles GET /api/jobs
func (h *JobHandler) List(c *fiber.Ctx) error {
	jobs, err := h.service.ListJobs(c.UserContext())
	if err != nil {
		return response.ServiceError(c, "Failed to list jobs")
	}
	if jobs == nil {
		jobs = []*model.Job{}
	}

	return response.OK(c, jobs)
}

// Clear handles DELETE /api/clear-job/:jobId
func (h *JobHandler) Clear(c *fiber.Ctx) error {
	err := h.service.ClearJob(c.UserContext(), c.Params("jobId"))
	switch {
	case err == nil:
		return response.OK(c, fiber.Map{"status": "success"})
	case errors.Is(err, registry.ErrJobNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"status": "not_found"})
	case errors.Is(err, service.ErrJobRunning):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"status":  "error",
			"message": "Cannot clear a running job",
		})
	default:
		return response.ServiceError(c, "Failed to clear job")
	}
}
