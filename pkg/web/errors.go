package web

import (
	"errors"

	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
	"github.com/ourworldcn/powerlms-workflow/pkg/services"
	"github.com/ourworldcn/powerlms-workflow/pkg/workflow"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(400).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(404).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(500).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// routingProblemType names the problem type for each 4xx routing failure.
func routingProblemType(err error) string {
	switch {
	case errors.Is(err, workflow.ErrNoEligibleStep):
		return "no_eligible_step"
	case errors.Is(err, workflow.ErrNoSuchTransition):
		return "no_such_transition"
	case errors.Is(err, workflow.ErrRejectWithNext):
		return "reject_with_next"
	case errors.Is(err, workflow.ErrInstanceClosed):
		return "instance_closed"
	case errors.Is(err, workflow.ErrDocBusy):
		return "document_busy"
	case errors.Is(err, workflow.ErrAlreadyDecided):
		return "already_decided"
	case errors.Is(err, workflow.ErrMalformedTemplate):
		return "malformed_template"
	default:
		return "validation_error"
	}
}

// handleServiceError provides typed error handling for service layer errors.
func handleServiceError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, workflow.ErrTemplateNotFound):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("template_not_found").
			WithDetail("template not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case persistence.IsInstanceNotFound(err):
		problem := problems.NewStatusProblem(404).
			WithInstance(c.Path()).
			WithType("instance_not_found").
			WithDetail("workflow instance not found")

		return c.Status(fiber.StatusNotFound).JSON(problem)

	case errors.Is(err, workflow.ErrConcurrencyConflict):
		problem := problems.NewStatusProblem(409).
			WithInstance(c.Path()).
			WithType("conflict").
			WithDetail(err.Error())

		return c.Status(fiber.StatusConflict).JSON(problem)

	case workflow.IsCallerError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType(routingProblemType(err)).
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	case services.IsValidationError(err):
		problem := problems.NewStatusProblem(400).
			WithInstance(c.Path()).
			WithType("validation_error").
			WithDetail(err.Error())

		return c.Status(fiber.StatusBadRequest).JSON(problem)

	default:
		// Log unexpected errors but don't expose details
		problem := problems.NewStatusProblem(500).
			WithInstance(c.Path()).
			WithType("internal_error").
			WithError(err)

		return c.Status(fiber.StatusInternalServerError).JSON(problem)
	}
}
