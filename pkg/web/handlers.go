// Package web provides HTTP handlers and REST API endpoints for the approval
// workflow engine.
package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
	"github.com/ourworldcn/powerlms-workflow/pkg/services"
	"github.com/ourworldcn/powerlms-workflow/pkg/workflow"
)

// Actor identity headers, populated by the authentication collaborator in
// front of this service.
const (
	HeaderOperatorID   = "X-Operator-Id"
	HeaderOperatorName = "X-Operator-Name"
)

type APIHandlers struct {
	templateService *services.Template
	approvalService *services.Approval
	validator       *validator.Validate
}

func NewAPIHandlers(
	templateService *services.Template,
	approvalService *services.Approval,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		templateService: templateService,
		approvalService: approvalService,
		validator:       validator,
	}
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.templateService.HealthCheck(c.Context())

	status := "unhealthy"
	message := "Approval workflow API is unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		message = "Approval workflow API is healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status":  status,
		"message": message,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) CreateTemplate(c fiber.Ctx) error {
	var req CreateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	template := &models.Template{
		DisplayName: req.DisplayName,
		DocTypeCode: req.DocTypeCode,
		OrgID:       req.OrgID,
		CreatedBy:   c.Get(HeaderOperatorID),
		Nodes:       buildChain(req.Nodes),
	}

	created, err := h.templateService.Create(c.Context(), template)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) GetTemplates(c fiber.Ctx) error {
	opts := persistence.ListTemplatesOptions{
		DocTypeCode: c.Query("doc_type_code"),
		OrgID:       c.Query("org_id"),
	}

	templates, err := h.templateService.List(c.Context(), opts)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"templates":   templates,
		"total_count": len(templates),
	})
}

func (h *APIHandlers) GetTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	template, err := h.templateService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsTemplateNotFound(err) {
			return notFound(c, "Template not found")
		}

		return internalError(c, err)
	}

	return c.JSON(template)
}

func (h *APIHandlers) UpdateTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	var req UpdateTemplateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.templateService.FetchByID(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	if req.DisplayName != nil {
		existing.DisplayName = *req.DisplayName
	}

	if req.Nodes != nil {
		existing.Nodes = buildChain(req.Nodes)
	}

	updated, err := h.templateService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteTemplate(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Template ID is required")
	}

	if err := h.templateService.Delete(c.Context(), id); err != nil {
		return handleServiceError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// SendWorkflow routes one approval decision for one document.
func (h *APIHandlers) SendWorkflow(c fiber.Ctx) error {
	actorID := c.Get(HeaderOperatorID)
	if actorID == "" {
		return badRequest(c, "Operator identity header is required")
	}

	var req SendRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	instance, err := h.approvalService.Send(c.Context(), workflow.SendRequest{
		TemplateID:       req.TemplateID,
		DocID:            req.DocID,
		ActorID:          actorID,
		ActorDisplayName: c.Get(HeaderOperatorName),
		Comment:          req.Comment,
		Approved:         *req.Approved,
		NextOperatorID:   req.NextOperatorID,
		Restart:          req.Restart,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	summary, err := h.approvalService.FetchInstance(c.Context(), instance.ID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(SendResponse{
		InstanceID: instance.ID,
		Status:     summary.Status,
	})
}

func (h *APIHandlers) GetInstance(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Instance ID is required")
	}

	summary, err := h.approvalService.FetchInstance(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(summary)
}

func (h *APIHandlers) GetInstancesByDocument(c fiber.Ctx) error {
	docID := c.Params("docId")
	if docID == "" {
		return badRequest(c, "Document ID is required")
	}

	summaries, err := h.approvalService.InstancesByDocument(c.Context(), docID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   summaries,
		"total_count": len(summaries),
	})
}

func (h *APIHandlers) GetInstancesByOperator(c fiber.Ctx) error {
	operatorID := c.Params("operatorId")
	if operatorID == "" {
		return badRequest(c, "Operator ID is required")
	}

	summaries, err := h.approvalService.InstancesByOperator(c.Context(), operatorID)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{
		"instances":   summaries,
		"total_count": len(summaries),
	})
}
