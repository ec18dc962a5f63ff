package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
	"github.com/ourworldcn/powerlms-workflow/pkg/workflow"
)

// ErrTemplateNotFound is returned when a template is not found.
var ErrTemplateNotFound = persistence.ErrTemplateNotFound

// Template is the administration service for approval chain definitions.
// Chain shape is validated here, at authoring time, so the routing engine
// never meets a malformed template at runtime.
type Template struct {
	persistence persistence.Persistence
}

// NewTemplate creates a new template administration service.
func NewTemplate(persistence persistence.Persistence) *Template {
	return &Template{
		persistence: persistence,
	}
}

// HealthCheck checks the health of the persistence layer.
func (s *Template) HealthCheck(ctx context.Context) (string, bool) {
	if s.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := s.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// List retrieves templates filtered by document type and organization.
func (s *Template) List(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.Template, error) {
	templates, err := s.persistence.TemplateRepository().List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list templates: %w", err)
	}

	return templates, nil
}

// FetchByID retrieves a template by its ID.
func (s *Template) FetchByID(ctx context.Context, id string) (*models.Template, error) {
	template, err := s.persistence.TemplateRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if template == nil {
		return nil, ErrTemplateNotFound
	}

	return template, nil
}

// Create validates and stores a new template, assigning ids to the template
// and any nodes or items that lack one.
func (s *Template) Create(ctx context.Context, template *models.Template) (*models.Template, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	now := time.Now().UTC()
	template.ID = uuid.New().String()
	template.CreatedAt = now
	template.UpdatedAt = now

	assignIDs(template)

	if err := s.validate(template); err != nil {
		return nil, err
	}

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to create template: %w", err)
	}

	return template, nil
}

// Update validates and stores changes to an existing template.
func (s *Template) Update(ctx context.Context, templateID string, template *models.Template) (*models.Template, error) {
	if template == nil {
		return nil, ErrTemplateNil
	}

	existing, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return nil, err
	}

	if existing == nil {
		return nil, ErrTemplateNotFound
	}

	template.ID = templateID
	template.CreatedAt = existing.CreatedAt
	template.CreatedBy = existing.CreatedBy
	template.UpdatedAt = time.Now().UTC()

	assignIDs(template)

	if err := s.validate(template); err != nil {
		return nil, err
	}

	if err := s.persistence.TemplateRepository().Save(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to update template: %w", err)
	}

	return template, nil
}

// Delete soft deletes a template by its ID.
func (s *Template) Delete(ctx context.Context, templateID string) error {
	existing, err := s.persistence.TemplateRepository().GetByID(ctx, templateID)
	if err != nil {
		return err
	}

	if existing == nil {
		return ErrTemplateNotFound
	}

	if err := s.persistence.TemplateRepository().Delete(ctx, templateID); err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return nil
}

// validate enforces the chain invariants at authoring time: non-empty
// metadata, unique node ids, NextID references resolving to siblings, every
// node listing an approver, and the nodes forming one linear chain with
// exactly one first node and no cycle.
func (s *Template) validate(template *models.Template) error {
	if template.DisplayName == "" {
		return ErrDisplayNameRequired
	}

	if template.DocTypeCode == "" {
		return ErrDocTypeCodeRequired
	}

	if len(template.Nodes) == 0 {
		return ErrNodesRequired
	}

	seen := make(map[string]struct{}, len(template.Nodes))

	for _, node := range template.Nodes {
		if _, ok := seen[node.ID]; ok {
			return NewValidationError("validateTemplate", "DUPLICATE_NODE_ID",
				fmt.Sprintf("node id %s appears more than once", node.ID), ErrDuplicateNodeID)
		}

		seen[node.ID] = struct{}{}

		if len(node.ApproverItems()) == 0 {
			return NewValidationError("validateTemplate", "APPROVER_REQUIRED",
				fmt.Sprintf("node %s lists no approver", node.ID), ErrApproverRequired)
		}

		if node.NextID != nil && template.NodeByID(*node.NextID) == nil {
			return NewValidationError("validateTemplate", "DANGLING_NEXT",
				fmt.Sprintf("node %s references missing next node %s", node.ID, *node.NextID), ErrDanglingNext)
		}
	}

	// ChainOrder fails on zero or multiple first nodes and on cycles.
	ordered, err := workflow.ChainOrder(template)
	if err != nil {
		return NewValidationError("validateTemplate", "CHAIN_NOT_LINEAR",
			err.Error(), ErrChainNotLinear)
	}

	if len(ordered) != len(template.Nodes) {
		return NewValidationError("validateTemplate", "CHAIN_NOT_LINEAR",
			"some nodes are not reachable from the first node", ErrChainNotLinear)
	}

	return nil
}

// assignIDs fills in missing node and item ids and rewires ownership references.
func assignIDs(template *models.Template) {
	for _, node := range template.Nodes {
		if node.ID == "" {
			node.ID = uuid.New().String()
		}

		node.TemplateID = template.ID

		for _, item := range node.Items {
			if item.ID == "" {
				item.ID = uuid.New().String()
			}

			item.NodeID = node.ID
		}
	}
}
