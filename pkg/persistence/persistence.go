// Package persistence provides the data storage abstraction for approval
// templates and workflow instances.
package persistence

import (
	"context"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
)

type Persistence interface {
	TemplateRepository() TemplateRepository
	InstanceRepository() InstanceRepository
	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ListTemplatesOptions filters template listings.
type ListTemplatesOptions struct {
	DocTypeCode string
	OrgID       string
}

// TemplateRepository stores approval chain definitions. The routing engine
// only ever reads templates; writes come from the administration surface.
type TemplateRepository interface {
	List(ctx context.Context, opts ListTemplatesOptions) ([]*models.Template, error)

	// GetByID returns nil, nil when no template with the id exists.
	GetByID(ctx context.Context, id string) (*models.Template, error)

	Save(ctx context.Context, template *models.Template) error

	// Delete soft deletes a template; deleting a missing template is not an error.
	Delete(ctx context.Context, id string) error
}

// InstanceRepository stores workflow traversals. Save is transactional over
// the instance and all of its nodes and items, and enforces an optimistic
// version check: a stale Version yields ErrVersionConflict.
type InstanceRepository interface {
	// GetByID returns nil, nil when no instance with the id exists.
	GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error)

	// ByDocID returns all traversals for a document, oldest first.
	ByDocID(ctx context.Context, docID string) ([]*models.WorkflowInstance, error)

	// ByOperatorID returns all traversals carrying a decision item for the
	// operator, oldest first.
	ByOperatorID(ctx context.Context, operatorID string) ([]*models.WorkflowInstance, error)

	Save(ctx context.Context, instance *models.WorkflowInstance) error
}
