package services

import (
	"context"
	"fmt"
	"time"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
	"github.com/ourworldcn/powerlms-workflow/pkg/workflow"
)

// ErrInstanceNotFound is returned when a workflow instance is not found.
var ErrInstanceNotFound = persistence.ErrInstanceNotFound

// InstanceSummary enriches one traversal with its derived status and the
// timestamp of its earliest arrival.
type InstanceSummary struct {
	Instance        *models.WorkflowInstance `json:"instance"`
	EarliestArrival time.Time                `json:"earliest_arrival"`
	Status          models.InstanceStatus    `json:"status"`
}

// Approval exposes the routing engine and the read-only instance queries.
type Approval struct {
	persistence persistence.Persistence
	engine      *workflow.Engine
}

// NewApproval creates a new approval service around a routing engine.
func NewApproval(persistence persistence.Persistence, engine *workflow.Engine) *Approval {
	return &Approval{
		persistence: persistence,
		engine:      engine,
	}
}

// Send routes one decision for one document; see workflow.Engine.Send.
func (s *Approval) Send(ctx context.Context, req workflow.SendRequest) (*models.WorkflowInstance, error) {
	if req.ActorID == "" {
		return nil, ErrActorRequired
	}

	if req.DocID == "" {
		return nil, ErrEmptyDocID
	}

	return s.engine.Send(ctx, req)
}

// FetchInstance retrieves one traversal with its derived status.
func (s *Approval) FetchInstance(ctx context.Context, id string) (*InstanceSummary, error) {
	instance, err := s.persistence.InstanceRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	if instance == nil {
		return nil, ErrInstanceNotFound
	}

	summaries, err := s.summarize(ctx, []*models.WorkflowInstance{instance})
	if err != nil {
		return nil, err
	}

	return summaries[0], nil
}

// InstancesByDocument returns all traversals for a document with their
// current status and earliest arrival, oldest first.
func (s *Approval) InstancesByDocument(ctx context.Context, docID string) ([]*InstanceSummary, error) {
	if docID == "" {
		return nil, ErrEmptyDocID
	}

	instances, err := s.persistence.InstanceRepository().ByDocID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instances for doc %s: %w", docID, err)
	}

	return s.summarize(ctx, instances)
}

// InstancesByOperator returns all traversals where the operator appears in
// any node's items, oldest first.
func (s *Approval) InstancesByOperator(ctx context.Context, operatorID string) ([]*InstanceSummary, error) {
	if operatorID == "" {
		return nil, ErrEmptyOperatorID
	}

	instances, err := s.persistence.InstanceRepository().ByOperatorID(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to load instances for operator %s: %w", operatorID, err)
	}

	return s.summarize(ctx, instances)
}

// summarize derives status for each instance, loading each referenced
// template once. An instance whose template has since been deleted still
// reports in-progress rather than failing the whole query.
func (s *Approval) summarize(ctx context.Context, instances []*models.WorkflowInstance) ([]*InstanceSummary, error) {
	templates := make(map[string]*models.Template)
	summaries := make([]*InstanceSummary, 0, len(instances))

	for _, instance := range instances {
		template, ok := templates[instance.TemplateID]
		if !ok {
			var err error

			template, err = s.persistence.TemplateRepository().GetByID(ctx, instance.TemplateID)
			if err != nil {
				return nil, fmt.Errorf("failed to load template %s: %w", instance.TemplateID, err)
			}

			templates[instance.TemplateID] = template
		}

		status := models.InstanceStatusInProgress
		if template != nil {
			status = workflow.Status(instance, template)
		}

		summaries = append(summaries, &InstanceSummary{
			Instance:        instance,
			EarliestArrival: instance.EarliestArrival(),
			Status:          status,
		})
	}

	return summaries, nil
}
