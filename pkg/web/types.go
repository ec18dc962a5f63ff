// Package web provides HTTP request and response types for the approval workflow API.
package web

import (
	"github.com/google/uuid"
	"github.com/ourworldcn/powerlms-workflow/pkg/models"
)

// TemplateNodeItemRequest names one eligible approver at a step.
type TemplateNodeItemRequest struct {
	OperatorID          string `json:"operator_id"           validate:"required"`
	OperatorDisplayName string `json:"operator_display_name"`
}

// TemplateNodeRequest is one step in the submitted chain. Steps arrive in
// chain order; the server links them and assigns ids.
type TemplateNodeRequest struct {
	Items []TemplateNodeItemRequest `json:"items" validate:"required,min=1,dive"`
}

// CreateTemplateRequest represents the request body for creating a new template.
type CreateTemplateRequest struct {
	DisplayName string                `json:"display_name"  validate:"required,min=2"`
	DocTypeCode string                `json:"doc_type_code" validate:"required"`
	OrgID       string                `json:"org_id"`
	Nodes       []TemplateNodeRequest `json:"nodes"         validate:"required,min=1,dive"`
}

// UpdateTemplateRequest represents the request body for updating a template.
// A nil Nodes slice keeps the existing chain; a non-nil one replaces it.
type UpdateTemplateRequest struct {
	DisplayName *string               `json:"display_name,omitempty" validate:"omitempty,min=2"`
	Nodes       []TemplateNodeRequest `json:"nodes,omitempty"        validate:"omitempty,min=1,dive"`
}

// SendRequest represents the request body for routing one decision.
type SendRequest struct {
	TemplateID     string `json:"template_id"                validate:"required"`
	DocID          string `json:"doc_id"                     validate:"required"`
	Comment        string `json:"comment"`
	Approved       *bool  `json:"approved"                   validate:"required"`
	NextOperatorID string `json:"next_operator_id,omitempty"`
	Restart        bool   `json:"restart,omitempty"`
}

// SendResponse carries the routed instance id and its derived status.
type SendResponse struct {
	InstanceID string                `json:"instance_id"`
	Status     models.InstanceStatus `json:"status"`
}

// buildChain turns ordered node requests into a linked template chain with
// generated ids, each step pointing at its successor.
func buildChain(nodes []TemplateNodeRequest) []*models.TemplateNode {
	chain := make([]*models.TemplateNode, len(nodes))

	for i, nodeReq := range nodes {
		node := &models.TemplateNode{
			ID: uuid.New().String(),
		}

		for _, itemReq := range nodeReq.Items {
			node.Items = append(node.Items, &models.TemplateNodeItem{
				ID:                  uuid.New().String(),
				NodeID:              node.ID,
				OperatorID:          itemReq.OperatorID,
				OperatorDisplayName: itemReq.OperatorDisplayName,
				Kind:                models.OperationKindApprover,
			})
		}

		chain[i] = node
	}

	for i := 0; i < len(chain)-1; i++ {
		chain[i].NextID = &chain[i+1].ID
	}

	return chain
}
