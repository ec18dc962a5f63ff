// Package models defines the core domain models for the approval workflow engine.
package models

import "time"

// OperationKind classifies what an operator is allowed to do at a step.
type OperationKind int

const (
	// OperationKindApprover marks an operator as an eligible approver for a step.
	OperationKindApprover OperationKind = 0
)

// Template represents a reusable approval chain definition for one document type.
// Its nodes form a singly linked chain via NextID; exactly one node has no
// inbound NextID reference and is the chain's first step.
type Template struct {
	ID          string          `json:"id"`
	DisplayName string          `json:"display_name" validate:"required,min=2"`
	DocTypeCode string          `json:"doc_type_code" validate:"required"`
	OrgID       string          `json:"org_id"`
	CreatedBy   string          `json:"created_by"`
	Nodes       []*TemplateNode `json:"nodes"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
	DeletedAt   *time.Time      `json:"deleted_at,omitempty"`
}

// TemplateNode is one step in an approval chain.
type TemplateNode struct {
	ID         string              `json:"id"`
	TemplateID string              `json:"template_id"`
	NextID     *string             `json:"next_id,omitempty"`
	Items      []*TemplateNodeItem `json:"items"`
}

// TemplateNodeItem names one operator eligible to act at a step.
type TemplateNodeItem struct {
	ID                  string        `json:"id"`
	NodeID              string        `json:"node_id"`
	OperatorID          string        `json:"operator_id"`
	OperatorDisplayName string        `json:"operator_display_name"`
	Kind                OperationKind `json:"operation_kind"`
}

// NodeByID returns the template node with the given id, or nil.
func (t *Template) NodeByID(id string) *TemplateNode {
	for _, node := range t.Nodes {
		if node.ID == id {
			return node
		}
	}

	return nil
}

// ApproverItem returns the node's approver item for the given operator, or nil.
func (n *TemplateNode) ApproverItem(operatorID string) *TemplateNodeItem {
	for _, item := range n.Items {
		if item.Kind == OperationKindApprover && item.OperatorID == operatorID {
			return item
		}
	}

	return nil
}

// ApproverItems returns the node's items with the approver operation kind.
func (n *TemplateNode) ApproverItems() []*TemplateNodeItem {
	items := make([]*TemplateNodeItem, 0, len(n.Items))

	for _, item := range n.Items {
		if item.Kind == OperationKindApprover {
			items = append(items, item)
		}
	}

	return items
}
