package models

import "time"

// Decision is the tri-state outcome recorded for one operator at one step.
type Decision int

const (
	DecisionPending Decision = iota
	DecisionApproved
	DecisionRejected
)

func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// DecisionFromNullableBool converts the collaborator-owned storage shape
// (NULL = pending, true = approved, false = rejected) into a Decision.
func DecisionFromNullableBool(b *bool) Decision {
	switch {
	case b == nil:
		return DecisionPending
	case *b:
		return DecisionApproved
	default:
		return DecisionRejected
	}
}

// NullableBool converts a Decision back to the storage shape.
func (d Decision) NullableBool() *bool {
	switch d {
	case DecisionApproved:
		v := true

		return &v
	case DecisionRejected:
		v := false

		return &v
	default:
		return nil
	}
}

// InstanceStatus is the derived aggregate state of one traversal.
type InstanceStatus string

const (
	InstanceStatusInProgress InstanceStatus = "in_progress"
	InstanceStatusCompleted  InstanceStatus = "completed"
	InstanceStatusTerminated InstanceStatus = "terminated"
)

// WorkflowInstance is one concrete traversal of a Template for one business
// document. Nodes are ordered by strictly increasing ArrivalAt.
type WorkflowInstance struct {
	ID         string          `json:"id"`
	DocID      string          `json:"doc_id"`
	TemplateID string          `json:"template_id"`
	Version    int             `json:"version"`
	Nodes      []*InstanceNode `json:"nodes"`
	CreatedAt  time.Time       `json:"created_at"`
}

// InstanceNode is the realized arrival at one template step.
type InstanceNode struct {
	ID             string              `json:"id"`
	InstanceID     string              `json:"instance_id"`
	TemplateNodeID string              `json:"template_node_id"`
	ArrivalAt      time.Time           `json:"arrival_at"`
	Items          []*InstanceNodeItem `json:"items"`
}

// InstanceNodeItem is one recorded decision. Once a decision leaves the
// pending state it is never changed again.
type InstanceNodeItem struct {
	ID                  string        `json:"id"`
	NodeID              string        `json:"node_id"`
	OperatorID          string        `json:"operator_id"`
	OperatorDisplayName string        `json:"operator_display_name"`
	Kind                OperationKind `json:"operation_kind"`
	Comment             string        `json:"comment"`
	Decision            Decision      `json:"decision"`
}

// LastArrival returns the arrival time of the most recent node, or the zero
// time for an empty instance.
func (i *WorkflowInstance) LastArrival() time.Time {
	var last time.Time

	for _, node := range i.Nodes {
		if node.ArrivalAt.After(last) {
			last = node.ArrivalAt
		}
	}

	return last
}

// EarliestArrival returns the arrival time of the first node, or the zero
// time for an empty instance.
func (i *WorkflowInstance) EarliestArrival() time.Time {
	var first time.Time

	for _, node := range i.Nodes {
		if first.IsZero() || node.ArrivalAt.Before(first) {
			first = node.ArrivalAt
		}
	}

	return first
}

// LatestNodeForOperator returns the most recently arrived node carrying an
// item for the given operator, or nil.
func (i *WorkflowInstance) LatestNodeForOperator(operatorID string) *InstanceNode {
	var found *InstanceNode

	for _, node := range i.Nodes {
		if node.ItemForOperator(operatorID) == nil {
			continue
		}

		if found == nil || node.ArrivalAt.After(found.ArrivalAt) {
			found = node
		}
	}

	return found
}

// TouchesOperator reports whether any node of the instance carries an item
// for the given operator.
func (i *WorkflowInstance) TouchesOperator(operatorID string) bool {
	for _, node := range i.Nodes {
		if node.ItemForOperator(operatorID) != nil {
			return true
		}
	}

	return false
}

// ItemForOperator returns the node's item recorded for the given operator, or nil.
func (n *InstanceNode) ItemForOperator(operatorID string) *InstanceNodeItem {
	for _, item := range n.Items {
		if item.OperatorID == operatorID {
			return item
		}
	}

	return nil
}
