package workflow

import (
	"sort"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
)

// NodeDecision is the aggregate outcome of one arrived node.
type NodeDecision int

const (
	// NodeNotApproval marks a node whose template step lists no approver the
	// node actually recorded, e.g. an administrative step.
	NodeNotApproval NodeDecision = iota
	NodePending
	NodeApproved
	NodeRejected
)

func (d NodeDecision) String() string {
	switch d {
	case NodePending:
		return "pending"
	case NodeApproved:
		return "approved"
	case NodeRejected:
		return "rejected"
	default:
		return "not_approval"
	}
}

// EvaluateNode joins the template step's approver items against the arrived
// node's recorded items by operator id and aggregates them. Joined items are
// scanned in ascending operator id so the outcome does not depend on storage
// enumeration order: the scan stops at the first undecided or rejected item;
// a node whose joined items are all approved is approved.
func EvaluateNode(node *models.InstanceNode, templateNode *models.TemplateNode) NodeDecision {
	if templateNode == nil {
		return NodeNotApproval
	}

	joined := make([]*models.InstanceNodeItem, 0, len(node.Items))

	for _, approver := range templateNode.ApproverItems() {
		if item := node.ItemForOperator(approver.OperatorID); item != nil {
			joined = append(joined, item)
		}
	}

	if len(joined) == 0 {
		return NodeNotApproval
	}

	sort.Slice(joined, func(i, j int) bool {
		return joined[i].OperatorID < joined[j].OperatorID
	})

	for _, item := range joined {
		switch item.Decision {
		case models.DecisionPending:
			return NodePending
		case models.DecisionRejected:
			return NodeRejected
		}
	}

	return NodeApproved
}

// LastApprovalNode returns the most recently arrived node that evaluates to
// an approval decision, skipping non-approval nodes, or nil when the instance
// has none.
func LastApprovalNode(instance *models.WorkflowInstance, template *models.Template) *models.InstanceNode {
	nodes := make([]*models.InstanceNode, len(instance.Nodes))
	copy(nodes, instance.Nodes)

	sort.Slice(nodes, func(i, j int) bool {
		return nodes[i].ArrivalAt.After(nodes[j].ArrivalAt)
	})

	for _, node := range nodes {
		if EvaluateNode(node, template.NodeByID(node.TemplateNodeID)) != NodeNotApproval {
			return node
		}
	}

	return nil
}

// Status derives the tri-state aggregate status of one traversal at query
// time: terminated when the last approval node is rejected, completed when it
// is approved, in progress otherwise.
func Status(instance *models.WorkflowInstance, template *models.Template) models.InstanceStatus {
	last := LastApprovalNode(instance, template)
	if last == nil {
		return models.InstanceStatusInProgress
	}

	switch EvaluateNode(last, template.NodeByID(last.TemplateNodeID)) {
	case NodeRejected:
		return models.InstanceStatusTerminated
	case NodeApproved:
		return models.InstanceStatusCompleted
	default:
		return models.InstanceStatusInProgress
	}
}
