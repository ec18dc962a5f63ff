package workflow

import (
	"testing"
	"time"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

// arrivedNode builds an instance node at the given template step with one
// recorded item per operator/decision pair.
func arrivedNode(templateNodeID string, arrival time.Time, decisions map[string]models.Decision) *models.InstanceNode {
	node := &models.InstanceNode{
		ID:             "arr-" + templateNodeID,
		InstanceID:     "inst-1",
		TemplateNodeID: templateNodeID,
		ArrivalAt:      arrival,
	}

	for operatorID, decision := range decisions {
		node.Items = append(node.Items, &models.InstanceNodeItem{
			ID:         operatorID + "@" + node.ID,
			NodeID:     node.ID,
			OperatorID: operatorID,
			Kind:       models.OperationKindApprover,
			Decision:   decision,
		})
	}

	return node
}

func TestEvaluateNode(t *testing.T) {
	t.Parallel()

	template := chainTemplate([]string{"u1", "u2"})
	step := template.Nodes[0]
	now := time.Now().UTC()

	tests := []struct {
		name      string
		decisions map[string]models.Decision
		expected  NodeDecision
	}{
		{
			name:      "single approval",
			decisions: map[string]models.Decision{"u1": models.DecisionApproved},
			expected:  NodeApproved,
		},
		{
			name:      "single rejection",
			decisions: map[string]models.Decision{"u1": models.DecisionRejected},
			expected:  NodeRejected,
		},
		{
			name:      "single pending",
			decisions: map[string]models.Decision{"u1": models.DecisionPending},
			expected:  NodePending,
		},
		{
			name: "all recorded approvals approved",
			decisions: map[string]models.Decision{
				"u1": models.DecisionApproved,
				"u2": models.DecisionApproved,
			},
			expected: NodeApproved,
		},
		{
			name: "pending co-approver holds the node",
			decisions: map[string]models.Decision{
				"u1": models.DecisionApproved,
				"u2": models.DecisionPending,
			},
			expected: NodePending,
		},
		{
			name: "earlier operator id decides first",
			decisions: map[string]models.Decision{
				"u1": models.DecisionRejected,
				"u2": models.DecisionPending,
			},
			expected: NodeRejected,
		},
		{
			name:      "no recorded approver items",
			decisions: map[string]models.Decision{},
			expected:  NodeNotApproval,
		},
		{
			name:      "items outside the template step are ignored",
			decisions: map[string]models.Decision{"stranger": models.DecisionRejected},
			expected:  NodeNotApproval,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			node := arrivedNode(step.ID, now, tt.decisions)
			assert.Equal(t, tt.expected, EvaluateNode(node, step))
		})
	}
}

func TestEvaluateNode_MissingTemplateStep(t *testing.T) {
	t.Parallel()

	node := arrivedNode("node-gone", time.Now().UTC(), map[string]models.Decision{
		"u1": models.DecisionApproved,
	})

	assert.Equal(t, NodeNotApproval, EvaluateNode(node, nil))
}

func TestLastApprovalNode(t *testing.T) {
	t.Parallel()

	template := chainTemplate([]string{"u1"}, []string{"u2"})
	base := time.Now().UTC()

	instance := &models.WorkflowInstance{
		ID:         "inst-1",
		TemplateID: template.ID,
		Nodes: []*models.InstanceNode{
			arrivedNode(template.Nodes[0].ID, base, map[string]models.Decision{"u1": models.DecisionApproved}),
			arrivedNode(template.Nodes[1].ID, base.Add(time.Millisecond), map[string]models.Decision{"u2": models.DecisionPending}),
		},
	}

	last := LastApprovalNode(instance, template)
	assert.Equal(t, template.Nodes[1].ID, last.TemplateNodeID)
}

func TestLastApprovalNode_SkipsNonApprovalArrivals(t *testing.T) {
	t.Parallel()

	template := chainTemplate([]string{"u1"}, []string{"u2"})
	base := time.Now().UTC()

	// The newest arrival recorded nobody the template step lists, so status
	// falls back to the approval node before it.
	instance := &models.WorkflowInstance{
		ID:         "inst-1",
		TemplateID: template.ID,
		Nodes: []*models.InstanceNode{
			arrivedNode(template.Nodes[0].ID, base, map[string]models.Decision{"u1": models.DecisionApproved}),
			arrivedNode(template.Nodes[1].ID, base.Add(time.Millisecond), map[string]models.Decision{"stranger": models.DecisionRejected}),
		},
	}

	last := LastApprovalNode(instance, template)
	assert.Equal(t, template.Nodes[0].ID, last.TemplateNodeID)
}

func TestStatus(t *testing.T) {
	t.Parallel()

	template := chainTemplate([]string{"u1"}, []string{"u2"})
	base := time.Now().UTC()

	tests := []struct {
		name     string
		nodes    []*models.InstanceNode
		expected models.InstanceStatus
	}{
		{
			name:     "no arrivals",
			nodes:    nil,
			expected: models.InstanceStatusInProgress,
		},
		{
			name: "latest node pending",
			nodes: []*models.InstanceNode{
				arrivedNode(template.Nodes[0].ID, base, map[string]models.Decision{"u1": models.DecisionApproved}),
				arrivedNode(template.Nodes[1].ID, base.Add(time.Millisecond), map[string]models.Decision{"u2": models.DecisionPending}),
			},
			expected: models.InstanceStatusInProgress,
		},
		{
			name: "latest node approved",
			nodes: []*models.InstanceNode{
				arrivedNode(template.Nodes[0].ID, base, map[string]models.Decision{"u1": models.DecisionApproved}),
				arrivedNode(template.Nodes[1].ID, base.Add(time.Millisecond), map[string]models.Decision{"u2": models.DecisionApproved}),
			},
			expected: models.InstanceStatusCompleted,
		},
		{
			name: "latest node rejected",
			nodes: []*models.InstanceNode{
				arrivedNode(template.Nodes[0].ID, base, map[string]models.Decision{"u1": models.DecisionApproved}),
				arrivedNode(template.Nodes[1].ID, base.Add(time.Millisecond), map[string]models.Decision{"u2": models.DecisionRejected}),
			},
			expected: models.InstanceStatusTerminated,
		},
		{
			name: "earlier rejection is superseded by later arrival",
			nodes: []*models.InstanceNode{
				arrivedNode(template.Nodes[0].ID, base, map[string]models.Decision{"u1": models.DecisionRejected}),
				arrivedNode(template.Nodes[1].ID, base.Add(time.Millisecond), map[string]models.Decision{"u2": models.DecisionPending}),
			},
			expected: models.InstanceStatusInProgress,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			instance := &models.WorkflowInstance{ID: "inst-1", TemplateID: template.ID, Nodes: tt.nodes}
			assert.Equal(t, tt.expected, Status(instance, template))
		})
	}
}
