package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecision_NullableBoolRoundTrip(t *testing.T) {
	t.Parallel()

	for _, decision := range []Decision{DecisionPending, DecisionApproved, DecisionRejected} {
		assert.Equal(t, decision, DecisionFromNullableBool(decision.NullableBool()))
	}

	assert.Nil(t, DecisionPending.NullableBool())
	require.NotNil(t, DecisionApproved.NullableBool())
	assert.True(t, *DecisionApproved.NullableBool())
	require.NotNil(t, DecisionRejected.NullableBool())
	assert.False(t, *DecisionRejected.NullableBool())
}

func TestDecision_String(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "pending", DecisionPending.String())
	assert.Equal(t, "approved", DecisionApproved.String())
	assert.Equal(t, "rejected", DecisionRejected.String())
}

func TestWorkflowInstance_Arrivals(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	instance := &WorkflowInstance{
		ID: "inst-1",
		Nodes: []*InstanceNode{
			{ID: "arr-2", ArrivalAt: base.Add(time.Millisecond)},
			{ID: "arr-1", ArrivalAt: base},
			{ID: "arr-3", ArrivalAt: base.Add(2 * time.Millisecond)},
		},
	}

	assert.Equal(t, base.Add(2*time.Millisecond), instance.LastArrival())
	assert.Equal(t, base, instance.EarliestArrival())
}

func TestWorkflowInstance_Arrivals_Empty(t *testing.T) {
	t.Parallel()

	instance := &WorkflowInstance{ID: "inst-1"}

	assert.True(t, instance.LastArrival().IsZero())
	assert.True(t, instance.EarliestArrival().IsZero())
}

func TestWorkflowInstance_LatestNodeForOperator(t *testing.T) {
	t.Parallel()

	base := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)

	// u1 appears at two arrivals; the later one is their current step.
	instance := &WorkflowInstance{
		ID: "inst-1",
		Nodes: []*InstanceNode{
			{
				ID:        "arr-1",
				ArrivalAt: base,
				Items:     []*InstanceNodeItem{{OperatorID: "u1", Decision: DecisionApproved}},
			},
			{
				ID:        "arr-2",
				ArrivalAt: base.Add(time.Millisecond),
				Items:     []*InstanceNodeItem{{OperatorID: "u2", Decision: DecisionApproved}},
			},
			{
				ID:        "arr-3",
				ArrivalAt: base.Add(2 * time.Millisecond),
				Items:     []*InstanceNodeItem{{OperatorID: "u1", Decision: DecisionPending}},
			},
		},
	}

	node := instance.LatestNodeForOperator("u1")
	require.NotNil(t, node)
	assert.Equal(t, "arr-3", node.ID)

	assert.Nil(t, instance.LatestNodeForOperator("u3"))
}

func TestWorkflowInstance_TouchesOperator(t *testing.T) {
	t.Parallel()

	instance := &WorkflowInstance{
		ID: "inst-1",
		Nodes: []*InstanceNode{
			{ID: "arr-1", Items: []*InstanceNodeItem{{OperatorID: "u1"}}},
		},
	}

	assert.True(t, instance.TouchesOperator("u1"))
	assert.False(t, instance.TouchesOperator("u2"))
}

func TestInstanceNode_ItemForOperator(t *testing.T) {
	t.Parallel()

	node := &InstanceNode{
		ID: "arr-1",
		Items: []*InstanceNodeItem{
			{ID: "item-1", OperatorID: "u1"},
			{ID: "item-2", OperatorID: "u2"},
		},
	}

	item := node.ItemForOperator("u2")
	require.NotNil(t, item)
	assert.Equal(t, "item-2", item.ID)

	assert.Nil(t, node.ItemForOperator("u3"))
}
