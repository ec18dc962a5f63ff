package file

import (
	"fmt"
	"testing"
	"time"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testInstance(id, docID string, createdAt time.Time, operators ...string) *models.WorkflowInstance {
	instance := &models.WorkflowInstance{
		ID:         id,
		DocID:      docID,
		TemplateID: "tpl-1",
		CreatedAt:  createdAt,
	}

	for i, operatorID := range operators {
		nodeID := fmt.Sprintf("%s-node-%d", id, i+1)

		instance.Nodes = append(instance.Nodes, &models.InstanceNode{
			ID:             nodeID,
			InstanceID:     id,
			TemplateNodeID: "tpl-node-1",
			ArrivalAt:      createdAt.Add(time.Duration(i) * time.Millisecond),
			Items: []*models.InstanceNodeItem{
				{ID: nodeID + "-item", NodeID: nodeID, OperatorID: operatorID, Decision: models.DecisionApproved},
			},
		})
	}

	return instance
}

func TestInstanceRepository_SaveAndGetByID(t *testing.T) {
	t.Parallel()

	repo := NewInstanceRepository(t.TempDir())
	instance := testInstance("inst-1", "doc-1", time.Now().UTC(), "u1")

	require.NoError(t, repo.Save(t.Context(), instance))
	assert.Equal(t, 1, instance.Version)

	loaded, err := repo.GetByID(t.Context(), "inst-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, "doc-1", loaded.DocID)
	assert.Equal(t, 1, loaded.Version)
	require.Len(t, loaded.Nodes, 1)
	assert.Equal(t, models.DecisionApproved, loaded.Nodes[0].Items[0].Decision)
}

func TestInstanceRepository_GetByID_Missing(t *testing.T) {
	t.Parallel()

	repo := NewInstanceRepository(t.TempDir())

	loaded, err := repo.GetByID(t.Context(), "inst-missing")
	require.NoError(t, err)
	assert.Nil(t, loaded)
}

func TestInstanceRepository_Save_VersionConflict(t *testing.T) {
	t.Parallel()

	repo := NewInstanceRepository(t.TempDir())
	instance := testInstance("inst-1", "doc-1", time.Now().UTC(), "u1")

	require.NoError(t, repo.Save(t.Context(), instance))

	// A writer holding the pre-save snapshot loses the race.
	stale := testInstance("inst-1", "doc-1", time.Now().UTC(), "u1")
	stale.Version = 0

	err := repo.Save(t.Context(), stale)
	require.Error(t, err)
	assert.True(t, persistence.IsVersionConflict(err))

	// The current holder saves again cleanly.
	require.NoError(t, repo.Save(t.Context(), instance))
	assert.Equal(t, 2, instance.Version)
}

func TestInstanceRepository_ByDocID(t *testing.T) {
	t.Parallel()

	repo := NewInstanceRepository(t.TempDir())
	base := time.Now().UTC()

	require.NoError(t, repo.Save(t.Context(), testInstance("inst-2", "doc-1", base.Add(time.Second), "u2")))
	require.NoError(t, repo.Save(t.Context(), testInstance("inst-1", "doc-1", base, "u1")))
	require.NoError(t, repo.Save(t.Context(), testInstance("inst-3", "doc-2", base, "u1")))

	instances, err := repo.ByDocID(t.Context(), "doc-1")
	require.NoError(t, err)
	require.Len(t, instances, 2)

	// Oldest traversal first.
	assert.Equal(t, "inst-1", instances[0].ID)
	assert.Equal(t, "inst-2", instances[1].ID)
}

func TestInstanceRepository_ByOperatorID(t *testing.T) {
	t.Parallel()

	repo := NewInstanceRepository(t.TempDir())
	base := time.Now().UTC()

	require.NoError(t, repo.Save(t.Context(), testInstance("inst-1", "doc-1", base, "u1", "u2")))
	require.NoError(t, repo.Save(t.Context(), testInstance("inst-2", "doc-2", base.Add(time.Second), "u2")))
	require.NoError(t, repo.Save(t.Context(), testInstance("inst-3", "doc-3", base, "u3")))

	instances, err := repo.ByOperatorID(t.Context(), "u2")
	require.NoError(t, err)
	require.Len(t, instances, 2)
	assert.Equal(t, "inst-1", instances[0].ID)
	assert.Equal(t, "inst-2", instances[1].ID)

	instances, err = repo.ByOperatorID(t.Context(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, instances)
}
