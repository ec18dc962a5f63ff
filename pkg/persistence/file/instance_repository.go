package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
)

// InstanceRepository stores workflow instances as one JSON file per instance.
// Saves take a process-wide mutex so the optimistic version check and the
// write are one step, mirroring what the SQL adapter does inside a transaction.
type InstanceRepository struct {
	root string
	mu   sync.Mutex
}

func NewInstanceRepository(root string) *InstanceRepository {
	return &InstanceRepository{root: root}
}

func (ir *InstanceRepository) dir() string {
	return filepath.Join(ir.root, "instances")
}

func (ir *InstanceRepository) path(id string) string {
	return filepath.Join(ir.dir(), id+".json")
}

// GetByID returns nil, nil when no instance with the id exists.
func (ir *InstanceRepository) GetByID(_ context.Context, id string) (*models.WorkflowInstance, error) {
	return ir.read(id)
}

// ByDocID returns all traversals for a document, oldest first.
func (ir *InstanceRepository) ByDocID(ctx context.Context, docID string) ([]*models.WorkflowInstance, error) {
	return ir.filter(func(instance *models.WorkflowInstance) bool {
		return instance.DocID == docID
	})
}

// ByOperatorID returns all traversals carrying an item for the operator, oldest first.
func (ir *InstanceRepository) ByOperatorID(ctx context.Context, operatorID string) ([]*models.WorkflowInstance, error) {
	return ir.filter(func(instance *models.WorkflowInstance) bool {
		return instance.TouchesOperator(operatorID)
	})
}

// Save writes the instance after checking its optimistic version against the
// stored copy, then bumps the version.
func (ir *InstanceRepository) Save(_ context.Context, instance *models.WorkflowInstance) error {
	ir.mu.Lock()
	defer ir.mu.Unlock()

	stored, err := ir.read(instance.ID)
	if err != nil {
		return err
	}

	if stored != nil && stored.Version != instance.Version {
		return persistence.NewInstanceError("Save", instance.ID, persistence.ErrVersionConflict)
	}

	instance.Version++

	if err := os.MkdirAll(ir.dir(), dirPerm); err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	data, err := json.MarshalIndent(instance, "", "  ")
	if err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	if err := os.WriteFile(ir.path(instance.ID), data, 0o600); err != nil {
		return persistence.NewInstanceError("Save", instance.ID, err)
	}

	return nil
}

func (ir *InstanceRepository) read(id string) (*models.WorkflowInstance, error) {
	data, err := os.ReadFile(ir.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	var instance models.WorkflowInstance
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, persistence.NewInstanceError("GetByID", id, err)
	}

	return &instance, nil
}

func (ir *InstanceRepository) filter(keep func(*models.WorkflowInstance) bool) ([]*models.WorkflowInstance, error) {
	if _, err := os.Stat(ir.dir()); os.IsNotExist(err) {
		return []*models.WorkflowInstance{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(ir.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list instance files: %w", err)
	}

	instances := make([]*models.WorkflowInstance, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		instanceID := file[:len(file)-5] // Remove .json extension

		instance, err := ir.read(instanceID)
		if err != nil {
			return nil, fmt.Errorf("failed to load instance %s: %w", instanceID, err)
		}

		if instance != nil && keep(instance) {
			instances = append(instances, instance)
		}
	}

	sort.Slice(instances, func(i, j int) bool {
		return instances[i].CreatedAt.Before(instances[j].CreatedAt)
	})

	return instances, nil
}
