package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
)

// InstanceRepository handles workflow instance database operations.
type InstanceRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewInstanceRepository creates a new instance repository.
func NewInstanceRepository(db *sql.DB, logger *slog.Logger) *InstanceRepository {
	return &InstanceRepository{db: db, logger: logger}
}

// GetByID returns nil, nil when no instance with the id exists.
func (r *InstanceRepository) GetByID(ctx context.Context, id string) (*models.WorkflowInstance, error) {
	instances, err := r.query(ctx, "WHERE i.id = $1", id)
	if err != nil {
		return nil, err
	}

	if len(instances) == 0 {
		return nil, nil
	}

	return instances[0], nil
}

// ByDocID returns all traversals for a document, oldest first.
func (r *InstanceRepository) ByDocID(ctx context.Context, docID string) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, "WHERE i.doc_id = $1", docID)
}

// ByOperatorID returns all traversals carrying a decision item for the
// operator, oldest first.
func (r *InstanceRepository) ByOperatorID(ctx context.Context, operatorID string) ([]*models.WorkflowInstance, error) {
	return r.query(ctx, `
		WHERE i.id IN (
			SELECT n.instance_id
			FROM wf_instance_nodes n
			JOIN wf_instance_node_items it ON it.node_id = n.id
			WHERE it.operator_id = $1
		)`, operatorID)
}

// Save writes the instance and all of its nodes and items in one transaction.
// The optimistic version check happens inside the same transaction: a stale
// Version yields ErrVersionConflict.
func (r *InstanceRepository) Save(ctx context.Context, instance *models.WorkflowInstance) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	var storedVersion sql.NullInt64

	err = tx.QueryRowContext(ctx,
		"SELECT version FROM wf_instances WHERE id = $1 FOR UPDATE", instance.ID,
	).Scan(&storedVersion)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("failed to read instance version: %w", err)
	}

	if storedVersion.Valid && int(storedVersion.Int64) != instance.Version {
		err = persistence.NewInstanceError("Save", instance.ID, persistence.ErrVersionConflict)

		return err
	}

	instance.Version++

	upsert := `
		INSERT INTO wf_instances (id, doc_id, template_id, version, created_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			version = EXCLUDED.version
	`

	_, err = tx.ExecContext(ctx, upsert,
		instance.ID, instance.DocID, instance.TemplateID, instance.Version, instance.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save instance base: %w", err)
	}

	// Rewrite children on every save: item deletes cascade from nodes.
	_, err = tx.ExecContext(ctx, "DELETE FROM wf_instance_nodes WHERE instance_id = $1", instance.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing instance nodes: %w", err)
	}

	for _, node := range instance.Nodes {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO wf_instance_nodes (id, instance_id, template_node_id, arrival_at) VALUES ($1, $2, $3, $4)",
			node.ID, instance.ID, node.TemplateNodeID, node.ArrivalAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save instance node: %w", err)
		}

		for _, item := range node.Items {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO wf_instance_node_items (id, node_id, operator_id, operator_display_name, operation_kind, comment, is_success)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				item.ID, node.ID, item.OperatorID, item.OperatorDisplayName,
				int(item.Kind), item.Comment, item.Decision.NullableBool(),
			)
			if err != nil {
				return fmt.Errorf("failed to save instance node item: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

func (r *InstanceRepository) query(ctx context.Context, where string, arg any) ([]*models.WorkflowInstance, error) {
	query := `
		SELECT
			i.id
		  , i.doc_id
		  , i.template_id
		  , i.version
		  , i.created_at
		FROM wf_instances i
		` + where + `
		ORDER BY i.created_at
	`

	rows, err := r.db.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, fmt.Errorf("failed to query instances: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	instances := make([]*models.WorkflowInstance, 0)

	for rows.Next() {
		var instance models.WorkflowInstance

		err := rows.Scan(
			&instance.ID,
			&instance.DocID,
			&instance.TemplateID,
			&instance.Version,
			&instance.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan instance: %w", err)
		}

		instances = append(instances, &instance)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating instances: %w", err)
	}

	for _, instance := range instances {
		if err := r.loadNodes(ctx, instance); err != nil {
			return nil, err
		}
	}

	return instances, nil
}

func (r *InstanceRepository) loadNodes(ctx context.Context, instance *models.WorkflowInstance) error {
	nodesQuery := `
		SELECT id, template_node_id, arrival_at
		FROM wf_instance_nodes
		WHERE instance_id = $1
		ORDER BY arrival_at
	`

	rows, err := r.db.QueryContext(ctx, nodesQuery, instance.ID)
	if err != nil {
		return fmt.Errorf("failed to query instance nodes: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var nodes []*models.InstanceNode

	for rows.Next() {
		var node models.InstanceNode

		if err := rows.Scan(&node.ID, &node.TemplateNodeID, &node.ArrivalAt); err != nil {
			return fmt.Errorf("failed to scan instance node: %w", err)
		}

		node.InstanceID = instance.ID

		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating instance nodes: %w", err)
	}

	for _, node := range nodes {
		if err := r.loadItems(ctx, node); err != nil {
			return err
		}
	}

	instance.Nodes = nodes

	return nil
}

func (r *InstanceRepository) loadItems(ctx context.Context, node *models.InstanceNode) error {
	itemsQuery := `
		SELECT id, operator_id, operator_display_name, operation_kind, comment, is_success
		FROM wf_instance_node_items
		WHERE node_id = $1
		ORDER BY operator_id
	`

	rows, err := r.db.QueryContext(ctx, itemsQuery, node.ID)
	if err != nil {
		return fmt.Errorf("failed to query instance node items: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var items []*models.InstanceNodeItem

	for rows.Next() {
		var (
			item      models.InstanceNodeItem
			kind      int
			isSuccess sql.NullBool
		)

		err := rows.Scan(&item.ID, &item.OperatorID, &item.OperatorDisplayName, &kind, &item.Comment, &isSuccess)
		if err != nil {
			return fmt.Errorf("failed to scan instance node item: %w", err)
		}

		item.NodeID = node.ID
		item.Kind = models.OperationKind(kind)

		if isSuccess.Valid {
			item.Decision = models.DecisionFromNullableBool(&isSuccess.Bool)
		} else {
			item.Decision = models.DecisionPending
		}

		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating instance node items: %w", err)
	}

	node.Items = items

	return nil
}
