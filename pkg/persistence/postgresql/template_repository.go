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

// TemplateRepository handles template-related database operations.
type TemplateRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewTemplateRepository creates a new template repository.
func NewTemplateRepository(db *sql.DB, logger *slog.Logger) *TemplateRepository {
	return &TemplateRepository{db: db, logger: logger}
}

// List returns all non-deleted templates matching the options, newest first.
func (r *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.Template, error) {
	query := `
		SELECT
			id
		  , display_name
		  , doc_type_code
		  , org_id
		  , created_by
		  , created_at
		  , updated_at
		  , deleted_at
		FROM wf_templates
		WHERE deleted_at IS NULL
		  AND ($1 = '' OR doc_type_code = $1)
		  AND ($2 = '' OR org_id = $2)
		ORDER BY created_at DESC
	`

	rows, err := r.db.QueryContext(ctx, query, opts.DocTypeCode, opts.OrgID)
	if err != nil {
		return nil, fmt.Errorf("failed to query templates: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	templates := make([]*models.Template, 0)

	for rows.Next() {
		template, err := r.scanTemplateBase(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan template: %w", err)
		}

		if err := r.loadNodes(ctx, template); err != nil {
			return nil, fmt.Errorf("failed to load template nodes: %w", err)
		}

		templates = append(templates, template)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating templates: %w", err)
	}

	return templates, nil
}

// GetByID returns nil, nil when no live template with the id exists.
func (r *TemplateRepository) GetByID(ctx context.Context, id string) (*models.Template, error) {
	query := `
		SELECT
			id
		  , display_name
		  , doc_type_code
		  , org_id
		  , created_by
		  , created_at
		  , updated_at
		  , deleted_at
		FROM wf_templates
		WHERE id = $1 AND deleted_at IS NULL
	`

	row := r.db.QueryRowContext(ctx, query, id)

	template, err := r.scanTemplateBase(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}

		return nil, fmt.Errorf("failed to scan template: %w", err)
	}

	if err := r.loadNodes(ctx, template); err != nil {
		return nil, fmt.Errorf("failed to load template nodes: %w", err)
	}

	return template, nil
}

// Save upserts the template base row and rewrites its nodes and items inside
// one transaction.
func (r *TemplateRepository) Save(ctx context.Context, template *models.Template) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	templateQuery := `
		INSERT INTO wf_templates (id, display_name, doc_type_code, org_id, created_by, created_at, updated_at, deleted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			doc_type_code = EXCLUDED.doc_type_code,
			org_id = EXCLUDED.org_id,
			updated_at = EXCLUDED.updated_at,
			deleted_at = EXCLUDED.deleted_at
	`

	_, err = tx.ExecContext(ctx, templateQuery,
		template.ID,
		template.DisplayName,
		template.DocTypeCode,
		template.OrgID,
		template.CreatedBy,
		template.CreatedAt,
		template.UpdatedAt,
		template.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save template base: %w", err)
	}

	// Rewrite children on every save: item deletes cascade from nodes.
	_, err = tx.ExecContext(ctx, "DELETE FROM wf_template_nodes WHERE template_id = $1", template.ID)
	if err != nil {
		return fmt.Errorf("failed to delete existing nodes: %w", err)
	}

	for ord, node := range template.Nodes {
		_, err = tx.ExecContext(ctx,
			"INSERT INTO wf_template_nodes (id, template_id, next_id, ord) VALUES ($1, $2, $3, $4)",
			node.ID, template.ID, node.NextID, ord,
		)
		if err != nil {
			return fmt.Errorf("failed to save template node: %w", err)
		}

		for _, item := range node.Items {
			_, err = tx.ExecContext(ctx,
				`INSERT INTO wf_template_node_items (id, node_id, operator_id, operator_display_name, operation_kind)
				 VALUES ($1, $2, $3, $4, $5)`,
				item.ID, node.ID, item.OperatorID, item.OperatorDisplayName, int(item.Kind),
			)
			if err != nil {
				return fmt.Errorf("failed to save template node item: %w", err)
			}
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// Delete soft deletes a template by setting deleted_at.
func (r *TemplateRepository) Delete(ctx context.Context, id string) error {
	query := `UPDATE wf_templates SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`

	_, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("failed to delete template: %w", err)
	}

	return nil
}

func (r *TemplateRepository) loadNodes(ctx context.Context, template *models.Template) error {
	nodesQuery := `
		SELECT id, next_id
		FROM wf_template_nodes
		WHERE template_id = $1
		ORDER BY ord
	`

	rows, err := r.db.QueryContext(ctx, nodesQuery, template.ID)
	if err != nil {
		return fmt.Errorf("failed to query template nodes: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var nodes []*models.TemplateNode

	for rows.Next() {
		var (
			node   models.TemplateNode
			nextID sql.NullString
		)

		if err := rows.Scan(&node.ID, &nextID); err != nil {
			return fmt.Errorf("failed to scan template node: %w", err)
		}

		node.TemplateID = template.ID
		if nextID.Valid {
			node.NextID = &nextID.String
		}

		nodes = append(nodes, &node)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating template nodes: %w", err)
	}

	for _, node := range nodes {
		if err := r.loadItems(ctx, node); err != nil {
			return err
		}
	}

	template.Nodes = nodes

	return nil
}

func (r *TemplateRepository) loadItems(ctx context.Context, node *models.TemplateNode) error {
	itemsQuery := `
		SELECT id, operator_id, operator_display_name, operation_kind
		FROM wf_template_node_items
		WHERE node_id = $1
		ORDER BY operator_id
	`

	rows, err := r.db.QueryContext(ctx, itemsQuery, node.ID)
	if err != nil {
		return fmt.Errorf("failed to query template node items: %w", err)
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			r.logger.ErrorContext(ctx, "failed to close rows", "error", err)
		}
	}()

	var items []*models.TemplateNodeItem

	for rows.Next() {
		var (
			item models.TemplateNodeItem
			kind int
		)

		if err := rows.Scan(&item.ID, &item.OperatorID, &item.OperatorDisplayName, &kind); err != nil {
			return fmt.Errorf("failed to scan template node item: %w", err)
		}

		item.NodeID = node.ID
		item.Kind = models.OperationKind(kind)

		items = append(items, &item)
	}

	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating template node items: %w", err)
	}

	node.Items = items

	return nil
}

func (r *TemplateRepository) scanTemplateBase(scanner interface {
	Scan(dest ...any) error
}) (*models.Template, error) {
	var template models.Template

	err := scanner.Scan(
		&template.ID,
		&template.DisplayName,
		&template.DocTypeCode,
		&template.OrgID,
		&template.CreatedBy,
		&template.CreatedAt,
		&template.UpdatedAt,
		&template.DeletedAt,
	)
	if err != nil {
		return nil, err
	}

	return &template, nil
}
