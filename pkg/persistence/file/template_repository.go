package file

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ourworldcn/powerlms-workflow/pkg/models"
	"github.com/ourworldcn/powerlms-workflow/pkg/persistence"
)

const dirPerm = 0o755

// TemplateRepository stores templates as one JSON file per template.
type TemplateRepository struct {
	root string
}

func NewTemplateRepository(root string) *TemplateRepository {
	return &TemplateRepository{root: root}
}

func (tr *TemplateRepository) dir() string {
	return filepath.Join(tr.root, "templates")
}

func (tr *TemplateRepository) path(id string) string {
	return filepath.Join(tr.dir(), id+".json")
}

// List returns all non-deleted templates matching the options, newest first.
func (tr *TemplateRepository) List(ctx context.Context, opts persistence.ListTemplatesOptions) ([]*models.Template, error) {
	if _, err := os.Stat(tr.dir()); os.IsNotExist(err) {
		return []*models.Template{}, nil
	}

	jsonFiles, err := fs.Glob(os.DirFS(tr.dir()), "*.json")
	if err != nil {
		return nil, fmt.Errorf("failed to list template files: %w", err)
	}

	templates := make([]*models.Template, 0, len(jsonFiles))

	for _, file := range jsonFiles {
		templateID := file[:len(file)-5] // Remove .json extension

		template, err := tr.GetByID(ctx, templateID)
		if err != nil {
			return nil, fmt.Errorf("failed to load template %s: %w", templateID, err)
		}

		if template == nil {
			continue
		}

		if opts.DocTypeCode != "" && template.DocTypeCode != opts.DocTypeCode {
			continue
		}

		if opts.OrgID != "" && template.OrgID != opts.OrgID {
			continue
		}

		templates = append(templates, template)
	}

	sort.Slice(templates, func(i, j int) bool {
		return templates[i].CreatedAt.After(templates[j].CreatedAt)
	})

	return templates, nil
}

// GetByID returns nil, nil for missing or soft-deleted templates.
func (tr *TemplateRepository) GetByID(_ context.Context, id string) (*models.Template, error) {
	data, err := os.ReadFile(tr.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	var template models.Template
	if err := json.Unmarshal(data, &template); err != nil {
		return nil, persistence.NewTemplateError("GetByID", id, err)
	}

	if template.DeletedAt != nil {
		return nil, nil
	}

	return &template, nil
}

func (tr *TemplateRepository) Save(_ context.Context, template *models.Template) error {
	if err := os.MkdirAll(tr.dir(), dirPerm); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	if err := os.WriteFile(tr.path(template.ID), data, 0o600); err != nil {
		return persistence.NewTemplateError("Save", template.ID, err)
	}

	return nil
}

// Delete soft deletes by stamping DeletedAt; deleting a missing template is not an error.
func (tr *TemplateRepository) Delete(ctx context.Context, id string) error {
	template, err := tr.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if template == nil {
		return nil
	}

	now := time.Now().UTC()
	template.DeletedAt = &now

	data, err := json.MarshalIndent(template, "", "  ")
	if err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	if err := os.WriteFile(tr.path(id), data, 0o600); err != nil {
		return persistence.NewTemplateError("Delete", id, err)
	}

	return nil
}
