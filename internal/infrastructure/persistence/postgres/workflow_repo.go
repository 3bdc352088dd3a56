package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS TEMPLATE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// WorkflowRepository implements workflow.Repository for PostgreSQL.
// A partial unique index allows at most one row with is_default = TRUE.
type WorkflowRepository struct {
	conn *Connection
}

// NewWorkflowRepository creates a new WorkflowRepository.
func NewWorkflowRepository(conn *Connection) *WorkflowRepository {
	return &WorkflowRepository{conn: conn}
}

type phaseRecord struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Order int    `json:"order"`
}

func marshalPhases(phases []workflow.Phase) ([]byte, error) {
	records := make([]phaseRecord, len(phases))
	for i, p := range phases {
		records[i] = phaseRecord(p)
	}
	return json.Marshal(records)
}

func unmarshalPhases(data []byte) ([]workflow.Phase, error) {
	var records []phaseRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	phases := make([]workflow.Phase, len(records))
	for i, r := range records {
		phases[i] = workflow.Phase(r)
	}
	return phases, nil
}

// Create inserts a template. New templates are never the default.
func (r *WorkflowRepository) Create(ctx context.Context, t *workflow.ProcessTemplate) error {
	phases, err := marshalPhases(t.Phases)
	if err != nil {
		return fmt.Errorf("failed to marshal phases: %w", err)
	}

	_, err = r.conn.Exec(ctx, `
		INSERT INTO process_templates (id, name, phases, is_default, created_at, updated_at)
		VALUES ($1, $2, $3, FALSE, $4, $5)
	`, t.ID, t.Name, phases, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("workflow", "Create", shared.ErrAlreadyExists, "process template already exists")
		}
		return shared.Persistence("workflow", "Create", err)
	}
	return nil
}

// GetByID returns a template by ID.
func (r *WorkflowRepository) GetByID(ctx context.Context, id string) (*workflow.ProcessTemplate, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, name, phases, is_default, created_at, updated_at
		FROM process_templates WHERE id = $1
	`, id)

	t, err := scanTemplate(row)
	if IsNoRows(err) {
		return nil, workflow.ErrTemplateNotFound
	}
	if err != nil {
		return nil, shared.Persistence("workflow", "GetByID", err)
	}
	return t, nil
}

// GetDefault returns the default template.
func (r *WorkflowRepository) GetDefault(ctx context.Context) (*workflow.ProcessTemplate, error) {
	row := r.conn.QueryRow(ctx, `
		SELECT id, name, phases, is_default, created_at, updated_at
		FROM process_templates WHERE is_default
	`)

	t, err := scanTemplate(row)
	if IsNoRows(err) {
		return nil, workflow.ErrNoDefaultTemplate
	}
	if err != nil {
		return nil, shared.Persistence("workflow", "GetDefault", err)
	}
	return t, nil
}

// List returns all templates ordered by name.
func (r *WorkflowRepository) List(ctx context.Context) ([]*workflow.ProcessTemplate, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, phases, is_default, created_at, updated_at
		FROM process_templates ORDER BY name, id
	`)
	if err != nil {
		return nil, shared.Persistence("workflow", "List", err)
	}
	defer rows.Close()

	var out []*workflow.ProcessTemplate
	for rows.Next() {
		t, err := scanTemplate(rows)
		if err != nil {
			return nil, shared.Persistence("workflow", "List", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("workflow", "List", err)
	}
	return out, nil
}

// Update saves name and phases. The default flag is left alone.
func (r *WorkflowRepository) Update(ctx context.Context, t *workflow.ProcessTemplate) error {
	phases, err := marshalPhases(t.Phases)
	if err != nil {
		return fmt.Errorf("failed to marshal phases: %w", err)
	}

	tag, err := r.conn.Exec(ctx, `
		UPDATE process_templates SET name = $2, phases = $3, updated_at = $4 WHERE id = $1
	`, t.ID, t.Name, phases, t.UpdatedAt)
	if err != nil {
		return shared.Persistence("workflow", "Update", err)
	}
	if tag.RowsAffected() == 0 {
		return workflow.ErrTemplateNotFound
	}
	return nil
}

// Delete removes a template unless it is the default.
func (r *WorkflowRepository) Delete(ctx context.Context, id string) error {
	var isDefault bool
	err := r.conn.QueryRow(ctx, `
		DELETE FROM process_templates WHERE id = $1 AND NOT is_default
		RETURNING is_default
	`, id).Scan(&isDefault)
	if err == nil {
		return nil
	}
	if !IsNoRows(err) {
		return shared.Persistence("workflow", "Delete", err)
	}

	// Nothing deleted: either missing or the default.
	if _, err := r.GetByID(ctx, id); err != nil {
		return err
	}
	return workflow.ErrDeleteDefault
}

// SetDefault makes id the only default in one transaction. Concurrent
// switches serialize on a transaction-scoped advisory lock.
func (r *WorkflowRepository) SetDefault(ctx context.Context, id string) (string, error) {
	var previous string

	err := r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext('process_templates.default'))`); err != nil {
			return err
		}

		var exists bool
		err := tx.QueryRow(ctx, `SELECT TRUE FROM process_templates WHERE id = $1 FOR UPDATE`, id).Scan(&exists)
		if IsNoRows(err) {
			return workflow.ErrTemplateNotFound
		}
		if err != nil {
			return err
		}

		err = tx.QueryRow(ctx, `SELECT id FROM process_templates WHERE is_default FOR UPDATE`).Scan(&previous)
		if err != nil && !IsNoRows(err) {
			return err
		}

		// Clear first: the partial unique index forbids two TRUE rows even
		// inside one statement.
		if _, err := tx.Exec(ctx, `UPDATE process_templates SET is_default = FALSE WHERE is_default AND id <> $1`, id); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE process_templates SET is_default = TRUE, updated_at = NOW() WHERE id = $1`, id)
		return err
	})
	if err != nil {
		if errors.Is(err, workflow.ErrTemplateNotFound) {
			return "", err
		}
		return "", shared.Persistence("workflow", "SetDefault", err)
	}
	return previous, nil
}

func scanTemplate(row pgx.Row) (*workflow.ProcessTemplate, error) {
	var t workflow.ProcessTemplate
	var phases []byte

	if err := row.Scan(&t.ID, &t.Name, &phases, &t.IsDefault, &t.CreatedAt, &t.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	if t.Phases, err = unmarshalPhases(phases); err != nil {
		return nil, fmt.Errorf("failed to unmarshal phases of %s: %w", t.ID, err)
	}
	return &t, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT TEMPLATE REPOSITORY
// ══════════════════════════════════════════════════════════════════════════════

// ProjectTemplateRepository implements workflow.ProjectTemplateRepository.
type ProjectTemplateRepository struct {
	conn *Connection
}

// NewProjectTemplateRepository creates a new ProjectTemplateRepository.
func NewProjectTemplateRepository(conn *Connection) *ProjectTemplateRepository {
	return &ProjectTemplateRepository{conn: conn}
}

// Create inserts a project template.
func (r *ProjectTemplateRepository) Create(ctx context.Context, t *workflow.ProjectTemplate) error {
	_, err := r.conn.Exec(ctx, `
		INSERT INTO project_templates (id, name, description, station, step_titles, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, t.ID, t.Name, t.Description, t.Station, nonNil(t.StepTitles), t.CreatedAt)
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("workflow", "CreateProjectTemplate", shared.ErrAlreadyExists, "project template already exists")
		}
		return shared.Persistence("workflow", "CreateProjectTemplate", err)
	}
	return nil
}

// GetByID returns a project template.
func (r *ProjectTemplateRepository) GetByID(ctx context.Context, id string) (*workflow.ProjectTemplate, error) {
	var t workflow.ProjectTemplate
	err := r.conn.QueryRow(ctx, `
		SELECT id, name, description, station, step_titles, created_at
		FROM project_templates WHERE id = $1
	`, id).Scan(&t.ID, &t.Name, &t.Description, &t.Station, &t.StepTitles, &t.CreatedAt)
	if IsNoRows(err) {
		return nil, workflow.ErrProjectTemplateNotFound
	}
	if err != nil {
		return nil, shared.Persistence("workflow", "GetProjectTemplate", err)
	}
	return &t, nil
}

// List returns all project templates ordered by ID.
func (r *ProjectTemplateRepository) List(ctx context.Context) ([]*workflow.ProjectTemplate, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT id, name, description, station, step_titles, created_at
		FROM project_templates ORDER BY id
	`)
	if err != nil {
		return nil, shared.Persistence("workflow", "ListProjectTemplates", err)
	}

	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*workflow.ProjectTemplate, error) {
		var t workflow.ProjectTemplate
		err := row.Scan(&t.ID, &t.Name, &t.Description, &t.Station, &t.StepTitles, &t.CreatedAt)
		return &t, err
	})
	if err != nil {
		return nil, shared.Persistence("workflow", "ListProjectTemplates", err)
	}
	return out, nil
}
