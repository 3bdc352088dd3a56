package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ProjectRepository implements project.Repository for PostgreSQL.
// The aggregate is one row; its audit trail and archived proofs are written
// in the same transaction as the row.
type ProjectRepository struct {
	conn *Connection
}

// NewProjectRepository creates a new ProjectRepository.
func NewProjectRepository(conn *Connection) *ProjectRepository {
	return &ProjectRepository{conn: conn}
}

const projectColumns = `
	id, student_id, title, description, station, steps, status,
	instructor_feedback, earned_badge_ids, media_urls, skills_acquired,
	template_id, workflow_id, created_at, updated_at
`

// stepRecord is the JSONB shape of one step.
type stepRecord struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	IsLocked    bool   `json:"is_locked"`
	ProofURL    string `json:"proof_url,omitempty"`
	ProofStatus string `json:"proof_status,omitempty"`
}

func toStepRecord(s project.ProjectStep) stepRecord {
	return stepRecord{
		ID:          s.ID,
		Title:       s.Title,
		Status:      string(s.Status),
		IsLocked:    s.IsLocked,
		ProofURL:    s.ProofURL,
		ProofStatus: string(s.ProofStatus),
	}
}

func (r stepRecord) toStep() project.ProjectStep {
	return project.ProjectStep{
		ID:          r.ID,
		Title:       r.Title,
		Status:      project.StepStatus(r.Status),
		IsLocked:    r.IsLocked,
		ProofURL:    r.ProofURL,
		ProofStatus: project.ProofStatus(r.ProofStatus),
	}
}

func marshalSteps(steps []project.ProjectStep) ([]byte, error) {
	records := make([]stepRecord, len(steps))
	for i, s := range steps {
		records[i] = toStepRecord(s)
	}
	return json.Marshal(records)
}

func unmarshalSteps(data []byte) ([]project.ProjectStep, error) {
	var records []stepRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, err
	}
	steps := make([]project.ProjectStep, len(records))
	for i, rec := range records {
		steps[i] = rec.toStep()
	}
	return steps, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD Operations
// ─────────────────────────────────────────────────────────────────────────────

// Create inserts a new project together with any pending audit records.
func (r *ProjectRepository) Create(ctx context.Context, p *project.StudentProject) error {
	steps, err := marshalSteps(p.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO projects (`+projectColumns+`)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		`,
			p.ID, p.StudentID, p.Title, p.Description, p.Station, steps, string(p.Status),
			p.InstructorFeedback, nonNil(p.EarnedBadgeIDs), nonNil(p.MediaURLs), nonNil(p.SkillsAcquired),
			p.TemplateID, p.WorkflowID, p.CreatedAt, p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		return writePending(ctx, tx, p)
	})
	if err != nil {
		if IsUniqueViolation(err) {
			return shared.NewDomainError("project", "Create", shared.ErrAlreadyExists, "project already exists")
		}
		return shared.Persistence("project", "Create", err)
	}
	return nil
}

// GetByID returns a project by ID.
func (r *ProjectRepository) GetByID(ctx context.Context, id string) (*project.StudentProject, error) {
	row := r.conn.QueryRow(ctx, `SELECT `+projectColumns+` FROM projects WHERE id = $1`, id)
	p, err := scanProject(row)
	if IsNoRows(err) {
		return nil, project.ErrProjectNotFound
	}
	if err != nil {
		return nil, shared.Persistence("project", "GetByID", err)
	}
	return p, nil
}

// Update writes the whole aggregate and its pending status changes and
// archived steps in one transaction.
func (r *ProjectRepository) Update(ctx context.Context, p *project.StudentProject) error {
	steps, err := marshalSteps(p.Steps)
	if err != nil {
		return fmt.Errorf("failed to marshal steps: %w", err)
	}

	err = r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE projects SET
				title = $2,
				description = $3,
				station = $4,
				steps = $5,
				status = $6,
				instructor_feedback = $7,
				earned_badge_ids = $8,
				media_urls = $9,
				skills_acquired = $10,
				template_id = $11,
				workflow_id = $12,
				updated_at = $13
			WHERE id = $1
		`,
			p.ID, p.Title, p.Description, p.Station, steps, string(p.Status),
			p.InstructorFeedback, nonNil(p.EarnedBadgeIDs), nonNil(p.MediaURLs), nonNil(p.SkillsAcquired),
			p.TemplateID, p.WorkflowID, p.UpdatedAt,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return project.ErrProjectNotFound
		}
		return writePending(ctx, tx, p)
	})
	if err != nil {
		if shared.IsNotFound(err) {
			return err
		}
		return shared.Persistence("project", "Update", err)
	}
	return nil
}

// Delete removes a project; audit rows cascade.
func (r *ProjectRepository) Delete(ctx context.Context, id string) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return shared.Persistence("project", "Delete", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrProjectNotFound
	}
	return nil
}

// writePending appends the aggregate's unsaved audit records.
func writePending(ctx context.Context, q Querier, p *project.StudentProject) error {
	for _, c := range p.PendingStatusChanges() {
		_, err := q.Exec(ctx, `
			INSERT INTO project_status_changes (project_id, from_status, to_status, actor_id, note, changed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
		`, p.ID, string(c.From), string(c.To), c.ActorID, c.Note, c.At)
		if err != nil {
			return fmt.Errorf("failed to record status change: %w", err)
		}
	}

	for _, a := range p.PendingArchivedSteps() {
		step, err := json.Marshal(toStepRecord(a.Step))
		if err != nil {
			return fmt.Errorf("failed to marshal archived step: %w", err)
		}
		_, err = q.Exec(ctx, `
			INSERT INTO archived_steps (project_id, workflow_id, position, step, archived_at)
			VALUES ($1, $2, $3, $4, $5)
		`, p.ID, a.WorkflowID, a.Position, step, a.ArchivedAt)
		if err != nil {
			return fmt.Errorf("failed to archive step: %w", err)
		}
	}

	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Listing
// ─────────────────────────────────────────────────────────────────────────────

// ListByStudent returns a student's projects, newest first.
func (r *ProjectRepository) ListByStudent(ctx context.Context, studentID string) ([]*project.StudentProject, error) {
	return r.list(ctx, "ListByStudent",
		`SELECT `+projectColumns+` FROM projects WHERE student_id = $1 ORDER BY created_at DESC`,
		studentID)
}

// ListByStatus returns projects in a status, oldest update first.
func (r *ProjectRepository) ListByStatus(ctx context.Context, status project.Status, limit int) ([]*project.StudentProject, error) {
	if limit <= 0 {
		limit = 1000
	}
	return r.list(ctx, "ListByStatus",
		`SELECT `+projectColumns+` FROM projects WHERE status = $1 ORDER BY updated_at ASC, id LIMIT $2`,
		string(status), limit)
}

// ListPublishedByStudent returns a student's published projects.
func (r *ProjectRepository) ListPublishedByStudent(ctx context.Context, studentID string) ([]*project.StudentProject, error) {
	return r.list(ctx, "ListPublishedByStudent",
		`SELECT `+projectColumns+` FROM projects WHERE student_id = $1 AND status = 'published' ORDER BY id`,
		studentID)
}

// ListStudentsWithPublished returns every student with published work.
func (r *ProjectRepository) ListStudentsWithPublished(ctx context.Context) ([]string, error) {
	rows, err := r.conn.Query(ctx,
		`SELECT DISTINCT student_id FROM projects WHERE status = 'published' ORDER BY student_id`)
	if err != nil {
		return nil, shared.Persistence("project", "ListStudentsWithPublished", err)
	}

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, shared.Persistence("project", "ListStudentsWithPublished", err)
	}
	return ids, nil
}

func (r *ProjectRepository) list(ctx context.Context, op, query string, args ...any) ([]*project.StudentProject, error) {
	rows, err := r.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Persistence("project", op, err)
	}
	defer rows.Close()

	out := make([]*project.StudentProject, 0)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, shared.Persistence("project", op, err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("project", op, err)
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Badges and audit
// ─────────────────────────────────────────────────────────────────────────────

// AddEarnedBadges unions badgeIDs into the project's earned set in a single
// statement, keeping the existing order.
func (r *ProjectRepository) AddEarnedBadges(ctx context.Context, projectID string, badgeIDs []string) error {
	tag, err := r.conn.Exec(ctx, `
		UPDATE projects SET
			earned_badge_ids = earned_badge_ids || ARRAY(
				SELECT b FROM unnest($2::text[]) AS b
				WHERE NOT (b = ANY(earned_badge_ids))
			),
			updated_at = NOW()
		WHERE id = $1
	`, projectID, shared.DedupeStrings(badgeIDs))
	if err != nil {
		return shared.Persistence("project", "AddEarnedBadges", err)
	}
	if tag.RowsAffected() == 0 {
		return project.ErrProjectNotFound
	}
	return nil
}

// StatusHistory returns the project's transitions in order.
func (r *ProjectRepository) StatusHistory(ctx context.Context, projectID string) ([]project.StatusChange, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT from_status, to_status, actor_id, note, changed_at
		FROM project_status_changes
		WHERE project_id = $1
		ORDER BY changed_at, id
	`, projectID)
	if err != nil {
		return nil, shared.Persistence("project", "StatusHistory", err)
	}
	defer rows.Close()

	var history []project.StatusChange
	for rows.Next() {
		var from, to string
		c := project.StatusChange{ProjectID: projectID}
		if err := rows.Scan(&from, &to, &c.ActorID, &c.Note, &c.At); err != nil {
			return nil, shared.Persistence("project", "StatusHistory", err)
		}
		c.From = project.Status(from)
		c.To = project.Status(to)
		history = append(history, c)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("project", "StatusHistory", err)
	}
	return history, nil
}

// ArchivedSteps returns the proofs kept from replaced workflows.
func (r *ProjectRepository) ArchivedSteps(ctx context.Context, projectID string) ([]project.ArchivedStep, error) {
	rows, err := r.conn.Query(ctx, `
		SELECT workflow_id, position, step, archived_at
		FROM archived_steps
		WHERE project_id = $1
		ORDER BY archived_at, id
	`, projectID)
	if err != nil {
		return nil, shared.Persistence("project", "ArchivedSteps", err)
	}
	defer rows.Close()

	var archived []project.ArchivedStep
	for rows.Next() {
		var raw []byte
		a := project.ArchivedStep{ProjectID: projectID}
		if err := rows.Scan(&a.WorkflowID, &a.Position, &raw, &a.ArchivedAt); err != nil {
			return nil, shared.Persistence("project", "ArchivedSteps", err)
		}
		var rec stepRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, shared.Persistence("project", "ArchivedSteps", err)
		}
		a.Step = rec.toStep()
		archived = append(archived, a)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Persistence("project", "ArchivedSteps", err)
	}
	return archived, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func scanProject(row pgx.Row) (*project.StudentProject, error) {
	var p project.StudentProject
	var status string
	var steps []byte

	err := row.Scan(
		&p.ID,
		&p.StudentID,
		&p.Title,
		&p.Description,
		&p.Station,
		&steps,
		&status,
		&p.InstructorFeedback,
		&p.EarnedBadgeIDs,
		&p.MediaURLs,
		&p.SkillsAcquired,
		&p.TemplateID,
		&p.WorkflowID,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.Status = project.Status(status)
	if p.Steps, err = unmarshalSteps(steps); err != nil {
		return nil, fmt.Errorf("failed to unmarshal steps of %s: %w", p.ID, err)
	}
	return &p, nil
}

// nonNil keeps NOT NULL array columns from receiving SQL NULL.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
