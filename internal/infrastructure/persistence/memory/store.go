// Package memory implements the domain repositories in process memory.
// It backs unit tests and local runs without Postgres. Every read returns a
// copy so callers cannot mutate stored state behind the repository's back.
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROJECTS
// ══════════════════════════════════════════════════════════════════════════════

// ProjectRepository is an in-memory project.Repository.
type ProjectRepository struct {
	mu       sync.RWMutex
	projects map[string]*project.StudentProject
	history  map[string][]project.StatusChange
	archived map[string][]project.ArchivedStep

	// FailUpdate makes the next Update calls fail with a persistence error.
	FailUpdate error
}

// NewProjectRepository creates an empty repository.
func NewProjectRepository() *ProjectRepository {
	return &ProjectRepository{
		projects: make(map[string]*project.StudentProject),
		history:  make(map[string][]project.StatusChange),
		archived: make(map[string][]project.ArchivedStep),
	}
}

// Create implements project.Repository.
func (r *ProjectRepository) Create(_ context.Context, p *project.StudentProject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[p.ID]; ok {
		return shared.NewDomainError("project", "Create", shared.ErrAlreadyExists, "project already exists")
	}
	r.store(p)
	return nil
}

// GetByID implements project.Repository.
func (r *ProjectRepository) GetByID(_ context.Context, id string) (*project.StudentProject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.projects[id]
	if !ok {
		return nil, project.ErrProjectNotFound
	}
	return p.Clone(), nil
}

// Update implements project.Repository.
func (r *ProjectRepository) Update(_ context.Context, p *project.StudentProject) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailUpdate != nil {
		return shared.Persistence("project", "Update", r.FailUpdate)
	}
	if _, ok := r.projects[p.ID]; !ok {
		return project.ErrProjectNotFound
	}
	r.store(p)
	return nil
}

func (r *ProjectRepository) store(p *project.StudentProject) {
	r.history[p.ID] = append(r.history[p.ID], p.PendingStatusChanges()...)
	r.archived[p.ID] = append(r.archived[p.ID], p.PendingArchivedSteps()...)

	stored := p.Clone()
	stored.MarkPersisted()
	r.projects[p.ID] = stored
}

// Delete implements project.Repository.
func (r *ProjectRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.projects[id]; !ok {
		return project.ErrProjectNotFound
	}
	delete(r.projects, id)
	delete(r.history, id)
	delete(r.archived, id)
	return nil
}

// ListByStudent implements project.Repository.
func (r *ProjectRepository) ListByStudent(_ context.Context, studentID string) ([]*project.StudentProject, error) {
	out := r.filter(func(p *project.StudentProject) bool { return p.StudentID == studentID })
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// ListByStatus implements project.Repository.
func (r *ProjectRepository) ListByStatus(_ context.Context, status project.Status, limit int) ([]*project.StudentProject, error) {
	out := r.filter(func(p *project.StudentProject) bool { return p.Status == status })
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListPublishedByStudent implements project.Repository.
func (r *ProjectRepository) ListPublishedByStudent(_ context.Context, studentID string) ([]*project.StudentProject, error) {
	return r.filter(func(p *project.StudentProject) bool {
		return p.StudentID == studentID && p.Status == project.StatusPublished
	}), nil
}

// ListStudentsWithPublished implements project.Repository.
func (r *ProjectRepository) ListStudentsWithPublished(_ context.Context) ([]string, error) {
	published := r.filter(func(p *project.StudentProject) bool { return p.Status == project.StatusPublished })

	ids := make([]string, 0, len(published))
	for _, p := range published {
		ids = append(ids, p.StudentID)
	}
	ids = shared.DedupeStrings(ids)
	sort.Strings(ids)
	return ids, nil
}

// AddEarnedBadges implements project.Repository.
func (r *ProjectRepository) AddEarnedBadges(_ context.Context, projectID string, badgeIDs []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.projects[projectID]
	if !ok {
		return project.ErrProjectNotFound
	}
	p.EarnedBadgeIDs = shared.DedupeStrings(append(p.EarnedBadgeIDs, badgeIDs...))
	return nil
}

// StatusHistory implements project.Repository.
func (r *ProjectRepository) StatusHistory(_ context.Context, projectID string) ([]project.StatusChange, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]project.StatusChange(nil), r.history[projectID]...), nil
}

// ArchivedSteps implements project.Repository.
func (r *ProjectRepository) ArchivedSteps(_ context.Context, projectID string) ([]project.ArchivedStep, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]project.ArchivedStep(nil), r.archived[projectID]...), nil
}

func (r *ProjectRepository) filter(keep func(*project.StudentProject) bool) []*project.StudentProject {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*project.StudentProject, 0)
	for _, p := range r.projects {
		if keep(p) {
			out = append(out, p.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS TEMPLATES
// ══════════════════════════════════════════════════════════════════════════════

// WorkflowRepository is an in-memory workflow.Repository.
type WorkflowRepository struct {
	mu        sync.RWMutex
	templates map[string]*workflow.ProcessTemplate
}

// NewWorkflowRepository creates an empty repository.
func NewWorkflowRepository() *WorkflowRepository {
	return &WorkflowRepository{templates: make(map[string]*workflow.ProcessTemplate)}
}

// Create implements workflow.Repository.
func (r *WorkflowRepository) Create(_ context.Context, t *workflow.ProcessTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := t.Clone()
	stored.IsDefault = false
	r.templates[t.ID] = stored
	return nil
}

// GetByID implements workflow.Repository.
func (r *WorkflowRepository) GetByID(_ context.Context, id string) (*workflow.ProcessTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[id]
	if !ok {
		return nil, workflow.ErrTemplateNotFound
	}
	return t.Clone(), nil
}

// GetDefault implements workflow.Repository.
func (r *WorkflowRepository) GetDefault(ctx context.Context) (*workflow.ProcessTemplate, error) {
	all, _ := r.List(ctx)
	return workflow.DefaultOf(all)
}

// List implements workflow.Repository.
func (r *WorkflowRepository) List(_ context.Context) ([]*workflow.ProcessTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*workflow.ProcessTemplate, 0, len(r.templates))
	for _, t := range r.templates {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Update implements workflow.Repository.
func (r *WorkflowRepository) Update(_ context.Context, t *workflow.ProcessTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.templates[t.ID]
	if !ok {
		return workflow.ErrTemplateNotFound
	}
	stored := t.Clone()
	stored.IsDefault = current.IsDefault
	r.templates[t.ID] = stored
	return nil
}

// Delete implements workflow.Repository.
func (r *WorkflowRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.templates[id]
	if !ok {
		return workflow.ErrTemplateNotFound
	}
	if t.IsDefault {
		return workflow.ErrDeleteDefault
	}
	delete(r.templates, id)
	return nil
}

// SetDefault implements workflow.Repository. The switch happens under one
// lock, so readers never observe zero or two defaults.
func (r *WorkflowRepository) SetDefault(_ context.Context, id string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.templates[id]; !ok {
		return "", workflow.ErrTemplateNotFound
	}

	var previous string
	for tid, t := range r.templates {
		if t.IsDefault {
			previous = tid
		}
		t.IsDefault = tid == id
	}
	return previous, nil
}

// ProjectTemplateRepository is an in-memory workflow.ProjectTemplateRepository.
type ProjectTemplateRepository struct {
	mu        sync.RWMutex
	templates map[string]*workflow.ProjectTemplate
}

// NewProjectTemplateRepository creates an empty repository.
func NewProjectTemplateRepository() *ProjectTemplateRepository {
	return &ProjectTemplateRepository{templates: make(map[string]*workflow.ProjectTemplate)}
}

// Create implements workflow.ProjectTemplateRepository.
func (r *ProjectTemplateRepository) Create(_ context.Context, t *workflow.ProjectTemplate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *t
	stored.StepTitles = append([]string(nil), t.StepTitles...)
	r.templates[t.ID] = &stored
	return nil
}

// GetByID implements workflow.ProjectTemplateRepository.
func (r *ProjectTemplateRepository) GetByID(_ context.Context, id string) (*workflow.ProjectTemplate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.templates[id]
	if !ok {
		return nil, workflow.ErrProjectTemplateNotFound
	}
	out := *t
	out.StepTitles = append([]string(nil), t.StepTitles...)
	return &out, nil
}

// List implements workflow.ProjectTemplateRepository.
func (r *ProjectTemplateRepository) List(ctx context.Context) ([]*workflow.ProjectTemplate, error) {
	r.mu.RLock()
	ids := make([]string, 0, len(r.templates))
	for id := range r.templates {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	sort.Strings(ids)
	out := make([]*workflow.ProjectTemplate, 0, len(ids))
	for _, id := range ids {
		t, err := r.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGES
// ══════════════════════════════════════════════════════════════════════════════

// BadgeRepository is an in-memory badge.CatalogueRepository and
// badge.StudentBadgeRepository sharing one state, so IsHeld sees awards.
type BadgeRepository struct {
	mu       sync.RWMutex
	badges   map[string]*badge.Badge
	students map[string][]string

	// FailAdd makes AddBadges fail with a persistence error.
	FailAdd error
}

// NewBadgeRepository creates an empty repository.
func NewBadgeRepository() *BadgeRepository {
	return &BadgeRepository{
		badges:   make(map[string]*badge.Badge),
		students: make(map[string][]string),
	}
}

// Create implements badge.CatalogueRepository.
func (r *BadgeRepository) Create(_ context.Context, b *badge.Badge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *b
	r.badges[b.ID] = &stored
	return nil
}

// GetByID implements badge.CatalogueRepository.
func (r *BadgeRepository) GetByID(_ context.Context, id string) (*badge.Badge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.badges[id]
	if !ok {
		return nil, badge.ErrBadgeNotFound
	}
	out := *b
	return &out, nil
}

// List implements badge.CatalogueRepository.
func (r *BadgeRepository) List(_ context.Context) ([]*badge.Badge, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*badge.Badge, 0, len(r.badges))
	for _, b := range r.badges {
		c := *b
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Update implements badge.CatalogueRepository.
func (r *BadgeRepository) Update(_ context.Context, b *badge.Badge) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.badges[b.ID]; !ok {
		return badge.ErrBadgeNotFound
	}
	stored := *b
	r.badges[b.ID] = &stored
	return nil
}

// Delete implements badge.CatalogueRepository.
func (r *BadgeRepository) Delete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.badges[id]; !ok {
		return badge.ErrBadgeNotFound
	}
	delete(r.badges, id)
	return nil
}

// IsHeld implements badge.CatalogueRepository.
func (r *BadgeRepository) IsHeld(_ context.Context, id string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, ids := range r.students {
		for _, held := range ids {
			if held == id {
				return true, nil
			}
		}
	}
	return false, nil
}

// GetBadgeIDs implements badge.StudentBadgeRepository.
func (r *BadgeRepository) GetBadgeIDs(_ context.Context, studentID string) ([]string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.students[studentID]...), nil
}

// AddBadges implements badge.StudentBadgeRepository.
func (r *BadgeRepository) AddBadges(_ context.Context, studentID string, badgeIDs []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailAdd != nil {
		return nil, shared.Persistence("badge", "AddBadges", r.FailAdd)
	}

	current := make(map[string]struct{}, len(r.students[studentID]))
	for _, id := range r.students[studentID] {
		current[id] = struct{}{}
	}

	var added []string
	for _, id := range shared.DedupeStrings(badgeIDs) {
		if _, ok := current[id]; ok {
			continue
		}
		current[id] = struct{}{}
		r.students[studentID] = append(r.students[studentID], id)
		added = append(added, id)
	}
	return added, nil
}
