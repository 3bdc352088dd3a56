package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET REVIEW QUEUE QUERY
// Очередь ревью для преподавателя: отправленные проекты, самые старые первыми.
// ══════════════════════════════════════════════════════════════════════════════

const (
	defaultQueueLimit = 50
	maxQueueLimit     = 200
)

// GetReviewQueueQuery содержит параметры запроса очереди.
type GetReviewQueueQuery struct {
	// Limit - максимум проектов (по умолчанию 50, не больше 200).
	Limit int
}

func (q *GetReviewQueueQuery) normalize() {
	if q.Limit <= 0 {
		q.Limit = defaultQueueLimit
	}
	if q.Limit > maxQueueLimit {
		q.Limit = maxQueueLimit
	}
}

// ReviewItemDTO - проект в очереди.
type ReviewItemDTO struct {
	ProjectID   string    `json:"project_id"`
	StudentID   string    `json:"student_id"`
	Title       string    `json:"title"`
	Station     string    `json:"station"`
	StepsTotal  int       `json:"steps_total"`
	ProofCount  int       `json:"proof_count"`
	MediaCount  int       `json:"media_count"`
	SubmittedAt time.Time `json:"submitted_at"`
}

// GetReviewQueueHandler обрабатывает запрос очереди.
type GetReviewQueueHandler struct {
	projects project.Repository
}

// NewGetReviewQueueHandler создаёт обработчик.
func NewGetReviewQueueHandler(projects project.Repository) *GetReviewQueueHandler {
	return &GetReviewQueueHandler{projects: projects}
}

// Handle выполняет запрос.
func (h *GetReviewQueueHandler) Handle(ctx context.Context, q GetReviewQueueQuery) ([]ReviewItemDTO, error) {
	q.normalize()

	submitted, err := h.projects.ListByStatus(ctx, project.StatusSubmitted, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("get_review_queue: %w", err)
	}

	out := make([]ReviewItemDTO, 0, len(submitted))
	for _, p := range submitted {
		proofs := 0
		for _, s := range p.Steps {
			if s.HasProof() {
				proofs++
			}
		}
		out = append(out, ReviewItemDTO{
			ProjectID:   p.ID,
			StudentID:   p.StudentID,
			Title:       p.Title,
			Station:     p.Station,
			StepsTotal:  len(p.Steps),
			ProofCount:  proofs,
			MediaCount:  len(p.MediaURLs),
			SubmittedAt: p.UpdatedAt,
		})
	}
	return out, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST WORKFLOWS QUERY
// Шаблоны процесса для выбора при планировании: шаблон по умолчанию первым.
// ══════════════════════════════════════════════════════════════════════════════

// WorkflowOptionDTO - шаблон процесса в списке выбора.
type WorkflowOptionDTO struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Phases    []string `json:"phases"`
	IsDefault bool     `json:"is_default"`
}

// ListWorkflowsHandler обрабатывает запрос списка шаблонов.
type ListWorkflowsHandler struct {
	templates workflow.Repository
}

// NewListWorkflowsHandler создаёт обработчик.
func NewListWorkflowsHandler(templates workflow.Repository) *ListWorkflowsHandler {
	return &ListWorkflowsHandler{templates: templates}
}

// Handle выполняет запрос.
func (h *ListWorkflowsHandler) Handle(ctx context.Context) ([]WorkflowOptionDTO, error) {
	templates, err := h.templates.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list_workflows: %w", err)
	}

	out := make([]WorkflowOptionDTO, 0, len(templates))
	for _, t := range templates {
		phases := t.OrderedPhases()
		names := make([]string, len(phases))
		for i, ph := range phases {
			names[i] = ph.Name
		}

		opt := WorkflowOptionDTO{ID: t.ID, Name: t.Name, Phases: names, IsDefault: t.IsDefault}
		if t.IsDefault {
			out = append([]WorkflowOptionDTO{opt}, out...)
			continue
		}
		out = append(out, opt)
	}
	return out, nil
}
