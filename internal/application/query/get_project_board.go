// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET PROJECT BOARD QUERY
// Канбан-доска проекта: шаги по колонкам, прогресс и подсказка, что делать
// дальше. Основной запрос экрана проекта.
// ══════════════════════════════════════════════════════════════════════════════

// GetProjectBoardQuery содержит параметры запроса доски.
type GetProjectBoardQuery struct {
	// ProjectID - ID проекта.
	ProjectID string

	// IncludeHistory - включить журнал переходов и архив доказательств.
	IncludeHistory bool
}

// Validate проверяет корректность параметров запроса.
func (q GetProjectBoardQuery) Validate() error {
	if q.ProjectID == "" {
		return shared.NewDomainError("query", "GetProjectBoard", shared.ErrValidation, "project_id is required")
	}
	return nil
}

// StepDTO - шаг на доске.
type StepDTO struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Status      string `json:"status"`
	IsLocked    bool   `json:"is_locked"`
	ProofURL    string `json:"proof_url,omitempty"`
	ProofStatus string `json:"proof_status,omitempty"`
	Position    int    `json:"position"`
}

// StatusChangeDTO - запись журнала переходов.
type StatusChangeDTO struct {
	From    string    `json:"from"`
	To      string    `json:"to"`
	ActorID string    `json:"actor_id"`
	Note    string    `json:"note,omitempty"`
	At      time.Time `json:"at"`
}

// ProjectBoardDTO - доска проекта.
type ProjectBoardDTO struct {
	// ─────────────────────────────────────────────────────────────────────────
	// Проект
	// ─────────────────────────────────────────────────────────────────────────

	ProjectID   string `json:"project_id"`
	StudentID   string `json:"student_id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Station     string `json:"station"`
	Status      string `json:"status"`
	WorkflowID  string `json:"workflow_id,omitempty"`

	// Feedback - последний отзыв преподавателя.
	Feedback string `json:"feedback,omitempty"`

	// ─────────────────────────────────────────────────────────────────────────
	// Колонки
	// ─────────────────────────────────────────────────────────────────────────

	Todo  []StepDTO `json:"todo"`
	Doing []StepDTO `json:"doing"`
	Done  []StepDTO `json:"done"`

	// ─────────────────────────────────────────────────────────────────────────
	// Прогресс
	// ─────────────────────────────────────────────────────────────────────────

	StepsDone  int     `json:"steps_done"`
	StepsTotal int     `json:"steps_total"`
	Progress   float64 `json:"progress"`

	// CanSubmit - проект можно отправить на ревью прямо сейчас.
	CanSubmit bool `json:"can_submit"`

	// NextAction - подсказка студенту.
	NextAction string `json:"next_action"`

	EarnedBadgeIDs []string `json:"earned_badge_ids"`
	MediaURLs      []string `json:"media_urls"`

	// ─────────────────────────────────────────────────────────────────────────
	// История (IncludeHistory)
	// ─────────────────────────────────────────────────────────────────────────

	History        []StatusChangeDTO `json:"history,omitempty"`
	ArchivedProofs []StepDTO         `json:"archived_proofs,omitempty"`

	UpdatedAt time.Time `json:"updated_at"`
}

// GetProjectBoardHandler обрабатывает запрос доски.
type GetProjectBoardHandler struct {
	projects project.Repository
}

// NewGetProjectBoardHandler создаёт обработчик.
func NewGetProjectBoardHandler(projects project.Repository) *GetProjectBoardHandler {
	return &GetProjectBoardHandler{projects: projects}
}

// Handle выполняет запрос.
func (h *GetProjectBoardHandler) Handle(ctx context.Context, q GetProjectBoardQuery) (*ProjectBoardDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	p, err := h.projects.GetByID(ctx, q.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("get_project_board: %w", err)
	}

	dto := buildBoard(p)

	if q.IncludeHistory {
		history, err := h.projects.StatusHistory(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("get_project_board: history: %w", err)
		}
		for _, c := range history {
			dto.History = append(dto.History, StatusChangeDTO{
				From:    string(c.From),
				To:      string(c.To),
				ActorID: c.ActorID,
				Note:    c.Note,
				At:      c.At,
			})
		}

		archived, err := h.projects.ArchivedSteps(ctx, p.ID)
		if err != nil {
			return nil, fmt.Errorf("get_project_board: archive: %w", err)
		}
		for _, a := range archived {
			dto.ArchivedProofs = append(dto.ArchivedProofs, toStepDTO(a.Step, a.Position))
		}
	}

	return dto, nil
}

func buildBoard(p *project.StudentProject) *ProjectBoardDTO {
	dto := &ProjectBoardDTO{
		ProjectID:      p.ID,
		StudentID:      p.StudentID,
		Title:          p.Title,
		Description:    p.Description,
		Station:        p.Station,
		Status:         string(p.Status),
		WorkflowID:     p.WorkflowID,
		Feedback:       p.InstructorFeedback,
		Todo:           []StepDTO{},
		Doing:          []StepDTO{},
		Done:           []StepDTO{},
		EarnedBadgeIDs: append([]string{}, p.EarnedBadgeIDs...),
		MediaURLs:      append([]string{}, p.MediaURLs...),
		UpdatedAt:      p.UpdatedAt,
	}

	for i, s := range p.Steps {
		step := toStepDTO(s, i)
		switch s.Status {
		case project.StepDoing:
			dto.Doing = append(dto.Doing, step)
		case project.StepDone:
			dto.Done = append(dto.Done, step)
		default:
			dto.Todo = append(dto.Todo, step)
		}
	}

	dto.StepsDone, dto.StepsTotal = p.Progress()
	if dto.StepsTotal > 0 {
		dto.Progress = float64(dto.StepsDone) / float64(dto.StepsTotal)
	}
	dto.CanSubmit = project.CanTransition(p.Status, project.StatusSubmitted) && p.AllDone()
	dto.NextAction = nextAction(p)

	return dto
}

func toStepDTO(s project.ProjectStep, position int) StepDTO {
	return StepDTO{
		ID:          s.ID,
		Title:       s.Title,
		Status:      string(s.Status),
		IsLocked:    s.IsLocked,
		ProofURL:    s.ProofURL,
		ProofStatus: string(s.ProofStatus),
		Position:    position,
	}
}

// nextAction формирует подсказку по текущему состоянию проекта.
func nextAction(p *project.StudentProject) string {
	switch p.Status {
	case project.StatusPlanning:
		if len(p.Steps) == 0 {
			return "Add tasks or pick a workflow to plan your mission."
		}
		return "Review your plan and start building."
	case project.StatusBuilding, project.StatusTesting, project.StatusDelivered:
		if p.AllDone() {
			return "All tasks are done. Submit your mission for review."
		}
		for _, s := range p.Steps {
			if !s.IsDone() {
				return fmt.Sprintf("Continue with %q.", s.Title)
			}
		}
		return ""
	case project.StatusSubmitted:
		return "Waiting for an instructor to review your mission."
	case project.StatusChangesRequested:
		return "Read the feedback and reopen your mission to make changes."
	case project.StatusPublished:
		return "Your mission is published. Add photos or videos to show it off."
	default:
		return ""
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// LIST STUDENT PROJECTS QUERY
// ══════════════════════════════════════════════════════════════════════════════

// ProjectSummaryDTO - краткая карточка проекта.
type ProjectSummaryDTO struct {
	ProjectID  string    `json:"project_id"`
	Title      string    `json:"title"`
	Station    string    `json:"station"`
	Status     string    `json:"status"`
	StepsDone  int       `json:"steps_done"`
	StepsTotal int       `json:"steps_total"`
	BadgeCount int       `json:"badge_count"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// ListStudentProjectsHandler возвращает проекты студента, новые первыми.
type ListStudentProjectsHandler struct {
	projects project.Repository
}

// NewListStudentProjectsHandler создаёт обработчик.
func NewListStudentProjectsHandler(projects project.Repository) *ListStudentProjectsHandler {
	return &ListStudentProjectsHandler{projects: projects}
}

// Handle выполняет запрос.
func (h *ListStudentProjectsHandler) Handle(ctx context.Context, studentID string) ([]ProjectSummaryDTO, error) {
	if studentID == "" {
		return nil, shared.NewDomainError("query", "ListStudentProjects", shared.ErrValidation, "student_id is required")
	}

	projects, err := h.projects.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("list_student_projects: %w", err)
	}

	out := make([]ProjectSummaryDTO, 0, len(projects))
	for _, p := range projects {
		done, total := p.Progress()
		out = append(out, ProjectSummaryDTO{
			ProjectID:  p.ID,
			Title:      p.Title,
			Station:    p.Station,
			Status:     string(p.Status),
			StepsDone:  done,
			StepsTotal: total,
			BadgeCount: len(p.EarnedBadgeIDs),
			UpdatedAt:  p.UpdatedAt,
		})
	}
	return out, nil
}
