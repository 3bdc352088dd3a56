// Package project содержит агрегат StudentProject: упорядоченный список шагов
// (журнал шагов), машину состояний проекта и правила применения workflow.
// Все правила здесь чистые: сохранение, уведомления и награды выполняются
// в слое application.
package project

import (
	"fmt"
	"strings"
	"time"

	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrProjectNotFound - проект не найден.
	ErrProjectNotFound = shared.NewDomainError("project", "Find", shared.ErrNotFound, "project not found")

	// ErrStepNotFound - шаг не найден в проекте.
	ErrStepNotFound = shared.NewDomainError("project", "FindStep", shared.ErrNotFound, "task not found")

	// ErrInvalidTitle - пустое или слишком длинное название.
	ErrInvalidTitle = shared.NewDomainError("project", "Validate", shared.ErrValidation, "title must be 1-200 chars")

	// ErrStepLocked - предыдущий шаг ещё не завершён.
	ErrStepLocked = shared.Precondition("project", "MoveStep", "finish the previous task first")

	// ErrProofRequired - для завершения шага нужен артефакт. Шаг остаётся
	// в прежнем состоянии, вызывающая сторона должна собрать доказательство
	// и повторить перемещение.
	ErrProofRequired = shared.NewDomainError("project", "MoveStep", shared.ErrProofRequired, "attach a proof of work to finish this task")

	// ErrConfirmationRequired - замена workflow уничтожает текущие шаги.
	ErrConfirmationRequired = shared.Precondition("project", "ReplaceWorkflow", "replacing the workflow discards the current tasks, confirm to continue")
)

const maxTitleLength = 200

// ══════════════════════════════════════════════════════════════════════════════
// STUDENT PROJECT AGGREGATE
// ══════════════════════════════════════════════════════════════════════════════

// StudentProject - проект студента. Корень агрегата: шаги меняются только
// через его методы.
type StudentProject struct {
	// ID - уникальный идентификатор.
	ID string

	// StudentID - владелец проекта.
	StudentID string

	Title       string
	Description string

	// Station - категория (например, "robotics"), используется критериями бейджей.
	Station string

	// Steps - упорядоченный список шагов.
	Steps []ProjectStep

	// Status - текущее состояние машины состояний.
	Status Status

	// InstructorFeedback - последний отзыв преподавателя.
	InstructorFeedback string

	// EarnedBadgeIDs - бейджи, полученные за этот проект.
	EarnedBadgeIDs []string

	// MediaURLs - медиа, прикреплённые к проекту (разрешено и после публикации).
	MediaURLs []string

	// SkillsAcquired - навыки, которые проект засчитывает студенту.
	SkillsAcquired []string

	// TemplateID и WorkflowID - слабые ссылки на шаблоны.
	TemplateID string
	WorkflowID string

	CreatedAt time.Time
	UpdatedAt time.Time

	// Записи, ожидающие сохранения вместе с агрегатом.
	pendingChanges  []StatusChange
	pendingArchived []ArchivedStep
}

// NewProjectParams содержит параметры создания проекта.
type NewProjectParams struct {
	ID          string
	StudentID   string
	Title       string
	Description string
	Station     string
	Skills      []string
	TemplateID  string
	WorkflowID  string
	Steps       []ProjectStep
}

// NewProject создаёт проект в состоянии planning.
func NewProject(params NewProjectParams) (*StudentProject, error) {
	if params.ID == "" {
		return nil, shared.NewDomainError("project", "Create", shared.ErrInvalidID, "project id is required")
	}
	if params.StudentID == "" {
		return nil, shared.NewDomainError("project", "Create", shared.ErrInvalidID, "student id is required")
	}

	title := shared.NormalizeTitle(params.Title)
	if title == "" || len(title) > maxTitleLength {
		return nil, ErrInvalidTitle
	}

	steps := make([]ProjectStep, len(params.Steps))
	copy(steps, params.Steps)

	now := time.Now().UTC()
	return &StudentProject{
		ID:             params.ID,
		StudentID:      params.StudentID,
		Title:          title,
		Description:    params.Description,
		Station:        strings.ToLower(strings.TrimSpace(params.Station)),
		Steps:          steps,
		Status:         StatusPlanning,
		EarnedBadgeIDs: []string{},
		MediaURLs:      []string{},
		SkillsAcquired: shared.DedupeStrings(params.Skills),
		TemplateID:     params.TemplateID,
		WorkflowID:     params.WorkflowID,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STEP LEDGER
// ══════════════════════════════════════════════════════════════════════════════

// StepIndex возвращает позицию шага или -1.
func (p *StudentProject) StepIndex(stepID string) int {
	for i := range p.Steps {
		if p.Steps[i].ID == stepID {
			return i
		}
	}
	return -1
}

// Step возвращает копию шага по ID.
func (p *StudentProject) Step(stepID string) (ProjectStep, error) {
	i := p.StepIndex(stepID)
	if i < 0 {
		return ProjectStep{}, ErrStepNotFound
	}
	return p.Steps[i], nil
}

// AddStep добавляет шаг в конец списка. Только в planning.
// Добавленный вручную шаг сразу разблокирован.
func (p *StudentProject) AddStep(id, title string) (ProjectStep, error) {
	if p.Status != StatusPlanning {
		return ProjectStep{}, shared.Precondition("project", "AddStep", "tasks can only be added while planning")
	}
	if id == "" {
		return ProjectStep{}, shared.NewDomainError("project", "AddStep", shared.ErrInvalidID, "task id is required")
	}

	title = shared.NormalizeTitle(title)
	if title == "" || len(title) > maxTitleLength {
		return ProjectStep{}, ErrInvalidTitle
	}

	step := ProjectStep{
		ID:       id,
		Title:    title,
		Status:   StepTodo,
		IsLocked: false,
	}
	p.Steps = append(p.Steps, step)
	p.touch()

	return step, nil
}

// DeleteStep удаляет шаг. Только в planning.
func (p *StudentProject) DeleteStep(stepID string) error {
	if p.Status != StatusPlanning {
		return shared.Precondition("project", "DeleteStep", "tasks can only be removed while planning")
	}

	i := p.StepIndex(stepID)
	if i < 0 {
		return ErrStepNotFound
	}

	p.Steps = append(p.Steps[:i], p.Steps[i+1:]...)
	p.touch()
	return nil
}

// MoveStep перемещает шаг между колонками. Только в building.
//
// Допустимо todo → doing и doing → done. Мастер (Guided) может сразу
// перевести шаг todo → done. Завершение без доказательства вне мастера
// возвращает ErrProofRequired и ничего не меняет. Завершение шага
// разблокирует следующий.
func (p *StudentProject) MoveStep(move StepMove) (ProjectStep, error) {
	if p.Status != StatusBuilding {
		return ProjectStep{}, shared.Precondition("project", "MoveStep", "tasks can only be moved while building")
	}

	i := p.StepIndex(move.StepID)
	if i < 0 {
		return ProjectStep{}, ErrStepNotFound
	}
	step := p.Steps[i]

	if step.IsLocked {
		return ProjectStep{}, ErrStepLocked
	}

	switch {
	case step.Status == move.To:
		return ProjectStep{}, shared.Precondition("project", "MoveStep", fmt.Sprintf("task is already %s", move.To))
	case step.Status == StepTodo && move.To == StepDoing:
		step.Status = StepDoing
	case step.Status == StepDoing && move.To == StepDone,
		step.Status == StepTodo && move.To == StepDone && move.Guided:
		if move.ProofURL == "" && !move.Guided {
			return ProjectStep{}, ErrProofRequired
		}
		step.Status = StepDone
		if move.ProofURL != "" {
			step.ProofURL = move.ProofURL
			step.ProofStatus = ProofPending
		}
	case step.Status == StepTodo && move.To == StepDone:
		return ProjectStep{}, shared.Precondition("project", "MoveStep", "start the task before finishing it")
	case step.Status == StepDone:
		return ProjectStep{}, shared.Precondition("project", "MoveStep", "reopen the task to work on it again")
	default:
		return ProjectStep{}, shared.Precondition("project", "MoveStep", "tasks cannot move backwards")
	}

	p.Steps[i] = step
	if step.IsDone() {
		p.unlockNext()
	}
	p.touch()

	return step, nil
}

// ReopenStep возвращает завершённый шаг в doing. Только в building.
// Доказательство сохраняется.
func (p *StudentProject) ReopenStep(stepID string) (ProjectStep, error) {
	if p.Status != StatusBuilding {
		return ProjectStep{}, shared.Precondition("project", "ReopenStep", "tasks can only be reopened while building")
	}

	i := p.StepIndex(stepID)
	if i < 0 {
		return ProjectStep{}, ErrStepNotFound
	}
	if !p.Steps[i].IsDone() {
		return ProjectStep{}, shared.Precondition("project", "ReopenStep", "only finished tasks can be reopened")
	}

	p.Steps[i].Status = StepDoing
	p.touch()
	return p.Steps[i], nil
}

// AllDone возвращает true, если шаги есть и все они завершены.
func (p *StudentProject) AllDone() bool {
	if len(p.Steps) == 0 {
		return false
	}
	for _, s := range p.Steps {
		if !s.IsDone() {
			return false
		}
	}
	return true
}

// Progress возвращает количество завершённых шагов и общее число шагов.
func (p *StudentProject) Progress() (done, total int) {
	for _, s := range p.Steps {
		if s.IsDone() {
			done++
		}
	}
	return done, len(p.Steps)
}

// unlockNext разблокирует первый незавершённый шаг.
func (p *StudentProject) unlockNext() {
	for i := range p.Steps {
		if p.Steps[i].IsDone() {
			continue
		}
		p.Steps[i].IsLocked = false
		return
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// WORKFLOW REPLACEMENT
// ══════════════════════════════════════════════════════════════════════════════

// ReplaceSteps заменяет все шаги новым набором (например, при смене
// шаблона процесса). Разрешено в planning и building; в building набор
// не может быть пустым. Если текущие шаги
// есть, требуется явное подтверждение. Шаги с доказательствами не теряются,
// а переносятся в архив и сохраняются вместе с проектом.
func (p *StudentProject) ReplaceSteps(workflowID string, steps []ProjectStep, confirmed bool) ([]ArchivedStep, error) {
	if p.Status != StatusPlanning && p.Status != StatusBuilding {
		return nil, shared.Precondition("project", "ReplaceWorkflow", "the workflow can only change while planning or building")
	}
	if p.Status == StatusBuilding && len(steps) == 0 {
		return nil, shared.Precondition("project", "ReplaceWorkflow", "a workflow needs at least one task")
	}
	if len(p.Steps) > 0 && !confirmed {
		return nil, ErrConfirmationRequired
	}

	now := time.Now().UTC()
	var archived []ArchivedStep
	for i, s := range p.Steps {
		if !s.HasProof() {
			continue
		}
		archived = append(archived, ArchivedStep{
			ProjectID:  p.ID,
			WorkflowID: p.WorkflowID,
			Position:   i,
			Step:       s,
			ArchivedAt: now,
		})
	}

	p.Steps = make([]ProjectStep, len(steps))
	copy(p.Steps, steps)
	p.WorkflowID = workflowID
	if p.Status == StatusBuilding {
		p.unlockNext()
	}

	p.pendingArchived = append(p.pendingArchived, archived...)
	p.touch()

	return archived, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// STATE MACHINE
// ══════════════════════════════════════════════════════════════════════════════

// ConfirmPlan переводит planning → building. Нужен хотя бы один шаг;
// первый шаг разблокируется.
func (p *StudentProject) ConfirmPlan(actorID string) error {
	if len(p.Steps) == 0 {
		return shared.Precondition("project", "ConfirmPlan", "add at least one task before starting")
	}
	if err := p.transition("ConfirmPlan", StatusBuilding, actorID, ""); err != nil {
		return err
	}
	p.unlockNext()
	return nil
}

// Submit отправляет проект на ревью из building, testing или delivered.
// Все шаги должны быть завершены.
func (p *StudentProject) Submit(actorID string) error {
	if !CanTransition(p.Status, StatusSubmitted) {
		return p.refuse("Submit", StatusSubmitted)
	}
	if !p.AllDone() {
		return shared.Precondition("project", "Submit", "finish all tasks before submitting")
	}
	return p.transition("Submit", StatusSubmitted, actorID, "")
}

// StartTesting переводит building → testing. Все шаги должны быть завершены.
func (p *StudentProject) StartTesting(actorID string) error {
	if !CanTransition(p.Status, StatusTesting) {
		return p.refuse("StartTesting", StatusTesting)
	}
	if !p.AllDone() {
		return shared.Precondition("project", "StartTesting", "finish all tasks before testing")
	}
	return p.transition("StartTesting", StatusTesting, actorID, "")
}

// MarkDelivered переводит testing → delivered.
func (p *StudentProject) MarkDelivered(actorID string) error {
	return p.transition("MarkDelivered", StatusDelivered, actorID, "")
}

// Approve публикует проект (submitted → published) с отзывом преподавателя.
// Проверка прав выполняется в application.
func (p *StudentProject) Approve(instructorID, feedback string) error {
	if err := p.transition("Approve", StatusPublished, instructorID, feedback); err != nil {
		return err
	}
	p.InstructorFeedback = feedback
	return nil
}

// RequestChanges возвращает проект на доработку (submitted → changes_requested).
func (p *StudentProject) RequestChanges(instructorID, feedback string) error {
	if err := p.transition("RequestChanges", StatusChangesRequested, instructorID, feedback); err != nil {
		return err
	}
	p.InstructorFeedback = feedback
	return nil
}

// Reopen возвращает проект в building после запроса изменений.
func (p *StudentProject) Reopen(actorID string) error {
	if err := p.transition("Reopen", StatusBuilding, actorID, ""); err != nil {
		return err
	}
	p.unlockNext()
	return nil
}

// AttachMedia добавляет ссылки на медиа. Разрешено в любом состоянии,
// включая published.
func (p *StudentProject) AttachMedia(urls ...string) {
	p.MediaURLs = shared.DedupeStrings(append(p.MediaURLs, urls...))
	p.touch()
}

// RecordEarnedBadges объединяет полученные бейджи с уже записанными.
func (p *StudentProject) RecordEarnedBadges(badgeIDs []string) {
	p.EarnedBadgeIDs = shared.DedupeStrings(append(p.EarnedBadgeIDs, badgeIDs...))
	p.touch()
}

// transition выполняет переход по таблице и записывает аудит.
func (p *StudentProject) transition(op string, to Status, actorID, note string) error {
	if !CanTransition(p.Status, to) {
		return p.refuse(op, to)
	}

	now := time.Now().UTC()
	p.pendingChanges = append(p.pendingChanges, StatusChange{
		ProjectID: p.ID,
		From:      p.Status,
		To:        to,
		ActorID:   actorID,
		Note:      note,
		At:        now,
	})
	p.Status = to
	p.UpdatedAt = now
	return nil
}

func (p *StudentProject) refuse(op string, to Status) error {
	if p.Status.IsTerminal() {
		return shared.Precondition("project", op, "a published project cannot change status")
	}
	return shared.Precondition("project", op, fmt.Sprintf("a %s project cannot move to %s", p.Status, to))
}

func (p *StudentProject) touch() {
	p.UpdatedAt = time.Now().UTC()
}

// ══════════════════════════════════════════════════════════════════════════════
// PENDING RECORDS
// ══════════════════════════════════════════════════════════════════════════════

// PendingStatusChanges возвращает записи аудита, ещё не сохранённые.
func (p *StudentProject) PendingStatusChanges() []StatusChange {
	return p.pendingChanges
}

// PendingArchivedSteps возвращает архивные шаги, ещё не сохранённые.
func (p *StudentProject) PendingArchivedSteps() []ArchivedStep {
	return p.pendingArchived
}

// MarkPersisted очищает ожидающие записи после успешного сохранения.
func (p *StudentProject) MarkPersisted() {
	p.pendingChanges = nil
	p.pendingArchived = nil
}

// Clone создаёт глубокую копию проекта, включая ожидающие записи.
func (p *StudentProject) Clone() *StudentProject {
	if p == nil {
		return nil
	}

	clone := *p
	clone.Steps = append([]ProjectStep(nil), p.Steps...)
	clone.EarnedBadgeIDs = append([]string(nil), p.EarnedBadgeIDs...)
	clone.MediaURLs = append([]string(nil), p.MediaURLs...)
	clone.SkillsAcquired = append([]string(nil), p.SkillsAcquired...)
	clone.pendingChanges = append([]StatusChange(nil), p.pendingChanges...)
	clone.pendingArchived = append([]ArchivedStep(nil), p.pendingArchived...)
	return &clone
}
