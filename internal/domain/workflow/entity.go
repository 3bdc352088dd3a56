// Package workflow содержит доменную модель шаблонов процесса (ProcessTemplate)
// и шаблонов проектов. Шаблоны создаются преподавателем и лишь слабо
// ссылаются из проектов (через workflowId / templateId).
package workflow

import (
	"sort"
	"strings"
	"time"

	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrTemplateNotFound - шаблон процесса не найден.
	ErrTemplateNotFound = shared.NewDomainError("workflow", "Find", shared.ErrNotFound, "process template not found")

	// ErrNoDefaultTemplate - ни один шаблон не помечен как шаблон по умолчанию.
	ErrNoDefaultTemplate = shared.NewDomainError("workflow", "GetDefault", shared.ErrNotFound, "no default process template")

	// ErrProjectTemplateNotFound - шаблон проекта не найден.
	ErrProjectTemplateNotFound = shared.NewDomainError("workflow", "FindProjectTemplate", shared.ErrNotFound, "project template not found")

	// ErrInvalidName - пустое или слишком длинное имя.
	ErrInvalidName = shared.NewDomainError("workflow", "Validate", shared.ErrValidation, "name must be 1-100 chars")

	// ErrNoPhases - шаблон процесса без фаз бесполезен.
	ErrNoPhases = shared.NewDomainError("workflow", "Validate", shared.ErrValidation, "process template needs at least one phase")

	// ErrInvalidPhase - фаза без имени.
	ErrInvalidPhase = shared.NewDomainError("workflow", "Validate", shared.ErrValidation, "every phase needs a name")

	// ErrDeleteDefault - нельзя удалить шаблон по умолчанию.
	ErrDeleteDefault = shared.Precondition("workflow", "Delete", "choose another default workflow before deleting this one")

	// ErrMultipleDefaults - нарушен инвариант «не более одного шаблона по умолчанию».
	ErrMultipleDefaults = shared.NewDomainError("workflow", "CheckDefault", shared.ErrInvariantViolation, "more than one default process template")
)

// ══════════════════════════════════════════════════════════════════════════════
// PROCESS TEMPLATE
// ══════════════════════════════════════════════════════════════════════════════

// Phase - упорядоченный этап шаблона процесса. При применении шаблона
// каждая фаза превращается ровно в один шаг проекта.
type Phase struct {
	ID    string
	Name  string
	Order int
}

// ProcessTemplate - шаблон процесса (например, «Дизайн-мышление»).
type ProcessTemplate struct {
	// ID - уникальный идентификатор.
	ID string

	// Name - отображаемое имя.
	Name string

	// Phases - фазы в порядке определения (сортировка по Order при применении).
	Phases []Phase

	// IsDefault - шаблон, предлагаемый новым проектам.
	// Меняется только через Repository.SetDefault.
	IsDefault bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewProcessTemplateParams содержит параметры создания шаблона.
type NewProcessTemplateParams struct {
	ID     string
	Name   string
	Phases []Phase
}

// NewProcessTemplate создаёт шаблон процесса с валидацией.
// Новый шаблон никогда не становится шаблоном по умолчанию сам по себе.
func NewProcessTemplate(params NewProcessTemplateParams) (*ProcessTemplate, error) {
	if params.ID == "" {
		return nil, shared.NewDomainError("workflow", "Create", shared.ErrInvalidID, "template id is required")
	}

	now := time.Now().UTC()
	t := &ProcessTemplate{
		ID:        params.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := t.Rename(params.Name); err != nil {
		return nil, err
	}
	if err := t.SetPhases(params.Phases); err != nil {
		return nil, err
	}

	return t, nil
}

// Rename меняет имя шаблона.
func (t *ProcessTemplate) Rename(name string) error {
	name = shared.NormalizeTitle(name)
	if name == "" || len(name) > 100 {
		return ErrInvalidName
	}

	t.Name = name
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// SetPhases заменяет список фаз.
func (t *ProcessTemplate) SetPhases(phases []Phase) error {
	if len(phases) == 0 {
		return ErrNoPhases
	}

	cleaned := make([]Phase, len(phases))
	for i, p := range phases {
		p.Name = shared.NormalizeTitle(p.Name)
		if p.Name == "" {
			return ErrInvalidPhase
		}
		cleaned[i] = p
	}

	t.Phases = cleaned
	t.UpdatedAt = time.Now().UTC()
	return nil
}

// OrderedPhases возвращает копию фаз, отсортированную по Order.
// Фазы с одинаковым Order сохраняют порядок определения.
func (t *ProcessTemplate) OrderedPhases() []Phase {
	out := make([]Phase, len(t.Phases))
	copy(out, t.Phases)
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Order < out[j].Order
	})
	return out
}

// Clone создаёт глубокую копию шаблона.
func (t *ProcessTemplate) Clone() *ProcessTemplate {
	if t == nil {
		return nil
	}

	clone := *t
	clone.Phases = make([]Phase, len(t.Phases))
	copy(clone.Phases, t.Phases)
	return &clone
}

// DefaultOf находит шаблон по умолчанию среди переданных.
// Возвращает ErrNoDefaultTemplate, если такого нет, и ErrMultipleDefaults,
// если инвариант нарушен.
func DefaultOf(templates []*ProcessTemplate) (*ProcessTemplate, error) {
	var found *ProcessTemplate
	for _, t := range templates {
		if !t.IsDefault {
			continue
		}
		if found != nil {
			return nil, ErrMultipleDefaults
		}
		found = t
	}

	if found == nil {
		return nil, ErrNoDefaultTemplate
	}
	return found, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT TEMPLATE
// ══════════════════════════════════════════════════════════════════════════════

// ProjectTemplate - шаблон миссии с плоским списком шагов.
type ProjectTemplate struct {
	ID          string
	Name        string
	Description string
	Station     string
	StepTitles  []string
	CreatedAt   time.Time
}

// NewProjectTemplate создаёт шаблон проекта. Пустые названия шагов отбрасываются.
func NewProjectTemplate(id, name, station string, stepTitles []string) (*ProjectTemplate, error) {
	if id == "" {
		return nil, shared.NewDomainError("workflow", "CreateProjectTemplate", shared.ErrInvalidID, "template id is required")
	}

	name = shared.NormalizeTitle(name)
	if name == "" || len(name) > 100 {
		return nil, ErrInvalidName
	}

	titles := make([]string, 0, len(stepTitles))
	for _, s := range stepTitles {
		if s = shared.NormalizeTitle(s); s != "" {
			titles = append(titles, s)
		}
	}

	return &ProjectTemplate{
		ID:         id,
		Name:       name,
		Station:    strings.ToLower(strings.TrimSpace(station)),
		StepTitles: titles,
		CreatedAt:  time.Now().UTC(),
	}, nil
}
