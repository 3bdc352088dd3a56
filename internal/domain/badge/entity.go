// Package badge содержит каталог бейджей, их критерии и чистый вычислитель
// новых наград по истории опубликованных проектов студента.
package badge

import (
	"context"
	"time"

	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// DOMAIN ERRORS
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrBadgeNotFound - бейдж не найден.
	ErrBadgeNotFound = shared.NewDomainError("badge", "Find", shared.ErrNotFound, "badge not found")

	// ErrInvalidName - пустое или слишком длинное имя.
	ErrInvalidName = shared.NewDomainError("badge", "Validate", shared.ErrValidation, "badge name must be 1-100 chars")

	// ErrNoCriterion - бейдж без критерия.
	ErrNoCriterion = shared.NewDomainError("badge", "Validate", shared.ErrValidation, "badge needs a criterion")

	// ErrCriterionFrozen - критерий нельзя менять после того, как бейдж получен.
	ErrCriterionFrozen = shared.Precondition("badge", "ChangeCriterion", "students already hold this badge, its rule can no longer change")

	// ErrBadgeHeld - полученный бейдж нельзя удалить.
	ErrBadgeHeld = shared.Precondition("badge", "Delete", "students already hold this badge, it cannot be deleted")
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE
// ══════════════════════════════════════════════════════════════════════════════

// Badge - элемент каталога наград.
type Badge struct {
	ID          string
	Name        string
	Description string
	Icon        string

	// Criterion - правило получения. Вычислитель его только читает.
	Criterion Criterion

	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewBadgeParams содержит параметры создания бейджа.
type NewBadgeParams struct {
	ID          string
	Name        string
	Description string
	Icon        string
	Criterion   Criterion
}

// NewBadge создаёт бейдж с проверкой критерия.
func NewBadge(params NewBadgeParams) (*Badge, error) {
	if params.ID == "" {
		return nil, shared.NewDomainError("badge", "Create", shared.ErrInvalidID, "badge id is required")
	}
	if params.Criterion == nil {
		return nil, ErrNoCriterion
	}
	if err := params.Criterion.Validate(); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	b := &Badge{
		ID:        params.ID,
		Criterion: params.Criterion,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := b.UpdateDetails(params.Name, params.Description, params.Icon); err != nil {
		return nil, err
	}

	return b, nil
}

// UpdateDetails меняет описательные поля. Разрешено всегда.
func (b *Badge) UpdateDetails(name, description, icon string) error {
	name = shared.NormalizeTitle(name)
	if name == "" || len(name) > 100 {
		return ErrInvalidName
	}

	b.Name = name
	b.Description = description
	b.Icon = icon
	b.UpdatedAt = time.Now().UTC()
	return nil
}

// ChangeCriterion заменяет критерий, если бейдж ещё никем не получен.
// Тот же самый критерий принимается всегда и ничего не меняет.
func (b *Badge) ChangeCriterion(c Criterion, held bool) error {
	if c == nil {
		return ErrNoCriterion
	}
	if sameCriterion(b.Criterion, c) {
		return nil
	}
	if held {
		return ErrCriterionFrozen
	}
	if err := c.Validate(); err != nil {
		return err
	}

	b.Criterion = c
	b.UpdatedAt = time.Now().UTC()
	return nil
}

func sameCriterion(a, b Criterion) bool {
	if a == nil || b == nil {
		return false
	}
	at, atarget, acount := FlattenCriterion(a)
	bt, btarget, bcount := FlattenCriterion(b)
	return at == bt && atarget == btarget && acount == bcount
}

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// ══════════════════════════════════════════════════════════════════════════════

// CatalogueRepository хранит каталог бейджей.
type CatalogueRepository interface {
	Create(ctx context.Context, b *Badge) error

	// GetByID возвращает ErrBadgeNotFound, если бейдж не найден.
	GetByID(ctx context.Context, id string) (*Badge, error)

	// List возвращает весь каталог.
	List(ctx context.Context) ([]*Badge, error)

	// Update сохраняет описательные поля и критерий.
	Update(ctx context.Context, b *Badge) error

	// Delete удаляет бейдж.
	Delete(ctx context.Context, id string) error

	// IsHeld возвращает true, если хотя бы один студент получил бейдж.
	IsHeld(ctx context.Context, id string) (bool, error)
}

// StudentBadgeRepository хранит наборы полученных бейджей. Записи только
// добавляются: полученный бейдж никогда не отзывается.
type StudentBadgeRepository interface {
	// GetBadgeIDs возвращает бейджи студента (пустой список, если их нет).
	GetBadgeIDs(ctx context.Context, studentID string) ([]string, error)

	// AddBadges атомарно объединяет badgeIDs с набором студента и возвращает
	// те, которых в наборе ещё не было. Параллельные вызовы коммутируют.
	AddBadges(ctx context.Context, studentID string, badgeIDs []string) (added []string, err error)
}

// StudentBadgeCache - кэш наборов бейджей. Промах кэша не является ошибкой.
type StudentBadgeCache interface {
	// GetBadgeIDs возвращает набор и признак попадания в кэш.
	GetBadgeIDs(ctx context.Context, studentID string) (ids []string, ok bool, err error)

	// AddBadges добавляет бейджи в закэшированный набор.
	AddBadges(ctx context.Context, studentID string, badgeIDs []string) error

	// SetBadgeIDs заменяет закэшированный набор целиком.
	SetBadgeIDs(ctx context.Context, studentID string, badgeIDs []string) error

	// Invalidate удаляет набор из кэша.
	Invalidate(ctx context.Context, studentID string) error
}
