package workflow

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACES
// Реализации находятся в infrastructure/persistence.
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции с шаблонами процесса.
type Repository interface {
	// Create сохраняет новый шаблон. Флаг IsDefault игнорируется.
	Create(ctx context.Context, t *ProcessTemplate) error

	// GetByID возвращает шаблон по ID.
	// Возвращает ErrTemplateNotFound, если шаблон не найден.
	GetByID(ctx context.Context, id string) (*ProcessTemplate, error)

	// GetDefault возвращает шаблон по умолчанию.
	// Возвращает ErrNoDefaultTemplate, если его нет.
	GetDefault(ctx context.Context) (*ProcessTemplate, error)

	// List возвращает все шаблоны, отсортированные по имени.
	List(ctx context.Context) ([]*ProcessTemplate, error)

	// Update сохраняет имя и фазы. Флаг IsDefault здесь не меняется.
	Update(ctx context.Context, t *ProcessTemplate) error

	// Delete удаляет шаблон. Шаблон по умолчанию удалить нельзя (ErrDeleteDefault).
	Delete(ctx context.Context, id string) error

	// SetDefault делает шаблон id единственным шаблоном по умолчанию.
	// Выполняется одной транзакцией: либо снят старый и установлен новый,
	// либо не изменилось ничего. Возвращает ID предыдущего шаблона по умолчанию
	// (пустая строка, если его не было).
	SetDefault(ctx context.Context, id string) (previousID string, err error)
}

// ProjectTemplateRepository определяет операции с шаблонами проектов.
type ProjectTemplateRepository interface {
	// Create сохраняет шаблон проекта.
	Create(ctx context.Context, t *ProjectTemplate) error

	// GetByID возвращает шаблон проекта.
	// Возвращает ErrProjectTemplateNotFound, если шаблон не найден.
	GetByID(ctx context.Context, id string) (*ProjectTemplate, error)

	// List возвращает все шаблоны проектов.
	List(ctx context.Context) ([]*ProjectTemplate, error)
}
