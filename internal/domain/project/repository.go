package project

import (
	"context"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPOSITORY INTERFACE
// ══════════════════════════════════════════════════════════════════════════════

// Repository определяет операции хранения проектов.
type Repository interface {
	// Create сохраняет новый проект.
	Create(ctx context.Context, p *StudentProject) error

	// GetByID возвращает проект по ID.
	// Возвращает ErrProjectNotFound, если проект не найден.
	GetByID(ctx context.Context, id string) (*StudentProject, error)

	// Update сохраняет проект целиком одной записью вместе с
	// PendingStatusChanges и PendingArchivedSteps. Либо сохраняется всё,
	// либо ничего. Ожидающие записи очищает вызывающая сторона через
	// MarkPersisted.
	Update(ctx context.Context, p *StudentProject) error

	// Delete удаляет проект.
	Delete(ctx context.Context, id string) error

	// ListByStudent возвращает проекты студента, новые первыми.
	ListByStudent(ctx context.Context, studentID string) ([]*StudentProject, error)

	// ListByStatus возвращает проекты в указанном состоянии, старые первыми.
	ListByStatus(ctx context.Context, status Status, limit int) ([]*StudentProject, error)

	// ListPublishedByStudent возвращает опубликованные проекты студента.
	ListPublishedByStudent(ctx context.Context, studentID string) ([]*StudentProject, error)

	// ListStudentsWithPublished возвращает студентов, у которых есть
	// хотя бы один опубликованный проект.
	ListStudentsWithPublished(ctx context.Context) ([]string, error)

	// AddEarnedBadges атомарно объединяет badgeIDs с EarnedBadgeIDs проекта.
	AddEarnedBadges(ctx context.Context, projectID string, badgeIDs []string) error

	// StatusHistory возвращает журнал переходов проекта по времени.
	StatusHistory(ctx context.Context, projectID string) ([]StatusChange, error)

	// ArchivedSteps возвращает шаги с доказательствами, снятые при замене workflow.
	ArchivedSteps(ctx context.Context, projectID string) ([]ArchivedStep, error)
}
