// Package notification содержит контракт приёмника уведомлений (Sink).
// Ядро только отправляет уведомления и не ждёт подтверждения доставки:
// механика доставки находится в infrastructure.
package notification

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SEVERITY
// ══════════════════════════════════════════════════════════════════════════════

// Severity определяет тон уведомления.
type Severity string

const (
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
	SeverityInfo    Severity = "info"
)

// IsValid проверяет, что уровень корректен.
func (s Severity) IsValid() bool {
	switch s {
	case SeveritySuccess, SeverityWarning, SeverityError, SeverityInfo:
		return true
	default:
		return false
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// NOTIFICATION
// ══════════════════════════════════════════════════════════════════════════════

var (
	// ErrInvalidRecipient - пустой получатель.
	ErrInvalidRecipient = shared.NewDomainError("notification", "Validate", shared.ErrInvalidID, "recipient is required")

	// ErrEmptyMessage - пустой текст.
	ErrEmptyMessage = shared.NewDomainError("notification", "Validate", shared.ErrEmptyValue, "message is required")

	// ErrInvalidSeverity - неизвестный уровень.
	ErrInvalidSeverity = shared.NewDomainError("notification", "Validate", shared.ErrValidation, "unknown severity")
)

// Notification - одно сообщение пользователю.
type Notification struct {
	// RecipientID - ID получателя (студента или преподавателя).
	RecipientID string

	Title   string
	Message string

	// Severity - тон сообщения.
	Severity Severity

	// ProjectID - проект, к которому относится уведомление (опционально).
	ProjectID string

	CreatedAt time.Time
}

// Validate проверяет уведомление перед отправкой.
func (n Notification) Validate() error {
	if n.RecipientID == "" {
		return ErrInvalidRecipient
	}
	if n.Message == "" {
		return ErrEmptyMessage
	}
	if !n.Severity.IsValid() {
		return ErrInvalidSeverity
	}
	return nil
}

// New создаёт уведомление с текущим временем.
func New(recipientID, title, message string, severity Severity) Notification {
	return Notification{
		RecipientID: recipientID,
		Title:       title,
		Message:     message,
		Severity:    severity,
		CreatedAt:   time.Now().UTC(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MESSAGE FACTORIES
// ══════════════════════════════════════════════════════════════════════════════

// ProjectPublished - проект одобрен преподавателем.
func ProjectPublished(studentID, projectID, projectTitle, feedback string) Notification {
	msg := fmt.Sprintf("Your mission %q was approved and published.", projectTitle)
	if feedback != "" {
		msg += " Feedback: " + feedback
	}
	n := New(studentID, "Mission published", msg, SeveritySuccess)
	n.ProjectID = projectID
	return n
}

// ChangesRequested - проект возвращён на доработку с отзывом.
func ChangesRequested(studentID, projectID, projectTitle, feedback string) Notification {
	msg := fmt.Sprintf("Your mission %q needs changes.", projectTitle)
	if feedback != "" {
		msg += " " + feedback
	}
	n := New(studentID, "Changes requested", msg, SeverityWarning)
	n.ProjectID = projectID
	return n
}

// BadgeEarned - студент получил бейдж.
func BadgeEarned(studentID, projectID, badgeName string) Notification {
	n := New(studentID, "Badge earned", fmt.Sprintf("You earned the %q badge!", badgeName), SeveritySuccess)
	n.ProjectID = projectID
	return n
}

// ══════════════════════════════════════════════════════════════════════════════
// SINK
// ══════════════════════════════════════════════════════════════════════════════

// Sink принимает уведомления. Ошибка означает, что уведомление не принято;
// вызывающая сторона логирует её и не откатывает породившую операцию.
type Sink interface {
	Notify(ctx context.Context, n Notification) error
}

// SinkFunc адаптирует функцию к интерфейсу Sink.
type SinkFunc func(ctx context.Context, n Notification) error

// Notify реализует Sink.
func (f SinkFunc) Notify(ctx context.Context, n Notification) error {
	return f(ctx, n)
}
