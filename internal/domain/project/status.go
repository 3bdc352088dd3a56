package project

import (
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROJECT STATUS
// ══════════════════════════════════════════════════════════════════════════════

// Status - состояние проекта в машине состояний.
type Status string

const (
	// StatusPlanning - студент составляет план (шаги можно добавлять и удалять).
	StatusPlanning Status = "planning"
	// StatusBuilding - студент выполняет шаги.
	StatusBuilding Status = "building"
	// StatusTesting - необязательная фаза проверки результата.
	StatusTesting Status = "testing"
	// StatusDelivered - результат передан, ожидает отправки на ревью.
	StatusDelivered Status = "delivered"
	// StatusSubmitted - проект отправлен преподавателю.
	StatusSubmitted Status = "submitted"
	// StatusChangesRequested - преподаватель вернул проект на доработку.
	StatusChangesRequested Status = "changes_requested"
	// StatusPublished - проект одобрен и опубликован (терминальное состояние).
	StatusPublished Status = "published"
)

// AllStatuses перечисляет все семь состояний.
var AllStatuses = []Status{
	StatusPlanning,
	StatusBuilding,
	StatusTesting,
	StatusDelivered,
	StatusSubmitted,
	StatusChangesRequested,
	StatusPublished,
}

// transitions - единственный источник допустимых переходов.
var transitions = map[Status][]Status{
	StatusPlanning:         {StatusBuilding},
	StatusBuilding:         {StatusSubmitted, StatusTesting},
	StatusTesting:          {StatusDelivered, StatusSubmitted},
	StatusDelivered:        {StatusSubmitted},
	StatusSubmitted:        {StatusPublished, StatusChangesRequested},
	StatusChangesRequested: {StatusBuilding},
}

// IsValid проверяет, что статус корректен.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok || s == StatusPublished
}

// IsTerminal возвращает true для опубликованного проекта.
func (s Status) IsTerminal() bool {
	return s == StatusPublished
}

// IsStudentEditable возвращает true, пока шаги проекта принадлежат студенту.
func (s Status) IsStudentEditable() bool {
	switch s {
	case StatusPlanning, StatusBuilding, StatusTesting, StatusDelivered:
		return true
	default:
		return false
	}
}

// AwaitingReview возвращает true, если проект ждёт решения преподавателя.
func (s Status) AwaitingReview() bool {
	return s == StatusSubmitted
}

// CanTransition проверяет, разрешён ли переход from → to таблицей переходов.
// Охранные условия (guards) проверяются отдельно.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// StatusChange - запись аудита одного перехода. Пишется в том же
// хранилищном вызове, что и новый статус.
type StatusChange struct {
	ProjectID string
	From      Status
	To        Status
	ActorID   string
	Note      string
	At        time.Time
}
