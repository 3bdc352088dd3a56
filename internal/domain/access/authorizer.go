// Package access определяет проверку прав для операций преподавателя:
// ревью проектов и управление шаблонами и бейджами.
package access

import (
	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// Role - роль пользователя.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
)

// Actor - пользователь, выполняющий операцию.
type Actor struct {
	ID   string
	Role Role
}

// ErrForbidden - у пользователя нет прав на операцию.
var ErrForbidden = shared.NewDomainError("access", "Authorize", shared.ErrForbidden, "only instructors can do this")

// Authorizer проверяет права. Реализация не должна обращаться к сети.
type Authorizer interface {
	// CanManageLearning возвращает true, если пользователь может ревьюить
	// проекты и управлять шаблонами и бейджами.
	CanManageLearning(actor Actor) bool
}

// RoleAuthorizer разрешает операции преподавателя ролям instructor и admin,
// а также явно перечисленным ID (например, из конфигурации).
type RoleAuthorizer struct {
	staff map[string]struct{}
}

// NewRoleAuthorizer создаёт проверку прав с дополнительным списком ID.
func NewRoleAuthorizer(staffIDs ...string) *RoleAuthorizer {
	staff := make(map[string]struct{}, len(staffIDs))
	for _, id := range staffIDs {
		if id != "" {
			staff[id] = struct{}{}
		}
	}
	return &RoleAuthorizer{staff: staff}
}

// CanManageLearning реализует Authorizer.
func (a *RoleAuthorizer) CanManageLearning(actor Actor) bool {
	if actor.ID == "" {
		return false
	}
	if actor.Role == RoleInstructor || actor.Role == RoleAdmin {
		return true
	}
	_, ok := a.staff[actor.ID]
	return ok
}

// Require возвращает ErrForbidden, если у пользователя нет прав.
func Require(a Authorizer, actor Actor) error {
	if a == nil || !a.CanManageLearning(actor) {
		return ErrForbidden
	}
	return nil
}
