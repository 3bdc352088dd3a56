// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// invalid builds a validation error for a malformed command.
func invalid(op, message string) error {
	return shared.NewDomainError("command", op, shared.ErrValidation, message)
}

// projectStore loads and saves projects on behalf of command handlers and
// publishes the status events of every saved transition.
type projectStore struct {
	repo   project.Repository
	events shared.EventPublisher
	log    *zap.Logger
}

func newProjectStore(repo project.Repository, events shared.EventPublisher, log *zap.Logger) projectStore {
	return projectStore{repo: repo, events: events, log: logger.OrNop(log)}
}

// loadOwned loads a project and checks that actorID owns it.
func (s projectStore) loadOwned(ctx context.Context, op, projectID, actorID string) (*project.StudentProject, error) {
	p, err := s.repo.GetByID(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	if p.StudentID != actorID {
		return nil, shared.NewDomainError("project", op, shared.ErrForbidden, "only the project owner can do this")
	}
	return p, nil
}

// save writes the project together with its pending audit records, then
// publishes one event per recorded transition.
func (s projectStore) save(ctx context.Context, op string, p *project.StudentProject) error {
	changes := p.PendingStatusChanges()

	if err := s.repo.Update(ctx, p); err != nil {
		s.log.Warn("project write rejected",
			logger.Operation(op),
			logger.ProjectID(p.ID),
			zap.Error(err),
		)
		return fmt.Errorf("%s: %w", op, err)
	}
	p.MarkPersisted()

	for _, c := range changes {
		publish(s.events, s.log, shared.NewProjectStatusChangedEvent(
			p.ID, p.StudentID, string(c.From), string(c.To), c.ActorID,
		))
	}
	return nil
}

// publish sends an event if a publisher is configured. Failures are logged:
// events never decide the outcome of a command.
func publish(events shared.EventPublisher, log *zap.Logger, evt shared.Event) {
	if events == nil {
		return
	}
	if err := events.Publish(evt); err != nil {
		logger.OrNop(log).Warn("event publish failed",
			zap.String("event_type", string(evt.EventType())),
			zap.String("aggregate_id", evt.AggregateID()),
			zap.Error(err),
		)
	}
}
