package eventhandler

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON PROJECT SUBMITTED HANDLER
// Сообщает ревьюерам о новом проекте в очереди.
//
// Получатели берутся из конфигурации (access.staff_ids). Уведомление не
// критично: ошибки логируются, отправка проекта уже сохранена.
// ═══════════════════════════════════════════════════════════════════════════

// OnProjectSubmittedHandler обрабатывает событие отправки проекта на ревью.
type OnProjectSubmittedHandler struct {
	projects  project.Repository
	sink      notification.Sink
	reviewers []string
	timeout   time.Duration
	logger    *zap.Logger
}

// NewOnProjectSubmittedHandler создаёт обработчик.
func NewOnProjectSubmittedHandler(
	projects project.Repository,
	sink notification.Sink,
	reviewers []string,
	log *zap.Logger,
) *OnProjectSubmittedHandler {
	return &OnProjectSubmittedHandler{
		projects:  projects,
		sink:      sink,
		reviewers: shared.DedupeStrings(reviewers),
		timeout:   5 * time.Second,
		logger:    logger.OrNop(log).With(zap.String("handler", "on_project_submitted")),
	}
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnProjectSubmittedHandler) Handle(event shared.Event) error {
	changed, ok := event.(shared.ProjectStatusChangedEvent)
	if !ok || changed.To != string(project.StatusSubmitted) {
		return nil
	}
	if len(h.reviewers) == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	p, err := h.projects.GetByID(ctx, changed.AggregateID())
	if err != nil {
		h.logger.Error("failed to load submitted project",
			logger.ProjectID(changed.AggregateID()),
			zap.Error(err),
		)
		return fmt.Errorf("load project: %w", err)
	}

	msg := fmt.Sprintf("%q (%s) is waiting for review.", p.Title, p.Station)
	for _, reviewer := range h.reviewers {
		n := notification.New(reviewer, "New submission", msg, notification.SeverityInfo)
		n.ProjectID = p.ID
		if err := h.sink.Notify(ctx, n); err != nil {
			h.logger.Warn("reviewer notification failed",
				logger.ProjectID(p.ID),
				zap.String("reviewer_id", reviewer),
				zap.Error(err),
			)
		}
	}

	h.logger.Info("reviewers notified",
		logger.ProjectID(p.ID),
		zap.Int("reviewers", len(h.reviewers)),
	)
	return nil
}
