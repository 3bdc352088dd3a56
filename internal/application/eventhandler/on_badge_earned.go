// Package eventhandler содержит обработчики доменных событий.
package eventhandler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON BADGE EARNED HANDLER
// Поддерживает кэш наборов бейджей в актуальном состоянии.
//
// Награда сначала записывается в БД, затем публикуется событие. Обработчик
// добавляет бейдж в закэшированный набор (SADD идемпотентен). Если запись
// в кэш не удалась, набор удаляется из кэша: следующее чтение возьмёт его
// из БД.
// ═══════════════════════════════════════════════════════════════════════════

// OnBadgeEarnedHandler обрабатывает событие получения бейджа.
type OnBadgeEarnedHandler struct {
	cache   badge.StudentBadgeCache
	timeout time.Duration
	logger  *zap.Logger
}

// NewOnBadgeEarnedHandler создаёт обработчик.
func NewOnBadgeEarnedHandler(cache badge.StudentBadgeCache, timeout time.Duration, log *zap.Logger) *OnBadgeEarnedHandler {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	return &OnBadgeEarnedHandler{
		cache:   cache,
		timeout: timeout,
		logger:  logger.OrNop(log).With(zap.String("handler", "on_badge_earned")),
	}
}

// Handle обрабатывает событие. Реализует shared.EventHandler.
func (h *OnBadgeEarnedHandler) Handle(event shared.Event) error {
	earned, ok := event.(shared.BadgeEarnedEvent)
	if !ok {
		h.logger.Warn("received non-BadgeEarnedEvent", zap.String("event_type", string(event.EventType())))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
	defer cancel()

	studentID := earned.AggregateID()
	if err := h.cache.AddBadges(ctx, studentID, []string{earned.BadgeID}); err != nil {
		h.logger.Warn("badge cache update failed, invalidating",
			logger.StudentID(studentID),
			logger.BadgeID(earned.BadgeID),
			zap.Error(err),
		)
		// Не возвращаем ошибку, кэш восстановится из БД
		if err := h.cache.Invalidate(ctx, studentID); err != nil {
			h.logger.Error("badge cache invalidation failed", logger.StudentID(studentID), zap.Error(err))
		}
		return nil
	}

	h.logger.Debug("badge cache updated",
		logger.StudentID(studentID),
		logger.BadgeID(earned.BadgeID),
	)
	return nil
}
