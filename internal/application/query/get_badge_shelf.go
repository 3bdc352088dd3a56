package query

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET BADGE SHELF QUERY
// Полка бейджей студента: полученные награды и прогресс к остальным.
// Набор полученных бейджей сначала читается из кэша, при промахе - из БД,
// после чего кэш заполняется.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeDTO - бейдж на полке.
type BadgeDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Icon        string `json:"icon,omitempty"`
	Criterion   string `json:"criterion"`
}

// BadgeProgressDTO - ещё не полученный бейдж и прогресс к нему.
type BadgeProgressDTO struct {
	Badge BadgeDTO `json:"badge"`

	// Current и Target - для критерия project_count; для skill 0 из 1.
	Current int `json:"current"`
	Target  int `json:"target"`
}

// BadgeShelfDTO - полка бейджей.
type BadgeShelfDTO struct {
	StudentID  string             `json:"student_id"`
	Earned     []BadgeDTO         `json:"earned"`
	InProgress []BadgeProgressDTO `json:"in_progress"`

	// FromCache - набор полученных бейджей прочитан из кэша.
	FromCache bool `json:"from_cache"`
}

// GetBadgeShelfHandler обрабатывает запрос полки.
type GetBadgeShelfHandler struct {
	projects      project.Repository
	catalogue     badge.CatalogueRepository
	studentBadges badge.StudentBadgeRepository
	cache         badge.StudentBadgeCache
	log           *zap.Logger
}

// NewGetBadgeShelfHandler создаёт обработчик. cache может быть nil.
func NewGetBadgeShelfHandler(
	projects project.Repository,
	catalogue badge.CatalogueRepository,
	studentBadges badge.StudentBadgeRepository,
	cache badge.StudentBadgeCache,
	log *zap.Logger,
) *GetBadgeShelfHandler {
	return &GetBadgeShelfHandler{
		projects:      projects,
		catalogue:     catalogue,
		studentBadges: studentBadges,
		cache:         cache,
		log:           logger.OrNop(log).With(logger.Component("badge_shelf")),
	}
}

// Handle выполняет запрос.
func (h *GetBadgeShelfHandler) Handle(ctx context.Context, studentID string) (*BadgeShelfDTO, error) {
	if studentID == "" {
		return nil, shared.NewDomainError("query", "GetBadgeShelf", shared.ErrValidation, "student_id is required")
	}

	held, fromCache, err := h.heldBadges(ctx, studentID)
	if err != nil {
		return nil, err
	}

	catalogue, err := h.catalogue.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("get_badge_shelf: catalogue: %w", err)
	}

	published, err := h.projects.ListPublishedByStudent(ctx, studentID)
	if err != nil {
		return nil, fmt.Errorf("get_badge_shelf: projects: %w", err)
	}
	snapshots := make([]badge.ProjectSnapshot, len(published))
	for i, p := range published {
		snapshots[i] = badge.ProjectSnapshot{ProjectID: p.ID, Station: p.Station, Skills: p.SkillsAcquired}
	}

	holding := make(map[string]struct{}, len(held))
	for _, id := range held {
		holding[id] = struct{}{}
	}

	shelf := &BadgeShelfDTO{
		StudentID:  studentID,
		Earned:     []BadgeDTO{},
		InProgress: []BadgeProgressDTO{},
		FromCache:  fromCache,
	}
	for _, b := range catalogue {
		dto := toBadgeDTO(b)
		if _, ok := holding[b.ID]; ok {
			shelf.Earned = append(shelf.Earned, dto)
			continue
		}
		current, target := progressToward(b.Criterion, snapshots)
		shelf.InProgress = append(shelf.InProgress, BadgeProgressDTO{Badge: dto, Current: current, Target: target})
	}

	sort.SliceStable(shelf.InProgress, func(i, j int) bool {
		return remaining(shelf.InProgress[i]) < remaining(shelf.InProgress[j])
	})

	return shelf, nil
}

// heldBadges читает набор из кэша, при промахе - из БД с заполнением кэша.
// Ошибки кэша не прерывают запрос.
func (h *GetBadgeShelfHandler) heldBadges(ctx context.Context, studentID string) ([]string, bool, error) {
	if h.cache != nil {
		ids, ok, err := h.cache.GetBadgeIDs(ctx, studentID)
		if err != nil {
			h.log.Warn("badge cache read failed", logger.StudentID(studentID), zap.Error(err))
		} else if ok {
			return ids, true, nil
		}
	}

	ids, err := h.studentBadges.GetBadgeIDs(ctx, studentID)
	if err != nil {
		return nil, false, fmt.Errorf("get_badge_shelf: held: %w", err)
	}

	if h.cache != nil {
		if err := h.cache.SetBadgeIDs(ctx, studentID, ids); err != nil {
			h.log.Warn("badge cache fill failed", logger.StudentID(studentID), zap.Error(err))
		}
	}
	return ids, false, nil
}

func toBadgeDTO(b *badge.Badge) BadgeDTO {
	return BadgeDTO{
		ID:          b.ID,
		Name:        b.Name,
		Description: b.Description,
		Icon:        b.Icon,
		Criterion:   describeCriterion(b.Criterion),
	}
}

func describeCriterion(c badge.Criterion) string {
	switch v := c.(type) {
	case badge.ProjectCountCriterion:
		if v.Target == badge.TargetAll {
			return fmt.Sprintf("Publish %d missions", v.Count)
		}
		return fmt.Sprintf("Publish %d %s missions", v.Count, v.Target)
	case badge.SkillCriterion:
		return fmt.Sprintf("Publish a mission using %s", v.Skill)
	default:
		return ""
	}
}

// progressToward считает прогресс к критерию.
func progressToward(c badge.Criterion, published []badge.ProjectSnapshot) (current, target int) {
	switch v := c.(type) {
	case badge.ProjectCountCriterion:
		for _, p := range published {
			if v.Target == badge.TargetAll || p.Station == v.Target {
				current++
			}
		}
		return min(current, v.Count), v.Count
	default:
		if badge.Satisfied(c, published) {
			return 1, 1
		}
		return 0, 1
	}
}

func remaining(p BadgeProgressDTO) int {
	return p.Target - p.Current
}
