package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/access"
	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE CATALOGUE COMMANDS
// Instructor-only. Descriptive fields are always editable; the criterion and
// the badge itself are frozen once any student holds it.
// ══════════════════════════════════════════════════════════════════════════════

// CriterionInput is the flat form of a badge criterion.
type CriterionInput struct {
	Type   badge.CriterionType
	Target string
	Count  int
}

func (c CriterionInput) parse() (badge.Criterion, error) {
	return badge.ParseCriterion(c.Type, c.Target, c.Count)
}

// CreateBadgeCommand adds a badge to the catalogue.
type CreateBadgeCommand struct {
	Actor       access.Actor
	Name        string
	Description string
	Icon        string
	Criterion   CriterionInput
}

// UpdateBadgeCommand changes descriptive fields and, optionally, the criterion.
type UpdateBadgeCommand struct {
	Actor       access.Actor
	BadgeID     string
	Name        string
	Description string
	Icon        string

	// Criterion is applied only when set.
	Criterion *CriterionInput
}

// DeleteBadgeCommand removes an unheld badge.
type DeleteBadgeCommand struct {
	Actor   access.Actor
	BadgeID string
}

// BadgeCatalogueHandler handles the catalogue commands.
type BadgeCatalogueHandler struct {
	catalogue badge.CatalogueRepository
	authz     access.Authorizer
	ids       shared.IDGenerator
	log       *zap.Logger
}

// NewBadgeCatalogueHandler creates a new BadgeCatalogueHandler.
func NewBadgeCatalogueHandler(
	catalogue badge.CatalogueRepository,
	authz access.Authorizer,
	ids shared.IDGenerator,
	log *zap.Logger,
) *BadgeCatalogueHandler {
	return &BadgeCatalogueHandler{
		catalogue: catalogue,
		authz:     authz,
		ids:       ids,
		log:       logger.OrNop(log).With(logger.Component("badge_catalogue")),
	}
}

// HandleCreate creates a badge.
func (h *BadgeCatalogueHandler) HandleCreate(ctx context.Context, cmd CreateBadgeCommand) (*badge.Badge, error) {
	if err := access.Require(h.authz, cmd.Actor); err != nil {
		return nil, err
	}

	crit, err := cmd.Criterion.parse()
	if err != nil {
		return nil, err
	}

	b, err := badge.NewBadge(badge.NewBadgeParams{
		ID:          h.ids.GenerateID(),
		Name:        cmd.Name,
		Description: cmd.Description,
		Icon:        cmd.Icon,
		Criterion:   crit,
	})
	if err != nil {
		return nil, err
	}

	if err := h.catalogue.Create(ctx, b); err != nil {
		return nil, fmt.Errorf("create_badge: %w", err)
	}

	h.log.Info("badge created",
		logger.BadgeID(b.ID),
		zap.String("criterion", string(b.Criterion.Type())),
	)
	return b, nil
}

// HandleUpdate updates a badge. A criterion change on a held badge is refused
// with badge.ErrCriterionFrozen and nothing is written.
func (h *BadgeCatalogueHandler) HandleUpdate(ctx context.Context, cmd UpdateBadgeCommand) (*badge.Badge, error) {
	if err := access.Require(h.authz, cmd.Actor); err != nil {
		return nil, err
	}
	if cmd.BadgeID == "" {
		return nil, invalid("UpdateBadge", "badge_id is required")
	}

	b, err := h.catalogue.GetByID(ctx, cmd.BadgeID)
	if err != nil {
		return nil, fmt.Errorf("update_badge: %w", err)
	}

	if err := b.UpdateDetails(cmd.Name, cmd.Description, cmd.Icon); err != nil {
		return nil, err
	}

	if cmd.Criterion != nil {
		crit, err := cmd.Criterion.parse()
		if err != nil {
			return nil, err
		}
		held, err := h.catalogue.IsHeld(ctx, b.ID)
		if err != nil {
			return nil, fmt.Errorf("update_badge: %w", err)
		}
		if err := b.ChangeCriterion(crit, held); err != nil {
			return nil, err
		}
	}

	if err := h.catalogue.Update(ctx, b); err != nil {
		return nil, fmt.Errorf("update_badge: %w", err)
	}

	h.log.Info("badge updated", logger.BadgeID(b.ID), logger.ActorID(cmd.Actor.ID))
	return b, nil
}

// HandleDelete deletes an unheld badge.
func (h *BadgeCatalogueHandler) HandleDelete(ctx context.Context, cmd DeleteBadgeCommand) error {
	if err := access.Require(h.authz, cmd.Actor); err != nil {
		return err
	}
	if cmd.BadgeID == "" {
		return invalid("DeleteBadge", "badge_id is required")
	}

	held, err := h.catalogue.IsHeld(ctx, cmd.BadgeID)
	if err != nil {
		return fmt.Errorf("delete_badge: %w", err)
	}
	if held {
		return badge.ErrBadgeHeld
	}

	if err := h.catalogue.Delete(ctx, cmd.BadgeID); err != nil {
		return fmt.Errorf("delete_badge: %w", err)
	}

	h.log.Info("badge deleted", logger.BadgeID(cmd.BadgeID), logger.ActorID(cmd.Actor.ID))
	return nil
}
