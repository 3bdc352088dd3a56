// Package saga contains business processes that orchestrate several
// domain operations and external effects in a fixed order.
package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BADGE AWARD FLOW
// Flow: Load Published Projects → Load Catalogue & Held Badges → Evaluate →
//
//	Persist Awards → Attribute To Project → Notify → Publish Events → Refresh Cache
//
// The evaluation is idempotent, so the flow is safe to re-run for the same
// student: a second run awards nothing.
// ══════════════════════════════════════════════════════════════════════════════

// BadgeAwardInput contains data needed to award badges.
type BadgeAwardInput struct {
	// StudentID - the student to evaluate.
	StudentID string

	// Project - the project whose publication triggered the run. It is
	// counted even if the published list read does not include it yet, and
	// new badges are attributed to it. Nil for reconciliation runs, which
	// attribute to the most recently updated published project.
	Project *project.StudentProject
}

// BadgeAwardResult contains the outcome of an award run.
type BadgeAwardResult struct {
	StudentID string

	// Awarded - badges newly added to the student's set by this run.
	Awarded []*badge.Badge

	NotificationsSent int
	ProcessedAt       time.Time
}

// AwardedIDs returns the IDs of the awarded badges.
func (r *BadgeAwardResult) AwardedIDs() []string {
	ids := make([]string, len(r.Awarded))
	for i, b := range r.Awarded {
		ids[i] = b.ID
	}
	return ids
}

// BadgeAwardStep represents a step in the award flow.
type BadgeAwardStep string

const (
	StepLoadPublished    BadgeAwardStep = "load_published"
	StepLoadCatalogue    BadgeAwardStep = "load_catalogue"
	StepEvaluate         BadgeAwardStep = "evaluate"
	StepPersistAwards    BadgeAwardStep = "persist_awards"
	StepAttributeAwards  BadgeAwardStep = "attribute_awards"
	StepNotifyAwards     BadgeAwardStep = "notify_awards"
	StepPublishAwards    BadgeAwardStep = "publish_awards"
	StepRefreshBadgeSets BadgeAwardStep = "refresh_cache"
)

// BadgeAwardError represents a failed award run.
type BadgeAwardError struct {
	Step      BadgeAwardStep
	StudentID string
	Cause     error
}

// Error implements the error interface.
func (e *BadgeAwardError) Error() string {
	return fmt.Sprintf("badge award failed at step '%s' for student %s: %v", e.Step, e.StudentID, e.Cause)
}

// Unwrap returns the underlying error.
func (e *BadgeAwardError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// BADGE AWARDER
// ══════════════════════════════════════════════════════════════════════════════

// BadgeAwarder runs the badge award flow.
type BadgeAwarder struct {
	projects      project.Repository
	catalogue     badge.CatalogueRepository
	studentBadges badge.StudentBadgeRepository
	cache         badge.StudentBadgeCache
	sink          notification.Sink
	events        shared.EventPublisher
	log           *zap.Logger
}

// NewBadgeAwarder creates a BadgeAwarder. cache, sink and events may be nil.
func NewBadgeAwarder(
	projects project.Repository,
	catalogue badge.CatalogueRepository,
	studentBadges badge.StudentBadgeRepository,
	cache badge.StudentBadgeCache,
	sink notification.Sink,
	events shared.EventPublisher,
	log *zap.Logger,
) *BadgeAwarder {
	return &BadgeAwarder{
		projects:      projects,
		catalogue:     catalogue,
		studentBadges: studentBadges,
		cache:         cache,
		sink:          sink,
		events:        events,
		log:           logger.OrNop(log).With(logger.Component("badge_award")),
	}
}

// Award evaluates the student's published projects against the catalogue and
// grants every badge earned but not yet held. Errors before the awards are
// persisted mean nothing was granted. Later steps never fail the run.
func (a *BadgeAwarder) Award(ctx context.Context, input BadgeAwardInput) (*BadgeAwardResult, error) {
	if input.StudentID == "" {
		return nil, shared.NewDomainError("saga", "AwardBadges", shared.ErrValidation, "student id is required")
	}

	fail := func(step BadgeAwardStep, err error) error {
		return &BadgeAwardError{Step: step, StudentID: input.StudentID, Cause: err}
	}

	// Step 1: Load published projects
	published, err := a.projects.ListPublishedByStudent(ctx, input.StudentID)
	if err != nil {
		return nil, fail(StepLoadPublished, err)
	}
	snapshots := snapshotsOf(published, input.Project)

	// Step 2: Load catalogue and held badges
	catalogue, err := a.catalogue.List(ctx)
	if err != nil {
		return nil, fail(StepLoadCatalogue, err)
	}
	held, err := a.studentBadges.GetBadgeIDs(ctx, input.StudentID)
	if err != nil {
		return nil, fail(StepLoadCatalogue, err)
	}

	// Step 3: Evaluate
	earned := badge.Evaluate(snapshots, catalogue, held)
	result := &BadgeAwardResult{StudentID: input.StudentID}
	if len(earned) == 0 {
		result.ProcessedAt = time.Now().UTC()
		return result, nil
	}

	// Step 4: Persist awards (set union, concurrent runs commute)
	added, err := a.studentBadges.AddBadges(ctx, input.StudentID, earned)
	if err != nil {
		return nil, fail(StepPersistAwards, err)
	}
	if len(added) == 0 {
		result.ProcessedAt = time.Now().UTC()
		return result, nil
	}

	byID := make(map[string]*badge.Badge, len(catalogue))
	for _, b := range catalogue {
		byID[b.ID] = b
	}
	for _, id := range added {
		if b, ok := byID[id]; ok {
			result.Awarded = append(result.Awarded, b)
		}
	}

	a.log.Info("badges awarded",
		logger.StudentID(input.StudentID),
		zap.Strings("badge_ids", added),
	)

	// Step 5: Attribute to the triggering project (non-critical)
	projectID := ""
	target := input.Project
	if target == nil {
		target = latestPublished(published)
	}
	if target != nil {
		projectID = target.ID
		if err := a.projects.AddEarnedBadges(ctx, projectID, added); err != nil {
			a.log.Warn("badge attribution failed",
				logger.ProjectID(projectID),
				zap.Strings("badge_ids", added),
				zap.Error(err),
			)
		}
	}

	// Step 6: Notify (non-critical)
	for _, b := range result.Awarded {
		if a.notify(ctx, notification.BadgeEarned(input.StudentID, projectID, b.Name)) {
			result.NotificationsSent++
		}
	}

	// Step 7: Publish events (non-critical)
	if a.events != nil {
		for _, b := range result.Awarded {
			if err := a.events.Publish(shared.NewBadgeEarnedEvent(input.StudentID, b.ID, b.Name, projectID)); err != nil {
				a.log.Warn("badge event publish failed", logger.BadgeID(b.ID), zap.Error(err))
			}
		}
	}

	// Step 8: Refresh cache (non-critical)
	if a.cache != nil {
		if err := a.cache.AddBadges(ctx, input.StudentID, added); err != nil {
			a.log.Warn("badge cache refresh failed", logger.StudentID(input.StudentID), zap.Error(err))
		}
	}

	result.ProcessedAt = time.Now().UTC()
	return result, nil
}

func (a *BadgeAwarder) notify(ctx context.Context, n notification.Notification) bool {
	if a.sink == nil {
		return false
	}
	if err := a.sink.Notify(ctx, n); err != nil {
		a.log.Warn("notification failed",
			logger.StudentID(n.RecipientID),
			zap.String("title", n.Title),
			zap.Error(err),
		)
		return false
	}
	return true
}

// snapshotsOf converts published projects to evaluator input, adding the
// triggering project when the read did not return it.
func snapshotsOf(published []*project.StudentProject, trigger *project.StudentProject) []badge.ProjectSnapshot {
	out := make([]badge.ProjectSnapshot, 0, len(published)+1)
	seen := make(map[string]struct{}, len(published))
	for _, p := range published {
		seen[p.ID] = struct{}{}
		out = append(out, snapshotOf(p))
	}
	if trigger != nil && trigger.Status == project.StatusPublished {
		if _, ok := seen[trigger.ID]; !ok {
			out = append(out, snapshotOf(trigger))
		}
	}
	return out
}

// latestPublished returns the published project updated last, ties broken by
// the greater ID, or nil.
func latestPublished(published []*project.StudentProject) *project.StudentProject {
	var latest *project.StudentProject
	for _, p := range published {
		if latest == nil || p.UpdatedAt.After(latest.UpdatedAt) ||
			(p.UpdatedAt.Equal(latest.UpdatedAt) && p.ID > latest.ID) {
			latest = p
		}
	}
	return latest
}

func snapshotOf(p *project.StudentProject) badge.ProjectSnapshot {
	return badge.ProjectSnapshot{ProjectID: p.ID, Station: p.Station, Skills: p.SkillsAcquired}
}
