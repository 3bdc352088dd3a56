package saga

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/access"
	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW FLOW SAGA
// Instructor decision on a submitted project.
// Flow: Authorize → Load Project → Apply Decision & Persist → Notify Student →
//
//	(approve only) Award Badges
//
// Authorization, loading and persisting are critical: a failure there stops
// the flow with nothing changed. Notifications and badges run after the
// decision is stored and never revert it.
// ══════════════════════════════════════════════════════════════════════════════

// Decision is the instructor's verdict.
type Decision string

const (
	DecisionApprove        Decision = "approve"
	DecisionRequestChanges Decision = "request_changes"
)

// ReviewInput contains data needed to review a project.
type ReviewInput struct {
	ProjectID string

	// Actor - the reviewing instructor.
	Actor access.Actor

	Decision Decision

	// Feedback - shown to the student with the decision.
	Feedback string
}

// Validate checks if the input is valid.
func (i ReviewInput) Validate() error {
	if i.ProjectID == "" {
		return shared.NewDomainError("saga", "Review", shared.ErrValidation, "project id is required")
	}
	if i.Decision != DecisionApprove && i.Decision != DecisionRequestChanges {
		return shared.NewDomainError("saga", "Review", shared.ErrValidation, fmt.Sprintf("unknown decision %q", i.Decision))
	}
	return nil
}

// ReviewResult contains the outcome of a review.
type ReviewResult struct {
	ProjectID string
	StudentID string

	// Status - the stored status after the decision.
	Status project.Status

	// Notified - the student notification was accepted by the sink.
	Notified bool

	// AwardedBadgeIDs - badges granted because of this approval.
	AwardedBadgeIDs []string

	// BadgeError - set when the badge step failed. The approval stands;
	// the reconciliation job picks the student up later.
	BadgeError error

	ProcessedAt time.Time
}

// ReviewFlowStep represents a step in the review flow.
type ReviewFlowStep string

const (
	StepAuthorize      ReviewFlowStep = "authorize"
	StepLoadProject    ReviewFlowStep = "load_project"
	StepApplyDecision  ReviewFlowStep = "apply_decision"
	StepNotifyStudent  ReviewFlowStep = "notify_student"
	StepAwardBadges    ReviewFlowStep = "award_badges"
	StepReviewComplete ReviewFlowStep = "complete"
)

// ReviewFlowState tracks the current state of the review flow saga.
type ReviewFlowState struct {
	CurrentStep ReviewFlowStep
	Input       ReviewInput
	Project     *project.StudentProject
	StartedAt   time.Time
	FailedStep  ReviewFlowStep
	Error       error
}

// ReviewFlowError represents an error during the review flow.
type ReviewFlowError struct {
	Step      ReviewFlowStep
	ProjectID string
	Cause     error
	Message   string
}

// Error implements the error interface.
func (e *ReviewFlowError) Error() string {
	return e.Message
}

// Unwrap returns the underlying error.
func (e *ReviewFlowError) Unwrap() error {
	return e.Cause
}

// ══════════════════════════════════════════════════════════════════════════════
// REVIEW FLOW SAGA IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// ReviewFlowConfig contains configuration for the review flow.
type ReviewFlowConfig struct {
	EnableNotifications bool
	EnableBadges        bool
}

// DefaultReviewFlowConfig returns default configuration.
func DefaultReviewFlowConfig() ReviewFlowConfig {
	return ReviewFlowConfig{
		EnableNotifications: true,
		EnableBadges:        true,
	}
}

// ReviewFlow coordinates the instructor review.
type ReviewFlow struct {
	projects project.Repository
	authz    access.Authorizer
	sink     notification.Sink
	awarder  *BadgeAwarder
	events   shared.EventPublisher
	config   ReviewFlowConfig
	log      *zap.Logger
}

// NewReviewFlow creates a new review flow. sink, awarder and events may be nil.
func NewReviewFlow(
	projects project.Repository,
	authz access.Authorizer,
	sink notification.Sink,
	awarder *BadgeAwarder,
	events shared.EventPublisher,
	config ReviewFlowConfig,
	log *zap.Logger,
) *ReviewFlow {
	return &ReviewFlow{
		projects: projects,
		authz:    authz,
		sink:     sink,
		awarder:  awarder,
		events:   events,
		config:   config,
		log:      logger.OrNop(log).With(logger.Component("review_flow")),
	}
}

// Execute runs the review.
func (f *ReviewFlow) Execute(ctx context.Context, input ReviewInput) (*ReviewResult, error) {
	state := &ReviewFlowState{
		CurrentStep: StepAuthorize,
		Input:       input,
		StartedAt:   time.Now().UTC(),
	}

	if err := input.Validate(); err != nil {
		return nil, f.fail(state, err)
	}

	// Step 1: Authorize
	if err := access.Require(f.authz, input.Actor); err != nil {
		return nil, f.fail(state, err)
	}

	// Step 2: Load project
	state.CurrentStep = StepLoadProject
	if err := f.stepLoadProject(ctx, state); err != nil {
		return nil, f.fail(state, err)
	}

	// Step 3: Apply decision and persist
	state.CurrentStep = StepApplyDecision
	if err := f.stepApplyDecision(ctx, state); err != nil {
		return nil, f.fail(state, err)
	}

	p := state.Project
	result := &ReviewResult{
		ProjectID: p.ID,
		StudentID: p.StudentID,
		Status:    p.Status,
	}

	// Step 4: Notify student (non-critical)
	state.CurrentStep = StepNotifyStudent
	result.Notified = f.stepNotifyStudent(ctx, state)

	// Step 5: Award badges (non-critical, approve only)
	if input.Decision == DecisionApprove && f.config.EnableBadges && f.awarder != nil {
		state.CurrentStep = StepAwardBadges
		award, err := f.awarder.Award(ctx, BadgeAwardInput{StudentID: p.StudentID, Project: p})
		if err != nil {
			result.BadgeError = err
			f.log.Error("badge step failed after approval",
				logger.ProjectID(p.ID),
				logger.StudentID(p.StudentID),
				zap.Error(err),
			)
		} else {
			result.AwardedBadgeIDs = award.AwardedIDs()
		}
	}

	state.CurrentStep = StepReviewComplete
	result.ProcessedAt = time.Now().UTC()

	f.log.Info("project reviewed",
		logger.ProjectID(p.ID),
		logger.ActorID(input.Actor.ID),
		zap.String("decision", string(input.Decision)),
		zap.Strings("badges", result.AwardedBadgeIDs),
		logger.Latency(result.ProcessedAt.Sub(state.StartedAt)),
	)

	return result, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// SAGA STEPS
// ══════════════════════════════════════════════════════════════════════════════

func (f *ReviewFlow) stepLoadProject(ctx context.Context, state *ReviewFlowState) error {
	p, err := f.projects.GetByID(ctx, state.Input.ProjectID)
	if err != nil {
		return err
	}
	if !p.Status.AwaitingReview() {
		return shared.Precondition("review", "Review", fmt.Sprintf("only submitted projects can be reviewed, this one is %s", p.Status))
	}

	state.Project = p
	return nil
}

func (f *ReviewFlow) stepApplyDecision(ctx context.Context, state *ReviewFlowState) error {
	p := state.Project
	in := state.Input

	var err error
	switch in.Decision {
	case DecisionApprove:
		err = p.Approve(in.Actor.ID, in.Feedback)
	case DecisionRequestChanges:
		err = p.RequestChanges(in.Actor.ID, in.Feedback)
	}
	if err != nil {
		return err
	}

	changes := p.PendingStatusChanges()
	if err := f.projects.Update(ctx, p); err != nil {
		if !shared.IsPersistenceFailure(err) {
			err = shared.Persistence("review", "Review", err)
		}
		return err
	}
	p.MarkPersisted()

	if f.events != nil {
		for _, c := range changes {
			evt := shared.NewProjectStatusChangedEvent(p.ID, p.StudentID, string(c.From), string(c.To), c.ActorID)
			if err := f.events.Publish(evt); err != nil {
				f.log.Warn("event publish failed", logger.ProjectID(p.ID), zap.Error(err))
			}
		}
	}
	return nil
}

func (f *ReviewFlow) stepNotifyStudent(ctx context.Context, state *ReviewFlowState) bool {
	if !f.config.EnableNotifications || f.sink == nil {
		return false
	}

	p := state.Project
	var n notification.Notification
	if state.Input.Decision == DecisionApprove {
		n = notification.ProjectPublished(p.StudentID, p.ID, p.Title, state.Input.Feedback)
	} else {
		n = notification.ChangesRequested(p.StudentID, p.ID, p.Title, state.Input.Feedback)
	}

	if err := f.sink.Notify(ctx, n); err != nil {
		f.log.Warn("student notification failed",
			logger.ProjectID(p.ID),
			logger.StudentID(p.StudentID),
			zap.Error(err),
		)
		return false
	}
	return true
}

// fail records the failed step and wraps the error.
func (f *ReviewFlow) fail(state *ReviewFlowState, err error) error {
	state.FailedStep = state.CurrentStep
	state.Error = err

	f.log.Warn("review failed",
		logger.ProjectID(state.Input.ProjectID),
		zap.String("step", string(state.FailedStep)),
		zap.Error(err),
	)

	return &ReviewFlowError{
		Step:      state.FailedStep,
		ProjectID: state.Input.ProjectID,
		Cause:     err,
		Message:   fmt.Sprintf("review flow failed at step '%s': %v", state.FailedStep, err),
	}
}
