package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSITION PROJECT COMMAND
// Student-driven state machine transitions. Instructor decisions go through
// the review flow saga instead.
// ══════════════════════════════════════════════════════════════════════════════

// TransitionAction names a student-driven transition.
type TransitionAction string

const (
	ActionConfirmPlan   TransitionAction = "confirm_plan"
	ActionSubmit        TransitionAction = "submit"
	ActionStartTesting  TransitionAction = "start_testing"
	ActionMarkDelivered TransitionAction = "mark_delivered"
	ActionReopen        TransitionAction = "reopen"
)

// TransitionProjectCommand requests a transition.
type TransitionProjectCommand struct {
	ProjectID string
	ActorID   string
	Action    TransitionAction
}

// Validate validates the command.
func (c TransitionProjectCommand) Validate() error {
	if c.ProjectID == "" || c.ActorID == "" {
		return invalid("TransitionProject", "project_id and actor_id are required")
	}
	switch c.Action {
	case ActionConfirmPlan, ActionSubmit, ActionStartTesting, ActionMarkDelivered, ActionReopen:
		return nil
	default:
		return invalid("TransitionProject", "unknown action "+string(c.Action))
	}
}

// TransitionProjectResult contains the outcome.
type TransitionProjectResult struct {
	ProjectID string
	From      project.Status
	To        project.Status
}

// TransitionProjectHandler handles the TransitionProjectCommand.
type TransitionProjectHandler struct {
	store projectStore
	log   *zap.Logger
}

// NewTransitionProjectHandler creates a new TransitionProjectHandler.
func NewTransitionProjectHandler(projects project.Repository, events shared.EventPublisher, log *zap.Logger) *TransitionProjectHandler {
	log = logger.OrNop(log).With(logger.Component("transition_project"))
	return &TransitionProjectHandler{
		store: newProjectStore(projects, events, log),
		log:   log,
	}
}

// Handle executes the transition. Unmet guards come back as PreconditionNotMet
// errors carrying the message to show the student.
func (h *TransitionProjectHandler) Handle(ctx context.Context, cmd TransitionProjectCommand) (*TransitionProjectResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	op := string(cmd.Action)
	p, err := h.store.loadOwned(ctx, op, cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return nil, err
	}
	from := p.Status

	switch cmd.Action {
	case ActionConfirmPlan:
		err = p.ConfirmPlan(cmd.ActorID)
	case ActionSubmit:
		err = p.Submit(cmd.ActorID)
	case ActionStartTesting:
		err = p.StartTesting(cmd.ActorID)
	case ActionMarkDelivered:
		err = p.MarkDelivered(cmd.ActorID)
	case ActionReopen:
		err = p.Reopen(cmd.ActorID)
	}
	if err != nil {
		h.log.Debug("transition refused",
			logger.ProjectID(p.ID),
			logger.Operation(op),
			logger.Status(string(from)),
			zap.Error(err),
		)
		return nil, err
	}

	if err := h.store.save(ctx, op, p); err != nil {
		return nil, err
	}

	h.log.Info("project status changed",
		logger.ProjectID(p.ID),
		logger.StudentID(p.StudentID),
		zap.String("from", string(from)),
		zap.String("to", string(p.Status)),
	)

	return &TransitionProjectResult{ProjectID: p.ID, From: from, To: p.Status}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// ATTACH MEDIA COMMAND
// Presentation metadata; allowed in every status including published.
// ══════════════════════════════════════════════════════════════════════════════

// AttachMediaCommand adds media links to a project.
type AttachMediaCommand struct {
	ProjectID string
	ActorID   string
	URLs      []string
}

// AttachMediaHandler handles the AttachMediaCommand.
type AttachMediaHandler struct {
	store projectStore
}

// NewAttachMediaHandler creates a new AttachMediaHandler.
func NewAttachMediaHandler(projects project.Repository, log *zap.Logger) *AttachMediaHandler {
	return &AttachMediaHandler{store: newProjectStore(projects, nil, log)}
}

// Handle attaches the media and returns the full list.
func (h *AttachMediaHandler) Handle(ctx context.Context, cmd AttachMediaCommand) ([]string, error) {
	if cmd.ProjectID == "" || len(cmd.URLs) == 0 {
		return nil, invalid("AttachMedia", "project_id and at least one url are required")
	}

	p, err := h.store.loadOwned(ctx, "attach_media", cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	p.AttachMedia(cmd.URLs...)

	if err := h.store.save(ctx, "attach_media", p); err != nil {
		return nil, err
	}
	return p.MediaURLs, nil
}
