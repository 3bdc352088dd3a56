package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REPLACE WORKFLOW COMMAND
// Switches a project to another process template. Destructive: the whole
// step list is replaced, so the caller must confirm. Steps carrying proofs
// are archived with the project write.
// ══════════════════════════════════════════════════════════════════════════════

// ReplaceWorkflowCommand contains the data to switch workflows.
type ReplaceWorkflowCommand struct {
	ProjectID         string
	ActorID           string
	ProcessTemplateID string

	// Confirmed must be true once the student accepted losing current steps.
	Confirmed bool
}

// Validate validates the command.
func (c ReplaceWorkflowCommand) Validate() error {
	if c.ProjectID == "" || c.ProcessTemplateID == "" {
		return invalid("ReplaceWorkflow", "project_id and process_template_id are required")
	}
	return nil
}

// ReplaceWorkflowResult contains the outcome.
type ReplaceWorkflowResult struct {
	ProjectID    string
	WorkflowID   string
	StepsRemoved int
	StepsCreated int

	// Archived lists the replaced steps that carried proofs.
	Archived []project.ArchivedStep
}

// ReplaceWorkflowHandler handles the ReplaceWorkflowCommand.
type ReplaceWorkflowHandler struct {
	store     projectStore
	templates workflow.Repository
	ids       shared.IDGenerator
	log       *zap.Logger
}

// NewReplaceWorkflowHandler creates a new ReplaceWorkflowHandler.
func NewReplaceWorkflowHandler(
	projects project.Repository,
	templates workflow.Repository,
	ids shared.IDGenerator,
	events shared.EventPublisher,
	log *zap.Logger,
) *ReplaceWorkflowHandler {
	log = logger.OrNop(log).With(logger.Component("replace_workflow"))
	return &ReplaceWorkflowHandler{
		store:     newProjectStore(projects, events, log),
		templates: templates,
		ids:       ids,
		log:       log,
	}
}

// Handle executes the replacement. Without confirmation it returns
// project.ErrConfirmationRequired and changes nothing.
func (h *ReplaceWorkflowHandler) Handle(ctx context.Context, cmd ReplaceWorkflowCommand) (*ReplaceWorkflowResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	p, err := h.store.loadOwned(ctx, "replace_workflow", cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	tmpl, err := h.templates.GetByID(ctx, cmd.ProcessTemplateID)
	if err != nil {
		return nil, fmt.Errorf("replace_workflow: %w", err)
	}

	removed := len(p.Steps)
	steps := project.ResolveSteps(tmpl, nil, h.ids)

	archived, err := p.ReplaceSteps(tmpl.ID, steps, cmd.Confirmed)
	if err != nil {
		return nil, err
	}

	if err := h.store.save(ctx, "replace_workflow", p); err != nil {
		return nil, err
	}

	h.log.Info("workflow replaced",
		logger.ProjectID(p.ID),
		logger.TemplateID(tmpl.ID),
		zap.Int("steps_removed", removed),
		zap.Int("steps_created", len(steps)),
		zap.Int("proofs_archived", len(archived)),
	)

	publish(h.store.events, h.log, shared.NewWorkflowReplacedEvent(p.ID, tmpl.ID, removed, len(steps), len(archived)))

	return &ReplaceWorkflowResult{
		ProjectID:    p.ID,
		WorkflowID:   tmpl.ID,
		StepsRemoved: removed,
		StepsCreated: len(steps),
		Archived:     archived,
	}, nil
}
