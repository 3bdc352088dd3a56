package command

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/access"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TEMPLATE COMMANDS
// Instructor-only management of process and project templates.
// ══════════════════════════════════════════════════════════════════════════════

// PhaseInput describes one phase of a process template.
type PhaseInput struct {
	Name  string
	Order int
}

// SaveProcessTemplateCommand creates a template (empty TemplateID) or
// replaces the name and phases of an existing one.
type SaveProcessTemplateCommand struct {
	Actor      access.Actor
	TemplateID string
	Name       string
	Phases     []PhaseInput
}

// DeleteProcessTemplateCommand removes a non-default template.
type DeleteProcessTemplateCommand struct {
	Actor      access.Actor
	TemplateID string
}

// SetDefaultWorkflowCommand makes a template the single default.
type SetDefaultWorkflowCommand struct {
	Actor      access.Actor
	TemplateID string
}

// SetDefaultWorkflowResult contains the outcome.
type SetDefaultWorkflowResult struct {
	DefaultID  string
	PreviousID string
}

// CreateProjectTemplateCommand creates a flat-step project template.
type CreateProjectTemplateCommand struct {
	Actor       access.Actor
	Name        string
	Description string
	Station     string
	StepTitles  []string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// TemplateHandler handles the template commands.
type TemplateHandler struct {
	processTemplates workflow.Repository
	projectTemplates workflow.ProjectTemplateRepository
	authz            access.Authorizer
	ids              shared.IDGenerator
	events           shared.EventPublisher
	log              *zap.Logger
}

// NewTemplateHandler creates a new TemplateHandler.
func NewTemplateHandler(
	processTemplates workflow.Repository,
	projectTemplates workflow.ProjectTemplateRepository,
	authz access.Authorizer,
	ids shared.IDGenerator,
	events shared.EventPublisher,
	log *zap.Logger,
) *TemplateHandler {
	return &TemplateHandler{
		processTemplates: processTemplates,
		projectTemplates: projectTemplates,
		authz:            authz,
		ids:              ids,
		events:           events,
		log:              logger.OrNop(log).With(logger.Component("templates")),
	}
}

// HandleSaveProcess creates or updates a process template.
func (h *TemplateHandler) HandleSaveProcess(ctx context.Context, cmd SaveProcessTemplateCommand) (*workflow.ProcessTemplate, error) {
	if err := access.Require(h.authz, cmd.Actor); err != nil {
		return nil, err
	}

	phases := make([]workflow.Phase, len(cmd.Phases))
	for i, p := range cmd.Phases {
		phases[i] = workflow.Phase{ID: h.ids.GenerateID(), Name: p.Name, Order: p.Order}
	}

	if cmd.TemplateID == "" {
		t, err := workflow.NewProcessTemplate(workflow.NewProcessTemplateParams{
			ID:     h.ids.GenerateID(),
			Name:   cmd.Name,
			Phases: phases,
		})
		if err != nil {
			return nil, err
		}
		if err := h.processTemplates.Create(ctx, t); err != nil {
			return nil, fmt.Errorf("create_process_template: %w", err)
		}
		h.log.Info("process template created", logger.TemplateID(t.ID), logger.ActorID(cmd.Actor.ID))
		return t, nil
	}

	t, err := h.processTemplates.GetByID(ctx, cmd.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("update_process_template: %w", err)
	}
	if err := t.Rename(cmd.Name); err != nil {
		return nil, err
	}
	if err := t.SetPhases(phases); err != nil {
		return nil, err
	}
	if err := h.processTemplates.Update(ctx, t); err != nil {
		return nil, fmt.Errorf("update_process_template: %w", err)
	}

	h.log.Info("process template updated", logger.TemplateID(t.ID), logger.ActorID(cmd.Actor.ID))
	return t, nil
}

// HandleDeleteProcess deletes a process template. The default template is
// refused with workflow.ErrDeleteDefault.
func (h *TemplateHandler) HandleDeleteProcess(ctx context.Context, cmd DeleteProcessTemplateCommand) error {
	if err := access.Require(h.authz, cmd.Actor); err != nil {
		return err
	}
	if cmd.TemplateID == "" {
		return invalid("DeleteProcessTemplate", "template_id is required")
	}

	t, err := h.processTemplates.GetByID(ctx, cmd.TemplateID)
	if err != nil {
		return fmt.Errorf("delete_process_template: %w", err)
	}
	if t.IsDefault {
		return workflow.ErrDeleteDefault
	}

	if err := h.processTemplates.Delete(ctx, t.ID); err != nil {
		return fmt.Errorf("delete_process_template: %w", err)
	}

	h.log.Info("process template deleted", logger.TemplateID(t.ID), logger.ActorID(cmd.Actor.ID))
	return nil
}

// HandleSetDefault switches the default template. The repository performs the
// switch atomically; on error the previous default stays in place.
func (h *TemplateHandler) HandleSetDefault(ctx context.Context, cmd SetDefaultWorkflowCommand) (*SetDefaultWorkflowResult, error) {
	if err := access.Require(h.authz, cmd.Actor); err != nil {
		return nil, err
	}
	if cmd.TemplateID == "" {
		return nil, invalid("SetDefaultWorkflow", "template_id is required")
	}

	previous, err := h.processTemplates.SetDefault(ctx, cmd.TemplateID)
	if err != nil {
		h.log.Warn("default workflow switch failed",
			logger.TemplateID(cmd.TemplateID),
			zap.Error(err),
		)
		return nil, fmt.Errorf("set_default_workflow: %w", err)
	}

	if previous != cmd.TemplateID {
		h.log.Info("default workflow changed",
			logger.TemplateID(cmd.TemplateID),
			zap.String("previous_id", previous),
			logger.ActorID(cmd.Actor.ID),
		)
		publish(h.events, h.log, shared.NewDefaultWorkflowChangedEvent(cmd.TemplateID, previous))
	}

	return &SetDefaultWorkflowResult{DefaultID: cmd.TemplateID, PreviousID: previous}, nil
}

// HandleCreateProject creates a project template.
func (h *TemplateHandler) HandleCreateProject(ctx context.Context, cmd CreateProjectTemplateCommand) (*workflow.ProjectTemplate, error) {
	if err := access.Require(h.authz, cmd.Actor); err != nil {
		return nil, err
	}

	t, err := workflow.NewProjectTemplate(h.ids.GenerateID(), cmd.Name, cmd.Station, cmd.StepTitles)
	if err != nil {
		return nil, err
	}
	t.Description = cmd.Description

	if err := h.projectTemplates.Create(ctx, t); err != nil {
		return nil, fmt.Errorf("create_project_template: %w", err)
	}

	h.log.Info("project template created",
		logger.TemplateID(t.ID),
		zap.Int("steps", len(t.StepTitles)),
	)
	return t, nil
}
