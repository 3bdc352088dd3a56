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
// PLAN PROJECT COMMAND
// Starts a new mission in planning. The initial steps come from a process
// template (preferred), the flat step list of a project template, or nothing.
// ══════════════════════════════════════════════════════════════════════════════

// PlanProjectCommand contains the data to start a project.
type PlanProjectCommand struct {
	// StudentID is the owner of the new project.
	StudentID string

	Title       string
	Description string

	// Station is the category. Falls back to the project template's station.
	Station string

	// Skills the project certifies once published.
	Skills []string

	// ProjectTemplateID optionally seeds description, station and flat steps.
	ProjectTemplateID string

	// ProcessTemplateID optionally selects a process template.
	ProcessTemplateID string

	// UseDefaultWorkflow applies the default process template when no
	// ProcessTemplateID is given. A missing default is not an error.
	UseDefaultWorkflow bool
}

// Validate validates the command.
func (c PlanProjectCommand) Validate() error {
	if c.StudentID == "" {
		return invalid("PlanProject", "student_id is required")
	}
	if shared.NormalizeTitle(c.Title) == "" {
		return invalid("PlanProject", "title is required")
	}
	return nil
}

// PlanProjectResult contains the created project.
type PlanProjectResult struct {
	Project *project.StudentProject

	// WorkflowApplied is the process template used, if any.
	WorkflowApplied string
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// PlanProjectHandler handles the PlanProjectCommand.
type PlanProjectHandler struct {
	projects         project.Repository
	processTemplates workflow.Repository
	projectTemplates workflow.ProjectTemplateRepository
	ids              shared.IDGenerator
	events           shared.EventPublisher
	log              *zap.Logger
}

// NewPlanProjectHandler creates a new PlanProjectHandler.
func NewPlanProjectHandler(
	projects project.Repository,
	processTemplates workflow.Repository,
	projectTemplates workflow.ProjectTemplateRepository,
	ids shared.IDGenerator,
	events shared.EventPublisher,
	log *zap.Logger,
) *PlanProjectHandler {
	return &PlanProjectHandler{
		projects:         projects,
		processTemplates: processTemplates,
		projectTemplates: projectTemplates,
		ids:              ids,
		events:           events,
		log:              logger.OrNop(log).With(logger.Component("plan_project")),
	}
}

// Handle executes the plan project command.
func (h *PlanProjectHandler) Handle(ctx context.Context, cmd PlanProjectCommand) (*PlanProjectResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var tmpl *workflow.ProjectTemplate
	if cmd.ProjectTemplateID != "" {
		t, err := h.projectTemplates.GetByID(ctx, cmd.ProjectTemplateID)
		if err != nil {
			return nil, fmt.Errorf("plan_project: %w", err)
		}
		tmpl = t
	}

	process, err := h.resolveProcess(ctx, cmd)
	if err != nil {
		return nil, err
	}

	params := project.NewProjectParams{
		ID:          h.ids.GenerateID(),
		StudentID:   cmd.StudentID,
		Title:       cmd.Title,
		Description: cmd.Description,
		Station:     cmd.Station,
		Skills:      cmd.Skills,
	}

	var titles []string
	if tmpl != nil {
		params.TemplateID = tmpl.ID
		titles = tmpl.StepTitles
		if params.Station == "" {
			params.Station = tmpl.Station
		}
		if params.Description == "" {
			params.Description = tmpl.Description
		}
	}
	if process != nil {
		params.WorkflowID = process.ID
	}
	params.Steps = project.ResolveSteps(process, titles, h.ids)

	p, err := project.NewProject(params)
	if err != nil {
		return nil, err
	}

	if err := h.projects.Create(ctx, p); err != nil {
		return nil, fmt.Errorf("plan_project: %w", err)
	}

	h.log.Info("project planned",
		logger.ProjectID(p.ID),
		logger.StudentID(p.StudentID),
		logger.TemplateID(p.TemplateID),
		zap.String("workflow_id", p.WorkflowID),
		zap.Int("steps", len(p.Steps)),
	)

	publish(h.events, h.log, shared.NewProjectPlannedEvent(p.ID, p.StudentID, p.WorkflowID, p.TemplateID, len(p.Steps)))

	return &PlanProjectResult{
		Project:         p,
		WorkflowApplied: params.WorkflowID,
	}, nil
}

// resolveProcess picks the process template for the command, or nil.
func (h *PlanProjectHandler) resolveProcess(ctx context.Context, cmd PlanProjectCommand) (*workflow.ProcessTemplate, error) {
	if cmd.ProcessTemplateID != "" {
		t, err := h.processTemplates.GetByID(ctx, cmd.ProcessTemplateID)
		if err != nil {
			return nil, fmt.Errorf("plan_project: %w", err)
		}
		return t, nil
	}

	if !cmd.UseDefaultWorkflow {
		return nil, nil
	}

	t, err := h.processTemplates.GetDefault(ctx)
	if shared.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("plan_project: %w", err)
	}
	return t, nil
}
