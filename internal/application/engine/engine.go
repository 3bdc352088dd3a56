// Package engine assembles the command, query and saga handlers around one
// event bus. A host process that receives student and instructor actions
// builds an Engine once and calls its handlers; the worker only needs the
// badge awarder and does not build one.
package engine

import (
	"errors"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/application/command"
	"github.com/alem-hub/alem-missions/internal/application/eventhandler"
	"github.com/alem-hub/alem-missions/internal/application/query"
	"github.com/alem-hub/alem-missions/internal/application/saga"
	"github.com/alem-hub/alem-missions/internal/domain/access"
	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// Bus is implemented by *messaging.InMemoryEventBus.
type Bus interface {
	shared.EventPublisher
	shared.EventSubscriber
}

// Deps are the stores and adapters the engine runs on.
type Deps struct {
	Projects         project.Repository
	ProcessTemplates workflow.Repository
	ProjectTemplates workflow.ProjectTemplateRepository
	Catalogue        badge.CatalogueRepository
	StudentBadges    badge.StudentBadgeRepository

	// BadgeCache is optional. When set it is kept current from badge.earned.
	BadgeCache badge.StudentBadgeCache

	Sink notification.Sink
	Bus  Bus
	IDs  shared.IDGenerator

	// StaffIDs act as instructors regardless of role and receive the
	// new-submission notification (config.AccessConfig.StaffIDs).
	StaffIDs []string

	Logger *zap.Logger
}

func (d Deps) validate() error {
	switch {
	case d.Projects == nil:
		return errors.New("engine: projects repository is required")
	case d.ProcessTemplates == nil || d.ProjectTemplates == nil:
		return errors.New("engine: template repositories are required")
	case d.Catalogue == nil || d.StudentBadges == nil:
		return errors.New("engine: badge repositories are required")
	case d.Sink == nil:
		return errors.New("engine: notification sink is required")
	case d.Bus == nil:
		return errors.New("engine: event bus is required")
	case d.IDs == nil:
		return errors.New("engine: id generator is required")
	}
	return nil
}

// Engine exposes every operation of the mission lifecycle.
type Engine struct {
	// Student commands
	Plan            *command.PlanProjectHandler
	Steps           *command.StepLedgerHandler
	Transition      *command.TransitionProjectHandler
	AttachMedia     *command.AttachMediaHandler
	ReplaceWorkflow *command.ReplaceWorkflowHandler

	// Instructor commands
	Templates *command.TemplateHandler
	Badges    *command.BadgeCatalogueHandler
	Review    *saga.ReviewFlow
	Awarder   *saga.BadgeAwarder

	// Queries
	Board           *query.GetProjectBoardHandler
	StudentProjects *query.ListStudentProjectsHandler
	ReviewQueue     *query.GetReviewQueueHandler
	Workflows       *query.ListWorkflowsHandler
	BadgeShelf      *query.GetBadgeShelfHandler
}

// New builds the handlers and subscribes the event handlers to the bus:
// reviewer notification on project.submitted when staff are configured, and
// the badge cache refresh on badge.earned when a cache is given.
func New(deps Deps) (*Engine, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	log := logger.OrNop(deps.Logger)
	authz := access.NewRoleAuthorizer(deps.StaffIDs...)

	// The cache is refreshed by the badge.earned subscription below.
	awarder := saga.NewBadgeAwarder(deps.Projects, deps.Catalogue, deps.StudentBadges, nil, deps.Sink, deps.Bus, log)

	e := &Engine{
		Plan:            command.NewPlanProjectHandler(deps.Projects, deps.ProcessTemplates, deps.ProjectTemplates, deps.IDs, deps.Bus, log),
		Steps:           command.NewStepLedgerHandler(deps.Projects, deps.IDs, deps.Bus, log),
		Transition:      command.NewTransitionProjectHandler(deps.Projects, deps.Bus, log),
		AttachMedia:     command.NewAttachMediaHandler(deps.Projects, log),
		ReplaceWorkflow: command.NewReplaceWorkflowHandler(deps.Projects, deps.ProcessTemplates, deps.IDs, deps.Bus, log),

		Templates: command.NewTemplateHandler(deps.ProcessTemplates, deps.ProjectTemplates, authz, deps.IDs, deps.Bus, log),
		Badges:    command.NewBadgeCatalogueHandler(deps.Catalogue, authz, deps.IDs, log),
		Review:    saga.NewReviewFlow(deps.Projects, authz, deps.Sink, awarder, deps.Bus, saga.DefaultReviewFlowConfig(), log),
		Awarder:   awarder,

		Board:           query.NewGetProjectBoardHandler(deps.Projects),
		StudentProjects: query.NewListStudentProjectsHandler(deps.Projects),
		ReviewQueue:     query.NewGetReviewQueueHandler(deps.Projects),
		Workflows:       query.NewListWorkflowsHandler(deps.ProcessTemplates),
		BadgeShelf:      query.NewGetBadgeShelfHandler(deps.Projects, deps.Catalogue, deps.StudentBadges, deps.BadgeCache, log),
	}

	if len(deps.StaffIDs) > 0 {
		submitted := eventhandler.NewOnProjectSubmittedHandler(deps.Projects, deps.Sink, deps.StaffIDs, log)
		if err := deps.Bus.Subscribe(shared.EventProjectSubmitted, submitted.Handle); err != nil {
			return nil, err
		}
	}
	if deps.BadgeCache != nil {
		earned := eventhandler.NewOnBadgeEarnedHandler(deps.BadgeCache, 0, log)
		if err := deps.Bus.Subscribe(shared.EventBadgeEarned, earned.Handle); err != nil {
			return nil, err
		}
	}

	log.Info("engine assembled",
		zap.Int("staff", len(deps.StaffIDs)),
		zap.Bool("badge_cache", deps.BadgeCache != nil),
	)
	return e, nil
}
