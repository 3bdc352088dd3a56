package command

import (
	"context"

	"go.uber.org/zap"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// STEP LEDGER COMMANDS
// Add and delete steps while planning; move and reopen steps while building.
// ══════════════════════════════════════════════════════════════════════════════

// AddStepCommand appends a step during planning.
type AddStepCommand struct {
	ProjectID string
	ActorID   string
	Title     string
}

// DeleteStepCommand removes a step during planning.
type DeleteStepCommand struct {
	ProjectID string
	ActorID   string
	StepID    string
}

// MoveStepCommand moves a step between columns during building.
type MoveStepCommand struct {
	ProjectID string
	ActorID   string
	StepID    string
	To        project.StepStatus

	// ProofURL is the artifact reference uploaded by the caller.
	ProofURL string

	// Guided is set by the step-by-step wizard.
	Guided bool
}

// Validate validates the command.
func (c MoveStepCommand) Validate() error {
	if c.ProjectID == "" || c.StepID == "" {
		return invalid("MoveStep", "project_id and step_id are required")
	}
	if !c.To.IsValid() {
		return invalid("MoveStep", "unknown step status")
	}
	return nil
}

// ReopenStepCommand returns a finished step to doing.
type ReopenStepCommand struct {
	ProjectID string
	ActorID   string
	StepID    string
}

// StepResult contains the outcome of a ledger command.
type StepResult struct {
	ProjectID string

	// Step is the affected step after the command.
	Step project.ProjectStep

	// ProofRequired is set when a move to done was deferred because no proof
	// was attached. Nothing was written; the caller collects a proof and retries.
	ProofRequired bool

	// AllDone reports whether every step is now finished.
	AllDone bool
}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// StepLedgerHandler handles the step commands.
type StepLedgerHandler struct {
	store projectStore
	ids   shared.IDGenerator
	log   *zap.Logger
}

// NewStepLedgerHandler creates a new StepLedgerHandler.
func NewStepLedgerHandler(
	projects project.Repository,
	ids shared.IDGenerator,
	events shared.EventPublisher,
	log *zap.Logger,
) *StepLedgerHandler {
	log = logger.OrNop(log).With(logger.Component("step_ledger"))
	return &StepLedgerHandler{
		store: newProjectStore(projects, events, log),
		ids:   ids,
		log:   log,
	}
}

// HandleAdd appends a step.
func (h *StepLedgerHandler) HandleAdd(ctx context.Context, cmd AddStepCommand) (*StepResult, error) {
	if cmd.ProjectID == "" {
		return nil, invalid("AddStep", "project_id is required")
	}

	p, err := h.store.loadOwned(ctx, "add_step", cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	step, err := p.AddStep(h.ids.GenerateID(), cmd.Title)
	if err != nil {
		return nil, err
	}

	if err := h.store.save(ctx, "add_step", p); err != nil {
		return nil, err
	}

	return &StepResult{ProjectID: p.ID, Step: step, AllDone: p.AllDone()}, nil
}

// HandleDelete removes a step.
func (h *StepLedgerHandler) HandleDelete(ctx context.Context, cmd DeleteStepCommand) (*StepResult, error) {
	if cmd.ProjectID == "" || cmd.StepID == "" {
		return nil, invalid("DeleteStep", "project_id and step_id are required")
	}

	p, err := h.store.loadOwned(ctx, "delete_step", cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	step, err := p.Step(cmd.StepID)
	if err != nil {
		return nil, err
	}
	if err := p.DeleteStep(cmd.StepID); err != nil {
		return nil, err
	}

	if err := h.store.save(ctx, "delete_step", p); err != nil {
		return nil, err
	}

	return &StepResult{ProjectID: p.ID, Step: step, AllDone: p.AllDone()}, nil
}

// HandleMove moves a step. A missing proof is reported through
// StepResult.ProofRequired rather than as an error.
func (h *StepLedgerHandler) HandleMove(ctx context.Context, cmd MoveStepCommand) (*StepResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	p, err := h.store.loadOwned(ctx, "move_step", cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	step, err := p.MoveStep(project.StepMove{
		StepID:   cmd.StepID,
		To:       cmd.To,
		ProofURL: cmd.ProofURL,
		Guided:   cmd.Guided,
	})
	if shared.IsProofRequired(err) {
		current, _ := p.Step(cmd.StepID)
		h.log.Debug("step completion deferred until proof is attached",
			logger.ProjectID(p.ID),
			logger.StepID(cmd.StepID),
		)
		return &StepResult{ProjectID: p.ID, Step: current, ProofRequired: true, AllDone: p.AllDone()}, nil
	}
	if err != nil {
		return nil, err
	}

	if err := h.store.save(ctx, "move_step", p); err != nil {
		return nil, err
	}

	if step.IsDone() {
		publish(h.store.events, h.log, shared.NewStepCompletedEvent(p.ID, step.ID, step.ProofURL, cmd.Guided))
	}

	return &StepResult{ProjectID: p.ID, Step: step, AllDone: p.AllDone()}, nil
}

// HandleReopen returns a finished step to doing, keeping its proof.
func (h *StepLedgerHandler) HandleReopen(ctx context.Context, cmd ReopenStepCommand) (*StepResult, error) {
	if cmd.ProjectID == "" || cmd.StepID == "" {
		return nil, invalid("ReopenStep", "project_id and step_id are required")
	}

	p, err := h.store.loadOwned(ctx, "reopen_step", cmd.ProjectID, cmd.ActorID)
	if err != nil {
		return nil, err
	}

	step, err := p.ReopenStep(cmd.StepID)
	if err != nil {
		return nil, err
	}

	if err := h.store.save(ctx, "reopen_step", p); err != nil {
		return nil, err
	}

	return &StepResult{ProjectID: p.ID, Step: step, AllDone: p.AllDone()}, nil
}
