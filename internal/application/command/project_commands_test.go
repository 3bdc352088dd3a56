package command

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
	"github.com/alem-hub/alem-missions/internal/infrastructure/persistence/memory"
)

func TestPlanProject_UsesDefaultWorkflow(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjectRepository()
	templates := memory.NewWorkflowRepository()
	seedTemplate(t, templates, "dt", "Empathize", "Define", "Ideate")
	_, err := templates.SetDefault(ctx, "dt")
	require.NoError(t, err)

	events := &recordingPublisher{}
	h := NewPlanProjectHandler(projects, templates, memory.NewProjectTemplateRepository(), seqIDs("id"), events, nil)

	res, err := h.Handle(ctx, PlanProjectCommand{
		StudentID:          "s1",
		Title:              "Smart greenhouse",
		Station:            "IoT",
		UseDefaultWorkflow: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "dt", res.WorkflowApplied)
	assert.Equal(t, project.StatusPlanning, res.Project.Status)
	assert.Equal(t, "iot", res.Project.Station)
	require.Len(t, res.Project.Steps, 3)
	assert.Equal(t, "Empathize", res.Project.Steps[0].Title)
	for _, s := range res.Project.Steps {
		assert.True(t, s.IsLocked)
		assert.Equal(t, project.StepTodo, s.Status)
	}
	assert.Equal(t, []shared.EventType{shared.EventProjectPlanned}, events.types())

	stored, err := projects.GetByID(ctx, res.Project.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 3)
}

func TestPlanProject_MissingDefaultIsNotAnError(t *testing.T) {
	h := NewPlanProjectHandler(
		memory.NewProjectRepository(),
		memory.NewWorkflowRepository(),
		memory.NewProjectTemplateRepository(),
		seqIDs("id"), nil, nil,
	)

	res, err := h.Handle(context.Background(), PlanProjectCommand{
		StudentID:          "s1",
		Title:              "Bridge",
		UseDefaultWorkflow: true,
	})
	require.NoError(t, err)
	assert.Empty(t, res.WorkflowApplied)
	assert.Empty(t, res.Project.Steps)
}

func TestPlanProject_ProjectTemplateSeedsSteps(t *testing.T) {
	ctx := context.Background()
	projectTemplates := memory.NewProjectTemplateRepository()
	tmpl, err := workflow.NewProjectTemplate("pt1", "Line follower", "Robotics", []string{"Chassis", "", "Sensors"})
	require.NoError(t, err)
	tmpl.Description = "Build a robot that follows a line"
	require.NoError(t, projectTemplates.Create(ctx, tmpl))

	h := NewPlanProjectHandler(memory.NewProjectRepository(), memory.NewWorkflowRepository(), projectTemplates, seqIDs("id"), nil, nil)

	res, err := h.Handle(ctx, PlanProjectCommand{StudentID: "s1", Title: "My robot", ProjectTemplateID: "pt1"})
	require.NoError(t, err)

	assert.Equal(t, "robotics", res.Project.Station)
	assert.Equal(t, "pt1", res.Project.TemplateID)
	assert.Equal(t, tmpl.Description, res.Project.Description)
	require.Len(t, res.Project.Steps, 2)
	assert.Equal(t, "Sensors", res.Project.Steps[1].Title)
}

func TestPlanProject_Validation(t *testing.T) {
	h := NewPlanProjectHandler(memory.NewProjectRepository(), memory.NewWorkflowRepository(), memory.NewProjectTemplateRepository(), seqIDs("id"), nil, nil)

	_, err := h.Handle(context.Background(), PlanProjectCommand{StudentID: "s1", Title: "  "})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(context.Background(), PlanProjectCommand{StudentID: "s1", Title: "x", ProcessTemplateID: "missing"})
	assert.True(t, shared.IsNotFound(err))
}

func TestStepLedger_ProofRequiredIsDeferred(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjectRepository()
	p := seedProject(t, projects, "p1", "s1", "Wire sensors", "Calibrate")
	require.NoError(t, p.ConfirmPlan("s1"))
	require.NoError(t, projects.Update(ctx, p))

	events := &recordingPublisher{}
	h := NewStepLedgerHandler(projects, seqIDs("step"), events, nil)
	first := p.Steps[0].ID

	_, err := h.HandleMove(ctx, MoveStepCommand{ProjectID: "p1", ActorID: "s1", StepID: first, To: project.StepDoing})
	require.NoError(t, err)

	res, err := h.HandleMove(ctx, MoveStepCommand{ProjectID: "p1", ActorID: "s1", StepID: first, To: project.StepDone})
	require.NoError(t, err)
	assert.True(t, res.ProofRequired)
	assert.Equal(t, project.StepDoing, res.Step.Status)

	stored, err := projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, project.StepDoing, stored.Steps[0].Status)
	assert.True(t, stored.Steps[1].IsLocked)

	res, err = h.HandleMove(ctx, MoveStepCommand{ProjectID: "p1", ActorID: "s1", StepID: first, To: project.StepDone, ProofURL: "https://img/1.png"})
	require.NoError(t, err)
	assert.False(t, res.ProofRequired)
	assert.Equal(t, project.ProofPending, res.Step.ProofStatus)

	stored, err = projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.False(t, stored.Steps[1].IsLocked)
	assert.Contains(t, events.types(), shared.EventStepCompleted)
}

func TestStepLedger_RejectsOtherStudents(t *testing.T) {
	projects := memory.NewProjectRepository()
	seedProject(t, projects, "p1", "s1")

	h := NewStepLedgerHandler(projects, seqIDs("step"), nil, nil)
	_, err := h.HandleAdd(context.Background(), AddStepCommand{ProjectID: "p1", ActorID: "intruder", Title: "x"})
	assert.True(t, errors.Is(err, shared.ErrForbidden))
}

func TestStepLedger_AddAndDeleteWhilePlanning(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjectRepository()
	seedProject(t, projects, "p1", "s1")

	h := NewStepLedgerHandler(projects, seqIDs("step"), nil, nil)

	added, err := h.HandleAdd(ctx, AddStepCommand{ProjectID: "p1", ActorID: "s1", Title: "Buy parts"})
	require.NoError(t, err)
	assert.False(t, added.Step.IsLocked)

	_, err = h.HandleDelete(ctx, DeleteStepCommand{ProjectID: "p1", ActorID: "s1", StepID: added.Step.ID})
	require.NoError(t, err)

	stored, err := projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Empty(t, stored.Steps)
}

func TestTransitionProject_SubmitNeedsAllDone(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjectRepository()
	seedProject(t, projects, "p1", "s1", "Only task")

	events := &recordingPublisher{}
	transitions := NewTransitionProjectHandler(projects, events, nil)
	steps := NewStepLedgerHandler(projects, seqIDs("step"), events, nil)

	res, err := transitions.Handle(ctx, TransitionProjectCommand{ProjectID: "p1", ActorID: "s1", Action: ActionConfirmPlan})
	require.NoError(t, err)
	assert.Equal(t, project.StatusBuilding, res.To)

	_, err = transitions.Handle(ctx, TransitionProjectCommand{ProjectID: "p1", ActorID: "s1", Action: ActionSubmit})
	require.Error(t, err)
	assert.True(t, shared.IsPreconditionNotMet(err))
	assert.Equal(t, "finish all tasks before submitting", shared.UserMessage(err))

	p, err := projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	stepID := p.Steps[0].ID
	_, err = steps.HandleMove(ctx, MoveStepCommand{ProjectID: "p1", ActorID: "s1", StepID: stepID, To: project.StepDone, Guided: true})
	require.NoError(t, err)

	res, err = transitions.Handle(ctx, TransitionProjectCommand{ProjectID: "p1", ActorID: "s1", Action: ActionSubmit})
	require.NoError(t, err)
	assert.Equal(t, project.StatusSubmitted, res.To)

	history, err := projects.StatusHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, project.StatusBuilding, history[0].To)
	assert.Equal(t, project.StatusSubmitted, history[1].To)

	assert.Contains(t, events.types(), shared.EventProjectSubmitted)
}

func TestTransitionProject_UnknownAction(t *testing.T) {
	h := NewTransitionProjectHandler(memory.NewProjectRepository(), nil, nil)
	_, err := h.Handle(context.Background(), TransitionProjectCommand{ProjectID: "p", ActorID: "s", Action: "publish"})
	assert.True(t, shared.IsValidation(err))
}

func TestTransitionProject_PersistenceFailureKeepsStoredState(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjectRepository()
	seedProject(t, projects, "p1", "s1", "Task")
	projects.FailUpdate = errors.New("connection reset")

	h := NewTransitionProjectHandler(projects, nil, nil)
	_, err := h.Handle(ctx, TransitionProjectCommand{ProjectID: "p1", ActorID: "s1", Action: ActionConfirmPlan})
	require.Error(t, err)
	assert.True(t, shared.IsPersistenceFailure(err))
	assert.True(t, shared.IsRetryable(err))

	stored, err := projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, project.StatusPlanning, stored.Status)
}

func TestAttachMedia_AllowedWhenPublished(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjectRepository()
	p := seedProject(t, projects, "p1", "s1", "Task")
	require.NoError(t, p.ConfirmPlan("s1"))
	_, err := p.MoveStep(project.StepMove{StepID: p.Steps[0].ID, To: project.StepDone, Guided: true})
	require.NoError(t, err)
	require.NoError(t, p.Submit("s1"))
	require.NoError(t, p.Approve("i1", "great"))
	require.NoError(t, projects.Update(ctx, p))

	h := NewAttachMediaHandler(projects, nil)
	urls, err := h.Handle(ctx, AttachMediaCommand{ProjectID: "p1", ActorID: "s1", URLs: []string{"https://v/1", "https://v/1"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"https://v/1"}, urls)

	stored, err := projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, project.StatusPublished, stored.Status)
}

func TestReplaceWorkflow_RequiresConfirmationAndArchivesProofs(t *testing.T) {
	ctx := context.Background()
	projects := memory.NewProjectRepository()
	templates := memory.NewWorkflowRepository()
	seedTemplate(t, templates, "scrum", "Backlog", "Sprint", "Review")

	p := seedProject(t, projects, "p1", "s1", "Sketch", "Build")
	require.NoError(t, p.ConfirmPlan("s1"))
	_, err := p.MoveStep(project.StepMove{StepID: p.Steps[0].ID, To: project.StepDoing})
	require.NoError(t, err)
	_, err = p.MoveStep(project.StepMove{StepID: p.Steps[0].ID, To: project.StepDone, ProofURL: "https://img/sketch.png"})
	require.NoError(t, err)
	require.NoError(t, projects.Update(ctx, p))

	events := &recordingPublisher{}
	h := NewReplaceWorkflowHandler(projects, templates, seqIDs("new"), events, nil)

	_, err = h.Handle(ctx, ReplaceWorkflowCommand{ProjectID: "p1", ActorID: "s1", ProcessTemplateID: "scrum"})
	assert.ErrorIs(t, err, project.ErrConfirmationRequired)

	stored, err := projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, stored.Steps, 2)

	res, err := h.Handle(ctx, ReplaceWorkflowCommand{ProjectID: "p1", ActorID: "s1", ProcessTemplateID: "scrum", Confirmed: true})
	require.NoError(t, err)
	assert.Equal(t, 2, res.StepsRemoved)
	assert.Equal(t, 3, res.StepsCreated)
	require.Len(t, res.Archived, 1)
	assert.Equal(t, "https://img/sketch.png", res.Archived[0].Step.ProofURL)

	archived, err := projects.ArchivedSteps(ctx, "p1")
	require.NoError(t, err)
	assert.Len(t, archived, 1)

	stored, err = projects.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "scrum", stored.WorkflowID)
	assert.False(t, stored.Steps[0].IsLocked)
	assert.True(t, stored.Steps[1].IsLocked)
	assert.Equal(t, []shared.EventType{shared.EventWorkflowReplaced}, events.types())
}
