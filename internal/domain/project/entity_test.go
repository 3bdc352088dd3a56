package project

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
)

func seqIDs(prefix string) shared.IDGenerator {
	n := 0
	return shared.IDGeneratorFunc(func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	})
}

func newPlannedProject(t *testing.T, titles ...string) *StudentProject {
	t.Helper()

	p, err := NewProject(NewProjectParams{
		ID:        "p1",
		StudentID: "s1",
		Title:     "Line follower",
		Station:   "robotics",
		Steps:     ResolveSteps(nil, titles, seqIDs("step")),
	})
	require.NoError(t, err)
	return p
}

func newBuildingProject(t *testing.T, titles ...string) *StudentProject {
	t.Helper()

	p := newPlannedProject(t, titles...)
	require.NoError(t, p.ConfirmPlan("s1"))
	return p
}

func finishAll(t *testing.T, p *StudentProject) {
	t.Helper()

	for _, s := range p.Steps {
		_, err := p.MoveStep(StepMove{StepID: s.ID, To: StepDoing})
		require.NoError(t, err)
		_, err = p.MoveStep(StepMove{StepID: s.ID, To: StepDone, ProofURL: "https://img/" + s.ID})
		require.NoError(t, err)
	}
}

func TestNewProject_Validation(t *testing.T) {
	_, err := NewProject(NewProjectParams{ID: "", StudentID: "s1", Title: "x"})
	assert.True(t, shared.IsValidation(err))

	_, err = NewProject(NewProjectParams{ID: "p", StudentID: "s1", Title: "   "})
	assert.ErrorIs(t, err, ErrInvalidTitle)

	p, err := NewProject(NewProjectParams{ID: "p", StudentID: "s1", Title: "  Solar   car ", Skills: []string{"cad", "cad", ""}})
	require.NoError(t, err)
	assert.Equal(t, "Solar car", p.Title)
	assert.Equal(t, StatusPlanning, p.Status)
	assert.Equal(t, []string{"cad"}, p.SkillsAcquired)
}

func TestResolveSteps_ProcessTemplateWins(t *testing.T) {
	tmpl, err := workflow.NewProcessTemplate(workflow.NewProcessTemplateParams{
		ID:   "w1",
		Name: "Design Thinking",
		Phases: []workflow.Phase{
			{ID: "c", Name: "Prototype", Order: 3},
			{ID: "a", Name: "Empathize", Order: 1},
			{ID: "b", Name: "Define", Order: 2},
		},
	})
	require.NoError(t, err)

	steps := ResolveSteps(tmpl, []string{"ignored"}, seqIDs("s"))

	require.Len(t, steps, 3)
	assert.Equal(t, "Empathize", steps[0].Title)
	assert.Equal(t, "Define", steps[1].Title)
	assert.Equal(t, "Prototype", steps[2].Title)
	for _, s := range steps {
		assert.Equal(t, StepTodo, s.Status)
		assert.True(t, s.IsLocked)
		assert.NotEmpty(t, s.ID)
	}
}

func TestResolveSteps_FallbacksAndEmpty(t *testing.T) {
	steps := ResolveSteps(nil, []string{"Sketch", " ", "Build"}, seqIDs("s"))
	require.Len(t, steps, 2)
	assert.Equal(t, "s-1", steps[0].ID)
	assert.Equal(t, "Build", steps[1].Title)

	assert.Empty(t, ResolveSteps(nil, nil, seqIDs("s")))
}

func TestAddAndDeleteStep_OnlyWhilePlanning(t *testing.T) {
	p := newPlannedProject(t, "Sketch")

	step, err := p.AddStep("manual", "Buy parts")
	require.NoError(t, err)
	assert.False(t, step.IsLocked)
	assert.Len(t, p.Steps, 2)

	require.NoError(t, p.DeleteStep("manual"))
	assert.Len(t, p.Steps, 1)
	assert.ErrorIs(t, p.DeleteStep("missing"), ErrStepNotFound)

	require.NoError(t, p.ConfirmPlan("s1"))

	_, err = p.AddStep("late", "Too late")
	assert.True(t, shared.IsPreconditionNotMet(err))
	assert.True(t, shared.IsPreconditionNotMet(p.DeleteStep(p.Steps[0].ID)))
}

func TestConfirmPlan_RequiresStepsAndUnlocksFirst(t *testing.T) {
	empty := newPlannedProject(t)
	err := empty.ConfirmPlan("s1")
	assert.True(t, shared.IsPreconditionNotMet(err))
	assert.Equal(t, StatusPlanning, empty.Status)

	p := newBuildingProject(t, "One", "Two")
	assert.Equal(t, StatusBuilding, p.Status)
	assert.False(t, p.Steps[0].IsLocked)
	assert.True(t, p.Steps[1].IsLocked)
}

func TestMoveStep_LockedStepRefused(t *testing.T) {
	p := newBuildingProject(t, "One", "Two")

	_, err := p.MoveStep(StepMove{StepID: p.Steps[1].ID, To: StepDoing})

	require.Error(t, err)
	assert.True(t, shared.IsPreconditionNotMet(err))
	assert.Equal(t, "finish the previous task first", shared.UserMessage(err))
	assert.Equal(t, StepTodo, p.Steps[1].Status)
}

func TestMoveStep_ProofRequiredLeavesStepUnchanged(t *testing.T) {
	p := newBuildingProject(t, "One", "Two")
	id := p.Steps[0].ID

	_, err := p.MoveStep(StepMove{StepID: id, To: StepDoing})
	require.NoError(t, err)

	_, err = p.MoveStep(StepMove{StepID: id, To: StepDone})
	assert.True(t, shared.IsProofRequired(err))
	assert.Equal(t, StepDoing, p.Steps[0].Status)
	assert.True(t, p.Steps[1].IsLocked)

	step, err := p.MoveStep(StepMove{StepID: id, To: StepDone, ProofURL: "data:image/png;base64,AAAA"})
	require.NoError(t, err)
	assert.Equal(t, StepDone, step.Status)
	assert.Equal(t, ProofPending, step.ProofStatus)
	assert.False(t, p.Steps[1].IsLocked)
}

func TestMoveStep_GuidedCompletesWithoutProof(t *testing.T) {
	p := newBuildingProject(t, "One", "Two")

	step, err := p.MoveStep(StepMove{StepID: p.Steps[0].ID, To: StepDone, Guided: true})

	require.NoError(t, err)
	assert.Equal(t, StepDone, step.Status)
	assert.Equal(t, ProofNone, step.ProofStatus)
	assert.False(t, p.Steps[1].IsLocked)
}

func TestMoveStep_RejectsSkipsAndBackwardMoves(t *testing.T) {
	p := newBuildingProject(t, "One")
	id := p.Steps[0].ID

	_, err := p.MoveStep(StepMove{StepID: id, To: StepDone, ProofURL: "x"})
	assert.True(t, shared.IsPreconditionNotMet(err))

	_, err = p.MoveStep(StepMove{StepID: id, To: StepDoing})
	require.NoError(t, err)

	_, err = p.MoveStep(StepMove{StepID: id, To: StepTodo})
	assert.True(t, shared.IsPreconditionNotMet(err))

	_, err = p.MoveStep(StepMove{StepID: id, To: StepDoing})
	assert.True(t, shared.IsPreconditionNotMet(err))
}

func TestMoveStep_OnlyWhileBuilding(t *testing.T) {
	p := newPlannedProject(t, "One")

	_, err := p.MoveStep(StepMove{StepID: p.Steps[0].ID, To: StepDoing})

	assert.True(t, shared.IsPreconditionNotMet(err))
}

func TestReopenStep_KeepsProof(t *testing.T) {
	p := newBuildingProject(t, "One")
	finishAll(t, p)

	step, err := p.ReopenStep(p.Steps[0].ID)

	require.NoError(t, err)
	assert.Equal(t, StepDoing, step.Status)
	assert.NotEmpty(t, step.ProofURL)
	assert.False(t, p.AllDone())
}

func TestAllDone(t *testing.T) {
	assert.False(t, newPlannedProject(t).AllDone())

	p := newBuildingProject(t, "One", "Two")
	assert.False(t, p.AllDone())
	finishAll(t, p)
	assert.True(t, p.AllDone())

	done, total := p.Progress()
	assert.Equal(t, 2, done)
	assert.Equal(t, 2, total)
}

func TestSubmit_RequiresAllDone(t *testing.T) {
	p := newBuildingProject(t, "One", "Two")

	err := p.Submit("s1")
	assert.True(t, shared.IsPreconditionNotMet(err))
	assert.Equal(t, StatusBuilding, p.Status)

	finishAll(t, p)
	require.NoError(t, p.Submit("s1"))
	assert.Equal(t, StatusSubmitted, p.Status)
}

func TestTestingPath(t *testing.T) {
	p := newBuildingProject(t, "One")

	assert.True(t, shared.IsPreconditionNotMet(p.StartTesting("s1")))

	finishAll(t, p)
	require.NoError(t, p.StartTesting("s1"))
	require.NoError(t, p.MarkDelivered("s1"))
	require.NoError(t, p.Submit("s1"))
	assert.Equal(t, StatusSubmitted, p.Status)
}

func TestReviewTransitions(t *testing.T) {
	p := newBuildingProject(t, "One")
	finishAll(t, p)
	require.NoError(t, p.Submit("s1"))
	before := append([]ProjectStep(nil), p.Steps...)

	require.NoError(t, p.RequestChanges("i1", "needs a video"))
	assert.Equal(t, StatusChangesRequested, p.Status)
	assert.Equal(t, "needs a video", p.InstructorFeedback)

	require.NoError(t, p.Reopen("s1"))
	assert.Equal(t, StatusBuilding, p.Status)
	assert.Equal(t, before, p.Steps, "reopening keeps completed steps and proofs")

	require.NoError(t, p.Submit("s1"))
	require.NoError(t, p.Approve("i1", "great"))
	assert.Equal(t, StatusPublished, p.Status)
	assert.Equal(t, "great", p.InstructorFeedback)
}

func TestPublishedIsTerminal(t *testing.T) {
	p := newBuildingProject(t, "One")
	finishAll(t, p)
	require.NoError(t, p.Submit("s1"))
	require.NoError(t, p.Approve("i1", ""))

	assert.True(t, shared.IsPreconditionNotMet(p.Submit("s1")))
	assert.True(t, shared.IsPreconditionNotMet(p.RequestChanges("i1", "")))
	assert.True(t, shared.IsPreconditionNotMet(p.Reopen("s1")))

	p.AttachMedia("https://video/1", "https://video/1")
	assert.Equal(t, []string{"https://video/1"}, p.MediaURLs)
}

func TestApprove_OnlyFromSubmitted(t *testing.T) {
	p := newBuildingProject(t, "One")

	err := p.Approve("i1", "ok")

	assert.True(t, shared.IsPreconditionNotMet(err))
	assert.Empty(t, p.InstructorFeedback)
}

func TestTransitions_RecordAudit(t *testing.T) {
	p := newBuildingProject(t, "One")
	finishAll(t, p)
	require.NoError(t, p.Submit("s1"))

	changes := p.PendingStatusChanges()
	require.Len(t, changes, 2)
	assert.Equal(t, StatusPlanning, changes[0].From)
	assert.Equal(t, StatusBuilding, changes[0].To)
	assert.Equal(t, StatusSubmitted, changes[1].To)
	assert.Equal(t, "s1", changes[1].ActorID)

	p.MarkPersisted()
	assert.Empty(t, p.PendingStatusChanges())
}

func TestReplaceSteps_RequiresConfirmation(t *testing.T) {
	p := newPlannedProject(t, "Old")
	fresh := ResolveSteps(nil, []string{"New A", "New B"}, seqIDs("n"))

	_, err := p.ReplaceSteps("w2", fresh, false)
	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Equal(t, "Old", p.Steps[0].Title)

	_, err = p.ReplaceSteps("w2", fresh, true)
	require.NoError(t, err)
	assert.Len(t, p.Steps, 2)
	assert.Equal(t, "w2", p.WorkflowID)
}

func TestReplaceSteps_BuildingNeedsSteps(t *testing.T) {
	p := newBuildingProject(t, "One", "Two")

	_, err := p.ReplaceSteps("w-empty", nil, true)

	assert.True(t, shared.IsPreconditionNotMet(err))
	assert.Equal(t, StatusBuilding, p.Status)
	require.Len(t, p.Steps, 2)
	assert.Equal(t, "One", p.Steps[0].Title)
	assert.Empty(t, p.PendingArchivedSteps())
}

func TestReplaceSteps_PlanningAllowsEmpty(t *testing.T) {
	p := newPlannedProject(t, "Old")

	_, err := p.ReplaceSteps("w2", nil, true)

	require.NoError(t, err)
	assert.Empty(t, p.Steps)
}

func TestReplaceSteps_ArchivesProofs(t *testing.T) {
	p := newBuildingProject(t, "One", "Two")
	p.WorkflowID = "w1"
	_, err := p.MoveStep(StepMove{StepID: p.Steps[0].ID, To: StepDoing})
	require.NoError(t, err)
	_, err = p.MoveStep(StepMove{StepID: p.Steps[0].ID, To: StepDone, ProofURL: "https://img/1"})
	require.NoError(t, err)

	archived, err := p.ReplaceSteps("w2", ResolveSteps(nil, []string{"X"}, seqIDs("n")), true)

	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "w1", archived[0].WorkflowID)
	assert.Equal(t, "https://img/1", archived[0].Step.ProofURL)
	assert.Equal(t, archived, p.PendingArchivedSteps())
	assert.False(t, p.Steps[0].IsLocked)
}

func TestReplaceSteps_EmptyProjectNeedsNoConfirmation(t *testing.T) {
	p := newPlannedProject(t)

	_, err := p.ReplaceSteps("w1", ResolveSteps(nil, []string{"A"}, seqIDs("n")), false)

	require.NoError(t, err)
	assert.Len(t, p.Steps, 1)
}

func TestRecordEarnedBadges_Union(t *testing.T) {
	p := newPlannedProject(t)

	p.RecordEarnedBadges([]string{"b1"})
	p.RecordEarnedBadges([]string{"b1", "b2"})

	assert.Equal(t, []string{"b1", "b2"}, p.EarnedBadgeIDs)
}

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPlanning, StatusBuilding))
	assert.False(t, CanTransition(StatusPlanning, StatusSubmitted))
	assert.True(t, CanTransition(StatusDelivered, StatusSubmitted))
	assert.False(t, CanTransition(StatusPublished, StatusBuilding))

	for _, s := range AllStatuses {
		assert.True(t, s.IsValid(), s)
	}
	assert.False(t, Status("archived").IsValid())
}
