package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/application/command"
	"github.com/alem-hub/alem-missions/internal/application/saga"
	"github.com/alem-hub/alem-missions/internal/domain/access"
	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/notification"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/infrastructure/messaging"
	"github.com/alem-hub/alem-missions/internal/infrastructure/persistence/memory"
)

type recordingSink struct {
	mu   sync.Mutex
	sent []notification.Notification
}

func (s *recordingSink) Notify(_ context.Context, n notification.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSink) to(recipient string) []notification.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []notification.Notification
	for _, n := range s.sent {
		if n.RecipientID == recipient {
			out = append(out, n)
		}
	}
	return out
}

type setCache struct {
	mu   sync.Mutex
	sets map[string][]string
}

func (c *setCache) GetBadgeIDs(_ context.Context, id string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.sets[id]
	return ids, ok, nil
}

func (c *setCache) AddBadges(_ context.Context, id string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[id] = shared.DedupeStrings(append(c.sets[id], ids...))
	return nil
}

func (c *setCache) SetBadgeIDs(_ context.Context, id string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sets[id] = ids
	return nil
}

func (c *setCache) Invalidate(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sets, id)
	return nil
}

func seqIDs() shared.IDGenerator {
	var mu sync.Mutex
	n := 0
	return shared.IDGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("id-%d", n)
	})
}

type fixture struct {
	engine *Engine
	sink   *recordingSink
	cache  *setCache
}

func newFixture(t *testing.T, staff ...string) fixture {
	t.Helper()

	busCfg := messaging.DefaultInMemoryEventBusConfig()
	busCfg.AsyncMode = false
	bus := messaging.NewInMemoryEventBus(busCfg)
	t.Cleanup(func() { _ = bus.Close() })

	badges := memory.NewBadgeRepository()
	f := fixture{sink: &recordingSink{}, cache: &setCache{sets: make(map[string][]string)}}

	e, err := New(Deps{
		Projects:         memory.NewProjectRepository(),
		ProcessTemplates: memory.NewWorkflowRepository(),
		ProjectTemplates: memory.NewProjectTemplateRepository(),
		Catalogue:        badges,
		StudentBadges:    badges,
		BadgeCache:       f.cache,
		Sink:             f.sink,
		Bus:              bus,
		IDs:              seqIDs(),
		StaffIDs:         staff,
	})
	require.NoError(t, err)
	f.engine = e
	return f
}

// buildAndSubmit plans a one-step project for s1 and takes it to submitted.
func buildAndSubmit(t *testing.T, e *Engine) string {
	t.Helper()
	ctx := context.Background()

	planned, err := e.Plan.Handle(ctx, command.PlanProjectCommand{StudentID: "s1", Title: "Rover", Station: "robotics"})
	require.NoError(t, err)
	id := planned.Project.ID

	added, err := e.Steps.HandleAdd(ctx, command.AddStepCommand{ProjectID: id, ActorID: "s1", Title: "Assemble"})
	require.NoError(t, err)
	stepID := added.Step.ID

	_, err = e.Transition.Handle(ctx, command.TransitionProjectCommand{ProjectID: id, ActorID: "s1", Action: command.ActionConfirmPlan})
	require.NoError(t, err)

	_, err = e.Steps.HandleMove(ctx, command.MoveStepCommand{ProjectID: id, ActorID: "s1", StepID: stepID, To: project.StepDoing})
	require.NoError(t, err)
	moved, err := e.Steps.HandleMove(ctx, command.MoveStepCommand{ProjectID: id, ActorID: "s1", StepID: stepID, To: project.StepDone, ProofURL: "https://img/rover"})
	require.NoError(t, err)
	require.True(t, moved.AllDone)

	res, err := e.Transition.Handle(ctx, command.TransitionProjectCommand{ProjectID: id, ActorID: "s1", Action: command.ActionSubmit})
	require.NoError(t, err)
	require.Equal(t, project.StatusSubmitted, res.To)
	return id
}

func TestNew_RequiresDependencies(t *testing.T) {
	_, err := New(Deps{})
	assert.Error(t, err)
}

func TestSubmit_NotifiesStaff(t *testing.T) {
	f := newFixture(t, "mentor-1", "mentor-2")

	id := buildAndSubmit(t, f.engine)

	for _, reviewer := range []string{"mentor-1", "mentor-2"} {
		sent := f.sink.to(reviewer)
		require.Len(t, sent, 1, reviewer)
		assert.Equal(t, id, sent[0].ProjectID)
	}
}

func TestSubmit_NoStaffNoReviewerNotification(t *testing.T) {
	f := newFixture(t)

	buildAndSubmit(t, f.engine)

	f.sink.mu.Lock()
	defer f.sink.mu.Unlock()
	assert.Empty(t, f.sink.sent)
}

func TestApprove_AwardsBadgeAndRefreshesCache(t *testing.T) {
	f := newFixture(t, "mentor-1")
	ctx := context.Background()
	mentor := access.Actor{ID: "mentor-1", Role: access.RoleInstructor}

	b, err := f.engine.Badges.HandleCreate(ctx, command.CreateBadgeCommand{
		Actor:     mentor,
		Name:      "First Build",
		Criterion: command.CriterionInput{Type: badge.CriterionProjectCount, Target: "all", Count: 1},
	})
	require.NoError(t, err)

	id := buildAndSubmit(t, f.engine)

	res, err := f.engine.Review.Execute(ctx, saga.ReviewInput{ProjectID: id, Actor: mentor, Decision: saga.DecisionApprove})
	require.NoError(t, err)
	assert.Equal(t, project.StatusPublished, res.Status)
	assert.Equal(t, []string{b.ID}, res.AwardedBadgeIDs)

	cached, ok, err := f.cache.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{b.ID}, cached)
	assert.NotEmpty(t, f.sink.to("s1"))
}
