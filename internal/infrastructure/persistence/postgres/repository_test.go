package postgres

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
	"github.com/alem-hub/alem-missions/pkg/testhelpers"
)

var (
	migrateOnce sync.Once
	migrateErr  error
)

// setupDB returns a migrated connection with empty tables.
func setupDB(t *testing.T) *Connection {
	t.Helper()

	pg := testhelpers.Postgres(t)
	ctx := context.Background()

	conn, err := NewConnectionFromURL(ctx, pg.URL, nil)
	require.NoError(t, err)
	t.Cleanup(conn.Close)

	migrateOnce.Do(func() {
		migrateErr = NewMigrator(conn).Migrate(ctx)
	})
	require.NoError(t, migrateErr)

	_, err = conn.Exec(ctx, `TRUNCATE projects, project_status_changes, archived_steps,
		process_templates, project_templates, badges, student_badges RESTART IDENTITY CASCADE`)
	require.NoError(t, err)

	return conn
}

func newProject(t *testing.T, id string, titles ...string) *project.StudentProject {
	t.Helper()

	n := 0
	ids := shared.IDGeneratorFunc(func() string {
		n++
		return id + "-step-" + string(rune('0'+n))
	})

	p, err := project.NewProject(project.NewProjectParams{
		ID:        id,
		StudentID: "s1",
		Title:     "Line follower",
		Station:   "robotics",
		Skills:    []string{"soldering"},
		Steps:     project.ResolveSteps(nil, titles, ids),
	})
	require.NoError(t, err)
	return p
}

func TestMigrator_Status(t *testing.T) {
	conn := setupDB(t)

	status, err := NewMigrator(conn).Status(context.Background())
	require.NoError(t, err)
	require.Len(t, status, len(GetMigrations()))
	for _, m := range status {
		assert.True(t, m.IsApplied, "migration %d", m.Version)
	}
}

func TestProjectRepository_RoundTripWithHistory(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(setupDB(t))

	p := newProject(t, "p1", "Design", "Build")
	require.NoError(t, repo.Create(ctx, p))

	require.NoError(t, p.ConfirmPlan("s1"))
	_, err := p.MoveStep(project.StepMove{StepID: p.Steps[0].ID, To: project.StepDoing})
	require.NoError(t, err)
	_, err = p.MoveStep(project.StepMove{StepID: p.Steps[0].ID, To: project.StepDone, ProofURL: "https://img/1"})
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, p))
	p.MarkPersisted()

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, project.StatusBuilding, got.Status)
	require.Len(t, got.Steps, 2)
	assert.Equal(t, project.StepDone, got.Steps[0].Status)
	assert.Equal(t, project.ProofPending, got.Steps[0].ProofStatus)
	assert.False(t, got.Steps[1].IsLocked)
	assert.Equal(t, []string{"soldering"}, got.SkillsAcquired)

	history, err := repo.StatusHistory(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, project.StatusPlanning, history[0].From)
	assert.Equal(t, project.StatusBuilding, history[0].To)
	assert.Equal(t, "s1", history[0].ActorID)
}

func TestProjectRepository_ReplaceArchivesProofs(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(setupDB(t))

	p := newProject(t, "p1", "Design", "Build")
	require.NoError(t, repo.Create(ctx, p))
	require.NoError(t, p.ConfirmPlan("s1"))
	_, err := p.MoveStep(project.StepMove{StepID: p.Steps[0].ID, To: project.StepDone, ProofURL: "https://img/1", Guided: true})
	require.NoError(t, err)

	n := 0
	replacement := project.ResolveSteps(nil, []string{"Empathize", "Define"}, shared.IDGeneratorFunc(func() string {
		n++
		return "new-" + string(rune('0'+n))
	}))
	_, err = p.ReplaceSteps("wf-2", replacement, true)
	require.NoError(t, err)
	require.NoError(t, repo.Update(ctx, p))

	archived, err := repo.ArchivedSteps(ctx, "p1")
	require.NoError(t, err)
	require.Len(t, archived, 1)
	assert.Equal(t, "https://img/1", archived[0].Step.ProofURL)
	assert.Equal(t, 0, archived[0].Position)

	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "wf-2", got.WorkflowID)
	assert.Len(t, got.Steps, 2)
}

func TestProjectRepository_NotFound(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(setupDB(t))

	_, err := repo.GetByID(ctx, "missing")
	assert.True(t, shared.IsNotFound(err))

	err = repo.Update(ctx, newProject(t, "missing", "Only"))
	assert.True(t, shared.IsNotFound(err))

	err = repo.AddEarnedBadges(ctx, "missing", []string{"b1"})
	assert.True(t, shared.IsNotFound(err))
}

func TestProjectRepository_ListsAndEarnedBadges(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectRepository(setupDB(t))

	published := newProject(t, "p1", "Only")
	require.NoError(t, published.ConfirmPlan("s1"))
	_, err := published.MoveStep(project.StepMove{StepID: published.Steps[0].ID, To: project.StepDone, Guided: true})
	require.NoError(t, err)
	require.NoError(t, published.Submit("s1"))
	require.NoError(t, published.Approve("i1", "great"))
	require.NoError(t, repo.Create(ctx, published))
	require.NoError(t, repo.Create(ctx, newProject(t, "p2", "Only")))

	list, err := repo.ListPublishedByStudent(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "p1", list[0].ID)

	students, err := repo.ListStudentsWithPublished(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"s1"}, students)

	planning, err := repo.ListByStatus(ctx, project.StatusPlanning, 10)
	require.NoError(t, err)
	assert.Len(t, planning, 1)

	require.NoError(t, repo.AddEarnedBadges(ctx, "p1", []string{"b1", "b2"}))
	require.NoError(t, repo.AddEarnedBadges(ctx, "p1", []string{"b2", "b3"}))
	got, err := repo.GetByID(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, []string{"b1", "b2", "b3"}, got.EarnedBadgeIDs)
}

func TestWorkflowRepository_SingleDefault(t *testing.T) {
	ctx := context.Background()
	repo := NewWorkflowRepository(setupDB(t))

	for _, id := range []string{"agile", "waterfall"} {
		tmpl, err := workflow.NewProcessTemplate(workflow.NewProcessTemplateParams{
			ID:     id,
			Name:   id,
			Phases: []workflow.Phase{{ID: id + "-1", Name: "Plan", Order: 1}},
		})
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, tmpl))
	}

	_, err := repo.GetDefault(ctx)
	assert.ErrorIs(t, err, workflow.ErrNoDefaultTemplate)

	prev, err := repo.SetDefault(ctx, "agile")
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = repo.SetDefault(ctx, "waterfall")
	require.NoError(t, err)
	assert.Equal(t, "agile", prev)

	all, err := repo.List(ctx)
	require.NoError(t, err)
	def, err := workflow.DefaultOf(all)
	require.NoError(t, err)
	assert.Equal(t, "waterfall", def.ID)

	assert.ErrorIs(t, repo.Delete(ctx, "waterfall"), workflow.ErrDeleteDefault)
	require.NoError(t, repo.Delete(ctx, "agile"))
	assert.True(t, shared.IsNotFound(repo.Delete(ctx, "agile")))

	_, err = repo.SetDefault(ctx, "ghost")
	assert.True(t, shared.IsNotFound(err))
}

func TestWorkflowRepository_ConcurrentSetDefault(t *testing.T) {
	ctx := context.Background()
	repo := NewWorkflowRepository(setupDB(t))

	ids := []string{"a", "b", "c", "d"}
	for _, id := range ids {
		tmpl, err := workflow.NewProcessTemplate(workflow.NewProcessTemplateParams{
			ID: id, Name: id, Phases: []workflow.Phase{{ID: id, Name: "Only", Order: 1}},
		})
		require.NoError(t, err)
		require.NoError(t, repo.Create(ctx, tmpl))
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, _ = repo.SetDefault(ctx, id)
		}(id)
	}
	wg.Wait()

	all, err := repo.List(ctx)
	require.NoError(t, err)
	_, err = workflow.DefaultOf(all)
	assert.NoError(t, err)
}

func TestProjectTemplateRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewProjectTemplateRepository(setupDB(t))

	tmpl, err := workflow.NewProjectTemplate("rover", "Mars rover", "robotics", []string{"Chassis", "", "Motors"})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, tmpl))

	got, err := repo.GetByID(ctx, "rover")
	require.NoError(t, err)
	assert.Equal(t, []string{"Chassis", "Motors"}, got.StepTitles)

	_, err = repo.GetByID(ctx, "nope")
	assert.ErrorIs(t, err, workflow.ErrProjectTemplateNotFound)
}

func TestBadgeRepository_CatalogueAndAwards(t *testing.T) {
	ctx := context.Background()
	repo := NewBadgeRepository(setupDB(t))

	b, err := badge.NewBadge(badge.NewBadgeParams{
		ID:        "robo-3",
		Name:      "Robot wrangler",
		Criterion: badge.ProjectCountCriterion{Target: "robotics", Count: 3},
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(ctx, b))

	got, err := repo.GetByID(ctx, "robo-3")
	require.NoError(t, err)
	assert.Equal(t, badge.ProjectCountCriterion{Target: "robotics", Count: 3}, got.Criterion)

	held, err := repo.IsHeld(ctx, "robo-3")
	require.NoError(t, err)
	assert.False(t, held)

	added, err := repo.AddBadges(ctx, "s1", []string{"robo-3", "first"})
	require.NoError(t, err)
	assert.Equal(t, []string{"robo-3", "first"}, added)

	added, err = repo.AddBadges(ctx, "s1", []string{"first", "robo-3"})
	require.NoError(t, err)
	assert.Empty(t, added)

	ids, err := repo.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"robo-3", "first"}, ids)

	held, err = repo.IsHeld(ctx, "robo-3")
	require.NoError(t, err)
	assert.True(t, held)

	ids, err = repo.GetBadgeIDs(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestBadgeRepository_ConcurrentAwardsCommute(t *testing.T) {
	ctx := context.Background()
	repo := NewBadgeRepository(setupDB(t))

	var wg sync.WaitGroup
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := repo.AddBadges(ctx, "s1", []string{id, "shared"})
			assert.NoError(t, err)
		}(id)
	}
	wg.Wait()

	ids, err := repo.GetBadgeIDs(ctx, "s1")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c", "d", "e", "shared"}, ids)
}
