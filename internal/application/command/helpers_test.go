package command

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/domain/project"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
	"github.com/alem-hub/alem-missions/internal/infrastructure/persistence/memory"
)

// recordingPublisher collects published events.
type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
	err    error
}

func (r *recordingPublisher) Publish(e shared.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return r.err
}

func (r *recordingPublisher) types() []shared.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]shared.EventType, len(r.events))
	for i, e := range r.events {
		out[i] = e.EventType()
	}
	return out
}

func seqIDs(prefix string) shared.IDGenerator {
	var mu sync.Mutex
	n := 0
	return shared.IDGeneratorFunc(func() string {
		mu.Lock()
		defer mu.Unlock()
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	})
}

// seedProject stores a building project with the given step titles.
func seedProject(t *testing.T, repo *memory.ProjectRepository, id, studentID string, titles ...string) *project.StudentProject {
	t.Helper()

	p, err := project.NewProject(project.NewProjectParams{
		ID:        id,
		StudentID: studentID,
		Title:     "Weather station",
		Station:   "iot",
		Steps:     project.ResolveSteps(nil, titles, seqIDs(id+"-step")),
	})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), p))
	return p
}

func seedTemplate(t *testing.T, repo *memory.WorkflowRepository, id string, phases ...string) *workflow.ProcessTemplate {
	t.Helper()

	ps := make([]workflow.Phase, len(phases))
	for i, name := range phases {
		ps[i] = workflow.Phase{ID: fmt.Sprintf("%s-ph%d", id, i), Name: name, Order: i + 1}
	}
	tmpl, err := workflow.NewProcessTemplate(workflow.NewProcessTemplateParams{ID: id, Name: id, Phases: ps})
	require.NoError(t, err)
	require.NoError(t, repo.Create(context.Background(), tmpl))
	return tmpl
}
