package catalog

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/infrastructure/persistence/memory"
)

const sample = `
default_process: classic
processes:
  - id: classic
    name: Classic
    phases: [Plan, Build, Ship]
  - id: sprint
    name: Sprint
    phases: [Build]
projects:
  - id: weather-station
    name: Weather Station
    station: IoT
    description: Measure and log temperature
    steps: [Wire the sensor, Read values, Plot a chart]
badges:
  - id: first-mission
    name: First Mission
    project_count: {target: all, count: 1}
  - id: iot-explorer
    name: IoT Explorer
    project_count: {target: iot, count: 3}
  - id: soldering
    name: Soldering
    skill: Soldering
`

type seqIDs struct{ n int }

func (s *seqIDs) GenerateID() string {
	s.n++
	return fmt.Sprintf("phase-%d", s.n)
}

type repos struct {
	processes *memory.WorkflowRepository
	projects  *memory.ProjectTemplateRepository
	badges    *memory.BadgeRepository
}

func newImporter() (*Importer, repos) {
	r := repos{
		processes: memory.NewWorkflowRepository(),
		projects:  memory.NewProjectTemplateRepository(),
		badges:    memory.NewBadgeRepository(),
	}
	return NewImporter(r.processes, r.projects, r.badges, &seqIDs{}, nil), r
}

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	assert.Equal(t, "classic", f.DefaultProcess)
	assert.Len(t, f.Processes, 2)
	assert.Len(t, f.Badges, 3)

	crit, err := f.Badges[1].criterion()
	require.NoError(t, err)
	assert.Equal(t, badge.ProjectCountCriterion{Target: "iot", Count: 3}, crit)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"empty", "  \n"},
		{"unknown field", "processes:\n  - id: a\n    name: A\n    colour: red\n"},
		{"duplicate id", "badges:\n  - {id: b, name: B, skill: Go}\n  - {id: b, name: C, skill: Go}\n"},
		{"missing criterion", "badges:\n  - {id: b, name: B}\n"},
		{"two criteria", "badges:\n  - {id: b, name: B, skill: Go, project_count: {target: all, count: 1}}\n"},
		{"bad count", "badges:\n  - {id: b, name: B, project_count: {target: all, count: 0}}\n"},
		{"undefined default", "default_process: nope\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			assert.Error(t, err)
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0o600))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, f.Projects, 1)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestImporter_CreatesAndIsIdempotent(t *testing.T) {
	ctx := context.Background()
	im, r := newImporter()
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	first, err := im.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Created: 6, DefaultChanged: true}, first)

	def, err := r.processes.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, "classic", def.ID)
	require.Len(t, def.Phases, 3)
	assert.Equal(t, "Ship", def.OrderedPhases()[2].Name)

	tpl, err := r.projects.GetByID(ctx, "weather-station")
	require.NoError(t, err)
	assert.Equal(t, "Measure and log temperature", tpl.Description)
	assert.Len(t, tpl.StepTitles, 3)

	second, err := im.Import(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, Result{Skipped: 6}, second)

	all, err := r.badges.List(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestImporter_KeepsExistingDefault(t *testing.T) {
	ctx := context.Background()
	im, r := newImporter()
	f, err := Parse([]byte(sample))
	require.NoError(t, err)

	_, err = im.Import(ctx, f)
	require.NoError(t, err)
	_, err = r.processes.SetDefault(ctx, "sprint")
	require.NoError(t, err)

	res, err := im.Import(ctx, f)
	require.NoError(t, err)
	assert.False(t, res.DefaultChanged)

	def, err := r.processes.GetDefault(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sprint", def.ID)
}
