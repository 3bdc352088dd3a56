// Package catalog loads badges and templates from a YAML file and imports
// them into the repositories. Import is idempotent: entries whose ID already
// exists are left untouched, so the worker can import the same file on every
// start.
package catalog

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/alem-hub/alem-missions/internal/domain/badge"
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
	"github.com/alem-hub/alem-missions/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FILE FORMAT
// ══════════════════════════════════════════════════════════════════════════════

// File is the root of a catalogue document.
type File struct {
	// DefaultProcess names the process template to make the default. It is
	// applied only when no default exists yet.
	DefaultProcess string `yaml:"default_process"`

	Processes []ProcessEntry `yaml:"processes"`
	Projects  []ProjectEntry `yaml:"projects"`
	Badges    []BadgeEntry   `yaml:"badges"`
}

// ProcessEntry describes a process template.
type ProcessEntry struct {
	ID     string   `yaml:"id"`
	Name   string   `yaml:"name"`
	Phases []string `yaml:"phases"`
}

// ProjectEntry describes a project template.
type ProjectEntry struct {
	ID          string   `yaml:"id"`
	Name        string   `yaml:"name"`
	Description string   `yaml:"description"`
	Station     string   `yaml:"station"`
	Steps       []string `yaml:"steps"`
}

// BadgeEntry describes a badge. Exactly one of ProjectCount or Skill is set.
type BadgeEntry struct {
	ID           string        `yaml:"id"`
	Name         string        `yaml:"name"`
	Description  string        `yaml:"description"`
	Icon         string        `yaml:"icon"`
	ProjectCount *ProjectCount `yaml:"project_count"`
	Skill        string        `yaml:"skill"`
}

// ProjectCount is the YAML form of a project-count criterion.
type ProjectCount struct {
	Target string `yaml:"target"`
	Count  int    `yaml:"count"`
}

func (b BadgeEntry) criterion() (badge.Criterion, error) {
	switch {
	case b.ProjectCount != nil && b.Skill != "":
		return nil, fmt.Errorf("badge %s: project_count and skill are mutually exclusive", b.ID)
	case b.ProjectCount != nil:
		return badge.ParseCriterion(badge.CriterionProjectCount, b.ProjectCount.Target, b.ProjectCount.Count)
	case b.Skill != "":
		return badge.ParseCriterion(badge.CriterionSkill, b.Skill, 0)
	default:
		return nil, fmt.Errorf("badge %s: criterion is required", b.ID)
	}
}

// Parse decodes and validates a catalogue document.
func Parse(data []byte) (*File, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("catalog: document is empty")
	}

	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("catalog: decode: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Load reads and parses a catalogue file.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Validate checks IDs and cross references. Field-level rules are left to
// the domain constructors at import time.
func (f *File) Validate() error {
	var errs []string
	seen := map[string]map[string]bool{"process": {}, "project": {}, "badge": {}}
	check := func(kind, id string) {
		if strings.TrimSpace(id) == "" {
			errs = append(errs, kind+" with empty id")
			return
		}
		if seen[kind][id] {
			errs = append(errs, fmt.Sprintf("duplicate %s id %q", kind, id))
		}
		seen[kind][id] = true
	}

	for _, p := range f.Processes {
		check("process", p.ID)
	}
	for _, p := range f.Projects {
		check("project", p.ID)
	}
	for _, b := range f.Badges {
		check("badge", b.ID)
		if _, err := b.criterion(); err != nil {
			errs = append(errs, err.Error())
		}
	}
	if f.DefaultProcess != "" && !seen["process"][f.DefaultProcess] {
		errs = append(errs, fmt.Sprintf("default_process %q is not defined", f.DefaultProcess))
	}

	if len(errs) > 0 {
		return fmt.Errorf("catalog: invalid document:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// IMPORTER
// ══════════════════════════════════════════════════════════════════════════════

// Importer writes a catalogue into the repositories.
type Importer struct {
	processes workflow.Repository
	projects  workflow.ProjectTemplateRepository
	badges    badge.CatalogueRepository
	ids       shared.IDGenerator
	log       *zap.Logger
}

// NewImporter creates an Importer. ids generates phase IDs.
func NewImporter(
	processes workflow.Repository,
	projects workflow.ProjectTemplateRepository,
	badges badge.CatalogueRepository,
	ids shared.IDGenerator,
	log *zap.Logger,
) *Importer {
	return &Importer{
		processes: processes,
		projects:  projects,
		badges:    badges,
		ids:       ids,
		log:       logger.OrNop(log).With(logger.Component("catalog")),
	}
}

// Result counts what an import did.
type Result struct {
	Created        int
	Skipped        int
	DefaultChanged bool
}

// Import creates every entry that does not exist yet. It stops at the first
// error; entries created before it stay.
func (im *Importer) Import(ctx context.Context, f *File) (Result, error) {
	var res Result

	for _, e := range f.Processes {
		created, err := im.importProcess(ctx, e)
		if err != nil {
			return res, fmt.Errorf("process %s: %w", e.ID, err)
		}
		res.count(created)
	}

	for _, e := range f.Projects {
		created, err := im.importProject(ctx, e)
		if err != nil {
			return res, fmt.Errorf("project %s: %w", e.ID, err)
		}
		res.count(created)
	}

	for _, e := range f.Badges {
		created, err := im.importBadge(ctx, e)
		if err != nil {
			return res, fmt.Errorf("badge %s: %w", e.ID, err)
		}
		res.count(created)
	}

	if f.DefaultProcess != "" {
		changed, err := im.ensureDefault(ctx, f.DefaultProcess)
		if err != nil {
			return res, fmt.Errorf("default process: %w", err)
		}
		res.DefaultChanged = changed
	}

	im.log.Info("catalogue imported",
		zap.Int("created", res.Created),
		zap.Int("skipped", res.Skipped),
		zap.Bool("default_changed", res.DefaultChanged),
	)
	return res, nil
}

func (r *Result) count(created bool) {
	if created {
		r.Created++
	} else {
		r.Skipped++
	}
}

func (im *Importer) importProcess(ctx context.Context, e ProcessEntry) (bool, error) {
	_, err := im.processes.GetByID(ctx, e.ID)
	if err == nil {
		return false, nil
	}
	if !shared.IsNotFound(err) {
		return false, err
	}

	phases := make([]workflow.Phase, len(e.Phases))
	for i, name := range e.Phases {
		phases[i] = workflow.Phase{ID: im.ids.GenerateID(), Name: name, Order: i + 1}
	}
	t, err := workflow.NewProcessTemplate(workflow.NewProcessTemplateParams{ID: e.ID, Name: e.Name, Phases: phases})
	if err != nil {
		return false, err
	}
	if err := im.processes.Create(ctx, t); err != nil {
		return false, err
	}
	im.log.Debug("process template imported", logger.TemplateID(t.ID))
	return true, nil
}

func (im *Importer) importProject(ctx context.Context, e ProjectEntry) (bool, error) {
	_, err := im.projects.GetByID(ctx, e.ID)
	if err == nil {
		return false, nil
	}
	if !shared.IsNotFound(err) {
		return false, err
	}

	t, err := workflow.NewProjectTemplate(e.ID, e.Name, e.Station, e.Steps)
	if err != nil {
		return false, err
	}
	t.Description = e.Description
	if err := im.projects.Create(ctx, t); err != nil {
		return false, err
	}
	im.log.Debug("project template imported", logger.TemplateID(t.ID))
	return true, nil
}

func (im *Importer) importBadge(ctx context.Context, e BadgeEntry) (bool, error) {
	_, err := im.badges.GetByID(ctx, e.ID)
	if err == nil {
		return false, nil
	}
	if !shared.IsNotFound(err) {
		return false, err
	}

	crit, err := e.criterion()
	if err != nil {
		return false, err
	}
	b, err := badge.NewBadge(badge.NewBadgeParams{
		ID:          e.ID,
		Name:        e.Name,
		Description: e.Description,
		Icon:        e.Icon,
		Criterion:   crit,
	})
	if err != nil {
		return false, err
	}
	if err := im.badges.Create(ctx, b); err != nil {
		return false, err
	}
	im.log.Debug("badge imported", logger.BadgeID(b.ID))
	return true, nil
}

// ensureDefault sets the default template only when none exists, so a
// default chosen by an instructor survives later imports.
func (im *Importer) ensureDefault(ctx context.Context, id string) (bool, error) {
	_, err := im.processes.GetDefault(ctx)
	if err == nil {
		return false, nil
	}
	if !shared.IsNotFound(err) {
		return false, err
	}
	if _, err := im.processes.SetDefault(ctx, id); err != nil {
		return false, err
	}
	im.log.Info("default process template set", logger.TemplateID(id))
	return true, nil
}
