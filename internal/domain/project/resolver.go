package project

import (
	"github.com/alem-hub/alem-missions/internal/domain/shared"
	"github.com/alem-hub/alem-missions/internal/domain/workflow"
)

// ══════════════════════════════════════════════════════════════════════════════
// WORKFLOW RESOLVER
// Превращает выбранный шаблон процесса или плоский список шагов шаблона
// проекта в начальный упорядоченный список шагов.
// ══════════════════════════════════════════════════════════════════════════════

// ResolveSteps строит начальные шаги проекта.
//
// Приоритет: шаблон процесса (фазы по Order, 1:1 в шаги) → плоский список
// названий → пустой список. Все полученные шаги находятся в todo и
// заблокированы; каждый получает новый ID.
func ResolveSteps(process *workflow.ProcessTemplate, stepTitles []string, ids shared.IDGenerator) []ProjectStep {
	var titles []string

	switch {
	case process != nil && len(process.Phases) > 0:
		for _, phase := range process.OrderedPhases() {
			titles = append(titles, phase.Name)
		}
	default:
		for _, t := range stepTitles {
			if t = shared.NormalizeTitle(t); t != "" {
				titles = append(titles, t)
			}
		}
	}

	steps := make([]ProjectStep, 0, len(titles))
	for _, title := range titles {
		steps = append(steps, ProjectStep{
			ID:       ids.GenerateID(),
			Title:    title,
			Status:   StepTodo,
			IsLocked: true,
		})
	}

	return steps
}
