package badge

import (
	"sort"
)

// ProjectSnapshot - то, что вычислителю нужно знать об опубликованном проекте.
type ProjectSnapshot struct {
	ProjectID string
	Station   string
	Skills    []string
}

// history - агрегаты по опубликованным проектам, считаются один раз на вызов.
type history struct {
	total     int
	byStation map[string]int
	skills    map[string]struct{}
}

func summarize(published []ProjectSnapshot) history {
	h := history{
		total:     len(published),
		byStation: make(map[string]int),
		skills:    make(map[string]struct{}),
	}
	for _, p := range published {
		h.byStation[p.Station]++
		for _, s := range p.Skills {
			h.skills[s] = struct{}{}
		}
	}
	return h
}

// Evaluate возвращает ID бейджей, которые студент заработал, но ещё не получил.
//
// Функция чистая: результат зависит только от аргументов и не зависит от
// порядка проектов или каталога. Повторный вызов с теми же проектами и
// дополненным held возвращает пустой список. Результат отсортирован по ID.
func Evaluate(published []ProjectSnapshot, catalogue []*Badge, held []string) []string {
	h := summarize(published)

	holding := make(map[string]struct{}, len(held))
	for _, id := range held {
		holding[id] = struct{}{}
	}

	earned := make([]string, 0)
	for _, b := range catalogue {
		if b == nil || b.Criterion == nil {
			continue
		}
		if _, ok := holding[b.ID]; ok {
			continue
		}
		if satisfied(b.Criterion, h) {
			earned = append(earned, b.ID)
			holding[b.ID] = struct{}{}
		}
	}

	sort.Strings(earned)
	return earned
}

// Satisfied сообщает, выполнен ли критерий для данного набора проектов.
func Satisfied(c Criterion, published []ProjectSnapshot) bool {
	return satisfied(c, summarize(published))
}

func satisfied(c Criterion, h history) bool {
	switch v := c.(type) {
	case ProjectCountCriterion:
		if v.Count < 1 {
			return false
		}
		if v.Target == TargetAll {
			return h.total >= v.Count
		}
		return h.byStation[v.Target] >= v.Count
	case SkillCriterion:
		_, ok := h.skills[v.Skill]
		return ok
	default:
		return false
	}
}
