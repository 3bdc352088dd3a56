package badge

import (
	"fmt"
	"strings"

	"github.com/alem-hub/alem-missions/internal/domain/shared"
)

// CriterionType - тип критерия в хранилище.
type CriterionType string

const (
	CriterionProjectCount CriterionType = "project_count"
	CriterionSkill        CriterionType = "skill"
)

// TargetAll - цель project_count, считающая проекты всех станций.
const TargetAll = "all"

// Criterion - декларативное правило получения бейджа. Закрытый вариант:
// реализации существуют только в этом пакете.
type Criterion interface {
	// Type возвращает тип для хранения.
	Type() CriterionType

	// Validate проверяет корректность параметров.
	Validate() error

	sealed()
}

// ProjectCountCriterion - «опубликовать не меньше Count проектов»
// в станции Target (или во всех станциях при Target == "all").
type ProjectCountCriterion struct {
	Target string
	Count  int
}

func (ProjectCountCriterion) Type() CriterionType { return CriterionProjectCount }
func (ProjectCountCriterion) sealed()             {}

// Validate проверяет, что Count >= 1 и цель задана.
func (c ProjectCountCriterion) Validate() error {
	if c.Count < 1 {
		return shared.NewDomainError("badge", "ValidateCriterion", shared.ErrValidation, "project count must be at least 1")
	}
	if strings.TrimSpace(c.Target) == "" {
		return shared.NewDomainError("badge", "ValidateCriterion", shared.ErrValidation, "project count target is required")
	}
	return nil
}

// SkillCriterion - «в опубликованных проектах есть навык Skill».
// Сравнение точное.
type SkillCriterion struct {
	Skill string
}

func (SkillCriterion) Type() CriterionType { return CriterionSkill }
func (SkillCriterion) sealed()             {}

// Validate проверяет, что навык задан.
func (c SkillCriterion) Validate() error {
	if strings.TrimSpace(c.Skill) == "" {
		return shared.NewDomainError("badge", "ValidateCriterion", shared.ErrValidation, "skill is required")
	}
	return nil
}

// ParseCriterion собирает критерий из хранимого представления
// (type, target, count).
func ParseCriterion(typ CriterionType, target string, count int) (Criterion, error) {
	var c Criterion
	switch typ {
	case CriterionProjectCount:
		c = ProjectCountCriterion{Target: strings.ToLower(strings.TrimSpace(target)), Count: count}
	case CriterionSkill:
		c = SkillCriterion{Skill: strings.TrimSpace(target)}
	default:
		return nil, shared.NewDomainError("badge", "ParseCriterion", shared.ErrValidation,
			fmt.Sprintf("unknown criterion type %q", typ))
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// FlattenCriterion возвращает хранимое представление критерия.
func FlattenCriterion(c Criterion) (typ CriterionType, target string, count int) {
	switch v := c.(type) {
	case ProjectCountCriterion:
		return v.Type(), v.Target, v.Count
	case SkillCriterion:
		return v.Type(), v.Skill, 0
	default:
		return "", "", 0
	}
}
