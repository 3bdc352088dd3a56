package project

import (
	"time"
)

// StepStatus - состояние шага.
type StepStatus string

const (
	StepTodo  StepStatus = "todo"
	StepDoing StepStatus = "doing"
	StepDone  StepStatus = "done"
)

// IsValid проверяет, что статус шага корректен.
func (s StepStatus) IsValid() bool {
	return s == StepTodo || s == StepDoing || s == StepDone
}

// ProofStatus - состояние проверки доказательства работы.
// Пошаговое отклонение доказательства преподавателем пока не реализовано,
// поэтому на практике встречается только pending.
type ProofStatus string

const (
	ProofNone     ProofStatus = ""
	ProofPending  ProofStatus = "pending"
	ProofApproved ProofStatus = "approved"
	ProofRejected ProofStatus = "rejected"
)

// ProjectStep - один шаг проекта. Порядок шагов определяется их позицией
// в StudentProject.Steps.
type ProjectStep struct {
	ID          string
	Title       string
	Status      StepStatus
	IsLocked    bool
	ProofURL    string
	ProofStatus ProofStatus
}

// IsDone возвращает true для завершённого шага.
func (s ProjectStep) IsDone() bool {
	return s.Status == StepDone
}

// HasProof возвращает true, если к шагу приложен артефакт.
func (s ProjectStep) HasProof() bool {
	return s.ProofURL != ""
}

// StepMove - запрос на перемещение шага.
type StepMove struct {
	// StepID - перемещаемый шаг.
	StepID string

	// To - целевой статус.
	To StepStatus

	// ProofURL - ссылка на артефакт (data URI или URL), загруженный
	// вызывающей стороной до коммита перехода.
	ProofURL string

	// Guided - шаг выполняется внутри пошагового мастера, который сам
	// управляет гейтингом; доказательство в этом случае не требуется.
	Guided bool
}

// ArchivedStep - шаг с доказательством, снятый при замене workflow.
type ArchivedStep struct {
	ProjectID  string
	WorkflowID string
	Position   int
	Step       ProjectStep
	ArchivedAt time.Time
}
