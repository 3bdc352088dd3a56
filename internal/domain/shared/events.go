// Package shared contains common domain types, errors, and events
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types published by the lifecycle engine.
const (
	// Project lifecycle events
	EventProjectPlanned          EventType = "project.planned"
	EventProjectStatusChanged    EventType = "project.status_changed"
	EventProjectSubmitted        EventType = "project.submitted"
	EventProjectPublished        EventType = "project.published"
	EventProjectChangesRequested EventType = "project.changes_requested"
	EventWorkflowReplaced        EventType = "project.workflow_replaced"

	// Step events
	EventStepCompleted EventType = "step.completed"

	// Badge events
	EventBadgeEarned EventType = "badge.earned"

	// Template events
	EventDefaultWorkflowChanged EventType = "workflow.default_changed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	Version       int       `json:"version"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now().UTC(),
		AggregateId: aggregateID,
		Version:     1,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// ═══════════════════════════════════════════════════════════════════════════
// Project Events
// ═══════════════════════════════════════════════════════════════════════════

// ProjectPlannedEvent is emitted when a student starts a new project.
type ProjectPlannedEvent struct {
	BaseEvent
	StudentID  string `json:"student_id"`
	WorkflowID string `json:"workflow_id,omitempty"`
	TemplateID string `json:"template_id,omitempty"`
	StepCount  int    `json:"step_count"`
}

// Payload implements Event interface.
func (e ProjectPlannedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":  e.StudentID,
		"workflow_id": e.WorkflowID,
		"template_id": e.TemplateID,
		"step_count":  e.StepCount,
	}
}

// NewProjectPlannedEvent creates a new ProjectPlannedEvent.
func NewProjectPlannedEvent(projectID, studentID, workflowID, templateID string, steps int) ProjectPlannedEvent {
	return ProjectPlannedEvent{
		BaseEvent:  NewBaseEvent(EventProjectPlanned, projectID),
		StudentID:  studentID,
		WorkflowID: workflowID,
		TemplateID: templateID,
		StepCount:  steps,
	}
}

// ProjectStatusChangedEvent is emitted on every state machine transition.
type ProjectStatusChangedEvent struct {
	BaseEvent
	StudentID string `json:"student_id"`
	From      string `json:"from"`
	To        string `json:"to"`
	ActorID   string `json:"actor_id"`
}

// Payload implements Event interface.
func (e ProjectStatusChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id": e.StudentID,
		"from":       e.From,
		"to":         e.To,
		"actor_id":   e.ActorID,
	}
}

// NewProjectStatusChangedEvent creates a new ProjectStatusChangedEvent.
// The event type is specialised for the states other components react to.
func NewProjectStatusChangedEvent(projectID, studentID, from, to, actorID string) ProjectStatusChangedEvent {
	eventType := EventProjectStatusChanged
	switch to {
	case "submitted":
		eventType = EventProjectSubmitted
	case "published":
		eventType = EventProjectPublished
	case "changes_requested":
		eventType = EventProjectChangesRequested
	}

	return ProjectStatusChangedEvent{
		BaseEvent: NewBaseEvent(eventType, projectID),
		StudentID: studentID,
		From:      from,
		To:        to,
		ActorID:   actorID,
	}
}

// WorkflowReplacedEvent is emitted when a project's step list is replaced.
type WorkflowReplacedEvent struct {
	BaseEvent
	WorkflowID    string `json:"workflow_id"`
	StepsRemoved  int    `json:"steps_removed"`
	StepsCreated  int    `json:"steps_created"`
	ProofsArchive int    `json:"proofs_archived"`
}

// Payload implements Event interface.
func (e WorkflowReplacedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"workflow_id":     e.WorkflowID,
		"steps_removed":   e.StepsRemoved,
		"steps_created":   e.StepsCreated,
		"proofs_archived": e.ProofsArchive,
	}
}

// NewWorkflowReplacedEvent creates a new WorkflowReplacedEvent.
func NewWorkflowReplacedEvent(projectID, workflowID string, removed, created, archived int) WorkflowReplacedEvent {
	return WorkflowReplacedEvent{
		BaseEvent:     NewBaseEvent(EventWorkflowReplaced, projectID),
		WorkflowID:    workflowID,
		StepsRemoved:  removed,
		StepsCreated:  created,
		ProofsArchive: archived,
	}
}

// StepCompletedEvent is emitted when a step reaches done.
type StepCompletedEvent struct {
	BaseEvent
	StepID   string `json:"step_id"`
	ProofURL string `json:"proof_url,omitempty"`
	Guided   bool   `json:"guided"`
}

// Payload implements Event interface.
func (e StepCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"step_id":   e.StepID,
		"proof_url": e.ProofURL,
		"guided":    e.Guided,
	}
}

// NewStepCompletedEvent creates a new StepCompletedEvent.
func NewStepCompletedEvent(projectID, stepID, proofURL string, guided bool) StepCompletedEvent {
	return StepCompletedEvent{
		BaseEvent: NewBaseEvent(EventStepCompleted, projectID),
		StepID:    stepID,
		ProofURL:  proofURL,
		Guided:    guided,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Badge Events
// ═══════════════════════════════════════════════════════════════════════════

// BadgeEarnedEvent is emitted for every newly earned badge.
type BadgeEarnedEvent struct {
	BaseEvent
	BadgeID   string `json:"badge_id"`
	BadgeName string `json:"badge_name"`
	ProjectID string `json:"project_id,omitempty"`
}

// Payload implements Event interface.
func (e BadgeEarnedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"badge_id":   e.BadgeID,
		"badge_name": e.BadgeName,
		"project_id": e.ProjectID,
	}
}

// NewBadgeEarnedEvent creates a new BadgeEarnedEvent. The aggregate is the student.
func NewBadgeEarnedEvent(studentID, badgeID, badgeName, projectID string) BadgeEarnedEvent {
	return BadgeEarnedEvent{
		BaseEvent: NewBaseEvent(EventBadgeEarned, studentID),
		BadgeID:   badgeID,
		BadgeName: badgeName,
		ProjectID: projectID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Template Events
// ═══════════════════════════════════════════════════════════════════════════

// DefaultWorkflowChangedEvent is emitted after the default template switch commits.
type DefaultWorkflowChangedEvent struct {
	BaseEvent
	PreviousID string `json:"previous_id,omitempty"`
}

// Payload implements Event interface.
func (e DefaultWorkflowChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"previous_id": e.PreviousID,
	}
}

// NewDefaultWorkflowChangedEvent creates a new DefaultWorkflowChangedEvent.
func NewDefaultWorkflowChangedEvent(templateID, previousID string) DefaultWorkflowChangedEvent {
	return DefaultWorkflowChangedEvent{
		BaseEvent:  NewBaseEvent(EventDefaultWorkflowChanged, templateID),
		PreviousID: previousID,
	}
}

// ═══════════════════════════════════════════════════════════════════════════
// Bus contracts
// ═══════════════════════════════════════════════════════════════════════════

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
