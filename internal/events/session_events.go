package events

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies the kind of assessment event
type EventType string

const (
	// Assessment lifecycle events
	EventAssessmentPublished EventType = "assessment.published"
	EventAssessmentArchived  EventType = "assessment.archived"

	// Instance events
	EventInstanceStarted     EventType = "instance.started"
	EventInstanceSubmitted   EventType = "instance.submitted"
	EventInstanceEvaluated   EventType = "instance.evaluated"
	EventInstanceTimeWarning EventType = "instance.time_warning"

	// Evaluation events
	EventEvaluationRequested EventType = "evaluation.requested"

	// Proctoring events
	EventProctoringViolation EventType = "proctoring.violation"
)

// AssessmentEvent is the envelope for every published event
type AssessmentEvent struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Version   string                 `json:"version"`
	Data      interface{}            `json:"data"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Event payloads

type AssessmentPublishedEvent struct {
	AssessmentID    uint       `json:"assessment_id"`
	AssessmentTitle string     `json:"assessment_title"`
	DueDate         *time.Time `json:"due_date,omitempty"`
	Duration        int        `json:"duration"` // minutes
	CreatorID       string     `json:"creator_id"`
}

type InstanceStartedEvent struct {
	InstanceID      uint      `json:"instance_id"`
	AssessmentID    uint      `json:"assessment_id"`
	AssessmentTitle string    `json:"assessment_title"`
	ParticipantID   string    `json:"participant_id"`
	AttemptNumber   int       `json:"attempt_number"`
	StartedAt       time.Time `json:"started_at"`
	Deadline        time.Time `json:"deadline"`
}

type InstanceSubmittedEvent struct {
	InstanceID      uint      `json:"instance_id"`
	AssessmentID    uint      `json:"assessment_id"`
	AssessmentTitle string    `json:"assessment_title"`
	ParticipantID   string    `json:"participant_id"`
	SubmittedAt     time.Time `json:"submitted_at"`
	EndReason       string    `json:"end_reason"`
	Score           *float64  `json:"score,omitempty"`
	EvaluationAsync bool      `json:"evaluation_async"`
}

type InstanceEvaluatedEvent struct {
	InstanceID      uint      `json:"instance_id"`
	AssessmentID    uint      `json:"assessment_id"`
	AssessmentTitle string    `json:"assessment_title"`
	ParticipantID   string    `json:"participant_id"`
	EvaluatedAt     time.Time `json:"evaluated_at"`
	Score           float64   `json:"score"`
	MaxScore        float64   `json:"max_score"`
	Percentage      float64   `json:"percentage"`
}

type InstanceTimeWarningEvent struct {
	InstanceID       uint      `json:"instance_id"`
	AssessmentID     uint      `json:"assessment_id"`
	ParticipantID    string    `json:"participant_id"`
	SecondsRemaining int       `json:"seconds_remaining"`
	WarningTime      time.Time `json:"warning_time"`
}

type EvaluationRequestedEvent struct {
	InstanceID    uint      `json:"instance_id"`
	AssessmentID  uint      `json:"assessment_id"`
	ParticipantID string    `json:"participant_id"`
	RequestedAt   time.Time `json:"requested_at"`
	QuestionIDs   []uint    `json:"question_ids"`
}

type ProctoringViolationEvent struct {
	InstanceID     uint      `json:"instance_id"`
	AssessmentID   uint      `json:"assessment_id"`
	ParticipantID  string    `json:"participant_id"`
	ViolationType  string    `json:"violation_type"`
	Severity       string    `json:"severity"`
	IntegrityScore float64   `json:"integrity_score"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// Event factory functions

func NewEvent(eventType EventType, data interface{}) *AssessmentEvent {
	return &AssessmentEvent{
		ID:        uuid.NewString(),
		Type:      eventType,
		Timestamp: time.Now(),
		Source:    "assessment-service",
		Version:   "1.0",
		Data:      data,
	}
}

func NewInstanceStartedEvent(instanceID, assessmentID uint, title, participantID string, attempt int, startedAt, deadline time.Time) *AssessmentEvent {
	return NewEvent(EventInstanceStarted, InstanceStartedEvent{
		InstanceID:      instanceID,
		AssessmentID:    assessmentID,
		AssessmentTitle: title,
		ParticipantID:   participantID,
		AttemptNumber:   attempt,
		StartedAt:       startedAt,
		Deadline:        deadline,
	})
}

func NewInstanceSubmittedEvent(instanceID, assessmentID uint, title, participantID string, submittedAt time.Time, endReason string, score *float64, async bool) *AssessmentEvent {
	return NewEvent(EventInstanceSubmitted, InstanceSubmittedEvent{
		InstanceID:      instanceID,
		AssessmentID:    assessmentID,
		AssessmentTitle: title,
		ParticipantID:   participantID,
		SubmittedAt:     submittedAt,
		EndReason:       endReason,
		Score:           score,
		EvaluationAsync: async,
	})
}

func NewEvaluationRequestedEvent(instanceID, assessmentID uint, participantID string, questionIDs []uint) *AssessmentEvent {
	return NewEvent(EventEvaluationRequested, EvaluationRequestedEvent{
		InstanceID:    instanceID,
		AssessmentID:  assessmentID,
		ParticipantID: participantID,
		RequestedAt:   time.Now(),
		QuestionIDs:   questionIDs,
	})
}

func NewProctoringViolationEvent(instanceID, assessmentID uint, participantID, violationType, severity string, integrity float64) *AssessmentEvent {
	return NewEvent(EventProctoringViolation, ProctoringViolationEvent{
		InstanceID:     instanceID,
		AssessmentID:   assessmentID,
		ParticipantID:  participantID,
		ViolationType:  violationType,
		Severity:       severity,
		IntegrityScore: integrity,
		OccurredAt:     time.Now(),
	})
}
