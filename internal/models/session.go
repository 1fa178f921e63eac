package models

import (
	"time"

	"gorm.io/datatypes"
)

type InstanceStatus string

const (
	InstanceInProgress InstanceStatus = "in_progress"
	InstanceSubmitted  InstanceStatus = "submitted"
	InstanceEvaluated  InstanceStatus = "evaluated"
)

const (
	EndReasonManual  = "manual"
	EndReasonTimeout = "time_out"
	EndReasonBeacon  = "beacon"
)

// LowTimeThreshold is the remaining-seconds boundary below which the
// session reports low time. Computed on read, never stored.
const LowTimeThreshold = 300

// AssessmentInstance is one participant attempt at an assessment. The
// status machine is in_progress -> submitted -> evaluated, monotonic.
type AssessmentInstance struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	AssessmentID uint `json:"assessment_id" gorm:"not null;index"`

	// Participant is either a known user or anonymous via share token.
	ParticipantID   *string `json:"participant_id" gorm:"index;size:255"`
	ParticipantName *string `json:"participant_name" gorm:"size:200"`
	ShareLinkID     *uint   `json:"share_link_id" gorm:"index"`

	AttemptNumber int            `json:"attempt_number" gorm:"not null;default:1"`
	Status        InstanceStatus `json:"status" gorm:"default:in_progress;index"`

	// Timing
	StartedAt     *time.Time `json:"started_at"`
	Deadline      *time.Time `json:"deadline"` // StartedAt + duration, shifted by pauses and extensions
	SubmittedAt   *time.Time `json:"submitted_at"`
	TimeRemaining int        `json:"time_remaining"` // seconds, coarse snapshot for recovery
	TimeSpent     int        `json:"time_spent"`     // seconds, fixed at submit: planned - remaining
	Paused        bool       `json:"paused"`
	PausedAt      *time.Time `json:"paused_at"`

	// Progress tracking
	CurrentQuestionIndex int `json:"current_question_index"`
	QuestionsAnswered    int `json:"questions_answered"`
	TotalQuestions       int `json:"total_questions"`

	// Scoring
	Score      float64 `json:"score"`
	MaxScore   int     `json:"max_score"`
	Percentage float64 `json:"percentage"`

	// Metadata
	EndReason   *string        `json:"end_reason" gorm:"size:50"`
	IPAddress   *string        `json:"ip_address" gorm:"size:45"`
	UserAgent   *string        `json:"user_agent" gorm:"type:text"`
	SessionData datatypes.JSON `json:"session_data" gorm:"type:jsonb"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment  Assessment      `json:"assessment" gorm:"foreignKey:AssessmentID"`
	ShareLink   *ShareLink      `json:"share_link" gorm:"foreignKey:ShareLinkID"`
	Submissions []Submission    `json:"submissions" gorm:"foreignKey:InstanceID"`
	Events      []SecurityEvent `json:"events" gorm:"foreignKey:InstanceID"`
}

// Terminal reports whether the instance has left in_progress. Terminal
// instances reject answer saves, navigation, and re-submission.
func (i *AssessmentInstance) Terminal() bool {
	return i.Status == InstanceSubmitted || i.Status == InstanceEvaluated
}

// Expired reports whether the deadline has passed for a running instance.
// Paused instances never expire: the clock is frozen in TimeRemaining and the
// stored deadline is stale until Unpause re-derives it.
func (i *AssessmentInstance) Expired(now time.Time) bool {
	if i.Paused {
		return false
	}
	return i.Status == InstanceInProgress && i.Deadline != nil && now.After(*i.Deadline)
}

// RemainingSeconds computes the live countdown value from the deadline,
// clamped at zero. Paused instances report the frozen snapshot.
func (i *AssessmentInstance) RemainingSeconds(now time.Time) int {
	if i.Status != InstanceInProgress {
		return 0
	}
	if i.Paused {
		return i.TimeRemaining
	}
	if i.Deadline == nil {
		return 0
	}
	remaining := int(i.Deadline.Sub(now).Seconds())
	if remaining < 0 {
		return 0
	}
	return remaining
}

// LowTime reports whether the countdown is under the warning threshold.
func (i *AssessmentInstance) LowTime(now time.Time) bool {
	return i.Status == InstanceInProgress && i.RemainingSeconds(now) <= LowTimeThreshold
}

func (AssessmentInstance) TableName() string {
	return "assessment_instances"
}
