package models

import (
	"time"

	"gorm.io/datatypes"
)

type SecurityEventType string

const (
	EventTabSwitch       SecurityEventType = "tab_switch"
	EventWindowBlur      SecurityEventType = "window_blur"
	EventFullscreenExit  SecurityEventType = "fullscreen_exit"
	EventBlockedShortcut SecurityEventType = "blocked_shortcut"
	EventNoFace          SecurityEventType = "no_face"
	EventMultipleFaces   SecurityEventType = "multiple_faces"
	EventCopyPaste       SecurityEventType = "copy_paste"
	EventRightClick      SecurityEventType = "right_click"
)

type EventSeverity string

const (
	SeverityLow      EventSeverity = "low"
	SeverityMedium   EventSeverity = "medium"
	SeverityHigh     EventSeverity = "high"
	SeverityCritical EventSeverity = "critical"
)

// SecurityEvent is one proctoring violation observed during an instance.
type SecurityEvent struct {
	ID         uint              `json:"id" gorm:"primaryKey"`
	InstanceID uint              `json:"instance_id" gorm:"not null;index"`
	Type       SecurityEventType `json:"type" gorm:"not null;index"`
	Severity   EventSeverity     `json:"severity" gorm:"not null;default:low"`

	Description string         `json:"description" gorm:"type:text"`
	Data        datatypes.JSON `json:"data" gorm:"type:jsonb"`
	QuestionID  *uint          `json:"question_id" gorm:"index"`
	TimeOffset  int            `json:"time_offset"` // seconds from instance start

	CreatedAt time.Time `json:"created_at"`

	// Relations
	Instance AssessmentInstance `json:"instance" gorm:"foreignKey:InstanceID"`
	Question *Question          `json:"question" gorm:"foreignKey:QuestionID"`
}

type MonitorState string

const (
	MonitorInitializing MonitorState = "initializing"
	MonitorActive       MonitorState = "active"
	MonitorPaused       MonitorState = "paused"
	MonitorStopped      MonitorState = "stopped"
)

// ProctoringSession tracks the monitor lifecycle for one instance:
// initializing -> active <-> paused -> stopped.
type ProctoringSession struct {
	ID         uint         `json:"id" gorm:"primaryKey"`
	InstanceID uint         `json:"instance_id" gorm:"not null;uniqueIndex"`
	State      MonitorState `json:"state" gorm:"default:initializing;index"`

	// Requirements granted at setup
	CameraGranted     bool `json:"camera_granted"`
	MicrophoneGranted bool `json:"microphone_granted"`
	FullscreenGranted bool `json:"fullscreen_granted"`

	StartedAt *time.Time `json:"started_at"`
	StoppedAt *time.Time `json:"stopped_at"`

	ViolationCount int     `json:"violation_count"`
	IntegrityScore float64 `json:"integrity_score" gorm:"default:100"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Instance AssessmentInstance `json:"instance" gorm:"foreignKey:InstanceID"`
}
