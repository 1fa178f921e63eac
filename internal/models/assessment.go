package models

import (
	"time"

	"gorm.io/gorm"
)

type AssessmentStatus string

const (
	StatusDraft     AssessmentStatus = "draft"
	StatusPublished AssessmentStatus = "published"
	StatusArchived  AssessmentStatus = "archived"
)

type Assessment struct {
	ID          uint             `json:"id" gorm:"primaryKey"`
	Title       string           `json:"title" gorm:"not null;size:200;index" validate:"required,min=1,max=200"`
	Description *string          `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`
	Duration    int              `json:"duration" gorm:"not null" validate:"required,min=1,max=480"` // minutes
	Status      AssessmentStatus `json:"status" gorm:"default:draft;index" validate:"omitempty,oneof=draft published archived"`
	MaxAttempts int              `json:"max_attempts" gorm:"default:1" validate:"min=1,max=10"`
	TimeWarning int              `json:"time_warning" gorm:"default:300"` // low-time threshold in seconds
	DueDate     *time.Time       `json:"due_date"`

	// Metadata
	CreatedBy string         `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`

	// Relations
	Settings  AssessmentSettings   `json:"settings" gorm:"foreignKey:AssessmentID"`
	Questions []AssessmentQuestion `json:"questions" gorm:"foreignKey:AssessmentID"`
	Instances []AssessmentInstance `json:"instances" gorm:"foreignKey:AssessmentID"`
	Creator   User                 `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Computed fields (not stored)
	QuestionsCount int `json:"questions_count" gorm:"-"`
	TotalPoints    int `json:"total_points" gorm:"-"`
	InstanceCount  int `json:"instance_count" gorm:"-"`
}

// MCQOnly reports whether every question attached to the assessment is
// multiple choice. Such assessments are scored synchronously at submit.
func (a *Assessment) MCQOnly() bool {
	if len(a.Questions) == 0 {
		return false
	}
	for _, aq := range a.Questions {
		if aq.Question.Type != MultipleChoice {
			return false
		}
	}
	return true
}

type AssessmentSettings struct {
	AssessmentID uint `json:"assessment_id" gorm:"primaryKey"`

	// Display settings
	RandomizeQuestions bool `json:"randomize_questions" gorm:"default:false"`
	ShowProgressBar    bool `json:"show_progress_bar" gorm:"default:true"`

	// Result settings
	ShowResults        bool `json:"show_results" gorm:"default:true"`
	ShowCorrectAnswers bool `json:"show_correct_answers" gorm:"default:false"`

	// Time settings
	AutoSubmitOnTimeout bool `json:"auto_submit_on_timeout" gorm:"default:true"`

	// Proctoring settings
	ProctoringRequired bool `json:"proctoring_required" gorm:"default:false"`
	RequireCamera      bool `json:"require_camera" gorm:"default:false"`
	RequireMicrophone  bool `json:"require_microphone" gorm:"default:false"`
	RequireFullscreen  bool `json:"require_fullscreen" gorm:"default:false"`
	FaceCheckEnabled   bool `json:"face_check_enabled" gorm:"default:false"`
	BlockShortcuts     bool `json:"block_shortcuts" gorm:"default:false"`
}

func (Assessment) TableName() string {
	return "assessments"
}
