package models

import (
	"time"

	"gorm.io/datatypes"
)

// Submission holds the answer for one (instance, question) pair. Saves
// upsert on that pair; repeated saves overwrite, never duplicate.
type Submission struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	InstanceID uint `json:"instance_id" gorm:"not null;index;uniqueIndex:idx_instance_question"`
	QuestionID uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_instance_question"`

	// Answer payload, shape varies by question type
	Answer datatypes.JSON `json:"answer" gorm:"type:jsonb"`

	// Evaluation
	Score       float64    `json:"score"`
	MaxScore    int        `json:"max_score"`
	IsCorrect   *bool      `json:"is_correct"` // nil until evaluated; stays nil for manual types
	IsEvaluated bool       `json:"is_evaluated"`
	EvaluatedBy *string    `json:"evaluated_by" gorm:"size:255"` // evaluator user ID, or "auto"
	EvaluatedAt *time.Time `json:"evaluated_at"`
	Feedback    *string    `json:"feedback" gorm:"type:text"`

	// Session-scoped tracking
	Flagged   bool `json:"flagged"`
	Visited   bool `json:"visited"`
	TimeSpent int  `json:"time_spent"` // seconds

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Instance AssessmentInstance `json:"instance" gorm:"foreignKey:InstanceID"`
	Question Question           `json:"question" gorm:"foreignKey:QuestionID"`
}

// Answered reports whether a non-empty answer payload has been saved.
func (s *Submission) Answered() bool {
	return len(s.Answer) > 0 && string(s.Answer) != "null"
}

// ===== ANSWER PAYLOAD SCHEMAS =====

type MultipleChoiceAnswer struct {
	SelectedOptions []string `json:"selected_options"`
}

type CodingAnswer struct {
	Language   string  `json:"language"`
	SourceCode string  `json:"source_code"`
	LastOutput *string `json:"last_output"`
}

type SubjectiveAnswer struct {
	Text      string `json:"text"`
	WordCount int    `json:"word_count"`
}

type FileUploadAnswer struct {
	Files []UploadedFile `json:"files"`
}

type UploadedFile struct {
	Name     string `json:"name"`
	URL      string `json:"url"`
	Size     int64  `json:"size"`
	MimeType string `json:"mime_type"`
}

type AudioAnswer struct {
	RecordingURL    string `json:"recording_url"`
	DurationSeconds int    `json:"duration_seconds"`
}

type InterviewAnswer struct {
	Turns []InterviewTurn `json:"turns"`
}

type InterviewTurn struct {
	Role    string    `json:"role"` // "interviewer" or "candidate"
	Content string    `json:"content"`
	At      time.Time `json:"at"`
}
