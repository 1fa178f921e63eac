package models

import (
	"time"

	"gorm.io/datatypes"
)

type QuestionType string

const (
	MultipleChoice QuestionType = "mcq"
	Coding         QuestionType = "coding"
	Subjective     QuestionType = "subjective"
	FileUpload     QuestionType = "file_upload"
	Audio          QuestionType = "audio"
	Interview      QuestionType = "interview"
)

type DifficultyLevel string

const (
	DifficultyEasy   DifficultyLevel = "easy"
	DifficultyMedium DifficultyLevel = "medium"
	DifficultyHard   DifficultyLevel = "hard"
)

type Question struct {
	ID     uint         `json:"id" gorm:"primaryKey"`
	Type   QuestionType `json:"type" gorm:"not null;index"`
	Text   string       `json:"text" gorm:"type:text;not null" validate:"required"`
	Points int          `json:"points" gorm:"default:10" validate:"min=1,max=100"` // default; AssessmentQuestion.Points overrides per assessment

	// Type-specific configuration stored as JSONB
	Content datatypes.JSON `json:"content" gorm:"type:jsonb"`

	Difficulty DifficultyLevel `json:"difficulty" gorm:"default:medium;index"`
	Tags       datatypes.JSON  `json:"tags" gorm:"type:jsonb"` // []string

	// Metadata
	Explanation *string   `json:"explanation" gorm:"type:text"`
	CreatedBy   string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Relations
	Creator User `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Statistics (computed)
	UsageCount int `json:"usage_count" gorm:"-"`
}

// AssessmentQuestion places a question into an assessment with an order
// index and a point value. Order indices are unique within an assessment;
// readers sort defensively anyway.
type AssessmentQuestion struct {
	ID           uint `json:"id" gorm:"primaryKey"`
	AssessmentID uint `json:"assessment_id" gorm:"not null;index;uniqueIndex:idx_assessment_question"`
	QuestionID   uint `json:"question_id" gorm:"not null;index;uniqueIndex:idx_assessment_question"`

	Order  int  `json:"order" gorm:"not null"`
	Points *int `json:"points"` // overrides Question.Points when set

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Assessment Assessment `json:"assessment" gorm:"foreignKey:AssessmentID"`
	Question   Question   `json:"question" gorm:"foreignKey:QuestionID"`
}

// EffectivePoints returns the per-assessment point value for the question.
func (aq *AssessmentQuestion) EffectivePoints() int {
	if aq.Points != nil {
		return *aq.Points
	}
	return aq.Question.Points
}

type QuestionBank struct {
	ID          uint    `json:"id" gorm:"primaryKey"`
	Name        string  `json:"name" gorm:"not null;size:200" validate:"required,max=200"`
	Description *string `json:"description" gorm:"type:text" validate:"omitempty,max=2000"`
	IsPublic    bool    `json:"is_public" gorm:"default:false"`

	CreatedBy string    `json:"created_by" gorm:"not null;index;size:255"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Relations
	Questions []Question `json:"questions" gorm:"many2many:question_bank_items"`
	Creator   User       `json:"creator" gorm:"foreignKey:CreatedBy"`

	// Statistics (computed)
	QuestionCount int `json:"question_count" gorm:"-"`
}

// ===== QUESTION CONTENT SCHEMAS =====

type MultipleChoiceContent struct {
	Options          []MCOption `json:"options" validate:"min=2,max=10"`
	CorrectOptions   []string   `json:"correct_options" validate:"min=1"`
	MultipleCorrect  bool       `json:"multiple_correct"`
	RandomizeOptions bool       `json:"randomize_options"`
}

type MCOption struct {
	ID    string `json:"id"`
	Text  string `json:"text" validate:"required"`
	Order int    `json:"order"`
}

type CodingContent struct {
	Language    string       `json:"language"`
	StarterCode *string      `json:"starter_code"`
	TestCases   []CodingTest `json:"test_cases"`
	TimeLimitMs *int         `json:"time_limit_ms"`
}

type CodingTest struct {
	Input    string `json:"input"`
	Expected string `json:"expected"`
	Hidden   bool   `json:"hidden"`
}

type SubjectiveContent struct {
	MinWords       *int     `json:"min_words"`
	MaxWords       *int     `json:"max_words"`
	RubricCriteria []string `json:"rubric_criteria"`
	SampleAnswer   *string  `json:"sample_answer"`
}

type FileUploadContent struct {
	AllowedExtensions []string `json:"allowed_extensions"`
	MaxFileSizeMB     int      `json:"max_file_size_mb"`
	MaxFiles          int      `json:"max_files"`
}

type AudioContent struct {
	MaxDurationSeconds int  `json:"max_duration_seconds"`
	AllowReRecord      bool `json:"allow_re_record"`
}

type InterviewContent struct {
	Topic         string  `json:"topic"`
	OpeningPrompt *string `json:"opening_prompt"`
	MaxTurns      int     `json:"max_turns"`
}
