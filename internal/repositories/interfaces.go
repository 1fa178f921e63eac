package repositories

import (
	"context"
	"time"

	"github.com/assessly/assessment-service/internal/models"
	"gorm.io/gorm"
)

// ===== SHARED FILTER STRUCTS =====

type AssessmentFilters struct {
	Status    *models.AssessmentStatus `json:"status"`
	CreatedBy *string                  `json:"created_by"`
	Search    *string                  `json:"search"`
	DateFrom  *time.Time               `json:"date_from"`
	DateTo    *time.Time               `json:"date_to"`
	Limit     int                      `json:"limit"`
	Offset    int                      `json:"offset"`
	SortBy    string                   `json:"sort_by"`    // "created_at", "title", "due_date"
	SortOrder string                   `json:"sort_order"` // "asc", "desc"
}

type InstanceFilters struct {
	Status        *models.InstanceStatus `json:"status"`
	ParticipantID *string                `json:"participant_id"`
	AssessmentID  *uint                  `json:"assessment_id"`
	DateFrom      *time.Time             `json:"date_from"`
	DateTo        *time.Time             `json:"date_to"`
	Limit         int                    `json:"limit"`
	Offset        int                    `json:"offset"`
	SortBy        string                 `json:"sort_by"`
	SortOrder     string                 `json:"sort_order"`
}

type SubmissionFilters struct {
	IsEvaluated *bool      `json:"is_evaluated"`
	EvaluatedBy *string    `json:"evaluated_by"`
	DateFrom    *time.Time `json:"date_from"`
	DateTo      *time.Time `json:"date_to"`
	Limit       int        `json:"limit"`
	Offset      int        `json:"offset"`
}

type SecurityEventFilters struct {
	Type     *models.SecurityEventType `json:"type"`
	Severity *models.EventSeverity     `json:"severity"`
	Limit    int                       `json:"limit"`
	Offset   int                       `json:"offset"`
}

// ===== SHARED HELPER STRUCTS =====

type QuestionOrder struct {
	QuestionID uint `json:"question_id"`
	Order      int  `json:"order"`
}

type SubmissionEvaluation struct {
	ID          uint    `json:"submission_id"`
	Score       float64 `json:"score"`
	Feedback    *string `json:"feedback"`
	EvaluatorID string  `json:"evaluator_id"`
}

type InstanceValidation struct {
	CanStart bool   `json:"can_start"`
	Reason   string `json:"reason,omitempty"`
}

// ===== STATISTICS STRUCTS =====

type AssessmentStats struct {
	TotalInstances     int     `json:"total_instances"`
	CompletedInstances int     `json:"completed_instances"`
	AverageScore       float64 `json:"average_score"`
	AverageTimeSpent   int     `json:"average_time_spent"`
	QuestionCount      int     `json:"question_count"`
	TotalPoints        int     `json:"total_points"`
}

type EvaluationStats struct {
	TotalSubmissions   int `json:"total_submissions"`
	EvaluatedCount     int `json:"evaluated_count"`
	PendingCount       int `json:"pending_count"`
	AutoEvaluatedCount int `json:"auto_evaluated_count"`
}

// ===== REPOSITORY INTERFACES =====

// AssessmentRepository handles assessment persistence
type AssessmentRepository interface {
	Create(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.Assessment, error)
	Update(ctx context.Context, tx *gorm.DB, assessment *models.Assessment) error
	Delete(ctx context.Context, tx *gorm.DB, id uint) error

	List(ctx context.Context, tx *gorm.DB, filters AssessmentFilters) ([]*models.Assessment, int64, error)
	GetByCreator(ctx context.Context, tx *gorm.DB, creatorID string, filters AssessmentFilters) ([]*models.Assessment, int64, error)

	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.AssessmentStatus) error
	GetSettings(ctx context.Context, tx *gorm.DB, assessmentID uint) (*models.AssessmentSettings, error)
	UpsertSettings(ctx context.Context, tx *gorm.DB, settings *models.AssessmentSettings) error

	HasInstances(ctx context.Context, tx *gorm.DB, id uint) (bool, error)
	GetStats(ctx context.Context, tx *gorm.DB, id uint) (*AssessmentStats, error)
}

// AssessmentQuestionRepository manages the question list of an assessment
type AssessmentQuestionRepository interface {
	Add(ctx context.Context, tx *gorm.DB, aq *models.AssessmentQuestion) error
	AddBatch(ctx context.Context, tx *gorm.DB, aqs []*models.AssessmentQuestion) error
	Remove(ctx context.Context, tx *gorm.DB, assessmentID, questionID uint) error
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.AssessmentQuestion, error)
	UpdateOrder(ctx context.Context, tx *gorm.DB, assessmentID uint, orders []QuestionOrder) error
	UpdatePoints(ctx context.Context, tx *gorm.DB, assessmentID, questionID uint, points int) error
	Count(ctx context.Context, tx *gorm.DB, assessmentID uint) (int64, error)
	TotalPoints(ctx context.Context, tx *gorm.DB, assessmentID uint) (int, error)
}

// InstanceRepository handles assessment instance persistence
type InstanceRepository interface {
	Create(ctx context.Context, tx *gorm.DB, instance *models.AssessmentInstance) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentInstance, error)
	GetByIDWithDetails(ctx context.Context, tx *gorm.DB, id uint) (*models.AssessmentInstance, error)
	Update(ctx context.Context, tx *gorm.DB, instance *models.AssessmentInstance) error

	List(ctx context.Context, tx *gorm.DB, filters InstanceFilters) ([]*models.AssessmentInstance, int64, error)
	GetByParticipant(ctx context.Context, tx *gorm.DB, participantID string, filters InstanceFilters) ([]*models.AssessmentInstance, int64, error)
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint, filters InstanceFilters) ([]*models.AssessmentInstance, int64, error)

	GetActiveInstance(ctx context.Context, tx *gorm.DB, participantID string, assessmentID uint) (*models.AssessmentInstance, error)
	HasActiveInstance(ctx context.Context, tx *gorm.DB, participantID string, assessmentID uint) (bool, error)
	CountByParticipant(ctx context.Context, tx *gorm.DB, assessmentID uint, participantID string) (int64, error)

	UpdateStatus(ctx context.Context, tx *gorm.DB, id uint, status models.InstanceStatus) error
	UpdateProgress(ctx context.Context, tx *gorm.DB, id uint, currentIndex, answered int) error
	UpdateTimeRemaining(ctx context.Context, tx *gorm.DB, id uint, timeRemaining int) error

	// Expiry sweep: in_progress instances whose deadline has passed
	GetExpiredInstances(ctx context.Context, tx *gorm.DB, now time.Time, limit int) ([]*models.AssessmentInstance, error)
}

// SubmissionRepository handles per-question answer persistence
type SubmissionRepository interface {
	// Upsert keyed on (instance_id, question_id)
	Upsert(ctx context.Context, tx *gorm.DB, submission *models.Submission) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.Submission, error)
	GetByInstance(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Submission, error)
	GetByInstanceAndQuestion(ctx context.Context, tx *gorm.DB, instanceID, questionID uint) (*models.Submission, error)

	UpdateFlag(ctx context.Context, tx *gorm.DB, instanceID, questionID uint, flagged bool) error
	MarkVisited(ctx context.Context, tx *gorm.DB, instanceID, questionID uint) error

	UpdateEvaluation(ctx context.Context, tx *gorm.DB, evaluation SubmissionEvaluation) error
	GetPendingEvaluation(ctx context.Context, tx *gorm.DB, instanceID uint) ([]*models.Submission, error)
	CountAnswered(ctx context.Context, tx *gorm.DB, instanceID uint) (int64, error)
	GetEvaluationStats(ctx context.Context, tx *gorm.DB, instanceID uint) (*EvaluationStats, error)
}

// ProctoringRepository handles proctoring sessions and security events
type ProctoringRepository interface {
	CreateSession(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error
	GetSessionByInstance(ctx context.Context, tx *gorm.DB, instanceID uint) (*models.ProctoringSession, error)
	UpdateSession(ctx context.Context, tx *gorm.DB, session *models.ProctoringSession) error

	CreateEvent(ctx context.Context, tx *gorm.DB, event *models.SecurityEvent) error
	GetEventsByInstance(ctx context.Context, tx *gorm.DB, instanceID uint, filters SecurityEventFilters) ([]*models.SecurityEvent, int64, error)
	CountEventsBySeverity(ctx context.Context, tx *gorm.DB, instanceID uint) (map[models.EventSeverity]int64, error)
}

// ShareLinkRepository handles anonymous access tokens
type ShareLinkRepository interface {
	Create(ctx context.Context, tx *gorm.DB, link *models.ShareLink) error
	GetByID(ctx context.Context, tx *gorm.DB, id uint) (*models.ShareLink, error)
	GetByToken(ctx context.Context, tx *gorm.DB, token string) (*models.ShareLink, error)
	GetByAssessment(ctx context.Context, tx *gorm.DB, assessmentID uint) ([]*models.ShareLink, error)
	Update(ctx context.Context, tx *gorm.DB, link *models.ShareLink) error
	IncrementUse(ctx context.Context, tx *gorm.DB, id uint) error
	Revoke(ctx context.Context, tx *gorm.DB, id uint) error
}
