package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
)

// ===== ASSESSMENT DTOs =====

type CreateAssessmentRequest struct {
	Title       string                      `json:"title" validate:"required,assessment_title"`
	Description *string                     `json:"description" validate:"omitempty,max=2000"`
	Duration    int                         `json:"duration" validate:"required,assessment_duration"`
	MaxAttempts int                         `json:"max_attempts" validate:"omitempty,max_attempts"`
	TimeWarning *int                        `json:"time_warning" validate:"omitempty,min=30,max=1800"`
	DueDate     *time.Time                  `json:"due_date" validate:"omitempty,future_date"`
	Settings    *AssessmentSettingsRequest  `json:"settings"`
	Questions   []AssessmentQuestionRequest `json:"questions" validate:"omitempty,dive"`
}

type UpdateAssessmentRequest struct {
	Title       *string                    `json:"title" validate:"omitempty,assessment_title"`
	Description *string                    `json:"description" validate:"omitempty,max=2000"`
	Duration    *int                       `json:"duration" validate:"omitempty,assessment_duration"`
	MaxAttempts *int                       `json:"max_attempts" validate:"omitempty,max_attempts"`
	TimeWarning *int                       `json:"time_warning" validate:"omitempty,min=30,max=1800"`
	DueDate     *time.Time                 `json:"due_date" validate:"omitempty,future_date"`
	Settings    *AssessmentSettingsRequest `json:"settings"`
}

type AssessmentSettingsRequest struct {
	RandomizeQuestions  *bool `json:"randomize_questions"`
	ShowProgressBar     *bool `json:"show_progress_bar"`
	ShowResults         *bool `json:"show_results"`
	ShowCorrectAnswers  *bool `json:"show_correct_answers"`
	AutoSubmitOnTimeout *bool `json:"auto_submit_on_timeout"`
	ProctoringRequired  *bool `json:"proctoring_required"`
	RequireCamera       *bool `json:"require_camera"`
	RequireMicrophone   *bool `json:"require_microphone"`
	RequireFullscreen   *bool `json:"require_fullscreen"`
	FaceCheckEnabled    *bool `json:"face_check_enabled"`
	BlockShortcuts      *bool `json:"block_shortcuts"`
}

type AssessmentQuestionRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	Order      int  `json:"order" validate:"required,min=1"`
	Points     *int `json:"points" validate:"omitempty,points_range"`
}

type AssessmentResponse struct {
	*models.Assessment
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
	CanTake   bool `json:"can_take"`
}

type AssessmentListResponse struct {
	Assessments []*AssessmentResponse `json:"assessments"`
	Total       int64                 `json:"total"`
	Page        int                   `json:"page"`
	Size        int                   `json:"size"`
}

type UpdateStatusRequest struct {
	Status models.AssessmentStatus `json:"status" validate:"required,assessment_status"`
	Reason *string                 `json:"reason" validate:"omitempty,max=500"`
}

// ===== QUESTION DTOs =====

type CreateQuestionRequest struct {
	Type        models.QuestionType    `json:"type" validate:"required,question_type"`
	Text        string                 `json:"text" validate:"required,min=1,max=2000"`
	Content     interface{}            `json:"content" validate:"required"`
	Points      int                    `json:"points" validate:"omitempty,points_range"`
	Difficulty  models.DifficultyLevel `json:"difficulty" validate:"omitempty,difficulty_level"`
	Tags        []string               `json:"tags" validate:"omitempty,max=10,dive,max=50"`
	Explanation *string                `json:"explanation" validate:"omitempty,max=1000"`
}

type UpdateQuestionRequest struct {
	Text        *string                 `json:"text" validate:"omitempty,min=1,max=2000"`
	Content     interface{}             `json:"content"`
	Points      *int                    `json:"points" validate:"omitempty,points_range"`
	Difficulty  *models.DifficultyLevel `json:"difficulty" validate:"omitempty,difficulty_level"`
	Tags        []string                `json:"tags" validate:"omitempty,max=10,dive,max=50"`
	Explanation *string                 `json:"explanation" validate:"omitempty,max=1000"`
}

type QuestionResponse struct {
	*models.Question
	CanEdit    bool `json:"can_edit"`
	CanDelete  bool `json:"can_delete"`
	UsageCount int  `json:"usage_count"`
}

type QuestionListResponse struct {
	Questions []*QuestionResponse `json:"questions"`
	Total     int64               `json:"total"`
	Page      int                 `json:"page"`
	Size      int                 `json:"size"`
}

// ===== QUESTION BANK DTOs =====

type CreateQuestionBankRequest struct {
	Name        string  `json:"name" validate:"required,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsPublic    bool    `json:"is_public"`
}

type UpdateQuestionBankRequest struct {
	Name        *string `json:"name" validate:"omitempty,max=200"`
	Description *string `json:"description" validate:"omitempty,max=2000"`
	IsPublic    *bool   `json:"is_public"`
}

type QuestionBankResponse struct {
	*models.QuestionBank
	CanEdit       bool `json:"can_edit"`
	CanDelete     bool `json:"can_delete"`
	QuestionCount int  `json:"question_count"`
	IsOwner       bool `json:"is_owner"`
}

type QuestionBankListResponse struct {
	Banks []*QuestionBankResponse `json:"banks"`
	Total int64                   `json:"total"`
	Page  int                     `json:"page"`
	Size  int                     `json:"size"`
}

type AddQuestionsToBankRequest struct {
	QuestionIDs []uint `json:"question_ids" validate:"required,min=1"`
}

// ===== SESSION DTOs =====

// Participant identifies who is taking the assessment: an authenticated
// user, or an anonymous participant admitted through a share token.
type Participant struct {
	UserID     *string `json:"user_id"`
	Name       *string `json:"name"`
	ShareToken *string `json:"share_token"`
	IPAddress  *string `json:"-"`
	UserAgent  *string `json:"-"`
}

type StartSessionRequest struct {
	AssessmentID uint `json:"assessment_id" validate:"required"`
}

type SaveAnswerRequest struct {
	QuestionID uint        `json:"question_id" validate:"required"`
	Answer     interface{} `json:"answer"`
	TimeSpent  *int        `json:"time_spent"`
}

type NavigateRequest struct {
	QuestionIndex int `json:"question_index" validate:"min=0"`
}

type FlagQuestionRequest struct {
	QuestionID uint `json:"question_id" validate:"required"`
	Flagged    bool `json:"flagged"`
}

type SnapshotRequest struct {
	CurrentQuestionIndex *int `json:"current_question_index"`
	TimeSpent            *int `json:"time_spent"`
}

type SubmitSessionRequest struct {
	EndReason string              `json:"end_reason"`
	Answers   []SaveAnswerRequest `json:"answers" validate:"omitempty,dive"`
}

type SessionResponse struct {
	*models.AssessmentInstance
	RemainingSeconds  int                  `json:"remaining_seconds"`
	LowTime           bool                 `json:"low_time"`
	CanSubmit         bool                 `json:"can_submit"`
	CanResume         bool                 `json:"can_resume"`
	PendingEvaluation bool                 `json:"pending_evaluation"`
	Questions         []QuestionForSession `json:"questions,omitempty"`
}

// QuestionForSession is the participant view of a question: correct
// answers are stripped from the content before it leaves the service.
type QuestionForSession struct {
	ID       uint                `json:"id"`
	Type     models.QuestionType `json:"type"`
	Text     string              `json:"text"`
	Content  json.RawMessage     `json:"content"`
	Points   int                 `json:"points"`
	Order    int                 `json:"order"`
	Flagged  bool                `json:"flagged"`
	Visited  bool                `json:"visited"`
	Answered bool                `json:"answered"`
	Answer   json.RawMessage     `json:"answer,omitempty"`
}

type SessionStateResponse struct {
	InstanceID       uint                  `json:"instance_id"`
	Status           models.InstanceStatus `json:"status"`
	RemainingSeconds int                   `json:"remaining_seconds"`
	LowTime          bool                  `json:"low_time"`
	CurrentIndex     int                   `json:"current_question_index"`
	Answered         int                   `json:"questions_answered"`
	Total            int                   `json:"total_questions"`
}

// ===== SCORING DTOs =====

type EvaluationResult struct {
	SubmissionID uint       `json:"submission_id"`
	QuestionID   uint       `json:"question_id"`
	Score        float64    `json:"score"`
	MaxScore     float64    `json:"max_score"`
	IsCorrect    *bool      `json:"is_correct"`
	Feedback     *string    `json:"feedback"`
	EvaluatedAt  time.Time  `json:"evaluated_at"`
	EvaluatedBy  string     `json:"evaluated_by"`
}

type InstanceEvaluationResult struct {
	InstanceID  uint               `json:"instance_id"`
	TotalScore  float64            `json:"total_score"`
	MaxScore    float64            `json:"max_score"`
	Percentage  float64            `json:"percentage"`
	Complete    bool               `json:"complete"` // all submissions evaluated
	Questions   []EvaluationResult `json:"questions"`
	EvaluatedAt time.Time          `json:"evaluated_at"`
}

type ManualEvaluationRequest struct {
	Score    float64 `json:"score" validate:"min=0"`
	Feedback *string `json:"feedback" validate:"omitempty,max=2000"`
}

// ===== PROCTORING DTOs =====

type ProctoringSetupRequest struct {
	CameraGranted     bool `json:"camera_granted"`
	MicrophoneGranted bool `json:"microphone_granted"`
	FullscreenGranted bool `json:"fullscreen_granted"`
}

type ReportEventRequest struct {
	Type        models.SecurityEventType `json:"type" validate:"required"`
	Severity    *models.EventSeverity    `json:"severity" validate:"omitempty,event_severity"`
	Description string                   `json:"description" validate:"omitempty,max=1000"`
	QuestionID  *uint                    `json:"question_id"`
	Data        interface{}              `json:"data"`
}

type ProctoringStatusResponse struct {
	*models.ProctoringSession
	RecentEvents []*models.SecurityEvent `json:"recent_events,omitempty"`
}

type IntegrityReport struct {
	InstanceID     uint                            `json:"instance_id"`
	IntegrityScore float64                         `json:"integrity_score"`
	ViolationCount int                             `json:"violation_count"`
	BySeverity     map[models.EventSeverity]int64  `json:"by_severity"`
	Events         []*models.SecurityEvent         `json:"events,omitempty"`
}

// ===== SHARE LINK DTOs =====

type CreateShareLinkRequest struct {
	ExpiresAt *time.Time `json:"expires_at" validate:"omitempty,future_date"`
	MaxUses   *int       `json:"max_uses" validate:"omitempty,min=1"`
}

type ShareLinkResponse struct {
	*models.ShareLink
	URL string `json:"url"`
}

type JoinByTokenRequest struct {
	ParticipantName string `json:"participant_name" validate:"required,min=1,max=200"`
}

// ===== SERVICE INTERFACES =====

type AssessmentService interface {
	// Core CRUD operations
	Create(ctx context.Context, req *CreateAssessmentRequest, creatorID string) (*AssessmentResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*AssessmentResponse, error)
	GetByIDWithDetails(ctx context.Context, id uint, userID string) (*AssessmentResponse, error)
	Update(ctx context.Context, id uint, req *UpdateAssessmentRequest, userID string) (*AssessmentResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	// List and search operations
	List(ctx context.Context, filters repositories.AssessmentFilters, userID string) (*AssessmentListResponse, error)
	GetByCreator(ctx context.Context, creatorID string, filters repositories.AssessmentFilters) (*AssessmentListResponse, error)

	// Status management
	UpdateStatus(ctx context.Context, id uint, req *UpdateStatusRequest, userID string) error
	Publish(ctx context.Context, id uint, userID string) error
	Archive(ctx context.Context, id uint, userID string) error

	// Question management
	AddQuestion(ctx context.Context, assessmentID uint, req *AssessmentQuestionRequest, userID string) error
	AddQuestionsBatch(ctx context.Context, assessmentID uint, reqs []AssessmentQuestionRequest, userID string) error
	RemoveQuestion(ctx context.Context, assessmentID, questionID uint, userID string) error
	ReorderQuestions(ctx context.Context, assessmentID uint, orders []repositories.QuestionOrder, userID string) error
	UpdateQuestionPoints(ctx context.Context, assessmentID, questionID uint, points int, userID string) error

	// Statistics
	GetStats(ctx context.Context, id uint, userID string) (*repositories.AssessmentStats, error)

	// Permission checks
	CanEdit(ctx context.Context, assessmentID uint, userID string) (bool, error)
	CanDelete(ctx context.Context, assessmentID uint, userID string) (bool, error)
}

type QuestionService interface {
	Create(ctx context.Context, req *CreateQuestionRequest, creatorID string) (*QuestionResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*QuestionResponse, error)
	Update(ctx context.Context, id uint, req *UpdateQuestionRequest, userID string) (*QuestionResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	List(ctx context.Context, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error)
	GetByCreator(ctx context.Context, creatorID string, filters repositories.QuestionFilters) (*QuestionListResponse, error)
	Search(ctx context.Context, query string, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error)

	CreateBatch(ctx context.Context, reqs []*CreateQuestionRequest, creatorID string) ([]*QuestionResponse, []error)
}

type QuestionBankService interface {
	Create(ctx context.Context, req *CreateQuestionBankRequest, creatorID string) (*QuestionBankResponse, error)
	GetByID(ctx context.Context, id uint, userID string) (*QuestionBankResponse, error)
	Update(ctx context.Context, id uint, req *UpdateQuestionBankRequest, userID string) (*QuestionBankResponse, error)
	Delete(ctx context.Context, id uint, userID string) error

	List(ctx context.Context, filters repositories.QuestionBankFilters, userID string) (*QuestionBankListResponse, error)
	GetByCreator(ctx context.Context, creatorID string, filters repositories.QuestionBankFilters) (*QuestionBankListResponse, error)
	GetPublic(ctx context.Context, filters repositories.QuestionBankFilters) (*QuestionBankListResponse, error)

	AddQuestions(ctx context.Context, bankID uint, req *AddQuestionsToBankRequest, userID string) error
	RemoveQuestions(ctx context.Context, bankID uint, questionIDs []uint, userID string) error
	GetBankQuestions(ctx context.Context, bankID uint, filters repositories.QuestionFilters, userID string) (*QuestionListResponse, error)
}

/// SessionService owns the participant-facing session lifecycle: start,
// resume, answer saves, navigation, snapshots, and submission.
type SessionService interface {
	// Lifecycle
	Start(ctx context.Context, req *StartSessionRequest, participant Participant) (*SessionResponse, error)
	Resume(ctx context.Context, instanceID uint, participant Participant) (*SessionResponse, error)
	Submit(ctx context.Context, instanceID uint, req *SubmitSessionRequest, participant Participant) (*SessionResponse, error)
	// BeaconSubmit is the best-effort page-unload path: no response body,
	// idempotent, never fails on already-submitted instances.
	BeaconSubmit(ctx context.Context, instanceID uint, participant Participant) error
	HandleTimeout(ctx context.Context, instanceID uint) error

	// In-session operations
	SaveAnswer(ctx context.Context, instanceID uint, req *SaveAnswerRequest, participant Participant) error
	Navigate(ctx context.Context, instanceID uint, req *NavigateRequest, participant Participant) (*SessionStateResponse, error)
	FlagQuestion(ctx context.Context, instanceID uint, req *FlagQuestionRequest, participant Participant) error
	Snapshot(ctx context.Context, instanceID uint, req *SnapshotRequest, participant Participant) (*SessionStateResponse, error)
	GetTimeRemaining(ctx context.Context, instanceID uint, participant Participant) (int, error)

	// Pause control (instructor initiated)
	Pause(ctx context.Context, instanceID uint, userID string) error
	Unpause(ctx context.Context, instanceID uint, userID string) error

	// Read operations
	GetByID(ctx context.Context, instanceID uint, participant Participant) (*SessionResponse, error)
	GetByAssessment(ctx context.Context, assessmentID uint, filters repositories.InstanceFilters, userID string) ([]*SessionResponse, int64, error)
	GetByParticipant(ctx context.Context, participantID string, filters repositories.InstanceFilters) ([]*SessionResponse, int64, error)
}

// ScoringService evaluates submissions: MCQ synchronously, everything
// else through the async evaluation pipeline or manual review.
type ScoringService interface {
	// Auto evaluation
	EvaluateSubmission(ctx context.Context, submissionID uint) (*EvaluationResult, error)
	EvaluateInstance(ctx context.Context, instanceID uint) (*InstanceEvaluationResult, error)

	// Manual evaluation
	RecordEvaluation(ctx context.Context, submissionID uint, req *ManualEvaluationRequest, evaluatorID string) (*EvaluationResult, error)

	// Scoring primitives
	ScoreAnswer(questionType models.QuestionType, questionContent, answer json.RawMessage, maxPoints int) (float64, *bool, error)

	// Read operations
	GetInstanceResult(ctx context.Context, instanceID uint, userID string) (*InstanceEvaluationResult, error)
	GetEvaluationStats(ctx context.Context, instanceID uint, userID string) (*repositories.EvaluationStats, error)
}

// ProctoringService manages the monitor lifecycle and integrity scoring.
type ProctoringService interface {
	Setup(ctx context.Context, instanceID uint, req *ProctoringSetupRequest, participant Participant) (*ProctoringStatusResponse, error)
	Activate(ctx context.Context, instanceID uint, participant Participant) error
	Pause(ctx context.Context, instanceID uint, participant Participant) error
	ResumeMonitor(ctx context.Context, instanceID uint, participant Participant) error
	Stop(ctx context.Context, instanceID uint) error

	ReportEvent(ctx context.Context, instanceID uint, req *ReportEventRequest, participant Participant) error

	GetStatus(ctx context.Context, instanceID uint, participant Participant) (*ProctoringStatusResponse, error)
	GetIntegrityReport(ctx context.Context, instanceID uint, userID string) (*IntegrityReport, error)
}

// ShareService manages anonymous access links for published assessments.
type ShareService interface {
	Create(ctx context.Context, assessmentID uint, req *CreateShareLinkRequest, userID string) (*ShareLinkResponse, error)
	List(ctx context.Context, assessmentID uint, userID string) ([]*ShareLinkResponse, error)
	Revoke(ctx context.Context, linkID uint, userID string) error

	// Resolve validates a token and returns the link with its assessment.
	Resolve(ctx context.Context, token string) (*models.ShareLink, error)
	// Join admits an anonymous participant and starts an instance.
	Join(ctx context.Context, token string, req *JoinByTokenRequest, ip, userAgent *string) (*SessionResponse, error)
}

// ExportService produces instructor-facing result exports.
type ExportService interface {
	// ExportResults renders all instances of an assessment to an XLSX
	// workbook and returns the serialized bytes.
	ExportResults(ctx context.Context, assessmentID uint, userID string) ([]byte, string, error)
}

// ===== SERVICE MANAGER =====

type ServiceManager interface {
	Assessment() AssessmentService
	Question() QuestionService
	QuestionBank() QuestionBankService
	Session() SessionService
	Scoring() ScoringService
	Proctoring() ProctoringService
	Share() ShareService
	Export() ExportService

	HealthCheck(ctx context.Context) error
	Shutdown(ctx context.Context) error
}
