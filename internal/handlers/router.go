package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/config"
	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

// HandlerManager wires all HTTP handlers and middleware together.
type HandlerManager struct {
	assessmentHandler *AssessmentHandler
	questionHandler   *QuestionHandler
	bankHandler       *QuestionBankHandler
	sessionHandler    *SessionHandler
	proctoringHandler *ProctoringHandler
	shareHandler      *ShareHandler

	authMiddleware *CasdoorAuthMiddleware
	logger         utils.Logger
}

func NewHandlerManager(
	serviceManager services.ServiceManager,
	logger utils.Logger,
	casdoorConfig config.CasdoorConfig,
	userRepo repositories.UserRepository,
) *HandlerManager {
	return &HandlerManager{
		assessmentHandler: NewAssessmentHandler(serviceManager.Assessment(), serviceManager.Export(), logger),
		questionHandler:   NewQuestionHandler(serviceManager.Question(), logger),
		bankHandler:       NewQuestionBankHandler(serviceManager.QuestionBank(), logger),
		sessionHandler:    NewSessionHandler(serviceManager.Session(), serviceManager.Scoring(), logger),
		proctoringHandler: NewProctoringHandler(serviceManager.Proctoring(), logger),
		shareHandler:      NewShareHandler(serviceManager.Share(), logger),
		authMiddleware:    NewCasdoorAuthMiddleware(casdoorConfig, userRepo),
		logger:            logger,
	}
}

// SetupRoutes registers all API routes on the router.
func (hm *HandlerManager) SetupRoutes(router *gin.Engine) {
	router.GET("/health", hm.healthCheck)

	v1 := router.Group("/api/v1")

	// Public share endpoints: anonymous participants resolve a token
	// and join before they hold any credentials.
	v1.GET("/share/:token", hm.shareHandler.ResolveShareToken)
	v1.POST("/share/:token/join", hm.shareHandler.JoinByShareToken)

	// Session routes admit both authenticated users and share-token
	// participants.
	session := v1.Group("")
	session.Use(hm.authMiddleware.SessionAccessMiddleware())
	{
		session.POST("/sessions", hm.sessionHandler.StartSession)
		session.GET("/sessions/:id", hm.sessionHandler.GetSession)
		session.POST("/sessions/:id/resume", hm.sessionHandler.ResumeSession)
		session.PUT("/sessions/:id/answers", hm.sessionHandler.SaveAnswer)
		session.PUT("/sessions/:id/navigate", hm.sessionHandler.Navigate)
		session.PUT("/sessions/:id/flags", hm.sessionHandler.FlagQuestion)
		session.PUT("/sessions/:id/snapshot", hm.sessionHandler.Snapshot)
		session.GET("/sessions/:id/time", hm.sessionHandler.GetTimeRemaining)
		session.POST("/sessions/:id/submit", hm.sessionHandler.SubmitSession)
		session.POST("/sessions/:id/beacon", hm.sessionHandler.BeaconSubmit)

		session.POST("/sessions/:id/proctoring/setup", hm.proctoringHandler.SetupProctoring)
		session.POST("/sessions/:id/proctoring/activate", hm.proctoringHandler.ActivateProctoring)
		session.POST("/sessions/:id/proctoring/pause", hm.proctoringHandler.PauseProctoring)
		session.POST("/sessions/:id/proctoring/resume", hm.proctoringHandler.ResumeProctoring)
		session.POST("/sessions/:id/proctoring/events", hm.proctoringHandler.ReportProctoringEvent)
		session.GET("/sessions/:id/proctoring", hm.proctoringHandler.GetProctoringStatus)
	}

	// Everything below requires an authenticated user.
	auth := v1.Group("")
	auth.Use(hm.authMiddleware.AuthMiddleware())

	instructor := hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor)
	proctorOrInstructor := hm.authMiddleware.RequireRoleMiddleware(models.RoleInstructor, models.RoleProctor)

	assessments := auth.Group("/assessments")
	{
		assessments.GET("", hm.assessmentHandler.ListAssessments)
		assessments.GET("/:id", hm.assessmentHandler.GetAssessment)
		assessments.GET("/:id/details", hm.assessmentHandler.GetAssessmentWithDetails)

		assessments.POST("", instructor, hm.assessmentHandler.CreateAssessment)
		assessments.PUT("/:id", instructor, hm.assessmentHandler.UpdateAssessment)
		assessments.DELETE("/:id", instructor, hm.assessmentHandler.DeleteAssessment)
		assessments.PUT("/:id/status", instructor, hm.assessmentHandler.UpdateAssessmentStatus)
		assessments.POST("/:id/publish", instructor, hm.assessmentHandler.PublishAssessment)
		assessments.POST("/:id/archive", instructor, hm.assessmentHandler.ArchiveAssessment)

		assessments.POST("/:id/questions", instructor, hm.assessmentHandler.AddQuestionToAssessment)
		assessments.POST("/:id/questions/batch", instructor, hm.assessmentHandler.AddQuestionsToAssessment)
		assessments.DELETE("/:id/questions/:question_id", instructor, hm.assessmentHandler.RemoveQuestionFromAssessment)
		assessments.PUT("/:id/questions/reorder", instructor, hm.assessmentHandler.ReorderAssessmentQuestions)
		assessments.PUT("/:id/questions/:question_id/points", instructor, hm.assessmentHandler.UpdateAssessmentQuestionPoints)

		assessments.GET("/:id/stats", instructor, hm.assessmentHandler.GetAssessmentStats)
		assessments.GET("/:id/export", instructor, hm.assessmentHandler.ExportAssessmentResults)
		assessments.GET("/:id/sessions", instructor, hm.sessionHandler.ListAssessmentSessions)

		assessments.POST("/:id/share-links", instructor, hm.shareHandler.CreateShareLink)
		assessments.GET("/:id/share-links", instructor, hm.shareHandler.ListShareLinks)
	}

	questions := auth.Group("/questions", instructor)
	{
		questions.POST("", hm.questionHandler.CreateQuestion)
		questions.POST("/batch", hm.questionHandler.CreateQuestionsBatch)
		questions.GET("", hm.questionHandler.ListQuestions)
		questions.GET("/search", hm.questionHandler.SearchQuestions)
		questions.GET("/:id", hm.questionHandler.GetQuestion)
		questions.PUT("/:id", hm.questionHandler.UpdateQuestion)
		questions.DELETE("/:id", hm.questionHandler.DeleteQuestion)
	}

	banks := auth.Group("/question-banks", instructor)
	{
		banks.POST("", hm.bankHandler.CreateQuestionBank)
		banks.GET("", hm.bankHandler.ListQuestionBanks)
		banks.GET("/public", hm.bankHandler.ListPublicQuestionBanks)
		banks.GET("/:id", hm.bankHandler.GetQuestionBank)
		banks.PUT("/:id", hm.bankHandler.UpdateQuestionBank)
		banks.DELETE("/:id", hm.bankHandler.DeleteQuestionBank)
		banks.POST("/:id/questions", hm.bankHandler.AddQuestionsToBank)
		banks.DELETE("/:id/questions", hm.bankHandler.RemoveQuestionsFromBank)
		banks.GET("/:id/questions", hm.bankHandler.GetBankQuestions)
	}

	// Authenticated session views: own history and results, plus the
	// instructor pause controls and grading.
	auth.GET("/sessions/mine", hm.sessionHandler.ListMySessions)
	auth.GET("/sessions/:id/result", hm.sessionHandler.GetSessionResult)
	auth.GET("/sessions/:id/evaluation-stats", proctorOrInstructor, hm.sessionHandler.GetEvaluationStats)
	auth.GET("/sessions/:id/proctoring/report", proctorOrInstructor, hm.proctoringHandler.GetIntegrityReport)
	auth.POST("/sessions/:id/pause", instructor, hm.sessionHandler.PauseSession)
	auth.POST("/sessions/:id/unpause", instructor, hm.sessionHandler.UnpauseSession)

	auth.PUT("/submissions/:submission_id/evaluation", instructor, hm.sessionHandler.RecordEvaluation)
	auth.DELETE("/share-links/:link_id", instructor, hm.shareHandler.RevokeShareLink)
}

func (hm *HandlerManager) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": "assessment-service",
	})
}
