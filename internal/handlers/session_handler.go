package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

// SessionHandler serves the participant-facing session lifecycle plus
// the instructor monitoring and grading endpoints.
type SessionHandler struct {
	BaseHandler
	sessionService services.SessionService
	scoringService services.ScoringService
}

func NewSessionHandler(
	sessionService services.SessionService,
	scoringService services.ScoringService,
	logger utils.Logger,
) *SessionHandler {
	return &SessionHandler{
		BaseHandler:    NewBaseHandler(logger),
		sessionService: sessionService,
		scoringService: scoringService,
	}
}

func (h *SessionHandler) participant(c *gin.Context) (services.Participant, bool) {
	participant, err := GetParticipantFromContext(c)
	if err != nil {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "Participant identity required",
			Details: err.Error(),
		})
		return participant, false
	}
	return participant, true
}

// StartSession starts a new assessment instance for the participant
// @Summary Start session
// @Tags sessions
// @Accept json
// @Produce json
// @Param session body services.StartSessionRequest true "Session start data"
// @Success 201 {object} services.SessionResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions [post]
func (h *SessionHandler) StartSession(c *gin.Context) {
	var req services.StartSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Starting assessment session", "assessment_id", req.AssessmentID)

	session, err := h.sessionService.Start(c.Request.Context(), &req, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}

// GetSession returns the current state of an instance
// @Summary Get session
// @Tags sessions
// @Produce json
// @Param id path uint true "Instance ID"
// @Success 200 {object} services.SessionResponse
// @Router /sessions/{id} [get]
func (h *SessionHandler) GetSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	session, err := h.sessionService.GetByID(c.Request.Context(), id, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// ResumeSession resumes an in-progress instance after a reconnect
// @Summary Resume session
// @Tags sessions
// @Produce json
// @Param id path uint true "Instance ID"
// @Success 200 {object} services.SessionResponse
// @Failure 410 {object} ErrorResponse
// @Router /sessions/{id}/resume [post]
func (h *SessionHandler) ResumeSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	session, err := h.sessionService.Resume(c.Request.Context(), id, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// SaveAnswer persists one answer for a question in the instance
// @Summary Save answer
// @Tags sessions
// @Accept json
// @Param id path uint true "Instance ID"
// @Param answer body services.SaveAnswerRequest true "Answer data"
// @Success 200 {object} SuccessResponse
// @Failure 429 {object} ErrorResponse
// @Router /sessions/{id}/answers [put]
func (h *SessionHandler) SaveAnswer(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SaveAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	if err := h.sessionService.SaveAnswer(c.Request.Context(), id, &req, participant); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Answer saved successfully",
	})
}

// Navigate records the participant's current question position
// @Summary Navigate session
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Instance ID"
// @Param navigation body services.NavigateRequest true "Navigation data"
// @Success 200 {object} services.SessionStateResponse
// @Router /sessions/{id}/navigate [put]
func (h *SessionHandler) Navigate(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.NavigateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	state, err := h.sessionService.Navigate(c.Request.Context(), id, &req, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// FlagQuestion toggles the review flag on a question
// @Summary Flag question for review
// @Tags sessions
// @Accept json
// @Param id path uint true "Instance ID"
// @Param flag body services.FlagQuestionRequest true "Flag data"
// @Success 200 {object} SuccessResponse
// @Router /sessions/{id}/flags [put]
func (h *SessionHandler) FlagQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.FlagQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	if err := h.sessionService.FlagQuestion(c.Request.Context(), id, &req, participant); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Question flag updated",
	})
}

// Snapshot persists periodic session progress
// @Summary Snapshot session state
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Instance ID"
// @Param snapshot body services.SnapshotRequest true "Snapshot data"
// @Success 200 {object} services.SessionStateResponse
// @Router /sessions/{id}/snapshot [put]
func (h *SessionHandler) Snapshot(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SnapshotRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	state, err := h.sessionService.Snapshot(c.Request.Context(), id, &req, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetTimeRemaining returns the server-computed remaining seconds
// @Summary Get remaining time
// @Tags sessions
// @Produce json
// @Param id path uint true "Instance ID"
// @Success 200 {object} map[string]int
// @Router /sessions/{id}/time [get]
func (h *SessionHandler) GetTimeRemaining(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	remaining, err := h.sessionService.GetTimeRemaining(c.Request.Context(), id, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"remaining_seconds": remaining,
	})
}

// SubmitSession submits the instance for evaluation
// @Summary Submit session
// @Tags sessions
// @Accept json
// @Produce json
// @Param id path uint true "Instance ID"
// @Param submission body services.SubmitSessionRequest true "Submission data"
// @Success 200 {object} services.SessionResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/submit [post]
func (h *SessionHandler) SubmitSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.SubmitSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	h.LogRequest(c, "Submitting assessment session", "instance_id", id, "end_reason", req.EndReason)

	session, err := h.sessionService.Submit(c.Request.Context(), id, &req, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, session)
}

// BeaconSubmit handles the page-unload submit beacon. It is idempotent
// and always answers 204 so the browser never retries.
// @Summary Beacon submit
// @Tags sessions
// @Param id path uint true "Instance ID"
// @Success 204
// @Router /sessions/{id}/beacon [post]
func (h *SessionHandler) BeaconSubmit(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	if err := h.sessionService.BeaconSubmit(c.Request.Context(), id, participant); err != nil {
		h.LogError(c, err, "Beacon submit failed", "instance_id", id)
	}

	c.Status(http.StatusNoContent)
}

// PauseSession pauses a participant's instance (instructor only)
// @Summary Pause session
// @Tags sessions
// @Param id path uint true "Instance ID"
// @Success 200 {object} SuccessResponse
// @Router /sessions/{id}/pause [post]
func (h *SessionHandler) PauseSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.sessionService.Pause(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Session paused",
	})
}

// UnpauseSession resumes a paused instance (instructor only)
// @Summary Unpause session
// @Tags sessions
// @Param id path uint true "Instance ID"
// @Success 200 {object} SuccessResponse
// @Router /sessions/{id}/unpause [post]
func (h *SessionHandler) UnpauseSession(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.sessionService.Unpause(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Session resumed",
	})
}

// ListAssessmentSessions lists instances of one assessment (instructor)
// @Summary List assessment sessions
// @Tags sessions
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param status query string false "Filter by instance status"
// @Success 200 {object} SessionListResponse
// @Router /assessments/{id}/sessions [get]
func (h *SessionHandler) ListAssessmentSessions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	filters := repositories.InstanceFilters{
		SortBy:    c.DefaultQuery("sort_by", "started_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filters.Limit, filters.Offset = h.parsePagination(c)

	if raw := c.Query("status"); raw != "" {
		status := models.InstanceStatus(raw)
		filters.Status = &status
	}

	sessions, total, err := h.sessionService.GetByAssessment(c.Request.Context(), id, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionListResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	})
}

// ListMySessions lists the authenticated participant's own instances
// @Summary List my sessions
// @Tags sessions
// @Produce json
// @Success 200 {object} SessionListResponse
// @Router /sessions/mine [get]
func (h *SessionHandler) ListMySessions(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	filters := repositories.InstanceFilters{
		SortBy:    c.DefaultQuery("sort_by", "started_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filters.Limit, filters.Offset = h.parsePagination(c)

	sessions, total, err := h.sessionService.GetByParticipant(c.Request.Context(), userID, filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SessionListResponse{
		Sessions: sessions,
		Total:    total,
		Limit:    filters.Limit,
		Offset:   filters.Offset,
	})
}

// SessionListResponse wraps a page of session summaries.
type SessionListResponse struct {
	Sessions []*services.SessionResponse `json:"sessions"`
	Total    int64                       `json:"total"`
	Limit    int                         `json:"limit"`
	Offset   int                         `json:"offset"`
}

// GetSessionResult returns the evaluation result of an instance
// @Summary Get session result
// @Tags sessions
// @Produce json
// @Param id path uint true "Instance ID"
// @Success 200 {object} services.InstanceEvaluationResult
// @Router /sessions/{id}/result [get]
func (h *SessionHandler) GetSessionResult(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	result, err := h.scoringService.GetInstanceResult(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetEvaluationStats returns evaluation progress for an instance
// @Summary Get evaluation statistics
// @Tags sessions
// @Produce json
// @Param id path uint true "Instance ID"
// @Success 200 {object} repositories.EvaluationStats
// @Router /sessions/{id}/evaluation-stats [get]
func (h *SessionHandler) GetEvaluationStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	stats, err := h.scoringService.GetEvaluationStats(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// RecordEvaluation records a manual score for one submission
// @Summary Record manual evaluation
// @Tags grading
// @Accept json
// @Produce json
// @Param submission_id path uint true "Submission ID"
// @Param evaluation body services.ManualEvaluationRequest true "Evaluation data"
// @Success 200 {object} services.EvaluationResult
// @Failure 409 {object} ErrorResponse
// @Router /submissions/{submission_id}/evaluation [put]
func (h *SessionHandler) RecordEvaluation(c *gin.Context) {
	submissionID := h.parseIDParam(c, "submission_id")
	if submissionID == 0 {
		return
	}

	var req services.ManualEvaluationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	result, err := h.scoringService.RecordEvaluation(c.Request.Context(), submissionID, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, result)
}
