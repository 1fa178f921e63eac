package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

type AssessmentHandler struct {
	BaseHandler
	assessmentService services.AssessmentService
	exportService     services.ExportService
}

func NewAssessmentHandler(
	assessmentService services.AssessmentService,
	exportService services.ExportService,
	logger utils.Logger,
) *AssessmentHandler {
	return &AssessmentHandler{
		BaseHandler:       NewBaseHandler(logger),
		assessmentService: assessmentService,
		exportService:     exportService,
	}
}

// CreateAssessment creates a new assessment
// @Summary Create assessment
// @Tags assessments
// @Accept json
// @Produce json
// @Param assessment body services.CreateAssessmentRequest true "Assessment data"
// @Success 201 {object} services.AssessmentResponse
// @Failure 400 {object} ErrorResponse
// @Router /assessments [post]
func (h *AssessmentHandler) CreateAssessment(c *gin.Context) {
	var req services.CreateAssessmentRequest
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

	assessment, err := h.assessmentService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, assessment)
}

// GetAssessment retrieves an assessment by ID
// @Summary Get assessment
// @Tags assessments
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 200 {object} services.AssessmentResponse
// @Failure 404 {object} ErrorResponse
// @Router /assessments/{id} [get]
func (h *AssessmentHandler) GetAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	assessment, err := h.assessmentService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// GetAssessmentWithDetails retrieves an assessment with its questions
// @Summary Get assessment with details
// @Tags assessments
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 200 {object} services.AssessmentResponse
// @Failure 404 {object} ErrorResponse
// @Router /assessments/{id}/details [get]
func (h *AssessmentHandler) GetAssessmentWithDetails(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	assessment, err := h.assessmentService.GetByIDWithDetails(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// UpdateAssessment updates an existing assessment
// @Summary Update assessment
// @Tags assessments
// @Accept json
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param assessment body services.UpdateAssessmentRequest true "Assessment update data"
// @Success 200 {object} services.AssessmentResponse
// @Failure 409 {object} ErrorResponse
// @Router /assessments/{id} [put]
func (h *AssessmentHandler) UpdateAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateAssessmentRequest
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

	assessment, err := h.assessmentService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, assessment)
}

// DeleteAssessment deletes an assessment
// @Summary Delete assessment
// @Tags assessments
// @Param id path uint true "Assessment ID"
// @Success 204
// @Failure 403 {object} ErrorResponse
// @Router /assessments/{id} [delete]
func (h *AssessmentHandler) DeleteAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Deleting assessment", "assessment_id", id)

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.assessmentService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListAssessments lists assessments visible to the caller
// @Summary List assessments
// @Tags assessments
// @Produce json
// @Param status query string false "Filter by status"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} services.AssessmentListResponse
// @Router /assessments [get]
func (h *AssessmentHandler) ListAssessments(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	filters := repositories.AssessmentFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filters.Limit, filters.Offset = h.parsePagination(c)

	if raw := c.Query("status"); raw != "" {
		status := models.AssessmentStatus(raw)
		filters.Status = &status
	}
	if raw := c.Query("search"); raw != "" {
		filters.Search = &raw
	}

	list, err := h.assessmentService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// UpdateAssessmentStatus transitions an assessment between statuses
// @Summary Update assessment status
// @Tags assessments
// @Accept json
// @Param id path uint true "Assessment ID"
// @Param status body services.UpdateStatusRequest true "Target status"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} ErrorResponse
// @Router /assessments/{id}/status [put]
func (h *AssessmentHandler) UpdateAssessmentStatus(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateStatusRequest
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

	if err := h.assessmentService.UpdateStatus(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Assessment status updated successfully",
	})
}

// PublishAssessment publishes a draft assessment
// @Summary Publish assessment
// @Tags assessments
// @Param id path uint true "Assessment ID"
// @Success 200 {object} SuccessResponse
// @Router /assessments/{id}/publish [post]
func (h *AssessmentHandler) PublishAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.assessmentService.Publish(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Assessment published successfully",
	})
}

// ArchiveAssessment archives an assessment
// @Summary Archive assessment
// @Tags assessments
// @Param id path uint true "Assessment ID"
// @Success 200 {object} SuccessResponse
// @Router /assessments/{id}/archive [post]
func (h *AssessmentHandler) ArchiveAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.assessmentService.Archive(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Assessment archived successfully",
	})
}

// AddQuestionToAssessment attaches a question to an assessment
// @Summary Add question to assessment
// @Tags assessments
// @Accept json
// @Param id path uint true "Assessment ID"
// @Param question body services.AssessmentQuestionRequest true "Question attachment"
// @Success 201 {object} SuccessResponse
// @Router /assessments/{id}/questions [post]
func (h *AssessmentHandler) AddQuestionToAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.AssessmentQuestionRequest
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

	if err := h.assessmentService.AddQuestion(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Question added to assessment successfully",
	})
}

// AddQuestionsToAssessment attaches multiple questions at once
// @Summary Add questions to assessment
// @Tags assessments
// @Accept json
// @Param id path uint true "Assessment ID"
// @Param questions body []services.AssessmentQuestionRequest true "Question attachments"
// @Success 201 {object} SuccessResponse
// @Router /assessments/{id}/questions/batch [post]
func (h *AssessmentHandler) AddQuestionsToAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var reqs []services.AssessmentQuestionRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
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

	if err := h.assessmentService.AddQuestionsBatch(c.Request.Context(), id, reqs, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, SuccessResponse{
		Message: "Questions added to assessment successfully",
	})
}

// RemoveQuestionFromAssessment detaches a question from an assessment
// @Summary Remove question from assessment
// @Tags assessments
// @Param id path uint true "Assessment ID"
// @Param question_id path uint true "Question ID"
// @Success 204
// @Router /assessments/{id}/questions/{question_id} [delete]
func (h *AssessmentHandler) RemoveQuestionFromAssessment(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.assessmentService.RemoveQuestion(c.Request.Context(), id, questionID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ReorderAssessmentQuestions replaces the question ordering
// @Summary Reorder assessment questions
// @Tags assessments
// @Accept json
// @Param id path uint true "Assessment ID"
// @Param orders body []repositories.QuestionOrder true "Question ordering"
// @Success 200 {object} SuccessResponse
// @Router /assessments/{id}/questions/reorder [put]
func (h *AssessmentHandler) ReorderAssessmentQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var orders []repositories.QuestionOrder
	if err := c.ShouldBindJSON(&orders); err != nil {
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

	if err := h.assessmentService.ReorderQuestions(c.Request.Context(), id, orders, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Assessment questions reordered successfully",
	})
}

// UpdateAssessmentQuestionPoints overrides the points of one question
// @Summary Update question points
// @Tags assessments
// @Accept json
// @Param id path uint true "Assessment ID"
// @Param question_id path uint true "Question ID"
// @Success 200 {object} SuccessResponse
// @Router /assessments/{id}/questions/{question_id}/points [put]
func (h *AssessmentHandler) UpdateAssessmentQuestionPoints(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}
	questionID := h.parseIDParam(c, "question_id")
	if questionID == 0 {
		return
	}

	var req struct {
		Points int `json:"points" binding:"required"`
	}
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

	if err := h.assessmentService.UpdateQuestionPoints(c.Request.Context(), id, questionID, req.Points, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Question points updated successfully",
	})
}

// GetAssessmentStats returns instance statistics for an assessment
// @Summary Get assessment statistics
// @Tags assessments
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 200 {object} repositories.AssessmentStats
// @Router /assessments/{id}/stats [get]
func (h *AssessmentHandler) GetAssessmentStats(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	stats, err := h.assessmentService.GetStats(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ExportAssessmentResults streams an XLSX export of all instances
// @Summary Export assessment results
// @Tags assessments
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Param id path uint true "Assessment ID"
// @Success 200 {file} binary
// @Router /assessments/{id}/export [get]
func (h *AssessmentHandler) ExportAssessmentResults(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	h.LogRequest(c, "Exporting assessment results", "assessment_id", id)

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	data, filename, err := h.exportService.ExportResults(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+filename)
	c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
}
