package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

type QuestionBankHandler struct {
	BaseHandler
	bankService services.QuestionBankService
}

func NewQuestionBankHandler(bankService services.QuestionBankService, logger utils.Logger) *QuestionBankHandler {
	return &QuestionBankHandler{
		BaseHandler: NewBaseHandler(logger),
		bankService: bankService,
	}
}

// CreateQuestionBank creates a new question bank
// @Summary Create question bank
// @Tags question-banks
// @Accept json
// @Produce json
// @Param bank body services.CreateQuestionBankRequest true "Question bank data"
// @Success 201 {object} services.QuestionBankResponse
// @Router /question-banks [post]
func (h *QuestionBankHandler) CreateQuestionBank(c *gin.Context) {
	var req services.CreateQuestionBankRequest
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

	bank, err := h.bankService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, bank)
}

// GetQuestionBank retrieves a question bank by ID
// @Summary Get question bank
// @Tags question-banks
// @Produce json
// @Param id path uint true "Question bank ID"
// @Success 200 {object} services.QuestionBankResponse
// @Failure 404 {object} ErrorResponse
// @Router /question-banks/{id} [get]
func (h *QuestionBankHandler) GetQuestionBank(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	bank, err := h.bankService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, bank)
}

// UpdateQuestionBank updates a question bank
// @Summary Update question bank
// @Tags question-banks
// @Accept json
// @Produce json
// @Param id path uint true "Question bank ID"
// @Param bank body services.UpdateQuestionBankRequest true "Question bank update data"
// @Success 200 {object} services.QuestionBankResponse
// @Router /question-banks/{id} [put]
func (h *QuestionBankHandler) UpdateQuestionBank(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateQuestionBankRequest
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

	bank, err := h.bankService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, bank)
}

// DeleteQuestionBank deletes a question bank
// @Summary Delete question bank
// @Tags question-banks
// @Param id path uint true "Question bank ID"
// @Success 204
// @Router /question-banks/{id} [delete]
func (h *QuestionBankHandler) DeleteQuestionBank(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.bankService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListQuestionBanks lists the caller's question banks
// @Summary List question banks
// @Tags question-banks
// @Produce json
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} services.QuestionBankListResponse
// @Router /question-banks [get]
func (h *QuestionBankHandler) ListQuestionBanks(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	filters := h.bankFilters(c)

	list, err := h.bankService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// ListPublicQuestionBanks lists publicly shared question banks
// @Summary List public question banks
// @Tags question-banks
// @Produce json
// @Success 200 {object} services.QuestionBankListResponse
// @Router /question-banks/public [get]
func (h *QuestionBankHandler) ListPublicQuestionBanks(c *gin.Context) {
	filters := h.bankFilters(c)

	list, err := h.bankService.GetPublic(c.Request.Context(), filters)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// AddQuestionsToBank adds questions to a bank
// @Summary Add questions to bank
// @Tags question-banks
// @Accept json
// @Param id path uint true "Question bank ID"
// @Param questions body services.AddQuestionsToBankRequest true "Question IDs"
// @Success 200 {object} SuccessResponse
// @Router /question-banks/{id}/questions [post]
func (h *QuestionBankHandler) AddQuestionsToBank(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.AddQuestionsToBankRequest
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

	if err := h.bankService.AddQuestions(c.Request.Context(), id, &req, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Questions added to bank successfully",
	})
}

// RemoveQuestionsFromBank removes questions from a bank
// @Summary Remove questions from bank
// @Tags question-banks
// @Accept json
// @Param id path uint true "Question bank ID"
// @Param questions body services.AddQuestionsToBankRequest true "Question IDs"
// @Success 200 {object} SuccessResponse
// @Router /question-banks/{id}/questions [delete]
func (h *QuestionBankHandler) RemoveQuestionsFromBank(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.AddQuestionsToBankRequest
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

	if err := h.bankService.RemoveQuestions(c.Request.Context(), id, req.QuestionIDs, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Questions removed from bank successfully",
	})
}

// GetBankQuestions lists the questions inside a bank
// @Summary Get bank questions
// @Tags question-banks
// @Produce json
// @Param id path uint true "Question bank ID"
// @Success 200 {object} services.QuestionListResponse
// @Router /question-banks/{id}/questions [get]
func (h *QuestionBankHandler) GetBankQuestions(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	filters := repositories.QuestionFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filters.Limit, filters.Offset = h.parsePagination(c)

	list, err := h.bankService.GetBankQuestions(c.Request.Context(), id, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *QuestionBankHandler) bankFilters(c *gin.Context) repositories.QuestionBankFilters {
	filters := repositories.QuestionBankFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filters.Limit, filters.Offset = h.parsePagination(c)

	if raw := c.Query("name"); raw != "" {
		filters.Name = &raw
	}
	return filters
}
