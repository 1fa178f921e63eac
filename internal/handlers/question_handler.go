package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/repositories"
	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

type QuestionHandler struct {
	BaseHandler
	questionService services.QuestionService
}

func NewQuestionHandler(questionService services.QuestionService, logger utils.Logger) *QuestionHandler {
	return &QuestionHandler{
		BaseHandler:     NewBaseHandler(logger),
		questionService: questionService,
	}
}

// CreateQuestion creates a new question
// @Summary Create question
// @Tags questions
// @Accept json
// @Produce json
// @Param question body services.CreateQuestionRequest true "Question data"
// @Success 201 {object} services.QuestionResponse
// @Failure 400 {object} ErrorResponse
// @Router /questions [post]
func (h *QuestionHandler) CreateQuestion(c *gin.Context) {
	var req services.CreateQuestionRequest
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

	question, err := h.questionService.Create(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, question)
}

// CreateQuestionsBatch creates multiple questions in one request. The
// response reports per-position results so partial failures stay
// visible to the caller.
// @Summary Create questions in batch
// @Tags questions
// @Accept json
// @Produce json
// @Param questions body []services.CreateQuestionRequest true "Questions"
// @Success 207 {object} BatchQuestionResponse
// @Router /questions/batch [post]
func (h *QuestionHandler) CreateQuestionsBatch(c *gin.Context) {
	var reqs []*services.CreateQuestionRequest
	if err := c.ShouldBindJSON(&reqs); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}
	if len(reqs) == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "At least one question is required",
		})
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	created, errs := h.questionService.CreateBatch(c.Request.Context(), reqs, userID)

	resp := BatchQuestionResponse{
		Created: created,
		Errors:  make([]*string, len(errs)),
	}
	failed := 0
	for i, err := range errs {
		if err != nil {
			msg := err.Error()
			resp.Errors[i] = &msg
			failed++
		}
	}

	status := http.StatusCreated
	if failed > 0 {
		status = http.StatusMultiStatus
	}
	c.JSON(status, resp)
}

// BatchQuestionResponse reports per-position batch creation results.
type BatchQuestionResponse struct {
	Created []*services.QuestionResponse `json:"created"`
	Errors  []*string                    `json:"errors"`
}

// GetQuestion retrieves a question by ID
// @Summary Get question
// @Tags questions
// @Produce json
// @Param id path uint true "Question ID"
// @Success 200 {object} services.QuestionResponse
// @Failure 404 {object} ErrorResponse
// @Router /questions/{id} [get]
func (h *QuestionHandler) GetQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	question, err := h.questionService.GetByID(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// UpdateQuestion updates an existing question
// @Summary Update question
// @Tags questions
// @Accept json
// @Produce json
// @Param id path uint true "Question ID"
// @Param question body services.UpdateQuestionRequest true "Question update data"
// @Success 200 {object} services.QuestionResponse
// @Router /questions/{id} [put]
func (h *QuestionHandler) UpdateQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.UpdateQuestionRequest
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

	question, err := h.questionService.Update(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

// DeleteQuestion deletes a question
// @Summary Delete question
// @Tags questions
// @Param id path uint true "Question ID"
// @Success 204
// @Failure 409 {object} ErrorResponse
// @Router /questions/{id} [delete]
func (h *QuestionHandler) DeleteQuestion(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.questionService.Delete(c.Request.Context(), id, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// ListQuestions lists questions visible to the caller
// @Summary List questions
// @Tags questions
// @Produce json
// @Param type query string false "Filter by question type"
// @Param difficulty query string false "Filter by difficulty"
// @Param tags query string false "Comma separated tags"
// @Param limit query int false "Page size"
// @Param offset query int false "Page offset"
// @Success 200 {object} services.QuestionListResponse
// @Router /questions [get]
func (h *QuestionHandler) ListQuestions(c *gin.Context) {
	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	filters := h.questionFilters(c)

	list, err := h.questionService.List(c.Request.Context(), filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

// SearchQuestions performs a text search over visible questions
// @Summary Search questions
// @Tags questions
// @Produce json
// @Param q query string true "Search query"
// @Success 200 {object} services.QuestionListResponse
// @Router /questions/search [get]
func (h *QuestionHandler) SearchQuestions(c *gin.Context) {
	query := strings.TrimSpace(c.Query("q"))
	if query == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Search query parameter 'q' is required",
		})
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	filters := h.questionFilters(c)

	list, err := h.questionService.Search(c.Request.Context(), query, filters, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, list)
}

func (h *QuestionHandler) questionFilters(c *gin.Context) repositories.QuestionFilters {
	filters := repositories.QuestionFilters{
		SortBy:    c.DefaultQuery("sort_by", "created_at"),
		SortOrder: c.DefaultQuery("sort_order", "desc"),
	}
	filters.Limit, filters.Offset = h.parsePagination(c)

	if raw := c.Query("type"); raw != "" {
		questionType := models.QuestionType(raw)
		filters.Type = &questionType
	}
	if raw := c.Query("difficulty"); raw != "" {
		difficulty := models.DifficultyLevel(raw)
		filters.Difficulty = &difficulty
	}
	if raw := c.Query("tags"); raw != "" {
		for _, tag := range strings.Split(raw, ",") {
			if tag = strings.TrimSpace(tag); tag != "" {
				filters.Tags = append(filters.Tags, tag)
			}
		}
	}
	return filters
}
