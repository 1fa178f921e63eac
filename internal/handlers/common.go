package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

// ===== COMMON RESPONSE STRUCTURES =====

// ErrorResponse represents an error response
type ErrorResponse struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// SuccessResponse represents a success response
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ===== BASE HANDLER STRUCT =====

// BaseHandler provides logging and shared error translation for all
// handlers.
type BaseHandler struct {
	logger utils.Logger
}

func NewBaseHandler(logger utils.Logger) BaseHandler {
	return BaseHandler{logger: logger}
}

// LogRequest logs incoming HTTP requests with context information
func (h *BaseHandler) LogRequest(c *gin.Context, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
		"remote_addr", c.ClientIP(),
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", h.extractUserID(c),
	}
	fields = append(fields, additionalFields...)

	h.logger.Info(message, fields...)
}

// LogError logs error details with context information
func (h *BaseHandler) LogError(c *gin.Context, err error, message string, additionalFields ...interface{}) {
	fields := []interface{}{
		"request_id", c.GetHeader("X-Request-ID"),
		"user_id", h.extractUserID(c),
		"method", c.Request.Method,
		"path", c.Request.URL.Path,
	}
	fields = append(fields, additionalFields...)

	h.logger.LogError(err, message, fields...)
}

func (h *BaseHandler) extractUserID(c *gin.Context) interface{} {
	if userID, exists := c.Get("user_id"); exists {
		return userID
	}
	return nil
}

// parseIDParam parses a numeric path parameter; on failure it writes the
// 400 response itself and returns 0.
func (h *BaseHandler) parseIDParam(c *gin.Context, name string) uint {
	raw := c.Param(name)
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid " + name + " parameter",
			Details: raw,
		})
		return 0
	}
	return uint(id)
}

// parsePagination reads limit/offset query parameters with sane bounds.
func (h *BaseHandler) parsePagination(c *gin.Context) (limit, offset int) {
	limit = 20
	if raw := c.Query("limit"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v > 0 && v <= 100 {
			limit = v
		}
	}
	if raw := c.Query("offset"); raw != "" {
		if v, err := strconv.Atoi(raw); err == nil && v >= 0 {
			offset = v
		}
	}
	return limit, offset
}

// requireUserID pulls the authenticated user ID from the context; on
// failure it writes the 401 response itself and returns "".
func (h *BaseHandler) requireUserID(c *gin.Context) string {
	userID, exists := c.Get("user_id")
	if !exists {
		c.JSON(http.StatusUnauthorized, ErrorResponse{
			Message: "User not authenticated",
		})
		return ""
	}
	return userID.(string)
}

// handleServiceError maps service-layer errors to HTTP responses.
func (h *BaseHandler) handleServiceError(c *gin.Context, err error) {
	var validationErrors services.ValidationErrors
	if errors.As(err, &validationErrors) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationErrors,
		})
		return
	}

	var validationError *services.ValidationError
	if errors.As(err, &validationError) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: validationError,
		})
		return
	}

	var businessRuleError *services.BusinessRuleError
	if errors.As(err, &businessRuleError) {
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: businessRuleError.Message,
			Details: map[string]interface{}{
				"rule":    businessRuleError.Rule,
				"context": businessRuleError.Context,
			},
		})
		return
	}

	var permissionError *services.PermissionError
	if errors.As(err, &permissionError) {
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Access denied",
			Details: map[string]interface{}{
				"resource": permissionError.Resource,
				"action":   permissionError.Action,
				"reason":   permissionError.Reason,
			},
		})
		return
	}

	switch {
	// Session and timing
	case errors.Is(err, services.ErrInstanceTimeExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Assessment time has expired",
		})
	case errors.Is(err, services.ErrInstanceAlreadySubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Assessment instance already submitted",
		})
	case errors.Is(err, services.ErrInstanceLimitExceeded):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Maximum attempts exceeded",
		})
	case errors.Is(err, services.ErrInstancePaused):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Assessment instance is paused",
		})
	case errors.Is(err, services.ErrInstanceNotActive):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Assessment instance is not active",
		})
	case errors.Is(err, services.ErrSaveInFlight):
		c.JSON(http.StatusTooManyRequests, ErrorResponse{
			Message: "A save for this question is already in flight",
		})
	case errors.Is(err, services.ErrQuestionNotInInstance):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Question does not belong to this assessment",
		})

	// Assessment lifecycle
	case errors.Is(err, services.ErrAssessmentNotEditable):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Assessment cannot be edited in current status",
		})
	case errors.Is(err, services.ErrAssessmentNotDeletable):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Assessment cannot be deleted - has existing attempts",
		})
	case errors.Is(err, services.ErrAssessmentInvalidStatus):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid assessment status transition",
		})
	case errors.Is(err, services.ErrAssessmentExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Assessment has expired",
		})
	case errors.Is(err, services.ErrAssessmentNotPublished):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Assessment is not published",
		})
	case errors.Is(err, services.ErrAssessmentNoQuestions):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Assessment has no questions",
		})

	// Questions
	case errors.Is(err, services.ErrQuestionInvalidType):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid question type",
		})
	case errors.Is(err, services.ErrQuestionInvalidContent):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid question content for type",
		})
	case errors.Is(err, services.ErrQuestionNotDeletable):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Question cannot be deleted - in use by assessments",
		})

	// Evaluation
	case errors.Is(err, services.ErrEvaluationNotAllowed):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Evaluation not allowed for this question type",
		})
	case errors.Is(err, services.ErrEvaluationCompleted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Submission already evaluated",
		})
	case errors.Is(err, services.ErrEvaluationInvalidScore):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid score value",
		})
	case errors.Is(err, services.ErrEvaluationNotSubmitted):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Instance must be submitted before evaluation",
		})

	// Proctoring
	case errors.Is(err, services.ErrProctoringNotRequired):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Proctoring is not required for this assessment",
		})
	case errors.Is(err, services.ErrProctoringInvalidState):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: "Invalid proctoring monitor state transition",
		})
	case errors.Is(err, services.ErrProctoringSetupIncomplete):
		c.JSON(http.StatusUnprocessableEntity, ErrorResponse{
			Message: "Required proctoring permissions not granted",
		})

	// Share links
	case errors.Is(err, services.ErrShareLinkExpired):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Share link has expired",
		})
	case errors.Is(err, services.ErrShareLinkRevoked):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Share link has been revoked",
		})
	case errors.Is(err, services.ErrShareLinkExhausted):
		c.JSON(http.StatusGone, ErrorResponse{
			Message: "Share link has no remaining uses",
		})

	// Generic buckets
	case services.IsNotFound(err):
		c.JSON(http.StatusNotFound, ErrorResponse{
			Message: err.Error(),
		})
	case services.IsUnauthorized(err):
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "Forbidden - insufficient permissions",
		})
	case services.IsValidation(err):
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Validation failed",
			Details: err.Error(),
		})
	case services.IsConflict(err):
		c.JSON(http.StatusConflict, ErrorResponse{
			Message: err.Error(),
		})

	default:
		h.LogError(c, err, "Unexpected service error")
		c.JSON(http.StatusInternalServerError, ErrorResponse{
			Message: "Internal server error",
		})
	}
}
