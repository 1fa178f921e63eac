package handlers

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func testHandlerLogger() utils.Logger {
	return utils.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func testContext(method, target string) (*gin.Context, *httptest.ResponseRecorder) {
	recorder := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(recorder)
	c.Request = httptest.NewRequest(method, target, nil)
	return c, recorder
}

func TestHandleServiceError_StatusMapping(t *testing.T) {
	base := NewBaseHandler(testHandlerLogger())

	tests := []struct {
		name string
		err  error
		want int
	}{
		{"time expired", services.ErrInstanceTimeExpired, http.StatusGone},
		{"already submitted", services.ErrInstanceAlreadySubmitted, http.StatusConflict},
		{"attempt limit", services.ErrInstanceLimitExceeded, http.StatusConflict},
		{"paused", services.ErrInstancePaused, http.StatusConflict},
		{"save in flight", services.ErrSaveInFlight, http.StatusTooManyRequests},
		{"not editable", services.ErrAssessmentNotEditable, http.StatusConflict},
		{"expired assessment", services.ErrAssessmentExpired, http.StatusGone},
		{"not published", services.ErrAssessmentNotPublished, http.StatusForbidden},
		{"no questions", services.ErrAssessmentNoQuestions, http.StatusUnprocessableEntity},
		{"question in use", services.ErrQuestionNotDeletable, http.StatusConflict},
		{"already evaluated", services.ErrEvaluationCompleted, http.StatusConflict},
		{"not submitted", services.ErrEvaluationNotSubmitted, http.StatusConflict},
		{"proctoring setup incomplete", services.ErrProctoringSetupIncomplete, http.StatusUnprocessableEntity},
		{"share link expired", services.ErrShareLinkExpired, http.StatusGone},
		{"share link revoked", services.ErrShareLinkRevoked, http.StatusGone},
		{"share link exhausted", services.ErrShareLinkExhausted, http.StatusGone},
		{"not found", services.ErrAssessmentNotFound, http.StatusNotFound},
		{"access denied", services.ErrAssessmentAccessDenied, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, recorder := testContext(http.MethodGet, "/")
			base.handleServiceError(c, tt.err)
			assert.Equal(t, tt.want, recorder.Code)
		})
	}
}

func TestHandleServiceError_ValidationDetails(t *testing.T) {
	base := NewBaseHandler(testHandlerLogger())

	c, recorder := testContext(http.MethodPost, "/")
	base.handleServiceError(c, services.ValidationErrors{
		{Field: "title", Message: "is required"},
	})

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "title")
}

func TestHandleServiceError_BusinessRule(t *testing.T) {
	base := NewBaseHandler(testHandlerLogger())

	c, recorder := testContext(http.MethodPost, "/")
	base.handleServiceError(c, &services.BusinessRuleError{
		Rule:    "max_attempts",
		Message: "attempt limit reached",
	})

	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
	assert.Contains(t, recorder.Body.String(), "max_attempts")
}

func TestParseIDParam(t *testing.T) {
	base := NewBaseHandler(testHandlerLogger())

	c, recorder := testContext(http.MethodGet, "/assessments/42")
	c.Params = gin.Params{{Key: "id", Value: "42"}}
	assert.Equal(t, uint(42), base.parseIDParam(c, "id"))
	assert.Equal(t, http.StatusOK, recorder.Code)

	c, recorder = testContext(http.MethodGet, "/assessments/abc")
	c.Params = gin.Params{{Key: "id", Value: "abc"}}
	assert.Equal(t, uint(0), base.parseIDParam(c, "id"))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)

	c, recorder = testContext(http.MethodGet, "/assessments/0")
	c.Params = gin.Params{{Key: "id", Value: "0"}}
	assert.Equal(t, uint(0), base.parseIDParam(c, "id"))
	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}

func TestParsePagination(t *testing.T) {
	base := NewBaseHandler(testHandlerLogger())

	c, _ := testContext(http.MethodGet, "/questions")
	limit, offset := base.parsePagination(c)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)

	c, _ = testContext(http.MethodGet, "/questions?limit=50&offset=100")
	limit, offset = base.parsePagination(c)
	assert.Equal(t, 50, limit)
	assert.Equal(t, 100, offset)

	// Out-of-range values fall back to the default
	c, _ = testContext(http.MethodGet, "/questions?limit=5000&offset=-1")
	limit, offset = base.parsePagination(c)
	assert.Equal(t, 20, limit)
	assert.Equal(t, 0, offset)
}

func TestRequireUserID(t *testing.T) {
	base := NewBaseHandler(testHandlerLogger())

	c, recorder := testContext(http.MethodGet, "/")
	assert.Equal(t, "", base.requireUserID(c))
	assert.Equal(t, http.StatusUnauthorized, recorder.Code)

	c, _ = testContext(http.MethodGet, "/")
	c.Set("user_id", "instructor-1")
	assert.Equal(t, "instructor-1", base.requireUserID(c))
}
