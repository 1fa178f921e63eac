package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/assessly/assessment-service/internal/models"
	"github.com/assessly/assessment-service/internal/services"
)

type stubShareService struct {
	resolveLink *models.ShareLink
	resolveErr  error
	joinResp    *services.SessionResponse
	joinErr     error

	lastJoinToken string
	lastJoinReq   *services.JoinByTokenRequest
}

func (s *stubShareService) Create(ctx context.Context, assessmentID uint, req *services.CreateShareLinkRequest, userID string) (*services.ShareLinkResponse, error) {
	return nil, services.ErrAssessmentNotFound
}

func (s *stubShareService) List(ctx context.Context, assessmentID uint, userID string) ([]*services.ShareLinkResponse, error) {
	return nil, nil
}

func (s *stubShareService) Revoke(ctx context.Context, linkID uint, userID string) error {
	return nil
}

func (s *stubShareService) Resolve(ctx context.Context, token string) (*models.ShareLink, error) {
	if s.resolveErr != nil {
		return nil, s.resolveErr
	}
	return s.resolveLink, nil
}

func (s *stubShareService) Join(ctx context.Context, token string, req *services.JoinByTokenRequest, ip, userAgent *string) (*services.SessionResponse, error) {
	s.lastJoinToken = token
	s.lastJoinReq = req
	if s.joinErr != nil {
		return nil, s.joinErr
	}
	return s.joinResp, nil
}

func newShareTestRouter(svc services.ShareService) *gin.Engine {
	handler := NewShareHandler(svc, testHandlerLogger())
	router := gin.New()
	router.GET("/share/:token", handler.ResolveShareToken)
	router.POST("/share/:token/join", handler.JoinByShareToken)
	return router
}

func TestResolveShareToken(t *testing.T) {
	description := "Closed book, one attempt"
	stub := &stubShareService{
		resolveLink: &models.ShareLink{
			ID:    1,
			Token: "tok-abc",
			Assessment: models.Assessment{
				ID:          3,
				Title:       "Open Quiz",
				Description: &description,
				Duration:    30,
				Questions:   make([]models.AssessmentQuestion, 5),
			},
		},
	}
	router := newShareTestRouter(stub)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/share/tok-abc", nil))

	assert.Equal(t, http.StatusOK, recorder.Code)
	assert.Contains(t, recorder.Body.String(), `"title":"Open Quiz"`)
	assert.Contains(t, recorder.Body.String(), `"duration_minutes":30`)
	assert.Contains(t, recorder.Body.String(), `"questions_count":5`)
	// The preview must not leak the question content
	assert.NotContains(t, recorder.Body.String(), "questions\":[")
}

func TestResolveShareToken_DeadLinks(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unknown token", services.ErrShareLinkNotFound, http.StatusNotFound},
		{"expired", services.ErrShareLinkExpired, http.StatusGone},
		{"revoked", services.ErrShareLinkRevoked, http.StatusGone},
		{"exhausted", services.ErrShareLinkExhausted, http.StatusGone},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newShareTestRouter(&stubShareService{resolveErr: tt.err})

			recorder := httptest.NewRecorder()
			router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/share/tok-dead", nil))

			assert.Equal(t, tt.want, recorder.Code)
		})
	}
}

func TestJoinByShareToken(t *testing.T) {
	stub := &stubShareService{
		joinResp: &services.SessionResponse{
			AssessmentInstance: &models.AssessmentInstance{ID: 7, AssessmentID: 3},
			RemainingSeconds:   1800,
		},
	}
	router := newShareTestRouter(stub)

	body := strings.NewReader(`{"participant_name": "Ada Lovelace"}`)
	req := httptest.NewRequest(http.MethodPost, "/share/tok-abc/join", body)
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusCreated, recorder.Code)
	assert.Equal(t, "tok-abc", stub.lastJoinToken)
	assert.Equal(t, "Ada Lovelace", stub.lastJoinReq.ParticipantName)
	assert.Contains(t, recorder.Body.String(), `"remaining_seconds":1800`)
}

func TestJoinByShareToken_InvalidBody(t *testing.T) {
	router := newShareTestRouter(&stubShareService{})

	req := httptest.NewRequest(http.MethodPost, "/share/tok-abc/join", strings.NewReader("not-json"))
	req.Header.Set("Content-Type", "application/json")
	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, req)

	assert.Equal(t, http.StatusBadRequest, recorder.Code)
}
