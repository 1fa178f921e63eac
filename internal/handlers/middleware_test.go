package handlers

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"

	"github.com/assessly/assessment-service/internal/config"
	"github.com/assessly/assessment-service/internal/models"
)

func TestRequestIDMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(RequestIDMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		id, _ := c.Get("request_id")
		c.String(http.StatusOK, "%v", id)
	})

	t.Run("generates an id when absent", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.NotEmpty(t, recorder.Header().Get("X-Request-ID"))
		assert.Equal(t, recorder.Header().Get("X-Request-ID"), recorder.Body.String())
	})

	t.Run("propagates the client id", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/ping", nil)
		req.Header.Set("X-Request-ID", "client-supplied")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		assert.Equal(t, "client-supplied", recorder.Header().Get("X-Request-ID"))
	})
}

func TestCORSMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	t.Run("preflight short circuits", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodOptions, "/ping", nil))

		assert.Equal(t, http.StatusNoContent, recorder.Code)
		assert.Contains(t, recorder.Header().Get("Access-Control-Allow-Headers"), ShareTokenHeader)
	})

	t.Run("exposes download headers", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))

		assert.Contains(t, recorder.Header().Get("Access-Control-Expose-Headers"), "Content-Disposition")
	})
}

func TestSecurityMiddleware(t *testing.T) {
	router := gin.New()
	router.Use(SecurityMiddleware())
	router.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/ping", nil))

	assert.Equal(t, "nosniff", recorder.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", recorder.Header().Get("X-Frame-Options"))
}

func TestSessionAccessMiddleware_ShareToken(t *testing.T) {
	cam := NewCasdoorAuthMiddleware(config.CasdoorConfig{}, nil)

	router := gin.New()
	router.Use(cam.SessionAccessMiddleware())
	router.GET("/sessions/1", func(c *gin.Context) {
		token, _ := c.Get("share_token")
		c.String(http.StatusOK, "%v", token)
	})

	t.Run("admits share token holders", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/sessions/1", nil)
		req.Header.Set(ShareTokenHeader, "tok-abc")
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, req)

		assert.Equal(t, http.StatusOK, recorder.Code)
		assert.Equal(t, "tok-abc", recorder.Body.String())
	})

	t.Run("rejects anonymous requests without a token", func(t *testing.T) {
		recorder := httptest.NewRecorder()
		router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/sessions/1", nil))

		assert.Equal(t, http.StatusUnauthorized, recorder.Code)
	})
}

func TestRequireRoleMiddleware(t *testing.T) {
	cam := NewCasdoorAuthMiddleware(config.CasdoorConfig{}, nil)

	newRouter := func(role models.UserRole, set bool) *gin.Engine {
		router := gin.New()
		router.Use(func(c *gin.Context) {
			if set {
				c.Set("user_role", role)
			}
		})
		router.Use(cam.RequireRoleMiddleware(models.RoleInstructor))
		router.GET("/protected", func(c *gin.Context) { c.Status(http.StatusOK) })
		return router
	}

	tests := []struct {
		name string
		role models.UserRole
		set  bool
		want int
	}{
		{"instructor passes", models.RoleInstructor, true, http.StatusOK},
		{"admin always passes", models.RoleAdmin, true, http.StatusOK},
		{"participant rejected", models.RoleParticipant, true, http.StatusForbidden},
		{"missing role rejected", "", false, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recorder := httptest.NewRecorder()
			newRouter(tt.role, tt.set).ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/protected", nil))
			assert.Equal(t, tt.want, recorder.Code)
		})
	}
}

func TestGetParticipantFromContext(t *testing.T) {
	t.Run("authenticated user", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/sessions/1")
		c.Set("user_id", "participant-1")

		participant, err := GetParticipantFromContext(c)
		assert.NoError(t, err)
		assert.NotNil(t, participant.UserID)
		assert.Equal(t, "participant-1", *participant.UserID)
		assert.Nil(t, participant.ShareToken)
	})

	t.Run("share token holder with name", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/sessions/1")
		c.Request.Header.Set("X-Participant-Name", "Ada Lovelace")
		c.Set("share_token", "tok-abc")

		participant, err := GetParticipantFromContext(c)
		assert.NoError(t, err)
		assert.Nil(t, participant.UserID)
		assert.Equal(t, "tok-abc", *participant.ShareToken)
		assert.Equal(t, "Ada Lovelace", *participant.Name)
	})

	t.Run("no identity", func(t *testing.T) {
		c, _ := testContext(http.MethodGet, "/sessions/1")

		_, err := GetParticipantFromContext(c)
		assert.Error(t, err)
	})
}
