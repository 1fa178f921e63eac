package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

// ShareHandler serves the instructor-facing share link management and
// the public token resolve/join endpoints.
type ShareHandler struct {
	BaseHandler
	shareService services.ShareService
}

func NewShareHandler(shareService services.ShareService, logger utils.Logger) *ShareHandler {
	return &ShareHandler{
		BaseHandler:  NewBaseHandler(logger),
		shareService: shareService,
	}
}

// CreateShareLink creates an anonymous access link for an assessment
// @Summary Create share link
// @Tags sharing
// @Accept json
// @Produce json
// @Param id path uint true "Assessment ID"
// @Param link body services.CreateShareLinkRequest true "Share link options"
// @Success 201 {object} services.ShareLinkResponse
// @Failure 403 {object} ErrorResponse
// @Router /assessments/{id}/share-links [post]
func (h *ShareHandler) CreateShareLink(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.CreateShareLinkRequest
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

	link, err := h.shareService.Create(c.Request.Context(), id, &req, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, link)
}

// ListShareLinks lists all share links of an assessment
// @Summary List share links
// @Tags sharing
// @Produce json
// @Param id path uint true "Assessment ID"
// @Success 200 {array} services.ShareLinkResponse
// @Router /assessments/{id}/share-links [get]
func (h *ShareHandler) ListShareLinks(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	links, err := h.shareService.List(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, links)
}

// RevokeShareLink revokes a share link
// @Summary Revoke share link
// @Tags sharing
// @Param link_id path uint true "Share link ID"
// @Success 200 {object} SuccessResponse
// @Router /share-links/{link_id} [delete]
func (h *ShareHandler) RevokeShareLink(c *gin.Context) {
	linkID := h.parseIDParam(c, "link_id")
	if linkID == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	if err := h.shareService.Revoke(c.Request.Context(), linkID, userID); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Share link revoked",
	})
}

// SharePreview is the public view of a shared assessment. It exposes
// only what a participant needs before joining.
type SharePreview struct {
	Title           string `json:"title"`
	Description     string `json:"description,omitempty"`
	DurationMinutes int    `json:"duration_minutes"`
	QuestionsCount  int    `json:"questions_count"`
	RequiresName    bool   `json:"requires_name"`
}

// ResolveShareToken resolves a token to an assessment preview. Public,
// no authentication required.
// @Summary Resolve share token
// @Tags sharing
// @Produce json
// @Param token path string true "Share token"
// @Success 200 {object} SharePreview
// @Failure 410 {object} ErrorResponse
// @Router /share/{token} [get]
func (h *ShareHandler) ResolveShareToken(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid token parameter",
		})
		return
	}

	link, err := h.shareService.Resolve(c.Request.Context(), token)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	preview := SharePreview{
		Title:           link.Assessment.Title,
		DurationMinutes: link.Assessment.Duration,
		QuestionsCount:  len(link.Assessment.Questions),
		RequiresName:    true,
	}
	if link.Assessment.Description != nil {
		preview.Description = *link.Assessment.Description
	}

	c.JSON(http.StatusOK, preview)
}

// JoinByShareToken admits an anonymous participant and starts an
// instance. Public, no authentication required; the response carries
// the instance the client continues with via the share token header.
// @Summary Join by share token
// @Tags sharing
// @Accept json
// @Produce json
// @Param token path string true "Share token"
// @Param join body services.JoinByTokenRequest true "Participant data"
// @Success 201 {object} services.SessionResponse
// @Failure 410 {object} ErrorResponse
// @Router /share/{token}/join [post]
func (h *ShareHandler) JoinByShareToken(c *gin.Context) {
	token := strings.TrimSpace(c.Param("token"))
	if token == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid token parameter",
		})
		return
	}

	var req services.JoinByTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Message: "Invalid request payload",
			Details: err.Error(),
		})
		return
	}

	h.LogRequest(c, "Anonymous participant joining via share link")

	ip := c.ClientIP()
	userAgent := c.Request.UserAgent()

	session, err := h.shareService.Join(c.Request.Context(), token, &req, &ip, &userAgent)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, session)
}
