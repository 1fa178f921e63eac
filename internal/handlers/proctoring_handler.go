package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/assessly/assessment-service/internal/services"
	"github.com/assessly/assessment-service/internal/utils"
)

type ProctoringHandler struct {
	BaseHandler
	proctoringService services.ProctoringService
}

func NewProctoringHandler(proctoringService services.ProctoringService, logger utils.Logger) *ProctoringHandler {
	return &ProctoringHandler{
		BaseHandler:       NewBaseHandler(logger),
		proctoringService: proctoringService,
	}
}

func (h *ProctoringHandler) participant(c *gin.Context) (services.Participant, bool) {
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

// SetupProctoring records granted permissions before the session starts
// @Summary Setup proctoring
// @Tags proctoring
// @Accept json
// @Produce json
// @Param id path uint true "Instance ID"
// @Param setup body services.ProctoringSetupRequest true "Granted permissions"
// @Success 200 {object} services.ProctoringStatusResponse
// @Failure 422 {object} ErrorResponse
// @Router /sessions/{id}/proctoring/setup [post]
func (h *ProctoringHandler) SetupProctoring(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ProctoringSetupRequest
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

	status, err := h.proctoringService.Setup(c.Request.Context(), id, &req, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// ActivateProctoring transitions the monitor to active
// @Summary Activate proctoring
// @Tags proctoring
// @Param id path uint true "Instance ID"
// @Success 200 {object} SuccessResponse
// @Failure 409 {object} ErrorResponse
// @Router /sessions/{id}/proctoring/activate [post]
func (h *ProctoringHandler) ActivateProctoring(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	if err := h.proctoringService.Activate(c.Request.Context(), id, participant); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Proctoring activated",
	})
}

// PauseProctoring pauses the monitor
// @Summary Pause proctoring
// @Tags proctoring
// @Param id path uint true "Instance ID"
// @Success 200 {object} SuccessResponse
// @Router /sessions/{id}/proctoring/pause [post]
func (h *ProctoringHandler) PauseProctoring(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	if err := h.proctoringService.Pause(c.Request.Context(), id, participant); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Proctoring paused",
	})
}

// ResumeProctoring resumes a paused monitor
// @Summary Resume proctoring
// @Tags proctoring
// @Param id path uint true "Instance ID"
// @Success 200 {object} SuccessResponse
// @Router /sessions/{id}/proctoring/resume [post]
func (h *ProctoringHandler) ResumeProctoring(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	if err := h.proctoringService.ResumeMonitor(c.Request.Context(), id, participant); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, SuccessResponse{
		Message: "Proctoring resumed",
	})
}

// ReportProctoringEvent records a proctoring event from the client
// @Summary Report proctoring event
// @Tags proctoring
// @Accept json
// @Param id path uint true "Instance ID"
// @Param event body services.ReportEventRequest true "Event data"
// @Success 202 {object} SuccessResponse
// @Router /sessions/{id}/proctoring/events [post]
func (h *ProctoringHandler) ReportProctoringEvent(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	var req services.ReportEventRequest
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

	if err := h.proctoringService.ReportEvent(c.Request.Context(), id, &req, participant); err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, SuccessResponse{
		Message: "Event recorded",
	})
}

// GetProctoringStatus returns the current monitor state
// @Summary Get proctoring status
// @Tags proctoring
// @Produce json
// @Param id path uint true "Instance ID"
// @Success 200 {object} services.ProctoringStatusResponse
// @Router /sessions/{id}/proctoring [get]
func (h *ProctoringHandler) GetProctoringStatus(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	participant, ok := h.participant(c)
	if !ok {
		return
	}

	status, err := h.proctoringService.GetStatus(c.Request.Context(), id, participant)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetIntegrityReport returns the integrity report (instructor/proctor)
// @Summary Get integrity report
// @Tags proctoring
// @Produce json
// @Param id path uint true "Instance ID"
// @Success 200 {object} services.IntegrityReport
// @Failure 403 {object} ErrorResponse
// @Router /sessions/{id}/proctoring/report [get]
func (h *ProctoringHandler) GetIntegrityReport(c *gin.Context) {
	id := h.parseIDParam(c, "id")
	if id == 0 {
		return
	}

	userID := h.requireUserID(c)
	if userID == "" {
		return
	}

	report, err := h.proctoringService.GetIntegrityReport(c.Request.Context(), id, userID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, report)
}
