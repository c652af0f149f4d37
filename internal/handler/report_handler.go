package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jansampark/event-desk-api/internal/service"
	appErrors "github.com/jansampark/event-desk-api/pkg/errors"
	"github.com/jansampark/event-desk-api/pkg/response"
)

// ReportHandler serves the per-event attendance report and acceptance marks.
type ReportHandler struct {
	views *service.ViewService
}

// NewReportHandler creates a new handler.
func NewReportHandler(views *service.ViewService) *ReportHandler {
	return &ReportHandler{views: views}
}

// Report godoc
// @Summary Per-user interaction report for an event
// @Description Returns a raw array, one row per registered user
// @Tags Reports
// @Produce json
// @Param id path int true "Event ID"
// @Success 200 {array} models.ReportRow
// @Router /events/{id}/report [get]
func (h *ReportHandler) Report(c *gin.Context) {
	id, err := parseEventID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	rows, err := h.views.Report(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	// The report consumer predates the response envelope and expects a bare array.
	c.Header("Cache-Control", "no-store")
	c.JSON(http.StatusOK, rows)
}

// Accept godoc
// @Summary Mark a user's attendance as accepted
// @Tags Reports
// @Accept json
// @Produce json
// @Param id path int true "Event ID"
// @Param payload body viewRequest true "Accepted user"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /events/{id}/report/accept [post]
func (h *ReportHandler) Accept(c *gin.Context) {
	id, err := parseEventID(c)
	if err != nil {
		response.Error(c, err)
		return
	}

	var req viewRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.UserID == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "userId is required"))
		return
	}

	if err := h.views.Accept(c.Request.Context(), id, req.UserID); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c)
}
