package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/stemsi/icas-portal/internal/response"
	"github.com/stemsi/icas-portal/internal/service"
	"github.com/stemsi/icas-portal/internal/validator"
)

// DashboardHandler serves the student dashboard.
type DashboardHandler struct {
	app       *service.AppState
	dashboard *service.DashboardService
}

// NewDashboardHandler creates a new DashboardHandler.
func NewDashboardHandler(app *service.AppState, dashboard *service.DashboardService) *DashboardHandler {
	return &DashboardHandler{app: app, dashboard: dashboard}
}

type dashboardQuery struct {
	Subject string `form:"subject" json:"subject" binding:"omitempty,oneof=mathematics science digitalTech"`
}

// GetDashboard godoc
// GET /api/v1/student/dashboard?subject=
func (h *DashboardHandler) GetDashboard(c *gin.Context) {
	var q dashboardQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, validator.TranslateErrors(err))
		return
	}

	data := h.dashboard.GetDashboardData(c.Request.Context(), h.app.CurrentUser(), q.Subject)
	response.Success(c, http.StatusOK, data)
}
