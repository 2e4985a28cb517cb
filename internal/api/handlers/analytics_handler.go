package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/wardenproxy/warden/internal/services"
)

type AnalyticsHandler struct {
	calls *services.CallService
}

func NewAnalyticsHandler(calls *services.CallService) *AnalyticsHandler {
	return &AnalyticsHandler{calls: calls}
}

// StatusCodes reports call counts grouped by status code over the trailing
// 24 hours.
func (h *AnalyticsHandler) StatusCodes(c *gin.Context) {
	report, err := h.calls.StatusCodeReport()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"report": report})
}
