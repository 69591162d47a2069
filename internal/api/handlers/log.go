package handlers

import (
	"net/http"
	"strconv"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/services"
	"github.com/gin-gonic/gin"
)

// LogHandler exposes the persisted system logs
type LogHandler struct {
	logService *services.LogService
}

// NewLogHandler creates a new LogHandler instance
func NewLogHandler(logService *services.LogService) *LogHandler {
	return &LogHandler{logService: logService}
}

// GetRecentLogs returns the most recent log entries, newest first
// GET /api/logs?limit=100
func (h *LogHandler) GetRecentLogs(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))

	logs, err := h.logService.GetRecentLogs(limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve logs",
			},
		})
		return
	}
	if logs == nil {
		logs = []models.Log{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    logs,
	})
}
