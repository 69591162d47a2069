package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/services"
	"github.com/gin-gonic/gin"
)

// EmailHandler handles email related requests
type EmailHandler struct {
	indexer    *services.IndexService
	logService *services.LogService
}

// NewEmailHandler creates a new EmailHandler instance
func NewEmailHandler(indexer *services.IndexService, logService *services.LogService) *EmailHandler {
	return &EmailHandler{
		indexer:    indexer,
		logService: logService,
	}
}

// EmailResponse represents the response for an email
type EmailResponse struct {
	ID          string                  `json:"id"`
	AccountID   string                  `json:"account_id"`
	MessageID   string                  `json:"message_id"`
	Folder      string                  `json:"folder"`
	Subject     string                  `json:"subject"`
	From        string                  `json:"from"`
	To          []string                `json:"to"`
	Cc          []string                `json:"cc,omitempty"`
	Date        int64                   `json:"date"`
	Body        string                  `json:"body"`
	HTMLBody    string                  `json:"html_body"`
	Attachments []models.AttachmentMeta `json:"attachments"`
	Flags       []string                `json:"flags"`
	Category    string                  `json:"category"`
	AIScore     float64                 `json:"ai_score"`
	IndexedAt   int64                   `json:"indexed_at"`
}

// toEmailResponse converts an Email model to EmailResponse
func toEmailResponse(email *models.Email) EmailResponse {
	toAddrs := []string{}
	if email.ToAddrs != "" {
		json.Unmarshal([]byte(email.ToAddrs), &toAddrs)
	}
	var ccAddrs []string
	if email.CcAddrs != "" {
		json.Unmarshal([]byte(email.CcAddrs), &ccAddrs)
	}
	attachments := []models.AttachmentMeta{}
	if email.Attachments != "" {
		json.Unmarshal([]byte(email.Attachments), &attachments)
	}
	flags := []string{}
	if email.Flags != "" {
		json.Unmarshal([]byte(email.Flags), &flags)
	}

	return EmailResponse{
		ID:          email.DocID,
		AccountID:   email.AccountID,
		MessageID:   email.MessageID,
		Folder:      email.Folder,
		Subject:     email.Subject,
		From:        email.FromAddr,
		To:          toAddrs,
		Cc:          ccAddrs,
		Date:        email.Date.Unix(),
		Body:        email.Body,
		HTMLBody:    email.HTMLBody,
		Attachments: attachments,
		Flags:       flags,
		Category:    string(email.Category),
		AIScore:     email.AIScore,
		IndexedAt:   email.IndexedAt.Unix(),
	}
}

func toEmailResponses(emails []models.Email) []EmailResponse {
	responses := make([]EmailResponse, 0, len(emails))
	for i := range emails {
		responses = append(responses, toEmailResponse(&emails[i]))
	}
	return responses
}

// parseDateParam parses a date query parameter as RFC3339 or YYYY-MM-DD
func parseDateParam(value string) *time.Time {
	if value == "" {
		return nil
	}
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return &t
	}
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return &t
	}
	return nil
}

// validCategory reports whether the value is one of the closed category set
func validCategory(category models.EmailCategory) bool {
	for _, known := range models.Categories() {
		if known == category {
			return true
		}
	}
	return false
}

// SearchEmails returns emails matching the given filters with pagination
// GET /api/emails
func (h *EmailHandler) SearchEmails(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "20"))

	query := services.SearchQuery{
		Query:     c.Query("q"),
		AccountID: c.Query("account_id"),
		Folder:    c.Query("folder"),
		Category:  models.EmailCategory(c.Query("category")),
		From:      parseDateParam(c.Query("from")),
		To:        parseDateParam(c.Query("to")),
		Page:      page,
		Size:      size,
	}

	emails, total, err := h.indexer.Search(query)
	if err != nil {
		// 查询失败时按空结果降级返回,不让前端报错
		h.logService.LogError("", models.LogModuleAPI, "search", "Email search failed", map[string]interface{}{
			"error": err.Error(),
		})
		emails, total = nil, 0
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data": gin.H{
			"emails": toEmailResponses(emails),
			"total":  total,
			"page":   query.Page,
			"size":   query.Size,
		},
	})
}

// GetEmailStats returns per-category email counts
// GET /api/emails/stats
func (h *EmailHandler) GetEmailStats(c *gin.Context) {
	stats, err := h.indexer.CategoryStats()
	if err != nil {
		h.logService.LogError("", models.LogModuleAPI, "stats", "Email stats failed", map[string]interface{}{
			"error": err.Error(),
		})
		stats = map[string]int64{}
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    stats,
	})
}

// GetRecentEmails returns the most recently dated emails
// GET /api/emails/recent
func (h *EmailHandler) GetRecentEmails(c *gin.Context) {
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	emails, err := h.indexer.Recent(limit)
	if err != nil {
		h.logService.LogError("", models.LogModuleAPI, "recent", "Recent emails query failed", map[string]interface{}{
			"error": err.Error(),
		})
		emails = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toEmailResponses(emails),
	})
}

// GetEmailsByCategory returns emails in one category
// GET /api/emails/category/:category
func (h *EmailHandler) GetEmailsByCategory(c *gin.Context) {
	category := models.EmailCategory(c.Param("category"))
	if !validCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INVALID_CATEGORY",
				"message": "Unknown category: " + string(category),
			},
		})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))

	emails, err := h.indexer.ByCategory(category, limit)
	if err != nil {
		h.logService.LogError("", models.LogModuleAPI, "category", "Category query failed", map[string]interface{}{
			"category": category,
			"error":    err.Error(),
		})
		emails = nil
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toEmailResponses(emails),
	})
}

// GetEmail returns a single email by its document id
// GET /api/emails/:id
func (h *EmailHandler) GetEmail(c *gin.Context) {
	id := c.Param("id")

	email, err := h.indexer.GetByDocID(id)
	if err != nil {
		if errors.Is(err, services.ErrEmailNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"success": false,
				"error": gin.H{
					"code":    "NOT_FOUND",
					"message": "Email not found",
				},
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error": gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "Failed to retrieve email",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"data":    toEmailResponse(email),
	})
}
