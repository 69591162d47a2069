package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/database/models"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/services"
	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupHandlerTest(t *testing.T) (*gin.Engine, *services.IndexService, *services.LogService, func()) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	tempDir, err := os.MkdirTemp("", "onebox_handler_test_*")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}

	db, err := gorm.Open(sqlite.Open(filepath.Join(tempDir, "test.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		os.RemoveAll(tempDir)
		t.Fatalf("Failed to open database: %v", err)
	}
	db.AutoMigrate(&models.Email{}, &models.Log{})

	logService := services.NewLogService(db)
	indexer := services.NewIndexService(db, logService)
	handler := NewEmailHandler(indexer, logService)
	logHandler := NewLogHandler(logService)

	router := gin.New()
	emails := router.Group("/api/emails")
	{
		emails.GET("", handler.SearchEmails)
		emails.GET("/stats", handler.GetEmailStats)
		emails.GET("/recent", handler.GetRecentEmails)
		emails.GET("/category/:category", handler.GetEmailsByCategory)
		emails.GET("/:id", handler.GetEmail)
	}
	router.GET("/api/logs", logHandler.GetRecentLogs)

	cleanup := func() {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		os.RemoveAll(tempDir)
	}
	return router, indexer, logService, cleanup
}

func seedEmails(t *testing.T, indexer *services.IndexService, count int, category models.EmailCategory) {
	t.Helper()
	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= count; i++ {
		email := &models.Email{
			DocID:     fmt.Sprintf("account1_%d", i),
			AccountID: "account1",
			MessageID: fmt.Sprintf("<seed-%d@example.com>", i),
			Folder:    "INBOX",
			Subject:   fmt.Sprintf("Seed %d", i),
			FromAddr:  "sender@example.com",
			ToAddrs:   `["me@example.com"]`,
			Date:      base.Add(time.Duration(i) * time.Hour),
			Body:      "seed body",
			Category:  category,
			AIScore:   0.6,
			IndexedAt: time.Now(),
			UID:       uint32(i),
		}
		if _, err := indexer.Upsert(email); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}
}

func doRequest(router *gin.Engine, path string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(w, req)
	return w
}

func TestSearchEmailsEndpoint(t *testing.T) {
	router, indexer, _, cleanup := setupHandlerTest(t)
	defer cleanup()
	seedEmails(t, indexer, 15, models.CategoryInterested)

	w := doRequest(router, "/api/emails?account_id=account1&page=2&size=10")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Data    struct {
			Emails []EmailResponse `json:"emails"`
			Total  int64           `json:"total"`
			Page   int             `json:"page"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Data.Total != 15 || len(resp.Data.Emails) != 5 || resp.Data.Page != 2 {
		t.Errorf("total=%d len=%d page=%d, want 15/5/2", resp.Data.Total, len(resp.Data.Emails), resp.Data.Page)
	}
	// JSON text columns come back as arrays
	if len(resp.Data.Emails) > 0 && len(resp.Data.Emails[0].To) != 1 {
		t.Errorf("to = %v, want one address", resp.Data.Emails[0].To)
	}
}

func TestGetEmailEndpoint(t *testing.T) {
	router, indexer, _, cleanup := setupHandlerTest(t)
	defer cleanup()
	seedEmails(t, indexer, 1, models.CategoryMeetingBooked)

	w := doRequest(router, "/api/emails/account1_1")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Success bool          `json:"success"`
		Data    EmailResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data.ID != "account1_1" || resp.Data.Category != string(models.CategoryMeetingBooked) {
		t.Errorf("data = %+v", resp.Data)
	}
}

// Unknown ids are a distinguished 404, not an empty response
func TestGetEmailEndpointNotFound(t *testing.T) {
	router, _, _, cleanup := setupHandlerTest(t)
	defer cleanup()

	w := doRequest(router, "/api/emails/missing_1")
	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success || resp.Error.Code != "NOT_FOUND" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestEmailStatsEndpoint(t *testing.T) {
	router, indexer, _, cleanup := setupHandlerTest(t)
	defer cleanup()
	seedEmails(t, indexer, 3, models.CategorySpam)

	w := doRequest(router, "/api/emails/stats")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Success bool             `json:"success"`
		Data    map[string]int64 `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data[string(models.CategorySpam)] != 3 {
		t.Errorf("stats = %v, want Spam=3", resp.Data)
	}
}

func TestRecentAndCategoryEndpoints(t *testing.T) {
	router, indexer, _, cleanup := setupHandlerTest(t)
	defer cleanup()
	seedEmails(t, indexer, 12, models.CategoryOutOfOffice)

	w := doRequest(router, "/api/emails/recent?limit=5")
	if w.Code != http.StatusOK {
		t.Fatalf("recent status = %d, want 200", w.Code)
	}
	var recentResp struct {
		Data []EmailResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &recentResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(recentResp.Data) != 5 {
		t.Errorf("recent len = %d, want 5", len(recentResp.Data))
	}
	// Newest first
	if len(recentResp.Data) >= 2 && recentResp.Data[0].Date < recentResp.Data[1].Date {
		t.Error("expected recent emails newest first")
	}

	w = doRequest(router, "/api/emails/category/Out%20of%20Office")
	if w.Code != http.StatusOK {
		t.Fatalf("category status = %d, want 200", w.Code)
	}
	var catResp struct {
		Data []EmailResponse `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &catResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(catResp.Data) != 12 {
		t.Errorf("category len = %d, want 12", len(catResp.Data))
	}
}

// The category query param narrows search results to that category
func TestSearchEmailsCategoryFilter(t *testing.T) {
	router, indexer, _, cleanup := setupHandlerTest(t)
	defer cleanup()

	base := time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	for i := 1; i <= 8; i++ {
		category := models.CategorySpam
		if i%2 == 0 {
			category = models.CategoryInterested
		}
		email := &models.Email{
			DocID:     fmt.Sprintf("account1_%d", i),
			AccountID: "account1",
			MessageID: fmt.Sprintf("<mixed-%d@example.com>", i),
			Folder:    "INBOX",
			Subject:   fmt.Sprintf("Mixed %d", i),
			FromAddr:  "sender@example.com",
			ToAddrs:   `["me@example.com"]`,
			Date:      base.Add(time.Duration(i) * time.Hour),
			Category:  category,
			IndexedAt: time.Now(),
			UID:       uint32(i),
		}
		if _, err := indexer.Upsert(email); err != nil {
			t.Fatalf("seed %d: %v", i, err)
		}
	}

	w := doRequest(router, "/api/emails?category=Interested")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Data struct {
			Emails []EmailResponse `json:"emails"`
			Total  int64           `json:"total"`
		} `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Data.Total != 4 {
		t.Errorf("total = %d, want 4", resp.Data.Total)
	}
	for _, email := range resp.Data.Emails {
		if email.Category != string(models.CategoryInterested) {
			t.Errorf("email %s category = %q, want Interested", email.ID, email.Category)
		}
	}
}

func TestGetEmailsByCategoryRejectsUnknown(t *testing.T) {
	router, _, _, cleanup := setupHandlerTest(t)
	defer cleanup()

	w := doRequest(router, "/api/emails/category/Nonsense")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}

	var resp struct {
		Success bool `json:"success"`
		Error   struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if resp.Success || resp.Error.Code != "INVALID_CATEGORY" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestRecentLogsEndpoint(t *testing.T) {
	router, _, logService, cleanup := setupHandlerTest(t)
	defer cleanup()

	for i := 1; i <= 5; i++ {
		logService.LogInfo("account1", models.LogModuleAPI, "test", fmt.Sprintf("entry %d", i), nil)
	}

	w := doRequest(router, "/api/logs?limit=3")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp struct {
		Success bool         `json:"success"`
		Data    []models.Log `json:"data"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !resp.Success || len(resp.Data) != 3 {
		t.Fatalf("success=%v len=%d, want true/3", resp.Success, len(resp.Data))
	}
}
