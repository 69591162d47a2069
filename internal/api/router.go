package api

import (
	"strings"
	"time"

	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/api/handlers"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/config"
	"github.com/Kaushik-hub77/OneBox-email-Aggregator/internal/services"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

// SetupRouter initializes and returns the Gin router with all routes configured
func SetupRouter(cfg *config.Config, indexer *services.IndexService, supervisor *services.Supervisor, logService *services.LogService) *gin.Engine {
	router := gin.Default()

	// 配置 CORS - 允许跨域请求
	origins := []string{"*"}
	if cfg.CORSOrigins != "" {
		origins = origins[:0]
		for _, origin := range strings.Split(cfg.CORSOrigins, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				origins = append(origins, origin)
			}
		}
	}
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type"},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	emailHandler := handlers.NewEmailHandler(indexer, logService)
	logHandler := handlers.NewLogHandler(logService)

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		accounts := gin.H{}
		if supervisor != nil {
			for id, state := range supervisor.States() {
				accounts[id] = string(state)
			}
		}
		c.JSON(200, gin.H{"status": "ok", "accounts": accounts})
	})

	// API routes (read-only)
	api := router.Group("/api")
	{
		emails := api.Group("/emails")
		{
			emails.GET("", emailHandler.SearchEmails)
			emails.GET("/stats", emailHandler.GetEmailStats)
			emails.GET("/recent", emailHandler.GetRecentEmails)
			emails.GET("/category/:category", emailHandler.GetEmailsByCategory)
			emails.GET("/:id", emailHandler.GetEmail)
		}
		api.GET("/logs", logHandler.GetRecentLogs)
	}

	return router
}
