package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/ideaforge-backend/internal/handlers"
	"github.com/yungbote/ideaforge-backend/internal/middleware"
	"github.com/yungbote/ideaforge-backend/internal/platform/envutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log *logger.Logger

	AuthMiddleware *middleware.AuthMiddleware

	AuthHandler         *handlers.AuthHandler
	ConversationHandler *handlers.ConversationHandler
	TranscriptHandler   *handlers.TranscriptHandler
	IdeaHandler         *handlers.IdeaHandler
	PromptHandler       *handlers.PromptHandler
	MemoryHandler       *handlers.MemoryHandler
	DocumentHandler     *handlers.DocumentHandler
	EventsHandler       *handlers.EventsHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.AttachTraceContext())
	router.Use(middleware.RequestLog(cfg.Log))

	router.Use(cors.New(cors.Config{
		AllowOrigins:     allowedOrigins(),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	router.GET("/healthcheck", handlers.HealthCheck)

	api := router.Group("/api")

	// Public
	api.POST("/register", cfg.AuthHandler.Register)
	api.POST("/login", cfg.AuthHandler.Login)
	api.POST("/refresh", cfg.AuthHandler.Refresh)

	// Protected
	protected := api.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())

	protected.POST("/logout", cfg.AuthHandler.Logout)

	protected.GET("/events", cfg.EventsHandler.Stream)

	protected.POST("/conversations", cfg.ConversationHandler.Create)
	protected.GET("/conversations", cfg.ConversationHandler.List)
	protected.GET("/conversations/:conversation_id", cfg.ConversationHandler.Get)
	protected.DELETE("/conversations/:conversation_id", cfg.ConversationHandler.Delete)
	protected.POST("/conversations/:conversation_id/messages", cfg.ConversationHandler.SendMessage)
	protected.GET("/conversations/:conversation_id/summary", cfg.ConversationHandler.GetSummary)
	protected.PUT("/conversations/:conversation_id/summary", cfg.ConversationHandler.UpdateSummary)
	protected.POST("/conversations/:conversation_id/documents", cfg.DocumentHandler.Attach)
	protected.POST("/conversations/:conversation_id/reimport", cfg.TranscriptHandler.Reimport)

	protected.GET("/imports/providers", cfg.TranscriptHandler.Providers)
	protected.POST("/imports", cfg.TranscriptHandler.Import)

	protected.POST("/ideas", cfg.IdeaHandler.Generate)
	protected.GET("/ideas", cfg.IdeaHandler.List)
	protected.GET("/ideas/:idea_id", cfg.IdeaHandler.Get)
	protected.POST("/ideas/:idea_id/retry", cfg.IdeaHandler.Retry)
	protected.POST("/ideas/:idea_id/push", cfg.IdeaHandler.PushToLinear)

	protected.GET("/prompts", cfg.PromptHandler.List)
	protected.GET("/prompts/:name", cfg.PromptHandler.Get)
	protected.PUT("/prompts", cfg.PromptHandler.Upsert)
	protected.DELETE("/prompts/:name", cfg.PromptHandler.Delete)

	protected.POST("/memories", cfg.MemoryHandler.Remember)
	protected.GET("/memories", cfg.MemoryHandler.List)
	protected.GET("/memories/search", cfg.MemoryHandler.Search)

	return router
}

func allowedOrigins() []string {
	raw := envutil.String("CORS_ALLOW_ORIGINS", "http://localhost:3000,http://localhost:5173")
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
