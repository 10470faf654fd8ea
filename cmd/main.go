package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/yungbote/ideaforge-backend/internal/clients/linear"
	"github.com/yungbote/ideaforge-backend/internal/clients/metacognition"
	"github.com/yungbote/ideaforge-backend/internal/clients/openai"
	redisclient "github.com/yungbote/ideaforge-backend/internal/clients/redis"
	"github.com/yungbote/ideaforge-backend/internal/data/repos"
	"github.com/yungbote/ideaforge-backend/internal/db"
	"github.com/yungbote/ideaforge-backend/internal/handlers"
	"github.com/yungbote/ideaforge-backend/internal/middleware"
	"github.com/yungbote/ideaforge-backend/internal/observability"
	"github.com/yungbote/ideaforge-backend/internal/platform/dbctx"
	"github.com/yungbote/ideaforge-backend/internal/platform/envutil"
	"github.com/yungbote/ideaforge-backend/internal/platform/logger"
	"github.com/yungbote/ideaforge-backend/internal/realtime"
	"github.com/yungbote/ideaforge-backend/internal/server"
	"github.com/yungbote/ideaforge-backend/internal/services"
)

func main() {
	log, err := logger.New(envutil.String("LOG_MODE", "development"))
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown := observability.InitOTel(rootCtx, log, observability.OtelConfig{
		ServiceName: "ideaforge-backend",
		Environment: envutil.String("APP_ENV", "development"),
		Version:     envutil.String("APP_VERSION", "dev"),
	})

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err := postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up repos...")
	userRepo := repos.NewUserRepo(thePG, log)
	userTokenRepo := repos.NewUserTokenRepo(thePG, log)
	conversationRepo := repos.NewConversationRepo(thePG, log)
	messageRepo := repos.NewChatMessageRepo(thePG, log)
	summaryRepo := repos.NewConversationSummaryRepo(thePG, log)
	memoryRepo := repos.NewMemoryItemRepo(thePG, log)
	ideaRepo := repos.NewIdeaRepo(thePG, log)
	promptRepo := repos.NewPromptRepo(thePG, log)

	// SSE hub, optionally fed by the redis bus so events published on any
	// instance reach clients connected to this one.
	hub := realtime.NewHub(log)
	var bus redisclient.SSEBus
	if b, err := redisclient.NewSSEBus(log); err != nil {
		log.Warn("Redis SSE bus unavailable; events stay instance-local", "error", err)
	} else {
		bus = b
		if err := bus.StartForwarder(rootCtx, hub.Broadcast); err != nil {
			log.Warn("Redis SSE forwarder failed to start", "error", err)
		}
	}

	// Clients
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	var linearClient linear.Client
	if lc, err := linear.NewClient(log); err != nil {
		log.Warn("Linear integration disabled", "error", err)
	} else {
		linearClient = lc
	}

	backend, err := buildSummarizerBackend(log, openaiClient)
	if err != nil {
		log.Error("Could not init summarizer backend", "error", err)
		os.Exit(1)
	}

	// Services
	log.Info("Setting up services...")
	jwtSecret := envutil.String("JWT_SECRET_KEY", "")
	accessTTL := envutil.DurationSeconds("ACCESS_TOKEN_TTL", time.Hour)
	refreshTTL := envutil.DurationSeconds("REFRESH_TOKEN_TTL", 30*24*time.Hour)

	authService, err := services.NewAuthService(thePG, log, userRepo, userTokenRepo, jwtSecret, accessTTL, refreshTTL)
	if err != nil {
		log.Error("Could not init AuthService", "error", err)
		os.Exit(1)
	}

	notify := services.NewNotifier(log, hub, bus)
	coordinator := services.NewSummaryCoordinator(thePG, log, messageRepo, summaryRepo, backend)
	defer coordinator.Close()

	catalog, err := services.LoadModelCatalog(log)
	if err != nil {
		log.Error("Could not load model catalog", "error", err)
		os.Exit(1)
	}

	chatService := services.NewChatService(thePG, log, conversationRepo, messageRepo, summaryRepo, promptRepo, openaiClient, coordinator, notify)
	importService := services.NewImportService(thePG, log, conversationRepo, messageRepo, summaryRepo, services.DefaultTranscriptParsers(), coordinator, notify)
	ideaService := services.NewIdeaGenerationService(thePG, log, conversationRepo, messageRepo, ideaRepo, promptRepo, memoryRepo, openaiClient, linearClient, catalog, coordinator, notify)
	memoryService := services.NewMemoryService(thePG, log, memoryRepo)
	promptService := services.NewPromptService(thePG, log, promptRepo)

	if err := promptService.SeedDefaults(dbctx.Context{Ctx: rootCtx}); err != nil {
		log.Warn("Prompt seeding failed", "error", err)
	}

	var documentService services.DocumentService
	if metaClient, err := metacognition.NewClient(log); err != nil {
		log.Warn("Document attachments disabled; metacognition unavailable", "error", err)
	} else {
		reduction, err := services.NewTextReductionService(log, openaiClient, catalog)
		if err != nil {
			log.Error("Could not init TextReductionService", "error", err)
			os.Exit(1)
		}
		documentService = services.NewDocumentService(thePG, log, conversationRepo, summaryRepo, metaClient, reduction)
	}

	// Router
	log.Info("Setting up router...")
	router := server.NewRouter(server.RouterConfig{
		Log:                 log,
		AuthMiddleware:      middleware.NewAuthMiddleware(log, authService),
		AuthHandler:         handlers.NewAuthHandler(authService),
		ConversationHandler: handlers.NewConversationHandler(chatService),
		TranscriptHandler:   handlers.NewTranscriptHandler(importService),
		IdeaHandler:         handlers.NewIdeaHandler(ideaService, ideaRepo),
		PromptHandler:       handlers.NewPromptHandler(promptService),
		MemoryHandler:       handlers.NewMemoryHandler(memoryService),
		DocumentHandler:     handlers.NewDocumentHandler(documentService),
		EventsHandler:       handlers.NewEventsHandler(log, hub),
	})

	port := envutil.String("PORT", "8080")
	srv := &http.Server{Addr: ":" + port, Handler: router}

	go func() {
		log.Info("Server listening", "port", port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("Server failed", "error", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("Server shutdown incomplete", "error", err)
	}
	if bus != nil {
		_ = bus.Close()
	}
	if otelShutdown != nil {
		_ = otelShutdown(shutdownCtx)
	}
}

// buildSummarizerBackend picks the summarization engine: the metacognition
// sidecar when configured, a local model-backed fold otherwise.
func buildSummarizerBackend(log *logger.Logger, ai openai.Client) (services.SummarizerBackend, error) {
	mode := envutil.String("SUMMARIZER_BACKEND", "")
	switch mode {
	case "remote":
		client, err := metacognition.NewClient(log)
		if err != nil {
			return nil, err
		}
		return services.NewRemoteSummarizerBackend(client)
	case "local":
		return services.NewLocalSummarizerBackend(log, ai)
	case "":
		if envutil.String("METACOGNITION_API_URL", "") != "" {
			client, err := metacognition.NewClient(log)
			if err != nil {
				return nil, err
			}
			return services.NewRemoteSummarizerBackend(client)
		}
		log.Info("METACOGNITION_API_URL not set; using local summarizer backend")
		return services.NewLocalSummarizerBackend(log, ai)
	default:
		return nil, fmt.Errorf("unknown SUMMARIZER_BACKEND %q", mode)
	}
}
