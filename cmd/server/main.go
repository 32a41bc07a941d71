package main

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"inkwell/internal/auth"
	"inkwell/internal/config"
	"inkwell/internal/handler"
	"inkwell/internal/middleware"
	"inkwell/internal/repository/postgres"
	"inkwell/internal/service"
	"inkwell/internal/service/audit"
	"inkwell/internal/service/session"
	syncsvc "inkwell/internal/service/sync"
	"inkwell/internal/tuning"

	"github.com/joho/godotenv"
	"github.com/rs/cors"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.LogDir != "" {
		logFile, err := config.SetupLogFile(cfg.LogDir, cfg.MaxLogFiles)
		if err != nil {
			log.Fatalf("Failed to set up log file: %v", err)
		}
		defer logFile.Close()
		logOut = io.MultiWriter(os.Stdout, logFile)
	}

	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	logger.Info("server starting",
		"environment", cfg.Environment,
		"port", cfg.Port,
		"table_prefix", cfg.TablePrefix,
	)

	// Load sync engine tuning from embedded config
	tun, err := tuning.Load()
	if err != nil {
		log.Fatalf("Failed to load tuning config: %v", err)
	}
	logger.Info("tuning loaded",
		"idle_delay", tun.Sync.IdleDelay(),
		"title_max_runes", tun.Session.TitleMaxRunes,
	)

	// Create JWT verifier
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Apply schema migrations
	if err := postgres.RunMigrations(cfg.DatabaseURL, logger); err != nil {
		log.Fatalf("Failed to run migrations: %v", err)
	}

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: postgres.NewTableNames(cfg.TablePrefix),
		Logger: logger,
	}
	docRepo := postgres.NewDocumentRepository(repoConfig)
	convRepo := postgres.NewConversationRepository(repoConfig)
	auditRepo := postgres.NewAuditRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Audit emitter (fire-and-forget; drained on shutdown)
	auditor := audit.NewEmitter(auditRepo, tun.Audit.BufferSize, logger)
	defer auditor.Close()

	// Create services
	docService := service.NewDocumentService(docRepo, auditor, tun.Sync, logger)
	convService := service.NewConversationService(convRepo, txManager, auditor, logger)

	// Session registries (the sync engine proper)
	editSessions := syncsvc.NewRegistry(docService, tun.Sync.IdleDelay(), logger)
	defer editSessions.CloseAll()
	chatSessions := session.NewRegistry(convService, tun.Session, logger)

	// Create handlers
	docHandler := handler.NewDocumentHandler(docService, auditRepo, logger)
	editHandler := handler.NewEditSessionHandler(editSessions, logger)
	chatHandler := handler.NewChatSessionHandler(chatSessions, logger)
	convHandler := handler.NewConversationHandler(convService, logger)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", docHandler.HealthCheck)

	// Document routes
	mux.HandleFunc("GET /api/documents/{id}", docHandler.GetDocument)
	mux.HandleFunc("GET /api/documents/{id}/status", docHandler.GetDocumentStatus)
	mux.HandleFunc("POST /api/documents/{id}/reset", docHandler.ResetDocument)
	mux.HandleFunc("GET /api/documents/{id}/audit", docHandler.GetDocumentAudit)

	// Editing session routes
	mux.HandleFunc("POST /api/documents/{id}/sessions", editHandler.OpenSession)
	mux.HandleFunc("GET /api/edit-sessions/{id}", editHandler.GetSession)
	mux.HandleFunc("POST /api/edit-sessions/{id}/edits", editHandler.Edit)
	mux.HandleFunc("POST /api/edit-sessions/{id}/save", editHandler.Save)
	mux.HandleFunc("DELETE /api/edit-sessions/{id}", editHandler.CloseSession)

	// Chat session routes
	mux.HandleFunc("POST /api/chat-sessions", chatHandler.OpenSession)
	mux.HandleFunc("GET /api/chat-sessions/{id}/messages", chatHandler.GetMessages)
	mux.HandleFunc("POST /api/chat-sessions/{id}/messages", chatHandler.ObserveMessage)
	mux.HandleFunc("POST /api/chat-sessions/{id}/history", chatHandler.LoadHistory)
	mux.HandleFunc("DELETE /api/chat-sessions/{id}", chatHandler.CloseSession)

	// Conversation routes
	mux.HandleFunc("GET /api/conversations", convHandler.ListConversations)
	mux.HandleFunc("DELETE /api/conversations/{id}", convHandler.ArchiveConversation)
	mux.HandleFunc("GET /api/conversations/{id}/messages", convHandler.GetMessages)

	// Build middleware chain
	var root http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	root = middleware.AuthMiddleware(jwtVerifier)(root)
	root = middleware.Recovery(logger)(root)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization"},
		AllowCredentials: true,
	})
	root = corsHandler.Handler(root)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      root,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Run server; shut down gracefully on SIGINT/SIGTERM
	errCh := make(chan error, 1)
	go func() {
		logger.Info("listening", "addr", server.Addr)
		errCh <- server.ListenAndServe()
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Server failed: %v", err)
		}
	case sig := <-stop:
		logger.Info("shutting down", "signal", sig.String())

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}
}
