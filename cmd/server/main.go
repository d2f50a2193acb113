package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"cadence/internal/auth"
	"cadence/internal/config"
	"cadence/internal/handler"
	"cadence/internal/middleware"
	"cadence/internal/repository/postgres"
	"cadence/internal/service/generation"
	"cadence/internal/service/render"
	"cadence/internal/service/session"
	"cadence/internal/service/turn"
	"cadence/internal/skills"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Environment == "dev" {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.Debug {
		if logFile, err := config.SetupLogFile("logs", 10); err == nil {
			defer logFile.Close()
			logOut = io.MultiWriter(os.Stdout, logFile)
		} else {
			fmt.Fprintf(os.Stderr, "warning: file logging disabled: %v\n", err)
		}
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

	// JWT verifier against the auth provider's JWKS endpoint
	jwtVerifier, err := auth.NewJWTVerifier(cfg.JWKSURL, logger)
	if err != nil {
		log.Fatalf("Failed to create JWT verifier: %v", err)
	}
	defer jwtVerifier.Close()

	// Create pgx connection pool
	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to create connection pool: %v", err)
	}
	defer pool.Close()

	logger.Info("database connected")

	tables := postgres.NewTableNames(cfg.TablePrefix)
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	sessionRepo := postgres.NewSessionRepository(repoConfig)
	snapshotRepo := postgres.NewSnapshotRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Skill registry from embedded YAML
	skillRegistry, err := skills.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to initialize skill registry: %v", err)
	}
	logger.Info("skill registry initialized", "skills", len(skillRegistry.List()))

	// Generation provider
	provider, err := generation.NewAnthropicProvider(cfg.AnthropicAPIKey, cfg.Model, skillRegistry, logger)
	if err != nil {
		log.Fatalf("Failed to setup generation provider: %v", err)
	}

	// Services
	runtimeManager := turn.NewManager(sessionRepo, snapshotRepo, txManager, provider, config.MaxCorrectionAttempts, logger)
	sessionService := session.NewService(sessionRepo, snapshotRepo, runtimeManager, logger)
	renderClient := render.NewClient(cfg.RenderBaseURL, logger)

	// Handlers
	sessionHandler := handler.NewSessionHandler(sessionService, logger)
	turnHandler := handler.NewTurnHandler(runtimeManager, logger)
	historyHandler := handler.NewHistoryHandler(runtimeManager, logger)
	renderHandler := handler.NewRenderHandler(renderClient, runtimeManager, logger)
	skillsHandler := handler.NewSkillsHandler(skillRegistry)

	logger.Info("services initialized")

	// Create HTTP router (Go 1.22+ enhanced patterns)
	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", sessionHandler.HealthCheck)

	// Session routes
	mux.HandleFunc("POST /api/sessions", sessionHandler.CreateSession)
	mux.HandleFunc("GET /api/sessions", sessionHandler.ListSessions)
	mux.HandleFunc("GET /api/sessions/{id}", sessionHandler.GetSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", sessionHandler.UpdateSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", sessionHandler.DeleteSession)

	// Turn routes
	mux.HandleFunc("POST /api/sessions/{id}/turns", turnHandler.SubmitTurn)
	mux.HandleFunc("POST /api/sessions/{id}/preview", turnHandler.Preview)
	mux.HandleFunc("GET /api/sessions/{id}/messages", turnHandler.GetMessages)
	mux.HandleFunc("GET /api/sessions/{id}/code", turnHandler.GetCode)
	mux.HandleFunc("PUT /api/sessions/{id}/code", turnHandler.UpdateCode)

	// History routes
	mux.HandleFunc("GET /api/sessions/{id}/snapshots", historyHandler.ListSnapshots)
	mux.HandleFunc("POST /api/sessions/{id}/undo", historyHandler.Undo)
	mux.HandleFunc("POST /api/sessions/{id}/redo", historyHandler.Redo)

	// Render routes
	mux.HandleFunc("POST /api/sessions/{id}/renders", renderHandler.SubmitRender)
	mux.HandleFunc("GET /api/renders/{id}", renderHandler.GetRender)

	// Skill registry
	mux.HandleFunc("GET /api/skills", skillsHandler.ListSkills)

	// Build middleware chain
	var h http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	h = middleware.AuthMiddleware(jwtVerifier)(h)
	h = middleware.Recovery(logger)(h)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "Last-Event-ID"},
		AllowCredentials: true,
	})
	h = corsHandler.Handler(h)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // Disabled to allow long-lived SSE streams
		IdleTimeout:  60 * time.Second,
	}

	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
