package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/cors"

	"vibesession/internal/agent"
	"vibesession/internal/auth"
	"vibesession/internal/config"
	"vibesession/internal/embedding"
	"vibesession/internal/handler"
	"vibesession/internal/middleware"
	"vibesession/internal/prompts"
	"vibesession/internal/repository/postgres"
	"vibesession/internal/service/chat"
	"vibesession/internal/taskq"
)

func main() {
	// Load .env file (silently ignore if it doesn't exist - for production)
	_ = godotenv.Load()

	// Load configuration
	cfg := config.Load()

	// Setup structured logging
	logLevel := slog.LevelInfo
	if cfg.Debug {
		logLevel = slog.LevelDebug
	}

	var logOut io.Writer = os.Stdout
	if cfg.Environment == "dev" {
		if f, err := config.SetupLogFile("logs", 10); err == nil {
			defer f.Close()
			logOut = io.MultiWriter(os.Stdout, f)
		} else {
			log.Printf("log file setup failed, stdout only: %v", err)
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

	// Create JWT verifier for workspace OIDC tokens
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

	logger.Info("database connected",
		"max_conns", 25,
		"min_conns", 5,
	)

	// Create table names
	tables := postgres.NewTableNames(cfg.TablePrefix)

	// Create repositories
	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	sessionRepo := postgres.NewSessionRepository(repoConfig)
	messageRepo := postgres.NewMessageRepository(repoConfig)
	txManager := postgres.NewTransactionManager(pool)

	// Prompt registry (embedded YAML)
	promptRegistry, err := prompts.NewRegistry()
	if err != nil {
		log.Fatalf("Failed to load prompt registry: %v", err)
	}

	// Serving endpoint clients
	agentClient := agent.NewClient(agent.Options{
		Host:     cfg.WorkspaceHost,
		Token:    cfg.WorkspaceToken,
		Endpoint: cfg.AgentEndpoint,
		ChatK:    cfg.AgentChatK,
		Logger:   logger,
	})
	embeddingClient := embedding.NewClient(embedding.Options{
		Host:     cfg.WorkspaceHost,
		Token:    cfg.WorkspaceToken,
		Endpoint: cfg.EmbeddingEndpoint,
		Logger:   logger,
	})

	// Chat service
	chatService := chat.NewService(chat.ServiceOptions{
		Sessions:      sessionRepo,
		Messages:      messageRepo,
		TxManager:     txManager,
		Generator:     agentClient,
		Embedder:      embeddingClient,
		Prompts:       promptRegistry,
		ContextLimit:  cfg.ChatContextLimit,
		TitleEndpoint: cfg.TitleEndpoint,
		Logger:        logger,
	})

	// Task queue and render-loop controller
	queue := taskq.New(taskq.Options{
		Workers:     cfg.WorkerPoolSize,
		TaskTimeout: cfg.TaskTimeout,
		ChunkChars:  cfg.StreamChunkChars,
		ChunkDelay:  cfg.StreamChunkDelay,
		EntryTTL:    cfg.QueueEntryTTL,
		Logger:      logger,
	})
	defer queue.Close()

	controller := chat.NewController(queue, chatService, chat.ControllerOptions{
		FastInterval:   cfg.TickFast,
		SlowInterval:   cfg.TickSlow,
		SimulateStream: cfg.SimulateStream,
		Logger:         logger,
	})

	// Create handlers
	sessionHandler := handler.NewSessionHandler(chatService, logger)
	chatHandler := handler.NewChatHandler(controller, chatService, cfg, logger)

	// Setup routes
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// Session routes
	mux.HandleFunc("GET /api/sessions", sessionHandler.ListSessions)
	mux.HandleFunc("POST /api/sessions", sessionHandler.CreateSession)
	mux.HandleFunc("PATCH /api/sessions/{id}", sessionHandler.RenameSession)
	mux.HandleFunc("POST /api/sessions/{id}/title", sessionHandler.AutoTitleSession)
	mux.HandleFunc("DELETE /api/sessions/{id}", sessionHandler.DeleteSession)

	// Chat routes
	mux.HandleFunc("POST /api/chat/send", chatHandler.SendMessage)
	mux.HandleFunc("POST /api/chat/select", chatHandler.SelectChat)
	mux.HandleFunc("POST /api/poll", chatHandler.Poll)
	mux.HandleFunc("GET /api/search", chatHandler.SearchMessages)
	mux.HandleFunc("GET /api/config", chatHandler.GetConfig)

	// Build middleware chain
	var httpHandler http.Handler = mux

	// Apply middleware in reverse order (they wrap each other)
	// Order: CORS → Recovery → Auth → Routes
	httpHandler = middleware.AuthMiddleware(jwtVerifier, logger)(httpHandler)
	httpHandler = middleware.Recovery(logger)(httpHandler)

	// CORS - Must be before auth to handle OPTIONS pre-flight requests
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   strings.Split(cfg.CORSOrigins, ","),
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Forwarded-Email"},
		AllowCredentials: true,
	})
	httpHandler = corsHandler.Handler(httpHandler)

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	logger.Info("server listening", "port", cfg.Port)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("Failed to start server: %v", err)
	}
}
