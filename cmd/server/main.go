// Assessment progress server.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/perimetra/assess/internal/api"
	"github.com/perimetra/assess/internal/assessment"
	"github.com/perimetra/assess/internal/catalog"
	"github.com/perimetra/assess/internal/config"
	"github.com/perimetra/assess/internal/middleware"
	"github.com/perimetra/assess/internal/realtime"
	"github.com/perimetra/assess/internal/store"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment())

	// Initialize dependencies.
	repo, err := store.NewSQLite(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := repo.Close(); closeErr != nil {
			slog.Error("Failed to close repository", "error", closeErr)
		}
	}()

	if err := repo.Ping(context.Background()); err != nil {
		slog.Error("Database health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database connected")

	// Question catalog and services.
	cat := catalog.NewBuiltin()
	slog.Info("Question catalog loaded", "subcategories", cat.Size())

	mgr := assessment.NewManager(repo, cat)

	hub := realtime.NewHub(realtime.NewRegistry(), mgr, realtime.HubOptions{
		SweepInterval: cfg.Realtime.SweepInterval,
		PingTimeout:   cfg.Realtime.PingTimeout,
		PushInterval:  cfg.Realtime.PushInterval,
	})

	// Initialize handlers.
	assessmentHandler := api.NewAssessmentHandler(mgr)
	healthHandler := api.NewHealthHandler(repo)
	wsHandler := realtime.NewWebSocketHandler(hub, cfg.FrontendURL, cfg.IsDevelopment())

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(middleware.CORS([]string{"*"}))

	// Routes.
	healthHandler.RegisterHealth(r)
	assessmentHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/assessment", wsHandler.ServeHTTP)

	// Create server. WriteTimeout stays 0 so long-lived WebSocket
	// connections are not torn down by the HTTP server.
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	// Start broadcast loops.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	hub.Run(ctx)
	slog.Info("Broadcast service started",
		"sweep_interval", cfg.Realtime.SweepInterval,
		"push_interval", cfg.Realtime.PushInterval)

	// Start server.
	go func() {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for shutdown signal.
	<-ctx.Done()
	stop()

	slog.Info("Shutting down gracefully...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server forced to shutdown", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
