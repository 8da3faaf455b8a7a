// Package main is the entrypoint for the Nodegate API server.
package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"regexp"
	"strings"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/nodegate/nodegate/internal/auth"
	"github.com/nodegate/nodegate/internal/cache"
	"github.com/nodegate/nodegate/internal/config"
	"github.com/nodegate/nodegate/internal/handler"
	"github.com/nodegate/nodegate/internal/middleware"
	"github.com/nodegate/nodegate/internal/node"
	"github.com/nodegate/nodegate/internal/repository"
	"github.com/nodegate/nodegate/internal/server"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	repo, err := repository.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		os.Exit(1)
	}
	defer repo.Close()
	logger.Info("connected to database")

	cacheClient, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		logger.Error(
			"failed to connect to Redis",
			slog.String("error", sanitizeError(err, cfg.RedisURL)),
			slog.String("redis_url", redactURL(cfg.RedisURL)),
		)
		os.Exit(1)
	}
	defer cacheClient.Close()
	logger.Info("connected to Redis")

	nodeClient, err := node.NewClient(cfg.NodeURL, cfg.NodeActionBody)
	if err != nil {
		logger.Error("invalid node URL", "error", err, "node_url", cfg.NodeURL)
		os.Exit(1)
	}

	sessions := auth.NewSessions(cfg.SessionSecret, cfg.SessionTTL)

	healthHandler := handler.NewHealthHandler(repo, cacheClient)
	authHandler := handler.NewAuthHandler(repo, repo, sessions, cacheClient, logger, cfg.IsProduction())
	apiKeyHandler := handler.NewAPIKeyHandler(repo, cacheClient, logger)
	nodeHandler := handler.NewNodeHandler(repo, cacheClient, repo, nodeClient, logger)

	r := setupRouter(healthHandler, authHandler, apiKeyHandler, nodeHandler, sessions, cacheClient, cfg, logger)

	srv := server.New(
		r,
		cfg.AppPort,
		cfg.ReadTimeout,
		cfg.WriteTimeout,
		cfg.ShutdownTimeout,
		logger,
	)

	logger.Info("starting server",
		"port", cfg.AppPort,
		"node_url", cfg.NodeURL,
		"env", cfg.AppEnv,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initLogger initializes the slog logger based on configuration.
func initLogger(cfg *config.Config) *slog.Logger {
	var h slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	}

	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		h = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(h)
	slog.SetDefault(logger)

	return logger
}

// parseLogLevel converts string log level to slog.Level.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(
	healthHandler *handler.HealthHandler,
	authHandler *handler.AuthHandler,
	apiKeyHandler *handler.APIKeyHandler,
	nodeHandler *handler.NodeHandler,
	sessions *auth.Sessions,
	cacheClient *cache.Cache,
	cfg *config.Config,
	logger *slog.Logger,
) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))
	r.Use(chimiddleware.RequestSize(cfg.MaxRequestBodySize))

	// Health endpoints (no auth required)
	r.Get("/healthz", healthHandler.Healthz)
	r.Get("/readyz", healthHandler.Readyz)

	// Public endpoints
	r.Post("/register", authHandler.Register)
	r.Post("/login", authHandler.Login)
	r.Post("/echo", handler.Echo)

	sessionCfg := middleware.SessionConfig{
		Logger:   logger,
		Sessions: sessions,
		Revoked:  cacheClient,
	}

	// Session-scoped endpoints
	r.Group(func(r chi.Router) {
		r.Use(middleware.Session(sessionCfg))

		r.Post("/logout", authHandler.Logout)
		r.Get("/getapikey", apiKeyHandler.GetAPIKey)
		r.Post("/enablekey", apiKeyHandler.EnableKey)
		r.Post("/disablekey", apiKeyHandler.DisableKey)
		r.Post("/deletekey", apiKeyHandler.DeleteKey)
		r.Post("/interactnode", nodeHandler.InteractNode)
	})

	r.NotFound(handler.NotFound)
	r.MethodNotAllowed(handler.MethodNotAllowed)

	return r
}

var passwordPattern = regexp.MustCompile(`(?i)password=[^\s]+`)

func redactURL(raw string) string {
	if raw == "" {
		return ""
	}

	parsed, err := url.Parse(raw)
	if err != nil {
		return "[redacted]"
	}

	if parsed.User != nil {
		username := parsed.User.Username()
		if username == "" {
			parsed.User = url.User("redacted")
		} else {
			parsed.User = url.User(username)
		}
	}

	return parsed.String()
}

func sanitizeError(err error, secrets ...string) string {
	if err == nil {
		return ""
	}

	msg := err.Error()
	for _, secret := range secrets {
		if secret == "" {
			continue
		}
		redacted := redactURL(secret)
		if redacted == "" {
			redacted = "[redacted]"
		}
		msg = strings.ReplaceAll(msg, secret, redacted)
	}

	return passwordPattern.ReplaceAllString(msg, "password=redacted")
}
