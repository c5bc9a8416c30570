// Package main is the entrypoint for the dandi API server.
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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dandi/dandi/internal/cache"
	"github.com/dandi/dandi/internal/config"
	"github.com/dandi/dandi/internal/handler"
	"github.com/dandi/dandi/internal/identity"
	"github.com/dandi/dandi/internal/metrics"
	"github.com/dandi/dandi/internal/middleware"
	"github.com/dandi/dandi/internal/server"
	"github.com/dandi/dandi/internal/service"
	"github.com/dandi/dandi/internal/store"
	"github.com/dandi/dandi/internal/store/memory"
	"github.com/dandi/dandi/internal/store/postgres"
)

// seeder is implemented by stores that can load sample data.
type seeder interface {
	Seed(ctx context.Context) error
}

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	logger := initLogger(cfg)

	st, err := initStore(ctx, cfg, logger)
	if err != nil {
		os.Exit(1)
	}
	defer st.Close()

	if cfg.SeedSampleKeys {
		if sd, ok := st.(seeder); ok {
			if err := sd.Seed(ctx); err != nil {
				logger.Error("failed to seed sample keys", "error", err)
				os.Exit(1)
			}
			logger.Info("sample keys seeded")
		}
	}

	// Redis is optional; without it every request resolves identity
	// against the store.
	var cacheClient *cache.Cache
	if cfg.RedisURL != "" {
		cacheClient, err = cache.New(ctx, cfg.RedisURL)
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
	} else {
		logger.Info("no Redis configured, identity caching disabled")
	}

	verifier, err := identity.NewTokenVerifier(cfg.SessionSecret)
	if err != nil {
		logger.Error("failed to configure session verifier", "error", err)
		os.Exit(1)
	}

	metricsRecorder := metrics.NewPrometheus(nil)

	var identityCache identity.Cache
	if cacheClient != nil {
		identityCache = cacheClient
	}
	resolver := identity.NewResolver(st, identityCache, verifier, logger, metricsRecorder)

	keyService := service.NewKeyService(st, metricsRecorder)

	h := handler.New()

	// A nil *cache.Cache must not become a non-nil HealthChecker.
	var cacheHealth handler.HealthChecker
	if cacheClient != nil {
		cacheHealth = cacheClient
	}
	healthHandler := handler.NewHealthHandler(st, cacheHealth)
	keyHandler := handler.NewKeyHandler(logger, keyService)
	validateHandler := handler.NewValidateHandler(logger, keyService)
	userHandler := handler.NewUserHandler(logger, st)

	r := setupRouter(routerDeps{
		base:     h,
		health:   healthHandler,
		keys:     keyHandler,
		validate: validateHandler,
		users:    userHandler,
		resolver: resolver,
		cfg:      cfg,
		logger:   logger,
	})

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
		"env", cfg.AppEnv,
		"store_backend", cfg.StoreBackend,
	)

	if err := srv.Run(); err != nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}
}

// initStore builds the configured store backend. The schema is created
// explicitly at startup rather than lazily on first query.
func initStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	if cfg.StoreBackend == "memory" {
		logger.Info("using in-memory store")
		return memory.New(), nil
	}

	st, err := postgres.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error(
			"failed to connect to database",
			slog.String("error", sanitizeError(err, cfg.DatabaseURL)),
			slog.String("database_url", redactURL(cfg.DatabaseURL)),
		)
		return nil, err
	}

	if err := st.InitSchema(ctx); err != nil {
		st.Close()
		logger.Error("failed to initialize schema", "error", err)
		return nil, err
	}

	logger.Info("connected to database")
	return st, nil
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

type routerDeps struct {
	base     *handler.Handler
	health   *handler.HealthHandler
	keys     *handler.KeyHandler
	validate *handler.ValidateHandler
	users    *handler.UserHandler
	resolver *identity.Resolver
	cfg      *config.Config
	logger   *slog.Logger
}

// setupRouter configures the chi router with all routes and middleware.
func setupRouter(deps routerDeps) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(deps.logger))
	r.Use(middleware.Recoverer(deps.logger))
	r.Use(middleware.Security(middleware.SecurityConfig{
		IsDevelopment: deps.cfg.IsDevelopment(),
	}))
	r.Use(middleware.MaxBodySize(deps.cfg.MaxRequestBodySize))

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = deps.cfg.GetCORSAllowedOrigins()
	r.Use(middleware.CORS(corsCfg))

	// Health and metrics endpoints (no auth required)
	r.Get("/healthz", deps.health.Healthz)
	r.Get("/readyz", deps.health.Readyz)
	r.Method("GET", "/metrics", promhttp.Handler())

	// Root info endpoint
	r.Get("/", deps.base.Hello)

	sessionCfg := middleware.SessionConfig{
		Logger:   deps.logger,
		Resolver: deps.resolver,
	}

	r.Route("/api/v1", func(r chi.Router) {
		// Validation authenticates with the presented secret itself,
		// not a session.
		r.Post("/validate", deps.validate.Validate)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Session(sessionCfg))

			r.Route("/keys", func(r chi.Router) {
				r.Get("/", deps.keys.List)
				r.Post("/", deps.keys.Create)
				r.Get("/{id}", deps.keys.Get)
				r.Patch("/{id}", deps.keys.Update)
				r.Delete("/{id}", deps.keys.Delete)
			})

			r.Get("/users", deps.users.List)
		})
	})

	// 404 and 405 handlers
	r.NotFound(deps.base.NotFound)
	r.MethodNotAllowed(deps.base.MethodNotAllowed)

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
