package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/taskdesk/internal/events"
	"github.com/aryan0dhankhar/taskdesk/internal/featureflags"
	"github.com/aryan0dhankhar/taskdesk/internal/handler"
	"github.com/aryan0dhankhar/taskdesk/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/taskdesk/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/metrics"
	"github.com/aryan0dhankhar/taskdesk/internal/observability/tracing"
	"github.com/aryan0dhankhar/taskdesk/internal/reliability/retry"
	"github.com/aryan0dhankhar/taskdesk/internal/repository"
	"github.com/aryan0dhankhar/taskdesk/internal/security"
	"github.com/aryan0dhankhar/taskdesk/internal/security/audit"
	"github.com/aryan0dhankhar/taskdesk/internal/security/auth"
	"github.com/aryan0dhankhar/taskdesk/internal/security/middleware"
	"github.com/aryan0dhankhar/taskdesk/internal/security/ratelimit"
	"github.com/aryan0dhankhar/taskdesk/internal/service"
	"github.com/aryan0dhankhar/taskdesk/internal/worker"
	"github.com/aryan0dhankhar/taskdesk/pkg/config"
	"github.com/aryan0dhankhar/taskdesk/pkg/database"
)

const sessionCookie = "taskdesk_session"

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting taskdesk server", slog.String("environment", cfg.Environment))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "taskdesk", cfg.Environment)
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Connect PostgreSQL and Redis, waiting for them to come up
	pool, err := retry.Do[*database.ConnectionPool](ctx, retry.DefaultConfig(), log, "connect postgres", func(ctx context.Context) (*database.ConnectionPool, error) {
		return database.NewConnectionPool(ctx, &database.Config{
			Host:         cfg.Database.Host,
			Port:         cfg.Database.Port,
			User:         cfg.Database.User,
			Password:     cfg.Database.Password,
			Database:     cfg.Database.Name,
			SSLMode:      cfg.Database.SSLMode,
			MaxOpenConns: cfg.Database.MaxOpen,
			MaxIdleConns: cfg.Database.MaxIdle,
		}, log)
	})
	if err != nil {
		log.Error("failed to connect to PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	if err := pool.Migrate(ctx); err != nil {
		log.Error("failed to apply schema", slog.String("error", err.Error()))
		os.Exit(1)
	}

	redisClient, err := retry.Do[*redis.Client](ctx, retry.DefaultConfig(), log, "connect redis", func(ctx context.Context) (*redis.Client, error) {
		return redis.NewClient(ctx, cfg.RedisURL, log)
	})
	if err != nil {
		log.Error("failed to connect to Redis", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer redisClient.Close()

	// 4. Initialize repositories
	userRepo := repository.NewPostgresUserRepository(pool.GetDB(), log)
	taskRepo := repository.NewPostgresTaskRepository(pool.GetDB(), log)
	sessionRepo := repository.NewSessionRepository(redisClient, cfg.SessionTTL(), log)

	// 5. Initialize services
	var publisher events.Publisher = events.Nop{}
	var bus *events.Bus
	if featureflags.TaskEvents() {
		bus = events.NewBus(redisClient, log)
		publisher = bus
	}

	authz := security.NewAuthorizationService(log)
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	assignees := service.NewAssigneeCache()

	authService := service.NewAuthService(userRepo, tokenManager, sessionRepo, cfg.TokenTTL(), log)
	taskService := service.NewTaskService(taskRepo, userRepo, authz, publisher, assignees, log)
	userService := service.NewUserService(userRepo, authz, assignees, log)

	// 6. Initialize security components
	schemas, err := middleware.LoadSchemas()
	if err != nil {
		log.Error("failed to load request schemas", slog.String("error", err.Error()))
		os.Exit(1)
	}
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimit, time.Minute)
	auditLogger := audit.NewLogger(log)
	loginLimit := middleware.LoginRateLimit(rateLimiter, cfg.LoginRateLimit, time.Minute, log)

	// 7. Initialize handlers
	healthHandler := handler.NewHealthHandler(map[string]handler.Pinger{
		"database": handler.PingFunc(pool.Health),
		"redis":    redisClient,
	}, log)
	authHandler := handler.NewAuthHandler(authService, log)
	taskHandler := handler.NewTaskHandler(taskService, schemas, log)
	userHandler := handler.NewUserHandler(userService, schemas, log)

	// 8. Setup HTTP routes
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(log))
	r.Use(chimw.Recoverer)
	r.Use(cors(cfg.CORSAllowedOrigins))
	r.Use(metrics.HTTPMetricsMiddleware)

	r.Get("/healthz", healthHandler.Health)
	r.Get("/readyz", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.SanitizeInputs(log))
		r.Use(middleware.ValidateJSONContentType(log))

		r.With(loginLimit, middleware.ValidateBody(schemas, middleware.SchemaLogin, log)).Post("/auth/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(middleware.JWTMiddleware(authService, log))
			r.Use(middleware.RateLimitMiddleware(rateLimiter, log))
			r.Use(middleware.AuditMiddleware(auditLogger))

			r.Post("/auth/logout", authHandler.Logout)
			r.Get("/auth/me", authHandler.Me)
			r.Mount("/tasks", taskHandler.Routes())
			r.Mount("/users", userHandler.Routes())
		})
	})

	if bus != nil {
		r.Handle("/ws/tasks", handler.NewEventsHandler(bus, authService, authz, cfg.CORSAllowedOrigins, log))
	}

	if featureflags.Console() {
		consoleHandler, err := handler.NewConsoleHandler(authService, taskService, userService, handler.ConsoleConfig{
			CookieName:   sessionCookie,
			SecureCookie: cfg.IsProduction(),
			SessionTTL:   cfg.SessionTTL(),
		}, log)
		if err != nil {
			log.Error("failed to load console templates", slog.String("error", err.Error()))
			os.Exit(1)
		}
		session := func(next http.Handler) http.Handler {
			return middleware.SessionMiddleware(authService, sessionCookie, "/console/login", log)(
				middleware.AuditMiddleware(auditLogger)(next),
			)
		}
		r.Mount("/console", consoleHandler.Routes(session, loginLimit))
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			http.Redirect(w, r, "/console/", http.StatusFound)
		})
	}

	// 9. Start task statistics worker in background
	statsWorker := worker.NewStatsWorker(taskRepo, log, cfg.StatsInterval())
	go statsWorker.Start(ctx)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      otelhttp.NewHandler(r, "taskdesk"),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.Int("rate_limit", cfg.RateLimit),
		slog.Int("login_rate_limit", cfg.LoginRateLimit),
		slog.Bool("task_events", bus != nil),
		slog.Bool("console", featureflags.Console()),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stops the stats worker and event subscriptions
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

// requestLogger logs each request with chi's request id
func requestLogger(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()

			next.ServeHTTP(ww, r)

			log.Info("request completed",
				slog.String("request_id", chimw.GetReqID(r.Context())),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", ww.Status()),
				slog.Duration("duration_ms", time.Since(start)),
			)
		})
	}
}

// cors honors configured origins
func cors(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if originAllowed(allowed, origin) {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Vary", "Origin")
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization")
			}

			if r.Method == http.MethodOptions && strings.HasPrefix(r.URL.Path, "/api/") {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func originAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}
