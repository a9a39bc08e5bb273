package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadership-portal/internal/access"
	"leadership-portal/internal/config"
	"leadership-portal/internal/domain"
	"leadership-portal/internal/handler"
	"leadership-portal/internal/messaging"
	"leadership-portal/internal/middleware"
	"leadership-portal/internal/observability"
	"leadership-portal/internal/repository/memory"
	"leadership-portal/internal/repository/postgres"
	"leadership-portal/internal/repository/redis"
	"leadership-portal/internal/security"
	"leadership-portal/internal/service"
	"leadership-portal/internal/websocket"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

const redisPoolSize = 20

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	observability.InitLogger(cfg.LogLevel, cfg.LogFormat)

	slog.Info("starting leadership portal",
		slog.String("environment", cfg.Environment),
		slog.String("session_store", cfg.SessionStore))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connCtx, connCancel := context.WithTimeout(ctx, 10*time.Second)
	defer connCancel()

	db, err := config.NewPostgresConnection(connCtx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("connected to postgresql")
	go recordDBStats(ctx, db)

	readiness := map[string]handler.Checker{
		"database": handler.DatabaseCheck(db),
	}

	sessions, redisClient, err := newSessionStore(cfg, db)
	if err != nil {
		slog.Error("failed to initialize session store", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if closer, ok := sessions.(interface{ Close() }); ok {
		defer closer.Close()
	}
	if redisClient != nil {
		defer redisClient.Close()
		readiness["redis"] = handler.RedisCheck(redisClient)
	}

	userRepo := postgres.NewUserRepository(db)
	assignmentRepo := postgres.NewAssignmentRepository(db)
	auditRepo := postgres.NewAuditRepository(db)

	// Audit events go through RabbitMQ when configured so request paths
	// never wait on the audit table; otherwise they are written directly.
	var auditSink access.AuditSink = auditRepo
	if cfg.RabbitMQURL != "" {
		rmqCtx, rmqCancel := context.WithTimeout(ctx, 60*time.Second)
		rmq, err := messaging.NewRabbitMQWithRetry(rmqCtx, cfg.RabbitMQURL)
		rmqCancel()
		if err != nil {
			slog.Error("failed to connect to rabbitmq", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer rmq.Close()
		readiness["rabbitmq"] = handler.RabbitMQCheck(rmq)

		if cfg.AuditConsumer {
			if err := messaging.NewAuditConsumer(rmq, auditRepo).Start(ctx); err != nil {
				slog.Error("failed to start audit consumer", slog.String("error", err.Error()))
				os.Exit(1)
			}
		}
		auditSink = messaging.NewAuditPublisher(rmq)
		slog.Info("audit events routed through rabbitmq")
	}

	validator := access.NewSessionValidator(sessions, userRepo,
		access.WithIdleTimeout(cfg.SessionIdleTimeout),
		access.WithLookupTimeout(cfg.SessionLookupTimeout),
	)
	csrf := access.NewCSRFValidator(sessions, security.NewTokenManager(), cfg.CSRFPolicy, cfg.CSRFTokenTTL)
	gate := access.NewGate(validator, access.DefaultResolver(), csrf,
		access.WithOwnershipSource(domain.ResourceAssignment, assignmentRepo),
		access.WithAuditSink(auditSink),
		access.WithLogger(slog.Default()),
	)
	slog.Info("access gate configured",
		slog.Duration("idle_timeout", validator.IdleTimeout()),
		slog.String("csrf_policy", string(csrf.Policy())))

	hub := websocket.NewHub()
	hubCtx, hubCancel := context.WithCancel(context.Background())
	defer hubCancel()
	go func() {
		if err := hub.Run(hubCtx); err != nil && !errors.Is(err, context.Canceled) {
			slog.Error("hub error", slog.String("error", err.Error()))
		}
	}()
	slog.Info("notification hub started")

	authService := service.NewAuthService(userRepo, sessions, gate, auditSink, validator.IdleTimeout())
	assignmentService := service.NewAssignmentService(assignmentRepo, userRepo, hub, auditSink)

	if cfg.AdminUsername != "" {
		ensureAdminUser(ctx, authService, cfg)
	}

	go startSessionCleanup(ctx, sessions)
	slog.Info("session cleanup task started")

	origins := middleware.ParseOrigins(cfg.AllowedOrigins)
	loginLimiter := middleware.NewRateLimiter(ctx, 5, 10)
	apiLimiter := middleware.NewRateLimiter(ctx, 20, 50)

	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger())
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(origins))
	r.Use(middleware.Metrics())
	r.Use(middleware.OpenAPIValidator(middleware.DefaultOpenAPIValidatorConfig(cfg.Environment, cfg.OpenAPISpecPath)))

	r.Get("/health", handler.Health)
	r.Get("/health/ready", handler.Ready(readiness))
	r.Handle("/metrics", promhttp.Handler())

	handler.Routes{
		Gate:          gate,
		Auth:          handler.NewAuthHandler(authService, gate, hub, cfg.SecureCookies),
		Users:         handler.NewUsersHandler(authService),
		Assignments:   handler.NewAssignmentHandler(assignmentService),
		Notifications: handler.NewWebSocketHandler(hub, origins),
		LoginLimiter:  loginLimiter.Middleware(),
		APILimiter:    apiLimiter.Middleware(),
	}.Mount(r)

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Not Found", http.StatusNotFound)
	})

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("portal server listening", slog.String("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", slog.String("error", err.Error()))
	}

	cancel()
	hubCancel()

	time.Sleep(100 * time.Millisecond)

	slog.Info("server stopped gracefully")
}

// newSessionStore picks the session backend. The Redis client is returned
// so the caller can close it and probe it for readiness.
func newSessionStore(cfg *config.Config, db *sql.DB) (domain.SessionStore, *goredis.Client, error) {
	switch cfg.SessionStore {
	case config.StoreRedis:
		client, err := redis.NewClient(cfg.RedisURL, redisPoolSize)
		if err != nil {
			return nil, nil, err
		}
		return redis.NewSessionStore(client), client, nil
	case config.StoreMemory:
		slog.Warn("using in-memory session store; sessions are lost on restart and not shared between instances")
		return memory.NewSessionStore(), nil, nil
	default:
		store, err := postgres.NewSessionRepository(db)
		if err != nil {
			return nil, nil, err
		}
		return store, nil, nil
	}
}

// ensureAdminUser creates the bootstrap admin if it doesn't exist (idempotent)
func ensureAdminUser(ctx context.Context, authService *service.AuthService, cfg *config.Config) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	admin, err := authService.CreateUser(ctx, cfg.AdminUsername, cfg.AdminEmail, cfg.AdminPassword, domain.RoleAdmin)
	switch {
	case err == nil:
		slog.Info("created bootstrap admin",
			slog.String("username", admin.Username),
			slog.String("id", admin.ID))
	case errors.Is(err, domain.ErrUsernameExists), errors.Is(err, domain.ErrEmailExists):
		slog.Info("bootstrap admin already exists", slog.String("username", cfg.AdminUsername))
	default:
		slog.Error("failed to create bootstrap admin", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

// startSessionCleanup runs a background task to delete expired sessions
func startSessionCleanup(ctx context.Context, store domain.SessionStore) {
	ticker := time.NewTicker(1 * time.Hour)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("stopping session cleanup task")
			return
		case <-ticker.C:
			cleanupCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			count, err := store.DeleteExpired(cleanupCtx)
			if err != nil {
				slog.Error("session cleanup failed", slog.String("error", err.Error()))
			} else {
				slog.Info("session cleanup completed",
					slog.Int64("sessions_deleted", count))
			}
			cancel()
		}
	}
}

// recordDBStats publishes connection pool gauges every 15 seconds
func recordDBStats(ctx context.Context, db *sql.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			observability.RecordDBStats(db.Stats())
		}
	}
}
