package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"github.com/duynhne/event-gate/config"
	database "github.com/duynhne/event-gate/internal/core"
	"github.com/duynhne/event-gate/internal/core/domain"
	"github.com/duynhne/event-gate/internal/core/gateway"
	"github.com/duynhne/event-gate/internal/core/repository"
	logicv1 "github.com/duynhne/event-gate/internal/logic/v1"
	v1 "github.com/duynhne/event-gate/internal/web/v1"
	"github.com/duynhne/event-gate/middleware"
	"github.com/duynhne/event-gate/pkg/logger/zerolog"
)

func main() {
	// Load configuration
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		panic("Configuration validation failed: " + err.Error())
	}

	// Initialize Zerolog with LOG_LEVEL from config
	zerolog.Setup(cfg.Logging.Level)

	log.Info().
		Str("service", cfg.Service.Name).
		Str("version", cfg.Service.Version).
		Str("env", cfg.Service.Env).
		Str("port", cfg.Service.Port).
		Msg("Service starting")

	// Initialize OpenTelemetry tracing
	var tp interface{ Shutdown(context.Context) error }
	if cfg.Tracing.Enabled {
		provider, err := middleware.InitTracing(cfg)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to initialize tracing")
		} else {
			tp = provider
			log.Info().
				Str("endpoint", cfg.Tracing.Endpoint).
				Float64("sample_rate", cfg.Tracing.SampleRate).
				Msg("Tracing initialized")
		}
	} else {
		log.Info().Msg("Tracing disabled (TRACING_ENABLED=false)")
	}

	// Initialize Pyroscope profiling
	profiling := false
	if cfg.Profiling.Enabled {
		if err := middleware.InitProfiling(cfg); err != nil {
			log.Warn().Err(err).Msg("Failed to initialize profiling")
		} else {
			profiling = true
			log.Info().
				Str("endpoint", cfg.Profiling.Endpoint).
				Msg("Profiling initialized")
		}
	} else {
		log.Info().Msg("Profiling disabled (PROFILING_ENABLED=false)")
	}

	// Initialize database connection pool (pgx)
	pool, err := database.Connect(context.Background(), cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer pool.Close()
	log.Info().Msg("Database connection pool established")

	// Session persistence: Redis when configured, else process memory
	var persistence domain.SessionPersistence
	var redisClient *redis.Client
	if cfg.Redis.URL != "" {
		redisClient, err = repository.ConnectRedis(context.Background(), cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to Redis")
		}
		persistence = repository.NewRedisSessionPersistence(redisClient, cfg.Redis.Prefix)
		log.Info().Str("prefix", cfg.Redis.Prefix).Msg("Redis session persistence enabled")
	} else {
		persistence = repository.NewMemorySessionPersistence()
		log.Warn().Msg("REDIS_URL not set, sessions are kept in process memory")
	}

	// Route table
	routes := logicv1.DefaultRouteTable()
	if cfg.Routes.File != "" {
		routes, err = logicv1.LoadRouteTable(cfg.Routes.File)
		if err != nil {
			log.Fatal().Err(err).Str("file", cfg.Routes.File).Msg("Failed to load route table")
		}
		log.Info().Str("file", cfg.Routes.File).Int("routes", len(routes.Routes)).Msg("Route table loaded")
	}

	// Provider clients
	policy := gateway.Policy{
		Timeout:         cfg.GetProviderTimeoutDuration(),
		Attempts:        cfg.Providers.RetryTransportAttempts,
		RetryDelay:      gateway.DefaultPolicy().RetryDelay,
		BreakerFailures: cfg.Providers.BreakerFailures,
		BreakerOpenFor:  cfg.GetBreakerOpenForDuration(),
	}
	httpClient := &http.Client{Timeout: policy.Timeout}
	identity := gateway.NewIdentityToolkit(cfg.Identity.BaseURL, cfg.Identity.APIKey, httpClient, policy,
		gateway.WithTokenBaseURL(cfg.Identity.TokenBaseURL))
	dataAuth := gateway.NewDataAuth(cfg.Data.BaseURL, cfg.Data.AnonKey, httpClient, policy,
		gateway.WithJWTSecret(cfg.Data.JWTSecret))
	profiles := repository.NewProfileRepository(pool, cfg.Database.RLSRole)

	// Navigation events
	nav := logicv1.NewNavigationBus(256)
	nav.Subscribe(func(ev logicv1.NavigationEvent) {
		log.Debug().
			Str("client_id", ev.ClientID).
			Str("view", ev.View).
			Str("reason", ev.Reason).
			Msg("Navigation")
	})

	signupRoles := make([]domain.Role, 0, len(cfg.Routes.SignupRoles))
	for _, r := range cfg.Routes.SignupRoles {
		signupRoles = append(signupRoles, domain.Role(r))
	}

	bridge := logicv1.NewIdentityBridge(identity, dataAuth, profiles, nav,
		logicv1.WithSignupRoles(signupRoles...),
		logicv1.WithRouteTable(routes),
		logicv1.WithPendingSignups(persistence),
	)
	sessionTTL := cfg.GetSessionTTLDuration()
	sessions := logicv1.NewSessionManager(persistence, logicv1.WithWindow(sessionTTL))
	handler := v1.NewHandler(bridge, logicv1.NewViewResolver(routes), sessions)

	r := gin.Default()

	var isShuttingDown atomic.Bool

	// Tracing middleware
	r.Use(middleware.TracingMiddleware())

	// Logging middleware
	r.Use(middleware.LoggingMiddleware())

	// Prometheus middleware
	r.Use(middleware.PrometheusMiddleware())

	// Health check
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Readiness check
	// Returns 503 once shutdown has started, to drain traffic before HTTP shutdown.
	r.GET("/ready", func(c *gin.Context) {
		if isShuttingDown.Load() {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "shutting_down"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Metrics endpoint
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1
	apiV1 := r.Group("/api/v1")
	apiV1.Use(middleware.ClientMiddleware(middleware.ClientCookie{
		Name:   cfg.Session.CookieName,
		MaxAge: int(sessionTTL / time.Second),
		Secure: cfg.Session.Secure,
	}))
	handler.RegisterRoutes(apiV1)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Service.Port,
		Handler: r,
	}

	// Start server in a goroutine
	go func() {
		log.Info().Str("port", cfg.Service.Port).Msg("Starting event gate")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	// Wait for shutdown signal
	<-ctx.Done()
	log.Info().Msg("Shutdown signal received")

	// Fail readiness first and wait for propagation.
	isShuttingDown.Store(true)
	drainDelay := cfg.GetReadinessDrainDelayDuration()
	if drainDelay > 0 {
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay started")
		time.Sleep(drainDelay)
		log.Info().Dur("delay", drainDelay).Msg("Readiness drain delay completed")
	}

	// Shutdown context with configurable timeout
	shutdownTimeout := cfg.GetShutdownTimeoutDuration()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	log.Info().Dur("timeout", shutdownTimeout).Msg("Shutting down server...")

	// 1. Shutdown HTTP server
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	} else {
		log.Info().Msg("HTTP server shutdown complete")
	}

	// 2. Stop navigation delivery
	nav.Close()

	// 3. Close Redis and database connections
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			log.Error().Err(err).Msg("Redis close error")
		}
	}
	pool.Close()
	log.Info().Msg("Database pool closed")

	// 4. Shutdown tracer
	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("Tracer shutdown error")
		} else {
			log.Info().Msg("Tracer shutdown complete")
		}
	}

	// 5. Flush profiler
	if profiling {
		if err := middleware.StopProfiling(); err != nil {
			log.Error().Err(err).Msg("Profiler stop error")
		} else {
			log.Info().Msg("Profiler stopped")
		}
	}

	log.Info().Msg("Graceful shutdown complete")
}
