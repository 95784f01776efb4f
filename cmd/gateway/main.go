package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"relaygate/internal/core/domain"
	"relaygate/internal/core/ports"
	"relaygate/internal/core/services"
	"relaygate/internal/infrastructure/distributed"
	"relaygate/internal/infrastructure/gateway"
	"relaygate/internal/infrastructure/media"
	"relaygate/internal/infrastructure/middleware"
	"relaygate/internal/infrastructure/moderation"
	"relaygate/internal/infrastructure/monitoring"
	"relaygate/internal/infrastructure/repositories/memory"
	redisrepo "relaygate/internal/infrastructure/repositories/redis"
	"relaygate/pkg/circuitbreaker"
	"relaygate/pkg/config"
	"relaygate/pkg/logger"
	"relaygate/pkg/tracing"
	"relaygate/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	startTime := time.Now()

	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/relaygate/config.yaml",
		"config.yaml",
	}

	var cfg *config.Config
	var err error

	for _, path := range configPaths {
		cfg, err = config.Load(path)
		if err == nil {
			break
		}
	}

	if err != nil {
		cfg = config.DefaultConfig()
	}

	// Initialize logger
	zapLogger := logger.New(cfg.Logging.Level)
	if cfg.Logging.Format == "console" {
		zapLogger = logger.NewDevelopment()
	}
	defer zapLogger.Sync()

	log := zapLogger.Sugar()

	// Initialize tracing
	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "relaygate",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: "production",
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}

	// Root context cancelled on shutdown; background workers hang off it.
	rootCtx, rootCancel := context.WithCancel(context.Background())
	defer rootCancel()

	// Optional Redis client (presence + cross-instance fanout)
	var redisClient *goredis.Client
	if cfg.Redis.Enabled {
		redisClient, err = redisrepo.NewRedisClient(
			cfg.Redis.Address,
			cfg.Redis.Password,
			cfg.Redis.DB,
			cfg.Redis.PoolSize,
			log,
		)
		if err != nil {
			log.Fatalw("failed to connect to redis", "error", err)
		}
		defer redisrepo.CloseRedisClient(redisClient)
	}

	// Presence backend per configuration
	var localPresence ports.PresenceBackend
	switch cfg.Presence.Backend {
	case "redis":
		localPresence = redisrepo.NewRedisPresenceBackend(redisClient, cfg.Presence.TTL)
		log.Info("using redis presence backend")
	default:
		localPresence = memory.NewMemoryPresenceBackend()
		log.Info("using in-memory presence backend")
	}

	// Cross-instance event bus; summary writes are relayed to siblings and
	// remote summaries land on the undecorated local backend.
	var bus *distributed.EventBus
	presence := localPresence
	if redisClient != nil {
		instanceID := utils.GenerateInstanceID()
		bus = distributed.NewEventBus(redisClient, instanceID, log)
		presence = distributed.NewPresenceRelay(localPresence, bus, log)
		log.Infow("cross-instance fanout enabled", "instance_id", instanceID)
	}

	// Channel and room catalog
	catalog, err := services.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatalw("failed to load catalog", "path", cfg.CatalogPath, "error", err)
	}

	// Connection registry with per-actor cap
	registry := services.NewConnectionRegistry(cfg.Gateway.MaxConnectionsPerActor, presence, log)

	// Per-actor publish limiter with background window sweep
	limiter := services.NewSlidingWindowLimiter(cfg.RateLimit.PublishLimit, cfg.RateLimit.PublishWindow)
	limiter.StartJanitor(rootCtx)

	// Message store
	store := memory.NewMemoryMessageStore()

	// Content moderation behind a circuit breaker; the pipeline fails closed
	// when the breaker is open.
	moderator := moderation.NewKeywordModerator(
		[]string{"credit card dump", "ssn list"},
		[]string{"wire transfer", "crypto giveaway"},
	)
	breaker := circuitbreaker.New(circuitbreaker.DefaultConfig())
	breaker.OnStateChange(func(from, to circuitbreaker.State) {
		log.Warnw("moderation breaker state changed", "from", from.String(), "to", to.String())
	})

	// Local hub plus optional cross-instance fanout
	hub := gateway.NewHub(log)
	broadcaster := gateway.NewFanoutBroadcaster(hub, bus, localPresence, log)
	go func() {
		if err := broadcaster.Run(rootCtx); err != nil && err != context.Canceled {
			log.Warnw("fanout relay stopped", "error", err)
		}
	}()

	// Core services
	pipeline := services.NewPublishPipeline(catalog, limiter, store, moderator, breaker, broadcaster, log)
	admin := services.NewModerationAdmin(catalog, store, broadcaster, log)

	tokenIssuer := media.NewJWTTokenIssuer(cfg.Auth.MediaSecret)
	broker := services.NewMediaSessionBroker(
		catalog,
		hub,
		tokenIssuer,
		cfg.Media.DefaultTTL,
		cfg.Media.MaxTTL,
		cfg.Media.MaxParticipants,
		log,
	)

	authenticator := services.NewJWTAuthenticator(cfg.Auth.JWTSecret)

	// Monitoring
	collector := monitoring.NewPrometheusCollector()
	registry.OnEvict(func(meta domain.ConnectionMeta) { collector.RecordEviction() })

	// Websocket server
	wsServer := gateway.NewServer(cfg, authenticator, catalog, registry, pipeline, admin, broker, hub, collector, log)

	// Configure Gin
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()

	// Websocket handshake with per-IP rate limiting
	router.GET("/ws", middleware.NewHandshakeRateLimitMiddleware(cfg), wsServer.HandleWebSocket)

	// Health check endpoint
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":      "healthy",
			"timestamp":   time.Now(),
			"uptime":      time.Since(startTime).String(),
			"connections": registry.ActiveConnectionCount(),
			"actors":      registry.ConnectedActorCount(),
		})
	})

	// Readiness endpoint
	router.GET("/readyz", func(c *gin.Context) {
		if redisClient != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()

			if err := redisClient.Ping(ctx).Err(); err != nil {
				c.JSON(503, gin.H{
					"status": "not_ready",
					"error":  err.Error(),
				})
				return
			}
		}
		c.JSON(200, gin.H{"status": "ready"})
	})

	// Prometheus metrics endpoint
	if cfg.Monitoring.PrometheusEnabled {
		router.GET("/metrics", gin.WrapH(promhttp.Handler()))
		log.Info("Prometheus metrics enabled")
	}

	// Create HTTP server with timeouts
	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infof("Starting relaygate server on %s", cfg.Server.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("Server failed", "error", err)
	case sig := <-sigChan:
		log.Infow("Received shutdown signal", "signal", sig)
	}

	log.Info("Shutting down relaygate server...")

	rootCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorw("Error during server shutdown", "error", err)
		if closeErr := srv.Close(); closeErr != nil {
			log.Errorw("Error force closing server", "error", closeErr)
		}
	} else {
		log.Info("Server shutdown gracefully")
	}

	if bus != nil {
		if err := bus.Close(); err != nil {
			log.Errorw("Error closing event bus", "error", err)
		}
	}

	if tp != nil {
		if err := tp.Shutdown(shutdownCtx); err != nil {
			log.Errorw("Error shutting down tracer", "error", err)
		}
	}

	log.Info("relaygate server stopped")
}
