package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"watchparty/internal/core/ports"
	"watchparty/internal/core/services"
	handlers "watchparty/internal/handlers/http"
	"watchparty/internal/infrastructure/distributed"
	"watchparty/internal/infrastructure/middleware"
	"watchparty/internal/infrastructure/monitoring"
	"watchparty/internal/infrastructure/repositories"
	signalserver "watchparty/internal/infrastructure/signal"
	"watchparty/pkg/config"
	"watchparty/pkg/logger"
	"watchparty/pkg/tracing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
)

func main() {
	// Try multiple config paths
	configPaths := []string{
		"configs/config.yaml",
		"./configs/config.yaml",
		"/etc/watchparty/config.yaml",
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

	zapLogger := logger.New(cfg.Logging.Level)
	defer zapLogger.Sync()
	log := zapLogger.Sugar()

	tracerProvider, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: "watchparty-relay",
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer tracerProvider.Shutdown(context.Background())

	repoFactory, err := repositories.NewRepositoryFactory(cfg, log)
	if err != nil {
		log.Fatalw("failed to create repository factory", "error", err)
	}
	defer repoFactory.Close()

	registry := repoFactory.CreateRoomRegistry()
	presence := repoFactory.CreatePresenceRepository()

	var collector ports.MetricsCollector
	if cfg.Monitoring.PrometheusEnabled {
		collector = monitoring.NewPrometheusCollector(prometheus.DefaultRegisterer)
	}

	var serviceOpts []services.RoomServiceOption
	if client := repoFactory.RedisClient(); client != nil {
		eventBus := distributed.NewEventBus(client, uuid.NewString(), log)
		defer eventBus.Close()
		serviceOpts = append(serviceOpts, services.WithEventPublisher(eventBus))
	}

	roomService := services.NewRoomService(registry, presence, collector, log, serviceOpts...)

	wsOpts := []signalserver.Option{
		signalserver.WithTimeouts(
			cfg.Relay.PingInterval.Duration(),
			cfg.Relay.PongTimeout.Duration(),
			cfg.Relay.ReadTimeout.Duration(),
			cfg.Relay.WriteTimeout.Duration(),
		),
	}
	if cfg.RateLimiting.Enabled {
		wsOpts = append(wsOpts,
			signalserver.WithMessageRateLimit(
				cfg.RateLimiting.WebSocket.MessagesPerSecond,
				cfg.RateLimiting.WebSocket.Burst,
			),
			signalserver.WithMaxMessageSize(cfg.RateLimiting.WebSocket.MaxMessageSizeBytes),
		)
	}
	wsServer := signalserver.NewWebSocketServer(roomService, collector, log, wsOpts...)

	healthChecker := monitoring.NewHealthChecker()
	healthChecker.AddCheck("redis", repoFactory.HealthCheck, 2*time.Second)

	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewHTTPRateLimitMiddleware(cfg))

	relayHandler := handlers.NewRelayHandler(
		roomService,
		presence,
		healthChecker,
		wsServer.HandleWebSocket,
		cfg.Monitoring.PrometheusEnabled,
	)
	relayHandler.SetupRoutes(router)

	srv := &http.Server{
		Addr:              cfg.Relay.Address,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Infow("starting relay", "address", cfg.Relay.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatalw("relay server failed", "error", err)
	case sig := <-quit:
		log.Infow("shutting down", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Relay.ShutdownTimeout.Duration())
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("forced shutdown", "error", err)
	}
}
