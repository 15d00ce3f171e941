package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/crabzie/workspace-fleet/config/logger"
	postgres "github.com/crabzie/workspace-fleet/config/storage/postgresql"
	redis "github.com/crabzie/workspace-fleet/config/storage/redis"
	config "github.com/crabzie/workspace-fleet/config/utils"
	"github.com/crabzie/workspace-fleet/internal/adapter/fleet/poolapi"
	httphandler "github.com/crabzie/workspace-fleet/internal/adapter/handler/http"
	"github.com/crabzie/workspace-fleet/internal/adapter/monitoring/prometheus"
	"github.com/crabzie/workspace-fleet/internal/adapter/queue/rabbitmq"
	"github.com/crabzie/workspace-fleet/internal/adapter/storage/memory"
	pgstore "github.com/crabzie/workspace-fleet/internal/adapter/storage/postgres"
	redisstore "github.com/crabzie/workspace-fleet/internal/adapter/storage/redis"
	"github.com/crabzie/workspace-fleet/internal/adapter/workflow/stakwork"
	"github.com/crabzie/workspace-fleet/internal/core/domain"
	"github.com/crabzie/workspace-fleet/internal/core/port"
	"github.com/crabzie/workspace-fleet/internal/core/service"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// _shutdownPeriod is time to wait before gracefully shutting server
// _shutdownHardPeriod is time to wait beofre force closing server
// _readinessDrainDelay is time to sleep while context shutdown message propagate
const (
	_shutdownPeriod      = 10 * time.Second
	_shutdownHardPeriod  = 3 * time.Second
	_readinessDrainDelay = 2 * time.Second
)

// repositories groups the storage driver selected by config
type repositories struct {
	tasks      port.TaskRepository
	runs       port.RunRepository
	workspaces port.WorkspaceRepository
}

func main() {
	rootCtx, rootCtxCancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer rootCtxCancel()

	// Init config
	appConfig := config.New()
	baseLogger := logger.Build(appConfig.Logger, viper.GetViper())
	zap.L().Debug("Logger Builded successfully")

	zap.L().Info("Starting the application", zap.String("app", appConfig.App.Name), zap.String("env", appConfig.App.Env), zap.String("owner", appConfig.App.Owner))

	checks := map[string]httphandler.HealthCheck{}

	// Init storage
	var repos repositories
	switch appConfig.Storage.Driver {
	case config.DriverPostgres:
		dbLogger := baseLogger.Named("DB")
		dbService, err := postgres.New(rootCtx, appConfig.DB, dbLogger)
		if err != nil {
			zap.L().Error("Error initializing database connection", zap.Error(err))
			os.Exit(1)
		}
		defer dbService.Close()
		zap.L().Info("Successfully connected to the database", zap.String("db", appConfig.DB.Connection))

		if err := dbService.Migrate(); err != nil {
			zap.L().Error("Error migrating database", zap.Error(err))
			os.Exit(1)
		}
		zap.L().Info("Successfully migrated the database")

		repos = repositories{
			tasks:      pgstore.NewTaskRepository(dbService.Pool, dbLogger),
			runs:       pgstore.NewRunRepository(dbService.Pool, dbLogger),
			workspaces: pgstore.NewWorkspaceRepository(dbService.Pool, dbLogger),
		}
		checks["db"] = dbService.DBHealth
	default:
		zap.L().Warn("Using in-memory storage, data is lost on restart")
		repos = repositories{
			tasks:      memory.NewTaskRepository(),
			runs:       memory.NewRunRepository(),
			workspaces: memory.NewWorkspaceRepository(),
		}
	}

	// Init real-time fan-out, delivery replay protection & cache
	var (
		events     port.Subscriber
		live       port.Broadcaster
		mirror     port.Broadcaster
		deliveries port.DeliveryStore
		cache      port.Cache
	)
	if appConfig.Redis.Enabled {
		cacheService, err := redis.New(rootCtx, appConfig.Redis)
		if err != nil {
			zap.L().Error("Error initializing cache connection", zap.Error(err))
			os.Exit(1)
		}
		defer cacheService.Close()
		zap.L().Info("Successfully connected to the cache server", zap.String("address", appConfig.Redis.Addr))

		pubsub := redisstore.NewPubSub(cacheService.Client, baseLogger.Named("PubSub"))
		events = pubsub
		live = pubsub
		deliveries = redisstore.NewDeliveryStore(cacheService.Client)
		cache = redisstore.NewCache(cacheService.Storage)
		checks["redis"] = cacheService.Health
	} else {
		hub := memory.NewHub(baseLogger.Named("Hub"))
		events = hub
		live = hub
		deliveries = memory.NewDeliveryStore()
		cache = memory.NewCache()
	}

	if appConfig.MQ.Enabled {
		queue, err := rabbitmq.NewEventQueue(rootCtx, appConfig.MQ.URL, appConfig.MQ.Exchange, appConfig.MQ.MaxRetries, baseLogger.Named("MQ"))
		if err != nil {
			zap.L().Error("Error initializing rabbitmq connection", zap.Error(err))
			os.Exit(1)
		}
		defer queue.Close()
		mirror = queue
		zap.L().Info("Workflow events are mirrored to rabbitmq", zap.String("exchange", appConfig.MQ.Exchange))
	}

	// Init core services
	poolLogger := baseLogger.Named("Pool")
	pools := service.NewPoolManager(service.PoolConfig{
		DefaultPool:   appConfig.Pool.DefaultName,
		DefaultAPIKey: appConfig.Pool.DefaultAPIKey,
		BaselinePods:  appConfig.Pool.BaselinePods,
		MaxPods:       appConfig.Pool.MaxPods,
		MaxPools:      appConfig.Pool.MaxPools,
		Domain:        appConfig.Pool.Domain,
	}, poolLogger)

	if appConfig.Monitoring.PrometheusURL != "" {
		monitor := prometheus.NewMonitoringService(appConfig.Monitoring.PrometheusURL, appConfig.Monitoring.Timeout, baseLogger.Named("Prometheus"))
		usage := service.NewUsageSyncService(pools, monitor, poolLogger)
		go func() {
			if err := usage.Start(rootCtx, appConfig.Pool.UsageSyncInterval); err != nil {
				zap.L().Error("Usage sync not started", zap.Error(err))
			}
		}()
	}

	var fleetClient port.FleetClient
	if appConfig.PoolAPI.URL != "" {
		fleetClient = poolapi.NewClient(poolapi.Config{
			BaseURL:   appConfig.PoolAPI.URL,
			Timeout:   appConfig.PoolAPI.Timeout,
			RateLimit: appConfig.PoolAPI.RateLimit,
			Burst:     appConfig.PoolAPI.Burst,
		}, baseLogger.Named("PoolAPI"))
	}

	workflowLogger := baseLogger.Named("Workflow")
	engine := stakwork.NewClient(appConfig.Workflow.URL, appConfig.Workflow.APIKey, workflowLogger)

	tokens := make(map[string]domain.Principal, len(appConfig.Auth.Tokens))
	for _, t := range appConfig.Auth.Tokens {
		tokens[t.Token] = domain.Principal{UserID: t.UserID, Role: domain.Role(t.Role)}
	}

	// Init http server
	httpLogger := baseLogger.Named("HTTP")
	stream := httphandler.NewEventStream(events, httpLogger)
	router := httphandler.NewRouter(httphandler.Handlers{
		Auth: httphandler.NewTokenAuthenticator(tokens, httpLogger),
		Webhooks: httphandler.NewWebhookHandler(httphandler.WebhookConfig{
			Secret:       appConfig.Webhook.Secret,
			GraphAPIKey:  appConfig.Webhook.GraphAPIKey,
			MaxBodyBytes: appConfig.HTTP.MaxBodyBytes,
			DeliveryTTL:  appConfig.Webhook.DeliveryTTL,
		},
			service.NewWorkflowService(repos.tasks, service.FanOut{live, mirror}, workflowLogger),
			service.NewHighlightService(live, mirror, workflowLogger),
			deliveries, httpLogger),
		Pools:      httphandler.NewPoolAPIHandler(pools, httpLogger),
		Fleet:      httphandler.NewFleetHandler(pools, httpLogger),
		Workspaces: httphandler.NewWorkspaceHandler(service.NewFleetService(repos.workspaces, fleetClient, cache, appConfig.Pool.MaxMinimumVMs, poolLogger), httpLogger),
		Runs:       httphandler.NewRunHandler(service.NewArtifactService(repos.runs, engine, appConfig.Workflow.Timeout, workflowLogger), httpLogger),
		Events:     stream,
		Checks:     checks,
	}, httpLogger)

	server := &http.Server{
		Addr:         appConfig.HTTP.Addr,
		Handler:      router,
		ReadTimeout:  appConfig.HTTP.ReadTimeout,
		WriteTimeout: appConfig.HTTP.WriteTimeout,
	}
	// Shutdown does not touch hijacked connections, close websocket streams explicitly
	server.RegisterOnShutdown(stream.Shutdown)

	go func() {
		zap.L().Info("HTTP server listening", zap.String("addr", server.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("HTTP server failed", zap.Error(err))
			rootCtxCancel()
		}
	}()

	// Wait for ctx cancelation
	<-rootCtx.Done()
	rootCtxCancel()

	// Wait for signal propagation
	time.Sleep(_readinessDrainDelay)
	zap.L().Info("Readiness check propagated, now waiting for ongoing requests to finish")

	shutdownPeriod := appConfig.HTTP.ShutdownTimeout
	if shutdownPeriod <= 0 {
		shutdownPeriod = _shutdownPeriod
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownPeriod)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		zap.L().Error("Failed to wait for ongoing requests to finish, waiting for forced cancellation", zap.Error(err))
		time.Sleep(_shutdownHardPeriod)
	}

	zap.L().Info("Graceful shutdown complete.")
}
