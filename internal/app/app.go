// Package app assembles every component into one running process: IoTFlow
// serves HTTP ingestion and MQTT ingestion concurrently out of a single
// binary, sharing the Credential Store, Liveness Cache, and Telemetry
// Pipeline between both ingress paths.
package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/iotflow/connectivity/internal/config"
	"github.com/iotflow/connectivity/internal/credential"
	"github.com/iotflow/connectivity/internal/health"
	"github.com/iotflow/connectivity/internal/httpapi"
	"github.com/iotflow/connectivity/internal/httpserver"
	"github.com/iotflow/connectivity/internal/identity"
	"github.com/iotflow/connectivity/internal/liveness"
	"github.com/iotflow/connectivity/internal/mqttingress"
	"github.com/iotflow/connectivity/internal/obs"
	"github.com/iotflow/connectivity/internal/pipeline"
	"github.com/iotflow/connectivity/internal/platform"
	"github.com/iotflow/connectivity/internal/timeseries"
)

// Run builds every component from cfg, starts HTTP and MQTT ingestion, and
// blocks until ctx is cancelled, then shuts everything down in reverse
// dependency order. It returns a non-nil error only for a startup failure;
// shutdown errors are logged, not returned, since by that point the process
// is exiting anyway.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := obs.NewLogger(cfg.LogFormat, cfg.LogLevel)

	traceShutdown, err := obs.InitTracer(ctx, obs.TracingConfig{
		Enabled:     cfg.OTelEnabled,
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: "iotflow-connectivity",
	})
	if err != nil {
		return fmt.Errorf("initializing tracer: %w", err)
	}
	defer traceShutdown(context.Background())

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		return fmt.Errorf("connecting to postgres: %w", err)
	}
	defer pool.Close()

	rdb, err := platform.NewRedisClient(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}
	defer rdb.Close()

	store := credential.NewStore(pool, cfg.APIKeyLength)
	liveCache := liveness.New(rdb, logger)
	ts := timeseries.NewAdapter(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	defer ts.Close()

	auth := identity.NewAuthenticator(store, liveCache, cfg.KeyCacheTTL, cfg.AdminBearerToken)
	rateLimiter := identity.NewRateLimiter(liveCache, identity.Limits{
		Register:  cfg.RateLimitRegister,
		Telemetry: cfg.RateLimitTelemetry,
		Heartbeat: cfg.RateLimitHeartbeat,
		Default:   cfg.RateLimitDefault,
		Window:    time.Minute,
	})

	batcher := pipeline.NewBatcher(ts, logger, cfg.BatchWindow, cfg.BatchSize)
	batcher.Start(ctx)
	svc := pipeline.NewService(ts, liveCache, batcher, logger, cfg.HeartbeatTTL, cfg.TimestampSkew)

	metricsReg := obs.NewMetricsRegistry(obs.All()...)

	ingress := mqttingress.New(mqttingress.Options{
		BrokerURL: cfg.MQTTBrokerURL(),
		ClientID:  cfg.MQTTClientID,
		Username:  cfg.MQTTUsername,
		Password:  cfg.MQTTPassword,
		QueueSize: cfg.MQTTQueueSize,
		Workers:   cfg.MQTTWorkers,
	}, auth, rateLimiter, svc, liveCache, logger)

	checkers := []health.Checker{
		{Name: "store", Check: store.Health},
		{Name: "ts", Check: ts.Health},
		{Name: "cache", Check: liveCache.Health},
		{Name: "mqtt", Check: ingress.Health},
	}

	srv := httpserver.NewServer(httpserver.ServerConfig{
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RequestTimeout:     cfg.RequestTimeout,
	}, logger, metricsReg, checkers,
		func(ctx context.Context) (int, error) {
			_, total, err := store.List(ctx, 0, 1)
			return total, err
		},
		func(ctx context.Context) (int64, error) {
			return ts.CountRecent(ctx, time.Hour)
		},
	)

	api := httpapi.NewAPI(store, auth, rateLimiter, liveCache, svc, ts, httpapi.Config{
		MQTTBrokerHost: cfg.MQTTBrokerHost,
		MQTTBrokerPort: cfg.MQTTBrokerPort,
	}, logger)
	api.Mount(srv.APIRouter)

	httpSrv := &http.Server{
		Addr:    cfg.ListenAddr(),
		Handler: srv,
	}

	if err := ingress.Start(ctx); err != nil {
		return fmt.Errorf("starting mqtt ingress: %w", err)
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
			return
		}
		serveErr <- nil
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			logger.Error("http server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown error", "error", err)
	}
	ingress.Close()
	batcher.Close()

	return nil
}
