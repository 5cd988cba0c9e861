// Package indengine wires the indicator registry, the result cache, the bar
// store and the live websocket hub into the indicator engine HTTP service.
package indengine

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"charting-engine/config"
	"charting-engine/internal/gateway"
	"charting-engine/internal/indicator"
	"charting-engine/internal/metrics"
	redisstore "charting-engine/internal/store/redis"
	sqlitestore "charting-engine/internal/store/sqlite"
)

// Options are the already-constructed dependencies of a Service. Only
// Registry is required: without Cache results are always computed, without
// Writer/Reader symbol-based requests and bar ingest are rejected.
type Options struct {
	Registry *indicator.Registry
	Cache    *redisstore.Cache
	Writer   *sqlitestore.Writer
	Reader   *sqlitestore.Reader

	// Prometheus registry for the service collectors and /metrics; a fresh
	// one is created when nil.
	Prometheus *prometheus.Registry

	HTTPAddr    string
	Placeholder string
}

// Service is the top-level orchestrator for the indicator engine.
type Service struct {
	id string

	reg    *indicator.Registry
	cache  *redisstore.Cache
	writer *sqlitestore.Writer
	reader *sqlitestore.Reader
	hub    *gateway.Hub

	promReg *prometheus.Registry
	prom    *metrics.Metrics
	health  *metrics.HealthStatus

	addr        string
	placeholder string
}

// New builds the service from configuration: registry with overridden
// defaults, SQLite store and, when reachable, the Redis cache.
func New(cfg *config.Config) (*Service, error) {
	policy, err := indicator.ParsePolicy(cfg.RegistryPolicy)
	if err != nil {
		return nil, err
	}
	reg := indicator.NewDefaultRegistry(policy)
	specs, err := ParseIndicatorSpecs(cfg.IndicatorParams)
	if err != nil {
		return nil, err
	}
	if err := ApplyIndicatorSpecs(reg, specs); err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.SQLitePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, "create sqlite dir")
		}
	}
	writer, err := sqlitestore.New(sqlitestore.WriterConfig{DBPath: cfg.SQLitePath})
	if err != nil {
		return nil, err
	}
	reader, err := sqlitestore.NewReader(cfg.SQLitePath)
	if err != nil {
		writer.Close()
		return nil, err
	}

	cache, err := redisstore.NewCache(redisstore.CacheConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.CacheTTL,
	})
	if err != nil {
		slog.Warn("[indengine] redis unavailable, running without result cache", "error", err)
	}

	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return NewService(Options{
		Registry:    reg,
		Cache:       cache,
		Writer:      writer,
		Reader:      reader,
		Prometheus:  promReg,
		HTTPAddr:    cfg.HTTPAddr,
		Placeholder: cfg.TooltipPlaceholder,
	}), nil
}

// NewService assembles a service from prepared dependencies.
func NewService(opts Options) *Service {
	promReg := opts.Prometheus
	if promReg == nil {
		promReg = prometheus.NewRegistry()
	}
	prom := metrics.NewMetrics(promReg)

	svc := &Service{
		id:          uuid.NewString(),
		reg:         opts.Registry,
		cache:       opts.Cache,
		writer:      opts.Writer,
		reader:      opts.Reader,
		promReg:     promReg,
		prom:        prom,
		health:      metrics.NewHealthStatus(),
		addr:        opts.HTTPAddr,
		placeholder: opts.Placeholder,
	}

	hubCfg := gateway.Config{Registry: svc.reg, Metrics: prom}
	if svc.reader != nil {
		hubCfg.History = svc.reader
	}
	svc.hub = gateway.NewHub(hubCfg)

	if svc.cache != nil {
		svc.cache.Breaker().OnStateChange = func(from, to redisstore.State) {
			prom.RedisCircuitBreakerState.Set(float64(to))
			if to == redisstore.StateOpen {
				prom.RedisCircuitBreakerTrips.Inc()
			}
			slog.Warn("[indengine] redis circuit breaker", "from", from.String(), "to", to.String())
		}
	}
	svc.health.SetIndicators(svc.reg.List())
	svc.health.SetSQLiteOK(svc.writer != nil)
	svc.health.SetRedisConnected(svc.cache != nil)
	return svc
}

// Hub exposes the live websocket hub.
func (svc *Service) Hub() *gateway.Hub { return svc.hub }

// Registry exposes the indicator registry.
func (svc *Service) Registry() *indicator.Registry { return svc.reg }

// Run starts the hub, the health prober, the defaults subscriber and the
// HTTP server, and blocks until ctx is cancelled.
func (svc *Service) Run(ctx context.Context) error {
	slog.Info("[indengine] starting indicator engine", "indicators", svc.reg.List(), "policy", svc.reg.Policy().String())

	go svc.hub.Run(ctx)
	svc.startLiveness(ctx)
	svc.startDefaultsSubscriber(ctx)

	srv := &http.Server{
		Addr:              svc.addr,
		Handler:           svc.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("[indengine] HTTP server listening", "addr", svc.addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-errCh:
		runErr = errors.Wrap(err, "http server")
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		slog.Warn("[indengine] HTTP shutdown", "error", err)
	}
	svc.Close()
	slog.Info("[indengine] shutdown complete")
	return runErr
}

// Close releases the stores and the cache connection.
func (svc *Service) Close() {
	if svc.reader != nil {
		svc.reader.Close()
	}
	if svc.writer != nil {
		svc.writer.Close()
	}
	if svc.cache != nil {
		svc.cache.Close()
	}
}

func (svc *Service) startLiveness(ctx context.Context) {
	var rdb *goredis.Client
	if svc.cache != nil {
		rdb = svc.cache.Client()
	}
	var db *sql.DB
	if svc.writer != nil {
		db = svc.writer.DB()
	}
	svc.health.StartLivenessChecker(ctx, rdb, db, 15*time.Second)
}

// startDefaultsSubscriber applies default-param changes published by other
// instances.
func (svc *Service) startDefaultsSubscriber(ctx context.Context) {
	if svc.cache == nil {
		return
	}
	svc.cache.SubscribeDefaults(ctx, func(change redisstore.DefaultsChange) {
		if change.Origin == svc.id {
			return
		}
		if err := svc.reg.SetDefaults(change.Name, change.Params); err != nil {
			slog.Warn("[indengine] rejected remote defaults", "indicator", change.Name, "error", err)
			return
		}
		slog.Info("[indengine] applied remote defaults", "indicator", change.Name, "params", change.Params.String(), "origin", change.Origin)
	})
}
