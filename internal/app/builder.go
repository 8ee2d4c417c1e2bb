// Package app wires the gateway's components together and owns process
// lifecycle. Grounded on the teacher's internal/app package (Builder/Server
// split, startup timeout barrier), generalized from the teacher's
// HTTP+WebSocket dual adapter into the single HTTP adapter this spec needs,
// and from the teacher's static registry.Registry discovery into the
// dockerevents + configwatch dual input feeding the Config Aggregator.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	redisClient "github.com/redis/go-redis/v9"

	httpAdapter "gateway/internal/adapter/http"
	"gateway/internal/aggregator"
	"gateway/internal/backend"
	"gateway/internal/config"
	"gateway/internal/configwatch"
	"gateway/internal/dockerevents"
	"gateway/internal/health"
	"gateway/internal/jsonconfig"
	"gateway/internal/loadbalancer"
	internalMetrics "gateway/internal/metrics"
	"gateway/internal/middleware"
	"gateway/internal/proxy"
	"gateway/internal/snapshot"
	"gateway/internal/storage"
	"gateway/internal/storage/memory"
	"gateway/internal/storage/redis"
	"gateway/internal/telemetry"
	"gateway/pkg/metrics"
)

// Builder wires the gateway's components together from Config: the
// Container Event Listener and File Watcher feed the Config Aggregator,
// whose snapshots drive the Proxy Engine and Health Controller served
// behind the HTTP adapter.
type Builder struct {
	config *config.Config
	logger *slog.Logger
}

// NewBuilder creates a new application builder.
func NewBuilder(cfg *config.Config, logger *slog.Logger) *Builder {
	return &Builder{config: cfg, logger: logger}
}

// Build constructs the gateway Server. It performs no I/O beyond opening the
// rate-limit store's connection (if Redis-backed); container discovery and
// file watching only begin once Server.Start is called.
func (b *Builder) Build() (*Server, error) {
	limiterStore, err := b.buildLimiterStore()
	if err != nil {
		return nil, fmt.Errorf("building rate-limit store: %w", err)
	}

	registry := middleware.NewRegistry(b.logger)
	if err := registry.RegisterAll(limiterStore); err != nil {
		return nil, fmt.Errorf("registering middleware: %w", err)
	}

	m := metrics.New()
	healthController := health.NewController(b.logger)
	lb := loadbalancer.NewManager()
	connector := backend.NewHTTPConnector(&http.Client{})

	t, err := b.buildTelemetry()
	if err != nil {
		return nil, fmt.Errorf("building telemetry: %w", err)
	}

	engine := proxy.New(proxy.Config{
		MaxAttempts:   b.config.Retry.MaxAttempts,
		RetryInterval: time.Duration(b.config.Retry.IntervalSeconds) * time.Second,
	}, registry, healthController, lb, connector, m, b.logger)
	engine.WithTelemetry(t)

	state := newSnapshotState()
	aggState := &aggregatorState{
		precedence:  jsonPrecedence(b.config.JSONConfig.Priority),
		labelPrefix: b.config.Labels.Prefix,
	}

	dockerListener := dockerevents.New(dockerevents.Config{
		Host:    b.config.Docker.Host,
		Network: b.config.Docker.Network,
	}, b.logger)

	var watcher *configwatch.Watcher
	if b.config.Watch.Enabled && jsonConfigPath(b.config.JSONConfig) != "" {
		pollInterval := time.Duration(0)
		if b.config.Watch.PollFallback {
			pollInterval = time.Duration(b.config.Watch.IntervalMS) * time.Millisecond
		}
		watcher, err = configwatch.New(configwatch.Config{
			Path:            jsonConfigPath(b.config.JSONConfig),
			DebounceTimeout: time.Duration(b.config.Watch.TimeoutMS) * time.Millisecond,
			PollInterval:    pollInterval,
			OnChange: func(doc *jsonconfig.Document) {
				aggState.setJSON(doc)
				rebuild(aggState, state, engine, healthController, b.logger)
			},
			OnError: func(err error) {
				b.logger.Error("config watch error", "error", err)
			},
		}, b.logger)
		if err != nil {
			return nil, fmt.Errorf("building config watcher: %w", err)
		}
	}

	httpCfg := httpAdapter.Config{
		Port:        b.config.HTTP.Port,
		MetricsPath: "/metrics",
		HealthPath:  "/health",
		ReadyPath:   "/ready",
		LivePath:    "/live",
	}
	if b.config.HTTPS.Enabled {
		tlsCfg, err := httpAdapter.NewTLSConfig(b.config.TLS)
		if err != nil {
			return nil, fmt.Errorf("building TLS config: %w", err)
		}
		httpCfg.Port = b.config.HTTPS.Port
		httpCfg.TLS = &httpAdapter.TLSConfig{Enabled: true, CertPath: b.config.TLS.CertPath, KeyPath: b.config.TLS.KeyPath}
		httpCfg.TLSConfig = tlsCfg
	}

	adapter := httpAdapter.New(httpCfg, engine.Handle, b.logger)
	adapter.WithTelemetry(t)
	adapter.WithMetricsHandler(internalMetrics.Handler())
	adapter.WithHealthHandler(httpAdapter.NewHealthHandler(healthController, state.get))

	return &Server{
		config:           b.config,
		httpAdapter:      adapter,
		dockerListener:   dockerListener,
		watcher:          watcher,
		engine:           engine,
		healthController: healthController,
		snapshotState:    state,
		aggregatorState:  aggState,
		logger:           b.logger,
	}, nil
}

// buildLimiterStore selects the Rate-Limit middleware's backing store per
// config.RateLimit.Store; "redis" shares buckets across a fleet, "memory"
// (the default) keeps them local to this instance.
func (b *Builder) buildLimiterStore() (storage.LimiterStore, error) {
	switch b.config.RateLimit.Store {
	case "redis":
		if b.config.RateLimit.RedisAddr == "" {
			return nil, fmt.Errorf("rateLimit.store is redis but rateLimit.redisAddr is empty")
		}
		client := redisClient.NewClient(&redisClient.Options{Addr: b.config.RateLimit.RedisAddr})
		return redis.NewStore(redis.NewClientAdapter(client), storage.DefaultConfig()), nil
	default:
		return memory.NewStore(storage.DefaultConfig()), nil
	}
}

// buildTelemetry converts the startup Telemetry settings into the fuller
// internal/telemetry.Config the tracer/meter providers expect.
func (b *Builder) buildTelemetry() (*telemetry.Telemetry, error) {
	cfg := telemetry.Config{
		Enabled: b.config.Telemetry.Enabled,
		Service: "gateway",
		Tracing: telemetry.TracingConfig{
			Enabled:    b.config.Telemetry.Enabled,
			Endpoint:   b.config.Telemetry.Endpoint,
			SampleRate: b.config.Telemetry.SampleRate,
		},
	}
	return telemetry.New(cfg)
}

// snapshotState holds the Config Aggregator's most recently published
// snapshot, shared between the HTTP adapter's health endpoint and the
// reload loop.
type snapshotState struct {
	mu  sync.RWMutex
	cur *snapshot.Snapshot
}

func newSnapshotState() *snapshotState {
	return &snapshotState{}
}

func (s *snapshotState) get() *snapshot.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

func (s *snapshotState) set(snap *snapshot.Snapshot) {
	s.mu.Lock()
	s.cur = snap
	s.mu.Unlock()
}

// aggregatorState holds the inputs the Config Aggregator merges on every
// rebuild: the live container set (from the Container Event Listener) and
// the JSON configuration document (from the File Watcher).
type aggregatorState struct {
	mu          sync.Mutex
	containers  []aggregator.ContainerInput
	json        *jsonconfig.Document
	precedence  aggregator.Precedence
	labelPrefix string
	version     atomic.Uint64
}

func (a *aggregatorState) setContainers(containers []dockerevents.Container) {
	a.mu.Lock()
	a.containers = dockerevents.ToAggregatorInputs(containers)
	a.mu.Unlock()
}

func (a *aggregatorState) setJSON(doc *jsonconfig.Document) {
	a.mu.Lock()
	a.json = doc
	a.mu.Unlock()
}

func (a *aggregatorState) input() aggregator.Input {
	a.mu.Lock()
	defer a.mu.Unlock()
	return aggregator.Input{
		Containers:  a.containers,
		JSON:        a.json,
		Precedence:  a.precedence,
		LabelPrefix: a.labelPrefix,
	}
}

// rebuild re-aggregates the current container/JSON state into a new
// snapshot and publishes it to the Proxy Engine, the Health Controller, and
// the shared snapshotState. Warnings only drop the entity they name, per
// the Config Aggregator's partial-failure policy.
func rebuild(a *aggregatorState, state *snapshotState, engine *proxy.Engine, hc *health.Controller, logger *slog.Logger) {
	snap, warnings := aggregator.Build(a.input(), a.version.Add(1))
	for _, w := range warnings {
		logger.Warn("dropping config entity", "entity", w.Entity, "reason", w.Reason)
	}
	state.set(snap)
	engine.UpdateSnapshot(snap)
	hc.Reconcile(context.Background(), snap)
}

func jsonPrecedence(priority string) aggregator.Precedence {
	if priority == "label" {
		return aggregator.PrecedenceLabelWins
	}
	return aggregator.PrecedenceJSONWins
}

// jsonConfigPath resolves the single file the File Watcher subscribes to.
// This gateway treats JSON configuration as one file (Path); Dir names a
// directory whose merge into a single Document is out of scope (spec.md's
// JSON configuration source is one file, not a fragment directory) - Dir is
// accepted only as a fallback path for callers that point it at a single
// file.
func jsonConfigPath(cfg config.JSONConfig) string {
	if cfg.Path != "" {
		return cfg.Path
	}
	return cfg.Dir
}
