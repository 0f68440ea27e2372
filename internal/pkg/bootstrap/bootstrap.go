// Package bootstrap wires the ambient pieces every service process shares:
// configuration, logging, tracing, metrics and the broker connection, plus
// the run loop that consumes one queue while serving HTTP.
package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jcmexdev/saga-orchestrator/internal/pkg/broker"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/cache"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/config"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/httpx"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/metrics"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/postgres"
	"github.com/jcmexdev/saga-orchestrator/internal/pkg/telemetry"
)

// Process holds the shared resources of one running service.
type Process struct {
	Config  config.Config
	Logger  *slog.Logger
	Metrics *metrics.Metrics
	Broker  *broker.Client

	closers []func() error
}

// Start loads configuration, installs the logger and tracer, connects to
// the broker and declares the topology.
func Start(ctx context.Context, service string) (*Process, error) {
	cfg, err := config.Load(service)
	if err != nil {
		return nil, err
	}
	logger := telemetry.InitLogger(cfg.OTelServiceName, cfg.LogLevel)

	p := &Process{Config: cfg, Logger: logger, Metrics: metrics.New()}

	shutdownTracer, err := telemetry.SetupTracer(ctx, telemetry.TracingConfig{
		ServiceName: cfg.OTelServiceName,
		Endpoint:    cfg.OTelEndpoint,
		Environment: cfg.OTelEnvironment,
	})
	if err != nil {
		return nil, fmt.Errorf("bootstrap: tracer: %w", err)
	}
	p.OnClose(func() error {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return shutdownTracer(shutdownCtx)
	})

	client, err := broker.Connect(ctx, broker.ConnectConfig{
		URL:      cfg.Rabbit.URL,
		Attempts: cfg.Rabbit.ConnectAttempts,
		Delay:    cfg.Rabbit.ConnectDelay,
	}, broker.Config{
		MaxRetries: cfg.Rabbit.MaxRetries,
		Prefetch:   cfg.Rabbit.Prefetch,
		Logger:     logger,
		Metrics:    p.Metrics,
	})
	if err != nil {
		p.Close()
		return nil, err
	}
	p.Broker = client
	p.OnClose(client.Close)

	if err := client.SetupTopology(); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}

// Dedupe returns the Redis-backed dedupe store when REDIS_ADDR is set, and
// nil otherwise.
func (p *Process) Dedupe() cache.Dedupe {
	if p.Config.RedisAddr == "" {
		p.Logger.Info("redis not configured, command dedupe disabled")
		return nil
	}
	dedupe, closeFn := cache.NewRedisDedupe(p.Config.RedisAddr, p.Config.Service, p.Config.DedupeTTL)
	p.OnClose(closeFn)
	return dedupe
}

// Postgres opens DATABASE_URL and applies schema. It returns nil when no
// database is configured and the caller should fall back to memory.
func (p *Process) Postgres(ctx context.Context, schema string) (*sql.DB, error) {
	if p.Config.DatabaseURL == "" {
		p.Logger.Info("DATABASE_URL not set, using in-memory repository")
		return nil, nil
	}
	db, err := postgres.Open(ctx, p.Config.DatabaseURL)
	if err != nil {
		return nil, err
	}
	p.OnClose(db.Close)
	if err := postgres.Migrate(ctx, db, schema); err != nil {
		return nil, err
	}
	return db, nil
}

// OnClose registers fn to run when the process closes, before resources
// registered earlier.
func (p *Process) OnClose(fn func() error) {
	p.closers = append(p.closers, fn)
}

// Run consumes queue with h and serves handler until ctx is cancelled or
// either side fails. On return both have stopped; the in-flight message, if
// any, has been settled.
func (p *Process) Run(ctx context.Context, queue string, h broker.Handler, handler http.Handler) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		wg   sync.WaitGroup
		errs = make([]error, 2)
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		defer cancel()
		errs[0] = p.Broker.Consume(ctx, queue, h)
	}()
	go func() {
		defer wg.Done()
		defer cancel()
		errs[1] = httpx.Serve(ctx, p.Config.HTTPAddr, handler, p.Config.ShutdownTimeout)
	}()
	wg.Wait()

	return errors.Join(errs...)
}

// Close releases resources in reverse order of acquisition.
func (p *Process) Close() {
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			p.Logger.Error("shutdown step failed", "error", err)
		}
	}
	p.closers = nil
}
