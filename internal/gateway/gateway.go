// Package gateway exposes the budget-forcing controller over HTTP: one-shot
// think and baseline calls, a WebSocket stream of iteration events, the
// run history, health and Prometheus metrics.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/security"
)

// Executor runs controller jobs. *driver.Driver satisfies it.
type Executor interface {
	Execute(ctx context.Context, job driver.Job) driver.Outcome
	InFlight() int
	Workers() int
}

// HealthReporter reports engine availability. *engine.Retrying satisfies it.
type HealthReporter interface {
	Status() engine.HealthStatus
}

// Deps are the collaborators the gateway serves. Store, Health and
// Metrics are optional.
type Deps struct {
	Executor Executor
	Store    runs.Store
	Health   HealthReporter
	Metrics  http.Handler

	// DefaultBudget applies when a request omits its budget.
	DefaultBudget int
}

// Gateway is the HTTP server.
type Gateway struct {
	config    Config
	deps      Deps
	limiter   *security.RateLimiter
	logger    *slog.Logger
	server    *http.Server
	startedAt time.Time
}

// New creates a gateway. cfg is defaulted and validated.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Gateway, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Executor == nil {
		return nil, errors.New("gateway: executor is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		config:    cfg,
		deps:      deps,
		limiter:   security.NewRateLimiter(cfg.RateLimit),
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// Handler returns the routed HTTP handler.
func (g *Gateway) Handler() http.Handler {
	return g.buildRouter()
}

// Start listens on the configured address and serves in the background.
func (g *Gateway) Start(ctx context.Context) error {
	g.server = &http.Server{
		Addr:         g.config.Bind,
		Handler:      g.buildRouter(),
		ReadTimeout:  g.config.ReadTimeout,
		WriteTimeout: g.config.WriteTimeout,
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", g.config.Bind)
	if err != nil {
		return errors.New("gateway: listen failed: " + err.Error())
	}
	g.startedAt = time.Now()

	go func() {
		g.logger.Info("gateway listening", "addr", ln.Addr().String())
		if err := g.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error("gateway serve error", "error", err)
		}
	}()
	return nil
}

// Stop shuts down gracefully, letting in-flight sessions finish until
// ShutdownTimeout.
func (g *Gateway) Stop(ctx context.Context) error {
	if g.server == nil {
		return nil
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, g.config.ShutdownTimeout)
	defer cancel()

	g.logger.Info("gateway shutting down")
	return g.server.Shutdown(shutdownCtx)
}
