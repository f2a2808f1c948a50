package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/flemzord/budgetforce/internal/config"
	"github.com/flemzord/budgetforce/internal/cron"
	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/gateway"
	"github.com/flemzord/budgetforce/internal/mcpserver"
	"github.com/flemzord/budgetforce/internal/metrics"
	"github.com/flemzord/budgetforce/internal/prompt"
	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/telemetry"
	"github.com/flemzord/budgetforce/internal/thinking"
	"github.com/flemzord/budgetforce/internal/tokens"
	"github.com/flemzord/budgetforce/modules/engine/openai"
	"github.com/flemzord/budgetforce/modules/engine/vllm"
	"github.com/flemzord/budgetforce/modules/store/sqlite"
)

// Stack holds every long-lived component built from one configuration.
type Stack struct {
	Config     *config.Config
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Engine     *engine.Retrying
	Controller *thinking.Controller
	Driver     *driver.Driver

	// Store is nil when persistence is disabled.
	Store *sqlite.Store

	version   string
	telemetry *telemetry.Provider
}

// Build wires the stack bottom-up: tracing, engine chain, counter,
// renderer, controller, run store and driver. cfg must be defaulted and
// validated.
func Build(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*Stack, error) {
	s := &Stack{Config: cfg, Logger: logger, Metrics: metrics.New(), version: version}

	tp, err := telemetry.Setup(ctx, cfg.Telemetry, version)
	if err != nil {
		return nil, err
	}
	s.telemetry = tp

	backend, err := newBackend(cfg.Engine, logger.With("component", "engine"))
	if err != nil {
		return nil, s.closeOnError(err)
	}
	s.Engine = engine.NewRetrying(
		engine.Instrument(backend, tp.Tracer(), s.Metrics),
		cfg.Engine.Retry,
		engine.WithLogger(logger.With("component", "retry")),
	)

	counter, err := tokens.NewCounter(cfg.Tokenizer)
	if err != nil {
		return nil, s.closeOnError(err)
	}
	markers := cfg.Thinking.Markers
	renderer, err := prompt.New(cfg.Prompt, markers.Open, markers.Close)
	if err != nil {
		return nil, s.closeOnError(err)
	}

	s.Controller, err = thinking.New(s.Engine, counter, renderer, cfg.Thinking,
		thinking.WithLogger(logger.With("component", "controller")),
		thinking.WithObserver(s.Metrics),
		thinking.WithObserver(thinking.LogObserver(logger.With("component", "trace"))),
		thinking.WithTracer(tp.Tracer()),
	)
	if err != nil {
		return nil, s.closeOnError(err)
	}

	if cfg.Store.IsEnabled() {
		s.Store, err = sqlite.Open(ctx, cfg.Store)
		if err != nil {
			return nil, s.closeOnError(err)
		}
	}

	s.Driver = driver.New(s.Controller, cfg.Engine.Model(), cfg.Driver,
		driver.WithStore(s.RunStore()),
		driver.WithLogger(logger.With("component", "driver")),
		driver.WithAnswerRecorder(s.Metrics),
	)

	logger.Info("stack ready",
		"engine", cfg.Engine.Kind,
		"model", cfg.Engine.Model(),
		"tokenizer", cfg.Tokenizer.Kind,
		"budget", cfg.Thinking.Budget,
		"workers", s.Driver.Workers(),
		"store", s.Store != nil,
	)
	return s, nil
}

func newBackend(cfg config.EngineConfig, logger *slog.Logger) (engine.Engine, error) {
	switch cfg.Kind {
	case config.EngineVLLM:
		return vllm.New(cfg.VLLM, nil, logger)
	case config.EngineOpenAI:
		return openai.New(cfg.OpenAI, nil, logger)
	default:
		return nil, fmt.Errorf("app: unknown engine kind %q", cfg.Kind)
	}
}

// RunStore returns the run store as an interface, nil when persistence is
// disabled.
func (s *Stack) RunStore() runs.Store {
	if s.Store == nil {
		return nil
	}
	return s.Store
}

// Scheduler builds the background job scheduler: the engine probe and,
// when persistence is on, the run pruner.
func (s *Stack) Scheduler() (*cron.Scheduler, error) {
	sched := cron.NewScheduler(s.Logger.With("component", "cron"))

	if expr := s.Config.Cron.EngineProbe; expr != "off" {
		if err := sched.RegisterJob(&cron.EngineProbeJob{
			Engine:       s.Engine,
			Logger:       s.Logger,
			ScheduleExpr: expr,
		}); err != nil {
			return nil, err
		}
	}
	if s.Store != nil {
		if err := sched.RegisterJob(&cron.PruneJob{
			Store:        s.Store,
			Retention:    s.Config.Store.Retention,
			Logger:       s.Logger,
			ScheduleExpr: s.Config.Store.PruneSchedule,
		}); err != nil {
			return nil, err
		}
	}
	return sched, nil
}

// Gateway builds the HTTP gateway over the driver.
func (s *Stack) Gateway() (*gateway.Gateway, error) {
	return gateway.New(s.Config.Gateway, gateway.Deps{
		Executor:      s.Driver,
		Store:         s.RunStore(),
		Health:        s.Engine,
		Metrics:       s.Metrics.Handler(),
		DefaultBudget: s.Config.Thinking.Budget,
	}, s.Logger.With("component", "gateway"))
}

// MCP builds the stdio MCP server over the driver.
func (s *Stack) MCP() *mcpserver.Server {
	return mcpserver.New(s.Driver, s.RunStore(), mcpserver.Config{
		DefaultBudget: s.Config.Thinking.Budget,
		MaxBudget:     s.Config.Gateway.MaxBudget,
	}, s.version, s.Logger.With("component", "mcp"))
}

// Close releases the store and flushes traces.
func (s *Stack) Close(ctx context.Context) error {
	var errs []error
	if s.Store != nil {
		errs = append(errs, s.Store.Close())
	}
	if s.telemetry != nil {
		errs = append(errs, s.telemetry.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func (s *Stack) closeOnError(err error) error {
	return errors.Join(err, s.Close(context.Background()))
}
