// Package app assembles budgetforce from its configuration and runs the
// long-lived server modes.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/flemzord/budgetforce/internal/config"
	"github.com/flemzord/budgetforce/internal/cron"
	"github.com/flemzord/budgetforce/internal/gateway"
	"github.com/flemzord/budgetforce/internal/reload"
	"github.com/flemzord/budgetforce/internal/security"
)

// RunParams configures the application.
type RunParams struct {
	// ConfigPath is an explicit path to the YAML configuration file.
	// If empty, ResolveConfigPath is called automatically.
	ConfigPath string

	// Version, Commit, and Date are injected at build time via ldflags.
	Version string
	Commit  string
	Date    string

	// DataDir overrides the default persistent data directory.
	DataDir string

	// LogLevel overrides log.level from the configuration when non-empty.
	LogLevel string

	// LogOutput receives logs. Defaults to os.Stderr.
	LogOutput io.Writer

	// ConfigOptional starts from built-in defaults when no configuration
	// file is found instead of failing.
	ConfigOptional bool

	// Override, if set, edits the loaded configuration before defaults are
	// applied. Command-line flags use it.
	Override func(*config.Config)
}

// LoadConfig resolves, loads, defaults and validates the configuration.
// It returns the path that was read, empty when built-in defaults were
// used.
func LoadConfig(params RunParams) (*config.Config, string, error) {
	cfg, cfgPath, err := LoadDefaults(params)
	if err != nil {
		return nil, cfgPath, err
	}
	if err := config.Validate(cfg); err != nil {
		return nil, cfgPath, err
	}
	return cfg, cfgPath, nil
}

// LoadDefaults is LoadConfig without validation, for commands that only
// need one section.
func LoadDefaults(params RunParams) (*config.Config, string, error) {
	cfgPath := params.ConfigPath
	if cfgPath == "" {
		resolved, err := ResolveConfigPath()
		if err != nil && !params.ConfigOptional {
			return nil, "", err
		}
		cfgPath = resolved
	}

	cfg := &config.Config{}
	if cfgPath != "" {
		var err error
		if cfg, err = config.Load(cfgPath); err != nil {
			return nil, cfgPath, err
		}
	}
	if params.Override != nil {
		params.Override(cfg)
	}
	dataDir := params.DataDir
	if dataDir == "" {
		dataDir = DefaultDataDir()
	}
	cfg.Defaults(dataDir)
	if params.LogLevel != "" {
		cfg.Log.Level = params.LogLevel
	}
	return cfg, cfgPath, nil
}

// NewRedactor returns a redactor loaded with the default key patterns and
// every secret literal present in cfg.
func NewRedactor(cfg *config.Config) *security.Redactor {
	r := security.NewRedactor()
	for _, p := range security.DefaultPatterns() {
		r.AddPattern(p)
	}
	r.AddLiteral(cfg.Engine.VLLM.APIKey)
	r.AddLiteral(cfg.Engine.OpenAI.APIKey)
	r.AddLiteral(cfg.Gateway.Auth.BearerToken)
	r.AddLiteral(cfg.Gateway.Auth.BasicPass)
	for _, v := range cfg.Engine.VLLM.Headers {
		r.AddLiteral(v)
	}
	for _, v := range cfg.Telemetry.Headers {
		r.AddLiteral(v)
	}
	return r
}

// NewLogger builds the redacting slog logger described by cfg. level is
// set from cfg and may be changed later to adjust verbosity at runtime.
func NewLogger(cfg config.LogConfig, w io.Writer, level *slog.LevelVar, redactor *security.Redactor) (*slog.Logger, error) {
	lvl, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	level.Set(lvl)

	opts := &slog.HandlerOptions{Level: level}
	var inner slog.Handler
	if cfg.Format == "json" {
		inner = slog.NewJSONHandler(w, opts)
	} else {
		inner = slog.NewTextHandler(w, opts)
	}
	return slog.New(security.NewRedactingHandler(inner, redactor)), nil
}

// Open loads the configuration and builds the stack. The caller closes it.
func Open(ctx context.Context, params RunParams) (*Stack, error) {
	s, _, err := open(ctx, params, new(slog.LevelVar))
	return s, err
}

func open(ctx context.Context, params RunParams, level *slog.LevelVar) (*Stack, string, error) {
	cfg, cfgPath, err := LoadConfig(params)
	if err != nil {
		return nil, cfgPath, err
	}
	out := params.LogOutput
	if out == nil {
		out = os.Stderr
	}
	logger, err := NewLogger(cfg.Log, out, level, NewRedactor(cfg))
	if err != nil {
		return nil, cfgPath, err
	}
	s, err := Build(ctx, cfg, logger, params.Version)
	if err != nil {
		return nil, cfgPath, err
	}
	return s, cfgPath, nil
}

// Server runs the gateway and the job scheduler over one stack.
type Server struct {
	params   RunParams
	cfgPath  string
	level    *slog.LevelVar
	stack    *Stack
	sched    *cron.Scheduler
	gw       *gateway.Gateway
	reloader *reload.Handler
	watcher  *reload.Watcher
	cancel   context.CancelFunc
}

// NewServer loads the configuration and builds everything Start needs.
func NewServer(params RunParams) (*Server, error) {
	level := new(slog.LevelVar)
	stack, cfgPath, err := open(context.Background(), params, level)
	if err != nil {
		return nil, err
	}
	sched, err := stack.Scheduler()
	if err != nil {
		return nil, errors.Join(err, stack.Close(context.Background()))
	}
	gw, err := stack.Gateway()
	if err != nil {
		return nil, errors.Join(err, stack.Close(context.Background()))
	}
	srv := &Server{
		params:  params,
		cfgPath: cfgPath,
		level:   level,
		stack:   stack,
		sched:   sched,
		gw:      gw,
	}
	if cfgPath != "" {
		reloadParams := params
		reloadParams.ConfigPath = cfgPath
		srv.reloader = reload.NewHandler(stack.Config, func() (*config.Config, error) {
			cfg, _, err := LoadConfig(reloadParams)
			return cfg, err
		}, level, stack.Logger.With("component", "reload"))
		if stack.Config.WatchInterval > 0 {
			srv.watcher = reload.NewWatcher(cfgPath, stack.Config.WatchInterval)
		}
	}
	return srv, nil
}

// Start starts the scheduler and the gateway. It does not block.
func (s *Server) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	if err := s.sched.Start(); err != nil {
		cancel()
		return err
	}
	if err := s.gw.Start(ctx); err != nil {
		cancel()
		_ = s.sched.Stop(context.Background())
		return err
	}
	if s.watcher != nil {
		go s.watcher.Run(ctx)
	}
	s.stack.Logger.Info("budgetforce serving",
		"version", s.params.Version,
		"config", s.cfgPath,
		"bind", s.stack.Config.Gateway.Bind,
		"jobs", s.sched.Jobs(),
	)
	return nil
}

// Reload re-reads the configuration file and applies the new log level.
// Other changed sections are logged as needing a restart.
func (s *Server) Reload() error {
	if s.reloader == nil {
		return errors.New("app: no configuration file to reload")
	}
	_, err := s.reloader.Reload()
	return err
}

// Changes delivers config file changes seen by the poller. It is nil when
// polling is off.
func (s *Server) Changes() <-chan reload.Event {
	if s.watcher == nil {
		return nil
	}
	return s.watcher.Events()
}

// Stop drains the gateway, stops the scheduler and closes the stack,
// bounded by the gateway shutdown timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), s.stack.Config.Gateway.ShutdownTimeout)
	defer cancel()

	errs := []error{s.gw.Stop(ctx), s.sched.Stop(ctx)}
	if s.cancel != nil {
		s.cancel()
	}
	errs = append(errs, s.stack.Close(ctx))
	return errors.Join(errs...)
}

// Logger returns the server logger.
func (s *Server) Logger() *slog.Logger {
	return s.stack.Logger
}

// Serve runs a Server until SIGINT or SIGTERM. SIGHUP and config file
// changes trigger a reload.
func Serve(params RunParams) error {
	srv, err := NewServer(params)
	if err != nil {
		return err
	}
	if err := srv.Start(); err != nil {
		_ = srv.stack.Close(context.Background())
		return err
	}
	logger := srv.Logger()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	changes := srv.Changes()
	for {
		select {
		case sig := <-sigCh:
			if sig == syscall.SIGHUP {
				logger.Info("SIGHUP received, reloading configuration")
				if err := srv.Reload(); err != nil {
					logger.Error("reload failed", "error", err)
				}
				continue
			}
			logger.Info("shutdown signal received", "signal", sig.String())
			if err := srv.Stop(); err != nil {
				logger.Error("shutdown failed", "error", err)
				return err
			}
			logger.Info("shutdown complete")
			return nil
		case evt, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			logger.Info("config file changed, reloading", "path", evt.Path)
			if err := srv.Reload(); err != nil {
				logger.Error("reload failed", "error", err)
			}
		}
	}
}

// ServeMCP serves the MCP tools over in and out until ctx is done or the
// client disconnects. Logs must not go to out.
func ServeMCP(ctx context.Context, params RunParams, in io.Reader, out io.Writer) error {
	stack, err := Open(ctx, params)
	if err != nil {
		return err
	}
	defer func() { _ = stack.Close(context.Background()) }()
	return stack.MCP().ServeStdio(ctx, in, out)
}

// ResolveConfigPath searches for a config file in standard locations.
// Search order: $XDG_CONFIG_HOME/budgetforce/budgetforce.yaml → ~/.config/budgetforce/budgetforce.yaml → ./budgetforce.yaml
func ResolveConfigPath() (string, error) {
	var candidates []string

	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		candidates = append(candidates, filepath.Join(xdg, "budgetforce", "budgetforce.yaml"))
	} else if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "budgetforce", "budgetforce.yaml"))
	}

	candidates = append(candidates, "budgetforce.yaml")

	for _, path := range candidates {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", fmt.Errorf("no configuration file found (searched: %v)", candidates)
}

// DefaultConfigPath is where init writes a new configuration.
func DefaultConfigPath() string {
	if xdg, ok := os.LookupEnv("XDG_CONFIG_HOME"); ok {
		return filepath.Join(xdg, "budgetforce", "budgetforce.yaml")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "budgetforce", "budgetforce.yaml")
}

// DefaultDataDir returns the default persistent data directory.
// Uses $XDG_DATA_HOME/budgetforce if set, otherwise ~/.local/share/budgetforce.
func DefaultDataDir() string {
	if dir, ok := os.LookupEnv("XDG_DATA_HOME"); ok {
		return filepath.Join(dir, "budgetforce")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "budgetforce")
}
