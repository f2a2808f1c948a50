package reload

import (
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/flemzord/budgetforce/internal/config"
)

// Loader reads, defaults and validates the configuration file.
type Loader func() (*config.Config, error)

// Handler applies reloaded configurations. Only the log level changes
// live; other changed sections are reported as needing a restart.
type Handler struct {
	load   Loader
	level  *slog.LevelVar
	logger *slog.Logger

	mu      sync.Mutex
	current *config.Config
}

// NewHandler creates a handler starting from current.
func NewHandler(current *config.Config, load Loader, level *slog.LevelVar, logger *slog.Logger) *Handler {
	return &Handler{load: load, level: level, logger: logger, current: current}
}

// Reload loads the file and applies it. It returns the sections that
// changed but only take effect after a restart. On error nothing is
// applied.
func (h *Handler) Reload() ([]string, error) {
	next, err := h.load()
	if err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}
	lvl, err := next.Log.SlogLevel()
	if err != nil {
		return nil, fmt.Errorf("reload: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	pending := RestartSections(h.current, next)
	if h.level.Level() != lvl {
		h.logger.Info("log level changed", "from", h.level.Level().String(), "to", lvl.String())
		h.level.Set(lvl)
	}
	if len(pending) > 0 {
		h.logger.Warn("configuration changed, restart required to apply", "sections", pending)
	}
	// Keep the running sections so a later reload still reports them.
	kept := *h.current
	kept.Log = next.Log
	h.current = &kept
	return pending, nil
}

// RestartSections lists the top-level sections that differ between old
// and next, excluding log.
func RestartSections(old, next *config.Config) []string {
	sections := []struct {
		name string
		a, b any
	}{
		{"data_dir", old.DataDir, next.DataDir},
		{"engine", old.Engine, next.Engine},
		{"tokenizer", old.Tokenizer, next.Tokenizer},
		{"prompt", old.Prompt, next.Prompt},
		{"thinking", old.Thinking, next.Thinking},
		{"driver", old.Driver, next.Driver},
		{"store", old.Store, next.Store},
		{"gateway", old.Gateway, next.Gateway},
		{"telemetry", old.Telemetry, next.Telemetry},
		{"cron", old.Cron, next.Cron},
		{"watch_interval", old.WatchInterval, next.WatchInterval},
	}
	var changed []string
	for _, s := range sections {
		if !reflect.DeepEqual(s.a, s.b) {
			changed = append(changed, s.name)
		}
	}
	return changed
}
