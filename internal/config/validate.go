package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Defaults fills every section. dataDir is used when DataDir is unset.
func (c *Config) Defaults(dataDir string) {
	if c.Version == "" {
		c.Version = "1"
	}
	if c.DataDir == "" {
		c.DataDir = dataDir
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	if c.Engine.Kind == "" {
		c.Engine.Kind = EngineVLLM
	}
	switch c.Engine.Kind {
	case EngineVLLM:
		c.Engine.VLLM.Defaults()
	case EngineOpenAI:
		c.Engine.OpenAI.Defaults()
	}
	c.Engine.Retry.Defaults()
	c.Tokenizer.Defaults()
	c.Thinking.Defaults()
	c.Store.Defaults(c.DataDir)
	c.Gateway.Defaults()
	if c.WatchInterval == 0 {
		c.WatchInterval = 5 * time.Second
	}
	if c.Cron.EngineProbe == "" {
		c.Cron.EngineProbe = "* * * * *"
	}
}

// Validate reports every problem in a defaulted configuration.
func Validate(cfg *Config) error {
	var errs []error

	if cfg.Version != "1" {
		errs = append(errs, fmt.Errorf("config: unsupported version %q (supported: \"1\")", cfg.Version))
	}
	if _, err := cfg.Log.SlogLevel(); err != nil {
		errs = append(errs, err)
	}
	if f := cfg.Log.Format; f != "text" && f != "json" {
		errs = append(errs, fmt.Errorf("config: log.format must be text or json, got %q", f))
	}

	switch cfg.Engine.Kind {
	case EngineVLLM:
		errs = append(errs, prefixed("engine.vllm", cfg.Engine.VLLM.Validate()))
	case EngineOpenAI:
		errs = append(errs, prefixed("engine.openai", cfg.Engine.OpenAI.Validate()))
	default:
		errs = append(errs, fmt.Errorf("config: engine.kind must be %q or %q, got %q", EngineVLLM, EngineOpenAI, cfg.Engine.Kind))
	}
	errs = append(errs,
		prefixed("engine.retry", cfg.Engine.Retry.Validate()),
		prefixed("tokenizer", cfg.Tokenizer.Validate()),
		prefixed("prompt", cfg.Prompt.Validate()),
		prefixed("thinking", cfg.Thinking.Validate()),
		prefixed("store", cfg.Store.Validate()),
		prefixed("gateway", cfg.Gateway.Validate()),
		prefixed("telemetry", cfg.Telemetry.Validate()),
	)
	if cfg.Driver.Workers < 0 {
		errs = append(errs, fmt.Errorf("config: driver.workers must not be negative, got %d", cfg.Driver.Workers))
	}

	return errors.Join(errs...)
}

func prefixed(section string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("config: %s: %w", section, err)
}

// SlogLevel parses Level.
func (l LogConfig) SlogLevel() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(l.Level))); err != nil {
		return 0, fmt.Errorf("config: log.level: %w", err)
	}
	return level, nil
}
