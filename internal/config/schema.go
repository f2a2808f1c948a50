// Package config loads the budgetforce YAML configuration: environment
// variable expansion, strict decoding into typed sections, defaults and
// validation.
package config

import (
	"time"

	"github.com/flemzord/budgetforce/internal/driver"
	"github.com/flemzord/budgetforce/internal/engine"
	"github.com/flemzord/budgetforce/internal/gateway"
	"github.com/flemzord/budgetforce/internal/prompt"
	"github.com/flemzord/budgetforce/internal/telemetry"
	"github.com/flemzord/budgetforce/internal/thinking"
	"github.com/flemzord/budgetforce/internal/tokens"
	"github.com/flemzord/budgetforce/modules/engine/openai"
	"github.com/flemzord/budgetforce/modules/engine/vllm"
	"github.com/flemzord/budgetforce/modules/store/sqlite"
)

// Engine kinds.
const (
	EngineVLLM   = "vllm"
	EngineOpenAI = "openai"
)

// Config is the top-level configuration structure.
type Config struct {
	// Version is the config format version. Only "1" is supported.
	Version string `yaml:"version"`

	// DataDir holds the run database. Defaults to $XDG_DATA_HOME/budgetforce.
	DataDir string `yaml:"data_dir,omitempty"`

	Log       LogConfig        `yaml:"log"`
	Engine    EngineConfig     `yaml:"engine"`
	Tokenizer tokens.Config    `yaml:"tokenizer"`
	Prompt    prompt.Config    `yaml:"prompt"`
	Thinking  thinking.Config  `yaml:"thinking"`
	Driver    driver.Config    `yaml:"driver"`
	Store     sqlite.Config    `yaml:"store"`
	Gateway   gateway.Config   `yaml:"gateway"`
	Telemetry telemetry.Config `yaml:"telemetry"`
	Cron      CronConfig       `yaml:"cron"`

	// WatchInterval is how often serve polls the config file for changes.
	// Default: 5s. Negative disables polling; SIGHUP still reloads.
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// LogConfig selects the log level and handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error. Default: info.
	Format string `yaml:"format"` // text or json. Default: text.
}

// EngineConfig selects and configures the inference backend.
type EngineConfig struct {
	// Kind is "vllm" (raw completions client) or "openai" (openai-go SDK
	// against any compatible server). Default: vllm.
	Kind   string             `yaml:"kind"`
	VLLM   vllm.Config        `yaml:"vllm"`
	OpenAI openai.Config      `yaml:"openai"`
	Retry  engine.RetryConfig `yaml:"retry"`
}

// Model returns the configured model name for the selected kind.
func (e EngineConfig) Model() string {
	if e.Kind == EngineOpenAI {
		return e.OpenAI.Model
	}
	return e.VLLM.Model
}

// CronConfig schedules background jobs served alongside the gateway.
type CronConfig struct {
	// EngineProbe is the schedule of the engine health probe. Default:
	// every minute. "off" disables it.
	EngineProbe string `yaml:"engine_probe"`
}
