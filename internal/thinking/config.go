package thinking

import (
	"errors"
	"fmt"
	"time"
)

// Default values for Config.
const (
	DefaultBudget            = 32768
	DefaultMaxIterations     = 100
	DefaultTimeout           = 30 * time.Minute
	DefaultTemperature       = 0.7
	DefaultAnswerMaxTokens   = 4096
	DefaultBaselineMaxTokens = 32768
)

// Config controls the budget-forcing loop.
type Config struct {
	// Budget is the default thinking budget for requests that do not set one.
	Budget int `yaml:"budget"`

	// MaxIterations is the safety cap on nudges per session. Reaching it
	// aborts with ErrBudgetNeverSatisfied.
	MaxIterations int `yaml:"max_iterations"`

	// MinThinkingTokens suppresses a model-initiated close of the reasoning
	// block until at least this many thinking tokens were spent. Zero
	// accepts the first close.
	MinThinkingTokens int `yaml:"min_thinking_tokens"`

	// Timeout bounds the wall-clock duration of one session.
	Timeout time.Duration `yaml:"timeout"`

	Markers Markers `yaml:"markers"`

	// Nudge selects the continuation policy: wait, critique, cycle or custom.
	Nudge string `yaml:"nudge"`
	// NudgeText is the text of the custom policy.
	NudgeText string `yaml:"nudge_text"`
	// Nudges is the rotation of the cycle policy.
	Nudges []string `yaml:"nudges"`

	Temperature *float64 `yaml:"temperature"`
	TopP        float64  `yaml:"top_p"`

	// AnswerMaxTokens is the ceiling of the answer-phase call.
	AnswerMaxTokens int `yaml:"answer_max_tokens"`
	// BaselineMaxTokens is the ceiling of an unbudgeted baseline run.
	BaselineMaxTokens int `yaml:"baseline_max_tokens"`
}

// withDefaults returns a copy with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.Budget <= 0 {
		c.Budget = DefaultBudget
	}
	if c.MaxIterations <= 0 {
		c.MaxIterations = DefaultMaxIterations
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Markers.Open == "" {
		c.Markers.Open = DefaultMarkers.Open
	}
	if c.Markers.Close == "" {
		c.Markers.Close = DefaultMarkers.Close
	}
	if c.Nudge == "" {
		c.Nudge = InjectorWait
	}
	if c.Temperature == nil {
		t := DefaultTemperature
		c.Temperature = &t
	}
	if c.AnswerMaxTokens <= 0 {
		c.AnswerMaxTokens = DefaultAnswerMaxTokens
	}
	if c.BaselineMaxTokens <= 0 {
		c.BaselineMaxTokens = DefaultBaselineMaxTokens
	}
	return c
}

// Defaults fills zero-value fields in place.
func (c *Config) Defaults() {
	*c = c.withDefaults()
}

// Validate reports every configuration problem.
func (c Config) Validate() error {
	var errs []error
	if c.Budget < 0 {
		errs = append(errs, fmt.Errorf("thinking: budget must not be negative, got %d", c.Budget))
	}
	if c.MinThinkingTokens < 0 {
		errs = append(errs, fmt.Errorf("thinking: min_thinking_tokens must not be negative, got %d", c.MinThinkingTokens))
	}
	if c.Markers.Open != "" && c.Markers.Open == c.Markers.Close {
		errs = append(errs, errors.New("thinking: open and close markers must differ"))
	}
	if c.Temperature != nil && (*c.Temperature < 0 || *c.Temperature > 2) {
		errs = append(errs, fmt.Errorf("thinking: temperature must be in [0, 2], got %v", *c.Temperature))
	}
	if c.TopP < 0 || c.TopP > 1 {
		errs = append(errs, fmt.Errorf("thinking: top_p must be in [0, 1], got %v", c.TopP))
	}
	if _, err := NewInjector(c.Nudge, c.NudgeText, c.Nudges); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// SamplingPolicy derives the per-phase sampling builder from c.
func (c Config) SamplingPolicy() SamplingPolicy {
	c = c.withDefaults()
	return SamplingPolicy{
		Temperature:       *c.Temperature,
		TopP:              c.TopP,
		CloseMarker:       c.Markers.Close,
		AnswerMaxTokens:   c.AnswerMaxTokens,
		BaselineMaxTokens: c.BaselineMaxTokens,
	}
}
