// Package tokens provides the canonical token counters used for budget
// accounting. Every counter is pure: the same text always yields the same
// count, regardless of call order.
package tokens

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// Counter counts tokens in text.
type Counter interface {
	Count(text string) int
}

// Counter kinds accepted by NewCounter.
const (
	KindTiktoken = "tiktoken"
	KindEstimate = "estimate"
)

// DefaultCharsPerToken is the rune-per-token ratio used by EstimatingCounter.
const DefaultCharsPerToken = 4

// ErrUnknownKind is returned by NewCounter for an unrecognized kind.
var ErrUnknownKind = errors.New("tokens: unknown counter kind")

// Config selects and tunes a counter.
type Config struct {
	// Kind is "tiktoken" or "estimate". Defaults to "tiktoken".
	Kind string `yaml:"kind"`

	// Encoding is the BPE encoding for the tiktoken counter.
	// Defaults to cl100k_base.
	Encoding string `yaml:"encoding"`

	// CharsPerToken is the ratio for the estimating counter. Defaults to 4.
	CharsPerToken int `yaml:"chars_per_token"`
}

// Defaults fills zero-value fields.
func (c *Config) Defaults() {
	if c.Kind == "" {
		c.Kind = KindTiktoken
	}
	if c.Encoding == "" {
		c.Encoding = DefaultEncoding
	}
	if c.CharsPerToken <= 0 {
		c.CharsPerToken = DefaultCharsPerToken
	}
}

// Validate reports configuration problems.
func (c *Config) Validate() error {
	switch c.Kind {
	case KindTiktoken, KindEstimate:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownKind, c.Kind)
	}
	if c.CharsPerToken < 0 {
		return fmt.Errorf("tokens: chars_per_token must not be negative, got %d", c.CharsPerToken)
	}
	return nil
}

// NewCounter builds the counter described by cfg.
func NewCounter(cfg Config) (Counter, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Kind {
	case KindEstimate:
		return EstimatingCounter{CharsPerToken: cfg.CharsPerToken}, nil
	default:
		return NewTiktokenCounter(cfg.Encoding)
	}
}

// EstimatingCounter approximates tokens as runes divided by CharsPerToken,
// rounded up. It needs no vocabulary files.
type EstimatingCounter struct {
	CharsPerToken int
}

// Count implements Counter.
func (e EstimatingCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = DefaultCharsPerToken
	}
	runes := utf8.RuneCountInString(text)
	return (runes + ratio - 1) / ratio
}

var _ Counter = EstimatingCounter{}
