package gateway

import (
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/flemzord/budgetforce/internal/security"
)

// Config holds HTTP gateway configuration.
type Config struct {
	Bind string     `yaml:"bind"`
	Auth AuthConfig `yaml:"auth"`

	RateLimit security.RateLimitConfig `yaml:"rate_limit"`

	// MaxBodySize caps request bodies in bytes. Default: 1 MiB.
	MaxBodySize int `yaml:"max_body_size"`

	// MaxBudget rejects requests asking for more thinking tokens. Zero
	// means no cap.
	MaxBudget int `yaml:"max_budget"`

	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout must outlast a full session. Default: 35m.
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// Defaults fills zero values.
func (c *Config) Defaults() {
	if c.Bind == "" {
		c.Bind = "127.0.0.1:8080"
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = security.DefaultMaxBodySize
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 35 * time.Minute
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// Validate checks the bind address and limits.
func (c *Config) Validate() error {
	if _, err := net.ResolveTCPAddr("tcp", c.Bind); err != nil {
		return errors.New("gateway: invalid bind address: " + c.Bind)
	}
	if c.MaxBudget < 0 {
		return fmt.Errorf("gateway: max_budget must be non-negative, got %d", c.MaxBudget)
	}
	return nil
}

// AuthConfig configures authentication for /v1 endpoints.
type AuthConfig struct {
	BearerToken string `yaml:"bearer_token"`
	BasicUser   string `yaml:"basic_user"`
	BasicPass   string `yaml:"basic_pass"`
}

// IsConfigured returns true if any auth method is configured.
func (a AuthConfig) IsConfigured() bool {
	return a.BearerToken != "" || (a.BasicUser != "" && a.BasicPass != "")
}
