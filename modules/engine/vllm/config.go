package vllm

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"
)

// DefaultTimeout bounds the wait for response headers. Completions with a
// large max_tokens can take minutes, so the default is generous.
const DefaultTimeout = 10 * time.Minute

// Config holds the configuration for a vLLM completions endpoint.
type Config struct {
	// BaseURL is the OpenAI-compatible API root, e.g. http://localhost:8000/v1.
	BaseURL string `yaml:"base_url"`
	// APIKey is optional; vLLM only checks it when started with --api-key.
	APIKey    string            `yaml:"api_key"`
	APIKeyEnv string            `yaml:"api_key_env"`
	Model     string            `yaml:"model"`
	Headers   map[string]string `yaml:"headers"`
	Timeout   time.Duration     `yaml:"timeout"`
}

// Defaults sets default values for unset fields and resolves api_key_env.
func (c *Config) Defaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.BaseURL != "" {
		c.BaseURL = strings.TrimRight(c.BaseURL, "/")
	}
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
}

// Validate returns an error if required fields are missing or invalid.
func (c *Config) Validate() error {
	if c.BaseURL == "" {
		return errMissingField("base_url")
	}
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return fmt.Errorf("vllm: base_url is not a valid URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("vllm: base_url scheme must be http or https, got %q", u.Scheme)
	}
	if c.Model == "" {
		return errMissingField("model")
	}
	if c.Timeout < 0 {
		return errors.New("vllm: timeout must not be negative")
	}
	return nil
}

// errMissingField returns a validation error for a missing required field.
func errMissingField(field string) error {
	return fmt.Errorf("vllm: %s is required", field)
}
