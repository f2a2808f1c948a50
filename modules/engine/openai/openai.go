// Package openai implements engine.Engine on top of the official OpenAI Go
// SDK's legacy completions API. It targets OpenAI-compatible servers that
// continue raw prompts (vLLM, SGLang, llama.cpp server) and passes the
// engine-specific body fields through the SDK's extra-field options.
package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/flemzord/budgetforce/internal/engine"
)

// DefaultTimeout bounds a single completions request.
const DefaultTimeout = 10 * time.Minute

// Config holds the configuration of the SDK-backed engine.
type Config struct {
	BaseURL   string        `yaml:"base_url"`
	APIKey    string        `yaml:"api_key"`
	APIKeyEnv string        `yaml:"api_key_env"`
	Model     string        `yaml:"model"`
	Timeout   time.Duration `yaml:"timeout"`
}

// Defaults sets default values and resolves api_key_env.
func (c *Config) Defaults() {
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.APIKey == "" && c.APIKeyEnv != "" {
		c.APIKey = os.Getenv(c.APIKeyEnv)
	}
	// Local servers ignore the key, but the SDK requires one.
	if c.APIKey == "" {
		c.APIKey = "EMPTY"
	}
}

// Validate returns an error if required fields are missing or invalid.
func (c *Config) Validate() error {
	if c.Model == "" {
		return errors.New("openai: model is required")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			return fmt.Errorf("openai: base_url must be an http(s) URL, got %q", c.BaseURL)
		}
	}
	return nil
}

// Engine generates completions through openai-go.
type Engine struct {
	client openai.Client
	model  string
	logger *slog.Logger
}

// New creates an Engine. A nil httpClient uses the SDK default. SDK-level
// retries are disabled; engine.Retrying owns retry policy.
func New(cfg Config, httpClient *http.Client, logger *slog.Logger) (*Engine, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(cfg.Timeout),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	if httpClient != nil {
		opts = append(opts, option.WithHTTPClient(httpClient))
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{
		client: openai.NewClient(opts...),
		model:  cfg.Model,
		logger: logger,
	}, nil
}

// Generate implements engine.Engine.
func (e *Engine) Generate(ctx context.Context, prompt string, s engine.Sampling) (engine.Result, error) {
	if s.MaxTokens <= 0 {
		return engine.Empty(), nil
	}

	params := openai.CompletionNewParams{
		Model:       openai.CompletionNewParamsModel(e.model),
		Prompt:      openai.CompletionNewParamsPromptUnion{OfString: openai.String(prompt)},
		MaxTokens:   openai.Int(int64(s.MaxTokens)),
		Temperature: openai.Float(s.Temperature),
	}
	if s.TopP > 0 {
		params.TopP = openai.Float(s.TopP)
	}
	if s.Stop != "" {
		params.Stop = openai.CompletionNewParamsStopUnion{OfString: openai.String(s.Stop)}
	}

	var reqOpts []option.RequestOption
	if s.PreserveStructuralTokens {
		reqOpts = append(reqOpts, option.WithJSONSet("skip_special_tokens", false))
	}

	completion, err := e.client.Completions.New(ctx, params, reqOpts...)
	if err != nil {
		return engine.Result{}, classify(ctx, err)
	}
	if len(completion.Choices) == 0 {
		return engine.Result{}, fmt.Errorf("%w: no choices", engine.ErrMalformedResponse)
	}
	choice := completion.Choices[0]
	if !choice.JSON.Text.Valid() {
		return engine.Result{}, fmt.Errorf("%w: missing text", engine.ErrMalformedResponse)
	}

	res := engine.Result{
		Text:       choice.Text,
		StopReason: stopReason(string(choice.FinishReason), choice.JSON.ExtraFields["stop_reason"].Raw()),
		Usage: engine.Usage{
			PromptTokens:     int(completion.Usage.PromptTokens),
			CompletionTokens: int(completion.Usage.CompletionTokens),
		},
	}
	e.logger.Debug("openai completion",
		"model", e.model,
		"max_tokens", s.MaxTokens,
		"stop_reason", res.StopReason,
	)
	return res, nil
}

// ModelName implements engine.Engine.
func (e *Engine) ModelName() string {
	return e.model
}

// HealthCheck implements engine.HealthChecker by listing models.
func (e *Engine) HealthCheck(ctx context.Context) error {
	if _, err := e.client.Models.List(ctx); err != nil {
		return fmt.Errorf("health check: %w", classify(ctx, err))
	}
	return nil
}

// stopReason maps finish_reason and the raw vLLM stop_reason extension. A
// JSON string stop_reason is the matched stop sequence.
func stopReason(finish, rawStop string) engine.StopReason {
	switch {
	case finish == "length":
		return engine.StopReasonLength
	case strings.HasPrefix(rawStop, `"`) && rawStop != `""`:
		return engine.StopReasonMarker
	default:
		return engine.StopReasonNatural
	}
}

// classify maps SDK errors onto the engine sentinels.
func classify(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		if isDecodeError(err) {
			return fmt.Errorf("%w: %w", engine.ErrMalformedResponse, err)
		}
		return fmt.Errorf("%w: %w", engine.ErrEngineUnavailable, err)
	}
	switch {
	case apiErr.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %w", engine.ErrEngineUnavailable, engine.ErrRateLimit, err)
	case apiErr.StatusCode >= 500:
		return fmt.Errorf("%w: %w", engine.ErrEngineUnavailable, err)
	case apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %w", engine.ErrAuthentication, err)
	case apiErr.StatusCode == http.StatusBadRequest && strings.Contains(strings.ToLower(err.Error()), "context length"):
		return fmt.Errorf("%w: %w", engine.ErrContextLength, err)
	default:
		return fmt.Errorf("openai: %w", err)
	}
}

// isDecodeError reports whether err comes from decoding a successful
// response body rather than from the transport.
func isDecodeError(err error) bool {
	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
	)
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return true
	}
	return strings.Contains(err.Error(), "parsing response json")
}

// Compile-time interface assertions.
var (
	_ engine.Engine        = (*Engine)(nil)
	_ engine.HealthChecker = (*Engine)(nil)
)
