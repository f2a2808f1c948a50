// Package vllm implements engine.Engine against the OpenAI-compatible
// /completions endpoint of a vLLM server. Raw text completion is required
// so the controller can continue a partial reasoning transcript.
package vllm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/flemzord/budgetforce/internal/engine"
)

// Engine is a vLLM completions client.
type Engine struct {
	config Config
	client *http.Client
	logger *slog.Logger
}

// New creates an Engine. cfg is defaulted and validated. A nil client uses
// a transport with a response-header timeout; per-call deadlines come from
// the context.
func New(cfg Config, client *http.Client, logger *slog.Logger) (*Engine, error) {
	cfg.Defaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if client == nil {
		client = &http.Client{
			Transport: &http.Transport{
				ResponseHeaderTimeout: cfg.Timeout,
			},
		}
	}
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{config: cfg, client: client, logger: logger}, nil
}

// Generate implements engine.Engine.
func (e *Engine) Generate(ctx context.Context, prompt string, s engine.Sampling) (engine.Result, error) {
	// vLLM rejects max_tokens=0.
	if s.MaxTokens <= 0 {
		return engine.Empty(), nil
	}

	resp, err := e.doRequest(ctx, http.MethodPost, "/completions", buildRequest(e.config.Model, prompt, s))
	if err != nil {
		return engine.Result{}, err
	}
	defer resp.Body.Close() //nolint:errcheck // best-effort close

	if resp.StatusCode != http.StatusOK {
		return engine.Result{}, handleErrorResponse(resp)
	}

	var cr completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		if ctx.Err() != nil {
			return engine.Result{}, ctx.Err()
		}
		return engine.Result{}, fmt.Errorf("%w: decode: %w", engine.ErrMalformedResponse, err)
	}

	res, err := parseResponse(cr)
	if err != nil {
		return engine.Result{}, err
	}
	e.logger.Debug("vllm completion",
		"model", e.config.Model,
		"max_tokens", s.MaxTokens,
		"stop_reason", res.StopReason,
		"completion_tokens", res.Usage.CompletionTokens,
	)
	return res, nil
}

// ModelName implements engine.Engine.
func (e *Engine) ModelName() string {
	return e.config.Model
}

// HealthCheck implements engine.HealthChecker by probing /models.
func (e *Engine) HealthCheck(ctx context.Context) error {
	resp, err := e.doRequest(ctx, http.MethodGet, "/models", nil)
	if err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	defer resp.Body.Close()               //nolint:errcheck // best-effort close
	_, _ = io.Copy(io.Discard, resp.Body) // drain body

	if resp.StatusCode >= 400 {
		return fmt.Errorf("%w: health check returned HTTP %d", engine.ErrEngineUnavailable, resp.StatusCode)
	}
	return nil
}

// Compile-time interface assertions.
var (
	_ engine.Engine        = (*Engine)(nil)
	_ engine.HealthChecker = (*Engine)(nil)
)
