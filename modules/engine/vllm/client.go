package vllm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/flemzord/budgetforce/internal/engine"
)

// completions wire types.

type completionRequest struct {
	Model       string   `json:"model"`
	Prompt      string   `json:"prompt"`
	MaxTokens   int      `json:"max_tokens"`
	Temperature float64  `json:"temperature"`
	TopP        *float64 `json:"top_p,omitempty"`
	Stop        []string `json:"stop,omitempty"`
	// vLLM extension; nil leaves the server default (true).
	SkipSpecialTokens *bool `json:"skip_special_tokens,omitempty"`
}

type completionResponse struct {
	Choices []completionChoice `json:"choices"`
	Usage   completionUsage    `json:"usage"`
}

type completionChoice struct {
	// Text is a pointer so a missing field can be told apart from an
	// empty completion.
	Text         *string `json:"text"`
	FinishReason string  `json:"finish_reason"`
	// StopReason is the matched stop string, the stop token id, or null.
	StopReason json.RawMessage `json:"stop_reason"`
}

type completionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// buildRequest converts sampling parameters into a completions request.
func buildRequest(model, prompt string, s engine.Sampling) completionRequest {
	req := completionRequest{
		Model:       model,
		Prompt:      prompt,
		MaxTokens:   s.MaxTokens,
		Temperature: s.Temperature,
	}
	if s.TopP > 0 {
		topP := s.TopP
		req.TopP = &topP
	}
	if s.Stop != "" {
		req.Stop = []string{s.Stop}
	}
	if s.PreserveStructuralTokens {
		skip := false
		req.SkipSpecialTokens = &skip
	}
	return req
}

// parseResponse converts the first choice into an engine.Result.
func parseResponse(resp completionResponse) (engine.Result, error) {
	if len(resp.Choices) == 0 {
		return engine.Result{}, fmt.Errorf("%w: no choices", engine.ErrMalformedResponse)
	}
	choice := resp.Choices[0]
	if choice.Text == nil {
		return engine.Result{}, fmt.Errorf("%w: missing text", engine.ErrMalformedResponse)
	}
	return engine.Result{
		Text:       *choice.Text,
		StopReason: mapStopReason(choice.FinishReason, choice.StopReason),
		Usage: engine.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}

// mapStopReason classifies a choice. vLLM reports finish_reason "stop" both
// for a matched stop string and for end of sequence; only the former sets
// stop_reason to a JSON string.
func mapStopReason(finish string, stopReason json.RawMessage) engine.StopReason {
	if finish == "length" {
		return engine.StopReasonLength
	}
	var matched string
	if len(stopReason) > 0 && json.Unmarshal(stopReason, &matched) == nil && matched != "" {
		return engine.StopReasonMarker
	}
	return engine.StopReasonNatural
}

// doRequest executes an HTTP request against the API root.
func (e *Engine) doRequest(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, e.config.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if e.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+e.config.APIKey)
	}
	for k, v := range e.config.Headers {
		req.Header.Set(k, v)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		// Caller cancellation is not an engine failure and must not
		// degrade health.
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %w", engine.ErrEngineUnavailable, err)
	}
	return resp, nil
}

// maxErrorBodySize caps how much of an error response body is read.
const maxErrorBodySize = 4096

// handleErrorResponse maps HTTP error status codes to sentinel errors.
func handleErrorResponse(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w: %s", engine.ErrEngineUnavailable, engine.ErrRateLimit, body)
	case resp.StatusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", engine.ErrEngineUnavailable, resp.StatusCode, body)
	case resp.StatusCode == http.StatusBadRequest:
		if isContextLengthError(body) {
			return fmt.Errorf("%w: %s", engine.ErrContextLength, body)
		}
		return fmt.Errorf("vllm: bad request: %s", body)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return fmt.Errorf("%w: HTTP %d: %s", engine.ErrAuthentication, resp.StatusCode, body)
	default:
		return fmt.Errorf("vllm: unexpected status %d: %s", resp.StatusCode, body)
	}
}

func isContextLengthError(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "context length") ||
		strings.Contains(lower, "maximum context") ||
		strings.Contains(lower, "context_length_exceeded")
}
