package engine

import "errors"

// Sentinel errors for engine operations.
var (
	// ErrEngineUnavailable indicates a transport or server-side failure.
	ErrEngineUnavailable = errors.New("engine unavailable")

	// ErrRateLimit indicates the engine rejected the request for load.
	// Errors wrapping it are retryable.
	ErrRateLimit = errors.New("engine rate limited")

	// ErrMalformedResponse indicates a response missing required fields.
	ErrMalformedResponse = errors.New("malformed engine response")

	// ErrContextLength indicates the prompt exceeded the model's context window.
	ErrContextLength = errors.New("context length exceeded")

	// ErrAuthentication indicates rejected credentials.
	ErrAuthentication = errors.New("engine authentication failed")
)

// IsRetryable reports whether err is transient and the call may be repeated.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrEngineUnavailable) || errors.Is(err, ErrRateLimit)
}
