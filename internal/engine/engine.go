// Package engine defines the GenerationEngine contract consumed by the
// thinking controller, its error taxonomy, and decorators that add bounded
// retry, health tracking, tracing and metrics around any backend.
package engine

import "context"

// Engine is a synchronous request/response text generator.
// Concrete backends live under modules/engine.
type Engine interface {
	// Generate continues prompt under the given sampling parameters.
	//
	// Contract:
	//   - MaxTokens is a hard ceiling; zero yields an empty StopReasonLength result.
	//   - A matched Stop string truncates the output and reports StopReasonMarker.
	//   - Hitting the ceiling first reports StopReasonLength.
	//   - An end of sequence before either reports StopReasonNatural.
	Generate(ctx context.Context, prompt string, s Sampling) (Result, error)

	// ModelName returns the identifier of the served model.
	ModelName() string
}

// HealthChecker is implemented by backends that can be probed for
// availability while they are in cooldown.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// StopReason classifies why a generation call ended.
type StopReason string

// StopReason values.
const (
	StopReasonMarker  StopReason = "marker"
	StopReasonLength  StopReason = "length"
	StopReasonNatural StopReason = "natural"
)

// Valid reports whether r is one of the known stop reasons.
func (r StopReason) Valid() bool {
	switch r {
	case StopReasonMarker, StopReasonLength, StopReasonNatural:
		return true
	default:
		return false
	}
}

// Sampling holds the parameters for one generation phase. It is a value
// type; callers build a fresh one per phase.
type Sampling struct {
	Temperature float64
	// TopP is sent only when non-zero.
	TopP      float64
	MaxTokens int
	// Stop is the optional stop string. Empty means none.
	Stop string
	// PreserveStructuralTokens keeps special tokens such as reasoning
	// delimiters in the returned text.
	PreserveStructuralTokens bool
}

// Usage is the engine's own token accounting. It is informational only:
// budget decisions use the canonical tokens.Counter.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// Result is the outcome of one Generate call.
type Result struct {
	Text       string
	StopReason StopReason
	Usage      Usage
}

// Empty returns the result a conforming engine yields for a zero ceiling.
func Empty() Result {
	return Result{StopReason: StopReasonLength}
}
