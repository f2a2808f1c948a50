package thinking

import (
	"errors"
	"fmt"
)

// Sentinel errors for controller runs.
var (
	// ErrTokenCountRegression indicates the reasoning token count decreased
	// between iterations. The loop's progress depends on monotonic growth,
	// so the session is aborted.
	ErrTokenCountRegression = errors.New("thinking: token count regression")

	// ErrBudgetNeverSatisfied indicates the iteration safety cap was reached
	// before the budget was exceeded or the model closed its reasoning.
	ErrBudgetNeverSatisfied = errors.New("thinking: budget never satisfied")

	// ErrMarkerExtraction indicates the reasoning markers were missing or
	// malformed in the final text. It is never returned from Run; the
	// answer is flagged with DegradedExtraction instead.
	ErrMarkerExtraction = errors.New("thinking: marker extraction failed")

	// ErrInvalidBudget indicates a negative budget.
	ErrInvalidBudget = errors.New("thinking: budget must not be negative")

	// ErrThinkingDisabled indicates the rendered prompt already closes the
	// reasoning block, as chat templates do with thinking turned off. Such
	// prompts can only be used for baseline runs.
	ErrThinkingDisabled = errors.New("thinking: prompt already closes the reasoning block")

	// ErrRender indicates the prompt could not be rendered.
	ErrRender = errors.New("thinking: prompt rendering failed")
)

// SessionError describes an aborted session. It unwraps to the cause.
type SessionError struct {
	SessionID  string
	State      State
	Iteration  int
	Cumulative int
	Err        error
}

// Error implements error.
func (e *SessionError) Error() string {
	return fmt.Sprintf("thinking: session %s aborted in %s (iteration %d, %d thinking tokens): %v",
		e.SessionID, e.State, e.Iteration, e.Cumulative, e.Err)
}

// Unwrap returns the cause.
func (e *SessionError) Unwrap() error {
	return e.Err
}
