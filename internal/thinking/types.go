// Package thinking implements budget forcing: a controller that bounds how
// many tokens a reasoning model spends inside its reasoning block before it
// is forced to answer.
//
// A session moves through
//
//	INIT → THINKING → {BUDGET_EXCEEDED | FORCED_CLOSE} → FINAL_GENERATION → DONE
//
// re-invoking the engine with the full transcript on every iteration and
// recounting the reasoning region with the canonical token counter.
package thinking

import (
	"fmt"
	"strings"
)

// State is a controller state.
type State int

// Controller states.
const (
	StateInit State = iota
	StateThinking
	StateBudgetExceeded
	StateForcedClose
	StateFinalGeneration
	StateDone
	StateFailed
)

var stateNames = [...]string{
	StateInit:            "init",
	StateThinking:        "thinking",
	StateBudgetExceeded:  "budget_exceeded",
	StateForcedClose:     "forced_close",
	StateFinalGeneration: "final_generation",
	StateDone:            "done",
	StateFailed:          "failed",
}

// String returns the snake_case name of the state.
func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *State) UnmarshalText(b []byte) error {
	name := strings.ToLower(string(b))
	for i, n := range stateNames {
		if n == name {
			*s = State(i)
			return nil
		}
	}
	return fmt.Errorf("thinking: unknown state %q", b)
}

// ThinkingStop records how the reasoning phase ended.
type ThinkingStop string

// ThinkingStop values.
const (
	// StopModelClosed means the model closed its reasoning block within budget.
	StopModelClosed ThinkingStop = "model_closed"
	// StopBudgetExceeded means the controller forced the block closed.
	StopBudgetExceeded ThinkingStop = "budget_exceeded"
	// StopUnbounded marks baseline runs, which have no budget.
	StopUnbounded ThinkingStop = "unbounded"
)

// Request is the input to Controller.Run.
type Request struct {
	// ID identifies the session in traces and storage. Generated when empty.
	ID string
	// Input is the raw user input, rendered by the controller's Renderer.
	Input string
	// Budget is the thinking-token budget. Must be >= 0.
	Budget int
	// Observer receives this session's events in addition to the
	// controller-wide observers. Optional.
	Observer Observer
}

// Session is the mutable state of one controller run. It is owned by a
// single goroutine and discarded once the FinalAnswer is returned.
type Session struct {
	ID                       string
	Input                    string
	Prompt                   string
	Budget                   int
	PromptTokenCount         int
	CumulativeThinkingTokens int
	IterationCount           int
	Transcript               string
	State                    State
	ThinkingStop             ThinkingStop
}

// FinalAnswer is the sole result of a successful run.
type FinalAnswer struct {
	SessionID          string       `json:"session_id"`
	FullTranscript     string       `json:"full_transcript"`
	ThinkingSegment    string       `json:"thinking_segment"`
	AnswerSegment      string       `json:"answer_segment"`
	BoxedAnswer        string       `json:"boxed_answer,omitempty"`
	IterationCount     int          `json:"iteration_count"`
	PromptTokenCount   int          `json:"prompt_token_count"`
	ThinkingTokenCount int          `json:"thinking_token_count"`
	TotalTokenCount    int          `json:"total_token_count"`
	DegradedExtraction bool         `json:"degraded_extraction"`
	ThinkingStop       ThinkingStop `json:"thinking_stop"`
}

// Renderer turns raw user input into the prompt sent to the engine.
type Renderer interface {
	Render(input string) (string, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(input string) (string, error)

// Render implements Renderer.
func (f RendererFunc) Render(input string) (string, error) {
	return f(input)
}
