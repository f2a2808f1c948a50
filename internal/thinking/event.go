package thinking

import (
	"log/slog"
	"sync"
	"time"

	"github.com/flemzord/budgetforce/internal/engine"
)

// EventKind identifies a trace event.
type EventKind string

// EventKind values.
const (
	EventSessionStart    EventKind = "session_start"
	EventGenerate        EventKind = "generate"
	EventNudge           EventKind = "nudge"
	EventBudgetExceeded  EventKind = "budget_exceeded"
	EventForcedClose     EventKind = "forced_close"
	EventFinalGeneration EventKind = "final_generation"
	EventDone            EventKind = "done"
	EventFailed          EventKind = "failed"
)

// Event is one entry of a session's iteration trace.
type Event struct {
	SessionID  string            `json:"session_id"`
	Seq        int               `json:"seq"`
	Kind       EventKind         `json:"kind"`
	State      State             `json:"state"`
	Iteration  int               `json:"iteration"`
	Budget     int               `json:"budget"`
	MaxTokens  int               `json:"max_tokens,omitempty"`
	StopReason engine.StopReason `json:"stop_reason,omitempty"`
	Output     string            `json:"output,omitempty"`
	// EngineTokens is the engine's own completion-token count for the call.
	EngineTokens     int           `json:"engine_tokens,omitempty"`
	DeltaTokens      int           `json:"delta_tokens"`
	CumulativeTokens int           `json:"cumulative_tokens"`
	Err              string        `json:"error,omitempty"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	Time             time.Time     `json:"time"`
}

// Observer receives trace events. Observe is called synchronously from
// the session goroutine and must not block for long.
type Observer interface {
	Observe(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(e Event) { f(e) }

type multiObserver []Observer

func (m multiObserver) Observe(e Event) {
	for _, o := range m {
		o.Observe(e)
	}
}

// Recorder keeps every event in memory. Safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Observe implements Observer.
func (r *Recorder) Observe(e Event) {
	r.mu.Lock()
	r.events = append(r.events, e)
	r.mu.Unlock()
}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// LogObserver writes events to logger.
func LogObserver(logger *slog.Logger) Observer {
	return ObserverFunc(func(e Event) {
		attrs := []any{
			"session", e.SessionID,
			"state", e.State.String(),
			"iteration", e.Iteration,
			"cumulative_tokens", e.CumulativeTokens,
		}
		switch e.Kind {
		case EventGenerate:
			logger.Info("thinking iteration", append(attrs,
				"max_tokens", e.MaxTokens,
				"stop_reason", e.StopReason,
				"delta_tokens", e.DeltaTokens,
				"budget", e.Budget,
			)...)
		case EventFailed:
			logger.Warn("thinking session failed", append(attrs, "error", e.Err)...)
		case EventDone:
			logger.Info("thinking session done", append(attrs, "elapsed", e.Elapsed)...)
		default:
			logger.Debug("thinking "+string(e.Kind), attrs...)
		}
	})
}
