// Package runs defines the persisted record of a controller run and the
// Store contract implemented by the storage modules.
package runs

import (
	"context"
	"errors"
	"time"

	"github.com/flemzord/budgetforce/internal/thinking"
)

// ErrNotFound indicates the requested run does not exist.
var ErrNotFound = errors.New("runs: run not found")

// Mode distinguishes budget-forced runs from baseline runs.
type Mode string

// Mode values.
const (
	ModeThink    Mode = "think"
	ModeBaseline Mode = "baseline"
)

// Status is the outcome of a run.
type Status string

// Status values.
const (
	StatusDone     Status = "done"
	StatusDegraded Status = "degraded"
	StatusFailed   Status = "failed"
)

// StatusOf classifies the result of a controller call.
func StatusOf(fa *thinking.FinalAnswer, err error) Status {
	switch {
	case err != nil || fa == nil:
		return StatusFailed
	case fa.DegradedExtraction:
		return StatusDegraded
	default:
		return StatusDone
	}
}

// Run is one finished controller call with its iteration trace.
type Run struct {
	ID         string                `json:"id"`
	Mode       Mode                  `json:"mode"`
	Model      string                `json:"model"`
	Input      string                `json:"input"`
	Budget     int                   `json:"budget"`
	Status     Status                `json:"status"`
	Answer     *thinking.FinalAnswer `json:"answer,omitempty"`
	Error      string                `json:"error,omitempty"`
	Events     []thinking.Event      `json:"events,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// Summary is the list view of a Run.
type Summary struct {
	ID             string        `json:"id"`
	Mode           Mode          `json:"mode"`
	Model          string        `json:"model"`
	Budget         int           `json:"budget"`
	Status         Status        `json:"status"`
	IterationCount int           `json:"iteration_count"`
	ThinkingTokens int           `json:"thinking_tokens"`
	BoxedAnswer    string        `json:"boxed_answer,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration_ns"`
}

// Summary returns the list view of r.
func (r Run) Summary() Summary {
	s := Summary{
		ID:        r.ID,
		Mode:      r.Mode,
		Model:     r.Model,
		Budget:    r.Budget,
		Status:    r.Status,
		StartedAt: r.StartedAt,
		Duration:  r.FinishedAt.Sub(r.StartedAt),
	}
	if r.Answer != nil {
		s.IterationCount = r.Answer.IterationCount
		s.ThinkingTokens = r.Answer.ThinkingTokenCount
		s.BoxedAnswer = r.Answer.BoxedAnswer
	}
	return s
}

// ListOptions filters List. Zero values mean no filter.
type ListOptions struct {
	Limit  int
	Mode   Mode
	Status Status
}

// DefaultListLimit caps List when no limit is given.
const DefaultListLimit = 50

// Store persists runs. Implementations must be safe for concurrent use.
type Store interface {
	// Save inserts or replaces a run.
	Save(ctx context.Context, run Run) error

	// Get returns the run with its events, or ErrNotFound.
	Get(ctx context.Context, id string) (Run, error)

	// List returns summaries, newest first.
	List(ctx context.Context, opts ListOptions) ([]Summary, error)

	// Prune deletes runs started before cutoff and reports how many.
	Prune(ctx context.Context, cutoff time.Time) (int, error)
}
