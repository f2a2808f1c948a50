package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/flemzord/budgetforce/internal/runs"
	"github.com/flemzord/budgetforce/internal/thinking"
)

// Save inserts or replaces a run and its events in one transaction.
func (s *Store) Save(ctx context.Context, run runs.Run) error {
	var answerJSON []byte
	var iterations, thinkingTokens int
	var boxed string
	if run.Answer != nil {
		var err error
		if answerJSON, err = json.Marshal(run.Answer); err != nil {
			return fmt.Errorf("sqlite: marshal answer: %w", err)
		}
		iterations = run.Answer.IterationCount
		thinkingTokens = run.Answer.ThinkingTokenCount
		boxed = run.Answer.BoxedAnswer
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	_, err = tx.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs (id, mode, model, input, budget, status,
			iteration_count, thinking_tokens, boxed_answer, answer, error,
			started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Mode), run.Model, run.Input, run.Budget, string(run.Status),
		iterations, thinkingTokens, boxed, string(answerJSON), run.Error,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: save run: %w", err)
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM events WHERE run_id = ?", run.ID); err != nil {
		return fmt.Errorf("sqlite: clear events: %w", err)
	}
	for _, e := range run.Events {
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("sqlite: marshal event: %w", err)
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO events (run_id, seq, kind, payload) VALUES (?, ?, ?, ?)",
			run.ID, e.Seq, string(e.Kind), string(payload),
		); err != nil {
			return fmt.Errorf("sqlite: save event: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: commit: %w", err)
	}
	return nil
}

// Get returns the run with its events.
func (s *Store) Get(ctx context.Context, id string) (runs.Run, error) {
	var (
		run                runs.Run
		mode, status       string
		answerJSON, boxed  string
		started, finished  int64
		iterations, tokens int
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT id, mode, model, input, budget, status, iteration_count,
			thinking_tokens, boxed_answer, answer, error, started_at, finished_at
		FROM runs WHERE id = ?`, id,
	).Scan(&run.ID, &mode, &run.Model, &run.Input, &run.Budget, &status,
		&iterations, &tokens, &boxed, &answerJSON, &run.Error, &started, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return runs.Run{}, runs.ErrNotFound
	}
	if err != nil {
		return runs.Run{}, fmt.Errorf("sqlite: get run: %w", err)
	}
	run.Mode = runs.Mode(mode)
	run.Status = runs.Status(status)
	run.StartedAt = time.Unix(0, started).UTC()
	run.FinishedAt = time.Unix(0, finished).UTC()
	if answerJSON != "" {
		var fa thinking.FinalAnswer
		if err := json.Unmarshal([]byte(answerJSON), &fa); err != nil {
			return runs.Run{}, fmt.Errorf("sqlite: unmarshal answer: %w", err)
		}
		run.Answer = &fa
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT payload FROM events WHERE run_id = ? ORDER BY seq", id)
	if err != nil {
		return runs.Run{}, fmt.Errorf("sqlite: get events: %w", err)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return runs.Run{}, fmt.Errorf("sqlite: scan event: %w", err)
		}
		var e thinking.Event
		if err := json.Unmarshal([]byte(payload), &e); err != nil {
			return runs.Run{}, fmt.Errorf("sqlite: unmarshal event: %w", err)
		}
		run.Events = append(run.Events, e)
	}
	if err := rows.Err(); err != nil {
		return runs.Run{}, fmt.Errorf("sqlite: iterate events: %w", err)
	}
	return run, nil
}

// List returns summaries, newest first.
func (s *Store) List(ctx context.Context, opts runs.ListOptions) ([]runs.Summary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = runs.DefaultListLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, mode, model, budget, status, iteration_count, thinking_tokens,
			boxed_answer, started_at, finished_at
		FROM runs
		WHERE (? = '' OR mode = ?) AND (? = '' OR status = ?)
		ORDER BY started_at DESC
		LIMIT ?`,
		string(opts.Mode), string(opts.Mode), string(opts.Status), string(opts.Status), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: list runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []runs.Summary
	for rows.Next() {
		var (
			sum               runs.Summary
			mode, status      string
			started, finished int64
		)
		if err := rows.Scan(&sum.ID, &mode, &sum.Model, &sum.Budget, &status,
			&sum.IterationCount, &sum.ThinkingTokens, &sum.BoxedAnswer, &started, &finished); err != nil {
			return nil, fmt.Errorf("sqlite: scan run: %w", err)
		}
		sum.Mode = runs.Mode(mode)
		sum.Status = runs.Status(status)
		sum.StartedAt = time.Unix(0, started).UTC()
		sum.Duration = time.Duration(finished - started)
		out = append(out, sum)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterate runs: %w", err)
	}
	return out, nil
}

// Prune deletes runs started before cutoff, with their events.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	ns := cutoff.UnixNano()
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM events WHERE run_id IN (SELECT id FROM runs WHERE started_at < ?)", ns); err != nil {
		return 0, fmt.Errorf("sqlite: prune events: %w", err)
	}
	res, err := tx.ExecContext(ctx, "DELETE FROM runs WHERE started_at < ?", ns)
	if err != nil {
		return 0, fmt.Errorf("sqlite: prune runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sqlite: rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return int(n), nil
}
