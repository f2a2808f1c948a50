package runs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flemzord/budgetforce/internal/thinking"
)

func TestInMemoryStore(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewInMemoryStore()
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, id := range []string{"a", "b", "c"} {
		run := Run{
			ID:         id,
			Mode:       ModeThink,
			Status:     StatusDone,
			StartedAt:  base.Add(time.Duration(i) * time.Hour),
			FinishedAt: base.Add(time.Duration(i)*time.Hour + time.Minute),
			Answer:     &thinking.FinalAnswer{IterationCount: i},
		}
		if err := s.Save(ctx, run); err != nil {
			t.Fatalf("Save(%s): %v", id, err)
		}
	}

	list, err := s.List(ctx, ListOptions{Limit: 2})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 || list[0].ID != "c" || list[1].ID != "b" {
		t.Errorf("List() = %+v, want c, b", list)
	}
	if list[0].IterationCount != 2 || list[0].Duration != time.Minute {
		t.Errorf("summary = %+v", list[0])
	}

	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get(missing) error = %v, want ErrNotFound", err)
	}

	n, err := s.Prune(ctx, base.Add(90*time.Minute))
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 2 {
		t.Errorf("Prune() = %d, want 2", n)
	}
	if _, err := s.Get(ctx, "c"); err != nil {
		t.Errorf("Get(c) after prune: %v", err)
	}
}

func TestStatusOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		fa   *thinking.FinalAnswer
		err  error
		want Status
	}{
		{"error", nil, errors.New("x"), StatusFailed},
		{"nil answer", nil, nil, StatusFailed},
		{"degraded", &thinking.FinalAnswer{DegradedExtraction: true}, nil, StatusDegraded},
		{"done", &thinking.FinalAnswer{}, nil, StatusDone},
	}
	for _, tt := range tests {
		if got := StatusOf(tt.fa, tt.err); got != tt.want {
			t.Errorf("%s: StatusOf() = %q, want %q", tt.name, got, tt.want)
		}
	}
}
