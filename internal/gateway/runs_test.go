package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/flemzord/budgetforce/internal/runs"
)

func seededStore(t *testing.T) runs.Store {
	t.Helper()
	s := runs.NewInMemoryStore()
	base := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	for i, r := range []runs.Run{
		{ID: "a", Mode: runs.ModeThink, Status: runs.StatusDone},
		{ID: "b", Mode: runs.ModeBaseline, Status: runs.StatusDone},
		{ID: "c", Mode: runs.ModeThink, Status: runs.StatusFailed, Error: "boom"},
	} {
		r.StartedAt = base.Add(time.Duration(i) * time.Minute)
		r.FinishedAt = r.StartedAt.Add(time.Second)
		if err := s.Save(context.Background(), r); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	return s
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
	return rr
}

func TestListRuns(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, Config{}, Deps{Store: seededStore(t)})

	tests := []struct {
		query string
		want  []string
	}{
		{"", []string{"c", "b", "a"}},
		{"?mode=think", []string{"c", "a"}},
		{"?status=failed", []string{"c"}},
		{"?limit=1", []string{"c"}},
	}
	for _, tt := range tests {
		rr := get(t, g.Handler(), "/v1/runs"+tt.query)
		if rr.Code != http.StatusOK {
			t.Fatalf("%s: status = %d", tt.query, rr.Code)
		}
		var list []runs.Summary
		if err := json.NewDecoder(rr.Body).Decode(&list); err != nil {
			t.Fatalf("decode: %v", err)
		}
		var ids []string
		for _, s := range list {
			ids = append(ids, s.ID)
		}
		if len(ids) != len(tt.want) {
			t.Errorf("%s: ids = %v, want %v", tt.query, ids, tt.want)
			continue
		}
		for i := range ids {
			if ids[i] != tt.want[i] {
				t.Errorf("%s: ids = %v, want %v", tt.query, ids, tt.want)
				break
			}
		}
	}

	if rr := get(t, g.Handler(), "/v1/runs?limit=x"); rr.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", rr.Code)
	}
}

func TestGetRun(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, Config{}, Deps{Store: seededStore(t)})

	rr := get(t, g.Handler(), "/v1/runs/c")
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var run runs.Run
	_ = json.NewDecoder(rr.Body).Decode(&run)
	if run.ID != "c" || run.Error != "boom" {
		t.Errorf("run = %+v", run)
	}

	if rr := get(t, g.Handler(), "/v1/runs/missing"); rr.Code != http.StatusNotFound {
		t.Errorf("missing status = %d, want 404", rr.Code)
	}
}

func TestRuns_StoreDisabled(t *testing.T) {
	t.Parallel()

	g := newTestGateway(t, Config{}, Deps{})
	if rr := get(t, g.Handler(), "/v1/runs"); rr.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rr.Code)
	}
}
