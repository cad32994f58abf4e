package monitor

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"uptime-sentry/internal/checker"
	"uptime-sentry/internal/db"
	"uptime-sentry/internal/events"
	"uptime-sentry/internal/incident"
	"uptime-sentry/internal/metrics"
	"uptime-sentry/internal/stats"
	"uptime-sentry/internal/store"
)

func newTestEngine(t *testing.T) (*Engine, *store.MemoryStore) {
	t.Helper()
	s := store.NewMemoryStore()
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	e := NewEngine(
		s,
		checker.New(checker.Options{}),
		incident.NewDetector(s),
		stats.NewAggregator(s),
		bus,
		metrics.New(),
		EngineConfig{Tick: time.Hour, BatchSize: 5, BatchDelay: 10 * time.Millisecond},
	)
	return e, s
}

func testMonitor(id, rawURL string) *db.Monitor {
	return &db.Monitor{
		ID:       id,
		OwnerID:  "alice",
		URL:      rawURL,
		Name:     id,
		Type:     db.TypeHTTP,
		Interval: 60,
		Timeout:  5,
		IsActive: true,
		Status:   db.StatusUp,
	}
}

func TestEngine_enqueueDeduplicates(t *testing.T) {
	e, _ := newTestEngine(t)

	if !e.enqueue("m1") {
		t.Fatal("first enqueue rejected")
	}
	if e.enqueue("m1") {
		t.Error("duplicate enqueue accepted")
	}
	if got := e.QueueSize(); got != 1 {
		t.Errorf("queue size = %d, want 1", got)
	}
}

func TestEngine_removeDropsPending(t *testing.T) {
	e, _ := newTestEngine(t)

	e.enqueue("m1")
	e.enqueue("m2")
	e.Remove("m1")

	if got := e.QueueSize(); got != 1 {
		t.Errorf("queue size = %d, want 1", got)
	}
	// The removed id can be queued again.
	if !e.enqueue("m1") {
		t.Error("re-enqueue after remove rejected")
	}
}

func TestEngine_checkNowRecordsResult(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, s := newTestEngine(t)
	ctx := context.Background()
	s.CreateMonitor(ctx, testMonitor("m1", srv.URL))

	result, err := e.CheckNow(ctx, "m1")
	if err != nil {
		t.Fatalf("check now: %s", err)
	}
	if !result.Status {
		t.Errorf("expected up result, got error %q", result.Error)
	}

	m, _ := s.GetMonitor(ctx, "m1")
	if m.Status != db.StatusUp {
		t.Errorf("status = %s, want up", m.Status)
	}
	if m.LastCheck == nil {
		t.Error("last check not recorded")
	}
	if m.LastStatusCode != http.StatusOK {
		t.Errorf("last status code = %d, want 200", m.LastStatusCode)
	}

	history, _ := s.ListCheckResults(ctx, "m1", 0)
	if len(history) != 1 {
		t.Errorf("history length = %d, want 1", len(history))
	}
	if got := e.QueueSize(); got != 0 {
		t.Errorf("queue size after check = %d, want 0", got)
	}
}

func TestEngine_failureCounterAndRecovery(t *testing.T) {
	var failing atomic.Bool
	failing.Store(true)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if failing.Load() {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, s := newTestEngine(t)
	ctx := context.Background()
	s.CreateMonitor(ctx, testMonitor("m1", srv.URL))

	for i := 1; i <= 2; i++ {
		if _, err := e.CheckNow(ctx, "m1"); err != nil {
			t.Fatalf("failing check %d: %s", i, err)
		}
		m, _ := s.GetMonitor(ctx, "m1")
		if m.Status != db.StatusDown {
			t.Fatalf("after failure %d status = %s, want down", i, m.Status)
		}
		if m.FailuresInARow != i {
			t.Errorf("after failure %d counter = %d, want %d", i, m.FailuresInARow, i)
		}
	}

	// One incident for the whole outage, opened on the first edge.
	incidents, _ := s.ListIncidents(ctx, "m1", 0)
	if len(incidents) != 1 {
		t.Fatalf("incidents = %d, want 1", len(incidents))
	}
	if incidents[0].Status != db.IncidentOpen {
		t.Errorf("incident status = %s, want open", incidents[0].Status)
	}

	failing.Store(false)
	if _, err := e.CheckNow(ctx, "m1"); err != nil {
		t.Fatalf("recovery check: %s", err)
	}

	m, _ := s.GetMonitor(ctx, "m1")
	if m.Status != db.StatusUp {
		t.Errorf("status after recovery = %s, want up", m.Status)
	}
	if m.FailuresInARow != 0 {
		t.Errorf("counter after recovery = %d, want 0", m.FailuresInARow)
	}

	incidents, _ = s.ListIncidents(ctx, "m1", 0)
	if len(incidents) != 1 || incidents[0].Status != db.IncidentResolved {
		t.Errorf("expected single resolved incident, got %+v", incidents)
	}
}

func TestEngine_resultDiscardedAfterDelete(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, s := newTestEngine(t)
	ctx := context.Background()
	m := testMonitor("m1", srv.URL)
	s.CreateMonitor(ctx, m)

	// Simulate a delete racing the in-flight probe: the engine still
	// holds the loaded monitor, but the store no longer knows it.
	if err := s.DeleteMonitor(ctx, "m1"); err != nil {
		t.Fatalf("delete: %s", err)
	}

	result, err := e.performCheck(ctx, m)
	if err != nil {
		t.Fatalf("perform check: %s", err)
	}
	if result != nil {
		t.Errorf("expected discarded result, got %+v", result)
	}

	history, _ := s.ListCheckResults(ctx, "m1", 0)
	if len(history) != 0 {
		t.Errorf("discarded check was persisted: %d entries", len(history))
	}
}

func TestEngine_checkNowMissingMonitor(t *testing.T) {
	e, _ := newTestEngine(t)
	if _, err := e.CheckNow(context.Background(), "nope"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestEngine_tickSkipsPausedAndFresh(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	e, s := newTestEngine(t)
	ctx := context.Background()

	due := testMonitor("due", srv.URL)
	s.CreateMonitor(ctx, due)

	paused := testMonitor("paused", srv.URL)
	paused.IsActive = false
	s.CreateMonitor(ctx, paused)

	recent := testMonitor("recent", srv.URL)
	now := time.Now()
	recent.LastCheck = &now
	s.CreateMonitor(ctx, recent)

	e.Tick()

	deadline := time.After(2 * time.Second)
	for e.QueueSize() > 0 {
		select {
		case <-deadline:
			t.Fatal("queue did not drain")
		case <-time.After(10 * time.Millisecond):
		}
	}

	checks, _ := s.ListCheckResults(ctx, "due", 0)
	if len(checks) != 1 {
		t.Errorf("due monitor checks = %d, want 1", len(checks))
	}
	checks, _ = s.ListCheckResults(ctx, "paused", 0)
	if len(checks) != 0 {
		t.Errorf("paused monitor checks = %d, want 0", len(checks))
	}
	checks, _ = s.ListCheckResults(ctx, "recent", 0)
	if len(checks) != 0 {
		t.Errorf("recently checked monitor checks = %d, want 0", len(checks))
	}
}

func TestIsDue(t *testing.T) {
	now := time.Now()
	past := now.Add(-2 * time.Minute)
	fresh := now.Add(-10 * time.Second)

	tests := []struct {
		name      string
		lastCheck *time.Time
		interval  int
		want      bool
	}{
		{"never checked", nil, 60, true},
		{"interval elapsed", &past, 60, true},
		{"interval pending", &fresh, 60, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := &db.Monitor{Interval: tt.interval, LastCheck: tt.lastCheck}
			if got := isDue(m, now); got != tt.want {
				t.Errorf("isDue() = %v, want %v", got, tt.want)
			}
		})
	}
}
