package store

import (
	"context"
	"sync"

	"uptime-sentry/internal/db"
)

// MemoryStore keeps everything in process memory behind one mutex.
// It backs tests and single-node deployments without Redis; the mutex
// makes every read-modify-write of a monitor atomic.
type MemoryStore struct {
	mu        sync.RWMutex
	monitors  map[string]*db.Monitor
	checks    map[string][]*db.CheckResult // newest first
	incidents map[string][]*db.Incident    // newest first
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		monitors:  make(map[string]*db.Monitor),
		checks:    make(map[string][]*db.CheckResult),
		incidents: make(map[string][]*db.Incident),
	}
}

func (s *MemoryStore) CreateMonitor(ctx context.Context, m *db.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.monitors[m.ID] = copyMonitor(m)
	return nil
}

func (s *MemoryStore) GetMonitor(ctx context.Context, id string) (*db.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.monitors[id]
	if !ok {
		return nil, ErrNotFound
	}
	return copyMonitor(m), nil
}

func (s *MemoryStore) UpdateMonitor(ctx context.Context, m *db.Monitor) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[m.ID]; !ok {
		return ErrNotFound
	}
	s.monitors[m.ID] = copyMonitor(m)
	return nil
}

func (s *MemoryStore) DeleteMonitor(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[id]; !ok {
		return ErrNotFound
	}
	delete(s.monitors, id)
	delete(s.checks, id)
	delete(s.incidents, id)
	return nil
}

func (s *MemoryStore) ListMonitors(ctx context.Context, ownerID string) ([]*db.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*db.Monitor, 0)
	for _, m := range s.monitors {
		if m.OwnerID == ownerID {
			out = append(out, copyMonitor(m))
		}
	}
	return out, nil
}

func (s *MemoryStore) ListAllMonitors(ctx context.Context) ([]*db.Monitor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*db.Monitor, 0, len(s.monitors))
	for _, m := range s.monitors {
		out = append(out, copyMonitor(m))
	}
	return out, nil
}

func (s *MemoryStore) AppendCheckResult(ctx context.Context, r *db.CheckResult) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[r.MonitorID]; !ok {
		return ErrNotFound
	}
	cp := *r
	ring := append([]*db.CheckResult{&cp}, s.checks[r.MonitorID]...)
	if len(ring) > MaxCheckHistory {
		ring = ring[:MaxCheckHistory]
	}
	s.checks[r.MonitorID] = ring
	return nil
}

func (s *MemoryStore) ListCheckResults(ctx context.Context, monitorID string, limit int) ([]*db.CheckResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring := s.checks[monitorID]
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	out := make([]*db.CheckResult, limit)
	for i := 0; i < limit; i++ {
		cp := *ring[i]
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryStore) AppendIncident(ctx context.Context, in *db.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.monitors[in.MonitorID]; !ok {
		return ErrNotFound
	}
	cp := copyIncident(in)
	ring := append([]*db.Incident{cp}, s.incidents[in.MonitorID]...)
	if len(ring) > MaxIncidentHistory {
		ring = ring[:MaxIncidentHistory]
	}
	s.incidents[in.MonitorID] = ring
	return nil
}

func (s *MemoryStore) UpdateIncident(ctx context.Context, in *db.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	ring := s.incidents[in.MonitorID]
	for i, existing := range ring {
		if existing.ID == in.ID {
			ring[i] = copyIncident(in)
			return nil
		}
	}
	return ErrNotFound
}

func (s *MemoryStore) OpenIncident(ctx context.Context, monitorID string) (*db.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, in := range s.incidents[monitorID] {
		if in.Status == db.IncidentOpen {
			return copyIncident(in), nil
		}
	}
	return nil, ErrNotFound
}

func (s *MemoryStore) ListIncidents(ctx context.Context, monitorID string, limit int) ([]*db.Incident, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ring := s.incidents[monitorID]
	if limit <= 0 || limit > len(ring) {
		limit = len(ring)
	}
	out := make([]*db.Incident, limit)
	for i := 0; i < limit; i++ {
		out[i] = copyIncident(ring[i])
	}
	return out, nil
}

func copyMonitor(m *db.Monitor) *db.Monitor {
	cp := *m
	if m.Tags != nil {
		cp.Tags = append([]string(nil), m.Tags...)
	}
	if m.UptimeStats != nil {
		cp.UptimeStats = make(map[string]float64, len(m.UptimeStats))
		for k, v := range m.UptimeStats {
			cp.UptimeStats[k] = v
		}
	}
	if m.LastCheck != nil {
		t := *m.LastCheck
		cp.LastCheck = &t
	}
	return &cp
}

func copyIncident(in *db.Incident) *db.Incident {
	cp := *in
	if in.EndTime != nil {
		t := *in.EndTime
		cp.EndTime = &t
	}
	return &cp
}

var _ Store = (*MemoryStore)(nil)
