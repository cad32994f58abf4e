package monitor

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"

	"uptime-sentry/internal/checker"
	"uptime-sentry/internal/db"
	"uptime-sentry/internal/events"
	"uptime-sentry/internal/incident"
	"uptime-sentry/internal/stats"
	"uptime-sentry/internal/store"
)

// Service is the externally consumed monitor API: CRUD, manual checks,
// history, stats, bulk operations and export.
type Service struct {
	store      store.Store
	engine     *Engine
	detector   *incident.Detector
	aggregator *stats.Aggregator
	bus        *events.Bus
}

func NewService(s store.Store, e *Engine, d *incident.Detector, a *stats.Aggregator, bus *events.Bus) *Service {
	return &Service{store: s, engine: e, detector: d, aggregator: a, bus: bus}
}

// CreateMonitorInput is the user-supplied monitor configuration.
type CreateMonitorInput struct {
	OwnerID            string   `json:"owner_id"`
	URL                string   `json:"url"`
	Name               string   `json:"name"`
	Type               string   `json:"type"`
	Interval           int      `json:"interval"`
	Timeout            int      `json:"timeout"`
	Retries            int      `json:"retries"`
	ExpectedStatusCode int      `json:"expected_status_code"`
	Tags               []string `json:"tags"`
	IsPublic           bool     `json:"is_public"`
}

// UpdateMonitorInput is a partial update; nil fields are left alone.
type UpdateMonitorInput struct {
	URL                *string   `json:"url,omitempty"`
	Name               *string   `json:"name,omitempty"`
	Interval           *int      `json:"interval,omitempty"`
	Timeout            *int      `json:"timeout,omitempty"`
	Retries            *int      `json:"retries,omitempty"`
	ExpectedStatusCode *int      `json:"expected_status_code,omitempty"`
	Tags               *[]string `json:"tags,omitempty"`
	IsActive           *bool     `json:"is_active,omitempty"`
	IsPublic           *bool     `json:"is_public,omitempty"`
}

// CreateMonitor validates, persists and immediately checks a new
// monitor so the caller sees a real status instead of waiting for the
// next scheduler tick.
func (s *Service) CreateMonitor(ctx context.Context, input CreateMonitorInput) (*db.Monitor, error) {
	if err := checker.ValidateURL(input.URL); err != nil {
		return nil, err
	}

	now := time.Now()
	m := &db.Monitor{
		ID:                 uuid.NewString(),
		OwnerID:            input.OwnerID,
		URL:                input.URL,
		Name:               input.Name,
		Type:               monitorType(input.URL, input.Type),
		Interval:           defaultInt(input.Interval, 60),
		Timeout:            defaultInt(input.Timeout, 30),
		Retries:            input.Retries,
		ExpectedStatusCode: input.ExpectedStatusCode,
		Tags:               input.Tags,
		IsActive:           true,
		IsPublic:           input.IsPublic,
		Status:             db.StatusUp,
		SSLStatus:          db.SSLNotApplicable,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if m.Name == "" {
		m.Name = m.URL
	}
	if u, err := url.Parse(m.URL); err == nil && u.Scheme == "https" {
		m.SSLMonitoringEnabled = true
	}

	if err := s.store.CreateMonitor(ctx, m); err != nil {
		return nil, err
	}

	s.bus.Publish(events.MonitorAdded{Monitor: *m})

	// Synchronous first check, outside the batch pipeline.
	if _, err := s.engine.CheckNow(ctx, m.ID); err != nil {
		log.Printf("[MONITOR] initial check for %s failed: %v", m.ID, err)
	}

	return s.store.GetMonitor(ctx, m.ID)
}

func (s *Service) UpdateMonitor(ctx context.Context, id string, patch UpdateMonitorInput) (*db.Monitor, error) {
	m, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}

	if patch.URL != nil {
		if err := checker.ValidateURL(*patch.URL); err != nil {
			return nil, err
		}
		m.URL = *patch.URL
		m.Type = monitorType(m.URL, string(m.Type))
		u, _ := url.Parse(m.URL)
		m.SSLMonitoringEnabled = u.Scheme == "https"
		if !m.SSLMonitoringEnabled {
			m.SSLStatus = db.SSLNotApplicable
			m.SSLCertDaysUntilExpiry = 0
		}
	}
	if patch.Name != nil {
		m.Name = *patch.Name
	}
	if patch.Interval != nil {
		m.Interval = *patch.Interval
	}
	if patch.Timeout != nil {
		m.Timeout = *patch.Timeout
	}
	if patch.Retries != nil {
		m.Retries = *patch.Retries
	}
	if patch.ExpectedStatusCode != nil {
		m.ExpectedStatusCode = *patch.ExpectedStatusCode
	}
	if patch.Tags != nil {
		m.Tags = *patch.Tags
	}
	if patch.IsActive != nil {
		m.IsActive = *patch.IsActive
	}
	if patch.IsPublic != nil {
		m.IsPublic = *patch.IsPublic
	}
	m.UpdatedAt = time.Now()

	if err := s.store.UpdateMonitor(ctx, m); err != nil {
		return nil, err
	}
	return m, nil
}

// DeleteMonitor removes the monitor and its history, and drops any
// pending queue entry so no further check is dispatched for it.
func (s *Service) DeleteMonitor(ctx context.Context, id string) error {
	m, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return err
	}
	if err := s.store.DeleteMonitor(ctx, id); err != nil {
		return err
	}
	s.engine.Remove(id)
	s.bus.Publish(events.MonitorRemoved{MonitorID: id, OwnerID: m.OwnerID})
	return nil
}

func (s *Service) GetMonitor(ctx context.Context, id string) (*db.Monitor, error) {
	return s.store.GetMonitor(ctx, id)
}

func (s *Service) GetAllMonitors(ctx context.Context, ownerID string) ([]*db.Monitor, error) {
	return s.store.ListMonitors(ctx, ownerID)
}

// TriggerCheck bypasses scheduler timing and runs the check now.
func (s *Service) TriggerCheck(ctx context.Context, id string) (*db.CheckResult, error) {
	if _, err := s.store.GetMonitor(ctx, id); err != nil {
		return nil, err
	}
	result, err := s.engine.CheckNow(ctx, id)
	if err != nil {
		return nil, err
	}
	if result == nil {
		// Monitor vanished between lookup and check.
		return nil, store.ErrNotFound
	}
	return result, nil
}

func (s *Service) GetMonitorChecks(ctx context.Context, id string, limit int) ([]*db.CheckResult, error) {
	if _, err := s.store.GetMonitor(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListCheckResults(ctx, id, limit)
}

func (s *Service) GetMonitorIncidents(ctx context.Context, id string, limit int) ([]*db.Incident, error) {
	if _, err := s.store.GetMonitor(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListIncidents(ctx, id, limit)
}

func (s *Service) GetMonitorStats(ctx context.Context, id string) (*db.MonitorStats, error) {
	return s.aggregator.MonitorStats(ctx, id)
}

// GetSSLInfo runs a fresh certificate inspection for the monitor.
func (s *Service) GetSSLInfo(ctx context.Context, id string) (*db.SSLInfo, error) {
	m, err := s.store.GetMonitor(ctx, id)
	if err != nil {
		return nil, err
	}
	info := checker.InspectSSL(ctx, m.URL, time.Duration(m.Timeout)*time.Second)
	info.MonitorID = m.ID
	return &info, nil
}

// GetLatencyAnomalies reports response-time outliers in the monitor's
// retained history.
func (s *Service) GetLatencyAnomalies(ctx context.Context, id string) ([]stats.LatencyAnomaly, error) {
	return s.aggregator.LatencyAnomalies(ctx, id)
}

// GetActiveIncidents is the recomputed active-conditions projection.
func (s *Service) GetActiveIncidents(ctx context.Context, ownerID string) ([]incident.ActiveCondition, error) {
	return s.detector.ActiveConditions(ctx, ownerID)
}

// BulkAction names the operations BulkUpdate accepts.
type BulkAction string

const (
	BulkPause  BulkAction = "pause"
	BulkResume BulkAction = "resume"
	BulkDelete BulkAction = "delete"
)

// BulkOutcome is the per-id result of a bulk operation.
type BulkOutcome struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// BulkResult reports each id independently plus aggregate counts.
type BulkResult struct {
	Results   map[string]BulkOutcome `json:"results"`
	Succeeded int                    `json:"succeeded"`
	Failed    int                    `json:"failed"`
}

// BulkUpdate applies action to each id independently; one failure never
// rolls back or aborts the others.
func (s *Service) BulkUpdate(ctx context.Context, ids []string, action BulkAction) (*BulkResult, error) {
	switch action {
	case BulkPause, BulkResume, BulkDelete:
	default:
		return nil, fmt.Errorf("unsupported bulk action %q", action)
	}

	result := &BulkResult{Results: make(map[string]BulkOutcome, len(ids))}
	for _, id := range ids {
		err := s.applyBulkAction(ctx, id, action)
		if err != nil {
			result.Results[id] = BulkOutcome{Success: false, Error: err.Error()}
			result.Failed++
			continue
		}
		result.Results[id] = BulkOutcome{Success: true}
		result.Succeeded++
	}
	return result, nil
}

func (s *Service) applyBulkAction(ctx context.Context, id string, action BulkAction) error {
	switch action {
	case BulkDelete:
		return s.DeleteMonitor(ctx, id)
	case BulkPause, BulkResume:
		active := action == BulkResume
		_, err := s.UpdateMonitor(ctx, id, UpdateMonitorInput{IsActive: &active})
		return err
	}
	return nil
}

// ExportFormat names the supported export encodings.
type ExportFormat string

const (
	ExportJSON ExportFormat = "json"
	ExportCSV  ExportFormat = "csv"
)

// ExportData serializes the monitor's retained check history. CSV
// column order is fixed: timestamp, status, response_time, http_status,
// error.
func (s *Service) ExportData(ctx context.Context, id string, format ExportFormat) ([]byte, error) {
	results, err := s.GetMonitorChecks(ctx, id, 0)
	if err != nil {
		return nil, err
	}

	switch format {
	case ExportJSON:
		return json.Marshal(results)
	case ExportCSV:
		var buf bytes.Buffer
		w := csv.NewWriter(&buf)
		if err := w.Write([]string{"timestamp", "status", "response_time", "http_status", "error"}); err != nil {
			return nil, err
		}
		for _, r := range results {
			status := "down"
			if r.Status {
				status = "up"
			}
			httpStatus := ""
			if r.StatusCode != 0 {
				httpStatus = strconv.Itoa(r.StatusCode)
			}
			record := []string{
				r.CreatedAt.Format(time.RFC3339),
				status,
				strconv.FormatInt(r.ResponseTime, 10),
				httpStatus,
				r.Error,
			}
			if err := w.Write(record); err != nil {
				return nil, err
			}
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unsupported export format %q", format)
	}
}

// GetSummary recomputes the owner's aggregate counts from the live
// monitor set. Never-checked monitors are excluded from the averages
// rather than counted as 100% healthy.
func (s *Service) GetSummary(ctx context.Context, ownerID string) (*db.MonitorSummary, error) {
	monitors, err := s.store.ListMonitors(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	summary := &db.MonitorSummary{Total: len(monitors)}
	var uptimeSum, responseSum float64
	var sampled int
	for _, m := range monitors {
		if !m.IsActive {
			summary.Paused++
			continue
		}
		switch m.Status {
		case db.StatusUp:
			summary.Up++
		case db.StatusDown:
			summary.Down++
		}
		if m.LastCheck == nil {
			continue
		}
		sampled++
		responseSum += float64(m.LastResponseTime)
		if pct, ok := m.UptimeStats[db.Window24h]; ok {
			uptimeSum += pct
		} else {
			uptimeSum += 100
		}
	}
	if sampled > 0 {
		summary.AverageUptime = uptimeSum / float64(sampled)
		summary.AverageResponseTime = responseSum / float64(sampled)
	}
	return summary, nil
}

func monitorType(rawURL, requested string) db.MonitorType {
	switch db.MonitorType(requested) {
	case db.TypeTCP:
		return db.TypeTCP
	case db.TypePing:
		return db.TypePing
	}
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "https" {
		return db.TypeHTTPS
	}
	return db.TypeHTTP
}

func defaultInt(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// IsNotFound reports whether err is the store's missing-entity error.
func IsNotFound(err error) bool {
	return errors.Is(err, store.ErrNotFound)
}

// IsInvalidURL reports whether err is the executor's URL rejection.
func IsInvalidURL(err error) bool {
	return errors.Is(err, checker.ErrInvalidURL)
}
