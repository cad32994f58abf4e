package store

import (
	"context"
	"errors"

	"uptime-sentry/internal/db"
)

// ErrNotFound is returned when an operation references a monitor or
// incident id that is not in the store.
var ErrNotFound = errors.New("not found")

// History caps per monitor. Oldest entries are evicted first.
const (
	MaxCheckHistory    = 100
	MaxIncidentHistory = 50
)

// Store is the single source of truth for monitors and their history.
// All mutation in the pipeline goes through this surface; no component
// keeps a writable copy.
//
// Append operations against a deleted monitor return ErrNotFound so the
// scheduler can discard results for monitors removed mid-check.
type Store interface {
	CreateMonitor(ctx context.Context, m *db.Monitor) error
	GetMonitor(ctx context.Context, id string) (*db.Monitor, error)
	UpdateMonitor(ctx context.Context, m *db.Monitor) error
	// DeleteMonitor removes the monitor and cascades to its check and
	// incident history.
	DeleteMonitor(ctx context.Context, id string) error
	ListMonitors(ctx context.Context, ownerID string) ([]*db.Monitor, error)
	ListAllMonitors(ctx context.Context) ([]*db.Monitor, error)

	// AppendCheckResult appends to the monitor's bounded ring, newest
	// first, capped at MaxCheckHistory.
	AppendCheckResult(ctx context.Context, r *db.CheckResult) error
	// ListCheckResults returns up to limit results, newest first.
	// limit <= 0 means everything retained.
	ListCheckResults(ctx context.Context, monitorID string, limit int) ([]*db.CheckResult, error)

	AppendIncident(ctx context.Context, in *db.Incident) error
	UpdateIncident(ctx context.Context, in *db.Incident) error
	// OpenIncident returns the monitor's open incident, or ErrNotFound
	// when none is open.
	OpenIncident(ctx context.Context, monitorID string) (*db.Incident, error)
	ListIncidents(ctx context.Context, monitorID string, limit int) ([]*db.Incident, error)
}
