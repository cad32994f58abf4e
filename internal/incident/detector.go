package incident

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"uptime-sentry/internal/db"
	"uptime-sentry/internal/store"
)

// Detector derives incidents from check outcomes. It runs synchronously
// after each persisted result, with the monitor's previous status in
// hand, and keeps at most one open incident per monitor.
type Detector struct {
	store store.Store
}

func NewDetector(s store.Store) *Detector {
	return &Detector{store: s}
}

// ProcessTransition opens or resolves incidents when the status flipped.
// m carries the state after the check was applied; oldStatus is the
// status before it. No-op when the status did not change.
func (d *Detector) ProcessTransition(ctx context.Context, m *db.Monitor, oldStatus db.Status, result *db.CheckResult) error {
	if oldStatus == m.Status {
		return nil
	}

	if m.Status == db.StatusDown {
		return d.openIncident(ctx, m, result)
	}
	if oldStatus == db.StatusDown && m.Status == db.StatusUp {
		return d.resolveIncident(ctx, m, result)
	}
	return nil
}

func (d *Detector) openIncident(ctx context.Context, m *db.Monitor, result *db.CheckResult) error {
	// Re-entering down without resolving first would double-open; that
	// is a data integrity problem worth logging, not failing over.
	if existing, err := d.store.OpenIncident(ctx, m.ID); err == nil {
		log.Printf("[INCIDENT] monitor %s already has open incident %s, skipping", m.ID, existing.ID)
		return nil
	}

	description := "Monitor is unreachable"
	if result != nil && result.Error != "" {
		description = fmt.Sprintf("Monitor is unreachable: %s", result.Error)
	}

	in := &db.Incident{
		ID:          uuid.NewString(),
		MonitorID:   m.ID,
		Title:       fmt.Sprintf("%s is down", m.Name),
		Description: description,
		Severity:    db.ClassifySeverity(m),
		Status:      db.IncidentOpen,
		StartTime:   time.Now(),
		CreatedAt:   time.Now(),
	}

	if err := d.store.AppendIncident(ctx, in); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Monitor deleted mid-flight, discard.
			return nil
		}
		return err
	}
	log.Printf("[INCIDENT] opened %s for monitor %s (%s)", in.ID, m.ID, in.Severity)
	return nil
}

func (d *Detector) resolveIncident(ctx context.Context, m *db.Monitor, result *db.CheckResult) error {
	open, err := d.store.OpenIncident(ctx, m.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			// Recovered without a recorded incident; log the integrity
			// gap and move on.
			log.Printf("[INCIDENT] monitor %s recovered but no open incident found", m.ID)
			return nil
		}
		return err
	}

	now := time.Now()
	open.Status = db.IncidentResolved
	open.EndTime = &now

	if err := d.store.UpdateIncident(ctx, open); err != nil {
		return err
	}
	log.Printf("[INCIDENT] resolved %s for monitor %s after %s", open.ID, m.ID, now.Sub(open.StartTime).Round(time.Second))
	return nil
}

// ProcessSSLTransition opens an incident when the certificate state
// first becomes alert-worthy (expired). Lesser SSL conditions surface
// through the active-conditions projection only.
func (d *Detector) ProcessSSLTransition(ctx context.Context, m *db.Monitor, oldSSL db.SSLStatus) error {
	if oldSSL == m.SSLStatus || m.SSLStatus != db.SSLExpired {
		return nil
	}
	if existing, err := d.store.OpenIncident(ctx, m.ID); err == nil {
		log.Printf("[INCIDENT] monitor %s already has open incident %s, skipping ssl incident", m.ID, existing.ID)
		return nil
	}

	in := &db.Incident{
		ID:          uuid.NewString(),
		MonitorID:   m.ID,
		Title:       fmt.Sprintf("%s certificate expired", m.Name),
		Description: fmt.Sprintf("TLS certificate expired %d days ago", -m.SSLCertDaysUntilExpiry),
		Severity:    db.SeverityCritical,
		Status:      db.IncidentOpen,
		StartTime:   time.Now(),
		CreatedAt:   time.Now(),
	}
	if err := d.store.AppendIncident(ctx, in); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return err
	}
	log.Printf("[INCIDENT] opened ssl incident %s for monitor %s", in.ID, m.ID)
	return nil
}

// ActiveCondition is one entry of the active-incidents projection:
// a monitor with a live issue and its current severity.
type ActiveCondition struct {
	Monitor  *db.Monitor `json:"monitor"`
	Severity db.Severity `json:"severity"`
}

// ActiveConditions recomputes the active-incidents view for an owner.
// Only monitors that are down, flapping, or carrying an SSL issue show
// up; healthy monitors are excluded.
func (d *Detector) ActiveConditions(ctx context.Context, ownerID string) ([]ActiveCondition, error) {
	monitors, err := d.store.ListMonitors(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	out := make([]ActiveCondition, 0)
	for _, m := range monitors {
		severity := db.ClassifySeverity(m)
		if severity == db.SeverityNone {
			continue
		}
		out = append(out, ActiveCondition{Monitor: m, Severity: severity})
	}
	return out, nil
}
