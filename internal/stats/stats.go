package stats

import (
	"context"
	"time"

	"gonum.org/v1/gonum/stat"

	"uptime-sentry/internal/db"
	"uptime-sentry/internal/store"
)

// Windows reported by the aggregator, in ascending size.
var Windows = map[string]time.Duration{
	db.Window24h: 24 * time.Hour,
	db.Window7d:  7 * 24 * time.Hour,
	db.Window30d: 30 * 24 * time.Hour,
}

// responseTimeSample is how many recent checks feed the average.
const responseTimeSample = 30

// Aggregator computes rolling uptime and response-time figures on
// demand from the bounded check history. Nothing is maintained
// incrementally; the ring is small enough to rescan.
type Aggregator struct {
	store store.Store
}

func NewAggregator(s store.Store) *Aggregator {
	return &Aggregator{store: s}
}

// MonitorStats builds the full aggregate for one monitor.
func (a *Aggregator) MonitorStats(ctx context.Context, monitorID string) (*db.MonitorStats, error) {
	if _, err := a.store.GetMonitor(ctx, monitorID); err != nil {
		return nil, err
	}
	results, err := a.store.ListCheckResults(ctx, monitorID, 0)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	uptime := make(map[string]float64, len(Windows))
	for name, window := range Windows {
		uptime[name] = UptimePercentage(results, window, now)
	}

	return &db.MonitorStats{
		MonitorID:           monitorID,
		Uptime:              uptime,
		AverageResponseTime: AverageResponseTime(results),
		TotalChecks:         len(results),
		ChecksSampled:       countWithin(results, Windows[db.Window30d], now),
	}, nil
}

// UptimeStats returns the window->percentage map stored on the monitor.
func (a *Aggregator) UptimeStats(ctx context.Context, monitorID string) (map[string]float64, error) {
	results, err := a.store.ListCheckResults(ctx, monitorID, 0)
	if err != nil {
		return nil, err
	}
	now := time.Now()
	uptime := make(map[string]float64, len(Windows))
	for name, window := range Windows {
		uptime[name] = UptimePercentage(results, window, now)
	}
	return uptime, nil
}

// UptimePercentage is the share of up results within the window. A
// window with no data reports 100%: a monitor is assumed healthy until
// a check says otherwise. Callers that need to tell the default apart
// from measured uptime use the sample counts in MonitorStats.
func UptimePercentage(results []*db.CheckResult, window time.Duration, now time.Time) float64 {
	cutoff := now.Add(-window)
	var total, up int
	for _, r := range results {
		if r.CreatedAt.Before(cutoff) {
			continue
		}
		total++
		if r.Status {
			up++
		}
	}
	if total == 0 {
		return 100
	}
	return float64(up) / float64(total) * 100
}

// AverageResponseTime is the mean over the last responseTimeSample
// checks, ignoring results that carry no response time.
func AverageResponseTime(results []*db.CheckResult) float64 {
	sample := results
	if len(sample) > responseTimeSample {
		sample = sample[:responseTimeSample]
	}
	values := make([]float64, 0, len(sample))
	for _, r := range sample {
		if r.ResponseTime <= 0 {
			continue
		}
		values = append(values, float64(r.ResponseTime))
	}
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

func countWithin(results []*db.CheckResult, window time.Duration, now time.Time) int {
	cutoff := now.Add(-window)
	n := 0
	for _, r := range results {
		if !r.CreatedAt.Before(cutoff) {
			n++
		}
	}
	return n
}
