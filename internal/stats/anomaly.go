package stats

import (
	"context"
	"math"
	"time"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"uptime-sentry/internal/db"
)

// Latency anomaly detection over the retained check history. Each
// successful check is scored against the checks that preceded it; a
// response time far outside the recent distribution is flagged.
const (
	// anomalyMinSamples is the minimum history before scoring starts.
	anomalyMinSamples = 10
	// anomalyWindow is how many preceding checks form the baseline.
	anomalyWindow = 30
	// anomalyConfidence is the two-sided confidence level; observations
	// outside it are anomalous.
	anomalyConfidence = 0.99
)

// LatencyAnomaly flags one check whose response time fell outside the
// expected range implied by the checks before it.
type LatencyAnomaly struct {
	CheckID       string    `json:"check_id"`
	At            time.Time `json:"at"`
	ResponseTime  int64     `json:"response_time"`
	ExpectedUpper float64   `json:"expected_upper"`
	Score         float64   `json:"score"` // standard deviations from the baseline mean
}

// DetectLatencyAnomalies scans results (newest first, as the store
// returns them) and reports checks whose latency was a statistical
// outlier against the preceding window. Failed checks and checks
// without a measurement contribute nothing.
func DetectLatencyAnomalies(results []*db.CheckResult) []LatencyAnomaly {
	// Re-order oldest first so each point is scored against its past.
	series := make([]*db.CheckResult, 0, len(results))
	for i := len(results) - 1; i >= 0; i-- {
		r := results[i]
		if !r.Status || r.ResponseTime <= 0 {
			continue
		}
		series = append(series, r)
	}
	if len(series) <= anomalyMinSamples {
		return nil
	}

	threshold := distuv.Normal{Mu: 0, Sigma: 1}.Quantile(1 - (1-anomalyConfidence)/2)

	var anomalies []LatencyAnomaly
	for i := anomalyMinSamples; i < len(series); i++ {
		start := i - anomalyWindow
		if start < 0 {
			start = 0
		}
		baseline := make([]float64, 0, i-start)
		for _, r := range series[start:i] {
			baseline = append(baseline, float64(r.ResponseTime))
		}

		mean, std := stat.MeanStdDev(baseline, nil)
		if std == 0 {
			// A perfectly flat baseline scores any deviation; require a
			// floor so millisecond jitter is not flagged.
			std = math.Max(mean*0.05, 1)
		}

		value := float64(series[i].ResponseTime)
		score := (value - mean) / std
		if score <= threshold {
			continue
		}
		anomalies = append(anomalies, LatencyAnomaly{
			CheckID:       series[i].ID,
			At:            series[i].CreatedAt,
			ResponseTime:  series[i].ResponseTime,
			ExpectedUpper: mean + threshold*std,
			Score:         score,
		})
	}
	return anomalies
}

// LatencyAnomalies runs anomaly detection over a monitor's retained
// history.
func (a *Aggregator) LatencyAnomalies(ctx context.Context, monitorID string) ([]LatencyAnomaly, error) {
	if _, err := a.store.GetMonitor(ctx, monitorID); err != nil {
		return nil, err
	}
	results, err := a.store.ListCheckResults(ctx, monitorID, 0)
	if err != nil {
		return nil, err
	}
	return DetectLatencyAnomalies(results), nil
}
