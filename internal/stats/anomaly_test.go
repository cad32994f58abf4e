package stats_test

import (
	"fmt"
	"testing"
	"time"

	"uptime-sentry/internal/db"
	"uptime-sentry/internal/stats"
)

// series builds newest-first history from oldest-first response times,
// matching the order the store hands out.
func series(responseTimes ...int64) []*db.CheckResult {
	now := time.Now()
	out := make([]*db.CheckResult, len(responseTimes))
	for i, rt := range responseTimes {
		out[len(responseTimes)-1-i] = &db.CheckResult{
			ID:           fmt.Sprintf("c%d", i),
			Status:       true,
			ResponseTime: rt,
			CreatedAt:    now.Add(time.Duration(i-len(responseTimes)) * time.Minute),
		}
	}
	return out
}

func TestDetectLatencyAnomalies_flagsSpike(t *testing.T) {
	times := make([]int64, 0, 21)
	for i := 0; i < 20; i++ {
		times = append(times, 100+int64(i%5))
	}
	times = append(times, 5000) // spike

	anomalies := stats.DetectLatencyAnomalies(series(times...))
	if len(anomalies) != 1 {
		t.Fatalf("anomalies = %d, want 1", len(anomalies))
	}
	if anomalies[0].ResponseTime != 5000 {
		t.Errorf("flagged response time = %d, want 5000", anomalies[0].ResponseTime)
	}
	if anomalies[0].Score <= 0 {
		t.Errorf("score = %.2f, want positive", anomalies[0].Score)
	}
}

func TestDetectLatencyAnomalies_steadyTrafficIsClean(t *testing.T) {
	times := make([]int64, 40)
	for i := range times {
		times[i] = 100 + int64(i%7)
	}
	if anomalies := stats.DetectLatencyAnomalies(series(times...)); len(anomalies) != 0 {
		t.Errorf("anomalies = %d, want 0", len(anomalies))
	}
}

func TestDetectLatencyAnomalies_needsHistory(t *testing.T) {
	if anomalies := stats.DetectLatencyAnomalies(series(100, 100, 9000)); anomalies != nil {
		t.Errorf("expected nil for short history, got %d", len(anomalies))
	}
}

func TestDetectLatencyAnomalies_ignoresFailedChecks(t *testing.T) {
	rs := series(100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100, 100)
	// A failed check with an inflated time must not be scored.
	rs[0].Status = false
	rs[0].ResponseTime = 30000

	if anomalies := stats.DetectLatencyAnomalies(rs); len(anomalies) != 0 {
		t.Errorf("anomalies = %d, want 0", len(anomalies))
	}
}
