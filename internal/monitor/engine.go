package monitor

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"

	"uptime-sentry/internal/checker"
	"uptime-sentry/internal/db"
	"uptime-sentry/internal/events"
	"uptime-sentry/internal/incident"
	"uptime-sentry/internal/metrics"
	"uptime-sentry/internal/stats"
	"uptime-sentry/internal/store"
)

// Engine is the check scheduler. A single cron tick walks the monitor
// set, enqueues due monitors into a set-backed queue, and drains it in
// fixed-size concurrent batches with an inter-batch delay.
type Engine struct {
	store      store.Store
	checker    *checker.Checker
	detector   *incident.Detector
	aggregator *stats.Aggregator
	bus        *events.Bus
	metrics    *metrics.Metrics

	cron       *cron.Cron
	tick       time.Duration
	batchSize  int
	batchDelay time.Duration

	mu       sync.Mutex
	pending  []string            // ids awaiting execution, FIFO
	inFlight map[string]struct{} // ids queued or checking; structural dedup
	draining bool
}

type EngineConfig struct {
	Tick       time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

func NewEngine(s store.Store, c *checker.Checker, d *incident.Detector, a *stats.Aggregator, bus *events.Bus, m *metrics.Metrics, cfg EngineConfig) *Engine {
	if cfg.Tick <= 0 {
		cfg.Tick = 30 * time.Second
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 5
	}
	if cfg.BatchDelay <= 0 {
		cfg.BatchDelay = time.Second
	}
	return &Engine{
		store:      s,
		checker:    c,
		detector:   d,
		aggregator: a,
		bus:        bus,
		metrics:    m,
		cron:       cron.New(),
		tick:       cfg.Tick,
		batchSize:  cfg.BatchSize,
		batchDelay: cfg.BatchDelay,
		inFlight:   make(map[string]struct{}),
	}
}

func (e *Engine) Start() error {
	_, err := e.cron.AddFunc(fmt.Sprintf("@every %s", e.tick), e.Tick)
	if err != nil {
		return fmt.Errorf("schedule tick: %w", err)
	}
	e.cron.Start()
	log.Printf("[SCHED] started, tick=%s batch=%d delay=%s", e.tick, e.batchSize, e.batchDelay)
	return nil
}

func (e *Engine) Stop() {
	ctx := e.cron.Stop()
	<-ctx.Done()
	log.Println("[SCHED] stopped")
}

// Tick enqueues every active monitor that is due and kicks the drain
// loop. A store fault here is absorbed like any scheduler fault: logged
// and skipped, never propagated.
func (e *Engine) Tick() {
	ctx := context.Background()
	monitors, err := e.store.ListAllMonitors(ctx)
	if err != nil {
		log.Printf("[SCHED] tick: listing monitors: %v", err)
		e.metrics.SchedulerFaults.Inc()
		e.bus.Publish(events.ErrorOccurred{Err: fmt.Sprintf("tick: %v", err), At: time.Now()})
		return
	}

	now := time.Now()
	queued := 0
	byStatus := make(map[db.Status]int, 3)
	for _, m := range monitors {
		byStatus[m.Status]++
		if !m.IsActive || !isDue(m, now) {
			continue
		}
		if e.enqueue(m.ID) {
			queued++
		}
	}
	for _, st := range []db.Status{db.StatusUp, db.StatusDown, db.StatusUnknown} {
		e.metrics.MonitorsByState.WithLabelValues(string(st)).Set(float64(byStatus[st]))
	}

	if queued > 0 {
		log.Printf("[SCHED] tick: queued %d of %d monitors", queued, len(monitors))
	}
	e.startDrain()
}

func isDue(m *db.Monitor, now time.Time) bool {
	if m.LastCheck == nil {
		return true
	}
	return now.Sub(*m.LastCheck) >= time.Duration(m.Interval)*time.Second
}

// enqueue adds the id unless it is already queued or checking.
func (e *Engine) enqueue(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; busy {
		return false
	}
	e.inFlight[id] = struct{}{}
	e.pending = append(e.pending, id)
	return true
}

// Remove drops a monitor from the pending queue. An in-flight check is
// allowed to finish; its result is discarded when the store no longer
// knows the monitor.
func (e *Engine) Remove(id string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, pid := range e.pending {
		if pid == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			delete(e.inFlight, id)
			return
		}
	}
}

// QueueSize reports pending plus executing checks.
func (e *Engine) QueueSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.inFlight)
}

func (e *Engine) startDrain() {
	e.mu.Lock()
	if e.draining || len(e.pending) == 0 {
		e.mu.Unlock()
		return
	}
	e.draining = true
	e.mu.Unlock()
	go e.drain()
}

// drain dispatches batches of at most batchSize concurrent checks and
// paces batches batchDelay apart to bound outbound fan-out.
func (e *Engine) drain() {
	defer func() {
		e.mu.Lock()
		e.draining = false
		e.mu.Unlock()
	}()

	for {
		e.mu.Lock()
		n := len(e.pending)
		if n == 0 {
			e.mu.Unlock()
			return
		}
		if n > e.batchSize {
			n = e.batchSize
		}
		batch := make([]string, n)
		copy(batch, e.pending[:n])
		e.pending = e.pending[n:]
		e.mu.Unlock()

		var wg sync.WaitGroup
		for _, id := range batch {
			wg.Add(1)
			go func(monitorID string) {
				defer wg.Done()
				e.runScheduled(monitorID)
			}(id)
		}
		wg.Wait()

		e.mu.Lock()
		more := len(e.pending) > 0
		e.mu.Unlock()
		if !more {
			return
		}
		time.Sleep(e.batchDelay)
	}
}

// runScheduled executes one queued check with per-monitor fault
// isolation: whatever goes wrong is logged and emitted, never allowed
// to take down the batch or the loop.
func (e *Engine) runScheduled(monitorID string) {
	defer e.release(monitorID)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[SCHED] panic checking monitor %s: %v", monitorID, r)
			e.metrics.SchedulerFaults.Inc()
			e.bus.Publish(events.ErrorOccurred{MonitorID: monitorID, Err: fmt.Sprintf("panic: %v", r), At: time.Now()})
		}
	}()

	ctx := context.Background()
	m, err := e.store.GetMonitor(ctx, monitorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return // deleted after enqueue
		}
		log.Printf("[SCHED] loading monitor %s: %v", monitorID, err)
		e.metrics.SchedulerFaults.Inc()
		e.bus.Publish(events.ErrorOccurred{MonitorID: monitorID, Err: err.Error(), At: time.Now()})
		return
	}

	if _, err := e.performCheck(ctx, m); err != nil {
		log.Printf("[SCHED] checking monitor %s: %v", monitorID, err)
		e.metrics.SchedulerFaults.Inc()
		e.bus.Publish(events.ErrorOccurred{MonitorID: monitorID, Err: err.Error(), At: time.Now()})
	}
}

func (e *Engine) release(id string) {
	e.mu.Lock()
	delete(e.inFlight, id)
	e.mu.Unlock()
}

// CheckNow runs an immediate check outside the batch pipeline, for
// monitor creation and manual "check now" actions. It claims the
// monitor's queue slot first so the same monitor never runs twice
// concurrently; a queued entry is taken over rather than duplicated.
func (e *Engine) CheckNow(ctx context.Context, monitorID string) (*db.CheckResult, error) {
	for {
		if e.claim(monitorID) {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(20 * time.Millisecond):
		}
	}
	defer e.release(monitorID)

	m, err := e.store.GetMonitor(ctx, monitorID)
	if err != nil {
		return nil, err
	}
	return e.performCheck(ctx, m)
}

// claim reserves the monitor's slot. If the id is queued but not yet
// executing it is pulled out of the queue and taken over.
func (e *Engine) claim(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.inFlight[id]; !busy {
		e.inFlight[id] = struct{}{}
		return true
	}
	for i, pid := range e.pending {
		if pid == id {
			e.pending = append(e.pending[:i], e.pending[i+1:]...)
			return true
		}
	}
	return false
}

// performCheck is the shared probe pipeline: execute, persist, update
// runtime state, derive incidents, publish events. A monitor deleted
// while the probe was in flight makes every write a silent no-op.
func (e *Engine) performCheck(ctx context.Context, m *db.Monitor) (*db.CheckResult, error) {
	probe := checker.Probe{
		URL:                m.URL,
		Timeout:            time.Duration(m.Timeout) * time.Second,
		ExpectedStatusCode: m.ExpectedStatusCode,
		Retries:            m.Retries,
	}

	start := time.Now()
	outcome := e.checker.Check(ctx, probe)
	e.metrics.CheckDuration.Observe(time.Since(start).Seconds())

	var sslInfo db.SSLInfo
	if m.SSLMonitoringEnabled {
		sslInfo = checker.InspectSSL(ctx, m.URL, probe.Timeout)
	}

	// Reload so we apply the transition against current state; a check
	// for a just-deleted monitor is discarded here.
	fresh, err := e.store.GetMonitor(ctx, m.ID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			log.Printf("[CHECK] monitor %s deleted mid-check, discarding result", m.ID)
			return nil, nil
		}
		return nil, err
	}

	result := &db.CheckResult{
		ID:           uuid.NewString(),
		MonitorID:    m.ID,
		Status:       outcome.Up,
		ResponseTime: outcome.ResponseTime.Milliseconds(),
		StatusCode:   outcome.StatusCode,
		Message:      outcome.Message,
		Error:        outcome.Error,
		CreatedAt:    time.Now(),
	}

	if err := e.store.AppendCheckResult(ctx, result); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}

	oldStatus := fresh.Status
	oldSSL := fresh.SSLStatus

	now := time.Now()
	fresh.LastCheck = &now
	fresh.LastResponseTime = result.ResponseTime
	fresh.LastStatusCode = result.StatusCode
	if outcome.Up {
		fresh.Status = db.StatusUp
		fresh.FailuresInARow = 0
	} else {
		fresh.Status = db.StatusDown
		fresh.FailuresInARow++
	}

	if m.SSLMonitoringEnabled {
		fresh.SSLStatus = db.ClassifySSL(sslInfo)
		fresh.SSLCertDaysUntilExpiry = sslInfo.DaysUntilExpiry
	}

	if uptime, err := e.aggregator.UptimeStats(ctx, m.ID); err == nil {
		fresh.UptimeStats = uptime
	}

	if err := e.store.UpdateMonitor(ctx, fresh); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return result, err
	}

	if err := e.detector.ProcessTransition(ctx, fresh, oldStatus, result); err != nil {
		return result, err
	}
	if err := e.detector.ProcessSSLTransition(ctx, fresh, oldSSL); err != nil {
		return result, err
	}

	e.publishOutcome(fresh, oldStatus, result)
	return result, nil
}

func (e *Engine) publishOutcome(m *db.Monitor, oldStatus db.Status, result *db.CheckResult) {
	if result.Status {
		e.metrics.ChecksTotal.WithLabelValues("up").Inc()
	} else {
		e.metrics.ChecksTotal.WithLabelValues("down").Inc()
	}

	e.bus.Publish(events.CheckCompleted{MonitorID: m.ID, Result: *result})
	if oldStatus != m.Status {
		if m.Status == db.StatusDown {
			e.metrics.OpenIncidents.Inc()
		} else if oldStatus == db.StatusDown {
			e.metrics.OpenIncidents.Dec()
		}
		e.bus.Publish(events.StatusChanged{
			MonitorID: m.ID,
			OwnerID:   m.OwnerID,
			From:      oldStatus,
			To:        m.Status,
			At:        result.CreatedAt,
		})
	}
}
