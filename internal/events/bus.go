package events

import (
	"log"
	"sync"
	"time"

	"uptime-sentry/internal/db"
)

// Kind identifies the event families carried by the bus.
type Kind string

const (
	KindStatusChanged  Kind = "monitor_status_changed"
	KindCheckCompleted Kind = "monitor_check_completed"
	KindMonitorAdded   Kind = "monitor_added"
	KindMonitorRemoved Kind = "monitor_removed"
	KindError          Kind = "error_occurred"
)

// Event is the tagged union carried by the bus. Exactly one payload kind
// is populated per event.
type Event interface {
	Kind() Kind
}

type StatusChanged struct {
	MonitorID string
	OwnerID   string
	From      db.Status
	To        db.Status
	At        time.Time
}

func (StatusChanged) Kind() Kind { return KindStatusChanged }

type CheckCompleted struct {
	MonitorID string
	Result    db.CheckResult
}

func (CheckCompleted) Kind() Kind { return KindCheckCompleted }

type MonitorAdded struct {
	Monitor db.Monitor
}

func (MonitorAdded) Kind() Kind { return KindMonitorAdded }

type MonitorRemoved struct {
	MonitorID string
	OwnerID   string
}

func (MonitorRemoved) Kind() Kind { return KindMonitorRemoved }

type ErrorOccurred struct {
	MonitorID string
	Err       string
	At        time.Time
}

func (ErrorOccurred) Kind() Kind { return KindError }

// Handler receives events for the kinds a subscriber registered for.
type Handler func(Event)

const subscriberBuffer = 64

type subscriber struct {
	kinds   map[Kind]bool
	ch      chan Event
	done    chan struct{}
	handler Handler
}

// Bus is an in-process publish/subscribe hub. Each subscriber gets a
// buffered channel drained by its own goroutine, so a slow or panicking
// listener cannot stall the emitting scheduler tick or other listeners.
type Bus struct {
	mu   sync.RWMutex
	subs map[string]*subscriber
}

func NewBus() *Bus {
	return &Bus{subs: make(map[string]*subscriber)}
}

// Subscribe registers handler under id for the given kinds. Subscribing
// an id that already exists replaces its registration (idempotent).
// Passing no kinds subscribes to everything.
func (b *Bus) Subscribe(id string, handler Handler, kinds ...Kind) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if old, ok := b.subs[id]; ok {
		close(old.done)
	}

	kindSet := make(map[Kind]bool, len(kinds))
	for _, k := range kinds {
		kindSet[k] = true
	}

	sub := &subscriber{
		kinds:   kindSet,
		ch:      make(chan Event, subscriberBuffer),
		done:    make(chan struct{}),
		handler: handler,
	}
	b.subs[id] = sub

	go sub.run(id)
}

// Unsubscribe removes the subscriber. Unknown ids are a no-op.
func (b *Bus) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.done)
		delete(b.subs, id)
	}
}

// Publish delivers ev to every matching subscriber. Delivery is
// best-effort: a subscriber with a full buffer drops the event rather
// than blocking the publisher.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, sub := range b.subs {
		if len(sub.kinds) > 0 && !sub.kinds[ev.Kind()] {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
			log.Printf("[EVENTS] subscriber %s buffer full, dropping %s", id, ev.Kind())
		}
	}
}

// Close stops all subscriber goroutines.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.done)
		delete(b.subs, id)
	}
}

func (s *subscriber) run(id string) {
	for {
		select {
		case <-s.done:
			return
		case ev := <-s.ch:
			s.dispatch(id, ev)
		}
	}
}

// dispatch invokes the handler with panic isolation so one broken
// listener cannot take down the bus.
func (s *subscriber) dispatch(id string, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[EVENTS] subscriber %s panicked on %s: %v", id, ev.Kind(), r)
		}
	}()
	s.handler(ev)
}
