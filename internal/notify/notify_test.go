package notify_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"uptime-sentry/internal/db"
	"uptime-sentry/internal/events"
	"uptime-sentry/internal/notify"
)

func TestSlackNotifier(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &notify.SlackNotifier{WebhookURL: srv.URL}
	err := n.Send(context.Background(), notify.Message{
		MonitorID: "m1",
		Subject:   "Monitor m1 is DOWN",
		Body:      "Status changed up -> down",
	})
	if err != nil {
		t.Fatalf("send: %s", err)
	}

	var payload map[string]string
	if err := json.Unmarshal(<-received, &payload); err != nil {
		t.Fatalf("decode: %s", err)
	}
	if !strings.Contains(payload["text"], "Monitor m1 is DOWN") {
		t.Errorf("unexpected text: %q", payload["text"])
	}
}

func TestWebhookNotifier(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := &notify.WebhookNotifier{URL: srv.URL}
	err := n.Send(context.Background(), notify.Message{MonitorID: "m1", Subject: "s", Body: "b"})
	if err != nil {
		t.Fatalf("send: %s", err)
	}

	var msg notify.Message
	if err := json.Unmarshal(<-received, &msg); err != nil {
		t.Fatalf("decode: %s", err)
	}
	if msg.MonitorID != "m1" {
		t.Errorf("monitor id = %q, want m1", msg.MonitorID)
	}
}

func TestWebhookNotifier_errorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	n := &notify.WebhookNotifier{URL: srv.URL}
	if err := n.Send(context.Background(), notify.Message{}); err == nil {
		t.Error("expected error for 502 response")
	}
}

func TestDispatcher_deliversOnStatusChange(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewBus()
	defer bus.Close()

	d := notify.NewDispatcher([]notify.Notifier{&notify.WebhookNotifier{URL: srv.URL}})
	d.Attach(bus)

	bus.Publish(events.StatusChanged{
		MonitorID: "m1",
		From:      db.StatusUp,
		To:        db.StatusDown,
		At:        time.Now(),
	})

	select {
	case body := <-received:
		var msg notify.Message
		if err := json.Unmarshal(body, &msg); err != nil {
			t.Fatalf("decode: %s", err)
		}
		if !strings.Contains(msg.Subject, "DOWN") {
			t.Errorf("subject = %q, want DOWN alert", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}

func TestDispatcher_recoverySubject(t *testing.T) {
	received := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- body
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	bus := events.NewBus()
	defer bus.Close()

	d := notify.NewDispatcher([]notify.Notifier{&notify.WebhookNotifier{URL: srv.URL}})
	d.Attach(bus)

	bus.Publish(events.StatusChanged{
		MonitorID: "m1",
		From:      db.StatusDown,
		To:        db.StatusUp,
		At:        time.Now(),
	})

	select {
	case body := <-received:
		var msg notify.Message
		json.Unmarshal(body, &msg)
		if !strings.Contains(msg.Subject, "recovered") {
			t.Errorf("subject = %q, want recovery alert", msg.Subject)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("notification never delivered")
	}
}
