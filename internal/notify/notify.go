package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"uptime-sentry/internal/db"
	"uptime-sentry/internal/events"
)

// Message is the channel-agnostic alert payload.
type Message struct {
	MonitorID string `json:"monitor_id"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
	At        string `json:"at"`
}

// Notifier delivers one message over one channel. Failures are logged
// by the dispatcher and never block the monitoring pipeline.
type Notifier interface {
	Name() string
	Send(ctx context.Context, msg Message) error
}

// SlackNotifier posts to an incoming-webhook URL.
type SlackNotifier struct {
	WebhookURL string
	Client     *http.Client
}

func (n *SlackNotifier) Name() string { return "slack" }

func (n *SlackNotifier) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(map[string]string{
		"text": fmt.Sprintf("%s\n%s", msg.Subject, msg.Body),
	})
	if err != nil {
		return err
	}
	return postJSON(ctx, n.client(), n.WebhookURL, payload)
}

func (n *SlackNotifier) client() *http.Client {
	if n.Client != nil {
		return n.Client
	}
	return http.DefaultClient
}

// WebhookNotifier posts the raw message JSON to a configured URL.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

func (n *WebhookNotifier) Name() string { return "webhook" }

func (n *WebhookNotifier) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	client := n.Client
	if client == nil {
		client = http.DefaultClient
	}
	return postJSON(ctx, client, n.URL, payload)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// EmailNotifier sends alert mail through SendGrid.
type EmailNotifier struct {
	APIKey string
	From   string
	To     string
}

func (n *EmailNotifier) Name() string { return "email" }

func (n *EmailNotifier) Send(ctx context.Context, msg Message) error {
	from := mail.NewEmail("Uptime Sentry", n.From)
	to := mail.NewEmail("", n.To)
	email := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, msg.Body)

	client := sendgrid.NewSendClient(n.APIKey)
	resp, err := client.Send(email)
	if err != nil {
		return err
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("sendgrid returned status %d", resp.StatusCode)
	}
	return nil
}

// Dispatcher turns status-change events into notifications, delivered
// fire-and-forget over every configured channel.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
}

func NewDispatcher(notifiers []Notifier) *Dispatcher {
	return &Dispatcher{notifiers: notifiers, timeout: 10 * time.Second}
}

// SubscriberID is the dispatcher's registration on the event bus.
const SubscriberID = "notify-dispatcher"

// Attach subscribes the dispatcher to status-change events.
func (d *Dispatcher) Attach(bus *events.Bus) {
	bus.Subscribe(SubscriberID, d.handle, events.KindStatusChanged)
}

func (d *Dispatcher) handle(ev events.Event) {
	change, ok := ev.(events.StatusChanged)
	if !ok {
		return
	}

	msg := Message{
		MonitorID: change.MonitorID,
		At:        change.At.Format(time.RFC3339),
	}
	if change.To == db.StatusDown {
		msg.Subject = fmt.Sprintf("Monitor %s is DOWN", change.MonitorID)
		msg.Body = fmt.Sprintf("Status changed %s -> %s at %s", change.From, change.To, msg.At)
	} else {
		msg.Subject = fmt.Sprintf("Monitor %s recovered", change.MonitorID)
		msg.Body = fmt.Sprintf("Status changed %s -> %s at %s", change.From, change.To, msg.At)
	}

	for _, n := range d.notifiers {
		go func(n Notifier) {
			defer func() {
				if r := recover(); r != nil {
					log.Printf("[NOTIFY] %s panicked: %v", n.Name(), r)
				}
			}()
			ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
			defer cancel()
			if err := n.Send(ctx, msg); err != nil {
				log.Printf("[NOTIFY] %s delivery failed: %v", n.Name(), err)
			}
		}(n)
	}
}
