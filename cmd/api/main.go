package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"uptime-sentry/internal/api"
	"uptime-sentry/internal/checker"
	"uptime-sentry/internal/config"
	"uptime-sentry/internal/events"
	"uptime-sentry/internal/incident"
	"uptime-sentry/internal/metrics"
	"uptime-sentry/internal/monitor"
	"uptime-sentry/internal/notify"
	"uptime-sentry/internal/stats"
	"uptime-sentry/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := buildStore(cfg)
	if err != nil {
		log.Fatalf("Failed to initialize store: %v", err)
	}

	bus := events.NewBus()
	defer bus.Close()

	m := metrics.New()
	chk := checker.New(checker.Options{})
	detector := incident.NewDetector(st)
	aggregator := stats.NewAggregator(st)

	engine := monitor.NewEngine(st, chk, detector, aggregator, bus, m, monitor.EngineConfig{
		Tick:       cfg.Scheduler.Tick,
		BatchSize:  cfg.Scheduler.BatchSize,
		BatchDelay: cfg.Scheduler.BatchDelay,
	})
	if err := engine.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer engine.Stop()

	if notifiers := buildNotifiers(cfg); len(notifiers) > 0 {
		notify.NewDispatcher(notifiers).Attach(bus)
	}

	service := monitor.NewService(st, engine, detector, aggregator, bus)
	server := api.NewServer(cfg, service, m)

	go func() {
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			log.Printf("Server error: %v", err)
			stop()
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
	}
}

func buildStore(cfg *config.Config) (store.Store, error) {
	if cfg.Redis.URI == "" {
		log.Println("[STORE] REDIS_URI not set, using in-memory store")
		return store.NewMemoryStore(), nil
	}
	return store.NewRedisStore(cfg.Redis.URI)
}

func buildNotifiers(cfg *config.Config) []notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notify.SlackWebhookURL != "" {
		notifiers = append(notifiers, &notify.SlackNotifier{WebhookURL: cfg.Notify.SlackWebhookURL})
	}
	if cfg.Notify.WebhookURL != "" {
		notifiers = append(notifiers, &notify.WebhookNotifier{URL: cfg.Notify.WebhookURL})
	}
	if cfg.Notify.SendGridAPIKey != "" && cfg.Notify.AlertEmail != "" {
		notifiers = append(notifiers, &notify.EmailNotifier{
			APIKey: cfg.Notify.SendGridAPIKey,
			From:   cfg.Notify.FromEmail,
			To:     cfg.Notify.AlertEmail,
		})
	}
	return notifiers
}
