package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Scheduler SchedulerConfig
	Notify    NotifyConfig
}

type ServerConfig struct {
	Host string
	Port int
}

type RedisConfig struct {
	// URI is empty when the service should run on the in-memory store.
	URI string
}

type SchedulerConfig struct {
	Tick       time.Duration
	BatchSize  int
	BatchDelay time.Duration
}

type NotifyConfig struct {
	SlackWebhookURL string
	WebhookURL      string
	SendGridAPIKey  string
	AlertEmail      string
	FromEmail       string
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("[CONFIG] no .env file found, using environment")
	}

	cfg := &Config{
		Server: ServerConfig{
			Host: getEnv("HOST", "0.0.0.0"),
			Port: getEnvInt("PORT", 8080),
		},
		Redis: RedisConfig{
			URI: getEnv("REDIS_URI", ""),
		},
		Scheduler: SchedulerConfig{
			Tick:       getEnvDuration("SCHEDULER_TICK", 30*time.Second),
			BatchSize:  getEnvInt("SCHEDULER_BATCH_SIZE", 5),
			BatchDelay: getEnvDuration("SCHEDULER_BATCH_DELAY", time.Second),
		},
		Notify: NotifyConfig{
			SlackWebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
			WebhookURL:      getEnv("ALERT_WEBHOOK_URL", ""),
			SendGridAPIKey:  getEnv("SENDGRID_API_KEY", ""),
			AlertEmail:      getEnv("ALERT_EMAIL", ""),
			FromEmail:       getEnv("ALERT_FROM_EMAIL", "alerts@uptime-sentry.local"),
		},
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	return value
}

func getEnvInt(key string, fallback int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %d", key, value, fallback)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, exists := os.LookupEnv(key)
	if !exists {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		log.Printf("[CONFIG] invalid %s=%q, using %s", key, value, fallback)
		return fallback
	}
	return d
}
