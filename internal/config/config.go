package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

type Config struct {
	DatabaseURL string
	AMQPURL     string
	Port        string
	WebhookKey  string

	// Scheduling
	Timezone          string
	BusinessStartHour int
	BusinessEndHour   int
	MinGap            time.Duration
	SlotHorizonDays   int

	// Delivery
	ChunkSize     int
	ChunkInterval time.Duration
	RetryBackoff  time.Duration
	PoolSize      int
	PoolTTL       time.Duration

	Debug bool
}

func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Info("No .env file found, relying on OS environment variables")
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		AMQPURL:     os.Getenv("AMQP_URL"),
		Port:        envString("PORT", "8080"),
		WebhookKey:  os.Getenv("PROVIDER_WEBHOOK_KEY"),

		Timezone:          envString("SCHEDULER_TIMEZONE", "America/New_York"),
		BusinessStartHour: envInt("BUSINESS_START_HOUR", 9),
		BusinessEndHour:   envInt("BUSINESS_END_HOUR", 17),
		MinGap:            envDuration("MIN_MESSAGE_GAP", 5*time.Minute),
		SlotHorizonDays:   envInt("SLOT_HORIZON_DAYS", 14),

		ChunkSize:     envInt("DELIVERY_CHUNK_SIZE", 100),
		ChunkInterval: envDuration("DELIVERY_CHUNK_INTERVAL", time.Second),
		RetryBackoff:  envDuration("DELIVERY_RETRY_BACKOFF", 2*time.Second),
		PoolSize:      envInt("PROVIDER_POOL_SIZE", 10),
		PoolTTL:       envDuration("PROVIDER_POOL_TTL", 5*time.Minute),

		Debug: os.Getenv("DEBUG") == "true",
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	return cfg, nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warnf("invalid value for %s: %q, using default %d", key, v, fallback)
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warnf("invalid value for %s: %q, using default %s", key, v, fallback)
		return fallback
	}
	return d
}
