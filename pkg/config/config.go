package config

import (
	"time"

	"github.com/joho/godotenv"
)

// Config holds the core runtime configuration for a service instance.
// It supports environment-based initialization, with sensible defaults.
type Config struct {
	ServiceName string // e.g. "planner-adapter"
	Env         string // e.g. "dev", "uat", "prod"
	LogLevel    string // "debug", "info", etc.
	Port        int    // service HTTP port
	OpsPort     int    // metrics + websocket side port

	PlannerBaseURL    string        // upstream Study Planner API, e.g. http://localhost:8000/api
	RequestTimeout    time.Duration // per-request budget for general platform calls
	RefreshTimeout    time.Duration // independent budget for the token renewal call
	FatalServerErrors bool          // treat upstream 5xx/transport failures as session-fatal

	RateRPS   float64 // outbound requests per second toward the platform
	RateBurst int

	RedisAddr      string // e.g. localhost:6379
	RedisDB        int
	RedisPass      string
	RedisKeyPrefix string // namespace prefix for persisted session keys

	DatabaseURL string // optional; empty disables the session audit trail
	NATSURL     string // e.g. nats://localhost:4222
	RabbitURL   string // optional; empty disables AMQP notification delivery
	AWSRegion   string // for AWS SDK client

	SubjectPrefix string // NATS subject prefix for lifecycle events
	NotifyQueue   string // AMQP queue for user-facing notifications

	SecretName      string        // Secrets Manager entry holding the service-account login
	CacheTTL        time.Duration // TTL for secret cache
	CleanupFreq     time.Duration // frequency for cache cleanup goroutine
	AutoLogin       bool          // log the service account in at boot
	RememberSession bool          // persist the session across restarts

	StatsRefreshInterval time.Duration
}

// Load loads configuration from environment variables and .env file if present.
func Load() *Config {
	// load .env silently (no error if missing)
	_ = godotenv.Load()

	cfg := &Config{
		ServiceName:       GetEnv("SERVICE_NAME", "planner-adapter"),
		Env:               GetEnv("ENV", "dev"),
		LogLevel:          GetEnv("LOG_LEVEL", "info"),
		Port:              GetEnvInt("PORT", 9040),
		OpsPort:           GetEnvInt("OPS_PORT", 9041),
		PlannerBaseURL:    GetEnv("PLANNER_BASE_URL", "http://localhost:8000/api"),
		RequestTimeout:    GetEnvDuration("REQUEST_TIMEOUT", 3*time.Minute),
		RefreshTimeout:    GetEnvDuration("REFRESH_TIMEOUT", 10*time.Second),
		FatalServerErrors: GetEnvBool("SESSION_FATAL_5XX", true),
		RateRPS:           float64(GetEnvInt("RATE_RPM", 60)) / 60.0,
		RateBurst:         GetEnvInt("RATE_BURST", 10),
		RedisAddr:         GetEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:           GetEnvInt("REDIS_DB", 0),
		RedisPass:         GetEnv("REDIS_PASS", ""),
		RedisKeyPrefix:    GetEnv("REDIS_KEY_PREFIX", "planner:session"),
		DatabaseURL:       GetEnv("DATABASE_URL", ""),
		NATSURL:           GetEnv("NATS_URL", "nats://localhost:4222"),
		RabbitURL:         GetEnv("RABBITMQ_URL", ""),
		AWSRegion:         GetEnv("AWS_REGION", "us-east-2"),
		SubjectPrefix:     GetEnv("SUBJECT_PREFIX", "evt.session"),
		NotifyQueue:       GetEnv("NOTIFY_QUEUE", "planner.notifications"),
		SecretName:        GetEnv("PLANNER_SECRET_NAME", "planner/service-account"),
		CacheTTL:          GetEnvDuration("CACHE_TTL", 24*time.Hour),
		CleanupFreq:       GetEnvDuration("CACHE_CLEANUP_FREQ", 10*time.Minute),
		AutoLogin:         GetEnvBool("AUTO_LOGIN", false),
		RememberSession:   GetEnvBool("REMEMBER_SESSION", true),

		StatsRefreshInterval: GetEnvDuration("STATS_REFRESH_INTERVAL", 15*time.Minute),
	}

	return cfg
}
