package config

import "time"

// QueueConfig holds runtime configuration for the deployment queue service.
type QueueConfig struct {
	Environment   string
	LogLevel      string
	Addr          string
	DatabaseURL   string
	MigrationsDir string
	InvokeToken   string

	ProcessRateLimit  int
	TrustProxyHeaders bool

	NetlifyAPIURL     string
	NetlifyToken      string
	PlatformDomain    string
	HTTPClientTimeout time.Duration

	RateLimitCalls     int
	RateLimitWindow    time.Duration
	RateLimitBuffer    time.Duration
	RateLimitRedisAddr string
	RateLimitRedisPass string
	RateLimitRedisDB   int

	BatchSize       int
	MaxConcurrent   int
	BackoffBase     time.Duration
	BackoffMax      time.Duration
	BackoffFactor   float64
	PollInterval    time.Duration
	MaxPolls        int
	StaleJobAfter   time.Duration
	ProcessInterval time.Duration

	BundleArchiveDir string
}

// LoadQueueConfig constructs a QueueConfig from environment variables.
func LoadQueueConfig() QueueConfig {
	return QueueConfig{
		Environment:   GetString("APP_ENV", "development"),
		LogLevel:      GetString("LOG_LEVEL", "info"),
		Addr:          GetString("QUEUE_ADDR", ":4100"),
		DatabaseURL:   GetString("DATABASE_URL", "postgres://sites:sites@db:5432/sites?sslmode=disable"),
		MigrationsDir: GetString("DB_MIGRATIONS_DIR", "db/migrations"),
		InvokeToken:   GetString("QUEUE_INVOKE_TOKEN", ""),

		ProcessRateLimit:  GetInt("PROCESS_RATE_LIMIT", 30),
		TrustProxyHeaders: GetBool("TRUST_PROXY_HEADERS", false),

		NetlifyAPIURL:     GetString("NETLIFY_API_URL", "https://api.netlify.com/api/v1"),
		NetlifyToken:      GetString("NETLIFY_AUTH_TOKEN", ""),
		PlatformDomain:    GetString("PLATFORM_DOMAIN", "wondrousdigital.com"),
		HTTPClientTimeout: seconds("HTTP_CLIENT_TIMEOUT_SECONDS", 60),

		RateLimitCalls:     GetInt("NETLIFY_RATE_LIMIT", 60),
		RateLimitWindow:    seconds("NETLIFY_RATE_WINDOW_SECONDS", 60),
		RateLimitBuffer:    millis("NETLIFY_RATE_BUFFER_MS", 100),
		RateLimitRedisAddr: GetString("RATE_LIMIT_REDIS_ADDR", ""),
		RateLimitRedisPass: GetString("RATE_LIMIT_REDIS_PASSWORD", ""),
		RateLimitRedisDB:   GetInt("RATE_LIMIT_REDIS_DB", 0),

		BatchSize:       GetInt("QUEUE_BATCH_SIZE", 3),
		MaxConcurrent:   GetInt("QUEUE_MAX_CONCURRENT", 3),
		BackoffBase:     millis("BACKOFF_BASE_MS", 1000),
		BackoffMax:      millis("BACKOFF_MAX_MS", 30000),
		BackoffFactor:   GetFloat("BACKOFF_FACTOR", 2),
		PollInterval:    seconds("DEPLOY_POLL_INTERVAL_SECONDS", 2),
		MaxPolls:        GetInt("DEPLOY_MAX_POLLS", 90),
		StaleJobAfter:   seconds("STALE_JOB_AFTER_SECONDS", 900),
		ProcessInterval: seconds("QUEUE_PROCESS_INTERVAL_SECONDS", 0),

		BundleArchiveDir: GetString("BUNDLE_ARCHIVE_DIR", ""),
	}
}
