package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"voicebroker/pkg/errors"
)

type Config struct {
	App           AppConfig
	HTTP          HTTPConfig
	Postgres      PostgresConfig
	ClickHouse    ClickHouseConfig
	Redis         RedisConfig
	Kafka         KafkaConfig
	Voice         VoiceConfig
	Agents        AgentsConfig
	Session       SessionConfig
	Quota         QuotaConfig
	Auth          AuthConfig
	RateLimit     RateLimitConfig
	Crypto        CryptoConfig
	UserContext   UserContextConfig
	ErrorTracking ErrorTrackingConfig
}

type AppConfig struct {
	Name     string `envconfig:"APP_NAME" default:"voicebroker"`
	Env      string `envconfig:"APP_ENV" default:"development"`
	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
	Debug    bool   `envconfig:"DEBUG" default:"false"`
	Version  string `envconfig:"APP_VERSION" default:"dev"`
}

type HTTPConfig struct {
	Port                  int           `envconfig:"HTTP_PORT" default:"8080"`
	ReadTimeout           time.Duration `envconfig:"HTTP_READ_TIMEOUT" default:"15s"`
	WriteTimeout          time.Duration `envconfig:"HTTP_WRITE_TIMEOUT" default:"30s"`
	AdminAPIKey           string        `envconfig:"ADMIN_API_KEY"`
	ProviderWebhookSecret string        `envconfig:"PROVIDER_WEBHOOK_SECRET"`
}

type PostgresConfig struct {
	Host          string `envconfig:"POSTGRES_HOST" required:"true"`
	Port          int    `envconfig:"POSTGRES_PORT" default:"5432"`
	User          string `envconfig:"POSTGRES_USER" required:"true"`
	Password      string `envconfig:"POSTGRES_PASSWORD" required:"true"`
	Database      string `envconfig:"POSTGRES_DB" required:"true"`
	SSLMode       string `envconfig:"POSTGRES_SSL_MODE" default:"disable"`
	MaxConns      int    `envconfig:"POSTGRES_MAX_CONNS" default:"25"`
	RunMigrations bool   `envconfig:"POSTGRES_RUN_MIGRATIONS" default:"true"`
}

func (c PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

type ClickHouseConfig struct {
	Enabled  bool   `envconfig:"CLICKHOUSE_ENABLED" default:"false"`
	Host     string `envconfig:"CLICKHOUSE_HOST" default:"localhost"`
	Port     int    `envconfig:"CLICKHOUSE_PORT" default:"9000"`
	User     string `envconfig:"CLICKHOUSE_USER" default:"default"`
	Password string `envconfig:"CLICKHOUSE_PASSWORD"`
	Database string `envconfig:"CLICKHOUSE_DB" default:"voice"`
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" required:"true"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD"`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Enabled bool     `envconfig:"KAFKA_ENABLED" default:"false"`
	Brokers []string `envconfig:"KAFKA_BROKERS" default:"localhost:9092"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"voicebroker"`
}

// VoiceConfig describes the upstream voice provider token endpoint
type VoiceConfig struct {
	BaseURL           string        `envconfig:"VOICE_API_BASE_URL" default:"https://api.elevenlabs.io"`
	APIKey            string        `envconfig:"VOICE_API_KEY"`
	TokenPath         string        `envconfig:"VOICE_TOKEN_PATH" default:"/v1/convai/conversation/token"`
	TokenTimeout      time.Duration `envconfig:"VOICE_TOKEN_TIMEOUT" default:"10s"`
	RequestsPerMinute int           `envconfig:"VOICE_REQUESTS_PER_MINUTE" default:"600"`
}

// AgentsConfig overrides the upstream agent id of each built-in persona slot.
// Empty values keep the built-in default.
type AgentsConfig struct {
	Agent1ID string   `envconfig:"AGENT_1_ID"`
	Agent2ID string   `envconfig:"AGENT_2_ID"`
	Agent3ID string   `envconfig:"AGENT_3_ID"`
	Agent4ID string   `envconfig:"AGENT_4_ID"`
	Disabled []string `envconfig:"AGENTS_DISABLED"`
}

// Overrides returns the configured upstream ids keyed by persona slot
func (c AgentsConfig) Overrides() map[int]string {
	out := map[int]string{}
	for slot, id := range []string{c.Agent1ID, c.Agent2ID, c.Agent3ID, c.Agent4ID} {
		if id != "" {
			out[slot+1] = id
		}
	}
	return out
}

type SessionConfig struct {
	CacheTTL            time.Duration `envconfig:"SESSION_CACHE_TTL" default:"2h"`
	IdleCeiling         time.Duration `envconfig:"SESSION_IDLE_CEILING" default:"30m"`
	ReaperInterval      time.Duration `envconfig:"SESSION_REAPER_INTERVAL" default:"1m"`
	ReconcilerInterval  time.Duration `envconfig:"SESSION_RECONCILER_INTERVAL" default:"10m"`
	EndClaimTTL         time.Duration `envconfig:"SESSION_END_CLAIM_TTL" default:"30s"`
	EndedMarkerTTL      time.Duration `envconfig:"SESSION_ENDED_MARKER_TTL" default:"24h"`
	ReconcilerBatchSize int           `envconfig:"SESSION_RECONCILER_BATCH_SIZE" default:"200"`
}

type QuotaConfig struct {
	DailyLimitSeconds int64         `envconfig:"QUOTA_DAILY_LIMIT_SECONDS" default:"600"`
	Timezone          string        `envconfig:"QUOTA_TIMEZONE" default:"Europe/Paris"`
	CacheTTL          time.Duration `envconfig:"QUOTA_CACHE_TTL" default:"26h"`

	location *time.Location
}

// Location returns the reference timezone for day keys. Valid after Validate.
func (c QuotaConfig) Location() *time.Location {
	if c.location == nil {
		return time.UTC
	}
	return c.location
}

type AuthConfig struct {
	JWTSecret         string        `envconfig:"AUTH_JWT_SECRET" required:"true"`
	JWTIssuer         string        `envconfig:"AUTH_JWT_ISSUER"`
	ProfileAPIURL     string        `envconfig:"PROFILE_API_URL"`
	ProfileAPITimeout time.Duration `envconfig:"PROFILE_API_TIMEOUT" default:"5s"`
}

type RateLimitConfig struct {
	SessionsPerMinute int `envconfig:"RATE_LIMIT_SESSIONS_PER_MINUTE" default:"6"`
	Burst             int `envconfig:"RATE_LIMIT_BURST" default:"3"`
}

type CryptoConfig struct {
	EncryptionKey string `envconfig:"ENCRYPTION_KEY"` // 32 bytes for AES-256; empty disables the encrypted override
}

type UserContextConfig struct {
	TTL time.Duration `envconfig:"USER_CONTEXT_TTL" default:"1h"`
}

type ErrorTrackingConfig struct {
	Enabled     bool   `envconfig:"ERROR_TRACKING_ENABLED" default:"false"`
	SentryDSN   string `envconfig:"SENTRY_DSN"`
	Environment string `envconfig:"SENTRY_ENVIRONMENT" default:"production"`
}

// Load reads configuration from environment variables
// It first tries to load .env file (useful for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to process env config")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks cross-field constraints and resolves the quota timezone
func (c *Config) Validate() error {
	var errs errors.MultiError

	loc, err := time.LoadLocation(c.Quota.Timezone)
	if err != nil {
		errs.Add(errors.NewValidationError("QUOTA_TIMEZONE", "unknown timezone", c.Quota.Timezone))
	} else {
		c.Quota.location = loc
	}

	positive := map[string]time.Duration{
		"SESSION_CACHE_TTL":           c.Session.CacheTTL,
		"SESSION_IDLE_CEILING":        c.Session.IdleCeiling,
		"SESSION_REAPER_INTERVAL":     c.Session.ReaperInterval,
		"SESSION_RECONCILER_INTERVAL": c.Session.ReconcilerInterval,
		"SESSION_END_CLAIM_TTL":       c.Session.EndClaimTTL,
		"SESSION_ENDED_MARKER_TTL":    c.Session.EndedMarkerTTL,
		"QUOTA_CACHE_TTL":             c.Quota.CacheTTL,
		"USER_CONTEXT_TTL":            c.UserContext.TTL,
		"VOICE_TOKEN_TIMEOUT":         c.Voice.TokenTimeout,
	}
	for field, d := range positive {
		if d <= 0 {
			errs.Add(errors.NewValidationError(field, "must be positive", d))
		}
	}

	if c.Session.CacheTTL <= c.Session.IdleCeiling {
		errs.Add(errors.NewValidationError("SESSION_CACHE_TTL", "must exceed SESSION_IDLE_CEILING", c.Session.CacheTTL))
	}

	if c.Session.EndedMarkerTTL <= c.Session.CacheTTL+c.Session.ReconcilerInterval {
		errs.Add(errors.NewValidationError("SESSION_ENDED_MARKER_TTL", "must exceed SESSION_CACHE_TTL plus SESSION_RECONCILER_INTERVAL", c.Session.EndedMarkerTTL))
	}

	if c.Quota.DailyLimitSeconds <= 0 {
		errs.Add(errors.NewValidationError("QUOTA_DAILY_LIMIT_SECONDS", "must be positive", c.Quota.DailyLimitSeconds))
	}

	if c.RateLimit.SessionsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		errs.Add(errors.NewValidationError("RATE_LIMIT_SESSIONS_PER_MINUTE", "rate and burst must be positive", c.RateLimit.SessionsPerMinute))
	}

	if c.Crypto.EncryptionKey != "" && len(c.Crypto.EncryptionKey) != 32 {
		errs.Add(errors.NewValidationError("ENCRYPTION_KEY", "must be exactly 32 bytes", len(c.Crypto.EncryptionKey)))
	}

	if c.ErrorTracking.Enabled && c.ErrorTracking.SentryDSN == "" {
		errs.Add(errors.NewValidationError("SENTRY_DSN", "required when error tracking is enabled", ""))
	}

	return errs.ToError()
}

// IsProduction reports whether the service runs with production settings
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}
