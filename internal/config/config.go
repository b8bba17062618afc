package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App       AppConfig
	Postgres  PostgresConfig
	Redis     RedisConfig
	Logger    LoggerConfig
	Engine    EngineConfig
	Scheduler SchedulerConfig
	Slack     SlackConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                  string
	Env                   string
	Host                  string
	Port                  string
	Version               string
	RequestTimeoutSeconds int
}

// PostgresConfig holds DB connection values.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. UseForLocks switches the
// per-customer serialization from in-process mutexes to Redis locks, which
// is required when more than one instance shares the store.
type RedisConfig struct {
	Addr        string
	Password    string
	DB          int
	UseForLocks bool
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// EngineConfig carries the case lifecycle thresholds and identity sets.
// Passed into the engine at construction; never read from ambient state.
type EngineConfig struct {
	AdminIdentities   []string
	Keywords          []string
	ClosurePhrases    []string
	EscalationHours   int
	FollowupThreshold int
	MaxBodyBytes      int
	StoreTimeoutSec   int
}

// SchedulerConfig controls the periodic escalation re-evaluation.
type SchedulerConfig struct {
	IntervalMinutes int
	CronExpr        string
}

// SlackConfig holds notification delivery settings. Kind-to-channel routing:
// NEW_MESSAGE goes to SupportChannel, ESCALATION to AlertingChannel,
// CLOSURE to LoggingChannel.
type SlackConfig struct {
	BotToken        string
	SupportChannel  string
	AlertingChannel string
	LoggingChannel  string
	MaxRetries      int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	maxConns := int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10))
	minConns := int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2))
	runMigrations := getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true)
	connMaxIdle := int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30))
	connMaxLife := int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300))

	cfg := &Config{
		App: AppConfig{
			Name:                  getEnv("APP_NAME", "case-service"),
			Env:                   getEnv("APP_ENV", "development"),
			Host:                  getEnv("APP_HOST", "0.0.0.0"),
			Port:                  getEnv("APP_PORT", "8080"),
			Version:               getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds: getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       maxConns,
			MinConns:       minConns,
			RunMigrations:  runMigrations,
			ConnMaxIdleSec: connMaxIdle,
			ConnMaxLifeSec: connMaxLife,
		},
		Redis: RedisConfig{
			Addr:        getEnv("REDIS_ADDR", "127.0.0.1:6379"),
			Password:    os.Getenv("REDIS_PASSWORD"),
			DB:          redisDB,
			UseForLocks: getEnvAsBool("REDIS_LOCKS", false),
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Engine: EngineConfig{
			AdminIdentities:   getEnvAsList("ADMIN_IDENTITIES", nil),
			Keywords:          getEnvAsList("ESCALATION_KEYWORDS", []string{"urgent", "immediately"}),
			ClosurePhrases:    getEnvAsList("CLOSURE_PHRASES", []string{"I'm closing this case."}),
			EscalationHours:   getEnvAsInt("ESCALATION_HOURS", 48),
			FollowupThreshold: getEnvAsInt("FOLLOWUP_THRESHOLD", 3),
			MaxBodyBytes:      getEnvAsInt("MAX_BODY_BYTES", 10240),
			StoreTimeoutSec:   getEnvAsInt("STORE_TIMEOUT_SECONDS", 5),
		},
		Scheduler: SchedulerConfig{
			IntervalMinutes: getEnvAsInt("TICK_INTERVAL_MINUTES", 60),
			CronExpr:        os.Getenv("TICK_CRON"),
		},
		Slack: SlackConfig{
			BotToken:        os.Getenv("SLACK_BOT_TOKEN"),
			SupportChannel:  os.Getenv("SUPPORT_SLACK_CHANNEL"),
			AlertingChannel: os.Getenv("ALERTING_SLACK_CHANNEL"),
			LoggingChannel:  os.Getenv("LOGGING_SLACK_CHANNEL"),
			MaxRetries:      getEnvAsInt("SLACK_MAX_RETRIES", 3),
			RetryBaseDelay:  time.Duration(getEnvAsInt("SLACK_RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
			RetryMaxDelay:   time.Duration(getEnvAsInt("SLACK_RETRY_MAX_DELAY_MS", 60000)) * time.Millisecond,
		},
	}

	return cfg, nil
}

// Addr returns the HTTP bind address.
func (a AppConfig) Addr() string {
	return fmt.Sprintf("%s:%s", a.Host, a.Port)
}

// RequestTimeout returns the configured request timeout duration.
func (a AppConfig) RequestTimeout() time.Duration {
	if a.RequestTimeoutSeconds <= 0 {
		return 0
	}
	return time.Duration(a.RequestTimeoutSeconds) * time.Second
}

// EscalationAfter returns the unanswered-time threshold.
func (e EngineConfig) EscalationAfter() time.Duration {
	return time.Duration(e.EscalationHours) * time.Hour
}

// StoreTimeout bounds every individual case store call.
func (e EngineConfig) StoreTimeout() time.Duration {
	if e.StoreTimeoutSec <= 0 {
		return 5 * time.Second
	}
	return time.Duration(e.StoreTimeoutSec) * time.Second
}

// Interval returns the tick cadence.
func (s SchedulerConfig) Interval() time.Duration {
	if s.IntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(s.IntervalMinutes) * time.Minute
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func getEnvAsList(key string, fallback []string) []string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parts := strings.Split(val, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return fallback
	}
	return out
}
