package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config aggregates runtime configuration for the service.
type Config struct {
	App      AppConfig
	Postgres PostgresConfig
	Redis    RedisConfig
	Logger   LoggerConfig
	Auth     AuthConfig
	Analysis AnalysisConfig
	Pipeline PipelineConfig
	Cache    CacheConfig
}

// AppConfig controls server level behavior.
type AppConfig struct {
	Name                   string
	Env                    string
	Host                   string
	Port                   string
	Version                string
	RequestTimeoutSeconds  int
	ShutdownTimeoutSeconds int
}

// PostgresConfig holds DB connection values. An empty DSN selects the in-memory stores.
type PostgresConfig struct {
	DSN            string
	MaxConns       int32
	MinConns       int32
	RunMigrations  bool
	ConnMaxIdleSec int32
	ConnMaxLifeSec int32
}

// RedisConfig holds Redis connection values. An empty Addr disables the distributed case lock.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// LoggerConfig configures logging behavior.
type LoggerConfig struct {
	Level string
}

// AuthConfig defines token and password parameters.
// An empty bootstrap username skips creating the initial admin.
type AuthConfig struct {
	JWTSecret              string
	AccessTokenTTLMinutes  int
	BcryptCost             int
	BootstrapAdminUsername string
	BootstrapAdminPassword string
}

// AnalysisConfig points at the external analysis capability.
type AnalysisConfig struct {
	Endpoint       string
	TimeoutSeconds int
	MaxAttempts    int
	RetryBackoffMS int
}

// PipelineConfig tunes the worker and reconciliation loop.
type PipelineConfig struct {
	ReconcileIntervalSeconds int
	StaleAfterSeconds        int
	CaseLockTTLSeconds       int
}

// CacheConfig sizes the assessor lookup cache.
type CacheConfig struct {
	AssessorCacheSize       int
	AssessorCacheTTLSeconds int
}

// Load reads configuration from environment variables, applying defaults where possible.
func Load() (*Config, error) {
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("invalid REDIS_DB: %w", err)
	}

	cfg := &Config{
		App: AppConfig{
			Name:                   getEnv("APP_NAME", "screening-service"),
			Env:                    getEnv("APP_ENV", "development"),
			Host:                   getEnv("APP_HOST", "0.0.0.0"),
			Port:                   getEnv("APP_PORT", "5001"),
			Version:                getEnv("APP_VERSION", "dev"),
			RequestTimeoutSeconds:  getEnvAsInt("HTTP_REQUEST_TIMEOUT_SECONDS", 30),
			ShutdownTimeoutSeconds: getEnvAsInt("SHUTDOWN_TIMEOUT_SECONDS", 60),
		},
		Postgres: PostgresConfig{
			DSN:            os.Getenv("POSTGRES_DSN"),
			MaxConns:       int32(getEnvAsInt("POSTGRES_MAX_CONNS", 10)),
			MinConns:       int32(getEnvAsInt("POSTGRES_MIN_CONNS", 2)),
			RunMigrations:  getEnvAsBool("POSTGRES_RUN_MIGRATIONS", true),
			ConnMaxIdleSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_IDLE_SECONDS", 30)),
			ConnMaxLifeSec: int32(getEnvAsInt("POSTGRES_CONN_MAX_LIFE_SECONDS", 300)),
		},
		Redis: RedisConfig{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       redisDB,
		},
		Logger: LoggerConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Auth: AuthConfig{
			JWTSecret:              getEnv("AUTH_JWT_SECRET", "dev-secret"),
			AccessTokenTTLMinutes:  getEnvAsInt("AUTH_ACCESS_TOKEN_TTL_MINUTES", 60),
			BcryptCost:             getEnvAsInt("AUTH_BCRYPT_COST", 12),
			BootstrapAdminUsername: os.Getenv("AUTH_BOOTSTRAP_ADMIN_USERNAME"),
			BootstrapAdminPassword: os.Getenv("AUTH_BOOTSTRAP_ADMIN_PASSWORD"),
		},
		Analysis: AnalysisConfig{
			Endpoint:       os.Getenv("ML_API_ENDPOINT"),
			TimeoutSeconds: getEnvAsInt("ANALYSIS_TIMEOUT_SECONDS", 30),
			MaxAttempts:    getEnvAsInt("ANALYSIS_MAX_ATTEMPTS", 2),
			RetryBackoffMS: getEnvAsInt("ANALYSIS_RETRY_BACKOFF_MS", 500),
		},
		Pipeline: PipelineConfig{
			ReconcileIntervalSeconds: getEnvAsInt("PIPELINE_RECONCILE_INTERVAL_SECONDS", 300),
			StaleAfterSeconds:        getEnvAsInt("PIPELINE_STALE_AFTER_SECONDS", 900),
			CaseLockTTLSeconds:       getEnvAsInt("PIPELINE_CASE_LOCK_TTL_SECONDS", 120),
		},
		Cache: CacheConfig{
			AssessorCacheSize:       getEnvAsInt("ASSESSOR_CACHE_SIZE", 256),
			AssessorCacheTTLSeconds: getEnvAsInt("ASSESSOR_CACHE_TTL_SECONDS", 60),
		},
	}

	if cfg.Analysis.MaxAttempts < 1 {
		return nil, fmt.Errorf("invalid ANALYSIS_MAX_ATTEMPTS: %d", cfg.Analysis.MaxAttempts)
	}
	if cfg.Analysis.TimeoutSeconds <= 0 {
		return nil, fmt.Errorf("invalid ANALYSIS_TIMEOUT_SECONDS: %d", cfg.Analysis.TimeoutSeconds)
	}
	// The pipeline holds the case lock across every analysis attempt.
	if budget := cfg.Analysis.Budget(); cfg.Pipeline.CaseLockTTL() <= budget {
		return nil, fmt.Errorf("PIPELINE_CASE_LOCK_TTL_SECONDS (%s) must exceed the analysis budget (%s)", cfg.Pipeline.CaseLockTTL(), budget)
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

// ShutdownTimeout bounds how long shutdown waits for the in-flight job.
func (a AppConfig) ShutdownTimeout() time.Duration {
	if a.ShutdownTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(a.ShutdownTimeoutSeconds) * time.Second
}

// Timeout bounds a single analysis attempt.
func (a AnalysisConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetryBackoff is the pause between analysis attempts.
func (a AnalysisConfig) RetryBackoff() time.Duration {
	if a.RetryBackoffMS < 0 {
		return 0
	}
	return time.Duration(a.RetryBackoffMS) * time.Millisecond
}

// Budget is the longest a case can spend in analysis: every attempt timing out
// plus the pauses between them.
func (a AnalysisConfig) Budget() time.Duration {
	attempts := a.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	return time.Duration(attempts)*a.Timeout() + time.Duration(attempts-1)*a.RetryBackoff()
}

// ReconcileInterval returns how often stuck cases are re-enqueued. Zero disables the loop.
func (p PipelineConfig) ReconcileInterval() time.Duration {
	if p.ReconcileIntervalSeconds <= 0 {
		return 0
	}
	return time.Duration(p.ReconcileIntervalSeconds) * time.Second
}

// StaleAfter returns the age after which an unprocessed case is considered lost.
func (p PipelineConfig) StaleAfter() time.Duration {
	return time.Duration(p.StaleAfterSeconds) * time.Second
}

// CaseLockTTL returns the lease duration of a per-case lock.
func (p PipelineConfig) CaseLockTTL() time.Duration {
	if p.CaseLockTTLSeconds <= 0 {
		return 2 * time.Minute
	}
	return time.Duration(p.CaseLockTTLSeconds) * time.Second
}

// AssessorCacheTTL returns the lifetime of cached directory lookups.
func (c CacheConfig) AssessorCacheTTL() time.Duration {
	return time.Duration(c.AssessorCacheTTLSeconds) * time.Second
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
