// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds the full application configuration.
type Config struct {
	DB       DBConfig       `envPrefix:"DB_"`
	Server   ServerConfig   `envPrefix:"SERVER_"`
	S3       S3Config       `envPrefix:"S3_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Auth     AuthConfig     `envPrefix:"AUTH_"`
	Fetch    FetchConfig    `envPrefix:"FETCH_"`
	Ingest   IngestConfig   `envPrefix:"INGEST_"`
	Dedup    DedupConfig    `envPrefix:"DEDUP_"`
	Promote  PromoteConfig  `envPrefix:"PROMOTE_"`
	Trending TrendingConfig `envPrefix:"TRENDING_"`
	Cron     CronConfig     `envPrefix:"CRON_"`
	Log      LogConfig      `envPrefix:"LOG_"`
}

// DBConfig holds PostgreSQL connection parameters.
type DBConfig struct {
	Host    string `env:"HOST" envDefault:"localhost"`
	Port    int    `env:"PORT" envDefault:"5432"`
	User    string `env:"USER" envDefault:"newsdesk"`
	Pass    string `env:"PASS" envDefault:"newsdesk"`
	DBName  string `env:"NAME" envDefault:"newsdesk"`
	SSLMode string `env:"SSLMODE" envDefault:"disable"`
}

// DSN returns a PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return "postgres://" + c.User + ":" + c.Pass +
		"@" + c.Host + ":" + strconv.Itoa(c.Port) +
		"/" + c.DBName + "?sslmode=" + c.SSLMode
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        string   `env:"PORT" envDefault:":8080"`
	Host        string   `env:"HOST"`
	CORSOrigins []string `env:"CORS_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
}

// Addr returns the full listen address (host:port).
func (c ServerConfig) Addr() string {
	return c.Host + c.Port
}

// S3Config holds S3-compatible object storage parameters. An empty
// endpoint disables the raw payload archive.
type S3Config struct {
	Endpoint  string `env:"ENDPOINT"`
	Bucket    string `env:"BUCKET" envDefault:"newsdesk-feeds"`
	AccessKey string `env:"ACCESS_KEY"`
	SecretKey string `env:"SECRET_KEY"`
	Region    string `env:"REGION" envDefault:"us-east-1"`
}

// Enabled reports whether archiving is configured.
func (c S3Config) Enabled() bool {
	return c.Endpoint != ""
}

// RedisConfig configures the trending read cache. An empty address disables it.
type RedisConfig struct {
	Addr     string        `env:"ADDR"`
	Password string        `env:"PASSWORD"`
	DB       int           `env:"DB" envDefault:"0"`
	TTL      time.Duration `env:"TTL" envDefault:"5m"`
}

// AuthConfig holds the trigger surface credentials.
type AuthConfig struct {
	// TriggerTokenHash is the bcrypt hash of the bearer token accepted on /api/jobs.
	TriggerTokenHash string `env:"TRIGGER_TOKEN_HASH"`
	// ActorSalt salts the hash that anonymizes engagement actors.
	ActorSalt string `env:"ACTOR_SALT" envDefault:"newsdesk"`
}

// FetchConfig bounds outbound feed retrieval.
type FetchConfig struct {
	Timeout   time.Duration `env:"TIMEOUT" envDefault:"15s"`
	MaxBytes  int64         `env:"MAX_BYTES" envDefault:"5242880"`
	UserAgent string        `env:"USER_AGENT" envDefault:"newsdesk/1.0 (+https://github.com/Saul-Punybz/newsdesk)"`
}

// IngestConfig controls the per-run ingestion orchestrator.
type IngestConfig struct {
	Concurrency   int           `env:"CONCURRENCY" envDefault:"4"`
	RunTimeout    time.Duration `env:"RUN_TIMEOUT" envDefault:"5m"`
	MaxSources    int           `env:"MAX_SOURCES" envDefault:"50"`
	SummaryWindow int           `env:"SUMMARY_WINDOW" envDefault:"40"`
	TagLimit      int           `env:"TAG_LIMIT" envDefault:"5"`
}

// DedupConfig tunes fuzzy duplicate detection.
type DedupConfig struct {
	Window        time.Duration `env:"WINDOW" envDefault:"24h"`
	MaxCandidates int           `env:"MAX_CANDIDATES" envDefault:"500"`
	Threshold     float64       `env:"THRESHOLD" envDefault:"0.8"`
}

// PromoteConfig controls the promotion engine.
type PromoteConfig struct {
	AutoApproveCategories []string `env:"AUTO_APPROVE_CATEGORIES" envSeparator:","`
	BatchSize             int      `env:"BATCH_SIZE" envDefault:"200"`
}

// TrendingConfig controls scoring and snapshot size.
type TrendingConfig struct {
	HalfLife      time.Duration `env:"HALF_LIFE" envDefault:"36h"`
	EmpathyWeight float64       `env:"WEIGHT_EMPATHY" envDefault:"5"`
	ShareWeight   float64       `env:"WEIGHT_SHARE" envDefault:"3"`
	ViewWeight    float64       `env:"WEIGHT_VIEW" envDefault:"1"`
	TopN          int           `env:"TOP_N" envDefault:"100"`
}

// CronConfig holds the worker schedules.
type CronConfig struct {
	Ingest     string `env:"INGEST" envDefault:"*/15 * * * *"`
	Promote    string `env:"PROMOTE" envDefault:"*/5 * * * *"`
	Rank       string `env:"RANK" envDefault:"*/10 * * * *"`
	RunOnStart bool   `env:"RUN_ON_START" envDefault:"true"`
}

// LogConfig selects the slog level and handler.
type LogConfig struct {
	Level  string `env:"LEVEL" envDefault:"info"`
	Format string `env:"FORMAT" envDefault:"text"`
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if cfg.Ingest.Concurrency < 1 {
		cfg.Ingest.Concurrency = 1
	}
	if cfg.Dedup.Threshold <= 0 || cfg.Dedup.Threshold > 1 {
		return Config{}, fmt.Errorf("config: DEDUP_THRESHOLD must be in (0,1], got %v", cfg.Dedup.Threshold)
	}
	return cfg, nil
}
