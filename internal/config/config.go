package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config aggregates all runtime settings required by the application.
type Config struct {
	AppName     string `validate:"required"`
	Environment string
	TestMode    bool
	HTTP        HTTPConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	JWT         JWTConfig
	API         APIConfig
	Context     ContextConfig
	Monitor     MonitorConfig
	Logger      LoggerConfig
	Migrations  MigrationsConfig
}

type HTTPConfig struct {
	Host         string
	Port         string        `validate:"required,numeric"`
	ReadTimeout  time.Duration `validate:"gt=0"`
	WriteTimeout time.Duration `validate:"gt=0"`
	IdleTimeout  time.Duration `validate:"gt=0"`
}

type DatabaseConfig struct {
	// URL selects the store: postgres://, postgresql:// or bolt://<path>.
	URL             string `validate:"required"`
	MaxOpenConns    int    `validate:"gte=0"`
	MaxIdleConns    int    `validate:"gte=0"`
	MaxConnLifetime time.Duration
	// Ephemeral marks a generated test-mode file that is removed on close.
	Ephemeral bool
}

type RedisConfig struct {
	// URL left empty disables the list cache.
	URL      string
	Password string
	DB       int `validate:"gte=0"`
	CacheTTL time.Duration
}

type JWTConfig struct {
	// Secret left empty disables bearer authentication.
	Secret string
}

type APIConfig struct {
	// StrictNotFound makes update/delete of unknown ids answer 404 instead
	// of the historical 500.
	StrictNotFound bool
}

type ContextConfig struct {
	RequestTimeout  time.Duration `validate:"gt=0"`
	ShutdownTimeout time.Duration `validate:"gt=0"`
}

type MonitorConfig struct {
	Interval time.Duration `validate:"gte=1s"`
}

type LoggerConfig struct {
	Level    string `validate:"oneof=debug info warn error dpanic panic fatal"`
	Encoding string `validate:"oneof=json console"`
}

type MigrationsConfig struct {
	Enabled bool
	Path    string
}

// Load reads configuration from environment variables (optionally .env)
// and applies sane defaults so the service can boot in any environment.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		AppName:     getString("APP_NAME", "task-service"),
		Environment: getString("APP_ENV", "development"),
		TestMode:    getBool("TESTING", false),
		HTTP: HTTPConfig{
			Host:         getString("SERVER_HOST", "0.0.0.0"),
			Port:         getString("SERVER_PORT", "8080"),
			ReadTimeout:  getDuration("SERVER_READ_TIMEOUT", 10*time.Second),
			WriteTimeout: getDuration("SERVER_WRITE_TIMEOUT", 10*time.Second),
			IdleTimeout:  getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    getInt("DB_MAX_IDLE_CONNS", 5),
			MaxConnLifetime: getDuration("DB_CONN_LIFETIME", time.Hour),
		},
		Redis: RedisConfig{
			URL:      os.Getenv("REDIS_URL"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       getInt("REDIS_DB", 0),
			CacheTTL: getDuration("CACHE_TTL", time.Minute),
		},
		JWT: JWTConfig{
			Secret: os.Getenv("JWT_SECRET"),
		},
		API: APIConfig{
			StrictNotFound: getBool("API_STRICT_NOT_FOUND", false),
		},
		Context: ContextConfig{
			RequestTimeout:  getDuration("REQUEST_TIMEOUT_SECONDS", 5*time.Second),
			ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT_SECONDS", 15*time.Second),
		},
		Monitor: MonitorConfig{
			Interval: getDuration("MONITOR_INTERVAL", 10*time.Second),
		},
		Logger: LoggerConfig{
			Level:    getString("LOG_LEVEL", "info"),
			Encoding: getString("LOG_ENCODING", "json"),
		},
		Migrations: MigrationsConfig{
			Enabled: getBool("RUN_MIGRATIONS", true),
			Path:    getString("MIGRATIONS_PATH", "./migrations"),
		},
	}

	if cfg.TestMode {
		applyTestMode(cfg)
	}
	if cfg.Database.URL == "" {
		cfg.Database.URL = "postgres://postgres@localhost:5432/tasks?sslmode=disable"
	}

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// applyTestMode points an unset database at a throwaway bbolt file and turns
// off everything that needs external services.
func applyTestMode(cfg *Config) {
	if cfg.Database.URL == "" {
		path := filepath.Join(os.TempDir(), fmt.Sprintf("%s-test-%d.db", cfg.AppName, os.Getpid()))
		cfg.Database.URL = "bolt://" + filepath.ToSlash(path)
		cfg.Database.Ephemeral = true
	}
	cfg.Redis.URL = ""
	cfg.Migrations.Enabled = false
}

// IsBolt reports whether the connection string selects the embedded store.
func (d DatabaseConfig) IsBolt() bool {
	return strings.HasPrefix(d.URL, "bolt://")
}

// BoltPath returns the file path encoded in a bolt:// connection string.
func (d DatabaseConfig) BoltPath() string {
	return filepath.FromSlash(strings.TrimPrefix(d.URL, "bolt://"))
}

func getString(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseBool(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
		if seconds, err := strconv.Atoi(val); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return fallback
}

// Address returns the HTTP listen address for the fasthttp server.
func (c *Config) Address() string {
	return fmt.Sprintf("%s:%s", c.HTTP.Host, c.HTTP.Port)
}
