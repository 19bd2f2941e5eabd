package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Store drivers.
const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// Config holds all application configuration loaded from environment variables.
type Config struct {
	Store    StoreConfig
	Database DatabaseConfig
	Redis    RedisConfig
	JWT      JWTConfig
	Server   ServerConfig
	Realtime RealtimeConfig
	Log      LogConfig
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
	// Migrate applies the embedded schema on startup (postgres only).
	Migrate bool
}

// DatabaseConfig holds PostgreSQL connection settings. URL, when set,
// takes precedence over the individual fields.
type DatabaseConfig struct {
	URL      string
	Host     string
	Port     int
	User     string
	Password string //nolint:gosec // G117: DB connection config
	DBName   string
	SSLMode  string
	MaxConns int
}

// RedisConfig holds Redis connection settings. Addr is host:port or a
// redis:// URL. An empty Addr keeps event fan-out inside the process.
type RedisConfig struct {
	Addr      string
	Password  string //nolint:gosec // G117: Redis connection config
	DB        int
	Namespace string
}

// JWTConfig holds JWT authentication settings.
type JWTConfig struct {
	Secret     string //nolint:gosec // G117: JWT signing secret config
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	CORSOrigins  []string
	// WebDir, when set, holds a prebuilt board UI served on unmatched routes.
	WebDir string

	// Per-user and per-IP token buckets for the REST API.
	RateLimit      float64
	RateBurst      int
	IPRateLimit    float64
	IPRateBurst    int
	ShutdownPeriod time.Duration
}

// RealtimeConfig tunes the connection registry and event replay.
type RealtimeConfig struct {
	Room              string
	HeartbeatInterval time.Duration
	HeartbeatTimeout  time.Duration
	ReplaySize        int
	SendBuffer        int
}

// LogConfig controls the global zerolog logger.
type LogConfig struct {
	Level  string
	Format string // "json" or "console"
}

// Load reads configuration from environment variables.
// Defaults are safe for local development only. In production,
// sensitive values (JWT secret, DB password) must be set explicitly.
func Load() (*Config, error) {
	dbPort, err := getEnvInt("IDEABOARD_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	dbMaxConns, err := getEnvInt("IDEABOARD_DB_MAX_CONNS", 25)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	migrate, err := getEnvBool("IDEABOARD_DB_MIGRATE", true)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	redisDB, err := getEnvInt("IDEABOARD_REDIS_DB", 0)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	accessTTL, err := getEnvDuration("IDEABOARD_JWT_ACCESS_TTL", 15*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	refreshTTL, err := getEnvDuration("IDEABOARD_JWT_REFRESH_TTL", 7*24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	readTimeout, err := getEnvDuration("IDEABOARD_SERVER_READ_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	writeTimeout, err := getEnvDuration("IDEABOARD_SERVER_WRITE_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	shutdownPeriod, err := getEnvDuration("IDEABOARD_SERVER_SHUTDOWN_PERIOD", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateLimit, err := getEnvFloat("IDEABOARD_RATE_LIMIT", 20)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	rateBurst, err := getEnvInt("IDEABOARD_RATE_BURST", 40)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ipRateLimit, err := getEnvFloat("IDEABOARD_IP_RATE_LIMIT", 50)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	ipRateBurst, err := getEnvInt("IDEABOARD_IP_RATE_BURST", 100)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	heartbeatInterval, err := getEnvDuration("IDEABOARD_HEARTBEAT_INTERVAL", 25*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	heartbeatTimeout, err := getEnvDuration("IDEABOARD_HEARTBEAT_TIMEOUT", 10*time.Second)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	replaySize, err := getEnvInt("IDEABOARD_REPLAY_SIZE", 1024)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	sendBuffer, err := getEnvInt("IDEABOARD_SEND_BUFFER", 64)
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	corsOrigins := getEnvList("IDEABOARD_CORS_ORIGINS", []string{"http://localhost:5173"})

	cfg := &Config{
		Store: StoreConfig{
			Driver:  strings.ToLower(getEnv("IDEABOARD_STORE", StoreMemory)),
			Migrate: migrate,
		},
		Database: DatabaseConfig{
			URL:      getEnv("IDEABOARD_DATABASE_URL", ""),
			Host:     getEnv("IDEABOARD_DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("IDEABOARD_DB_USER", "ideaboard"),
			Password: getEnv("IDEABOARD_DB_PASSWORD", ""),
			DBName:   getEnv("IDEABOARD_DB_NAME", "ideaboard_dev"),
			SSLMode:  getEnv("IDEABOARD_DB_SSLMODE", "disable"),
			MaxConns: dbMaxConns,
		},
		Redis: RedisConfig{
			Addr:      getEnv("IDEABOARD_REDIS_ADDR", ""),
			Password:  getEnv("IDEABOARD_REDIS_PASSWORD", ""),
			DB:        redisDB,
			Namespace: getEnv("IDEABOARD_REDIS_NAMESPACE", "ideaboard"),
		},
		JWT: JWTConfig{
			Secret:     getEnv("IDEABOARD_JWT_SECRET", ""),
			AccessTTL:  accessTTL,
			RefreshTTL: refreshTTL,
		},
		Server: ServerConfig{
			Addr:           getEnv("IDEABOARD_SERVER_ADDR", ":8080"),
			ReadTimeout:    readTimeout,
			WriteTimeout:   writeTimeout,
			CORSOrigins:    corsOrigins,
			WebDir:         getEnv("IDEABOARD_WEB_DIR", ""),
			RateLimit:      rateLimit,
			RateBurst:      rateBurst,
			IPRateLimit:    ipRateLimit,
			IPRateBurst:    ipRateBurst,
			ShutdownPeriod: shutdownPeriod,
		},
		Realtime: RealtimeConfig{
			Room:              getEnv("IDEABOARD_ROOM", "board:default"),
			HeartbeatInterval: heartbeatInterval,
			HeartbeatTimeout:  heartbeatTimeout,
			ReplaySize:        replaySize,
			SendBuffer:        sendBuffer,
		},
		Log: LogConfig{
			Level:  strings.ToLower(getEnv("IDEABOARD_LOG_LEVEL", "info")),
			Format: strings.ToLower(getEnv("IDEABOARD_LOG_FORMAT", "json")),
		},
	}

	err = cfg.validate()
	if err != nil {
		return nil, fmt.Errorf("config.Load: %w", err)
	}

	return cfg, nil
}

// validate checks required fields and value bounds.
func (c *Config) validate() error {
	// JWT secret is required (no insecure default).
	if c.JWT.Secret == "" {
		return errors.New("IDEABOARD_JWT_SECRET is required")
	}
	if len(c.JWT.Secret) < 32 {
		return errors.New("IDEABOARD_JWT_SECRET must be at least 32 characters")
	}

	switch c.Store.Driver {
	case StoreMemory:
	case StorePostgres:
		if c.Database.URL == "" && c.Database.SSLMode == "disable" {
			log.Warn().Msg("IDEABOARD_DB_SSLMODE=disable is insecure for production; set to 'require' or 'verify-full'")
		}
	default:
		return fmt.Errorf("IDEABOARD_STORE must be %q or %q, got %q", StoreMemory, StorePostgres, c.Store.Driver)
	}

	if _, err := zerolog.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("IDEABOARD_LOG_LEVEL: %w", err)
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		return fmt.Errorf("IDEABOARD_LOG_FORMAT must be json or console, got %q", c.Log.Format)
	}

	// Bounds checks.
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("IDEABOARD_DB_PORT must be 1-65535, got %d", c.Database.Port)
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("IDEABOARD_DB_MAX_CONNS must be >= 1, got %d", c.Database.MaxConns)
	}
	if c.JWT.AccessTTL <= 0 {
		return fmt.Errorf("IDEABOARD_JWT_ACCESS_TTL must be positive, got %s", c.JWT.AccessTTL)
	}
	if c.JWT.RefreshTTL <= 0 {
		return fmt.Errorf("IDEABOARD_JWT_REFRESH_TTL must be positive, got %s", c.JWT.RefreshTTL)
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("IDEABOARD_SERVER_READ_TIMEOUT must be positive, got %s", c.Server.ReadTimeout)
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("IDEABOARD_SERVER_WRITE_TIMEOUT must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimit <= 0 || c.Server.IPRateLimit <= 0 {
		return errors.New("IDEABOARD_RATE_LIMIT and IDEABOARD_IP_RATE_LIMIT must be positive")
	}
	if c.Server.RateBurst < 1 || c.Server.IPRateBurst < 1 {
		return errors.New("IDEABOARD_RATE_BURST and IDEABOARD_IP_RATE_BURST must be >= 1")
	}
	if c.Realtime.HeartbeatInterval <= 0 {
		return fmt.Errorf("IDEABOARD_HEARTBEAT_INTERVAL must be positive, got %s", c.Realtime.HeartbeatInterval)
	}
	if c.Realtime.HeartbeatTimeout <= 0 {
		return fmt.Errorf("IDEABOARD_HEARTBEAT_TIMEOUT must be positive, got %s", c.Realtime.HeartbeatTimeout)
	}
	if c.Realtime.ReplaySize < 0 {
		return fmt.Errorf("IDEABOARD_REPLAY_SIZE must be >= 0, got %d", c.Realtime.ReplaySize)
	}
	if c.Realtime.SendBuffer < 1 {
		return fmt.Errorf("IDEABOARD_SEND_BUFFER must be >= 1, got %d", c.Realtime.SendBuffer)
	}

	return nil
}

// DSN returns the PostgreSQL connection string.
func (c *DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

// Logger configures the global zerolog logger.
func (c *LogConfig) Logger() {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if c.Format == "console" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as int: %w", key, v, err)
	}
	return n, nil
}

func getEnvFloat(key string, fallback float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as float: %w", key, v, err)
	}
	return f, nil
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s=%q as bool: %w", key, v, err)
	}
	return b, nil
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s=%q as duration: %w", key, v, err)
	}
	return d, nil
}

func getEnvList(key string, fallback []string) []string {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parts := strings.Split(v, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}
