package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application
// ⭐ SSOT: 모든 환경변수는 여기서만 읽음
type Config struct {
	// Server
	Port string
	Env  string // development, staging, production

	// Database
	Database DatabaseConfig

	// Redis
	Redis RedisConfig

	// Market data providers
	Market MarketConfig

	// Solver
	Solver SolverConfig

	// Imported portfolios
	ImportTTL time.Duration

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	MetricsEnabled bool
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
	Enabled  bool
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	URL string // empty disables portfolio import persistence

	// Connection Pool
	MaxConns        int
	MinConns        int
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// Enabled reports whether a database is configured
func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// MarketConfig holds the market data provider endpoints
type MarketConfig struct {
	APIURL         string  // own backend: fiat/crypto lists and prices
	YahooSearchURL string  // equity search
	YahooChartURL  string  // equity quotes
	RateLimit      float64 // requests per second per provider
	Timeout        time.Duration
}

// SolverConfig holds allocation solver settings
type SolverConfig struct {
	Timeout    time.Duration // how long a caller waits for a worker result
	MaxCompute time.Duration // hard limit on one computation, even after the caller left
	Tolerance  float64       // minimum-budget suggestion tolerance on weights
	Workers    int           // worker pool size of the API server
}

// Load reads configuration from environment variables
// ⭐ SSOT: 이 함수만 os.Getenv()를 호출함
func Load() (*Config, error) {
	// Try multiple paths for .env file
	loadEnvFile()

	cfg := &Config{
		// Server
		Port: getEnv("PORT", "8089"),
		Env:  getEnv("ENV", "development"),

		// Database
		Database: DatabaseConfig{
			URL:             getEnv("DATABASE_URL", ""),
			MaxConns:        getEnvAsInt("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", "1h"),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", "30m"),
		},

		// Redis
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			Enabled:  getEnvAsBool("REDIS_ENABLED", false),
		},

		// Market data
		Market: MarketConfig{
			APIURL:         getEnv("MARKET_API_URL", "https://dcapal.com/api"),
			YahooSearchURL: getEnv("YAHOO_SEARCH_URL", "https://query1.finance.yahoo.com/v1/finance/search"),
			YahooChartURL:  getEnv("YAHOO_CHART_URL", "https://query1.finance.yahoo.com/v8/finance/chart"),
			RateLimit:      getEnvAsFloat("MARKET_RATE_LIMIT", 5),
			Timeout:        getEnvAsDuration("MARKET_TIMEOUT", "10s"),
		},

		// Solver
		Solver: SolverConfig{
			Timeout:    getEnvAsDuration("SOLVER_TIMEOUT", "1000ms"),
			MaxCompute: getEnvAsDuration("SOLVER_MAX_COMPUTE", "30s"),
			Tolerance:  getEnvAsFloat("SOLVER_TOLERANCE", 1e-4),
			Workers:    getEnvAsInt("SOLVER_WORKERS", 4),
		},

		ImportTTL: getEnvAsDuration("IMPORT_TTL", "24h"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		MetricsEnabled: getEnvAsBool("METRICS_ENABLED", true),
	}

	// Validate configuration
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// validate checks if configuration values are usable
func (c *Config) validate() error {
	// Validate environment
	if c.Env != "development" && c.Env != "staging" && c.Env != "production" {
		return fmt.Errorf("ENV must be one of: development, staging, production")
	}

	if c.Solver.Timeout <= 0 {
		return fmt.Errorf("SOLVER_TIMEOUT must be positive")
	}

	if c.Solver.MaxCompute < c.Solver.Timeout {
		return fmt.Errorf("SOLVER_MAX_COMPUTE must be at least SOLVER_TIMEOUT")
	}

	if c.Solver.Tolerance <= 0 || c.Solver.Tolerance > 0.01 {
		return fmt.Errorf("SOLVER_TOLERANCE must be in (0, 0.01]")
	}

	if c.Solver.Workers < 1 {
		return fmt.Errorf("SOLVER_WORKERS must be at least 1")
	}

	if c.Market.RateLimit <= 0 {
		return fmt.Errorf("MARKET_RATE_LIMIT must be positive")
	}

	return nil
}

// Helper functions (private, only used within this file)

// loadEnvFile tries to load .env from multiple locations
func loadEnvFile() {
	// Try paths in order of priority
	paths := []string{
		".env",         // Current directory
		"backend/.env", // From project root
	}

	// Also try relative to executable
	if exe, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exe)
		paths = append(paths,
			filepath.Join(exeDir, ".env"),
			filepath.Join(exeDir, "..", ".env"),
		)
	}

	for _, path := range paths {
		if _, err := os.Stat(path); err == nil {
			_ = godotenv.Load(path)
			return
		}
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}

	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}

	return value
}

func getEnvAsDuration(key string, defaultValue string) time.Duration {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		valueStr = defaultValue
	}

	duration, err := time.ParseDuration(valueStr)
	if err != nil {
		// Fallback to default
		duration, _ = time.ParseDuration(defaultValue)
	}

	return duration
}
