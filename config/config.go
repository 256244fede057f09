package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type Config struct {
	Port        string
	DBHost      string
	DBPort      string
	DBUser      string
	DBPassword  string
	DBName      string
	Environment string

	// Quote provider
	QuoteAPIURL  string
	QuoteTimeout time.Duration

	// Price cache
	CacheTTL              time.Duration
	MaxBatchSymbols       int
	ServeStaleOnRateLimit bool

	// Rate limiter (fixed window)
	RateLimitWindow time.Duration
	RateLimitBudget int

	// Push gateway
	PushGatewayURL string
	PushGatewayKey string

	// Evaluation cycle
	EvalIntervalMinutes int
	EvalWorkers         int
	AutoDeactivate      bool
	MarketHoursOnly     bool
}

var AppConfig *Config
var DB *gorm.DB

// LoadConfig loads environment variables
func LoadConfig() (*Config, error) {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	config := &Config{
		Port:        getEnv("PORT", "8080"),
		DBHost:      getEnv("DB_HOST", "localhost"),
		DBPort:      getEnv("DB_PORT", "5432"),
		DBUser:      getEnv("DB_USER", "postgres"),
		DBPassword:  getEnv("DB_PASSWORD", ""),
		DBName:      getEnv("DB_NAME", "pricewatch_db"),
		Environment: getEnv("ENVIRONMENT", "development"),

		QuoteAPIURL:  getEnv("QUOTE_API_URL", "https://api.quoteprovider.example/v1/quotes"),
		QuoteTimeout: getEnvSeconds("QUOTE_TIMEOUT_SECONDS", 10*time.Second),

		CacheTTL:              getEnvSeconds("PRICE_CACHE_TTL_SECONDS", 5*time.Minute),
		MaxBatchSymbols:       getEnvInt("MAX_BATCH_SYMBOLS", 20),
		ServeStaleOnRateLimit: getEnvBool("SERVE_STALE_ON_RATE_LIMIT", true),

		RateLimitWindow: getEnvSeconds("RATE_LIMIT_WINDOW_SECONDS", 60*time.Second),
		RateLimitBudget: getEnvInt("RATE_LIMIT_BUDGET", 100),

		PushGatewayURL: getEnv("PUSH_GATEWAY_URL", ""),
		PushGatewayKey: getEnv("PUSH_GATEWAY_KEY", ""),

		EvalIntervalMinutes: getEnvInt("EVAL_INTERVAL_MINUTES", 2),
		EvalWorkers:         getEnvInt("EVAL_WORKERS", 5),
		// Default policy: alerts stay active after triggering so they can
		// re-fire once the previous trigger is marked read. Set to true to
		// deactivate an alert the first time it fires.
		AutoDeactivate:  getEnvBool("ALERT_AUTO_DEACTIVATE", false),
		MarketHoursOnly: getEnvBool("EVAL_MARKET_HOURS_ONLY", false),
	}

	AppConfig = config
	return config, nil
}

// InitDB initializes database connection
func InitDB() (*gorm.DB, error) {
	log.Printf("Connecting to database: host=%s port=%s user=%s dbname=%s",
		maskHost(AppConfig.DBHost),
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBName,
	)

	dsn := fmt.Sprintf(
		"host=%s user=%s password=%s dbname=%s port=%s sslmode=require TimeZone=UTC",
		AppConfig.DBHost,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBPort,
	)

	var logLevel logger.LogLevel
	if AppConfig.Environment == "production" {
		logLevel = logger.Error
	} else {
		logLevel = logger.Info
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
	})

	if err != nil {
		log.Printf("Database connection error: %v", err)
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Verify connection with ping
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database: %w", err)
	}

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	log.Printf("Database connection verified successfully")
	DB = db
	return db, nil
}

// maskHost masks host for logging, preserving domain structure
func maskHost(host string) string {
	if len(host) <= 3 {
		return "***"
	}
	if len(host) <= 15 {
		return host[:3] + "***"
	}
	return host[:8] + "***" + host[len(host)-10:]
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// getEnvInt gets an integer environment variable or returns a default
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default %d", key, value, defaultValue)
		return defaultValue
	}
	return n
}

// getEnvBool gets a boolean environment variable or returns a default
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		log.Printf("Warning: invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return b
}

// getEnvSeconds reads a seconds count from the environment
func getEnvSeconds(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		log.Printf("Warning: invalid value for %s: %q, using default %v", key, value, defaultValue)
		return defaultValue
	}
	return time.Duration(n) * time.Second
}
