package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

// Config holds all configuration for the application
type Config struct {
	AppMode  string
	Port     string
	LogLevel string
	Database DatabaseConfig
	JWT      JWTConfig
	Cookie   CookieConfig
	Jobs     JobsConfig
	Seed     SeedConfig
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Driver   string
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// JWTConfig holds JWT configuration
type JWTConfig struct {
	Secret           string
	RefreshSecret    string
	AccessTokenMins  int
	RefreshTokenDays int
}

// CookieConfig holds the attributes of the auth cookies
type CookieConfig struct {
	Secure   bool
	SameSite string
	Domain   string
}

// JobsConfig holds the cron schedules of background jobs and the
// optional webhook approvers are notified through
type JobsConfig struct {
	ReminderCron       string
	ReminderStaleHours int
	TokenCleanupCron   string
	NotifyWebhookURL   string
}

// SeedConfig controls the development seeders
type SeedConfig struct {
	Enabled       bool
	AdminPassword string
}

// Global config instance
var AppConfig *Config

// Load reads configuration from .env file and environment variables
func Load() (*Config, error) {
	// Load .env file (ignore error if file doesn't exist in production)
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, using environment variables")
	}

	// Trim spaces for Windows compatibility
	appMode := strings.TrimSpace(getEnv("APP_MODE", "dev"))
	if appMode != "dev" && appMode != "prod" {
		return nil, fmt.Errorf("invalid APP_MODE: '%s' (must be 'dev' or 'prod')", appMode)
	}

	database, err := loadDatabaseConfig(appMode)
	if err != nil {
		return nil, err
	}

	config := &Config{
		AppMode:  appMode,
		Port:     getEnv("PORT", "3000"),
		LogLevel: getEnv("LOG_LEVEL", ""),
		Database: database,
		JWT:      loadJWTConfig(appMode),
		Cookie:   loadCookieConfig(appMode),
		Jobs:     loadJobsConfig(),
		Seed:     loadSeedConfig(appMode),
	}

	if config.IsProd() && (config.JWT.Secret == defaultJWTSecret || config.JWT.RefreshSecret == defaultRefreshSecret) {
		return nil, fmt.Errorf("PROD_JWT_SECRET and PROD_JWT_REFRESH_SECRET must be set in prod mode")
	}

	AppConfig = config
	return config, nil
}

// loadDatabaseConfig loads database config based on mode
func loadDatabaseConfig(mode string) (DatabaseConfig, error) {
	prefix := modePrefix(mode)

	driver := strings.ToLower(getEnv("DB_DRIVER", "mysql"))
	defaultPort := "3306"
	switch driver {
	case "mysql":
	case "postgres":
		defaultPort = "5432"
	default:
		return DatabaseConfig{}, fmt.Errorf("invalid DB_DRIVER: '%s' (must be 'mysql' or 'postgres')", driver)
	}

	return DatabaseConfig{
		Driver:   driver,
		Host:     getEnv(prefix+"DB_HOST", "localhost"),
		Port:     getEnv(prefix+"DB_PORT", defaultPort),
		User:     getEnv(prefix+"DB_USER", "root"),
		Password: getEnv(prefix+"DB_PASS", ""),
		DBName:   getEnv(prefix+"DB_NAME", "propdesk"),
		SSLMode:  getEnv(prefix+"DB_SSLMODE", "disable"),
	}, nil
}

const (
	defaultJWTSecret     = "default_secret"
	defaultRefreshSecret = "default_refresh_secret"
)

// loadJWTConfig loads JWT config based on mode
func loadJWTConfig(mode string) JWTConfig {
	prefix := modePrefix(mode)

	return JWTConfig{
		Secret:           getEnv(prefix+"JWT_SECRET", defaultJWTSecret),
		RefreshSecret:    getEnv(prefix+"JWT_REFRESH_SECRET", defaultRefreshSecret),
		AccessTokenMins:  getEnvInt("ACCESS_TOKEN_MINUTES", 15),
		RefreshTokenDays: getEnvInt("REFRESH_TOKEN_DAYS", 7),
	}
}

// loadCookieConfig loads cookie config based on mode
func loadCookieConfig(mode string) CookieConfig {
	secure, err := strconv.ParseBool(getEnv(modePrefix(mode)+"COOKIE_SECURE", strconv.FormatBool(mode == "prod")))
	if err != nil {
		secure = mode == "prod"
	}

	return CookieConfig{
		Secure:   secure,
		SameSite: getEnv("COOKIE_SAMESITE", "lax"),
		Domain:   getEnv("COOKIE_DOMAIN", ""),
	}
}

// loadJobsConfig loads cron schedules (6 fields, seconds first)
func loadJobsConfig() JobsConfig {
	return JobsConfig{
		ReminderCron:       getEnv("REMINDER_CRON", "0 30 8 * * *"),
		ReminderStaleHours: getEnvInt("REMINDER_STALE_HOURS", 48),
		TokenCleanupCron:   getEnv("TOKEN_CLEANUP_CRON", "0 0 3 * * *"),
		NotifyWebhookURL:   getEnv("NOTIFY_WEBHOOK_URL", ""),
	}
}

// loadSeedConfig enables seeding by default in dev only
func loadSeedConfig(mode string) SeedConfig {
	enabled, err := strconv.ParseBool(getEnv("SEED_DATA", strconv.FormatBool(mode == "dev")))
	if err != nil {
		enabled = mode == "dev"
	}
	return SeedConfig{
		Enabled:       enabled,
		AdminPassword: getEnv("SEED_ADMIN_PASSWORD", "admin123456"),
	}
}

func modePrefix(mode string) string {
	if mode == "prod" {
		return "PROD_"
	}
	return "DEV_"
}

// getEnv gets environment variable with default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer environment variable with default value
func getEnvInt(key string, defaultValue int) int {
	v, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return v
}

// IsDev returns true if running in development mode
func (c *Config) IsDev() bool {
	return c.AppMode == "dev"
}

// IsProd returns true if running in production mode
func (c *Config) IsProd() bool {
	return c.AppMode == "prod"
}

// GetAllowedOrigins returns allowed origins for CORS
func (c *Config) GetAllowedOrigins() string {
	origins := getEnv("ALLOWED_ORIGINS", "")
	if origins == "" {
		if c.IsDev() {
			return "*"
		}
		return "https://propdesk.local"
	}
	return origins
}
