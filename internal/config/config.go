// Package config provides configuration management using Viper
package config

import (
	"fmt"
	"log"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Environment types
const (
	Development = "development"
	Production  = "production"
	Test        = "test"
)

// LogLevel represents the logging level for the application
type LogLevel string

// Available log levels
const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// Database types
const (
	SQLiteDatabase = "sqlite"
)

const defaultPrivateKey = "88888888888888888888888888888888"

// Config holds all configuration parameters for the application
type Config struct {
	// Application settings
	AppName               string   `mapstructure:"appname"`
	AppPort               string   `mapstructure:"appport"`
	Environment           string   `mapstructure:"environment"`
	LogLevel              LogLevel `mapstructure:"loglevel"`
	PrivateKey            string   `mapstructure:"privatekey"`
	SessionTimeoutSeconds int      `mapstructure:"sessiontimeoutseconds"`
	PublicCORSOrigins     string   `mapstructure:"publiccorsorigins"`
	ShopHost              string   `mapstructure:"shophost"`

	// File paths
	DatabasePath          string `mapstructure:"storagepath"`
	DatabaseName          string `mapstructure:"-"` // Derived from other settings
	PublicDirectory       string `mapstructure:"publicdir"`
	PublicAssetsUrlPrefix string `mapstructure:"publicassetsurlprefix"`

	// Logging settings
	LogsDirectory    string `mapstructure:"logsdir"`
	LogsMaxSizeInMb  int    `mapstructure:"logsmaxsizeinmb"`
	LogsMaxBackups   int    `mapstructure:"logsmaxbackups"`
	LogsMaxAgeInDays int    `mapstructure:"logsmaxageindays"`
	AccessLogEnabled bool   `mapstructure:"accesslog"`

	// Database settings
	DatabaseType         string `mapstructure:"dbtype"`
	DatabaseMaxOpenConns int    `mapstructure:"dbmaxopenconns"`
	DatabaseMaxIdleConns int    `mapstructure:"dbmaxidleconns"`

	// Tracking settings
	TrackingTokenTTLSeconds int `mapstructure:"trackingtokenttlseconds"`

	// Job scheduling settings
	RetentionIntervalHours int `mapstructure:"retentionintervalhours"`
}

var (
	cfg  *Config
	once sync.Once
)

// GetConfig returns the application configuration
func GetConfig() *Config {
	once.Do(func() {
		v := viper.New()

		v.SetDefault("appname", "viewtracker")
		v.SetDefault("appport", "3000")
		v.SetDefault("environment", Development)
		v.SetDefault("loglevel", string(LogLevelDebug))
		v.SetDefault("privatekey", defaultPrivateKey)
		v.SetDefault("sessiontimeoutseconds", 86400)
		v.SetDefault("publiccorsorigins", "*")
		v.SetDefault("shophost", "")
		v.SetDefault("storagepath", "storage")
		v.SetDefault("publicdir", "web")
		v.SetDefault("publicassetsurlprefix", "/")
		v.SetDefault("logsdir", "logs")
		v.SetDefault("logsmaxsizeinmb", 20)
		v.SetDefault("logsmaxbackups", 10)
		v.SetDefault("logsmaxageindays", 30)
		v.SetDefault("accesslog", true)
		v.SetDefault("dbtype", SQLiteDatabase)
		v.SetDefault("dbmaxopenconns", 0)
		v.SetDefault("dbmaxidleconns", 0)
		v.SetDefault("trackingtokenttlseconds", 3600)
		v.SetDefault("retentionintervalhours", 24)

		v.BindEnv("appname", "VIEWTRACKER_APP_NAME")
		v.BindEnv("appport", "VIEWTRACKER_APP_PORT")
		v.BindEnv("environment", "VIEWTRACKER_ENV")
		v.BindEnv("loglevel", "VIEWTRACKER_LOG_LEVEL")
		v.BindEnv("privatekey", "VIEWTRACKER_PRIVATE_KEY")
		v.BindEnv("sessiontimeoutseconds", "VIEWTRACKER_SESSION_TIMEOUT_SECONDS")
		v.BindEnv("publiccorsorigins", "VIEWTRACKER_PUBLIC_CORS_ORIGINS")
		v.BindEnv("shophost", "VIEWTRACKER_SHOP_HOST")
		v.BindEnv("storagepath", "VIEWTRACKER_STORAGE_PATH")
		v.BindEnv("publicdir", "VIEWTRACKER_PUBLIC_DIR")
		v.BindEnv("publicassetsurlprefix", "VIEWTRACKER_PUBLIC_ASSETS_URL_PREFIX")
		v.BindEnv("logsdir", "VIEWTRACKER_LOGS_DIR")
		v.BindEnv("logsmaxsizeinmb", "VIEWTRACKER_LOGS_MAX_SIZE_IN_MB")
		v.BindEnv("logsmaxbackups", "VIEWTRACKER_LOGS_MAX_BACKUPS")
		v.BindEnv("logsmaxageindays", "VIEWTRACKER_LOGS_MAX_AGE_IN_DAYS")
		v.BindEnv("accesslog", "VIEWTRACKER_ACCESS_LOG")
		v.BindEnv("dbtype", "VIEWTRACKER_DB_TYPE")
		v.BindEnv("dbmaxopenconns", "VIEWTRACKER_DB_MAX_OPEN_CONNS")
		v.BindEnv("dbmaxidleconns", "VIEWTRACKER_DB_MAX_IDLE_CONNS")
		v.BindEnv("trackingtokenttlseconds", "VIEWTRACKER_TRACKING_TOKEN_TTL_SECONDS")
		v.BindEnv("retentionintervalhours", "VIEWTRACKER_RETENTION_INTERVAL_HOURS")

		cfg = &Config{}
		if err := v.Unmarshal(cfg); err != nil {
			log.Fatalf("config: failed to unmarshal configuration: %v", err)
		}

		if err := cfg.validate(); err != nil {
			log.Fatalf("config: invalid configuration: %v", err)
		}

		cfg.DatabaseName = cfg.GetDatabasePath()

		if cfg.PrivateKey == "" {
			log.Fatal("Private key is required")
		}
		if cfg.IsProduction() && cfg.PrivateKey == defaultPrivateKey {
			log.Fatal("Production requires a unique VIEWTRACKER_PRIVATE_KEY (cannot use default)")
		}
	})
	return cfg
}

// validate checks the configuration for errors
func (c *Config) validate() error {
	validEnvs := map[string]bool{
		Development: true,
		Production:  true,
		Test:        true,
	}
	if !validEnvs[c.Environment] {
		return fmt.Errorf("invalid environment: %s", c.Environment)
	}

	validDBTypes := map[string]bool{
		SQLiteDatabase: true,
	}
	if !validDBTypes[c.DatabaseType] {
		return fmt.Errorf("invalid database type: %s", c.DatabaseType)
	}

	if c.TrackingTokenTTLSeconds <= 0 {
		return fmt.Errorf("tracking token ttl must be positive, got %d", c.TrackingTokenTTLSeconds)
	}

	if c.RetentionIntervalHours <= 0 {
		return fmt.Errorf("retention interval must be positive, got %d", c.RetentionIntervalHours)
	}

	return nil
}

// GetDatabasePath returns the appropriate database path based on environment
func (c *Config) GetDatabasePath() string {
	if c.DatabaseName == "" {
		c.DatabaseName = filepath.Join(c.DatabasePath,
			fmt.Sprintf("%s-%s.db", c.AppName, c.Environment))
	}
	return c.DatabaseName
}

// IsDevelopment returns true if the environment is development
func (c *Config) IsDevelopment() bool {
	return c.Environment == Development
}

// IsProduction returns true if the environment is production
func (c *Config) IsProduction() bool {
	return c.Environment == Production
}

// IsTest returns true if the environment is test
func (c *Config) IsTest() bool {
	return c.Environment == Test
}

// GetPort returns the HTTP server port (implements cartridge.Config interface).
func (c *Config) GetPort() string {
	return c.AppPort
}

// GetPublicDirectory returns the path to public/static assets (implements cartridge.Config interface).
func (c *Config) GetPublicDirectory() string {
	return c.PublicDirectory
}

// GetAssetsPrefix returns the URL prefix for static assets (implements cartridge.Config interface).
func (c *Config) GetAssetsPrefix() string {
	return c.PublicAssetsUrlPrefix
}

// GetAppName returns the application name (implements cartridge.FactoryConfig interface).
func (c *Config) GetAppName() string {
	return c.AppName
}

// DatabaseDSN returns the database connection string (implements cartridge.FactoryConfig interface).
func (c *Config) DatabaseDSN() string {
	return c.GetDatabasePath()
}

// GetSessionSecret returns the session encryption key (implements cartridge.FactoryConfig interface).
func (c *Config) GetSessionSecret() string {
	return c.PrivateKey
}

// GetSessionTTL returns how long a visitor session, and with it the
// viewed-products set, survives without activity.
func (c *Config) GetSessionTTL() time.Duration {
	return time.Duration(c.SessionTimeoutSeconds) * time.Second
}

// GetTrackingTokenTTL returns how long a tracking token issued at render time stays valid.
func (c *Config) GetTrackingTokenTTL() time.Duration {
	return time.Duration(c.TrackingTokenTTLSeconds) * time.Second
}

// GetRetentionInterval returns the delay between two retention sweeps.
func (c *Config) GetRetentionInterval() time.Duration {
	return time.Duration(c.RetentionIntervalHours) * time.Hour
}

// GetPublicCORSOrigins returns the allowed origins for browser-facing endpoints
// in the comma separated form fiber's CORS middleware expects.
func (c *Config) GetPublicCORSOrigins() string {
	origins := strings.TrimSpace(c.PublicCORSOrigins)
	if origins == "" {
		return "*"
	}
	return origins
}

// GetShopHost returns the storefront hostname used to tell internal
// navigation apart from external referrers. Empty when unset.
func (c *Config) GetShopHost() string {
	return strings.ToLower(strings.TrimSpace(c.ShopHost))
}

// GetAccessLogPath returns the file the HTTP access log is written to.
func (c *Config) GetAccessLogPath() string {
	return filepath.Join(c.LogsDirectory, "access.log")
}

// GetMaxOpenConns returns the appropriate MaxOpenConns value based on environment
// If explicitly set via env var, uses that value. Otherwise:
// - Test: 1
// - Development/Production: 10 (allows the parallel dashboard queries to read concurrently)
func (c *Config) GetMaxOpenConns() int {
	if c.DatabaseMaxOpenConns > 0 {
		return c.DatabaseMaxOpenConns
	}

	if c.Environment == Test {
		return 1
	}

	return 10
}

// GetMaxIdleConns returns the appropriate MaxIdleConns value based on environment
func (c *Config) GetMaxIdleConns() int {
	if c.DatabaseMaxIdleConns > 0 {
		return c.DatabaseMaxIdleConns
	}

	if c.Environment == Test {
		return 1
	}

	return 5
}

// GetLogLevel returns the log level as a string (implements cartridge.LogConfigProvider).
func (c *Config) GetLogLevel() string {
	return string(c.LogLevel)
}

// GetLogDirectory returns the logs directory (implements cartridge.LogConfigProvider).
func (c *Config) GetLogDirectory() string {
	return c.LogsDirectory
}

// GetLogMaxSizeMB returns the max log file size in MB (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxSizeMB() int {
	return c.LogsMaxSizeInMb
}

// GetLogMaxBackups returns the max number of log backups (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxBackups() int {
	return c.LogsMaxBackups
}

// GetLogMaxAgeDays returns the max age in days for log files (implements cartridge.LogConfigProvider).
func (c *Config) GetLogMaxAgeDays() int {
	return c.LogsMaxAgeInDays
}

// Reset clears the cached configuration; intended for tests.
func Reset() {
	once = sync.Once{}
	cfg = nil
}
