package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	// HTTP Server
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	LogLevel        string

	// Backend selection for scheme records: file, sqlite or sheets
	DataBackend string

	// File inputs
	SchemesFile      string
	SchemesSheet     string
	RegionsFile      string
	RegionStateField string

	// Database
	SQLiteDBPath string

	// AMQP (optional, enables reload messages)
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
	GoogleSpreadsheetID string
	GoogleSchemesSheet  string

	// Form
	IncomeMax     int
	IncomeDefault int

	// Admin
	AdminToken string

	// POST requests per minute per client
	RateLimitPerMinute int
}

func Load() *Config {
	cfg := &Config{
		Port:            getEnv("PORT", "8081"),
		ReadTimeout:     getEnvDuration("HTTP_READ_TIMEOUT", 10*time.Second),
		WriteTimeout:    getEnvDuration("HTTP_WRITE_TIMEOUT", 30*time.Second),
		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 10*time.Second),
		LogLevel:        getEnv("LOG_LEVEL", "info"),

		DataBackend: getEnv("DATA_BACKEND", "file"),

		SchemesFile:      getEnv("SCHEMES_FILE", "./data/schemes.csv"),
		SchemesSheet:     getEnv("SCHEMES_SHEET", ""),
		RegionsFile:      getEnv("REGIONS_FILE", "./data/regions.geojson"),
		RegionStateField: getEnv("REGION_STATE_FIELD", "STATE"),

		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/schemes.db"),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "schememap"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "dataset_reload"),

		GoogleSpreadsheetID: getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleSchemesSheet:  getEnv("GOOGLE_SCHEMES_SHEET_NAME", "Schemes"),

		IncomeMax:     getEnvInt("INCOME_MAX", 500000),
		IncomeDefault: getEnvInt("INCOME_DEFAULT", 100000),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 60),
	}

	return cfg
}

// Backends lists the accepted DATA_BACKEND values.
func Backends() []string {
	return []string{"file", "sqlite", "sheets"}
}

// Validate validates the configuration and returns an error if invalid
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		errors = append(errors, fmt.Sprintf("invalid log level '%s': must be one of debug, info, warn, error", c.LogLevel))
	}

	if !slices.Contains(Backends(), c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, Backends()))
	}

	switch c.DataBackend {
	case "file":
		if c.SchemesFile == "" {
			errors = append(errors, "schemes file cannot be empty when using file backend")
		} else if ext := strings.ToLower(filepath.Ext(c.SchemesFile)); ext != ".csv" && ext != ".xlsx" && ext != ".xlsm" {
			errors = append(errors, fmt.Sprintf("invalid schemes file '%s': must be .csv or .xlsx", c.SchemesFile))
		}
	case "sqlite":
		if c.SQLiteDBPath == "" {
			errors = append(errors, "SQLite database path cannot be empty when using sqlite backend")
		}
	case "sheets":
		if c.GoogleSpreadsheetID == "" {
			errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
		}
		if c.GoogleSchemesSheet == "" {
			errors = append(errors, "Google schemes sheet name is required when using sheets backend")
		}
	}

	if c.RegionsFile == "" {
		errors = append(errors, "regions file cannot be empty")
	}
	if strings.TrimSpace(c.RegionStateField) == "" {
		errors = append(errors, "region state field cannot be empty")
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	if c.IncomeMax < 1 {
		errors = append(errors, fmt.Sprintf("invalid income max %d: must be at least 1", c.IncomeMax))
	}
	if c.IncomeDefault < 0 || c.IncomeDefault > c.IncomeMax {
		errors = append(errors, fmt.Sprintf("invalid income default %d: must be between 0 and %d", c.IncomeDefault, c.IncomeMax))
	}

	if c.RateLimitPerMinute < 1 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must be at least 1", c.RateLimitPerMinute))
	}

	if c.ShutdownTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid shutdown timeout %v: must be at least 1 second", c.ShutdownTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}

	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
