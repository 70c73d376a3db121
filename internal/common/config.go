package common

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	DocIntel DocIntelConfig
	Rates    RatesConfig
	Pipeline PipelineConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	HTTPAddr  string
	UploadDir string
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
	DialTimeout     time.Duration
	HealthTimeout   time.Duration
}

// DocIntelConfig holds document-understanding service configuration
type DocIntelConfig struct {
	Endpoint      string
	APIKey        string
	Timeout       time.Duration
	PollInterval  time.Duration
	MinConfidence float64
}

// RatesConfig holds exchange-rate service configuration
type RatesConfig struct {
	BaseURL     string
	Timeout     time.Duration
	MaxFailures int
}

// PipelineConfig holds pipeline execution configuration
type PipelineConfig struct {
	Timeout               time.Duration
	DefaultTargetCurrency string
	// DefaultInvoiceDate substitutes for a missing extracted invoice date.
	// Empty means strict: items without a date fail validation.
	DefaultInvoiceDate string
}

// LoadConfig loads configuration from environment variables (.env honored).
func LoadConfig() *Config {
	_ = godotenv.Load()
	return &Config{
		Server: ServerConfig{
			HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
			UploadDir: getEnv("UPLOAD_DIR", "./uploads"),
		},
		Database: DatabaseConfig{
			DSN:             getEnv("DB_URL", "file:invoice.db"),
			MaxConns:        getEnvAsInt32("DB_MAX_CONNS", 10),
			MinConns:        getEnvAsInt32("DB_MIN_CONNS", 2),
			MaxConnLifetime: getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime: getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:     getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			HealthTimeout:   getEnvAsDuration("DB_HEALTH_TIMEOUT", 3*time.Second),
		},
		DocIntel: DocIntelConfig{
			Endpoint:      getEnv("DOCINTEL_ENDPOINT", ""),
			APIKey:        getEnv("DOCINTEL_API_KEY", ""),
			Timeout:       getEnvAsDuration("DOCINTEL_TIMEOUT", 60*time.Second),
			PollInterval:  getEnvAsDuration("DOCINTEL_POLL_INTERVAL", time.Second),
			MinConfidence: getEnvAsFloat64("DOCINTEL_MIN_CONFIDENCE", 0.4),
		},
		Rates: RatesConfig{
			BaseURL:     getEnv("FRANKFURTER_URL", "https://api.frankfurter.app"),
			Timeout:     getEnvAsDuration("RATE_TIMEOUT", 2500*time.Millisecond),
			MaxFailures: getEnvAsInt("RATE_MAX_FAILURES", 2),
		},
		Pipeline: PipelineConfig{
			Timeout:               getEnvAsDuration("PIPELINE_TIMEOUT", 5*time.Minute),
			DefaultTargetCurrency: getEnv("DEFAULT_TARGET_CURRENCY", ""),
			DefaultInvoiceDate:    getEnv("DEFAULT_INVOICE_DATE", ""),
		},
	}
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsFloat64(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatVal, err := strconv.ParseFloat(value, 64); err == nil {
			return floatVal
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

// Validate validates the loaded configuration
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrInvalidInput)
	}
	if c.DocIntel.Endpoint == "" {
		return NewAppError("CONFIG_ERROR", "DOCINTEL_ENDPOINT is required", ErrInvalidInput)
	}
	if c.DocIntel.APIKey == "" {
		return NewAppError("CONFIG_ERROR", "DOCINTEL_API_KEY is required", ErrInvalidInput)
	}
	if c.Server.HTTPAddr == "" {
		return NewAppError("CONFIG_ERROR", "HTTP_ADDR is required", ErrInvalidInput)
	}
	return nil
}
