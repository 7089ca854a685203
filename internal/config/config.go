// Package config loads the process-wide configuration once at startup.
// Components receive the values they need by parameter; nothing below cmd/
// reads the environment directly.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Supported document store backends.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendBigQuery = "bigquery"
)

// Config is the immutable process configuration.
type Config struct {
	// HTTP server
	Port string

	// Document store
	StoreBackend string
	DatabaseID   string
	SQLiteDBPath string
	GCPProjectID string
	Collections  Collections

	// Generative-text service
	GeminiAPIKey string
	GeminiModel  string

	// Credits
	FreeTierCredits int

	// Weekly report delivery
	AMQPURL        string
	AMQPExchange   string
	AMQPRoutingKey string
	ReportBucket   string

	// Logging
	LogLevel  string
	LogFormat string
}

// Collections names the document collections used by the jobs.
type Collections struct {
	Transactions string
	Categories   string
	Analyses     string
	RateLimits   string
	Users        string
}

// Load reads the configuration from the environment. A .env file in the
// working directory is applied first when present; real environment
// variables take precedence over it.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		Port: getEnv("PORT", "8080"),

		StoreBackend: getEnv("STORE_BACKEND", BackendSQLite),
		DatabaseID:   getEnv("APPWRITE_DATABASE_ID", "financio_db"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/financio.db"),
		GCPProjectID: getEnv("GCP_PROJECT_ID", ""),
		Collections: Collections{
			Transactions: getEnv("APPWRITE_COLLECTION_TRANSACTIONS", "transactions"),
			Categories:   getEnv("APPWRITE_COLLECTION_CATEGORIES", "categories"),
			Analyses:     getEnv("APPWRITE_COLLECTION_AI_ANALYSES", "ai_analyses"),
			RateLimits:   getEnv("APPWRITE_COLLECTION_RATE_LIMITS", "rate_limits"),
			Users:        getEnv("APPWRITE_COLLECTION_USERS", "users"),
		},

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.0-flash"),

		FreeTierCredits: getEnvInt("FREE_TIER_CREDITS", 10),

		AMQPURL:        getEnv("AMQP_URL", ""),
		AMQPExchange:   getEnv("AMQP_EXCHANGE", "financio"),
		AMQPRoutingKey: getEnv("AMQP_ROUTING_KEY", "email"),
		ReportBucket:   getEnv("REPORT_BUCKET", ""),

		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "console"),
	}
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var problems []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		problems = append(problems, fmt.Sprintf("invalid port %q: must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		problems = append(problems, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	switch c.StoreBackend {
	case BackendMemory:
	case BackendSQLite:
		if c.SQLiteDBPath == "" {
			problems = append(problems, "SQLITE_DB_PATH cannot be empty when using the sqlite backend")
		}
	case BackendBigQuery:
		if c.GCPProjectID == "" {
			problems = append(problems, "GCP_PROJECT_ID is required when using the bigquery backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("invalid store backend %q: must be one of %s, %s, %s",
			c.StoreBackend, BackendMemory, BackendSQLite, BackendBigQuery))
	}

	if c.DatabaseID == "" {
		problems = append(problems, "APPWRITE_DATABASE_ID cannot be empty")
	}
	for name, value := range map[string]string{
		"APPWRITE_COLLECTION_TRANSACTIONS": c.Collections.Transactions,
		"APPWRITE_COLLECTION_CATEGORIES":   c.Collections.Categories,
		"APPWRITE_COLLECTION_AI_ANALYSES":  c.Collections.Analyses,
		"APPWRITE_COLLECTION_RATE_LIMITS":  c.Collections.RateLimits,
		"APPWRITE_COLLECTION_USERS":        c.Collections.Users,
	} {
		if value == "" {
			problems = append(problems, name+" cannot be empty")
		}
	}

	if c.FreeTierCredits < 0 {
		problems = append(problems, fmt.Sprintf("invalid FREE_TIER_CREDITS %d: must not be negative", c.FreeTierCredits))
	}

	if c.AMQPURL != "" {
		if u, err := url.Parse(c.AMQPURL); err != nil {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL: %v", err))
		} else if u.Scheme != "amqp" && u.Scheme != "amqps" {
			problems = append(problems, fmt.Sprintf("invalid AMQP URL scheme %q: must be 'amqp' or 'amqps'", u.Scheme))
		}
		if c.AMQPExchange == "" {
			problems = append(problems, "AMQP_EXCHANGE cannot be empty when AMQP_URL is set")
		}
	}

	if c.LogFormat != "console" && c.LogFormat != "json" {
		problems = append(problems, fmt.Sprintf("invalid LOG_FORMAT %q: must be 'console' or 'json'", c.LogFormat))
	}

	if len(problems) > 0 {
		return errors.New("configuration validation failed: " + strings.Join(problems, "; "))
	}
	return nil
}

// RequireAdvisor reports whether the generative-text service is configured.
func (c *Config) RequireAdvisor() error {
	if c.GeminiAPIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := getEnv(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
