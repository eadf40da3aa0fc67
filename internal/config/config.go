// Package config provides environment-based configuration management
package config

import (
	"fmt"
	"os"
	"strconv"
)

// DBConfig holds database connection parameters
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
}

// RedisConfig holds Redis connection parameters
type RedisConfig struct {
	Addr string // Format: host:port
}

// AppConfig holds application-level configuration
type AppConfig struct {
	Port     int
	WSSecret string // Authenticates dashboard WebSocket connections
}

// WhatsAppConfig holds WhatsApp Cloud API configuration
type WhatsAppConfig struct {
	AccessToken   string // Bearer token for the Graph API
	PhoneNumberID string // Business phone number id messages are sent from
	AppSecret     string // For HMAC SHA256 signature validation
	VerifyToken   string // For webhook verification handshake
	APIVersion    string // Graph API version, e.g. v18.0
}

// OpenAIConfig holds AI responder configuration
type OpenAIConfig struct {
	APIKey string
	Model  string
}

// PersonaConfig shapes the assistant's replies
type PersonaConfig struct {
	SystemPrompt  string
	BookingLink   string
	FallbackReply string
}

// Config aggregates all configuration sections
type Config struct {
	DB       DBConfig
	Redis    RedisConfig
	App      AppConfig
	WhatsApp WhatsAppConfig
	OpenAI   OpenAIConfig
	Persona  PersonaConfig
}

// LoadConfig reads configuration from environment variables
// Returns error if critical variables are missing
func LoadConfig() (*Config, error) {
	cfg := &Config{}

	// Database Configuration
	cfg.DB.Host = getEnv("DB_HOST", "leadrelay_db")
	cfg.DB.Port = getEnvAsInt("DB_PORT", 3306)
	cfg.DB.User = getEnv("DB_USER", "root")
	cfg.DB.Password = getEnv("DB_PASS", "")
	cfg.DB.Database = getEnv("DB_NAME", "leadrelay")

	if cfg.DB.Password == "" {
		return nil, fmt.Errorf("DB_PASS environment variable is required")
	}

	// Redis Configuration
	cfg.Redis.Addr = getEnv("REDIS_ADDR", "leadrelay_redis:6379")

	// Application Configuration
	cfg.App.Port = getEnvAsInt("APP_PORT", 8080)
	cfg.App.WSSecret = getEnv("WS_SECRET", "")

	// WhatsApp Configuration
	cfg.WhatsApp.AccessToken = getEnv("WA_ACCESS_TOKEN", "")
	cfg.WhatsApp.PhoneNumberID = getEnv("WA_PHONE_NUMBER_ID", "")
	cfg.WhatsApp.AppSecret = getEnv("WA_APP_SECRET", "")
	cfg.WhatsApp.VerifyToken = getEnv("WA_VERIFY_TOKEN", "")
	cfg.WhatsApp.APIVersion = getEnv("WA_API_VERSION", "v18.0")

	if cfg.WhatsApp.AccessToken == "" {
		return nil, fmt.Errorf("WA_ACCESS_TOKEN environment variable is required")
	}
	if cfg.WhatsApp.AppSecret == "" {
		return nil, fmt.Errorf("WA_APP_SECRET environment variable is required")
	}
	if cfg.WhatsApp.VerifyToken == "" {
		return nil, fmt.Errorf("WA_VERIFY_TOKEN environment variable is required")
	}

	// OpenAI Configuration
	cfg.OpenAI.APIKey = getEnv("OPENAI_API_KEY", "")
	cfg.OpenAI.Model = getEnv("OPENAI_MODEL", "gpt-4o-mini")

	if cfg.OpenAI.APIKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable is required")
	}

	// Persona Configuration
	cfg.Persona.SystemPrompt = getEnv("PERSONA_SYSTEM_PROMPT", "")
	cfg.Persona.BookingLink = getEnv("PERSONA_BOOKING_LINK", "")
	cfg.Persona.FallbackReply = getEnv("PERSONA_FALLBACK_REPLY", "")

	return cfg, nil
}

// GetDSN returns MariaDB connection string
func (c *DBConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		c.User,
		c.Password,
		c.Host,
		c.Port,
		c.Database,
	)
}

// getEnv reads environment variable with fallback default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt reads environment variable as integer with fallback default
func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}
