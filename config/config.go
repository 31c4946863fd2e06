package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	JWT        JWTConfig
	Cloudinary CloudinaryConfig
	Payment    PaymentConfig
	Workflow   WorkflowConfig
}

type ServerConfig struct {
	Port    string
	GinMode string
}

type DatabaseConfig struct {
	URL string
}

type JWTConfig struct {
	Secret string
}

type CloudinaryConfig struct {
	CloudName string
	APIKey    string
	APISecret string
}

type PaymentConfig struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type WorkflowConfig struct {
	// MinApprovalAmount is the smallest final amount an admin may settle.
	MinApprovalAmount float64
	// SettlementRetryInterval controls how often the background job rescans
	// paid-but-unfinalized settlements.
	SettlementRetryInterval time.Duration
	// SettlementGracePeriod is how long a settled record may sit before the
	// background job considers it stalled and resumes it.
	SettlementGracePeriod time.Duration
}

// Load builds the configuration from environment variables. The returned
// value is handed explicitly to every component that needs it.
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port:    getEnv("PORT", "8080"),
			GinMode: getEnv("GIN_MODE", "debug"),
		},
		Database: DatabaseConfig{
			URL: getEnv("DB_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "change-this-in-production"),
		},
		Cloudinary: CloudinaryConfig{
			CloudName: getEnv("CLOUDINARY_CLOUD_NAME", ""),
			APIKey:    getEnv("CLOUDINARY_API_KEY", ""),
			APISecret: getEnv("CLOUDINARY_API_SECRET", ""),
		},
		Payment: PaymentConfig{
			BaseURL: getEnv("PAYMENT_GATEWAY_URL", "http://localhost:9090"),
			APIKey:  getEnv("PAYMENT_GATEWAY_API_KEY", ""),
			Timeout: time.Duration(getEnvAsInt("PAYMENT_TIMEOUT_SECONDS", 15)) * time.Second,
		},
		Workflow: WorkflowConfig{
			MinApprovalAmount:       getEnvAsFloat("MIN_APPROVAL_AMOUNT", 1000),
			SettlementRetryInterval: time.Duration(getEnvAsInt("SETTLEMENT_RETRY_SECONDS", 60)) * time.Second,
			SettlementGracePeriod:   time.Duration(getEnvAsInt("SETTLEMENT_GRACE_SECONDS", 120)) * time.Second,
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
