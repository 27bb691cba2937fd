package config

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	// Database configuration
	DatabaseHost     string
	DatabasePort     string
	DatabaseName     string
	DatabaseUser     string
	DatabasePassword string

	// Redis configuration
	RedisHost     string
	RedisPassword string
	RedisPort     string

	// Auth configuration
	Auth AuthConfig

	// LLM configuration
	LLM LLMConfig

	// Analyst configuration
	Analyst AnalystConfig

	// Scheduler configuration
	Scheduler SchedulerConfig

	APIPort int
}

// AuthConfig holds JWT verification configuration
type AuthConfig struct {
	Issuer      string
	HS256Secret string
	OrgID       string
	DevZoneIDs  []string
}

// LLMConfig holds LLM service configuration
type LLMConfig struct {
	Enabled  bool
	Endpoint string
	APIKey   string
	Model    string
}

// AnalystConfig holds pricing-analysis parameters and probe limits
type AnalystConfig struct {
	// Operating timezone used for blackout-hour checks
	Timezone string

	// Elasticity probe limits
	ProbeMaxDelta      float64 // system-wide cap on |delta|
	ProbeDefaultDeltas []float64
	ProbeHorizonDays   int

	// Guardrail rate-consistency check
	ConsistencyLookbackDays int
	ConsistencyMaxChanges   int
	ConsistencyThreshold    float64 // fraction deviation from recent average

	// Evaluation baselines (stand-in until real occupancy feeds land)
	BaselineRevPSH     float64
	BaselineOccupancy  float64
	DemandElasticity   float64
	RevenuePassthrough float64
}

// SchedulerConfig holds daily refresh scheduling parameters
type SchedulerConfig struct {
	Enabled          bool
	RefreshHourUTC   int
	RefreshMinuteUTC int
	ZoneIDs          []string // empty = discover from historical transactions
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Load .env file if exists
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, using environment variables")
	}

	return &Config{
		// Database configuration
		DatabaseHost:     getEnvOrDefault("DB_HOST", "localhost"),
		DatabasePort:     getEnvOrDefault("DB_PORT", "5432"),
		DatabaseName:     getEnvOrDefault("DB_NAME", "parking_analyst"),
		DatabaseUser:     getEnvOrDefault("DB_USER", "analyst"),
		DatabasePassword: getEnvOrDefault("DB_PASSWORD", "analyst123"),

		// Redis configuration
		RedisHost:     getEnvOrDefault("REDIS_HOST", "localhost"),
		RedisPort:     getEnvOrDefault("REDIS_PORT", "6379"),
		RedisPassword: getEnvOrDefault("REDIS_PASSWORD", ""),

		Auth: AuthConfig{
			Issuer:      getEnvOrDefault("JWT_ISSUER", "app.lvlparking.com"),
			HS256Secret: getEnvOrDefault("DEV_JWT_HS256_SECRET", "dev-local-please-rotate"),
			OrgID:       getEnvOrDefault("ORG_ID", "org-demo"),
			DevZoneIDs:  getEnvList("DEV_ZONE_IDS", []string{"z-110", "z-221"}),
		},

		LLM: LLMConfig{
			Enabled:  getEnvOrDefault("LLM_ENABLED", "false") == "true",
			Endpoint: getEnvOrDefault("LLM_ENDPOINT", "https://api.openai.com/v1"),
			APIKey:   getEnvOrDefault("LLM_API_KEY", ""),
			Model:    getEnvOrDefault("LLM_MODEL", "gpt-4o-mini"),
		},

		Analyst: AnalystConfig{
			Timezone: getEnvOrDefault("ANALYST_TZ", "America/Chicago"),

			ProbeMaxDelta:      getEnvFloat("ANALYST_PROBE_MAX_DELTA", 0.10),
			ProbeDefaultDeltas: getEnvFloatList("ANALYST_PROBE_DEFAULT_DELTAS", []float64{-0.05, -0.02, 0.02, 0.05}),
			ProbeHorizonDays:   getEnvInt("ANALYST_PROBE_HORIZON_DAYS", 14),

			ConsistencyLookbackDays: getEnvInt("ANALYST_CONSISTENCY_LOOKBACK_DAYS", 7),
			ConsistencyMaxChanges:   getEnvInt("ANALYST_CONSISTENCY_MAX_CHANGES", 5),
			ConsistencyThreshold:    getEnvFloat("ANALYST_CONSISTENCY_THRESHOLD", 0.30),

			BaselineRevPSH:     getEnvFloat("ANALYST_BASELINE_REV_PSH", 8.50),
			BaselineOccupancy:  getEnvFloat("ANALYST_BASELINE_OCCUPANCY", 0.65),
			DemandElasticity:   getEnvFloat("ANALYST_DEMAND_ELASTICITY", 0.3),
			RevenuePassthrough: getEnvFloat("ANALYST_REVENUE_PASSTHROUGH", 0.5),
		},

		Scheduler: SchedulerConfig{
			Enabled:          getEnvOrDefault("SCHEDULER_ENABLED", "true") == "true",
			RefreshHourUTC:   getEnvInt("SCHEDULER_DAILY_REFRESH_HOUR_UTC", 9),
			RefreshMinuteUTC: getEnvInt("SCHEDULER_DAILY_REFRESH_MINUTE_UTC", 0),
			ZoneIDs:          getEnvList("SCHEDULER_ZONE_IDS", nil),
		},

		APIPort: getEnvInt("API_PORT", 8088),
	}
}

// getEnvInt gets environment variable as int or returns default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var intValue int
	if _, err := fmt.Sscanf(value, "%d", &intValue); err != nil {
		return defaultValue
	}
	return intValue
}

// getEnvFloat gets environment variable as float64 or returns default value
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var floatValue float64
	if _, err := fmt.Sscanf(value, "%f", &floatValue); err != nil {
		return defaultValue
	}
	return floatValue
}

// getEnvOrDefault gets environment variable or returns default value
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList gets a comma-separated environment variable as a string slice
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

// getEnvFloatList gets a JSON array environment variable as a float slice,
// e.g. ANALYST_PROBE_DEFAULT_DELTAS="[-0.05,-0.02,0.02,0.05]"
func getEnvFloatList(key string, defaultValue []float64) []float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []float64
	if err := json.Unmarshal([]byte(value), &out); err != nil || len(out) == 0 {
		return defaultValue
	}
	return out
}
