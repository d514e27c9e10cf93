package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"

	"github.com/Alias1177/GlucoPredictor/models"
)

// Config holds all application configuration
type Config struct {
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr string `env:"HTTP_ADDR" envDefault:":8080" validate:"required"`

	// Empty DBHost runs the service on the in-memory store
	DBHost     string `env:"DB_HOST"`
	DBPort     string `env:"DB_PORT" envDefault:"5432"`
	DBUser     string `env:"DB_USER"`
	DBPassword string `env:"DB_PASSWORD"`
	DBName     string `env:"DB_NAME" envDefault:"glucose"`
	DBSSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

	MLAPIURL         string        `env:"ML_API_URL" validate:"omitempty,url"`
	MLRequestTimeout time.Duration `env:"ML_REQUEST_TIMEOUT" envDefault:"3s" validate:"gt=0"`
	MLRequestsPerSec int           `env:"ML_REQUESTS_PER_SEC" envDefault:"10" validate:"gt=0"`
	DefaultModel     string        `env:"DEFAULT_MODEL" envDefault:"trend-v1" validate:"required"`
	FallbackModel    string        `env:"FALLBACK_MODEL" envDefault:"trend-v1"`

	DeadBand       float64 `env:"DEAD_BAND" envDefault:"5" validate:"gte=0"`
	HypoThreshold  float64 `env:"HYPO_THRESHOLD" envDefault:"70" validate:"gt=0"`
	HyperThreshold float64 `env:"HYPER_THRESHOLD" envDefault:"180" validate:"gtfield=HypoThreshold"`
	LowConfidence  float64 `env:"LOW_CONFIDENCE" envDefault:"0.5" validate:"gte=0,lte=1"`
	MinConfidence  float64 `env:"MIN_CONFIDENCE" envDefault:"0.2" validate:"gt=0,lte=1"`

	ForecastTimeframe  string        `env:"FORECAST_TIMEFRAME" envDefault:"30 minutes" validate:"required"`
	ForecastHorizon    time.Duration `validate:"gt=0"`
	NotifyCooldown     time.Duration `env:"NOTIFY_COOLDOWN" validate:"gte=0"`
	ReconcileTolerance time.Duration `env:"RECONCILE_TOLERANCE" envDefault:"10m" validate:"gt=0"`
	GlucoseLookback    time.Duration `env:"GLUCOSE_LOOKBACK" envDefault:"3h" validate:"gt=0"`
	MealWindow         time.Duration `env:"MEAL_WINDOW" envDefault:"3h" validate:"gt=0"`
	ActivityWindow     time.Duration `env:"ACTIVITY_WINDOW" envDefault:"2h" validate:"gt=0"`
	TriggerTimeout     time.Duration `env:"TRIGGER_TIMEOUT" envDefault:"5s" validate:"gt=0"`
	MaxClockSkew       time.Duration `env:"MAX_CLOCK_SKEW" envDefault:"5m" validate:"gt=0"`

	AutoTickEnabled     bool          `env:"AUTO_TICK_ENABLED" envDefault:"true"`
	AutoTickInterval    time.Duration `env:"AUTO_TICK_INTERVAL" envDefault:"15m" validate:"gt=0"`
	AutoTickConcurrency int           `env:"AUTO_TICK_CONCURRENCY" envDefault:"8" validate:"gt=0"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   int64  `env:"TELEGRAM_CHAT_ID"`
}

// Load initializes configuration from environment variables
func Load() (*Config, error) {
	// Load environment variables from .env file if present
	if err := godotenv.Load(); err != nil {
		log.Warn().Msg(".env file not found, relying on actual environment variables")
	}

	var cfg Config

	cfg.LogLevel = getEnvWithDefault("LOG_LEVEL", "info")
	cfg.HTTPAddr = getEnvWithDefault("HTTP_ADDR", ":8080")

	cfg.DBHost = os.Getenv("DB_HOST")
	cfg.DBPort = getEnvWithDefault("DB_PORT", "5432")
	cfg.DBUser = os.Getenv("DB_USER")
	cfg.DBPassword = os.Getenv("DB_PASSWORD")
	cfg.DBName = getEnvWithDefault("DB_NAME", "glucose")
	cfg.DBSSLMode = getEnvWithDefault("DB_SSLMODE", "disable")

	cfg.MLAPIURL = os.Getenv("ML_API_URL")
	cfg.MLRequestTimeout = getEnvDurationWithDefault("ML_REQUEST_TIMEOUT", 3*time.Second)
	cfg.MLRequestsPerSec = getEnvIntWithDefault("ML_REQUESTS_PER_SEC", 10)
	cfg.DefaultModel = getEnvWithDefault("DEFAULT_MODEL", "trend-v1")
	cfg.FallbackModel = getEnvWithDefault("FALLBACK_MODEL", "trend-v1")

	cfg.DeadBand = getEnvFloatWithDefault("DEAD_BAND", 5)
	cfg.HypoThreshold = getEnvFloatWithDefault("HYPO_THRESHOLD", 70)
	cfg.HyperThreshold = getEnvFloatWithDefault("HYPER_THRESHOLD", 180)
	cfg.LowConfidence = getEnvFloatWithDefault("LOW_CONFIDENCE", 0.5)
	cfg.MinConfidence = getEnvFloatWithDefault("MIN_CONFIDENCE", 0.2)

	cfg.ForecastTimeframe = getEnvWithDefault("FORECAST_TIMEFRAME", "30 minutes")
	horizon, err := models.ParseTimeframe(cfg.ForecastTimeframe)
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: FORECAST_TIMEFRAME: %w", err)
	}
	cfg.ForecastHorizon = horizon
	// the cooldown follows the forecast horizon unless set explicitly
	cfg.NotifyCooldown = getEnvDurationWithDefault("NOTIFY_COOLDOWN", horizon)
	cfg.ReconcileTolerance = getEnvDurationWithDefault("RECONCILE_TOLERANCE", 10*time.Minute)
	cfg.GlucoseLookback = getEnvDurationWithDefault("GLUCOSE_LOOKBACK", 3*time.Hour)
	cfg.MealWindow = getEnvDurationWithDefault("MEAL_WINDOW", 3*time.Hour)
	cfg.ActivityWindow = getEnvDurationWithDefault("ACTIVITY_WINDOW", 2*time.Hour)
	cfg.TriggerTimeout = getEnvDurationWithDefault("TRIGGER_TIMEOUT", 5*time.Second)
	cfg.MaxClockSkew = getEnvDurationWithDefault("MAX_CLOCK_SKEW", 5*time.Minute)

	cfg.AutoTickEnabled = getEnvBoolWithDefault("AUTO_TICK_ENABLED", true)
	cfg.AutoTickInterval = getEnvDurationWithDefault("AUTO_TICK_INTERVAL", 15*time.Minute)
	cfg.AutoTickConcurrency = getEnvIntWithDefault("AUTO_TICK_CONCURRENCY", 8)

	cfg.TelegramBotToken = os.Getenv("TELEGRAM_BOT_TOKEN")
	cfg.TelegramChatID = getEnvInt64WithDefault("TELEGRAM_CHAT_ID", 0)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks field constraints
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}

// UsePostgres reports whether a database host is configured
func (c *Config) UsePostgres() bool {
	return c.DBHost != ""
}

// Helper functions for environment variable handling
func getEnvWithDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntWithDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvInt64WithDefault(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatWithDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvDurationWithDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvBoolWithDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return value == "true" || value == "1" || value == "yes"
	}
	return defaultValue
}
