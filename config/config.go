package config

import (
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/loganwilliamstarp-web/isgmarketing-sub004/models"
)

var (
	DB        *gorm.DB
	AppConfig Config
	envLoaded bool
)

type RedisConfig struct {
	Enabled  bool   `json:"enabled"`
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

type SMTPConfig struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"-"`
}

type Config struct {
	Environment    string `json:"environment"`
	ServerPort     string `json:"server_port"`
	AppBaseURL     string `json:"app_base_url"`
	DBHost         string `json:"db_host"`
	DBPort         string `json:"db_port"`
	DBUser         string `json:"db_user"`
	DBPassword     string `json:"-"`
	DBName         string `json:"db_name"`
	DBSSLMode      string `json:"db_ssl_mode"`
	DBMaxIdleConns int    `json:"db_max_idle_conns"`
	DBMaxOpenConns int    `json:"db_max_open_conns"`

	// Outbound provider. An empty API key puts the dispatcher in dry-run
	// unless SMTP credentials are configured.
	SendGridAPIKey string     `json:"-"`
	FromEmail      string     `json:"from_email"`
	FromName       string     `json:"from_name"`
	ReplyToEmail   string     `json:"reply_to_email"`
	SMTP           SMTPConfig `json:"smtp"`

	// Inbound webhook verification. Unset means every webhook request is
	// rejected; there is no unauthenticated mode.
	SendGridWebhookPublicKey string `json:"-"`

	// Agency branding substituted into merge fields
	AgencyName      string `json:"agency_name"`
	AgencySignature string `json:"agency_signature"`
	ReviewLink      string `json:"review_link"`
	RatingLink      string `json:"rating_link"`

	// Auth secrets
	APITokenSecret string `json:"-"`
	CronAPIKey     string `json:"-"`
	TokenSecret    string `json:"-"` // unsubscribe link signing

	SentryDSN string `json:"-"`

	// Engine cadence
	DispatchIntervalMinutes int `json:"dispatch_interval_minutes"`
	DailyRunHour            int `json:"daily_run_hour"`

	RateLimitWebhook int         `json:"rate_limit_webhook"`
	Redis            RedisConfig `json:"redis"`
}

func init() {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()
	envLoaded = true
}

func LoadConfig() error {
	AppConfig = Config{
		Environment:    getEnv("ENVIRONMENT", "development"),
		ServerPort:     getEnv("SERVER_PORT", "5000"),
		AppBaseURL:     getEnv("APP_BASE_URL", "http://localhost:5000"),
		DBHost:         getEnv("DB_HOST", "localhost"),
		DBPort:         getEnv("DB_PORT", "5432"),
		DBUser:         getEnv("DB_USER", "postgres"),
		DBPassword:     getEnv("DB_PASSWORD", ""),
		DBName:         getEnv("DB_NAME", "isgmarketing"),
		DBSSLMode:      getEnv("DB_SSL_MODE", "disable"),
		DBMaxIdleConns: getEnvAsInt("DB_MAX_IDLE_CONNS", 10),
		DBMaxOpenConns: getEnvAsInt("DB_MAX_OPEN_CONNS", 100),

		SendGridAPIKey: getEnv("SENDGRID_API_KEY", ""),
		FromEmail:      getEnv("FROM_EMAIL", ""),
		FromName:       getEnv("FROM_NAME", ""),
		ReplyToEmail:   getEnv("REPLY_TO_EMAIL", ""),
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnvAsInt("SMTP_PORT", 587),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
		},

		SendGridWebhookPublicKey: getEnv("SENDGRID_WEBHOOK_PUBLIC_KEY", ""),

		AgencyName:      getEnv("AGENCY_NAME", ""),
		AgencySignature: getEnv("AGENCY_SIGNATURE", ""),
		ReviewLink:      getEnv("REVIEW_LINK", ""),
		RatingLink:      getEnv("RATING_LINK", ""),

		APITokenSecret: getEnv("API_TOKEN_SECRET", ""),
		CronAPIKey:     getEnv("CRON_API_KEY", ""),
		TokenSecret:    getEnv("TOKEN_SECRET", ""),

		SentryDSN: getEnv("SENTRY_DSN", ""),

		DispatchIntervalMinutes: getEnvAsInt("DISPATCH_INTERVAL_MINUTES", 5),
		DailyRunHour:            getEnvAsInt("DAILY_RUN_HOUR", 8),

		RateLimitWebhook: getEnvAsInt("RATE_LIMIT_WEBHOOK", 120),
		Redis: RedisConfig{
			Enabled:  getEnv("REDIS_ENABLED", "false") == "true",
			Address:  getEnv("REDIS_ADDRESS", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
	}

	// Validate required configurations
	if AppConfig.DBPassword == "" {
		return fmt.Errorf("DB_PASSWORD is required")
	}
	if AppConfig.APITokenSecret == "" {
		return fmt.Errorf("API_TOKEN_SECRET is required")
	}
	if AppConfig.TokenSecret == "" {
		return fmt.Errorf("TOKEN_SECRET is required for unsubscribe links")
	}
	if AppConfig.Environment == "production" {
		if AppConfig.SendGridWebhookPublicKey == "" {
			return fmt.Errorf("SENDGRID_WEBHOOK_PUBLIC_KEY is required in production")
		}
		if AppConfig.CronAPIKey == "" {
			return fmt.Errorf("CRON_API_KEY is required in production")
		}
	}
	if AppConfig.SendGridAPIKey == "" && AppConfig.SMTP.Host == "" {
		log.Println("⚠️ No provider credential configured - dispatcher runs in dry-run mode")
	}

	logConfig()
	return nil
}

func ConnectDB() error {
	log.Println("Attempting to connect to database...")

	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBUser,
		AppConfig.DBPassword,
		AppConfig.DBName,
		AppConfig.DBSSLMode,
	)
	log.Println("Using connection string:", maskPassword(dsn))

	var err error
	DB, err = gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get DB instance: %w", err)
	}

	sqlDB.SetMaxIdleConns(AppConfig.DBMaxIdleConns)
	sqlDB.SetMaxOpenConns(AppConfig.DBMaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(30 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	log.Println("✅ Successfully connected to the database")
	log.Println("🔄 Starting database migration...")
	if err := models.Migrate(DB); err != nil {
		return fmt.Errorf("database migration failed: %w", err)
	}
	if err := models.CreateDefaultAutomations(DB); err != nil {
		return fmt.Errorf("seeding default automations failed: %w", err)
	}
	log.Println("✅ Database migration completed")
	return nil
}

// DryRun reports whether the dispatcher should skip the provider call.
func DryRun() bool {
	return AppConfig.SendGridAPIKey == "" && AppConfig.SMTP.Host == ""
}

// Helper functions
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	if !envLoaded && fallback == "" {
		log.Printf("⚠️ Environment variable %s not found and no fallback provided", key)
	}
	return fallback
}

func getEnvAsInt(key string, fallback int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return fallback
	}
	var value int
	_, err := fmt.Sscanf(valueStr, "%d", &value)
	if err != nil {
		return fallback
	}
	return value
}

func maskPassword(dsn string) string {
	const passwordMarker = "password="
	startIdx := strings.Index(dsn, passwordMarker)
	if startIdx == -1 {
		return dsn
	}

	startIdx += len(passwordMarker)
	endIdx := strings.IndexAny(dsn[startIdx:], " ")
	if endIdx == -1 {
		return dsn[:startIdx] + "*****"
	}
	return dsn[:startIdx] + "*****" + dsn[startIdx+endIdx:]
}

func logConfig() {
	log.Println("🔧 Loaded configuration:")
	log.Printf("Environment: %s", AppConfig.Environment)
	log.Printf("Server Port: %s", AppConfig.ServerPort)
	log.Printf("Database: %s@%s:%s/%s",
		AppConfig.DBUser,
		AppConfig.DBHost,
		AppConfig.DBPort,
		AppConfig.DBName)
	log.Printf("Provider: SendGrid(%t), SMTP(%t), WebhookKey(%t)",
		AppConfig.SendGridAPIKey != "",
		AppConfig.SMTP.Host != "",
		AppConfig.SendGridWebhookPublicKey != "")
}
