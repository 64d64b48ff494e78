package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	AppName     string
	AppVersion  string
	Environment string
	HTTPAddr    string

	// PublicBaseURL is used to build gateway return URLs and ticket links in emails.
	PublicBaseURL string
	Currency      string

	OTLPEndpoint string

	DBType string
	// DBDSN, when set, is handed to the driver as-is and the discrete
	// DATABASE_* connection fields are ignored.
	DBDSN             string
	DBHost            string
	DBPort            string
	DBName            string
	DBUser            string
	DBPassword        string
	DBSSLMode         string
	DBMaxIdleConn     int
	DBMaxOpenConn     int
	DBConnMaxLifetime int
	DBConnMaxIdleTime int
	DBAutoMigrate     bool

	Redis   RedisConfig
	SMTP    SMTPConfig
	Gateway GatewayConfig
	Kafka   KafkaConfig

	Scheduler SchedulerConfig
	RateLimit RateLimitConfig

	AdminAPIToken string
	NodeID        int64
	// SeedCatalog loads a starter ticket catalog into an empty database.
	SeedCatalog bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

func (c RedisConfig) Enabled() bool {
	return strings.TrimSpace(c.Addr) != ""
}

type SMTPConfig struct {
	Host      string
	Port      int
	Username  string
	Password  string
	FromEmail string
	FromName  string
}

func (c SMTPConfig) Enabled() bool {
	return strings.TrimSpace(c.Host) != ""
}

type GatewayConfig struct {
	BaseURL       string
	MerchantID    string
	WebhookSecret string
	Timeout       time.Duration
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

func (c KafkaConfig) Enabled() bool {
	return len(c.Brokers) > 0
}

type SchedulerConfig struct {
	RunInterval time.Duration
	BatchSize   int
	// Jobs restricts which jobs run; empty runs all of them.
	Jobs []string
}

type RateLimitConfig struct {
	CheckoutRate  float64
	CheckoutBurst int
	DownloadRate  float64
	DownloadBurst int
}

// Load loads configuration from environment variables and .env file.
func Load() Config {
	_ = godotenv.Load()

	cfg := Config{
		AppName:       getenv("APP_SERVICE", "boxoffice"),
		AppVersion:    getenv("APP_VERSION", "0.1.0"),
		Environment:   getenv("ENVIRONMENT", "development"),
		HTTPAddr:      getenv("HTTP_ADDR", ":8080"),
		PublicBaseURL: strings.TrimRight(getenv("PUBLIC_BASE_URL", "http://localhost:8080"), "/"),
		Currency:      strings.ToUpper(getenv("CURRENCY", "MDL")),
		OTLPEndpoint:  getenv("OTLP_ENDPOINT", "localhost:4317"),

		DBType:            strings.ToLower(strings.TrimSpace(getenv("DATABASE_TYPE", "postgres"))),
		DBDSN:             strings.TrimSpace(getenv("DATABASE_DSN", "")),
		DBHost:            getenv("DATABASE_HOST", "localhost"),
		DBPort:            getenv("DATABASE_PORT", "5432"),
		DBName:            getenv("DATABASE_NAME", "boxoffice"),
		DBUser:            getenv("DATABASE_USER", "postgres"),
		DBPassword:        getenv("DATABASE_PASSWORD", ""),
		DBSSLMode:         getenv("DATABASE_SSLMODE", "disable"),
		DBMaxIdleConn:     getenvInt("DATABASE_MAX_IDLE_CONN", 5),
		DBMaxOpenConn:     getenvInt("DATABASE_MAX_OPEN_CONN", 20),
		DBConnMaxLifetime: getenvInt("DATABASE_CONN_MAX_LIFETIME", 300),
		DBConnMaxIdleTime: getenvInt("DATABASE_CONN_MAX_IDLE_TIME", 60),
		DBAutoMigrate:     getenvBool("DATABASE_AUTO_MIGRATE", true),

		Redis: RedisConfig{
			Addr:     strings.TrimSpace(getenv("REDIS_ADDR", "")),
			Password: getenv("REDIS_PASSWORD", ""),
			DB:       getenvInt("REDIS_DB", 0),
		},
		SMTP: SMTPConfig{
			Host:      strings.TrimSpace(getenv("SMTP_HOST", "")),
			Port:      getenvInt("SMTP_PORT", 587),
			Username:  getenv("SMTP_USERNAME", ""),
			Password:  getenv("SMTP_PASSWORD", ""),
			FromEmail: getenv("SMTP_FROM_EMAIL", "tickets@localhost"),
			FromName:  getenv("SMTP_FROM_NAME", "Box Office"),
		},
		Gateway: GatewayConfig{
			BaseURL:       strings.TrimRight(getenv("GATEWAY_BASE_URL", ""), "/"),
			MerchantID:    strings.TrimSpace(getenv("GATEWAY_MERCHANT_ID", "")),
			WebhookSecret: strings.TrimSpace(getenv("GATEWAY_WEBHOOK_SECRET", "")),
			Timeout:       getenvDuration("GATEWAY_TIMEOUT", 10*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(getenv("KAFKA_BROKERS", "")),
			Topic:   getenv("KAFKA_TOPIC", "boxoffice.orders"),
		},

		Scheduler: SchedulerConfig{
			RunInterval: getenvDuration("SCHEDULER_INTERVAL", time.Minute),
			BatchSize:   getenvInt("SCHEDULER_BATCH_SIZE", 100),
			Jobs:        splitList(getenv("SCHEDULER_JOBS", "")),
		},
		RateLimit: RateLimitConfig{
			CheckoutRate:  getenvFloat("RATE_LIMIT_CHECKOUT_RATE", 0.2),
			CheckoutBurst: getenvInt("RATE_LIMIT_CHECKOUT_BURST", 5),
			DownloadRate:  getenvFloat("RATE_LIMIT_DOWNLOAD_RATE", 1),
			DownloadBurst: getenvInt("RATE_LIMIT_DOWNLOAD_BURST", 20),
		},

		AdminAPIToken: strings.TrimSpace(getenv("ADMIN_API_TOKEN", "")),
		NodeID:        int64(getenvInt("SNOWFLAKE_NODE_ID", 1)),
		SeedCatalog:   getenvBool("SEED_CATALOG", false),
	}

	return cfg
}

func (c Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Environment), "production")
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvBool(key string, def bool) bool {
	value := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if value == "" {
		return def
	}
	switch value {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	default:
		return def
	}
}

func getenvInt(key string, def int) int {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return def
	}
	return parsed
}

func getenvFloat(key string, def float64) float64 {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return def
	}
	return parsed
}

func getenvDuration(key string, def time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return def
	}
	parsed, err := time.ParseDuration(value)
	if err != nil || parsed <= 0 {
		return def
	}
	return parsed
}

func splitList(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}
