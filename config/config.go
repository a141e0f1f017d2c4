package config

import (
	"errors"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	App      AppConfig
	HTTP     ServerConfig
	MySQL    MySQLConfig
	Log      LogConfig
	Card     CardConfig
	Wallet   WalletConfig
	Payments PaymentsConfig
	Jobs     JobsConfig
}

type AppConfig struct {
	ServiceName string
	AdminAPIKey string
}

type ServerConfig struct {
	Host string
	Port string
}

type MySQLConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type LogConfig struct {
	Level string
}

// CardConfig holds the card provider credentials. The card provider
// authenticates with a static secret key attached to every call.
type CardConfig struct {
	SecretKey                 string
	WebhookSecret             string
	APIBaseURL                string
	SignatureToleranceSeconds int64
	HTTPTimeout               time.Duration
}

// WalletConfig holds the e-wallet provider credentials. The wallet provider
// requires a client-credential token exchange before each outbound call.
type WalletConfig struct {
	BaseURL       string
	ClientID      string
	ClientSecret  string
	WebhookSecret string
	HTTPTimeout   time.Duration
}

type PaymentsConfig struct {
	DefaultCurrency     string
	AuditSinkURL        string
	NotifyMaxAttempts   int32
	NotifyRetryInterval time.Duration
	NotifyHTTPTimeout   time.Duration
	ReconcileStaleAfter time.Duration
	JobBatchSize        int32
}

type JobsConfig struct {
	ReconcileInterval time.Duration
	NotifyInterval    time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	mysqlDSN := os.Getenv("MYSQL_DSN")
	if mysqlDSN == "" {
		return nil, errors.New("MYSQL_DSN environment variable is required")
	}

	return &Config{
		App: AppConfig{
			ServiceName: getEnv("APP_SERVICE_NAME", "ticketing-payments"),
			AdminAPIKey: getEnv("APP_ADMIN_API_KEY", ""),
		},
		HTTP: ServerConfig{
			Host: getEnv("HTTP_HOST", "0.0.0.0"),
			Port: getEnv("HTTP_PORT", "8080"),
		},
		MySQL: MySQLConfig{
			DSN:             mysqlDSN,
			MaxOpenConns:    getIntEnv("MYSQL_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntEnv("MYSQL_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getMinutesEnv("MYSQL_CONN_MAX_LIFETIME_MINUTES", 30*time.Minute),
		},
		Log: LogConfig{
			Level: getEnv("LOG_LEVEL", "info"),
		},
		Card: CardConfig{
			SecretKey:                 getEnv("CARD_SECRET_KEY", ""),
			WebhookSecret:             getEnv("CARD_WEBHOOK_SECRET", ""),
			APIBaseURL:                getEnv("CARD_API_BASE_URL", ""),
			SignatureToleranceSeconds: int64(getIntEnv("CARD_SIGNATURE_TOLERANCE_SECONDS", 300)),
			HTTPTimeout:               getSecondsEnv("CARD_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Wallet: WalletConfig{
			BaseURL:       getEnv("WALLET_BASE_URL", ""),
			ClientID:      getEnv("WALLET_CLIENT_ID", ""),
			ClientSecret:  getEnv("WALLET_CLIENT_SECRET", ""),
			WebhookSecret: getEnv("WALLET_WEBHOOK_SECRET", ""),
			HTTPTimeout:   getSecondsEnv("WALLET_HTTP_TIMEOUT_SECONDS", 10*time.Second),
		},
		Payments: PaymentsConfig{
			DefaultCurrency:     getEnv("PAYMENTS_DEFAULT_CURRENCY", "GBP"),
			AuditSinkURL:        getEnv("PAYMENTS_AUDIT_SINK_URL", ""),
			NotifyMaxAttempts:   int32(getIntEnv("PAYMENTS_NOTIFY_MAX_ATTEMPTS", 10)),
			NotifyRetryInterval: getMinutesEnv("PAYMENTS_NOTIFY_RETRY_INTERVAL_MINUTES", 5*time.Minute),
			NotifyHTTPTimeout:   getSecondsEnv("PAYMENTS_NOTIFY_HTTP_TIMEOUT_SECONDS", 10*time.Second),
			ReconcileStaleAfter: getMinutesEnv("PAYMENTS_RECONCILE_STALE_AFTER_MINUTES", 15*time.Minute),
			JobBatchSize:        int32(getIntEnv("PAYMENTS_JOB_BATCH_SIZE", 100)),
		},
		Jobs: JobsConfig{
			ReconcileInterval: getMinutesEnv("PAYMENTS_RECONCILE_INTERVAL_MINUTES", 2*time.Minute),
			NotifyInterval:    getMinutesEnv("PAYMENTS_NOTIFY_INTERVAL_MINUTES", time.Minute),
		},
	}, nil
}

// CardConfigured reports whether the card provider has usable credentials.
func (c *Config) CardConfigured() bool {
	return c.Card.SecretKey != "" && c.Card.WebhookSecret != ""
}

// WalletConfigured reports whether the wallet provider has usable credentials.
func (c *Config) WalletConfigured() bool {
	return c.Wallet.BaseURL != "" && c.Wallet.ClientID != "" && c.Wallet.ClientSecret != "" && c.Wallet.WebhookSecret != ""
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getMinutesEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if minutes, err := strconv.Atoi(value); err == nil {
			return time.Duration(minutes) * time.Minute
		}
	}
	return defaultValue
}

func getSecondsEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if seconds, err := strconv.Atoi(value); err == nil {
			return time.Duration(seconds) * time.Second
		}
	}
	return defaultValue
}
