package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	LogLevel string
	Env      string

	DB         DBConfig
	OrderCloud OrderCloudConfig
	Books      BooksConfig
	Export     ExportConfig
	FTP        FTPConfig
	SMTP       SMTPConfig
	Kafka      KafkaConfig

	// NotifyChannel selects the notification transport: email, kafka or both
	NotifyChannel string

	// ExcludedPartnerCodes are trading partners skipped by the whole run
	// (no orders fetched, no vendor mapping, no uploads)
	ExcludedPartnerCodes []string
}

// DBConfig holds the database configuration
type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string
	SSLMode  string
}

// OrderCloudConfig holds the order-management API configuration
type OrderCloudConfig struct {
	BaseURL  string
	Username string
	Password string
}

// BooksConfig holds the accounting API configuration. The catalog reference
// IDs are injected here rather than hardcoded so a catalog change does not
// require a code change.
type BooksConfig struct {
	BaseURL      string
	AuthURL      string
	ClientID     string
	ClientSecret string
	RealmID      string

	ProductItemID  string
	TaxItemID      string
	ShippingItemID string
	ClassID        string
	TermID         string
}

// ExportConfig holds the local export file configuration
type ExportConfig struct {
	BaseDir string
}

// FTPConfig holds the transfer channel configuration
type FTPConfig struct {
	Host     string
	Username string
	Password string
}

// SMTPConfig holds the email notification configuration
type SMTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	From       string
	Recipients []string
}

// KafkaConfig holds the Kafka notification configuration
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// getEnv retrieves the value of an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

// getEnvList splits a comma-separated environment variable into a slice
func getEnvList(key, defaultValue string) []string {
	raw := getEnv(key, defaultValue)

	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			values = append(values, trimmed)
		}
	}

	return values
}

// Load reads the configuration from environment variables and returns a Config struct.
func Load() (*Config, error) {
	dbPort, err := strconv.Atoi(getEnv("DB_PORT", "5432"))

	if err != nil {
		return nil, fmt.Errorf("invalid DB_PORT: %w", err)
	}

	smtpPort, err := strconv.Atoi(getEnv("SMTP_PORT", "587"))

	if err != nil {
		return nil, fmt.Errorf("invalid SMTP_PORT: %w", err)
	}

	return &Config{
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("APP_ENV", "development"),
		DB: DBConfig{
			Host:     getEnv("DB_HOST", "localhost"),
			Port:     dbPort,
			User:     getEnv("DB_USER", "postgres"),
			Password: getEnv("DB_PASSWORD", "postgres"),
			Name:     getEnv("DB_NAME", "dropship"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		OrderCloud: OrderCloudConfig{
			BaseURL:  getEnv("ORDERCLOUD_BASE_URL", "http://localhost:8081"),
			Username: getEnv("ORDERCLOUD_USERNAME", ""),
			Password: getEnv("ORDERCLOUD_PASSWORD", ""),
		},
		Books: BooksConfig{
			BaseURL:        getEnv("BOOKS_BASE_URL", "http://localhost:8082"),
			AuthURL:        getEnv("BOOKS_AUTH_URL", "http://localhost:8082/oauth/token"),
			ClientID:       getEnv("BOOKS_CLIENT_ID", ""),
			ClientSecret:   getEnv("BOOKS_CLIENT_SECRET", ""),
			RealmID:        getEnv("BOOKS_REALM_ID", ""),
			ProductItemID:  getEnv("BOOKS_PRODUCT_ITEM_ID", "2"),
			TaxItemID:      getEnv("BOOKS_TAX_ITEM_ID", "24"),
			ShippingItemID: getEnv("BOOKS_SHIPPING_ITEM_ID", "23"),
			ClassID:        getEnv("BOOKS_CLASS_ID", "1111"),
			TermID:         getEnv("BOOKS_TERM_ID", "4"),
		},
		Export: ExportConfig{
			BaseDir: getEnv("EXPORT_BASE_DIR", "tmp"),
		},
		FTP: FTPConfig{
			Host:     getEnv("FTP_HOST", "localhost:21"),
			Username: getEnv("FTP_USERNAME", ""),
			Password: getEnv("FTP_PASSWORD", ""),
		},
		SMTP: SMTPConfig{
			Host:       getEnv("SMTP_HOST", "localhost"),
			Port:       smtpPort,
			Username:   getEnv("SMTP_USERNAME", ""),
			Password:   getEnv("SMTP_PASSWORD", ""),
			From:       getEnv("SMTP_FROM", "invoicer@localhost"),
			Recipients: getEnvList("SMTP_RECIPIENTS", ""),
		},
		Kafka: KafkaConfig{
			Brokers: getEnvList("KAFKA_BROKERS", "localhost:9092"),
			Topic:   getEnv("KAFKA_NOTIFICATIONS_TOPIC", "invoicer.notifications"),
		},
		NotifyChannel:        getEnv("NOTIFY_CHANNEL", "email"),
		ExcludedPartnerCodes: getEnvList("EXCLUDED_PARTNER_CODES", ""),
	}, nil
}

// GetDBConnString returns the database connection string
func (c *Config) GetDBConnString() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host, c.DB.Port, c.DB.User, c.DB.Password, c.DB.Name, c.DB.SSLMode)
}
