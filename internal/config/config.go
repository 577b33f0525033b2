// Package config provides configuration management for the SmartSpray notifier.
//
// Configuration is loaded from, in increasing precedence:
//  1. Default values
//  2. config.yaml (optional)
//  3. .env file (optional, never overrides variables already set)
//  4. Environment variables (standard names like DATABASE_URL, SERVER_PORT)
package config

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// Database drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Email provider drivers.
const (
	EmailDriverResend = "resend"
	EmailDriverSMTP   = "smtp"
	EmailDriverLog    = "log"
)

// Messaging provider drivers (SMS and WhatsApp).
const (
	MessagingDriverTwilio = "twilio"
	MessagingDriverLog    = "log"
)

// Config is the root configuration structure.
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Log          LogConfig          `mapstructure:"log"`
	River        RiverConfig        `mapstructure:"river"`
	Security     SecurityConfig     `mapstructure:"security"`
	Worker       WorkerConfig       `mapstructure:"worker"`
	Notification NotificationConfig `mapstructure:"notification"`
	Providers    ProvidersConfig    `mapstructure:"providers"`
	Redis        RedisConfig        `mapstructure:"redis"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// DatabaseConfig contains store connection settings.
type DatabaseConfig struct {
	// Driver selects the store backend: "postgres" (default) or "sqlite".
	Driver     string `mapstructure:"driver"`
	SQLitePath string `mapstructure:"sqlite_path"`

	URL string `mapstructure:"url"`

	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Database string `mapstructure:"database"`
	SSLMode  string `mapstructure:"sslmode"`

	// Pool configuration (shared by the store and River)
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`

	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// DSN returns the PostgreSQL connection string.
// Priority: DATABASE_URL > constructed from individual fields.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, sslmode,
	)
}

// IsSQLite reports whether the SQLite backend is selected.
func (c DatabaseConfig) IsSQLite() bool {
	return strings.EqualFold(c.Driver, DriverSQLite)
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json or console
}

// RiverConfig contains River Queue settings. River only runs on the
// PostgreSQL backend.
type RiverConfig struct {
	MaxWorkers                  int           `mapstructure:"max_workers"`
	CompletedJobRetentionPeriod time.Duration `mapstructure:"completed_job_retention_period"`
}

// SecurityConfig contains token verification settings. Tokens are issued by
// the platform's auth service; this service only verifies them.
type SecurityConfig struct {
	JWTSigningKey string `mapstructure:"jwt_signing_key"`
	JWTIssuer     string `mapstructure:"jwt_issuer"`
}

// WorkerConfig contains worker pool settings.
type WorkerConfig struct {
	GeneralPoolSize  int `mapstructure:"general_pool_size"`
	DeliveryPoolSize int `mapstructure:"delivery_pool_size"`
}

// NotificationConfig contains delivery and retention settings.
type NotificationConfig struct {
	RetentionDays int           `mapstructure:"retention_days"`
	SendTimeout   time.Duration `mapstructure:"send_timeout"`
	RecentLimit   int           `mapstructure:"recent_limit"`

	// CleanupInterval drives the in-process cleanup loop used when River is
	// unavailable (SQLite backend).
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// ProvidersConfig selects and configures channel senders.
type ProvidersConfig struct {
	EmailDriver    string `mapstructure:"email_driver"`
	SMSDriver      string `mapstructure:"sms_driver"`
	WhatsAppDriver string `mapstructure:"whatsapp_driver"`

	Resend ResendConfig `mapstructure:"resend"`
	SMTP   SMTPConfig   `mapstructure:"smtp"`
	Twilio TwilioConfig `mapstructure:"twilio"`
}

// ResendConfig configures the Resend email API.
type ResendConfig struct {
	APIKey string `mapstructure:"api_key"`
	From   string `mapstructure:"from"`
}

// SMTPConfig configures the SMTP relay.
type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

// TwilioConfig configures the Twilio messaging API.
type TwilioConfig struct {
	AccountSID   string `mapstructure:"account_sid"`
	AuthToken    string `mapstructure:"auth_token"`
	FromNumber   string `mapstructure:"from_number"`
	WhatsAppFrom string `mapstructure:"whatsapp_from"`
	BaseURL      string `mapstructure:"base_url"`
}

// RedisConfig configures the optional cross-instance live push bridge.
// An empty Addr disables the bridge.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Channel  string `mapstructure:"channel"`
}

var (
	bootstrapLoggerOnce sync.Once
	bootstrapLogger     *zap.Logger
)

// Load reads configuration from file and environment variables.
// Environment variables carry no prefix: database.max_conns maps to DATABASE_MAX_CONNS.
func Load() (*Config, error) {
	// A missing .env is the normal case in containers.
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/smartspray-notifier")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Comma lists from the environment arrive untrimmed.
	cfg.Server.AllowedOrigins = splitList(strings.Join(cfg.Server.AllowedOrigins, ","))

	if err := cfg.ensureSecrets(); err != nil {
		return nil, fmt.Errorf("ensure secrets: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// Validate checks for critical configuration errors.
func (c *Config) Validate() error {
	if len(c.Security.JWTSigningKey) < 32 {
		return fmt.Errorf("security.jwt_signing_key must be at least 32 characters")
	}
	switch strings.ToLower(c.Database.Driver) {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("database.driver %q is not supported", c.Database.Driver)
	}
	if c.Notification.RetentionDays <= 0 {
		return fmt.Errorf("notification.retention_days must be positive")
	}
	if c.Notification.SendTimeout <= 0 {
		return fmt.Errorf("notification.send_timeout must be positive")
	}
	switch c.Providers.EmailDriver {
	case EmailDriverResend, EmailDriverSMTP, EmailDriverLog:
	default:
		return fmt.Errorf("providers.email_driver %q is not supported", c.Providers.EmailDriver)
	}
	for key, driver := range map[string]string{
		"providers.sms_driver":      c.Providers.SMSDriver,
		"providers.whatsapp_driver": c.Providers.WhatsAppDriver,
	} {
		if driver != MessagingDriverTwilio && driver != MessagingDriverLog {
			return fmt.Errorf("%s %q is not supported", key, driver)
		}
	}
	return nil
}

// ensureSecrets auto-generates a JWT signing key on first boot if missing.
// Tokens signed with a generated key do not survive a restart.
func (c *Config) ensureSecrets() error {
	if c.Security.JWTSigningKey == "" {
		key, err := generateSecureRandomHex(32)
		if err != nil {
			return fmt.Errorf("auto-generate jwt signing key: %w", err)
		}
		c.Security.JWTSigningKey = key
		logBootstrapWarn(
			"auto-generated jwt_signing_key; set SECURITY_JWT_SIGNING_KEY for persistence",
			zap.Int("length", len(key)),
		)
	}
	return nil
}

func logBootstrapWarn(msg string, fields ...zap.Field) {
	bootstrapLoggerOnce.Do(func() {
		cfg := zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)

		l, err := cfg.Build()
		if err != nil {
			bootstrapLogger = zap.NewNop()
			return
		}
		bootstrapLogger = l
	})

	bootstrapLogger.Warn(msg, fields...)
}

// generateSecureRandomHex produces a hex-encoded string of n random bytes.
func generateSecureRandomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto/rand: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func setDefaults(v *viper.Viper) {
	// Server
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.allow_credentials", true)

	// Database
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.sqlite_path", "smartspray.db")
	v.SetDefault("database.url", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "smartspray")
	v.SetDefault("database.password", "")
	v.SetDefault("database.database", "smartspray")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "10m")
	v.SetDefault("database.auto_migrate", false)

	// Log
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// River
	v.SetDefault("river.max_workers", 10)
	v.SetDefault("river.completed_job_retention_period", "24h")

	// Security
	v.SetDefault("security.jwt_signing_key", "")
	v.SetDefault("security.jwt_issuer", "smartspray")

	// Worker Pool
	v.SetDefault("worker.general_pool_size", 50)
	v.SetDefault("worker.delivery_pool_size", 100)

	// Notification
	v.SetDefault("notification.retention_days", 30)
	v.SetDefault("notification.send_timeout", "10s")
	v.SetDefault("notification.recent_limit", 5)
	v.SetDefault("notification.cleanup_interval", "24h")

	// Providers
	v.SetDefault("providers.email_driver", EmailDriverLog)
	v.SetDefault("providers.sms_driver", MessagingDriverLog)
	v.SetDefault("providers.whatsapp_driver", MessagingDriverLog)
	v.SetDefault("providers.resend.api_key", "")
	v.SetDefault("providers.resend.from", "SmartSpray <alerts@smartspray.io>")
	v.SetDefault("providers.smtp.host", "")
	v.SetDefault("providers.smtp.port", 587)
	v.SetDefault("providers.smtp.username", "")
	v.SetDefault("providers.smtp.password", "")
	v.SetDefault("providers.smtp.from", "alerts@smartspray.io")
	v.SetDefault("providers.twilio.account_sid", "")
	v.SetDefault("providers.twilio.auth_token", "")
	v.SetDefault("providers.twilio.from_number", "")
	v.SetDefault("providers.twilio.whatsapp_from", "")
	v.SetDefault("providers.twilio.base_url", "https://api.twilio.com")

	// Redis live push bridge (disabled when addr is empty)
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.channel", "smartspray:notifications:live")
}
