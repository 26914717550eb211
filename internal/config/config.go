package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
)

type Config struct {
	Server ServerConfig
	MySQL  MySQLConfig
	Mail   MailConfig
	Legacy LegacyConfig
	Queue  QueueConfig
	Redis  RedisConfig
	SMTP   SMTPConfig
	Log    LogConfig
}

type ServerConfig struct {
	Port int
}

type MySQLConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	// Seed creates the schema on startup when tables are missing.
	Seed bool
}

// GetDSN returns the MySQL Data Source Name for database connections.
// clientFoundRows makes UPDATE report matched rather than changed rows.
func (m *MySQLConfig) GetDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci&clientFoundRows=true",
		m.User, m.Password, m.Host, m.Port, m.Database)
}

// MailConfig holds the values substituted into incoming content.
type MailConfig struct {
	DefaultFrom     string
	DefaultLanguage string
	MaxRetries      int
}

// LegacyConfig is the single-provider configuration that is converted into
// provider rows the first time the router finds none.
type LegacyConfig struct {
	Transport string

	SMTPServer string
	SMTPPort   int
	SMTPUser   string
	SMTPPass   string
	SMTPSecure bool

	MailgunAPIKey string
	MailgunDomain string
	MailgunHost   string

	SendInBlueAPIKey string
	SendInBlueURL    string
}

type QueueConfig struct {
	ProcessInterval time.Duration
	BackoffUnit     time.Duration
	// DispatchTimeout bounds a single provider call. Zero disables it.
	DispatchTimeout time.Duration
	LockTTL         time.Duration
}

// RedisConfig enables the cross-process queue lock when Addr is set.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// SMTPConfig configures the inbound SMTP listener that queues received mail.
type SMTPConfig struct {
	Enabled      bool
	Host         string
	Port         int
	Domain       string
	MaxSize      int64
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type LogConfig struct {
	Level       string
	Development bool
	File        string
}

// Load reads the configuration from the environment, after loading a .env
// file when one is present.
func Load() (*Config, error) {
	godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()
	setDefaults(v)

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetInt("port"),
		},
		MySQL: MySQLConfig{
			Host:     v.GetString("db_host"),
			Port:     v.GetInt("db_port"),
			User:     v.GetString("db_user"),
			Password: v.GetString("db_pass"),
			Database: v.GetString("db_name"),
			Seed:     v.GetBool("seed_db"),
		},
		Mail: MailConfig{
			DefaultFrom:     v.GetString("default_from"),
			DefaultLanguage: v.GetString("default_language"),
			MaxRetries:      v.GetInt("max_retries"),
		},
		Legacy: LegacyConfig{
			Transport:        strings.ToLower(v.GetString("mail_transport")),
			SMTPServer:       v.GetString("smtp_server"),
			SMTPPort:         v.GetInt("smtp_port"),
			SMTPUser:         v.GetString("smtp_user"),
			SMTPPass:         v.GetString("smtp_pass"),
			SMTPSecure:       parseSecure(v.GetString("smtp_secure")),
			MailgunAPIKey:    v.GetString("mailgun_api_key"),
			MailgunDomain:    v.GetString("mailgun_domain"),
			MailgunHost:      v.GetString("mailgun_host"),
			SendInBlueAPIKey: v.GetString("sendinblue_api_key"),
			SendInBlueURL:    v.GetString("sendinblue_url"),
		},
		Queue: QueueConfig{
			ProcessInterval: v.GetDuration("queue_process_interval"),
			BackoffUnit:     v.GetDuration("queue_backoff_unit"),
			DispatchTimeout: v.GetDuration("queue_dispatch_timeout"),
			LockTTL:         v.GetDuration("queue_lock_ttl"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis_addr"),
			Password: v.GetString("redis_password"),
			DB:       v.GetInt("redis_db"),
		},
		SMTP: SMTPConfig{
			Enabled:      v.GetBool("intake_smtp_enabled"),
			Host:         v.GetString("intake_smtp_host"),
			Port:         v.GetInt("intake_smtp_port"),
			Domain:       v.GetString("intake_smtp_domain"),
			MaxSize:      v.GetInt64("intake_smtp_max_size"),
			ReadTimeout:  v.GetDuration("intake_smtp_read_timeout"),
			WriteTimeout: v.GetDuration("intake_smtp_write_timeout"),
		},
		Log: LogConfig{
			Level:       v.GetString("log_level"),
			Development: v.GetBool("log_development"),
			File:        v.GetString("log_file"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", 3010)

	v.SetDefault("db_host", "localhost")
	v.SetDefault("db_port", 3306)
	v.SetDefault("db_user", "root")
	v.SetDefault("db_pass", "")
	v.SetDefault("db_name", "mailer")
	v.SetDefault("seed_db", false)

	v.SetDefault("default_from", "noreply@example.com")
	v.SetDefault("default_language", "en")
	v.SetDefault("max_retries", 10)

	v.SetDefault("mail_transport", "smtp")
	v.SetDefault("smtp_server", "notset")
	v.SetDefault("smtp_port", 465)
	v.SetDefault("smtp_user", "user")
	v.SetDefault("smtp_pass", "pass")
	v.SetDefault("smtp_secure", "true")
	v.SetDefault("mailgun_api_key", "notakey")
	v.SetDefault("mailgun_domain", "mg.example.com")
	v.SetDefault("mailgun_host", "api.mailgun.net")
	v.SetDefault("sendinblue_api_key", "notakey")
	v.SetDefault("sendinblue_url", "https://api.sendinblue.com/v3")

	v.SetDefault("queue_process_interval", "1m")
	v.SetDefault("queue_backoff_unit", "5m")
	v.SetDefault("queue_dispatch_timeout", "0s")
	v.SetDefault("queue_lock_ttl", "5m")

	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("intake_smtp_enabled", false)
	v.SetDefault("intake_smtp_host", "0.0.0.0")
	v.SetDefault("intake_smtp_port", 2525)
	v.SetDefault("intake_smtp_domain", "localhost")
	v.SetDefault("intake_smtp_max_size", 10*1024*1024)
	v.SetDefault("intake_smtp_read_timeout", "10s")
	v.SetDefault("intake_smtp_write_timeout", "10s")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_development", false)
	v.SetDefault("log_file", "")
}

// parseSecure treats "1" and "true" as enabled, anything else as disabled.
func parseSecure(value string) bool {
	value = strings.ToLower(strings.TrimSpace(value))
	return value == "1" || value == "true"
}

// Validate rejects values the service cannot run with.
func (c *Config) Validate() error {
	var err error
	if c.Server.Port <= 0 {
		err = multierr.Append(err, errors.New("PORT must be positive"))
	}
	if c.MySQL.Port <= 0 {
		err = multierr.Append(err, errors.New("DB_PORT must be positive"))
	}
	if c.Mail.MaxRetries <= 0 {
		err = multierr.Append(err, errors.New("MAX_RETRIES must be positive"))
	}
	if c.Queue.ProcessInterval <= 0 {
		err = multierr.Append(err, errors.New("QUEUE_PROCESS_INTERVAL must be positive"))
	}
	if c.Queue.BackoffUnit <= 0 {
		err = multierr.Append(err, errors.New("QUEUE_BACKOFF_UNIT must be positive"))
	}
	if c.Queue.DispatchTimeout < 0 {
		err = multierr.Append(err, errors.New("QUEUE_DISPATCH_TIMEOUT must not be negative"))
	}
	if c.Redis.Addr != "" && c.Queue.LockTTL <= 0 {
		err = multierr.Append(err, errors.New("QUEUE_LOCK_TTL must be positive when REDIS_ADDR is set"))
	}
	if c.SMTP.Enabled && c.SMTP.Port <= 0 {
		err = multierr.Append(err, errors.New("INTAKE_SMTP_PORT must be positive"))
	}
	if _, lerr := zapcore.ParseLevel(c.Log.Level); lerr != nil {
		err = multierr.Append(err, fmt.Errorf("LOG_LEVEL: %w", lerr))
	}
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return nil
}
