package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3010, cfg.Server.Port)
	assert.Equal(t, "mailer", cfg.MySQL.Database)
	assert.Equal(t, 10, cfg.Mail.MaxRetries)
	assert.Equal(t, "smtp", cfg.Legacy.Transport)
	assert.Equal(t, "notset", cfg.Legacy.SMTPServer)
	assert.Equal(t, 465, cfg.Legacy.SMTPPort)
	assert.True(t, cfg.Legacy.SMTPSecure)
	assert.Equal(t, "notakey", cfg.Legacy.MailgunAPIKey)
	assert.Equal(t, time.Minute, cfg.Queue.ProcessInterval)
	assert.Equal(t, 5*time.Minute, cfg.Queue.BackoffUnit)
	assert.Zero(t, cfg.Queue.DispatchTimeout)
	assert.False(t, cfg.SMTP.Enabled)
	assert.Empty(t, cfg.Redis.Addr)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PASS", "secret")
	t.Setenv("MAIL_TRANSPORT", "Mailgun")
	t.Setenv("SMTP_SECURE", "0")
	t.Setenv("MAILGUN_API_KEY", "key-123")
	t.Setenv("QUEUE_BACKOFF_UNIT", "30s")
	t.Setenv("QUEUE_DISPATCH_TIMEOUT", "20s")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "db.internal", cfg.MySQL.Host)
	assert.Equal(t, "mailgun", cfg.Legacy.Transport)
	assert.False(t, cfg.Legacy.SMTPSecure)
	assert.Equal(t, "key-123", cfg.Legacy.MailgunAPIKey)
	assert.Equal(t, 30*time.Second, cfg.Queue.BackoffUnit)
	assert.Equal(t, 20*time.Second, cfg.Queue.DispatchTimeout)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("QUEUE_PROCESS_INTERVAL", "0s")
	t.Setenv("MAX_RETRIES", "0")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUEUE_PROCESS_INTERVAL")
	assert.Contains(t, err.Error(), "MAX_RETRIES")
}

func TestGetDSN(t *testing.T) {
	m := MySQLConfig{Host: "localhost", Port: 3306, User: "root", Password: "pw", Database: "mailer"}
	assert.Equal(t,
		"root:pw@tcp(localhost:3306)/mailer?parseTime=true&loc=UTC&charset=utf8mb4&collation=utf8mb4_unicode_ci&clientFoundRows=true",
		m.GetDSN())
}

func TestParseSecure(t *testing.T) {
	for value, want := range map[string]bool{"1": true, "true": true, "TRUE": true, "0": false, "false": false, "yes": false} {
		assert.Equal(t, want, parseSecure(value), value)
	}
}
