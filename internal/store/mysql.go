package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"mailer/internal/config"
	"mailer/internal/mailerr"
	"mailer/pkg/models"
)

const (
	errUnknownDatabase = 1049
	errDuplicateEntry  = 1062

	pingAttempts = 4
	pingInterval = 500 * time.Millisecond
)

type MySQLStore struct {
	db     *sqlx.DB
	logger *zap.Logger
}

var _ Store = (*MySQLStore)(nil)

func NewMySQLStore(db *sqlx.DB, logger *zap.Logger) *MySQLStore {
	return &MySQLStore{db: db, logger: logger}
}

// Open connects to MySQL, waiting briefly for the server to come up. With
// cfg.Seed set it creates the database and any missing table.
func Open(ctx context.Context, cfg config.MySQLConfig, logger *zap.Logger) (*MySQLStore, error) {
	db, err := connect(ctx, cfg.GetDSN(), logger)
	if err != nil && cfg.Seed && isMySQLError(err, errUnknownDatabase) {
		logger.Info("database missing, creating it", zap.String("database", cfg.Database))
		if err := createDatabase(ctx, cfg, logger); err != nil {
			return nil, err
		}
		db, err = connect(ctx, cfg.GetDSN(), logger)
	}
	if err != nil {
		return nil, fmt.Errorf("can't connect to database at %s as %s: %w", cfg.Host, cfg.User, err)
	}

	if cfg.Seed {
		if err := EnsureSchema(ctx, db); err != nil {
			db.Close()
			return nil, err
		}
	}

	return NewMySQLStore(db, logger), nil
}

func connect(ctx context.Context, dsn string, logger *zap.Logger) (*sqlx.DB, error) {
	db, err := sqlx.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	policy := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(pingInterval), pingAttempts),
		ctx,
	)
	attempt := 0
	err = backoff.RetryNotify(func() error {
		attempt++
		err := db.PingContext(ctx)
		var mysqlErr *mysql.MySQLError
		if errors.As(err, &mysqlErr) {
			// the server answered, waiting will not help
			return backoff.Permanent(err)
		}
		return err
	}, policy, func(err error, _ time.Duration) {
		logger.Info("waiting for database server", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func createDatabase(ctx context.Context, cfg config.MySQLConfig, logger *zap.Logger) error {
	server := cfg
	server.Database = ""
	db, err := connect(ctx, server.GetDSN(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	name := strings.ReplaceAll(cfg.Database, "`", "``")
	if _, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS `"+name+"` DEFAULT CHARACTER SET utf8mb4"); err != nil {
		return fmt.Errorf("failed to create database %s: %w", cfg.Database, err)
	}
	return nil
}

func isMySQLError(err error, number uint16) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == number
}

// DB exposes the connection pool for health checks.
func (s *MySQLStore) DB() *sql.DB {
	return s.db.DB
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *MySQLStore) Close() error {
	return s.db.Close()
}

const messageColumns = "`id`, `from`, `to`, `reply_to`, `subject`, `text`, `html`, `template`, `language`, " +
	"`status`, `attempt`, `max_retries`, `error`, `created`, `sent`, `retry_after`, `transport_id`"

const insertMessageQuery = "INSERT INTO `message` (`from`, `to`, `reply_to`, `subject`, `text`, `html`, `template`, `language`, " +
	"`status`, `attempt`, `max_retries`, `error`, `created`, `sent`, `retry_after`, `transport_id`) VALUES " +
	"(:from, :to, :reply_to, :subject, :text, :html, :template, :language, " +
	":status, :attempt, :max_retries, :error, :created, :sent, :retry_after, :transport_id)"

const updateMessageQuery = "UPDATE `message` SET `from` = :from, `to` = :to, `reply_to` = :reply_to, `subject` = :subject, " +
	"`text` = :text, `html` = :html, `template` = :template, `language` = :language, `status` = :status, " +
	"`attempt` = :attempt, `max_retries` = :max_retries, `error` = :error, `created` = :created, `sent` = :sent, " +
	"`retry_after` = :retry_after, `transport_id` = :transport_id WHERE `id` = :id"

func (s *MySQLStore) InsertMessage(ctx context.Context, m *models.Message) error {
	res, err := s.db.NamedExecContext(ctx, insertMessageQuery, m)
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to insert message")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to read message id")
	}
	m.ID = id
	return nil
}

func (s *MySQLStore) UpdateMessage(ctx context.Context, m *models.Message) error {
	if m.ID == 0 {
		return mailerr.New(mailerr.KindInternal, "can't update message without id")
	}
	if _, err := s.db.NamedExecContext(ctx, updateMessageQuery, m); err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to update message %d", m.ID)
	}
	return nil
}

func (s *MySQLStore) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	var m models.Message
	err := s.db.GetContext(ctx, &m, "SELECT "+messageColumns+" FROM `message` WHERE `id` = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mailerr.NotFound("message %d not found", id)
	}
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to load message %d", id)
	}
	return &m, nil
}

func (s *MySQLStore) DueMessages(ctx context.Context, now time.Time) ([]*models.Message, error) {
	var messages []*models.Message
	err := s.db.SelectContext(ctx, &messages,
		"SELECT "+messageColumns+" FROM `message` WHERE `status` = ? AND (`retry_after` IS NULL OR `retry_after` <= ?) ORDER BY `id`",
		string(models.StatusPending), now.UTC())
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to load due messages")
	}
	return messages, nil
}

func (s *MySQLStore) ListMessages(ctx context.Context, offset, limit int) ([]*models.Message, int64, error) {
	var total int64
	if err := s.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM `message`"); err != nil {
		return nil, 0, mailerr.Wrap(mailerr.KindInternal, err, "failed to count messages")
	}

	messages := []*models.Message{}
	err := s.db.SelectContext(ctx, &messages,
		"SELECT "+messageColumns+" FROM `message` ORDER BY `id` DESC LIMIT ? OFFSET ?", limit, offset)
	if err != nil {
		return nil, 0, mailerr.Wrap(mailerr.KindInternal, err, "failed to list messages")
	}
	return messages, total, nil
}
