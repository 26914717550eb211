package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"mailer/internal/mailerr"
	"mailer/internal/rowjoin"
	"mailer/pkg/models"
)

// providerJoin lists, per alias, the columns selected by the provider join.
var providerJoin = []struct {
	alias   string
	columns []string
}{
	{"t", []string{"id", "name", "type", "active", "weight", "is_default", "domain"}},
	{"smtp", []string{"id", "provider_id", "host", "port", "user", "pass", "secure"}},
	{"mg", []string{"id", "provider_id", "api_key", "host", "domain"}},
	{"sib", []string{"id", "provider_id", "api_key", "api_url"}},
}

var providerQuery = buildProviderQuery()

func buildProviderQuery() string {
	var columns []string
	for _, table := range providerJoin {
		for _, column := range table.columns {
			columns = append(columns, fmt.Sprintf("%s.`%s` AS `%s.%s`", table.alias, column, table.alias, column))
		}
	}
	return "SELECT " + strings.Join(columns, ", ") + " FROM `provider` t" +
		" LEFT JOIN `smtp_settings` smtp ON smtp.`provider_id` = t.`id`" +
		" LEFT JOIN `mailgun_settings` mg ON mg.`provider_id` = t.`id`" +
		" LEFT JOIN `sendinblue_settings` sib ON sib.`provider_id` = t.`id`"
}

func (s *MySQLStore) queryProviders(ctx context.Context, where string, args ...any) ([]*models.Provider, error) {
	rows, err := s.db.QueryxContext(ctx, providerQuery+where+" ORDER BY t.`id`", args...)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to load providers")
	}
	defer rows.Close()

	var joined []rowjoin.Row
	for rows.Next() {
		flat := make(map[string]any)
		if err := rows.MapScan(flat); err != nil {
			return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to scan provider row")
		}
		joined = append(joined, splitRow(flat))
	}
	if err := rows.Err(); err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to read provider rows")
	}

	providers, err := hydrateProviders(joined)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to hydrate providers")
	}
	return providers, nil
}

func (s *MySQLStore) Providers(ctx context.Context, activeOnly bool) ([]*models.Provider, error) {
	if activeOnly {
		return s.queryProviders(ctx, " WHERE t.`active` = 1")
	}
	return s.queryProviders(ctx, "")
}

func (s *MySQLStore) Provider(ctx context.Context, id int64) (*models.Provider, error) {
	providers, err := s.queryProviders(ctx, " WHERE t.`id` = ?", id)
	if err != nil {
		return nil, err
	}
	if len(providers) == 0 {
		return nil, mailerr.NotFound("transport %d not found", id)
	}
	return providers[0], nil
}

func (s *MySQLStore) CountProviders(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM `provider`"); err != nil {
		return 0, mailerr.Wrap(mailerr.KindInternal, err, "failed to count providers")
	}
	return n, nil
}

func (s *MySQLStore) InsertProvider(ctx context.Context, p *models.Provider) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"INSERT INTO `provider` (`name`, `type`, `active`, `weight`, `is_default`, `domain`) VALUES (?, ?, ?, ?, ?, ?)",
			p.Name, string(p.Type), p.Active, p.Weight, p.Default, p.Domain)
		if err != nil {
			return err
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		p.ID = id
		return insertSettings(ctx, tx, p)
	})
}

func (s *MySQLStore) UpdateProvider(ctx context.Context, p *models.Provider) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx,
			"UPDATE `provider` SET `name` = ?, `active` = ?, `weight` = ?, `is_default` = ?, `domain` = ? WHERE `id` = ?",
			p.Name, p.Active, p.Weight, p.Default, p.Domain, p.ID)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return mailerr.NotFound("transport %d not found", p.ID)
		}
		if table := settingsTable(p.Type); table != "" {
			if _, err := tx.ExecContext(ctx, "DELETE FROM `"+table+"` WHERE `provider_id` = ?", p.ID); err != nil {
				return err
			}
		}
		return insertSettings(ctx, tx, p)
	})
}

func (s *MySQLStore) DeleteProvider(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM `provider` WHERE `id` = ?", id)
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to delete transport %d", id)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mailerr.NotFound("transport %d not found", id)
	}
	return nil
}

func (s *MySQLStore) ProviderStats(ctx context.Context, start, end *time.Time) ([]models.ProviderStats, error) {
	var (
		window strings.Builder
		args   []any
	)
	if start != nil {
		window.WriteString(" AND m.`created` >= ?")
		args = append(args, start.UTC())
	}
	if end != nil {
		window.WriteString(" AND m.`created` < ?")
		args = append(args, end.UTC())
	}

	query := "SELECT t.`id` AS `transport_id`, t.`name` AS `name`," +
		" COALESCE(SUM(m.`status` = 'sent'), 0) AS `sent`," +
		" COALESCE(SUM(m.`status` = 'failed'), 0) AS `failed`," +
		" COALESCE(SUM(m.`status` = 'pending'), 0) AS `pending`" +
		" FROM `provider` t LEFT JOIN `message` m ON m.`transport_id` = t.`id`" + window.String() +
		" GROUP BY t.`id`, t.`name` ORDER BY t.`id`"

	stats := []models.ProviderStats{}
	if err := s.db.SelectContext(ctx, &stats, query, args...); err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to compute transport stats")
	}
	return stats, nil
}

func settingsTable(t models.ProviderType) string {
	switch t {
	case models.ProviderSMTP:
		return "smtp_settings"
	case models.ProviderMailgun:
		return "mailgun_settings"
	case models.ProviderSendInBlue:
		return "sendinblue_settings"
	}
	return ""
}

func insertSettings(ctx context.Context, tx *sqlx.Tx, p *models.Provider) error {
	var (
		query string
		args  []any
		setID func(id int64)
	)
	switch {
	case p.Type == models.ProviderSMTP && p.SMTP != nil:
		query = "INSERT INTO `smtp_settings` (`provider_id`, `host`, `port`, `user`, `pass`, `secure`) VALUES (?, ?, ?, ?, ?, ?)"
		args = []any{p.ID, p.SMTP.Host, p.SMTP.Port, p.SMTP.User, p.SMTP.Pass, p.SMTP.Secure}
		setID = func(id int64) { p.SMTP.ID, p.SMTP.ProviderID = id, p.ID }
	case p.Type == models.ProviderMailgun && p.Mailgun != nil:
		query = "INSERT INTO `mailgun_settings` (`provider_id`, `api_key`, `host`, `domain`) VALUES (?, ?, ?, ?)"
		args = []any{p.ID, p.Mailgun.APIKey, p.Mailgun.Host, p.Mailgun.Domain}
		setID = func(id int64) { p.Mailgun.ID, p.Mailgun.ProviderID = id, p.ID }
	case p.Type == models.ProviderSendInBlue && p.SendInBlue != nil:
		query = "INSERT INTO `sendinblue_settings` (`provider_id`, `api_key`, `api_url`) VALUES (?, ?, ?)"
		args = []any{p.ID, p.SendInBlue.APIKey, p.SendInBlue.APIURL}
		setID = func(id int64) { p.SendInBlue.ID, p.SendInBlue.ProviderID = id, p.ID }
	default:
		return nil
	}

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	setID(id)
	return nil
}

func (s *MySQLStore) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to begin transaction")
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		var merr *mailerr.Error
		if errors.As(err, &merr) {
			return err
		}
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to save transport")
	}
	if err := tx.Commit(); err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to commit transaction")
	}
	return nil
}
