package store

import (
	"context"
	"database/sql"
	"errors"

	"mailer/internal/mailerr"
	"mailer/pkg/models"
)

const templateColumns = "`id`, `name`, `language`, `subject`, `text`, `html`"

func (s *MySQLStore) Templates(ctx context.Context) ([]*models.Template, error) {
	templates := []*models.Template{}
	if err := s.db.SelectContext(ctx, &templates, "SELECT "+templateColumns+" FROM `template` ORDER BY `name`, `language`"); err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to list templates")
	}
	return templates, nil
}

func (s *MySQLStore) Template(ctx context.Context, name, language string) (*models.Template, error) {
	var t models.Template
	err := s.db.GetContext(ctx, &t,
		"SELECT "+templateColumns+" FROM `template` WHERE `name` = ? AND `language` = ?", name, language)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, mailerr.NotFound("template '%s' with language '%s' not found", name, language)
	}
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "failed to load template %s/%s", name, language)
	}
	return &t, nil
}

func (s *MySQLStore) InsertTemplate(ctx context.Context, t *models.Template) error {
	res, err := s.db.NamedExecContext(ctx,
		"INSERT INTO `template` (`name`, `language`, `subject`, `text`, `html`) VALUES (:name, :language, :subject, :text, :html)", t)
	if isMySQLError(err, errDuplicateEntry) {
		return mailerr.New(mailerr.KindConflict, "template '%s' with language '%s' already exists", t.Name, t.Language)
	}
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to insert template")
	}
	id, err := res.LastInsertId()
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to read template id")
	}
	t.ID = id
	return nil
}

func (s *MySQLStore) UpdateTemplate(ctx context.Context, t *models.Template) error {
	_, err := s.db.NamedExecContext(ctx,
		"UPDATE `template` SET `subject` = :subject, `text` = :text, `html` = :html WHERE `name` = :name AND `language` = :language", t)
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to update template %s/%s", t.Name, t.Language)
	}
	return nil
}

func (s *MySQLStore) DeleteTemplate(ctx context.Context, name, language string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM `template` WHERE `name` = ? AND `language` = ?", name, language)
	if err != nil {
		return mailerr.Wrap(mailerr.KindInternal, err, "failed to delete template %s/%s", name, language)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return mailerr.NotFound("template '%s' with language '%s' not found", name, language)
	}
	return nil
}
