package delivery

import (
	"context"

	"go.uber.org/zap"

	"mailer/internal/mailerr"
	"mailer/internal/variables"
	"mailer/pkg/models"
)

// SendMailFromTemplate fills content from the named template and sends it
// now, or queues it when immediately is false.
func (m *Manager) SendMailFromTemplate(ctx context.Context, c models.Content, immediately bool) (*SendResult, error) {
	if c.Template == "" {
		return nil, mailerr.New(mailerr.KindValidation, "'template' is missing")
	}
	if err := m.applyTemplate(ctx, &c); err != nil {
		return nil, err
	}

	if immediately {
		return m.SendMail(ctx, c)
	}
	msg, err := m.QueueMail(ctx, c)
	if err != nil {
		return nil, err
	}
	return &SendResult{Queued: true, Message: msg}, nil
}

func (m *Manager) applyTemplate(ctx context.Context, c *models.Content) error {
	if c.Language == "" {
		c.Language = m.defaults.Language
	}

	t, err := m.store.Template(ctx, c.Template, c.Language)
	if err != nil {
		return err
	}
	c.Subject = t.Subject
	c.Text = t.Text
	c.HTML = t.HTML

	if unresolved := variables.ReplaceVariables(c, c.Params); len(unresolved) > 0 {
		m.logger.Debug("template placeholders left unresolved",
			zap.String("template", c.Template),
			zap.String("language", c.Language),
			zap.Strings("placeholders", unresolved))
	}
	return nil
}

func (m *Manager) ListTemplates(ctx context.Context) ([]*models.Template, error) {
	return m.store.Templates(ctx)
}

// SaveTemplate stores a new template. Language falls back to the default;
// an existing (name, language) pair is a conflict.
func (m *Manager) SaveTemplate(ctx context.Context, t *models.Template) (*models.Template, error) {
	t.ID = 0
	if t.Language == "" {
		t.Language = m.defaults.Language
	}
	if err := t.Validate(); err != nil {
		return nil, mailerr.Validation("template invalid", err)
	}

	if _, err := m.store.Template(ctx, t.Name, t.Language); err == nil {
		return nil, mailerr.New(mailerr.KindConflict, "template '%s' with language '%s' already exists", t.Name, t.Language)
	} else if !mailerr.Is(err, mailerr.KindNotFound) {
		return nil, err
	}

	if err := m.store.InsertTemplate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTemplate merges patch into the stored template.
func (m *Manager) UpdateTemplate(ctx context.Context, name, language string, patch models.TemplatePatch) (*models.Template, error) {
	if name == "" {
		return nil, mailerr.New(mailerr.KindValidation, "missing template name")
	}
	if language == "" {
		language = m.defaults.Language
	}

	t, err := m.store.Template(ctx, name, language)
	if err != nil {
		return nil, err
	}
	t.Apply(patch)
	if err := t.Validate(); err != nil {
		return nil, mailerr.Validation("template invalid", err)
	}
	if err := m.store.UpdateTemplate(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (m *Manager) RemoveTemplate(ctx context.Context, name, language string) error {
	if language == "" {
		language = m.defaults.Language
	}
	return m.store.DeleteTemplate(ctx, name, language)
}
