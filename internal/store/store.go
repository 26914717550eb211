// Package store persists messages, provider configurations and templates.
// MySQLStore is the production implementation; MemoryStore backs tests and
// runs the service when no database is reachable.
package store

import (
	"context"
	"time"

	"mailer/pkg/models"
)

// MessageStore persists messages and their delivery state.
type MessageStore interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	// UpdateMessage writes every column of m, including nulls.
	UpdateMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id int64) (*models.Message, error)
	// DueMessages returns pending messages whose retryAfter is unset or not
	// after now, in id order.
	DueMessages(ctx context.Context, now time.Time) ([]*models.Message, error)
	// ListMessages returns a page of messages, newest first, and the total count.
	ListMessages(ctx context.Context, offset, limit int) ([]*models.Message, int64, error)
}

// ProviderStore persists provider configurations with their settings.
type ProviderStore interface {
	Providers(ctx context.Context, activeOnly bool) ([]*models.Provider, error)
	Provider(ctx context.Context, id int64) (*models.Provider, error)
	CountProviders(ctx context.Context) (int64, error)
	InsertProvider(ctx context.Context, p *models.Provider) error
	UpdateProvider(ctx context.Context, p *models.Provider) error
	DeleteProvider(ctx context.Context, id int64) error
	// ProviderStats counts messages per provider and status, optionally
	// restricted to messages created in [start, end).
	ProviderStats(ctx context.Context, start, end *time.Time) ([]models.ProviderStats, error)
}

// TemplateStore persists templates keyed by name and language.
type TemplateStore interface {
	Templates(ctx context.Context) ([]*models.Template, error)
	Template(ctx context.Context, name, language string) (*models.Template, error)
	InsertTemplate(ctx context.Context, t *models.Template) error
	UpdateTemplate(ctx context.Context, t *models.Template) error
	DeleteTemplate(ctx context.Context, name, language string) error
}

// Store is everything the delivery engine persists.
type Store interface {
	MessageStore
	ProviderStore
	TemplateStore
	Ping(ctx context.Context) error
	Close() error
}
