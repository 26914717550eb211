package delivery

import (
	"context"
	"time"

	"mailer/pkg/models"
)

// DefaultPerPage is the page size used when none is given.
const DefaultPerPage = 25

// MessagePage is one page of messages, newest first. Pages are numbered
// from zero.
type MessagePage struct {
	Messages    []*models.Message `json:"emails"`
	PerPage     int               `json:"perPage"`
	CurrentPage int               `json:"currentPage"`
	LastPage    int               `json:"lastPage"`
}

func (m *Manager) ListMessages(ctx context.Context, page, perPage int) (*MessagePage, error) {
	if perPage <= 0 {
		perPage = DefaultPerPage
	}
	if page < 0 {
		page = 0
	}

	messages, total, err := m.store.ListMessages(ctx, page*perPage, perPage)
	if err != nil {
		return nil, err
	}

	lastPage := 0
	if total > 0 {
		lastPage = int((total+int64(perPage)-1)/int64(perPage)) - 1
	}
	if messages == nil {
		messages = []*models.Message{}
	}
	return &MessagePage{
		Messages:    messages,
		PerPage:     perPage,
		CurrentPage: page,
		LastPage:    lastPage,
	}, nil
}

func (m *Manager) GetMessage(ctx context.Context, id int64) (*models.Message, error) {
	return m.store.GetMessage(ctx, id)
}

// ProviderStats counts messages per provider, optionally within [start, end).
func (m *Manager) ProviderStats(ctx context.Context, start, end *time.Time) ([]models.ProviderStats, error) {
	return m.store.ProviderStats(ctx, start, end)
}

// Ping checks the store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}
