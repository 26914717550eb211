package provider

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"mailer/pkg/models"
)

// ErrMockFailure is returned by a failing mock mailer.
var ErrMockFailure = errors.New("Mock error thrown")

const mockResponse = "Mock Transport says Hi!"

// MockMailer accepts every message without sending anything, or rejects
// every message when Fail is set. Accepted messages are kept for inspection.
type MockMailer struct {
	Fail bool

	mu   sync.Mutex
	sent []models.Message
}

func (m *MockMailer) Send(ctx context.Context, msg *models.Message) (*Receipt, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	kind := models.ProviderMock
	if m.Fail {
		return nil, &DeliveryError{Provider: models.ProviderMockFail, Err: ErrMockFailure}
	}

	m.mu.Lock()
	m.sent = append(m.sent, *msg)
	m.mu.Unlock()

	return &Receipt{ID: uuid.NewString(), Provider: kind, Response: mockResponse}, nil
}

// Sent returns copies of the accepted messages.
func (m *MockMailer) Sent() []models.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.Message, len(m.sent))
	copy(out, m.sent)
	return out
}
