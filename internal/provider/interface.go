package provider

import (
	"context"
	"fmt"

	"mailer/pkg/models"
)

// Mailer delivers a single message through one outbound channel.
type Mailer interface {
	Send(ctx context.Context, msg *models.Message) (*Receipt, error)
}

// Receipt is what a provider hands back for an accepted message.
type Receipt struct {
	ID       string              `json:"id"`
	Provider models.ProviderType `json:"provider"`
	Response string              `json:"response,omitempty"`
}

// DeliveryError is returned when a provider rejects or fails to accept a
// message. StatusCode is set for HTTP providers only.
type DeliveryError struct {
	Provider   models.ProviderType
	StatusCode int
	Message    string
	Err        error
}

func (e *DeliveryError) Error() string {
	msg := fmt.Sprintf("%s delivery failed", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status: %d)", e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DeliveryError) Unwrap() error {
	return e.Err
}
