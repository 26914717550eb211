package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailer/internal/mailerr"
	"mailer/pkg/models"
)

func TestTransportMailerIsCached(t *testing.T) {
	tr := NewTransport(mockProvider("mock", 1, true, false), Options{})

	first, err := tr.Mailer()
	require.NoError(t, err)
	second, err := tr.Mailer()
	require.NoError(t, err)
	assert.Same(t, first, second)

	other := NewTransport(mockProvider("mock", 1, true, false), Options{})
	third, err := other.Mailer()
	require.NoError(t, err)
	assert.NotSame(t, first, third)

	receipt, err := first.Send(context.Background(), testMessage())
	require.NoError(t, err)
	assert.Equal(t, mockResponse, receipt.Response)
	assert.Len(t, first.(*MockMailer).Sent(), 1)
}

func TestTransportMockFail(t *testing.T) {
	tr := NewTransport(&models.Provider{Name: "fail", Type: models.ProviderMockFail, Active: true}, Options{})
	m, err := tr.Mailer()
	require.NoError(t, err)

	_, err = m.Send(context.Background(), testMessage())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMockFailure))
	assert.Contains(t, err.Error(), "Mock error thrown")
}

func TestTransportMissingSettings(t *testing.T) {
	tests := []struct {
		name string
		typ  models.ProviderType
	}{
		{"smtp", models.ProviderSMTP},
		{"mailgun", models.ProviderMailgun},
		{"unknown", models.ProviderType("carrier-pigeon")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTransport(&models.Provider{Name: tt.name, Type: tt.typ}, Options{})
			_, err := tr.Mailer()
			assert.True(t, mailerr.Is(err, mailerr.KindConfiguration))
		})
	}

	t.Run("sendinblue", func(t *testing.T) {
		tr := NewTransport(&models.Provider{Name: "sib", Type: models.ProviderSendInBlue}, Options{})
		_, err := tr.SendInBlue()
		assert.True(t, mailerr.Is(err, mailerr.KindConfiguration))

		_, err = tr.Mailer()
		assert.True(t, mailerr.Is(err, mailerr.KindConfiguration))
	})
}

func TestTransportSendInBlueClient(t *testing.T) {
	tr := NewTransport(&models.Provider{
		Name: "sib",
		Type: models.ProviderSendInBlue,
		SendInBlue: &models.SendInBlueSettings{
			APIKey: "xkeysib-1",
			APIURL: "https://api.sendinblue.com/v3",
		},
	}, Options{})

	c1, err := tr.SendInBlue()
	require.NoError(t, err)
	c2, err := tr.SendInBlue()
	require.NoError(t, err)
	assert.Same(t, c1, c2)

	_, err = NewTransport(mockProvider("mock", 0, true, false), Options{}).SendInBlue()
	assert.Error(t, err)
}
