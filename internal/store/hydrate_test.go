package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mailer/internal/rowjoin"
	"mailer/pkg/models"
)

func TestSplitRow(t *testing.T) {
	row := splitRow(map[string]any{
		"t.id":          int64(1),
		"t.name":        []byte("primary"),
		"smtp.id":       nil,
		"smtp.host":     nil,
		"no_alias_here": "dropped",
	})

	require.Len(t, row, 2)
	assert.Equal(t, rowjoin.Fragment{"id": int64(1), "name": "primary"}, row["t"])
	assert.Equal(t, rowjoin.Fragment{"id": nil, "host": nil}, row["smtp"])
}

func TestHydrateProviders(t *testing.T) {
	// values as the text protocol returns them: everything is bytes
	rows := []rowjoin.Row{
		splitRow(map[string]any{
			"t.id": []byte("1"), "t.name": []byte("relay"), "t.type": []byte("smtp"), "t.active": []byte("1"),
			"t.weight": []byte("2"), "t.is_default": []byte("0"), "t.domain": []byte("mail.example.com"),
			"smtp.id": []byte("7"), "smtp.provider_id": []byte("1"), "smtp.host": []byte("smtp.example.com"),
			"smtp.port": []byte("465"), "smtp.user": []byte("u"), "smtp.pass": []byte("p"), "smtp.secure": []byte("1"),
			"mg.id": nil, "mg.provider_id": nil, "mg.api_key": nil, "mg.host": nil, "mg.domain": nil,
			"sib.id": nil, "sib.provider_id": nil, "sib.api_key": nil, "sib.api_url": nil,
		}),
		splitRow(map[string]any{
			"t.id": int64(2), "t.name": "mailgun", "t.type": "mailgun", "t.active": int64(1),
			"t.weight": int64(0), "t.is_default": int64(1), "t.domain": "",
			"smtp.id": nil, "smtp.provider_id": nil, "smtp.host": nil, "smtp.port": nil, "smtp.user": nil, "smtp.pass": nil, "smtp.secure": nil,
			"mg.id": int64(3), "mg.provider_id": int64(2), "mg.api_key": "key", "mg.host": "api.mailgun.net", "mg.domain": "mg.example.com",
			"sib.id": nil, "sib.provider_id": nil, "sib.api_key": nil, "sib.api_url": nil,
		}),
		splitRow(map[string]any{
			"t.id": int64(3), "t.name": "mock", "t.type": "mock", "t.active": int64(0),
			"t.weight": int64(0), "t.is_default": int64(0), "t.domain": "",
			"smtp.id": nil, "smtp.provider_id": nil,
			"mg.id": nil, "mg.provider_id": nil,
			"sib.id": nil, "sib.provider_id": nil,
		}),
	}

	providers, err := hydrateProviders(rows)
	require.NoError(t, err)
	require.Len(t, providers, 3)

	smtp := providers[0]
	assert.Equal(t, int64(1), smtp.ID)
	assert.Equal(t, models.ProviderSMTP, smtp.Type)
	assert.True(t, smtp.Active)
	assert.False(t, smtp.Default)
	assert.Equal(t, 2, smtp.Weight)
	require.NotNil(t, smtp.SMTP)
	assert.Equal(t, models.SMTPSettings{ID: 7, ProviderID: 1, Host: "smtp.example.com", Port: 465, User: "u", Pass: "p", Secure: true}, *smtp.SMTP)
	assert.Nil(t, smtp.Mailgun)
	assert.Nil(t, smtp.SendInBlue)

	mg := providers[1]
	assert.True(t, mg.Default)
	require.NotNil(t, mg.Mailgun)
	assert.Equal(t, "key", mg.Mailgun.APIKey)
	assert.Equal(t, "mg.example.com", mg.Mailgun.Domain)
	assert.Nil(t, mg.SMTP)

	mock := providers[2]
	assert.False(t, mock.Active)
	assert.Nil(t, mock.SMTP)
	assert.Nil(t, mock.Mailgun)
	assert.Nil(t, mock.SendInBlue)
}

func TestHydrateProvidersEmpty(t *testing.T) {
	providers, err := hydrateProviders(nil)
	require.NoError(t, err)
	assert.Empty(t, providers)
}
