package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/multierr"
)

func smtpProvider() *Provider {
	return &Provider{
		Name:   "primary",
		Type:   ProviderSMTP,
		Active: true,
		Weight: 1,
		SMTP:   &SMTPSettings{Host: "smtp.example.com", Port: 465, User: "u", Pass: "p", Secure: true},
	}
}

func TestProviderValidate(t *testing.T) {
	tests := []struct {
		name       string
		provider   *Provider
		violations int
	}{
		{"smtp complete", smtpProvider(), 0},
		{"smtp missing settings", &Provider{Name: "x", Type: ProviderSMTP}, 1},
		{"smtp incomplete", &Provider{Name: "x", Type: ProviderSMTP, SMTP: &SMTPSettings{Host: "h"}}, 3},
		{"mailgun complete", &Provider{Name: "mg", Type: ProviderMailgun, Mailgun: &MailgunSettings{APIKey: "k", Host: "api.mailgun.net"}}, 0},
		{"mailgun missing key", &Provider{Name: "mg", Type: ProviderMailgun, Mailgun: &MailgunSettings{Host: "api.mailgun.net"}}, 1},
		{"sendinblue complete", &Provider{Name: "sib", Type: ProviderSendInBlue, SendInBlue: &SendInBlueSettings{APIKey: "k", APIURL: "https://api"}}, 0},
		{"sendinblue empty", &Provider{Name: "sib", Type: ProviderSendInBlue, SendInBlue: &SendInBlueSettings{}}, 2},
		{"mock", &Provider{Name: "m", Type: ProviderMock}, 0},
		{"mock-fail", &Provider{Name: "m", Type: ProviderMockFail}, 0},
		{"unknown type", &Provider{Name: "m", Type: "pigeon"}, 1},
		{"missing type and name", &Provider{}, 2},
		{"negative weight", &Provider{Name: "m", Type: ProviderMock, Weight: -1}, 1},
		{"bad domain", &Provider{Name: "m", Type: ProviderMock, Domain: "not a domain"}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.provider.Validate()
			assert.Len(t, multierr.Errors(err), tt.violations)
			assert.Equal(t, tt.violations == 0, tt.provider.IsValid())
		})
	}
}

func TestProviderApply(t *testing.T) {
	t.Run("AdministrativeFields", func(t *testing.T) {
		p := smtpProvider()
		name, active, weight, def, domain := "renamed", false, 5, true, "mail.example.com"
		p.Apply(ProviderPatch{Name: &name, Active: &active, Weight: &weight, Default: &def, Domain: &domain})

		assert.Equal(t, "renamed", p.Name)
		assert.False(t, p.Active)
		assert.Equal(t, 5, p.Weight)
		assert.True(t, p.Default)
		assert.Equal(t, "mail.example.com", p.Domain)
		assert.Equal(t, ProviderSMTP, p.Type)
	})

	t.Run("OnlyActiveTypeSettingsMerge", func(t *testing.T) {
		p := smtpProvider()
		p.Apply(ProviderPatch{
			SMTP:    &SMTPSettings{Pass: "rotated", Secure: false},
			Mailgun: &MailgunSettings{APIKey: "ignored", Host: "ignored"},
		})

		assert.Equal(t, "rotated", p.SMTP.Pass)
		assert.Equal(t, "smtp.example.com", p.SMTP.Host)
		assert.Equal(t, 465, p.SMTP.Port)
		assert.False(t, p.SMTP.Secure)
		assert.Nil(t, p.Mailgun)
	})

	t.Run("NilPatchKeepsEverything", func(t *testing.T) {
		p := smtpProvider()
		before := *p.SMTP
		p.Apply(ProviderPatch{})
		assert.Equal(t, before, *p.SMTP)
		assert.Equal(t, "primary", p.Name)
	})
}

func TestTemplate(t *testing.T) {
	tpl := &Template{Name: "t1", Language: "en", Subject: "Hi {{name}}", Text: "Dear {{name}}"}
	assert.NoError(t, tpl.Validate())
	assert.Len(t, multierr.Errors((&Template{}).Validate()), 4)

	html := "<p>Dear {{name}}</p>"
	tpl.Apply(TemplatePatch{HTML: &html})
	assert.Equal(t, html, tpl.HTML)
	assert.Equal(t, "Hi {{name}}", tpl.Subject)
}
