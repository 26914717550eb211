package provider

import (
	"mailer/internal/config"
	"mailer/pkg/models"
)

// Placeholder values the environment falls back to when a credential is not
// set. Legacy kinds still carrying one are not converted.
const (
	placeholderSMTPServer = "notset"
	placeholderAPIKey     = "notakey"
)

// ConvertLegacy turns the single-transport environment settings into provider
// rows: one per kind with real credentials, plus a mock provider. The kind
// named by MAIL_TRANSPORT becomes the default when it was converted, the
// mock provider otherwise.
func ConvertLegacy(cfg config.LegacyConfig) []*models.Provider {
	var out []*models.Provider

	if cfg.SMTPServer != "" && cfg.SMTPServer != placeholderSMTPServer {
		out = append(out, &models.Provider{
			Name:   "SMTP",
			Type:   models.ProviderSMTP,
			Active: true,
			SMTP: &models.SMTPSettings{
				Host:   cfg.SMTPServer,
				Port:   cfg.SMTPPort,
				User:   cfg.SMTPUser,
				Pass:   cfg.SMTPPass,
				Secure: cfg.SMTPSecure,
			},
		})
	}
	if cfg.MailgunAPIKey != "" && cfg.MailgunAPIKey != placeholderAPIKey {
		out = append(out, &models.Provider{
			Name:   "Mailgun",
			Type:   models.ProviderMailgun,
			Active: true,
			Mailgun: &models.MailgunSettings{
				APIKey: cfg.MailgunAPIKey,
				Host:   cfg.MailgunHost,
				Domain: cfg.MailgunDomain,
			},
		})
	}
	if cfg.SendInBlueAPIKey != "" && cfg.SendInBlueAPIKey != placeholderAPIKey {
		out = append(out, &models.Provider{
			Name:   "SendInBlue",
			Type:   models.ProviderSendInBlue,
			Active: true,
			SendInBlue: &models.SendInBlueSettings{
				APIKey: cfg.SendInBlueAPIKey,
				APIURL: cfg.SendInBlueURL,
			},
		})
	}

	mock := &models.Provider{Name: "Mock", Type: models.ProviderMock, Active: true}
	out = append(out, mock)

	for _, p := range out {
		if string(p.Type) == cfg.Transport {
			p.Default = true
			return out
		}
	}
	mock.Default = true
	return out
}
