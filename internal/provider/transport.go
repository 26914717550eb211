package provider

import (
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"

	"mailer/internal/clock"
	"mailer/internal/mailerr"
	"mailer/pkg/models"
)

// Options carries what every sender needs besides its settings.
type Options struct {
	HTTPClient *http.Client
	Logger     *zap.Logger
	Clock      clock.Clock
	// LocalName is announced in EHLO.
	LocalName string
	// TLSConfig overrides the SMTP TLS configuration.
	TLSConfig *tls.Config
}

func (o Options) withDefaults() Options {
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Clock == nil {
		o.Clock = clock.System{}
	}
	if o.LocalName == "" {
		o.LocalName = "localhost"
	}
	return o
}

// Transport is a configured provider together with its sender, built on
// first use and cached for the lifetime of the Transport.
type Transport struct {
	*models.Provider

	opts Options

	mu         sync.Mutex
	mailer     Mailer
	sendInBlue *SendInBlueClient
}

func NewTransport(p *models.Provider, opts Options) *Transport {
	return &Transport{Provider: p, opts: opts.withDefaults()}
}

// Mailer returns the sender for smtp, mailgun and the mock types.
func (t *Transport) Mailer() (Mailer, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.mailer != nil {
		return t.mailer, nil
	}

	var (
		m   Mailer
		err error
	)
	switch t.Type {
	case models.ProviderSMTP:
		if t.SMTP == nil {
			return nil, mailerr.New(mailerr.KindConfiguration, "missing settings for SMTP")
		}
		m, err = NewSMTPMailer(*t.SMTP, t.opts)
	case models.ProviderMailgun:
		if t.Mailgun == nil {
			return nil, mailerr.New(mailerr.KindConfiguration, "missing settings for Mailgun")
		}
		m, err = NewMailgunMailer(*t.Mailgun, t.opts.HTTPClient, t.opts.Logger)
	case models.ProviderMock:
		m = &MockMailer{}
	case models.ProviderMockFail:
		m = &MockMailer{Fail: true}
	case models.ProviderSendInBlue:
		return nil, mailerr.New(mailerr.KindConfiguration, "sendinblue transports dispatch through SendInBlue()")
	default:
		return nil, mailerr.New(mailerr.KindConfiguration, "unknown transport type %q", t.Type)
	}
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindConfiguration, err, "transport %d", t.ID)
	}

	t.mailer = m
	return m, nil
}

// SendInBlue returns the REST client of a sendinblue transport.
func (t *Transport) SendInBlue() (*SendInBlueClient, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.sendInBlue != nil {
		return t.sendInBlue, nil
	}
	if t.Type != models.ProviderSendInBlue {
		return nil, mailerr.New(mailerr.KindConfiguration, "transport %d is not a sendinblue transport", t.ID)
	}
	if t.Provider.SendInBlue == nil {
		return nil, mailerr.New(mailerr.KindConfiguration, "missing settings for Send In Blue")
	}
	c, err := NewSendInBlueClient(*t.Provider.SendInBlue, t.opts.HTTPClient, t.opts.Logger)
	if err != nil {
		return nil, mailerr.Wrap(mailerr.KindConfiguration, err, "transport %d", t.ID)
	}
	t.sendInBlue = c
	return c, nil
}

func (t *Transport) String() string {
	return fmt.Sprintf("%s#%d(%s)", t.Name, t.ID, t.Type)
}
