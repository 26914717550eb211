package provider

import (
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strconv"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailer/internal/clock"
	"mailer/pkg/models"
)

// SMTPMailer relays messages to an SMTP server. Secure selects implicit TLS;
// otherwise STARTTLS is used when the server offers it.
type SMTPMailer struct {
	settings  models.SMTPSettings
	localName string
	tlsConfig *tls.Config
	clock     clock.Clock
	logger    *zap.Logger
}

func NewSMTPMailer(settings models.SMTPSettings, opts Options) (*SMTPMailer, error) {
	if settings.Host == "" || settings.Port <= 0 {
		return nil, fmt.Errorf("smtp host and port are required")
	}
	opts = opts.withDefaults()

	tlsConfig := opts.TLSConfig
	if tlsConfig == nil {
		tlsConfig = &tls.Config{ServerName: settings.Host}
	}
	return &SMTPMailer{
		settings:  settings,
		localName: opts.LocalName,
		tlsConfig: tlsConfig,
		clock:     opts.Clock,
		logger:    opts.Logger,
	}, nil
}

func (m *SMTPMailer) Send(ctx context.Context, msg *models.Message) (*Receipt, error) {
	receiptID := uuid.NewString()
	domain, err := extractDomain(msg.From)
	if err != nil {
		domain = m.localName
	}
	body, err := composeMessage(msg, fmt.Sprintf("<%s@%s>", receiptID, domain), m.clock.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to compose message: %w", err)
	}

	if err := m.deliver(ctx, msg, body); err != nil {
		return nil, &DeliveryError{Provider: models.ProviderSMTP, Err: err}
	}
	return &Receipt{ID: receiptID, Provider: models.ProviderSMTP, Response: "250 OK"}, nil
}

// dial opens the connection under ctx, including the TLS handshake when
// Secure is set.
func (m *SMTPMailer) dial(ctx context.Context, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}
	if !m.settings.Secure {
		return conn, nil
	}

	cfg := m.tlsConfig.Clone()
	if cfg.ServerName == "" {
		cfg.ServerName = m.settings.Host
	}
	tlsConn := tls.Client(conn, cfg)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return tlsConn, nil
}

func (m *SMTPMailer) deliver(ctx context.Context, msg *models.Message, body []byte) error {
	addr := net.JoinHostPort(m.settings.Host, strconv.Itoa(m.settings.Port))

	conn, err := m.dial(ctx, addr)
	if err != nil {
		return fmt.Errorf("dial %s: %w", addr, err)
	}
	c := smtp.NewClient(conn)
	defer c.Close()

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			c.Close()
		case <-done:
		}
	}()

	if err := c.Hello(m.localName); err != nil {
		return err
	}
	if !m.settings.Secure {
		if ok, _ := c.Extension("STARTTLS"); ok {
			if err := c.StartTLS(m.tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}
	if m.settings.User != "" {
		if ok, _ := c.Extension("AUTH"); ok {
			if err := c.Auth(sasl.NewPlainClient("", m.settings.User, m.settings.Pass)); err != nil {
				return fmt.Errorf("auth: %w", err)
			}
		}
	}

	from := models.ParseAddress(msg.From).Address
	to := models.ParseAddress(msg.To).Address
	if err := c.SendMail(from, []string{to}, bytes.NewReader(body)); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return err
	}

	if err := c.Quit(); err != nil {
		m.logger.Debug("smtp quit failed", zap.String("addr", addr), zap.Error(err))
	}
	return nil
}
