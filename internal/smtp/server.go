// Package smtp accepts mail over SMTP and hands every recipient to the
// delivery queue as its own message.
package smtp

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"mailer/internal/config"
	"mailer/internal/mailerr"
	"mailer/internal/metrics"
	"mailer/pkg/models"
)

// Queuer stores a message for later delivery.
type Queuer interface {
	QueueMail(ctx context.Context, c models.Content) (*models.Message, error)
}

type Server struct {
	config config.SMTPConfig
	server *smtp.Server
	logger *zap.Logger
}

func NewServer(cfg config.SMTPConfig, q Queuer, m *metrics.Metrics, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("smtp")

	backend := &Backend{queue: q, metrics: m, logger: logger}

	server := smtp.NewServer(backend)
	server.Addr = fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	server.Domain = cfg.Domain
	if server.Domain == "" {
		server.Domain = cfg.Host
	}
	server.ReadTimeout = cfg.ReadTimeout
	server.WriteTimeout = cfg.WriteTimeout
	server.MaxMessageBytes = cfg.MaxSize
	server.MaxRecipients = 100
	server.AllowInsecureAuth = true

	return &Server{config: cfg, server: server, logger: logger}
}

func (s *Server) Addr() string {
	return s.server.Addr
}

func (s *Server) Start() error {
	s.logger.Info("starting SMTP intake", zap.String("addr", s.server.Addr))
	err := s.server.ListenAndServe()
	if errors.Is(err, smtp.ErrServerClosed) {
		return nil
	}
	return err
}

// Serve accepts connections on l until Stop is called.
func (s *Server) Serve(l net.Listener) error {
	s.logger.Info("starting SMTP intake", zap.String("addr", l.Addr().String()))
	err := s.server.Serve(l)
	if errors.Is(err, smtp.ErrServerClosed) {
		return nil
	}
	return err
}

func (s *Server) Stop() error {
	return s.server.Close()
}

type Backend struct {
	queue   Queuer
	metrics *metrics.Metrics
	logger  *zap.Logger
}

func (b *Backend) NewSession(c *smtp.Conn) (smtp.Session, error) {
	return &Session{backend: b, remote: c.Conn().RemoteAddr().String()}, nil
}

type Session struct {
	backend *Backend
	remote  string
	from    string
	to      []string
}

func (s *Session) AuthPlain(username, password string) error {
	return nil
}

func (s *Session) Mail(from string, opts *smtp.MailOptions) error {
	s.from = from
	return nil
}

func (s *Session) Rcpt(to string, opts *smtp.RcptOptions) error {
	s.to = append(s.to, to)
	return nil
}

func (s *Session) Data(r io.Reader) error {
	if len(s.to) == 0 {
		return errors.New("no recipients")
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}

	parsed, err := parseMessage(data)
	if err != nil {
		s.backend.logger.Warn("rejecting unparsable message", zap.String("remote", s.remote), zap.Error(err))
		return &smtp.SMTPError{
			Code:         554,
			EnhancedCode: smtp.EnhancedCode{5, 6, 0},
			Message:      "Message could not be parsed",
		}
	}
	if parsed.From == "" {
		parsed.From = models.AddressValue(s.from)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, rcpt := range s.to {
		content := parsed
		content.To = models.AddressValue(rcpt)

		msg, err := s.backend.queue.QueueMail(ctx, content)
		if err != nil {
			s.backend.logger.Warn("failed to queue message",
				zap.String("remote", s.remote),
				zap.String("to", rcpt),
				zap.Error(err))
			if mailerr.Is(err, mailerr.KindValidation) {
				return &smtp.SMTPError{
					Code:         550,
					EnhancedCode: smtp.EnhancedCode{5, 6, 0},
					Message:      err.Error(),
				}
			}
			return fmt.Errorf("failed to queue message: %w", err)
		}

		s.backend.metrics.MessageAccepted("smtp")
		s.backend.logger.Info("message queued",
			zap.Int64("message_id", msg.ID),
			zap.String("to", rcpt),
			zap.String("remote", s.remote))
	}
	return nil
}

func (s *Session) Reset() {
	s.from = ""
	s.to = nil
}

func (s *Session) Logout() error {
	return nil
}
