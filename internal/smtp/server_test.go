package smtp

import (
	"context"
	"errors"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"mailer/internal/config"
	"mailer/internal/mailerr"
	"mailer/pkg/models"
)

type recordingQueue struct {
	mu       sync.Mutex
	contents []models.Content
	err      error
}

func (q *recordingQueue) QueueMail(_ context.Context, c models.Content) (*models.Message, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return nil, q.err
	}
	q.contents = append(q.contents, c)
	return &models.Message{ID: int64(len(q.contents)), To: string(c.To)}, nil
}

func (q *recordingQueue) queued() []models.Content {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]models.Content(nil), q.contents...)
}

func startIntake(t *testing.T, q Queuer) string {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := NewServer(config.SMTPConfig{
		Host:         "127.0.0.1",
		Domain:       "localhost",
		MaxSize:      1 << 20,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
	}, q, nil, zaptest.NewLogger(t))

	go func() { _ = s.Serve(l) }()
	t.Cleanup(func() { _ = s.Stop() })
	return l.Addr().String()
}

const plainMessage = "From: Acme <noreply@acme.com>\r\n" +
	"Reply-To: support@acme.com\r\n" +
	"Subject: =?utf-8?q?Caf=C3=A9_news?=\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Hello there\r\n"

// send delivers raw over a plain session; the intake offers no STARTTLS.
func send(t *testing.T, addr, from string, to []string, raw string) error {
	t.Helper()
	c, err := smtp.Dial(addr)
	require.NoError(t, err)
	defer c.Close()

	if err := c.SendMail(from, to, strings.NewReader(raw)); err != nil {
		return err
	}
	return c.Quit()
}

func TestIntakeQueuesOneMessagePerRecipient(t *testing.T) {
	q := &recordingQueue{}
	addr := startIntake(t, q)

	err := send(t, addr, "bounce@acme.com", []string{"sam@example.com", "alex@example.com"}, plainMessage)
	require.NoError(t, err)

	queued := q.queued()
	require.Len(t, queued, 2)
	assert.Equal(t, models.AddressValue("sam@example.com"), queued[0].To)
	assert.Equal(t, models.AddressValue("alex@example.com"), queued[1].To)
	for _, c := range queued {
		assert.Equal(t, models.AddressValue("Acme <noreply@acme.com>"), c.From)
		assert.Equal(t, models.AddressValue("support@acme.com"), c.ReplyTo)
		assert.Equal(t, "Café news", c.Subject)
		assert.Equal(t, "Hello there", c.Text)
		assert.Empty(t, c.HTML)
	}
}

func TestIntakeRejectsInvalidContent(t *testing.T) {
	q := &recordingQueue{err: mailerr.Validation("mail content invalid", errors.New("'text' is missing"))}
	addr := startIntake(t, q)

	err := send(t, addr, "bounce@acme.com", []string{"sam@example.com"}, plainMessage)
	require.Error(t, err)

	var smtpErr *smtp.SMTPError
	require.ErrorAs(t, err, &smtpErr)
	assert.Equal(t, 550, smtpErr.Code)
	assert.Contains(t, smtpErr.Message, "'text' is missing")
	assert.Empty(t, q.queued())
}

func TestParseMessage(t *testing.T) {
	t.Run("multipart alternative", func(t *testing.T) {
		raw := "Subject: Hi\r\n" +
			"MIME-Version: 1.0\r\n" +
			"Content-Type: multipart/alternative; boundary=b1\r\n" +
			"\r\n" +
			"--b1\r\n" +
			"Content-Type: text/plain; charset=utf-8\r\n" +
			"Content-Transfer-Encoding: quoted-printable\r\n" +
			"\r\n" +
			"Caf=C3=A9\r\n" +
			"--b1\r\n" +
			"Content-Type: text/html; charset=utf-8\r\n" +
			"Content-Transfer-Encoding: base64\r\n" +
			"\r\n" +
			"PHA+SGk8L3A+\r\n" +
			"--b1--\r\n"

		c, err := parseMessage([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "Hi", c.Subject)
		assert.Equal(t, "Café", c.Text)
		assert.Equal(t, "<p>Hi</p>", c.HTML)
		assert.Empty(t, c.From)
	})

	t.Run("html only", func(t *testing.T) {
		raw := "Subject: Hi\r\nContent-Type: text/html\r\n\r\n<b>bold</b>\r\n"

		c, err := parseMessage([]byte(raw))
		require.NoError(t, err)
		assert.Equal(t, "<b>bold</b>", c.HTML)
		assert.Empty(t, c.Text)
	})

	t.Run("no headers", func(t *testing.T) {
		_, err := parseMessage([]byte("just a line without a header block"))
		assert.Error(t, err)
	})
}
