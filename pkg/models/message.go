package models

import (
	"errors"
	"strings"
	"time"

	"go.uber.org/multierr"

	"mailer/internal/validation"
)

// DefaultMaxRetries is the number of delivery attempts before a message is
// marked failed.
const DefaultMaxRetries = 10

type MessageStatus string

const (
	StatusPending MessageStatus = "pending"
	StatusSent    MessageStatus = "sent"
	StatusFailed  MessageStatus = "failed"
)

// Terminal reports whether a message in this status is never picked up again.
func (s MessageStatus) Terminal() bool {
	return s == StatusSent || s == StatusFailed
}

// Message is one outbound email and its delivery state.
type Message struct {
	ID          int64         `json:"id" db:"id"`
	From        string        `json:"from" db:"from"`
	To          string        `json:"to" db:"to"`
	ReplyTo     string        `json:"replyTo,omitempty" db:"reply_to"`
	Subject     string        `json:"subject" db:"subject"`
	Text        string        `json:"text" db:"text"`
	HTML        string        `json:"html,omitempty" db:"html"`
	Template    string        `json:"template,omitempty" db:"template"`
	Language    string        `json:"language,omitempty" db:"language"`
	Status      MessageStatus `json:"status" db:"status"`
	Attempt     int           `json:"attempt" db:"attempt"`
	MaxRetries  int           `json:"maxRetries" db:"max_retries"`
	Error       *string       `json:"error" db:"error"`
	Created     time.Time     `json:"created" db:"created"`
	Sent        *time.Time    `json:"sent" db:"sent"`
	RetryAfter  *time.Time    `json:"retryAfter" db:"retry_after"`
	TransportID *int64        `json:"transportId" db:"transport_id"`
}

// Content is what callers submit to have a message sent.
type Content struct {
	From    AddressValue `json:"from,omitempty"`
	To      AddressValue `json:"to"`
	ReplyTo AddressValue `json:"replyTo,omitempty"`
	Subject string       `json:"subject"`
	Text    string       `json:"text"`
	HTML    string       `json:"html,omitempty"`

	Language string         `json:"language,omitempty"`
	Template string         `json:"template,omitempty"`
	Params   map[string]any `json:"params,omitempty"`
}

// Defaults are substituted into content that leaves them out.
type Defaults struct {
	From       string
	Language   string
	MaxRetries int
}

// NewMessage builds a pending message from caller content.
func NewMessage(c Content, d Defaults, now time.Time) *Message {
	from := string(c.From)
	if from == "" {
		from = d.From
	}
	language := c.Language
	if c.Template != "" && language == "" {
		language = d.Language
	}
	maxRetries := d.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	return &Message{
		From:       from,
		To:         string(c.To),
		ReplyTo:    string(c.ReplyTo),
		Subject:    c.Subject,
		Text:       c.Text,
		HTML:       c.HTML,
		Template:   c.Template,
		Language:   language,
		Status:     StatusPending,
		Attempt:    0,
		MaxRetries: maxRetries,
		Created:    now.UTC().Truncate(time.Second),
	}
}

// Validate returns every violated invariant combined with multierr, or nil.
func (m *Message) Validate() error {
	var err error
	if !validation.IsValidAddress(m.From) {
		err = multierr.Append(err, errors.New("'from' is not a valid address string"))
	}
	if !validation.IsValidAddress(m.To) {
		err = multierr.Append(err, errors.New("'to' is not a valid address string"))
	}
	if m.ReplyTo != "" && !validation.IsValidAddress(m.ReplyTo) {
		err = multierr.Append(err, errors.New("'replyTo' is not a valid address string"))
	}
	if m.Subject == "" {
		err = multierr.Append(err, errors.New("'subject' is missing"))
	} else {
		err = multierr.Append(err, validation.ValidateSubject(m.Subject))
	}
	if m.Text == "" {
		err = multierr.Append(err, errors.New("'text' is missing"))
	} else {
		err = multierr.Append(err, validation.ValidateBody("text", m.Text))
	}
	if m.HTML != "" {
		err = multierr.Append(err, validation.ValidateBody("html", m.HTML))
	}

	if m.MaxRetries < 1 {
		err = multierr.Append(err, errors.New("'maxRetries' missing"))
	}
	if m.Status == "" {
		err = multierr.Append(err, errors.New("'status' missing"))
	}
	if m.Attempt < 0 {
		err = multierr.Append(err, errors.New("'attempt' must not be negative"))
	}
	if m.Created.IsZero() {
		err = multierr.Append(err, errors.New("'created' missing"))
	}
	return err
}

// Violations lists the messages of every error combined in err.
func Violations(err error) []string {
	var out []string
	for _, e := range multierr.Errors(err) {
		out = append(out, e.Error())
	}
	return out
}

// IsValid is shorthand for Validate() == nil.
func (m *Message) IsValid() bool {
	return m.Validate() == nil
}

// SetFromDomain replaces the domain of the sender address, keeping the
// local part and the display name.
func (m *Message) SetFromDomain(domain string) {
	if domain == "" {
		return
	}

	addr := ParseAddress(m.From)
	if i := strings.LastIndex(addr.Address, "@"); i >= 0 {
		addr.Address = addr.Address[:i+1] + domain
	} else {
		addr.Address = addr.Address + "@" + domain
	}
	m.From = addr.String()
}

// ErrorText returns the recorded failure detail, or "".
func (m *Message) ErrorText() string {
	if m.Error == nil {
		return ""
	}
	return *m.Error
}
