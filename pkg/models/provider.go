package models

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"

	"mailer/internal/validation"
)

type ProviderType string

const (
	ProviderSMTP       ProviderType = "smtp"
	ProviderMailgun    ProviderType = "mailgun"
	ProviderSendInBlue ProviderType = "sendinblue"
	ProviderMock       ProviderType = "mock"
	ProviderMockFail   ProviderType = "mock-fail"
)

// Known reports whether t is one of the supported provider types.
func (t ProviderType) Known() bool {
	switch t {
	case ProviderSMTP, ProviderMailgun, ProviderSendInBlue, ProviderMock, ProviderMockFail:
		return true
	}
	return false
}

// Provider is one configured outbound channel. Only the settings payload
// matching Type is meaningful.
type Provider struct {
	ID      int64        `json:"id" db:"id"`
	Name    string       `json:"name" db:"name"`
	Type    ProviderType `json:"type" db:"type"`
	Active  bool         `json:"active" db:"active"`
	Weight  int          `json:"weight" db:"weight"`
	Default bool         `json:"default" db:"is_default"`
	Domain  string       `json:"domain,omitempty" db:"domain"`

	SMTP       *SMTPSettings       `json:"smtp,omitempty" db:"smtp"`
	Mailgun    *MailgunSettings    `json:"mailgun,omitempty" db:"mailgun"`
	SendInBlue *SendInBlueSettings `json:"sendinblue,omitempty" db:"sendinblue"`
}

type SMTPSettings struct {
	ID         int64  `json:"-" db:"id"`
	ProviderID int64  `json:"-" db:"provider_id"`
	Host       string `json:"host" db:"host"`
	Port       int    `json:"port" db:"port"`
	User       string `json:"user" db:"user"`
	Pass       string `json:"pass" db:"pass"`
	Secure     bool   `json:"secure" db:"secure"`
}

type MailgunSettings struct {
	ID         int64  `json:"-" db:"id"`
	ProviderID int64  `json:"-" db:"provider_id"`
	APIKey     string `json:"apiKey" db:"api_key"`
	Host       string `json:"host" db:"host"`
	Domain     string `json:"domain,omitempty" db:"domain"`
}

type SendInBlueSettings struct {
	ID         int64  `json:"-" db:"id"`
	ProviderID int64  `json:"-" db:"provider_id"`
	APIKey     string `json:"apiKey" db:"api_key"`
	APIURL     string `json:"apiUrl" db:"api_url"`
}

// Validate checks the administrative fields and the settings payload
// required by Type. Every violation is reported.
func (p *Provider) Validate() error {
	var err error
	if p.Name == "" {
		err = multierr.Append(err, errors.New("'name' is missing"))
	}
	if p.Weight < 0 {
		err = multierr.Append(err, errors.New("'weight' must not be negative"))
	}
	if p.Domain != "" {
		err = multierr.Append(err, validation.ValidateDomain(p.Domain))
	}

	switch p.Type {
	case ProviderSMTP:
		err = multierr.Append(err, p.SMTP.validate())
	case ProviderMailgun:
		err = multierr.Append(err, p.Mailgun.validate())
	case ProviderSendInBlue:
		err = multierr.Append(err, p.SendInBlue.validate())
	case ProviderMock, ProviderMockFail:
	case "":
		err = multierr.Append(err, errors.New("'type' is missing"))
	default:
		err = multierr.Append(err, fmt.Errorf("unknown provider type %q", p.Type))
	}
	return err
}

// IsValid is shorthand for Validate() == nil.
func (p *Provider) IsValid() bool {
	return p.Validate() == nil
}

func (s *SMTPSettings) validate() error {
	if s == nil {
		return errors.New("missing settings for smtp")
	}
	var err error
	if s.Host == "" {
		err = multierr.Append(err, errors.New("'smtp.host' is missing"))
	}
	if s.Port <= 0 {
		err = multierr.Append(err, errors.New("'smtp.port' is missing"))
	}
	if s.User == "" {
		err = multierr.Append(err, errors.New("'smtp.user' is missing"))
	}
	if s.Pass == "" {
		err = multierr.Append(err, errors.New("'smtp.pass' is missing"))
	}
	return err
}

func (s *MailgunSettings) validate() error {
	if s == nil {
		return errors.New("missing settings for mailgun")
	}
	var err error
	if s.APIKey == "" {
		err = multierr.Append(err, errors.New("'mailgun.apiKey' is missing"))
	}
	if s.Host == "" {
		err = multierr.Append(err, errors.New("'mailgun.host' is missing"))
	}
	return err
}

func (s *SendInBlueSettings) validate() error {
	if s == nil {
		return errors.New("missing settings for sendinblue")
	}
	var err error
	if s.APIKey == "" {
		err = multierr.Append(err, errors.New("'sendinblue.apiKey' is missing"))
	}
	if s.APIURL == "" {
		err = multierr.Append(err, errors.New("'sendinblue.apiUrl' is missing"))
	}
	return err
}

// ProviderPatch carries a partial provider update; nil fields are left alone.
type ProviderPatch struct {
	Name    *string `json:"name,omitempty"`
	Active  *bool   `json:"active,omitempty"`
	Weight  *int    `json:"weight,omitempty"`
	Default *bool   `json:"default,omitempty"`
	Domain  *string `json:"domain,omitempty"`

	SMTP       *SMTPSettings       `json:"smtp,omitempty"`
	Mailgun    *MailgunSettings    `json:"mailgun,omitempty"`
	SendInBlue *SendInBlueSettings `json:"sendinblue,omitempty"`
}

// Apply merges the administrative fields of patch and, of the settings
// payloads, only the one matching the provider's type. Type itself never
// changes.
func (p *Provider) Apply(patch ProviderPatch) {
	if patch.Name != nil {
		p.Name = *patch.Name
	}
	if patch.Active != nil {
		p.Active = *patch.Active
	}
	if patch.Weight != nil {
		p.Weight = *patch.Weight
	}
	if patch.Default != nil {
		p.Default = *patch.Default
	}
	if patch.Domain != nil {
		p.Domain = *patch.Domain
	}

	switch p.Type {
	case ProviderSMTP:
		if patch.SMTP != nil {
			p.SMTP = mergeSMTP(p.SMTP, patch.SMTP)
		}
	case ProviderMailgun:
		if patch.Mailgun != nil {
			p.Mailgun = mergeMailgun(p.Mailgun, patch.Mailgun)
		}
	case ProviderSendInBlue:
		if patch.SendInBlue != nil {
			p.SendInBlue = mergeSendInBlue(p.SendInBlue, patch.SendInBlue)
		}
	}
}

// Zero values in the patch keep the current setting. Secure is a plain
// bool and therefore always taken from the patch.
func mergeSMTP(cur, in *SMTPSettings) *SMTPSettings {
	out := SMTPSettings{}
	if cur != nil {
		out = *cur
	}
	if in.Host != "" {
		out.Host = in.Host
	}
	if in.Port != 0 {
		out.Port = in.Port
	}
	if in.User != "" {
		out.User = in.User
	}
	if in.Pass != "" {
		out.Pass = in.Pass
	}
	out.Secure = in.Secure
	return &out
}

func mergeMailgun(cur, in *MailgunSettings) *MailgunSettings {
	out := MailgunSettings{}
	if cur != nil {
		out = *cur
	}
	if in.APIKey != "" {
		out.APIKey = in.APIKey
	}
	if in.Host != "" {
		out.Host = in.Host
	}
	if in.Domain != "" {
		out.Domain = in.Domain
	}
	return &out
}

func mergeSendInBlue(cur, in *SendInBlueSettings) *SendInBlueSettings {
	out := SendInBlueSettings{}
	if cur != nil {
		out = *cur
	}
	if in.APIKey != "" {
		out.APIKey = in.APIKey
	}
	if in.APIURL != "" {
		out.APIURL = in.APIURL
	}
	return &out
}

// ProviderStats counts the messages a provider handled, by status.
type ProviderStats struct {
	ProviderID int64  `json:"transportId" db:"transport_id"`
	Name       string `json:"name" db:"name"`
	Sent       int64  `json:"sent" db:"sent"`
	Failed     int64  `json:"failed" db:"failed"`
	Pending    int64  `json:"pending" db:"pending"`
}
