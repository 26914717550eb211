package models

import (
	"errors"

	"go.uber.org/multierr"
)

// Template seeds message content. Name and language form its key.
type Template struct {
	ID       int64  `json:"id" db:"id"`
	Name     string `json:"name" db:"name"`
	Language string `json:"language" db:"language"`
	Subject  string `json:"subject" db:"subject"`
	Text     string `json:"text" db:"text"`
	HTML     string `json:"html,omitempty" db:"html"`
}

// TemplatePatch carries the fields of an update; nil fields are left alone.
type TemplatePatch struct {
	Subject *string `json:"subject,omitempty"`
	Text    *string `json:"text,omitempty"`
	HTML    *string `json:"html,omitempty"`
}

func (t *Template) Validate() error {
	var err error
	if t.Name == "" {
		err = multierr.Append(err, errors.New("'name' is missing"))
	}
	if t.Language == "" {
		err = multierr.Append(err, errors.New("'language' is missing"))
	}
	if t.Subject == "" {
		err = multierr.Append(err, errors.New("'subject' is missing"))
	}
	if t.Text == "" {
		err = multierr.Append(err, errors.New("'text' is missing"))
	}
	return err
}

// Apply merges the non-nil fields of p.
func (t *Template) Apply(p TemplatePatch) {
	if p.Subject != nil {
		t.Subject = *p.Subject
	}
	if p.Text != nil {
		t.Text = *p.Text
	}
	if p.HTML != nil {
		t.HTML = *p.HTML
	}
}
