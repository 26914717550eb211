package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"
)

var (
	testNow      = time.Date(2024, 3, 1, 12, 30, 45, 500, time.UTC)
	testDefaults = Defaults{From: "noreply@example.com", Language: "en", MaxRetries: 10}
)

func validContent() Content {
	return Content{
		To:      "Co van Leeuwen <coo@covle.com>",
		From:    AddressValue(Address{Name: "Peter", Address: "blup@bluppie.com"}.String()),
		Subject: "A test subject",
		Text:    "How now brown cow?",
	}
}

func TestNewMessage(t *testing.T) {
	t.Run("InitialState", func(t *testing.T) {
		m := NewMessage(validContent(), testDefaults, testNow)

		assert.Equal(t, StatusPending, m.Status)
		assert.Equal(t, 0, m.Attempt)
		assert.Equal(t, 10, m.MaxRetries)
		assert.Equal(t, testNow.Truncate(time.Second), m.Created)
		assert.Nil(t, m.RetryAfter)
		assert.Nil(t, m.TransportID)
		assert.True(t, m.IsValid())
	})

	t.Run("DefaultFrom", func(t *testing.T) {
		c := validContent()
		c.From = ""
		m := NewMessage(c, testDefaults, testNow)
		assert.Equal(t, "noreply@example.com", m.From)
	})

	t.Run("DefaultLanguageOnlyForTemplates", func(t *testing.T) {
		m := NewMessage(validContent(), testDefaults, testNow)
		assert.Empty(t, m.Language)

		c := validContent()
		c.Template = "welcome"
		m = NewMessage(c, testDefaults, testNow)
		assert.Equal(t, "en", m.Language)

		c.Language = "nl"
		m = NewMessage(c, testDefaults, testNow)
		assert.Equal(t, "nl", m.Language)
	})

	t.Run("MaxRetriesFallsBackToTen", func(t *testing.T) {
		m := NewMessage(validContent(), Defaults{From: "a@b.com"}, testNow)
		assert.Equal(t, DefaultMaxRetries, m.MaxRetries)
	})
}

func TestMessageValidate(t *testing.T) {
	t.Run("EmptyMessageReportsEveryViolation", func(t *testing.T) {
		m := &Message{}
		err := m.Validate()
		require.Error(t, err)
		// from, to, subject, text, maxRetries, status, created
		assert.Len(t, multierr.Errors(err), 7)

		m.From = "blup@blat.nl"
		assert.Len(t, multierr.Errors(m.Validate()), 6)
		assert.Contains(t, Violations(m.Validate()), "'to' is not a valid address string")
		assert.Empty(t, Violations(nil))
	})

	t.Run("AddressShapes", func(t *testing.T) {
		m := NewMessage(validContent(), testDefaults, testNow)
		for from, valid := range map[string]bool{
			"Not an email address":                  false,
			"missing trailing space<coo@covle.com>": false,
			"<coo@covle.com>":                       false,
			"Bla die bla <coo@covle.com>":           true,
			"coo@covle.com":                         true,
		} {
			m.From = from
			assert.Equal(t, valid, m.IsValid(), from)
		}
	})

	t.Run("ReplyToIsOptionalButChecked", func(t *testing.T) {
		m := NewMessage(validContent(), testDefaults, testNow)
		m.ReplyTo = "nope"
		assert.False(t, m.IsValid())
		m.ReplyTo = "Support <support@example.com>"
		assert.True(t, m.IsValid())
	})

	t.Run("NegativeAttempt", func(t *testing.T) {
		m := NewMessage(validContent(), testDefaults, testNow)
		m.Attempt = -1
		assert.Len(t, multierr.Errors(m.Validate()), 1)
	})

	t.Run("HeaderInjection", func(t *testing.T) {
		m := NewMessage(validContent(), testDefaults, testNow)
		m.Subject = "hi\r\nBcc: x@y.com"
		assert.False(t, m.IsValid())
	})
}

func TestSetFromDomain(t *testing.T) {
	m := NewMessage(validContent(), testDefaults, testNow)
	m.SetFromDomain("foo.bar.com")
	assert.Equal(t, "Peter <blup@foo.bar.com>", m.From)

	m.From = "knop@knuk.foo"
	m.SetFromDomain("foo.bar.com")
	assert.Equal(t, "knop@foo.bar.com", m.From)

	m.From = `"a@b"@c.com`
	m.SetFromDomain("d.com")
	assert.Equal(t, `"a@b"@d.com`, m.From)

	m.SetFromDomain("")
	assert.Equal(t, `"a@b"@d.com`, m.From)
}

func TestParseAddress(t *testing.T) {
	tests := []struct {
		input string
		want  Address
	}{
		{"dude <dudemeister@example.com>", Address{Name: "dude", Address: "dudemeister@example.com"}},
		{"dude von Trapp <dudemeister@example.com>", Address{Name: "dude von Trapp", Address: "dudemeister@example.com"}},
		{"dudemeister@example.com", Address{Address: "dudemeister@example.com"}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := ParseAddress(tt.input)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestContentUnmarshal(t *testing.T) {
	var c Content
	err := json.Unmarshal([]byte(`{
		"to": "coo@covle.com",
		"from": {"name": "Peter", "address": "blup@bluppie.com"},
		"replyTo": {"address": "reply@bluppie.com"},
		"subject": "s",
		"text": "t",
		"params": {"name": "Sam", "count": 3}
	}`), &c)
	require.NoError(t, err)

	assert.Equal(t, AddressValue("coo@covle.com"), c.To)
	assert.Equal(t, AddressValue("Peter <blup@bluppie.com>"), c.From)
	assert.Equal(t, AddressValue("reply@bluppie.com"), c.ReplyTo)
	assert.Equal(t, "Sam", c.Params["name"])

	assert.Error(t, json.Unmarshal([]byte(`{"to": 42}`), &c))
}

func TestStatusTerminal(t *testing.T) {
	assert.False(t, StatusPending.Terminal())
	assert.True(t, StatusSent.Terminal())
	assert.True(t, StatusFailed.Terminal())
}
