package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsValidAddress(t *testing.T) {
	tests := []struct {
		name    string
		address string
		want    bool
	}{
		{"bare", "coo@covle.com", true},
		{"display name", "Bla die bla <coo@covle.com>", true},
		{"single word name", "Peter <blup@bluppie.com>", true},
		{"subdomain", "knop@foo.bar.com", true},
		{"ip literal", "root@[127.0.0.1]", true},
		{"quoted local part", `"john doe"@example.com`, true},
		{"empty", "", false},
		{"no at sign", "Not an email address", false},
		{"no space before bracket", "missing trailing space<coo@covle.com>", false},
		{"brackets only", "<coo@covle.com>", false},
		{"unclosed bracket", "Coo <coo@covle.com", false},
		{"invalid wrapped", "Coo <coo.covle.com>", false},
		{"two brackets", "A <a@b.com> <c@d.com>", false},
		{"no tld", "coo@covle", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsValidAddress(tt.address))
		})
	}
}

func TestIsValidEmail(t *testing.T) {
	assert.True(t, IsValidEmail("UPPER@Example.COM"))
	assert.False(t, IsValidEmail("Peter <blup@bluppie.com>"))
	assert.False(t, IsValidEmail(strings.Repeat("a", 320)+"@example.com"))
}

func TestValidateSubject(t *testing.T) {
	assert.NoError(t, ValidateSubject("Hello"))
	assert.Error(t, ValidateSubject("Hello\r\nBcc: victim@example.com"))
	assert.Error(t, ValidateSubject(strings.Repeat("x", 999)))
}

func TestValidateBody(t *testing.T) {
	assert.NoError(t, ValidateBody("text", "Dear Sam"))
	assert.EqualError(t, ValidateBody("html", "a\x00b"), "'html' contains null bytes")
}

func TestValidateDomain(t *testing.T) {
	assert.NoError(t, ValidateDomain("mg.example.com"))
	assert.Error(t, ValidateDomain(""))
	assert.Error(t, ValidateDomain("-bad-.com"))
	assert.Error(t, ValidateDomain("nodot"))
}
