package validation

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	// local@domain, where local is a dot-atom or a quoted string and domain is a
	// dotted hostname or a bracketed IPv4 literal
	emailRegex = regexp.MustCompile(`^(([^<>()\[\]\\.,;:\s@"]+(\.[^<>()\[\]\\.,;:\s@"]+)*)|(".+"))@((\[[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\.[0-9]{1,3}\])|(([a-zA-Z\-0-9]+\.)+[a-zA-Z]{2,}))$`)

	// Domain validation regex
	domainRegex = regexp.MustCompile(`^([a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?\.)+[a-zA-Z]{2,}$`)

	maxEmailLength   = 320 // RFC 5321
	maxSubjectLength = 998 // RFC 5322
	maxBodyLength    = 25 * 1024 * 1024
)

// IsValidEmail reports whether s is a bare local@domain address.
func IsValidEmail(s string) bool {
	if s == "" || len(s) > maxEmailLength {
		return false
	}
	return emailRegex.MatchString(strings.ToLower(s))
}

// IsValidAddress accepts either a bare address or the
// "Display Name <local@domain>" form. The display name must be followed by a
// single space before the opening bracket, and the bracket must be closed.
func IsValidAddress(s string) bool {
	if s == "" {
		return false
	}
	if IsValidEmail(s) {
		return true
	}

	parts := strings.Split(s, " <")
	if len(parts) != 2 || !strings.HasSuffix(parts[1], ">") {
		return false
	}
	return IsValidEmail(strings.TrimSuffix(parts[1], ">"))
}

// ValidateSubject rejects subjects that would break the header block.
func ValidateSubject(subject string) error {
	if len(subject) > maxSubjectLength {
		return fmt.Errorf("'subject' too long (max %d characters)", maxSubjectLength)
	}
	if strings.ContainsAny(subject, "\r\n") {
		return fmt.Errorf("'subject' contains illegal characters (CRLF)")
	}
	return nil
}

// ValidateBody validates message body content.
func ValidateBody(field, body string) error {
	if len(body) > maxBodyLength {
		return fmt.Errorf("'%s' too large (max %d bytes)", field, maxBodyLength)
	}
	if strings.Contains(body, "\x00") {
		return fmt.Errorf("'%s' contains null bytes", field)
	}
	return nil
}

// ValidateDomain validates a domain name
func ValidateDomain(domain string) error {
	if domain == "" {
		return fmt.Errorf("domain cannot be empty")
	}
	if len(domain) > 253 {
		return fmt.Errorf("domain too long (max 253 characters)")
	}
	if !domainRegex.MatchString(domain) {
		return fmt.Errorf("invalid domain format: %s", domain)
	}
	return nil
}
