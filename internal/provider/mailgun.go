package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailer/pkg/models"
)

// MailgunMailer sends messages through the Mailgun messages API.
type MailgunMailer struct {
	settings   models.MailgunSettings
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// MailgunResponse represents the response from Mailgun API
type MailgunResponse struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// MailgunErrorResponse represents an error response from Mailgun
type MailgunErrorResponse struct {
	Message string `json:"message"`
}

// NewMailgunMailer builds a mailer for the given settings. Host may carry a
// scheme; https is assumed otherwise.
func NewMailgunMailer(settings models.MailgunSettings, httpClient *http.Client, logger *zap.Logger) (*MailgunMailer, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("mailgun API key is required")
	}
	if settings.Host == "" {
		return nil, fmt.Errorf("mailgun host is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	baseURL := strings.TrimRight(settings.Host, "/")
	if !strings.Contains(baseURL, "://") {
		baseURL = "https://" + baseURL
	}

	return &MailgunMailer{
		settings:   settings,
		baseURL:    baseURL,
		httpClient: httpClient,
		logger:     logger,
	}, nil
}

// extractDomain extracts the domain from an email address
func extractDomain(email string) (string, error) {
	addr := models.ParseAddress(email).Address
	i := strings.LastIndex(addr, "@")
	if i < 0 || i == len(addr)-1 {
		return "", fmt.Errorf("invalid email format: %s", email)
	}
	return addr[i+1:], nil
}

// Send posts msg to {host}/v3/{domain}/messages. The configured domain wins
// over the sender's.
func (m *MailgunMailer) Send(ctx context.Context, msg *models.Message) (*Receipt, error) {
	domain := m.settings.Domain
	if domain == "" {
		senderDomain, err := extractDomain(msg.From)
		if err != nil {
			return nil, &DeliveryError{Provider: models.ProviderMailgun, Err: err}
		}
		domain = senderDomain
	}

	form := make(url.Values)
	form.Set("from", msg.From)
	form.Set("to", msg.To)
	form.Set("subject", msg.Subject)
	if msg.ReplyTo != "" {
		form.Set("h:Reply-To", msg.ReplyTo)
	}
	if msg.Text != "" {
		form.Set("text", msg.Text)
	}
	if msg.HTML != "" {
		form.Set("html", msg.HTML)
	}
	if msg.ID != 0 {
		form.Set("v:message_id", fmt.Sprint(msg.ID))
	}

	startTime := time.Now()
	resp, err := m.sendRequest(ctx, form, domain)
	if err != nil {
		m.logger.Warn("mailgun send failed",
			zap.String("domain", domain),
			zap.Duration("took", time.Since(startTime)),
			zap.Error(err))
		return nil, err
	}

	m.logger.Debug("mailgun send accepted",
		zap.String("domain", domain),
		zap.String("mailgun_id", resp.ID),
		zap.Duration("took", time.Since(startTime)))

	return &Receipt{ID: resp.ID, Provider: models.ProviderMailgun, Response: resp.Message}, nil
}

// sendRequest sends the actual HTTP request to Mailgun
func (m *MailgunMailer) sendRequest(ctx context.Context, form url.Values, domain string) (*MailgunResponse, error) {
	apiURL := fmt.Sprintf("%s/v3/%s/messages", m.baseURL, domain)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth("api", m.settings.APIKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, &DeliveryError{Provider: models.ProviderMailgun, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			m.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DeliveryError{Provider: models.ProviderMailgun, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var mailgunResp MailgunResponse
		if err := json.Unmarshal(body, &mailgunResp); err != nil {
			// accepted even if the body is unreadable
			m.logger.Warn("could not parse mailgun success response", zap.Error(err))
		}
		return &mailgunResp, nil
	}

	var errorResp MailgunErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil || errorResp.Message == "" {
		return nil, &DeliveryError{Provider: models.ProviderMailgun, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil, &DeliveryError{Provider: models.ProviderMailgun, StatusCode: resp.StatusCode, Message: errorResp.Message}
}
