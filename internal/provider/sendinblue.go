package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"mailer/pkg/models"
)

// SendInBlueContact is a named address in a transactional email request.
type SendInBlueContact struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

// SendInBlueRequest is the body of POST /smtp/email.
type SendInBlueRequest struct {
	Sender      SendInBlueContact   `json:"sender"`
	To          []SendInBlueContact `json:"to"`
	ReplyTo     *SendInBlueContact  `json:"replyTo,omitempty"`
	Subject     string              `json:"subject"`
	TextContent string              `json:"textContent,omitempty"`
	HTMLContent string              `json:"htmlContent,omitempty"`
}

type sendInBlueResponse struct {
	MessageID string `json:"messageId"`
}

type sendInBlueError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func contact(s string) SendInBlueContact {
	a := models.ParseAddress(s)
	return SendInBlueContact{Email: a.Address, Name: a.Name}
}

// NewSendInBlueRequest maps a message onto the structured request the REST
// API expects.
func NewSendInBlueRequest(msg *models.Message) *SendInBlueRequest {
	req := &SendInBlueRequest{
		Sender:      contact(msg.From),
		To:          []SendInBlueContact{contact(msg.To)},
		Subject:     msg.Subject,
		TextContent: msg.Text,
		HTMLContent: msg.HTML,
	}
	if msg.ReplyTo != "" {
		replyTo := contact(msg.ReplyTo)
		req.ReplyTo = &replyTo
	}
	return req
}

// SendInBlueClient talks to the SendInBlue transactional email API.
type SendInBlueClient struct {
	settings   models.SendInBlueSettings
	httpClient *http.Client
	logger     *zap.Logger
}

func NewSendInBlueClient(settings models.SendInBlueSettings, httpClient *http.Client, logger *zap.Logger) (*SendInBlueClient, error) {
	if settings.APIKey == "" {
		return nil, fmt.Errorf("sendinblue API key is required")
	}
	if settings.APIURL == "" {
		return nil, fmt.Errorf("sendinblue API url is required")
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SendInBlueClient{settings: settings, httpClient: httpClient, logger: logger}, nil
}

// Dispatch posts a prepared request. The API answers 201 with the message id.
func (c *SendInBlueClient) Dispatch(ctx context.Context, request *SendInBlueRequest) (*Receipt, error) {
	payload, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.settings.APIURL, "/") + "/smtp/email"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("api-key", c.settings.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &DeliveryError{Provider: models.ProviderSendInBlue, Err: err}
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			c.logger.Warn("failed to close response body", zap.Error(closeErr))
		}
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &DeliveryError{Provider: models.ProviderSendInBlue, StatusCode: resp.StatusCode, Err: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		var out sendInBlueResponse
		if err := json.Unmarshal(body, &out); err != nil {
			c.logger.Warn("could not parse sendinblue success response", zap.Error(err))
		}
		return &Receipt{ID: out.MessageID, Provider: models.ProviderSendInBlue, Response: resp.Status}, nil
	}

	var apiErr sendInBlueError
	if err := json.Unmarshal(body, &apiErr); err != nil || apiErr.Message == "" {
		return nil, &DeliveryError{Provider: models.ProviderSendInBlue, StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(body))}
	}
	return nil, &DeliveryError{
		Provider:   models.ProviderSendInBlue,
		StatusCode: resp.StatusCode,
		Message:    fmt.Sprintf("%s: %s", apiErr.Code, apiErr.Message),
	}
}
