// Package delivery moves messages from pending to sent or failed. Messages
// are persisted before any attempt; a failed attempt schedules a retry with
// linear backoff until the message runs out of attempts.
package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"mailer/internal/clock"
	"mailer/internal/mailerr"
	"mailer/internal/metrics"
	"mailer/internal/provider"
	"mailer/internal/store"
	"mailer/pkg/models"
)

// Options configures a Manager.
type Options struct {
	Defaults models.Defaults
	// BackoffUnit is the linear retry step, DefaultBackoffUnit when zero.
	BackoffUnit time.Duration
	// DispatchTimeout bounds a single provider call. Zero means no bound.
	DispatchTimeout time.Duration
}

// SendResult reports the outcome of an immediate send. A delivery failure is
// not an error: Success is false and the message has been scheduled for retry
// or marked failed.
type SendResult struct {
	Success bool              `json:"success"`
	Queued  bool              `json:"queued,omitempty"`
	Message *models.Message   `json:"message"`
	Receipt *provider.Receipt `json:"receipt,omitempty"`
	Error   string            `json:"error,omitempty"`
}

// ProcessResult summarizes one queue run.
type ProcessResult struct {
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Manager is the delivery engine.
type Manager struct {
	store   store.Store
	router  *provider.Router
	clock   clock.Clock
	metrics *metrics.Metrics
	logger  *zap.Logger

	defaults        models.Defaults
	backoff         Backoff
	dispatchTimeout time.Duration
}

func NewManager(s store.Store, r *provider.Router, opts Options, clk clock.Clock, m *metrics.Metrics, logger *zap.Logger) *Manager {
	if clk == nil {
		clk = clock.System{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	unit := opts.BackoffUnit
	if unit <= 0 {
		unit = DefaultBackoffUnit
	}
	return &Manager{
		store:           s,
		router:          r,
		clock:           clk,
		metrics:         m,
		logger:          logger,
		defaults:        opts.Defaults,
		backoff:         LinearBackoff{Unit: unit},
		dispatchTimeout: opts.DispatchTimeout,
	}
}

func (m *Manager) build(c models.Content) (*models.Message, error) {
	msg := models.NewMessage(c, m.defaults, m.clock.Now())
	if err := msg.Validate(); err != nil {
		return nil, mailerr.Validation("mail content invalid", err)
	}
	return msg, nil
}

// SendMail persists the message and attempts delivery once.
func (m *Manager) SendMail(ctx context.Context, c models.Content) (*SendResult, error) {
	msg, err := m.build(c)
	if err != nil {
		return nil, err
	}
	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	m.metrics.MessageAccepted("send")

	if err := m.router.Reload(ctx); err != nil {
		return nil, mailerr.Wrap(mailerr.KindInternal, err, "message %d stored but transports could not be loaded", msg.ID)
	}
	return m.trySend(ctx, msg)
}

// QueueMail persists the message as immediately due without attempting
// delivery.
func (m *Manager) QueueMail(ctx context.Context, c models.Content) (*models.Message, error) {
	msg, err := m.build(c)
	if err != nil {
		return nil, err
	}
	retryAfter := msg.Created.Add(-time.Second)
	msg.RetryAfter = &retryAfter

	if err := m.store.InsertMessage(ctx, msg); err != nil {
		return nil, err
	}
	m.metrics.MessageAccepted("queue")
	m.logger.Debug("message queued", zap.Int64("message_id", msg.ID), zap.String("to", msg.To))
	return msg, nil
}

// ProcessQueue attempts every due message once, in store order. Delivery
// failures are counted, never returned.
func (m *Manager) ProcessQueue(ctx context.Context) (*ProcessResult, error) {
	logger := m.logger.With(zap.String("run_id", uuid.NewString()))

	due, err := m.store.DueMessages(ctx, m.clock.Now())
	if err != nil {
		m.metrics.QueueRun("error", 0)
		return nil, fmt.Errorf("failed to load due messages: %w", err)
	}
	if err := m.router.Reload(ctx); err != nil {
		m.metrics.QueueRun("error", len(due))
		return nil, fmt.Errorf("failed to load transports: %w", err)
	}
	m.metrics.ActiveTransports(len(m.router.Active()))

	result := &ProcessResult{}
	for _, msg := range due {
		if err := ctx.Err(); err != nil {
			logger.Warn("queue run interrupted",
				zap.Int("remaining", len(due)-result.Successes-result.Failures),
				zap.Error(err))
			m.metrics.QueueRun("error", len(due))
			return result, err
		}

		res, err := m.trySend(ctx, msg)
		switch {
		case err != nil:
			logger.Error("failed to record delivery attempt", zap.Int64("message_id", msg.ID), zap.Error(err))
			result.Failures++
		case res.Success:
			result.Successes++
		default:
			result.Failures++
		}
	}

	m.metrics.QueueRun("ok", len(due))
	if len(due) > 0 {
		logger.Info("queue processed",
			zap.Int("due", len(due)),
			zap.Int("successes", result.Successes),
			zap.Int("failures", result.Failures))
	}
	return result, nil
}

// trySend makes one delivery attempt and records its outcome. The returned
// error is set only when the outcome could not be persisted.
func (m *Manager) trySend(ctx context.Context, msg *models.Message) (*SendResult, error) {
	logger := m.logger.With(zap.Int64("message_id", msg.ID))

	t, err := m.router.Select(ctx, msg.TransportID)
	if err != nil {
		return m.recordFailure(ctx, msg, "none", err, 0)
	}
	id := t.ID
	msg.TransportID = &id
	msg.SetFromDomain(t.Domain)

	start := time.Now()
	receipt, err := m.dispatch(ctx, t, msg)
	took := time.Since(start)
	if err != nil {
		logger.Warn("couldn't send email",
			zap.Int64("transport_id", t.ID),
			zap.String("transport_type", string(t.Type)),
			zap.Int("attempt", msg.Attempt+1),
			zap.Error(err))
		return m.recordFailure(ctx, msg, string(t.Type), err, took)
	}

	now := m.clock.Now().Truncate(time.Second)
	msg.Sent = &now
	msg.Status = models.StatusSent
	msg.RetryAfter = nil
	msg.Error = nil
	if err := m.store.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	m.metrics.DeliveryAttempt(string(t.Type), "sent", took)

	logger.Info("email sent",
		zap.Int64("transport_id", t.ID),
		zap.String("transport_type", string(t.Type)),
		zap.String("receipt_id", receipt.ID))
	return &SendResult{Success: true, Message: msg, Receipt: receipt}, nil
}

func (m *Manager) recordFailure(ctx context.Context, msg *models.Message, providerType string, cause error, took time.Duration) (*SendResult, error) {
	msg.Attempt++
	outcome := "retry"
	if msg.Attempt >= msg.MaxRetries {
		msg.Status = models.StatusFailed
		msg.RetryAfter = nil
		outcome = "failed"
	} else {
		next := m.clock.Now().Add(m.backoff.Delay(msg.Attempt)).Truncate(time.Second)
		msg.RetryAfter = &next
	}
	detail := cause.Error()
	msg.Error = &detail

	if err := m.store.UpdateMessage(ctx, msg); err != nil {
		return nil, err
	}
	m.metrics.DeliveryAttempt(providerType, outcome, took)
	return &SendResult{Success: false, Message: msg, Error: detail}, nil
}

// dispatch sends through the REST path for sendinblue transports and the
// uniform mailer path for every other type.
func (m *Manager) dispatch(ctx context.Context, t *provider.Transport, msg *models.Message) (*provider.Receipt, error) {
	if m.dispatchTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.dispatchTimeout)
		defer cancel()
	}

	if t.Type == models.ProviderSendInBlue {
		client, err := t.SendInBlue()
		if err != nil {
			return nil, err
		}
		return client.Dispatch(ctx, provider.NewSendInBlueRequest(msg))
	}

	mailer, err := t.Mailer()
	if err != nil {
		return nil, err
	}
	return mailer.Send(ctx, msg)
}
