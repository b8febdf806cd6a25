package webhook

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/stayspace/hooks/internal/config"
	"github.com/stayspace/hooks/internal/models"
	"go.uber.org/zap"
)

// senderLedger is the slice of the Ledger the sender drives.
type senderLedger interface {
	MarkSuccess(id string, responseCode int, responseBody string) error
	MarkFailed(id string, responseCode *int, responseBody string) error
	MarkPendingRetry(id string, responseCode *int, responseBody string, nextRetryAt time.Time) error
}

// senderRegistry is the slice of the Registry the sender drives.
type senderRegistry interface {
	ResetFailures(id string) error
	IncrementFailures(id string) (int, error)
	Disable(id, reason string) error
}

// Outcome is the classified result of one delivery attempt.
type Outcome struct {
	Status       string
	ResponseCode *int
}

// Sender performs the outbound HTTP POST for one delivery: it signs the
// payload, enforces the timeout, classifies the outcome, and drives the
// resulting ledger and registry transitions. Failures are absorbed into
// ledger state, never returned to the fan-out path.
type Sender struct {
	ledger   senderLedger
	registry senderRegistry
	client   *http.Client
	cfg      config.WebhookRuntimeConfig
	delays   []time.Duration
	logger   *zap.Logger
}

func NewSender(ledger senderLedger, registry senderRegistry, cfg config.WebhookRuntimeConfig, logger *zap.Logger) *Sender {
	return &Sender{
		ledger:   ledger,
		registry: registry,
		client:   &http.Client{Timeout: cfg.DeliveryTimeout()},
		cfg:      cfg,
		delays:   cfg.RetryDelays(),
		logger:   logger,
	}
}

// Deliver transmits the delivery's stored payload to the webhook endpoint.
// The payload bytes were fixed at ledger creation, so retries are
// byte-identical; only the timestamp and signature headers change.
func (s *Sender) Deliver(ctx context.Context, hook *models.WebhookModel, delivery *models.WebhookDeliveryModel) Outcome {
	body := delivery.Payload
	timestamp := time.Now().Unix()
	signature := Sign(hook.Secret, timestamp, body)

	reqCtx, cancel := context.WithTimeout(ctx, s.cfg.DeliveryTimeout())
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodPost, hook.URL, strings.NewReader(body))
	if err != nil {
		return s.fail(hook, delivery, nil, err.Error())
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Id", hook.ID)
	req.Header.Set("X-Webhook-Timestamp", strconv.FormatInt(timestamp, 10))
	req.Header.Set("X-Webhook-Signature", signature)

	resp, err := s.client.Do(req)
	if err != nil {
		// Transport errors (DNS, refused connection, timeout) classify the
		// same as HTTP failures, with a null status code.
		return s.fail(hook, delivery, nil, err.Error())
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes+1))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return s.succeed(hook, delivery, resp.StatusCode, string(respBody))
	}
	code := resp.StatusCode
	return s.fail(hook, delivery, &code, string(respBody))
}

func (s *Sender) succeed(hook *models.WebhookModel, delivery *models.WebhookDeliveryModel, code int, body string) Outcome {
	if err := s.ledger.MarkSuccess(delivery.ID, code, body); err != nil {
		s.logger.Error("mark delivery success", zap.String("delivery", delivery.ID), zap.Error(err))
	}
	if err := s.registry.ResetFailures(hook.ID); err != nil {
		s.logger.Error("reset failure counter", zap.String("webhook", hook.ID), zap.Error(err))
	}
	return Outcome{Status: models.DeliveryStatusSuccess, ResponseCode: &code}
}

func (s *Sender) fail(hook *models.WebhookModel, delivery *models.WebhookDeliveryModel, code *int, body string) Outcome {
	currentAttempt := delivery.Attempts + 1

	var status string
	if currentAttempt < s.cfg.MaxRetryAttempts {
		nextRetryAt := time.Now().Add(s.delayFor(currentAttempt))
		if err := s.ledger.MarkPendingRetry(delivery.ID, code, body, nextRetryAt); err != nil {
			s.logger.Error("mark delivery pending_retry", zap.String("delivery", delivery.ID), zap.Error(err))
		}
		status = models.DeliveryStatusPendingRetry
	} else {
		if err := s.ledger.MarkFailed(delivery.ID, code, body); err != nil {
			s.logger.Error("mark delivery failed", zap.String("delivery", delivery.ID), zap.Error(err))
		}
		status = models.DeliveryStatusFailed
	}

	count, err := s.registry.IncrementFailures(hook.ID)
	if err != nil {
		s.logger.Error("increment failure counter", zap.String("webhook", hook.ID), zap.Error(err))
		return Outcome{Status: status, ResponseCode: code}
	}
	if count >= s.cfg.CircuitBreakerThreshold {
		// Takes effect for future fan-outs; in-flight deliveries created
		// before disablement still run to their own terminal outcome.
		s.logger.Warn("circuit breaker tripped",
			zap.String("webhook", hook.ID),
			zap.Int("consecutiveFailures", count),
		)
		if err := s.registry.Disable(hook.ID, models.DisabledReasonCircuitBreaker); err != nil {
			s.logger.Error("disable webhook", zap.String("webhook", hook.ID), zap.Error(err))
		}
	}

	return Outcome{Status: status, ResponseCode: code}
}

// delayFor looks up the backoff for the given attempt number, clamping to the
// last schedule entry.
func (s *Sender) delayFor(attempt int) time.Duration {
	if len(s.delays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(s.delays) {
		idx = len(s.delays) - 1
	}
	return s.delays[idx]
}
