package webhook

import (
	"errors"
	"math"
	"time"

	"github.com/stayspace/hooks/internal/models"
	"gorm.io/gorm"
)

const (
	maxResponseBodyBytes  = 1024
	pendingRetryBatchSize = 100
	defaultHistoryLimit   = 20
)

// Ledger is the durable record of every delivery attempt: the retry worker's
// work queue and the audit trail behind the admin-facing stats.
type Ledger struct {
	db *gorm.DB
}

func NewLedger(db *gorm.DB) *Ledger { return &Ledger{db: db} }

type CreateDeliveryInput struct {
	WebhookID string
	EventID   *string
	EventType string
	Payload   string
}

// DeliveryStats aggregates a webhook's delivery history.
type DeliveryStats struct {
	Total              int64   `json:"totalSent"`
	Successful         int64   `json:"successful"`
	Failed             int64   `json:"failed"`
	SuccessRate        *int    `json:"successRate"`
	LastDeliveryStatus *string `json:"lastDeliveryStatus"`
}

// Create inserts a delivery in the pending state with zero attempts. The
// payload is final at this point; retries resend it byte for byte.
func (l *Ledger) Create(in CreateDeliveryInput) (*models.WebhookDeliveryModel, error) {
	d := models.WebhookDeliveryModel{
		WebhookID: in.WebhookID,
		EventID:   in.EventID,
		EventType: in.EventType,
		Payload:   in.Payload,
		Status:    models.DeliveryStatusPending,
	}
	return &d, l.db.Create(&d).Error
}

// GetByID returns one delivery, or (nil, nil) when absent.
func (l *Ledger) GetByID(id string) (*models.WebhookDeliveryModel, error) {
	var d models.WebhookDeliveryModel
	if err := l.db.First(&d, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// MarkSuccess records a terminal successful attempt.
func (l *Ledger) MarkSuccess(id string, responseCode int, responseBody string) error {
	now := time.Now()
	return l.update(id, map[string]interface{}{
		"status":        models.DeliveryStatusSuccess,
		"attempts":      gorm.Expr("attempts + 1"),
		"response_code": responseCode,
		"response_body": truncateBody(responseBody),
		"next_retry_at": nil,
		"completed_at":  now,
	})
}

// MarkFailed records a terminal failed attempt (retries exhausted, or the
// webhook vanished before a retry could run).
func (l *Ledger) MarkFailed(id string, responseCode *int, responseBody string) error {
	now := time.Now()
	return l.update(id, map[string]interface{}{
		"status":        models.DeliveryStatusFailed,
		"attempts":      gorm.Expr("attempts + 1"),
		"response_code": responseCode,
		"response_body": truncateBody(responseBody),
		"next_retry_at": nil,
		"completed_at":  now,
	})
}

// MarkPendingRetry records a failed attempt that is still within the retry
// budget and schedules the next one.
func (l *Ledger) MarkPendingRetry(id string, responseCode *int, responseBody string, nextRetryAt time.Time) error {
	return l.update(id, map[string]interface{}{
		"status":        models.DeliveryStatusPendingRetry,
		"attempts":      gorm.Expr("attempts + 1"),
		"response_code": responseCode,
		"response_body": truncateBody(responseBody),
		"next_retry_at": nextRetryAt,
	})
}

func (l *Ledger) update(id string, updates map[string]interface{}) error {
	return l.db.Model(&models.WebhookDeliveryModel{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// GetPendingRetries returns up to 100 due retries, oldest first. The cap
// bounds one sweep of the retry worker.
func (l *Ledger) GetPendingRetries() ([]models.WebhookDeliveryModel, error) {
	var items []models.WebhookDeliveryModel
	err := l.db.
		Where("status = ? AND next_retry_at <= ?", models.DeliveryStatusPendingRetry, time.Now()).
		Order("next_retry_at ASC").
		Limit(pendingRetryBatchSize).
		Find(&items).Error
	return items, err
}

// GetForWebhook returns the most recent deliveries for one webhook.
func (l *Ledger) GetForWebhook(webhookID string, limit int) ([]models.WebhookDeliveryModel, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	var items []models.WebhookDeliveryModel
	err := l.db.
		Where("webhook_id = ?", webhookID).
		Order("created_at DESC").
		Limit(limit).
		Find(&items).Error
	return items, err
}

// GetStats aggregates delivery counts and the most recent delivery's status.
// SuccessRate is a rounded percentage, nil when there are no deliveries.
func (l *Ledger) GetStats(webhookID string) (*DeliveryStats, error) {
	stats := &DeliveryStats{}

	type row struct {
		Status string
		N      int64
	}
	var rows []row
	err := l.db.Model(&models.WebhookDeliveryModel{}).
		Select("status, COUNT(*) AS n").
		Where("webhook_id = ?", webhookID).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	for _, r := range rows {
		stats.Total += r.N
		switch r.Status {
		case models.DeliveryStatusSuccess:
			stats.Successful += r.N
		case models.DeliveryStatusFailed:
			stats.Failed += r.N
		}
	}

	if stats.Total > 0 {
		rate := int(math.Round(float64(stats.Successful) / float64(stats.Total) * 100))
		stats.SuccessRate = &rate

		var last models.WebhookDeliveryModel
		err = l.db.
			Where("webhook_id = ?", webhookID).
			Order("created_at DESC").
			First(&last).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
		if err == nil {
			stats.LastDeliveryStatus = &last.Status
		}
	}

	return stats, nil
}

func truncateBody(body string) *string {
	if len(body) > maxResponseBodyBytes {
		body = body[:maxResponseBodyBytes]
	}
	return &body
}
