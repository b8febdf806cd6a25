package models

import "time"

// Webhook disabled reasons.
const (
	DisabledReasonDeleted        = "deleted"
	DisabledReasonCircuitBreaker = "circuit_breaker"
)

// Delivery statuses.
const (
	DeliveryStatusPending      = "pending"
	DeliveryStatusSuccess      = "success"
	DeliveryStatusFailed       = "failed"
	DeliveryStatusPendingRetry = "pending_retry"
)

// WebhookModel is a subscriber registration: an endpoint plus the event types
// it wants and its signing secret. Rows are never hard-deleted; deletion sets
// IsActive=false with DisabledReason="deleted" so delivery history stays joinable.
type WebhookModel struct {
	Base
	URL                 string   `json:"url"                 gorm:"not null"`
	Secret              string   `json:"-"                   gorm:"not null"`
	EventFilters        []string `json:"eventFilters"        gorm:"serializer:json"`
	Description         string   `json:"description"`
	IsActive            bool     `json:"isActive"            gorm:"index;default:true"`
	DisabledReason      *string  `json:"disabledReason"`
	ConsecutiveFailures int      `json:"consecutiveFailures"`
	CreatedBy           string   `json:"createdBy"`

	Deliveries []WebhookDeliveryModel `json:"-" gorm:"foreignKey:WebhookID"`
}

func (WebhookModel) TableName() string { return "webhooks" }

// WebhookDeliveryModel is one fan-out of one event to one subscriber, including
// all its retries. Payload is written once at creation and never mutated so
// retries resend byte-identical content.
type WebhookDeliveryModel struct {
	Base
	WebhookID    string     `json:"webhookId"    gorm:"type:char(36);index;not null"`
	EventID      *string    `json:"eventId"`
	EventType    string     `json:"eventType"    gorm:"not null"`
	Payload      string     `json:"payload"      gorm:"type:longtext"`
	Status       string     `json:"status"       gorm:"index;default:pending"`
	Attempts     int        `json:"attempts"`
	ResponseCode *int       `json:"responseCode"`
	ResponseBody *string    `json:"responseBody" gorm:"type:text"`
	NextRetryAt  *time.Time `json:"nextRetryAt"  gorm:"index"`
	CompletedAt  *time.Time `json:"completedAt"`
}

func (WebhookDeliveryModel) TableName() string { return "webhook_deliveries" }
