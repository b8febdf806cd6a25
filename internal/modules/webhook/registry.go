package webhook

import (
	"errors"
	"fmt"

	"github.com/stayspace/hooks/internal/models"
	"gorm.io/gorm"
)

// Registry owns webhook registrations: the source of truth for who receives
// which events and whether a subscriber is currently eligible.
type Registry struct {
	db *gorm.DB
}

func NewRegistry(db *gorm.DB) *Registry { return &Registry{db: db} }

type CreateWebhookInput struct {
	URL          string
	EventFilters []string
	Description  string
	CreatedBy    string
}

type UpdateWebhookInput struct {
	URL          *string
	EventFilters []string
	Description  *string
	IsActive     *bool
}

var errEmptyEventFilters = errors.New("eventFilters must contain at least one known event type")

// Create registers a webhook and generates its signing secret. The secret is
// stored in plaintext but only ever returned to the caller here, at creation.
func (r *Registry) Create(in CreateWebhookInput) (*models.WebhookModel, error) {
	filters := normalizeEventFilters(in.EventFilters)
	if len(filters) == 0 {
		return nil, errEmptyEventFilters
	}

	secret, err := newSecret()
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}

	w := models.WebhookModel{
		URL:          in.URL,
		Secret:       secret,
		EventFilters: filters,
		Description:  in.Description,
		IsActive:     true,
		CreatedBy:    in.CreatedBy,
	}
	return &w, r.db.Create(&w).Error
}

// List returns all webhooks, newest first. Deactivated rows stay visible so
// admins can see deleted/tripped subscribers alongside active ones.
func (r *Registry) List() ([]models.WebhookModel, error) {
	var items []models.WebhookModel
	return items, r.db.Order("created_at DESC").Find(&items).Error
}

// GetByID returns one webhook, or (nil, nil) when absent.
func (r *Registry) GetByID(id string) (*models.WebhookModel, error) {
	var w models.WebhookModel
	if err := r.db.First(&w, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &w, nil
}

// Update applies a partial edit. Setting IsActive=true re-arms the circuit
// breaker: disabledReason is cleared and consecutiveFailures reset to 0.
func (r *Registry) Update(id string, in UpdateWebhookInput) (*models.WebhookModel, error) {
	w, err := r.GetByID(id)
	if err != nil || w == nil {
		return w, err
	}

	updates := map[string]interface{}{}
	if in.URL != nil {
		updates["url"] = *in.URL
	}
	if in.EventFilters != nil {
		filters := normalizeEventFilters(in.EventFilters)
		if len(filters) == 0 {
			return nil, errEmptyEventFilters
		}
		updates["event_filters"] = filters
	}
	if in.Description != nil {
		updates["description"] = *in.Description
	}
	if in.IsActive != nil {
		updates["is_active"] = *in.IsActive
		if *in.IsActive {
			updates["disabled_reason"] = nil
			updates["consecutive_failures"] = 0
		}
	}

	if err := r.db.Model(w).Updates(updates).Error; err != nil {
		return nil, err
	}
	return r.GetByID(id)
}

// SoftDelete deactivates a webhook with reason "deleted". Rows are never hard
// deleted so delivery history stays queryable. Deleting an already-deleted
// webhook is a no-op; only a never-existing id reports not found.
func (r *Registry) SoftDelete(id string) (bool, error) {
	w, err := r.GetByID(id)
	if err != nil {
		return false, err
	}
	if w == nil {
		return false, nil
	}
	return true, r.db.Model(w).Updates(map[string]interface{}{
		"is_active":       false,
		"disabled_reason": models.DisabledReasonDeleted,
	}).Error
}

// GetActiveForEvent is the fan-out query: every active webhook whose filter
// set includes eventType. Filters are a serialized JSON column, so membership
// is checked in Go after narrowing to active rows.
func (r *Registry) GetActiveForEvent(eventType string) ([]models.WebhookModel, error) {
	var hooks []models.WebhookModel
	if err := r.db.Where("is_active = ?", true).Find(&hooks).Error; err != nil {
		return nil, err
	}

	out := hooks[:0]
	for _, hook := range hooks {
		if filtersContain(hook.EventFilters, eventType) {
			out = append(out, hook)
		}
	}
	return out, nil
}

// IncrementFailures atomically bumps consecutiveFailures at the storage layer
// and returns the new count. Concurrent failed deliveries for the same
// webhook must not lose updates, so this is never read-modify-write.
func (r *Registry) IncrementFailures(id string) (int, error) {
	err := r.db.Model(&models.WebhookModel{}).
		Where("id = ?", id).
		UpdateColumn("consecutive_failures", gorm.Expr("consecutive_failures + 1")).Error
	if err != nil {
		return 0, err
	}

	var count int
	err = r.db.Model(&models.WebhookModel{}).
		Where("id = ?", id).
		Pluck("consecutive_failures", &count).Error
	return count, err
}

// ResetFailures zeroes the failure counter (called on any successful delivery).
func (r *Registry) ResetFailures(id string) error {
	return r.db.Model(&models.WebhookModel{}).
		Where("id = ?", id).
		UpdateColumn("consecutive_failures", 0).Error
}

// Disable deactivates a webhook with the given reason.
func (r *Registry) Disable(id, reason string) error {
	return r.db.Model(&models.WebhookModel{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"is_active":       false,
			"disabled_reason": reason,
		}).Error
}
