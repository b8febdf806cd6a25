package webhook

import (
	"context"
	"encoding/json"
	"time"

	"github.com/stayspace/hooks/internal/bus"
	"github.com/stayspace/hooks/internal/models"
	"go.uber.org/zap"
)

// fanoutRegistry is the slice of the Registry the consumer reads.
type fanoutRegistry interface {
	GetActiveForEvent(eventType string) ([]models.WebhookModel, error)
}

// fanoutLedger is the slice of the Ledger the consumer writes.
type fanoutLedger interface {
	Create(in CreateDeliveryInput) (*models.WebhookDeliveryModel, error)
}

// deliverer decouples fan-out from the concrete Sender.
type deliverer interface {
	Deliver(ctx context.Context, hook *models.WebhookModel, delivery *models.WebhookDeliveryModel) Outcome
}

// busEvent is the shape of messages published by the reservation services.
type busEvent struct {
	ID         string          `json:"id"`
	OccurredAt *time.Time      `json:"occurredAt"`
	Data       json.RawMessage `json:"data"`
}

// Consumer bridges the event bus and webhook fan-out: it resolves routing
// keys to event types, creates ledger rows for each matching subscriber and
// invokes the sender. It is the only writer of non-test ledger rows.
type Consumer struct {
	bus      bus.Bus
	registry fanoutRegistry
	ledger   fanoutLedger
	sender   deliverer
	logger   *zap.Logger
}

func NewConsumer(b bus.Bus, registry fanoutRegistry, ledger fanoutLedger, sender deliverer, logger *zap.Logger) *Consumer {
	return &Consumer{bus: b, registry: registry, ledger: ledger, sender: sender, logger: logger}
}

// Start opens the bus subscription. A startup failure (bus unreachable) is
// returned to the caller, which logs it without crashing the process.
func (c *Consumer) Start(ctx context.Context) error {
	return c.bus.Start(ctx, c.handleMessage)
}

// Stop tears down the bus subscription.
func (c *Consumer) Stop() error {
	return c.bus.Stop()
}

func (c *Consumer) handleMessage(ctx context.Context, msg bus.Message) bus.Disposition {
	var event busEvent
	if err := json.Unmarshal(msg.Body, &event); err != nil {
		// Poison message: discard without requeue or it would loop forever.
		c.logger.Warn("malformed bus message discarded",
			zap.String("routingKey", msg.RoutingKey),
			zap.Error(err),
		)
		return bus.Discard
	}

	eventType, ok := EventTypeForRoutingKey(msg.RoutingKey)
	if !ok {
		// Forward-compatible with topics this consumer does not understand.
		return bus.Ack
	}

	hooks, err := c.registry.GetActiveForEvent(string(eventType))
	if err != nil {
		c.logger.Error("fan-out query failed",
			zap.String("eventType", string(eventType)),
			zap.Error(err),
		)
		return bus.Ack
	}

	occurredAt := time.Now()
	if event.OccurredAt != nil {
		occurredAt = *event.OccurredAt
	}
	data := event.Data
	if len(data) == 0 {
		data = json.RawMessage(msg.Body)
	}

	var eventID *string
	if event.ID != "" {
		id := event.ID
		eventID = &id
	}

	// One subscriber's failure never blocks the rest of the fan-out or the
	// ack; sender failures end up as ledger state, not errors.
	for i := range hooks {
		hook := &hooks[i]

		payload, err := buildPayload(eventType, occurredAt, data)
		if err != nil {
			c.logger.Error("build payload", zap.String("webhook", hook.ID), zap.Error(err))
			continue
		}
		delivery, err := c.ledger.Create(CreateDeliveryInput{
			WebhookID: hook.ID,
			EventID:   eventID,
			EventType: string(eventType),
			Payload:   payload,
		})
		if err != nil {
			c.logger.Error("create delivery", zap.String("webhook", hook.ID), zap.Error(err))
			continue
		}
		c.sender.Deliver(ctx, hook, delivery)
	}

	return bus.Ack
}
