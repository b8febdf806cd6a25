package webhook

import (
	"context"

	"github.com/stayspace/hooks/internal/models"
	"go.uber.org/zap"
)

// retryLedger is the slice of the Ledger the worker reads and writes.
type retryLedger interface {
	GetPendingRetries() ([]models.WebhookDeliveryModel, error)
	MarkFailed(id string, responseCode *int, responseBody string) error
}

// retryRegistry is the slice of the Registry the worker reads.
type retryRegistry interface {
	GetByID(id string) (*models.WebhookModel, error)
}

// RetryWorker advances pending_retry deliveries whose scheduled time has
// passed. It is driven by the interval scheduler; cancelling the scheduler's
// context stops the sweeps.
type RetryWorker struct {
	ledger   retryLedger
	registry retryRegistry
	sender   deliverer
	logger   *zap.Logger
}

func NewRetryWorker(ledger retryLedger, registry retryRegistry, sender deliverer, logger *zap.Logger) *RetryWorker {
	return &RetryWorker{ledger: ledger, registry: registry, sender: sender, logger: logger}
}

// Tick processes one bounded batch of due retries. One delivery's failure
// never aborts the remainder of the batch.
func (w *RetryWorker) Tick(ctx context.Context) error {
	due, err := w.ledger.GetPendingRetries()
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	w.logger.Info("retry sweep", zap.Int("due", len(due)))
	for i := range due {
		delivery := &due[i]

		hook, err := w.registry.GetByID(delivery.WebhookID)
		if err != nil {
			w.logger.Error("resolve webhook for retry",
				zap.String("delivery", delivery.ID),
				zap.Error(err),
			)
			continue
		}
		if hook == nil || !hook.IsActive {
			// Terminal: never deliver to a dead or disabled subscriber, and
			// never count it against the circuit breaker.
			if err := w.ledger.MarkFailed(delivery.ID, nil, "Webhook disabled or deleted"); err != nil {
				w.logger.Error("mark orphaned retry failed",
					zap.String("delivery", delivery.ID),
					zap.Error(err),
				)
			}
			continue
		}

		w.sender.Deliver(ctx, hook, delivery)
	}
	return nil
}
