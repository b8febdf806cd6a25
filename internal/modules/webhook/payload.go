package webhook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// deliveryPayload is the wire contract POSTed to subscriber endpoints.
type deliveryPayload struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Timestamp string          `json:"timestamp"`
	Data      json.RawMessage `json:"data"`
}

// buildPayload serializes the outbound body exactly once. The returned string
// is stored on the ledger row and resent unchanged on every retry, so the
// signed bytes always match the transmitted bytes.
func buildPayload(eventType EventType, occurredAt time.Time, data json.RawMessage) (string, error) {
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}
	payload := deliveryPayload{
		ID:        "del_" + uuid.New().String(),
		Type:      string(eventType),
		Timestamp: occurredAt.UTC().Format(time.RFC3339),
		Data:      data,
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal delivery payload: %w", err)
	}
	return string(raw), nil
}
