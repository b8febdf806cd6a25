package bus

import (
	"context"
	"errors"
	"sync"
)

// MemoryBus is an in-process Bus used in tests and local development.
// Publish dispatches synchronously to the registered handler, so callers can
// assert on the handler's side effects immediately after publishing.
type MemoryBus struct {
	mu      sync.Mutex
	handler HandlerFunc
	ctx     context.Context
	acked   int
	dropped int
}

func NewMemoryBus() *MemoryBus { return &MemoryBus{} }

func (b *MemoryBus) Start(ctx context.Context, handler HandlerFunc) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ctx = ctx
	b.handler = handler
	return nil
}

func (b *MemoryBus) Stop() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = nil
	return nil
}

// Publish delivers one message to the handler and returns its disposition.
func (b *MemoryBus) Publish(routingKey string, body []byte) (Disposition, error) {
	b.mu.Lock()
	handler := b.handler
	ctx := b.ctx
	b.mu.Unlock()
	if handler == nil {
		return Discard, errors.New("bus not started")
	}

	disp := handler(ctx, Message{RoutingKey: routingKey, Body: body})
	b.mu.Lock()
	if disp == Ack {
		b.acked++
	} else {
		b.dropped++
	}
	b.mu.Unlock()
	return disp, nil
}

// Acked returns how many published messages were acknowledged.
func (b *MemoryBus) Acked() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.acked
}

// Dropped returns how many published messages were discarded.
func (b *MemoryBus) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}
