// Package bus provides Bus implementations for event fan-out between
// the ingest path and live subscription delivery. The memory bus serves
// a single relay instance; the MQTT bus links multiple instances through
// a shared broker.
package bus

import (
	"sync"

	"nrelay/internal/relay"
)

// MemoryBus is an in-process Bus. Publish invokes every subscribed
// handler synchronously on the publishing goroutine.
type MemoryBus struct {
	mu       sync.RWMutex
	handlers []func(e *relay.Event)
	closed   bool
}

// NewMemoryBus creates an in-process bus.
func NewMemoryBus() *MemoryBus {
	return &MemoryBus{}
}

func (b *MemoryBus) Publish(e *relay.Event) error {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return nil
	}
	handlers := b.handlers
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn(e)
	}
	return nil
}

func (b *MemoryBus) Subscribe(fn func(e *relay.Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
	return nil
}

func (b *MemoryBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.handlers = nil
	return nil
}

var _ relay.Bus = (*MemoryBus)(nil)
