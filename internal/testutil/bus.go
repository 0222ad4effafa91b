package testutil

import (
	"sync"

	"nrelay/internal/relay"
)

// CaptureBus records every published event and forwards it to subscribers,
// like the in-process bus but with the history inspectable by tests.
type CaptureBus struct {
	mu        sync.Mutex
	published []*relay.Event
	handlers  []func(e *relay.Event)
}

func NewCaptureBus() *CaptureBus {
	return &CaptureBus{}
}

func (b *CaptureBus) Publish(e *relay.Event) error {
	b.mu.Lock()
	b.published = append(b.published, e)
	handlers := b.handlers
	b.mu.Unlock()

	for _, fn := range handlers {
		fn(e)
	}
	return nil
}

func (b *CaptureBus) Subscribe(fn func(e *relay.Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers = append(b.handlers, fn)
	return nil
}

func (b *CaptureBus) Close() error { return nil }

// Published returns a copy of every event published so far.
func (b *CaptureBus) Published() []*relay.Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]*relay.Event, len(b.published))
	copy(out, b.published)
	return out
}

var _ relay.Bus = (*CaptureBus)(nil)
