package relay

import "sync"

// Delivery is one matched event handed to a connection's delivery queue,
// tagged with the subscription that matched it.
type Delivery struct {
	SubID string
	Event *Event
}

// Registry tracks, per live connection, the subscription-id to filter-set
// mapping consulted on every bus event. It is safe for concurrent use from
// all connection goroutines and the bus delivery goroutine.
type Registry struct {
	mu     sync.RWMutex
	conns  map[string]*registration
	logger Logger
}

type registration struct {
	sink chan<- Delivery
	subs map[string][]Filter
}

// NewRegistry creates an empty Registry.
func NewRegistry(logger Logger) *Registry {
	return &Registry{conns: make(map[string]*registration), logger: logger}
}

// Register adds a connection with its delivery queue. Deliveries are
// non-blocking: a connection whose queue is full misses events rather than
// stalling fan-out to everyone else.
func (r *Registry) Register(connID string, sink chan<- Delivery) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[connID] = &registration{sink: sink, subs: make(map[string][]Filter)}
}

// SetSubscription installs or replaces a subscription wholesale. Reissuing
// a REQ with an existing id swaps the filter set.
func (r *Registry) SetSubscription(connID, subID string, filters []Filter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.conns[connID]; ok {
		reg.subs[subID] = filters
	}
}

// RemoveSubscription drops one subscription; unknown ids are a no-op.
func (r *Registry) RemoveSubscription(connID, subID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if reg, ok := r.conns[connID]; ok {
		delete(reg.subs, subID)
	}
}

// Unregister removes a connection and all its subscriptions.
func (r *Registry) Unregister(connID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, connID)
}

// Subscriptions returns the filter sets currently held for a connection.
func (r *Registry) Subscriptions(connID string) map[string][]Filter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	reg, ok := r.conns[connID]
	if !ok {
		return nil
	}
	out := make(map[string][]Filter, len(reg.subs))
	for id, fs := range reg.subs {
		out[id] = fs
	}
	return out
}

// Dispatch evaluates the event against every filter of every subscription of
// every connection and queues a Delivery per matching subscription. One
// subscription receives the event at most once even when several of its
// filters match.
func (r *Registry) Dispatch(e *Event) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for connID, reg := range r.conns {
		for subID, filters := range reg.subs {
			matched := false
			for i := range filters {
				if filters[i].Matches(e) {
					matched = true
					break
				}
			}
			if !matched {
				continue
			}
			select {
			case reg.sink <- Delivery{SubID: subID, Event: e}:
			default:
				r.logger.Warn("delivery queue full, dropping event", "conn", connID, "sub", subID, "event", e.ID)
			}
		}
	}
}
