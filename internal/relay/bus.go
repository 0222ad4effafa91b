package relay

// Bus is the process-wide (or cross-instance) fan-out channel carrying
// freshly ingested events to every relay instance. Exactly one publish
// happens per successful ingest, including deletion and ephemeral events.
type Bus interface {
	// Publish hands an ingested event to the bus.
	Publish(e *Event) error

	// Subscribe registers a handler invoked for every event carried by the
	// bus, including events published by this instance. Handlers must not
	// block; slow consumers are the handler's problem, not the bus's.
	Subscribe(fn func(e *Event)) error

	// Close tears the bus down.
	Close() error
}
