package relay

import "github.com/monetiq/realtime/src/types"

// Relay mirrors the inbound event stream to sibling dashboard processes,
// so workers and exporters consume events without holding their own
// upstream connection.
type Relay interface {
	// Publish forwards an event to sibling processes.
	Publish(evt types.Event) error

	// Start begins listening for events from sibling processes.
	Start() error

	// Stop shuts down the relay connection.
	Stop() error

	// Available reports whether the relay is connected and operational.
	Available() bool
}

// EventSink receives events injected from sibling processes. Implemented
// by the event multiplexer.
type EventSink interface {
	Publish(evt types.Event)
}
