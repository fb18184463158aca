package executor

import "time"

// Status is a committed snapshot of the connection state.
//
// BoundPort is 0 when no port is bound. Connected is always
// BoundPort != 0; the two are kept as separate fields for observers.
type Status struct {
	CurrentPort int  `json:"current_port"`
	BoundPort   int  `json:"port,omitempty"`
	Connected   bool `json:"is_connected"`
	Connecting  bool `json:"is_connecting"`
}

// Valid reports whether the snapshot satisfies the connected/bound invariant.
func (s Status) Valid() bool {
	return s.Connected == (s.BoundPort != 0)
}

// EventType identifies a connection notification.
type EventType string

const (
	// EventConnected fires when a port becomes bound, and when a connect
	// attempt ends with a port bound.
	EventConnected EventType = "connected"
	// EventDisconnected fires when a binding is dropped, when the current port
	// changes, and when a connect attempt ends with nothing bound.
	EventDisconnected EventType = "disconnected"
	// EventConnecting fires when a connect attempt starts and none was in flight.
	EventConnecting EventType = "connecting"
	// EventStillConnected fires once per ReconnectLoop cycle while the binding holds.
	EventStillConnected EventType = "still-connected"
)

// Event is delivered to Hub subscribers.
type Event struct {
	Type   EventType `json:"type"`
	Status Status    `json:"status"`
	Time   time.Time `json:"time"`
}
