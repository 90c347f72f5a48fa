package order

import "time"

// EventType classifies ledger notifications.
type EventType string

const (
	EventCreated       EventType = "ORDER_CREATED"
	EventFilled        EventType = "ORDER_FILLED"
	EventStatusChanged EventType = "ORDER_STATUS_CHANGED"
)

// Event carries a snapshot of the order after the change. FillQuantity
// and FillPrice are set for EventFilled only.
type Event struct {
	Type         EventType
	Order        Order
	FillQuantity int64
	FillPrice    float64
	At           time.Time
}

// Listener receives ledger events. Listeners are invoked after the
// per-order lock is released and must not block; anything expensive
// belongs on the listener's own goroutine.
type Listener interface {
	OnOrderEvent(Event)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(Event)

func (f ListenerFunc) OnOrderEvent(e Event) { f(e) }
