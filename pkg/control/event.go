package control

import "time"

type EventKind string

const (
	EventDrive         EventKind = "drive"
	EventConveyorStart EventKind = "conveyor_start"
	EventConveyorStop  EventKind = "conveyor_stop"
)

// Event is a diagnostic notification emitted when the controller changes an
// actuator state. Events are informational only.
type Event struct {
	Kind      EventKind `json:"kind"`
	Action    Action    `json:"action,omitempty"`
	Code      string    `json:"code,omitempty"`
	Distance  float64   `json:"distance_cm,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

type Notifier interface {
	Notify(Event)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(Event)

func (f NotifierFunc) Notify(e Event) { f(e) }

type discard struct{}

func (discard) Notify(Event) {}

func orDiscard(n Notifier) Notifier {
	if n == nil {
		return discard{}
	}
	return n
}
