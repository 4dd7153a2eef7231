package session

import (
	"fmt"
	"time"

	"github.com/srg/mazelink/internal/codec"
)

// Event is delivered on Session.Events.
// The set is closed: TimerTick, StatusChanged, DecodeError and StateChanged.
type Event interface {
	isEvent()
}

// TimerTick carries the elapsed game time the device reported.
type TimerTick struct {
	Seconds int
	At      time.Time
}

// StatusChanged carries a decoded status notification.
type StatusChanged struct {
	Status codec.Status
	At     time.Time
}

// DecodeError reports a notification the codec could not decode.
// The session stays Active.
type DecodeError struct {
	Channel codec.Channel
	Payload []byte
	Err     error
	At      time.Time
}

// StateChanged reports a lifecycle transition. Err holds the failure that
// caused it, if any. Unexpected is set when the transport dropped the link.
type StateChanged struct {
	From       State
	To         State
	Err        error
	Unexpected bool
}

func (TimerTick) isEvent()     {}
func (StatusChanged) isEvent() {}
func (DecodeError) isEvent()   {}
func (StateChanged) isEvent()  {}

func (e TimerTick) String() string {
	return fmt.Sprintf("timer %ds", e.Seconds)
}

func (e StatusChanged) String() string {
	return "status " + e.Status.String()
}

func (e DecodeError) String() string {
	return fmt.Sprintf("undecodable %s payload %q: %v", e.Channel, e.Payload, e.Err)
}

func (e StateChanged) String() string {
	s := fmt.Sprintf("%s -> %s", e.From, e.To)
	if e.Unexpected {
		s += " (unexpected)"
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}
