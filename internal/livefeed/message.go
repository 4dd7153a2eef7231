package livefeed

import (
	"time"

	"github.com/srg/mazelink/internal/codec"
	"github.com/srg/mazelink/internal/session"
)

// Message types on the feed
const (
	TypeTimer       = "timer"
	TypeStatus      = "status"
	TypeDecodeError = "decode_error"
	TypeState       = "state"
)

// Message is one feed frame as sent to dashboards.
type Message struct {
	Type      string    `json:"type"`
	SessionID string    `json:"session_id,omitempty"`
	DeviceID  string    `json:"device_id,omitempty"`
	At        time.Time `json:"at"`
	Data      any       `json:"data"`
}

type TimerData struct {
	Seconds int `json:"seconds"`
}

type StatusData struct {
	Status string `json:"status"`
	Raw    string `json:"raw"`
}

// DecodeErrorData carries the offending payload as wire text.
type DecodeErrorData struct {
	Channel string `json:"channel"`
	Payload string `json:"payload"`
	Error   string `json:"error"`
}

type StateData struct {
	From       string `json:"from"`
	To         string `json:"to"`
	Error      string `json:"error,omitempty"`
	Unexpected bool   `json:"unexpected,omitempty"`
}

// NewMessage converts a session event into a feed frame.
// Events without their own timestamp are stamped with now.
func NewMessage(ev session.Event, now time.Time) Message {
	switch e := ev.(type) {
	case session.TimerTick:
		return Message{Type: TypeTimer, At: stamp(e.At, now), Data: TimerData{Seconds: e.Seconds}}

	case session.StatusChanged:
		return Message{Type: TypeStatus, At: stamp(e.At, now), Data: StatusData{
			Status: e.Status.Kind.String(),
			Raw:    e.Status.Raw,
		}}

	case session.DecodeError:
		data := DecodeErrorData{
			Channel: string(e.Channel),
			Payload: codec.EncodeWireText(e.Payload),
		}
		if e.Err != nil {
			data.Error = e.Err.Error()
		}
		return Message{Type: TypeDecodeError, At: stamp(e.At, now), Data: data}

	case session.StateChanged:
		data := StateData{From: e.From.String(), To: e.To.String(), Unexpected: e.Unexpected}
		if e.Err != nil {
			data.Error = e.Err.Error()
		}
		return Message{Type: TypeState, At: now, Data: data}
	}
	return Message{Type: "unknown", At: now}
}

func stamp(at, now time.Time) time.Time {
	if at.IsZero() {
		return now.UTC()
	}
	return at.UTC()
}
