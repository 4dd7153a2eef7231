// Package codec converts between attribute payloads and typed telemetry values.
//
// The maze device publishes its timer as decimal text (elapsed seconds) and its
// game status as a short upper-case word. Commands are plain UTF-8 text. When a
// payload has to travel as text (JSON feeds, logs) it is carried as standard
// base64, the same wire text the mobile BLE bindings use.
package codec

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// MaxCommandLength is the largest command that fits a single ATT write (ATT_MTU 23 minus header).
const MaxCommandLength = 20

// Channel names the attribute a payload arrived on
type Channel string

const (
	ChannelTimer   Channel = "timer"
	ChannelStatus  Channel = "status"
	ChannelControl Channel = "control"
)

// DecodeError reports a payload that could not be decoded.
// It is a per-notification diagnostic, never a session failure.
type DecodeError struct {
	Channel Channel
	Payload []byte
	Reason  string
	Err     error
}

func (e *DecodeError) Error() string {
	msg := fmt.Sprintf("decode %s payload %q: %s", e.Channel, e.Payload, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// trimPayload strips whitespace and the NUL padding some firmware leaves in fixed-size buffers
func trimPayload(b []byte) string {
	return strings.TrimSpace(strings.TrimRight(string(b), "\x00"))
}

// DecodeTimer parses the timer attribute into elapsed seconds.
// On failure it returns 0 together with a *DecodeError, so callers that
// want the best-effort value still get it but never silently.
func DecodeTimer(payload []byte) (int, error) {
	text := trimPayload(payload)
	if text == "" {
		return 0, &DecodeError{Channel: ChannelTimer, Payload: payload, Reason: "empty payload"}
	}

	n, err := strconv.Atoi(text)
	if err != nil {
		return 0, &DecodeError{Channel: ChannelTimer, Payload: payload, Reason: "not a decimal integer", Err: err}
	}
	if n < 0 {
		return 0, &DecodeError{Channel: ChannelTimer, Payload: payload, Reason: "negative timer value"}
	}
	return n, nil
}

// DecodeStatus parses the status attribute into a Status variant.
// Unrecognised words decode to StatusUnknown carrying the raw text.
func DecodeStatus(payload []byte) (Status, error) {
	if !utf8.Valid(payload) {
		return Status{}, &DecodeError{Channel: ChannelStatus, Payload: payload, Reason: "invalid UTF-8"}
	}
	text := trimPayload(payload)
	if text == "" {
		return Status{}, &DecodeError{Channel: ChannelStatus, Payload: payload, Reason: "empty payload"}
	}
	return ParseStatus(text), nil
}

// EncodeCommand converts a command into the bytes written to the control attribute.
func EncodeCommand(cmd string) ([]byte, error) {
	switch {
	case cmd == "":
		return nil, fmt.Errorf("command is empty")
	case !utf8.ValidString(cmd):
		return nil, fmt.Errorf("command is not valid UTF-8")
	case len(cmd) > MaxCommandLength:
		return nil, fmt.Errorf("command is %d bytes, limit is %d", len(cmd), MaxCommandLength)
	}
	return []byte(cmd), nil
}

// EncodeWireText encodes raw attribute bytes as wire text.
func EncodeWireText(b []byte) string {
	return base64.StdEncoding.EncodeToString(b)
}

// DecodeWireText decodes wire text back into raw attribute bytes.
func DecodeWireText(s string) ([]byte, error) {
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid wire text: %w", err)
	}
	return b, nil
}
