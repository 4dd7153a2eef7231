package main

import (
	"errors"
	"fmt"

	"github.com/srg/mazelink/internal/backend"
	"github.com/srg/mazelink/internal/device"
	"github.com/srg/mazelink/internal/identity"
	"github.com/srg/mazelink/internal/session"
	"github.com/srg/mazelink/internal/summary"
)

// Command-level errors
var (
	// ErrConnectionLost indicates the device went away and could not be reached again.
	ErrConnectionLost = errors.New("connection lost")

	// ErrNoDevice indicates no maze device answered the scan.
	ErrNoDevice = errors.New("no maze device found")
)

// FormatUserError turns an error chain into one line a player can act on.
func FormatUserError(err error) string {
	var (
		notFound *device.NotFoundError
		status   *backend.StatusError
		invalid  *summary.ValidationError
	)

	switch {
	case errors.Is(err, device.ErrBluetoothOff):
		return "Bluetooth is turned off. Turn it on and try again."
	case errors.Is(err, ErrNoDevice):
		return "No maze device found. Make sure it is powered on and nearby."
	case errors.Is(err, identity.ErrNoIdentity):
		return "No device remembered yet. Run 'mazelink watch' to pick one."
	case errors.Is(err, session.ErrConnectTimeout):
		return "The device did not answer in time. Move closer and try again."
	case errors.As(err, &notFound):
		return fmt.Sprintf("This does not look like a maze device: %s.", notFound)
	case errors.Is(err, session.ErrConnectRejected):
		return fmt.Sprintf("The device refused the connection (%v).", sessionCause(err))
	case errors.Is(err, session.ErrSubscriptionFailed):
		return "Connected, but the device would not stream telemetry. Power-cycle it and try again."
	case errors.Is(err, ErrConnectionLost):
		return "Lost the connection to the device."
	case errors.Is(err, session.ErrCommandFailed):
		return fmt.Sprintf("The device rejected the command (%v).", sessionCause(err))
	case errors.Is(err, session.ErrNotConnected):
		return "Not connected to a device."
	case errors.As(err, &status):
		return fmt.Sprintf("The backend refused the request: %s.", status)
	case errors.As(err, &invalid):
		return fmt.Sprintf("Game record not accepted: %s.", invalid)
	default:
		return err.Error()
	}
}

// sessionCause returns what a session error wraps, or err itself.
func sessionCause(err error) error {
	var serr *session.Error
	if errors.As(err, &serr) && serr.Err != nil {
		return serr.Err
	}
	return err
}
