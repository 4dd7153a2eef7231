// Package summary folds session telemetry into the status record the
// backend stores for each maze device.
package summary

import (
	"fmt"
	"strings"
	"time"
)

const (
	// MaxDeviceIDLength is the longest device id the backend accepts
	MaxDeviceIDLength = 50

	// FutureTolerance is how far ahead of the local clock a timestamp may be
	FutureTolerance = time.Minute
)

// Record is one maze device status as the backend stores it.
type Record struct {
	ID              int64  `json:"id,omitempty"`
	DeviceID        string `json:"device_id"`
	AlarmActive     bool   `json:"alarm_active"`
	MazeCompleted   bool   `json:"maze_completed"`
	HallSensorValue bool   `json:"hall_sensor_value"`
	BatteryLevel    int    `json:"battery_level"`
	Timestamp       string `json:"timestamp"`
}

// ValidationError lists every rule a record broke.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid maze device status: " + strings.Join(e.Problems, "; ")
}

// Validate checks r against the backend rules. All violations are reported
// together in a *ValidationError.
func (r Record) Validate() error {
	return r.validateAt(time.Now())
}

func (r Record) validateAt(now time.Time) error {
	var problems []string

	if r.DeviceID == "" || len(r.DeviceID) > MaxDeviceIDLength {
		problems = append(problems, fmt.Sprintf("device_id is required and must be at most %d characters", MaxDeviceIDLength))
	}
	if r.BatteryLevel < 0 || r.BatteryLevel > 100 {
		problems = append(problems, "battery_level must be between 0 and 100")
	}

	ts, err := time.Parse(time.RFC3339, r.Timestamp)
	switch {
	case err != nil:
		problems = append(problems, "timestamp must be in RFC3339 format (e.g., 2006-01-02T15:04:05Z07:00)")
	case ts.After(now.Add(FutureTolerance)):
		problems = append(problems, "timestamp must not be in the future")
	}

	if r.MazeCompleted && !r.HallSensorValue {
		problems = append(problems, "maze_completed cannot be true when hall_sensor_value is false")
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
