// Package goble implements device.Transport on top of github.com/go-ble/ble.
//
// The platform radio is created lazily through DeviceFactory on first use, so
// constructing a Transport never touches the hardware. Tests replace
// DeviceFactory with a mocked ble.Device.
package goble
