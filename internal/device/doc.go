// Package device defines the transport boundary between the session state
// machine and the platform Bluetooth Low Energy radio.
//
// It provides:
//   - Transport and Link interfaces implemented by the go-ble adapter and by test fakes
//   - Handle, the immutable identity of a discovered device scoped to one scan cycle
//   - Typed connection errors and NormalizeError for radio stack error strings
//   - UUID normalization shared by adapters and configuration
package device
