package device

import "fmt"

// Handle identifies one physical device discovered during a scan.
// It is immutable; the epoch ties it to the scan cycle that produced it.
type Handle struct {
	ID   string // stable identifier (BLE address or platform UUID)
	Name string
	RSSI int

	epoch uint64
}

// NewHandle captures a handle from an advertisement seen during the scan cycle epoch.
func NewHandle(adv Advertisement, epoch uint64) Handle {
	return Handle{
		ID:    adv.Addr(),
		Name:  adv.LocalName(),
		RSSI:  adv.RSSI(),
		epoch: epoch,
	}
}

// HandleFromID builds a handle from a previously persisted device identifier.
// Such handles are not tied to a scan cycle.
func HandleFromID(id, name string) Handle {
	return Handle{ID: id, Name: name}
}

// Epoch returns the scan cycle the handle belongs to; zero means persisted.
func (h Handle) Epoch() uint64 {
	return h.epoch
}

// IsZero reports whether h carries no identifier.
func (h Handle) IsZero() bool {
	return h.ID == ""
}

func (h Handle) String() string {
	if h.Name == "" {
		return h.ID
	}
	return fmt.Sprintf("%s (%s)", h.Name, h.ID)
}
