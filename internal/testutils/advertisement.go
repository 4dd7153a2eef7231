package testutils

import "github.com/srg/mazelink/internal/device"

// FakeAdvertisement is a static device.Advertisement.
type FakeAdvertisement struct {
	Address        string
	Name           string
	Signal         int
	NotConnectable bool
	ServiceUUIDs   []string
}

// NewAdvertisement creates a connectable advertisement without service data.
func NewAdvertisement(addr, name string, rssi int) *FakeAdvertisement {
	return &FakeAdvertisement{Address: addr, Name: name, Signal: rssi}
}

// WithServices returns the advertisement with the given service UUIDs attached.
func (a *FakeAdvertisement) WithServices(uuids ...string) *FakeAdvertisement {
	a.ServiceUUIDs = append(a.ServiceUUIDs, uuids...)
	return a
}

func (a *FakeAdvertisement) LocalName() string { return a.Name }
func (a *FakeAdvertisement) Addr() string      { return a.Address }
func (a *FakeAdvertisement) RSSI() int         { return a.Signal }
func (a *FakeAdvertisement) Connectable() bool { return !a.NotConnectable }
func (a *FakeAdvertisement) Services() []string {
	return device.NormalizeUUIDs(a.ServiceUUIDs)
}

var _ device.Advertisement = (*FakeAdvertisement)(nil)
