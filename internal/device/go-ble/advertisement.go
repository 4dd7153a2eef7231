package goble

import (
	"github.com/go-ble/ble"
	"github.com/srg/mazelink/internal/device"
)

// Advertisement adapts ble.Advertisement to device.Advertisement
type Advertisement struct {
	adv ble.Advertisement
}

// NewAdvertisement wraps adv
func NewAdvertisement(adv ble.Advertisement) *Advertisement {
	return &Advertisement{adv: adv}
}

func (a *Advertisement) LocalName() string { return a.adv.LocalName() }
func (a *Advertisement) RSSI() int         { return a.adv.RSSI() }
func (a *Advertisement) Connectable() bool { return a.adv.Connectable() }

func (a *Advertisement) Addr() string {
	if a.adv.Addr() == nil {
		return ""
	}
	return a.adv.Addr().String()
}

// Services returns the advertised service UUIDs in normalized form
func (a *Advertisement) Services() []string {
	svcs := a.adv.Services()
	result := make([]string, len(svcs))
	for i, u := range svcs {
		result[i] = device.NormalizeUUID(u.String())
	}
	return result
}

var _ device.Advertisement = (*Advertisement)(nil)
