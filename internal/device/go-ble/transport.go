package goble

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/device"
)

// DeviceFactory creates the platform ble.Device (can be overridden in tests)
//
//nolint:revive // exported for test mocking
var DeviceFactory = newPlatformDevice

// Transport is the go-ble implementation of device.Transport.
type Transport struct {
	mu     sync.Mutex
	dev    ble.Device
	logger *logrus.Logger
}

// NewTransport creates a transport; the radio is opened on first use.
func NewTransport(logger *logrus.Logger) *Transport {
	if logger == nil {
		logger = logrus.New()
	}
	return &Transport{logger: logger}
}

func (t *Transport) device() (ble.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.dev != nil {
		return t.dev, nil
	}
	dev, err := DeviceFactory()
	if err != nil {
		t.logger.WithError(err).Error("Failed to open BLE device")
		return nil, fmt.Errorf("failed to open BLE device: %w", NormalizeError(err))
	}
	t.dev = dev
	return dev, nil
}

// Scan reports every advertisement until ctx is done. Duplicates are left to
// the radio's own filtering. Ending because ctx is done is not an error.
func (t *Transport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	dev, err := t.device()
	if err != nil {
		return err
	}

	t.logger.Debug("Starting BLE scan")
	err = dev.Scan(ctx, false, func(adv ble.Advertisement) {
		handler(NewAdvertisement(adv))
	})
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return NormalizeError(err)
}

// Connect dials address and discovers its GATT profile.
func (t *Transport) Connect(ctx context.Context, address string) (device.Link, error) {
	if strings.TrimSpace(address) == "" {
		return nil, fmt.Errorf("device address is empty")
	}

	dev, err := t.device()
	if err != nil {
		return nil, err
	}

	log := t.logger.WithField("address", address)
	log.Debug("Dialing BLE device...")

	client, err := dev.Dial(ctx, ble.NewAddr(address))
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, ctxErr)
		}
		return nil, fmt.Errorf("failed to connect to device with address %q: %w", address, NormalizeError(err))
	}

	log.Debug("Discovering services and characteristics...")
	profile, err := client.DiscoverProfile(true)
	if err != nil {
		if cancelErr := client.CancelConnection(); cancelErr != nil {
			log.WithField("cancel_error", cancelErr).Warn("Failed to cancel connection after profile discovery failure")
		}
		return nil, fmt.Errorf("failed to discover profile: %w", NormalizeError(err))
	}

	link := newLink(address, client, profile, t.logger)
	log.WithField("characteristics", len(link.chars)).Debug("Profile discovered")
	return link, nil
}

// Close releases the radio.
func (t *Transport) Close() error {
	t.mu.Lock()
	dev := t.dev
	t.dev = nil
	t.mu.Unlock()

	if dev == nil {
		return nil
	}
	return NormalizeError(dev.Stop())
}

var _ device.Transport = (*Transport)(nil)
