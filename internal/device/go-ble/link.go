package goble

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-ble/ble"
	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/device"
)

const (
	// WriteChunkSize is the ATT payload of the default 23-byte MTU.
	WriteChunkSize = 20

	// WriteChunkDelay spaces consecutive chunks of one write.
	WriteChunkDelay = 10 * time.Millisecond
)

// Link is a connected go-ble client with its discovered profile.
type Link struct {
	address string
	client  ble.Client
	logger  *logrus.Logger

	// chars is built once from the profile and read-only afterwards
	chars map[string]*ble.Characteristic

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

func charKey(service, char string) string {
	return device.NormalizeUUID(service) + "/" + device.NormalizeUUID(char)
}

func newLink(address string, client ble.Client, profile *ble.Profile, logger *logrus.Logger) *Link {
	l := &Link{
		address: address,
		client:  client,
		logger:  logger,
		chars:   make(map[string]*ble.Characteristic),
	}
	if profile == nil {
		return l
	}
	for _, svc := range profile.Services {
		for _, c := range svc.Characteristics {
			l.chars[charKey(svc.UUID.String(), c.UUID.String())] = c
		}
	}
	return l
}

func (l *Link) lookup(service, char string) (*ble.Characteristic, error) {
	c, ok := l.chars[charKey(service, char)]
	if !ok {
		return nil, &device.NotFoundError{Resource: "characteristic", UUIDs: []string{service, char}}
	}
	return c, nil
}

func (l *Link) Address() string {
	return l.address
}

func (l *Link) HasCharacteristic(service, char string) bool {
	_, err := l.lookup(service, char)
	return err == nil
}

// Subscribe enables notifications, falling back to indications when the
// characteristic only supports those.
func (l *Link) Subscribe(service, char string, handler func([]byte)) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	if c.Property&(ble.CharNotify|ble.CharIndicate) == 0 {
		return fmt.Errorf("%w: characteristic %s does not support notifications", device.ErrUnsupported, char)
	}

	ind := c.Property&ble.CharNotify == 0
	if err := l.client.Subscribe(c, ind, func(data []byte) { handler(data) }); err != nil {
		return NormalizeError(err)
	}

	l.logger.WithFields(logrus.Fields{
		"address":        l.address,
		"characteristic": char,
		"indicate":       ind,
	}).Debug("Subscribed")
	return nil
}

func (l *Link) Unsubscribe(service, char string) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	ind := c.Property&ble.CharNotify == 0
	return NormalizeError(l.client.Unsubscribe(c, ind))
}

// Write sends data in WriteChunkSize pieces. Writes on one link are serialized.
func (l *Link) Write(service, char string, data []byte, withResponse bool) error {
	c, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	if c.Property&(ble.CharWrite|ble.CharWriteNR) == 0 {
		return fmt.Errorf("%w: characteristic %s is not writable", device.ErrUnsupported, char)
	}

	l.writeMu.Lock()
	defer l.writeMu.Unlock()

	for offset := 0; offset < len(data); offset += WriteChunkSize {
		if offset > 0 {
			time.Sleep(WriteChunkDelay)
		}
		end := min(offset+WriteChunkSize, len(data))
		if err := l.client.WriteCharacteristic(c, data[offset:end], !withResponse); err != nil {
			return fmt.Errorf("write failed at offset %d: %w", offset, NormalizeError(err))
		}
	}
	return nil
}

func (l *Link) Disconnected() <-chan struct{} {
	return l.client.Disconnected()
}

// Close cancels the connection. A link the peer already dropped closes cleanly.
func (l *Link) Close() error {
	l.closeOnce.Do(func() {
		err := NormalizeError(l.client.CancelConnection())
		if err != nil && !errors.Is(err, device.ErrNotConnected) {
			l.closeErr = err
		}
	})
	return l.closeErr
}

var _ device.Link = (*Link)(nil)
