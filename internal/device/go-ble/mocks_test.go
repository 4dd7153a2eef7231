package goble_test

import (
	"context"

	"github.com/go-ble/ble"
	"github.com/stretchr/testify/mock"
)

// Only the methods the transport uses are mocked; the embedded interfaces
// satisfy the rest and panic if reached.

type mockDevice struct {
	ble.Device
	mock.Mock
}

func (m *mockDevice) Scan(ctx context.Context, allowDup bool, h ble.AdvHandler) error {
	return m.Called(ctx, allowDup, h).Error(0)
}

func (m *mockDevice) Dial(ctx context.Context, a ble.Addr) (ble.Client, error) {
	args := m.Called(ctx, a)
	client, _ := args.Get(0).(ble.Client)
	return client, args.Error(1)
}

func (m *mockDevice) Stop() error {
	return m.Called().Error(0)
}

type mockClient struct {
	ble.Client
	mock.Mock
}

func (m *mockClient) DiscoverProfile(force bool) (*ble.Profile, error) {
	args := m.Called(force)
	profile, _ := args.Get(0).(*ble.Profile)
	return profile, args.Error(1)
}

func (m *mockClient) Subscribe(c *ble.Characteristic, ind bool, h ble.NotificationHandler) error {
	return m.Called(c, ind, h).Error(0)
}

func (m *mockClient) Unsubscribe(c *ble.Characteristic, ind bool) error {
	return m.Called(c, ind).Error(0)
}

func (m *mockClient) WriteCharacteristic(c *ble.Characteristic, value []byte, noRsp bool) error {
	return m.Called(c, value, noRsp).Error(0)
}

func (m *mockClient) CancelConnection() error {
	return m.Called().Error(0)
}

func (m *mockClient) Disconnected() <-chan struct{} {
	ch, _ := m.Called().Get(0).(<-chan struct{})
	return ch
}

type mockAdvertisement struct {
	ble.Advertisement
	mock.Mock
}

func (m *mockAdvertisement) LocalName() string { return m.Called().String(0) }
func (m *mockAdvertisement) RSSI() int         { return m.Called().Int(0) }
func (m *mockAdvertisement) Connectable() bool { return m.Called().Bool(0) }

func (m *mockAdvertisement) Addr() ble.Addr {
	addr, _ := m.Called().Get(0).(ble.Addr)
	return addr
}

func (m *mockAdvertisement) Services() []ble.UUID {
	uuids, _ := m.Called().Get(0).([]ble.UUID)
	return uuids
}
