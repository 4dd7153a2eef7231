package goble_test

import (
	"context"
	"errors"
	"testing"

	"github.com/go-ble/ble"
	"github.com/srg/mazelink/internal/device"
	goble "github.com/srg/mazelink/internal/device/go-ble"
	"github.com/srg/mazelink/internal/testutils"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/suite"
)

const (
	serviceUUID = "4fafc201-1fb5-459e-8fcc-c5c9c331914b"
	statusUUID  = "beb5483e-36e1-4688-b7f5-ea07361b26a8"
	controlUUID = "beb5483e-36e1-4688-b7f5-ea07361b26aa"
	address     = "AA:BB:CC:DD:EE:01"
)

type TransportSuite struct {
	suite.Suite

	helper    *testutils.TestHelper
	dev       *mockDevice
	client    *mockClient
	status    *ble.Characteristic
	control   *ble.Characteristic
	transport *goble.Transport
}

func TestTransportSuite(t *testing.T) {
	suite.Run(t, new(TransportSuite))
}

func (s *TransportSuite) SetupTest() {
	s.helper = testutils.NewTestHelper(s.T())
	s.dev = &mockDevice{}
	s.client = &mockClient{}

	original := goble.DeviceFactory
	goble.DeviceFactory = func() (ble.Device, error) { return s.dev, nil }
	s.T().Cleanup(func() { goble.DeviceFactory = original })

	s.status = &ble.Characteristic{UUID: ble.MustParse(statusUUID), Property: ble.CharRead | ble.CharNotify}
	s.control = &ble.Characteristic{UUID: ble.MustParse(controlUUID), Property: ble.CharWrite}

	s.transport = goble.NewTransport(s.helper.Logger)
}

func (s *TransportSuite) profile() *ble.Profile {
	return &ble.Profile{Services: []*ble.Service{{
		UUID:            ble.MustParse(serviceUUID),
		Characteristics: []*ble.Characteristic{s.status, s.control},
	}}}
}

func (s *TransportSuite) connect() device.Link {
	s.dev.On("Dial", mock.Anything, ble.NewAddr(address)).Return(s.client, nil).Once()
	s.client.On("DiscoverProfile", true).Return(s.profile(), nil).Once()

	link, err := s.transport.Connect(context.Background(), address)
	s.Require().NoError(err, "MUST connect")
	return link
}

func (s *TransportSuite) TestScan() {
	// GOAL: Verify radio advertisements reach the handler in transport-neutral form
	//
	// TEST SCENARIO: Radio reports one advertisement then the window ends → handler sees it → no error

	adv := &mockAdvertisement{}
	adv.On("LocalName").Return("MazeChallenge_01")
	adv.On("Addr").Return(ble.NewAddr(address))
	adv.On("RSSI").Return(-61)
	adv.On("Services").Return([]ble.UUID{ble.MustParse(serviceUUID)})

	s.dev.On("Scan", mock.Anything, false, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(ble.AdvHandler)(adv)
		}).
		Return(context.DeadlineExceeded).Once()

	var got []device.Advertisement
	err := s.transport.Scan(context.Background(), func(a device.Advertisement) { got = append(got, a) })

	s.Require().NoError(err, "end of the scan window MUST NOT be an error")
	s.Require().Len(got, 1)
	s.Equal("MazeChallenge_01", got[0].LocalName())
	s.Equal(-61, got[0].RSSI())
	s.Equal([]string{device.NormalizeUUID(serviceUUID)}, got[0].Services())
	s.dev.AssertExpectations(s.T())
}

func (s *TransportSuite) TestScan_BluetoothOff() {
	s.dev.On("Scan", mock.Anything, false, mock.Anything).
		Return(errors.New("central manager has invalid state: have=4 want=5: is Bluetooth turned on?")).Once()

	err := s.transport.Scan(context.Background(), func(device.Advertisement) {})
	s.ErrorIs(err, device.ErrBluetoothOff)
}

func (s *TransportSuite) TestScan_NoRadio() {
	goble.DeviceFactory = func() (ble.Device, error) { return nil, errors.New("hci0: no such device") }

	err := s.transport.Scan(context.Background(), func(device.Advertisement) {})
	s.ErrorContains(err, "failed to open BLE device")
}

func (s *TransportSuite) TestConnect() {
	link := s.connect()

	s.Equal(address, link.Address())
	s.True(link.HasCharacteristic(serviceUUID, statusUUID))
	s.True(link.HasCharacteristic("4FAFC201-1FB5-459E-8FCC-C5C9C331914B", controlUUID), "lookup MUST be case-insensitive")
	s.False(link.HasCharacteristic(serviceUUID, "beb5483e-36e1-4688-b7f5-ea07361b26a9"))
}

func (s *TransportSuite) TestConnect_Failures() {
	s.Run("dial error", func() {
		s.dev.On("Dial", mock.Anything, ble.NewAddr(address)).Return(nil, errors.New("device already connected")).Once()

		_, err := s.transport.Connect(context.Background(), address)
		s.ErrorIs(err, device.ErrAlreadyConnected)
	})

	s.Run("canceled dial reports the context error", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		s.dev.On("Dial", mock.Anything, ble.NewAddr(address)).Return(nil, errors.New("dial aborted")).Once()

		_, err := s.transport.Connect(ctx, address)
		s.ErrorIs(err, context.Canceled)
	})

	s.Run("profile discovery error cancels connection", func() {
		s.dev.On("Dial", mock.Anything, ble.NewAddr(address)).Return(s.client, nil).Once()
		s.client.On("DiscoverProfile", true).Return(nil, errors.New("ATT timeout")).Once()
		s.client.On("CancelConnection").Return(nil).Once()

		_, err := s.transport.Connect(context.Background(), address)
		s.ErrorContains(err, "failed to discover profile")
		s.client.AssertCalled(s.T(), "CancelConnection")
	})

	s.Run("empty address", func() {
		_, err := s.transport.Connect(context.Background(), " ")
		s.EqualError(err, "device address is empty")
	})
}

func (s *TransportSuite) TestLinkSubscribe() {
	link := s.connect()

	s.client.On("Subscribe", s.status, false, mock.Anything).
		Run(func(args mock.Arguments) {
			args.Get(2).(ble.NotificationHandler)([]byte("READY"))
		}).
		Return(nil).Once()
	s.client.On("Unsubscribe", s.status, false).Return(nil).Once()

	var got []byte
	s.Require().NoError(link.Subscribe(serviceUUID, statusUUID, func(b []byte) { got = b }))
	s.Equal([]byte("READY"), got, "notification MUST reach the handler")

	s.NoError(link.Unsubscribe(serviceUUID, statusUUID))

	err := link.Subscribe(serviceUUID, controlUUID, func([]byte) {})
	s.ErrorIs(err, device.ErrUnsupported, "write-only characteristic MUST refuse subscription")

	var nf *device.NotFoundError
	s.ErrorAs(link.Subscribe(serviceUUID, "2a19", func([]byte) {}), &nf)
	s.client.AssertExpectations(s.T())
}

func (s *TransportSuite) TestLinkWrite() {
	link := s.connect()

	s.Run("short command in one write with response", func() {
		s.client.On("WriteCharacteristic", s.control, []byte("RESET"), false).Return(nil).Once()
		s.NoError(link.Write(serviceUUID, controlUUID, []byte("RESET"), true))
	})

	s.Run("long payload is chunked", func() {
		payload := []byte("0123456789abcdefghij0123456789abcdefghijXYZ")
		s.client.On("WriteCharacteristic", s.control, payload[0:20], true).Return(nil).Once()
		s.client.On("WriteCharacteristic", s.control, payload[20:40], true).Return(nil).Once()
		s.client.On("WriteCharacteristic", s.control, payload[40:], true).Return(nil).Once()

		s.NoError(link.Write(serviceUUID, controlUUID, payload, false))
	})

	s.Run("read-only characteristic refuses writes", func() {
		s.ErrorIs(link.Write(serviceUUID, statusUUID, []byte("x"), true), device.ErrUnsupported)
	})

	s.client.AssertExpectations(s.T())
}

func (s *TransportSuite) TestLinkClose() {
	link := s.connect()

	s.client.On("CancelConnection").Return(errors.New("device not connected")).Once()
	s.NoError(link.Close(), "closing a dropped link MUST succeed")
	s.NoError(link.Close(), "second close MUST be a no-op")
	s.client.AssertNumberOfCalls(s.T(), "CancelConnection", 1)
}

func (s *TransportSuite) TestTransportClose() {
	s.NoError(s.transport.Close(), "closing an unopened transport is a no-op")

	s.connect()
	s.dev.On("Stop").Return(nil).Once()
	s.NoError(s.transport.Close())
	s.dev.AssertExpectations(s.T())
}
