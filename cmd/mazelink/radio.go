package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/srg/mazelink/internal/device"
	goble "github.com/srg/mazelink/internal/device/go-ble"
	"github.com/srg/mazelink/internal/discovery"
	"github.com/srg/mazelink/internal/identity"
	"github.com/srg/mazelink/internal/session"
	"github.com/srg/mazelink/pkg/config"
	orderedmap "github.com/wk8/go-ordered-map/v2"
)

// radio is the transport a command owns for its lifetime
type radio interface {
	device.Transport
	io.Closer
}

// newRadio opens the platform transport. Tests replace it with a fake.
var newRadio = func(logger *logrus.Logger) (radio, error) {
	return goble.NewTransport(logger), nil
}

// connection bundles what a connected command holds on to.
type connection struct {
	radio   radio
	session *session.Session
	handle  device.Handle
}

func (c *connection) Close() {
	c.session.Close()
	_ = c.radio.Close()
}

// scanDevices runs one scan window and returns every admitted device in discovery order.
func scanDevices(ctx context.Context, sess *session.Session, filter discovery.Filter, window time.Duration) (*orderedmap.OrderedMap[string, device.Handle], error) {
	var mu sync.Mutex
	found := orderedmap.New[string, device.Handle]()

	err := sess.StartScan(ctx, filter, window, func(h device.Handle) {
		mu.Lock()
		found.Set(h.ID, h)
		mu.Unlock()
	})
	if err != nil {
		return nil, err
	}

	err = awaitScanEnd(ctx, sess)

	mu.Lock()
	defer mu.Unlock()
	return found, err
}

// awaitScanEnd consumes events until the scan reports its end.
// Canceling ctx stops the scan early.
func awaitScanEnd(ctx context.Context, sess *session.Session) error {
	done := ctx.Done()
	for {
		select {
		case ev, ok := <-sess.Events():
			if !ok {
				return nil
			}
			if sc, isState := ev.(session.StateChanged); isState && sc.From == session.Scanning {
				return sc.Err
			}
		case <-done:
			sess.StopScan()
			done = nil
		}
	}
}

// firstMatch scans until the first maze device shows up and leaves the scan
// running, so the Connect that follows preempts it.
func firstMatch(ctx context.Context, sess *session.Session, window time.Duration) (device.Handle, error) {
	hit := make(chan device.Handle, 1)
	err := sess.StartScan(ctx, nil, window, func(h device.Handle) {
		select {
		case hit <- h:
		default:
		}
	})
	if err != nil {
		return device.Handle{}, err
	}

	done := ctx.Done()
	for {
		select {
		case h := <-hit:
			return h, nil

		case ev, ok := <-sess.Events():
			sc, isState := ev.(session.StateChanged)
			if ok && (!isState || sc.From != session.Scanning) {
				continue
			}
			// the end is reported after the last match was dispatched
			select {
			case h := <-hit:
				return h, nil
			default:
			}
			switch {
			case ok && sc.Err != nil:
				return device.Handle{}, sc.Err
			case ctx.Err() != nil:
				return device.Handle{}, ctx.Err()
			}
			return device.Handle{}, ErrNoDevice

		case <-done:
			sess.StopScan()
			done = nil
		}
	}
}

// resolveHandle picks the device to connect to: an explicit address, the
// remembered device, or the first maze device a scan finds.
func resolveHandle(ctx context.Context, sess *session.Session, store *identity.Store, address string, rescan bool, logger *logrus.Logger) (device.Handle, error) {
	if address != "" {
		return device.HandleFromID(address, ""), nil
	}

	if !rescan {
		id, err := store.Load()
		switch {
		case err == nil:
			logger.WithField("device_id", id.DeviceID).Debug("Using remembered device")
			return id.Handle(), nil
		case !errors.Is(err, identity.ErrNoIdentity):
			logger.WithError(err).Warn("Ignoring unreadable remembered device")
		}
	}

	return firstMatch(ctx, sess, 0)
}

// connect opens the radio, resolves the target device and connects with retry.
func connect(ctx context.Context, cfg *config.Config, logger *logrus.Logger, address string, rescan bool) (*connection, *identity.Store, error) {
	r, err := newRadio(logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open Bluetooth: %w", err)
	}
	sess := session.New(r, cfg.SessionOptions(), logger)
	conn := &connection{radio: r, session: sess}

	idPath, err := cfg.IdentityPath()
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	store := identity.NewStore(idPath, logger)

	h, err := resolveHandle(ctx, sess, store, address, rescan, logger)
	if err != nil {
		conn.Close()
		return nil, nil, err
	}
	conn.handle = h

	if err := sess.ConnectWithRetry(ctx, h, cfg.RetryPolicy()); err != nil {
		conn.Close()
		return nil, nil, fmt.Errorf("connect to %s: %w", h, err)
	}

	if id, ok := sess.DeviceID(); ok {
		if _, err := store.Save(id, h.Name); err != nil {
			logger.WithError(err).Warn("Could not remember device")
		}
	}
	return conn, store, nil
}
