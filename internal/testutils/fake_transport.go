package testutils

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/srg/mazelink/internal/device"
)

// DialFunc replaces the default dial behaviour of FakeTransport
type DialFunc func(ctx context.Context, address string) (device.Link, error)

// FakeTransport is an in-memory device.Transport.
//
// Scan replays the configured advertisements and then blocks until its
// context ends, exactly like a radio scan. Connect returns the link
// registered for the address unless a DialFunc overrides it.
type FakeTransport struct {
	mu sync.Mutex

	advertisements []device.Advertisement
	links          map[string]*FakeLink
	scanErr        error
	dial           DialFunc

	handler   func(device.Advertisement)
	scanning  bool
	scanCount int
	dialCount int
	dialed    []string
}

// NewFakeTransport creates a transport with no devices in range
func NewFakeTransport() *FakeTransport {
	return &FakeTransport{links: make(map[string]*FakeLink)}
}

// Advertise adds advertisements replayed at the start of every scan.
func (t *FakeTransport) Advertise(advs ...device.Advertisement) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.advertisements = append(t.advertisements, advs...)
	return t
}

// AddLink makes link reachable by its address.
func (t *FakeTransport) AddLink(link *FakeLink) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.links[link.Address()] = link
	return t
}

// FailScan makes the next scans fail immediately with err.
func (t *FakeTransport) FailScan(err error) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.scanErr = err
	return t
}

// SetDial overrides Connect.
func (t *FakeTransport) SetDial(fn DialFunc) *FakeTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dial = fn
	return t
}

// Announce delivers adv to the running scan, if any.
func (t *FakeTransport) Announce(adv device.Advertisement) bool {
	t.mu.Lock()
	handler := t.handler
	t.mu.Unlock()

	if handler == nil {
		return false
	}
	handler(adv)
	return true
}

func (t *FakeTransport) Scan(ctx context.Context, handler func(device.Advertisement)) error {
	t.mu.Lock()
	t.scanCount++
	if t.scanErr != nil {
		err := t.scanErr
		t.mu.Unlock()
		return err
	}
	t.scanning = true
	t.handler = handler
	advs := append([]device.Advertisement(nil), t.advertisements...)
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		t.scanning = false
		t.handler = nil
		t.mu.Unlock()
	}()

	for _, adv := range advs {
		if ctx.Err() != nil {
			break
		}
		handler(adv)
	}

	<-ctx.Done()
	return ctx.Err()
}

func (t *FakeTransport) Connect(ctx context.Context, address string) (device.Link, error) {
	t.mu.Lock()
	t.dialCount++
	t.dialed = append(t.dialed, address)
	dial := t.dial
	link, ok := t.links[address]
	t.mu.Unlock()

	if dial != nil {
		return dial(ctx, address)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("device %s is not in range", address)
	}
	return link, nil
}

// IsScanning reports whether a scan currently holds the radio
func (t *FakeTransport) IsScanning() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scanning
}

// ScanCount returns how many scans were started
func (t *FakeTransport) ScanCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.scanCount
}

// DialCount returns how many dials were attempted
func (t *FakeTransport) DialCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dialCount
}

// Dialed returns the dialed addresses in order
func (t *FakeTransport) Dialed() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.dialed...)
}

// BlockingDial never completes on its own; it returns once ctx ends.
func BlockingDial() DialFunc {
	return func(ctx context.Context, _ string) (device.Link, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
}

// FailingDial fails every dial with err.
func FailingDial(err error) DialFunc {
	return func(context.Context, string) (device.Link, error) {
		return nil, err
	}
}

// LateDial ignores ctx and returns link after delay, modelling a stack
// that cannot abort a pending connection.
func LateDial(link device.Link, delay time.Duration) DialFunc {
	return func(context.Context, string) (device.Link, error) {
		time.Sleep(delay)
		return link, nil
	}
}

// SequenceDial hands each dial to the next func in order; the last one repeats.
func SequenceDial(fns ...DialFunc) DialFunc {
	var mu sync.Mutex
	i := 0
	return func(ctx context.Context, address string) (device.Link, error) {
		mu.Lock()
		fn := fns[i]
		if i < len(fns)-1 {
			i++
		}
		mu.Unlock()
		return fn(ctx, address)
	}
}

var _ device.Transport = (*FakeTransport)(nil)
