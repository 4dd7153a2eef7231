package testutils

import (
	"fmt"
	"sync"

	"github.com/srg/mazelink/internal/device"
)

// Write records one Link.Write call
type Write struct {
	Char         string
	Data         []byte
	WithResponse bool
}

// FakeLink is an in-memory device.Link exposing a single GATT service.
// Tests drive it with Notify and Drop and inspect it with Writes,
// Unsubscribed, IsSubscribed and CloseCount.
type FakeLink struct {
	mu sync.Mutex

	address  string
	service  string
	chars    map[string][]byte
	handlers map[string]func([]byte)

	subscribeErrs  map[string]error
	stallSubscribe bool
	writeErr       error

	writes       []Write
	unsubscribed []string
	closeCount   int

	disconnected chan struct{}
	dropOnce     sync.Once
}

// NewFakeLink creates a link whose service exposes the given characteristics.
func NewFakeLink(address, service string, chars ...string) *FakeLink {
	l := &FakeLink{
		address:       address,
		service:       device.NormalizeUUID(service),
		chars:         make(map[string][]byte),
		handlers:      make(map[string]func([]byte)),
		subscribeErrs: make(map[string]error),
		disconnected:  make(chan struct{}),
	}
	for _, c := range chars {
		l.chars[device.NormalizeUUID(c)] = nil
	}
	return l
}

func (l *FakeLink) lookup(service, char string) (string, error) {
	key := device.NormalizeUUID(char)
	if device.NormalizeUUID(service) != l.service {
		return "", &device.NotFoundError{Resource: "service", UUIDs: []string{service}}
	}
	if _, ok := l.chars[key]; !ok {
		return "", &device.NotFoundError{Resource: "characteristic", UUIDs: []string{char}}
	}
	return key, nil
}

func (l *FakeLink) Address() string {
	return l.address
}

func (l *FakeLink) HasCharacteristic(service, char string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.lookup(service, char)
	return err == nil
}

func (l *FakeLink) Subscribe(service, char string, handler func([]byte)) error {
	l.mu.Lock()
	if l.stallSubscribe {
		l.mu.Unlock()
		<-l.disconnected
		return fmt.Errorf("%w: subscribe to %s", device.ErrNotConnected, char)
	}
	defer l.mu.Unlock()

	key, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	if err := l.subscribeErrs[key]; err != nil {
		return err
	}
	l.handlers[key] = handler
	return nil
}

func (l *FakeLink) Unsubscribe(service, char string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	if _, ok := l.handlers[key]; !ok {
		return fmt.Errorf("characteristic %s is not subscribed", char)
	}
	delete(l.handlers, key)
	l.unsubscribed = append(l.unsubscribed, key)
	return nil
}

func (l *FakeLink) Write(service, char string, data []byte, withResponse bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key, err := l.lookup(service, char)
	if err != nil {
		return err
	}
	if l.writeErr != nil {
		return l.writeErr
	}
	l.writes = append(l.writes, Write{Char: key, Data: append([]byte(nil), data...), WithResponse: withResponse})
	l.chars[key] = append([]byte(nil), data...)
	return nil
}

func (l *FakeLink) Disconnected() <-chan struct{} {
	return l.disconnected
}

// Close drops every subscription and reports the link as disconnected.
func (l *FakeLink) Close() error {
	l.mu.Lock()
	l.closeCount++
	l.handlers = make(map[string]func([]byte))
	l.mu.Unlock()

	l.dropOnce.Do(func() { close(l.disconnected) })
	return nil
}

// FailSubscribe makes subscriptions to char fail with err.
func (l *FakeLink) FailSubscribe(char string, err error) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.subscribeErrs[device.NormalizeUUID(char)] = err
	return l
}

// StallSubscribe makes every subscription hang until the link goes away,
// like a descriptor write the peer never acknowledges.
func (l *FakeLink) StallSubscribe() *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.stallSubscribe = true
	return l
}

// FailWrite makes every write fail with err.
func (l *FakeLink) FailWrite(err error) *FakeLink {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.writeErr = err
	return l
}

// Notify delivers payload to the subscriber of char, the way a radio
// goroutine would. It reports whether anyone was subscribed.
func (l *FakeLink) Notify(char string, payload []byte) bool {
	l.mu.Lock()
	handler, ok := l.handlers[device.NormalizeUUID(char)]
	l.mu.Unlock()

	if !ok {
		return false
	}
	handler(payload)
	return true
}

// Drop simulates the peer going away without a local Close.
func (l *FakeLink) Drop() {
	l.dropOnce.Do(func() { close(l.disconnected) })
}

// IsSubscribed reports whether char currently has a subscriber
func (l *FakeLink) IsSubscribed(char string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.handlers[device.NormalizeUUID(char)]
	return ok
}

// Writes returns the recorded writes
func (l *FakeLink) Writes() []Write {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Write(nil), l.writes...)
}

// Unsubscribed returns the characteristics unsubscribed so far, in order
func (l *FakeLink) Unsubscribed() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.unsubscribed...)
}

// CloseCount returns how many times Close was called
func (l *FakeLink) CloseCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeCount
}

var _ device.Link = (*FakeLink)(nil)
